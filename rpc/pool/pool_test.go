package pool

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/transport/base"
	"github.com/ValentinKolb/dTuple/rpc/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStartsInFullBlockAndConnectsLazily(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"})

	assert.Equal(t, FullBlock, env.pool.State())
	assert.Equal(t, int64(0), env.connector.Dials())

	conn, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.Endpoint("e"), conn.Endpoint())
	assert.True(t, conn.IsAlive())
	assert.Equal(t, Steady, env.pool.State())
	assert.Equal(t, int64(1), env.connector.Dials())

	// steady: no further connects
	for i := 0; i < 10; i++ {
		c, err := env.pool.GetConnection(context.Background())
		require.NoError(t, err)
		assert.Same(t, conn, c)
	}
	assert.Equal(t, int64(1), env.connector.Dials())
}

func TestPoolReplacesKilledConnection(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"})

	first, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)

	env.connector.Kill("e")
	waitForState(t, env.pool, Degraded)

	second, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, second.IsAlive())
	assert.Equal(t, int64(2), env.connector.Dials(), "exactly one new connect")
	assert.Equal(t, Steady, env.pool.State())

	stats := env.pool.Stats()
	assert.Equal(t, 1, stats.Connections)
	assert.Equal(t, 1, stats.Alive)
	assert.Equal(t, uint64(2), stats.ReconnectCycles)
}

func TestPoolPartialBatchIsSteady(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"}, withPoolSize(3), withConnectTimeout(50*time.Millisecond))
	env.connector.Script("e", transporttest.Hang, transporttest.Hang, transporttest.OK)

	conn, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, Steady, env.pool.State())
	assert.Equal(t, 1, env.pool.Stats().Alive)
}

func TestPoolAllConnectsFail(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"}, withPoolSize(2))
	env.connector.SetDefault("e", transporttest.Fail)

	conn, err := env.pool.GetConnection(context.Background())
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, common.ErrNoAvailableConnections)
	assert.Equal(t, FullBlock, env.pool.State())

	// the next caller starts a fresh cycle
	env.connector.SetDefault("e", transporttest.OK)
	conn, err = env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, conn.IsAlive())
	assert.Equal(t, Steady, env.pool.State())
	assert.Equal(t, 2, env.pool.Stats().Alive)
}

func TestPoolSingleLeaderUnderConcurrency(t *testing.T) {
	endpoints := []common.Endpoint{"a", "b"}
	env := newTestEnv(t, endpoints, withPoolSize(2))
	env.connector.SetDelay(50 * time.Millisecond)

	const callers = 32
	var wg sync.WaitGroup
	results := make([]*base.Connection, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = env.pool.GetConnection(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(4), env.connector.Dials(), "only the leader may connect")
	assert.Equal(t, uint64(1), env.pool.Stats().ReconnectCycles)

	reg := env.pool.current.Load().registry
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, reg.contains(results[i]), "every caller is served from the same cycle")
	}
}

func TestPoolDegradedDoesNotBlockCallers(t *testing.T) {
	endpoints := []common.Endpoint{"a", "b"}
	env := newTestEnv(t, endpoints)

	_, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)

	env.connector.Kill("a")
	waitForState(t, env.pool, Degraded)

	env.connector.SetDelay(300 * time.Millisecond)
	leaderDone := make(chan error, 1)
	go func() {
		_, err := env.pool.GetConnection(context.Background())
		leaderDone <- err
	}()
	waitForState(t, env.pool, Reconnecting)

	start := time.Now()
	conn, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "degraded callers must not wait for the cycle")
	assert.Equal(t, common.Endpoint("b"), conn.Endpoint(), "the old snapshot skips the dead connection")

	require.NoError(t, <-leaderDone)
	assert.Equal(t, Steady, env.pool.State())
	assert.Equal(t, 2, env.pool.Stats().Alive)
}

func TestPoolFullBlockWaitHonorsContext(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"})
	env.connector.SetDelay(300 * time.Millisecond)

	leaderDone := make(chan error, 1)
	go func() {
		_, err := env.pool.GetConnection(context.Background())
		leaderDone <- err
	}()
	waitForState(t, env.pool, Reconnecting)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := env.pool.GetConnection(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the cycle itself is not cancelled
	require.NoError(t, <-leaderDone)
	assert.Equal(t, Steady, env.pool.State())
}

func TestPoolLeaderCycleIgnoresCallerCancellation(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"})
	env.connector.SetDelay(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn, err := env.pool.GetConnection(ctx)
	require.NoError(t, err)
	assert.True(t, conn.IsAlive())
}

func TestPoolFailureDuringCycleEndsDegraded(t *testing.T) {
	endpoints := []common.Endpoint{"a", "b", "c"}
	env := newTestEnv(t, endpoints, withConnectTimeout(300*time.Millisecond))
	env.connector.Script("c", transporttest.Fail)

	_, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	require.Equal(t, Steady, env.pool.State())
	require.Equal(t, 2, env.pool.Stats().Alive)

	// the next cycle waits for c, a dies meanwhile
	env.connector.Script("c", transporttest.Hang)
	require.True(t, env.pool.Refresh())

	leaderDone := make(chan error, 1)
	go func() {
		_, err := env.pool.GetConnection(context.Background())
		leaderDone <- err
	}()
	waitForState(t, env.pool, Reconnecting)
	env.connector.Kill("a")

	require.NoError(t, <-leaderDone)
	assert.Equal(t, Degraded, env.pool.State(), "the failure must trigger another cycle")

	// and that cycle restores every endpoint
	_, err = env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Steady, env.pool.State())
	assert.Equal(t, 3, env.pool.Stats().Alive)
}

func TestPoolRefresh(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"})

	assert.False(t, env.pool.Refresh(), "refresh only applies to a steady pool")

	_, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)

	assert.True(t, env.pool.Refresh())
	assert.Equal(t, Degraded, env.pool.State())
	assert.False(t, env.pool.Refresh())

	_, err = env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Steady, env.pool.State())
	assert.Equal(t, int64(1), env.connector.Dials(), "nothing was missing")
	assert.Equal(t, uint64(2), env.pool.Stats().ReconnectCycles)
}

func TestPoolForcesFullBlockWithoutConnections(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"})
	env.pool.state.Store(int32(Steady))

	_, err := env.pool.GetConnection(context.Background())
	assert.ErrorIs(t, err, common.ErrNoAvailableConnections)
	assert.Equal(t, FullBlock, env.pool.State())

	// the next call rebuilds
	_, err = env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Steady, env.pool.State())
}

func TestPoolKeepsExcessConnections(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"})
	_, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)

	extra := env.factory.Connect(context.Background(), "e", 2)
	require.Len(t, extra, 2)
	old := env.pool.current.Load().registry
	next := old.rebuild(map[common.Endpoint][]*base.Connection{"e": extra})
	strategy, err := newStrategy(common.StrategyRoundRobin, next)
	require.NoError(t, err)
	env.pool.current.Store(&snapshot{registry: next, strategy: strategy})

	require.True(t, env.pool.Refresh())
	_, err = env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, env.pool.Stats().Connections)
	assert.Equal(t, 3, env.pool.Stats().Alive)
}

func TestPoolClose(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"a", "b"}, withPoolSize(2))

	_, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	conns := env.pool.current.Load().registry.all()
	require.Len(t, conns, 4)

	require.NoError(t, env.pool.Close())
	require.NoError(t, env.pool.Close())

	for _, c := range conns {
		assert.False(t, c.IsAlive())
	}
	_, err = env.pool.GetConnection(context.Background())
	assert.ErrorIs(t, err, common.ErrPoolClosed)
	assert.False(t, env.pool.Refresh())
}

func TestPoolCloseWaitsForCycle(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"})
	env.connector.SetDelay(100 * time.Millisecond)

	leaderDone := make(chan error, 1)
	go func() {
		_, err := env.pool.GetConnection(context.Background())
		leaderDone <- err
	}()
	waitForState(t, env.pool, Reconnecting)

	require.NoError(t, env.pool.Close())
	assert.ErrorIs(t, <-leaderDone, common.ErrPoolClosed)
	assert.Equal(t, FullBlock, env.pool.State(), "an aborted cycle does not restore the previous state")
	for _, c := range env.pool.current.Load().registry.all() {
		assert.False(t, c.IsAlive())
	}
}

func TestPoolWriteFailureDegrades(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"})

	first, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	require.Equal(t, Steady, env.pool.State())

	require.Equal(t, 1, env.connector.BreakWrites("e"))
	future, err := first.Send(&common.Request{Code: common.CodePing})
	require.NoError(t, err)
	_, err = future.Get(context.Background())
	require.Error(t, err)

	waitForState(t, env.pool, Degraded)

	second, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, Steady, env.pool.State())
}

func TestPoolParallelRoundRobinAlternatesEndpoints(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"a", "b"},
		withPoolSize(2), withStrategy(common.StrategyParallelRoundRobin))

	var picks []*base.Connection
	for i := 0; i < 8; i++ {
		conn, err := env.pool.GetConnection(context.Background())
		require.NoError(t, err)
		picks = append(picks, conn)
	}
	assert.Equal(t, Steady, env.pool.State())

	seen := make(map[*base.Connection]int)
	for i, conn := range picks {
		seen[conn]++
		if i > 0 {
			assert.NotEqual(t, picks[i-1].Endpoint(), conn.Endpoint(), "pick %d", i)
		}
	}
	assert.Len(t, seen, 4, "every connection is used")
	for conn, n := range seen {
		assert.Equal(t, 2, n, "connection to %s", conn.Endpoint())
	}
}

func TestPoolMetrics(t *testing.T) {
	env := newTestEnv(t, []common.Endpoint{"e"})
	_, err := env.pool.GetConnection(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	env.pool.WriteMetrics(&buf)
	assert.Contains(t, buf.String(), "dtuple_pool_connections_alive 1")
	assert.Contains(t, buf.String(), "dtuple_pool_state 2")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "full-block", FullBlock.String())
	assert.Equal(t, "degraded", Degraded.String())
	assert.Equal(t, "steady", Steady.String())
	assert.Equal(t, "reconnecting", Reconnecting.String())
}
