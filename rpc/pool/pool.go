package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("pool")

// State is the lifecycle state of a ConnectionPool
type State int32

const (
	// FullBlock: no usable connections, every caller waits for the next cycle
	FullBlock State = iota
	// Degraded: a refresh is due, callers keep using the current connections
	Degraded
	// Steady: fast path, connections are handed out without coordination
	Steady
	// Reconnecting: a leader runs a reconnect cycle
	Reconnecting
)

func (s State) String() string {
	switch s {
	case FullBlock:
		return "full-block"
	case Degraded:
		return "degraded"
	case Steady:
		return "steady"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stats is a point in time view of the pool
type Stats struct {
	State           State
	Endpoints       int
	Connections     int
	Alive           int
	Pending         int
	ReconnectCycles uint64
}

// snapshot couples a registry with the strategy built from it, both are
// published together
type snapshot struct {
	registry *registry
	strategy ISelectionStrategy
}

// role of a caller after claiming
type role int

const (
	follower role = iota
	leader
	closedRole
)

// ConnectionPool keeps a number of connections to every endpoint and hands
// them out in round robin order. Broken connections are replaced lazily by
// the caller that first observes the need, every other caller either keeps
// using the current connections (Degraded) or waits for the new ones
// (FullBlock).
type ConnectionPool struct {
	factory      *base.ConnectionFactory
	endpoints    []common.Endpoint
	poolSize     int
	strategyKind common.SelectionStrategyKind

	state   atomic.Int32
	current atomic.Pointer[snapshot]
	barrier *barrier
	closed  atomic.Bool
	cycles  atomic.Uint64

	// claimMu guards state transitions outside the fast path
	claimMu sync.Mutex
	// pendingRefresh is set when a connection failed during a cycle
	pendingRefresh bool
	running        sync.WaitGroup

	metrics *poolMetrics
}

// NewConnectionPool creates a pool on top of the factory. No connection is
// opened until the first GetConnection.
func NewConnectionPool(factory *base.ConnectionFactory) (*ConnectionPool, error) {
	config := factory.Config()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	p := &ConnectionPool{
		factory:      factory,
		endpoints:    append([]common.Endpoint(nil), config.Transport.Endpoints...),
		poolSize:     config.Transport.ConnectionsPerEndpoint,
		strategyKind: config.Strategy,
		barrier:      newBarrier(),
	}

	strategy, err := newStrategy(p.strategyKind, emptyRegistry(p.endpoints))
	if err != nil {
		return nil, err
	}
	p.current.Store(&snapshot{registry: emptyRegistry(p.endpoints), strategy: strategy})
	p.state.Store(int32(FullBlock))
	p.metrics = newPoolMetrics(p)

	factory.AddFailureListener(p.onConnectionFailure)

	Logger.Infof("Created connection pool for %d endpoints with %d connections each (%s)",
		len(p.endpoints), p.poolSize, p.strategyKind)
	return p, nil
}

// --------------------------------------------------------------------------
// Public API
// --------------------------------------------------------------------------

// GetConnection returns a live connection. Depending on the state it may run
// a reconnect cycle or wait for the one in flight. The cycle itself is not
// bound to ctx, only the waiting is.
func (p *ConnectionPool) GetConnection(ctx context.Context) (*base.Connection, error) {
	conn, err := p.getConnection(ctx)
	if errors.Is(err, common.ErrNoAvailableConnections) {
		p.forceFullBlock()
	}
	return conn, err
}

// Refresh requests a reconnect cycle without blocking anyone. It returns
// false unless the pool was steady.
func (p *ConnectionPool) Refresh() bool {
	p.claimMu.Lock()
	defer p.claimMu.Unlock()
	if p.closed.Load() {
		return false
	}
	return p.state.CompareAndSwap(int32(Steady), int32(Degraded))
}

// State returns the current state
func (p *ConnectionPool) State() State {
	return State(p.state.Load())
}

// Stats returns a snapshot of the pool's counters
func (p *ConnectionPool) Stats() Stats {
	reg := p.current.Load().registry
	pending := 0
	for _, c := range reg.all() {
		pending += c.Pending()
	}
	return Stats{
		State:           p.State(),
		Endpoints:       len(p.endpoints),
		Connections:     reg.size,
		Alive:           reg.liveTotal(),
		Pending:         pending,
		ReconnectCycles: p.cycles.Load(),
	}
}

// Close waits for a running cycle and closes every connection. Later calls
// to GetConnection fail with common.ErrPoolClosed.
func (p *ConnectionPool) Close() error {
	p.claimMu.Lock()
	if !p.closed.CompareAndSwap(false, true) {
		p.claimMu.Unlock()
		return nil
	}
	p.claimMu.Unlock()

	p.running.Wait()

	var err error
	for _, c := range p.current.Load().registry.all() {
		err = multierr.Append(err, c.Close())
	}
	p.barrier.lower()

	Logger.Infof("Connection pool closed")
	return err
}

// --------------------------------------------------------------------------
// State machine
// --------------------------------------------------------------------------

func (p *ConnectionPool) getConnection(ctx context.Context) (*base.Connection, error) {
	if p.closed.Load() {
		return nil, common.ErrPoolClosed
	}

	// fast path
	if p.State() == Steady {
		return p.current.Load().strategy.Next()
	}

	r, prev, gate := p.claim()
	switch r {
	case closedRole:
		return nil, common.ErrPoolClosed
	case leader:
		return p.reconnect(ctx, prev)
	}

	if err := wait(ctx, gate); err != nil {
		return nil, err
	}
	if p.closed.Load() {
		return nil, common.ErrPoolClosed
	}
	return p.current.Load().strategy.Next()
}

// claim decides the role of a caller. The first caller in FullBlock or
// Degraded becomes leader, everyone else gets the gate to wait on.
func (p *ConnectionPool) claim() (role, State, <-chan struct{}) {
	p.claimMu.Lock()
	defer p.claimMu.Unlock()

	if p.closed.Load() {
		return closedRole, 0, nil
	}

	prev := p.State()
	switch prev {
	case FullBlock:
		p.barrier.raise()
		fallthrough
	case Degraded:
		p.state.Store(int32(Reconnecting))
		p.pendingRefresh = false
		p.running.Add(1)
		return leader, prev, nil
	default:
		return follower, prev, p.barrier.waiter()
	}
}

// reconnect runs one cycle as leader: top up every endpoint to the pool
// size, publish the new snapshot, retire dead connections and settle the state.
func (p *ConnectionPool) reconnect(ctx context.Context, prev State) (*base.Connection, error) {
	defer p.running.Done()
	// the cycle serves every waiting caller, not just this one
	ctx = context.WithoutCancel(ctx)

	cycle := p.cycles.Inc()
	reconnectCycles.Inc()
	start := time.Now()
	Logger.Debugf("Reconnect cycle %d started (from %s)", cycle, prev)

	old := p.current.Load()
	fresh := p.connectMissing(ctx, old.registry)

	next := old.registry.rebuild(fresh)
	strategy, err := newStrategy(p.strategyKind, next)
	if err != nil {
		return nil, p.abort(fresh, err)
	}

	p.claimMu.Lock()
	if p.closed.Load() {
		p.claimMu.Unlock()
		return nil, p.abort(fresh, common.ErrPoolClosed)
	}
	if prev == Degraded {
		p.barrier.raise()
	}
	p.current.Store(&snapshot{registry: next, strategy: strategy})
	p.claimMu.Unlock()

	p.retire(old.registry, next)
	conn, nextErr := strategy.Next()

	p.claimMu.Lock()
	var settled State
	switch {
	case next.liveTotal() == 0:
		settled = FullBlock
		fullBlocks.Inc()
	case p.pendingRefresh:
		settled = Degraded
	default:
		settled = Steady
	}
	p.pendingRefresh = false
	p.state.Store(int32(settled))
	p.barrier.lower()
	p.claimMu.Unlock()

	Logger.Infof("Reconnect cycle %d finished in %s: %d connections to %d endpoints, state %s",
		cycle, time.Since(start).Round(time.Millisecond), next.size, len(next.byEndpoint), settled)
	return conn, nextErr
}

// connectMissing opens the missing connections of every endpoint in parallel
func (p *ConnectionPool) connectMissing(ctx context.Context, reg *registry) map[common.Endpoint][]*base.Connection {
	results := make([][]*base.Connection, len(p.endpoints))

	var g errgroup.Group
	for i, ep := range p.endpoints {
		missing := p.poolSize - reg.live(ep)
		if missing <= 0 {
			continue
		}
		g.Go(func() error {
			results[i] = p.factory.Connect(ctx, ep, missing)
			return nil
		})
	}
	_ = g.Wait()

	fresh := make(map[common.Endpoint][]*base.Connection, len(p.endpoints))
	for i, ep := range p.endpoints {
		if len(results[i]) > 0 {
			fresh[ep] = results[i]
		}
	}
	return fresh
}

// retire closes every connection of the old snapshot that did not make it
// into the new one
func (p *ConnectionPool) retire(old, next *registry) {
	var err error
	retired := 0
	for _, c := range old.all() {
		if next.contains(c) {
			continue
		}
		retired++
		err = multierr.Append(err, c.Close())
	}
	connectionsRetire.Add(retired)
	if err != nil {
		Logger.Debugf("Errors while retiring %d stale connections: %v", retired, err)
	}
}

// abort ends a cycle that could not publish its snapshot, the next caller
// starts over from FullBlock
func (p *ConnectionPool) abort(fresh map[common.Endpoint][]*base.Connection, cause error) error {
	for _, conns := range fresh {
		for _, c := range conns {
			_ = c.Close()
		}
	}

	p.claimMu.Lock()
	p.pendingRefresh = false
	p.state.Store(int32(FullBlock))
	p.barrier.lower()
	p.claimMu.Unlock()

	Logger.Warningf("Reconnect cycle aborted: %v", cause)
	return cause
}

// forceFullBlock makes the next caller rebuild the pool while everyone waits
func (p *ConnectionPool) forceFullBlock() {
	p.claimMu.Lock()
	defer p.claimMu.Unlock()
	switch p.State() {
	case Steady, Degraded:
		p.state.Store(int32(FullBlock))
		fullBlocks.Inc()
		Logger.Warningf("No available connections, blocking until the next reconnect cycle")
	}
}

// onConnectionFailure is attached to every connection by the factory
func (p *ConnectionPool) onConnectionFailure(conn *base.Connection, cause error) {
	p.claimMu.Lock()
	defer p.claimMu.Unlock()

	if p.closed.Load() {
		return
	}

	switch p.State() {
	case Reconnecting:
		p.pendingRefresh = true
	case Steady:
		p.state.Store(int32(Degraded))
	}
	Logger.Debugf("Connection %s failed (%v), pool is %s", conn, cause, p.State())
}
