package base

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelatorIDsStartAtOne(t *testing.T) {
	c := NewCorrelator()
	id1, _ := c.Submit(0)
	id2, _ := c.Submit(0)
	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)
	assert.Equal(t, 2, c.Pending())
}

func TestCorrelatorIDWrapsAroundAndSkipsZero(t *testing.T) {
	c := NewCorrelator()
	c.counter.Store(math.MaxUint64 - 1)

	id1, _ := c.Submit(0)
	id2, _ := c.Submit(0)
	assert.Equal(t, uint64(math.MaxUint64), id1)
	assert.Equal(t, uint64(1), id2)
}

func TestCorrelatorSkipsIDsStillInFlight(t *testing.T) {
	c := NewCorrelator()
	old, _ := c.Submit(0) // id 1 stays pending
	require.Equal(t, uint64(1), old)

	c.counter.Store(math.MaxUint64)
	id, _ := c.Submit(0)
	assert.Equal(t, uint64(2), id)
}

func TestCorrelatorComplete(t *testing.T) {
	c := NewCorrelator()
	id, future := c.Submit(time.Minute)

	resp := &common.Response{Code: common.CodeOK, Body: []byte("x")}
	assert.True(t, c.Complete(id, resp))
	assert.False(t, c.Complete(id, resp), "second completion must be ignored")
	assert.Equal(t, 0, c.Pending())

	got, err := future.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, resp, got)
}

func TestCorrelatorUnknownIDIsIgnored(t *testing.T) {
	c := NewCorrelator()
	assert.False(t, c.Complete(99, &common.Response{}))
	assert.False(t, c.Fail(99, errors.New("boom")))
}

func TestCorrelatorTimeout(t *testing.T) {
	c := NewCorrelator()
	id, future := c.Submit(10 * time.Millisecond)

	_, err := future.Get(context.Background())
	assert.ErrorIs(t, err, common.ErrTimeout)
	assert.Equal(t, 0, c.Pending())

	// a late response finds nothing to complete
	assert.False(t, c.Complete(id, &common.Response{}))
}

func TestCorrelatorResponseBeatsTimeout(t *testing.T) {
	c := NewCorrelator()
	id, future := c.Submit(20 * time.Millisecond)
	require.True(t, c.Complete(id, &common.Response{Code: common.CodeOK}))

	time.Sleep(40 * time.Millisecond)
	resp, err := future.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.CodeOK, resp.Code)
}

func TestCorrelatorFailAll(t *testing.T) {
	c := NewCorrelator()
	futures := make([]*Future, 0, 10)
	for i := 0; i < 10; i++ {
		_, f := c.Submit(time.Minute)
		futures = append(futures, f)
	}

	assert.Equal(t, 10, c.FailAll(common.ErrConnectionClosed))
	for _, f := range futures {
		_, err := f.Get(context.Background())
		assert.ErrorIs(t, err, common.ErrConnectionClosed)
	}
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelatorSubmitAfterFailAll(t *testing.T) {
	c := NewCorrelator()
	c.FailAll(common.ErrConnectionClosed)

	_, future := c.Submit(time.Minute)
	select {
	case <-future.Done():
	case <-time.After(time.Second):
		t.Fatal("submission after FailAll must fail immediately")
	}
	_, err := future.Get(context.Background())
	assert.ErrorIs(t, err, common.ErrConnectionClosed)
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelatorCompletesExactlyOnceUnderRace(t *testing.T) {
	c := NewCorrelator()
	const n = 200

	ids := make([]uint64, n)
	futures := make([]*Future, n)
	for i := range ids {
		ids[i], futures[i] = c.Submit(time.Millisecond)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, id := range ids {
			c.Complete(id, &common.Response{Code: common.CodeOK})
		}
	}()
	go func() {
		defer wg.Done()
		c.FailAll(common.ErrConnectionClosed)
	}()
	wg.Wait()

	for _, f := range futures {
		select {
		case <-f.Done():
		case <-time.After(time.Second):
			t.Fatal("future was never completed")
		}
	}
	assert.Equal(t, 0, c.Pending())
}

func TestFutureGetHonorsContext(t *testing.T) {
	c := NewCorrelator()
	_, future := c.Submit(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := future.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, c.Pending(), "cancelling the wait must not withdraw the request")
}
