package base

import (
	"context"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"go.uber.org/atomic"
)

// Future is the result handle of one request. It is completed exactly once,
// either with a response or with an error.
type Future struct {
	id      uint64
	done    chan struct{}
	settled atomic.Bool

	resp *common.Response
	err  error
}

func newFuture(id uint64) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the correlation id the request was sent with
func (f *Future) ID() uint64 {
	return f.id
}

// Done is closed once the future is completed
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get waits for the result. Cancelling ctx stops waiting but does not
// withdraw the request, the future still completes through its own timeout.
func (f *Future) Get(ctx context.Context) (*common.Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete settles the future, later calls are ignored
func (f *Future) complete(resp *common.Response, err error) bool {
	if !f.settled.CompareAndSwap(false, true) {
		return false
	}
	f.resp = resp
	f.err = err
	close(f.done)
	return true
}
