package base

import (
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

// pendingCall is a request waiting for its response
type pendingCall struct {
	future  *Future
	started time.Time
	timer   *time.Timer
}

func (p *pendingCall) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// Correlator matches responses to the requests of one connection by
// correlation id. Id 0 is never handed out, it is reserved for the handshake.
type Correlator struct {
	counter atomic.Uint64
	pending *xsync.MapOf[uint64, *pendingCall]

	// closedErr is set once by FailAll, afterwards every submission fails with it
	closedErr atomic.Error
}

// NewCorrelator creates an empty correlator
func NewCorrelator() *Correlator {
	return &Correlator{
		pending: xsync.NewMapOf[uint64, *pendingCall](),
	}
}

// nextID returns the next id, the counter wraps around and skips 0
func (c *Correlator) nextID() uint64 {
	for {
		if id := c.counter.Inc(); id != 0 {
			return id
		}
	}
}

// Submit registers a new pending call and returns its id and future. A
// positive timeout fails the call with common.ErrTimeout once it elapses.
func (c *Correlator) Submit(timeout time.Duration) (uint64, *Future) {
	var (
		id   uint64
		call *pendingCall
	)
	for {
		id = c.nextID()
		call = &pendingCall{future: newFuture(id), started: time.Now()}
		// after a wraparound the id may still be taken by a very old call
		if _, loaded := c.pending.LoadOrStore(id, call); !loaded {
			break
		}
	}

	if timeout > 0 {
		call.timer = time.AfterFunc(timeout, func() {
			c.expire(id, call)
		})
	}

	// FailAll may have run between the closed check of the caller and the store
	if err := c.closedErr.Load(); err != nil {
		c.Fail(id, err)
	}
	return id, call.future
}

// Complete delivers a response. Unknown ids (already completed, timed out or
// never issued) are ignored and reported with false.
func (c *Correlator) Complete(id uint64, resp *common.Response) bool {
	call, ok := c.pending.LoadAndDelete(id)
	if !ok {
		return false
	}
	call.stopTimer()
	return call.future.complete(resp, nil)
}

// Fail completes the call with an error. Unknown ids are ignored.
func (c *Correlator) Fail(id uint64, err error) bool {
	call, ok := c.pending.LoadAndDelete(id)
	if !ok {
		return false
	}
	call.stopTimer()
	return call.future.complete(nil, err)
}

// FailAll fails every pending call with err and rejects all later submissions
func (c *Correlator) FailAll(err error) int {
	c.closedErr.CompareAndSwap(nil, err)
	failed := 0
	c.pending.Range(func(id uint64, _ *pendingCall) bool {
		if c.Fail(id, err) {
			failed++
		}
		return true
	})
	return failed
}

// Pending returns the number of calls waiting for a response
func (c *Correlator) Pending() int {
	return c.pending.Size()
}

// expire fails the call with a timeout, unless the id was already reused
func (c *Correlator) expire(id uint64, call *pendingCall) {
	c.pending.Compute(id, func(old *pendingCall, loaded bool) (*pendingCall, bool) {
		// delete unless a newer call owns the id
		return old, !loaded || old == call
	})
	if call.future.complete(nil, common.ErrTimeout) {
		requestTimeouts.Inc()
	}
}
