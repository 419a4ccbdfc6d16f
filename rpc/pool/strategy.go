package pool

import (
	"fmt"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/transport/base"
	"go.uber.org/atomic"
)

// ISelectionStrategy picks the connection for the next request. A strategy
// is built from one registry snapshot and never changes afterwards.
type ISelectionStrategy interface {
	// Next returns a live connection or common.ErrNoAvailableConnections
	Next() (*base.Connection, error)
	// Size returns the number of connections in the snapshot
	Size() int
}

// newStrategy builds the strategy of the given kind for a snapshot
func newStrategy(kind common.SelectionStrategyKind, r *registry) (ISelectionStrategy, error) {
	switch kind {
	case common.StrategyRoundRobin, "":
		return newRoundRobin(r.all()), nil
	case common.StrategyParallelRoundRobin:
		return newRoundRobin(interleave(r)), nil
	default:
		return nil, fmt.Errorf("unknown selection strategy %q", kind)
	}
}

// roundRobin cycles through its connections and skips dead ones
type roundRobin struct {
	conns   []*base.Connection
	counter atomic.Uint64
}

func newRoundRobin(conns []*base.Connection) *roundRobin {
	return &roundRobin{conns: conns}
}

func (r *roundRobin) Next() (*base.Connection, error) {
	n := uint64(len(r.conns))
	if n == 0 {
		return nil, common.ErrNoAvailableConnections
	}

	// optimize for single connection
	if n == 1 {
		if c := r.conns[0]; c.IsAlive() {
			return c, nil
		}
		return nil, common.ErrNoAvailableConnections
	}

	for i := uint64(0); i < n; i++ {
		c := r.conns[(r.counter.Inc()-1)%n]
		if c.IsAlive() {
			return c, nil
		}
	}
	return nil, common.ErrNoAvailableConnections
}

func (r *roundRobin) Size() int {
	return len(r.conns)
}

// interleave orders the connections so consecutive picks hit different
// endpoints: a1 b1 c1 a2 b2 c2 ...
func interleave(r *registry) []*base.Connection {
	conns := make([]*base.Connection, 0, r.size)
	for i := 0; len(conns) < r.size; i++ {
		for _, ep := range r.endpoints {
			if list := r.byEndpoint[ep]; i < len(list) {
				conns = append(conns, list[i])
			}
		}
	}
	return conns
}
