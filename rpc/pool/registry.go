package pool

import (
	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/transport/base"
)

// registry is an immutable snapshot of the pool's connections per endpoint.
// A reconnect cycle builds a new one instead of changing the current.
type registry struct {
	endpoints  []common.Endpoint
	byEndpoint map[common.Endpoint][]*base.Connection
	size       int
}

func emptyRegistry(endpoints []common.Endpoint) *registry {
	return &registry{
		endpoints:  endpoints,
		byEndpoint: make(map[common.Endpoint][]*base.Connection),
	}
}

// rebuild carries the live connections of r over and appends the fresh ones
func (r *registry) rebuild(fresh map[common.Endpoint][]*base.Connection) *registry {
	next := &registry{
		endpoints:  r.endpoints,
		byEndpoint: make(map[common.Endpoint][]*base.Connection, len(r.endpoints)),
	}
	for _, ep := range r.endpoints {
		var conns []*base.Connection
		for _, c := range r.byEndpoint[ep] {
			if c.IsAlive() {
				conns = append(conns, c)
			}
		}
		conns = append(conns, fresh[ep]...)
		if len(conns) > 0 {
			next.byEndpoint[ep] = conns
			next.size += len(conns)
		}
	}
	return next
}

// live counts the alive connections of an endpoint
func (r *registry) live(ep common.Endpoint) int {
	n := 0
	for _, c := range r.byEndpoint[ep] {
		if c.IsAlive() {
			n++
		}
	}
	return n
}

// liveTotal counts the alive connections of all endpoints
func (r *registry) liveTotal() int {
	n := 0
	for _, ep := range r.endpoints {
		n += r.live(ep)
	}
	return n
}

// all returns every connection in endpoint order
func (r *registry) all() []*base.Connection {
	conns := make([]*base.Connection, 0, r.size)
	for _, ep := range r.endpoints {
		conns = append(conns, r.byEndpoint[ep]...)
	}
	return conns
}

// contains reports whether c is part of the snapshot
func (r *registry) contains(c *base.Connection) bool {
	for _, other := range r.byEndpoint[c.Endpoint()] {
		if other == c {
			return true
		}
	}
	return false
}
