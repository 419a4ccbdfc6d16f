// Package pool implements the connection pool of the driver. It owns the
// connections to all endpoints, hands them out through a round robin
// selection strategy and replaces broken connections lazily.
//
// States:
//
//	FullBlock ──first caller──▶ Reconnecting ──cycle done──▶ Steady
//	    ▲                           │    ▲                     │
//	    └──── no connections ───────┘    └──── first caller ── Degraded ◀── failure / Refresh
//
// The first caller that finds the pool in FullBlock or Degraded becomes the
// leader (compare and swap under a short lock) and runs the reconnect cycle.
// In FullBlock every other caller waits at a barrier until the cycle is done,
// in Degraded they keep using the current connections and only wait for the
// moment the new snapshot is published.
//
// A cycle tops up every endpoint to the configured number of live
// connections, builds a new immutable registry and strategy, publishes both
// with one atomic store and closes the connections that were left out.
// Connections beyond the configured size are kept.
//
// Connection failures are reported by the failure listener the factory
// attaches to every connection. In Steady the pool moves to Degraded. During
// a running cycle the failure is only remembered and the cycle settles in
// Degraded instead of Steady, so a second leader can never start while the
// first one runs. In FullBlock the failure is ignored, the next caller
// rebuilds the pool anyway. An explicit Close of a connection is not a
// failure.
//
// The pool never retries a request, that is up to the caller (see package
// retry).
package pool
