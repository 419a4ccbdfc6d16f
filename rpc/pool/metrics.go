package pool

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

var (
	reconnectCycles   = metrics.NewCounter("dtuple_pool_reconnect_cycles_total")
	connectionsRetire = metrics.NewCounter("dtuple_pool_connections_retired_total")
	fullBlocks        = metrics.NewCounter("dtuple_pool_full_block_total")
)

// poolMetrics holds the gauges of one pool instance
type poolMetrics struct {
	set *metrics.Set
}

func newPoolMetrics(p *ConnectionPool) *poolMetrics {
	set := metrics.NewSet()
	set.NewGauge("dtuple_pool_state", func() float64 {
		return float64(p.State())
	})
	set.NewGauge("dtuple_pool_connections", func() float64 {
		return float64(p.current.Load().registry.size)
	})
	set.NewGauge("dtuple_pool_connections_alive", func() float64 {
		return float64(p.current.Load().registry.liveTotal())
	})
	return &poolMetrics{set: set}
}

// WriteMetrics writes the gauges of the pool in Prometheus text format
func (p *ConnectionPool) WriteMetrics(w io.Writer) {
	p.metrics.set.WritePrometheus(w)
}
