package base

import (
	"fmt"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

var (
	requestsSent      = metrics.NewCounter("dtuple_requests_sent_total")
	requestTimeouts   = metrics.NewCounter("dtuple_request_timeouts_total")
	connectionsOpened = metrics.NewCounter("dtuple_connections_opened_total")
	connectionsFailed = metrics.NewCounter("dtuple_connections_failed_total")
	connectionsClosed = metrics.NewCounter("dtuple_connections_closed_total")
)

// connectFailures counts failed establishment attempts per endpoint
func connectFailures(endpoint common.Endpoint) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dtuple_connect_failures_total{endpoint=%q}`, endpoint))
}
