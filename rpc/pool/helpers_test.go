package pool

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/serializer"
	"github.com/ValentinKolb/dTuple/rpc/server"
	"github.com/ValentinKolb/dTuple/rpc/transport"
	"github.com/ValentinKolb/dTuple/rpc/transport/base"
	"github.com/ValentinKolb/dTuple/rpc/transport/transporttest"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	connector *transporttest.PipeConnector
	factory   *base.ConnectionFactory
	pool      *ConnectionPool
}

type envOption func(*common.ClientConfig)

func withPoolSize(n int) envOption {
	return func(c *common.ClientConfig) { c.Transport.ConnectionsPerEndpoint = n }
}

func withStrategy(kind common.SelectionStrategyKind) envOption {
	return func(c *common.ClientConfig) { c.Strategy = kind }
}

func withConnectTimeout(d time.Duration) envOption {
	return func(c *common.ClientConfig) { c.ConnectTimeout = d }
}

// newTestEnv creates a pool for the endpoints, each served by its own
// development server over net.Pipe
func newTestEnv(t *testing.T, endpoints []common.Endpoint, opts ...envOption) *testEnv {
	t.Helper()

	s := serializer.NewBinarySerializer()
	servers := make(map[common.Endpoint]transport.IRPCServerTransport, len(endpoints))
	for _, ep := range endpoints {
		serverConfig := common.ServerConfig{
			Version:   "pool-test",
			Transport: common.ServerTransportConfig{MaxWorkersPerConn: 8},
		}
		srv := server.NewTupleServer(serverConfig, base.NewBaseServerTransport(nil, serverConfig), s)
		t.Cleanup(func() { _ = srv.Close() })
		servers[ep] = srv.Transport()
	}
	connector := transporttest.NewPipeConnector(servers)

	config := common.ClientConfig{
		ConnectTimeout: time.Second,
		RequestTimeout: time.Second,
		Transport: common.ClientTransportConfig{
			Endpoints:              endpoints,
			ConnectionsPerEndpoint: 1,
		},
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := base.NewConnectionFactory(connector, config, s)
	p, err := NewConnectionPool(factory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	return &testEnv{connector: connector, factory: factory, pool: p}
}

// waitForState polls until the pool reaches the state
func waitForState(t *testing.T, p *ConnectionPool, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return p.State() == want }, 2*time.Second, time.Millisecond,
		"pool did not reach state %s (is %s)", want, p.State())
}
