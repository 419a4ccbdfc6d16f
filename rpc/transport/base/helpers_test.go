package base_test

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/serializer"
	"github.com/ValentinKolb/dTuple/rpc/server"
	"github.com/ValentinKolb/dTuple/rpc/transport"
	"github.com/ValentinKolb/dTuple/rpc/transport/base"
	"github.com/ValentinKolb/dTuple/rpc/transport/transporttest"
)

const testEndpoint common.Endpoint = "test-1"

type testEnv struct {
	server    *server.TupleServer
	connector *transporttest.PipeConnector
	factory   *base.ConnectionFactory
}

// newTestEnv starts a development server behind an in-memory connector
func newTestEnv(t *testing.T, users map[string]string, clientConfig common.ClientConfig) *testEnv {
	t.Helper()

	s := serializer.NewBinarySerializer()
	serverConfig := common.ServerConfig{
		Version:   "test-1.0",
		Users:     users,
		Transport: common.ServerTransportConfig{MaxWorkersPerConn: 16},
	}
	srv := server.NewTupleServer(serverConfig, base.NewBaseServerTransport(nil, serverConfig), s)
	t.Cleanup(func() { _ = srv.Close() })

	connector := transporttest.NewPipeConnector(map[common.Endpoint]transport.IRPCServerTransport{
		testEndpoint: srv.Transport(),
	})

	if clientConfig.ConnectTimeout == 0 {
		clientConfig.ConnectTimeout = time.Second
	}
	clientConfig.Transport.Endpoints = []common.Endpoint{testEndpoint}

	return &testEnv{
		server:    srv,
		connector: connector,
		factory:   base.NewConnectionFactory(connector, clientConfig, s),
	}
}

func (e *testEnv) connectOne(t *testing.T) *base.Connection {
	t.Helper()
	conns := e.factory.Connect(t.Context(), testEndpoint, 1)
	if len(conns) != 1 {
		t.Fatalf("expected one connection, got %d", len(conns))
	}
	return conns[0]
}

func encode(t *testing.T, msg *common.Message) []byte {
	t.Helper()
	data, err := serializer.NewBinarySerializer().Serialize(*msg)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func decode(t *testing.T, data []byte) *common.Message {
	t.Helper()
	var msg common.Message
	if err := serializer.NewBinarySerializer().Deserialize(data, &msg); err != nil {
		t.Fatal(err)
	}
	return &msg
}
