package server

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/serializer"
	"github.com/ValentinKolb/dTuple/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("server")

// Function is a stored function that can be invoked with a Call request
type Function func(args []interface{}) ([]interface{}, error)

// TupleServer is a small in-memory stand-in for a tuple store server. It
// speaks the driver's wire protocol (greeting, auth, ping, call, eval) and is
// used for development and integration tests.
type TupleServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	functions  *xsync.MapOf[string, Function]
}

// NewTupleServer creates a new server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewTupleServer(
//		config,
//		tcp.NewTCPServerTransport(config),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewTupleServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *TupleServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s := &TupleServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		functions:  xsync.NewMapOf[string, Function](),
	}
	s.registerBuiltins()
	transport.RegisterHandler(s)
	return s
}

// Register adds or replaces a stored function
func (s *TupleServer) Register(name string, fn Function) {
	s.functions.Store(name, fn)
}

// Functions returns the number of registered functions
func (s *TupleServer) Functions() int {
	return s.functions.Size()
}

// Transport returns the underlying server transport
func (s *TupleServer) Transport() transport.IRPCServerTransport {
	return s.transport
}

// Serve starts listening on the configured endpoint and blocks until Close
func (s *TupleServer) Serve() error {
	Logger.Infof("Starting tuple server")
	Logger.Infof(s.config.String())
	return s.transport.Listen(s.config)
}

// Close stops the server
func (s *TupleServer) Close() error {
	return s.transport.Close()
}

// --------------------------------------------------------------------------
// Builtins
// --------------------------------------------------------------------------

func (s *TupleServer) registerBuiltins() {
	s.Register("echo", func(args []interface{}) ([]interface{}, error) {
		return args, nil
	})

	s.Register("box.info.version", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{s.config.Version}, nil
	})

	s.Register("sleep", sleepFunction)

	s.Register("error", func(args []interface{}) ([]interface{}, error) {
		if len(args) == 0 {
			return nil, errors.New("error called")
		}
		return nil, errors.New(fmt.Sprint(args[0]))
	})

	s.Register("os.hostname", func(args []interface{}) ([]interface{}, error) {
		name, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		return []interface{}{name}, nil
	})
}
