// Package server implements a development stand-in for a tuple store server.
// It speaks the same wire protocol as the driver and serves the CLI's serve
// command as well as the integration tests of the driver packages.
//
// Key Components:
//
//   - TupleServer: Implements transport.IServerHandler. Greets every connection
//     with the configured version and a random salt, verifies Auth requests
//     against the configured users and dispatches Call and Eval requests.
//
//   - Function: Stored functions callable by name. Builtins are echo,
//     box.info.version, sleep, error and os.hostname, more can be registered
//     with Register.
//
//   - Eval: Only "return ..." (echo the arguments) and "return" followed by
//     comma separated literals are understood.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Version: "2.11.0",
//	  TimeoutSecond: 5,
//	  Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:3301", MaxWorkersPerConn: 64},
//	}
//
//	s := server.NewTupleServer(
//	  config,
//	  tcp.NewTCPServerTransport(config),
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	Handle is called concurrently from the worker goroutines of all
//	connections. The function table is an xsync map, sessions guard their
//	authenticated user.
package server
