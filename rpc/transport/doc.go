// Package transport defines the interfaces and abstractions for moving frames
// between the driver and a tuple store server. It provides a common contract
// that the connector implementations must fulfill, so the connection layer in
// transport/base stays independent of the network medium.
//
// Key Components:
//
//   - IClientConnector: Dials one connection to an endpoint (tcp, unix) and
//     applies socket options.
//
//   - IServerConnector / IRPCServerTransport / IServerHandler: The server side
//     used by the development server and the integration tests.
//
//   - Session: Per connection server state (salt from the greeting, the
//     authenticated user).
package transport
