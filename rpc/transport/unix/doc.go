// Package unix implements the Unix domain socket transport of the driver, for
// a server running on the same machine.
//
// Key Components:
//
//   - clientConnector: Dials the socket path of an endpoint
//
//   - serverConnector: Creates the socket file and listens on it, an existing
//     file is removed first
package unix
