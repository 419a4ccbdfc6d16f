// Package tcp implements the TCP transport of the driver. It provides the
// connector the connection factory dials with and the listener used by the
// development server.
//
// Key Components:
//
//   - clientConnector: TCP implementation of transport.IClientConnector,
//     applies TCPConf and SocketConf to every dialed connection
//
//   - serverConnector: TCP implementation of transport.IServerConnector
package tcp
