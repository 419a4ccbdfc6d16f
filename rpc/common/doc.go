// Package common provides core data structures and utilities shared across
// the tuple store driver. It defines the wire level vocabulary, configuration
// structures, the error taxonomy and the logging setup used by other packages.
//
// Key Components:
//
//   - Endpoint: Address of one server instance, used as a registry key.
//
//   - Code: Request/response type carried in every frame header.
//
//   - Message: Payload structure serialized into frames (function calls,
//     greeting, authentication, result tuples and error text).
//
//   - Request/Response: What a connection sends and what a pending call is
//     completed with.
//
//   - Errors: ErrNotConnected, ErrNoAvailableConnections, ErrTimeout,
//     ErrConnectionClosed, ErrPoolClosed, TransportError and ServerError.
//     Callers branch on them with errors.Is / errors.As.
//
//   - ClientConfig/ServerConfig: Configuration for the driver and for the
//     development server.
//
//   - Logger: Custom logging implementation plugged into Dragonboat's
//     logger registry so every package logs with the same format.
package common
