// Package rpc implements a client driver for tuple store servers. Requests are
// multiplexed over long lived connections: every request carries a correlation
// id and responses may arrive in any order.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the driver, including the
//     Message payload, request codes, configuration, errors and logging.
//
//   - transport: Connection handling. The base package holds the framed
//     connection with its correlator, the handshake and the connection factory.
//     tcp and unix provide the connectors, transporttest an in-memory one.
//
//   - pool: The connection pool. It hands out connections in round robin order
//     and repairs itself lazily when connections fail.
//
//   - retry: Retry policies applied above the pool.
//
//   - serializer: Payload serialization with multiple format options (Binary, JSON, GOB).
//
//   - client: The high level API (Ping, Call, Eval).
//
//   - server: An in-memory development server speaking the same protocol,
//     used by the CLI and the integration tests.
package rpc
