// Package base implements the medium independent part of the driver's
// transport: the frame codec, the connection with its response correlator and
// the connection factory. Connectors from the tcp and unix packages plug the
// network medium in.
//
// Frame format (all integers big endian):
//
//	8 bytes correlation id | 4 bytes code | 4 bytes length | payload
//
// Key Components:
//
//   - Connection: One handshaken transport to an endpoint. Send writes a
//     request and returns a Future, a single reader goroutine routes responses
//     back. Failure and close listeners fire at most once.
//
//   - Correlator: Issues correlation ids (wrapping, never 0), tracks pending
//     calls and completes each one exactly once with a response, an error,
//     a timeout or the bulk failure of a closing connection.
//
//   - ConnectionFactory: Opens connections in parallel. Every attempt is
//     raced against the connect timeout, failures are logged and dropped.
//
//   - IHandshaker: Reads the greeting and optionally authenticates with a
//     salted scramble (id 0 is used during the handshake).
//
//   - serverTransport: Frame server for the development server. Greets each
//     connection and handles requests in a bounded number of workers.
//
// Thread Safety:
//
//	All exported methods of Connection and Correlator are safe for concurrent
//	use. Writes on a connection are serialized by a mutex, net.Buffers keeps
//	header and payload in a single write.
package base
