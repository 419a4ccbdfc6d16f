// Package cmd implements the command-line interface of dTuple. It provides a
// development server and client commands that exercise the connection pool.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the in-memory development server
//   - tuple: Client commands (ping, call, eval, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as an environment variable DTUPLE_<FLAG>
// (e.g. DTUPLE_TRANSPORT_ENDPOINTS=localhost:3301,localhost:3302).
//
// See dtuple -help for a list of all commands.
package cmd
