// Package client implements the high level API of the tuple store driver. A
// Client owns a connection pool, sends Ping, Call and Eval requests over it
// and retries failures that are safe to retry.
//
// Key Components:
//
//   - NewClient: Builds the connection factory and the pool for the given
//     connector and serializer. Connections are opened lazily.
//
//   - Call / Eval: Serialize the request, pick a connection from the pool,
//     wait for the future and decode the result tuple. Server errors are
//     returned as *common.ServerError and never retried.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  RequestTimeout: 5 * time.Second,
//	  Strategy:       common.StrategyParallelRoundRobin,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []common.Endpoint{"10.0.0.1:3301", "10.0.0.2:3301"},
//	    ConnectionsPerEndpoint: 4,
//	    RetryCount:             3,
//	  },
//	}
//
//	c, err := client.NewClient(config, tcp.NewClientConnector(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Close()
//
//	tuple, err := c.Call(ctx, "box.info.version")
//
// Performance Considerations:
//
//   - Requests are multiplexed, a single connection carries many concurrent
//     requests. More connections per endpoint mainly help with large payloads.
//
//   - The parallel-round-robin strategy spreads consecutive requests over
//     the endpoints instead of draining one endpoint's connections first.
package client
