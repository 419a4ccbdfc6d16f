package client

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/pool"
	"github.com/ValentinKolb/dTuple/rpc/retry"
	"github.com/ValentinKolb/dTuple/rpc/serializer"
	"github.com/ValentinKolb/dTuple/rpc/transport"
	"github.com/ValentinKolb/dTuple/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// Client is the high level driver API. Requests go through the connection
// pool and are retried according to the retry policy.
type Client struct {
	config     common.ClientConfig
	pool       *pool.ConnectionPool
	serializer serializer.IRPCSerializer
	policy     retry.IRetryPolicy
}

// NewClient creates a new client
// The function takes a config, a connector and a serializer as parameters.
// No connection is opened before the first request.
func NewClient(
	config common.ClientConfig,
	connector transport.IClientConnector,
	serializer serializer.IRPCSerializer,
) (*Client, error) {
	config = config.WithDefaults()

	factory := base.NewConnectionFactory(connector, config, serializer)
	p, err := pool.NewConnectionPool(factory)
	if err != nil {
		return nil, err
	}

	return &Client{
		config:     config,
		pool:       p,
		serializer: serializer,
		policy:     retry.NewExponentialPolicy(config.Transport.RetryCount, retry.DefaultBaseBackoff, retry.DefaultMaxBackoff),
	}, nil
}

// WithRetryPolicy replaces the retry policy, must be called before use
func (c *Client) WithRetryPolicy(policy retry.IRetryPolicy) *Client {
	c.policy = policy
	return c
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// Ping performs a round trip without payload
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.invoke(ctx, common.CodePing, nil)
	return err
}

// Call invokes a stored function and returns the result tuple
func (c *Client) Call(ctx context.Context, function string, args ...interface{}) ([]interface{}, error) {
	resp, err := c.invoke(ctx, common.CodeCall, common.NewCallRequest(function, args...))
	if err != nil {
		return nil, err
	}
	return resp.Tuple, nil
}

// Eval evaluates an expression on the server and returns the result tuple
func (c *Client) Eval(ctx context.Context, expression string, args ...interface{}) ([]interface{}, error) {
	resp, err := c.invoke(ctx, common.CodeEval, common.NewEvalRequest(expression, args...))
	if err != nil {
		return nil, err
	}
	return resp.Tuple, nil
}

// --------------------------------------------------------------------------
// Pool access
// --------------------------------------------------------------------------

// Refresh asks the pool to reconnect on the next request
func (c *Client) Refresh() bool {
	return c.pool.Refresh()
}

// Stats returns the pool statistics
func (c *Client) Stats() pool.Stats {
	return c.pool.Stats()
}

// Pool returns the underlying connection pool
func (c *Client) Pool() *pool.ConnectionPool {
	return c.pool
}

// Close closes the pool and all its connections
func (c *Client) Close() error {
	return c.pool.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// invoke sends one request with retries and decodes the response. A nil
// request is sent with an empty body and yields a nil response.
func (c *Client) invoke(ctx context.Context, code common.Code, req *common.Message) (*common.Message, error) {
	var body []byte
	if req != nil {
		var err error
		if body, err = c.serializer.Serialize(*req); err != nil {
			return nil, fmt.Errorf("failed to serialize %s request: %w", code, err)
		}
	}

	var resp *common.Message
	err := retry.Do(ctx, c.policy, func(attempt int) error {
		conn, err := c.pool.GetConnection(ctx)
		if err != nil {
			return err
		}

		future, err := conn.Send(&common.Request{Code: code, Body: body, Timeout: c.requestTimeout(ctx)})
		if err != nil {
			return err
		}

		r, err := future.Get(ctx)
		if err != nil {
			return err
		}

		if req == nil {
			return nil
		}

		msg := &common.Message{}
		if err := c.serializer.Deserialize(r.Body, msg); err != nil {
			return fmt.Errorf("failed to deserialize %s response: %w", code, err)
		}
		resp = msg
		return nil
	})
	return resp, err
}

// requestTimeout shortens the configured timeout to the deadline of ctx
func (c *Client) requestTimeout(ctx context.Context) time.Duration {
	timeout := c.config.RequestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = max(left, time.Millisecond)
		}
	}
	return timeout
}
