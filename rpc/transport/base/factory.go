package base

import (
	"context"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/serializer"
	"github.com/ValentinKolb/dTuple/rpc/transport"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// ConnectionFactory establishes connections to an endpoint. Every attempt
// covers dial, upgrade and handshake and is bounded by the connect timeout.
// Failed attempts are logged and left out of the result.
type ConnectionFactory struct {
	connector  transport.IClientConnector
	handshaker IHandshaker
	serializer serializer.IRPCSerializer
	config     common.ClientConfig

	failureListeners []FailureListener
	closeListeners   []CloseListener
}

// NewConnectionFactory creates a factory for the connector. The handshaker
// authenticates with the credentials from the config.
func NewConnectionFactory(connector transport.IClientConnector, config common.ClientConfig, s serializer.IRPCSerializer) *ConnectionFactory {
	config = config.WithDefaults()
	return &ConnectionFactory{
		connector:  connector,
		handshaker: NewGreetingHandshaker(config.User, config.Password, s),
		serializer: s,
		config:     config,
	}
}

// WithHandshaker replaces the handshaker, must be called before the first Connect
func (f *ConnectionFactory) WithHandshaker(h IHandshaker) *ConnectionFactory {
	f.handshaker = h
	return f
}

// AddFailureListener attaches l to every connection created afterwards.
// Must not be called concurrently with Connect.
func (f *ConnectionFactory) AddFailureListener(l FailureListener) {
	f.failureListeners = append(f.failureListeners, l)
}

// AddCloseListener attaches l to every connection created afterwards.
// Must not be called concurrently with Connect.
func (f *ConnectionFactory) AddCloseListener(l CloseListener) {
	f.closeListeners = append(f.closeListeners, l)
}

// Config returns the effective configuration
func (f *ConnectionFactory) Config() common.ClientConfig {
	return f.config
}

// Connect opens up to count connections to the endpoint in parallel and
// returns the ones that succeeded, possibly none.
func (f *ConnectionFactory) Connect(ctx context.Context, endpoint common.Endpoint, count int) []*Connection {
	if count <= 0 {
		return nil
	}

	results := make([]*Connection, count)
	var g errgroup.Group
	for i := 0; i < count; i++ {
		g.Go(func() error {
			conn, err := f.connectOne(ctx, endpoint)
			if err != nil {
				connectFailures(endpoint).Inc()
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, count, err)
				return nil
			}
			results[i] = conn
			return nil
		})
	}
	_ = g.Wait()

	conns := make([]*Connection, 0, count)
	for _, c := range results {
		if c != nil {
			conns = append(conns, c)
		}
	}
	Logger.Debugf("Connected %d/%d connections to %s using %s transport", len(conns), count, endpoint, f.connector.GetName())
	return conns
}

type connectResult struct {
	conn *Connection
	err  error
}

// connectOne races one establishment attempt against the connect timeout.
// Whichever finishes first decides the outcome, a late success is closed.
func (f *ConnectionFactory) connectOne(ctx context.Context, endpoint common.Endpoint) (*Connection, error) {
	timeout := f.config.ConnectTimeout
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan connectResult, 1)
	var settled atomic.Bool
	settle := func(r connectResult) bool {
		if !settled.CompareAndSwap(false, true) {
			return false
		}
		done <- r
		return true
	}

	go func() {
		conn, err := f.establish(attemptCtx, endpoint)
		if !settle(connectResult{conn: conn, err: err}) && conn != nil {
			Logger.Debugf("Closing connection to %s that completed after the timeout", endpoint)
			_ = conn.Close()
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-timer.C:
		settle(connectResult{err: common.NewTransportError("connect", endpoint, common.ErrTimeout)})
	case <-ctx.Done():
		settle(connectResult{err: common.NewTransportError("connect", endpoint, ctx.Err())})
	}

	r := <-done
	return r.conn, r.err
}

// establish dials, upgrades and handshakes one connection
func (f *ConnectionFactory) establish(ctx context.Context, endpoint common.Endpoint) (*Connection, error) {
	netConn, err := f.connector.Dial(ctx, endpoint)
	if err != nil {
		return nil, common.NewTransportError("dial", endpoint, err)
	}

	if err := f.connector.UpgradeConnection(netConn, f.config); err != nil {
		_ = netConn.Close()
		return nil, common.NewTransportError("upgrade", endpoint, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := netConn.SetDeadline(deadline); err != nil {
			_ = netConn.Close()
			return nil, common.NewTransportError("upgrade", endpoint, err)
		}
	}

	conn := newConnection(netConn, endpoint, f.config, f.serializer)
	version, err := f.handshaker.Handshake(&frameConn{c: conn, header: make([]byte, frameHeaderSize)})
	if err != nil {
		_ = conn.Close()
		return nil, common.NewTransportError("handshake", endpoint, err)
	}
	conn.version = version

	// reset the handshake deadline, requests set their own
	if err := netConn.SetDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return nil, common.NewTransportError("handshake", endpoint, err)
	}

	for _, l := range f.failureListeners {
		conn.AddFailureListener(l)
	}
	for _, l := range f.closeListeners {
		conn.AddCloseListener(l)
	}
	conn.start()
	connectionsOpened.Inc()

	Logger.Debugf("Established connection %s (server version %q)", conn, version)
	return conn, nil
}
