// Package transporttest provides an in-memory connector for tests. Every dial
// creates a net.Pipe whose server end is served by a real server transport,
// dials can be scripted to fail or hang per endpoint.
package transporttest

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/transport"
	"go.uber.org/atomic"
)

// ErrRefused is returned by dials scripted with Fail
var ErrRefused = errors.New("connection refused")

// ErrBrokenPipe is returned by writes on connections broken with BreakWrites
var ErrBrokenPipe = errors.New("broken pipe")

// Behavior decides the outcome of one dial
type Behavior int

const (
	// OK connects to the server
	OK Behavior = iota
	// Fail returns ErrRefused
	Fail
	// Hang blocks until the dial context is done
	Hang
)

// PipeConnector implements transport.IClientConnector on top of net.Pipe
type PipeConnector struct {
	servers map[common.Endpoint]transport.IRPCServerTransport

	dials atomic.Int64
	delay atomic.Duration

	mu       sync.Mutex
	scripts  map[common.Endpoint][]Behavior
	fallback map[common.Endpoint]Behavior
	clients  map[common.Endpoint][]*clientConn
}

// clientConn is the client end of a pipe whose writes can be broken
type clientConn struct {
	net.Conn
	broken atomic.Bool
}

// Write sends half of p and fails once the connection is broken, leaving a
// truncated frame on the stream
func (c *clientConn) Write(p []byte) (int, error) {
	if !c.broken.Load() {
		return c.Conn.Write(p)
	}
	n, _ := c.Conn.Write(p[:len(p)/2])
	return n, ErrBrokenPipe
}

// NewPipeConnector creates a connector routing every endpoint to its server
func NewPipeConnector(servers map[common.Endpoint]transport.IRPCServerTransport) *PipeConnector {
	return &PipeConnector{
		servers:  servers,
		scripts:  make(map[common.Endpoint][]Behavior),
		fallback: make(map[common.Endpoint]Behavior),
		clients:  make(map[common.Endpoint][]*clientConn),
	}
}

// Script queues behaviors for the next dials of the endpoint
func (p *PipeConnector) Script(endpoint common.Endpoint, behaviors ...Behavior) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[endpoint] = append(p.scripts[endpoint], behaviors...)
}

// SetDefault sets the behavior used once the script of the endpoint is empty
func (p *PipeConnector) SetDefault(endpoint common.Endpoint, b Behavior) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback[endpoint] = b
}

// Dials returns the number of dial attempts so far
func (p *PipeConnector) Dials() int64 {
	return p.dials.Load()
}

// SetDelay makes every dial wait d before it is decided, a done context
// ends the wait early
func (p *PipeConnector) SetDelay(d time.Duration) {
	p.delay.Store(d)
}

// Kill closes the client side of every connection to the endpoint, the
// connections observe a transport failure
func (p *PipeConnector) Kill(endpoint common.Endpoint) int {
	p.mu.Lock()
	conns := p.clients[endpoint]
	p.clients[endpoint] = nil
	p.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return len(conns)
}

// BreakWrites makes every further write on the open connections to the
// endpoint fail with ErrBrokenPipe. Reads keep working.
func (p *PipeConnector) BreakWrites(endpoint common.Endpoint) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients[endpoint] {
		c.broken.Store(true)
	}
	return len(p.clients[endpoint])
}

func (p *PipeConnector) next(endpoint common.Endpoint) Behavior {
	p.mu.Lock()
	defer p.mu.Unlock()
	if script := p.scripts[endpoint]; len(script) > 0 {
		p.scripts[endpoint] = script[1:]
		return script[0]
	}
	return p.fallback[endpoint]
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (p *PipeConnector) GetName() string {
	return "pipe"
}

func (p *PipeConnector) Dial(ctx context.Context, endpoint common.Endpoint) (net.Conn, error) {
	p.dials.Inc()

	if d := p.delay.Load(); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	switch p.next(endpoint) {
	case Fail:
		return nil, ErrRefused
	case Hang:
		<-ctx.Done()
		return nil, ctx.Err()
	}

	server, ok := p.servers[endpoint]
	if !ok {
		return nil, ErrRefused
	}

	pipe, serverSide := net.Pipe()
	go server.ServeConn(serverSide)
	client := &clientConn{Conn: pipe}

	p.mu.Lock()
	p.clients[endpoint] = append(p.clients[endpoint], client)
	p.mu.Unlock()
	return client, nil
}

func (p *PipeConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return nil
}
