package base

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/serializer"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/atomic"
)

var Logger = logger.GetLogger("transport/rpc")

// FailureListener is called once when a connection breaks on its own
// (transport error on the read side). It is not called after Close.
type FailureListener func(conn *Connection, cause error)

// CloseListener is called once when a connection is closed explicitly
type CloseListener func(conn *Connection)

// Connection is one established, handshaken transport to a server endpoint.
// Requests are multiplexed over it, responses are routed back by correlation
// id. A connection never reconnects, once dead it stays dead.
type Connection struct {
	id       string
	endpoint common.Endpoint
	conn     net.Conn
	reader   *bufio.Reader

	serializer     serializer.IRPCSerializer
	requestTimeout time.Duration
	maxFrameSize   int

	correlator *Correlator
	alive      atomic.Bool
	createdAt  time.Time
	version    string

	writeMu sync.Mutex

	listenerMu       sync.Mutex
	failureListeners []FailureListener
	closeListeners   []CloseListener

	readerStarted atomic.Bool
	readerDone    chan struct{}
}

// newConnection wraps an established net.Conn, the reader is not started yet
func newConnection(conn net.Conn, endpoint common.Endpoint, config common.ClientConfig, s serializer.IRPCSerializer) *Connection {
	c := &Connection{
		id:             uuid.NewString(),
		endpoint:       endpoint,
		conn:           conn,
		reader:         bufio.NewReader(conn),
		serializer:     s,
		requestTimeout: config.RequestTimeout,
		maxFrameSize:   config.Transport.MaxFrameSize,
		correlator:     NewCorrelator(),
		createdAt:      time.Now(),
		readerDone:     make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// ID returns the unique id of the connection
func (c *Connection) ID() string { return c.id }

// Endpoint returns the endpoint the connection belongs to
func (c *Connection) Endpoint() common.Endpoint { return c.endpoint }

// ServerVersion returns the version announced in the greeting
func (c *Connection) ServerVersion() string { return c.version }

// CreatedAt returns the time the connection was established
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// IsAlive reports whether the connection can still send requests
func (c *Connection) IsAlive() bool { return c.alive.Load() }

// Pending returns the number of in-flight requests
func (c *Connection) Pending() int { return c.correlator.Pending() }

func (c *Connection) String() string {
	return fmt.Sprintf("%s(%s)", c.endpoint, c.id[:8])
}

// --------------------------------------------------------------------------
// Listeners
// --------------------------------------------------------------------------

// AddFailureListener registers a listener for a transport failure
func (c *Connection) AddFailureListener(l FailureListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.failureListeners = append(c.failureListeners, l)
}

// AddCloseListener registers a listener for an explicit close
func (c *Connection) AddCloseListener(l CloseListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.closeListeners = append(c.closeListeners, l)
}

// --------------------------------------------------------------------------
// Request path
// --------------------------------------------------------------------------

// Send writes the request and returns the future of its response. It fails
// immediately with common.ErrNotConnected if the connection is dead. A failed
// write is reported through the returned future and breaks the connection,
// since the stream may hold a partial frame.
func (c *Connection) Send(req *common.Request) (*Future, error) {
	if !c.alive.Load() {
		return nil, common.ErrNotConnected
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.requestTimeout
	}

	id, future := c.correlator.Submit(timeout)
	requestsSent.Inc()

	c.writeMu.Lock()
	err := c.writeLocked(id, req.Code, req.Body, timeout)
	c.writeMu.Unlock()

	if err != nil {
		Logger.Debugf("Failed to write request %d to %s: %v", id, c, err)
		c.correlator.Fail(id, common.NewTransportError("write", c.endpoint, err))
		c.fail("write", err)
	}
	return future, nil
}

func (c *Connection) writeLocked(id uint64, code common.Code, body []byte, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return writeFrame(c.conn, id, code, body)
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// start launches the response reader, called once after the handshake
func (c *Connection) start() {
	if c.readerStarted.CompareAndSwap(false, true) {
		go c.readResponses()
	}
}

// Close shuts the connection down. All pending requests fail with
// common.ErrConnectionClosed. Closing twice is a no-op.
func (c *Connection) Close() error {
	if !c.alive.CompareAndSwap(true, false) {
		return nil
	}

	for _, l := range c.snapshotCloseListeners() {
		l(c)
	}

	failed := c.correlator.FailAll(common.ErrConnectionClosed)
	err := c.conn.Close()
	if c.readerStarted.Load() {
		<-c.readerDone
	}
	connectionsClosed.Inc()

	Logger.Debugf("Closed connection %s (%d pending requests failed)", c, failed)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// readResponses reads frames in a loop and completes the matching requests
func (c *Connection) readResponses() {
	defer close(c.readerDone)

	header := make([]byte, frameHeaderSize)
	for {
		id, code, data, err := readFrame(c.reader, header, c.maxFrameSize)
		if err != nil {
			c.fail("read", err)
			return
		}

		switch code {
		case common.CodeOK:
			if !c.correlator.Complete(id, &common.Response{Code: code, Body: data}) {
				Logger.Debugf("Received response for unknown request ID %d on %s", id, c)
			}
		case common.CodeError:
			if !c.correlator.Fail(id, c.decodeServerError(data)) {
				Logger.Debugf("Received error for unknown request ID %d on %s", id, c)
			}
		default:
			Logger.Warningf("Received frame with unexpected code %s for request ID %d on %s", code, id, c)
		}
	}
}

// fail handles a transport failure of the reader or a writer. Only the first
// failure or close is acted on.
func (c *Connection) fail(op string, cause error) {
	if !c.alive.CompareAndSwap(true, false) {
		return
	}

	transportErr := common.NewTransportError(op, c.endpoint, cause)
	failed := c.correlator.FailAll(fmt.Errorf("%w: %w", common.ErrConnectionClosed, transportErr))
	_ = c.conn.Close()
	connectionsFailed.Inc()

	Logger.Warningf("Connection %s failed: %v (%d pending requests failed)", c, cause, failed)

	for _, l := range c.snapshotFailureListeners() {
		l(c, transportErr)
	}
}

// decodeServerError turns the payload of an error frame into a ServerError
func (c *Connection) decodeServerError(data []byte) error {
	var msg common.Message
	if c.serializer != nil {
		if err := c.serializer.Deserialize(data, &msg); err == nil && msg.Err != "" {
			return &common.ServerError{Message: msg.Err}
		}
	}
	return &common.ServerError{Message: string(data)}
}

func (c *Connection) snapshotFailureListeners() []FailureListener {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	return append([]FailureListener(nil), c.failureListeners...)
}

func (c *Connection) snapshotCloseListeners() []CloseListener {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	return append([]CloseListener(nil), c.closeListeners...)
}

// --------------------------------------------------------------------------
// Handshake access
// --------------------------------------------------------------------------

// frameConn exposes raw frame IO to a handshaker before the reader runs
type frameConn struct {
	c      *Connection
	header []byte
}

func (f *frameConn) ReadFrame() (uint64, common.Code, []byte, error) {
	return readFrame(f.c.reader, f.header, f.c.maxFrameSize)
}

func (f *frameConn) WriteFrame(id uint64, code common.Code, body []byte) error {
	f.c.writeMu.Lock()
	defer f.c.writeMu.Unlock()
	return writeFrame(f.c.conn, id, code, body)
}
