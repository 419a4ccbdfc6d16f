package base

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

// saltSize is the size of the salt sent in the greeting
const saltSize = 32

// serverTransport implements the frame server independent of the medium
type serverTransport struct {
	connector         transport.IServerConnector
	handler           transport.IServerHandler
	config            common.ServerConfig
	maxWorkersPerConn int

	mu       sync.Mutex
	listener net.Listener
	closed   atomic.Bool

	nextConnID atomic.Uint64
	conns      *xsync.MapOf[uint64, net.Conn]
	wg         sync.WaitGroup
}

// NewBaseServerTransport creates a new base server transport with per-connection worker pool
func NewBaseServerTransport(connector transport.IServerConnector, config common.ServerConfig) transport.IRPCServerTransport {
	// minimum one worker per connection
	maxWorkersPerConn := max(config.Transport.MaxWorkersPerConn, 1)

	return &serverTransport{
		connector:         connector,
		config:            config,
		maxWorkersPerConn: maxWorkersPerConn,
		conns:             xsync.NewMapOf[uint64, net.Conn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.IServerHandler) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	t.config = config

	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), config.Transport.Endpoint, t.maxWorkersPerConn)

	return t.Serve(listener)
}

func (t *serverTransport) Serve(listener net.Listener) error {
	if t.handler == nil {
		return errors.New("no handler registered")
	}

	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		_ = listener.Close()
		return net.ErrClosed
	}
	t.listener = listener
	t.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.handleConnection(conn)
		}()
	}
}

func (t *serverTransport) ServeConn(conn net.Conn) {
	if t.closed.Load() {
		_ = conn.Close()
		return
	}
	t.wg.Add(1)
	defer t.wg.Done()
	t.handleConnection(conn)
}

func (t *serverTransport) DropConnections() int {
	dropped := 0
	t.conns.Range(func(id uint64, conn net.Conn) bool {
		if err := conn.Close(); err == nil {
			dropped++
		}
		return true
	})
	return dropped
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	if !t.closed.CompareAndSwap(false, true) {
		t.mu.Unlock()
		return nil
	}
	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.mu.Unlock()

	t.DropConnections()
	t.wg.Wait()
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection greets the client and handles its requests until the
// connection is closed
func (t *serverTransport) handleConnection(conn net.Conn) {
	connID := t.nextConnID.Inc()
	t.conns.Store(connID, conn)
	defer func() {
		t.conns.Delete(connID)
		_ = conn.Close()
	}()

	// Timeout in seconds
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		Logger.Errorf("Failed to create salt: %v", err)
		return
	}
	session := transport.NewSession(conn.RemoteAddr().String(), salt)

	// Create a semaphore to limit concurrent workers for this connection
	workerSemaphore := make(chan struct{}, t.maxWorkersPerConn)
	var wg sync.WaitGroup
	var connMutex sync.Mutex

	write := func(id uint64, code common.Code, data []byte) error {
		connMutex.Lock()
		defer connMutex.Unlock()

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				return err
			}
		}
		return writeFrame(conn, id, code, data)
	}

	if err := write(0, common.CodeGreeting, t.handler.Greet(session)); err != nil {
		Logger.Warningf("Failed to send greeting to %s: %v", session.RemoteAddr, err)
		return
	}

	handleResponse := func(id uint64, code common.Code, data []byte) {
		defer func() {
			<-workerSemaphore
			wg.Done()
		}()

		start := time.Now()
		respCode, resp := t.handler.Handle(session, code, data)
		Logger.Debugf("Processed %s request %d took %s", code, id, time.Since(start))

		if err := write(id, respCode, resp); err != nil {
			Logger.Debugf("Failed to write response: %v", err)
		}
	}

	header := make([]byte, frameHeaderSize)
	for {
		id, code, data, err := readFrame(conn, header, common.DefaultMaxFrameSize)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				Logger.Debugf("Connection from %s closed", session.RemoteAddr)
			} else {
				Logger.Warningf("Error reading request from %s: %v", session.RemoteAddr, err)
			}
			break
		}

		// Acquire a slot in the semaphore (blocks if maxWorkersPerConn is reached)
		workerSemaphore <- struct{}{}
		wg.Add(1)
		go handleResponse(id, code, data)
	}

	// Wait for all workers to finish before closing the connection
	wg.Wait()
}
