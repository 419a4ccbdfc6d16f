package transport

import (
	"context"
	"net"
	"sync"

	"github.com/ValentinKolb/dTuple/rpc/common"
)

// --------------------------------------------------------------------------
// Client side
// --------------------------------------------------------------------------

// IClientConnector defines the transport specific connection operations
type IClientConnector interface {
	// Dial establishes a single connection to the endpoint. It must give up
	// once ctx is done.
	Dial(ctx context.Context, endpoint common.Endpoint) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// --------------------------------------------------------------------------
// Server side
// --------------------------------------------------------------------------

// IServerConnector defines the transport specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// IServerHandler handles the frames of all connections of a server transport.
// Handle is called concurrently, also for frames of the same session.
type IServerHandler interface {
	// Greet is called once per accepted connection. The returned payload is
	// sent as the first frame.
	Greet(session *Session) []byte
	// Handle processes one request frame and returns the response code and payload
	Handle(session *Session, code common.Code, req []byte) (common.Code, []byte)
}

// IRPCServerTransport is the interface for the server transport layer
type IRPCServerTransport interface {
	// RegisterHandler sets the handler, must be called before serving
	RegisterHandler(handler IServerHandler)
	// Listen creates a listener from the config and serves it until Close
	Listen(config common.ServerConfig) error
	// Serve accepts connections on an existing listener until Close
	Serve(listener net.Listener) error
	// ServeConn serves a single, already accepted connection and blocks until it is closed
	ServeConn(conn net.Conn)
	// DropConnections closes every open client connection but keeps listening.
	// It returns the number of dropped connections.
	DropConnections() int
	// Close stops listening and closes all connections
	Close() error
}

// Session is the server side state of one client connection
type Session struct {
	RemoteAddr string
	Salt       []byte

	mu   sync.RWMutex
	user string
}

// NewSession creates the session of a new connection
func NewSession(remoteAddr string, salt []byte) *Session {
	return &Session{RemoteAddr: remoteAddr, Salt: salt}
}

// User returns the authenticated user, empty for guest sessions
func (s *Session) User() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SetUser marks the session as authenticated
func (s *Session) SetUser(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}
