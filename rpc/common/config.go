package common

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultConnectionsPerEndpoint = 1
	DefaultConnectTimeout         = 3 * time.Second
	DefaultRequestTimeout         = 10 * time.Second
	DefaultRetryCount             = 3
	DefaultMaxFrameSize           = 16 * 1024 * 1024 // 16 MB
)

// SelectionStrategyKind names a member of the round robin strategy family
type SelectionStrategyKind string

const (
	StrategyRoundRobin         SelectionStrategyKind = "round-robin"
	StrategyParallelRoundRobin SelectionStrategyKind = "parallel-round-robin"
)

// --------------------------------------------------------------------------
// Socket options
// --------------------------------------------------------------------------

type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientTransportConfig struct {
	Endpoints              []Endpoint
	ConnectionsPerEndpoint int
	RetryCount             int
	MaxFrameSize           int
	SocketConf
	TCPConf
}

type ClientConfig struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	Strategy       SelectionStrategyKind

	// Credentials, empty user means guest (no auth request is sent)
	User     string
	Password string

	Transport ClientTransportConfig
}

// WithDefaults returns a copy of the config where every unset value is replaced
// by its default
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
	if c.Strategy == "" {
		c.Strategy = StrategyRoundRobin
	}
	if c.Transport.ConnectionsPerEndpoint <= 0 {
		c.Transport.ConnectionsPerEndpoint = DefaultConnectionsPerEndpoint
	}
	if c.Transport.RetryCount <= 0 {
		c.Transport.RetryCount = 1
	}
	if c.Transport.MaxFrameSize <= 0 {
		c.Transport.MaxFrameSize = DefaultMaxFrameSize
	}
	return c
}

// Validate checks the configuration and reports every problem at once
func (c *ClientConfig) Validate() error {
	var err error
	if len(c.Transport.Endpoints) == 0 {
		err = multierr.Append(err, errors.New("no endpoints provided"))
	}
	seen := make(map[Endpoint]struct{}, len(c.Transport.Endpoints))
	for _, ep := range c.Transport.Endpoints {
		if strings.TrimSpace(string(ep)) == "" {
			err = multierr.Append(err, errors.New("empty endpoint"))
			continue
		}
		if _, dup := seen[ep]; dup {
			err = multierr.Append(err, fmt.Errorf("duplicate endpoint %s", ep))
		}
		seen[ep] = struct{}{}
	}
	switch c.Strategy {
	case "", StrategyRoundRobin, StrategyParallelRoundRobin:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown selection strategy %q", c.Strategy))
	}
	if c.ConnectTimeout < 0 {
		err = multierr.Append(err, errors.New("connect timeout must not be negative"))
	}
	return err
}

// ParseEndpoints splits a comma separated list of endpoints
func ParseEndpoints(s string) []Endpoint {
	var endpoints []Endpoint
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			endpoints = append(endpoints, Endpoint(part))
		}
	}
	return endpoints
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-24s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Connect Timeout", c.ConnectTimeout.String())
	addField("Request Timeout", c.RequestTimeout.String())
	addField("Selection Strategy", string(c.Strategy))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))
	if c.User != "" {
		addField("User", c.User)
	}

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), string(endpoint))
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Development server configuration struct
// --------------------------------------------------------------------------

type ServerTransportConfig struct {
	Endpoint          string
	MaxWorkersPerConn int
	SocketConf
	TCPConf
}

type ServerConfig struct {
	// Version announced in the greeting
	Version string

	// Users maps user names to passwords, empty means no authentication
	Users map[string]string

	TimeoutSecond int64
	LogLevel      string

	Transport ServerTransportConfig
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Version", c.Version)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.MaxWorkersPerConn))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	if len(c.Users) > 0 {
		addSection("Users")
		// Sort keys for consistent output
		users := make([]string, 0, len(c.Users))
		for u := range c.Users {
			users = append(users, u)
		}
		sort.Strings(users)
		for i, u := range users {
			addField(strconv.Itoa(i), u)
		}
	}
	return sb.String()
}
