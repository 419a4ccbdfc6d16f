package common

import (
	"encoding/json"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Endpoint
// --------------------------------------------------------------------------

// Endpoint is the network address of one server instance (host:port for tcp,
// a socket path for unix). It is comparable and used as a registry key.
type Endpoint string

func (e Endpoint) String() string {
	return string(e)
}

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is the payload carried inside a frame. Which fields are used depends
// on the frame code.
type Message struct {
	// Call, Eval
	Name  string        `json:"name,omitempty"`  // function name or expression
	Tuple []interface{} `json:"tuple,omitempty"` // arguments (request) or result tuple (response)

	// Greeting
	Version string `json:"version,omitempty"`
	Salt    []byte `json:"salt,omitempty"`

	// Auth
	User     string `json:"user,omitempty"`
	Scramble []byte `json:"scramble,omitempty"`

	// Error responses
	Err string `json:"err,omitempty"`
}

// NewCallRequest creates the payload of a Call request
func NewCallRequest(function string, args ...interface{}) *Message {
	return &Message{
		Name:  function,
		Tuple: args,
	}
}

// NewEvalRequest creates the payload of an Eval request
func NewEvalRequest(expression string, args ...interface{}) *Message {
	return &Message{
		Name:  expression,
		Tuple: args,
	}
}

// NewAuthRequest creates the payload of an Auth request
func NewAuthRequest(user string, scramble []byte) *Message {
	return &Message{
		User:     user,
		Scramble: scramble,
	}
}

// NewGreeting creates the payload the server sends right after accepting a connection
func NewGreeting(version string, salt []byte) *Message {
	return &Message{
		Version: version,
		Salt:    salt,
	}
}

// NewTupleResponse creates a successful response carrying a tuple
func NewTupleResponse(tuple ...interface{}) *Message {
	return &Message{
		Tuple: tuple,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Message {
	return &Message{
		Err: err,
	}
}

// --------------------------------------------------------------------------
// Request / Response (what travels through a connection)
// --------------------------------------------------------------------------

// Request is one already encoded request handed to a connection.
type Request struct {
	Code Code
	Body []byte
	// Timeout overrides the configured request timeout if > 0
	Timeout time.Duration
}

// Response is one decoded response frame delivered to a pending call.
type Response struct {
	Code Code
	Body []byte
}

// --------------------------------------------------------------------------
// Frame Codes
// --------------------------------------------------------------------------

// Code is the request/response type carried in every frame header.
type Code uint32

const (
	CodeUnknown Code = iota

	// Responses

	CodeOK    // Successful response
	CodeError // Server side error, body carries a Message with Err set

	// Server initiated

	CodeGreeting // First frame on every connection

	// Requests

	CodeAuth // Authenticate the connection
	CodePing // No-op round trip
	CodeCall // Call a stored function
	CodeEval // Evaluate an expression
)

// String returns the string representation of a Code.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeError:
		return "error"
	case CodeGreeting:
		return "greeting"
	case CodeAuth:
		return "auth"
	case CodePing:
		return "ping"
	case CodeCall:
		return "call"
	case CodeEval:
		return "eval"
	default:
		return "unknown"
	}
}

// IsRequest reports whether the code may be sent by a client.
func (c Code) IsRequest() bool {
	return c >= CodeAuth && c <= CodeEval
}

// MarshalJSON implements the json.Marshaller interface for Code.
func (c Code) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Code.
func (c *Code) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "ok":
		*c = CodeOK
	case "error":
		*c = CodeError
	case "greeting":
		*c = CodeGreeting
	case "auth":
		*c = CodeAuth
	case "ping":
		*c = CodePing
	case "call":
		*c = CodeCall
	case "eval":
		*c = CodeEval
	default:
		return fmt.Errorf("unknown code: %s", s)
	}

	return nil
}
