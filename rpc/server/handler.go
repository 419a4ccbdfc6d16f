package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/transport"
	"github.com/ValentinKolb/dTuple/rpc/transport/base"
)

// maxSleep bounds the sleep builtin
const maxSleep = time.Minute

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerHandler)
// --------------------------------------------------------------------------

func (s *TupleServer) Greet(session *transport.Session) []byte {
	data, err := s.serializer.Serialize(*common.NewGreeting(s.config.Version, session.Salt))
	if err != nil {
		Logger.Errorf("Failed to serialize greeting: %v", err)
		return nil
	}
	return data
}

func (s *TupleServer) Handle(session *transport.Session, code common.Code, req []byte) (common.Code, []byte) {
	if code == common.CodePing {
		return common.CodeOK, nil
	}

	if !code.IsRequest() {
		return s.errorResponse(fmt.Sprintf("unsupported request code %s", code))
	}

	var msg common.Message
	if err := s.serializer.Deserialize(req, &msg); err != nil {
		return s.errorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	}

	if code == common.CodeAuth {
		return s.authenticate(session, &msg)
	}

	// guests may only ping if users are configured
	if len(s.config.Users) > 0 && session.User() == "" {
		return s.errorResponse("access denied: authentication required")
	}

	var (
		result []interface{}
		err    error
	)
	switch code {
	case common.CodeCall:
		result, err = s.call(msg.Name, msg.Tuple)
	case common.CodeEval:
		result, err = evaluate(msg.Name, msg.Tuple)
	}
	if err != nil {
		return s.errorResponse(err.Error())
	}
	return s.tupleResponse(result)
}

// --------------------------------------------------------------------------
// Request handling
// --------------------------------------------------------------------------

func (s *TupleServer) authenticate(session *transport.Session, msg *common.Message) (common.Code, []byte) {
	password, ok := s.config.Users[msg.User]
	if !ok || !base.VerifyScramble(session.Salt, msg.Scramble, password) {
		Logger.Warningf("Authentication failed for user %q from %s", msg.User, session.RemoteAddr)
		return s.errorResponse(fmt.Sprintf("incorrect password supplied for user '%s'", msg.User))
	}
	session.SetUser(msg.User)
	Logger.Debugf("User %q authenticated from %s", msg.User, session.RemoteAddr)
	return common.CodeOK, nil
}

func (s *TupleServer) call(name string, args []interface{}) ([]interface{}, error) {
	fn, ok := s.functions.Load(name)
	if !ok {
		return nil, fmt.Errorf("procedure '%s' is not defined", name)
	}
	return fn(args)
}

func (s *TupleServer) tupleResponse(tuple []interface{}) (common.Code, []byte) {
	if tuple == nil {
		tuple = []interface{}{}
	}
	data, err := s.serializer.Serialize(*common.NewTupleResponse(tuple...))
	if err != nil {
		return s.errorResponse(fmt.Sprintf("failed to serialize response: %s", err))
	}
	return common.CodeOK, data
}

func (s *TupleServer) errorResponse(message string) (common.Code, []byte) {
	data, err := s.serializer.Serialize(*common.NewErrorResponse(message))
	if err != nil {
		return common.CodeError, []byte(message)
	}
	return common.CodeError, data
}

// --------------------------------------------------------------------------
// Builtin helpers
// --------------------------------------------------------------------------

// sleepFunction sleeps for args[0] seconds and returns true
func sleepFunction(args []interface{}) ([]interface{}, error) {
	if len(args) != 1 {
		return nil, errors.New("sleep expects one argument")
	}
	seconds, ok := toFloat(args[0])
	if !ok || seconds < 0 {
		return nil, fmt.Errorf("sleep: invalid duration %v", args[0])
	}
	d := time.Duration(seconds * float64(time.Second))
	if d > maxSleep {
		d = maxSleep
	}
	time.Sleep(d)
	return []interface{}{true}, nil
}

// evaluate supports the tiny expression set of the development server:
// "return ..." returns the arguments, "return <literal>[, <literal>...]"
// returns the literals.
func evaluate(expr string, args []interface{}) ([]interface{}, error) {
	expr = strings.TrimSpace(expr)
	if expr != "return" && !strings.HasPrefix(expr, "return ") {
		return nil, fmt.Errorf("unsupported expression: %q", expr)
	}

	body := strings.TrimSpace(strings.TrimPrefix(expr, "return"))
	if body == "" {
		return []interface{}{}, nil
	}
	if body == "..." {
		return args, nil
	}

	parts := strings.Split(body, ",")
	result := make([]interface{}, 0, len(parts))
	for _, part := range parts {
		v, err := parseLiteral(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func parseLiteral(s string) (interface{}, error) {
	switch s {
	case "nil":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("unsupported literal: %q", s)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
