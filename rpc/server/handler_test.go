package server

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/serializer"
	"github.com/ValentinKolb/dTuple/rpc/transport"
	"github.com/ValentinKolb/dTuple/rpc/transport/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSalt = []byte("0123456789abcdefghijklmnopqrstuv")

func newTestServer(t *testing.T, users map[string]string) *TupleServer {
	t.Helper()
	config := common.ServerConfig{Version: "handler-test", Users: users}
	s := NewTupleServer(config, base.NewBaseServerTransport(nil, config), serializer.NewBinarySerializer())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// request encodes msg, handles it and decodes the reply
func request(t *testing.T, s *TupleServer, session *transport.Session, code common.Code, msg *common.Message) (common.Code, common.Message) {
	t.Helper()
	var body []byte
	if msg != nil {
		var err error
		body, err = s.serializer.Serialize(*msg)
		require.NoError(t, err)
	}

	respCode, data := s.Handle(session, code, body)
	var resp common.Message
	if len(data) > 0 {
		require.NoError(t, s.serializer.Deserialize(data, &resp))
	}
	return respCode, resp
}

func TestGreet(t *testing.T) {
	s := newTestServer(t, nil)
	session := transport.NewSession("pipe", testSalt)

	var greeting common.Message
	require.NoError(t, s.serializer.Deserialize(s.Greet(session), &greeting))
	assert.Equal(t, "handler-test", greeting.Version)
	assert.Equal(t, testSalt, greeting.Salt)
}

func TestHandleCall(t *testing.T) {
	s := newTestServer(t, nil)
	session := transport.NewSession("pipe", testSalt)

	code, resp := request(t, s, session, common.CodeCall, common.NewCallRequest("echo", "a", int64(2)))
	assert.Equal(t, common.CodeOK, code)
	assert.Equal(t, []interface{}{"a", int64(2)}, resp.Tuple)

	code, resp = request(t, s, session, common.CodeCall, common.NewCallRequest("missing"))
	assert.Equal(t, common.CodeError, code)
	assert.Equal(t, "procedure 'missing' is not defined", resp.Err)

	code, resp = request(t, s, session, common.CodeCall, common.NewCallRequest("error", "boom"))
	assert.Equal(t, common.CodeError, code)
	assert.Equal(t, "boom", resp.Err)
}

func TestHandleRejectsResponseCodes(t *testing.T) {
	s := newTestServer(t, nil)
	code, resp := request(t, s, transport.NewSession("pipe", testSalt), common.CodeGreeting, nil)
	assert.Equal(t, common.CodeError, code)
	assert.Contains(t, resp.Err, "unsupported request code")
}

func TestHandleAuthentication(t *testing.T) {
	s := newTestServer(t, map[string]string{"admin": "secret"})
	session := transport.NewSession("pipe", testSalt)

	code, _ := request(t, s, session, common.CodePing, nil)
	assert.Equal(t, common.CodeOK, code, "guests may ping")

	code, resp := request(t, s, session, common.CodeCall, common.NewCallRequest("echo"))
	assert.Equal(t, common.CodeError, code)
	assert.Equal(t, "access denied: authentication required", resp.Err)

	code, resp = request(t, s, session, common.CodeAuth, common.NewAuthRequest("admin", base.Scramble(testSalt, "wrong")))
	assert.Equal(t, common.CodeError, code)
	assert.Equal(t, "incorrect password supplied for user 'admin'", resp.Err)
	assert.Empty(t, session.User())

	code, _ = request(t, s, session, common.CodeAuth, common.NewAuthRequest("admin", base.Scramble(testSalt, "secret")))
	assert.Equal(t, common.CodeOK, code)
	assert.Equal(t, "admin", session.User())

	code, _ = request(t, s, session, common.CodeCall, common.NewCallRequest("echo"))
	assert.Equal(t, common.CodeOK, code)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		args []interface{}
		want []interface{}
	}{
		{"return", nil, []interface{}{}},
		{"return ...", []interface{}{"x", true}, []interface{}{"x", true}},
		{"return 1, 2.5, 'a', \"b\"", nil, []interface{}{int64(1), 2.5, "a", "b"}},
		{"  return true, false, nil ", nil, []interface{}{true, false, nil}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evaluate(tt.expr, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := evaluate("box.space.test:select()", nil)
	assert.Error(t, err)
	_, err = evaluate("return foo", nil)
	assert.Error(t, err)
	_, err = evaluate("returnx", nil)
	assert.Error(t, err)
}

func TestSleepFunction(t *testing.T) {
	start := time.Now()
	result, err := sleepFunction([]interface{}{0.02})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{true}, result)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	_, err = sleepFunction(nil)
	assert.Error(t, err)
	_, err = sleepFunction([]interface{}{-1})
	assert.Error(t, err)
	_, err = sleepFunction([]interface{}{"soon"})
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, nil)
	builtins := s.Functions()

	s.Register("double", func(args []interface{}) ([]interface{}, error) {
		return append(args, args...), nil
	})
	assert.Equal(t, builtins+1, s.Functions())

	result, err := s.call("double", []interface{}{"x"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"x", "x"}, result)
}
