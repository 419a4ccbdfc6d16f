package base

import (
	"crypto/sha1"
	"crypto/subtle"
	"fmt"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/serializer"
)

// handshakeID is the correlation id used during the handshake, the
// correlator never hands it out
const handshakeID uint64 = 0

// IFrameConn gives raw frame access to a connection that is not yet serving
type IFrameConn interface {
	ReadFrame() (id uint64, code common.Code, body []byte, err error)
	WriteFrame(id uint64, code common.Code, body []byte) error
}

// IHandshaker performs the exchange right after the transport connected.
// It returns the server version announced by the greeting.
type IHandshaker interface {
	Handshake(conn IFrameConn) (string, error)
}

// --------------------------------------------------------------------------
// Greeting handshake
// --------------------------------------------------------------------------

type greetingHandshaker struct {
	user       string
	password   string
	serializer serializer.IRPCSerializer
}

// NewGreetingHandshaker reads the server greeting and, if a user is given,
// authenticates with a salted scramble of the password
func NewGreetingHandshaker(user, password string, s serializer.IRPCSerializer) IHandshaker {
	return &greetingHandshaker{user: user, password: password, serializer: s}
}

func (h *greetingHandshaker) Handshake(conn IFrameConn) (string, error) {
	_, code, body, err := conn.ReadFrame()
	if err != nil {
		return "", fmt.Errorf("failed to read greeting: %w", err)
	}
	if code != common.CodeGreeting {
		return "", fmt.Errorf("expected greeting, got %s", code)
	}

	var greeting common.Message
	if err := h.serializer.Deserialize(body, &greeting); err != nil {
		return "", fmt.Errorf("failed to decode greeting: %w", err)
	}

	// guest session, nothing more to do
	if h.user == "" {
		return greeting.Version, nil
	}

	auth := common.NewAuthRequest(h.user, Scramble(greeting.Salt, h.password))
	data, err := h.serializer.Serialize(*auth)
	if err != nil {
		return "", fmt.Errorf("failed to encode auth request: %w", err)
	}
	if err := conn.WriteFrame(handshakeID, common.CodeAuth, data); err != nil {
		return "", fmt.Errorf("failed to send auth request: %w", err)
	}

	_, code, body, err = conn.ReadFrame()
	if err != nil {
		return "", fmt.Errorf("failed to read auth response: %w", err)
	}
	switch code {
	case common.CodeOK:
		return greeting.Version, nil
	case common.CodeError:
		var msg common.Message
		if err := h.serializer.Deserialize(body, &msg); err != nil || msg.Err == "" {
			return "", &common.ServerError{Message: string(body)}
		}
		return "", &common.ServerError{Message: msg.Err}
	default:
		return "", fmt.Errorf("unexpected auth response %s", code)
	}
}

// --------------------------------------------------------------------------
// Scramble
// --------------------------------------------------------------------------

// Scramble computes sha1(password) XOR sha1(salt + sha1(sha1(password))).
// Only the first 20 bytes of the salt are used.
func Scramble(salt []byte, password string) []byte {
	step1 := sha1.Sum([]byte(password))
	step2 := sha1.Sum(step1[:])

	h := sha1.New()
	h.Write(truncateSalt(salt))
	h.Write(step2[:])
	step3 := h.Sum(nil)

	scramble := make([]byte, sha1.Size)
	for i := range scramble {
		scramble[i] = step1[i] ^ step3[i]
	}
	return scramble
}

// VerifyScramble checks a scramble against the known password
func VerifyScramble(salt, scramble []byte, password string) bool {
	if len(scramble) != sha1.Size {
		return false
	}
	return subtle.ConstantTimeCompare(scramble, Scramble(salt, password)) == 1
}

func truncateSalt(salt []byte) []byte {
	if len(salt) > sha1.Size {
		return salt[:sha1.Size]
	}
	return salt
}
