package serializer

import (
	"testing"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled.
// Only strings, bools and byte-free tuples are used so every format round trips
// to identical values.
func testMessages() []common.Message {
	return []common.Message{
		// Call request
		{
			Name:  "echo",
			Tuple: []interface{}{"a", "b", true},
		},

		// Greeting
		{
			Version: "dTuple 1.0.0",
			Salt:    []byte("0123456789abcdefghij"),
		},

		// Auth
		{
			User:     "admin",
			Scramble: []byte{1, 2, 3, 4},
		},

		// Error response
		{
			Err: "test error message",
		},

		// Nested tuple
		{
			Tuple: []interface{}{[]interface{}{"x", false}, "y"},
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range testMessages() {
				data, err := serializer.Serialize(msg)
				require.NoError(t, err, "message %d", i)

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), "message %d", i)
				assert.Equal(t, msg, result, "message %d", i)
			}
		})
	}
}

// TestDeserializeResetsMessage makes sure fields of a reused message do not leak
func TestDeserializeResetsMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(common.Message{Name: "ping"})
			require.NoError(t, err)

			result := common.Message{Err: "stale", User: "stale"}
			require.NoError(t, serializer.Deserialize(data, &result))
			assert.Equal(t, common.Message{Name: "ping"}, result)
		})
	}
}

// TestBinaryTupleValueTypes checks the normalisation of numeric types by the binary format
func TestBinaryTupleValueTypes(t *testing.T) {
	serializer := NewBinarySerializer()

	msg := common.Message{Tuple: []interface{}{
		nil, true, false,
		7, int8(-8), int32(-32), int64(-64),
		uint(7), uint16(16), uint64(1 << 63),
		float32(1.5), 2.25,
		"str", []byte{}, []byte("bin"),
		[]interface{}{},
	}}

	data, err := serializer.Serialize(msg)
	require.NoError(t, err)

	var result common.Message
	require.NoError(t, serializer.Deserialize(data, &result))

	assert.Equal(t, []interface{}{
		nil, true, false,
		int64(7), int64(-8), int64(-32), int64(-64),
		uint64(7), uint64(16), uint64(1 << 63),
		1.5, 2.25,
		"str", []byte{}, []byte("bin"),
		[]interface{}{},
	}, result.Tuple)
}

// TestJSONNumbers documents that the JSON format decodes numbers as float64
func TestJSONNumbers(t *testing.T) {
	serializer := NewJSONSerializer()

	data, err := serializer.Serialize(common.Message{Tuple: []interface{}{1, 2.5}})
	require.NoError(t, err)

	var result common.Message
	require.NoError(t, serializer.Deserialize(data, &result))
	assert.Equal(t, []interface{}{float64(1), 2.5}, result.Tuple)
}

// TestBinaryUnsupportedType tests that unknown value types are rejected
func TestBinaryUnsupportedType(t *testing.T) {
	_, err := NewBinarySerializer().Serialize(common.Message{Tuple: []interface{}{struct{}{}}})
	assert.Error(t, err)
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{0},
			expectError: false,
		},
		{
			name:        "Invalid length for name",
			data:        []byte{hasName, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Tuple longer than data",
			data:        []byte{hasTuple, 0, 0, 0, 10}, // Claims 10 values but none provided
			expectError: true,
		},
		{
			name:        "Unknown value tag",
			data:        []byte{hasTuple, 0, 0, 0, 1, 0xff},
			expectError: true,
		},
		{
			name:        "Truncated int",
			data:        []byte{hasTuple, 0, 0, 0, 1, tagInt, 0, 0},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"binary", "json", "gob"} {
		s, err := ByName(name)
		require.NoError(t, err)
		assert.NotNil(t, s)
	}

	_, err := ByName("xml")
	assert.Error(t, err)
}

// TestGOBTupleValueTypes checks the registered tuple value types of the gob format
func TestGOBTupleValueTypes(t *testing.T) {
	serializer := NewGOBSerializer()

	msg := common.Message{Tuple: []interface{}{
		int64(-64), uint64(1 << 63), 2.25, "str", true,
		[]byte("bin"),
		map[string]interface{}{"k": int64(1)},
		[]interface{}{"nested"},
	}}

	data, err := serializer.Serialize(msg)
	require.NoError(t, err)

	var result common.Message
	require.NoError(t, serializer.Deserialize(data, &result))
	assert.Equal(t, msg, result)
}

// TestGOBErrors tests unregistered value types and corrupt frames
func TestGOBErrors(t *testing.T) {
	serializer := NewGOBSerializer()

	_, err := serializer.Serialize(common.Message{Tuple: []interface{}{struct{ A int }{1}}})
	assert.ErrorContains(t, err, "gob encode")

	msg := common.Message{Name: "kept"}
	err = serializer.Deserialize([]byte{0xff, 0x01, 0x02}, &msg)
	assert.ErrorContains(t, err, "gob decode")
	assert.Equal(t, "kept", msg.Name)
}
