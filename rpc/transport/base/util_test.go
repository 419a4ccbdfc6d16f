package base

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 42, common.CodeCall, []byte("payload")))
	require.NoError(t, writeFrame(&buf, 0, common.CodePing, nil))
	assert.Equal(t, 2*frameHeaderSize+len("payload"), buf.Len())

	header := make([]byte, frameHeaderSize)

	id, code, data, err := readFrame(&buf, header, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, common.CodeCall, code)
	assert.Equal(t, []byte("payload"), data)

	id, code, data, err = readFrame(&buf, header, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
	assert.Equal(t, common.CodePing, code)
	assert.Empty(t, data)
	assert.NotNil(t, data)
}

func TestReadFrameDoesNotAliasHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 1, common.CodeOK, []byte("first")))
	require.NoError(t, writeFrame(&buf, 2, common.CodeOK, []byte("second")))

	header := make([]byte, frameHeaderSize)
	_, _, first, err := readFrame(&buf, header, 0)
	require.NoError(t, err)
	_, _, second, err := readFrame(&buf, header, 0)
	require.NoError(t, err)

	assert.Equal(t, "first", string(first))
	assert.Equal(t, "second", string(second))
}

func TestReadFrameRejectsOversizedFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 1, common.CodeOK, make([]byte, 128)))

	_, _, _, err := readFrame(&buf, nil, 64)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 1, common.CodeOK, []byte("payload")))
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])

	_, _, _, err := readFrame(truncated, nil, 0)
	assert.Error(t, err)
}
