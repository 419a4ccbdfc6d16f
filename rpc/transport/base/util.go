package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/ValentinKolb/dTuple/rpc/common"
)

// frameHeaderSize is the size of the fixed frame header
const frameHeaderSize = 16

// writeFrame writes a frame with the format:
// - 8 bytes: correlation id (uint64, big endian)
// - 4 bytes: code (uint32, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(w io.Writer, id uint64, code common.Code, data []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], id)
	binary.BigEndian.PutUint32(header[8:12], uint32(code))
	binary.BigEndian.PutUint32(header[12:16], uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(w)
	return err
}

// readFrame reads one frame. The header buffer is reused by the caller, the
// returned payload is always freshly allocated since it outlives the call.
// Frames with a payload larger than maxSize are rejected (0 disables the check).
func readFrame(r io.Reader, header []byte, maxSize int) (uint64, common.Code, []byte, error) {
	if len(header) < frameHeaderSize {
		header = make([]byte, frameHeaderSize)
	}

	if _, err := io.ReadFull(r, header[:frameHeaderSize]); err != nil {
		return 0, 0, nil, err
	}

	id := binary.BigEndian.Uint64(header[:8])
	code := common.Code(binary.BigEndian.Uint32(header[8:12]))
	contentLength := binary.BigEndian.Uint32(header[12:16])

	if maxSize > 0 && int64(contentLength) > int64(maxSize) {
		return 0, 0, nil, fmt.Errorf("frame of %d bytes exceeds limit of %d bytes", contentLength, maxSize)
	}

	if contentLength == 0 {
		return id, code, []byte{}, nil
	}

	data := make([]byte, contentLength)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, 0, nil, err
	}
	return id, code, data, nil
}
