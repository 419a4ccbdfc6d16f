package serializer

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/ValentinKolb/dTuple/rpc/common"
)

// NewGOBSerializer creates a serializer using Go's gob format. Every frame
// carries its own type descriptors, so frames can be decoded independently
// of each other. Tuple values are limited to the types registered below.
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{}
}

type gobSerializerImpl struct{}

// gobBuffers holds scratch buffers for encoding
var gobBuffers = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// tuple values travel as interface{}, gob needs every concrete type up front
func init() {
	for _, v := range []interface{}{
		int64(0),
		uint64(0),
		float64(0),
		[]byte(nil),
		[]interface{}(nil),
		map[string]interface{}(nil),
	} {
		gob.Register(v)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	buf := gobBuffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer gobBuffers.Put(buf)

	if err := gob.NewEncoder(buf).Encode(&msg); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	var decoded common.Message
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&decoded); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	*msg = decoded
	return nil
}
