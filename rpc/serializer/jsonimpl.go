package serializer

import (
	"github.com/ValentinKolb/dTuple/rpc/common"
	jsoniter "github.com/json-iterator/go"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{
		api: jsoniter.Config{
			EscapeHTML:             false,
			UseNumber:              false,
			ValidateJsonRawMessage: true,
		}.Froze(),
	}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding.
// Numbers inside tuples decode as float64.
type jsonSerializerImpl struct {
	api jsoniter.API
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return j.api.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return j.api.Unmarshal(b, msg)
}
