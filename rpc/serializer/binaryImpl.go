package serializer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ValentinKolb/dTuple/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasName     byte = 1 << 0
	hasTuple    byte = 1 << 1
	hasVersion  byte = 1 << 2
	hasSalt     byte = 1 << 3
	hasUser     byte = 1 << 4
	hasScramble byte = 1 << 5
	hasErr      byte = 1 << 6
)

// Type tags of tuple values
const (
	tagNil byte = iota
	tagFalse
	tagTrue
	tagInt
	tagUint
	tagFloat
	tagString
	tagBytes
	tagArray
)

// maxNesting limits how deep tuples may nest inside each other
const maxNesting = 32

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Reserve the flags byte, it is written after knowing which fields are present
	result := make([]byte, 1, 64)
	var flags byte = 0

	if msg.Name != "" {
		flags |= hasName
		result = appendString(result, msg.Name)
	}

	if msg.Tuple != nil {
		flags |= hasTuple
		var err error
		if result, err = appendTuple(result, msg.Tuple, 0); err != nil {
			return nil, err
		}
	}

	if msg.Version != "" {
		flags |= hasVersion
		result = appendString(result, msg.Version)
	}

	if msg.Salt != nil {
		flags |= hasSalt
		result = appendBytes(result, msg.Salt)
	}

	if msg.User != "" {
		flags |= hasUser
		result = appendString(result, msg.User)
	}

	if msg.Scramble != nil {
		flags |= hasScramble
		result = appendBytes(result, msg.Scramble)
	}

	if msg.Err != "" {
		flags |= hasErr
		result = appendString(result, msg.Err)
	}

	result[0] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (flags)
	if len(data) < 1 {
		return fmt.Errorf("data too short for message header")
	}

	flags := data[0]
	r := &reader{data: data, pos: 1}
	*msg = common.Message{}

	var err error
	if flags&hasName != 0 {
		if msg.Name, err = r.string("name"); err != nil {
			return err
		}
	}

	if flags&hasTuple != 0 {
		if msg.Tuple, err = r.tuple(0); err != nil {
			return err
		}
	}

	if flags&hasVersion != 0 {
		if msg.Version, err = r.string("version"); err != nil {
			return err
		}
	}

	if flags&hasSalt != 0 {
		if msg.Salt, err = r.bytes("salt"); err != nil {
			return err
		}
	}

	if flags&hasUser != 0 {
		if msg.User, err = r.string("user"); err != nil {
			return err
		}
	}

	if flags&hasScramble != 0 {
		if msg.Scramble, err = r.bytes("scramble"); err != nil {
			return err
		}
	}

	if flags&hasErr != 0 {
		if msg.Err, err = r.string("error"); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Encoding helpers
// --------------------------------------------------------------------------

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendBytes(buf []byte, p []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p)))
	return append(buf, p...)
}

func appendTuple(buf []byte, tuple []interface{}, depth int) ([]byte, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("tuple nesting exceeds %d levels", maxNesting)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(tuple)))
	for i, v := range tuple {
		var err error
		if buf, err = appendValue(buf, v, depth); err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
	}
	return buf, nil
}

func appendValue(buf []byte, v interface{}, depth int) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, tagNil), nil
	case bool:
		if val {
			return append(buf, tagTrue), nil
		}
		return append(buf, tagFalse), nil
	case int:
		return binary.BigEndian.AppendUint64(append(buf, tagInt), uint64(val)), nil
	case int8:
		return binary.BigEndian.AppendUint64(append(buf, tagInt), uint64(val)), nil
	case int16:
		return binary.BigEndian.AppendUint64(append(buf, tagInt), uint64(val)), nil
	case int32:
		return binary.BigEndian.AppendUint64(append(buf, tagInt), uint64(val)), nil
	case int64:
		return binary.BigEndian.AppendUint64(append(buf, tagInt), uint64(val)), nil
	case uint:
		return binary.BigEndian.AppendUint64(append(buf, tagUint), uint64(val)), nil
	case uint8:
		return binary.BigEndian.AppendUint64(append(buf, tagUint), uint64(val)), nil
	case uint16:
		return binary.BigEndian.AppendUint64(append(buf, tagUint), uint64(val)), nil
	case uint32:
		return binary.BigEndian.AppendUint64(append(buf, tagUint), uint64(val)), nil
	case uint64:
		return binary.BigEndian.AppendUint64(append(buf, tagUint), val), nil
	case float32:
		return binary.BigEndian.AppendUint64(append(buf, tagFloat), math.Float64bits(float64(val))), nil
	case float64:
		return binary.BigEndian.AppendUint64(append(buf, tagFloat), math.Float64bits(val)), nil
	case string:
		return appendString(append(buf, tagString), val), nil
	case []byte:
		return appendBytes(append(buf, tagBytes), val), nil
	case []interface{}:
		return appendTuple(append(buf, tagArray), val, depth+1)
	default:
		return nil, fmt.Errorf("unsupported tuple value type %T", v)
	}
}

// --------------------------------------------------------------------------
// Decoding helpers
// --------------------------------------------------------------------------

type reader struct {
	data []byte
	pos  int
}

func (r *reader) need(n int, what string) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("data too short for %s", what)
	}
	return nil
}

func (r *reader) uint32(what string) (uint32, error) {
	if err := r.need(4, what+" length"); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64(what string) (uint64, error) {
	if err := r.need(8, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) bytes(what string) ([]byte, error) {
	n, err := r.uint32(what)
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n), what+" data"); err != nil {
		return nil, err
	}
	// create an empty slice (not nil) if length is 0
	p := make([]byte, n)
	copy(p, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return p, nil
}

func (r *reader) string(what string) (string, error) {
	n, err := r.uint32(what)
	if err != nil {
		return "", err
	}
	if err := r.need(int(n), what+" data"); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) tuple(depth int) ([]interface{}, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("tuple nesting exceeds %d levels", maxNesting)
	}
	n, err := r.uint32("tuple")
	if err != nil {
		return nil, err
	}
	// every value takes at least one byte, reject lengths the data cannot hold
	if err := r.need(int(n), "tuple values"); err != nil {
		return nil, err
	}
	tuple := make([]interface{}, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := r.value(depth)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		tuple = append(tuple, v)
	}
	return tuple, nil
}

func (r *reader) value(depth int) (interface{}, error) {
	if err := r.need(1, "value tag"); err != nil {
		return nil, err
	}
	tag := r.data[r.pos]
	r.pos++

	switch tag {
	case tagNil:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagInt:
		v, err := r.uint64("int")
		return int64(v), err
	case tagUint:
		return r.uint64("uint")
	case tagFloat:
		v, err := r.uint64("float")
		return math.Float64frombits(v), err
	case tagString:
		return r.string("string")
	case tagBytes:
		return r.bytes("bytes")
	case tagArray:
		return r.tuple(depth + 1)
	default:
		return nil, fmt.Errorf("unknown value tag %d", tag)
	}
}
