// Package serializer converts common.Message payloads to and from the bytes
// carried inside a frame. It defines a common interface and multiple
// implementations with different trade-offs.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format. A flags byte marks which
//     message fields are present; tuple values are written with a one byte type
//     tag (nil, bool, int, uint, float, string, bytes, nested tuple). Signed
//     integers decode as int64, unsigned as uint64.
//
//   - jsonSerializerImpl: JSON via json-iterator, useful for debugging. Numbers
//     inside tuples decode as float64.
//
//   - gobSerializerImpl: Go's gob encoding. Only value types known to gob can be
//     carried inside tuples.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	serializer := serializer.NewBinarySerializer()
//	data, err := serializer.Serialize(*common.NewCallRequest("echo", "hello"))
//	// ... send data ...
//	var received common.Message
//	err = serializer.Deserialize(receivedData, &received)
package serializer
