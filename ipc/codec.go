package ipc

import "github.com/vmihailenco/msgpack/v5"

// Codec serializes values crossing the process boundary. The default is
// msgpack; callers with domain types that need custom wire forms register
// them as msgpack extensions via RegisterExt, or inject their own Codec.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// msgpackCodec is the default msgpack-backed codec.
type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// DefaultCodec returns the default msgpack codec.
func DefaultCodec() Codec {
	return msgpackCodec{}
}

// RegisterExt registers a domain type as a msgpack extension so instances of
// it survive the boundary in both argument and result positions. Extension
// ids must match between parent and worker.
//
// Registration is process-global, mirroring msgpack's own registry.
func RegisterExt(extID int8, value msgpack.MarshalerUnmarshaler) {
	msgpack.RegisterExt(extID, value)
}
