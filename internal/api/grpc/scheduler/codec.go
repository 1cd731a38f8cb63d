package scheduler

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of scheduler messages.
const CodecName = "json"

// Codec encodes scheduler messages as JSON.
type Codec struct{}

// Marshal encodes v as JSON.
func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON data into v.
func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Name returns the content subtype of the codec.
func (Codec) Name() string {
	return CodecName
}

//nolint:gochecknoinits // Codecs must be registered before any server or client is built.
func init() {
	encoding.RegisterCodec(Codec{})
}
