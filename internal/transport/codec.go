package transport

import (
	"encoding/json"
	"fmt"
)

// jsonCodec serializes request and response payloads as JSON. The protobuf
// schema of the wire protocol is outside this module; the broker side
// negotiates the content subtype via the codec name.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return "json"
}
