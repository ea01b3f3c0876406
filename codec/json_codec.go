package codec

import (
	"encoding/json"
	"errors"
)

var errEmptyBody = errors.New("codec: empty body")

// JSONCodec is the default codec. Payload numbers decode as float64, nested
// objects as map[string]any.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return errEmptyBody
	}
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
