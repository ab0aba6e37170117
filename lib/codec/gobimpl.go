package codec

import (
	"bytes"
	"encoding/gob"
)

func init() {
	// generic shapes that appear behind interface values
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// NewGOBCodec creates a new codec using Go's binary gob format.
// Custom struct types stored through this codec must be registered with
// gob.Register by the caller.
func NewGOBCodec() ICodec {
	return &gobCodecImpl{}
}

// gobCodecImpl implements the ICodec interface using gob encoding
type gobCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (g gobCodecImpl) Name() string {
	return "gob"
}

func (g gobCodecImpl) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	// encode through a pointer to an interface so the concrete type is transmitted
	if err := enc.Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobCodecImpl) Decode(b []byte) (any, error) {
	var v any
	dec := gob.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
