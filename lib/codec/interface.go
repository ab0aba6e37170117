package codec

import "fmt"

// ICodec is the interface for all value codecs.
// Values handed to Encode may be any Go value the format supports. Decode
// always returns the format's generic representation (maps, slices, scalars).
type ICodec interface {
	// Name returns the name used to select the codec (json, yaml, gob)
	Name() string
	// Encode serializes a value into a byte array
	Encode(v any) ([]byte, error)
	// Decode deserializes a byte array into the generic representation
	Decode(b []byte) (any, error)
}

// New returns the codec registered under name.
func New(name string) (ICodec, error) {
	switch name {
	case "", "json":
		return NewJSONCodec(), nil
	case "yaml":
		return NewYAMLCodec(), nil
	case "gob":
		return NewGOBCodec(), nil
	default:
		return nil, fmt.Errorf("invalid codec %s (expected one of: json, yaml, gob)", name)
	}
}
