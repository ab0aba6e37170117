package codec

import (
	"gopkg.in/yaml.v3"
)

// NewYAMLCodec creates a new codec using yaml encoding.
// Unlike json, integers survive a round trip as int.
func NewYAMLCodec() ICodec {
	return &yamlCodecImpl{}
}

// yamlCodecImpl implements the ICodec interface using yaml encoding
type yamlCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (y yamlCodecImpl) Name() string {
	return "yaml"
}

func (y yamlCodecImpl) Encode(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

func (y yamlCodecImpl) Decode(b []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
