/*
Package codec provides the value serialization used by the engine to persist
records, plus key-path evaluation for stores and indexes with in-line keys.

Key Components:

  - ICodec: The interface every codec implements (Name, Encode, Decode)
  - JSON: Default codec built on github.com/goccy/go-json. Decoded numbers are float64
  - YAML: Human readable codec built on gopkg.in/yaml.v3. Integers stay int
  - GOB: Go's binary format. Custom types need gob.Register
  - Extract / Inject: dotted key-path access used for keyPath and index keys

Use New to select a codec by name:

	c, err := codec.New("json")
	b, _ := c.Encode(map[string]any{"id": 1})
	v, _ := c.Decode(b) // map[string]any{"id": float64(1)}
*/
package codec
