package codec

import (
	"reflect"
	"testing"
)

// testCodecs is a map of codec name to factory function
var testCodecs = map[string]func() ICodec{
	"JSON": NewJSONCodec,
	"YAML": NewYAMLCodec,
	"GOB":  NewGOBCodec,
}

// testValues holds values whose generic form is identical for every codec
func testValues() []any {
	return []any{
		"plain string",
		true,
		map[string]any{"name": "a"},
		map[string]any{
			"name":    "b",
			"address": map[string]any{"city": "Ulm", "zip": "89073"},
			"tags":    []any{"x", "y"},
		},
		[]any{"a", "b", map[string]any{"c": "d"}},
	}
}

// TestCodecRoundTrip tests that values survive encoding and decoding
func TestCodecRoundTrip(t *testing.T) {
	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			c := factory()

			for i, v := range testValues() {
				data, err := c.Encode(v)
				if err != nil {
					t.Errorf("Failed to encode value %d: %v", i, err)
					continue
				}

				result, err := c.Decode(data)
				if err != nil {
					t.Errorf("Failed to decode value %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(v, result) {
					t.Errorf("Value %d mismatch: expected %#v, got %#v", i, v, result)
				}
			}
		})
	}
}

// TestCodecNumbers documents how each codec hands numbers back
func TestCodecNumbers(t *testing.T) {
	tests := map[string]any{
		"json": float64(42),
		"yaml": 42,
		"gob":  42,
	}

	for name, expected := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := New(name)
			if err != nil {
				t.Fatalf("Failed to create codec: %v", err)
			}
			data, err := c.Encode(42)
			if err != nil {
				t.Fatalf("Failed to encode: %v", err)
			}
			v, err := c.Decode(data)
			if err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if v != expected {
				t.Errorf("Expected %#v, got %#v", expected, v)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", "json", "yaml", "gob"} {
		c, err := New(name)
		if err != nil {
			t.Errorf("Expected codec for %q, got error %v", name, err)
			continue
		}
		if name != "" && c.Name() != name {
			t.Errorf("Expected name %s, got %s", name, c.Name())
		}
	}

	if _, err := New("xml"); err == nil {
		t.Error("Expected error for unknown codec")
	}
}

// TestCodecInvalidInput tests that garbage input fails to decode
func TestCodecInvalidInput(t *testing.T) {
	for name, factory := range map[string]func() ICodec{"JSON": NewJSONCodec, "GOB": NewGOBCodec} {
		t.Run(name, func(t *testing.T) {
			if _, err := factory().Decode([]byte{0xde, 0xad, 0xbe, 0xef}); err == nil {
				t.Error("Expected error for invalid input")
			}
		})
	}
}

type user struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Address struct {
		City string `json:"city"`
	} `json:"address"`
}

func TestExtract(t *testing.T) {
	u := user{ID: 7, Name: "b"}
	u.Address.City = "Ulm"

	tests := []struct {
		name     string
		value    any
		path     string
		expected any
		found    bool
	}{
		{"map top level", map[string]any{"id": 1.0}, "id", 1.0, true},
		{"map nested", map[string]any{"a": map[string]any{"b": "c"}}, "a.b", "c", true},
		{"map missing", map[string]any{"id": 1.0}, "name", nil, false},
		{"not a map", "scalar", "id", nil, false},
		{"empty path", "scalar", "", "scalar", true},
		{"struct field", u, "name", "b", true},
		{"struct number", u, "id", 7.0, true},
		{"struct nested", &u, "address.city", "Ulm", true},
		{"through scalar", map[string]any{"a": "b"}, "a.b", nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, found, err := Extract(tc.value, tc.path)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if found != tc.found {
				t.Fatalf("Expected found=%v, got %v", tc.found, found)
			}
			if !reflect.DeepEqual(v, tc.expected) {
				t.Errorf("Expected %#v, got %#v", tc.expected, v)
			}
		})
	}
}

func TestExtractUnencodable(t *testing.T) {
	if _, _, err := Extract(make(chan int), "id"); err == nil {
		t.Error("Expected error for a value json cannot encode")
	}
}

func TestInject(t *testing.T) {
	m := map[string]any{"name": "a"}
	if !Inject(m, "id", 1.0) {
		t.Fatal("Expected inject into map to succeed")
	}
	if m["id"] != 1.0 {
		t.Errorf("Expected id 1, got %v", m["id"])
	}

	if !Inject(m, "meta.seq", 3.0) {
		t.Fatal("Expected nested inject to succeed")
	}
	if v, _, _ := Extract(m, "meta.seq"); v != 3.0 {
		t.Errorf("Expected meta.seq 3, got %v", v)
	}

	if Inject(m, "name.x", 1.0) {
		t.Error("Expected inject through a scalar to fail")
	}
	if Inject(user{}, "id", 1.0) {
		t.Error("Expected inject into a struct to fail")
	}
}

func TestValidKeyPath(t *testing.T) {
	for _, p := range []string{"", "id", "a.b.c"} {
		if err := ValidKeyPath(p); err != nil {
			t.Errorf("Expected %q to be valid, got %v", p, err)
		}
	}
	for _, p := range []string{".", "a.", ".a", "a..b"} {
		if err := ValidKeyPath(p); err == nil {
			t.Errorf("Expected %q to be invalid", p)
		}
	}
}
