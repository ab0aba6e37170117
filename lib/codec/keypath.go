package codec

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Extract evaluates a dotted key path ("id", "address.city") against value.
// The empty path selects the value itself. Values that are not already a
// generic map are normalized through a json round trip, so struct fields are
// addressed by their json names. The boolean is false if a path segment does
// not exist.
func Extract(value any, keyPath string) (any, bool, error) {
	if keyPath == "" {
		return value, true, nil
	}

	cur, err := generic(value)
	if err != nil {
		return nil, false, err
	}

	for _, seg := range strings.Split(keyPath, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false, nil
		}
		if cur, ok = m[seg]; !ok {
			return nil, false, nil
		}
	}
	return cur, true, nil
}

// Inject sets the key at keyPath inside value, creating intermediate maps.
// Only map[string]any values can receive a key, everything else returns false.
func Inject(value any, keyPath string, key any) bool {
	m, ok := value.(map[string]any)
	if !ok || keyPath == "" {
		return false
	}

	segs := strings.Split(keyPath, ".")
	for _, seg := range segs[:len(segs)-1] {
		next, exists := m[seg]
		if !exists {
			child := map[string]any{}
			m[seg] = child
			m = child
			continue
		}
		if m, ok = next.(map[string]any); !ok {
			return false
		}
	}
	m[segs[len(segs)-1]] = key
	return true
}

// ValidKeyPath reports whether p is a syntactically valid key path.
func ValidKeyPath(p string) error {
	if p == "" {
		return nil
	}
	for _, seg := range strings.Split(p, ".") {
		if seg == "" {
			return fmt.Errorf("invalid key path %q: empty segment", p)
		}
	}
	return nil
}

// generic converts value to the representation json decoding produces.
func generic(value any) (any, error) {
	switch value.(type) {
	case map[string]any, nil:
		return value, nil
	}

	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("value cannot be inspected for key paths: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
