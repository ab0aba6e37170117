package store

import (
	"testing"
)

func TestParseIndexes(t *testing.T) {
	defs, err := parseIndexes([]string{"name=name", "email=contact.email:unique", "tags=tags:multi:unique"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("Expected 3 indexes, got %d", len(defs))
	}
	if defs[0].name != "name" || defs[0].keyPath != "name" || defs[0].opts.Unique || defs[0].opts.MultiEntry {
		t.Errorf("Unexpected index %+v", defs[0])
	}
	if defs[1].keyPath != "contact.email" || !defs[1].opts.Unique {
		t.Errorf("Expected unique index on contact.email, got %+v", defs[1])
	}
	if !defs[2].opts.Unique || !defs[2].opts.MultiEntry {
		t.Errorf("Expected unique multi entry index, got %+v", defs[2])
	}

	for _, bad := range []string{"name", "=name", "name=", "name=name:sparse"} {
		if _, err := parseIndexes([]string{bad}); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}
