package util

import (
	"reflect"
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("Expected lines of at most %d chars, got %d: %q", Wrap, len(line), line)
		}
	}
}

func TestParseKey(t *testing.T) {
	tests := map[string]any{
		"42":    42.0,
		"-1.5":  -1.5,
		"alice": "alice",
		"=42":   "42",
	}
	for in, expected := range tests {
		if got := ParseKey(in); got != expected {
			t.Errorf("Expected %#v for %q, got %#v", expected, in, got)
		}
	}
}

func TestParseValue(t *testing.T) {
	if got := ParseValue(`{"id":1,"name":"a"}`); !reflect.DeepEqual(got, map[string]any{"id": 1.0, "name": "a"}) {
		t.Errorf("Expected object, got %#v", got)
	}
	if got := ParseValue("not json"); got != "not json" {
		t.Errorf("Expected raw string, got %#v", got)
	}
	if got := FormatValue(map[string]any{"a": 1.0}); got != `{"a":1}` {
		t.Errorf("Expected {\"a\":1}, got %s", got)
	}
}
