package keys

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"sort"
	"testing"
	"time"
)

func TestOrdering(t *testing.T) {
	date := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	// listed in ascending key order
	ordered := []any{
		math.Inf(-1),
		-1000.5,
		-1,
		0,
		0.25,
		1,
		int64(2),
		uint8(3),
		1e10,
		math.Inf(1),
		date,
		date.Add(time.Millisecond),
		"",
		"a",
		"a\x00",
		"a\x00b",
		"ab",
		"b",
		[]byte{},
		[]byte{0},
		[]byte{0, 0},
		[]byte{1},
		[]any{},
		[]any{1},
		[]any{1, "a"},
		[]any{2},
		[]any{"a"},
		[]string{"b"},
	}

	for i := 1; i < len(ordered); i++ {
		c, err := Compare(ordered[i-1], ordered[i])
		if err != nil {
			t.Fatalf("Compare(%v, %v) failed: %v", ordered[i-1], ordered[i], err)
		}
		if c >= 0 {
			t.Errorf("Expected %#v < %#v", ordered[i-1], ordered[i])
		}
	}
}

func TestSortEncoded(t *testing.T) {
	in := []any{"c", 3, "a", 1, []byte("x"), 2, "b"}
	want := []any{float64(1), float64(2), float64(3), "a", "b", "c", []byte("x")}

	enc := make([][]byte, len(in))
	for i, k := range in {
		enc[i] = MustEncode(k)
	}
	sort.Slice(enc, func(i, j int) bool { return bytes.Compare(enc[i], enc[j]) < 0 })

	for i, e := range enc {
		got, err := DecodeAll(e)
		if err != nil {
			t.Fatalf("DecodeAll failed: %v", err)
		}
		if !reflect.DeepEqual(got, want[i]) {
			t.Errorf("Position %d: expected %#v, got %#v", i, want[i], got)
		}
	}
}

func TestDecode(t *testing.T) {
	date := time.UnixMilli(1700000000123).UTC()
	cases := []struct {
		name string
		in   any
		want any
	}{
		{"int", 42, float64(42)},
		{"negative", -7.5, -7.5},
		{"zero", 0, float64(0)},
		{"string", "hello", "hello"},
		{"string with nul", "a\x00b", "a\x00b"},
		{"binary", []byte{0, 1, 0xFF}, []byte{0, 1, 0xFF}},
		{"date", date, date},
		{"array", []any{1, "x", []any{"y"}}, []any{float64(1), "x", []any{"y"}}},
		{"empty array", []any{}, []any{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := Encode(tc.in)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := DecodeAll(enc)
			if err != nil {
				t.Fatalf("DecodeAll failed: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Expected %#v, got %#v", tc.want, got)
			}
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	invalid := []any{nil, math.NaN(), true, struct{}{}, map[string]any{}, []any{1, nil}}
	for _, k := range invalid {
		if Valid(k) {
			t.Errorf("Expected %#v to be invalid", k)
		}
		if _, err := Encode(k); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Expected ErrInvalidKey for %#v, got %v", k, err)
		}
	}
}

func TestSplitComposite(t *testing.T) {
	ik := MustEncode("name")
	pk := MustEncode(7)
	composite := append(append([]byte{}, ik...), pk...)

	first, rest, err := Split(composite)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if !bytes.Equal(first, ik) || !bytes.Equal(rest, pk) {
		t.Errorf("Split returned wrong parts")
	}

	if bytes.Compare(composite, Successor(ik)) >= 0 {
		t.Errorf("Successor should sort after every entry of the group")
	}
	next := append(MustEncode("namf"), pk...)
	if bytes.Compare(Successor(ik), next) >= 0 {
		t.Errorf("Successor should sort before the next group")
	}
}

func TestMalformed(t *testing.T) {
	for _, b := range [][]byte{nil, {0x99}, {tagNumber, 1, 2}, {tagString, 'a'}, {tagString, 0, 7}, {tagArray, tagNumber}} {
		if _, err := DecodeAll(b); err == nil {
			t.Errorf("Expected error for %v", b)
		}
	}
}
