// Package keys encodes engine keys into byte strings whose lexicographic order
// equals the key order: numbers < dates < strings < binary < arrays. Every
// encoding is self-delimiting, so encodings can be concatenated (index entries
// store the index key followed by the primary key) and split again.
package keys

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"
)

// type tags, in key order
const (
	tagNumber byte = 0x10
	tagDate   byte = 0x20
	tagString byte = 0x30
	tagBinary byte = 0x40
	tagArray  byte = 0x50

	escape     byte = 0x00
	escapedNul byte = 0xFF
	terminator byte = 0x01
	arrayEnd   byte = 0x00
)

// ErrInvalidKey is returned for values that are not valid keys.
var ErrInvalidKey = errors.New("invalid key")

// ErrMalformed is returned when decoding bytes that were not produced by Encode.
var ErrMalformed = errors.New("malformed key encoding")

// Encode returns the ordered encoding of k.
// Valid keys are Go numbers (not NaN), time.Time, string, []byte and
// []any / typed slices of valid keys.
func Encode(k any) ([]byte, error) {
	return appendKey(nil, k, 0)
}

// MustEncode is like Encode but panics on invalid keys. Meant for constants.
func MustEncode(k any) []byte {
	b, err := Encode(k)
	if err != nil {
		panic(err)
	}
	return b
}

// Valid reports whether k can be used as a key.
func Valid(k any) bool {
	_, err := Encode(k)
	return err == nil
}

// Compare compares two keys. Both must be valid.
func Compare(a, b any) (int, error) {
	ea, err := Encode(a)
	if err != nil {
		return 0, err
	}
	eb, err := Encode(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ea, eb), nil
}

const maxDepth = 32

func appendKey(dst []byte, k any, depth int) ([]byte, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: array nesting too deep", ErrInvalidKey)
	}

	switch v := k.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrInvalidKey)
	case float64:
		return appendNumber(dst, v)
	case float32:
		return appendNumber(dst, float64(v))
	case int:
		return appendNumber(dst, float64(v))
	case int8:
		return appendNumber(dst, float64(v))
	case int16:
		return appendNumber(dst, float64(v))
	case int32:
		return appendNumber(dst, float64(v))
	case int64:
		return appendNumber(dst, float64(v))
	case uint:
		return appendNumber(dst, float64(v))
	case uint8:
		return appendNumber(dst, float64(v))
	case uint16:
		return appendNumber(dst, float64(v))
	case uint32:
		return appendNumber(dst, float64(v))
	case uint64:
		return appendNumber(dst, float64(v))
	case time.Time:
		dst = append(dst, tagDate)
		return appendFloat(dst, float64(v.UnixMilli())), nil
	case string:
		dst = append(dst, tagString)
		return appendEscaped(dst, []byte(v)), nil
	case []byte:
		dst = append(dst, tagBinary)
		return appendEscaped(dst, v), nil
	case []any:
		dst = append(dst, tagArray)
		var err error
		for _, e := range v {
			if dst, err = appendKey(dst, e, depth+1); err != nil {
				return nil, err
			}
		}
		return append(dst, arrayEnd), nil
	}

	// typed slices such as []string or []int
	rv := reflect.ValueOf(k)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		dst = append(dst, tagArray)
		var err error
		for i := 0; i < rv.Len(); i++ {
			if dst, err = appendKey(dst, rv.Index(i).Interface(), depth+1); err != nil {
				return nil, err
			}
		}
		return append(dst, arrayEnd), nil
	}

	return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidKey, k)
}

func appendNumber(dst []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) {
		return nil, fmt.Errorf("%w: NaN", ErrInvalidKey)
	}
	dst = append(dst, tagNumber)
	return appendFloat(dst, f), nil
}

// appendFloat writes f so that unsigned byte order equals numeric order:
// positive numbers get the sign bit flipped, negative numbers all bits.
func appendFloat(dst []byte, f float64) []byte {
	if f == 0 {
		f = 0 // normalizes -0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64(dst, bits)
}

func readFloat(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

// appendEscaped writes p with 0x00 escaped as 0x00 0xFF and terminated by 0x00 0x01.
func appendEscaped(dst, p []byte) []byte {
	for _, c := range p {
		if c == escape {
			dst = append(dst, escape, escapedNul)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, escape, terminator)
}

func readEscaped(b []byte) (out []byte, rest []byte, err error) {
	out = make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != escape {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			return nil, nil, ErrMalformed
		}
		switch b[i+1] {
		case escapedNul:
			out = append(out, 0)
			i++
		case terminator:
			return out, b[i+2:], nil
		default:
			return nil, nil, ErrMalformed
		}
	}
	return nil, nil, ErrMalformed
}

// Decode decodes one key from the front of b and returns the remaining bytes.
// Numbers decode to float64, dates to time.Time (UTC), arrays to []any.
func Decode(b []byte) (key any, rest []byte, err error) {
	if len(b) == 0 {
		return nil, nil, ErrMalformed
	}

	switch b[0] {
	case tagNumber:
		if len(b) < 9 {
			return nil, nil, ErrMalformed
		}
		return readFloat(b[1:9]), b[9:], nil
	case tagDate:
		if len(b) < 9 {
			return nil, nil, ErrMalformed
		}
		return time.UnixMilli(int64(readFloat(b[1:9]))).UTC(), b[9:], nil
	case tagString:
		s, rest, err := readEscaped(b[1:])
		if err != nil {
			return nil, nil, err
		}
		return string(s), rest, nil
	case tagBinary:
		return readEscaped(b[1:])
	case tagArray:
		arr := []any{}
		rest := b[1:]
		for {
			if len(rest) == 0 {
				return nil, nil, ErrMalformed
			}
			if rest[0] == arrayEnd {
				return arr, rest[1:], nil
			}
			var elem any
			if elem, rest, err = Decode(rest); err != nil {
				return nil, nil, err
			}
			arr = append(arr, elem)
		}
	}
	return nil, nil, ErrMalformed
}

// DecodeAll decodes b, which must hold exactly one key.
func DecodeAll(b []byte) (any, error) {
	k, rest, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrMalformed
	}
	return k, nil
}

// Split returns the first encoded key of b and the remainder without
// decoding the key.
func Split(b []byte) (first, rest []byte, err error) {
	_, rest, err = Decode(b)
	if err != nil {
		return nil, nil, err
	}
	return b[:len(b)-len(rest)], rest, nil
}

// Successor returns a position after every composite entry that starts with
// the encoded key p. Encoded keys never start with 0xFF, so p+0xFF sorts after
// p followed by any other encoded key.
func Successor(p []byte) []byte {
	out := make([]byte, len(p), len(p)+1)
	copy(out, p)
	return append(out, 0xFF)
}
