package engine

import (
	"bytes"

	"github.com/ValentinKolb/fKV/lib/engine/keys"
)

// KeyRange restricts reads, cursors, counts and deletes to an interval of
// keys. A nil bound is unbounded.
type KeyRange struct {
	Lower     any
	Upper     any
	LowerOpen bool
	UpperOpen bool
}

// Only returns a range containing exactly key
func Only(key any) (*KeyRange, error) {
	if !keys.Valid(key) {
		return nil, NewError(DataError, "invalid key %v", key)
	}
	return &KeyRange{Lower: key, Upper: key}, nil
}

// LowerBound returns a range of all keys above key (excluding it if open)
func LowerBound(key any, open bool) (*KeyRange, error) {
	if !keys.Valid(key) {
		return nil, NewError(DataError, "invalid lower bound %v", key)
	}
	return &KeyRange{Lower: key, LowerOpen: open}, nil
}

// UpperBound returns a range of all keys below key (excluding it if open)
func UpperBound(key any, open bool) (*KeyRange, error) {
	if !keys.Valid(key) {
		return nil, NewError(DataError, "invalid upper bound %v", key)
	}
	return &KeyRange{Upper: key, UpperOpen: open}, nil
}

// Bound returns a range between lower and upper
func Bound(lower, upper any, lowerOpen, upperOpen bool) (*KeyRange, error) {
	r := &KeyRange{Lower: lower, Upper: upper, LowerOpen: lowerOpen, UpperOpen: upperOpen}
	if _, _, err := r.Encode(); err != nil {
		return nil, err
	}
	return r, nil
}

// Encode returns the encoded bounds (nil when unbounded) and validates the range.
func (r *KeyRange) Encode() (lower, upper []byte, err error) {
	if r == nil {
		return nil, nil, nil
	}
	if r.Lower != nil {
		if lower, err = keys.Encode(r.Lower); err != nil {
			return nil, nil, WrapError(DataError, err, "invalid lower bound")
		}
	}
	if r.Upper != nil {
		if upper, err = keys.Encode(r.Upper); err != nil {
			return nil, nil, WrapError(DataError, err, "invalid upper bound")
		}
	}
	if lower != nil && upper != nil {
		c := bytes.Compare(lower, upper)
		if c > 0 || (c == 0 && (r.LowerOpen || r.UpperOpen)) {
			return nil, nil, NewError(DataError, "empty key range")
		}
	}
	return lower, upper, nil
}

// Includes reports whether key lies inside the range
func (r *KeyRange) Includes(key any) (bool, error) {
	k, err := keys.Encode(key)
	if err != nil {
		return false, WrapError(DataError, err, "invalid key")
	}
	lower, upper, err := r.Encode()
	if err != nil {
		return false, err
	}
	return InRange(k, lower, upper, r != nil && r.LowerOpen, r != nil && r.UpperOpen), nil
}

// InRange checks an encoded key against encoded bounds
func InRange(k, lower, upper []byte, lowerOpen, upperOpen bool) bool {
	if lower != nil {
		c := bytes.Compare(k, lower)
		if c < 0 || (c == 0 && lowerOpen) {
			return false
		}
	}
	if upper != nil {
		c := bytes.Compare(k, upper)
		if c > 0 || (c == 0 && upperOpen) {
			return false
		}
	}
	return true
}
