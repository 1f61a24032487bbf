package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidKey is returned when a key part is not a primitive value.
var ErrInvalidKey = errors.New("query: invalid key")

// Key is the fingerprint of one logical query: an ordered list of primitive
// values, usually a resource name followed by its parameters.
type Key []any

// NewKey builds a Key, rejecting parts that would not survive a round trip
// through JSON unchanged.
func NewKey(parts ...any) (Key, error) {
	for i, p := range parts {
		if !isPrimitive(p) {
			return nil, fmt.Errorf("%w: part %d has type %T", ErrInvalidKey, i, p)
		}
	}
	return Key(parts), nil
}

// MustKey is like NewKey but panics on an invalid part. Intended for keys
// built from literals.
func MustKey(parts ...any) Key {
	k, err := NewKey(parts...)
	if err != nil {
		panic(err)
	}
	return k
}

// Hash returns the stable text form of the key. Two keys identify the same
// query iff their hashes are equal.
func (k Key) Hash() string {
	if len(k) == 0 {
		return "[]"
	}
	b, err := json.Marshal([]any(k))
	if err != nil {
		// only reachable for keys that bypassed NewKey
		return fmt.Sprintf("%v", []any(k))
	}
	return string(b)
}

func (k Key) String() string { return k.Hash() }

func isPrimitive(v any) bool {
	switch x := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0)
	case float64:
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	default:
		return false
	}
}
