package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies a cached read: a resource name followed by its parameters.
// Two keys are equal when their elements are equal in order.
type Key []string

// NewKey builds a key from a resource name and parameters.
// Parameters are rendered with fmt's %v verb.
func NewKey(resource string, params ...any) Key {
	k := make(Key, 0, len(params)+1)
	k = append(k, resource)
	for _, p := range params {
		k = append(k, fmt.Sprint(p))
	}
	return k
}

// With returns a new key with extra parameters appended.
func (k Key) With(params ...any) Key {
	out := make(Key, len(k), len(k)+len(params))
	copy(out, k)
	for _, p := range params {
		out = append(out, fmt.Sprint(p))
	}
	return out
}

// Resource is the first element of the key.
func (k Key) Resource() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// HasPrefix reports whether the leading elements of k equal prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// String is the canonical encoding used for map lookups and dedupe.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, el := range k {
		parts[i] = strconv.Quote(el)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
