package license

import (
	"bytes"
	"encoding/json"
)

// Limits is a string mapping that remembers insertion order. The order is
// part of the signing payload, so it must follow the order in which keys
// were read from the license section.
type Limits struct {
	keys   []string
	values map[string]string
}

// NewLimits builds Limits from alternating key/value pairs.
func NewLimits(pairs ...string) Limits {
	var l Limits
	for i := 0; i+1 < len(pairs); i += 2 {
		l.Set(pairs[i], pairs[i+1])
	}
	return l
}

// Set stores value under key. An existing key keeps its position.
func (l *Limits) Set(key, value string) {
	if l.values == nil {
		l.values = make(map[string]string)
	}
	if _, ok := l.values[key]; !ok {
		l.keys = append(l.keys, key)
	}
	l.values[key] = value
}

// Get returns the value stored under key.
func (l Limits) Get(key string) (string, bool) {
	v, ok := l.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (l Limits) Keys() []string {
	out := make([]string, len(l.keys))
	copy(out, l.keys)
	return out
}

func (l Limits) Len() int { return len(l.keys) }

// Range calls fn for every entry in insertion order until fn returns false.
func (l Limits) Range(fn func(key, value string) bool) {
	for _, k := range l.keys {
		if !fn(k, l.values[k]) {
			return
		}
	}
}

// Clone returns a deep copy.
func (l Limits) Clone() Limits {
	var c Limits
	l.Range(func(k, v string) bool {
		c.Set(k, v)
		return true
	})
	return c
}

// MarshalJSON writes an object whose members keep insertion order.
func (l Limits) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range l.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(l.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
