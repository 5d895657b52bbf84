package bencode

import (
	"bytes"
	"slices"
)

// Value is one of Integer, String, List or *Dict.
type Value interface {
	bencodeValue()
}

type Integer int64

type String []byte

type List []Value

// Dict is a dictionary that remembers the order its keys were inserted in.
// Encoding never relies on that order.
type Dict struct {
	keys   []string
	values map[string]Value
}

func (Integer) bencodeValue() {}
func (String) bencodeValue()  {}
func (List) bencodeValue()    {}
func (*Dict) bencodeValue()   {}

func NewDict() *Dict {
	return &Dict{values: make(map[string]Value)}
}

// Set stores v under key. Re-setting an existing key keeps its original position.
func (d *Dict) Set(key string, v Value) {
	if d.values == nil {
		d.values = make(map[string]Value)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

func (d *Dict) Get(key string) (Value, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

func (d *Dict) Delete(key string) {
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	d.keys = slices.DeleteFunc(d.keys, func(k string) bool { return k == key })
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}
	return slices.Clone(d.keys)
}

// SortedKeys returns the keys in ascending byte order.
func (d *Dict) SortedKeys() []string {
	keys := d.Keys()
	slices.Sort(keys)
	return keys
}

func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

func (d *Dict) Int(key string) (int64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	i, ok := v.(Integer)
	return int64(i), ok
}

func (d *Dict) Bytes(key string) ([]byte, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	s, ok := v.(String)
	return []byte(s), ok
}

func (d *Dict) ListOf(key string) (List, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	l, ok := v.(List)
	return l, ok
}

func (d *Dict) DictOf(key string) (*Dict, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*Dict)
	return sub, ok
}

// Equal reports whether a and b hold the same content. Dictionaries are
// compared by their key/value pairs, not by insertion order.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Integer:
		bv, ok := b.(Integer)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && bytes.Equal(av, bv)
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Dict:
		bv, ok := b.(*Dict)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, k := range av.keys {
			other, ok := bv.Get(k)
			if !ok || !Equal(av.values[k], other) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts v into plain Go values for display: strings become
// string, lists []any and dictionaries map[string]any.
func Interface(v Value) any {
	switch v := v.(type) {
	case Integer:
		return int64(v)
	case String:
		return string(v)
	case List:
		out := make([]any, 0, len(v))
		for _, e := range v {
			out = append(out, Interface(e))
		}
		return out
	case *Dict:
		out := make(map[string]any, v.Len())
		for _, k := range v.Keys() {
			out[k] = Interface(v.values[k])
		}
		return out
	}
	return nil
}
