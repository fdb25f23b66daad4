/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package wire defines the protocol values exchanged between clientlets and
// servlets: a small closed sum type for scalar, list and map payloads, plus
// the request envelope and action table used to dispatch them.
package wire

import (
	"encoding/json"
	"sort"
)

// Kind identifies which branch of Value is populated.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindStr
	KindList
	KindMap
)

// Value is an immutable sum type: Null, Int, Str, List(Value) or Map(Str,Value).
// A single field can carry either a scalar or a list across different calls
// without the caller needing to know which shape to expect in advance.
type Value struct {
	kind Kind
	i    int64
	s    string
	list []Value
	dict map[string]Value
	// keys preserves Map insertion order for Keys; MarshalJSON does not use
	// it and writes object keys in sorted order.
	keys []string
}

func Null() Value { return Value{kind: KindNull} }

func Int(v int64) Value { return Value{kind: KindInt, i: v} }

func Str(v string) Value { return Value{kind: KindStr, s: v} }

func List(v ...Value) Value { return Value{kind: KindList, list: v} }

// NewMap builds a Map value, preserving the order keys are supplied in.
func NewMap() Value {
	return Value{kind: KindMap, dict: map[string]Value{}}
}

// Set stores key=val in a Map value and returns the receiver for chaining.
// Set is a no-op if the receiver is not a Map.
func (v Value) Set(key string, val Value) Value {
	if v.kind != KindMap {
		return v
	}
	if _, ok := v.dict[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.dict[key] = val
	return v
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) Str() (string, bool) {
	if v.kind != KindStr {
		return "", false
	}
	return v.s, true
}

func (v Value) List() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	val, ok := v.dict[key]
	return val, ok
}

// Keys returns the Map's keys in insertion order, or nil if not a Map.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// MarshalJSON mirrors how each Kind round-trips through JSON: Null -> null,
// Int -> number, Str -> string, List -> array, Map -> object.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return json.Marshal(v.i)
	case KindStr:
		return json.Marshal(v.s)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		m := make(map[string]Value, len(v.dict))
		for k, val := range v.dict {
			m[k] = val
		}
		return json.Marshal(m)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

func fromAny(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case float64:
		return Int(int64(t))
	case json.Number:
		i, _ := t.Int64()
		return Int(i)
	case string:
		return Str(t)
	case []interface{}:
		list := make([]Value, len(t))
		for i, e := range t {
			list[i] = fromAny(e)
		}
		return List(list...)
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		mv := NewMap()
		for _, k := range keys {
			mv = mv.Set(k, fromAny(t[k]))
		}
		return mv
	default:
		return Null()
	}
}

// FromStrings builds a List(Str) from plain strings, a convenience for
// callers building request arguments.
func FromStrings(ss []string) Value {
	list := make([]Value, len(ss))
	for i, s := range ss {
		list[i] = Str(s)
	}
	return List(list...)
}

// Strings converts a List(Str) back into a []string, skipping any non-string
// elements.
func (v Value) Strings() []string {
	list, ok := v.List()
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.Str(); ok {
			out = append(out, s)
		}
	}
	return out
}
