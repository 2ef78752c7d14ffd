// Package value defines the tagged payload value that flows from transports
// into the deserializer.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one of Null, Bool, Number, String, Sequence or Mapping.
// Numbers keep their source text so that 64-bit integers survive untouched.
// The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	text string
	seq  []Value
	keys []string
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Number returns a number value from its textual form.
func Number(text string) Value { return Value{kind: KindNumber, text: text} }

// Int returns a number value.
func Int(n int64) Value { return Number(strconv.FormatInt(n, 10)) }

// Float returns a number value.
func Float(f float64) Value { return Number(strconv.FormatFloat(f, 'f', -1, 64)) }

// Sequence returns a sequence of values.
func Sequence(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindSequence, seq: out}
}

// Entry is one key/value pair of a mapping, used to build ordered mappings.
type Entry struct {
	Key   string
	Value Value
}

// Mapping returns a mapping preserving the order of entries. A repeated key
// keeps its first position and its last value.
func Mapping(entries ...Entry) Value {
	v := Value{kind: KindMapping, m: make(map[string]Value, len(entries))}
	for _, e := range entries {
		if _, ok := v.m[e.Key]; !ok {
			v.keys = append(v.keys, e.Key)
		}
		v.m[e.Key] = e.Value
	}
	return v
}

// MappingOf returns a mapping built from a Go map, with keys sorted.
func MappingOf(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Key: k, Value: m[k]})
	}
	return Mapping(entries...)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload; false for non-bool kinds.
func (v Value) Bool() bool { return v.b }

// Len returns the number of sequence items or mapping entries.
func (v Value) Len() int { return len(v.seq) + len(v.keys) }

// Keys returns mapping keys in insertion order.
func (v Value) Keys() []string { return append([]string(nil), v.keys...) }

// Items returns the elements of a sequence (nil for other kinds).
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return append([]Value(nil), v.seq...)
}

// Get returns the mapping entry for key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	out, ok := v.m[key]
	return out, ok
}

// Index returns the i-th element of a sequence.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindSequence || i < 0 || i >= len(v.seq) {
		return Value{}, false
	}
	return v.seq[i], true
}

// Text returns the scalar text of the value: the string itself, the number
// text, "true"/"false", or "" for null. Containers render as JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber, KindString:
		return v.text
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

// IsEmptyText reports whether the value is null, an empty string or the
// literal string "null".
func (v Value) IsEmptyText() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		t := strings.TrimSpace(v.text)
		return t == "" || t == "null"
	default:
		return false
	}
}

// Entries returns mapping entries in insertion order; nil for non-mappings.
func (v Value) Entries() []Entry {
	if v.kind != KindMapping {
		return nil
	}
	out := make([]Entry, 0, len(v.keys))
	for _, k := range v.keys {
		out = append(out, Entry{Key: k, Value: v.m[k]})
	}
	return out
}

// Merge returns a mapping holding the entries of base, then over. Keys in
// both keep their position in base and take the value from over.
// Non-mappings contribute no entries.
func Merge(base, over Value) Value {
	entries := make([]Entry, 0, base.Len()+over.Len())
	entries = append(entries, base.Entries()...)
	entries = append(entries, over.Entries()...)
	return Mapping(entries...)
}

// With returns a copy of a mapping with key set to val. Non-mappings are
// treated as empty mappings. Each call copies the mapping; build large
// mappings with Mapping instead.
func (v Value) With(key string, val Value) Value {
	entries := make([]Entry, 0, len(v.keys)+1)
	if v.kind == KindMapping {
		for _, k := range v.keys {
			entries = append(entries, Entry{Key: k, Value: v.m[k]})
		}
	}
	entries = append(entries, Entry{Key: key, Value: val})
	return Mapping(entries...)
}

// Any converts the value into plain Go values (nil, bool, json.Number,
// string, []any, map[string]any).
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return json.Number(v.text)
	case KindString:
		return v.text
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Any()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.m[k].Any()
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep equality, ignoring mapping key order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber, KindString:
		return v.text == o.text
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	default:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, item := range v.m {
			other, ok := o.m[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
}

// MarshalJSON encodes the value, keeping mapping order.
func (v Value) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	if err := v.writeJSON(&sb); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func (v Value) writeJSON(sb *strings.Builder) error {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if _, err := strconv.ParseFloat(v.text, 64); err != nil {
			return fmt.Errorf("value: invalid number %q", v.text)
		}
		sb.WriteString(v.text)
	case KindString:
		data, err := json.Marshal(v.text)
		if err != nil {
			return err
		}
		sb.Write(data)
	case KindSequence:
		sb.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := item.writeJSON(sb); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case KindMapping:
		sb.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(key)
			sb.WriteByte(':')
			if err := v.m[k].writeJSON(sb); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON decodes JSON into the value.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
