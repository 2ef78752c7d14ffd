package value

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when Parse receives malformed JSON.
var ErrInvalidJSON = errors.New("value: invalid json")

// Parse decodes JSON bytes into a Value. Empty input yields Null.
func Parse(data []byte) (Value, error) {
	if len(data) == 0 {
		return Null(), nil
	}
	if !gjson.ValidBytes(data) {
		return Null(), ErrInvalidJSON
	}
	return FromResult(gjson.ParseBytes(data)), nil
}

// FromResult converts a gjson result into a Value.
func FromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Number(r.Raw)
	case gjson.String:
		return String(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			items := make([]Value, 0)
			r.ForEach(func(_, item gjson.Result) bool {
				items = append(items, FromResult(item))
				return true
			})
			return Value{kind: KindSequence, seq: items}
		}
		if r.IsObject() {
			entries := make([]Entry, 0)
			r.ForEach(func(key, item gjson.Result) bool {
				entries = append(entries, Entry{Key: key.String(), Value: FromResult(item)})
				return true
			})
			return Mapping(entries...)
		}
	}
	return Null()
}

// FromAny converts native Go values into a Value. Supported: nil, Value,
// bool, integer and float kinds, string, json.Number, time.Time (RFC3339),
// fmt.Stringer, slices/arrays and maps with string keys. Anything else is
// an error.
func FromAny(in any) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		return Number(x.String()), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint8:
		return Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint16:
		return Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint32:
		return Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint64:
		return Number(strconv.FormatUint(x, 10)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case time.Time:
		return String(x.Format(time.RFC3339)), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Null(), err
			}
			items[i] = v
		}
		return Value{kind: KindSequence, seq: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]Entry, 0, len(keys))
		for _, k := range keys {
			v, err := FromAny(x[k])
			if err != nil {
				return Null(), err
			}
			entries = append(entries, Entry{Key: k, Value: v})
		}
		return Mapping(entries...), nil
	case fmt.Stringer:
		return String(x.String()), nil
	}
	return fromReflect(reflect.ValueOf(in))
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return FromAny(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Null(), err
			}
			items[i] = v
		}
		return Value{kind: KindSequence, seq: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Null(), fmt.Errorf("value: unsupported map key type %s", rv.Type().Key())
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := FromAny(iter.Value().Interface())
			if err != nil {
				return Null(), err
			}
			m[iter.Key().String()] = v
		}
		return MappingOf(m), nil
	}
	return Null(), fmt.Errorf("value: unsupported type %T", rv.Interface())
}

// MustFromAny is FromAny for literals known to be convertible.
func MustFromAny(in any) Value {
	v, err := FromAny(in)
	if err != nil {
		panic(err)
	}
	return v
}
