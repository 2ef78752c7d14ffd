package convert

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/value"
)

const (
	itemSeparator = ","
	pairSeparator = "="
)

func (d *Deserializer) list(req *request.Request, t action.Type, raw value.Value, path string) (any, error) {
	var items []value.Value
	switch raw.Kind() {
	case value.KindNull:
	case value.KindSequence:
		items = raw.Items()
	case value.KindString:
		if raw.IsEmptyText() {
			break
		}
		if seq, err := structured(raw, value.KindSequence); err == nil {
			items = seq.Items()
			break
		}
		for _, part := range strings.Split(raw.Text(), itemSeparator) {
			items = append(items, value.String(strings.TrimSpace(part)))
		}
	case value.KindMapping:
		return nil, convErr(path, "expected list, got mapping")
	default:
		items = []value.Value{raw}
	}

	elem := action.ParamSpec{Name: path, Type: *t.Elem}
	out := make([]any, len(items))
	for i, item := range items {
		v, err := d.convert(req, elem, item, path+"["+strconv.Itoa(i)+"]")
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return buildList(*t.Elem, out), nil
}

func (d *Deserializer) mapping(req *request.Request, t action.Type, raw value.Value, path string) (any, error) {
	var entries []value.Entry
	switch raw.Kind() {
	case value.KindNull:
	case value.KindMapping:
		for _, k := range raw.Keys() {
			v, _ := raw.Get(k)
			entries = append(entries, value.Entry{Key: k, Value: v})
		}
	case value.KindString:
		if raw.IsEmptyText() {
			break
		}
		if m, err := structured(raw, value.KindMapping); err == nil {
			return d.mapping(req, t, m, path)
		}
		for _, pair := range strings.Split(raw.Text(), itemSeparator) {
			k, v, ok := strings.Cut(pair, pairSeparator)
			if !ok {
				return nil, convErr(path, "map entry %q is not key=value", strings.TrimSpace(pair))
			}
			entries = append(entries, value.Entry{Key: strings.TrimSpace(k), Value: value.String(strings.TrimSpace(v))})
		}
	default:
		return nil, convErr(path, "expected map, got %s", raw.Kind())
	}

	keySpec := action.ParamSpec{Name: path, Type: *t.Key}
	valSpec := action.ParamSpec{Name: path, Type: *t.Elem}
	keys := make([]any, len(entries))
	vals := make([]any, len(entries))
	for i, e := range entries {
		k, err := d.convert(req, keySpec, value.String(e.Key), path+"{"+e.Key+"}")
		if err != nil {
			return nil, err
		}
		v, err := d.convert(req, valSpec, e.Value, path+"."+e.Key)
		if err != nil {
			return nil, err
		}
		keys[i], vals[i] = k, v
	}
	return buildMap(*t.Key, *t.Elem, keys, vals), nil
}

// goKind is the kind whose Go type a converted value has.
func goKind(t action.Type) action.Kind {
	if t.Kind == action.KindEncrypted && t.Elem != nil {
		return t.Elem.Kind
	}
	return t.Kind
}

func buildList(elem action.Type, items []any) any {
	switch goKind(elem) {
	case action.KindBool:
		return collect[bool](items)
	case action.KindShort:
		return collect[int16](items)
	case action.KindInt:
		return collect[int](items)
	case action.KindLong:
		return collect[int64](items)
	case action.KindFloat:
		return collect[float32](items)
	case action.KindDouble:
		return collect[float64](items)
	case action.KindString:
		return collect[string](items)
	case action.KindDate:
		return collect[time.Time](items)
	case action.KindUUID:
		return collect[uuid.UUID](items)
	}
	return collect[any](items)
}

func collect[T any](items []any) []T {
	out := make([]T, len(items))
	for i, it := range items {
		out[i], _ = it.(T)
	}
	return out
}

func buildMap(key, val action.Type, keys, vals []any) any {
	vk := goKind(val)
	switch key.Kind {
	case action.KindBool:
		return mapWithKey[bool](vk, keys, vals)
	case action.KindShort:
		return mapWithKey[int16](vk, keys, vals)
	case action.KindInt:
		return mapWithKey[int](vk, keys, vals)
	case action.KindLong:
		return mapWithKey[int64](vk, keys, vals)
	case action.KindFloat:
		return mapWithKey[float32](vk, keys, vals)
	case action.KindDouble:
		return mapWithKey[float64](vk, keys, vals)
	case action.KindDate:
		return mapWithKey[time.Time](vk, keys, vals)
	case action.KindUUID:
		return mapWithKey[uuid.UUID](vk, keys, vals)
	}
	return mapWithKey[string](vk, keys, vals)
}

func mapWithKey[K comparable](valKind action.Kind, keys, vals []any) any {
	switch valKind {
	case action.KindBool:
		return zip[K, bool](keys, vals)
	case action.KindShort:
		return zip[K, int16](keys, vals)
	case action.KindInt:
		return zip[K, int](keys, vals)
	case action.KindLong:
		return zip[K, int64](keys, vals)
	case action.KindFloat:
		return zip[K, float32](keys, vals)
	case action.KindDouble:
		return zip[K, float64](keys, vals)
	case action.KindString:
		return zip[K, string](keys, vals)
	case action.KindDate:
		return zip[K, time.Time](keys, vals)
	case action.KindUUID:
		return zip[K, uuid.UUID](keys, vals)
	}
	return zip[K, any](keys, vals)
}

func zip[K comparable, V any](keys, vals []any) map[K]V {
	out := make(map[K]V, len(keys))
	for i, k := range keys {
		kk, _ := k.(K)
		vv, _ := vals[i].(V)
		out[kk] = vv
	}
	return out
}
