// Package convert turns the loosely typed payload of a request into the
// typed argument list an action declares.
//
// Go types produced per parameter kind:
//
//	bool    bool          short   int16
//	int     int           long    int64
//	float   float32       double  float64
//	string  string        date    time.Time
//	uuid    uuid.UUID     raw     *request.Request
//	list    []T for scalar elements, []any otherwise
//	map     map[K]V for scalar values, map[K]any otherwise
//	object  action.Fields, or the value returned by the type's Build
//
// Encrypted parameters produce the Go type of their payload kind.
package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/secret"
	"github.com/morezero/action-dispatcher/pkg/value"
)

// ConversionError names the parameter that could not be converted.
type ConversionError struct {
	Param  string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Param, e.Reason)
}

func convErr(path, format string, args ...any) *ConversionError {
	return &ConversionError{Param: path, Reason: fmt.Sprintf(format, args...)}
}

// CustomConverter builds a domain value for a named type. It is consulted
// before the object rule.
type CustomConverter func(req *request.Request, raw value.Value, spec action.ParamSpec) (any, error)

// Deserializer converts request data. It is immutable after construction
// and safe for concurrent use.
type Deserializer struct {
	decryptor secret.Decryptor
	custom    map[string]CustomConverter
	location  *time.Location
}

// NewDeserializerParams holds parameters for NewDeserializer.
type NewDeserializerParams struct {
	// Decryptor opens encrypted parameters. Without one they convert to
	// their payload's zero value.
	Decryptor  secret.Decryptor
	Converters map[string]CustomConverter
	// Location is used for dates without a zone. Defaults to UTC.
	Location *time.Location
}

// NewDeserializer creates a deserializer.
func NewDeserializer(params NewDeserializerParams) *Deserializer {
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	custom := make(map[string]CustomConverter, len(params.Converters))
	for name, fn := range params.Converters {
		custom[name] = fn
	}
	return &Deserializer{decryptor: params.Decryptor, custom: custom, location: loc}
}

// Convert produces one argument per spec, in declaration order. Named data
// is read by parameter name; sequence data is read by position, skipping
// raw parameters.
func (d *Deserializer) Convert(req *request.Request, specs []action.ParamSpec) (action.Args, error) {
	args := make(action.Args, len(specs))
	pos := 0
	for i, spec := range specs {
		if spec.Type.Kind == action.KindRaw {
			args[i] = req
			continue
		}
		var (
			raw value.Value
			ok  bool
		)
		if req.IsPositional() {
			raw, ok = req.At(pos)
			pos++
		} else {
			raw, ok = req.Get(spec.Name)
		}
		v, err := d.param(req, spec, raw, ok, spec.Name)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// param applies presence rules then converts. Null, "null" and "" count
// as absent except for string, list and map, which normalize them to empty.
func (d *Deserializer) param(req *request.Request, spec action.ParamSpec, raw value.Value, present bool, path string) (any, error) {
	t := spec.Type
	if t.Kind == action.KindRaw {
		return req, nil
	}
	if present && raw.IsEmptyText() {
		switch t.Kind {
		case action.KindString, action.KindList, action.KindMap:
		default:
			present = false
		}
	}
	if (!present || raw.IsNull()) && spec.Default != nil {
		raw, present = *spec.Default, true
	}
	if !present {
		switch {
		case t.Kind == action.KindString:
			return "", nil
		case spec.Required:
			return nil, convErr(path, "missing required value")
		}
		return zeroOf(t), nil
	}
	return d.convert(req, spec, raw, path)
}

func (d *Deserializer) convert(req *request.Request, spec action.ParamSpec, raw value.Value, path string) (any, error) {
	t := spec.Type
	if t.Kind == action.KindObject || t.Kind == action.KindCustom {
		if fn, ok := d.custom[t.Name]; ok && t.Name != "" {
			v, err := fn(req, raw, spec)
			if err != nil {
				return nil, convErr(path, "%v", err)
			}
			return v, nil
		}
	}

	switch t.Kind {
	case action.KindRaw:
		return req, nil
	case action.KindString:
		return stringOf(raw), nil
	case action.KindEncrypted:
		return d.encrypted(req, spec, raw, path)
	case action.KindList:
		return d.list(req, t, raw, path)
	case action.KindMap:
		return d.mapping(req, t, raw, path)
	case action.KindObject:
		return d.object(req, t, raw, path)
	case action.KindCustom:
		return nil, convErr(path, "no converter registered for type %s", t.Name)
	}
	return d.scalar(t.Kind, raw, path)
}

func stringOf(raw value.Value) string {
	if raw.IsEmptyText() {
		return ""
	}
	return raw.Text()
}

func (d *Deserializer) encrypted(req *request.Request, spec action.ParamSpec, raw value.Value, path string) (any, error) {
	payload := *spec.Type.Elem
	if d.decryptor == nil {
		return zeroOf(payload), nil
	}
	plain, err := d.decryptor.Decrypt(raw.Text())
	if err != nil {
		return nil, convErr(path, "decrypt: %v", err)
	}
	return d.convert(req, action.ParamSpec{Name: spec.Name, Type: payload}, value.String(plain), path)
}

func (d *Deserializer) object(req *request.Request, t action.Type, raw value.Value, path string) (any, error) {
	src, err := structured(raw, value.KindMapping)
	if err != nil {
		return nil, convErr(path, "expected object: %v", err)
	}
	fields := make(action.Fields, len(t.Fields))
	for _, f := range t.Fields {
		fv, ok := src.Get(f.Name)
		v, err := d.param(req, f, fv, ok, path+"."+f.Name)
		if err != nil {
			return nil, err
		}
		fields[f.Name] = v
	}
	if t.Build == nil {
		return fields, nil
	}
	built, err := t.Build(fields)
	if err != nil {
		return nil, convErr(path, "%v", err)
	}
	return built, nil
}

// structured accepts a value of kind want, or a JSON string encoding one.
func structured(raw value.Value, want value.Kind) (value.Value, error) {
	if raw.Kind() == want {
		return raw, nil
	}
	if raw.Kind() == value.KindString {
		text := strings.TrimSpace(raw.Text())
		if (want == value.KindMapping && strings.HasPrefix(text, "{")) ||
			(want == value.KindSequence && strings.HasPrefix(text, "[")) {
			parsed, err := value.Parse([]byte(text))
			if err != nil {
				return value.Value{}, err
			}
			if parsed.Kind() == want {
				return parsed, nil
			}
		}
	}
	return value.Value{}, fmt.Errorf("got %s", raw.Kind())
}
