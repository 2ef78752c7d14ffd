package convert

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/secret"
	"github.com/morezero/action-dispatcher/pkg/value"
)

func reqFrom(t *testing.T, data string) *request.Request {
	t.Helper()
	v, err := value.Parse([]byte(data))
	if err != nil {
		t.Fatalf("convert:deserializer_test - bad fixture %s: %v", data, err)
	}
	req, err := request.New(request.Params{Path: "app.test.run", Source: request.SourceWeb, Data: v})
	if err != nil {
		t.Fatalf("convert:deserializer_test - request.New failed: %v", err)
	}
	return req
}

func convertOne(t *testing.T, d *Deserializer, data string, spec action.ParamSpec) (any, error) {
	t.Helper()
	args, err := d.Convert(reqFrom(t, data), []action.ParamSpec{spec})
	if err != nil {
		return nil, err
	}
	return args[0], nil
}

func TestConvert_Scalars(t *testing.T) {
	d := NewDeserializer(NewDeserializerParams{})
	tests := []struct {
		name string
		data string
		spec action.ParamSpec
		want any
	}{
		{"bool native", `{"v":true}`, action.Required("v", action.Bool), true},
		{"bool text", `{"v":"false"}`, action.Required("v", action.Bool), false},
		{"short", `{"v":"12"}`, action.Required("v", action.Short), int16(12)},
		{"int native", `{"v":42}`, action.Required("v", action.Int), 42},
		{"int text", `{"v":" 42 "}`, action.Required("v", action.Int), 42},
		{"int integral float", `{"v":7.0}`, action.Required("v", action.Int), 7},
		{"long big", `{"v":9007199254740993}`, action.Required("v", action.Long), int64(9007199254740993)},
		{"float", `{"v":"1.5"}`, action.Required("v", action.Float), float32(1.5)},
		{"double", `{"v":2.25}`, action.Required("v", action.Double), 2.25},
		{"string from number", `{"v":12}`, action.Required("v", action.String), "12"},
		{"uuid", `{"v":"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`, action.Required("v", action.UUID), uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")},
		{"optional absent int", `{}`, action.Optional("v", action.Int), 0},
		{"optional empty int", `{"v":""}`, action.Optional("v", action.Int), 0},
		{"default", `{}`, action.Defaulted("v", action.Int, 5), 5},
		{"default on null", `{"v":null}`, action.Defaulted("v", action.String, "dflt"), "dflt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertOne(t, d, tt.data, tt.spec)
			if err != nil {
				t.Fatalf("convert:deserializer_test - unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("convert:deserializer_test - got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestConvert_ScalarErrors(t *testing.T) {
	d := NewDeserializer(NewDeserializerParams{})
	tests := []struct {
		name string
		data string
		spec action.ParamSpec
	}{
		{"int garbage", `{"count":"abc"}`, action.Required("count", action.Int)},
		{"int overflow", `{"count":3000000000}`, action.Required("count", action.Int)},
		{"short overflow", `{"count":70000}`, action.Required("count", action.Short)},
		{"int fraction", `{"count":1.5}`, action.Required("count", action.Int)},
		{"bool from number", `{"count":"maybe"}`, action.Required("count", action.Bool)},
		{"int from bool", `{"count":true}`, action.Required("count", action.Int)},
		{"int from list", `{"count":[1]}`, action.Required("count", action.Int)},
		{"missing required", `{}`, action.Required("count", action.Int)},
		{"null required", `{"count":null}`, action.Required("count", action.Long)},
		{"bad uuid", `{"count":"nope"}`, action.Required("count", action.UUID)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := convertOne(t, d, tt.data, tt.spec)
			var ce *ConversionError
			if !errors.As(err, &ce) {
				t.Fatalf("convert:deserializer_test - err = %v, want ConversionError", err)
			}
			if ce.Param != "count" {
				t.Errorf("convert:deserializer_test - Param = %q, want count", ce.Param)
			}
		})
	}
}

func TestConvert_StringIsTotal(t *testing.T) {
	d := NewDeserializer(NewDeserializerParams{})
	for _, data := range []string{`{"s":null}`, `{"s":"null"}`, `{"s":""}`, `{}`} {
		for _, spec := range []action.ParamSpec{action.Required("s", action.String), action.Optional("s", action.String)} {
			got, err := convertOne(t, d, data, spec)
			if err != nil || got != "" {
				t.Errorf("convert:deserializer_test - %s required=%v: got %#v, %v; want \"\"", data, spec.Required, got, err)
			}
		}
	}
}

func TestConvert_ListShapes(t *testing.T) {
	d := NewDeserializer(NewDeserializerParams{})
	spec := action.Required("ids", action.ListOf(action.Int))
	want := []int{1, 2, 3}
	for _, data := range []string{`{"ids":"1,2,3"}`, `{"ids":[1,2,3]}`, `{"ids":["1"," 2","3"]}`, `{"ids":"[1,2,3]"}`} {
		got, err := convertOne(t, d, data, spec)
		if err != nil {
			t.Fatalf("convert:deserializer_test - %s: %v", data, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("convert:deserializer_test - %s: got %#v, want %#v", data, got, want)
		}
	}
	for _, data := range []string{`{"ids":null}`, `{"ids":"null"}`, `{"ids":""}`} {
		got, err := convertOne(t, d, data, spec)
		if err != nil || !reflect.DeepEqual(got, []int{}) {
			t.Errorf("convert:deserializer_test - %s: got %#v, %v; want empty list", data, got, err)
		}
	}
	if _, err := convertOne(t, d, `{"ids":"1,x"}`, spec); err == nil || !strings.Contains(err.Error(), "ids[1]") {
		t.Errorf("convert:deserializer_test - bad element err = %v", err)
	}
	got, _ := convertOne(t, d, `{"ids":5}`, spec)
	if !reflect.DeepEqual(got, []int{5}) {
		t.Errorf("convert:deserializer_test - single value: got %#v", got)
	}
}

func TestConvert_Map(t *testing.T) {
	d := NewDeserializer(NewDeserializerParams{})
	spec := action.Required("m", action.MapOf(action.String, action.Int))
	want := map[string]int{"a": 1, "b": 2}
	for _, data := range []string{`{"m":"a=1,b=2"}`, `{"m":{"a":1,"b":"2"}}`, `{"m":"{\"a\":1,\"b\":2}"}`} {
		got, err := convertOne(t, d, data, spec)
		if err != nil || !reflect.DeepEqual(got, want) {
			t.Errorf("convert:deserializer_test - %s: got %#v, %v", data, got, err)
		}
	}
	got, err := convertOne(t, d, `{"m":"null"}`, spec)
	if err != nil || !reflect.DeepEqual(got, map[string]int{}) {
		t.Errorf("convert:deserializer_test - null map: got %#v, %v", got, err)
	}

	intKeys := action.Required("m", action.MapOf(action.Int, action.ListOf(action.String)))
	got, err = convertOne(t, d, `{"m":{"1":["x","y"],"2":"z"}}`, intKeys)
	if err != nil {
		t.Fatalf("convert:deserializer_test - int keys: %v", err)
	}
	wantNested := map[int]any{1: []string{"x", "y"}, 2: []string{"z"}}
	if !reflect.DeepEqual(got, wantNested) {
		t.Errorf("convert:deserializer_test - int keys: got %#v", got)
	}
	if _, err := convertOne(t, d, `{"m":"a=1,b"}`, spec); err == nil {
		t.Error("convert:deserializer_test - expected error for entry without '='")
	}
	if _, err := convertOne(t, d, `{"m":{"x":1}}`, intKeys); err == nil {
		t.Error("convert:deserializer_test - expected error for non-integer key")
	}
}

func TestConvert_Dates(t *testing.T) {
	d := NewDeserializer(NewDeserializerParams{})
	spec := action.Required("at", action.Date)
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"20240501"`, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{`20240501`, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{`"202405011030"`, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)},
		{`"20240501103045"`, time.Date(2024, 5, 1, 10, 30, 45, 0, time.UTC)},
		{`"2024-05-01"`, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{`"2024-05-01T10:30:45"`, time.Date(2024, 5, 1, 10, 30, 45, 0, time.UTC)},
		{`"2024-05-01 10:30:45"`, time.Date(2024, 5, 1, 10, 30, 45, 0, time.UTC)},
		{`"2024-05-01T10:30:45+02:00"`, time.Date(2024, 5, 1, 8, 30, 45, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := convertOne(t, d, `{"at":`+tt.in+`}`, spec)
		if err != nil {
			t.Errorf("convert:deserializer_test - %s: %v", tt.in, err)
			continue
		}
		if !got.(time.Time).Equal(tt.want) {
			t.Errorf("convert:deserializer_test - %s: got %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := convertOne(t, d, `{"at":"01/05/2024"}`, spec); err == nil {
		t.Error("convert:deserializer_test - expected error for unsupported date format")
	}
}

func TestConvert_Encrypted(t *testing.T) {
	box, err := secret.NewBox("test-key")
	if err != nil {
		t.Fatalf("convert:deserializer_test - NewBox failed: %v", err)
	}
	ct, _ := box.Encrypt("123")
	data := `{"n":"` + ct + `"}`
	spec := action.Required("n", action.Encrypted(action.Int))

	got, err := convertOne(t, NewDeserializer(NewDeserializerParams{Decryptor: box}), data, spec)
	if err != nil || got != 123 {
		t.Errorf("convert:deserializer_test - with decryptor: got %#v, %v; want 123", got, err)
	}
	got, err = convertOne(t, NewDeserializer(NewDeserializerParams{}), data, spec)
	if err != nil || got != 0 {
		t.Errorf("convert:deserializer_test - without decryptor: got %#v, %v; want 0", got, err)
	}

	zeros := map[string]struct {
		t    action.Type
		want any
	}{
		"long":   {action.Long, int64(0)},
		"double": {action.Double, 0.0},
		"string": {action.String, ""},
	}
	for name, z := range zeros {
		got, _ := convertOne(t, NewDeserializer(NewDeserializerParams{}), data, action.Required("n", action.Encrypted(z.t)))
		if !reflect.DeepEqual(got, z.want) {
			t.Errorf("convert:deserializer_test - %s zero: got %#v, want %#v", name, got, z.want)
		}
	}

	bad := NewDeserializer(NewDeserializerParams{Decryptor: secret.DecryptFunc(func(string) (string, error) {
		return "", secret.ErrDecrypt
	})})
	if _, err := convertOne(t, bad, data, spec); err == nil {
		t.Error("convert:deserializer_test - expected error when decryption fails")
	}

	list := action.Required("ns", action.ListOf(action.Encrypted(action.Long)))
	ct2, _ := box.Encrypt("7")
	got, err = convertOne(t, NewDeserializer(NewDeserializerParams{Decryptor: box}), `{"ns":["`+ct+`","`+ct2+`"]}`, list)
	if err != nil || !reflect.DeepEqual(got, []int64{123, 7}) {
		t.Errorf("convert:deserializer_test - encrypted list: got %#v, %v", got, err)
	}
}

func TestConvert_NestedObjects(t *testing.T) {
	line := action.ObjectOf("line",
		action.Required("sku", action.String),
		action.Defaulted("qty", action.Int, 1),
	)
	order := action.ObjectOf("order",
		action.Required("id", action.Long),
		action.Optional("lines", action.ListOf(line)),
		action.Optional("ship", action.ObjectOf("address", action.Required("city", action.String))),
	)
	d := NewDeserializer(NewDeserializerParams{})
	got, err := convertOne(t, d, `{"o":{"id":"9","lines":[{"sku":"a"},{"sku":"b","qty":3}],"ship":{"city":"Oslo"}}}`, action.Required("o", order))
	if err != nil {
		t.Fatalf("convert:deserializer_test - Convert failed: %v", err)
	}
	want := action.Fields{
		"id": int64(9),
		"lines": []any{
			action.Fields{"sku": "a", "qty": 1},
			action.Fields{"sku": "b", "qty": 3},
		},
		"ship": action.Fields{"city": "Oslo"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("convert:deserializer_test - got %#v\nwant %#v", got, want)
	}

	_, err = convertOne(t, d, `{"o":{"id":1,"lines":[{"sku":"a","qty":"x"}]}}`, action.Required("o", order))
	var ce *ConversionError
	if !errors.As(err, &ce) || ce.Param != "o.lines[0].qty" {
		t.Errorf("convert:deserializer_test - nested error = %v", err)
	}
	if _, err := convertOne(t, d, `{"o":[1]}`, action.Required("o", order)); err == nil {
		t.Error("convert:deserializer_test - expected error for list given as object")
	}
}

type point struct{ X, Y int }

func TestConvert_BuilderAndCustom(t *testing.T) {
	pt := action.ObjectOf("point", action.Required("x", action.Int), action.Required("y", action.Int)).
		WithBuilder(func(f action.Fields) (any, error) {
			x, _ := action.Field[int](f, "x")
			y, _ := action.Field[int](f, "y")
			return point{x, y}, nil
		})
	d := NewDeserializer(NewDeserializerParams{})
	got, err := convertOne(t, d, `{"p":"{\"x\":1,\"y\":2}"}`, action.Required("p", pt))
	if err != nil || got != (point{1, 2}) {
		t.Errorf("convert:deserializer_test - builder: got %#v, %v", got, err)
	}

	custom := NewDeserializer(NewDeserializerParams{Converters: map[string]CustomConverter{
		"point": func(_ *request.Request, raw value.Value, _ action.ParamSpec) (any, error) {
			var p point
			_, err := parsePoint(raw.Text(), &p)
			return p, err
		},
	}})
	got, err = convertOne(t, custom, `{"p":"3:4"}`, action.Required("p", pt))
	if err != nil || got != (point{3, 4}) {
		t.Errorf("convert:deserializer_test - custom before object: got %#v, %v", got, err)
	}

	if _, err := convertOne(t, d, `{"c":"x"}`, action.Required("c", action.Custom("money"))); err == nil {
		t.Error("convert:deserializer_test - expected error for custom type without converter")
	}
}

func parsePoint(s string, p *point) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, errors.New("want x:y")
	}
	x, err := parseInteger(parts[0], 32)
	if err != nil {
		return 0, err
	}
	y, err := parseInteger(parts[1], 32)
	if err != nil {
		return 0, err
	}
	p.X, p.Y = int(x), int(y)
	return 2, nil
}

func TestConvert_RawAndPositional(t *testing.T) {
	d := NewDeserializer(NewDeserializerParams{})
	req := reqFrom(t, `["1","abc"]`)
	args, err := d.Convert(req, []action.ParamSpec{
		action.Required("code", action.Int),
		{Type: action.Raw},
		action.Required("tag", action.String),
	})
	if err != nil {
		t.Fatalf("convert:deserializer_test - Convert failed: %v", err)
	}
	if args[0] != 1 || args[1] != req || args[2] != "abc" {
		t.Errorf("convert:deserializer_test - args = %#v", args)
	}
}

func TestConvert_DeclarationOrder(t *testing.T) {
	d := NewDeserializer(NewDeserializerParams{})
	args, err := d.Convert(reqFrom(t, `{"b":"2","a":"1"}`), []action.ParamSpec{
		action.Required("a", action.Int),
		action.Required("b", action.Int),
	})
	if err != nil || !reflect.DeepEqual(args, action.Args{1, 2}) {
		t.Errorf("convert:deserializer_test - args = %#v, %v", args, err)
	}
}
