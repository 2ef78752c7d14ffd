package value

import (
	"testing"
)

func TestParse_Kinds(t *testing.T) {
	v, err := Parse([]byte(`{"a":null,"b":true,"c":12345678901234567890,"d":"x","e":[1,"2"],"f":{"g":1.5}}`))
	if err != nil {
		t.Fatalf("value:value_test - Parse failed: %v", err)
	}
	if v.Kind() != KindMapping {
		t.Fatalf("value:value_test - kind = %s, want mapping", v.Kind())
	}

	wantKinds := map[string]Kind{
		"a": KindNull, "b": KindBool, "c": KindNumber,
		"d": KindString, "e": KindSequence, "f": KindMapping,
	}
	for key, want := range wantKinds {
		got, ok := v.Get(key)
		if !ok {
			t.Fatalf("value:value_test - missing key %q", key)
		}
		if got.Kind() != want {
			t.Errorf("value:value_test - %s kind = %s, want %s", key, got.Kind(), want)
		}
	}

	c, _ := v.Get("c")
	if c.Text() != "12345678901234567890" {
		t.Errorf("value:value_test - number text = %q, want exact source text", c.Text())
	}
	if keys := v.Keys(); len(keys) != 6 || keys[0] != "a" || keys[5] != "f" {
		t.Errorf("value:value_test - keys = %v, want source order", keys)
	}
}

func TestParse_InvalidAndEmpty(t *testing.T) {
	if _, err := Parse([]byte(`{invalid`)); err != ErrInvalidJSON {
		t.Errorf("value:value_test - expected ErrInvalidJSON, got %v", err)
	}
	v, err := Parse(nil)
	if err != nil || !v.IsNull() {
		t.Errorf("value:value_test - empty input should be null, got %v err=%v", v.Kind(), err)
	}
}

func TestIsEmptyText(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want bool
	}{
		{"null", Null(), true},
		{"empty string", String(""), true},
		{"literal null", String("null"), true},
		{"spaces", String("  "), true},
		{"text", String("a"), false},
		{"number", Int(0), false},
		{"empty sequence", Sequence(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.IsEmptyText(); got != tt.want {
				t.Errorf("value:value_test - IsEmptyText() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarshalJSON_PreservesOrder(t *testing.T) {
	v := Mapping(
		Entry{Key: "z", Value: Int(1)},
		Entry{Key: "a", Value: Sequence(String("x"), Bool(true), Null())},
	)
	data, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("value:value_test - MarshalJSON failed: %v", err)
	}
	if string(data) != `{"z":1,"a":["x",true,null]}` {
		t.Errorf("value:value_test - MarshalJSON = %s", data)
	}
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"ids":   []int{1, 2, 3},
		"name":  "abc",
		"ok":    true,
		"ratio": 0.5,
		"none":  nil,
	})
	if err != nil {
		t.Fatalf("value:value_test - FromAny failed: %v", err)
	}
	ids, _ := v.Get("ids")
	if ids.Kind() != KindSequence || ids.Len() != 3 {
		t.Fatalf("value:value_test - ids = %v, want 3-item sequence", ids.Any())
	}
	first, _ := ids.Index(0)
	if first.Text() != "1" {
		t.Errorf("value:value_test - ids[0] = %q, want 1", first.Text())
	}
	ratio, _ := v.Get("ratio")
	if ratio.Text() != "0.5" {
		t.Errorf("value:value_test - ratio = %q, want 0.5", ratio.Text())
	}

	if _, err := FromAny(make(chan int)); err == nil {
		t.Error("value:value_test - expected error for channel")
	}
}

func TestWithAndEqual(t *testing.T) {
	base := MappingOf(map[string]Value{"a": Int(1)})
	next := base.With("b", String("2"))
	if _, ok := base.Get("b"); ok {
		t.Error("value:value_test - With must not mutate the receiver")
	}
	other := Mapping(Entry{Key: "b", Value: String("2")}, Entry{Key: "a", Value: Int(1)})
	if !next.Equal(other) {
		t.Error("value:value_test - mappings with same entries in different order should be equal")
	}
	if next.Equal(base) {
		t.Error("value:value_test - mappings with different entries should differ")
	}
}

func TestMerge(t *testing.T) {
	base := Mapping(Entry{Key: "a", Value: Int(1)}, Entry{Key: "b", Value: Int(2)})
	over := Mapping(Entry{Key: "b", Value: String("x")}, Entry{Key: "c", Value: Int(3)})
	got := Merge(base, over)
	if keys := got.Keys(); len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("value:value_test - merged keys = %v", keys)
	}
	if v, _ := got.Get("b"); v.Text() != "x" {
		t.Errorf("value:value_test - b = %q, want the over value", v.Text())
	}
	if !Merge(Null(), over).Equal(over) {
		t.Error("value:value_test - null base should contribute nothing")
	}
	if entries := String("s").Entries(); entries != nil {
		t.Errorf("value:value_test - scalar entries = %v", entries)
	}
}
