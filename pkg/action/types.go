package action

import (
	"fmt"
	"strings"

	"github.com/morezero/action-dispatcher/pkg/value"
)

// Kind is the type tag of a parameter.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindString
	KindDate
	KindUUID
	KindEncrypted
	KindList
	KindMap
	KindObject
	KindRaw
	KindCustom
)

var kindNames = map[Kind]string{
	KindBool:      "bool",
	KindShort:     "short",
	KindInt:       "int",
	KindLong:      "long",
	KindFloat:     "float",
	KindDouble:    "double",
	KindString:    "string",
	KindDate:      "date",
	KindUUID:      "uuid",
	KindEncrypted: "encrypted",
	KindList:      "list",
	KindMap:       "map",
	KindObject:    "object",
	KindRaw:       "raw",
	KindCustom:    "custom",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// IsScalar reports whether values of this kind can be written as a single
// token (and therefore used as map keys or delimited list items).
func (k Kind) IsScalar() bool {
	switch k {
	case KindBool, KindShort, KindInt, KindLong, KindFloat, KindDouble, KindString, KindDate, KindUUID:
		return true
	}
	return false
}

// Type describes the shape of a parameter value. Composite kinds carry their
// element types; Object carries its field schema.
type Type struct {
	Kind Kind
	// Elem is the list element, map value, or encrypted payload type.
	Elem *Type
	// Key is the map key type.
	Key *Type
	// Name identifies object and custom types; custom converters are looked up by it.
	Name string
	// Fields is the object schema, in declaration order.
	Fields []ParamSpec
	// Build optionally turns converted object fields into a domain value.
	Build func(Fields) (any, error)
}

var (
	Bool   = Type{Kind: KindBool}
	Short  = Type{Kind: KindShort}
	Int    = Type{Kind: KindInt}
	Long   = Type{Kind: KindLong}
	Float  = Type{Kind: KindFloat}
	Double = Type{Kind: KindDouble}
	String = Type{Kind: KindString}
	Date   = Type{Kind: KindDate}
	UUID   = Type{Kind: KindUUID}
	Raw    = Type{Kind: KindRaw}
)

// ListOf returns a list type.
func ListOf(elem Type) Type {
	return Type{Kind: KindList, Elem: &elem}
}

// MapOf returns a map type. Keys must be scalar.
func MapOf(key, val Type) Type {
	return Type{Kind: KindMap, Key: &key, Elem: &val}
}

// Encrypted returns an encrypted scalar type whose plaintext is parsed as kind.
func Encrypted(kind Type) Type {
	return Type{Kind: KindEncrypted, Elem: &kind}
}

// ObjectOf returns an object type with the given field schema.
func ObjectOf(name string, fields ...ParamSpec) Type {
	return Type{Kind: KindObject, Name: name, Fields: fields}
}

// Custom returns a type converted exclusively by a registered converter.
func Custom(name string) Type {
	return Type{Kind: KindCustom, Name: name}
}

// WithBuilder returns a copy of an object type that builds its value with fn.
func (t Type) WithBuilder(fn func(Fields) (any, error)) Type {
	t.Build = fn
	return t
}

func (t Type) String() string {
	switch t.Kind {
	case KindList:
		return fmt.Sprintf("list<%s>", t.Elem)
	case KindMap:
		return fmt.Sprintf("map<%s,%s>", t.Key, t.Elem)
	case KindEncrypted:
		return fmt.Sprintf("encrypted<%s>", t.Elem)
	case KindObject, KindCustom:
		if t.Name != "" {
			return t.Name
		}
	}
	return t.Kind.String()
}

// validate checks that composite types are complete.
func (t Type) validate() error {
	switch t.Kind {
	case KindInvalid:
		return fmt.Errorf("missing type")
	case KindList:
		if t.Elem == nil {
			return fmt.Errorf("list without element type")
		}
		if t.Elem.Kind == KindRaw {
			return fmt.Errorf("list of raw is not supported")
		}
		return t.Elem.validate()
	case KindMap:
		if t.Key == nil || t.Elem == nil {
			return fmt.Errorf("map without key or value type")
		}
		if !t.Key.Kind.IsScalar() {
			return fmt.Errorf("map key must be scalar, got %s", t.Key)
		}
		return t.Elem.validate()
	case KindEncrypted:
		if t.Elem == nil {
			return fmt.Errorf("encrypted without payload type")
		}
		switch t.Elem.Kind {
		case KindInt, KindLong, KindDouble, KindString:
			return nil
		}
		return fmt.Errorf("encrypted payload must be int, long, double or string, got %s", t.Elem)
	case KindObject:
		for _, f := range t.Fields {
			if err := f.Validate(); err != nil {
				return err
			}
		}
	case KindCustom:
		if t.Name == "" {
			return fmt.Errorf("custom type without name")
		}
	}
	return nil
}

// ParamSpec declares one action parameter.
type ParamSpec struct {
	Name     string
	Type     Type
	Required bool
	// Default is used when the payload omits the parameter or sends null.
	Default *value.Value
}

// Required declares a mandatory parameter.
func Required(name string, t Type) ParamSpec {
	return ParamSpec{Name: name, Type: t, Required: true}
}

// Optional declares a parameter that falls back to the type's zero value.
func Optional(name string, t Type) ParamSpec {
	return ParamSpec{Name: name, Type: t}
}

// Defaulted declares a parameter with a default value.
func Defaulted(name string, t Type, def any) ParamSpec {
	v := value.MustFromAny(def)
	return ParamSpec{Name: name, Type: t, Default: &v}
}

// Validate reports incomplete declarations.
func (p ParamSpec) Validate() error {
	if strings.TrimSpace(p.Name) == "" && p.Type.Kind != KindRaw {
		return fmt.Errorf("parameter without name")
	}
	if err := p.Type.validate(); err != nil {
		return fmt.Errorf("parameter %q: %w", p.Name, err)
	}
	return nil
}
