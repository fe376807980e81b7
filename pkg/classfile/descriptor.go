package classfile

import (
	"fmt"
	"strings"
)

// Base type characters of the descriptor grammar.
const (
	TypeByte    = 'B'
	TypeChar    = 'C'
	TypeDouble  = 'D'
	TypeFloat   = 'F'
	TypeInt     = 'I'
	TypeLong    = 'J'
	TypeShort   = 'S'
	TypeBoolean = 'Z'
	TypeVoid    = 'V'
	TypeObject  = 'L'
	TypeArray   = '['
)

var primitiveNames = map[byte]string{
	TypeByte:    "byte",
	TypeChar:    "char",
	TypeDouble:  "double",
	TypeFloat:   "float",
	TypeInt:     "int",
	TypeLong:    "long",
	TypeShort:   "short",
	TypeBoolean: "boolean",
	TypeVoid:    "void",
}

// FieldType is one parsed field descriptor. Dims counts leading '[';
// Base is the element base character and ClassName is set for 'L' bases.
type FieldType struct {
	Dims      int
	Base      byte
	ClassName string
}

// ParseFieldType parses a complete field descriptor such as "I", "[[J" or
// "Ljava/lang/String;".
func ParseFieldType(desc string) (FieldType, error) {
	t, n, err := parseFieldType(desc, 0)
	if err != nil {
		return FieldType{}, err
	}
	if n != len(desc) {
		return FieldType{}, fmt.Errorf("descriptor: trailing characters in %q", desc)
	}
	return t, nil
}

func parseFieldType(desc string, i int) (FieldType, int, error) {
	var t FieldType
	for i < len(desc) && desc[i] == TypeArray {
		t.Dims++
		i++
	}
	if i >= len(desc) {
		return FieldType{}, i, fmt.Errorf("descriptor: missing element type in %q", desc)
	}
	c := desc[i]
	switch c {
	case TypeByte, TypeChar, TypeDouble, TypeFloat, TypeInt, TypeLong, TypeShort, TypeBoolean:
		t.Base = c
		return t, i + 1, nil
	case TypeObject:
		end := strings.IndexByte(desc[i:], ';')
		if end <= 1 {
			return FieldType{}, i, fmt.Errorf("descriptor: unterminated class name at position %d in %q", i, desc)
		}
		t.Base = TypeObject
		t.ClassName = desc[i+1 : i+end]
		return t, i + end + 1, nil
	default:
		return FieldType{}, i, fmt.Errorf("descriptor: invalid character '%c' at position %d in %q", c, i, desc)
	}
}

// Descriptor renders the type back into descriptor form.
func (t FieldType) Descriptor() string {
	var sb strings.Builder
	for i := 0; i < t.Dims; i++ {
		sb.WriteByte(TypeArray)
	}
	sb.WriteByte(t.Base)
	if t.Base == TypeObject {
		sb.WriteString(t.ClassName)
		sb.WriteByte(';')
	}
	return sb.String()
}

func (t FieldType) String() string { return t.Descriptor() }

// Kind collapses the type to one character: the primitive itself, 'L' for
// objects and '[' for any array.
func (t FieldType) Kind() byte {
	if t.Dims > 0 {
		return TypeArray
	}
	return t.Base
}

// IsPrimitive reports whether the type is a non-array primitive (void included).
func (t FieldType) IsPrimitive() bool {
	return t.Dims == 0 && t.Base != TypeObject
}

// IsReference reports whether values of the type are references.
func (t FieldType) IsReference() bool { return !t.IsPrimitive() }

// IsVoid reports whether the type is the void return type.
func (t FieldType) IsVoid() bool { return t.Dims == 0 && t.Base == TypeVoid }

// IsString reports whether the type is exactly java/lang/String.
func (t FieldType) IsString() bool {
	return t.Dims == 0 && t.Base == TypeObject && t.ClassName == "java/lang/String"
}

// Elem strips one array dimension.
func (t FieldType) Elem() FieldType {
	if t.Dims == 0 {
		return t
	}
	t.Dims--
	return t
}

// Slots is the number of local variable slots the type occupies.
func (t FieldType) Slots() int {
	if t.Dims == 0 && (t.Base == TypeLong || t.Base == TypeDouble) {
		return 2
	}
	if t.IsVoid() {
		return 0
	}
	return 1
}

// Label is the human readable type name: primitives by name, objects in dot
// notation, arrays kept in descriptor form.
func (t FieldType) Label() string {
	if t.Dims > 0 {
		return t.Descriptor()
	}
	if t.Base == TypeObject {
		return DotName(t.ClassName)
	}
	if name, ok := primitiveNames[t.Base]; ok {
		return name
	}
	return t.Descriptor()
}

// DescribeFieldType labels a raw field descriptor without failing on
// malformed input.
func DescribeFieldType(desc string) string {
	if desc == "" {
		return "<unknown>"
	}
	if desc == "V" {
		return "void"
	}
	t, err := ParseFieldType(desc)
	if err != nil {
		return desc
	}
	return t.Label()
}

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Params []FieldType
	Return FieldType
}

// ParseMethodDescriptor parses "(params)return".
func ParseMethodDescriptor(desc string) (*MethodDescriptor, error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, fmt.Errorf("descriptor: invalid method descriptor %q", desc)
	}
	md := &MethodDescriptor{}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		t, n, err := parseFieldType(desc, i)
		if err != nil {
			return nil, err
		}
		md.Params = append(md.Params, t)
		i = n
	}
	if i >= len(desc) {
		return nil, fmt.Errorf("descriptor: missing ')' in %q", desc)
	}
	i++
	if i < len(desc) && desc[i] == TypeVoid {
		if i+1 != len(desc) {
			return nil, fmt.Errorf("descriptor: trailing characters in %q", desc)
		}
		md.Return = FieldType{Base: TypeVoid}
		return md, nil
	}
	ret, n, err := parseFieldType(desc, i)
	if err != nil {
		return nil, err
	}
	if n != len(desc) {
		return nil, fmt.Errorf("descriptor: trailing characters in %q", desc)
	}
	md.Return = ret
	return md, nil
}

// String renders the descriptor.
func (md *MethodDescriptor) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range md.Params {
		sb.WriteString(p.Descriptor())
	}
	sb.WriteByte(')')
	sb.WriteString(md.Return.Descriptor())
	return sb.String()
}

// ParamKinds collapses every parameter to its Kind.
func (md *MethodDescriptor) ParamKinds() []byte {
	kinds := make([]byte, len(md.Params))
	for i, p := range md.Params {
		kinds[i] = p.Kind()
	}
	return kinds
}

// ArgSlots is the number of local slots the parameters occupy, excluding 'this'.
func (md *MethodDescriptor) ArgSlots() int {
	n := 0
	for _, p := range md.Params {
		n += p.Slots()
	}
	return n
}
