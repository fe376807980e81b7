package sandbox

import (
	"fmt"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
	"github.com/daimatz/jvmsandbox/pkg/native"
	"github.com/daimatz/jvmsandbox/pkg/vm"
)

// maxArrayElements bounds the elements serialized from one array.
const maxArrayElements = 1000

// Placeholders for array elements that cannot be rendered.
const (
	placeholderObject     = "<object>"
	placeholderUnreadable = "<unreadable>"
	placeholderError      = "<error>"
	placeholderToString   = "<error calling toString()>"
)

// ArrayValue is the serialized form of an array.
type ArrayValue struct {
	Length    int   `json:"length"`
	Elements  []any `json:"elements"`
	Truncated bool  `json:"truncated,omitempty"`
}

// ObjectValue is the serialized form of an object that is neither a string
// nor an array.
type ObjectValue struct {
	Type     string `json:"type"`
	ToString string `json:"toString"`
}

// serializer turns interpreter values into plain Go values that encode to
// JSON or YAML.
type serializer struct {
	ops  *vm.Operations
	util *vm.InvocationUtil
}

func newSerializer(env *Environment) *serializer {
	return &serializer{ops: env.Operations(), util: env.InvocationUtil()}
}

// value renders v, which has the declared type t.
func (s *serializer) value(v vm.Value, t classfile.FieldType) any {
	switch t.Kind() {
	case classfile.TypeVoid:
		return nil
	case classfile.TypeInt:
		return v.Int
	case classfile.TypeLong:
		return v.Long
	case classfile.TypeFloat:
		return v.Float
	case classfile.TypeDouble:
		return v.Double
	case classfile.TypeBoolean:
		return v.Int != 0
	case classfile.TypeByte:
		return int8(v.Int)
	case classfile.TypeShort:
		return int16(v.Int)
	case classfile.TypeChar:
		return charString(uint16(v.Int))
	}
	return s.reference(v, t.IsString())
}

func (s *serializer) reference(v vm.Value, isString bool) any {
	if v.IsNull() {
		return nil
	}
	if isString {
		if str, err := s.ops.ReadUTF8(v); err == nil {
			return str
		}
	}
	if v.Array() != nil {
		return s.array(v)
	}
	if str, ok := vm.GoString(v); ok {
		return str
	}
	text, err := s.util.InvokeVirtual(v, "toString", "()Ljava/lang/String;")
	out := ObjectValue{Type: s.ops.ClassNameOf(v), ToString: placeholderToString}
	if err == nil {
		if str, ok := vm.GoString(text); ok {
			out.ToString = str
		} else if text.IsNull() {
			out.ToString = "null"
		}
	}
	return out
}

func (s *serializer) array(v vm.Value) ArrayValue {
	n, err := s.ops.ArrayLength(v)
	if err != nil {
		return ArrayValue{Elements: []any{}}
	}
	out := ArrayValue{Length: n}
	limit := n
	if limit > maxArrayElements {
		limit = maxArrayElements
		out.Truncated = true
	}
	t, err := classfile.ParseFieldType(v.Array().Type)
	elem := t.Elem()
	out.Elements = make([]any, limit)
	for i := 0; i < limit; i++ {
		if err != nil {
			out.Elements[i] = placeholderError
			continue
		}
		out.Elements[i] = s.element(v, i, elem)
	}
	return out
}

// element renders one array element. Nested arrays and objects other than
// strings collapse to a placeholder.
func (s *serializer) element(arr vm.Value, i int, elem classfile.FieldType) any {
	var (
		out any
		err error
	)
	switch elem.Kind() {
	case classfile.TypeInt:
		out, err = s.ops.ArrayLoadInt(arr, i)
	case classfile.TypeLong:
		out, err = s.ops.ArrayLoadLong(arr, i)
	case classfile.TypeFloat:
		out, err = s.ops.ArrayLoadFloat(arr, i)
	case classfile.TypeDouble:
		out, err = s.ops.ArrayLoadDouble(arr, i)
	case classfile.TypeBoolean:
		out, err = s.ops.ArrayLoadBoolean(arr, i)
	case classfile.TypeByte:
		out, err = s.ops.ArrayLoadByte(arr, i)
	case classfile.TypeShort:
		out, err = s.ops.ArrayLoadShort(arr, i)
	case classfile.TypeChar:
		var c uint16
		c, err = s.ops.ArrayLoadChar(arr, i)
		out = charString(c)
	case classfile.TypeObject, classfile.TypeArray:
		var ref vm.Value
		ref, err = s.ops.ArrayLoadReference(arr, i)
		if err != nil {
			break
		}
		switch {
		case ref.IsNull():
			out = nil
		case elem.IsString():
			str, rerr := s.ops.ReadUTF8(ref)
			if rerr != nil {
				str = placeholderUnreadable
			}
			out = str
		default:
			out = placeholderObject
		}
	default:
		return fmt.Sprintf("<unknown:%c>", elem.Kind())
	}
	if err != nil {
		return placeholderError
	}
	return out
}

func charString(c uint16) string {
	return native.FromUTF16([]uint16{c})
}
