package vm

// ValueType represents the type of a Value on the stack or in local variables.
type ValueType int

const (
	TypeInt ValueType = iota
	TypeLong
	TypeFloat
	TypeDouble
	TypeRef
	TypeNull
)

// Value represents a value on the operand stack or in local variables.
// boolean, byte, char and short are carried as TypeInt. Long and double
// values occupy a single operand stack entry.
type Value struct {
	Type   ValueType
	Int    int32
	Long   int64
	Float  float32
	Double float64
	Ref    interface{}
}

// IntValue creates an integer Value.
func IntValue(v int32) Value {
	return Value{Type: TypeInt, Int: v}
}

// LongValue creates a long Value.
func LongValue(v int64) Value {
	return Value{Type: TypeLong, Long: v}
}

// FloatValue creates a float Value.
func FloatValue(v float32) Value {
	return Value{Type: TypeFloat, Float: v}
}

// DoubleValue creates a double Value.
func DoubleValue(v float64) Value {
	return Value{Type: TypeDouble, Double: v}
}

// RefValue creates a reference Value. A nil object or array becomes null.
func RefValue(ref interface{}) Value {
	switch r := ref.(type) {
	case nil:
		return NullValue()
	case *JObject:
		if r == nil {
			return NullValue()
		}
	case *JArray:
		if r == nil {
			return NullValue()
		}
	}
	return Value{Type: TypeRef, Ref: ref}
}

// NullValue creates a null reference Value.
func NullValue() Value {
	return Value{Type: TypeNull}
}

// BoolValue creates the int Value bytecode uses for a boolean.
func BoolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}

// IsNull reports whether v is the null reference.
func (v Value) IsNull() bool {
	return v.Type == TypeNull || (v.Type == TypeRef && v.Ref == nil)
}

// IsWide reports whether v is a category 2 value (long or double).
func (v Value) IsWide() bool {
	return v.Type == TypeLong || v.Type == TypeDouble
}

// Object returns the referenced object, or nil when v is not an object.
func (v Value) Object() *JObject {
	o, _ := v.Ref.(*JObject)
	return o
}

// Array returns the referenced array, or nil when v is not an array.
func (v Value) Array() *JArray {
	a, _ := v.Ref.(*JArray)
	return a
}

// zeroValue is the default value of a field or array element of the given
// descriptor.
func zeroValue(desc string) Value {
	if desc == "" {
		return NullValue()
	}
	switch desc[0] {
	case 'J':
		return LongValue(0)
	case 'F':
		return FloatValue(0)
	case 'D':
		return DoubleValue(0)
	case 'L', '[':
		return NullValue()
	default:
		return IntValue(0)
	}
}

// coerce narrows an int Value to the width of a B, C, S or Z descriptor, the
// way putfield/putstatic and array stores truncate.
func coerce(desc string, v Value) Value {
	if v.Type != TypeInt || desc == "" {
		return v
	}
	switch desc[0] {
	case 'B':
		return IntValue(int32(int8(v.Int)))
	case 'C':
		return IntValue(int32(uint16(v.Int)))
	case 'S':
		return IntValue(int32(int16(v.Int)))
	case 'Z':
		return IntValue(v.Int & 1)
	}
	return v
}
