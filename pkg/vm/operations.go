package vm

import (
	"fmt"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

// Operations reads statics, arrays and strings on behalf of the host. It
// never runs class initializers; callers initialize classes first.
type Operations struct {
	vm *VM
}

// Operations returns the value-operations facade of vm.
func (vm *VM) Operations() *Operations { return &Operations{vm: vm} }

// GetStatic reads the static field name:desc visible from c, looking through
// superclasses and superinterfaces the way getstatic resolves fields.
func (o *Operations) GetStatic(c *Class, name, desc string) (Value, error) {
	f := c.lookupField(name, desc)
	if f == nil {
		return Value{}, fmt.Errorf("ops: %s.%s:%s: %w", c.Name, name, desc, ErrNoSuchField)
	}
	if !f.IsStatic() {
		return Value{}, fmt.Errorf("ops: %s.%s is not static", c.Name, name)
	}
	return f.Class.GetStatic(f.Name, f.Descriptor), nil
}

// GetInt reads a static int.
func (o *Operations) GetInt(c *Class, name string) (int32, error) {
	v, err := o.GetStatic(c, name, "I")
	return v.Int, err
}

// GetLong reads a static long.
func (o *Operations) GetLong(c *Class, name string) (int64, error) {
	v, err := o.GetStatic(c, name, "J")
	return v.Long, err
}

// GetFloat reads a static float.
func (o *Operations) GetFloat(c *Class, name string) (float32, error) {
	v, err := o.GetStatic(c, name, "F")
	return v.Float, err
}

// GetDouble reads a static double.
func (o *Operations) GetDouble(c *Class, name string) (float64, error) {
	v, err := o.GetStatic(c, name, "D")
	return v.Double, err
}

// GetBoolean reads a static boolean.
func (o *Operations) GetBoolean(c *Class, name string) (bool, error) {
	v, err := o.GetStatic(c, name, "Z")
	return v.Int != 0, err
}

// GetByte reads a static byte.
func (o *Operations) GetByte(c *Class, name string) (int8, error) {
	v, err := o.GetStatic(c, name, "B")
	return int8(v.Int), err
}

// GetChar reads a static char.
func (o *Operations) GetChar(c *Class, name string) (uint16, error) {
	v, err := o.GetStatic(c, name, "C")
	return uint16(v.Int), err
}

// GetShort reads a static short.
func (o *Operations) GetShort(c *Class, name string) (int16, error) {
	v, err := o.GetStatic(c, name, "S")
	return int16(v.Int), err
}

// GetReference reads a static field of reference type desc.
func (o *Operations) GetReference(c *Class, name, desc string) (Value, error) {
	if desc == "" || (desc[0] != 'L' && desc[0] != '[') {
		return Value{}, fmt.Errorf("ops: %q is not a reference descriptor", desc)
	}
	return o.GetStatic(c, name, desc)
}

func arrayAt(v Value, i int) (Value, error) {
	arr := v.Array()
	if arr == nil {
		return Value{}, fmt.Errorf("ops: value is not an array")
	}
	if i < 0 || i >= len(arr.Elements) {
		return Value{}, fmt.Errorf("ops: index %d out of bounds for length %d", i, len(arr.Elements))
	}
	return arr.Elements[i], nil
}

// ArrayLength returns the length of an array value.
func (o *Operations) ArrayLength(v Value) (int, error) {
	arr := v.Array()
	if arr == nil {
		return 0, fmt.Errorf("ops: value is not an array")
	}
	return len(arr.Elements), nil
}

// ArrayLoadInt reads element i of an int[].
func (o *Operations) ArrayLoadInt(v Value, i int) (int32, error) {
	e, err := arrayAt(v, i)
	return e.Int, err
}

// ArrayLoadLong reads element i of a long[].
func (o *Operations) ArrayLoadLong(v Value, i int) (int64, error) {
	e, err := arrayAt(v, i)
	return e.Long, err
}

// ArrayLoadFloat reads element i of a float[].
func (o *Operations) ArrayLoadFloat(v Value, i int) (float32, error) {
	e, err := arrayAt(v, i)
	return e.Float, err
}

// ArrayLoadDouble reads element i of a double[].
func (o *Operations) ArrayLoadDouble(v Value, i int) (float64, error) {
	e, err := arrayAt(v, i)
	return e.Double, err
}

// ArrayLoadBoolean reads element i of a boolean[].
func (o *Operations) ArrayLoadBoolean(v Value, i int) (bool, error) {
	e, err := arrayAt(v, i)
	return e.Int != 0, err
}

// ArrayLoadByte reads element i of a byte[].
func (o *Operations) ArrayLoadByte(v Value, i int) (int8, error) {
	e, err := arrayAt(v, i)
	return int8(e.Int), err
}

// ArrayLoadChar reads element i of a char[].
func (o *Operations) ArrayLoadChar(v Value, i int) (uint16, error) {
	e, err := arrayAt(v, i)
	return uint16(e.Int), err
}

// ArrayLoadShort reads element i of a short[].
func (o *Operations) ArrayLoadShort(v Value, i int) (int16, error) {
	e, err := arrayAt(v, i)
	return int16(e.Int), err
}

// ArrayLoadReference reads element i of a reference array.
func (o *Operations) ArrayLoadReference(v Value, i int) (Value, error) {
	return arrayAt(v, i)
}

// NewUTF8 allocates an interpreter string.
func (o *Operations) NewUTF8(s string) Value {
	return RefValue(o.vm.NewString(s))
}

// NewArray allocates a one-dimensional array of the given descriptor, e.g. "[I".
func (o *Operations) NewArray(desc string, elems []Value) (Value, error) {
	t, err := classfile.ParseFieldType(desc)
	if err != nil || t.Dims == 0 {
		return Value{}, fmt.Errorf("ops: %q is not an array descriptor", desc)
	}
	arr := newArray(desc, len(elems))
	for i, e := range elems {
		arr.Elements[i] = coerce(desc[1:], e)
	}
	return RefValue(arr), nil
}

// ReadUTF8 returns the contents of a string value.
func (o *Operations) ReadUTF8(v Value) (string, error) {
	if v.IsNull() {
		return "", fmt.Errorf("ops: null string")
	}
	s, ok := GoString(v)
	if !ok {
		return "", fmt.Errorf("ops: %s is not a string", classfile.DotName(className(v)))
	}
	return s, nil
}

// ClassNameOf returns the dotted runtime class name of a reference, or the
// array descriptor for arrays.
func (o *Operations) ClassNameOf(v Value) string {
	if v.IsNull() {
		return "null"
	}
	if arr := v.Array(); arr != nil {
		return arr.Type
	}
	return classfile.DotName(className(v))
}
