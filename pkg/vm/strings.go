package vm

import (
	"strconv"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
	"github.com/daimatz/jvmsandbox/pkg/native"
)

const stringClass = "java/lang/String"

// NewString allocates a java/lang/String holding s. The Go string lives in
// Native; the JDK's value/coder fields are never populated.
func (vm *VM) NewString(s string) *JObject {
	var obj *JObject
	if c, ok := vm.classes[stringClass]; ok && c.State != ClassLoaded {
		obj = newObject(c)
	} else {
		obj = &JObject{ClassName: stringClass, Fields: make(map[string]Value)}
	}
	obj.Native = s
	return obj
}

// InternString returns the canonical string object for s, as ldc does.
func (vm *VM) InternString(s string) *JObject {
	if obj, ok := vm.strings[s]; ok {
		return obj
	}
	obj := vm.NewString(s)
	vm.strings[s] = obj
	return obj
}

// GoString returns the contents of a java/lang/String value.
func GoString(v Value) (string, bool) {
	obj := v.Object()
	if obj == nil {
		return "", false
	}
	s, ok := obj.Native.(string)
	return s, ok
}

// toJavaString is String.valueOf(Object): "null" for null, the contents of
// strings, and toString() run inside the VM for anything else.
func (vm *VM) toJavaString(v Value) (string, error) {
	if v.IsNull() {
		return "null", nil
	}
	if s, ok := GoString(v); ok {
		return s, nil
	}
	ret, err := vm.invokeVirtual(v, "toString", "()Ljava/lang/String;")
	if err != nil {
		return "", err
	}
	if s, ok := GoString(ret); ok {
		return s, nil
	}
	return "null", nil
}

// valueString is String.valueOf for a value of type t.
func (vm *VM) valueString(v Value, t classfile.FieldType) (string, error) {
	switch t.Kind() {
	case classfile.TypeBoolean:
		return strconv.FormatBool(v.Int != 0), nil
	case classfile.TypeChar:
		return native.FromUTF16([]uint16{uint16(v.Int)}), nil
	case classfile.TypeByte, classfile.TypeShort, classfile.TypeInt:
		return strconv.Itoa(int(v.Int)), nil
	case classfile.TypeLong:
		return strconv.FormatInt(v.Long, 10), nil
	case classfile.TypeFloat:
		return native.FormatFloat(v.Float), nil
	case classfile.TypeDouble:
		return native.FormatDouble(v.Double), nil
	}
	return vm.toJavaString(v)
}

// javaHashCode is String.hashCode over UTF-16 code units.
func javaHashCode(s string) int32 {
	var h int32
	for _, c := range native.UTF16(s) {
		h = 31*h + int32(c)
	}
	return h
}

// charArray converts a Go string to a char[].
func charArray(s string) *JArray {
	units := native.UTF16(s)
	arr := newArray("[C", len(units))
	for i, u := range units {
		arr.Elements[i] = IntValue(int32(u))
	}
	return arr
}

// unitsOf reads the chars of a char[] value.
func unitsOf(arr *JArray, offset, count int) []uint16 {
	units := make([]uint16, count)
	for i := range units {
		units[i] = uint16(arr.Elements[offset+i].Int)
	}
	return units
}
