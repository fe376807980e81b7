package sandbox

import (
	"github.com/spf13/cast"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
	"github.com/daimatz/jvmsandbox/pkg/vm"
)

// MarshalArgs converts loosely typed arguments to interpreter values for the
// parameters of desc. Numbers narrow to the parameter's width; booleans map
// to 1 and 0; strings become interpreter strings; lists become
// one-dimensional arrays. null is accepted only for references.
func MarshalArgs(ops *vm.Operations, desc string, args []any) ([]vm.Value, error) {
	md, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return nil, validationFailure("InvalidDescriptor", "Invalid method descriptor: %s", desc)
	}
	if len(args) != len(md.Params) {
		return nil, validationFailure("ArgumentCountMismatch",
			"Expected %d arguments for descriptor %s, but got %d", len(md.Params), desc, len(args))
	}
	out := make([]vm.Value, len(args))
	for i, p := range md.Params {
		v, err := marshalArg(ops, p, args[i], i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func argFailure(format string, args ...any) *Failure {
	return validationFailure("InvalidArgument", format, args...)
}

func marshalArg(ops *vm.Operations, t classfile.FieldType, arg any, i int) (vm.Value, error) {
	if arg == nil {
		if t.IsReference() {
			return vm.NullValue(), nil
		}
		return vm.Value{}, argFailure("Argument %d is null but descriptor expects primitive type '%c'", i, t.Base)
	}
	switch t.Kind() {
	case classfile.TypeArray:
		return marshalArray(ops, t, arg, i)
	case classfile.TypeObject:
		s, ok := arg.(string)
		if !ok {
			return vm.Value{}, argFailure("Argument %d expects an object reference (String), got: %s", i, jsonType(arg))
		}
		return ops.NewUTF8(s), nil
	}
	return marshalPrimitive(t.Base, arg, i)
}

func marshalPrimitive(base byte, arg any, i int) (vm.Value, error) {
	switch base {
	case classfile.TypeInt, classfile.TypeByte, classfile.TypeChar, classfile.TypeShort, classfile.TypeBoolean:
		var n int32
		switch a := arg.(type) {
		case bool:
			if a {
				n = 1
			}
		case string:
			// A one-character string is a char.
			r := []rune(a)
			if base != classfile.TypeChar || len(r) != 1 || r[0] > 0xFFFF {
				return vm.Value{}, argFailure("Argument %d must be a number or boolean for type '%c', got: string", i, base)
			}
			n = int32(r[0])
		default:
			v, err := cast.ToInt32E(arg)
			if err != nil || !isNumber(arg) {
				return vm.Value{}, argFailure("Argument %d must be a number or boolean for type '%c', got: %s", i, base, jsonType(arg))
			}
			n = v
		}
		return vm.IntValue(narrow(base, n)), nil
	case classfile.TypeLong:
		v, err := cast.ToInt64E(arg)
		if err != nil || !isNumber(arg) {
			return vm.Value{}, argFailure("Argument %d must be a number for type 'J' (long), got: %s", i, jsonType(arg))
		}
		return vm.LongValue(v), nil
	case classfile.TypeFloat:
		v, err := cast.ToFloat32E(arg)
		if err != nil || !isNumber(arg) {
			return vm.Value{}, argFailure("Argument %d must be a number for type 'F' (float), got: %s", i, jsonType(arg))
		}
		return vm.FloatValue(v), nil
	case classfile.TypeDouble:
		v, err := cast.ToFloat64E(arg)
		if err != nil || !isNumber(arg) {
			return vm.Value{}, argFailure("Argument %d must be a number for type 'D' (double), got: %s", i, jsonType(arg))
		}
		return vm.DoubleValue(v), nil
	}
	return vm.Value{}, argFailure("Unsupported parameter type '%c' at argument %d", base, i)
}

// narrow truncates n to the width of base the way a JVM store would.
func narrow(base byte, n int32) int32 {
	switch base {
	case classfile.TypeByte:
		return int32(int8(n))
	case classfile.TypeChar:
		return int32(uint16(n))
	case classfile.TypeShort:
		return int32(int16(n))
	case classfile.TypeBoolean:
		if n != 0 {
			return 1
		}
	}
	return n
}

func isNumber(v any) bool { return jsonType(v) == "number" }

// marshalArray accepts a list for a one-dimensional array of primitives or
// strings. Deeper arrays are out of scope.
func marshalArray(ops *vm.Operations, t classfile.FieldType, arg any, i int) (vm.Value, error) {
	list, ok := arg.([]any)
	if !ok {
		return vm.Value{}, argFailure("Argument %d expects an array reference, got: %s", i, jsonType(arg))
	}
	elem := t.Elem()
	if elem.Dims > 0 {
		return vm.Value{}, argFailure("Argument %d: nested array parameters (%s) are not supported", i, t.Descriptor())
	}
	if elem.Base == classfile.TypeObject && !elem.IsString() {
		return vm.Value{}, argFailure("Argument %d: only primitive and String arrays are supported, not %s", i, t.Descriptor())
	}
	elems := make([]vm.Value, len(list))
	for j, e := range list {
		var v vm.Value
		var err error
		if e == nil && elem.IsReference() {
			v = vm.NullValue()
		} else if elem.IsString() {
			s, ok := e.(string)
			if !ok {
				return vm.Value{}, argFailure("Argument %d element %d must be a string, got: %s", i, j, jsonType(e))
			}
			v = ops.NewUTF8(s)
		} else {
			v, err = marshalPrimitive(elem.Base, e, i)
		}
		if err != nil {
			return vm.Value{}, err
		}
		elems[j] = v
	}
	return ops.NewArray(t.Descriptor(), elems)
}
