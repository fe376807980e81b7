package vm

import (
	"strings"
	"unicode/utf8"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
	"github.com/daimatz/jvmsandbox/pkg/native"
)

// thisString is the content of the receiving string. Strings created by
// bytecode before their constructor ran read as empty.
func thisString(ctx *InvocationContext) string {
	s, _ := GoString(ctx.Arg(0))
	return s
}

func (vm *VM) stringArg(ctx *InvocationContext, i int, method string) (string, error) {
	s, ok := GoString(ctx.Arg(i))
	if !ok {
		return "", vm.throwNPE("Cannot invoke \"String." + method + "\" because argument is null")
	}
	return s, nil
}

// byteArray converts bytes to a byte[].
func byteArray(b []byte) *JArray {
	arr := newArray("[B", len(b))
	for i, c := range b {
		arr.Elements[i] = IntValue(int32(int8(c)))
	}
	return arr
}

// bytesOf reads a byte[] range.
func bytesOf(arr *JArray, offset, count int) []byte {
	b := make([]byte, count)
	for i := range b {
		b[i] = byte(arr.Elements[offset+i].Int)
	}
	return b
}

// decodeUTF8 decodes like new String(bytes, UTF_8): malformed input becomes
// U+FFFD.
func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// checkRange validates an (offset, count) pair against length.
func (vm *VM) checkRange(offset, count int32, length int) error {
	if offset < 0 || count < 0 || int(offset)+int(count) > length {
		return vm.throwNew("java/lang/StringIndexOutOfBoundsException",
			"offset %d, count %d, length %d", offset, count, length)
	}
	return nil
}

func (vm *VM) initString(ctx *InvocationContext, s string) (Value, error) {
	receiver(ctx).Native = s
	return Value{}, nil
}

func (vm *VM) registerStringNatives() {
	const owner = stringClass
	vm.def(owner, "<init>()V", func(ctx *InvocationContext) (Value, error) {
		return vm.initString(ctx, "")
	})
	vm.def(owner, "<init>(Ljava/lang/String;)V", func(ctx *InvocationContext) (Value, error) {
		s, err := vm.stringArg(ctx, 1, "<init>")
		if err != nil {
			return Value{}, err
		}
		return vm.initString(ctx, s)
	})
	vm.def(owner, "<init>([C)V", func(ctx *InvocationContext) (Value, error) {
		arr := ctx.Arg(1).Array()
		if arr == nil {
			return Value{}, vm.throwNPE("Cannot read the array length because \"value\" is null")
		}
		return vm.initString(ctx, native.FromUTF16(unitsOf(arr, 0, len(arr.Elements))))
	})
	vm.def(owner, "<init>([CII)V", func(ctx *InvocationContext) (Value, error) {
		arr := ctx.Arg(1).Array()
		if arr == nil {
			return Value{}, vm.throwNPE("Cannot read the array length because \"value\" is null")
		}
		off, n := ctx.Arg(2).Int, ctx.Arg(3).Int
		if err := vm.checkRange(off, n, len(arr.Elements)); err != nil {
			return Value{}, err
		}
		return vm.initString(ctx, native.FromUTF16(unitsOf(arr, int(off), int(n))))
	})
	vm.def(owner, "<init>([B)V", func(ctx *InvocationContext) (Value, error) {
		arr := ctx.Arg(1).Array()
		if arr == nil {
			return Value{}, vm.throwNPE("Cannot read the array length because \"bytes\" is null")
		}
		return vm.initString(ctx, decodeUTF8(bytesOf(arr, 0, len(arr.Elements))))
	})
	vm.def(owner, "<init>([BII)V", func(ctx *InvocationContext) (Value, error) {
		arr := ctx.Arg(1).Array()
		if arr == nil {
			return Value{}, vm.throwNPE("Cannot read the array length because \"bytes\" is null")
		}
		off, n := ctx.Arg(2).Int, ctx.Arg(3).Int
		if err := vm.checkRange(off, n, len(arr.Elements)); err != nil {
			return Value{}, err
		}
		return vm.initString(ctx, decodeUTF8(bytesOf(arr, int(off), int(n))))
	})
	vm.def(owner, "<init>(Ljava/lang/StringBuilder;)V", func(ctx *InvocationContext) (Value, error) {
		return vm.initString(ctx, builderOf(ctx.Arg(1).Object()).String())
	})

	vm.def(owner, "length()I", func(ctx *InvocationContext) (Value, error) {
		return IntValue(int32(len(native.UTF16(thisString(ctx))))), nil
	})
	vm.def(owner, "isEmpty()Z", func(ctx *InvocationContext) (Value, error) {
		return BoolValue(thisString(ctx) == ""), nil
	})
	vm.def(owner, "charAt(I)C", func(ctx *InvocationContext) (Value, error) {
		units := native.UTF16(thisString(ctx))
		i := ctx.Arg(1).Int
		if i < 0 || int(i) >= len(units) {
			return Value{}, vm.throwNew("java/lang/StringIndexOutOfBoundsException",
				"Index %d out of bounds for length %d", i, len(units))
		}
		return IntValue(int32(units[i])), nil
	})
	vm.def(owner, "equals(Ljava/lang/Object;)Z", func(ctx *InvocationContext) (Value, error) {
		other, ok := GoString(ctx.Arg(1))
		return BoolValue(ok && other == thisString(ctx)), nil
	})
	vm.def(owner, "hashCode()I", func(ctx *InvocationContext) (Value, error) {
		return IntValue(javaHashCode(thisString(ctx))), nil
	})
	vm.def(owner, "concat(Ljava/lang/String;)Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		s, err := vm.stringArg(ctx, 1, "concat(String)")
		if err != nil {
			return Value{}, err
		}
		if s == "" {
			return ctx.Arg(0), nil
		}
		return RefValue(vm.NewString(thisString(ctx) + s)), nil
	})
	vm.def(owner, "toCharArray()[C", func(ctx *InvocationContext) (Value, error) {
		return RefValue(charArray(thisString(ctx))), nil
	})
	vm.def(owner, "getBytes()[B", func(ctx *InvocationContext) (Value, error) {
		return RefValue(byteArray([]byte(thisString(ctx)))), nil
	})
	vm.def(owner, "substring(I)Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		units := native.UTF16(thisString(ctx))
		return vm.substring(units, ctx.Arg(1).Int, int32(len(units)))
	})
	vm.def(owner, "substring(II)Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		return vm.substring(native.UTF16(thisString(ctx)), ctx.Arg(1).Int, ctx.Arg(2).Int)
	})
	vm.def(owner, "indexOf(I)I", func(ctx *InvocationContext) (Value, error) {
		return IntValue(indexOfChar(native.UTF16(thisString(ctx)), ctx.Arg(1).Int)), nil
	})
	vm.def(owner, "indexOf(Ljava/lang/String;)I", func(ctx *InvocationContext) (Value, error) {
		needle, err := vm.stringArg(ctx, 1, "indexOf(String)")
		if err != nil {
			return Value{}, err
		}
		return IntValue(indexOfUnits(native.UTF16(thisString(ctx)), native.UTF16(needle))), nil
	})
	vm.def(owner, "startsWith(Ljava/lang/String;)Z", func(ctx *InvocationContext) (Value, error) {
		prefix, err := vm.stringArg(ctx, 1, "startsWith(String)")
		if err != nil {
			return Value{}, err
		}
		return BoolValue(strings.HasPrefix(thisString(ctx), prefix)), nil
	})
	vm.def(owner, "intern()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		return RefValue(vm.InternString(thisString(ctx))), nil
	})
	vm.def(owner, "toString()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		return ctx.Arg(0), nil
	})

	for _, desc := range []string{"I", "J", "Z", "C", "F", "D", "Ljava/lang/Object;"} {
		t, _ := classfile.ParseFieldType(desc)
		vm.def(owner, "valueOf("+desc+")Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
			s, err := vm.valueString(ctx.Arg(0), t)
			if err != nil {
				return Value{}, err
			}
			return RefValue(vm.NewString(s)), nil
		})
	}
	vm.def(owner, "valueOf([C)Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		arr := ctx.Arg(0).Array()
		if arr == nil {
			return Value{}, vm.throwNPE("Cannot read the array length because \"value\" is null")
		}
		return RefValue(vm.NewString(native.FromUTF16(unitsOf(arr, 0, len(arr.Elements))))), nil
	})
}

func (vm *VM) substring(units []uint16, begin, end int32) (Value, error) {
	if begin < 0 || end > int32(len(units)) || begin > end {
		return Value{}, vm.throwNew("java/lang/StringIndexOutOfBoundsException",
			"begin %d, end %d, length %d", begin, end, len(units))
	}
	return RefValue(vm.NewString(native.FromUTF16(units[begin:end]))), nil
}

func indexOfChar(units []uint16, ch int32) int32 {
	if ch >= 0x10000 {
		return indexOfUnits(units, native.UTF16(string(rune(ch))))
	}
	for i, u := range units {
		if int32(u) == ch {
			return int32(i)
		}
	}
	return -1
}

func indexOfUnits(haystack, needle []uint16) int32 {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return int32(i)
		}
	}
	return -1
}

// builderOf returns the buffer behind a StringBuilder, creating it for
// builders whose constructor never ran.
func builderOf(obj *JObject) *native.StringBuilder {
	if obj == nil {
		return native.NewStringBuilder("")
	}
	sb, ok := obj.Native.(*native.StringBuilder)
	if !ok {
		sb = native.NewStringBuilder("")
		obj.Native = sb
	}
	return sb
}

func (vm *VM) registerStringBuilderNatives() {
	const owner = "java/lang/StringBuilder"
	vm.def(owner, "<init>()V", func(ctx *InvocationContext) (Value, error) {
		receiver(ctx).Native = native.NewStringBuilder("")
		return Value{}, nil
	})
	vm.def(owner, "<init>(I)V", func(ctx *InvocationContext) (Value, error) {
		if ctx.Arg(1).Int < 0 {
			return Value{}, vm.throwNew("java/lang/NegativeArraySizeException", "%d", ctx.Arg(1).Int)
		}
		receiver(ctx).Native = native.NewStringBuilder("")
		return Value{}, nil
	})
	vm.def(owner, "<init>(Ljava/lang/String;)V", func(ctx *InvocationContext) (Value, error) {
		s, err := vm.stringArg(ctx, 1, "length()")
		if err != nil {
			return Value{}, err
		}
		receiver(ctx).Native = native.NewStringBuilder(s)
		return Value{}, nil
	})

	for _, desc := range []string{"Ljava/lang/String;", "I", "J", "Z", "C", "F", "D", "Ljava/lang/Object;", "Ljava/lang/CharSequence;"} {
		t, _ := classfile.ParseFieldType(desc)
		vm.def(owner, "append("+desc+")Ljava/lang/StringBuilder;", func(ctx *InvocationContext) (Value, error) {
			s, err := vm.valueString(ctx.Arg(1), t)
			if err != nil {
				return Value{}, err
			}
			builderOf(receiver(ctx)).Append(s)
			return ctx.Arg(0), nil
		})
	}
	vm.def(owner, "append([C)Ljava/lang/StringBuilder;", func(ctx *InvocationContext) (Value, error) {
		arr := ctx.Arg(1).Array()
		if arr == nil {
			return Value{}, vm.throwNPE("Cannot read the array length because \"str\" is null")
		}
		sb := builderOf(receiver(ctx))
		for _, e := range arr.Elements {
			sb.AppendChar(uint16(e.Int))
		}
		return ctx.Arg(0), nil
	})
	vm.def(owner, "toString()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		return RefValue(vm.NewString(builderOf(receiver(ctx)).String())), nil
	})
	vm.def(owner, "length()I", func(ctx *InvocationContext) (Value, error) {
		return IntValue(int32(builderOf(receiver(ctx)).Len())), nil
	})
	vm.def(owner, "reverse()Ljava/lang/StringBuilder;", func(ctx *InvocationContext) (Value, error) {
		builderOf(receiver(ctx)).Reverse()
		return ctx.Arg(0), nil
	})
	vm.def(owner, "charAt(I)C", func(ctx *InvocationContext) (Value, error) {
		sb := builderOf(receiver(ctx))
		c, ok := sb.CharAt(int(ctx.Arg(1).Int))
		if !ok {
			return Value{}, vm.throwNew("java/lang/StringIndexOutOfBoundsException",
				"index %d,length %d", ctx.Arg(1).Int, sb.Len())
		}
		return IntValue(int32(c)), nil
	})
	vm.def(owner, "setCharAt(IC)V", func(ctx *InvocationContext) (Value, error) {
		sb := builderOf(receiver(ctx))
		if !sb.SetCharAt(int(ctx.Arg(1).Int), uint16(ctx.Arg(2).Int)) {
			return Value{}, vm.throwNew("java/lang/StringIndexOutOfBoundsException",
				"index %d,length %d", ctx.Arg(1).Int, sb.Len())
		}
		return Value{}, nil
	})
}
