package vm

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
	"github.com/daimatz/jvmsandbox/pkg/native"
)

// nativeFunc implements an intrinsic that always completes the call.
type nativeFunc func(ctx *InvocationContext) (Value, error)

// registerNatives installs the intrinsic implementations of the core library.
// They take precedence over bytecode, so a full JDK snapshot and a trimmed
// stub library behave the same for these methods.
func (vm *VM) registerNatives() {
	vm.registerObjectNatives()
	vm.registerClassNatives()
	vm.registerStringNatives()
	vm.registerStringBuilderNatives()
	vm.registerIntegerNatives()
	vm.registerMathNatives()
	vm.registerSystemNatives()
	vm.registerPrintStreamNatives()
	vm.registerThreadNatives()
	vm.registerThrowableNatives()
	vm.registerStackTraceElementNatives()
	vm.registerRuntimeNatives()
	vm.registerHashMapNatives()
}

// def registers fn for owner under a "name(desc)ret" signature.
func (vm *VM) def(owner, sig string, fn nativeFunc) {
	i := strings.IndexByte(sig, '(')
	vm.registerNative(owner, sig[:i], sig[i:], nativeFn(fn))
}

func noop(*InvocationContext) (Value, error) { return Value{}, nil }

// instantiate allocates an object of the named class without running a
// constructor. Classes missing from the class path still get an object
// carrying the name.
func (vm *VM) instantiate(name string) *JObject {
	if c, err := vm.FindClass(name); err == nil {
		return newObject(c)
	}
	return &JObject{ClassName: name, Fields: make(map[string]Value)}
}

// receiver returns the object argument 0 refers to.
func receiver(ctx *InvocationContext) *JObject {
	return ctx.Arg(0).Object()
}

func (vm *VM) registerObjectNatives() {
	const owner = "java/lang/Object"
	vm.def(owner, "registerNatives()V", noop)
	vm.def(owner, "<init>()V", noop)
	vm.def(owner, "hashCode()I", func(ctx *InvocationContext) (Value, error) {
		return IntValue(vm.identityHash(ctx.Arg(0).Ref)), nil
	})
	vm.def(owner, "equals(Ljava/lang/Object;)Z", func(ctx *InvocationContext) (Value, error) {
		return BoolValue(sameRef(ctx.Arg(0), ctx.Arg(1))), nil
	})
	vm.def(owner, "getClass()Ljava/lang/Class;", func(ctx *InvocationContext) (Value, error) {
		c, err := vm.classOf(ctx.Arg(0))
		if err != nil {
			return Value{}, vm.asThrowable(err)
		}
		return RefValue(vm.mirror(c)), nil
	})
	vm.def(owner, "toString()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		h, err := vm.invokeVirtual(ctx.Arg(0), "hashCode", "()I")
		if err != nil {
			return Value{}, err
		}
		name := classfile.DotName(className(ctx.Arg(0)))
		return RefValue(vm.NewString(name + "@" + strconv.FormatUint(uint64(uint32(h.Int)), 16))), nil
	})
	vm.def(owner, "clone()Ljava/lang/Object;", func(ctx *InvocationContext) (Value, error) {
		switch r := ctx.Arg(0).Ref.(type) {
		case *JArray:
			elems := make([]Value, len(r.Elements))
			copy(elems, r.Elements)
			return RefValue(&JArray{Type: r.Type, Elements: elems}), nil
		case *JObject:
			if !vm.isInstanceOf(r, "java/lang/Cloneable") {
				return Value{}, vm.throwNew("java/lang/CloneNotSupportedException", "%s", classfile.DotName(r.ClassName))
			}
			dup := &JObject{ClassName: r.ClassName, Class: r.Class, Native: r.Native, Fields: make(map[string]Value, len(r.Fields))}
			for k, v := range r.Fields {
				dup.Fields[k] = v
			}
			return RefValue(dup), nil
		}
		return Value{}, vm.throwNPE("Cannot invoke \"Object.clone()\" because value is null")
	})
}

func (vm *VM) registerClassNatives() {
	const owner = "java/lang/Class"
	vm.def(owner, "registerNatives()V", noop)
	vm.def(owner, "desiredAssertionStatus()Z", func(*InvocationContext) (Value, error) {
		return BoolValue(false), nil
	})
	vm.def(owner, "getName()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		c, ok := receiver(ctx).Native.(*Class)
		if !ok {
			return NullValue(), nil
		}
		return RefValue(vm.InternString(c.DotName())), nil
	})
	vm.def(owner, "getSimpleName()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		c, ok := receiver(ctx).Native.(*Class)
		if !ok {
			return NullValue(), nil
		}
		name := c.Name
		if i := strings.LastIndexAny(name, "/$"); i >= 0 {
			name = name[i+1:]
		}
		return RefValue(vm.NewString(name)), nil
	})
	vm.def(owner, "toString()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		c, ok := receiver(ctx).Native.(*Class)
		if !ok {
			return NullValue(), nil
		}
		kind := "class "
		if c.IsInterface() {
			kind = "interface "
		}
		return RefValue(vm.NewString(kind + c.DotName())), nil
	})
}

// boxInteger is Integer.valueOf; values in [-128, 127] are cached.
func (vm *VM) boxInteger(v int32) *JObject {
	cacheable := v >= -128 && v <= 127
	if cacheable {
		if obj, ok := vm.boxed[v]; ok {
			return obj
		}
	}
	obj := vm.instantiate("java/lang/Integer")
	obj.SetField("value", "I", IntValue(v))
	obj.Native = native.IntegerValueOf(v)
	if cacheable {
		vm.boxed[v] = obj
	}
	return obj
}

// unboxInteger reads the int inside an Integer.
func unboxInteger(obj *JObject) int32 {
	if ni, ok := obj.Native.(*native.NativeInteger); ok {
		return native.IntegerIntValue(ni)
	}
	return obj.GetField("value", "I").Int
}

func (vm *VM) parseInt(v Value, radix int32) (Value, error) {
	s, ok := GoString(v)
	if !ok {
		return Value{}, vm.throwNew("java/lang/NumberFormatException", "Cannot parse null string: null")
	}
	n, err := native.ParseInt(s, int(radix))
	if err != nil {
		return Value{}, vm.throwNew("java/lang/NumberFormatException", "%s", err.Error())
	}
	return IntValue(n), nil
}

func (vm *VM) registerIntegerNatives() {
	const owner = "java/lang/Integer"
	vm.def(owner, "valueOf(I)Ljava/lang/Integer;", func(ctx *InvocationContext) (Value, error) {
		return RefValue(vm.boxInteger(ctx.Arg(0).Int)), nil
	})
	vm.def(owner, "valueOf(Ljava/lang/String;)Ljava/lang/Integer;", func(ctx *InvocationContext) (Value, error) {
		v, err := vm.parseInt(ctx.Arg(0), 10)
		if err != nil {
			return Value{}, err
		}
		return RefValue(vm.boxInteger(v.Int)), nil
	})
	vm.def(owner, "<init>(I)V", func(ctx *InvocationContext) (Value, error) {
		obj := receiver(ctx)
		obj.SetField("value", "I", ctx.Arg(1))
		obj.Native = native.IntegerValueOf(ctx.Arg(1).Int)
		return Value{}, nil
	})
	vm.def(owner, "intValue()I", func(ctx *InvocationContext) (Value, error) {
		return IntValue(unboxInteger(receiver(ctx))), nil
	})
	vm.def(owner, "hashCode()I", func(ctx *InvocationContext) (Value, error) {
		return IntValue(unboxInteger(receiver(ctx))), nil
	})
	vm.def(owner, "equals(Ljava/lang/Object;)Z", func(ctx *InvocationContext) (Value, error) {
		other := ctx.Arg(1).Object()
		if other == nil || !vm.isInstanceOf(other, owner) {
			return BoolValue(false), nil
		}
		return BoolValue(unboxInteger(receiver(ctx)) == unboxInteger(other)), nil
	})
	vm.def(owner, "parseInt(Ljava/lang/String;)I", func(ctx *InvocationContext) (Value, error) {
		return vm.parseInt(ctx.Arg(0), 10)
	})
	vm.def(owner, "parseInt(Ljava/lang/String;I)I", func(ctx *InvocationContext) (Value, error) {
		return vm.parseInt(ctx.Arg(0), ctx.Arg(1).Int)
	})
	vm.def(owner, "toString()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		return RefValue(vm.NewString(strconv.Itoa(int(unboxInteger(receiver(ctx)))))), nil
	})
	vm.def(owner, "toString(I)Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		return RefValue(vm.NewString(strconv.Itoa(int(ctx.Arg(0).Int)))), nil
	})
	vm.def(owner, "toHexString(I)Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		return RefValue(vm.NewString(strconv.FormatUint(uint64(uint32(ctx.Arg(0).Int)), 16))), nil
	})
}

func (vm *VM) registerMathNatives() {
	const owner = "java/lang/Math"
	vm.def(owner, "abs(I)I", func(ctx *InvocationContext) (Value, error) {
		v := ctx.Arg(0).Int
		if v < 0 {
			v = -v
		}
		return IntValue(v), nil
	})
	vm.def(owner, "abs(J)J", func(ctx *InvocationContext) (Value, error) {
		v := ctx.Arg(0).Long
		if v < 0 {
			v = -v
		}
		return LongValue(v), nil
	})
	vm.def(owner, "abs(F)F", func(ctx *InvocationContext) (Value, error) {
		return FloatValue(float32(math.Abs(float64(ctx.Arg(0).Float)))), nil
	})
	vm.def(owner, "abs(D)D", func(ctx *InvocationContext) (Value, error) {
		return DoubleValue(math.Abs(ctx.Arg(0).Double)), nil
	})
	vm.def(owner, "min(II)I", func(ctx *InvocationContext) (Value, error) {
		return IntValue(min(ctx.Arg(0).Int, ctx.Arg(1).Int)), nil
	})
	vm.def(owner, "max(II)I", func(ctx *InvocationContext) (Value, error) {
		return IntValue(max(ctx.Arg(0).Int, ctx.Arg(1).Int)), nil
	})
	vm.def(owner, "min(JJ)J", func(ctx *InvocationContext) (Value, error) {
		return LongValue(min(ctx.Arg(0).Long, ctx.Arg(1).Long)), nil
	})
	vm.def(owner, "max(JJ)J", func(ctx *InvocationContext) (Value, error) {
		return LongValue(max(ctx.Arg(0).Long, ctx.Arg(1).Long)), nil
	})
	// math.Min and math.Max follow Java for NaN and signed zeros.
	vm.def(owner, "min(FF)F", func(ctx *InvocationContext) (Value, error) {
		return FloatValue(float32(math.Min(float64(ctx.Arg(0).Float), float64(ctx.Arg(1).Float)))), nil
	})
	vm.def(owner, "max(FF)F", func(ctx *InvocationContext) (Value, error) {
		return FloatValue(float32(math.Max(float64(ctx.Arg(0).Float), float64(ctx.Arg(1).Float)))), nil
	})
	vm.def(owner, "min(DD)D", func(ctx *InvocationContext) (Value, error) {
		return DoubleValue(math.Min(ctx.Arg(0).Double, ctx.Arg(1).Double)), nil
	})
	vm.def(owner, "max(DD)D", func(ctx *InvocationContext) (Value, error) {
		return DoubleValue(math.Max(ctx.Arg(0).Double, ctx.Arg(1).Double)), nil
	})
}

// execOverloads are the Runtime.exec signatures; the sandbox policy blocks
// every one of them.
var execOverloads = []string{
	"(Ljava/lang/String;)Ljava/lang/Process;",
	"(Ljava/lang/String;[Ljava/lang/String;)Ljava/lang/Process;",
	"(Ljava/lang/String;[Ljava/lang/String;Ljava/io/File;)Ljava/lang/Process;",
	"([Ljava/lang/String;)Ljava/lang/Process;",
	"([Ljava/lang/String;[Ljava/lang/String;)Ljava/lang/Process;",
	"([Ljava/lang/String;[Ljava/lang/String;Ljava/io/File;)Ljava/lang/Process;",
}

// ExecOverloads returns the descriptors of every Runtime.exec overload.
func ExecOverloads() []string {
	return append([]string(nil), execOverloads...)
}

// ErrNoSpawner is returned to Runtime.exec when the VM has no process spawner.
var ErrNoSpawner = errors.New("process execution is not supported")

func (vm *VM) registerRuntimeNatives() {
	const owner = "java/lang/Runtime"
	vm.def(owner, "getRuntime()Ljava/lang/Runtime;", func(*InvocationContext) (Value, error) {
		if vm.runtime == nil {
			vm.runtime = vm.instantiate(owner)
		}
		return RefValue(vm.runtime), nil
	})
	vm.def(owner, "availableProcessors()I", func(*InvocationContext) (Value, error) {
		return IntValue(1), nil
	})
	for _, desc := range execOverloads {
		vm.def(owner, "exec"+desc, vm.exec)
	}
}

// exec runs Runtime.exec through the configured ProcessSpawner.
func (vm *VM) exec(ctx *InvocationContext) (Value, error) {
	var argv []string
	cmd := ctx.Arg(1)
	if s, ok := GoString(cmd); ok {
		argv = strings.Fields(s)
	} else if arr := cmd.Array(); arr != nil {
		for _, e := range arr.Elements {
			s, _ := GoString(e)
			argv = append(argv, s)
		}
	} else {
		return Value{}, vm.throwNPE("Cannot run program because command is null")
	}
	if len(argv) == 0 {
		return Value{}, vm.throwNew("java/lang/IllegalArgumentException", "Empty command")
	}
	err := ErrNoSpawner
	if vm.spawner != nil {
		err = vm.spawner(argv)
	}
	if err != nil {
		return Value{}, vm.throwNew("java/io/IOException", "Cannot run program \"%s\": %v", argv[0], err)
	}
	return RefValue(vm.instantiate("java/lang/Process")), nil
}
