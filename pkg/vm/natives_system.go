package vm

import (
	"time"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
	"github.com/daimatz/jvmsandbox/pkg/native"
)

const systemClass = "java/lang/System"

// newPrintStream allocates a java/io/PrintStream writing to one of the
// FileManager's buffers.
func (vm *VM) newPrintStream(ps *native.PrintStream) *JObject {
	obj := vm.instantiate("java/io/PrintStream")
	obj.Native = ps
	return obj
}

func (vm *VM) registerSystemNatives() {
	const owner = systemClass
	vm.def(owner, "registerNatives()V", noop)
	vm.def(owner, "initPhase1()V", func(*InvocationContext) (Value, error) {
		system, err := vm.FindClass(owner)
		if err != nil {
			return Value{}, vm.asThrowable(err)
		}
		out := vm.newPrintStream(&native.PrintStream{Writer: vm.files.Stdout()})
		errs := vm.newPrintStream(&native.PrintStream{Writer: vm.files.Stderr()})
		system.SetStatic("out", "Ljava/io/PrintStream;", RefValue(out))
		system.SetStatic("err", "Ljava/io/PrintStream;", RefValue(errs))
		return Value{}, nil
	})
	// The module system cannot be booted on this interpreter; callers that
	// need a booted VM install a compatibility override for this phase.
	vm.def(owner, "initPhase2(ZZ)I", func(*InvocationContext) (Value, error) {
		return Value{}, vm.throwNew("java/lang/InternalError", "module system initialization is not supported")
	})
	vm.def(owner, "initPhase3()V", noop)
	vm.def(owner, "currentTimeMillis()J", func(*InvocationContext) (Value, error) {
		return LongValue(time.Now().UnixMilli()), nil
	})
	vm.def(owner, "nanoTime()J", func(*InvocationContext) (Value, error) {
		return LongValue(time.Now().UnixNano()), nil
	})
	vm.def(owner, "identityHashCode(Ljava/lang/Object;)I", func(ctx *InvocationContext) (Value, error) {
		return IntValue(vm.identityHash(ctx.Arg(0).Ref)), nil
	})
	vm.def(owner, "lineSeparator()Ljava/lang/String;", func(*InvocationContext) (Value, error) {
		return RefValue(vm.InternString("\n")), nil
	})
	vm.def(owner, "arraycopy(Ljava/lang/Object;ILjava/lang/Object;II)V", vm.arraycopy)
}

func (vm *VM) arraycopy(ctx *InvocationContext) (Value, error) {
	srcRef, dstRef := ctx.Arg(0), ctx.Arg(2)
	srcPos, dstPos, n := ctx.Arg(1).Int, ctx.Arg(3).Int, ctx.Arg(4).Int
	if srcRef.IsNull() || dstRef.IsNull() {
		return Value{}, vm.throwNPE("")
	}
	src, dst := srcRef.Array(), dstRef.Array()
	if src == nil || dst == nil {
		return Value{}, vm.throwNew("java/lang/ArrayStoreException", "arraycopy: argument type mismatch")
	}
	se, de := src.ElementType(), dst.ElementType()
	srcRefs := se[0] == 'L' || se[0] == '['
	dstRefs := de[0] == 'L' || de[0] == '['
	if srcRefs != dstRefs || (!srcRefs && se != de) {
		return Value{}, vm.throwNew("java/lang/ArrayStoreException",
			"arraycopy: type mismatch: can not copy %s[] into %s[]",
			classfile.DescribeFieldType(se), classfile.DescribeFieldType(de))
	}
	switch {
	case n < 0:
		return Value{}, vm.throwNew("java/lang/ArrayIndexOutOfBoundsException", "arraycopy: length %d is negative", n)
	case srcPos < 0 || int(srcPos)+int(n) > len(src.Elements):
		return Value{}, vm.throwNew("java/lang/ArrayIndexOutOfBoundsException",
			"arraycopy: last source index %d out of bounds for length %d", int(srcPos)+int(n), len(src.Elements))
	case dstPos < 0 || int(dstPos)+int(n) > len(dst.Elements):
		return Value{}, vm.throwNew("java/lang/ArrayIndexOutOfBoundsException",
			"arraycopy: last destination index %d out of bounds for length %d", int(dstPos)+int(n), len(dst.Elements))
	}
	if srcRefs && src != dst {
		elem := refName(de)
		for i := int32(0); i < n; i++ {
			v := src.Elements[srcPos+i]
			if !v.IsNull() && !vm.isInstanceOf(v.Ref, elem) {
				return Value{}, vm.throwNew("java/lang/ArrayStoreException",
					"arraycopy: element type mismatch")
			}
			dst.Elements[dstPos+i] = v
		}
		return Value{}, nil
	}
	copy(dst.Elements[dstPos:dstPos+n], src.Elements[srcPos:srcPos+n])
	return Value{}, nil
}

// printStreamOf returns the stream behind a PrintStream object, defaulting to
// standard output for streams the VM did not create.
func (vm *VM) printStreamOf(obj *JObject) *native.PrintStream {
	if obj != nil {
		if ps, ok := obj.Native.(*native.PrintStream); ok {
			return ps
		}
	}
	return &native.PrintStream{Writer: vm.files.Stdout()}
}

func (vm *VM) registerPrintStreamNatives() {
	const owner = "java/io/PrintStream"
	vm.def(owner, "println()V", func(ctx *InvocationContext) (Value, error) {
		vm.printStreamOf(receiver(ctx)).Println("")
		return Value{}, nil
	})
	for _, desc := range []string{"Ljava/lang/String;", "I", "J", "Z", "C", "F", "D", "Ljava/lang/Object;", "[C"} {
		t, _ := classfile.ParseFieldType(desc)
		text := func(v Value) (string, error) {
			if t.Dims == 1 && t.Base == classfile.TypeChar {
				arr := v.Array()
				if arr == nil {
					return "", vm.throwNPE("Cannot read the array length because \"s\" is null")
				}
				return native.FromUTF16(unitsOf(arr, 0, len(arr.Elements))), nil
			}
			return vm.valueString(v, t)
		}
		vm.def(owner, "print("+desc+")V", func(ctx *InvocationContext) (Value, error) {
			s, err := text(ctx.Arg(1))
			if err != nil {
				return Value{}, err
			}
			vm.printStreamOf(receiver(ctx)).Print(s)
			return Value{}, nil
		})
		vm.def(owner, "println("+desc+")V", func(ctx *InvocationContext) (Value, error) {
			s, err := text(ctx.Arg(1))
			if err != nil {
				return Value{}, err
			}
			vm.printStreamOf(receiver(ctx)).Println(s)
			return Value{}, nil
		})
	}
	vm.def(owner, "write(I)V", func(ctx *InvocationContext) (Value, error) {
		vm.printStreamOf(receiver(ctx)).Write([]byte{byte(ctx.Arg(1).Int)})
		return Value{}, nil
	})
	vm.def(owner, "flush()V", noop)
	vm.def(owner, "checkError()Z", func(ctx *InvocationContext) (Value, error) {
		return BoolValue(vm.printStreamOf(receiver(ctx)).CheckError()), nil
	})
}

func (vm *VM) registerThreadNatives() {
	const owner = "java/lang/Thread"
	vm.def(owner, "registerNatives()V", noop)
	vm.def(owner, "currentThread()Ljava/lang/Thread;", func(*InvocationContext) (Value, error) {
		if vm.thread == nil {
			return Value{}, ErrNoThread
		}
		return RefValue(vm.thread.javaObject()), nil
	})
	vm.def(owner, "getName()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		return receiver(ctx).GetField("name", "Ljava/lang/String;"), nil
	})
	// Frame 0 is getStackTrace itself, as on HotSpot.
	vm.def(owner, "getStackTrace()[Ljava/lang/StackTraceElement;", func(*InvocationContext) (Value, error) {
		arr, err := vm.NewStackTrace(vm.captureBacktrace(nil))
		if err != nil {
			return Value{}, err
		}
		return RefValue(arr), nil
	})
}

// hashMapKey normalises a key: strings by content, boxed integers by value,
// anything else by identity.
func hashMapKey(v Value) interface{} {
	if v.IsNull() {
		return nil
	}
	if s, ok := GoString(v); ok {
		return s
	}
	if obj := v.Object(); obj != nil {
		if ni, ok := obj.Native.(*native.NativeInteger); ok {
			return ni
		}
	}
	return v.Ref
}

func hashMapOf(obj *JObject) *native.NativeHashMap {
	m, ok := obj.Native.(*native.NativeHashMap)
	if !ok {
		m = native.NewNativeHashMap()
		obj.Native = m
	}
	return m
}

func mapValue(v interface{}) Value {
	if val, ok := v.(Value); ok {
		return val
	}
	return NullValue()
}

func (vm *VM) registerHashMapNatives() {
	const owner = "java/util/HashMap"
	vm.def(owner, "<init>()V", func(ctx *InvocationContext) (Value, error) {
		receiver(ctx).Native = native.NewNativeHashMap()
		return Value{}, nil
	})
	vm.def(owner, "<init>(I)V", func(ctx *InvocationContext) (Value, error) {
		if ctx.Arg(1).Int < 0 {
			return Value{}, vm.throwNew("java/lang/IllegalArgumentException", "Illegal initial capacity: %d", ctx.Arg(1).Int)
		}
		receiver(ctx).Native = native.NewNativeHashMap()
		return Value{}, nil
	})
	vm.def(owner, "get(Ljava/lang/Object;)Ljava/lang/Object;", func(ctx *InvocationContext) (Value, error) {
		return mapValue(hashMapOf(receiver(ctx)).Get(hashMapKey(ctx.Arg(1)))), nil
	})
	vm.def(owner, "put(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", func(ctx *InvocationContext) (Value, error) {
		return mapValue(hashMapOf(receiver(ctx)).Put(hashMapKey(ctx.Arg(1)), ctx.Arg(2))), nil
	})
	vm.def(owner, "remove(Ljava/lang/Object;)Ljava/lang/Object;", func(ctx *InvocationContext) (Value, error) {
		return mapValue(hashMapOf(receiver(ctx)).Remove(hashMapKey(ctx.Arg(1)))), nil
	})
	vm.def(owner, "containsKey(Ljava/lang/Object;)Z", func(ctx *InvocationContext) (Value, error) {
		return BoolValue(hashMapOf(receiver(ctx)).ContainsKey(hashMapKey(ctx.Arg(1)))), nil
	})
	vm.def(owner, "size()I", func(ctx *InvocationContext) (Value, error) {
		return IntValue(int32(hashMapOf(receiver(ctx)).Size())), nil
	})
	vm.def(owner, "isEmpty()Z", func(ctx *InvocationContext) (Value, error) {
		return BoolValue(hashMapOf(receiver(ctx)).Size() == 0), nil
	})
}
