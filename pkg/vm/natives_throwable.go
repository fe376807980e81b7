package vm

import (
	"fmt"
	"strings"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

const (
	throwableClass  = "java/lang/Throwable"
	stackTraceClass = "java/lang/StackTraceElement"

	messageField = "detailMessage"
	causeField   = "cause"
	stringDesc   = "Ljava/lang/String;"
	throwDesc    = "Ljava/lang/Throwable;"
)

// NewStackTrace builds a StackTraceElement[] from entries, initializing the
// element class first.
func (vm *VM) NewStackTrace(entries []StackTraceEntry) (*JArray, error) {
	c, err := vm.FindClass(stackTraceClass)
	if err != nil {
		return nil, vm.asThrowable(err)
	}
	if err := vm.initializeClass(c); err != nil {
		return nil, err
	}
	arr := newArray("[L"+stackTraceClass+";", len(entries))
	for i, e := range entries {
		arr.Elements[i] = RefValue(vm.newStackTraceElement(c, e))
	}
	return arr, nil
}

func (vm *VM) newStackTraceElement(c *Class, e StackTraceEntry) *JObject {
	obj := newObject(c)
	obj.SetField("declaringClass", stringDesc, RefValue(vm.NewString(e.ClassName)))
	obj.SetField("methodName", stringDesc, RefValue(vm.NewString(e.MethodName)))
	if e.FileName != "" {
		obj.SetField("fileName", stringDesc, RefValue(vm.NewString(e.FileName)))
	}
	obj.SetField("lineNumber", "I", IntValue(int32(e.Line)))
	return obj
}

// StackTraceEntryOf reads a StackTraceElement object back into an entry.
func StackTraceEntryOf(obj *JObject) StackTraceEntry {
	cls, _ := GoString(obj.GetField("declaringClass", stringDesc))
	method, _ := GoString(obj.GetField("methodName", stringDesc))
	file, _ := GoString(obj.GetField("fileName", stringDesc))
	return StackTraceEntry{
		ClassName:  cls,
		MethodName: method,
		FileName:   file,
		Line:       int(obj.GetField("lineNumber", "I").Int),
	}
}

func (vm *VM) registerStackTraceElementNatives() {
	const owner = stackTraceClass
	vm.def(owner, "<init>(Ljava/lang/String;Ljava/lang/String;Ljava/lang/String;I)V", func(ctx *InvocationContext) (Value, error) {
		obj := receiver(ctx)
		if ctx.Arg(1).IsNull() || ctx.Arg(2).IsNull() {
			return Value{}, vm.throwNPE("declaringClass and methodName must not be null")
		}
		obj.SetField("declaringClass", stringDesc, ctx.Arg(1))
		obj.SetField("methodName", stringDesc, ctx.Arg(2))
		obj.SetField("fileName", stringDesc, ctx.Arg(3))
		obj.SetField("lineNumber", "I", ctx.Arg(4))
		return Value{}, nil
	})
	for _, field := range []string{"declaringClass", "methodName", "fileName"} {
		getter := "get" + strings.ToUpper(field[:1]) + field[1:]
		if field == "declaringClass" {
			getter = "getClassName"
		}
		vm.def(owner, getter+"()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
			return receiver(ctx).GetField(field, stringDesc), nil
		})
	}
	vm.def(owner, "getLineNumber()I", func(ctx *InvocationContext) (Value, error) {
		return receiver(ctx).GetField("lineNumber", "I"), nil
	})
	vm.def(owner, "isNativeMethod()Z", func(ctx *InvocationContext) (Value, error) {
		return BoolValue(receiver(ctx).GetField("lineNumber", "I").Int == -2), nil
	})
	vm.def(owner, "toString()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		return RefValue(vm.NewString(StackTraceEntryOf(receiver(ctx)).String())), nil
	})
}

// fillInStackTrace records the current frames as the throwable's backtrace.
func (vm *VM) fillInStackTrace(obj *JObject) {
	obj.Native = vm.captureBacktrace(obj)
}

func (vm *VM) registerThrowableNatives() {
	const owner = throwableClass
	vm.def(owner, "<init>()V", func(ctx *InvocationContext) (Value, error) {
		vm.fillInStackTrace(receiver(ctx))
		return Value{}, nil
	})
	vm.def(owner, "<init>(Ljava/lang/String;)V", func(ctx *InvocationContext) (Value, error) {
		obj := receiver(ctx)
		obj.SetField(messageField, stringDesc, ctx.Arg(1))
		vm.fillInStackTrace(obj)
		return Value{}, nil
	})
	vm.def(owner, "<init>(Ljava/lang/String;Ljava/lang/Throwable;)V", func(ctx *InvocationContext) (Value, error) {
		obj := receiver(ctx)
		obj.SetField(messageField, stringDesc, ctx.Arg(1))
		obj.SetField(causeField, throwDesc, ctx.Arg(2))
		vm.fillInStackTrace(obj)
		return Value{}, nil
	})
	vm.def(owner, "<init>(Ljava/lang/Throwable;)V", func(ctx *InvocationContext) (Value, error) {
		obj := receiver(ctx)
		cause := ctx.Arg(1)
		if !cause.IsNull() {
			s, err := vm.toJavaString(cause)
			if err != nil {
				return Value{}, err
			}
			obj.SetField(messageField, stringDesc, RefValue(vm.NewString(s)))
		}
		obj.SetField(causeField, throwDesc, cause)
		vm.fillInStackTrace(obj)
		return Value{}, nil
	})
	vm.def(owner, "fillInStackTrace()Ljava/lang/Throwable;", func(ctx *InvocationContext) (Value, error) {
		vm.fillInStackTrace(receiver(ctx))
		return ctx.Arg(0), nil
	})
	vm.def(owner, "fillInStackTrace(I)Ljava/lang/Throwable;", func(ctx *InvocationContext) (Value, error) {
		vm.fillInStackTrace(receiver(ctx))
		return ctx.Arg(0), nil
	})
	vm.def(owner, "getMessage()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		return receiver(ctx).GetField(messageField, stringDesc), nil
	})
	vm.def(owner, "getLocalizedMessage()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		return vm.invokeVirtual(ctx.Arg(0), "getMessage", "()Ljava/lang/String;")
	})
	vm.def(owner, "getCause()Ljava/lang/Throwable;", func(ctx *InvocationContext) (Value, error) {
		obj := receiver(ctx)
		cause := obj.GetField(causeField, throwDesc)
		if cause.Object() == obj {
			return NullValue(), nil
		}
		return cause, nil
	})
	vm.def(owner, "initCause(Ljava/lang/Throwable;)Ljava/lang/Throwable;", func(ctx *InvocationContext) (Value, error) {
		obj := receiver(ctx)
		if ctx.Arg(1).Object() == obj {
			return Value{}, vm.throwNew("java/lang/IllegalArgumentException", "Self-causation not permitted")
		}
		obj.SetField(causeField, throwDesc, ctx.Arg(1))
		return ctx.Arg(0), nil
	})
	vm.def(owner, "toString()Ljava/lang/String;", func(ctx *InvocationContext) (Value, error) {
		s, err := vm.throwableString(ctx.Arg(0))
		if err != nil {
			return Value{}, err
		}
		return RefValue(vm.NewString(s)), nil
	})
	vm.def(owner, "getStackTrace()[Ljava/lang/StackTraceElement;", func(ctx *InvocationContext) (Value, error) {
		bt, _ := receiver(ctx).Native.([]StackTraceEntry)
		arr, err := vm.NewStackTrace(bt)
		if err != nil {
			return Value{}, err
		}
		return RefValue(arr), nil
	})
	vm.def(owner, "printStackTrace()V", func(ctx *InvocationContext) (Value, error) {
		s, err := vm.formatStackTrace(ctx.Arg(0))
		if err != nil {
			return Value{}, err
		}
		fmt.Fprint(vm.files.Stderr(), s)
		return Value{}, nil
	})
}

// throwableString is Throwable.toString: the class name, then ": " and the
// localized message when there is one.
func (vm *VM) throwableString(v Value) (string, error) {
	name := classfile.DotName(className(v))
	msg, err := vm.invokeVirtual(v, "getLocalizedMessage", "()Ljava/lang/String;")
	if err != nil {
		return "", err
	}
	if s, ok := GoString(msg); ok {
		return name + ": " + s, nil
	}
	return name, nil
}

// formatStackTrace renders printStackTrace output, following causes.
func (vm *VM) formatStackTrace(v Value) (string, error) {
	var sb strings.Builder
	seen := map[*JObject]bool{}
	prefix := ""
	for cur := v.Object(); cur != nil && !seen[cur]; {
		seen[cur] = true
		s, err := vm.toJavaString(RefValue(cur))
		if err != nil {
			return "", err
		}
		sb.WriteString(prefix + s + "\n")
		bt, _ := cur.Native.([]StackTraceEntry)
		for _, e := range bt {
			sb.WriteString("\tat " + e.String() + "\n")
		}
		next := cur.GetField(causeField, throwDesc).Object()
		if next == cur {
			break
		}
		cur = next
		prefix = "Caused by: "
	}
	return sb.String(), nil
}
