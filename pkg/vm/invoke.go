package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
	"github.com/daimatz/jvmsandbox/pkg/native"
)

// methodDesc parses a method descriptor, caching the result.
func (vm *VM) methodDesc(desc string) (*classfile.MethodDescriptor, error) {
	if md, ok := vm.descs[desc]; ok {
		return md, nil
	}
	md, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return nil, err
	}
	vm.descs[desc] = md
	return md, nil
}

// popArgs pops n operands, returning them in call order.
func popArgs(frame *Frame, n int) []Value {
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = frame.Pop()
	}
	return args
}

// resolveMethod resolves name+desc against c for invokestatic and
// invokespecial. A method with an invoker but no declaration resolves to a
// synthetic method so trimmed core libraries still link.
func (vm *VM) resolveMethod(c *Class, name, desc string) *Method {
	for k := c; k != nil; k = k.Super {
		if m := k.Method(name, desc); m != nil {
			return m
		}
		if _, ok := vm.invokers[methodKey{owner: k.Name, name: name, desc: desc}]; ok {
			return vm.syntheticMethod(k, name, desc)
		}
	}
	return c.lookupInterfaceMethod(name, desc, map[*Class]bool{})
}

// call invokes m and pushes its result unless it returns void.
func (vm *VM) call(frame *Frame, m *Method, md *classfile.MethodDescriptor, args []Value) error {
	ret, err := vm.invoke(m, args)
	if err != nil {
		return err
	}
	if !md.Return.IsVoid() {
		frame.Push(ret)
	}
	return nil
}

func (vm *VM) executeInvokestatic(frame *Frame) error {
	index := frame.ReadU16()
	ref, err := classfile.ResolveMethodref(frame.Class.File.ConstantPool, index)
	if err != nil {
		return err
	}
	md, err := vm.methodDesc(ref.Descriptor)
	if err != nil {
		return err
	}
	c, err := vm.FindClass(ref.ClassName)
	if err != nil {
		return vm.asThrowable(err)
	}
	m := vm.resolveMethod(c, ref.MethodName, ref.Descriptor)
	if m == nil {
		return vm.throwNew("java/lang/NoSuchMethodError", "%s.%s%s", c.DotName(), ref.MethodName, ref.Descriptor)
	}
	if err := vm.initializeClass(m.Class); err != nil {
		return err
	}
	return vm.call(frame, m, md, popArgs(frame, len(md.Params)))
}

func (vm *VM) executeInvokespecial(frame *Frame) error {
	index := frame.ReadU16()
	ref, err := classfile.ResolveMethodref(frame.Class.File.ConstantPool, index)
	if err != nil {
		return err
	}
	md, err := vm.methodDesc(ref.Descriptor)
	if err != nil {
		return err
	}
	c, err := vm.FindClass(ref.ClassName)
	if err != nil {
		return vm.asThrowable(err)
	}

	var m *Method
	cur := frame.Class
	if ref.MethodName != "<init>" && c != cur && !c.IsInterface() && cur.Super != nil && cur.IsSubclassOf(c) {
		// super.m(): virtual lookup from the caller's superclass
		m = vm.selectMethod(cur.Super, ref.MethodName, ref.Descriptor)
	} else {
		m = vm.resolveMethod(c, ref.MethodName, ref.Descriptor)
	}
	if m == nil {
		return vm.throwNew("java/lang/NoSuchMethodError", "%s.%s%s", c.DotName(), ref.MethodName, ref.Descriptor)
	}

	args := popArgs(frame, len(md.Params)+1)
	if args[0].IsNull() {
		return vm.throwNPE(fmt.Sprintf("Cannot invoke \"%s.%s()\" because value is null", c.DotName(), ref.MethodName))
	}
	return vm.call(frame, m, md, args)
}

// executeInvokevirtual handles invokevirtual and invokeinterface.
func (vm *VM) executeInvokevirtual(frame *Frame, iface bool) error {
	index := frame.ReadU16()
	if iface {
		frame.ReadU8() // count
		frame.ReadU8() // always 0
	}
	ref, err := classfile.ResolveMethodref(frame.Class.File.ConstantPool, index)
	if err != nil {
		return err
	}
	md, err := vm.methodDesc(ref.Descriptor)
	if err != nil {
		return err
	}

	args := popArgs(frame, len(md.Params)+1)
	recv := args[0]
	if recv.IsNull() {
		return vm.throwNPE(fmt.Sprintf("Cannot invoke \"%s.%s()\" because value is null",
			classfile.DotName(ref.ClassName), ref.MethodName))
	}
	if arr := recv.Array(); arr != nil && ref.MethodName == "clone" && len(md.Params) == 0 {
		elems := make([]Value, len(arr.Elements))
		copy(elems, arr.Elements)
		frame.Push(RefValue(&JArray{Type: arr.Type, Elements: elems}))
		return nil
	}

	c, err := vm.classOf(recv)
	if err != nil {
		return vm.asThrowable(err)
	}
	m := vm.selectMethod(c, ref.MethodName, ref.Descriptor)
	if m == nil {
		return vm.throwNew("java/lang/NoSuchMethodError", "%s.%s%s", c.DotName(), ref.MethodName, ref.Descriptor)
	}
	return vm.call(frame, m, md, args)
}

const stringConcatFactory = "java/lang/invoke/StringConcatFactory"

// executeInvokedynamic links the string concatenation call sites javac emits.
// Other bootstrap methods fail with BootstrapMethodError.
func (vm *VM) executeInvokedynamic(frame *Frame) error {
	index := frame.ReadU16()
	frame.ReadU16() // two zero bytes

	info, err := frame.Class.File.ResolveInvokeDynamic(index)
	if err != nil {
		return err
	}
	md, err := vm.methodDesc(info.Descriptor)
	if err != nil {
		return err
	}
	args := popArgs(frame, len(md.Params))

	bsm := info.Bootstrap
	if bsm.ClassName != stringConcatFactory {
		return vm.throwNew("java/lang/BootstrapMethodError", "bootstrap method %s.%s is not supported",
			classfile.DotName(bsm.ClassName), bsm.MethodName)
	}

	var recipe string
	var constants []string
	switch bsm.MethodName {
	case "makeConcat":
		recipe = strings.Repeat("\u0001", len(args))
	case "makeConcatWithConstants":
		pool := frame.Class.File.ConstantPool
		if len(info.Arguments) == 0 {
			return vm.throwNew("java/lang/BootstrapMethodError", "makeConcatWithConstants: missing recipe")
		}
		recipe, err = constantString(pool, info.Arguments[0])
		if err != nil {
			return vm.throwNew("java/lang/BootstrapMethodError", "makeConcatWithConstants: %v", err)
		}
		for _, arg := range info.Arguments[1:] {
			s, err := constantString(pool, arg)
			if err != nil {
				return vm.throwNew("java/lang/BootstrapMethodError", "makeConcatWithConstants: %v", err)
			}
			constants = append(constants, s)
		}
	default:
		return vm.throwNew("java/lang/BootstrapMethodError", "bootstrap method %s.%s is not supported",
			classfile.DotName(bsm.ClassName), bsm.MethodName)
	}

	s, err := vm.concat(recipe, constants, md, args)
	if err != nil {
		return err
	}
	frame.Push(RefValue(vm.NewString(s)))
	return nil
}

// concat expands a StringConcatFactory recipe: \1 takes the next argument
// and \2 the next constant.
func (vm *VM) concat(recipe string, constants []string, md *classfile.MethodDescriptor, args []Value) (string, error) {
	var sb strings.Builder
	ai, ci := 0, 0
	for _, r := range recipe {
		switch r {
		case '\u0001':
			if ai >= len(args) {
				return "", vm.throwNew("java/lang/BootstrapMethodError", "recipe refers to argument %d of %d", ai, len(args))
			}
			s, err := vm.valueString(args[ai], md.Params[ai])
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
			ai++
		case '\u0002':
			if ci >= len(constants) {
				return "", vm.throwNew("java/lang/BootstrapMethodError", "recipe refers to constant %d of %d", ci, len(constants))
			}
			sb.WriteString(constants[ci])
			ci++
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String(), nil
}

// constantString renders a loadable constant the way String.valueOf would.
func constantString(pool []classfile.ConstantPoolEntry, entry classfile.ConstantPoolEntry) (string, error) {
	switch c := entry.(type) {
	case *classfile.ConstantString:
		return classfile.GetUtf8(pool, c.StringIndex)
	case *classfile.ConstantInteger:
		return strconv.Itoa(int(c.Value)), nil
	case *classfile.ConstantLong:
		return strconv.FormatInt(c.Value, 10), nil
	case *classfile.ConstantFloat:
		return native.FormatFloat(c.Value), nil
	case *classfile.ConstantDouble:
		return native.FormatDouble(c.Value), nil
	case nil:
		return "", fmt.Errorf("missing constant")
	}
	return "", fmt.Errorf("unsupported constant %T", entry)
}
