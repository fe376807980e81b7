package vm

import (
	"fmt"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

func (vm *VM) executeLdc(frame *Frame, index uint16) error {
	pool := frame.Class.File.ConstantPool
	if int(index) >= len(pool) || pool[index] == nil {
		return fmt.Errorf("ldc: invalid constant pool index %d", index)
	}
	switch c := pool[index].(type) {
	case *classfile.ConstantInteger:
		frame.Push(IntValue(c.Value))
	case *classfile.ConstantFloat:
		frame.Push(FloatValue(c.Value))
	case *classfile.ConstantString:
		s, err := classfile.GetUtf8(pool, c.StringIndex)
		if err != nil {
			return fmt.Errorf("ldc: %w", err)
		}
		frame.Push(RefValue(vm.InternString(s)))
	case *classfile.ConstantClass:
		name, err := classfile.GetClassName(pool, index)
		if err != nil {
			return fmt.Errorf("ldc: %w", err)
		}
		cls, err := vm.FindClass(name)
		if err != nil {
			return vm.asThrowable(err)
		}
		frame.Push(RefValue(vm.mirror(cls)))
	default:
		return fmt.Errorf("ldc: unsupported constant %T at index %d", c, index)
	}
	return nil
}

func (vm *VM) executeLdc2(frame *Frame, index uint16) error {
	pool := frame.Class.File.ConstantPool
	if int(index) >= len(pool) || pool[index] == nil {
		return fmt.Errorf("ldc2_w: invalid constant pool index %d", index)
	}
	switch c := pool[index].(type) {
	case *classfile.ConstantLong:
		frame.Push(LongValue(c.Value))
	case *classfile.ConstantDouble:
		frame.Push(DoubleValue(c.Value))
	default:
		return fmt.Errorf("ldc2_w: unsupported type at index %d", index)
	}
	return nil
}

func (vm *VM) executeNew(frame *Frame) error {
	index := frame.ReadU16()
	name, err := classfile.GetClassName(frame.Class.File.ConstantPool, index)
	if err != nil {
		return fmt.Errorf("new: %w", err)
	}
	c, err := vm.FindClass(name)
	if err != nil {
		return vm.asThrowable(err)
	}
	if c.IsArray() || c.IsInterface() || c.File.AccessFlags&classfile.AccAbstract != 0 {
		return vm.throwNew("java/lang/InstantiationError", "%s", c.DotName())
	}
	if err := vm.initializeClass(c); err != nil {
		return err
	}
	frame.Push(RefValue(newObject(c)))
	return nil
}

// arrayOf is the descriptor of an array whose components are the named class
// or array.
func arrayOf(name string) string {
	if name != "" && name[0] == '[' {
		return "[" + name
	}
	return "[L" + name + ";"
}

func (vm *VM) executeAnewarray(frame *Frame) error {
	index := frame.ReadU16()
	name, err := classfile.GetClassName(frame.Class.File.ConstantPool, index)
	if err != nil {
		return fmt.Errorf("anewarray: %w", err)
	}
	count := frame.Pop().Int
	if _, err := vm.FindClass(name); err != nil {
		return vm.asThrowable(err)
	}
	if count < 0 {
		return vm.throwNew("java/lang/NegativeArraySizeException", "%d", count)
	}
	frame.Push(RefValue(newArray(arrayOf(name), int(count))))
	return nil
}

func (vm *VM) executeMultianewarray(frame *Frame) error {
	index := frame.ReadU16()
	dims := int(frame.ReadU8())
	desc, err := classfile.GetClassName(frame.Class.File.ConstantPool, index)
	if err != nil {
		return fmt.Errorf("multianewarray: %w", err)
	}
	if dims < 1 || len(desc) < dims {
		return fmt.Errorf("multianewarray: %d dimensions for %s", dims, desc)
	}
	counts := make([]int32, dims)
	for i, v := range popArgs(frame, dims) {
		if v.Int < 0 {
			return vm.throwNew("java/lang/NegativeArraySizeException", "%d", v.Int)
		}
		counts[i] = v.Int
	}
	frame.Push(RefValue(multiArray(desc, counts)))
	return nil
}

func multiArray(desc string, counts []int32) *JArray {
	arr := newArray(desc, int(counts[0]))
	if len(counts) > 1 {
		for i := range arr.Elements {
			arr.Elements[i] = RefValue(multiArray(desc[1:], counts[1:]))
		}
	}
	return arr
}

func (vm *VM) executeCheckcast(frame *Frame) error {
	index := frame.ReadU16()
	name, err := classfile.GetClassName(frame.Class.File.ConstantPool, index)
	if err != nil {
		return fmt.Errorf("checkcast: %w", err)
	}
	v := frame.Peek(0)
	if !v.IsNull() && !vm.isInstanceOf(v.Ref, name) {
		return vm.throwNew("java/lang/ClassCastException", "class %s cannot be cast to class %s",
			classfile.DotName(className(v)), classfile.DotName(name))
	}
	return nil
}

func (vm *VM) executeInstanceof(frame *Frame) error {
	index := frame.ReadU16()
	name, err := classfile.GetClassName(frame.Class.File.ConstantPool, index)
	if err != nil {
		return fmt.Errorf("instanceof: %w", err)
	}
	v := frame.Pop()
	frame.Push(BoolValue(!v.IsNull() && vm.isInstanceOf(v.Ref, name)))
	return nil
}
