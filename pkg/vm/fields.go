package vm

import (
	"fmt"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

// resolveStaticField resolves a Fieldref to its declaring class and
// initializes that class.
func (vm *VM) resolveStaticField(frame *Frame, index uint16) (*Class, *Field, error) {
	ref, err := classfile.ResolveFieldref(frame.Class.File.ConstantPool, index)
	if err != nil {
		return nil, nil, err
	}
	c, err := vm.FindClass(ref.ClassName)
	if err != nil {
		return nil, nil, vm.asThrowable(err)
	}
	f := c.lookupField(ref.FieldName, ref.Descriptor)
	if f == nil {
		return nil, nil, vm.throwNew("java/lang/NoSuchFieldError", "%s", ref.FieldName)
	}
	if !f.IsStatic() {
		return nil, nil, vm.throwNew("java/lang/IncompatibleClassChangeError",
			"Expected static field %s.%s", c.DotName(), ref.FieldName)
	}
	if err := vm.initializeClass(f.Class); err != nil {
		return nil, nil, err
	}
	return f.Class, f, nil
}

func (vm *VM) executeGetstatic(frame *Frame) error {
	index := frame.ReadU16()
	c, f, err := vm.resolveStaticField(frame, index)
	if err != nil {
		return err
	}
	frame.Push(c.GetStatic(f.Name, f.Descriptor))
	return nil
}

func (vm *VM) executePutstatic(frame *Frame) error {
	index := frame.ReadU16()
	c, f, err := vm.resolveStaticField(frame, index)
	if err != nil {
		return err
	}
	c.SetStatic(f.Name, f.Descriptor, frame.Pop())
	return nil
}

func (vm *VM) executeGetfield(frame *Frame) error {
	index := frame.ReadU16()
	ref, err := classfile.ResolveFieldref(frame.Class.File.ConstantPool, index)
	if err != nil {
		return err
	}
	objRef := frame.Pop()
	if objRef.IsNull() {
		return vm.throwNPE(fmt.Sprintf("Cannot read field \"%s\" because value is null", ref.FieldName))
	}
	obj := objRef.Object()
	if obj == nil {
		return fmt.Errorf("getfield: reference is not an object")
	}
	frame.Push(obj.GetField(ref.FieldName, ref.Descriptor))
	return nil
}

func (vm *VM) executePutfield(frame *Frame) error {
	index := frame.ReadU16()
	ref, err := classfile.ResolveFieldref(frame.Class.File.ConstantPool, index)
	if err != nil {
		return err
	}
	value := frame.Pop()
	objRef := frame.Pop()
	if objRef.IsNull() {
		return vm.throwNPE(fmt.Sprintf("Cannot assign field \"%s\" because value is null", ref.FieldName))
	}
	obj := objRef.Object()
	if obj == nil {
		return fmt.Errorf("putfield: reference is not an object")
	}
	obj.SetField(ref.FieldName, ref.Descriptor, value)
	return nil
}

// GetStatic returns a static field of c, or the descriptor's zero value when
// c does not have it.
func (c *Class) GetStatic(name, desc string) Value {
	if v, ok := c.StaticFields[fieldKey(name, desc)]; ok {
		return v
	}
	return zeroValue(desc)
}

// SetStatic writes a static field of c.
func (c *Class) SetStatic(name, desc string, v Value) {
	c.StaticFields[fieldKey(name, desc)] = coerce(desc, v)
}
