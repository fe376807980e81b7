package vm

import (
	"fmt"

	"github.com/apex/log"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

// Result tells the VM what to do after a MethodInvoker ran.
type Result int

const (
	// ResultContinue falls through to the method's bytecode.
	ResultContinue Result = iota
	// ResultAbort completes the call with the context's result.
	ResultAbort
)

// InvocationContext is handed to a MethodInvoker. Args holds the receiver
// first for instance methods.
type InvocationContext struct {
	VM     *VM
	Method *Method
	Args   []Value

	result Value
}

// SetResult sets the value returned when the invoker aborts.
func (ctx *InvocationContext) SetResult(v Value) { ctx.result = v }

// Result returns the value set with SetResult.
func (ctx *InvocationContext) Result() Value { return ctx.result }

// Arg returns argument i, or a zero Value when out of range.
func (ctx *InvocationContext) Arg(i int) Value {
	if i < 0 || i >= len(ctx.Args) {
		return Value{}
	}
	return ctx.Args[i]
}

// MethodInvoker replaces the behaviour of one method. Tag names the installer
// so overrides can be told apart when they are inspected or restored.
type MethodInvoker struct {
	Tag string
	Fn  func(ctx *InvocationContext) (Result, error)
}

type methodKey struct {
	owner, name, desc string
}

func (k methodKey) String() string { return k.owner + "." + k.name + k.desc }

func keyOf(m *Method) methodKey {
	return methodKey{owner: m.Class.Name, name: m.Name, desc: m.Descriptor}
}

// SetInvoker installs inv for owner.name desc and returns the invoker it
// replaced. The owner class is loaded to verify that it declares the method.
func (vm *VM) SetInvoker(owner, name, desc string, inv MethodInvoker) (MethodInvoker, bool, error) {
	if inv.Fn == nil {
		return MethodInvoker{}, false, fmt.Errorf("set invoker %s.%s%s: nil function", owner, name, desc)
	}
	c, err := vm.FindClass(owner)
	if err != nil {
		return MethodInvoker{}, false, fmt.Errorf("set invoker %s.%s%s: %w", owner, name, desc, err)
	}
	if c.Method(name, desc) == nil {
		return MethodInvoker{}, false, fmt.Errorf("set invoker %s.%s%s: %w", owner, name, desc, ErrNoSuchMethod)
	}
	key := methodKey{owner: owner, name: name, desc: desc}
	prev, existed := vm.invokers[key]
	vm.invokers[key] = inv
	log.WithFields(log.Fields{"method": key.String(), "tag": inv.Tag}).Debug("invoker installed")
	return prev, existed, nil
}

// Invoker returns the invoker installed for owner.name desc.
func (vm *VM) Invoker(owner, name, desc string) (MethodInvoker, bool) {
	inv, ok := vm.invokers[methodKey{owner: owner, name: name, desc: desc}]
	return inv, ok
}

// RemoveInvoker uninstalls the invoker for owner.name desc, restoring
// interpreted behaviour.
func (vm *VM) RemoveInvoker(owner, name, desc string) {
	key := methodKey{owner: owner, name: name, desc: desc}
	if _, ok := vm.invokers[key]; ok {
		delete(vm.invokers, key)
		log.WithField("method", key.String()).Debug("invoker removed")
	}
}

// registerNative installs an intrinsic without loading the owner.
func (vm *VM) registerNative(owner, name, desc string, fn func(ctx *InvocationContext) (Result, error)) {
	vm.invokers[methodKey{owner: owner, name: name, desc: desc}] = MethodInvoker{Tag: "native", Fn: fn}
}

// nativeFn wraps a function that always completes the call.
func nativeFn(fn func(ctx *InvocationContext) (Value, error)) func(ctx *InvocationContext) (Result, error) {
	return func(ctx *InvocationContext) (Result, error) {
		v, err := fn(ctx)
		if err != nil {
			return ResultAbort, err
		}
		ctx.SetResult(v)
		return ResultAbort, nil
	}
}

// syntheticMethod stands in for a method that has an invoker but is not
// declared by the loaded class, as happens with trimmed core libraries.
func (vm *VM) syntheticMethod(c *Class, name, desc string) *Method {
	key := methodKey{owner: c.Name, name: name, desc: desc}
	if m, ok := vm.synthetic[key]; ok {
		return m
	}
	m := &Method{Class: c, Name: name, Descriptor: desc, AccessFlags: classfile.AccNative}
	if md, err := classfile.ParseMethodDescriptor(desc); err == nil {
		m.Desc = md
	}
	vm.synthetic[key] = m
	return m
}
