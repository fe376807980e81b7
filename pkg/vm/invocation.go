package vm

import "fmt"

// InvocationUtil calls methods from the host with typed results. Java
// exceptions come back as *JavaException and an exhausted instruction budget
// as *IterationLimitError.
type InvocationUtil struct {
	vm *VM
}

// InvocationUtil returns the invocation facade of vm.
func (vm *VM) InvocationUtil() *InvocationUtil { return &InvocationUtil{vm: vm} }

func (u *InvocationUtil) call(m *Method, want byte, args []Value) (Value, error) {
	if m.Desc == nil {
		return Value{}, fmt.Errorf("invoke %s: unparsed descriptor", m)
	}
	if got := m.Desc.Return.Kind(); got != want && !(want == 'L' && got == '[') && !(want == 'I' && isIntLike(got)) {
		return Value{}, fmt.Errorf("invoke %s: return type %s does not match", m, m.Desc.Return.Label())
	}
	expected := len(m.Desc.Params)
	if !m.IsStatic() {
		expected++
	}
	if len(args) != expected {
		return Value{}, fmt.Errorf("invoke %s: expected %d arguments, got %d", m, expected, len(args))
	}
	return u.vm.Invoke(m, args...)
}

func isIntLike(kind byte) bool {
	switch kind {
	case 'I', 'Z', 'B', 'C', 'S':
		return true
	}
	return false
}

// InvokeVoid calls a method returning void.
func (u *InvocationUtil) InvokeVoid(m *Method, args ...Value) error {
	_, err := u.call(m, 'V', args)
	return err
}

// InvokeInt calls a method returning int, boolean, byte, char or short.
func (u *InvocationUtil) InvokeInt(m *Method, args ...Value) (int32, error) {
	v, err := u.call(m, 'I', args)
	return v.Int, err
}

// InvokeLong calls a method returning long.
func (u *InvocationUtil) InvokeLong(m *Method, args ...Value) (int64, error) {
	v, err := u.call(m, 'J', args)
	return v.Long, err
}

// InvokeFloat calls a method returning float.
func (u *InvocationUtil) InvokeFloat(m *Method, args ...Value) (float32, error) {
	v, err := u.call(m, 'F', args)
	return v.Float, err
}

// InvokeDouble calls a method returning double.
func (u *InvocationUtil) InvokeDouble(m *Method, args ...Value) (float64, error) {
	v, err := u.call(m, 'D', args)
	return v.Double, err
}

// InvokeReference calls a method returning an object or array.
func (u *InvocationUtil) InvokeReference(m *Method, args ...Value) (Value, error) {
	return u.call(m, 'L', args)
}

// InvokeVirtual calls name+desc on recv with virtual dispatch.
func (u *InvocationUtil) InvokeVirtual(recv Value, name, desc string, args ...Value) (Value, error) {
	var ret Value
	err := u.vm.guard(name+desc, func() error {
		var err error
		ret, err = u.vm.invokeVirtual(recv, name, desc, args...)
		return err
	})
	return ret, err
}

// ToString runs String.valueOf(v) inside the VM.
func (u *InvocationUtil) ToString(v Value) (string, error) {
	var s string
	err := u.vm.guard("toString", func() error {
		var err error
		s, err = u.vm.toJavaString(v)
		return err
	})
	return s, err
}

// Initialize initializes c, running <clinit> when it has not run yet, and
// reports whether it ran during this call.
func (u *InvocationUtil) Initialize(c *Class) (bool, error) {
	before := c.State
	if err := u.vm.InitializeClass(c); err != nil {
		return false, err
	}
	return before != ClassInitialized && c.State == ClassInitialized, nil
}
