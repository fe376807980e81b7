package vm

// Env is a set of observers attached to a VM. Observers see interpreted
// method entries and freshly linked classes until Close is called.
type Env struct {
	vm          *VM
	methodEnter func(*Method)
	classLink   func(*Class)
	closed      bool
}

// NewEnv attaches a new observer environment.
func (vm *VM) NewEnv() *Env {
	e := &Env{vm: vm}
	vm.envs = append(vm.envs, e)
	return e
}

// OnMethodEnter registers fn to run before a method's bytecode starts.
// Methods completed by an invoker never reach it.
func (e *Env) OnMethodEnter(fn func(*Method)) { e.methodEnter = fn }

// OnClassLink registers fn to run after a class is linked and before it can
// be initialized. Installing invokers on the class from fn is allowed.
func (e *Env) OnClassLink(fn func(*Class)) { e.classLink = fn }

// Close detaches the environment. It is safe to call more than once.
func (e *Env) Close() {
	if e.closed {
		return
	}
	e.closed = true
	envs := e.vm.envs[:0]
	for _, other := range e.vm.envs {
		if other != e {
			envs = append(envs, other)
		}
	}
	e.vm.envs = envs
}

func (vm *VM) fireMethodEnter(m *Method) {
	for _, e := range vm.envs {
		if e.methodEnter != nil {
			e.methodEnter(m)
		}
	}
}

func (vm *VM) fireClassLink(c *Class) {
	for _, e := range vm.envs {
		if e.classLink != nil {
			e.classLink(c)
		}
	}
}
