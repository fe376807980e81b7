package vm

import (
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

var (
	// ErrNoSuchMethod is returned when a hook targets a method the class does not declare.
	ErrNoSuchMethod = errors.New("no such method")
	// ErrNoSuchField is returned by Operations for fields that do not exist.
	ErrNoSuchField = errors.New("no such field")
)

// coreClasses are linked by Initialize before any bytecode runs.
var coreClasses = []string{
	"java/lang/Object",
	"java/lang/String",
	"java/lang/System",
	"java/lang/Thread",
	"java/lang/Throwable",
	"java/lang/StackTraceElement",
	"java/lang/Class",
}

type bootPhase struct {
	name, desc string
	args       []Value
}

// The startup sequence Bootstrap runs on java/lang/System.
var bootPhases = []bootPhase{
	{"initPhase1", "()V", nil},
	{"initPhase2", "(ZZ)I", []Value{IntValue(1), IntValue(1)}},
	{"initPhase3", "()V", nil},
}

// ProcessSpawner starts a host process for Runtime.exec. The VM has none by
// default, so exec fails with an IOException.
type ProcessSpawner func(argv []string) error

// VM is the virtual machine that executes Java bytecode.
type VM struct {
	finder    BootClassFinder
	classes   map[string]*Class
	invokers  map[methodKey]MethodInvoker
	synthetic map[methodKey]*Method
	descs     map[string]*classfile.MethodDescriptor
	envs      []*Env
	thread    *Thread
	files     *FileManager
	spawner   ProcessSpawner

	maxIterations int64
	iterations    int64

	strings  map[string]*JObject
	nextHash int32
	runtime  *JObject
	boxed    map[int32]*JObject

	initialized bool
	booted      bool
}

// Option configures a VM.
type Option func(*VM)

// WithFileManager routes System.out and System.err into fm.
func WithFileManager(fm *FileManager) Option {
	return func(vm *VM) { vm.files = fm }
}

// WithMaxIterations sets the initial instruction ceiling.
func WithMaxIterations(n int64) Option {
	return func(vm *VM) { vm.SetMaxIterations(n) }
}

// WithProcessSpawner lets Runtime.exec start host processes.
func WithProcessSpawner(s ProcessSpawner) Option {
	return func(vm *VM) { vm.spawner = s }
}

// New creates a VM resolving classes through finder.
func New(finder BootClassFinder, opts ...Option) *VM {
	vm := &VM{
		finder:    finder,
		classes:   make(map[string]*Class),
		invokers:  make(map[methodKey]MethodInvoker),
		synthetic: make(map[methodKey]*Method),
		descs:     make(map[string]*classfile.MethodDescriptor),
		strings:   make(map[string]*JObject),
		boxed:     make(map[int32]*JObject),
		nextHash:  0x1b6d3586,
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.files == nil {
		vm.files = NewFileManager()
	}
	return vm
}

// Files returns the VM's stream buffers.
func (vm *VM) Files() *FileManager { return vm.files }

// Initialize registers the intrinsic natives and links the core classes. It
// runs no bytecode.
func (vm *VM) Initialize() error {
	if vm.initialized {
		return nil
	}
	vm.registerNatives()
	for _, name := range coreClasses {
		if _, err := vm.FindClass(name); err != nil {
			return fmt.Errorf("initialize: linking %s: %w", name, err)
		}
	}
	vm.initialized = true
	return nil
}

// IsInitialized reports whether Initialize completed.
func (vm *VM) IsInitialized() bool { return vm.initialized }

// IsBooted reports whether Bootstrap completed.
func (vm *VM) IsBooted() bool { return vm.booted }

// Bootstrap initializes the core classes and runs the System startup
// sequence. Phases the System class does not declare are skipped.
func (vm *VM) Bootstrap() error {
	if err := vm.Initialize(); err != nil {
		return err
	}
	if vm.booted {
		return nil
	}
	if vm.thread == nil {
		if _, err := vm.AttachCurrentThread(); err != nil {
			return err
		}
		defer vm.DetachCurrentThread()
	}

	start := time.Now()
	// Every boot step gets the whole ceiling; none of it is charged to
	// later calls.
	defer vm.ResetIterations()
	for _, name := range coreClasses {
		c := vm.classes[name]
		vm.ResetIterations()
		if err := vm.InitializeClass(c); err != nil {
			return fmt.Errorf("bootstrap: initializing %s: %w", name, err)
		}
	}
	system := vm.classes["java/lang/System"]
	for _, phase := range bootPhases {
		m := system.Method(phase.name, phase.desc)
		if m == nil {
			log.Debugf("bootstrap: System.%s%s not declared, skipping", phase.name, phase.desc)
			continue
		}
		vm.ResetIterations()
		ret, err := vm.Invoke(m, phase.args...)
		if err != nil {
			return fmt.Errorf("bootstrap: System.%s: %w", phase.name, err)
		}
		if phase.desc == "(ZZ)I" && ret.Int != 0 {
			return fmt.Errorf("bootstrap: System.%s returned %d", phase.name, ret.Int)
		}
	}
	vm.booted = true
	log.WithField("elapsed", time.Since(start).Round(time.Microsecond)).Debug("vm booted")
	return nil
}

// Invoke calls m with args (receiver first for instance methods) from the
// host. Host faults inside the interpreter are returned as errors.
func (vm *VM) Invoke(m *Method, args ...Value) (Value, error) {
	var ret Value
	err := vm.guard(m.String(), func() error {
		var err error
		ret, err = vm.invoke(m, args)
		return err
	})
	return ret, err
}

// guard runs fn as a host entry and turns panics into errors. The
// instruction counter keeps running across entries until ResetIterations.
func (vm *VM) guard(what string, fn func() error) (err error) {
	t := vm.thread
	if t == nil {
		return ErrNoThread
	}
	depth := len(t.frames)
	defer func() {
		if r := recover(); r != nil {
			for len(t.frames) > depth {
				t.pop()
			}
			err = fmt.Errorf("vm: host fault in %s: %v", what, r)
		}
	}()
	return fn()
}

func (vm *VM) invoke(m *Method, args []Value) (Value, error) {
	t := vm.thread
	if t == nil {
		return Value{}, ErrNoThread
	}
	if len(t.frames) >= maxFrameDepth {
		return Value{}, vm.throwNew("java/lang/StackOverflowError", "")
	}

	if inv, ok := vm.invokers[keyOf(m)]; ok {
		t.push(&Frame{Class: m.Class, Method: m})
		ctx := &InvocationContext{VM: vm, Method: m, Args: args}
		res, err := inv.Fn(ctx)
		t.pop()
		if err != nil {
			return Value{}, err
		}
		if res == ResultAbort {
			return ctx.result, nil
		}
	}

	if m.IsAbstract() {
		return Value{}, vm.throwNew("java/lang/AbstractMethodError", "%s.%s%s", m.Class.DotName(), m.Name, m.Descriptor)
	}
	if m.Code == nil {
		if m.IsNative() {
			return Value{}, vm.throwNew("java/lang/UnsatisfiedLinkError", "'%s %s.%s'",
				classfile.DescribeFieldType(m.Desc.Return.Descriptor()), m.Class.DotName(), m.Name)
		}
		return Value{}, fmt.Errorf("method %s has no Code attribute", m)
	}
	return vm.executeMethod(m, args)
}

// executeMethod executes a method with the given arguments and returns its return value.
func (vm *VM) executeMethod(m *Method, args []Value) (Value, error) {
	vm.fireMethodEnter(m)

	frame := NewFrame(m.Code.MaxLocals, m.Code.MaxStack, m.Code.Code, m.Class)
	frame.Method = m

	// Set arguments into local variables; long and double take two slots.
	slot := 0
	for _, arg := range args {
		frame.SetLocal(slot, arg)
		slot++
		if arg.IsWide() {
			slot++
		}
	}

	t := vm.thread
	t.push(frame)
	defer t.pop()

	// Execution loop
	for frame.PC < len(frame.Code) {
		if err := vm.tick(); err != nil {
			return Value{}, err
		}
		frame.startPC = frame.PC
		opcode := frame.Code[frame.PC]
		frame.PC++

		retVal, hasReturn, err := vm.executeInstruction(frame, opcode)
		if err != nil {
			if vm.handleException(frame, err) {
				continue
			}
			return Value{}, err
		}
		if hasReturn {
			return retVal, nil
		}
	}

	// Fell off the end of the method (implicit return for void methods)
	return Value{}, nil
}

// handleException transfers control to a matching exception table entry.
func (vm *VM) handleException(frame *Frame, err error) bool {
	var jex *JavaException
	if !errors.As(err, &jex) || frame.Method == nil || frame.Method.Code == nil {
		return false
	}
	pool := frame.Class.File.ConstantPool
	for _, h := range frame.Method.Code.ExceptionHandlers {
		if frame.startPC < int(h.StartPC) || frame.startPC >= int(h.EndPC) {
			continue
		}
		if h.CatchType != 0 {
			name, err := classfile.GetClassName(pool, h.CatchType)
			if err != nil || !vm.isInstanceOf(jex.Object, name) {
				continue
			}
		}
		frame.SP = 0
		frame.Push(RefValue(jex.Object))
		frame.PC = int(h.HandlerPC)
		return true
	}
	return false
}

// classOf returns the runtime class of an object or array reference.
func (vm *VM) classOf(v Value) (*Class, error) {
	switch r := v.Ref.(type) {
	case *JObject:
		if r.Class != nil {
			return r.Class, nil
		}
		c, err := vm.FindClass(r.ClassName)
		if err != nil {
			// Throwables raised by the interpreter may name classes the
			// class path lacks; dispatch on their nearest loaded ancestor.
			for name := builtinSuper[r.ClassName]; name != ""; name = builtinSuper[name] {
				if sup, serr := vm.FindClass(name); serr == nil {
					return sup, nil
				}
			}
			return nil, err
		}
		r.Class = c
		return c, nil
	case *JArray:
		return vm.FindClass(r.Type)
	}
	return nil, fmt.Errorf("vm: %v is not a reference", v)
}

// className is the internal class name of a reference.
func className(v Value) string {
	switch r := v.Ref.(type) {
	case *JObject:
		return r.ClassName
	case *JArray:
		return r.Type
	}
	return ""
}

// isInstanceOf reports whether the referenced object is assignable to the
// named class.
func (vm *VM) isInstanceOf(ref interface{}, target string) bool {
	switch r := ref.(type) {
	case *JObject:
		return vm.isAssignable(r.ClassName, target)
	case *JArray:
		return vm.isAssignable(r.Type, target)
	}
	return false
}

// isAssignable reports whether a value of class from can be stored where to
// is expected. Names are internal names or array descriptors.
func (vm *VM) isAssignable(from, to string) bool {
	if from == to || to == "java/lang/Object" {
		return true
	}
	if from != "" && from[0] == '[' {
		switch to {
		case "java/lang/Cloneable", "java/io/Serializable":
			return true
		}
		if to == "" || to[0] != '[' {
			return false
		}
		fe, te := from[1:], to[1:]
		if fe == "" || te == "" {
			return false
		}
		if fe[0] != 'L' && fe[0] != '[' || te[0] != 'L' && te[0] != '[' {
			return fe == te
		}
		return vm.isAssignable(refName(fe), refName(te))
	}
	if to != "" && to[0] == '[' {
		return false
	}
	if fc, err := vm.FindClass(from); err == nil {
		tc, err := vm.FindClass(to)
		return err == nil && fc.IsSubclassOf(tc)
	}
	for name := builtinSuper[from]; name != ""; name = builtinSuper[name] {
		if name == to {
			return true
		}
	}
	return false
}

// refName strips "L...;" from an object descriptor and keeps array descriptors.
func refName(desc string) string {
	if len(desc) > 2 && desc[0] == 'L' && desc[len(desc)-1] == ';' {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// selectMethod finds the implementation of name+desc starting at c: the first
// class in the superclass chain that has an invoker or declares a concrete
// method, then interface default methods.
func (vm *VM) selectMethod(c *Class, name, desc string) *Method {
	var abstract *Method
	for k := c; k != nil; k = k.Super {
		m := k.Method(name, desc)
		if _, ok := vm.invokers[methodKey{owner: k.Name, name: name, desc: desc}]; ok {
			if m == nil {
				m = vm.syntheticMethod(k, name, desc)
			}
			return m
		}
		if m != nil {
			if !m.IsAbstract() {
				return m
			}
			if abstract == nil {
				abstract = m
			}
		}
	}
	if m := c.lookupInterfaceMethod(name, desc, map[*Class]bool{}); m != nil {
		return m
	}
	return abstract
}

// invokeVirtual calls a method on recv the way invokevirtual would.
func (vm *VM) invokeVirtual(recv Value, name, desc string, args ...Value) (Value, error) {
	if recv.IsNull() {
		return Value{}, vm.throwNPE(fmt.Sprintf("Cannot invoke \"%s()\" because value is null", name))
	}
	c, err := vm.classOf(recv)
	if err != nil {
		return Value{}, vm.asThrowable(err)
	}
	m := vm.selectMethod(c, name, desc)
	if m == nil {
		return Value{}, vm.throwNew("java/lang/NoSuchMethodError", "%s.%s%s", c.DotName(), name, desc)
	}
	return vm.invoke(m, append([]Value{recv}, args...))
}

// identityHash returns the stable identity hash of an object or array.
func (vm *VM) identityHash(ref interface{}) int32 {
	var h *int32
	switch r := ref.(type) {
	case *JObject:
		h = &r.hash
	case *JArray:
		h = &r.hash
	default:
		return 0
	}
	if *h == 0 {
		vm.nextHash = vm.nextHash*1103515245 + 12345
		*h = vm.nextHash & 0x7fffffff
		if *h == 0 {
			*h = 1
		}
	}
	return *h
}

// mirror returns the java/lang/Class object for c.
func (vm *VM) mirror(c *Class) *JObject {
	if c.mirror != nil {
		return c.mirror
	}
	if cc, err := vm.FindClass("java/lang/Class"); err == nil {
		c.mirror = newObject(cc)
	} else {
		c.mirror = &JObject{ClassName: "java/lang/Class", Fields: make(map[string]Value)}
	}
	c.mirror.Native = c
	return c.mirror
}
