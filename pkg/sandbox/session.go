package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
	"github.com/daimatz/jvmsandbox/pkg/vm"
)

// sessionOptions are the per-invocation knobs shared by every operation.
type sessionOptions struct {
	target        string
	frames        []StackFrame
	whitelist     Whitelist
	maxIterations int64
}

// session is one invocation's use of the environment: the instruction
// ceiling it set, the attached thread and the installed hooks. close undoes
// all of it in reverse order.
type session struct {
	id    string
	env   *Environment
	ctx   *log.Entry
	limit int64

	prevLimit   int64
	attached    bool
	interceptor *StackInterceptor
	gate        *InitGate

	stdout, stderr string
	initialized    []string
	deferred       []string
	iterations     int64
}

func (s *session) open(o sessionOptions) error {
	v := s.env.VM
	s.prevLimit = v.MaxIterations()
	s.limit = s.prevLimit
	if o.maxIterations > 0 {
		s.limit = o.maxIterations
	}
	v.SetMaxIterations(s.limit)
	// One budget covers everything the invocation runs: initializers, the
	// call itself and the toString calls that serialize its result.
	v.ResetIterations()

	if _, err := v.AttachCurrentThread(); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	s.attached = true

	if len(o.frames) > 0 {
		ic, err := InstallStackInterceptor(v, o.frames)
		if err != nil {
			return err
		}
		s.interceptor = ic
	}
	s.gate = InstallInitGate(v, o.target, o.whitelist)
	return nil
}

// finish records what the gate saw and drains the output buffers. It runs
// on every path, before close.
func (s *session) finish() {
	if s.gate != nil {
		s.initialized = s.gate.InitializedClasses()
		s.deferred = s.gate.DeferredClasses()
	}
	s.stdout = s.env.Files.DrainStdout()
	s.stderr = s.env.Files.DrainStderr()
}

func (s *session) close() {
	s.gate.Close()
	s.interceptor.Uninstall()
	if s.attached {
		s.env.VM.DetachCurrentThread()
	}
	s.env.VM.SetMaxIterations(s.prevLimit)
}

// findClass resolves the target class in either notation. classify turns
// a missing class into a resolution failure.
func (s *session) findClass(name string) (*vm.Class, error) {
	return s.env.VM.FindClass(classfile.InternalName(name))
}

// call invokes a static method through the typed facade matching its
// return type.
func (s *session) call(m *vm.Method, args []vm.Value) (vm.Value, error) {
	util := s.env.InvocationUtil()
	switch m.Desc.Return.Kind() {
	case classfile.TypeVoid:
		return vm.Value{}, util.InvokeVoid(m, args...)
	case classfile.TypeInt, classfile.TypeBoolean, classfile.TypeByte, classfile.TypeChar, classfile.TypeShort:
		n, err := util.InvokeInt(m, args...)
		return vm.IntValue(n), err
	case classfile.TypeLong:
		n, err := util.InvokeLong(m, args...)
		return vm.LongValue(n), err
	case classfile.TypeFloat:
		f, err := util.InvokeFloat(m, args...)
		return vm.FloatValue(f), err
	case classfile.TypeDouble:
		d, err := util.InvokeDouble(m, args...)
		return vm.DoubleValue(d), err
	}
	return util.InvokeReference(m, args...)
}

// classify turns an error from inside the session into a Failure. It must
// run while the thread is still attached: describing a thrown exception
// calls back into the interpreter.
func (s *session) classify(err error) *Failure {
	var (
		f   *Failure
		lim *vm.IterationLimitError
		jex *vm.JavaException
		cnf *vm.ClassNotFoundError
	)
	switch {
	case errors.As(err, &f):
		return f
	case errors.As(err, &lim):
		return iterationFailure(s.env.VM.Iterations(), lim.Limit)
	case errors.As(err, &jex):
		return s.describe(jex)
	case errors.As(err, &cnf):
		f := resolutionFailure("ClassNotFound", nil,
			"Class not found: %s. Ensure the class exists in the workspace.", classfile.DotName(cnf.Name))
		f.cause = err
		return f
	}
	s.ctx.WithError(err).Error("unexpected host error")
	return &Failure{Kind: KindHost, Name: "HostError", Message: err.Error(), cause: err}
}

const (
	getMessageDesc = "()Ljava/lang/String;"
	causeDesc      = "Ljava/lang/Throwable;"
)

// describe reads the class name, message and stack trace of a thrown
// exception through the exception's own methods.
func (s *session) describe(jex *vm.JavaException) *Failure {
	f := &Failure{
		Kind:    KindException,
		Name:    classfile.DotName(jex.ClassName()),
		Message: s.message(jex.Object),
		cause:   jex,
	}
	trace := formatTrace(s.trace(jex))
	if cause := jex.Object.GetField("cause", causeDesc).Object(); cause != nil && cause != jex.Object {
		line := "Caused by: " + classfile.DotName(cause.ClassName)
		if msg := s.message(cause); msg != "" {
			line += ": " + msg
		}
		trace = strings.TrimPrefix(trace+"\n"+line, "\n")
	}
	f.VMStackTrace = trace
	return f
}

func (s *session) message(obj *vm.JObject) string {
	util := s.env.InvocationUtil()
	v, err := util.InvokeVirtual(vm.RefValue(obj), "getMessage", getMessageDesc)
	if err != nil {
		v = obj.GetField("detailMessage", "Ljava/lang/String;")
	}
	msg, _ := vm.GoString(v)
	return msg
}

func (s *session) trace(jex *vm.JavaException) []string {
	util := s.env.InvocationUtil()
	v, err := util.InvokeVirtual(vm.RefValue(jex.Object), getStackTrace, stackTraceDesc)
	if err == nil && v.Array() != nil {
		elems := v.Array().Elements
		lines := make([]string, 0, len(elems))
		for _, e := range elems {
			text, err := util.ToString(e)
			if err != nil {
				break
			}
			lines = append(lines, text)
		}
		if len(lines) == len(elems) {
			return lines
		}
	}
	bt := jex.Backtrace()
	lines := make([]string, len(bt))
	for i, e := range bt {
		lines[i] = e.String()
	}
	return lines
}
