package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/daimatz/jvmsandbox/internal/classfixture"
	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

// fixtureFinder serves a classfixture library. java/ classes count as
// snapshot classes, everything else as workspace classes.
func fixtureFinder(lib classfixture.Library) BootClassFinder {
	return BootClassFinderFunc(func(name string) (*ClassSource, error) {
		if _, ok := lib[name]; !ok {
			return nil, ErrClassNotFound
		}
		cf, err := lib.Parse(name)
		if err != nil {
			return nil, err
		}
		origin := OriginWorkspace
		if strings.HasPrefix(name, "java/") {
			origin = OriginSnapshot
		}
		return &ClassSource{File: cf, Origin: origin}, nil
	})
}

// newTestVM returns an initialized VM over the fixture classes with the
// test goroutine attached as its thread.
func newTestVM(t *testing.T, opts ...Option) *VM {
	t.Helper()
	v := New(fixtureFinder(classfixture.All()), opts...)
	if err := v.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := v.AttachCurrentThread(); err != nil {
		t.Fatalf("AttachCurrentThread: %v", err)
	}
	t.Cleanup(v.DetachCurrentThread)
	return v
}

func phase2Override(ctx *InvocationContext) (Result, error) {
	ctx.SetResult(IntValue(0))
	return ResultAbort, nil
}

// bootTestVM is newTestVM plus a completed Bootstrap. initPhase2 is
// overridden to report success.
func bootTestVM(t *testing.T, opts ...Option) *VM {
	t.Helper()
	v := newTestVM(t, opts...)
	if _, _, err := v.SetInvoker("java/lang/System", "initPhase2", "(ZZ)I", MethodInvoker{Tag: "test", Fn: phase2Override}); err != nil {
		t.Fatalf("SetInvoker: %v", err)
	}
	if err := v.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return v
}

// method loads class and returns the method it declares as name+desc.
func method(t *testing.T, v *VM, class, name, desc string) *Method {
	t.Helper()
	c, err := v.FindClass(class)
	if err != nil {
		t.Fatalf("FindClass(%s): %v", class, err)
	}
	m := c.Method(name, desc)
	if m == nil {
		t.Fatalf("%s.%s%s not declared", class, name, desc)
	}
	return m
}

// testClass wraps a constant pool built with classfile.Builder in a Class
// so hand-assembled frames can resolve operands.
func testClass(t *testing.T, b *classfile.Builder) *Class {
	t.Helper()
	cf, err := classfile.ParseBytes(b.Bytes())
	if err != nil {
		t.Fatalf("parse test class: %v", err)
	}
	name, err := cf.ClassName()
	if err != nil {
		t.Fatalf("test class name: %v", err)
	}
	return &Class{Name: name, File: cf, StaticFields: make(map[string]Value), State: ClassInitialized}
}

// step runs frame one instruction at a time until it returns or fails.
func step(v *VM, frame *Frame) (Value, error) {
	for frame.PC < len(frame.Code) {
		frame.startPC = frame.PC
		opcode := frame.Code[frame.PC]
		frame.PC++
		ret, hasReturn, err := v.executeInstruction(frame, opcode)
		if err != nil {
			return Value{}, err
		}
		if hasReturn {
			return ret, nil
		}
	}
	return Value{}, errors.New("bytecode did not return a value")
}

// mustStep is step that fails the test on error.
func mustStep(t *testing.T, v *VM, frame *Frame) Value {
	t.Helper()
	ret, err := step(v, frame)
	if err != nil {
		t.Fatalf("execution error at PC=%d: %v", frame.startPC, err)
	}
	return ret
}

// javaException asserts that err is a Java exception of the given class.
func javaException(t *testing.T, err error, class string) *JavaException {
	t.Helper()
	var jex *JavaException
	if !errors.As(err, &jex) {
		t.Fatalf("expected %s, got %v", class, err)
	}
	if got := jex.ClassName(); got != class {
		t.Fatalf("exception class: got %s, want %s (%v)", got, class, err)
	}
	return jex
}
