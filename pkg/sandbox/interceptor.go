package sandbox

import (
	"errors"
	"fmt"

	"github.com/apex/log"

	"github.com/daimatz/jvmsandbox/pkg/vm"
)

// LineAbsent is the line number of a frame that has none.
const LineAbsent = -1

// StackFrame is one entry of a synthetic call stack. A nil FileName means
// the frame has no source file.
type StackFrame struct {
	ClassName  string  `json:"className" mapstructure:"className" jsonschema:"required"`
	MethodName string  `json:"methodName" mapstructure:"methodName" jsonschema:"required"`
	FileName   *string `json:"fileName,omitempty" mapstructure:"fileName"`
	LineNumber int     `json:"lineNumber,omitempty" mapstructure:"lineNumber" jsonschema:"default=-1"`
}

func (f StackFrame) entry() vm.StackTraceEntry {
	e := vm.StackTraceEntry{ClassName: f.ClassName, MethodName: f.MethodName, Line: f.LineNumber}
	if f.FileName != nil {
		e.FileName = *f.FileName
	}
	return e
}

const (
	threadClass    = "java/lang/Thread"
	getStackTrace  = "getStackTrace"
	stackTraceDesc = "()[Ljava/lang/StackTraceElement;"
)

// StackInterceptor makes Thread.getStackTrace return a fixed list of frames
// instead of the real call stack. Index i of the returned array is frames[i].
type StackInterceptor struct {
	vm        *vm.VM
	prev      vm.MethodInvoker
	hadPrev   bool
	installed bool
}

// InstallStackInterceptor overrides Thread.getStackTrace on v. The calling
// thread must be attached: the StackTraceElement class is initialized here.
// If the snapshot's Thread has no getStackTrace, nothing is installed and
// Uninstall is a no-op.
func InstallStackInterceptor(v *vm.VM, frames []StackFrame) (*StackInterceptor, error) {
	entries := make([]vm.StackTraceEntry, len(frames))
	for i, f := range frames {
		entries[i] = f.entry()
	}
	template, err := v.NewStackTrace(entries)
	if err != nil {
		return nil, fmt.Errorf("stack interceptor: building frames: %w", err)
	}

	s := &StackInterceptor{vm: v}
	override := vm.MethodInvoker{
		Tag: "stack-override",
		Fn: func(ctx *vm.InvocationContext) (vm.Result, error) {
			arr := &vm.JArray{Type: template.Type, Elements: append([]vm.Value(nil), template.Elements...)}
			ctx.SetResult(vm.RefValue(arr))
			return vm.ResultAbort, nil
		},
	}
	prev, existed, err := v.SetInvoker(threadClass, getStackTrace, stackTraceDesc, override)
	if errors.Is(err, vm.ErrNoSuchMethod) {
		log.Warnf("stack interceptor: %s.%s%s not found, not installed", threadClass, getStackTrace, stackTraceDesc)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stack interceptor: %w", err)
	}
	s.prev, s.hadPrev, s.installed = prev, existed, true
	log.WithField("frames", len(frames)).Debug("stack interceptor installed")
	return s, nil
}

// Uninstall restores the behaviour that was active before the interceptor
// was installed. It is safe to call more than once.
func (s *StackInterceptor) Uninstall() {
	if s == nil || !s.installed {
		return
	}
	s.installed = false
	if s.hadPrev {
		if _, _, err := s.vm.SetInvoker(threadClass, getStackTrace, stackTraceDesc, s.prev); err != nil {
			log.WithError(err).Error("stack interceptor: restoring previous invoker")
		}
		return
	}
	s.vm.RemoveInvoker(threadClass, getStackTrace, stackTraceDesc)
}
