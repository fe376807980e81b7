package sandbox

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
	"github.com/daimatz/jvmsandbox/pkg/vm"
)

// InvokeResult is the outcome of a successful static method call.
type InvokeResult struct {
	InvocationID       string   `json:"invocationId"`
	ReturnValue        any      `json:"returnValue"`
	ReturnType         string   `json:"returnType"`
	Stdout             string   `json:"stdout"`
	Stderr             string   `json:"stderr"`
	MaxIterations      int64    `json:"maxIterations"`
	IterationsUsed     int64    `json:"iterationsUsed"`
	ClassesInitialized []string `json:"classesInitialized"`
	ClassesDeferred    []string `json:"classesDeferred,omitempty"`
}

// FieldResult is the outcome of a successful static field read.
type FieldResult struct {
	InvocationID       string   `json:"invocationId"`
	ClassName          string   `json:"className"`
	FieldName          string   `json:"fieldName"`
	FieldType          string   `json:"fieldType"`
	Value              any      `json:"value"`
	ClassInitialized   bool     `json:"classInitialized"`
	Stdout             string   `json:"stdout"`
	Stderr             string   `json:"stderr"`
	ClassesInitialized []string `json:"classesInitialized"`
}

// ClinitResult is the outcome of a successful static initializer run.
type ClinitResult struct {
	InvocationID       string   `json:"invocationId"`
	ClassName          string   `json:"className"`
	Initialized        bool     `json:"initialized"`
	AlreadyInitialized bool     `json:"alreadyInitialized,omitempty"`
	Stdout             string   `json:"stdout"`
	Stderr             string   `json:"stderr"`
	ClassesInitialized []string `json:"classesInitialized"`
	ClassesDeferred    []string `json:"classesDeferred"`
}

// Provider runs the sandbox operations against the environment of a
// Manager. Every error it returns is a *Failure.
type Provider struct {
	mgr *Manager
}

// NewProvider returns a Provider backed by mgr.
func NewProvider(mgr *Manager) *Provider {
	return &Provider{mgr: mgr}
}

// Manager returns the environment manager behind p.
func (p *Provider) Manager() *Manager { return p.mgr }

// run executes fn inside one session. The session's hooks are installed
// before fn runs and removed afterwards; output is drained on every path.
func (p *Provider) run(op string, o sessionOptions, fn func(s *session) error) (*session, error) {
	if o.maxIterations < 0 {
		return nil, validationFailure("InvalidRequest", "maxIterations must be positive, got %d", o.maxIterations)
	}
	s := &session{id: uuid.NewString()}
	s.ctx = log.WithFields(log.Fields{"op": op, "class": o.target, "invocation": s.id})
	s.ctx.Debug("invocation started")

	err := p.mgr.Do(func(env *Environment) error {
		s.env = env
		defer s.close()
		err := s.open(o)
		if err == nil {
			err = fn(s)
		}
		s.iterations = env.VM.Iterations()
		var f *Failure
		if err != nil {
			f = s.classify(err)
		}
		s.finish()
		if f != nil {
			f.Stdout, f.Stderr = s.stdout, s.stderr
			return f
		}
		return nil
	})
	if err != nil {
		f := environmentFailure(err)
		f.InvocationID = s.id
		s.ctx.WithField("error", f.Name).Debugf("invocation failed: %s", f.Kind)
		return nil, f
	}
	s.ctx.WithField("iterations", s.iterations).Debug("invocation finished")
	return s, nil
}

// environmentFailure maps errors from outside a session. Failures built
// inside a session pass through.
func environmentFailure(err error) *Failure {
	var f *Failure
	switch {
	case errors.As(err, &f):
		return f
	case errors.Is(err, ErrNoWorkspace):
		return &Failure{Kind: KindEnvironment, Name: "NoWorkspace", Message: err.Error(), cause: err}
	case errors.Is(err, ErrBootstrap):
		return &Failure{Kind: KindEnvironment, Name: "BootstrapFailed", Message: err.Error(), cause: err}
	}
	log.WithError(err).Error("sandbox: unexpected error")
	return &Failure{Kind: KindHost, Name: "HostError", Message: err.Error(), cause: err}
}

func requireParam(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return validationFailure("InvalidRequest", "Missing required parameter '%s'", name)
	}
	return nil
}

// InvokeStaticMethod calls a static method with marshaled arguments and
// serializes its return value.
func (p *Provider) InvokeStaticMethod(req *InvokeRequest) (*InvokeResult, error) {
	for _, param := range [][2]string{
		{"className", req.ClassName}, {"methodName", req.MethodName}, {"methodDescriptor", req.MethodDescriptor},
	} {
		if err := requireParam(param[0], param[1]); err != nil {
			return nil, err
		}
	}
	res := &InvokeResult{}
	opts := sessionOptions{
		target:        req.ClassName,
		frames:        req.StackTraceOverride,
		whitelist:     NewWhitelist(req.AllowTransitiveInit),
		maxIterations: req.MaxIterations,
	}
	s, err := p.run(OpInvoke, opts, func(s *session) error {
		c, err := s.findClass(req.ClassName)
		if err != nil {
			return err
		}
		m := c.Method(req.MethodName, req.MethodDescriptor)
		if m == nil {
			return methodNotFound(c, req.MethodName, req.MethodDescriptor)
		}
		if !m.IsStatic() {
			return validationFailure("MethodNotStatic",
				"Method %s%s in %s is not static. Only static methods can be invoked.", m.Name, m.Descriptor, c.DotName())
		}
		args, err := MarshalArgs(s.env.Operations(), m.Descriptor, req.Args)
		if err != nil {
			return err
		}
		if _, err := s.env.InvocationUtil().Initialize(c); err != nil {
			return err
		}
		ret, err := s.call(m, args)
		if err != nil {
			return err
		}
		res.ReturnType = m.Desc.Return.Label()
		res.ReturnValue = newSerializer(s.env).value(ret, m.Desc.Return)
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.InvocationID = s.id
	res.Stdout, res.Stderr = s.stdout, s.stderr
	res.MaxIterations = s.limit
	res.IterationsUsed = s.iterations
	res.ClassesInitialized = s.initialized
	res.ClassesDeferred = s.deferred
	return res, nil
}

// methodNotFound lists the static methods of c as candidates.
func methodNotFound(c *vm.Class, name, desc string) *Failure {
	var candidates []string
	for _, m := range c.Methods() {
		if m.IsStatic() && m.Name != "<clinit>" {
			candidates = append(candidates, m.Name+m.Descriptor)
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Method not found: %s%s in class %s.\n\nAvailable static methods:", name, desc, c.DotName())
	if len(candidates) == 0 {
		sb.WriteString("\n  (no static methods found)")
	}
	for _, cand := range candidates {
		sb.WriteString("\n  " + cand)
	}
	return resolutionFailure("MethodNotFound", candidates, "%s", sb.String())
}

// ReadStaticField initializes the class if needed and reads one of its
// static fields.
func (p *Provider) ReadStaticField(req *FieldRequest) (*FieldResult, error) {
	if err := requireParam("className", req.ClassName); err != nil {
		return nil, err
	}
	if err := requireParam("fieldName", req.FieldName); err != nil {
		return nil, err
	}
	res := &FieldResult{FieldName: req.FieldName}
	opts := sessionOptions{target: req.ClassName, frames: req.StackTraceOverride}
	s, err := p.run(OpField, opts, func(s *session) error {
		c, err := s.findClass(req.ClassName)
		if err != nil {
			return err
		}
		f, err := resolveStaticField(c, req.FieldName, req.FieldDescriptor)
		if err != nil {
			return err
		}
		ran, err := s.env.InvocationUtil().Initialize(c)
		if err != nil {
			return err
		}
		v, err := s.env.Operations().GetStatic(c, f.Name, f.Descriptor)
		if err != nil {
			return err
		}
		t, err := classfile.ParseFieldType(f.Descriptor)
		if err != nil {
			return err
		}
		res.ClassName = c.DotName()
		res.FieldType = t.Label()
		res.Value = newSerializer(s.env).value(v, t)
		res.ClassInitialized = ran
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.InvocationID = s.id
	res.Stdout, res.Stderr = s.stdout, s.stderr
	res.ClassesInitialized = s.initialized
	return res, nil
}

// resolveStaticField finds the field by name and, when given, descriptor.
// A bare name matching several fields is ambiguous rather than guessed.
func resolveStaticField(c *vm.Class, name, desc string) (*vm.Field, error) {
	var f *vm.Field
	if desc != "" {
		f = c.Field(name, desc)
		if f == nil {
			return nil, resolutionFailure("FieldNotFound", staticFieldLabels(c),
				"Field not found: '%s' with descriptor '%s' in class %s.", name, desc, c.DotName())
		}
	} else {
		fields := c.FieldsNamed(name)
		switch len(fields) {
		case 0:
			return nil, resolutionFailure("FieldNotFound", staticFieldLabels(c),
				"Field not found: '%s' in class %s.", name, c.DotName())
		case 1:
			f = fields[0]
		default:
			var sb strings.Builder
			fmt.Fprintf(&sb, "Multiple fields named '%s' found. Provide fieldDescriptor to disambiguate:", name)
			candidates := make([]string, len(fields))
			for i, fd := range fields {
				candidates[i] = fd.Descriptor
				fmt.Fprintf(&sb, "\n  %s %s (descriptor: %s)", classfile.DescribeFieldType(fd.Descriptor), fd.Name, fd.Descriptor)
			}
			return nil, resolutionFailure("AmbiguousField", candidates, "%s", sb.String())
		}
	}
	if !f.IsStatic() {
		labels := staticFieldLabels(c)
		var sb strings.Builder
		fmt.Fprintf(&sb, "Field '%s' in %s is not static. Only static fields can be read.\n\nAvailable static fields:", name, c.DotName())
		if len(labels) == 0 {
			sb.WriteString("\n  (no static fields found)")
		}
		for _, l := range labels {
			sb.WriteString("\n  " + l)
		}
		fail := validationFailure("FieldNotStatic", "%s", sb.String())
		fail.Candidates = labels
		return nil, fail
	}
	return f, nil
}

func staticFieldLabels(c *vm.Class) []string {
	var out []string
	for _, f := range c.Fields() {
		if f.IsStatic() {
			out = append(out, fmt.Sprintf("%s %s (descriptor: %s)", classfile.DescribeFieldType(f.Descriptor), f.Name, f.Descriptor))
		}
	}
	sort.Strings(out)
	return out
}

// RunStaticInitializer initializes a class under the initializer gate and
// reports which initializers ran and which were deferred.
func (p *Provider) RunStaticInitializer(req *ClinitRequest) (*ClinitResult, error) {
	if err := requireParam("className", req.ClassName); err != nil {
		return nil, err
	}
	res := &ClinitResult{}
	opts := sessionOptions{
		target:        req.ClassName,
		frames:        req.StackTraceOverride,
		whitelist:     NewWhitelist(req.AllowTransitiveInit),
		maxIterations: req.MaxIterations,
	}
	s, err := p.run(OpClinit, opts, func(s *session) error {
		c, err := s.findClass(req.ClassName)
		if err != nil {
			return err
		}
		ran, err := s.env.InvocationUtil().Initialize(c)
		if err != nil {
			return err
		}
		res.ClassName = c.DotName()
		res.Initialized = true
		res.AlreadyInitialized = !ran
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.InvocationID = s.id
	res.Stdout, res.Stderr = s.stdout, s.stderr
	res.ClassesInitialized = s.initialized
	res.ClassesDeferred = s.deferred
	return res, nil
}

// Dispatch decodes raw parameters for op and runs it.
func (p *Provider) Dispatch(op string, raw map[string]any) (any, error) {
	switch op {
	case OpInvoke:
		req, err := DecodeInvokeRequest(raw)
		if err != nil {
			return nil, err
		}
		return p.InvokeStaticMethod(req)
	case OpField:
		req, err := DecodeFieldRequest(raw)
		if err != nil {
			return nil, err
		}
		return p.ReadStaticField(req)
	case OpClinit:
		req, err := DecodeClinitRequest(raw)
		if err != nil {
			return nil, err
		}
		return p.RunStaticInitializer(req)
	}
	return nil, validationFailure("UnknownOperation", "Unknown operation '%s'", op)
}
