package sandbox

import (
	"github.com/apex/log"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
	"github.com/daimatz/jvmsandbox/pkg/vm"
)

// Whitelist is a set of internal class names allowed to run <clinit>. A nil
// Whitelist allows every class.
type Whitelist map[string]struct{}

// NewWhitelist normalizes names given in dot or slash notation. A nil slice
// yields a nil Whitelist; an empty slice yields one that allows nothing.
func NewWhitelist(names []string) Whitelist {
	if names == nil {
		return nil
	}
	w := make(Whitelist, len(names))
	for _, n := range names {
		w[classfile.InternalName(n)] = struct{}{}
	}
	return w
}

// Allows reports whether the internal name is on the list.
func (w Whitelist) Allows(name string) bool {
	if w == nil {
		return true
	}
	_, ok := w[name]
	return ok
}

// InitGate records which static initializers run during one invocation
// and, when it has a whitelist, stops the others from running. The target
// class and classes from the snapshot are never stopped.
type InitGate struct {
	vm        *vm.VM
	env       *vm.Env
	target    string
	whitelist Whitelist

	initialized []string
	deferred    []string
	suppressed  []suppression
	closed      bool
}

type suppression struct {
	class   string
	prev    vm.MethodInvoker
	hadPrev bool
}

// InstallInitGate attaches a gate to v. target is the class the caller asked
// for, in either notation.
func InstallInitGate(v *vm.VM, target string, whitelist Whitelist) *InitGate {
	g := &InitGate{vm: v, env: v.NewEnv(), target: classfile.InternalName(target), whitelist: whitelist}
	g.env.OnMethodEnter(func(m *vm.Method) {
		if m.Name == "<clinit>" {
			g.initialized = append(g.initialized, m.Class.DotName())
		}
	})
	if whitelist != nil {
		g.env.OnClassLink(g.classLinked)
	}
	return g
}

func (g *InitGate) classLinked(c *vm.Class) {
	if c.Origin == vm.OriginSnapshot || c.Name == g.target || g.whitelist.Allows(c.Name) {
		return
	}
	if c.Method("<clinit>", "()V") == nil {
		return
	}
	skip := vm.MethodInvoker{
		Tag: "init-gate",
		Fn:  func(*vm.InvocationContext) (vm.Result, error) { return vm.ResultAbort, nil },
	}
	prev, existed, err := g.vm.SetInvoker(c.Name, "<clinit>", "()V", skip)
	if err != nil {
		log.WithError(err).Errorf("init gate: suppressing %s", c.Name)
		return
	}
	g.suppressed = append(g.suppressed, suppression{class: c.Name, prev: prev, hadPrev: existed})
	g.deferred = append(g.deferred, c.DotName())
	log.WithField("class", c.DotName()).Debug("static initializer deferred")
}

// InitializedClasses lists, in order, the classes whose <clinit> started.
func (g *InitGate) InitializedClasses() []string {
	return append([]string{}, g.initialized...)
}

// DeferredClasses lists, in order, the classes whose <clinit> was stopped.
func (g *InitGate) DeferredClasses() []string {
	return append([]string{}, g.deferred...)
}

// Close detaches the gate's observers and lifts its suppressions, so a later
// invocation may still initialize a deferred class that was not touched.
// Close is idempotent.
func (g *InitGate) Close() {
	if g == nil || g.closed {
		return
	}
	g.closed = true
	g.env.Close()
	for _, s := range g.suppressed {
		if s.hadPrev {
			g.vm.SetInvoker(s.class, "<clinit>", "()V", s.prev)
			continue
		}
		g.vm.RemoveInvoker(s.class, "<clinit>", "()V")
	}
}
