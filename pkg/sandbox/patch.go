package sandbox

import (
	"errors"
	"fmt"

	"github.com/apex/log"

	"github.com/daimatz/jvmsandbox/pkg/vm"
)

// Patch overrides one method during bootstrap so that a core library can
// start on this interpreter. Patches whose target is missing from the
// snapshot are skipped with a warning.
type Patch struct {
	Name                string
	Owner, Method, Desc string
	Fn                  func(ctx *vm.InvocationContext) (vm.Result, error)
}

// compatibilityPatches run between Initialize and Bootstrap, in order.
var compatibilityPatches = []Patch{
	{
		// initPhase2 boots the module system, which needs far more of the
		// runtime than exists here. Report success without running it.
		Name:   "skip-module-system-init",
		Owner:  "java/lang/System",
		Method: "initPhase2",
		Desc:   "(ZZ)I",
		Fn: func(ctx *vm.InvocationContext) (vm.Result, error) {
			ctx.SetResult(vm.IntValue(0))
			return vm.ResultAbort, nil
		},
	},
}

func (p Patch) apply(v *vm.VM) error {
	_, _, err := v.SetInvoker(p.Owner, p.Method, p.Desc, vm.MethodInvoker{Tag: "patch:" + p.Name, Fn: p.Fn})
	if errors.Is(err, vm.ErrNoSuchMethod) || errors.Is(err, vm.ErrClassNotFound) {
		log.Warnf("compatibility patch %s: %s.%s%s not found, skipping", p.Name, p.Owner, p.Method, p.Desc)
		return nil
	}
	if err != nil {
		return fmt.Errorf("patch %s: %w", p.Name, err)
	}
	if inv, ok := v.Invoker(p.Owner, p.Method, p.Desc); !ok || inv.Tag != "patch:"+p.Name {
		return fmt.Errorf("patch %s: override not active after install", p.Name)
	}
	log.WithField("patch", p.Name).Debug("compatibility patch installed")
	return nil
}

// execBlockedMessage is the SecurityException text Runtime.exec raises.
const execBlockedMessage = "Process execution is blocked in the sandbox"

// installPolicy blocks process spawning and sets the default ceiling.
func installPolicy(v *vm.VM, maxIterations int64) {
	deny := vm.MethodInvoker{
		Tag: "policy:no-exec",
		Fn: func(ctx *vm.InvocationContext) (vm.Result, error) {
			return vm.ResultAbort, ctx.VM.NewThrowable("java/lang/SecurityException", execBlockedMessage)
		},
	}
	for _, desc := range vm.ExecOverloads() {
		if _, _, err := v.SetInvoker("java/lang/Runtime", "exec", desc, deny); err != nil {
			log.WithError(err).Debugf("policy: Runtime.exec%s not intercepted", desc)
		}
	}
	v.SetMaxIterations(maxIterations)
}
