package vm

import "fmt"

// maxFrameDepth is the maximum number of nested method calls.
const maxFrameDepth = 1024

// IterationLimitError aborts execution once the instruction ceiling is
// reached. Exception handlers in bytecode never see it.
type IterationLimitError struct {
	Limit int64
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("vm: execution exceeded %d iterations", e.Limit)
}

// MaxIterations returns the instruction ceiling; 0 means unlimited.
func (vm *VM) MaxIterations() int64 { return vm.maxIterations }

// SetMaxIterations sets the instruction ceiling. It does not reset the
// count already charged.
func (vm *VM) SetMaxIterations(n int64) {
	if n < 0 {
		n = 0
	}
	vm.maxIterations = n
}

// Iterations is the number of instructions run since the last
// ResetIterations. The ceiling applies to this count, so a host that makes
// several calls for one unit of work shares one budget between them.
func (vm *VM) Iterations() int64 { return vm.iterations }

// ResetIterations starts a new budget.
func (vm *VM) ResetIterations() { vm.iterations = 0 }

func (vm *VM) tick() error {
	vm.iterations++
	if vm.maxIterations > 0 && vm.iterations > vm.maxIterations {
		vm.iterations = vm.maxIterations
		return &IterationLimitError{Limit: vm.maxIterations}
	}
	return nil
}
