package sandbox

import (
	"github.com/invopop/jsonschema"
)

// OperationSchema describes one operation's parameters and results.
type OperationSchema struct {
	Name    string             `json:"name"`
	Params  *jsonschema.Schema `json:"params"`
	Result  *jsonschema.Schema `json:"result"`
	Failure *jsonschema.Schema `json:"failure"`
}

// Schemas reflects the request and result types of every operation.
func Schemas() []OperationSchema {
	r := &jsonschema.Reflector{DoNotReference: true}
	failure := r.Reflect(&Failure{})
	failure.Description = "Returned instead of the result when the operation does not complete"
	ops := []struct {
		name           string
		params, result any
		desc           string
	}{
		{OpInvoke, &InvokeRequest{}, &InvokeResult{}, "Invoke a static method and return its serialized result"},
		{OpField, &FieldRequest{}, &FieldResult{}, "Read a static field, initializing its class first if needed"},
		{OpClinit, &ClinitRequest{}, &ClinitResult{}, "Run a class's static initializer under the initializer gate"},
	}
	out := make([]OperationSchema, len(ops))
	for i, op := range ops {
		params := r.Reflect(op.params)
		params.Description = op.desc
		out[i] = OperationSchema{Name: op.name, Params: params, Result: r.Reflect(op.result), Failure: failure}
	}
	return out
}
