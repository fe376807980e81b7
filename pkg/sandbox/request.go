package sandbox

import (
	"encoding/json"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// InvokeRequest asks for a static method to be run.
type InvokeRequest struct {
	ClassName           string       `json:"className" mapstructure:"className" jsonschema:"required,description=Class name in dot or slash notation"`
	MethodName          string       `json:"methodName" mapstructure:"methodName" jsonschema:"required"`
	MethodDescriptor    string       `json:"methodDescriptor" mapstructure:"methodDescriptor" jsonschema:"required,example=(II)I"`
	Args                []any        `json:"args,omitempty" mapstructure:"args" jsonschema:"description=One value per parameter: a number or string or boolean or null or a list of them"`
	MaxIterations       int64        `json:"maxIterations,omitempty" mapstructure:"maxIterations" jsonschema:"description=Instruction ceiling for this call; 0 keeps the default"`
	StackTraceOverride  []StackFrame `json:"stackTraceOverride,omitempty" mapstructure:"-" jsonschema:"description=Frames Thread.getStackTrace returns during the call with index 0 first"`
	AllowTransitiveInit []string     `json:"allowTransitiveInit,omitempty" mapstructure:"allowTransitiveInit" jsonschema:"description=Classes allowed to run static initializers besides the target; omitted allows all"`
}

// FieldRequest asks for a static field to be read.
type FieldRequest struct {
	ClassName          string       `json:"className" mapstructure:"className" jsonschema:"required"`
	FieldName          string       `json:"fieldName" mapstructure:"fieldName" jsonschema:"required"`
	FieldDescriptor    string       `json:"fieldDescriptor,omitempty" mapstructure:"fieldDescriptor" jsonschema:"description=Needed when several fields share the name"`
	StackTraceOverride []StackFrame `json:"stackTraceOverride,omitempty" mapstructure:"-"`
}

// ClinitRequest asks for a class's static initializer to be run.
type ClinitRequest struct {
	ClassName           string       `json:"className" mapstructure:"className" jsonschema:"required"`
	AllowTransitiveInit []string     `json:"allowTransitiveInit,omitempty" mapstructure:"allowTransitiveInit"`
	StackTraceOverride  []StackFrame `json:"stackTraceOverride,omitempty" mapstructure:"-"`
	MaxIterations       int64        `json:"maxIterations,omitempty" mapstructure:"maxIterations"`
}

// Operation names accepted by Provider.Dispatch.
const (
	OpInvoke = "invoke-static-method"
	OpField  = "read-static-field"
	OpClinit = "run-static-initializer"
)

const framesParam = "stackTraceOverride"

// DecodeInvokeRequest decodes loosely typed parameters, as a JSON or YAML
// decoder produces them.
func DecodeInvokeRequest(raw map[string]any) (*InvokeRequest, error) {
	var req InvokeRequest
	frames, err := decodeParams(raw, &req)
	if err != nil {
		return nil, err
	}
	req.StackTraceOverride = frames
	return &req, nil
}

// DecodeFieldRequest is DecodeInvokeRequest for field reads.
func DecodeFieldRequest(raw map[string]any) (*FieldRequest, error) {
	var req FieldRequest
	frames, err := decodeParams(raw, &req)
	if err != nil {
		return nil, err
	}
	req.StackTraceOverride = frames
	return &req, nil
}

// DecodeClinitRequest is DecodeInvokeRequest for initializer runs.
func DecodeClinitRequest(raw map[string]any) (*ClinitRequest, error) {
	var req ClinitRequest
	frames, err := decodeParams(raw, &req)
	if err != nil {
		return nil, err
	}
	req.StackTraceOverride = frames
	return &req, nil
}

func decodeParams(raw map[string]any, out any) ([]StackFrame, error) {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, validationFailure("InvalidRequest", "Invalid request: %v", err)
	}
	return ParseStackFrames(raw[framesParam])
}

// ParseStackFrames decodes a list of frame objects. Every frame needs
// className and methodName; a missing fileName stays nil and a missing
// lineNumber becomes LineAbsent. nil decodes to nil.
func ParseStackFrames(raw any) ([]StackFrame, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, validationFailure("InvalidStackFrame", "Parameter '%s' must be an array", framesParam)
	}
	frames := make([]StackFrame, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, validationFailure("InvalidStackFrame", "%s[%d] must be an object, got: %s", framesParam, i, jsonType(entry))
		}
		for _, field := range []string{"className", "methodName"} {
			if m[field] == nil {
				return nil, validationFailure("InvalidStackFrame", "%s[%d] is missing required field '%s'", framesParam, i, field)
			}
		}
		f := StackFrame{LineNumber: LineAbsent}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{WeaklyTypedInput: true, Result: &f})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(m); err != nil {
			return nil, validationFailure("InvalidStackFrame", "%s[%d]: %v", framesParam, i, err)
		}
		frames[i] = f
	}
	return frames, nil
}

// jsonType names the JSON kind of a decoded value for error messages.
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case json.Number, float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
