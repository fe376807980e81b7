package sandbox

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseStackFrames(t *testing.T) {
	frames, err := ParseStackFrames([]any{
		map[string]any{"className": "a.B", "methodName": "run", "fileName": "B.java", "lineNumber": 12},
		map[string]any{"className": "a.C", "methodName": "call"},
		map[string]any{"className": "a.D", "methodName": "main", "lineNumber": 0},
	})
	if err != nil {
		t.Fatalf("ParseStackFrames: %v", err)
	}
	want := []StackFrame{
		{ClassName: "a.B", MethodName: "run", FileName: strptr("B.java"), LineNumber: 12},
		{ClassName: "a.C", MethodName: "call", LineNumber: LineAbsent},
		{ClassName: "a.D", MethodName: "main", LineNumber: 0},
	}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("frames (-want +got):\n%s", diff)
	}

	if frames, err := ParseStackFrames(nil); err != nil || frames != nil {
		t.Errorf("nil: got %v, %v", frames, err)
	}
}

func TestParseStackFramesErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{"not a list", "frames", "Parameter 'stackTraceOverride' must be an array"},
		{"not an object", []any{42}, "stackTraceOverride[0] must be an object, got: number"},
		{"no class", []any{map[string]any{"methodName": "m"}}, "stackTraceOverride[0] is missing required field 'className'"},
		{"no method", []any{
			map[string]any{"className": "a.B", "methodName": "m"},
			map[string]any{"className": "a.B"},
		}, "stackTraceOverride[1] is missing required field 'methodName'"},
		{"bad line", []any{map[string]any{"className": "a.B", "methodName": "m", "lineNumber": "twelve"}}, "stackTraceOverride[0]:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStackFrames(tt.raw)
			f := asFailure(t, err, KindValidation)
			if !strings.Contains(f.Message, tt.want) {
				t.Errorf("message: got %q, want it to contain %q", f.Message, tt.want)
			}
		})
	}
}

func TestDecodeInvokeRequest(t *testing.T) {
	req, err := DecodeInvokeRequest(map[string]any{
		"className":           "sample.Calc",
		"methodName":          "add",
		"methodDescriptor":    "(II)I",
		"args":                []any{2, 3},
		"maxIterations":       "5000",
		"allowTransitiveInit": []any{"sample.B"},
		"stackTraceOverride":  []any{map[string]any{"className": "X", "methodName": "m"}},
	})
	if err != nil {
		t.Fatalf("DecodeInvokeRequest: %v", err)
	}
	want := &InvokeRequest{
		ClassName:           "sample.Calc",
		MethodName:          "add",
		MethodDescriptor:    "(II)I",
		Args:                []any{2, 3},
		MaxIterations:       5000,
		AllowTransitiveInit: []string{"sample.B"},
		StackTraceOverride:  []StackFrame{{ClassName: "X", MethodName: "m", LineNumber: LineAbsent}},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("request (-want +got):\n%s", diff)
	}

	_, err = DecodeFieldRequest(map[string]any{"className": "a.B", "fieldName": map[string]any{"x": 1}})
	asFailure(t, err, KindValidation)
}

func TestFormatTrace(t *testing.T) {
	if got := formatTrace(nil); got != "" {
		t.Errorf("empty: got %q", got)
	}
	got := formatTrace([]string{"a.B.c(B.java:1)", "a.B.main(B.java:2)"})
	if want := "at a.B.c(B.java:1)\nat a.B.main(B.java:2)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	frames := make([]string, maxTraceFrames+7)
	for i := range frames {
		frames[i] = fmt.Sprintf("a.B.m%d(B.java)", i)
	}
	lines := strings.Split(formatTrace(frames), "\n")
	if len(lines) != maxTraceFrames+1 {
		t.Fatalf("lines: got %d, want %d", len(lines), maxTraceFrames+1)
	}
	if last := lines[len(lines)-1]; last != "... 7 more" {
		t.Errorf("last line: got %q, want %q", last, "... 7 more")
	}
}

func TestFailureError(t *testing.T) {
	f := iterationFailure(1000, 1000)
	if f.Kind != KindResourceLimit || f.Name != IterationLimitExceeded {
		t.Errorf("got %s/%s", f.Kind, f.Name)
	}
	want := "IterationLimitExceeded: Execution exceeded 1000 iterations. Retry with a higher maxIterations value."
	if got := f.Error(); got != want {
		t.Errorf("Error: got %q, want %q", got, want)
	}
}
