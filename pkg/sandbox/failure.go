package sandbox

import (
	"fmt"
	"strings"
)

// Kind classifies a Failure.
type Kind string

const (
	// KindResolution: a class, method or field does not exist or is ambiguous.
	KindResolution Kind = "resolution"
	// KindValidation: the request does not fit the member it names.
	KindValidation Kind = "validation"
	// KindException: the executed code threw.
	KindException Kind = "exception"
	// KindResourceLimit: the instruction ceiling was reached.
	KindResourceLimit Kind = "resource-limit"
	// KindEnvironment: no workspace, or the interpreter could not boot.
	KindEnvironment Kind = "environment"
	// KindHost: anything else that went wrong outside the executed code.
	KindHost Kind = "host"
)

// IterationLimitExceeded is the Name of resource-limit failures.
const IterationLimitExceeded = "IterationLimitExceeded"

// maxTraceFrames bounds VMStackTrace.
const maxTraceFrames = 50

// Failure is the result of an operation that did not complete. Output the
// code printed before failing is kept.
type Failure struct {
	Kind         Kind     `json:"kind"`
	Name         string   `json:"error"`
	Message      string   `json:"message"`
	VMStackTrace string   `json:"vmStackTrace,omitempty"`
	Candidates   []string `json:"candidates,omitempty"`

	IterationsUsed int64 `json:"iterationsUsed,omitempty"`
	MaxIterations  int64 `json:"maxIterations,omitempty"`

	InvocationID string `json:"invocationId,omitempty"`
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`

	cause error
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return f.Name
	}
	return f.Name + ": " + f.Message
}

func (f *Failure) Unwrap() error { return f.cause }

func validationFailure(name, format string, args ...any) *Failure {
	return &Failure{Kind: KindValidation, Name: name, Message: fmt.Sprintf(format, args...)}
}

func resolutionFailure(name string, candidates []string, format string, args ...any) *Failure {
	return &Failure{Kind: KindResolution, Name: name, Message: fmt.Sprintf(format, args...), Candidates: candidates}
}

func iterationFailure(used, limit int64) *Failure {
	return &Failure{
		Kind:           KindResourceLimit,
		Name:           IterationLimitExceeded,
		Message:        fmt.Sprintf("Execution exceeded %d iterations. Retry with a higher maxIterations value.", limit),
		IterationsUsed: used,
		MaxIterations:  limit,
	}
}

// formatTrace renders "at frame" lines, keeping the first maxTraceFrames.
func formatTrace(frames []string) string {
	n := len(frames)
	if n > maxTraceFrames {
		frames = frames[:maxTraceFrames]
	}
	lines := make([]string, len(frames))
	for i, f := range frames {
		lines[i] = "at " + f
	}
	s := strings.Join(lines, "\n")
	if n > maxTraceFrames {
		s += fmt.Sprintf("\n... %d more", n-maxTraceFrames)
	}
	return s
}
