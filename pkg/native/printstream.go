package native

import "io"

// PrintStream is the host side of a java.io.PrintStream. Like the Java
// class it never reports write failures to the caller; the first one is
// kept and surfaced by CheckError.
type PrintStream struct {
	Writer io.Writer
	err    error
}

func (ps *PrintStream) write(p []byte) {
	if ps.err != nil {
		return
	}
	if _, err := ps.Writer.Write(p); err != nil {
		ps.err = err
	}
}

// Print writes s without a line terminator.
func (ps *PrintStream) Print(s string) { ps.write([]byte(s)) }

// Println writes s and a line terminator.
func (ps *PrintStream) Println(s string) { ps.write([]byte(s + "\n")) }

// Write writes raw bytes, as PrintStream.write does.
func (ps *PrintStream) Write(p []byte) { ps.write(p) }

// CheckError reports whether a write has failed.
func (ps *PrintStream) CheckError() bool { return ps.err != nil }
