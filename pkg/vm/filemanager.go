package vm

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// FileManager owns the standard streams seen by bytecode. Output goes to
// in-memory buffers that the host drains; standard input is always empty.
type FileManager struct {
	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// NewFileManager returns a FileManager with empty buffers.
func NewFileManager() *FileManager {
	return &FileManager{}
}

type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

// Stdout is the writer behind System.out.
func (fm *FileManager) Stdout() io.Writer { return lockedWriter{mu: &fm.mu, buf: &fm.stdout} }

// Stderr is the writer behind System.err.
func (fm *FileManager) Stderr() io.Writer { return lockedWriter{mu: &fm.mu, buf: &fm.stderr} }

// Stdin is the reader behind System.in.
func (fm *FileManager) Stdin() io.Reader { return strings.NewReader("") }

// DrainStdout returns the captured standard output and clears it.
func (fm *FileManager) DrainStdout() string {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	s := fm.stdout.String()
	fm.stdout.Reset()
	return s
}

// DrainStderr returns the captured standard error and clears it.
func (fm *FileManager) DrainStderr() string {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	s := fm.stderr.String()
	fm.stderr.Reset()
	return s
}
