package sandbox

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/daimatz/jvmsandbox/pkg/vm"
	"github.com/daimatz/jvmsandbox/pkg/workspace"
)

// DefaultMaxIterations is the instruction ceiling of a fresh environment.
const DefaultMaxIterations = 10_000_000

var (
	// ErrNoWorkspace is returned when an environment is needed but no
	// workspace is open.
	ErrNoWorkspace = errors.New("no workspace is currently open")
	// ErrBootstrap wraps every failure to build an environment.
	ErrBootstrap = errors.New("bootstrap failed")
)

// State is the lifecycle state of a Manager's environment.
type State int

const (
	StateAbsent State = iota
	StateBootstrapping
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateBootstrapping:
		return "bootstrapping"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Environment is one booted interpreter together with its output buffers
// and class bridge. It is discarded when the workspace changes.
type Environment struct {
	Epoch     uuid.UUID
	VM        *vm.VM
	Files     *vm.FileManager
	Bridge    *Bridge
	Workspace *workspace.Workspace
	BootTime  time.Duration
}

// Operations returns the value-operations facade of the interpreter.
func (e *Environment) Operations() *vm.Operations { return e.VM.Operations() }

// InvocationUtil returns the invocation facade of the interpreter.
func (e *Environment) InvocationUtil() *vm.InvocationUtil { return e.VM.InvocationUtil() }

// Option configures a Manager.
type Option func(*Manager)

// WithMaxIterations sets the default instruction ceiling.
func WithMaxIterations(n int64) Option {
	return func(m *Manager) { m.maxIterations = n }
}

// Manager owns the single interpreter environment. It builds it lazily on
// first use, and throws it away whenever the workspace is opened, closed or
// edited. Every accessor takes the same lock, so invocations never overlap.
type Manager struct {
	snapshot      *Snapshot
	host          *workspace.Manager
	maxIterations int64

	mu          sync.Mutex
	state       State
	env         *Environment
	unsubscribe func()
	closeOnce   sync.Once
}

// NewManager returns a manager in the Absent state that follows the
// workspace held by host.
func NewManager(snapshot *Snapshot, host *workspace.Manager, opts ...Option) *Manager {
	m := &Manager{snapshot: snapshot, host: host, maxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		opt(m)
	}
	m.unsubscribe = host.Subscribe(func(ev workspace.Event) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.reset("workspace " + ev.Kind.String())
	})
	return m
}

// MaxIterations is the default instruction ceiling.
func (m *Manager) MaxIterations() int64 { return m.maxIterations }

// State reports the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsInitialized reports whether an environment is built.
func (m *Manager) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.env != nil
}

// Do runs fn with exclusive use of the environment, bootstrapping it first
// if needed.
func (m *Manager) Do(fn func(env *Environment) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	env, err := m.acquire()
	if err != nil {
		return err
	}
	return fn(env)
}

// Environment returns the environment, bootstrapping it if needed.
func (m *Manager) Environment() (*Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquire()
}

// VM returns the interpreter, bootstrapping it if needed.
func (m *Manager) VM() (*vm.VM, error) {
	env, err := m.Environment()
	if err != nil {
		return nil, err
	}
	return env.VM, nil
}

// Operations returns the value-operations facade.
func (m *Manager) Operations() (*vm.Operations, error) {
	env, err := m.Environment()
	if err != nil {
		return nil, err
	}
	return env.Operations(), nil
}

// InvocationUtil returns the invocation facade.
func (m *Manager) InvocationUtil() (*vm.InvocationUtil, error) {
	env, err := m.Environment()
	if err != nil {
		return nil, err
	}
	return env.InvocationUtil(), nil
}

// DrainStdout returns and clears captured standard output. It is empty
// while no environment exists.
func (m *Manager) DrainStdout() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.env == nil {
		return ""
	}
	return m.env.Files.DrainStdout()
}

// DrainStderr returns and clears captured standard error.
func (m *Manager) DrainStderr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.env == nil {
		return ""
	}
	return m.env.Files.DrainStderr()
}

// Reset discards the environment. The next access bootstraps a new one.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset("reset")
}

// Close stops following the workspace and discards the environment.
func (m *Manager) Close() {
	m.closeOnce.Do(m.unsubscribe)
	m.Reset()
}

func (m *Manager) reset(reason string) {
	if m.env != nil {
		log.WithFields(log.Fields{"epoch": m.env.Epoch, "reason": reason}).Info("discarding environment")
		m.env.Bridge.SetWorkspace(nil)
	}
	m.env = nil
	m.state = StateAbsent
}

func (m *Manager) acquire() (*Environment, error) {
	if m.env != nil {
		return m.env, nil
	}
	m.state = StateBootstrapping
	env, err := m.bootstrap()
	if err != nil {
		m.state = StateAbsent
		return nil, err
	}
	m.env = env
	m.state = StateReady
	return env, nil
}

// bootstrap links the core classes, applies the compatibility patches, runs
// the startup sequence, installs the sandbox policy and finally connects the
// workspace tier of the bridge.
func (m *Manager) bootstrap() (*Environment, error) {
	ws := m.host.Current()
	if ws == nil {
		return nil, ErrNoWorkspace
	}
	if m.snapshot == nil {
		return nil, fmt.Errorf("%w: no standard library snapshot configured", ErrBootstrap)
	}

	start := time.Now()
	env := &Environment{
		Epoch:     uuid.New(),
		Files:     vm.NewFileManager(),
		Bridge:    NewBridge(m.snapshot),
		Workspace: ws,
	}
	ctx := log.WithFields(log.Fields{"epoch": env.Epoch, "snapshot": m.snapshot.Name()})
	env.VM = vm.New(env.Bridge, vm.WithFileManager(env.Files))

	if err := env.VM.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBootstrap, err)
	}
	for _, p := range compatibilityPatches {
		if err := p.apply(env.VM); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBootstrap, err)
		}
	}
	if err := env.VM.Bootstrap(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBootstrap, err)
	}
	installPolicy(env.VM, m.maxIterations)
	env.Bridge.SetWorkspace(ws)

	if out := env.Files.DrainStdout() + env.Files.DrainStderr(); out != "" {
		ctx.Debugf("boot output: %q", out)
	}
	env.BootTime = time.Since(start)
	ctx.Infof("environment ready in %s", env.BootTime.Round(time.Millisecond))
	return env, nil
}
