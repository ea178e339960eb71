package sandbox

import (
	"context"
	"strings"
	"sync"

	"sitesmith/internal/mount"
)

// Mock is a scripted Booter and Session for tests.
type Mock struct {
	mu sync.Mutex

	// Errors injects failures by method name: "Boot", "Mount", "Spawn".
	Errors map[string]error

	// Processes scripts spawned processes by command line ("npm install").
	// Each Spawn pops the first entry; unscripted commands exit 0 at once.
	Processes map[string][]*MockProcess

	// BootGate, when set, blocks Boot until it is closed.
	BootGate chan struct{}

	// CallLog records every call for verification.
	CallLog []MockCall

	// Mounted holds every descriptor passed to Mount.
	Mounted []mount.Descriptor

	Spawned []*MockProcess

	listeners map[int]func(int, string)
	nextID    int
}

// MockCall is one recorded call.
type MockCall struct {
	Method string
	Args   []interface{}
}

// NewMock returns an empty mock.
func NewMock() *Mock {
	return &Mock{
		Errors:    make(map[string]error),
		Processes: make(map[string][]*MockProcess),
		listeners: make(map[int]func(int, string)),
	}
}

func (m *Mock) record(method string, args ...interface{}) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
}

// SetError injects err for method. A nil err clears it.
func (m *Mock) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Errors, method)
		return
	}
	m.Errors[method] = err
}

// Script queues p for the next spawn of command.
func (m *Mock) Script(command string, p *MockProcess) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Processes[command] = append(m.Processes[command], p)
}

// CallsFor returns the recorded calls for method.
func (m *Mock) CallsFor(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var calls []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// Mounts returns a copy of the mounted descriptors.
func (m *Mock) Mounts() []mount.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mount.Descriptor, len(m.Mounted))
	copy(out, m.Mounted)
	return out
}

// Boot returns the mock itself as the session.
func (m *Mock) Boot(ctx context.Context) (Session, error) {
	m.mu.Lock()
	m.record("Boot")
	gate := m.BootGate
	err := m.Errors["Boot"]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mock) Mount(ctx context.Context, d mount.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Mount", d)
	if err, ok := m.Errors["Mount"]; ok {
		return err
	}
	m.Mounted = append(m.Mounted, d)
	return nil
}

func (m *Mock) Spawn(ctx context.Context, name string, args ...string) (Process, error) {
	command := strings.TrimSpace(name + " " + strings.Join(args, " "))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Spawn", command)
	if err, ok := m.Errors["Spawn"]; ok {
		return nil, err
	}
	var p *MockProcess
	if queue := m.Processes[command]; len(queue) > 0 {
		p = queue[0]
		m.Processes[command] = queue[1:]
	} else {
		p = ExitedProcess(0)
	}
	m.Spawned = append(m.Spawned, p)
	return p, nil
}

func (m *Mock) OnServerReady(fn func(port int, url string)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// EmitServerReady notifies every registered listener.
func (m *Mock) EmitServerReady(port int, url string) {
	m.mu.Lock()
	fns := make([]func(int, string), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(port, url)
	}
}

// Listeners returns the number of registered server-ready listeners.
func (m *Mock) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// MockProcess is a process driven by the test.
type MockProcess struct {
	mu     sync.Mutex
	out    chan string
	done   chan struct{}
	code   int
	exited bool
	killed bool
}

// NewMockProcess returns a running process with no output yet.
func NewMockProcess() *MockProcess {
	return &MockProcess{
		out:  make(chan string, 256),
		done: make(chan struct{}),
	}
}

// ExitedProcess returns a process that already printed lines and exited with code.
func ExitedProcess(code int, lines ...string) *MockProcess {
	p := NewMockProcess()
	for _, line := range lines {
		p.Emit(line)
	}
	p.Exit(code)
	return p
}

// Emit writes one output line. Lines after exit are dropped.
func (p *MockProcess) Emit(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.out <- line
}

// Exit ends the process with code. Later calls are ignored.
func (p *MockProcess) Exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.code = code
	close(p.out)
	close(p.done)
}

// Killed reports whether Kill was called while the process ran.
func (p *MockProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Running reports whether the process has not exited.
func (p *MockProcess) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exited
}

func (p *MockProcess) Output() <-chan string {
	return p.out
}

func (p *MockProcess) Wait(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.code, nil
	}
}

func (p *MockProcess) Kill() error {
	p.mu.Lock()
	running := !p.exited
	if running {
		p.killed = true
	}
	p.mu.Unlock()
	if running {
		p.Exit(-1)
	}
	return nil
}
