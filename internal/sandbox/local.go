package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"sitesmith/internal/mount"
)

const defaultProbeInterval = 250 * time.Millisecond

// LocalOptions configures the host sandbox.
type LocalOptions struct {
	// Root holds one working directory per boot. Empty means the OS temp dir.
	Root string
	// Ports are probed while a process runs; the first one to accept a
	// connection raises server-ready.
	Ports         []int
	ProbeInterval time.Duration
	Env           []string
	Logger        *log.Logger
}

// Local runs the sandbox on the host: mounts become files under a working
// directory and processes are host processes.
type Local struct {
	opts LocalOptions
}

// NewLocal returns a host Booter.
func NewLocal(opts LocalOptions) *Local {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Local{opts: opts}
}

// Boot creates a fresh working directory.
func (l *Local) Boot(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := l.opts.Root
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	dir, err := os.MkdirTemp(root, "session-")
	if err != nil {
		return nil, fmt.Errorf("create sandbox dir: %w", err)
	}
	l.opts.Logger.Printf("sandbox booted at %s", dir)
	return &LocalSession{
		dir:       dir,
		opts:      l.opts,
		listeners: make(map[int]func(int, string)),
	}, nil
}

// LocalSession is a booted host sandbox.
type LocalSession struct {
	dir  string
	opts LocalOptions

	mu        sync.Mutex
	listeners map[int]func(int, string)
	nextID    int
}

// Dir returns the working directory mounts are written to.
func (s *LocalSession) Dir() string {
	return s.dir
}

// Mount writes every directory and file of d under the working directory.
// Paths cannot escape it.
func (s *LocalSession) Mount(ctx context.Context, d mount.Descriptor) error {
	for _, dir := range d.Dirs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		full, err := securejoin.SecureJoin(s.dir, dir)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", dir, err)
		}
		if err := os.MkdirAll(full, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	for path, contents := range d.Files() {
		if err := ctx.Err(); err != nil {
			return err
		}
		full, err := securejoin.SecureJoin(s.dir, path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("mkdir for %s: %w", path, err)
		}
		if err := os.WriteFile(full, []byte(contents), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// Spawn starts name in the working directory with stdin closed.
func (s *LocalSession) Spawn(ctx context.Context, name string, args ...string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	busy := s.openPorts()

	pr, pw := io.Pipe()
	cmd := exec.Command(name, args...)
	cmd.Dir = s.dir
	cmd.Env = append(os.Environ(), s.opts.Env...)
	cmd.Stdin = nil
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	s.opts.Logger.Printf("spawned %s (pid %d)", name, cmd.Process.Pid)

	p := &localProcess{
		cmd:  cmd,
		out:  make(chan string, 64),
		done: make(chan struct{}),
	}
	go p.pump(pr)
	go func() {
		err := cmd.Wait()
		p.code = 0
		if err != nil {
			var exitErr *exec.ExitError
			switch {
			case errors.As(err, &exitErr):
				p.code = exitErr.ExitCode()
			case errors.Is(err, exec.ErrWaitDelay):
				// exited, but a leftover child still held the output pipe
				p.code = cmd.ProcessState.ExitCode()
			default:
				p.code = -1
				p.err = err
			}
		}
		pw.Close()
		close(p.done)
	}()
	go s.probe(p, busy)
	return p, nil
}

// OnServerReady registers fn for ports that start accepting connections.
func (s *LocalSession) OnServerReady(fn func(port int, url string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *LocalSession) emit(port int) {
	url := "http://localhost:" + strconv.Itoa(port)
	s.mu.Lock()
	fns := make([]func(int, string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(port, url)
	}
}

// probe polls the configured ports while p runs. Ports already open at spawn
// time belong to something else and are ignored.
func (s *LocalSession) probe(p *localProcess, busy map[int]bool) {
	if len(s.opts.Ports) == 0 {
		return
	}
	ticker := time.NewTicker(s.opts.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			for _, port := range s.opts.Ports {
				if busy[port] || !portOpen(port) {
					continue
				}
				s.opts.Logger.Printf("port %d is accepting connections", port)
				s.emit(port)
				return
			}
		}
	}
}

func (s *LocalSession) openPorts() map[int]bool {
	open := make(map[int]bool)
	for _, port := range s.opts.Ports {
		if portOpen(port) {
			open[port] = true
		}
	}
	return open
}

func portOpen(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

type localProcess struct {
	cmd  *exec.Cmd
	out  chan string
	done chan struct{}
	code int
	err  error
}

func (p *localProcess) pump(r io.Reader) {
	defer close(p.out)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.out <- scanner.Text()
	}
	// keep draining so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

func (p *localProcess) Output() <-chan string {
	return p.out
}

func (p *localProcess) Wait(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-p.done:
		return p.code, p.err
	}
}

func (p *localProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return killProcess(p.cmd)
}
