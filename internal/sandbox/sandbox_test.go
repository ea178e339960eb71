package sandbox

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"sitesmith/internal/mount"
)

func TestSharedBootsOnceForConcurrentCallers(t *testing.T) {
	mock := NewMock()
	mock.BootGate = make(chan struct{})
	shared := NewShared(mock)

	var wg sync.WaitGroup
	sessions := make([]Session, 5)
	errs := make([]error, 5)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = shared.Boot(context.Background())
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(mock.CallsFor("Boot")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("boot never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(mock.BootGate)
	wg.Wait()

	if n := len(mock.CallsFor("Boot")); n != 1 {
		t.Fatalf("expected one boot, got %d", n)
	}
	for i := range sessions {
		if errs[i] != nil || sessions[i] != Session(mock) {
			t.Fatalf("caller %d got %v, %v", i, sessions[i], errs[i])
		}
	}
	if _, err := shared.Boot(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(mock.CallsFor("Boot")); n != 1 {
		t.Fatalf("cached session should not reboot, got %d boots", n)
	}
}

func TestSharedRebootsAfterFailure(t *testing.T) {
	mock := NewMock()
	boom := errors.New("boom")
	mock.SetError("Boot", boom)
	shared := NewShared(mock)

	if _, err := shared.Boot(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if shared.Session() != nil {
		t.Fatal("failed boot must not be cached")
	}

	mock.SetError("Boot", nil)
	sess, err := shared.Boot(context.Background())
	if err != nil || sess == nil {
		t.Fatalf("second boot failed: %v", err)
	}
	if n := len(mock.CallsFor("Boot")); n != 2 {
		t.Fatalf("expected two boots, got %d", n)
	}

	shared.Reset()
	if shared.Session() != nil {
		t.Fatal("reset should drop the session")
	}
}

func TestSharedBootHonoursCancellation(t *testing.T) {
	mock := NewMock()
	mock.BootGate = make(chan struct{})
	defer close(mock.BootGate)
	shared := NewShared(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := shared.Boot(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMockScriptsProcesses(t *testing.T) {
	mock := NewMock()
	mock.Script("npm install", ExitedProcess(1, "npm ERR! missing script"))

	p, err := mock.Spawn(context.Background(), "npm", "install")
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	for line := range p.Output() {
		lines = append(lines, line)
	}
	code, err := p.Wait(context.Background())
	if err != nil || code != 1 {
		t.Fatalf("wait = %d, %v", code, err)
	}
	if len(lines) != 1 || lines[0] != "npm ERR! missing script" {
		t.Fatalf("lines = %v", lines)
	}

	running := NewMockProcess()
	mock.Script("npm run dev", running)
	got, _ := mock.Spawn(context.Background(), "npm", "run", "dev")
	if err := got.Kill(); err != nil {
		t.Fatal(err)
	}
	if !running.Killed() || running.Running() {
		t.Fatal("kill should end the scripted process")
	}

	var ready []int
	cancel := mock.OnServerReady(func(port int, url string) { ready = append(ready, port) })
	mock.EmitServerReady(5173, "http://localhost:5173")
	cancel()
	mock.EmitServerReady(3000, "http://localhost:3000")
	if len(ready) != 1 || ready[0] != 5173 {
		t.Fatalf("ready = %v", ready)
	}
}

func TestLocalMountWritesDescriptor(t *testing.T) {
	local := NewLocal(LocalOptions{Root: t.TempDir()})
	sess, err := local.Boot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	dir := sess.(*LocalSession).Dir()

	d := mount.Descriptor{
		"package.json": {File: &mount.File{Contents: "{}"}},
		"src": {Directory: mount.Descriptor{
			"main.js": {File: &mount.File{Contents: "main"}},
		}},
		"public": {Directory: mount.Descriptor{}},
	}
	if err := sess.Mount(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "src", "main.js"))
	if err != nil || string(data) != "main" {
		t.Fatalf("src/main.js = %q, %v", data, err)
	}
	if info, err := os.Stat(filepath.Join(dir, "public")); err != nil || !info.IsDir() {
		t.Fatalf("empty directory not created: %v", err)
	}
}

func TestLocalMountStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	local := NewLocal(LocalOptions{Root: root})
	sess, err := local.Boot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	dir := sess.(*LocalSession).Dir()

	d := mount.Descriptor{"..": {Directory: mount.Descriptor{
		"escaped.txt": {File: &mount.File{Contents: "x"}},
	}}}
	if err := sess.Mount(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "escaped.txt")); err == nil {
		t.Fatal("mount escaped the session directory")
	}
	if _, err := os.Stat(filepath.Join(dir, "escaped.txt")); err != nil {
		t.Fatalf("file should be clamped into the session directory: %v", err)
	}
}

func TestLocalSpawnStreamsOutputAndExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	local := NewLocal(LocalOptions{Root: t.TempDir()})
	sess, err := local.Boot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	p, err := sess.Spawn(context.Background(), "sh", "-c", "echo one; echo two >&2; exit 3")
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	for line := range p.Output() {
		lines = append(lines, line)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := p.Wait(ctx)
	if err != nil || code != 3 {
		t.Fatalf("wait = %d, %v", code, err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %v", lines)
	}
}

func TestLocalKill(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sleep")
	}
	local := NewLocal(LocalOptions{Root: t.TempDir()})
	sess, _ := local.Boot(context.Background())
	p, err := sess.Spawn(context.Background(), "sleep", "30")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Kill(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.Wait(ctx); err != nil {
		t.Fatalf("process did not exit after kill: %v", err)
	}
}

func TestLocalServerReadyProbe(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sleep")
	}
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	local := NewLocal(LocalOptions{Root: t.TempDir(), Ports: []int{port}, ProbeInterval: 10 * time.Millisecond})
	sess, _ := local.Boot(context.Background())

	ready := make(chan string, 1)
	cancel := sess.OnServerReady(func(_ int, url string) {
		select {
		case ready <- url:
		default:
		}
	})
	defer cancel()

	p, err := sess.Spawn(context.Background(), "sleep", "5")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Kill()

	ln, err := net.Listen("tcp", probe.Addr().String())
	if err != nil {
		t.Skipf("port %d was taken in the meantime: %v", port, err)
	}
	defer ln.Close()

	select {
	case url := <-ready:
		if url == "" {
			t.Fatal("empty url")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server-ready was never raised")
	}
}
