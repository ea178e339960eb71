// Package reconciler drives a sandbox from the current file tree to a served
// project: boot once, mount, install when the manifest changes, start the dev
// server and wait for the first readiness signal.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sitesmith/internal/filetree"
	"sitesmith/internal/logging"
	"sitesmith/internal/mount"
	"sitesmith/internal/sandbox"
)

const (
	DefaultReadyTimeout = 30 * time.Second
	DefaultURL          = "http://localhost:5173"
	DefaultManifest     = "package.json"
	defaultOutputLines  = 200
	defaultWatchBuffer  = 16
	stopTimeout         = 5 * time.Second
)

var errManifestMissing = errors.New("install could not find the manifest")

// Options configures a Reconciler. Zero values take the defaults.
type Options struct {
	InstallCommand []string
	StartCommand   []string
	ManifestFile   string
	ReadyTimeout   time.Duration
	DefaultURL     string
	// OutputLines bounds the diagnostic output tail.
	OutputLines int
	// WatchBuffer bounds each watcher; slow watchers lose the oldest statuses.
	WatchBuffer int
	// After replaces time.After, mainly for tests.
	After func(time.Duration) <-chan time.Time
	// OnTransition is called after every accepted transition.
	OnTransition func(prev, next Status)
}

func (o *Options) applyDefaults() {
	if len(o.InstallCommand) == 0 {
		o.InstallCommand = []string{"npm", "install"}
	}
	if len(o.StartCommand) == 0 {
		o.StartCommand = []string{"npm", "run", "dev"}
	}
	if o.ManifestFile == "" {
		o.ManifestFile = DefaultManifest
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	if o.DefaultURL == "" {
		o.DefaultURL = DefaultURL
	}
	if o.OutputLines <= 0 {
		o.OutputLines = defaultOutputLines
	}
	if o.WatchBuffer <= 0 {
		o.WatchBuffer = defaultWatchBuffer
	}
	if o.After == nil {
		o.After = time.After
	}
}

// Reconciler owns the sandbox session of one project.
type Reconciler struct {
	booter sandbox.Booter
	opts   Options
	log    *logging.StructuredLogger
	output *ring
	done   chan struct{}

	// runMu serialises runs; mu guards everything below.
	runMu sync.Mutex

	mu          sync.Mutex
	gen         uint64
	cancelRun   context.CancelFunc
	status      Status
	session     sandbox.Session
	server      sandbox.Process
	serverURL   string
	serverSrc   Source
	installed   bool
	manifest    string
	lastTree    *filetree.Tree
	lastMount   mount.Descriptor
	watchers    map[int]chan Status
	nextWatcher int
	closed      bool
}

// New returns a reconciler in the uninitialized state.
func New(booter sandbox.Booter, opts Options, logger *logging.StructuredLogger) *Reconciler {
	opts.applyDefaults()
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reconciler{
		booter:   booter,
		opts:     opts,
		log:      logger.WithComponent("reconciler"),
		output:   newRing(opts.OutputLines),
		done:     make(chan struct{}),
		status:   Status{State: StateUninitialized, At: time.Now()},
		watchers: make(map[int]chan Status),
	}
}

// Boot boots the sandbox if it is not booted yet.
func (r *Reconciler) Boot(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.mu.Lock()
	gen, sess, closed := r.gen, r.session, r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if sess != nil {
		return nil
	}
	return r.boot(ctx, gen)
}

// Reconcile brings the sandbox in line with tree. A newer call supersedes this
// one, which then returns ErrSuperseded without further transitions.
func (r *Reconciler) Reconcile(ctx context.Context, tree *filetree.Tree) error {
	gen, runCtx, cancel, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	r.runMu.Lock()
	defer r.runMu.Unlock()
	if err := r.check(runCtx, gen); err != nil {
		return err
	}
	return r.run(runCtx, gen, tree)
}

// Retry repeats the pipeline from mount with the last tree. A failed boot is
// retried first.
func (r *Reconciler) Retry(ctx context.Context) error {
	if st := r.Status(); st.State != StateFailed {
		return fmt.Errorf("%w: state is %s", ErrNotFailed, st.State)
	}
	gen, runCtx, cancel, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	r.runMu.Lock()
	defer r.runMu.Unlock()
	if err := r.check(runCtx, gen); err != nil {
		return err
	}

	r.mu.Lock()
	sess, tree := r.session, r.lastTree
	r.mu.Unlock()

	if sess == nil {
		if err := r.boot(runCtx, gen); err != nil {
			return err
		}
	} else {
		r.transition(gen, Status{State: StateReady})
	}
	if tree == nil {
		return nil
	}
	return r.run(runCtx, gen, tree)
}

// Status returns the current status.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Output returns the retained tail of process output.
func (r *Reconciler) Output() []string {
	return r.output.snapshot()
}

// LastMount returns the most recently mounted descriptor.
func (r *Reconciler) LastMount() mount.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastMount
}

// Watch streams every transition, starting with the current status. The
// channel closes when ctx is done or the reconciler is closed.
func (r *Reconciler) Watch(ctx context.Context) <-chan Status {
	ch := make(chan Status, r.opts.WatchBuffer)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch
	}
	id := r.nextWatcher
	r.nextWatcher++
	r.watchers[id] = ch
	ch <- r.status
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-r.done:
		}
		r.mu.Lock()
		if c, ok := r.watchers[id]; ok {
			delete(r.watchers, id)
			close(c)
		}
		r.mu.Unlock()
	}()
	return ch
}

// Close stops the dev server and ignores the results of anything in flight.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.cancelRun != nil {
		r.cancelRun()
	}
	server := r.server
	r.server = nil
	for id, ch := range r.watchers {
		delete(r.watchers, id)
		close(ch)
	}
	close(r.done)
	r.mu.Unlock()

	r.log.Info("closed")
	if server != nil {
		return server.Kill()
	}
	return nil
}

func (r *Reconciler) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, nil, nil, ErrClosed
	}
	r.gen++
	if r.cancelRun != nil {
		r.cancelRun()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancelRun = cancel
	return r.gen, runCtx, cancel, nil
}

// check is called at every suspension point.
func (r *Reconciler) check(ctx context.Context, gen uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if gen != r.gen {
		return ErrSuperseded
	}
	return ctx.Err()
}

// abandoned is check for paths that already know the run cannot continue.
func (r *Reconciler) abandoned(ctx context.Context, gen uint64) error {
	if err := r.check(ctx, gen); err != nil {
		return err
	}
	return ErrSuperseded
}

func (r *Reconciler) transition(gen uint64, next Status) bool {
	return r.commit(gen, false, next)
}

// settle commits next under the newest generation. Callers hold runMu, so no
// newer run has transitioned yet.
func (r *Reconciler) settle(next Status) bool {
	return r.commit(0, true, next)
}

func (r *Reconciler) commit(gen uint64, latest bool, next Status) bool {
	r.mu.Lock()
	if r.closed || (!latest && gen != r.gen) {
		r.mu.Unlock()
		return false
	}
	gen = r.gen
	prev := r.status
	next.Generation = gen
	next.At = time.Now()
	r.status = next
	for _, ch := range r.watchers {
		offer(ch, next)
	}
	r.mu.Unlock()

	fields := map[string]interface{}{"from": prev.State, "to": next.State, "generation": gen}
	if next.URL != "" {
		fields["url"] = next.URL
		fields["source"] = next.Source
	}
	if next.Err != nil {
		fields["error"] = next.Err.Message
		r.log.Warn("transition", fields)
	} else {
		r.log.Info("transition", fields)
	}
	if r.opts.OnTransition != nil {
		r.opts.OnTransition(prev, next)
	}
	return true
}

// offer delivers s, dropping the oldest buffered status when ch is full.
func offer(ch chan Status, s Status) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func (r *Reconciler) fail(gen uint64, kind ErrorKind, err error, output []string) error {
	e := &Error{Kind: kind, Message: err.Error(), Output: output, Err: err}
	r.transition(gen, Status{State: StateFailed, Err: e})
	return e
}

func (r *Reconciler) boot(ctx context.Context, gen uint64) error {
	r.transition(gen, Status{State: StateBooting})
	sess, err := r.booter.Boot(ctx)
	if err != nil {
		if cerr := r.check(ctx, gen); cerr != nil {
			return cerr
		}
		return r.fail(gen, KindBoot, err, nil)
	}

	// A finished boot is shared by every run, including newer ones.
	r.mu.Lock()
	closed := r.closed
	if !closed {
		r.session = sess
	}
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	r.settle(Status{State: StateReady})
	return nil
}

func (r *Reconciler) run(ctx context.Context, gen uint64, tree *filetree.Tree) error {
	desc := mount.Project(tree)
	if len(desc) == 0 {
		r.log.Debug("empty projection, nothing to reconcile")
		return nil
	}
	r.mu.Lock()
	r.lastTree = tree
	sess := r.session
	r.mu.Unlock()

	if sess == nil {
		if err := r.boot(ctx, gen); err != nil {
			return err
		}
		r.mu.Lock()
		sess = r.session
		r.mu.Unlock()
	}
	if err := r.check(ctx, gen); err != nil {
		return err
	}

	entry, ok := desc.Lookup(r.opts.ManifestFile)
	if !ok || entry.IsDir() {
		return r.fail(gen, KindPrecondition, fmt.Errorf("%s not found at the project root", r.opts.ManifestFile), nil)
	}
	manifest := entry.File.Contents

	if !r.transition(gen, Status{State: StateMounting}) {
		return r.abandoned(ctx, gen)
	}
	err := sess.Mount(ctx, desc)
	if cerr := r.check(ctx, gen); cerr != nil {
		return cerr
	}
	if err != nil {
		return r.fail(gen, KindMount, err, nil)
	}

	r.mu.Lock()
	r.lastMount = desc
	needInstall := !r.installed || r.manifest != manifest
	running := r.server != nil && r.serverURL != ""
	url, src := r.serverURL, r.serverSrc
	r.mu.Unlock()

	if !needInstall && running {
		r.transition(gen, Status{State: StateServing, URL: url, Source: src})
		return nil
	}

	r.stopServer()
	if needInstall {
		if !r.transition(gen, Status{State: StateInstalling}) {
			return r.abandoned(ctx, gen)
		}
		if err := r.install(ctx, gen, sess, manifest); err != nil {
			return err
		}
	}
	if !r.transition(gen, Status{State: StateStarting}) {
		return r.abandoned(ctx, gen)
	}
	return r.start(ctx, gen, sess)
}

func (r *Reconciler) install(ctx context.Context, gen uint64, sess sandbox.Session, manifest string) error {
	r.mu.Lock()
	r.installed = false
	r.mu.Unlock()

	argv := r.opts.InstallCommand
	lines, code, err := r.runToExit(ctx, sess, argv)
	if cerr := r.check(ctx, gen); cerr != nil {
		return cerr
	}
	switch {
	case err != nil:
		return r.fail(gen, KindInstall, err, lines)
	case code != 0:
		return r.fail(gen, KindInstall, fmt.Errorf("%s exited with code %d", strings.Join(argv, " "), code), lines)
	}

	r.mu.Lock()
	r.installed = true
	r.manifest = manifest
	r.mu.Unlock()
	return nil
}

// runToExit runs argv to completion and returns the tail of its output.
func (r *Reconciler) runToExit(ctx context.Context, sess sandbox.Session, argv []string) ([]string, int, error) {
	proc, err := sess.Spawn(ctx, argv[0], argv[1:]...)
	if err != nil {
		return nil, -1, err
	}

	tail := newRing(r.opts.OutputLines)
	var missing atomic.Bool
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for line := range proc.Output() {
			r.output.add(line)
			tail.add(line)
			if !missing.Load() && missingManifest(line, r.opts.ManifestFile) {
				missing.Store(true)
				_ = proc.Kill()
			}
		}
	}()

	code, err := proc.Wait(ctx)
	if err != nil {
		_ = proc.Kill()
		<-drained
		return tail.snapshot(), code, err
	}
	<-drained
	if missing.Load() {
		return tail.snapshot(), code, fmt.Errorf("%w: %s", errManifestMissing, r.opts.ManifestFile)
	}
	return tail.snapshot(), code, nil
}

type readiness struct {
	url    string
	source Source
}

func (r *Reconciler) start(ctx context.Context, gen uint64, sess sandbox.Session) error {
	argv := r.opts.StartCommand
	ready := make(chan readiness, 1)
	signal := func(rd readiness) {
		select {
		case ready <- rd:
		default:
		}
	}

	cancelNotify := sess.OnServerReady(func(port int, url string) {
		if url == "" {
			url = fmt.Sprintf("http://localhost:%d", port)
		}
		signal(readiness{url: url, source: SourceNotification})
	})
	defer cancelNotify()

	proc, err := sess.Spawn(ctx, argv[0], argv[1:]...)
	if cerr := r.check(ctx, gen); cerr != nil {
		if err == nil {
			go drain(proc)
			r.kill(proc)
		}
		return cerr
	}
	if err != nil {
		return r.fail(gen, KindStart, err, nil)
	}

	exited := make(chan int, 1)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for line := range proc.Output() {
			r.output.add(line)
			if url := scrapeURL(line); url != "" {
				signal(readiness{url: url, source: SourceOutput})
			}
		}
	}()
	go func() {
		code, _ := proc.Wait(context.Background())
		<-drained
		exited <- code
	}()

	r.mu.Lock()
	r.server = proc
	r.serverURL = ""
	r.mu.Unlock()

	var rd readiness
	select {
	case rd = <-ready:
	case <-r.opts.After(r.opts.ReadyTimeout):
		rd = readiness{url: r.opts.DefaultURL, source: SourceTimeout}
		r.log.Warn("no readiness signal, assuming default url", map[string]interface{}{"url": rd.url})
	case code := <-exited:
		r.clearServer(proc)
		return r.fail(gen, KindStart, fmt.Errorf("%s exited with code %d before serving", strings.Join(argv, " "), code), r.output.snapshot())
	case <-ctx.Done():
		r.stopServerIf(proc)
		return r.abandoned(ctx, gen)
	}

	r.mu.Lock()
	if r.server == proc {
		r.serverURL = rd.url
		r.serverSrc = rd.source
	}
	r.mu.Unlock()

	if !r.transition(gen, Status{State: StateServing, URL: rd.url, Source: rd.source}) {
		return r.abandoned(ctx, gen)
	}
	go r.monitor(proc, exited)
	return nil
}

// monitor fails the serving state when the dev server dies on its own.
func (r *Reconciler) monitor(proc sandbox.Process, exited <-chan int) {
	code := <-exited
	r.mu.Lock()
	current := r.server == proc
	if current {
		r.server = nil
		r.serverURL = ""
	}
	gen, state := r.gen, r.status.State
	r.mu.Unlock()
	if current && state == StateServing {
		r.fail(gen, KindStart, fmt.Errorf("dev server exited with code %d", code), r.output.snapshot())
	}
}

func (r *Reconciler) clearServer(proc sandbox.Process) {
	r.mu.Lock()
	if r.server == proc {
		r.server = nil
		r.serverURL = ""
	}
	r.mu.Unlock()
}

func (r *Reconciler) stopServerIf(proc sandbox.Process) {
	r.clearServer(proc)
	r.kill(proc)
}

func (r *Reconciler) stopServer() {
	r.mu.Lock()
	proc := r.server
	r.server = nil
	r.serverURL = ""
	r.mu.Unlock()
	if proc != nil {
		r.kill(proc)
	}
}

func (r *Reconciler) kill(proc sandbox.Process) {
	if err := proc.Kill(); err != nil {
		r.log.Warn("kill dev server", map[string]interface{}{"error": err.Error()})
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	_, _ = proc.Wait(ctx)
}

// drain discards output nobody reads so the process can finish writing.
func drain(proc sandbox.Process) {
	for range proc.Output() {
	}
}
