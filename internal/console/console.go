// Package console is the interactive shell around a build session.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"sitesmith/internal/filetree"
	"sitesmith/internal/logging"
	"sitesmith/internal/mount"
	"sitesmith/internal/preview"
	"sitesmith/internal/project"
	"sitesmith/internal/reconciler"
	"sitesmith/internal/render"
)

var commandSuggestions = []prompt.Suggest{
	{Text: ":help", Description: "show this text"},
	{Text: ":steps", Description: "list the build steps"},
	{Text: ":tree", Description: "show the project files"},
	{Text: ":cat", Description: "print a file (:cat <path>)"},
	{Text: ":status", Description: "show the sandbox state"},
	{Text: ":output", Description: "show recent sandbox output"},
	{Text: ":retry", Description: "retry after a sandbox failure"},
	{Text: ":mount", Description: "print the mount descriptor as JSON"},
	{Text: ":preview", Description: "inspect the served page"},
	{Text: ":rejections", Description: "list steps the tree refused"},
	{Text: ":quit", Description: "exit the program"},
	{Text: ":exit", Description: "exit the program"},
}

// Options configures a Console.
type Options struct {
	HistoryPath string
	In          io.Reader
	Out         io.Writer
	// Printer defaults to a render.Printer on Out.
	Printer *render.Printer
	// Fetcher is used by :preview for the served page.
	Fetcher *preview.Fetcher
}

// Console reads user input and drives a project session.
type Console struct {
	session *project.Session
	in      io.Reader
	out     io.Writer
	print   *render.Printer
	fetch   *preview.Fetcher
	history *History
	isTTY   bool

	requestMu     sync.Mutex
	requestCancel context.CancelFunc
}

type promptExit struct{}

// New returns a console for session.
func New(session *project.Session, opts Options) *Console {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Printer == nil {
		opts.Printer = render.New(opts.Out)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = preview.NewFetcher(5 * time.Second)
	}
	isTTY := false
	if f, ok := opts.In.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return &Console{
		session: session,
		in:      opts.In,
		out:     opts.Out,
		print:   opts.Printer,
		fetch:   opts.Fetcher,
		history: LoadHistory(opts.HistoryPath),
		isTTY:   isTTY,
	}
}

// Run starts the prompt and blocks until the user exits or ctx ends.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := newInterruptTracker(2 * time.Second)
	if c.isTTY {
		return c.runPrompt(ctx, cancel, tracker)
	}
	go c.handleInterrupts(ctx, cancel, tracker)
	return c.runLines(ctx)
}

func (c *Console) greet() {
	fmt.Fprintf(c.out, "Session %s. Type ':help' for commands; anything else is sent to the model.\n", c.session.ID())
}

func (c *Console) runPrompt(ctx context.Context, cancel context.CancelFunc, tracker *interruptTracker) (err error) {
	c.greet()

	if f, ok := c.in.(*os.File); ok {
		fd := int(f.Fd())
		if st, terr := term.GetState(fd); terr == nil {
			defer func() { _ = term.Restore(fd, st) }()
		}
	}

	var exitRequested atomic.Bool
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(promptExit); ok {
				err = nil
				return
			}
			panic(r)
		}
	}()

	executor := func(in string) {
		if exitRequested.Load() || ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(in)
		if line == "" {
			return
		}
		c.history.Add(line)
		if exit := c.Handle(ctx, line); exit {
			exitRequested.Store(true)
			cancel()
			panic(promptExit{})
		}
	}

	p := prompt.New(
		executor,
		completer,
		prompt.OptionHistory(c.history.Entries()),
		prompt.OptionTitle("sitesmith"),
		prompt.OptionLivePrefix(func() (string, bool) {
			return fmt.Sprintf("[%s] > ", c.statusLabel()), true
		}),
		prompt.OptionAddKeyBind(
			prompt.KeyBind{
				Key: prompt.ControlC,
				Fn: func(buf *prompt.Buffer) {
					if c.cancelInFlight() {
						fmt.Fprintln(c.out, "\n(Current request cancelled.)")
						return
					}
					if tracker.secondPress() {
						fmt.Fprintln(c.out, "\nReceived second Ctrl+C, exiting.")
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
					fmt.Fprintln(c.out, "\n(Press Ctrl+C again within 2s to exit)")
				},
			},
			prompt.KeyBind{
				Key: prompt.ControlD,
				Fn: func(buf *prompt.Buffer) {
					if buf.Text() == "" {
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
				},
			},
		),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			return exitRequested.Load() || ctx.Err() != nil
		}),
	)
	p.Run()
	return nil
}

func completer(doc prompt.Document) []prompt.Suggest {
	prefix := strings.TrimLeft(doc.TextBeforeCursor(), " \t")
	if !strings.HasPrefix(prefix, ":") || strings.Contains(prefix, " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commandSuggestions, doc.GetWordBeforeCursor(), true)
}

func (c *Console) runLines(ctx context.Context) error {
	c.greet()
	reader := bufio.NewReader(c.in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(c.out, "[%s] > ", c.statusLabel())
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			c.history.Add(line)
			if c.Handle(ctx, line) {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				fmt.Fprintln(c.out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
	}
}

func (c *Console) handleInterrupts(ctx context.Context, cancel context.CancelFunc, tracker *interruptTracker) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			if c.cancelInFlight() {
				fmt.Fprintln(c.out, "\n(Current request cancelled.)")
				continue
			}
			if tracker.secondPress() {
				fmt.Fprintln(c.out, "\nReceived second Ctrl+C, exiting.")
				cancel()
				return
			}
			fmt.Fprintln(c.out, "\n(Press Ctrl+C again within 2s to exit)")
		}
	}
}

func (c *Console) statusLabel() string {
	if r := c.session.Reconciler(); r != nil {
		return string(r.Status().State)
	}
	return "offline"
}

// Handle executes one line of input and reports whether the user asked to exit.
func (c *Console) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, ":") {
		return c.command(ctx, line)
	}

	reqCtx, done := c.beginRequest(ctx)
	defer done()

	logging.DevLog("console: sending %d chars", len(line))
	res, err := c.session.Send(reqCtx, line)
	if err != nil {
		c.print.Plain("Error: %v\n", err)
		return false
	}
	c.Report(reqCtx, res)
	return false
}

// Report prints the model's commentary and fold outcome, then syncs the
// sandbox when the tree changed.
func (c *Console) Report(ctx context.Context, res project.FoldResult) {
	if prose := c.session.Prose(); prose != "" {
		c.print.Markdown(prose)
	}
	if len(res.Rejected) > 0 {
		c.print.Markdown(render.Rejections(res.Rejected))
	}
	c.print.Plain("(%d steps applied)\n", res.Applied)
	if res.Changed {
		c.sync(ctx)
	}
}

func (c *Console) sync(ctx context.Context) {
	if c.session.Reconciler() == nil {
		return
	}
	err := c.session.Sync(ctx)
	if errors.Is(err, reconciler.ErrSuperseded) {
		return
	}
	c.print.Markdown(render.Status(c.session.Reconciler().Status()))
}

func (c *Console) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case ":quit", ":exit", ":q":
		return true
	case ":help":
		var b strings.Builder
		for _, s := range commandSuggestions {
			fmt.Fprintf(&b, "  %-12s %s\n", s.Text, s.Description)
		}
		c.print.Plain("%s", b.String())
	case ":steps":
		c.print.Markdown(render.Steps(c.session.Steps()))
	case ":tree":
		c.print.Markdown(render.Tree(c.session.Tree()))
	case ":cat":
		if len(args) != 1 {
			c.print.Plain("usage: :cat <path>\n")
			return false
		}
		n := c.session.Tree().Find(args[0])
		if n == nil || n.Kind != filetree.KindFile {
			c.print.Plain("no such file: %s\n", args[0])
			return false
		}
		c.print.Markdown(render.File(n))
	case ":rejections":
		if out := render.Rejections(c.session.Rejections()); out != "" {
			c.print.Markdown(out)
		} else {
			c.print.Plain("no rejected steps\n")
		}
	case ":mount":
		data, err := json.MarshalIndent(mount.Project(c.session.Tree()), "", "  ")
		if err != nil {
			c.print.Plain("Error: %v\n", err)
			return false
		}
		c.print.Plain("%s\n", data)
	case ":status":
		if r := c.session.Reconciler(); r != nil {
			c.print.Markdown(render.Status(r.Status()))
		} else {
			c.print.Plain("no sandbox\n")
		}
	case ":output":
		if r := c.session.Reconciler(); r != nil {
			c.print.Plain("%s\n", strings.Join(r.Output(), "\n"))
		}
	case ":retry":
		r := c.session.Reconciler()
		if r == nil {
			c.print.Plain("no sandbox\n")
			return false
		}
		reqCtx, done := c.beginRequest(ctx)
		defer done()
		if err := r.Retry(reqCtx); errors.Is(err, reconciler.ErrNotFailed) {
			c.print.Plain("%v\n", err)
			return false
		}
		c.print.Markdown(render.Status(r.Status()))
	case ":preview":
		c.preview(ctx)
	default:
		c.print.Plain("unknown command %s (try :help)\n", cmd)
	}
	return false
}

func (c *Console) preview(ctx context.Context) {
	tree := c.session.Tree()
	if page, err := preview.FromTree(tree); err == nil {
		c.print.Plain("index: %s  title: %q\n", page.Source, page.Title)
		if missing := preview.MissingAssets(tree, page); len(missing) > 0 {
			c.print.Plain("missing assets: %s\n", strings.Join(missing, ", "))
		}
	} else {
		c.print.Plain("%v\n", err)
	}
	r := c.session.Reconciler()
	if r == nil {
		return
	}
	st := r.Status()
	if st.State != reconciler.StateServing {
		c.print.Plain("sandbox is %s\n", st.State)
		return
	}
	page, err := c.fetch.Fetch(ctx, st.URL)
	if err != nil {
		c.print.Plain("fetch %s: %v\n", st.URL, err)
		return
	}
	c.print.Plain("served: %s  status: %d  title: %q\n", page.Source, page.Status, page.Title)
}

func (c *Console) beginRequest(ctx context.Context) (context.Context, func()) {
	reqCtx, cancel := context.WithCancel(ctx)
	c.requestMu.Lock()
	c.requestCancel = cancel
	c.requestMu.Unlock()
	return reqCtx, func() {
		c.requestMu.Lock()
		c.requestCancel = nil
		c.requestMu.Unlock()
		cancel()
	}
}

func (c *Console) cancelInFlight() bool {
	c.requestMu.Lock()
	defer c.requestMu.Unlock()
	if c.requestCancel == nil {
		return false
	}
	c.requestCancel()
	c.requestCancel = nil
	return true
}

type interruptTracker struct {
	mu     sync.Mutex
	last   time.Time
	window time.Duration
}

func newInterruptTracker(window time.Duration) *interruptTracker {
	return &interruptTracker{window: window}
}

func (t *interruptTracker) secondPress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.window {
		t.last = time.Time{}
		return true
	}
	t.last = now
	return false
}
