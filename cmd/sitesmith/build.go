package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sitesmith/internal/console"
	"sitesmith/internal/credentials"
	"sitesmith/internal/journal"
	"sitesmith/internal/logging"
	"sitesmith/internal/metrics"
	"sitesmith/internal/project"
	"sitesmith/internal/prompts"
	"sitesmith/internal/reconciler"
	"sitesmith/internal/render"
	"sitesmith/internal/sandbox"
)

var (
	buildOnce        bool
	buildWorkspace   string
	buildMetricsAddr string
)

var buildCmd = &cobra.Command{
	Use:   "build [prompt]",
	Short: "Generate a project from a prompt and serve it",
	Long: `build asks the model for a project, folds its steps into a file tree,
mounts the tree into a sandbox and starts the dev server. Afterwards an
interactive prompt lets you refine the project; use --once to stop after the
first result.`,
	Args: cobra.ArbitraryArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildOnce, "once", false, "Exit after the sandbox is serving or failed")
	buildCmd.Flags().StringVar(&buildWorkspace, "workspace", "", "Override the sandbox workspace root")
	buildCmd.Flags().StringVar(&buildMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return errors.New("a prompt is required, e.g. sitesmith build \"a todo app\"")
	}

	manager := credentials.NewManager()
	creds, err := manager.Load()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	cfg, err := loadConfig(creds, buildWorkspace)
	if err != nil {
		return err
	}
	logger, closer, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	client, err := buildClient(cfg, manager, creds, logger)
	if err != nil {
		return err
	}
	prompts.SetMetadata(buildEnvironmentMetadata(cfg))

	installArgs, err := cfg.InstallArgs()
	if err != nil {
		return err
	}
	startArgs, err := cfg.StartArgs()
	if err != nil {
		return err
	}

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	addr := cfg.MetricsAddr
	if buildMetricsAddr != "" {
		addr = buildMetricsAddr
	}
	if addr != "" {
		srv := serveMetrics(addr)
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	id := project.NewID()
	slogger := logging.NewStructuredLogger(logger, "sitesmith", jsonLogs).WithSession(id)

	box := sandbox.NewShared(sandbox.NewLocal(sandbox.LocalOptions{
		Root:   cfg.WorkspaceRoot,
		Ports:  cfg.ReadyPorts,
		Logger: logger,
	}))
	rec := reconciler.New(box, reconciler.Options{
		InstallCommand: installArgs,
		StartCommand:   startArgs,
		ManifestFile:   cfg.ManifestFile,
		ReadyTimeout:   cfg.ReadyTimeout(),
		DefaultURL:     cfg.DefaultURL,
		OnTransition:   project.Observe(j, id, slogger),
	}, slogger)
	defer rec.Close()

	sess := project.New(client, rec, project.Options{
		ID:           id,
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		Instructions: cfg.Instructions,
		Journal:      j,
		Logger:       slogger,
	})

	out := cmd.OutOrStdout()
	printer := render.New(out)
	fmt.Fprintf(out, "Session %s: asking %s for %q\n", id, cfg.Model, prompt)

	// Boot in parallel with the model exchange; Sync joins the same boot.
	go func() {
		if err := rec.Boot(ctx); err != nil {
			logging.DevLog("early boot failed: %v", err)
		}
	}()

	res, err := sess.Init(ctx, prompt)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Template: %s\n", sess.Template())

	con := console.New(sess, console.Options{
		HistoryPath: cfg.HistoryPath,
		Out:         out,
		Printer:     printer,
	})
	con.Report(ctx, res)

	if buildOnce {
		if st := rec.Status(); st.State == reconciler.StateFailed {
			return fmt.Errorf("sandbox failed: %s", st.Err.Error())
		}
		return nil
	}
	return con.Run(ctx)
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorLog("metrics server: %v", err)
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	return srv
}
