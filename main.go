package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

// cliOptions are the persistent flags shared by every command.
type cliOptions struct {
	configPath string
	root       string
	logOutput  string
	tree       bool
}

// exitCodeError carries a child's exit status out of a command.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP, os.Interrupt)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		var exit exitCodeError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "wtui",
		Short:         "Run and watch one dev process per monorepo workspace",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dashboardCommand(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: wtui.json under the repo root)")
	flags.StringVar(&opts.root, "root", ".", "monorepo root")
	flags.StringVar(&opts.logOutput, "log-output", "", "operational log file (default: $XDG_STATE_HOME/wtui/wtui.log)")
	flags.BoolVar(&opts.tree, "tree", false, "show workspaces as a collapsible tree")

	root.AddCommand(newDiagnosticCmd(opts, diagLint, "Report dependency version mismatches"))
	root.AddCommand(newDiagnosticCmd(opts, diagFix, "Fix dependency version mismatches"))
	root.AddCommand(newWorkspacesCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	return root
}

// -- session setup --

// session is everything a command needs after config is loaded.
type session struct {
	cfg    *Config
	log    *slog.Logger
	closer io.Closer
}

func (s *session) Close() {
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

func openSession(opts *cliOptions) (*session, error) {
	root, err := filepath.Abs(opts.root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	cfg, err := loadConfig(root, opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.tree {
		cfg.Workspace.TreeViewEnabled = true
	}

	logger, closer, err := setupLogger(cfg, opts.logOutput)
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.warnings {
		logger.Warn(w)
	}
	logger.Debug("config loaded", "root", root, "source", cfg.source)
	return &session{cfg: cfg, log: logger, closer: closer}, nil
}

// setupLogger opens the JSON log file. the terminal belongs to the
// dashboard, so logs never go to stdout or stderr.
func setupLogger(cfg *Config, path string) (*slog.Logger, io.Closer, error) {
	if path == "" {
		path = defaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	level := slog.LevelInfo
	switch cfg.Behavior.LogLevel {
	case "verbose":
		level = slog.LevelDebug
	case "quiet":
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	return logger.With("root", cfg.root), f, nil
}

// openStore opens the state db. failure is logged and tolerated: the
// dashboard works without remembered state.
func openStore(s *session) *stateStore {
	if err := os.MkdirAll(stateDir(), 0o755); err != nil {
		s.log.Warn("creating state dir failed", "err", err)
		return nil
	}
	store, err := openStateStore(dbPath(), s.cfg.root, s.log)
	if err != nil {
		s.log.Warn("opening state store failed", "path", dbPath(), "err", err)
		return nil
	}
	if err := store.prune(); err != nil {
		s.log.Warn("pruning lifecycle journal failed", "err", err)
	}
	return store
}

// -- dashboard --

func dashboardCommand(ctx context.Context, opts *cliOptions) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	workspaces, err := discoverWorkspaces(s.cfg)
	if err != nil {
		return err
	}
	s.log.Info("workspaces discovered", "count", len(workspaces))

	store := openStore(s)
	if store != nil {
		defer store.Close()
	}

	var onEvent func(lifecycleEvent)
	if store != nil {
		onEvent = store.record
	}
	sup := newSupervisor(s.cfg, s.log, onEvent)
	// runs on every exit path, including a signal that skipped the
	// model's own shutdown
	defer sup.stopAll()

	diag := newDiagnosticRunner(s.cfg, s.log)

	m := newModel(ctx, modelDeps{
		cfg:        s.cfg,
		sup:        sup,
		diag:       diag,
		store:      store,
		log:        s.log,
		workspaces: workspaces,
		treeMode:   s.cfg.Workspace.TreeViewEnabled,
	})

	setProcessTitle()

	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	if _, err := p.Run(); err != nil {
		return err
	}
	s.log.Info("dashboard exited", "running", len(sup.runningIDs()))
	return nil
}

// setProcessTitle sets tmux window name and xterm title.
func setProcessTitle() {
	fmt.Print("\033kwtui\033\\")
	termenv.NewOutput(os.Stdout).SetWindowTitle("wtui")
}

// -- lint / fix --

func newDiagnosticCmd(opts *cliOptions, kind diagnosticKind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			runner := newDiagnosticRunner(s.cfg, s.log)
			code, err := runner.runAttached(cmd.Context(), kind)
			if err != nil {
				return err
			}
			if code != 0 {
				return exitCodeError{code: code}
			}
			return nil
		},
	}
}

// -- workspaces --

// workspaceEntry is the JSON shape printed by `wtui workspaces`.
type workspaceEntry struct {
	ID  string `json:"id"`
	Dir string `json:"dir"`
}

func newWorkspacesCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "workspaces",
		Short: "Print discovered workspaces as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			workspaces, err := discoverWorkspaces(s.cfg)
			if err != nil {
				return err
			}
			entries := make([]workspaceEntry, 0, len(workspaces))
			for _, ws := range workspaces {
				entries = append(entries, workspaceEntry{ID: ws.id, Dir: ws.dir})
			}
			out, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

// -- history --

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [workspace]",
		Short: "Show recent worker lifecycle events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			store, err := openStateStore(dbPath(), s.cfg.root, s.log)
			if err != nil {
				return err
			}
			defer store.Close()

			var ws workspaceID
			if len(args) == 1 {
				ws = args[0]
			}
			events, err := store.history(ws, limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(events) == 0 {
				_, err = fmt.Fprintln(w, "no lifecycle events recorded")
				return err
			}
			for _, ev := range events {
				if _, err := fmt.Fprintf(w, "%-14s  %-24s  %-12s  %s\n",
					humanize.Time(ev.at), ev.workspace, ev.kind, ev.detail); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of events to show")
	return cmd
}
