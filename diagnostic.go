// diagnostic runner: syncpack lint/fix with merged output streamed as
// events.
//
// at most one run is in flight. a second request while one is running
// gets errDiagnosticBusy instead of interleaving two streams into the
// same overlay.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

type diagnosticKind string

const (
	diagLint diagnosticKind = "lint"
	diagFix  diagnosticKind = "fix"
)

var (
	errDiagnosticBusy    = errors.New("a diagnostic is already running")
	errUnknownDiagnostic = errors.New("unknown diagnostic")
)

func (k diagnosticKind) title() string {
	switch k {
	case diagLint:
		return "Scanning dependencies for issues"
	case diagFix:
		return "Fixing dependency mismatches"
	}
	return string(k)
}

// diagnosticEvent is one piece of a run: a text chunk, or the final
// event with done set. err is a spawn or stream failure; a non-zero
// exit is a normal completion reported in exit.
type diagnosticEvent struct {
	kind diagnosticKind
	text string
	done bool
	exit string
	err  error
	took time.Duration
}

type diagnosticRunner struct {
	cfg *Config
	log *slog.Logger

	mu   sync.Mutex
	busy bool
}

func newDiagnosticRunner(cfg *Config, logger *slog.Logger) *diagnosticRunner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &diagnosticRunner{cfg: cfg, log: logger}
}

// argv builds e.g. bunx syncpack lint --dependency-types prod,dev
func (r *diagnosticRunner) argv(kind diagnosticKind) ([]string, error) {
	if kind != diagLint && kind != diagFix {
		return nil, fmt.Errorf("%w: %q", errUnknownDiagnostic, kind)
	}
	if len(r.cfg.Syncpack.Command) == 0 {
		return nil, errors.New("no syncpack command configured")
	}
	argv := append([]string(nil), r.cfg.Syncpack.Command...)
	argv = append(argv, string(kind))
	if len(r.cfg.Syncpack.DependencyTypes) > 0 {
		argv = append(argv, "--dependency-types", r.cfg.dependencyTypesArg())
	}
	return argv, nil
}

func (r *diagnosticRunner) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// run starts kind and returns its event stream. the channel delivers
// text chunks as they arrive, then exactly one done event, then closes.
func (r *diagnosticRunner) run(ctx context.Context, kind diagnosticKind) (<-chan diagnosticEvent, error) {
	argv, err := r.argv(kind)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return nil, errDiagnosticBusy
	}
	r.busy = true
	r.mu.Unlock()

	events := make(chan diagnosticEvent, 64)
	go func() {
		defer func() {
			r.mu.Lock()
			r.busy = false
			r.mu.Unlock()
			close(events)
		}()
		r.stream(ctx, kind, argv, events)
	}()
	return events, nil
}

func (r *diagnosticRunner) stream(ctx context.Context, kind diagnosticKind, argv []string, events chan<- diagnosticEvent) {
	began := time.Now()
	pr, pw := io.Pipe()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.cfg.root
	cmd.Stdout = pw
	cmd.Stderr = pw
	// a grandchild holding the pipe must not keep Wait from returning
	// once ctx is cancelled
	cmd.WaitDelay = time.Second

	r.log.Info("diagnostic started", "kind", kind, "argv", argv)
	if err := cmd.Start(); err != nil {
		pw.Close()
		r.log.Warn("diagnostic spawn failed", "kind", kind, "err", err)
		events <- diagnosticEvent{kind: kind, done: true, err: err, took: time.Since(began)}
		return
	}

	waited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		waited <- err
	}()

	var dec utf8Carry
	var readErr error
	buf := make([]byte, readChunkSize)
	for {
		n, err := pr.Read(buf)
		if n > 0 {
			events <- diagnosticEvent{kind: kind, text: dec.decode(buf[:n])}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
				// unblock the copy goroutines so Wait can return
				pr.CloseWithError(err)
			}
			break
		}
	}
	if tail := dec.flush(); tail != "" {
		events <- diagnosticEvent{kind: kind, text: tail}
	}

	waitErr := <-waited
	done := diagnosticEvent{kind: kind, done: true, exit: describeExit(waitErr), took: time.Since(began)}
	var exitErr *exec.ExitError
	switch {
	case readErr != nil:
		done.err = readErr
	case waitErr != nil && !errors.As(waitErr, &exitErr):
		done.err = waitErr
	}
	if done.err != nil {
		r.log.Warn("diagnostic failed", "kind", kind, "err", done.err)
	} else {
		r.log.Info("diagnostic finished", "kind", kind, "exit", done.exit, "took", done.took)
	}
	events <- done
}

// runAttached runs kind with the terminal's stdio, for `wtui lint` and
// `wtui fix`. returns the command's exit code.
func (r *diagnosticRunner) runAttached(ctx context.Context, kind diagnosticKind) (int, error) {
	argv, err := r.argv(kind)
	if err != nil {
		return 1, err
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.cfg.root
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 1, fmt.Errorf("running syncpack %s: %w", kind, err)
	}
	return 0, nil
}
