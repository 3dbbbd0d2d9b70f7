// process supervision: one worker per workspace, two drain goroutines
// per worker, exit watching, and termination.
//
// the supervisor is the only thing in wtui that touches OS processes.
// every check-then-act on the workspace map happens under s.mu, and
// the spawn itself happens inside that critical section so two
// concurrent starts can never both see "not running".

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// readChunkSize bounds a single read, and so a single buffer chunk.
const readChunkSize = 32 * 1024

// errSupervisorClosed is returned by start once stopAll has begun.
var errSupervisorClosed = errors.New("supervisor is shutting down")

type supervisor struct {
	cfg     *Config
	log     *slog.Logger
	onEvent func(lifecycleEvent)

	mu     sync.Mutex
	procs  map[workspaceID]*workspaceProcess
	closed bool // set by stopAll; no spawns after it
}

// newSupervisor builds a supervisor. onEvent may be nil; when set it is
// called outside the lock for every lifecycle transition.
func newSupervisor(cfg *Config, logger *slog.Logger, onEvent func(lifecycleEvent)) *supervisor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &supervisor{
		cfg:     cfg,
		log:     logger,
		onEvent: onEvent,
		procs:   make(map[workspaceID]*workspaceProcess),
	}
}

// -- lifecycle --

// start spawns the configured script in cwd unless id is already
// running. a spawn failure leaves the workspace not running and is
// returned for display; the supervisor itself is unaffected.
func (s *supervisor) start(id workspaceID, cwd string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSupervisorClosed
	}
	wp, ok := s.procs[id]
	if ok && wp.running {
		s.mu.Unlock()
		return nil
	}
	if !ok {
		wp = &workspaceProcess{id: id, buffer: newOutputBuffer(s.cfg.Process.BufferCapacity)}
		s.procs[id] = wp
	}
	wp.cwd = cwd

	h, stdout, stderr, err := s.spawn(cwd)
	if err != nil {
		wp.running = false
		wp.lastExit = "spawn failed: " + err.Error()
		s.mu.Unlock()
		s.log.Warn("worker spawn failed", "workspace", id, "cwd", cwd, "err", err)
		s.emit(id, eventSpawnFailed, err.Error())
		return fmt.Errorf("starting %s: %w", id, err)
	}
	if wp.handle != nil {
		wp.restarts++
	}
	wp.handle = h
	wp.running = true
	wp.startedAt = time.Now()
	wp.lastExit = ""
	s.mu.Unlock()

	s.log.Info("worker started", "workspace", id, "pid", h.pid, "cwd", cwd)
	s.emit(id, eventStarted, fmt.Sprintf("pid %d", h.pid))

	go s.drain(wp, h, "stdout", stdout)
	go s.drain(wp, h, "stderr", stderr)
	go s.watch(wp, h)
	return nil
}

// spawn starts the worker with its own pipes. the write ends are
// closed in the parent right after Start so drains see EOF once every
// process holding them (worker and descendants) is gone.
func (s *supervisor) spawn(cwd string) (*workerHandle, *os.File, *os.File, error) {
	argv := s.cfg.workerArgv()
	if len(argv) == 0 {
		return nil, nil, nil, errors.New("no worker command configured")
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, nil, nil, err
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, nil, nil, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Stdout = outW
	cmd.Stderr = errW
	setProcessGroup(cmd)

	err = cmd.Start()
	outW.Close()
	errW.Close()
	if err != nil {
		outR.Close()
		errR.Close()
		return nil, nil, nil, err
	}

	h := &workerHandle{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		exited: make(chan struct{}),
	}
	return h, outR, errR, nil
}

// stop terminates the worker for id and waits for it to exit. unknown
// or already stopped workspaces are a no-op. the buffer and cwd stay.
func (s *supervisor) stop(id workspaceID) {
	s.mu.Lock()
	wp, ok := s.procs[id]
	if !ok || !wp.running || wp.handle == nil {
		s.mu.Unlock()
		return
	}
	h := wp.handle
	already := h.stopping
	h.stopping = true
	s.mu.Unlock()

	s.terminate(id, h)

	s.mu.Lock()
	if wp.handle == h {
		wp.running = false
		wp.lastExit = "stopped"
	}
	s.mu.Unlock()

	if !already {
		s.log.Info("worker stopped", "workspace", id, "pid", h.pid)
		s.emit(id, eventStopped, fmt.Sprintf("pid %d", h.pid))
	}
}

// terminate sends SIGTERM to the worker's process group, escalating to
// SIGKILL after the configured stop timeout. returns once the worker
// has been reaped.
func (s *supervisor) terminate(id workspaceID, h *workerHandle) {
	if err := signalWorker(h, false); err != nil {
		s.log.Debug("sigterm failed", "workspace", id, "pid", h.pid, "err", err)
	}
	select {
	case <-h.exited:
		return
	case <-time.After(s.cfg.stopTimeout()):
	}

	s.log.Warn("worker ignored SIGTERM, killing", "workspace", id, "pid", h.pid)
	if err := signalWorker(h, true); err != nil {
		s.log.Debug("sigkill failed", "workspace", id, "pid", h.pid, "err", err)
	}
	<-h.exited
}

// restart is stop followed by start in the cwd recorded at first start.
func (s *supervisor) restart(id workspaceID) error {
	s.mu.Lock()
	wp, ok := s.procs[id]
	var cwd string
	if ok {
		cwd = wp.cwd
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	s.stop(id)
	return s.start(id, cwd)
}

// stopAll stops every running worker in parallel and returns once all
// of them have been reaped. used at shutdown; idempotent. the
// supervisor refuses further starts, so an in-flight restart or a
// queued start cannot spawn past it.
func (s *supervisor) stopAll() {
	s.mu.Lock()
	s.closed = true
	var ids []workspaceID
	for id, wp := range s.procs {
		if wp.running {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			s.stop(id)
			return nil
		})
	}
	_ = g.Wait()
}

// -- goroutines --

// drain copies one worker stream into the workspace buffer, one chunk
// per read. read errors end this drain only; the worker keeps running.
func (s *supervisor) drain(wp *workspaceProcess, h *workerHandle, stream string, r *os.File) {
	defer r.Close()

	var dec utf8Carry
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			wp.buffer.append(dec.decode(buf[:n]), time.Now())
		}
		if err != nil {
			wp.buffer.append(dec.flush(), time.Now())
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.log.Warn("stream read failed",
					"workspace", wp.id, "stream", stream, "pid", h.pid, "err", err)
			}
			return
		}
	}
}

// watch reaps the worker. the worker's own exit is what flips running
// to false, unless the record already moved on to a newer handle.
func (s *supervisor) watch(wp *workspaceProcess, h *workerHandle) {
	err := h.cmd.Wait()
	exit := describeExit(err)

	s.mu.Lock()
	if wp.handle == h {
		wp.running = false
		wp.lastExit = exit
	}
	stopping := h.stopping
	s.mu.Unlock()
	close(h.exited)

	s.log.Debug("worker reaped", "workspace", wp.id, "pid", h.pid, "exit", exit)
	if !stopping {
		s.emit(wp.id, eventExited, exit)
	}
}

func (s *supervisor) emit(id workspaceID, kind, detail string) {
	if s.onEvent == nil {
		return
	}
	s.onEvent(lifecycleEvent{workspace: id, kind: kind, detail: detail, at: time.Now()})
}

// -- queries --

// get returns a snapshot of the record for id.
func (s *supervisor) get(id workspaceID) (processSnapshot, bool) {
	s.mu.Lock()
	wp, ok := s.procs[id]
	if !ok {
		s.mu.Unlock()
		return processSnapshot{}, false
	}
	snap := processSnapshot{
		id:        wp.id,
		cwd:       wp.cwd,
		running:   wp.running,
		startedAt: wp.startedAt,
		restarts:  wp.restarts,
		lastExit:  wp.lastExit,
	}
	if wp.handle != nil {
		snap.pid = wp.handle.pid
	}
	buffer := wp.buffer
	s.mu.Unlock()

	snap.chunks, snap.bufferBytes, snap.version = buffer.stats()
	return snap, true
}

func (s *supervisor) isRunning(id workspaceID) bool {
	snap, ok := s.get(id)
	return ok && snap.running
}

// bufferText returns the buffered output for id, or "" if unknown.
func (s *supervisor) bufferText(id workspaceID) string {
	if b := s.buffer(id); b != nil {
		return b.text()
	}
	return ""
}

// bufferChunks returns a copy of the buffered chunks for id.
func (s *supervisor) bufferChunks(id workspaceID) []chunk {
	if b := s.buffer(id); b != nil {
		return b.snapshot()
	}
	return nil
}

func (s *supervisor) buffer(id workspaceID) *outputBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wp, ok := s.procs[id]; ok {
		return wp.buffer
	}
	return nil
}

// runningIDs returns the ids of running workers, sorted.
func (s *supervisor) runningIDs() []workspaceID {
	s.mu.Lock()
	var ids []workspaceID
	for id, wp := range s.procs {
		if wp.running {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// -- helpers --

// describeExit renders a Wait error as "exit status N" or "signal: X".
func describeExit(err error) string {
	if err == nil {
		return "exit status 0"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Error()
	}
	return err.Error()
}

// utf8Carry decodes a byte stream into text without splitting runes
// across chunks: an incomplete trailing sequence is held for the next
// read.
type utf8Carry struct {
	pending []byte
}

func (d *utf8Carry) decode(p []byte) string {
	data := append(d.pending, p...)
	d.pending = nil

	// at most utf8.UTFMax-1 bytes can belong to an unfinished rune
	cut := len(data)
	for i := len(data) - 1; i >= 0 && i >= len(data)-(utf8.UTFMax-1); i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				cut = i
			}
			break
		}
	}
	if cut < len(data) {
		d.pending = append([]byte(nil), data[cut:]...)
	}
	return string(data[:cut])
}

func (d *utf8Carry) flush() string {
	s := string(d.pending)
	d.pending = nil
	return s
}
