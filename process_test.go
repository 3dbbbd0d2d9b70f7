//go:build unix

package main

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

// shellConfig runs script through sh -c as every workspace's worker.
func shellConfig(t *testing.T, script string) *Config {
	t.Helper()
	cfg := defaultConfig()
	cfg.root = t.TempDir()
	cfg.Process.Command = []string{"sh", "-c"}
	cfg.Process.Script = script
	cfg.Process.StopTimeoutMs = 500
	return &cfg
}

// eventLog collects lifecycle events from the supervisor's goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []lifecycleEvent
}

func (l *eventLog) record(ev lifecycleEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		out = append(out, ev.kind)
	}
	return out
}

func TestSupervisorStartCapturesOutput(t *testing.T) {
	cfg := shellConfig(t, "echo out; echo err >&2; sleep 30")
	sup := newSupervisor(cfg, nil, nil)
	t.Cleanup(sup.stopAll)

	require.NoError(t, sup.start("apps/web", cfg.root))
	require.True(t, sup.isRunning("apps/web"))

	require.Eventually(t, func() bool {
		text := sup.bufferText("apps/web")
		return strings.Contains(text, "out\n") && strings.Contains(text, "err\n")
	}, waitFor, tick)

	snap, ok := sup.get("apps/web")
	require.True(t, ok)
	assert.Positive(t, snap.pid)
	assert.Equal(t, cfg.root, snap.cwd)
	assert.Equal(t, 0, snap.restarts)
}

func TestSupervisorStartIsIdempotent(t *testing.T) {
	cfg := shellConfig(t, "echo once; sleep 30")
	sup := newSupervisor(cfg, nil, nil)
	t.Cleanup(sup.stopAll)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sup.start("pkgs/a", cfg.root))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return strings.Contains(sup.bufferText("pkgs/a"), "once\n")
	}, waitFor, tick)
	// give a hypothetical second worker time to print
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, strings.Count(sup.bufferText("pkgs/a"), "once"))

	snap, _ := sup.get("pkgs/a")
	assert.Equal(t, 0, snap.restarts)
}

func TestSupervisorStopKeepsBuffer(t *testing.T) {
	events := &eventLog{}
	cfg := shellConfig(t, "echo hi; sleep 30")
	sup := newSupervisor(cfg, nil, events.record)

	require.NoError(t, sup.start("pkgs/a", cfg.root))
	require.Eventually(t, func() bool {
		return sup.bufferText("pkgs/a") == "hi\n"
	}, waitFor, tick)

	sup.stop("pkgs/a")
	assert.False(t, sup.isRunning("pkgs/a"))
	assert.Equal(t, "hi\n", sup.bufferText("pkgs/a"))

	snap, _ := sup.get("pkgs/a")
	assert.Equal(t, "stopped", snap.lastExit)
	assert.Equal(t, []string{eventStarted, eventStopped}, events.kinds())

	// stopping again is a no-op
	sup.stop("pkgs/a")
	sup.stop("never/started")
	assert.Equal(t, []string{eventStarted, eventStopped}, events.kinds())
}

func TestSupervisorStopEscalatesToKill(t *testing.T) {
	cfg := shellConfig(t, "trap '' TERM; echo ready; while :; do sleep 1; done")
	cfg.Process.StopTimeoutMs = 100
	sup := newSupervisor(cfg, nil, nil)

	require.NoError(t, sup.start("stubborn", cfg.root))
	require.Eventually(t, func() bool {
		return strings.Contains(sup.bufferText("stubborn"), "ready")
	}, waitFor, tick)

	done := make(chan struct{})
	go func() {
		sup.stop("stubborn")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("stop did not return after SIGKILL")
	}
	assert.False(t, sup.isRunning("stubborn"))
}

func TestSupervisorRestartAppendsToBuffer(t *testing.T) {
	cfg := shellConfig(t, "echo boot; sleep 30")
	sup := newSupervisor(cfg, nil, nil)
	t.Cleanup(sup.stopAll)

	require.NoError(t, sup.start("apps/web", cfg.root))
	require.Eventually(t, func() bool {
		return sup.bufferText("apps/web") == "boot\n"
	}, waitFor, tick)
	first, _ := sup.get("apps/web")

	require.NoError(t, sup.restart("apps/web"))
	require.Eventually(t, func() bool {
		return sup.bufferText("apps/web") == "boot\nboot\n"
	}, waitFor, tick)

	second, _ := sup.get("apps/web")
	assert.True(t, second.running)
	assert.Equal(t, 1, second.restarts)
	assert.NotEqual(t, first.pid, second.pid)
}

func TestSupervisorRestartUnknownIsNoop(t *testing.T) {
	sup := newSupervisor(shellConfig(t, "true"), nil, nil)
	require.NoError(t, sup.restart("nope"))
	_, ok := sup.get("nope")
	assert.False(t, ok)
}

func TestSupervisorWorkerExitFlipsRunning(t *testing.T) {
	events := &eventLog{}
	cfg := shellConfig(t, "echo bye; exit 3")
	sup := newSupervisor(cfg, nil, events.record)

	require.NoError(t, sup.start("pkgs/b", cfg.root))
	require.Eventually(t, func() bool {
		return !sup.isRunning("pkgs/b")
	}, waitFor, tick)

	snap, _ := sup.get("pkgs/b")
	assert.Equal(t, "exit status 3", snap.lastExit)
	require.Eventually(t, func() bool {
		return sup.bufferText("pkgs/b") == "bye\n"
	}, waitFor, tick)
	assert.Eventually(t, func() bool {
		kinds := events.kinds()
		return len(kinds) == 2 && kinds[1] == eventExited
	}, waitFor, tick)

	// an exited workspace starts again on request
	require.NoError(t, sup.start("pkgs/b", cfg.root))
	snap, _ = sup.get("pkgs/b")
	assert.Equal(t, 1, snap.restarts)
}

func TestSupervisorSpawnFailure(t *testing.T) {
	events := &eventLog{}
	cfg := shellConfig(t, "true")
	cfg.Process.Command = []string{"/definitely/not/a/binary"}
	sup := newSupervisor(cfg, nil, events.record)

	err := sup.start("pkgs/a", cfg.root)
	require.Error(t, err)
	assert.False(t, sup.isRunning("pkgs/a"))
	assert.Equal(t, []string{eventSpawnFailed}, events.kinds())

	snap, ok := sup.get("pkgs/a")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(snap.lastExit, "spawn failed: "), snap.lastExit)
}

func TestSupervisorStopAll(t *testing.T) {
	cfg := shellConfig(t, "sleep 30")
	sup := newSupervisor(cfg, nil, nil)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, sup.start(id, cfg.root))
	}
	assert.Equal(t, []string{"a", "b", "c"}, sup.runningIDs())

	sup.stopAll()
	assert.Empty(t, sup.runningIDs())

	// idempotent
	sup.stopAll()
	assert.Empty(t, sup.runningIDs())
}

func TestSupervisorStopAllWinsOverInflightRestart(t *testing.T) {
	cfg := shellConfig(t, "trap 'sleep 0.3; exit 0' TERM; echo ready; while :; do sleep 0.05; done")
	sup := newSupervisor(cfg, nil, nil)
	t.Cleanup(sup.stopAll)

	require.NoError(t, sup.start("apps/web", cfg.root))
	require.Eventually(t, func() bool {
		return strings.Contains(sup.bufferText("apps/web"), "ready")
	}, waitFor, tick)

	restarted := make(chan error, 1)
	go func() { restarted <- sup.restart("apps/web") }()
	// let the restart get into its slow stop
	time.Sleep(50 * time.Millisecond)

	sup.stopAll()
	select {
	case err := <-restarted:
		assert.ErrorIs(t, err, errSupervisorClosed)
	case <-time.After(waitFor):
		t.Fatal("restart did not return")
	}
	assert.Empty(t, sup.runningIDs())
	assert.Equal(t, 1, strings.Count(sup.bufferText("apps/web"), "ready"))
}

func TestSupervisorStartAfterStopAllRefused(t *testing.T) {
	events := &eventLog{}
	cfg := shellConfig(t, "sleep 30")
	sup := newSupervisor(cfg, nil, events.record)

	sup.stopAll()
	err := sup.start("pkgs/a", cfg.root)
	require.ErrorIs(t, err, errSupervisorClosed)
	assert.False(t, sup.isRunning("pkgs/a"))
	assert.Empty(t, sup.runningIDs())
	assert.Empty(t, events.kinds())
}

func TestDescribeExit(t *testing.T) {
	assert.Equal(t, "exit status 0", describeExit(nil))
}

func TestUTF8CarrySplitsRunes(t *testing.T) {
	var dec utf8Carry
	euro := []byte("€") // 3 bytes

	assert.Equal(t, "a", dec.decode(append([]byte("a"), euro[:2]...)))
	assert.Equal(t, "€b", dec.decode(append(euro[2:], 'b')))
	assert.Empty(t, dec.flush())
}
