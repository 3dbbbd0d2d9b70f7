// data types shared across the codebase.
//
// workspaceProcess is owned by the supervisor (process.go). the TUI
// never touches one directly: it reads processSnapshot values, which
// are copies taken under the supervisor's lock.

package main

import (
	"os/exec"
	"time"
)

// workspaceID identifies a workspace by its path relative to the repo
// root, e.g. "apps/web". unique for the session, never mutated.
type workspaceID = string

// workspace pairs an id with the directory its worker runs in.
type workspace struct {
	id  workspaceID
	dir string // absolute
}

// workspaceProcess is the supervisor's record for one workspace.
// created on first start, reused across restarts so the buffer
// carries history.
type workspaceProcess struct {
	id      workspaceID
	cwd     string
	buffer  *outputBuffer
	running bool
	handle  *workerHandle // nil until first successful spawn

	startedAt time.Time
	restarts  int
	lastExit  string // "" while running or never exited
}

// workerHandle is one spawned worker. a new handle per spawn lets the
// exit watcher tell whether the record still points at its worker.
type workerHandle struct {
	cmd      *exec.Cmd
	pid      int
	exited   chan struct{} // closed once Wait returns
	stopping bool
}

// processSnapshot is an immutable copy of a workspaceProcess.
type processSnapshot struct {
	id          workspaceID
	cwd         string
	running     bool
	pid         int
	startedAt   time.Time
	restarts    int
	lastExit    string
	bufferBytes int
	chunks      int
	version     uint64
}

// chunk is whatever one read returned from a worker stream.
type chunk struct {
	at   time.Time
	text string
}

// lifecycleEvent is emitted by the supervisor on state changes and
// journaled by the state store.
type lifecycleEvent struct {
	workspace workspaceID
	kind      string // see event* constants
	detail    string
	at        time.Time
}

const (
	eventStarted     = "started"
	eventStopped     = "stopped"
	eventExited      = "exited"
	eventSpawnFailed = "spawn-failed"
)

// sidebarRow is one visible line of the workspace list.
type sidebarRow struct {
	path      string      // tree path for directory rows, id for leaves
	id        workspaceID // "" for directory rows
	label     string
	depth     int
	dir       bool
	collapsed bool
}
