//go:build unix

package main

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the worker in its own process group so that
// signals reach the dev server's children too (bun run spawns them).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalWorker signals the worker's whole process group.
func signalWorker(h *workerHandle, force bool) error {
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	if err := unix.Kill(-h.pid, sig); err != nil {
		if err == unix.ESRCH {
			return nil
		}
		// group may be gone while the leader lingers
		return unix.Kill(h.pid, sig)
	}
	return nil
}
