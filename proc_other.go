//go:build !unix

package main

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// signalWorker has no graceful variant off unix; both paths kill.
func signalWorker(h *workerHandle, force bool) error {
	return h.cmd.Process.Kill()
}
