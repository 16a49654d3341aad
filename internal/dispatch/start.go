package dispatch

import (
	"errors"
	"os/exec"
)

// StartDetached starts cmd in its own process group with no standard
// streams attached. A goroutine reaps the child once it exits.
func StartDetached(cmd *exec.Cmd) (int, error) {
	if cmd == nil || cmd.Path == "" {
		return 0, errors.New("no command")
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
