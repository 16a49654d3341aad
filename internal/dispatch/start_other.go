//go:build !unix

package dispatch

import "os/exec"

func detach(cmd *exec.Cmd) {}
