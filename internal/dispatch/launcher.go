package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"syclopsui/internal/ctxlog"
)

// ErrNoLauncher is returned when no asset browser command is configured.
var ErrNoLauncher = errors.New("asset browser command not configured")

// Launcher starts the asset browser as a detached process.
type Launcher struct {
	Command []string
	WorkDir string
	Start   Starter
}

// Launch starts the configured command and returns once it is running.
func (l Launcher) Launch(ctx context.Context) (int, error) {
	if len(l.Command) == 0 || l.Command[0] == "" {
		return 0, ErrNoLauncher
	}
	start := l.Start
	if start == nil {
		start = StartDetached
	}
	cmd := exec.Command(l.Command[0], l.Command[1:]...)
	cmd.Dir = l.WorkDir
	pid, err := start(cmd)
	if err != nil {
		return 0, fmt.Errorf("failed to launch asset browser: %w", err)
	}
	ctxlog.FromContext(ctx).Info("asset browser launched", "pid", pid)
	return pid, nil
}
