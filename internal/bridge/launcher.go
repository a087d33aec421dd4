package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// ExecLauncher opens the page host through a platform helper (an opener
// command that takes the URL as its only argument).
type ExecLauncher struct {
	Command string
}

func NewExecLauncher(command string) *ExecLauncher {
	return &ExecLauncher{Command: command}
}

func (l *ExecLauncher) Launch(ctx context.Context, url string) error {
	if l.Command == "" {
		slog.Info("no launcher command configured, cannot cold start page host")
		return fmt.Errorf("no launcher configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, l.Command, url)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running launcher %s: %w (%s)", l.Command, err, string(out))
	}
	return nil
}
