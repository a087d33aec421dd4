package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// ExecWakeLock drives the platform's suspend control through a helper
// command: `<cmd> acquire <seconds>` and `<cmd> release`. With no command
// configured both sides are logged only, so headless hosts still run.
type ExecWakeLock struct {
	Command string
	Timeout time.Duration
}

func NewExecWakeLock(command string) *ExecWakeLock {
	return &ExecWakeLock{Command: command, Timeout: 5 * time.Second}
}

func (l *ExecWakeLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if l.Command == "" {
		slog.Info("wake lock acquired (no wakelock command)", "timeout", timeout)
		return nil
	}
	return l.run(ctx, "acquire", strconv.FormatInt(int64(timeout.Seconds()), 10))
}

func (l *ExecWakeLock) Release(ctx context.Context) error {
	if l.Command == "" {
		return nil
	}
	return l.run(ctx, "release")
}

func (l *ExecWakeLock) run(ctx context.Context, args ...string) error {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.Command, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running wakelock %s: %w (%s)", l.Command, err, string(out))
	}
	return nil
}
