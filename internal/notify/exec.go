package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ExecSink shells out to a platform notifier helper, feeding it the
// notification as JSON on stdin. With no command configured it degrades to
// logging, which keeps the call pipeline alive on headless hosts.
type ExecSink struct {
	Command string
	Timeout time.Duration
}

func NewExecSink(command string) *ExecSink {
	return &ExecSink{Command: command, Timeout: 5 * time.Second}
}

func (s *ExecSink) Post(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	if s.Command == "" {
		slog.Info("notification posted", "slot", n.Slot, "channel", n.Channel, "title", n.Title)
		return nil
	}
	return s.run(ctx, string(payload), "post", strconv.Itoa(n.Slot))
}

func (s *ExecSink) Cancel(ctx context.Context, slot int) error {
	if s.Command == "" {
		slog.Info("notification cancelled", "slot", slot)
		return nil
	}
	return s.run(ctx, "", "cancel", strconv.Itoa(slot))
}

func (s *ExecSink) run(ctx context.Context, stdin string, args ...string) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.Command, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running notifier %s: %w (%s)", s.Command, err, string(out))
	}
	return nil
}
