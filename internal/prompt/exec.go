package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/astro5star/callshell/internal/call"
)

// ExecOpener raises the call screen through a platform helper, feeding it
// the invite as JSON on stdin. With no command configured the open is
// logged only; the notification trampoline still carries the call.
type ExecOpener struct {
	Command string
	Timeout time.Duration
}

func NewExecOpener(command string) *ExecOpener {
	return &ExecOpener{Command: command, Timeout: 5 * time.Second}
}

func (o *ExecOpener) Open(ctx context.Context, inv call.Invite) error {
	if o.Command == "" {
		slog.Info("call surface opened (no prompt command)", "call_id", inv.CallID)
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"callId":     inv.CallID,
		"sessionId":  inv.SessionID,
		"callerName": inv.CallerName,
		"callType":   inv.CallType,
	})
	if err != nil {
		return fmt.Errorf("encoding invite: %w", err)
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, o.Command, "open", inv.CallID)
	cmd.Stdin = strings.NewReader(string(payload))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running call surface %s: %w (%s)", o.Command, err, string(out))
	}
	return nil
}
