package permission

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ExecPrompter delegates checks and prompts to a platform helper command.
// `<cmd> check <perm>` exits 0 when granted; `<cmd> ask <perm>` shows the
// dialog (jumping to the settings screen where the platform requires it)
// and exits 0 when the user grants.
type ExecPrompter struct {
	Command string
}

func NewExecPrompter(command string) *ExecPrompter {
	return &ExecPrompter{Command: command}
}

func (p *ExecPrompter) Granted(ctx context.Context, perm Permission) (bool, error) {
	if p.Command == "" {
		return true, nil
	}
	return p.run(ctx, 10*time.Second, "check", string(perm))
}

func (p *ExecPrompter) Ask(ctx context.Context, perm Permission) (bool, error) {
	if p.Command == "" {
		return true, nil
	}
	// Users can sit on a permission dialog for a while.
	return p.run(ctx, 2*time.Minute, "ask", string(perm))
}

func (p *ExecPrompter) run(ctx context.Context, timeout time.Duration, args ...string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := exec.CommandContext(ctx, p.Command, args...).Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("running permission helper %s: %w", p.Command, err)
}
