package ringer

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ExecPlayer loops a tone through an external audio player process. The
// process runs until Stop kills it. With no command configured playback is
// logged only.
type ExecPlayer struct {
	Command string

	mu  sync.Mutex
	cmd *exec.Cmd
}

func NewExecPlayer(command string) *ExecPlayer {
	return &ExecPlayer{Command: command}
}

func (p *ExecPlayer) Play(ctx context.Context, source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return nil
	}
	if p.Command == "" {
		slog.Info("ringtone playback (no player command)", "source", source)
		return nil
	}

	args := []string{"--loop"}
	if source != "" {
		args = append(args, source)
	}
	cmd := exec.Command(p.Command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting player %s: %w", p.Command, err)
	}
	p.cmd = cmd
	go cmd.Wait()
	return nil
}

func (p *ExecPlayer) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	p.cmd = nil
	if err != nil {
		return fmt.Errorf("stopping player: %w", err)
	}
	return nil
}

// ExecVibrator hands the waveform to a platform helper as a comma-separated
// millisecond list with a repeat flag.
type ExecVibrator struct {
	Command string
}

func NewExecVibrator(command string) *ExecVibrator {
	return &ExecVibrator{Command: command}
}

func (v *ExecVibrator) Vibrate(ctx context.Context, pattern []time.Duration) error {
	if v.Command == "" {
		slog.Info("vibration (no vibrator command)")
		return nil
	}
	parts := make([]string, len(pattern))
	for i, d := range pattern {
		parts[i] = strconv.FormatInt(d.Milliseconds(), 10)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, v.Command, "vibrate", "--repeat", strings.Join(parts, ","))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running vibrator %s: %w (%s)", v.Command, err, string(out))
	}
	return nil
}

func (v *ExecVibrator) Cancel(ctx context.Context) error {
	if v.Command == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, v.Command, "cancel")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running vibrator %s: %w (%s)", v.Command, err, string(out))
	}
	return nil
}
