// Package permission tracks the platform grants the agent depends on and
// prompts for the ones that are missing.
package permission

import (
	"context"
	"log/slog"
	"sync"
)

// Permission names the grants the call flow needs.
type Permission string

const (
	Overlay       Permission = "overlay"
	Notifications Permission = "notifications"
	RecordAudio   Permission = "record_audio"
)

// Prompter asks the user for a grant. Ask blocks until the user decides or
// ctx expires and reports whether the grant was given. For grants that need
// a settings screen the prompter is responsible for the jump.
type Prompter interface {
	Granted(ctx context.Context, p Permission) (bool, error)
	Ask(ctx context.Context, p Permission) (bool, error)
}

// Gate runs the startup permission sequence and the lazy ones acquired
// mid-flow. It remembers denials so a declined grant is not re-prompted
// every call.
type Gate struct {
	prompter Prompter

	mu     sync.Mutex
	denied map[Permission]bool
}

func NewGate(prompter Prompter) *Gate {
	return &Gate{prompter: prompter, denied: make(map[Permission]bool)}
}

// EnsureStartup requests the grants needed before any call can be
// surfaced: the overlay grant (so the full-screen prompt can appear over
// other apps) and the notification grant. Denials are logged, not fatal:
// the agent stays up and delivers what it still can.
func (g *Gate) EnsureStartup(ctx context.Context) {
	if ok := g.ensure(ctx, Overlay); !ok {
		slog.Warn("overlay permission declined, you may miss incoming calls")
	}
	if ok := g.ensure(ctx, Notifications); !ok {
		slog.Warn("notification permission declined, incoming calls will be silent")
	}
}

// EnsureRecordAudio requests the microphone grant. It is called when a call
// is accepted, not at startup: the grant is pointless until the first
// answered call. The accept flow proceeds regardless of the outcome.
func (g *Gate) EnsureRecordAudio(ctx context.Context) bool {
	ok := g.ensure(ctx, RecordAudio)
	if !ok {
		slog.Warn("record-audio permission not granted")
	}
	return ok
}

// Has reports whether the grant is currently held, without prompting.
func (g *Gate) Has(ctx context.Context, p Permission) bool {
	granted, err := g.prompter.Granted(ctx, p)
	if err != nil {
		slog.Error("checking permission", "permission", p, "error", err)
		return false
	}
	return granted
}

// Request prompts for the grant on a caller's behalf. Remembered denials
// still apply.
func (g *Gate) Request(ctx context.Context, p Permission) bool {
	return g.ensure(ctx, p)
}

func (g *Gate) ensure(ctx context.Context, p Permission) bool {
	granted, err := g.prompter.Granted(ctx, p)
	if err != nil {
		slog.Error("checking permission", "permission", p, "error", err)
		return false
	}
	if granted {
		return true
	}

	g.mu.Lock()
	if g.denied[p] {
		g.mu.Unlock()
		return false
	}
	g.mu.Unlock()

	granted, err = g.prompter.Ask(ctx, p)
	if err != nil {
		slog.Error("prompting for permission", "permission", p, "error", err)
		return false
	}
	if !granted {
		g.mu.Lock()
		g.denied[p] = true
		g.mu.Unlock()
	}
	return granted
}
