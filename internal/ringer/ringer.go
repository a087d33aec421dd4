// Package ringer controls the looping ringtone and vibration that
// accompany an incoming call.
package ringer

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// VibrationPattern is the waveform used while ringing: a leading pause then
// alternating buzz/pause, repeated until stopped. Values are milliseconds.
var VibrationPattern = []time.Duration{
	0,
	1000 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
}

// Player plays a ringtone in a loop until stopped.
type Player interface {
	Play(ctx context.Context, source string) error
	Stop(ctx context.Context) error
}

// Vibrator drives a repeating vibration waveform until cancelled.
type Vibrator interface {
	Vibrate(ctx context.Context, pattern []time.Duration) error
	Cancel(ctx context.Context) error
}

// Ringer coordinates the player and vibrator as one unit with a single
// active state. Start while already ringing is a no-op; Stop is idempotent.
type Ringer struct {
	player   Player
	vibrator Vibrator
	asset    string

	mu     sync.Mutex
	active bool
}

// New creates a ringer that plays asset, falling back to the platform
// default tone when the asset is missing.
func New(player Player, vibrator Vibrator, asset string) *Ringer {
	return &Ringer{player: player, vibrator: vibrator, asset: asset}
}

// Start begins ringtone playback and vibration. A failure to start audio
// does not abort the call flow: the vibration and the notification still
// announce the call.
func (r *Ringer) Start(ctx context.Context) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return
	}
	r.active = true
	r.mu.Unlock()

	source := r.asset
	if source != "" {
		if _, err := os.Stat(source); err != nil {
			slog.Warn("ringtone asset unavailable, using default tone", "asset", source, "error", err)
			source = ""
		}
	}
	if err := r.player.Play(ctx, source); err != nil {
		slog.Error("starting ringtone playback", "error", err)
	}
	if err := r.vibrator.Vibrate(ctx, VibrationPattern); err != nil {
		slog.Error("starting vibration", "error", err)
	}
	slog.Info("ringer started", "asset", source)
}

// Stop halts playback and vibration. Safe to call when not ringing.
func (r *Ringer) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	r.mu.Unlock()

	if err := r.player.Stop(ctx); err != nil {
		slog.Error("stopping ringtone playback", "error", err)
	}
	if err := r.vibrator.Cancel(ctx); err != nil {
		slog.Error("cancelling vibration", "error", err)
	}
	slog.Info("ringer stopped")
}

// Active reports whether the ringer is currently sounding.
func (r *Ringer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
