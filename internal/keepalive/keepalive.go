// Package keepalive anchors the agent so the platform does not reclaim it
// while it waits for pushes: a persistent notification plus a bounded
// wake lock.
package keepalive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/astro5star/callshell/internal/notify"
)

// MaxWakeLock caps how long a single wake lock acquisition may hold the
// device awake. A stuck agent must never pin the battery indefinitely.
const MaxWakeLock = time.Hour

// WakeLock keeps the host from suspending. Acquire with a deadline;
// Release is idempotent.
type WakeLock interface {
	Acquire(ctx context.Context, timeout time.Duration) error
	Release(ctx context.Context) error
}

// NopWakeLock is used on hosts without suspend control.
type NopWakeLock struct{}

func (NopWakeLock) Acquire(ctx context.Context, timeout time.Duration) error { return nil }
func (NopWakeLock) Release(ctx context.Context) error                        { return nil }

// Anchor holds the keep-alive notification and wake lock for the lifetime
// of the agent, re-acquiring the lock before its ceiling expires.
type Anchor struct {
	sink notify.Sink
	lock WakeLock

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
	done    chan struct{}
}

func NewAnchor(sink notify.Sink, lock WakeLock) *Anchor {
	return &Anchor{sink: sink, lock: lock}
}

// Start posts the keep-alive notification and begins the wake-lock renewal
// loop. Restarting a running anchor is a no-op.
func (a *Anchor) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stop = cancel
	a.done = make(chan struct{})
	a.mu.Unlock()

	if err := a.sink.Post(ctx, notify.KeepAlive()); err != nil {
		slog.Error("posting keep-alive notification", "error", err)
	}
	if err := a.lock.Acquire(ctx, MaxWakeLock); err != nil {
		slog.Error("acquiring wake lock", "error", err)
	}

	go a.renewLoop(loopCtx)
	slog.Info("keep-alive anchor started")
	return nil
}

// renewLoop re-acquires the wake lock shortly before the ceiling so the
// anchor never holds a single acquisition longer than MaxWakeLock.
func (a *Anchor) renewLoop(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(MaxWakeLock - 5*time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.lock.Release(ctx); err != nil {
				slog.Error("releasing wake lock for renewal", "error", err)
			}
			if err := a.lock.Acquire(ctx, MaxWakeLock); err != nil {
				slog.Error("re-acquiring wake lock", "error", err)
			}
			if err := a.sink.Post(ctx, notify.KeepAlive()); err != nil {
				slog.Error("refreshing keep-alive notification", "error", err)
			}
		}
	}
}

// Stop releases the wake lock and removes the notification.
func (a *Anchor) Stop(ctx context.Context) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.stop()
	done := a.done
	a.mu.Unlock()

	<-done
	if err := a.lock.Release(ctx); err != nil {
		slog.Error("releasing wake lock", "error", err)
	}
	if err := a.sink.Cancel(ctx, notify.SlotKeepAlive); err != nil {
		slog.Error("cancelling keep-alive notification", "error", err)
	}
	slog.Info("keep-alive anchor stopped")
}

// Running reports whether the anchor is active.
func (a *Anchor) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
