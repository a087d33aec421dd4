package ringer

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakePlayer struct {
	mu    sync.Mutex
	plays []string
	stops int
	playE error
}

func (f *fakePlayer) Play(ctx context.Context, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, source)
	return f.playE
}

func (f *fakePlayer) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

type fakeVibrator struct {
	mu       sync.Mutex
	patterns [][]time.Duration
	cancels  int
}

func (f *fakeVibrator) Vibrate(ctx context.Context, pattern []time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns = append(f.patterns, pattern)
	return nil
}

func (f *fakeVibrator) Cancel(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func TestStartIsSingleActive(t *testing.T) {
	p, v := &fakePlayer{}, &fakeVibrator{}
	r := New(p, v, "")
	ctx := context.Background()

	r.Start(ctx)
	r.Start(ctx)
	r.Start(ctx)

	if len(p.plays) != 1 {
		t.Errorf("play called %d times, want 1", len(p.plays))
	}
	if len(v.patterns) != 1 {
		t.Errorf("vibrate called %d times, want 1", len(v.patterns))
	}
	if !r.Active() {
		t.Error("ringer should be active")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	p, v := &fakePlayer{}, &fakeVibrator{}
	r := New(p, v, "")
	ctx := context.Background()

	r.Stop(ctx) // before ever starting
	r.Start(ctx)
	r.Stop(ctx)
	r.Stop(ctx)

	if p.stops != 1 {
		t.Errorf("stop called %d times, want 1", p.stops)
	}
	if v.cancels != 1 {
		t.Errorf("cancel called %d times, want 1", v.cancels)
	}
	if r.Active() {
		t.Error("ringer should be inactive")
	}
}

func TestMissingAssetFallsBackToDefault(t *testing.T) {
	p, v := &fakePlayer{}, &fakeVibrator{}
	r := New(p, v, "/nonexistent/tone.ogg")

	r.Start(context.Background())

	if len(p.plays) != 1 || p.plays[0] != "" {
		t.Errorf("expected fallback to default tone, got plays %v", p.plays)
	}
}

func TestVibrationPattern(t *testing.T) {
	want := []time.Duration{0, time.Second, 500 * time.Millisecond, time.Second, 500 * time.Millisecond, time.Second}
	if len(VibrationPattern) != len(want) {
		t.Fatalf("pattern length = %d, want %d", len(VibrationPattern), len(want))
	}
	for i := range want {
		if VibrationPattern[i] != want[i] {
			t.Errorf("pattern[%d] = %v, want %v", i, VibrationPattern[i], want[i])
		}
	}
}

func TestRestartAfterStop(t *testing.T) {
	p, v := &fakePlayer{}, &fakeVibrator{}
	r := New(p, v, "")
	ctx := context.Background()

	r.Start(ctx)
	r.Stop(ctx)
	r.Start(ctx)

	if len(p.plays) != 2 {
		t.Errorf("play called %d times, want 2", len(p.plays))
	}
}
