// Package push turns raw push payloads into call invites and routes them
// into the call pipeline.
package push

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/astro5star/callshell/internal/call"
	"github.com/astro5star/callshell/internal/notify"
)

// TypeIncomingCall is the payload type that triggers the call pipeline.
// Every other type renders as a plain notification.
const TypeIncomingCall = "incoming_call"

// Payload defaults. The sender is not always trustworthy about optional
// fields, so absent values fall back instead of dropping the call.
const (
	DefaultCallerName = "Unknown Caller"
	DefaultCallType   = "audio"
)

// ParseInvite normalizes a data payload into an invite. The call id is the
// one field that cannot be defaulted: without it no decision can ever be
// matched back to the call.
func ParseInvite(data map[string]string) (call.Invite, error) {
	callID := data["callId"]
	if callID == "" {
		return call.Invite{}, fmt.Errorf("push payload has no callId")
	}

	callerName := data["callerName"]
	if callerName == "" {
		callerName = DefaultCallerName
	}
	callType := data["callType"]
	if callType == "" {
		callType = DefaultCallType
	}

	// The session id is the call id: the backend keys the consultation
	// session on the same identifier it pushes.
	return call.Invite{
		CallID:     callID,
		SessionID:  callID,
		CallerName: callerName,
		CallType:   callType,
		ReceivedAt: time.Now(),
	}, nil
}

// Ingress is the push entry point. One instance serves every transport
// the agent listens on.
type Ingress struct {
	manager *call.Manager
	sink    notify.Sink
	limiter *rate.Limiter

	mu        sync.Mutex
	received  uint64
	malformed uint64
	generic   uint64
	dropped   uint64
}

// NewIngress creates the ingress. The rate limit bounds how fast pushes
// are admitted overall; a runaway sender cannot ring the device in a loop.
func NewIngress(manager *call.Manager, sink notify.Sink) *Ingress {
	return &Ingress{
		manager: manager,
		sink:    sink,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Handle routes one push payload. Malformed call pushes are dropped with a
// log line; they must never crash the pipeline or ring with a broken call.
func (i *Ingress) Handle(ctx context.Context, data map[string]string) error {
	i.mu.Lock()
	i.received++
	i.mu.Unlock()

	if !i.limiter.Allow() {
		i.mu.Lock()
		i.dropped++
		i.mu.Unlock()
		slog.Warn("push dropped by rate limit")
		return fmt.Errorf("push rate limit exceeded")
	}

	if data["type"] != TypeIncomingCall {
		i.mu.Lock()
		i.generic++
		i.mu.Unlock()
		n := notify.Generic(int(time.Now().UnixNano()%100000)+2000, data["title"], data["body"])
		if err := i.sink.Post(ctx, n); err != nil {
			return fmt.Errorf("posting generic notification: %w", err)
		}
		return nil
	}

	inv, err := ParseInvite(data)
	if err != nil {
		i.mu.Lock()
		i.malformed++
		i.mu.Unlock()
		slog.Warn("malformed call push dropped", "error", err)
		return err
	}

	i.manager.HandleInvite(ctx, inv)
	return nil
}

// Stats is read by the metrics collector.
type Stats struct {
	Received  uint64
	Malformed uint64
	Generic   uint64
	Dropped   uint64
}

func (i *Ingress) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Stats{Received: i.received, Malformed: i.malformed, Generic: i.generic, Dropped: i.dropped}
}
