// Package bridge carries call decisions into the embedded page. Actions
// are delivered hot (the page is alive and scripts can run) or cold (the
// page is relaunched with a bootstrap URL carrying the decision).
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astro5star/callshell/internal/session"
)

// ErrConnectionFailed is surfaced to the user when every delivery route is
// exhausted. The text is shown verbatim.
var ErrConnectionFailed = errors.New("Connection failed. Please reopen the app.")

// ActionKind selects the script and retry policy used when delivering.
type ActionKind string

const (
	// AcceptViaAPI joins a session the backend has already accepted.
	AcceptViaAPI ActionKind = "accept_via_api"
	// AcceptViaSocket answers through the page's own socket when the
	// backend endpoint was unreachable.
	AcceptViaSocket ActionKind = "accept_via_socket"
	// Reject tells the far side the call was declined.
	Reject ActionKind = "reject"
	// ShowPopup asks the page to render its own incoming-call popup
	// instead of auto-joining.
	ShowPopup ActionKind = "show_popup"
)

// retryPolicy returns how often and how many times the page is probed for
// readiness before delivery is abandoned. Accept paths probe fast; the
// socket paths give a cold page longer to establish its connection.
func (k ActionKind) retryPolicy() (time.Duration, int) {
	switch k {
	case AcceptViaAPI, ShowPopup:
		return 500 * time.Millisecond, 20
	default:
		return time.Second, 10
	}
}

// Action is one pending decision bound for the page.
type Action struct {
	ID         string     `json:"id"`
	Kind       ActionKind `json:"kind"`
	SessionID  string     `json:"sessionId"`
	CallID     string     `json:"callId"`
	CallerName string     `json:"callerName,omitempty"`
	CallType   string     `json:"callType"`
	FromUserID string     `json:"fromUserId,omitempty"`
	UserID     string     `json:"userId"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NewAction fills in identity and timestamp.
func NewAction(kind ActionKind, sessionID, callID, callerName, callType, fromUserID, userID string) Action {
	return Action{
		ID:         uuid.NewString(),
		Kind:       kind,
		SessionID:  sessionID,
		CallID:     callID,
		CallerName: callerName,
		CallType:   callType,
		FromUserID: fromUserID,
		UserID:     userID,
		CreatedAt:  time.Now(),
	}
}

// Page is a live embedded-page connection.
type Page interface {
	// Eval runs script in the page and returns its string result.
	Eval(ctx context.Context, script string) (string, error)
	// Load navigates the page to url.
	Load(ctx context.Context, url string) error
}

// Launcher brings the page host to the foreground when no page is
// attached. url carries the bootstrap parameters.
type Launcher interface {
	Launch(ctx context.Context, url string) error
}

// Bridge owns the single pending action slot. A newer action replaces an
// undelivered older one; each action is consumed at most once.
type Bridge struct {
	sessions *session.Store
	launcher Launcher
	baseURL  string

	mu      sync.Mutex
	page    Page
	pending *Action

	delivered uint64
	failed    uint64
}

func New(sessions *session.Store, launcher Launcher, baseURL string) *Bridge {
	return &Bridge{sessions: sessions, launcher: launcher, baseURL: baseURL}
}

// AttachPage registers the live page connection. If an action is pending
// it is bootstrapped into the fresh page immediately.
func (b *Bridge) AttachPage(ctx context.Context, p Page) {
	b.mu.Lock()
	b.page = p
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	slog.Info("page attached")
	if pending != nil {
		go func() {
			if err := b.deliverHot(ctx, p, *pending); err != nil {
				slog.Error("delivering pending action to fresh page", "action_id", pending.ID, "kind", pending.Kind, "error", err)
				b.countFailure()
			}
		}()
	}
}

// DetachPage clears the page if it is still the registered one.
func (b *Bridge) DetachPage(p Page) {
	b.mu.Lock()
	if b.page == p {
		b.page = nil
	}
	b.mu.Unlock()
	slog.Info("page detached")
}

// Dispatch delivers action to the page: hot when one is attached, else by
// relaunching the page host with a bootstrap URL. With neither route the
// action parks in the pending slot for the next page attach.
func (b *Bridge) Dispatch(ctx context.Context, action Action) error {
	b.mu.Lock()
	page := b.page
	b.mu.Unlock()

	if page != nil {
		if err := b.deliverHot(ctx, page, action); err != nil {
			b.countFailure()
			return err
		}
		return nil
	}

	url, err := b.BootstrapURL(ctx, action)
	if err != nil {
		b.countFailure()
		return fmt.Errorf("building bootstrap url: %w", err)
	}
	if b.launcher != nil {
		err := b.launcher.Launch(ctx, url)
		if err == nil {
			slog.Info("page host launched cold", "action_id", action.ID, "kind", action.Kind)
			b.countDelivered()
			return nil
		}
		slog.Warn("cold launch failed, parking action", "action_id", action.ID, "error", err)
	}

	b.mu.Lock()
	if b.pending != nil {
		slog.Warn("pending action superseded", "old_action_id", b.pending.ID, "action_id", action.ID)
	}
	b.pending = &action
	b.mu.Unlock()
	return nil
}

// deliverHot probes the page until the script surface the action needs is
// ready, then injects the action script. One probe-retry budget per kind.
func (b *Bridge) deliverHot(ctx context.Context, page Page, action Action) error {
	interval, attempts := action.Kind.retryPolicy()
	probe := probeScript(action.Kind)

	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		res, err := page.Eval(ctx, probe)
		if err != nil {
			slog.Debug("readiness probe failed", "action_id", action.ID, "attempt", i+1, "error", err)
			continue
		}
		if res != "true" {
			continue
		}
		if _, err := page.Eval(ctx, actionScript(action)); err != nil {
			return fmt.Errorf("injecting %s action: %w", action.Kind, err)
		}
		slog.Info("action delivered to page", "action_id", action.ID, "kind", action.Kind, "attempts", i+1)
		b.countDelivered()
		return nil
	}
	return ErrConnectionFailed
}

func (b *Bridge) countDelivered() {
	b.mu.Lock()
	b.delivered++
	b.mu.Unlock()
}

func (b *Bridge) countFailure() {
	b.mu.Lock()
	b.failed++
	b.mu.Unlock()
}

// Stats is read by the metrics collector.
type Stats struct {
	Delivered    uint64
	Failed       uint64
	PageAttached bool
	Pending      bool
}

func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Delivered:    b.delivered,
		Failed:       b.failed,
		PageAttached: b.page != nil,
		Pending:      b.pending != nil,
	}
}
