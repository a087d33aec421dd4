// Package prompt models the full-screen incoming-call surface: what it
// shows and the one decision it is allowed to emit.
package prompt

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/astro5star/callshell/internal/call"
	"github.com/astro5star/callshell/internal/notify"
)

// AcceptMarker in the caller name means the decision was already made on
// the notification and the prompt opens straight into accept.
const AcceptMarker = "ACCEPT:"

// Decider receives the prompt's single decision. The call manager
// implements it.
type Decider interface {
	Accept(ctx context.Context, callID string)
	Reject(ctx context.Context, callID string)
}

// Prompt is one showing of the call screen for one invite. It emits at
// most one decision no matter how the surface is poked; dismissal without
// a decision leaves the call to its ringing timeout.
type Prompt struct {
	decider Decider
	invite  call.Invite

	mu      sync.Mutex
	decided bool
}

// Show builds the prompt state for an invite. When the caller name carries
// the accept marker the decision fires immediately and the returned prompt
// is already spent.
func Show(ctx context.Context, decider Decider, inv call.Invite) *Prompt {
	p := &Prompt{decider: decider, invite: inv}
	if name, ok := strings.CutPrefix(inv.CallerName, AcceptMarker); ok {
		p.invite.CallerName = name
		slog.Info("prompt opened pre-accepted", "call_id", inv.CallID)
		p.Accept(ctx)
	}
	return p
}

// Title is the heading for the invite's call type.
func (p *Prompt) Title() string {
	return notify.CallTitle(p.invite.CallType)
}

// CallerName is the display name under the title.
func (p *Prompt) CallerName() string {
	return p.invite.CallerName
}

// Avatar is the single-letter stand-in shown when no photo exists: the
// upper-cased first letter of the caller name, or "U" for unknown.
func (p *Prompt) Avatar() string {
	name := strings.TrimSpace(p.invite.CallerName)
	if name == "" {
		return "U"
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r))
}

// Accept emits the accept decision. Later calls, and any Reject after it,
// are no-ops.
func (p *Prompt) Accept(ctx context.Context) {
	if !p.spend() {
		return
	}
	p.decider.Accept(ctx, p.invite.CallID)
}

// Reject emits the reject decision.
func (p *Prompt) Reject(ctx context.Context) {
	if !p.spend() {
		return
	}
	p.decider.Reject(ctx, p.invite.CallID)
}

// Decided reports whether the prompt's decision is spent. Surfaces use it
// to disable both buttons together.
func (p *Prompt) Decided() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decided
}

func (p *Prompt) spend() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.decided {
		return false
	}
	p.decided = true
	return true
}
