package call

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/astro5star/callshell/internal/database"
	"github.com/astro5star/callshell/internal/database/models"
	"github.com/astro5star/callshell/internal/notify"
	"github.com/astro5star/callshell/internal/permission"
	"github.com/astro5star/callshell/internal/ringer"
)

// DefaultRingTimeout is the ceiling a call may ring before it is treated
// as missed.
const DefaultRingTimeout = 60 * time.Second

// Answerer carries an accept or reject decision to the signalling plane.
// It returns the delivery route taken ("api", "socket", "reject").
type Answerer interface {
	Answer(ctx context.Context, invite Invite, accept bool) (string, error)
}

// PromptOpener brings the full-screen call surface up directly. Full-screen
// trampolines from the notification are unreliable when the process is
// foreground-permitted, so the manager tries the opener first and leaves the
// notification as the fallback path.
type PromptOpener interface {
	Open(ctx context.Context, invite Invite) error
}

// Stats is a snapshot of the manager's counters, read by the metrics
// collector.
type Stats struct {
	InvitesTotal  uint64
	Accepted      uint64
	Rejected      uint64
	TimedOut      uint64
	Failed        uint64
	Replaced      uint64
	RingingActive bool
}

type activeCall struct {
	invite Invite
	state  State
	timer  *time.Timer
}

type decision struct {
	invite Invite
	accept bool
}

// Manager owns the one active call. All transitions happen under its lock;
// decision delivery runs on a single dispatcher goroutine so an accept is
// never raced by a second decision.
type Manager struct {
	ringer      *ringer.Ringer
	sink        notify.Sink
	answerer    Answerer
	callLog     database.CallLogRepository
	gate        *permission.Gate
	opener      PromptOpener
	ringTimeout time.Duration

	decisions chan decision

	mu      sync.Mutex
	current *activeCall
	stats   Stats
}

// NewManager wires the call pipeline. gate may be nil when the platform
// needs no runtime grants.
func NewManager(r *ringer.Ringer, sink notify.Sink, answerer Answerer, callLog database.CallLogRepository, gate *permission.Gate) *Manager {
	return &Manager{
		ringer:      r,
		sink:        sink,
		answerer:    answerer,
		callLog:     callLog,
		gate:        gate,
		ringTimeout: DefaultRingTimeout,
		decisions:   make(chan decision, 8),
	}
}

// SetRingTimeout overrides the ringing ceiling. Intended for tests.
func (m *Manager) SetRingTimeout(d time.Duration) {
	m.ringTimeout = d
}

// SetPromptOpener installs the direct call-surface launcher. Without one the
// notification's full-screen trampoline is the only way in.
func (m *Manager) SetPromptOpener(o PromptOpener) {
	m.opener = o
}

// Run consumes the decision queue until ctx is cancelled. Exactly one Run
// must be active; it is the serialization point for answer delivery.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-m.decisions:
			m.dispatch(ctx, d)
		}
	}
}

// HandleInvite starts ringing for a new call. A call already ringing is
// superseded: its notification slot is reused and its record closed as
// replaced.
func (m *Manager) HandleInvite(ctx context.Context, inv Invite) {
	m.mu.Lock()
	if m.current != nil && !m.current.state.Terminal() {
		old := m.current
		old.timer.Stop()
		old.state = StateTimedOut
		m.stats.Replaced++
		slog.Info("ringing call superseded", "old_call_id", old.invite.CallID, "call_id", inv.CallID)
		m.finishLog(ctx, old.invite.CallID, StateTimedOut, "replaced")
	}

	ac := &activeCall{invite: inv, state: StateRinging}
	ac.timer = time.AfterFunc(m.ringTimeout, func() { m.timeout(inv.CallID) })
	m.current = ac
	m.stats.InvitesTotal++
	m.mu.Unlock()

	if m.callLog != nil {
		rec := &models.CallRecord{
			CallID:     inv.CallID,
			SessionID:  inv.SessionID,
			CallerName: inv.CallerName,
			CallType:   inv.CallType,
			State:      string(StateRinging),
			ReceivedAt: inv.ReceivedAt,
		}
		if err := m.callLog.Create(ctx, rec); err != nil {
			slog.Error("recording incoming call", "call_id", inv.CallID, "error", err)
		}
	}

	m.ringer.Start(ctx)
	if err := m.sink.Post(ctx, notify.IncomingCall(inv.CallID, inv.CallerName, inv.CallType, m.ringTimeout)); err != nil {
		slog.Error("posting call notification", "call_id", inv.CallID, "error", err)
	}
	if m.opener != nil {
		if err := m.opener.Open(ctx, inv); err != nil {
			slog.Warn("call surface not opened directly, notification carries the call", "call_id", inv.CallID, "error", err)
		}
	}
	slog.Info("incoming call ringing", "call_id", inv.CallID, "caller", inv.CallerName, "call_type", inv.CallType)
}

// Accept records the user's accept for callID. Stale or mismatched call
// ids are ignored.
func (m *Manager) Accept(ctx context.Context, callID string) {
	m.decide(ctx, callID, true)
}

// Reject records the user's reject for callID.
func (m *Manager) Reject(ctx context.Context, callID string) {
	m.decide(ctx, callID, false)
}

func (m *Manager) decide(ctx context.Context, callID string, accept bool) {
	m.mu.Lock()
	ac := m.current
	if ac == nil || ac.invite.CallID != callID {
		m.mu.Unlock()
		slog.Warn("decision for unknown call ignored", "call_id", callID, "accept", accept)
		return
	}
	next := StateRejectRequested
	if accept {
		next = StateAcceptRequested
	}
	if !CanTransition(ac.state, next) {
		m.mu.Unlock()
		slog.Warn("decision after call left ringing, ignored", "call_id", callID, "state", ac.state, "accept", accept)
		return
	}
	ac.state = next
	ac.timer.Stop()
	inv := ac.invite
	m.mu.Unlock()

	m.ringer.Stop(ctx)
	if err := m.sink.Cancel(ctx, notify.SlotIncomingCall); err != nil {
		slog.Error("cancelling call notification", "call_id", callID, "error", err)
	}
	if accept && m.gate != nil {
		m.gate.EnsureRecordAudio(ctx)
	}

	m.decisions <- decision{invite: inv, accept: accept}
}

// dispatch runs on the single Run goroutine.
func (m *Manager) dispatch(ctx context.Context, d decision) {
	route, err := m.answerer.Answer(ctx, d.invite, d.accept)

	m.mu.Lock()
	ac := m.current
	if ac == nil || ac.invite.CallID != d.invite.CallID {
		m.mu.Unlock()
		return
	}
	var final State
	switch {
	case !d.accept:
		final = StateRejected
		m.stats.Rejected++
	case err != nil:
		final = StateFailed
		m.stats.Failed++
	default:
		final = StateAccepted
		m.stats.Accepted++
	}
	ac.state = final
	m.mu.Unlock()

	if err != nil && d.accept {
		slog.Error("answer delivery failed", "call_id", d.invite.CallID, "error", err)
	} else {
		slog.Info("call decided", "call_id", d.invite.CallID, "state", final, "route", route)
	}
	m.finishLog(ctx, d.invite.CallID, final, route)
}

func (m *Manager) timeout(callID string) {
	ctx := context.Background()

	m.mu.Lock()
	ac := m.current
	if ac == nil || ac.invite.CallID != callID || ac.state != StateRinging {
		m.mu.Unlock()
		return
	}
	ac.state = StateTimedOut
	m.stats.TimedOut++
	m.mu.Unlock()

	m.ringer.Stop(ctx)
	if err := m.sink.Cancel(ctx, notify.SlotIncomingCall); err != nil {
		slog.Error("cancelling call notification", "call_id", callID, "error", err)
	}
	slog.Info("incoming call timed out", "call_id", callID)
	m.finishLog(ctx, callID, StateTimedOut, "")
}

func (m *Manager) finishLog(ctx context.Context, callID string, state State, delivery string) {
	if m.callLog == nil {
		return
	}
	if err := m.callLog.Finish(ctx, callID, string(state), delivery); err != nil {
		slog.Error("closing call record", "call_id", callID, "error", err)
	}
}

// Invite returns the active call's invite when callID matches it.
func (m *Manager) Invite(callID string) (Invite, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.invite.CallID != callID {
		return Invite{}, false
	}
	return m.current.invite, true
}

// State returns the lifecycle state of callID, or StateNone when it is not
// the active call.
func (m *Manager) State(callID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.invite.CallID != callID {
		return StateNone
	}
	return m.current.state
}

// Stats snapshots the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.RingingActive = m.current != nil && m.current.state == StateRinging
	return s
}
