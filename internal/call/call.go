// Package call holds the incoming-call model and the manager that drives a
// call from ringing to a terminal state.
package call

import "time"

// Invite is one incoming call, normalized from the push payload.
type Invite struct {
	CallID     string    `json:"callId"`
	SessionID  string    `json:"sessionId"`
	CallerName string    `json:"callerName"`
	CallType   string    `json:"callType"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// State is the lifecycle position of a call.
type State string

const (
	StateNone            State = "none"
	StateRinging         State = "ringing"
	StateAcceptRequested State = "accept_requested"
	StateRejectRequested State = "reject_requested"
	StateTimedOut        State = "timed_out"
	StateAccepted        State = "accepted"
	StateFailed          State = "failed"
	StateRejected        State = "rejected"
)

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateAccepted, StateFailed, StateRejected, StateTimedOut:
		return true
	}
	return false
}

// validNext enumerates the allowed transitions. TimedOut doubles as both a
// pending and terminal state: the timer fires, cleanup runs, nothing follows.
var validNext = map[State][]State{
	StateNone:            {StateRinging},
	StateRinging:         {StateAcceptRequested, StateRejectRequested, StateTimedOut},
	StateAcceptRequested: {StateAccepted, StateFailed},
	StateRejectRequested: {StateRejected},
}

// CanTransition reports whether from → to is an allowed step.
func CanTransition(from, to State) bool {
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}
