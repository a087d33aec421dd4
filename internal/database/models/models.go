// Package models contains the persistent data structures shared between the
// database layer and the rest of the agent.
package models

import "time"

// UserSession is the identity the embedded page persists through the bridge.
// It is written when the page reports a successful login and read when a cold
// start must bootstrap the page with enough context to resume a call.
type UserSession struct {
	UserID   string `json:"userId"`
	Token    string `json:"token"`
	UserType string `json:"userType"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`

	// SavedAt is stored alongside the session but is not part of the JSON
	// the page reads back.
	SavedAt time.Time `json:"-"`
}

// Valid reports whether the session carries enough identity to be useful:
// the page treats a session without both userId and token as absent.
func (s *UserSession) Valid() bool {
	return s != nil && s.UserID != "" && s.Token != ""
}

// CallRecord is one row of the device-local call log.
type CallRecord struct {
	ID         int64      `json:"id"`
	CallID     string     `json:"callId"`
	SessionID  string     `json:"sessionId"`
	CallerName string     `json:"callerName"`
	CallType   string     `json:"callType"`
	State      string     `json:"state"`    // ringing, accepted, rejected, timed_out, failed
	Delivery   string     `json:"delivery"` // api, socket, or empty when no bridge delivery happened
	ReceivedAt time.Time  `json:"receivedAt"`
	DecidedAt  *time.Time `json:"decidedAt,omitempty"`
}
