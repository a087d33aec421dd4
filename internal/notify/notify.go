// Package notify renders the two notification surfaces the agent owns: the
// incoming-call notification and the persistent keep-alive notification.
package notify

import (
	"context"
	"fmt"
	"time"
)

// Notification slots. Posting to an occupied slot replaces its contents.
const (
	SlotIncomingCall = 1001
	SlotKeepAlive    = 9999
)

// Channel identifiers. The call channel bypasses do-not-disturb, shows on
// the lock screen and carries the call category; the keep-alive channel is
// low priority and silent.
const (
	ChannelCalls     = "calls"
	ChannelKeepAlive = "keep_alive_channel"
)

// Action is an inline button on a notification.
type Action struct {
	Label   string `json:"label"`
	Intent  string `json:"intent"`
	CallID  string `json:"call_id,omitempty"`
	Destruc bool   `json:"destructive,omitempty"`
}

// Notification is the platform-independent description handed to a Sink.
type Notification struct {
	Slot       int           `json:"slot"`
	Channel    string        `json:"channel"`
	Title      string        `json:"title"`
	Body       string        `json:"body"`
	Category   string        `json:"category,omitempty"`
	Priority   string        `json:"priority,omitempty"`
	Ongoing    bool          `json:"ongoing,omitempty"`
	Insistent  bool          `json:"insistent,omitempty"`
	FullScreen string        `json:"full_screen,omitempty"`
	AutoCancel time.Duration `json:"timeout,omitempty"`
	Actions    []Action      `json:"actions,omitempty"`
}

// Sink posts notifications to the platform shell. Implementations must
// treat posting to an occupied slot as replacement.
type Sink interface {
	Post(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, slot int) error
}

// IncomingCall builds the full-intensity call notification for slot 1001.
// The title depends on the call type; the body carries the caller name.
// The notification self-cancels after the ringing ceiling so a missed call
// never lingers.
func IncomingCall(callID, callerName, callType string, ringTimeout time.Duration) Notification {
	return Notification{
		Slot:       SlotIncomingCall,
		Channel:    ChannelCalls,
		Title:      CallTitle(callType),
		Body:       callerName,
		Category:   "call",
		Priority:   "max",
		Ongoing:    true,
		Insistent:  true,
		FullScreen: fmt.Sprintf("call:%s", callID),
		AutoCancel: ringTimeout,
		Actions: []Action{
			{Label: "Accept", Intent: "accept", CallID: callID},
			{Label: "Reject", Intent: "reject", CallID: callID, Destruc: true},
		},
	}
}

// KeepAlive builds the persistent low-priority notification for slot 9999
// that anchors the agent in the foreground.
func KeepAlive() Notification {
	return Notification{
		Slot:     SlotKeepAlive,
		Channel:  ChannelKeepAlive,
		Title:    "Astro5Star",
		Body:     "Ready to receive calls",
		Priority: "min",
		Ongoing:  true,
	}
}

// Generic builds a default-channel notification for non-call pushes.
func Generic(slot int, title, body string) Notification {
	if title == "" {
		title = "Astro5Star"
	}
	return Notification{
		Slot:    slot,
		Channel: ChannelCalls,
		Title:   title,
		Body:    body,
	}
}

// CallTitle maps a call type to the heading shown on call surfaces.
func CallTitle(callType string) string {
	switch callType {
	case "audio":
		return "Incoming Voice Call"
	case "video":
		return "Incoming Video Call"
	default:
		return "Incoming Call"
	}
}
