package notify

import (
	"testing"
	"time"
)

func TestIncomingCallTitles(t *testing.T) {
	tests := []struct {
		callType string
		want     string
	}{
		{"audio", "Incoming Voice Call"},
		{"video", "Incoming Video Call"},
		{"chat", "Incoming Call"},
		{"", "Incoming Call"},
	}
	for _, tt := range tests {
		n := IncomingCall("c1", "Asha", tt.callType, time.Minute)
		if n.Title != tt.want {
			t.Errorf("callType %q: title = %q, want %q", tt.callType, n.Title, tt.want)
		}
	}
}

func TestIncomingCallShape(t *testing.T) {
	n := IncomingCall("call-7", "Asha", "video", time.Minute)

	if n.Slot != SlotIncomingCall {
		t.Errorf("slot = %d, want %d", n.Slot, SlotIncomingCall)
	}
	if n.Channel != ChannelCalls {
		t.Errorf("channel = %q, want %q", n.Channel, ChannelCalls)
	}
	if n.Category != "call" || n.Priority != "max" || !n.Ongoing || !n.Insistent {
		t.Errorf("call notification not full intensity: %+v", n)
	}
	if n.AutoCancel != time.Minute {
		t.Errorf("auto cancel = %v, want 1m", n.AutoCancel)
	}
	if n.FullScreen != "call:call-7" {
		t.Errorf("full screen = %q", n.FullScreen)
	}
	if len(n.Actions) != 2 || n.Actions[0].Intent != "accept" || n.Actions[1].Intent != "reject" {
		t.Errorf("actions = %+v", n.Actions)
	}
	for _, a := range n.Actions {
		if a.CallID != "call-7" {
			t.Errorf("action %q missing call id", a.Intent)
		}
	}
}

func TestKeepAliveShape(t *testing.T) {
	n := KeepAlive()
	if n.Slot != SlotKeepAlive {
		t.Errorf("slot = %d, want %d", n.Slot, SlotKeepAlive)
	}
	if n.Channel != ChannelKeepAlive {
		t.Errorf("channel = %q, want %q", n.Channel, ChannelKeepAlive)
	}
	if !n.Ongoing || n.Priority != "min" {
		t.Errorf("keep-alive should be ongoing and min priority: %+v", n)
	}
	if n.Body != "Ready to receive calls" {
		t.Errorf("body = %q", n.Body)
	}
}
