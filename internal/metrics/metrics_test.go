package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/astro5star/callshell/internal/bridge"
	"github.com/astro5star/callshell/internal/call"
	"github.com/astro5star/callshell/internal/push"
)

type staticProviders struct{}

func (staticProviders) Stats() call.Stats {
	return call.Stats{InvitesTotal: 7, Accepted: 3, Rejected: 2, TimedOut: 1, Failed: 1, RingingActive: true}
}

type staticPush struct{}

func (staticPush) Stats() push.Stats {
	return push.Stats{Received: 9, Malformed: 1, Generic: 2, Dropped: 0}
}

type staticBridge struct{}

func (staticBridge) Stats() bridge.Stats {
	return bridge.Stats{Delivered: 5, Failed: 1, PageAttached: true}
}

type staticRinger struct{}

func (staticRinger) Active() bool { return false }

func TestCollectorRegistersAndScrapes(t *testing.T) {
	c := NewCollector(staticProviders{}, staticPush{}, staticBridge{}, staticRinger{}, time.Now())
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	expected := `
# HELP callshell_invites_total Total incoming-call invites received
# TYPE callshell_invites_total counter
callshell_invites_total 7
# HELP callshell_call_ringing Whether a call is currently ringing (1=yes)
# TYPE callshell_call_ringing gauge
callshell_call_ringing 1
# HELP callshell_ringer_active Whether the ringer is currently sounding (1=yes)
# TYPE callshell_ringer_active gauge
callshell_ringer_active 0
# HELP callshell_page_attached Whether an embedded page is attached (1=yes)
# TYPE callshell_page_attached gauge
callshell_page_attached 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"callshell_invites_total", "callshell_call_ringing", "callshell_ringer_active", "callshell_page_attached"); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestCollectorToleratesNilProviders(t *testing.T) {
	c := NewCollector(nil, nil, nil, nil, time.Now())
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if n := testutil.CollectAndCount(c); n < 1 {
		t.Errorf("collected %d metrics, want at least uptime", n)
	}
}
