// Package metrics exposes the call pipeline's counters as a prometheus
// collector, queried at scrape time.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/astro5star/callshell/internal/bridge"
	"github.com/astro5star/callshell/internal/call"
	"github.com/astro5star/callshell/internal/push"
)

// CallStatsProvider exposes the call manager's counters.
type CallStatsProvider interface {
	Stats() call.Stats
}

// PushStatsProvider exposes the push ingress counters.
type PushStatsProvider interface {
	Stats() push.Stats
}

// BridgeStatsProvider exposes the page bridge counters.
type BridgeStatsProvider interface {
	Stats() bridge.Stats
}

// RingerStateProvider reports whether the ringer is sounding.
type RingerStateProvider interface {
	Active() bool
}

// Collector is a prometheus.Collector that gathers callshell metrics at
// scrape time. Any provider may be nil if unavailable.
type Collector struct {
	calls     CallStatsProvider
	pushes    PushStatsProvider
	bridges   BridgeStatsProvider
	ringer    RingerStateProvider
	startTime time.Time

	invitesDesc      *prometheus.Desc
	callsDecidedDesc *prometheus.Desc
	ringingDesc      *prometheus.Desc
	ringerDesc       *prometheus.Desc
	pushesDesc       *prometheus.Desc
	bridgeDesc       *prometheus.Desc
	pageDesc         *prometheus.Desc
	uptimeDesc       *prometheus.Desc
}

// NewCollector creates a new metrics collector.
func NewCollector(calls CallStatsProvider, pushes PushStatsProvider, bridges BridgeStatsProvider, ringer RingerStateProvider, startTime time.Time) *Collector {
	return &Collector{
		calls:     calls,
		pushes:    pushes,
		bridges:   bridges,
		ringer:    ringer,
		startTime: startTime,

		invitesDesc: prometheus.NewDesc(
			"callshell_invites_total",
			"Total incoming-call invites received",
			nil, nil,
		),
		callsDecidedDesc: prometheus.NewDesc(
			"callshell_calls_total",
			"Total calls by final outcome",
			[]string{"outcome"}, nil,
		),
		ringingDesc: prometheus.NewDesc(
			"callshell_call_ringing",
			"Whether a call is currently ringing (1=yes)",
			nil, nil,
		),
		ringerDesc: prometheus.NewDesc(
			"callshell_ringer_active",
			"Whether the ringer is currently sounding (1=yes)",
			nil, nil,
		),
		pushesDesc: prometheus.NewDesc(
			"callshell_pushes_total",
			"Total push payloads by disposition",
			[]string{"disposition"}, nil,
		),
		bridgeDesc: prometheus.NewDesc(
			"callshell_bridge_actions_total",
			"Total bridge actions by result",
			[]string{"result"}, nil,
		),
		pageDesc: prometheus.NewDesc(
			"callshell_page_attached",
			"Whether an embedded page is attached (1=yes)",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"callshell_uptime_seconds",
			"Seconds since the callshell process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.invitesDesc
	ch <- c.callsDecidedDesc
	ch <- c.ringingDesc
	ch <- c.ringerDesc
	ch <- c.pushesDesc
	ch <- c.bridgeDesc
	ch <- c.pageDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.calls != nil {
		s := c.calls.Stats()
		ch <- prometheus.MustNewConstMetric(c.invitesDesc, prometheus.CounterValue, float64(s.InvitesTotal))
		for outcome, v := range map[string]uint64{
			"accepted":  s.Accepted,
			"rejected":  s.Rejected,
			"timed_out": s.TimedOut,
			"failed":    s.Failed,
			"replaced":  s.Replaced,
		} {
			ch <- prometheus.MustNewConstMetric(c.callsDecidedDesc, prometheus.CounterValue, float64(v), outcome)
		}
		ringing := 0.0
		if s.RingingActive {
			ringing = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.ringingDesc, prometheus.GaugeValue, ringing)
	}

	if c.ringer != nil {
		val := 0.0
		if c.ringer.Active() {
			val = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.ringerDesc, prometheus.GaugeValue, val)
	}

	if c.pushes != nil {
		s := c.pushes.Stats()
		for disposition, v := range map[string]uint64{
			"received":  s.Received,
			"malformed": s.Malformed,
			"generic":   s.Generic,
			"dropped":   s.Dropped,
		} {
			ch <- prometheus.MustNewConstMetric(c.pushesDesc, prometheus.CounterValue, float64(v), disposition)
		}
	}

	if c.bridges != nil {
		s := c.bridges.Stats()
		ch <- prometheus.MustNewConstMetric(c.bridgeDesc, prometheus.CounterValue, float64(s.Delivered), "delivered")
		ch <- prometheus.MustNewConstMetric(c.bridgeDesc, prometheus.CounterValue, float64(s.Failed), "failed")
		attached := 0.0
		if s.PageAttached {
			attached = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.pageDesc, prometheus.GaugeValue, attached)
	}

	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.CounterValue, time.Since(c.startTime).Seconds())
}
