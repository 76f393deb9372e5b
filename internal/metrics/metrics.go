package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionCounter exposes the number of active call sessions.
type SessionCounter interface {
	Count() int
}

// MediaStatsProvider returns aggregate media-bridge statistics across all
// active calls.
type MediaStatsProvider interface {
	AggregateFramesForwarded() uint64
	AggregateFramesDropped() uint64
	AggregateFramesSuppressed() uint64
}

// OutcomeCounter returns finished-call counts grouped by outcome.
type OutcomeCounter interface {
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}

// Totals accumulates process-lifetime counters recorded at session end.
type Totals struct {
	bargeIns    atomic.Int64
	invocations atomic.Int64
	fallbacks   atomic.Int64
}

// RecordSessionEnd folds one finished session's counters into the totals.
func (t *Totals) RecordSessionEnd(bargeIns, invocations, fallbacks int) {
	t.bargeIns.Add(int64(bargeIns))
	t.invocations.Add(int64(invocations))
	t.fallbacks.Add(int64(fallbacks))
}

// Collector is a prometheus.Collector that gathers voxbridge metrics at
// scrape time.
type Collector struct {
	sessions  SessionCounter
	media     MediaStatsProvider
	outcomes  OutcomeCounter
	totals    *Totals
	startTime time.Time

	// Metric descriptors.
	activeSessionsDesc  *prometheus.Desc
	callsTotalDesc      *prometheus.Desc
	framesForwardedDesc *prometheus.Desc
	framesDroppedDesc   *prometheus.Desc
	framesGatedDesc     *prometheus.Desc
	bargeInsDesc        *prometheus.Desc
	invocationsDesc     *prometheus.Desc
	fallbacksDesc       *prometheus.Desc
	uptimeDesc          *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if
// unavailable.
func NewCollector(sessions SessionCounter, media MediaStatsProvider, outcomes OutcomeCounter, totals *Totals, startTime time.Time) *Collector {
	return &Collector{
		sessions:  sessions,
		media:     media,
		outcomes:  outcomes,
		totals:    totals,
		startTime: startTime,

		activeSessionsDesc: prometheus.NewDesc(
			"voxbridge_active_sessions",
			"Number of currently active call sessions",
			nil, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"voxbridge_calls_total",
			"Total number of finished calls by outcome",
			[]string{"outcome"}, nil,
		),
		framesForwardedDesc: prometheus.NewDesc(
			"voxbridge_media_frames_forwarded_total",
			"Total audio frames forwarded across all active bridges",
			nil, nil,
		),
		framesDroppedDesc: prometheus.NewDesc(
			"voxbridge_media_frames_dropped_total",
			"Total audio frames dropped across all active bridges",
			nil, nil,
		),
		framesGatedDesc: prometheus.NewDesc(
			"voxbridge_media_frames_suppressed_total",
			"Total assistant frames discarded while suppressed after barge-in",
			nil, nil,
		),
		bargeInsDesc: prometheus.NewDesc(
			"voxbridge_barge_ins_total",
			"Total caller barge-ins across finished sessions",
			nil, nil,
		),
		invocationsDesc: prometheus.NewDesc(
			"voxbridge_function_invocations_total",
			"Total model function invocations across finished sessions",
			nil, nil,
		),
		fallbacksDesc: prometheus.NewDesc(
			"voxbridge_fallback_responses_total",
			"Total fallback phrases spoken for slow or failed model turns",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"voxbridge_uptime_seconds",
			"Seconds since the voxbridge process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessionsDesc
	ch <- c.callsTotalDesc
	ch <- c.framesForwardedDesc
	ch <- c.framesDroppedDesc
	ch <- c.framesGatedDesc
	ch <- c.bargeInsDesc
	ch <- c.invocationsDesc
	ch <- c.fallbacksDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeSessionsDesc, prometheus.GaugeValue,
			float64(c.sessions.Count()),
		)
	}

	if c.outcomes != nil {
		counts, err := c.outcomes.CountByOutcome(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by outcome", "error", err)
		} else {
			for outcome, n := range counts {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(n), outcome,
				)
			}
		}
	}

	if c.media != nil {
		ch <- prometheus.MustNewConstMetric(
			c.framesForwardedDesc, prometheus.CounterValue,
			float64(c.media.AggregateFramesForwarded()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.framesDroppedDesc, prometheus.CounterValue,
			float64(c.media.AggregateFramesDropped()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.framesGatedDesc, prometheus.CounterValue,
			float64(c.media.AggregateFramesSuppressed()),
		)
	}

	if c.totals != nil {
		ch <- prometheus.MustNewConstMetric(
			c.bargeInsDesc, prometheus.CounterValue,
			float64(c.totals.bargeIns.Load()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.invocationsDesc, prometheus.CounterValue,
			float64(c.totals.invocations.Load()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.fallbacksDesc, prometheus.CounterValue,
			float64(c.totals.fallbacks.Load()),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
