// Package metrics exposes ledger and process statistics as a Prometheus
// collector that queries its providers at scrape time.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voiceops/voiceops/internal/database/models"
)

// CallCounter returns call ledger counts grouped by status and direction.
type CallCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
	CountByDirection(ctx context.Context) (map[string]int64, error)
}

// Collector is a prometheus.Collector that gathers VoiceOps metrics at scrape time.
type Collector struct {
	calls     CallCounter
	startTime time.Time

	callsByStatusDesc *prometheus.Desc
	callsTotalDesc    *prometheus.Desc
	uptimeDesc        *prometheus.Desc
}

// NewCollector creates a new metrics collector. calls may be nil if the
// ledger is unavailable.
func NewCollector(calls CallCounter, startTime time.Time) *Collector {
	return &Collector{
		calls:     calls,
		startTime: startTime,

		callsByStatusDesc: prometheus.NewDesc(
			"voiceops_calls",
			"Call ledger records by lifecycle status",
			[]string{"status"}, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"voiceops_calls_total",
			"Total number of calls recorded in the ledger",
			[]string{"direction"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"voiceops_uptime_seconds",
			"Seconds since the VoiceOps process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.callsByStatusDesc
	ch <- c.callsTotalDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.calls != nil {
		statusCounts, err := c.calls.CountByStatus(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by status", "error", err)
		} else {
			for _, status := range []string{models.CallStatusRinging, models.CallStatusActive, models.CallStatusEnded} {
				ch <- prometheus.MustNewConstMetric(
					c.callsByStatusDesc, prometheus.GaugeValue,
					float64(statusCounts[status]), status,
				)
			}
		}

		directionCounts, err := c.calls.CountByDirection(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by direction", "error", err)
		} else {
			for _, dir := range []string{models.DirectionInbound, models.DirectionOutbound} {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(directionCounts[dir]), dir,
				)
			}
		}
	}

	// Process uptime.
	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
