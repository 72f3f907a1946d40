// Package monitoring gathers investigation volume, cost, and threat metrics
// and raises webhook alerts when thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/scamlens/scamlens/internal/model"
	"github.com/scamlens/scamlens/internal/store"
)

// MetricsSnapshot holds a point-in-time view of investigation activity.
type MetricsSnapshot struct {
	// Investigation metrics (within lookback window).
	Total         int     `json:"total"`
	Critical      int     `json:"critical"`
	High          int     `json:"high"`
	Medium        int     `json:"medium"`
	Low           int     `json:"low"`
	CriticalRate  float64 `json:"critical_rate"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	AvgConfidence float64 `json:"avg_confidence"`

	// InFlight is the number of investigations currently executing.
	InFlight int `json:"in_flight"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// InFlightCounter reports how many investigations are currently executing.
type InFlightCounter interface {
	InFlightCount() int
}

// Collector gathers metrics from the store and the engine's in-flight map.
type Collector struct {
	store    store.Store
	inflight InFlightCounter
}

// NewCollector creates a metrics collector.
func NewCollector(st store.Store, inflight InFlightCounter) *Collector {
	return &Collector{store: st, inflight: inflight}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}
	if c.inflight != nil {
		snap.InFlight = c.inflight.InFlightCount()
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	results, err := c.store.ListInvestigations(ctx, store.ListFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list investigations")
	}

	snap.Total = len(results)
	var sumConfidence float64
	for _, r := range results {
		switch r.ThreatLevel {
		case model.ThreatCritical:
			snap.Critical++
		case model.ThreatHigh:
			snap.High++
		case model.ThreatMedium:
			snap.Medium++
		default:
			snap.Low++
		}
		snap.TotalCostUSD += r.CostUSD
		sumConfidence += r.Confidence
	}
	if snap.Total > 0 {
		snap.CriticalRate = float64(snap.Critical) / float64(snap.Total)
		snap.AvgConfidence = sumConfidence / float64(snap.Total)
	}

	return snap, nil
}
