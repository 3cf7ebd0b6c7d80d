// Package compare evaluates a selected strategy against the fixed baseline
// strategy over the same routes and failover scenario.
package compare

import (
	"github.com/traffic-allocator/pkg/allocation"
	"github.com/traffic-allocator/pkg/catalog"
	"github.com/traffic-allocator/pkg/strategy"
)

// Report pairs a baseline run with a plan run and their deltas. Positive
// CostSavings means the plan is cheaper than the baseline; LatencyDeltaMS and
// ReliabilityDeltaPct are plan minus baseline.
type Report struct {
	Baseline            allocation.Result `json:"baseline"`
	Plan                allocation.Result `json:"plan"`
	CostSavings         float64           `json:"cost_savings"`
	LatencyDeltaMS      float64           `json:"latency_delta_ms"`
	ReliabilityDeltaPct float64           `json:"reliability_delta_pct"`
}

type Comparator struct {
	engine *allocation.Engine
}

func New(engine *allocation.Engine) *Comparator {
	return &Comparator{engine: engine}
}

// Run allocates the same routes, volume and exclusion under both strategies.
// Using one route set for both runs keeps failover scenarios comparable.
func (c *Comparator) Run(routes []catalog.RouteProfile, baseline, plan strategy.Strategy, volumeMillions float64, excludedRouteID string) (Report, error) {
	base, err := c.engine.Allocate(allocation.Request{
		Routes:          routes,
		Strategy:        baseline,
		VolumeMillions:  volumeMillions,
		ExcludedRouteID: excludedRouteID,
	})
	if err != nil {
		return Report{}, err
	}

	planned, err := c.engine.Allocate(allocation.Request{
		Routes:          routes,
		Strategy:        plan,
		VolumeMillions:  volumeMillions,
		ExcludedRouteID: excludedRouteID,
	})
	if err != nil {
		return Report{}, err
	}

	return Report{
		Baseline:            base,
		Plan:                planned,
		CostSavings:         base.TotalCost - planned.TotalCost,
		LatencyDeltaMS:      planned.AvgLatencyMS - base.AvgLatencyMS,
		ReliabilityDeltaPct: planned.ReliabilityPct - base.ReliabilityPct,
	}, nil
}

// Rounded applies presentation rounding to both embedded results and
// recomputes the deltas from the rounded aggregates so the numbers a UI shows
// stay internally consistent.
func (r Report) Rounded() Report {
	out := r
	out.Baseline = r.Baseline.Rounded()
	out.Plan = r.Plan.Rounded()
	out.CostSavings = out.Baseline.TotalCost - out.Plan.TotalCost
	out.LatencyDeltaMS = out.Plan.AvgLatencyMS - out.Baseline.AvgLatencyMS
	out.ReliabilityDeltaPct = out.Plan.ReliabilityPct - out.Baseline.ReliabilityPct
	return out
}
