package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffic-allocator/pkg/allocation"
	"github.com/traffic-allocator/pkg/catalog"
	"github.com/traffic-allocator/pkg/strategy"
)

func testRoutes() []catalog.RouteProfile {
	return []catalog.RouteProfile{
		{ID: "A", Lane: catalog.LaneEconomy, CostPerMillion: 10, LatencyP95MS: 1400, ReliabilityPct: 97, CapacityScore: 50},
		{ID: "B", Lane: catalog.LaneTurbo, CostPerMillion: 30, LatencyP95MS: 300, ReliabilityPct: 99, CapacityScore: 50},
	}
}

func laneWeights(eco, turbo float64) strategy.Strategy {
	return strategy.Strategy{ID: "w", Weights: map[catalog.Lane]float64{
		catalog.LaneEconomy: eco,
		catalog.LaneTurbo:   turbo,
	}}
}

func TestRunDeltas(t *testing.T) {
	c := New(allocation.NewEngine())

	baseline := laneWeights(0.2, 0.8)
	plan := laneWeights(0.8, 0.2)

	report, err := c.Run(testRoutes(), baseline, plan, 10, "")
	require.NoError(t, err)

	assert.InDelta(t, report.Baseline.TotalCost-report.Plan.TotalCost, report.CostSavings, 1e-9)
	assert.InDelta(t, report.Plan.AvgLatencyMS-report.Baseline.AvgLatencyMS, report.LatencyDeltaMS, 1e-9)
	assert.InDelta(t, report.Plan.ReliabilityPct-report.Baseline.ReliabilityPct, report.ReliabilityDeltaPct, 1e-9)

	// Shifting weight to economy must save cost and give up latency.
	assert.Greater(t, report.CostSavings, 0.0)
	assert.Greater(t, report.LatencyDeltaMS, 0.0)
}

func TestRunSharedExclusion(t *testing.T) {
	c := New(allocation.NewEngine())

	report, err := c.Run(testRoutes(), laneWeights(0.2, 0.8), laneWeights(0.8, 0.2), 10, "B")
	require.NoError(t, err)

	require.NotNil(t, report.Baseline.ExcludedRoute)
	require.NotNil(t, report.Plan.ExcludedRoute)
	assert.Equal(t, report.Baseline.ExcludedRoute, report.Plan.ExcludedRoute)

	// Only route A survives under both strategies, so the plans converge.
	assert.InDelta(t, 0.0, report.CostSavings, 1e-9)
	require.Len(t, report.Plan.Distribution, 1)
	assert.Equal(t, "A", report.Plan.Distribution[0].RouteID)
}

func TestRunSameStrategyZeroDeltas(t *testing.T) {
	c := New(allocation.NewEngine())
	w := laneWeights(0.5, 0.5)

	report, err := c.Run(testRoutes(), w, w, 10, "")
	require.NoError(t, err)

	assert.Zero(t, report.CostSavings)
	assert.Zero(t, report.LatencyDeltaMS)
	assert.Zero(t, report.ReliabilityDeltaPct)
	assert.Equal(t, report.Baseline, report.Plan)
}

func TestRunPropagatesValidationError(t *testing.T) {
	c := New(allocation.NewEngine())

	_, err := c.Run(testRoutes(), laneWeights(1, 1), laneWeights(1, 1), -5, "")
	require.Error(t, err)
	var verr *allocation.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRoundedConsistency(t *testing.T) {
	c := New(allocation.NewEngine())

	report, err := c.Run(testRoutes(), laneWeights(0.2, 0.8), laneWeights(0.8, 0.2), 12.345, "")
	require.NoError(t, err)

	rounded := report.Rounded()
	assert.InDelta(t, rounded.Baseline.TotalCost-rounded.Plan.TotalCost, rounded.CostSavings, 1e-12)
	assert.InDelta(t, rounded.Plan.AvgLatencyMS-rounded.Baseline.AvgLatencyMS, rounded.LatencyDeltaMS, 1e-12)
}
