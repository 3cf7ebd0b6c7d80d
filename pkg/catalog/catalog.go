// Package catalog builds deterministic route profiles from provider ids.
//
// The same provider id always maps to the same lane and numeric profile, so
// repeated simulations over one session stay comparable. There is no external
// randomness and no I/O: everything derives from an FNV-1a hash of the id.
package catalog

import (
	"hash/fnv"
	"math"
)

type Lane string

const (
	LaneEconomy  Lane = "economy"
	LaneBalanced Lane = "balanced"
	LaneTurbo    Lane = "turbo"
)

// Lanes lists all lanes in cost order (cheapest first).
var Lanes = []Lane{LaneEconomy, LaneBalanced, LaneTurbo}

// Valid reports whether l is one of the three known lanes.
func (l Lane) Valid() bool {
	return l == LaneEconomy || l == LaneBalanced || l == LaneTurbo
}

// RouteProfile is a candidate destination for traffic. Immutable once built;
// the allocation engine never mutates it.
type RouteProfile struct {
	ID             string  `json:"id"`
	Lane           Lane    `json:"lane"`
	CostPerMillion float64 `json:"cost_per_million_units"`
	LatencyP95MS   int     `json:"latency_p95_ms"`
	ReliabilityPct float64 `json:"reliability_pct"`
	CapacityScore  float64 `json:"capacity_score"`
}

// laneBaseline holds the per-lane reference numbers that per-provider jitter
// perturbs. Lanes are ordered economy < balanced < turbo by cost and the
// inverse by latency; the exact values are tuning, not contract.
type laneBaseline struct {
	costPerMillion float64
	latencyP95MS   float64
	reliabilityPct float64
	capacityScore  float64
}

var baselines = map[Lane]laneBaseline{
	LaneEconomy:  {costPerMillion: 4.20, latencyP95MS: 1350, reliabilityPct: 97.1, capacityScore: 68},
	LaneBalanced: {costPerMillion: 11.50, latencyP95MS: 720, reliabilityPct: 98.4, capacityScore: 52},
	LaneTurbo:    {costPerMillion: 28.00, latencyP95MS: 310, reliabilityPct: 99.3, capacityScore: 38},
}

// Lane bucket thresholds over the hash percentile in [0,100).
const (
	economyUpperPct  = 38
	balancedUpperPct = 74
)

// Build maps provider ids to route profiles. Total over any id list; an empty
// list yields an empty catalog. Duplicate ids produce duplicate profiles and
// are the caller's problem (the engine rejects them).
func Build(providerIDs []string) []RouteProfile {
	routes := make([]RouteProfile, 0, len(providerIDs))
	for _, id := range providerIDs {
		routes = append(routes, buildRoute(id))
	}
	return routes
}

func buildRoute(id string) RouteProfile {
	lane := laneFor(id)
	base := baselines[lane]

	rel := base.reliabilityPct + (unit(id, "reliability")-0.5)*1.6
	if rel > 100 {
		rel = 100
	}
	if rel < 0 {
		rel = 0
	}

	latency := int(math.Round(base.latencyP95MS * spread(id, "latency", 0.20)))
	if latency < 1 {
		latency = 1
	}

	return RouteProfile{
		ID:             id,
		Lane:           lane,
		CostPerMillion: base.costPerMillion * spread(id, "cost", 0.25),
		LatencyP95MS:   latency,
		ReliabilityPct: rel,
		CapacityScore:  base.capacityScore * spread(id, "capacity", 0.35),
	}
}

func laneFor(id string) Lane {
	pct := hash32(id) % 100
	switch {
	case pct < economyUpperPct:
		return LaneEconomy
	case pct < balancedUpperPct:
		return LaneBalanced
	default:
		return LaneTurbo
	}
}

// spread returns a multiplier in [1-s, 1+s) derived from id and salt.
func spread(id, salt string, s float64) float64 {
	return 1 - s + 2*s*unit(id, salt)
}

// unit returns a deterministic value in [0,1) keyed on id and salt.
func unit(id, salt string) float64 {
	return float64(hash32(id+":"+salt)%10000) / 10000
}

// hash32 computes a 32-bit FNV-1a hash of s. It is the only source of
// pseudo-randomness in the catalog.
func hash32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
