// Package allocation implements the traffic allocation engine: given a route
// catalog, a strategy and a projected volume, it computes a normalized
// distribution of traffic across routes plus aggregate cost, latency and
// reliability projections.
//
// Allocate is a pure function of its request. It carries full precision
// internally; Result.Rounded applies presentation rounding once, at the edge.
package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/traffic-allocator/pkg/catalog"
	"github.com/traffic-allocator/pkg/strategy"
)

// Request is the engine's sole input. ExcludedRouteID simulates a failover:
// the matching route is removed and the rest renormalized. An id that matches
// nothing is a no-op exclusion, not an error.
type Request struct {
	Routes          []catalog.RouteProfile
	Strategy        strategy.Strategy
	VolumeMillions  float64
	ExcludedRouteID string
}

// Entry is one line of the resulting distribution. Routes with a zero
// computed share are omitted entirely, never emitted with share 0.
type Entry struct {
	RouteID        string  `json:"route_id"`
	Share          float64 `json:"share"`
	VolumeMillions float64 `json:"volume_millions"`
	Cost           float64 `json:"cost"`
}

// Result is recomputed on every call and never persisted. Whenever
// Distribution is non-empty the shares sum to 1 within floating tolerance.
type Result struct {
	TotalCost      float64               `json:"total_cost"`
	CostPerMillion float64               `json:"cost_per_million_units"`
	AvgLatencyMS   float64               `json:"avg_latency_ms"`
	ReliabilityPct float64               `json:"reliability_pct"`
	Distribution   []Entry               `json:"distribution"`
	ExcludedRoute  *catalog.RouteProfile `json:"excluded_route"`
}

// ValidationError marks a malformed request rejected before the algorithm
// runs. It is the engine's only error condition.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Engine computes allocations. Stateless; a single Engine is safe for
// concurrent use.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Allocate distributes the requested volume across the active routes.
//
// Lane weights are normalized over lanes that have at least one active route;
// within a lane, shares follow capacity scores (equal split when the lane's
// total capacity is zero). Degenerate inputs (no active routes, zero active
// lane weight, zero total raw share) yield a zeroed Result, never an error
// and never a NaN.
func (e *Engine) Allocate(req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	active := make([]catalog.RouteProfile, 0, len(req.Routes))
	var excluded *catalog.RouteProfile
	for _, r := range req.Routes {
		if req.ExcludedRouteID != "" && r.ID == req.ExcludedRouteID {
			rc := r
			excluded = &rc
			continue
		}
		active = append(active, r)
	}

	zeroed := Result{Distribution: []Entry{}, ExcludedRoute: excluded}
	if len(active) == 0 {
		return zeroed, nil
	}

	byLane := make(map[catalog.Lane][]catalog.RouteProfile, len(catalog.Lanes))
	capacityTotal := make(map[catalog.Lane]float64, len(catalog.Lanes))
	for _, r := range active {
		byLane[r.Lane] = append(byLane[r.Lane], r)
		capacityTotal[r.Lane] += r.CapacityScore
	}

	// Lanes with configured weight but no active routes contribute nothing.
	// Summed in fixed lane order: float addition is not associative, and map
	// iteration order would leak into every share at the last bit.
	var activeLaneWeight float64
	for _, lane := range catalog.Lanes {
		if len(byLane[lane]) > 0 {
			activeLaneWeight += req.Strategy.Weights[lane]
		}
	}
	if activeLaneWeight == 0 {
		return zeroed, nil
	}

	type scored struct {
		route catalog.RouteProfile
		raw   float64
	}

	// Iterate lanes in fixed order so repeated calls sum floats identically.
	raws := make([]scored, 0, len(active))
	var totalRaw float64
	for _, lane := range catalog.Lanes {
		routes := byLane[lane]
		if len(routes) == 0 {
			continue
		}
		laneShare := req.Strategy.Weights[lane] / activeLaneWeight
		for _, r := range routes {
			capacityRatio := 1 / float64(len(routes))
			if capacityTotal[lane] > 0 {
				capacityRatio = r.CapacityScore / capacityTotal[lane]
			}
			raw := laneShare * capacityRatio
			raws = append(raws, scored{route: r, raw: raw})
			totalRaw += raw
		}
	}
	if totalRaw == 0 {
		return zeroed, nil
	}

	var (
		entries        = make([]Entry, 0, len(raws))
		totalCost      float64
		avgLatencyMS   float64
		reliabilityPct float64
	)
	for _, s := range raws {
		share := s.raw / totalRaw
		if share == 0 {
			continue
		}
		volume := share * req.VolumeMillions
		cost := volume * s.route.CostPerMillion
		totalCost += cost
		avgLatencyMS += share * float64(s.route.LatencyP95MS)
		reliabilityPct += share * s.route.ReliabilityPct
		entries = append(entries, Entry{
			RouteID:        s.route.ID,
			Share:          share,
			VolumeMillions: volume,
			Cost:           cost,
		})
	}

	var costPerMillion float64
	if req.VolumeMillions > 0 {
		costPerMillion = totalCost / req.VolumeMillions
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Share != entries[j].Share {
			return entries[i].Share > entries[j].Share
		}
		return entries[i].RouteID < entries[j].RouteID
	})

	return Result{
		TotalCost:      totalCost,
		CostPerMillion: costPerMillion,
		AvgLatencyMS:   avgLatencyMS,
		ReliabilityPct: reliabilityPct,
		Distribution:   entries,
		ExcludedRoute:  excluded,
	}, nil
}

func validate(req Request) error {
	if !isFinite(req.VolumeMillions) || req.VolumeMillions < 0 {
		return validationErrorf("volume_millions must be a finite non-negative number, got %v", req.VolumeMillions)
	}
	for lane, w := range req.Strategy.Weights {
		if !lane.Valid() {
			return validationErrorf("strategy %q references unknown lane %q", req.Strategy.ID, lane)
		}
		if !isFinite(w) || w < 0 {
			return validationErrorf("strategy %q has invalid weight %v for lane %q", req.Strategy.ID, w, lane)
		}
	}
	seen := make(map[string]struct{}, len(req.Routes))
	for _, r := range req.Routes {
		if r.ID == "" {
			return validationErrorf("route with empty id")
		}
		if _, dup := seen[r.ID]; dup {
			// A duplicate id would silently double-allocate its share.
			return validationErrorf("duplicate route id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if !r.Lane.Valid() {
			return validationErrorf("route %q has unknown lane %q", r.ID, r.Lane)
		}
		if !isFinite(r.CostPerMillion) || r.CostPerMillion < 0 {
			return validationErrorf("route %q has invalid cost %v", r.ID, r.CostPerMillion)
		}
		if r.LatencyP95MS <= 0 {
			return validationErrorf("route %q has non-positive latency %d", r.ID, r.LatencyP95MS)
		}
		if !isFinite(r.ReliabilityPct) || r.ReliabilityPct < 0 || r.ReliabilityPct > 100 {
			return validationErrorf("route %q has reliability %v outside [0,100]", r.ID, r.ReliabilityPct)
		}
		if !isFinite(r.CapacityScore) || r.CapacityScore < 0 {
			return validationErrorf("route %q has invalid capacity %v", r.ID, r.CapacityScore)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Rounded returns a copy with presentation rounding applied: two decimals for
// currency and percentages, whole milliseconds for latency, four decimals for
// shares. The engine never rounds internally so repeated comparisons do not
// compound error.
func (r Result) Rounded() Result {
	out := r
	out.TotalCost = round2(r.TotalCost)
	out.CostPerMillion = round2(r.CostPerMillion)
	out.AvgLatencyMS = math.Round(r.AvgLatencyMS)
	out.ReliabilityPct = round2(r.ReliabilityPct)
	out.Distribution = make([]Entry, len(r.Distribution))
	for i, e := range r.Distribution {
		e.Share = math.Round(e.Share*10000) / 10000
		e.VolumeMillions = round2(e.VolumeMillions)
		e.Cost = round2(e.Cost)
		out.Distribution[i] = e
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
