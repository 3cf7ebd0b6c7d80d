// Package strategy holds the named allocation policies: per-lane weight sets
// that the engine normalizes over the lanes that actually have routes.
package strategy

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/traffic-allocator/pkg/catalog"
)

// Strategy is a named weighting policy. Weights are relative and need not sum
// to 1; the engine normalizes over active lanes.
type Strategy struct {
	ID      string                   `json:"id"`
	Weights map[catalog.Lane]float64 `json:"weights"`
}

// BaselineID names the fixed reference strategy used for savings comparisons.
const BaselineID = "balanced"

// Registry is the set of known strategies. Built-ins are always present; a
// YAML file can add to or override them at startup. Read-only after setup.
type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	r := &Registry{strategies: map[string]Strategy{}}
	for _, s := range builtins() {
		r.strategies[s.ID] = s
	}
	return r
}

func builtins() []Strategy {
	return []Strategy{
		{ID: "balanced", Weights: map[catalog.Lane]float64{
			catalog.LaneEconomy: 0.30, catalog.LaneBalanced: 0.45, catalog.LaneTurbo: 0.25,
		}},
		{ID: "cost-saver", Weights: map[catalog.Lane]float64{
			catalog.LaneEconomy: 0.70, catalog.LaneBalanced: 0.25, catalog.LaneTurbo: 0.05,
		}},
		{ID: "latency-first", Weights: map[catalog.Lane]float64{
			catalog.LaneEconomy: 0.05, catalog.LaneBalanced: 0.25, catalog.LaneTurbo: 0.70,
		}},
		{ID: "failsafe", Weights: map[catalog.Lane]float64{
			catalog.LaneEconomy: 0.10, catalog.LaneBalanced: 0.45, catalog.LaneTurbo: 0.45,
		}},
	}
}

func (r *Registry) Get(id string) (Strategy, bool) {
	s, ok := r.strategies[id]
	return s, ok
}

// Baseline returns the fixed reference strategy. It is always registered and
// cannot be removed, only reweighted via a strategy file.
func (r *Registry) Baseline() Strategy {
	return r.strategies[BaselineID]
}

// List returns all strategies ordered by id for stable output.
func (r *Registry) List() []Strategy {
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type strategyFile struct {
	Strategies []struct {
		ID      string             `yaml:"id"`
		Weights map[string]float64 `yaml:"weights"`
	} `yaml:"strategies"`
}

// LoadFile merges strategies from a YAML file over the built-ins. Entries
// with the same id replace the built-in; unknown lanes and negative weights
// are rejected before anything is merged.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("strategy file: %w", err)
	}

	var f strategyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("strategy file %s: %w", path, err)
	}

	loaded := make([]Strategy, 0, len(f.Strategies))
	for _, e := range f.Strategies {
		if e.ID == "" {
			return fmt.Errorf("strategy file %s: strategy with empty id", path)
		}
		if len(e.Weights) == 0 {
			return fmt.Errorf("strategy file %s: strategy %q has no weights", path, e.ID)
		}
		weights := make(map[catalog.Lane]float64, len(e.Weights))
		for lane, w := range e.Weights {
			l := catalog.Lane(lane)
			if !l.Valid() {
				return fmt.Errorf("strategy file %s: strategy %q references unknown lane %q", path, e.ID, lane)
			}
			if w < 0 {
				return fmt.Errorf("strategy file %s: strategy %q has negative weight for lane %q", path, e.ID, lane)
			}
			weights[l] = w
		}
		loaded = append(loaded, Strategy{ID: e.ID, Weights: weights})
	}

	for _, s := range loaded {
		r.strategies[s.ID] = s
	}
	return nil
}
