package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffic-allocator/pkg/catalog"
)

func TestBuiltins(t *testing.T) {
	r := NewRegistry()

	for _, id := range []string{"balanced", "cost-saver", "latency-first", "failsafe"} {
		s, ok := r.Get(id)
		require.True(t, ok, "missing builtin %q", id)
		assert.Equal(t, id, s.ID)
		for lane, w := range s.Weights {
			assert.True(t, lane.Valid())
			assert.GreaterOrEqual(t, w, 0.0)
		}
	}

	assert.Equal(t, BaselineID, r.Baseline().ID)
}

func TestGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("no-such-strategy")
	assert.False(t, ok)
}

func TestListOrdered(t *testing.T) {
	r := NewRegistry()
	list := r.List()
	require.Len(t, list, 4)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}

func writeStrategyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileMerge(t *testing.T) {
	r := NewRegistry()
	path := writeStrategyFile(t, `
strategies:
  - id: finops
    weights:
      economy: 0.8
      balanced: 0.15
      turbo: 0.05
  - id: balanced
    weights:
      economy: 0.5
      balanced: 0.5
`)

	require.NoError(t, r.LoadFile(path))

	finops, ok := r.Get("finops")
	require.True(t, ok)
	assert.InDelta(t, 0.8, finops.Weights[catalog.LaneEconomy], 1e-12)

	// Override replaced the builtin baseline's weights.
	assert.InDelta(t, 0.5, r.Baseline().Weights[catalog.LaneEconomy], 1e-12)
	assert.NotContains(t, r.Baseline().Weights, catalog.LaneTurbo)
}

func TestLoadFileRejectsUnknownLane(t *testing.T) {
	r := NewRegistry()
	path := writeStrategyFile(t, `
strategies:
  - id: warp
    weights:
      hyperspace: 1.0
`)

	err := r.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown lane")

	// Nothing merged on failure.
	_, ok := r.Get("warp")
	assert.False(t, ok)
}

func TestLoadFileRejectsNegativeWeight(t *testing.T) {
	r := NewRegistry()
	path := writeStrategyFile(t, `
strategies:
  - id: broken
    weights:
      economy: -0.2
`)

	err := r.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative weight")
}

func TestLoadFileMissing(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")))
}
