package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value sums every sample of the named family.
func value(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
		return total
	}
	return 0
}

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.SetQueueDepth("math|beginner|2", 1)
	c.QuickMatchFormed("math", "beginner")
	c.Answer("session", true)
	c.Answer("session", false)
	c.BoardImproved("daily")

	assert.Equal(t, 1.0, value(t, reg, "falling_trivia_queue_depth"))
	assert.Equal(t, 1.0, value(t, reg, "falling_trivia_quick_matches_active"))
	assert.Equal(t, 2.0, value(t, reg, "falling_trivia_answers_total"))
	assert.Equal(t, 1.0, value(t, reg, "falling_trivia_leaderboard_improvements_total"))
}

func TestNilCollectorsAreNoops(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.SetQueueDepth("k", 1)
		c.Answer("quick_match", false)
		c.TournamentFinished("bracket", "completed")
		c.PersistenceFailed("profile_save")
	})
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
