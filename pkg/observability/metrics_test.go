package observability_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	hooks := m.Hooks()
	ctx := context.Background()
	hooks.OnRunStart(ctx, &domain.RunEvent{Workflow: "wf", Nodes: 3})
	hooks.OnNodeFinish(ctx, &domain.NodeEvent{NodeType: "data.source", Status: domain.StatusSucceeded, Fingerprint: "ab", Elapsed: 2 * time.Millisecond})
	hooks.OnNodeFinish(ctx, &domain.NodeEvent{NodeType: "data.filter", Status: domain.StatusSucceeded, Fingerprint: "cd", CacheHit: true})
	hooks.OnNodeFinish(ctx, &domain.NodeEvent{NodeType: "data.filter", Status: domain.StatusSkipped})

	n, err := testutil.GatherAndCount(reg, "weft_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expected := `
# HELP weft_cache_lookups_total Result cache lookups of succeeded nodes by result.
# TYPE weft_cache_lookups_total counter
weft_cache_lookups_total{result="hit"} 1
weft_cache_lookups_total{result="miss"} 1
# HELP weft_node_runs_total Node outcomes by node type and terminal status.
# TYPE weft_node_runs_total counter
weft_node_runs_total{status="skipped",type="data.filter"} 1
weft_node_runs_total{status="succeeded",type="data.filter"} 1
weft_node_runs_total{status="succeeded",type="data.source"} 1
# HELP weft_runs_total Total number of workflow executions.
# TYPE weft_runs_total counter
weft_runs_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"weft_cache_lookups_total", "weft_node_runs_total", "weft_runs_total"))

	// Only succeeded nodes are timed.
	count, err := testutil.GatherAndCount(reg, "weft_node_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	_, err = observability.NewMetrics(reg)
	assert.Error(t, err)
	assert.Panics(t, func() { observability.MustNewMetrics(reg) })
}

func TestMetrics_Unregistered(t *testing.T) {
	m, err := observability.NewMetrics(nil)
	require.NoError(t, err)
	assert.Len(t, m.Collectors(), 4)
	assert.NotPanics(t, func() {
		m.Hooks().OnRunStart(context.Background(), &domain.RunEvent{})
	})
}
