package weft_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/nodes/builtin"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// aliases registers the short "source" and "filter" names over the built-in implementations.
func aliases(r *registry.Registry) error {
	for alias, typ := range map[string]string{"source": builtin.TypeSource, "filter": builtin.TypeFilter} {
		spec, impl, err := r.Resolve(typ)
		if err != nil {
			return err
		}
		spec.Type = alias
		if err := r.Register(spec, impl); err != nil {
			return err
		}
	}
	return nil
}

func newEngine(t *testing.T, root string, opts ...weft.Option) *weft.Engine {
	t.Helper()
	reg, err := registry.Load(builtin.Register, aliases)
	require.NoError(t, err)
	eng, err := weft.New(append([]weft.Option{weft.WithRegistry(reg), weft.WithCacheRoot(root)}, opts...)...)
	require.NoError(t, err)
	return eng
}

func workedExample(threshold float64) *domain.Workflow {
	return &domain.Workflow{
		Name: "worked-example",
		Nodes: []domain.NodeInstance{
			{ID: "Gen", Type: "source", Params: map[string]any{"seed": 42, "rows": 100}},
			{ID: "Filt", Type: "filter", Params: map[string]any{"threshold": threshold}},
		},
		Edges: []domain.Edge{
			{SourceNode: "Gen", SourcePort: "table", TargetNode: "Filt", TargetPort: "table"},
		},
	}
}

func TestEngine_WorkedExample(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, t.TempDir())

	run1, err := eng.ExecuteWorkflow(ctx, workedExample(0.5))
	require.NoError(t, err)
	assert.True(t, run1.Succeeded())
	assert.Equal(t, 2, run1.Invocations())

	run2, err := eng.ExecuteWorkflow(ctx, workedExample(0.5))
	require.NoError(t, err)
	assert.True(t, run2.Succeeded())
	assert.Equal(t, 0, run2.Invocations())
	assert.Equal(t, run1.Nodes["Filt"].Result.Outputs["table"].(*domain.Table).NumRows(),
		run2.Nodes["Filt"].Result.Outputs["table"].(*domain.Table).NumRows())

	run3, err := eng.ExecuteWorkflow(ctx, workedExample(0.7))
	require.NoError(t, err)
	assert.True(t, run3.Nodes["Gen"].CacheHit)
	assert.False(t, run3.Nodes["Gen"].Invoked)
	assert.True(t, run3.Nodes["Filt"].Invoked)
	assert.Equal(t, 1, run3.Invocations())

	stats := eng.CacheStats()
	assert.Equal(t, int64(3), stats.Writes)
	assert.Equal(t, int64(3), stats.MemoryHits)
}

func TestEngine_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	first := newEngine(t, root)
	run1, err := first.ExecuteWorkflow(ctx, workedExample(0.5))
	require.NoError(t, err)

	size, err := first.CacheSizeBytes(ctx)
	require.NoError(t, err)
	assert.Positive(t, size)

	entries, err := filepath.Glob(filepath.Join(root, "*", "*.wcache"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	second := newEngine(t, root)
	report, err := second.ExecuteWorkflow(ctx, workedExample(0.5))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Invocations())
	assert.Equal(t, int64(2), second.CacheStats().TierHits)
	for _, id := range []string{"Gen", "Filt"} {
		if diff := cmp.Diff(run1.Nodes[id].Result, report.Nodes[id].Result, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("%s: durable hit differs from first run (-want +got):\n%s", id, diff)
		}
	}

	require.NoError(t, second.ClearCache(ctx))
	size, err = second.CacheSizeBytes(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	report, err = second.ExecuteWorkflow(ctx, workedExample(0.5))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Invocations())
}

func TestEngine_CustomTier(t *testing.T) {
	ctx := context.Background()
	tier := memory.NewTier()
	eng := newEngine(t, t.TempDir(), weft.WithCacheTier(tier), weft.WithMemoryBudget(1, 0))

	_, err := eng.ExecuteWorkflow(ctx, workedExample(0.5))
	require.NoError(t, err)

	fps, err := tier.List(ctx)
	require.NoError(t, err)
	assert.Len(t, fps, 2)
	assert.Equal(t, 1, eng.CacheStats().Entries)
}

func TestEngine_ValidateAndReject(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, t.TempDir())

	assert.Empty(t, eng.ValidateWorkflow(ctx, workedExample(0.5)))

	cyclic := workedExample(0.5)
	cyclic.Nodes = append(cyclic.Nodes, domain.NodeInstance{ID: "Again", Type: "filter"})
	cyclic.Edges = append(cyclic.Edges,
		domain.Edge{SourceNode: "Filt", SourcePort: "table", TargetNode: "Again", TargetPort: "table"},
		domain.Edge{SourceNode: "Again", SourcePort: "table", TargetNode: "Filt", TargetPort: "table"},
	)
	issues := eng.ValidateWorkflow(ctx, cyclic)
	assert.NotEmpty(t, issues)

	report, err := eng.ExecuteWorkflow(ctx, cyclic)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, domain.ErrCycle)

	mismatch := &domain.Workflow{
		Nodes: []domain.NodeInstance{
			{ID: "data", Type: builtin.TypeSource},
			{ID: "stats", Type: builtin.TypeDescribe},
			{ID: "fit", Type: builtin.TypeLinear},
		},
		Edges: []domain.Edge{
			{SourceNode: "data", SourcePort: "table", TargetNode: "stats", TargetPort: "table"},
			{SourceNode: "stats", SourcePort: "metrics", TargetNode: "fit", TargetPort: "table"},
		},
	}
	_, err = eng.ExecuteWorkflow(ctx, mismatch)
	var serr *domain.StructuralError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{"fit", "stats"}, serr.NodeIDs())
}

func TestEngine_InvalidateNode(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, t.TempDir())

	_, err := eng.ExecuteWorkflow(ctx, workedExample(0.5))
	require.NoError(t, err)

	last, ok := eng.LastResult("Filt")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSucceeded, last.Status)

	require.NoError(t, eng.InvalidateNode(ctx, "Filt"))
	report, err := eng.ExecuteWorkflow(ctx, workedExample(0.5), weft.WithRunID("after-invalidate"))
	require.NoError(t, err)
	assert.Equal(t, "after-invalidate", report.RunID)
	assert.True(t, report.Nodes["Filt"].Invoked)
	assert.False(t, report.Nodes["Gen"].Invoked)

	report, err = eng.ExecuteWorkflow(ctx, workedExample(0.5), weft.WithForce("Gen"))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Invocations())
}

func TestEngine_ListNodeSpecs(t *testing.T) {
	eng := newEngine(t, t.TempDir())
	specs := eng.ListNodeSpecs()
	require.Len(t, specs, 9)

	types := make([]string, len(specs))
	for i, s := range specs {
		types[i] = s.Type
	}
	assert.Equal(t, []string{
		builtin.TypeSource, "source", builtin.TypeLinear, builtin.TypePredict,
		builtin.TypeDescribe, builtin.TypeColumn, builtin.TypeFilter, builtin.TypeSelect, "filter",
	}, types)

	linear, ok := eng.NodeSpec(builtin.TypeLinear)
	require.True(t, ok)
	assert.Equal(t, specs[2], linear)
	_, ok = eng.NodeSpec("missing")
	assert.False(t, ok)
}

func TestEngine_DefaultRegistry(t *testing.T) {
	eng, err := weft.New(weft.WithCacheRoot(t.TempDir()))
	require.NoError(t, err)
	assert.True(t, eng.Registry().Sealed())

	_, _, err = eng.Registry().Resolve(builtin.TypeLinear)
	assert.NoError(t, err)
}

func TestLoadWorkflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodes:
  - id: data
    type: data.source
    params: {rows: 50, seed: 3}
  - id: stats
    type: stats.describe
edges:
  - {source_node: data, source_port: table, target_node: stats, target_port: table}
`), 0o644))

	wf, err := weft.LoadWorkflow(path)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", wf.Name)

	eng := newEngine(t, t.TempDir())
	report, err := eng.ExecuteWorkflow(context.Background(), wf)
	require.NoError(t, err)
	require.True(t, report.Succeeded())
	assert.Equal(t, 50.0, report.Nodes["stats"].Result.Outputs["metrics"].(domain.Metrics)["rows"])
}
