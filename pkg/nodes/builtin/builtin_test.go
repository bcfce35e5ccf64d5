package builtin_test

import (
	"context"
	"testing"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/nodes/builtin"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Load(builtin.Register)
	require.NoError(t, err)
	return reg
}

// run invokes one node type directly with merged params.
func run(t *testing.T, typ string, params map[string]any, inputs map[string]any) *domain.NodeResult {
	t.Helper()
	spec, impl, err := catalog(t).Resolve(typ)
	require.NoError(t, err)
	require.Empty(t, domain.ValidateParams(params, spec))

	res, err := impl.Run(context.Background(), &domain.NodeContext{
		NodeID: "n",
		Inputs: inputs,
		Params: domain.MergeParams(spec, params),
		Logger: logging.NewNop(),
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	if !res.Failed() {
		require.NoError(t, domain.CheckOutputs(spec, res))
	}
	return res
}

func sample() *domain.Table {
	return domain.NewTable(
		domain.IntColumn("id", []int64{0, 1, 2, 3}),
		domain.FloatColumn("x0", []float64{0.1, 0.6, 0.4, 0.9}),
		domain.StringColumn("tag", []string{"a", "b", "c", "d"}),
	)
}

func TestRegister(t *testing.T) {
	reg := catalog(t)
	assert.Equal(t, 7, reg.Len())
	assert.Equal(t, []string{"data", "model", "stats", "transform"}, reg.Categories())

	err := builtin.Register(reg)
	assert.ErrorIs(t, err, domain.ErrRegistrySealed)
}

func TestSource_Deterministic(t *testing.T) {
	params := map[string]any{"rows": 20, "features": 3, "seed": 7}
	a := run(t, builtin.TypeSource, params, nil)
	b := run(t, builtin.TypeSource, params, nil)
	assert.Equal(t, a.Outputs["table"], b.Outputs["table"])

	table := a.Outputs["table"].(*domain.Table)
	assert.Equal(t, 20, table.NumRows())
	assert.Equal(t, []string{"id", "x0", "x1", "x2", "y"}, table.ColumnNames())

	other := run(t, builtin.TypeSource, map[string]any{"rows": 20, "features": 3, "seed": 8}, nil)
	assert.NotEqual(t, a.Outputs["table"], other.Outputs["table"])
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]any
		wantIDs []int64
	}{
		{"default gt", map[string]any{}, []int64{1, 3}},
		{"le", map[string]any{"op": "le", "threshold": 0.4}, []int64{0, 2}},
		{"ne", map[string]any{"op": "ne", "threshold": 0.6}, []int64{0, 2, 3}},
		{"id column", map[string]any{"column": "id", "op": "ge", "threshold": 2}, []int64{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, builtin.TypeFilter, tt.params, map[string]any{"table": sample()})
			require.False(t, res.Failed(), res.Error)
			out := res.Outputs["table"].(*domain.Table)
			ids, _ := out.Column("id")
			assert.Equal(t, tt.wantIDs, ids.Ints)
		})
	}

	t.Run("unknown column", func(t *testing.T) {
		res := run(t, builtin.TypeFilter, map[string]any{"column": "nope"}, map[string]any{"table": sample()})
		assert.True(t, res.Failed())
		assert.Contains(t, res.Error, "nope")
	})

	t.Run("non numeric column", func(t *testing.T) {
		res := run(t, builtin.TypeFilter, map[string]any{"column": "tag"}, map[string]any{"table": sample()})
		assert.True(t, res.Failed())
	})
}

func TestSelect(t *testing.T) {
	res := run(t, builtin.TypeSelect, map[string]any{"columns": "tag, id"}, map[string]any{"table": sample()})
	require.False(t, res.Failed())
	assert.Equal(t, []string{"tag", "id"}, res.Outputs["table"].(*domain.Table).ColumnNames())

	res = run(t, builtin.TypeSelect, map[string]any{"columns": "tag", "mode": "exclude"}, map[string]any{"table": sample()})
	require.False(t, res.Failed())
	assert.Equal(t, []string{"id", "x0"}, res.Outputs["table"].(*domain.Table).ColumnNames())

	res = run(t, builtin.TypeSelect, map[string]any{"columns": "missing"}, map[string]any{"table": sample()})
	assert.True(t, res.Failed())
}

func TestColumn(t *testing.T) {
	res := run(t, builtin.TypeColumn, map[string]any{"column": "x0"}, map[string]any{"table": sample()})
	require.False(t, res.Failed())
	assert.Equal(t, &domain.Series{Name: "x0", Values: []float64{0.1, 0.6, 0.4, 0.9}}, res.Outputs["series"])

	res = run(t, builtin.TypeColumn, map[string]any{"column": "tag"}, map[string]any{"table": sample()})
	assert.True(t, res.Failed())
}

func TestDescribe(t *testing.T) {
	res := run(t, builtin.TypeDescribe, nil, map[string]any{"table": sample()})
	m := res.Outputs["metrics"].(domain.Metrics)

	assert.Equal(t, 4.0, m["rows"])
	assert.Equal(t, 3.0, m["columns"])
	assert.InDelta(t, 0.5, m["x0.mean"], 1e-9)
	assert.InDelta(t, 0.1, m["x0.min"], 1e-9)
	assert.InDelta(t, 0.9, m["x0.max"], 1e-9)
	assert.InDelta(t, 0.3366501646, m["x0.std"], 1e-9)
	assert.NotContains(t, m, "tag.mean")
}

func TestLinearAndPredict(t *testing.T) {
	table := domain.NewTable(
		domain.FloatColumn("a", []float64{0, 1, 2, 3, 4, 5}),
		domain.FloatColumn("b", []float64{1, 0, 1, 0, 1, 0}),
		domain.FloatColumn("y", []float64{1, 1, 5, 5, 9, 9}), // y = 2a + 2b - 1
	)

	fit := run(t, builtin.TypeLinear, nil, map[string]any{"table": table})
	require.False(t, fit.Failed(), fit.Error)

	blob := fit.Outputs["model"].(*domain.Blob)
	assert.Equal(t, builtin.LinearModelTag, blob.Tag)
	model, err := builtin.DecodeLinearModel(blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, model.Features)
	assert.InDelta(t, 2.0, model.Coef[0], 1e-9)
	assert.InDelta(t, 2.0, model.Coef[1], 1e-9)
	assert.InDelta(t, -1.0, model.Intercept, 1e-9)
	assert.InDelta(t, 1.0, fit.Outputs["metrics"].(domain.Metrics)["r2"], 1e-9)

	pred := run(t, builtin.TypePredict, nil, map[string]any{"model": blob, "table": table})
	require.False(t, pred.Failed(), pred.Error)
	out := pred.Outputs["table"].(*domain.Table)
	col, ok := out.Column("prediction")
	require.True(t, ok)
	for i, want := range []float64{1, 1, 5, 5, 9, 9} {
		assert.InDelta(t, want, col.Floats[i], 1e-9)
	}

	t.Run("collinear features", func(t *testing.T) {
		dup := domain.NewTable(
			domain.FloatColumn("a", []float64{1, 2, 3, 4}),
			domain.FloatColumn("b", []float64{2, 4, 6, 8}),
			domain.FloatColumn("y", []float64{1, 2, 3, 4}),
		)
		res := run(t, builtin.TypeLinear, nil, map[string]any{"table": dup})
		assert.True(t, res.Failed())
		assert.Contains(t, res.Error, "collinear")

		ridged := run(t, builtin.TypeLinear, map[string]any{"ridge": 0.5}, map[string]any{"table": dup})
		assert.False(t, ridged.Failed(), ridged.Error)
	})

	t.Run("sample weights", func(t *testing.T) {
		noisy := domain.NewTable(
			domain.FloatColumn("a", []float64{0, 1, 2, 3, 4, 5, 6}),
			domain.FloatColumn("b", []float64{1, 0, 1, 0, 1, 0, 1}),
			domain.FloatColumn("y", []float64{1, 1, 5, 5, 9, 9, 100}),
		)
		weights := &domain.Series{Name: "w", Values: []float64{1, 1, 1, 1, 1, 1, 0}}

		res := run(t, builtin.TypeLinear, nil, map[string]any{"table": noisy, "weights": weights})
		require.False(t, res.Failed(), res.Error)
		m, err := builtin.DecodeLinearModel(res.Outputs["model"].(*domain.Blob))
		require.NoError(t, err)
		assert.InDelta(t, 2.0, m.Coef[0], 1e-9)
		assert.InDelta(t, 2.0, m.Coef[1], 1e-9)
		assert.InDelta(t, -1.0, m.Intercept, 1e-9)
		assert.InDelta(t, 0.0, res.Outputs["metrics"].(domain.Metrics)["rmse"], 1e-9)

		unweighted := run(t, builtin.TypeLinear, nil, map[string]any{"table": noisy})
		require.False(t, unweighted.Failed(), unweighted.Error)
		assert.Greater(t, unweighted.Outputs["metrics"].(domain.Metrics)["rmse"], 1.0)

		for name, bad := range map[string][]float64{
			"short":    {1, 1},
			"negative": {1, 1, 1, 1, 1, 1, -1},
			"zero sum": {0, 0, 0, 0, 0, 0, 0},
		} {
			res := run(t, builtin.TypeLinear, nil, map[string]any{"table": noisy, "weights": &domain.Series{Values: bad}})
			assert.True(t, res.Failed(), name)
		}
	})

	t.Run("foreign blob", func(t *testing.T) {
		res := run(t, builtin.TypePredict, nil, map[string]any{
			"model": &domain.Blob{Tag: "other", Data: []byte{1}},
			"table": table,
		})
		assert.True(t, res.Failed())
	})
}

func TestPipeline_Incremental(t *testing.T) {
	ctx := context.Background()
	engine := runtime.NewEngine(catalog(t), cache.New(memory.NewTier()))

	build := func(threshold float64) *domain.Workflow {
		return &domain.Workflow{
			Name: "regression",
			Nodes: []domain.NodeInstance{
				{ID: "data", Type: builtin.TypeSource, Params: map[string]any{"rows": 200, "noise": 0.0}},
				{ID: "fit", Type: builtin.TypeLinear},
				{ID: "subset", Type: builtin.TypeFilter, Params: map[string]any{"threshold": threshold}},
				{ID: "predict", Type: builtin.TypePredict},
				{ID: "stats", Type: builtin.TypeDescribe},
			},
			Edges: []domain.Edge{
				{SourceNode: "data", SourcePort: "table", TargetNode: "fit", TargetPort: "table"},
				{SourceNode: "data", SourcePort: "table", TargetNode: "subset", TargetPort: "table"},
				{SourceNode: "fit", SourcePort: "model", TargetNode: "predict", TargetPort: "model"},
				{SourceNode: "subset", SourcePort: "table", TargetNode: "predict", TargetPort: "table"},
				{SourceNode: "predict", SourcePort: "table", TargetNode: "stats", TargetPort: "table"},
			},
		}
	}

	first, err := engine.Execute(ctx, build(0.5))
	require.NoError(t, err)
	require.True(t, first.Succeeded(), first.Nodes)
	assert.Equal(t, 5, first.Invocations())

	again, err := engine.Execute(ctx, build(0.5))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Invocations())

	// Cached model blobs and tables must still drive downstream nodes.
	changed, err := engine.Execute(ctx, build(0.2))
	require.NoError(t, err)
	require.True(t, changed.Succeeded())
	assert.Equal(t, 3, changed.Invocations())
	assert.True(t, changed.Nodes["fit"].CacheHit)
	assert.True(t, changed.Nodes["data"].CacheHit)

	m := changed.Nodes["stats"].Result.Outputs["metrics"].(domain.Metrics)
	assert.InDelta(t, m["y.mean"], m["prediction.mean"], 1e-6)
}
