package runtime_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/stretchr/testify/require"
)

// calls counts invocations per node id.
type calls struct {
	mu sync.Mutex
	n  map[string]int
}

func newCalls() *calls { return &calls{n: make(map[string]int)} }

func (c *calls) hit(id string) {
	c.mu.Lock()
	c.n[id]++
	c.mu.Unlock()
}

func (c *calls) get(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[id]
}

func (c *calls) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := 0
	for _, v := range c.n {
		t += v
	}
	return t
}

func (c *calls) reset() {
	c.mu.Lock()
	c.n = make(map[string]int)
	c.mu.Unlock()
}

// fixture holds the test registry, its invocation counters and hooks into blocking nodes.
type fixture struct {
	calls   *calls
	reg     *registry.Registry
	release chan struct{}
	started chan string
	active  atomic.Int32
	peak    atomic.Int32
}

func tablePort(name string, required bool) domain.PortSpec {
	return domain.PortSpec{Name: name, Kind: domain.PortTable, Label: name, Required: required}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		calls:   newCalls(),
		release: make(chan struct{}),
		started: make(chan string, 64),
	}

	reg := registry.NewRegistry()
	must := func(spec domain.NodeSpec, fn domain.RunnableFunc) {
		require.NoError(t, reg.Register(spec, fn))
	}

	must(domain.NodeSpec{
		Type: "source", Label: "Source", Category: "data",
		Outputs: []domain.PortSpec{tablePort("table", false)},
		Params: []domain.ParamSpec{
			{Name: "seed", Kind: domain.ParamInteger, Default: 0},
			{Name: "rows", Kind: domain.ParamInteger, Default: 10, Min: domain.Bound(0)},
		},
	}, func(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
		f.calls.hit(nc.NodeID)
		var p struct {
			Seed int64 `mapstructure:"seed"`
			Rows int   `mapstructure:"rows"`
		}
		if err := nc.DecodeParams(&p); err != nil {
			return nil, err
		}
		rng := rand.New(rand.NewSource(p.Seed))
		xs := make([]float64, p.Rows)
		ids := make([]int64, p.Rows)
		for i := range xs {
			xs[i] = rng.Float64()
			ids[i] = int64(i)
		}
		tbl := domain.NewTable(domain.IntColumn("id", ids), domain.FloatColumn("x", xs))
		return &domain.NodeResult{
			Outputs:  map[string]any{"table": tbl},
			Metadata: map[string]any{"rows": p.Rows},
		}, nil
	})

	must(domain.NodeSpec{
		Type: "filter", Label: "Filter", Category: "transform",
		Inputs:  []domain.PortSpec{tablePort("table", true)},
		Outputs: []domain.PortSpec{tablePort("table", false)},
		Params: []domain.ParamSpec{
			{Name: "threshold", Kind: domain.ParamNumber, Default: 0.5, Min: domain.Bound(0), Max: domain.Bound(1)},
		},
	}, func(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
		f.calls.hit(nc.NodeID)
		in, err := nc.Table("table")
		if err != nil {
			return nil, err
		}
		threshold, _ := domain.ToFloat(nc.Params["threshold"])
		x, ok := in.Column("x")
		if !ok {
			return domain.ErrorResult("missing column x"), nil
		}
		var keep []int
		for i := 0; i < x.Len(); i++ {
			if v, _ := x.Float(i); v > threshold {
				keep = append(keep, i)
			}
		}
		return &domain.NodeResult{Outputs: map[string]any{"table": in.Take(keep)}}, nil
	})

	must(domain.NodeSpec{
		Type: "describe", Label: "Describe", Category: "stats",
		Inputs:  []domain.PortSpec{tablePort("table", true)},
		Outputs: []domain.PortSpec{{Name: "metrics", Kind: domain.PortMetrics}},
	}, func(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
		f.calls.hit(nc.NodeID)
		in, err := nc.Table("table")
		if err != nil {
			return nil, err
		}
		return &domain.NodeResult{Outputs: map[string]any{
			"metrics": domain.Metrics{"rows": float64(in.NumRows())},
		}}, nil
	})

	must(domain.NodeSpec{
		Type: "report", Label: "Report", Category: "stats",
		Inputs:  []domain.PortSpec{{Name: "metrics", Kind: domain.PortMetrics, Required: true}},
		Outputs: []domain.PortSpec{{Name: "text", Kind: domain.PortAny}},
	}, func(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
		f.calls.hit(nc.NodeID)
		return &domain.NodeResult{Outputs: map[string]any{"text": "ok"}}, nil
	})

	must(domain.NodeSpec{
		Type: "fail", Label: "Fail", Category: "test",
		Inputs:  []domain.PortSpec{tablePort("table", false)},
		Outputs: []domain.PortSpec{tablePort("table", false)},
	}, func(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
		f.calls.hit(nc.NodeID)
		return nil, errors.New("boom")
	})

	must(domain.NodeSpec{
		Type: "panic", Label: "Panic", Category: "test",
		Outputs: []domain.PortSpec{tablePort("table", false)},
	}, func(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
		f.calls.hit(nc.NodeID)
		panic("kaboom")
	})

	must(domain.NodeSpec{
		Type: "liar", Label: "Liar", Category: "test",
		Outputs: []domain.PortSpec{tablePort("table", false)},
	}, func(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
		f.calls.hit(nc.NodeID)
		return &domain.NodeResult{Outputs: map[string]any{"table": &domain.Series{}}}, nil
	})

	must(domain.NodeSpec{
		Type: "clock", Label: "Clock", Category: "test", CachePolicy: domain.CacheNever,
		Outputs: []domain.PortSpec{tablePort("table", false)},
		Params:  []domain.ParamSpec{{Name: "rows", Kind: domain.ParamInteger, Default: 3}},
	}, func(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
		f.calls.hit(nc.NodeID)
		rows, _ := domain.ToFloat(nc.Params["rows"])
		xs := make([]float64, int(rows))
		for i := range xs {
			xs[i] = float64(i)
		}
		return &domain.NodeResult{Outputs: map[string]any{"table": domain.NewTable(domain.FloatColumn("x", xs))}}, nil
	})

	must(domain.NodeSpec{
		Type: "manual", Label: "Manual", Category: "test", CachePolicy: domain.CacheManual,
		Outputs: []domain.PortSpec{tablePort("table", false)},
	}, func(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
		f.calls.hit(nc.NodeID)
		return &domain.NodeResult{Outputs: map[string]any{"table": domain.NewTable()}}, nil
	})

	must(domain.NodeSpec{
		Type: "block", Label: "Block", Category: "test",
		Inputs:  []domain.PortSpec{tablePort("table", false)},
		Outputs: []domain.PortSpec{tablePort("table", false)},
		Params:  []domain.ParamSpec{{Name: "tag", Kind: domain.ParamString, Default: ""}},
	}, func(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
		f.calls.hit(nc.NodeID)
		n := f.active.Add(1)
		defer f.active.Add(-1)
		for {
			peak := f.peak.Load()
			if n <= peak || f.peak.CompareAndSwap(peak, n) {
				break
			}
		}
		f.started <- nc.NodeID
		select {
		case <-f.release:
		case <-ctx.Done():
		}
		return &domain.NodeResult{Outputs: map[string]any{"table": domain.NewTable()}}, nil
	})

	reg.Seal()
	f.reg = reg
	return f
}

func (f *fixture) engine(t *testing.T, opts ...runtime.EngineOption) (*runtime.Engine, *memory.Tier) {
	t.Helper()
	tier := memory.NewTier()
	return runtime.NewEngine(f.reg, cache.New(tier), opts...), tier
}

func node(id, typ string, params map[string]any) domain.NodeInstance {
	return domain.NodeInstance{ID: id, Type: typ, Params: params}
}

func edge(src, srcPort, dst, dstPort string) domain.Edge {
	return domain.Edge{SourceNode: src, SourcePort: srcPort, TargetNode: dst, TargetPort: dstPort}
}

// workedExample is the source -> filter pipeline.
func workedExample(threshold float64) *domain.Workflow {
	return &domain.Workflow{
		Name: "worked-example",
		Nodes: []domain.NodeInstance{
			node("Gen", "source", map[string]any{"seed": 42, "rows": 100}),
			node("Filt", "filter", map[string]any{"threshold": threshold}),
		},
		Edges: []domain.Edge{edge("Gen", "table", "Filt", "table")},
	}
}
