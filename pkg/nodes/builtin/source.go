package builtin

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/aretw0/weft/pkg/domain"
)

var sourceSpec = domain.NodeSpec{
	Type:        TypeSource,
	Label:       "Synthetic Data",
	Category:    "data",
	Description: "Generates a reproducible regression table: features x0..xN and a noisy linear target y.",
	Outputs: []domain.PortSpec{
		tableOut("Table"),
		{Name: "metadata", Kind: domain.PortParams, Label: "Metadata"},
	},
	Params: []domain.ParamSpec{
		{Name: "rows", Kind: domain.ParamInteger, Label: "Rows", Default: 100, Min: domain.Bound(1), Max: domain.Bound(1_000_000)},
		{Name: "features", Kind: domain.ParamInteger, Label: "Features", Default: 2, Min: domain.Bound(1), Max: domain.Bound(32)},
		{Name: "noise", Kind: domain.ParamSlider, Label: "Noise", Default: 0.1, Min: domain.Bound(0), Max: domain.Bound(1), Step: domain.Bound(0.01)},
		{Name: "seed", Kind: domain.ParamInteger, Label: "Seed", Default: 42},
	},
}

type sourceParams struct {
	Rows     int     `mapstructure:"rows"`
	Features int     `mapstructure:"features"`
	Noise    float64 `mapstructure:"noise"`
	Seed     int64   `mapstructure:"seed"`
}

// runSource draws every value from a generator seeded by the node and workflow seeds,
// so the output is a pure function of the fingerprinted inputs.
func runSource(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
	var p sourceParams
	if err := nc.DecodeParams(&p); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(p.Seed ^ nc.Seed))

	coef := make([]float64, p.Features)
	for j := range coef {
		coef[j] = rng.Float64()*4 - 2
	}

	ids := make([]int64, p.Rows)
	y := make([]float64, p.Rows)
	xs := make([][]float64, p.Features)
	for j := range xs {
		xs[j] = make([]float64, p.Rows)
	}
	for i := 0; i < p.Rows; i++ {
		if i%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ids[i] = int64(i)
		target := 0.0
		for j := range xs {
			v := rng.Float64()
			xs[j][i] = v
			target += coef[j] * v
		}
		y[i] = target + rng.NormFloat64()*p.Noise
	}

	cols := []domain.Column{domain.IntColumn("id", ids)}
	for j := range xs {
		cols = append(cols, domain.FloatColumn(fmt.Sprintf("x%d", j), xs[j]))
	}
	cols = append(cols, domain.FloatColumn("y", y))
	table := domain.NewTable(cols...)

	nc.Logger.Debug("generated synthetic table", "rows", p.Rows, "features", p.Features)
	return &domain.NodeResult{
		Outputs: map[string]any{
			"table":    table,
			"metadata": domain.Params{"rows": p.Rows, "features": p.Features, "coefficients": coef},
		},
		Preview: tablePreview(table, 5),
	}, nil
}

// tablePreview summarises the first rows of a table for display.
func tablePreview(t *domain.Table, n int) map[string]any {
	if n > t.NumRows() {
		n = t.NumRows()
	}
	head := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		sub := domain.NewTable(c).Take(rows)
		switch c.Type {
		case domain.ColumnFloat:
			head[c.Name] = sub.Columns[0].Floats
		case domain.ColumnInt:
			head[c.Name] = sub.Columns[0].Ints
		case domain.ColumnString:
			head[c.Name] = sub.Columns[0].Strings
		case domain.ColumnBool:
			head[c.Name] = sub.Columns[0].Bools
		}
	}
	return map[string]any{
		"rows":    t.NumRows(),
		"columns": t.ColumnNames(),
		"head":    head,
	}
}
