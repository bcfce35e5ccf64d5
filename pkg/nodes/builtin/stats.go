package builtin

import (
	"context"
	"math"

	"github.com/aretw0/weft/pkg/domain"
)

var describeSpec = domain.NodeSpec{
	Type:        TypeDescribe,
	Label:       "Describe",
	Category:    "stats",
	Description: "Summary statistics of every numeric column: count, mean, std, min and max.",
	Inputs:      []domain.PortSpec{tableIn(true)},
	Outputs:     []domain.PortSpec{{Name: "metrics", Kind: domain.PortMetrics, Label: "Statistics"}},
}

func runDescribe(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
	in, err := nc.Table("table")
	if err != nil {
		return nil, err
	}

	m := domain.Metrics{
		"rows":    float64(in.NumRows()),
		"columns": float64(len(in.Columns)),
	}
	for i := range in.Columns {
		c := &in.Columns[i]
		if c.Type != domain.ColumnFloat && c.Type != domain.ColumnInt {
			continue
		}
		s := describe(c)
		m[c.Name+".count"] = float64(s.count)
		if s.count == 0 {
			continue
		}
		m[c.Name+".mean"] = s.mean
		m[c.Name+".std"] = s.std
		m[c.Name+".min"] = s.min
		m[c.Name+".max"] = s.max
	}
	return &domain.NodeResult{Outputs: map[string]any{"metrics": m}}, nil
}

type summary struct {
	count               int
	mean, std, min, max float64
}

// describe uses Welford's algorithm; std is the sample standard deviation.
func describe(c *domain.Column) summary {
	s := summary{min: math.Inf(1), max: math.Inf(-1)}
	var m2 float64
	for i := 0; i < c.Len(); i++ {
		v, _ := c.Float(i)
		if math.IsNaN(v) {
			continue
		}
		s.count++
		delta := v - s.mean
		s.mean += delta / float64(s.count)
		m2 += delta * (v - s.mean)
		s.min = math.Min(s.min, v)
		s.max = math.Max(s.max, v)
	}
	if s.count > 1 {
		s.std = math.Sqrt(m2 / float64(s.count-1))
	}
	return s
}
