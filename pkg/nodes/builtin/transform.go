package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

var filterSpec = domain.NodeSpec{
	Type:        TypeFilter,
	Label:       "Filter Rows",
	Category:    "transform",
	Description: "Keeps the rows whose numeric column compares true against a threshold.",
	Inputs:      []domain.PortSpec{tableIn(true)},
	Outputs:     []domain.PortSpec{tableOut("Filtered Table")},
	Params: []domain.ParamSpec{
		{Name: "column", Kind: domain.ParamString, Label: "Column", Default: "x0"},
		{Name: "op", Kind: domain.ParamSelect, Label: "Operator", Default: "gt", Options: []any{"gt", "ge", "lt", "le", "eq", "ne"}},
		{Name: "threshold", Kind: domain.ParamNumber, Label: "Threshold", Default: 0.5},
	},
}

type filterParams struct {
	Column    string  `mapstructure:"column"`
	Op        string  `mapstructure:"op"`
	Threshold float64 `mapstructure:"threshold"`
}

func compare(op string, v, threshold float64) bool {
	switch op {
	case "ge":
		return v >= threshold
	case "lt":
		return v < threshold
	case "le":
		return v <= threshold
	case "eq":
		return v == threshold
	case "ne":
		return v != threshold
	default:
		return v > threshold
	}
}

func runFilter(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
	var p filterParams
	if err := nc.DecodeParams(&p); err != nil {
		return nil, err
	}
	in, err := nc.Table("table")
	if err != nil {
		return nil, err
	}
	col, ok := in.Column(p.Column)
	if !ok {
		return domain.ErrorResult(fmt.Sprintf("column %q not found (have %s)", p.Column, strings.Join(in.ColumnNames(), ", "))), nil
	}
	if col.Type != domain.ColumnFloat && col.Type != domain.ColumnInt {
		return domain.ErrorResult(fmt.Sprintf("column %q is %s, not numeric", p.Column, col.Type)), nil
	}

	keep := make([]int, 0, col.Len())
	for i := 0; i < col.Len(); i++ {
		v, _ := col.Float(i)
		if compare(p.Op, v, p.Threshold) {
			keep = append(keep, i)
		}
	}
	out := in.Take(keep)
	return &domain.NodeResult{
		Outputs:  map[string]any{"table": out},
		Metadata: map[string]any{"rows_in": in.NumRows(), "rows_out": out.NumRows()},
	}, nil
}

var selectSpec = domain.NodeSpec{
	Type:        TypeSelect,
	Label:       "Select Columns",
	Category:    "transform",
	Description: "Keeps or drops a comma-separated list of columns.",
	Inputs:      []domain.PortSpec{tableIn(true)},
	Outputs:     []domain.PortSpec{tableOut("Table")},
	Params: []domain.ParamSpec{
		{Name: "mode", Kind: domain.ParamSelect, Label: "Mode", Default: "include", Options: []any{"include", "exclude"}},
		{Name: "columns", Kind: domain.ParamString, Label: "Columns", Required: true},
	},
}

type selectParams struct {
	Mode    string `mapstructure:"mode"`
	Columns string `mapstructure:"columns"`
}

func runSelect(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
	var p selectParams
	if err := nc.DecodeParams(&p); err != nil {
		return nil, err
	}
	in, err := nc.Table("table")
	if err != nil {
		return nil, err
	}

	names := splitList(p.Columns)
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := in.Column(name); !ok {
			return domain.ErrorResult(fmt.Sprintf("column %q not found", name)), nil
		}
		wanted[name] = true
	}

	out := &domain.Table{}
	if p.Mode == "exclude" {
		for _, c := range in.Columns {
			if !wanted[c.Name] {
				out.Columns = append(out.Columns, c)
			}
		}
	} else {
		for _, name := range names {
			c, _ := in.Column(name)
			out.Columns = append(out.Columns, *c)
		}
	}
	return &domain.NodeResult{Outputs: map[string]any{"table": out}}, nil
}

var columnSpec = domain.NodeSpec{
	Type:        TypeColumn,
	Label:       "Column to Series",
	Category:    "transform",
	Description: "Extracts one numeric column as a series.",
	Inputs:      []domain.PortSpec{tableIn(true)},
	Outputs:     []domain.PortSpec{{Name: "series", Kind: domain.PortSeries, Label: "Series"}},
	Params: []domain.ParamSpec{
		{Name: "column", Kind: domain.ParamString, Label: "Column", Required: true},
	},
}

func runColumn(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
	var p struct {
		Column string `mapstructure:"column"`
	}
	if err := nc.DecodeParams(&p); err != nil {
		return nil, err
	}
	in, err := nc.Table("table")
	if err != nil {
		return nil, err
	}
	col, ok := in.Column(p.Column)
	if !ok {
		return domain.ErrorResult(fmt.Sprintf("column %q not found", p.Column)), nil
	}

	values := make([]float64, col.Len())
	for i := range values {
		v, ok := col.Float(i)
		if !ok {
			return domain.ErrorResult(fmt.Sprintf("column %q is %s, not numeric", p.Column, col.Type)), nil
		}
		values[i] = v
	}
	return &domain.NodeResult{Outputs: map[string]any{
		"series": &domain.Series{Name: col.Name, Values: values},
	}}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
