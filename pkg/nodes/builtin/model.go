package builtin

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// LinearModelTag identifies blobs produced by model.linear.
const LinearModelTag = "weft.model.linear/v1"

// LinearModel is the payload of a model.linear blob.
type LinearModel struct {
	Features  []string  `msgpack:"features"`
	Target    string    `msgpack:"target"`
	Coef      []float64 `msgpack:"coef"`
	Intercept float64   `msgpack:"intercept"`
}

// Predict evaluates the model on one row of feature values, in Features order.
func (m *LinearModel) Predict(row []float64) float64 {
	y := m.Intercept
	for j, c := range m.Coef {
		y += c * row[j]
	}
	return y
}

// EncodeLinearModel wraps a model in its blob envelope.
func EncodeLinearModel(m *LinearModel) (*domain.Blob, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode linear model: %w", err)
	}
	return &domain.Blob{Tag: LinearModelTag, Data: data}, nil
}

// DecodeLinearModel unwraps a model.linear blob.
func DecodeLinearModel(b *domain.Blob) (*LinearModel, error) {
	if b.Tag != LinearModelTag {
		return nil, fmt.Errorf("unexpected model tag %q", b.Tag)
	}
	var m LinearModel
	if err := msgpack.Unmarshal(b.Data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode linear model: %w", err)
	}
	if len(m.Coef) != len(m.Features) {
		return nil, fmt.Errorf("linear model has %d coefficients for %d features", len(m.Coef), len(m.Features))
	}
	return &m, nil
}

var linearSpec = domain.NodeSpec{
	Type:        TypeLinear,
	Label:       "Linear Regression",
	Category:    "model",
	Description: "Fits least squares (optionally ridge-penalised and weighted) and emits an opaque model handle.",
	Inputs: []domain.PortSpec{
		tableIn(true),
		{Name: "weights", Kind: domain.PortSeries, Label: "Sample Weights", Description: "Optional non-negative weight per row."},
	},
	Outputs: []domain.PortSpec{
		{Name: "model", Kind: domain.PortModel, Label: "Model"},
		{Name: "metrics", Kind: domain.PortMetrics, Label: "Fit Metrics"},
	},
	Params: []domain.ParamSpec{
		{Name: "target", Kind: domain.ParamString, Label: "Target", Default: "y"},
		{Name: "features", Kind: domain.ParamString, Label: "Features", Default: "", Description: "Comma-separated; empty uses every other numeric column except id."},
		{Name: "ridge", Kind: domain.ParamNumber, Label: "Ridge Penalty", Default: 0.0, Min: domain.Bound(0)},
	},
}

type linearParams struct {
	Target   string  `mapstructure:"target"`
	Features string  `mapstructure:"features"`
	Ridge    float64 `mapstructure:"ridge"`
}

func runLinear(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
	var p linearParams
	if err := nc.DecodeParams(&p); err != nil {
		return nil, err
	}
	in, err := nc.Table("table")
	if err != nil {
		return nil, err
	}

	features := splitList(p.Features)
	if len(features) == 0 {
		for _, c := range in.Columns {
			if c.Name != p.Target && c.Name != "id" && (c.Type == domain.ColumnFloat || c.Type == domain.ColumnInt) {
				features = append(features, c.Name)
			}
		}
	}
	if len(features) == 0 {
		return domain.ErrorResult("no numeric feature columns"), nil
	}

	y, err := numeric(in, p.Target)
	if err != nil {
		return domain.ErrorResult(err.Error()), nil
	}
	x, err := matrix(in, features)
	if err != nil {
		return domain.ErrorResult(err.Error()), nil
	}
	if len(y) <= len(features) {
		return domain.ErrorResult(fmt.Sprintf("need more than %d rows to fit %d features, got %d", len(features), len(features), len(y))), nil
	}

	w := make([]float64, len(y))
	for i := range w {
		w[i] = 1
	}
	if nc.HasInput("weights") {
		s, ok := nc.Inputs["weights"].(*domain.Series)
		if !ok {
			return nil, fmt.Errorf("input %q: expected series, got %T", "weights", nc.Inputs["weights"])
		}
		if msg := checkWeights(s.Values, len(y)); msg != "" {
			return domain.ErrorResult(msg), nil
		}
		w = s.Values
	}

	coef, intercept, err := fitLinear(x, y, w, p.Ridge)
	if err != nil {
		return domain.ErrorResult(err.Error()), nil
	}
	m := &LinearModel{Features: features, Target: p.Target, Coef: coef, Intercept: intercept}
	blob, err := EncodeLinearModel(m)
	if err != nil {
		return nil, err
	}

	var ssRes, ssTot, mean, total float64
	for i, v := range y {
		mean += w[i] * v
		total += w[i]
	}
	mean /= total
	for i, v := range y {
		r := v - m.Predict(x[i])
		ssRes += w[i] * r * r
		ssTot += w[i] * (v - mean) * (v - mean)
	}
	metrics := domain.Metrics{
		"rows": float64(len(y)),
		"rmse": math.Sqrt(ssRes / total),
	}
	if ssTot > 0 {
		metrics["r2"] = 1 - ssRes/ssTot
	}

	nc.Logger.Debug("fitted linear model", "features", len(features), "rows", len(y))
	return &domain.NodeResult{
		Outputs: map[string]any{"model": blob, "metrics": metrics},
		Preview: map[string]any{"features": features, "coef": coef, "intercept": intercept},
	}, nil
}

var predictSpec = domain.NodeSpec{
	Type:        TypePredict,
	Label:       "Predict",
	Category:    "model",
	Description: "Appends a prediction column computed by a fitted model.",
	Inputs: []domain.PortSpec{
		{Name: "model", Kind: domain.PortModel, Label: "Model", Required: true},
		tableIn(true),
	},
	Outputs: []domain.PortSpec{tableOut("Predictions")},
	Params: []domain.ParamSpec{
		{Name: "output", Kind: domain.ParamString, Label: "Output Column", Default: "prediction"},
	},
}

func runPredict(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
	var p struct {
		Output string `mapstructure:"output"`
	}
	if err := nc.DecodeParams(&p); err != nil {
		return nil, err
	}
	blob, err := nc.Blob("model")
	if err != nil {
		return nil, err
	}
	m, err := DecodeLinearModel(blob)
	if err != nil {
		return domain.ErrorResult(err.Error()), nil
	}
	in, err := nc.Table("table")
	if err != nil {
		return nil, err
	}
	if _, exists := in.Column(p.Output); exists {
		return domain.ErrorResult(fmt.Sprintf("column %q already exists", p.Output)), nil
	}
	x, err := matrix(in, m.Features)
	if err != nil {
		return domain.ErrorResult(err.Error()), nil
	}

	pred := make([]float64, len(x))
	for i, row := range x {
		pred[i] = m.Predict(row)
	}
	out := &domain.Table{Columns: make([]domain.Column, 0, len(in.Columns)+1)}
	out.Columns = append(out.Columns, in.Columns...)
	out.Columns = append(out.Columns, domain.FloatColumn(p.Output, pred))
	return &domain.NodeResult{Outputs: map[string]any{"table": out}}, nil
}

func numeric(t *domain.Table, name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]float64, c.Len())
	for i := range out {
		v, ok := c.Float(i)
		if !ok {
			return nil, fmt.Errorf("column %q is %s, not numeric", name, c.Type)
		}
		out[i] = v
	}
	return out, nil
}

// matrix returns the rows of t restricted to the named columns.
func matrix(t *domain.Table, names []string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, name := range names {
		v, err := numeric(t, name)
		if err != nil {
			return nil, err
		}
		cols[j] = v
	}
	rows := make([][]float64, t.NumRows())
	for i := range rows {
		rows[i] = make([]float64, len(names))
		for j := range names {
			rows[i][j] = cols[j][i]
		}
	}
	return rows, nil
}

var errSingular = errors.New("features are collinear: normal equations are singular")

func checkWeights(w []float64, rows int) string {
	if len(w) != rows {
		return fmt.Sprintf("weights has %d values for %d rows", len(w), rows)
	}
	var total float64
	for i, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Sprintf("weight %d is %v, want a finite non-negative number", i, v)
		}
		total += v
	}
	if total == 0 {
		return "weights sum to zero"
	}
	return ""
}

// fitLinear solves (XᵀWX + λI)β = XᵀWy on weighted-centred data, so the intercept
// is not penalised.
func fitLinear(x [][]float64, y, w []float64, ridge float64) ([]float64, float64, error) {
	n, k := len(x), len(x[0])
	xMean := make([]float64, k)
	var yMean, total float64
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			xMean[j] += w[i] * x[i][j]
		}
		yMean += w[i] * y[i]
		total += w[i]
	}
	for j := range xMean {
		xMean[j] /= total
	}
	yMean /= total

	// Augmented system [A | b], A = XcᵀWXc + λI, b = XcᵀWyc.
	a := make([][]float64, k)
	for r := range a {
		a[r] = make([]float64, k+1)
	}
	for i := 0; i < n; i++ {
		if w[i] == 0 {
			continue
		}
		yc := y[i] - yMean
		for r := 0; r < k; r++ {
			xr := w[i] * (x[i][r] - xMean[r])
			for c := 0; c < k; c++ {
				a[r][c] += xr * (x[i][c] - xMean[c])
			}
			a[r][k] += xr * yc
		}
	}
	for r := 0; r < k; r++ {
		a[r][r] += ridge
	}

	coef, err := solve(a)
	if err != nil {
		return nil, 0, err
	}
	intercept := yMean
	for j := range coef {
		intercept -= coef[j] * xMean[j]
	}
	return coef, intercept, nil
}

// solve runs Gauss-Jordan elimination with partial pivoting on an augmented k×(k+1) matrix.
func solve(a [][]float64) ([]float64, error) {
	k := len(a)
	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errSingular
		}
		a[col], a[pivot] = a[pivot], a[col]

		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			f := a[r][col] / a[col][col]
			for c := col; c <= k; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}
	out := make([]float64, k)
	for r := range out {
		out[r] = a[r][k] / a[r][r]
	}
	return out, nil
}
