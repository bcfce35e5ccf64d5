package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noop = domain.RunnableFunc(func(ctx context.Context, nc *domain.NodeContext) (*domain.NodeResult, error) {
	return &domain.NodeResult{Outputs: map[string]any{}}, nil
})

func spec(typ, category string) domain.NodeSpec {
	return domain.NodeSpec{
		Type:     typ,
		Label:    typ,
		Category: category,
		Outputs:  []domain.PortSpec{{Name: "out", Kind: domain.PortAny}},
	}
}

func TestRegistry_RegisterResolve(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(spec("data.source", "data"), noop))

	s, impl, err := reg.Resolve("data.source")
	require.NoError(t, err)
	assert.Equal(t, "data.source", s.Type)
	assert.NotNil(t, impl)

	_, _, err = reg.Resolve("missing")
	assert.ErrorIs(t, err, domain.ErrNodeTypeNotFound)

	decl, ok := reg.Spec("data.source")
	require.True(t, ok)
	assert.Equal(t, s, decl)
	_, ok = reg.Spec("missing")
	assert.False(t, ok)
}

func TestRegistry_DuplicateType(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(spec("a", "x"), noop))
	err := reg.Register(spec("a", "y"), noop)
	assert.ErrorIs(t, err, domain.ErrDuplicateType)

	s, _, _ := reg.Resolve("a")
	assert.Equal(t, "x", s.Category, "first registration wins")
}

func TestRegistry_InvalidSpec(t *testing.T) {
	tests := []struct {
		name string
		spec domain.NodeSpec
	}{
		{"empty type", domain.NodeSpec{}},
		{"duplicate port", domain.NodeSpec{Type: "t", Inputs: []domain.PortSpec{
			{Name: "in", Kind: domain.PortTable}, {Name: "in", Kind: domain.PortTable},
		}}},
		{"unknown port kind", domain.NodeSpec{Type: "t", Outputs: []domain.PortSpec{{Name: "o", Kind: "tensor"}}}},
		{"default out of bounds", domain.NodeSpec{Type: "t", Params: []domain.ParamSpec{
			{Name: "p", Kind: domain.ParamNumber, Default: 5.0, Max: domain.Bound(1)},
		}}},
		{"default not in options", domain.NodeSpec{Type: "t", Params: []domain.ParamSpec{
			{Name: "m", Kind: domain.ParamSelect, Default: "c", Options: []any{"a", "b"}},
		}}},
		{"bad policy", domain.NodeSpec{Type: "t", CachePolicy: "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.NewRegistry()
			err := reg.Register(tt.spec, noop)
			assert.ErrorIs(t, err, domain.ErrInvalidSpec)
			assert.Equal(t, 0, reg.Len())
		})
	}
}

func TestRegistry_Seal(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(spec("a", "x"), noop))
	reg.Seal()
	assert.True(t, reg.Sealed())

	err := reg.Register(spec("b", "x"), noop)
	assert.ErrorIs(t, err, domain.ErrRegistrySealed)

	_, _, err = reg.Resolve("a")
	assert.NoError(t, err, "sealed registries still resolve")
}

func TestRegistry_ListOrdering(t *testing.T) {
	reg := registry.NewRegistry()
	reg.MustRegister(spec("model.linear", "model"), noop)
	reg.MustRegister(spec("data.source", "data"), noop)
	reg.MustRegister(spec("data.filter", "data"), noop)

	var types []string
	for _, s := range reg.List() {
		types = append(types, s.Type)
	}
	assert.Equal(t, []string{"data.filter", "data.source", "model.linear"}, types)
	assert.Equal(t, []string{"data", "model"}, reg.Categories())

	groups := reg.ByCategory()
	assert.Len(t, groups["data"], 2)
	assert.Len(t, groups["model"], 1)
}

func TestLoad(t *testing.T) {
	reg, err := registry.Load(func(r *registry.Registry) error {
		return r.Register(spec("a", "x"), noop)
	})
	require.NoError(t, err)
	assert.True(t, reg.Sealed())
	assert.Equal(t, 1, reg.Len())

	boom := errors.New("boom")
	_, err = registry.Load(func(r *registry.Registry) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestInit_Once(t *testing.T) {
	calls := 0
	plugin := func(r *registry.Registry) error {
		calls++
		return r.Register(spec("init.only", "x"), noop)
	}

	require.NoError(t, registry.Init(plugin))
	require.NoError(t, registry.Init(plugin))

	assert.Equal(t, 1, calls)
	assert.True(t, registry.Default().Sealed())
	_, _, err := registry.Default().Resolve("init.only")
	assert.NoError(t, err)
}
