package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// Plugin contributes node types to a registry during Init.
type Plugin func(r *Registry) error

type entry struct {
	spec domain.NodeSpec
	impl domain.Runnable
}

// Registry is the catalog of node types.
// It is append-only: types are added during initialization and never removed.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	sealed  bool
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register adds a node type to the registry.
// It fails with ErrDuplicateType if the type id exists, ErrInvalidSpec if the
// spec is malformed and ErrRegistrySealed once Seal has been called.
func (r *Registry) Register(spec domain.NodeSpec, impl domain.Runnable) error {
	if impl == nil {
		return fmt.Errorf("%w: %s: nil implementation", domain.ErrInvalidSpec, spec.Type)
	}
	if err := CheckSpec(spec); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", domain.ErrRegistrySealed, spec.Type)
	}
	if _, ok := r.entries[spec.Type]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateType, spec.Type)
	}
	r.entries[spec.Type] = entry{spec: spec, impl: impl}
	return nil
}

// MustRegister is like Register but panics on error. Meant for package init of plug-ins.
func (r *Registry) MustRegister(spec domain.NodeSpec, impl domain.Runnable) {
	if err := r.Register(spec, impl); err != nil {
		panic(err)
	}
}

// Resolve looks up a node type by id.
func (r *Registry) Resolve(typeID string) (domain.NodeSpec, domain.Runnable, error) {
	r.mu.RLock()
	e, ok := r.entries[typeID]
	r.mu.RUnlock()

	if !ok {
		return domain.NodeSpec{}, nil, fmt.Errorf("%w: %s", domain.ErrNodeTypeNotFound, typeID)
	}
	return e.spec, e.impl, nil
}

// Spec returns only the declaration of a node type.
func (r *Registry) Spec(typeID string) (domain.NodeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[typeID]
	return e.spec, ok
}

// List returns every spec ordered by category, then type id.
func (r *Registry) List() []domain.NodeSpec {
	r.mu.RLock()
	specs := make([]domain.NodeSpec, 0, len(r.entries))
	for _, e := range r.entries {
		specs = append(specs, e.spec)
	}
	r.mu.RUnlock()

	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Category != specs[j].Category {
			return specs[i].Category < specs[j].Category
		}
		return specs[i].Type < specs[j].Type
	})
	return specs
}

// ByCategory groups the specs by category.
func (r *Registry) ByCategory() map[string][]domain.NodeSpec {
	out := make(map[string][]domain.NodeSpec)
	for _, s := range r.List() {
		out[s.Category] = append(out[s.Category], s)
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (r *Registry) Categories() []string {
	var cats []string
	for _, s := range r.List() {
		if len(cats) == 0 || cats[len(cats)-1] != s.Category {
			cats = append(cats, s.Category)
		}
	}
	return cats
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Seal rejects any further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// CheckSpec validates a NodeSpec declaration, including that every default
// satisfies its own parameter constraints.
func CheckSpec(spec domain.NodeSpec) error {
	var errs []error
	if spec.Type == "" {
		errs = append(errs, errors.New("empty type id"))
	}
	switch spec.EffectivePolicy() {
	case domain.CacheAuto, domain.CacheNever, domain.CacheManual:
	default:
		errs = append(errs, fmt.Errorf("unknown cache policy %q", spec.CachePolicy))
	}

	errs = append(errs, checkPorts("input", spec.Inputs)...)
	errs = append(errs, checkPorts("output", spec.Outputs)...)

	seen := make(map[string]bool, len(spec.Params))
	for _, p := range spec.Params {
		if p.Name == "" {
			errs = append(errs, errors.New("parameter with empty name"))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate parameter %q", p.Name))
		}
		seen[p.Name] = true

		if p.Kind == domain.ParamSelect && len(p.Options) == 0 {
			errs = append(errs, fmt.Errorf("parameter %q: select needs options", p.Name))
		}
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			errs = append(errs, fmt.Errorf("parameter %q: min %v > max %v", p.Name, *p.Min, *p.Max))
		}
		if p.Default != nil {
			if reason := domain.CheckParamValue(p, p.Default); reason != "" {
				errs = append(errs, fmt.Errorf("parameter %q: default %v: %s", p.Name, p.Default, reason))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidSpec, spec.Type, errors.Join(errs...))
	}
	return nil
}

func checkPorts(dir string, ports []domain.PortSpec) []error {
	var errs []error
	seen := make(map[string]bool, len(ports))
	for _, p := range ports {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s port with empty name", dir))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate %s port %q", dir, p.Name))
		}
		seen[p.Name] = true
		if !p.Kind.Valid() {
			errs = append(errs, fmt.Errorf("%s port %q: unknown kind %q", dir, p.Name, p.Kind))
		}
	}
	return errs
}
