package domain

// PortKind is the payload kind carried by a port.
type PortKind string

const (
	PortTable   PortKind = "table"   // columnar table (Table)
	PortSeries  PortKind = "series"  // one-dimensional series (Series)
	PortModel   PortKind = "model"   // opaque model handle (Blob)
	PortMetrics PortKind = "metrics" // metrics mapping (Metrics)
	PortParams  PortKind = "params"  // free-form parameter bag (Params)
	PortArray   PortKind = "array"   // multi-dimensional array (Array)
	PortAny     PortKind = "any"     // unconstrained
)

// Valid reports whether k is one of the declared port kinds.
func (k PortKind) Valid() bool {
	switch k {
	case PortTable, PortSeries, PortModel, PortMetrics, PortParams, PortArray, PortAny:
		return true
	}
	return false
}

// ParamKind is the value kind of a node parameter.
type ParamKind string

const (
	ParamString      ParamKind = "string"
	ParamNumber      ParamKind = "number"
	ParamInteger     ParamKind = "integer"
	ParamBoolean     ParamKind = "boolean"
	ParamSelect      ParamKind = "select"
	ParamMultiSelect ParamKind = "multi_select"
	ParamSlider      ParamKind = "slider"
	ParamColor       ParamKind = "color"
	ParamCode        ParamKind = "code"
)

// CachePolicy controls whether the engine reuses stored results for a node type.
type CachePolicy string

const (
	// CacheAuto caches by fingerprint unless an instance opts out.
	CacheAuto CachePolicy = "auto"
	// CacheNever always recomputes.
	CacheNever CachePolicy = "never"
	// CacheManual caches only when the node instance opts in.
	CacheManual CachePolicy = "manual"
)

// PortSpec describes an input or output connection point.
type PortSpec struct {
	Name        string   `json:"name" yaml:"name"`
	Kind        PortKind `json:"kind" yaml:"kind"`
	Label       string   `json:"label" yaml:"label"`
	Required    bool     `json:"required" yaml:"required"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// ParamSpec describes a configurable parameter and its constraints.
type ParamSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Kind        ParamKind `json:"kind" yaml:"kind"`
	Label       string    `json:"label" yaml:"label"`
	Default     any       `json:"default,omitempty" yaml:"default,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`

	// Options is the choice set for select and multi_select.
	Options []any `json:"options,omitempty" yaml:"options,omitempty"`

	// Min and Max bound number, integer and slider values when set.
	Min  *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max  *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Step *float64 `json:"step,omitempty" yaml:"step,omitempty"`

	// Language hints the syntax of a code parameter.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

// NodeSpec is the complete, immutable declaration of a node type.
type NodeSpec struct {
	Type        string      `json:"type" yaml:"type"` // e.g. "data.source", "data.filter"
	Label       string      `json:"label" yaml:"label"`
	Category    string      `json:"category" yaml:"category"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Inputs      []PortSpec  `json:"inputs" yaml:"inputs"`
	Outputs     []PortSpec  `json:"outputs" yaml:"outputs"`
	Params      []ParamSpec `json:"params" yaml:"params"`
	CachePolicy CachePolicy `json:"cache_policy" yaml:"cache_policy"`
}

// Input returns the input port with the given name.
func (s NodeSpec) Input(name string) (PortSpec, bool) {
	return findPort(s.Inputs, name)
}

// Output returns the output port with the given name.
func (s NodeSpec) Output(name string) (PortSpec, bool) {
	return findPort(s.Outputs, name)
}

// Param returns the parameter with the given name.
func (s NodeSpec) Param(name string) (ParamSpec, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// EffectivePolicy returns the cache policy, defaulting to CacheAuto.
func (s NodeSpec) EffectivePolicy() CachePolicy {
	if s.CachePolicy == "" {
		return CacheAuto
	}
	return s.CachePolicy
}

func findPort(ports []PortSpec, name string) (PortSpec, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}

// Bound is a helper for declaring ParamSpec bounds inline.
func Bound(v float64) *float64 { return &v }
