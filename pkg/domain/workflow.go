package domain

// ExecutionMode selects the interpreter a workflow is meant for.
type ExecutionMode string

const (
	// ModeDAG is the acyclic, cached execution mode.
	ModeDAG ExecutionMode = "dag"
	// ModeLoop marks graphs that revisit nodes. This engine rejects them.
	ModeLoop ExecutionMode = "loop"
)

// NodeInstance is one use of a node type inside a workflow.
type NodeInstance struct {
	ID     string         `json:"id" yaml:"id"`
	Type   string         `json:"type" yaml:"type"`
	Label  string         `json:"label,omitempty" yaml:"label,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// Cache overrides the type's policy: false opts an auto node out,
	// true opts a manual node in. Ignored for CacheNever.
	Cache *bool `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// Edge wires an output port of one node into an input port of another.
type Edge struct {
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	SourceNode string `json:"source_node" yaml:"source_node"`
	SourcePort string `json:"source_port" yaml:"source_port"`
	TargetNode string `json:"target_node" yaml:"target_node"`
	TargetPort string `json:"target_port" yaml:"target_port"`
}

// Workflow is the graph submitted for a single execution call.
type Workflow struct {
	Name        string         `json:"name" yaml:"name"`
	Version     string         `json:"version,omitempty" yaml:"version,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Seed        *int64         `json:"seed,omitempty" yaml:"seed,omitempty"`
	Mode        ExecutionMode  `json:"mode,omitempty" yaml:"mode,omitempty"`
	Nodes       []NodeInstance `json:"nodes" yaml:"nodes"`
	Edges       []Edge         `json:"edges" yaml:"edges"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// GlobalSeed returns the workflow seed, or 0 when unset.
func (w *Workflow) GlobalSeed() int64 {
	if w.Seed == nil {
		return 0
	}
	return *w.Seed
}

// EffectiveMode returns the mode, defaulting to ModeDAG.
func (w *Workflow) EffectiveMode() ExecutionMode {
	if w.Mode == "" {
		return ModeDAG
	}
	return w.Mode
}

// Node returns the instance with the given id.
func (w *Workflow) Node(id string) (NodeInstance, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeInstance{}, false
}

// Seed is a helper for setting Workflow.Seed inline.
func Seed(v int64) *int64 { return &v }
