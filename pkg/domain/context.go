package domain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mitchellh/mapstructure"
)

// NodeContext is everything a node implementation may read.
// It is created fresh per node per execution and owned by that invocation only.
// Implementations must not consult ambient global state, or fingerprints lose their meaning.
// Input payloads are shared with producers and the cache: treat them as read-only.
type NodeContext struct {
	NodeID    string
	Inputs    map[string]any
	Params    map[string]any
	CacheRoot string
	Seed      int64

	// Logger is scoped to the node (node_id, type). Never nil when built by the engine.
	Logger *slog.Logger
}

// DecodeParams decodes the merged parameters into out (a pointer to a struct),
// honouring `mapstructure` tags and weakly converting numbers from JSON/YAML sources.
func (c *NodeContext) DecodeParams(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to build param decoder: %w", err)
	}
	if err := dec.Decode(c.Params); err != nil {
		return fmt.Errorf("failed to decode params for node %s: %w", c.NodeID, err)
	}
	return nil
}

// Table returns the table wired into the named input port.
func (c *NodeContext) Table(port string) (*Table, error) {
	v, ok := c.Inputs[port]
	if !ok || v == nil {
		return nil, fmt.Errorf("input %q is not connected", port)
	}
	switch t := v.(type) {
	case *Table:
		return t, nil
	case Table:
		return &t, nil
	}
	return nil, fmt.Errorf("input %q: expected table, got %T", port, v)
}

// Blob returns the opaque payload wired into the named input port.
func (c *NodeContext) Blob(port string) (*Blob, error) {
	v, ok := c.Inputs[port]
	if !ok || v == nil {
		return nil, fmt.Errorf("input %q is not connected", port)
	}
	switch b := v.(type) {
	case *Blob:
		return b, nil
	case Blob:
		return &b, nil
	}
	return nil, fmt.Errorf("input %q: expected blob, got %T", port, v)
}

// HasInput reports whether an optional input port was wired.
func (c *NodeContext) HasInput(port string) bool {
	v, ok := c.Inputs[port]
	return ok && v != nil
}

// Runnable is the single capability every node implementation provides.
// A returned error and a result carrying Error are both reported as a Failed node.
type Runnable interface {
	Run(ctx context.Context, nc *NodeContext) (*NodeResult, error)
}

// RunnableFunc adapts a plain function to Runnable.
type RunnableFunc func(ctx context.Context, nc *NodeContext) (*NodeResult, error)

// Run calls f.
func (f RunnableFunc) Run(ctx context.Context, nc *NodeContext) (*NodeResult, error) {
	return f(ctx, nc)
}
