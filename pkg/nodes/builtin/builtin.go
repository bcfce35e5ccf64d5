// Package builtin provides the sample node types shipped with weft.
//
// They exist to exercise the engine end to end (sources, transforms, statistics and a
// small model) and to show how plug-ins are written: a NodeSpec, a Runnable and
// parameters decoded with NodeContext.DecodeParams.
package builtin

import (
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
)

// Type identifiers of the built-in nodes.
const (
	TypeSource   = "data.source"
	TypeFilter   = "data.filter"
	TypeSelect   = "data.select"
	TypeColumn   = "data.column"
	TypeDescribe = "stats.describe"
	TypeLinear   = "model.linear"
	TypePredict  = "model.predict"
)

type node struct {
	spec domain.NodeSpec
	run  domain.RunnableFunc
}

func nodes() []node {
	return []node{
		{sourceSpec, runSource},
		{filterSpec, runFilter},
		{selectSpec, runSelect},
		{columnSpec, runColumn},
		{describeSpec, runDescribe},
		{linearSpec, runLinear},
		{predictSpec, runPredict},
	}
}

// Register adds every built-in node type to r. It satisfies registry.Plugin.
func Register(r *registry.Registry) error {
	for _, n := range nodes() {
		if err := r.Register(n.spec, n.run); err != nil {
			return fmt.Errorf("builtin %s: %w", n.spec.Type, err)
		}
	}
	return nil
}

var _ registry.Plugin = Register

func tableIn(required bool) domain.PortSpec {
	return domain.PortSpec{Name: "table", Kind: domain.PortTable, Label: "Table", Required: required}
}

func tableOut(label string) domain.PortSpec {
	return domain.PortSpec{Name: "table", Kind: domain.PortTable, Label: label}
}
