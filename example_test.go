package weft_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/nodes/builtin"
)

// ExampleEngine_ExecuteWorkflow shows incremental re-execution: the second run is served
// from cache and the third only recomputes the edited node.
func ExampleEngine_ExecuteWorkflow() {
	root, err := os.MkdirTemp("", "weft-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(root)

	eng, err := weft.New(weft.WithCacheRoot(root))
	if err != nil {
		log.Fatal(err)
	}

	build := func(threshold float64) *domain.Workflow {
		return &domain.Workflow{
			Name: "example",
			Nodes: []domain.NodeInstance{
				{ID: "data", Type: builtin.TypeSource, Params: map[string]any{"rows": 500, "seed": 1}},
				{ID: "subset", Type: builtin.TypeFilter, Params: map[string]any{"threshold": threshold}},
				{ID: "stats", Type: builtin.TypeDescribe},
			},
			Edges: []domain.Edge{
				{SourceNode: "data", SourcePort: "table", TargetNode: "subset", TargetPort: "table"},
				{SourceNode: "subset", SourcePort: "table", TargetNode: "stats", TargetPort: "table"},
			},
		}
	}

	ctx := context.Background()
	for i, threshold := range []float64{0.5, 0.5, 0.9} {
		report, err := eng.ExecuteWorkflow(ctx, build(threshold))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("run %d:", i+1)
		for _, id := range report.Order {
			o := report.Nodes[id]
			fmt.Printf(" %s=%s(hit=%t)", id, o.Status, o.CacheHit)
		}
		fmt.Println()
	}

	// Output:
	// run 1: data=succeeded(hit=false) subset=succeeded(hit=false) stats=succeeded(hit=false)
	// run 2: data=succeeded(hit=true) subset=succeeded(hit=true) stats=succeeded(hit=true)
	// run 3: data=succeeded(hit=true) subset=succeeded(hit=false) stats=succeeded(hit=false)
}
