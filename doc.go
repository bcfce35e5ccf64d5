/*
Package weft is an incremental execution engine for dataflow graphs.

A workflow is a set of typed nodes wired port to port. Every node's output is stored under a
content fingerprint derived from its type, its resolved parameters, the workflow seed and the
fingerprints of its producers, so re-running a workflow only invokes the nodes whose inputs
actually changed. Everything else is served from a two-tier cache: an in-process LRU in front
of a durable tier (files by default, optionally redis).

# Concept

Node types are plug-ins: a domain.NodeSpec declaring ports and parameters plus a
domain.Runnable computing outputs from a NodeContext. They live in a registry.Registry,
sealed once populated. The engine validates the whole graph before running anything
(unknown types, port kind mismatches, cycles), checks parameters against their specs, then
dispatches nodes concurrently in dependency order. A failing node only affects its
descendants, which are reported skipped.

# Usage

	eng, err := weft.New(weft.WithCacheRoot(".weft/cache"))
	if err != nil {
		log.Fatal(err)
	}

	wf := &domain.Workflow{
		Nodes: []domain.NodeInstance{
			{ID: "data", Type: builtin.TypeSource, Params: map[string]any{"rows": 1000}},
			{ID: "subset", Type: builtin.TypeFilter, Params: map[string]any{"threshold": 0.7}},
		},
		Edges: []domain.Edge{
			{SourceNode: "data", SourcePort: "table", TargetNode: "subset", TargetPort: "table"},
		},
	}

	report, err := eng.ExecuteWorkflow(ctx, wf)
	if err != nil {
		log.Fatal(err) // structurally invalid workflow, or ctx cancelled
	}
	for _, id := range report.Order {
		o := report.Nodes[id]
		fmt.Println(id, o.Status, o.CacheHit)
	}

Running the same workflow again invokes nothing; changing the filter threshold re-invokes
only the filter and its descendants.
*/
package weft
