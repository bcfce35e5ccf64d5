package runtime

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

// plan is a structurally valid workflow resolved against the registry.
type plan struct {
	wf    *domain.Workflow
	ids   []string // declaration order
	index map[string]int
	nodes map[string]domain.NodeInstance
	specs map[string]domain.NodeSpec
	impls map[string]domain.Runnable

	incoming  map[string][]domain.Edge // by target node, sorted by target port
	children  map[string][]string      // distinct consumers, declaration order
	producers map[string][]string      // distinct producers
	links     map[string][]string      // every edge between known nodes, valid or not
	order     []string
}

// compile checks the workflow structure and builds an execution plan.
// Any issue rejects the whole workflow.
func (e *Engine) compile(wf *domain.Workflow) (*plan, []domain.ValidationIssue) {
	if wf == nil {
		return nil, []domain.ValidationIssue{{Kind: domain.IssueStructural, Message: "workflow is nil"}}
	}

	var issues []domain.ValidationIssue
	structural := func(msg string, ids ...string) {
		issues = append(issues, domain.ValidationIssue{Kind: domain.IssueStructural, NodeIDs: ids, Message: msg})
	}

	switch wf.EffectiveMode() {
	case domain.ModeDAG:
	case domain.ModeLoop:
		structural("loop mode is not supported by the dag engine")
	default:
		structural(fmt.Sprintf("unknown execution mode %q", wf.Mode))
	}

	p := &plan{
		wf:        wf,
		index:     make(map[string]int, len(wf.Nodes)),
		nodes:     make(map[string]domain.NodeInstance, len(wf.Nodes)),
		specs:     make(map[string]domain.NodeSpec, len(wf.Nodes)),
		impls:     make(map[string]domain.Runnable, len(wf.Nodes)),
		incoming:  make(map[string][]domain.Edge),
		children:  make(map[string][]string),
		producers: make(map[string][]string),
		links:     make(map[string][]string),
	}

	for _, n := range wf.Nodes {
		if n.ID == "" {
			structural("node with empty id")
			continue
		}
		if _, dup := p.index[n.ID]; dup {
			structural("duplicate node id", n.ID)
			continue
		}
		p.index[n.ID] = len(p.ids)
		p.ids = append(p.ids, n.ID)
		p.nodes[n.ID] = n

		spec, impl, err := e.registry.Resolve(n.Type)
		if err != nil {
			structural(fmt.Sprintf("unknown node type %q", n.Type), n.ID)
			continue
		}
		p.specs[n.ID] = spec
		p.impls[n.ID] = impl
	}

	fed := make(map[string]string) // "node.port" -> edge label
	for i, edge := range wf.Edges {
		label := edgeLabel(i, edge)
		src, srcOK := p.nodes[edge.SourceNode]
		dst, dstOK := p.nodes[edge.TargetNode]
		if !srcOK {
			structural(fmt.Sprintf("edge %s: unknown source node %q", label, edge.SourceNode), presentIDs(p, edge.TargetNode)...)
		}
		if !dstOK {
			structural(fmt.Sprintf("edge %s: unknown target node %q", label, edge.TargetNode), presentIDs(p, edge.SourceNode)...)
		}
		if !srcOK || !dstOK {
			continue
		}
		if !contains(p.links[src.ID], dst.ID) {
			p.links[src.ID] = append(p.links[src.ID], dst.ID)
		}

		srcSpec, srcResolved := p.specs[src.ID]
		dstSpec, dstResolved := p.specs[dst.ID]
		if !srcResolved || !dstResolved {
			continue // already reported as unknown type
		}

		out, ok := srcSpec.Output(edge.SourcePort)
		if !ok {
			structural(fmt.Sprintf("edge %s: node type %s has no output port %q", label, src.Type, edge.SourcePort), src.ID)
			continue
		}
		in, ok := dstSpec.Input(edge.TargetPort)
		if !ok {
			structural(fmt.Sprintf("edge %s: node type %s has no input port %q", label, dst.Type, edge.TargetPort), dst.ID)
			continue
		}
		if !domain.PortsCompatible(out.Kind, in.Kind) {
			structural(fmt.Sprintf("edge %s: %s output %q (%s) cannot feed %s input %q (%s)",
				label, src.ID, out.Name, out.Kind, dst.ID, in.Name, in.Kind), src.ID, dst.ID)
			continue
		}

		key := dst.ID + "." + edge.TargetPort
		if prev, taken := fed[key]; taken {
			structural(fmt.Sprintf("input %q is fed by both %s and %s", edge.TargetPort, prev, label), dst.ID)
			continue
		}
		fed[key] = label

		p.incoming[dst.ID] = append(p.incoming[dst.ID], edge)
		if !contains(p.children[src.ID], dst.ID) {
			p.children[src.ID] = append(p.children[src.ID], dst.ID)
		}
		if !contains(p.producers[dst.ID], src.ID) {
			p.producers[dst.ID] = append(p.producers[dst.ID], src.ID)
		}
	}

	for _, cycle := range p.findCycles() {
		issues = append(issues, domain.ValidationIssue{
			Kind:    domain.IssueCycle,
			NodeIDs: cycle,
			Message: "cycle: " + strings.Join(append(cycle, cycle[0]), " -> "),
		})
	}

	if len(issues) > 0 {
		return nil, issues
	}

	for id := range p.incoming {
		edges := p.incoming[id]
		sort.SliceStable(edges, func(i, j int) bool { return edges[i].TargetPort < edges[j].TargetPort })
	}
	for id := range p.children {
		p.sortByIndex(p.children[id])
	}
	p.order = p.topoOrder()
	return p, nil
}

// findCycles runs a three-colour depth-first search in declaration order and
// returns one witness cycle per back edge found. It follows every edge between
// declared nodes, so a cycle through an otherwise rejected edge is still named.
func (p *plan) findCycles() [][]string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(p.ids))
	var stack []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)
		for _, child := range p.links[id] {
			switch color[child] {
			case white:
				visit(child)
			case gray:
				start := len(stack) - 1
				for stack[start] != child {
					start--
				}
				cycle := make([]string, len(stack)-start)
				copy(cycle, stack[start:])
				cycles = append(cycles, cycle)
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range p.ids {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}

// topoOrder is Kahn's algorithm with ties broken by declaration order.
func (p *plan) topoOrder() []string {
	indeg := make(map[string]int, len(p.ids))
	for _, id := range p.ids {
		indeg[id] = len(p.producers[id])
	}

	ready := &indexHeap{}
	for _, id := range p.ids {
		if indeg[id] == 0 {
			heap.Push(ready, p.index[id])
		}
	}

	order := make([]string, 0, len(p.ids))
	for ready.Len() > 0 {
		id := p.ids[heap.Pop(ready).(int)]
		order = append(order, id)
		for _, child := range p.children[id] {
			indeg[child]--
			if indeg[child] == 0 {
				heap.Push(ready, p.index[child])
			}
		}
	}
	return order
}

// descendants returns every node reachable from the given roots, roots excluded.
func (p *plan) descendants(roots ...string) []string {
	seen := make(map[string]bool)
	for _, r := range roots {
		seen[r] = true
	}
	queue := append([]string(nil), roots...)
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range p.children[id] {
			if !seen[child] {
				seen[child] = true
				out = append(out, child)
				queue = append(queue, child)
			}
		}
	}
	p.sortByIndex(out)
	return out
}

func (p *plan) sortByIndex(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return p.index[ids[i]] < p.index[ids[j]] })
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func edgeLabel(i int, e domain.Edge) string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("#%d (%s.%s -> %s.%s)", i, e.SourceNode, e.SourcePort, e.TargetNode, e.TargetPort)
}

func presentIDs(p *plan, ids ...string) []string {
	var out []string
	for _, id := range ids {
		if _, ok := p.nodes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
