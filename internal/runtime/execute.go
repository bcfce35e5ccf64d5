package runtime

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// RunOption configures a single execution.
type RunOption func(*runConfig)

type runConfig struct {
	force []string
	runID string
}

// WithForce recomputes the given nodes and all their descendants without
// consulting the cache. Fresh results are still stored.
func WithForce(nodeIDs ...string) RunOption {
	return func(c *runConfig) {
		c.force = append(c.force, nodeIDs...)
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// completion is what a worker hands back to the scheduler.
type completion struct {
	id      string
	outcome *domain.NodeOutcome
	// published is the fingerprint descendants build on.
	published string
}

// run is the mutable state of one execution pass. It is owned by the scheduler goroutine.
type run struct {
	id        string
	plan      *plan
	report    *domain.RunReport
	forced    map[string]bool
	published map[string]string
	pending   map[string]int
	ready     *indexHeap
	running   int
}

// Execute runs wf and returns one outcome per submitted node id.
//
// A structurally invalid workflow is rejected with *domain.StructuralError before anything runs.
// Node failures are reported in the RunReport, not as an error. If ctx is cancelled, nodes that
// never started are reported skipped and ctx's error is returned alongside the complete report.
func (e *Engine) Execute(ctx context.Context, wf *domain.Workflow, opts ...RunOption) (*domain.RunReport, error) {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}

	p, issues := e.compile(wf)
	if len(issues) > 0 {
		err := &domain.StructuralError{Issues: issues}
		e.logger.Warn("workflow rejected", "run_id", cfg.runID, "error", err)
		return nil, err
	}

	started := time.Now()
	r := &run{
		id:   cfg.runID,
		plan: p,
		report: &domain.RunReport{
			RunID:    cfg.runID,
			Workflow: wf.Name,
			Order:    p.order,
			Nodes:    make(map[string]*domain.NodeOutcome, len(p.ids)),
		},
		forced:    make(map[string]bool),
		published: make(map[string]string, len(p.ids)),
		pending:   make(map[string]int, len(p.ids)),
		ready:     &indexHeap{},
	}
	for _, id := range p.ids {
		r.report.Nodes[id] = &domain.NodeOutcome{NodeID: id, Type: p.nodes[id].Type, Status: domain.StatusPending}
		r.pending[id] = len(p.producers[id])
	}
	for _, id := range cfg.force {
		if _, ok := p.index[id]; !ok {
			continue
		}
		r.forced[id] = true
		for _, d := range p.descendants(id) {
			r.forced[d] = true
		}
	}

	logger := e.logger.With("run_id", r.id, "workflow", wf.Name)
	logger.Info("run started", "nodes", len(p.ids), "concurrency", e.concurrency)
	if e.hooks.OnRunStart != nil {
		e.hooks.OnRunStart(ctx, &domain.RunEvent{
			EventBase: domain.EventBase{Timestamp: started, Type: domain.EventRunStart, RunID: r.id},
			Workflow:  wf.Name,
			Nodes:     len(p.ids),
		})
	}

	// Parameter and input problems are known before anything runs.
	for _, id := range p.order {
		if r.report.Nodes[id].Status.Terminal() {
			continue
		}
		params, inputs := p.check(id)
		if len(params)+len(inputs) == 0 {
			continue
		}
		violations := append(params, inputs...)
		verr := &domain.ValidationError{NodeID: id, Violations: violations}
		e.finish(ctx, r, id, &domain.NodeOutcome{
			NodeID:     id,
			Type:       p.nodes[id].Type,
			Status:     domain.StatusValidationFailed,
			Error:      verr.Error(),
			Violations: violations,
		})
		e.skipDescendants(ctx, r, id, fmt.Sprintf("upstream node %s failed validation", id))
	}

	for _, id := range p.ids {
		if r.pending[id] == 0 && !r.report.Nodes[id].Status.Terminal() {
			heap.Push(r.ready, p.index[id])
		}
	}

	e.schedule(ctx, r)

	runErr := ctx.Err()
	if runErr != nil {
		for _, id := range p.order {
			if !r.report.Nodes[id].Status.Terminal() {
				e.finish(ctx, r, id, &domain.NodeOutcome{
					NodeID: id,
					Type:   p.nodes[id].Type,
					Status: domain.StatusSkipped,
					Error:  errCancelled.Error(),
				})
			}
		}
	}

	r.report.Elapsed = time.Since(started)
	e.remember(r.report)

	logger.Info("run finished",
		"elapsed", r.report.Elapsed,
		"invoked", r.report.Invocations(),
		"failed", len(r.report.ByStatus(domain.StatusFailed)),
		"skipped", len(r.report.ByStatus(domain.StatusSkipped)),
	)
	if e.hooks.OnRunFinish != nil {
		e.hooks.OnRunFinish(ctx, &domain.RunEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventRunFinish, RunID: r.id},
			Workflow:  wf.Name,
			Nodes:     len(p.ids),
			Elapsed:   r.report.Elapsed,
			Err:       runErr,
		})
	}

	if runErr != nil {
		return r.report, fmt.Errorf("run %s interrupted: %w", r.id, runErr)
	}
	return r.report, nil
}

// schedule dispatches ready nodes as soon as their producers succeed,
// never running more than e.concurrency invocations at once.
// Dispatch stops when ctx is cancelled; in-flight nodes are awaited.
func (e *Engine) schedule(ctx context.Context, r *run) {
	sem := semaphore.NewWeighted(int64(e.concurrency))
	done := make(chan completion, len(r.plan.ids))

	for {
		for r.ready.Len() > 0 && ctx.Err() == nil && sem.TryAcquire(1) {
			id := r.plan.ids[heap.Pop(r.ready).(int)]
			r.running++
			e.start(ctx, r, id)

			in := e.prepare(r, id)
			go func() {
				c := e.process(ctx, in)
				// Release before reporting so the slot is free when the scheduler wakes.
				sem.Release(1)
				done <- c
			}()
		}

		if r.running == 0 {
			return
		}

		c := <-done
		r.running--
		e.finish(ctx, r, c.id, c.outcome)

		if c.outcome.Status != domain.StatusSucceeded {
			e.skipDescendants(ctx, r, c.id, fmt.Sprintf("upstream node %s %s", c.id, c.outcome.Status))
			continue
		}
		r.published[c.id] = c.published
		for _, child := range r.plan.children[c.id] {
			r.pending[child]--
			if r.pending[child] == 0 && !r.report.Nodes[child].Status.Terminal() {
				heap.Push(r.ready, r.plan.index[child])
			}
		}
	}
}

func (e *Engine) start(ctx context.Context, r *run, id string) {
	o := r.report.Nodes[id]
	o.Status = domain.StatusRunning
	if e.hooks.OnNodeStart != nil {
		e.hooks.OnNodeStart(ctx, &domain.NodeEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeStart, RunID: r.id},
			NodeID:    id,
			NodeType:  o.Type,
			Status:    domain.StatusRunning,
		})
	}
}

// finish records a terminal outcome and fires the node hook.
func (e *Engine) finish(ctx context.Context, r *run, id string, o *domain.NodeOutcome) {
	r.report.Nodes[id] = o

	attrs := []any{"node_id", id, "type", o.Type, "status", o.Status}
	if o.Fingerprint != "" {
		attrs = append(attrs, "fingerprint", o.Fingerprint, "cache_hit", o.CacheHit)
	}
	switch o.Status {
	case domain.StatusFailed, domain.StatusValidationFailed:
		e.logger.Warn("node did not succeed", append(attrs, "run_id", r.id, "error", o.Error)...)
	default:
		e.logger.Debug("node finished", append(attrs, "run_id", r.id, "elapsed", o.Elapsed)...)
	}

	if e.hooks.OnNodeFinish != nil {
		e.hooks.OnNodeFinish(ctx, &domain.NodeEvent{
			EventBase:   domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeFinish, RunID: r.id},
			NodeID:      id,
			NodeType:    o.Type,
			Status:      o.Status,
			Fingerprint: o.Fingerprint,
			CacheHit:    o.CacheHit,
			Elapsed:     o.Elapsed,
			Error:       o.Error,
		})
	}
}

// skipDescendants marks every not-yet-terminal descendant of id as skipped.
// Stale cached results are never substituted for them.
func (e *Engine) skipDescendants(ctx context.Context, r *run, id, reason string) {
	for _, d := range r.plan.descendants(id) {
		if r.report.Nodes[d].Status.Terminal() {
			continue
		}
		e.finish(ctx, r, d, &domain.NodeOutcome{
			NodeID: d,
			Type:   r.plan.nodes[d].Type,
			Status: domain.StatusSkipped,
			Error:  reason,
		})
	}
}

// invocation is the immutable input of one worker, prepared by the scheduler
// so workers never touch run state.
type invocation struct {
	runID    string
	id       string
	node     domain.NodeInstance
	spec     domain.NodeSpec
	impl     domain.Runnable
	seed     int64
	forced   bool
	inputs   map[string]any
	upstream []upstreamRef
}

type upstreamRef struct {
	targetPort, sourcePort, fingerprint string
}

func (e *Engine) prepare(r *run, id string) invocation {
	p := r.plan
	in := invocation{
		runID:  r.id,
		id:     id,
		node:   p.nodes[id],
		spec:   p.specs[id],
		impl:   p.impls[id],
		seed:   p.wf.GlobalSeed(),
		forced: r.forced[id],
		inputs: make(map[string]any, len(p.incoming[id])),
	}
	for _, edge := range p.incoming[id] {
		producer := r.report.Nodes[edge.SourceNode]
		if producer.Result != nil {
			in.inputs[edge.TargetPort] = producer.Result.Outputs[edge.SourcePort]
		}
		in.upstream = append(in.upstream, upstreamRef{
			targetPort:  edge.TargetPort,
			sourcePort:  edge.SourcePort,
			fingerprint: r.published[edge.SourceNode],
		})
	}
	return in
}

var errCancelled = errors.New("run cancelled")
