package runtime

import (
	"context"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"sync"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
)

// Engine executes workflows incrementally against a node registry and a result cache.
// It is safe for concurrent use; concurrent executions share the cache.
type Engine struct {
	registry    *registry.Registry
	cache       *cache.Store
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	concurrency int
	cacheRoot   string

	mu          sync.RWMutex
	last        map[string]*domain.NodeOutcome // by node id, most recent execution
	fingerprint map[string]string              // by node id, last fingerprint that produced a result
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithConcurrency bounds how many node invocations run at once.
// Values below 1 fall back to the number of CPUs.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// WithCacheRoot sets the directory handed to node implementations as NodeContext.CacheRoot.
func WithCacheRoot(root string) EngineOption {
	return func(e *Engine) {
		e.cacheRoot = root
	}
}

// NewEngine creates an engine over a registry and a cache store.
// A nil store disables caching: every node is recomputed on every run.
func NewEngine(reg *registry.Registry, store *cache.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:    reg,
		cache:       store,
		logger:      logging.NewNop(),
		last:        make(map[string]*domain.NodeOutcome),
		fingerprint: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency < 1 {
		e.concurrency = goruntime.NumCPU()
	}
	return e
}

// Validate reports every problem that would prevent nodes of wf from running:
// structural issues, which reject the whole workflow, then parameter and input
// issues, which only fail the affected nodes.
func (e *Engine) Validate(ctx context.Context, wf *domain.Workflow) []domain.ValidationIssue {
	p, issues := e.compile(wf)
	if len(issues) > 0 {
		return issues
	}

	for _, id := range p.ids {
		violations, inputs := p.check(id)
		for _, v := range violations {
			issues = append(issues, domain.ValidationIssue{
				Kind: domain.IssueParams, NodeIDs: []string{id}, Field: v.Field, Message: v.Reason,
			})
		}
		for _, v := range inputs {
			issues = append(issues, domain.ValidationIssue{
				Kind: domain.IssueInputs, NodeIDs: []string{id}, Field: v.Field, Message: v.Reason,
			})
		}
	}
	return issues
}

// check validates the parameter overrides and required inputs of one planned node.
func (p *plan) check(id string) (params, inputs []domain.Violation) {
	spec := p.specs[id]
	params = domain.ValidateParams(p.nodes[id].Params, spec)

	wired := make(map[string]bool, len(p.incoming[id]))
	for _, edge := range p.incoming[id] {
		wired[edge.TargetPort] = true
	}
	for _, port := range spec.Inputs {
		if port.Required && !wired[port.Name] {
			inputs = append(inputs, domain.Violation{Field: port.Name, Reason: "required input is not connected"})
		}
	}
	return params, inputs
}

// LastResult returns the most recent outcome recorded for a node id.
func (e *Engine) LastResult(nodeID string) (*domain.NodeOutcome, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.last[nodeID]
	return o, ok
}

// InvalidateNode drops the cached entry behind the last recorded outcome of a node,
// so the next execution recomputes it. Descendants keep their entries: the recomputed
// node publishes the same fingerprint.
func (e *Engine) InvalidateNode(ctx context.Context, nodeID string) error {
	e.mu.RLock()
	fp, ok := e.fingerprint[nodeID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: node %s", domain.ErrNoResult, nodeID)
	}
	if e.cache == nil {
		return nil
	}
	if err := e.cache.Invalidate(ctx, fp); err != nil {
		return fmt.Errorf("failed to invalidate node %s: %w", nodeID, err)
	}
	e.logger.Debug("node invalidated", "node_id", nodeID, "fingerprint", fp)
	return nil
}

// Cache returns the store the engine reads and writes.
func (e *Engine) Cache() *cache.Store {
	return e.cache
}

// Registry returns the node catalog the engine resolves types against.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

func (e *Engine) remember(report *domain.RunReport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, o := range report.Nodes {
		e.last[id] = o
		if o.Status == domain.StatusSucceeded && o.Fingerprint != "" {
			e.fingerprint[id] = o.Fingerprint
		}
	}
}
