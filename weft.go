package weft

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/adapters/file"
	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/nodes/builtin"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/registry"
)

// Version is the library version reported by the CLI.
const Version = "0.1.0"

// DefaultCacheRoot is where results persist when no tier or root is configured.
var DefaultCacheRoot = filepath.Join(".weft", "cache")

// Engine is the high-level entry point for the weft library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime  *runtime.Engine
	registry *registry.Registry
	store    *cache.Store
	logger   *slog.Logger

	tier        ports.CacheTier
	cacheRoot   string
	maxEntries  int
	maxBytes    int64
	concurrency int
	hooks       domain.LifecycleHooks
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithRegistry sets the node catalog. The default is the process-wide registry,
// initialised with the built-in nodes.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithCacheTier sets the durable cache tier, replacing the default file tier.
func WithCacheTier(tier ports.CacheTier) Option {
	return func(e *Engine) {
		e.tier = tier
	}
}

// WithCacheRoot sets the directory of the default file tier. Node implementations also
// receive it as NodeContext.CacheRoot.
func WithCacheRoot(root string) Option {
	return func(e *Engine) {
		e.cacheRoot = root
	}
}

// WithMemoryBudget bounds the in-process cache tier. Zero leaves a dimension unbounded.
func WithMemoryBudget(entries int, bytes int64) Option {
	return func(e *Engine) {
		e.maxEntries = entries
		e.maxBytes = bytes
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConcurrency bounds parallel node invocations. Values below 1 use every CPU.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// WithLifecycleHooks registers observability hooks. Repeated options accumulate.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// New initializes a new weft Engine.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		maxEntries: cache.DefaultMaxEntries,
		maxBytes:   cache.DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.registry == nil {
		if err := registry.Init(builtin.Register); err != nil {
			return nil, fmt.Errorf("failed to initialize node registry: %w", err)
		}
		eng.registry = registry.Default()
	}
	if eng.cacheRoot == "" {
		eng.cacheRoot = DefaultCacheRoot
	}
	if eng.tier == nil {
		eng.tier = file.New(eng.cacheRoot)
	}

	eng.store = cache.New(eng.tier,
		cache.WithMaxEntries(eng.maxEntries),
		cache.WithMaxBytes(eng.maxBytes),
		cache.WithLogger(eng.logger),
	)
	eng.runtime = runtime.NewEngine(eng.registry, eng.store,
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithConcurrency(eng.concurrency),
		runtime.WithCacheRoot(eng.cacheRoot),
	)
	return eng, nil
}

// RunOption configures a single execution.
type RunOption = runtime.RunOption

// WithForce recomputes the given nodes and their descendants without consulting the cache.
func WithForce(nodeIDs ...string) RunOption {
	return runtime.WithForce(nodeIDs...)
}

// WithRunID sets the identifier attached to the run's logs, events and report.
func WithRunID(id string) RunOption {
	return runtime.WithRunID(id)
}

// ValidateWorkflow reports every issue that would stop nodes of wf from running.
// An empty result means every node is eligible to execute.
func (e *Engine) ValidateWorkflow(ctx context.Context, wf *domain.Workflow) []domain.ValidationIssue {
	return e.runtime.Validate(ctx, wf)
}

// ExecuteWorkflow runs wf incrementally.
//
// It returns *domain.StructuralError, and no report, when wf cannot run at all. Otherwise the
// report holds one outcome per node; node failures are not errors. When ctx is cancelled the
// report is still complete and ctx's error is returned with it.
func (e *Engine) ExecuteWorkflow(ctx context.Context, wf *domain.Workflow, opts ...RunOption) (*domain.RunReport, error) {
	return e.runtime.Execute(ctx, wf, opts...)
}

// ListNodeSpecs returns every registered node type, ordered by category then type.
func (e *Engine) ListNodeSpecs() []domain.NodeSpec {
	return e.registry.List()
}

// NodeSpec returns the declaration of one node type.
func (e *Engine) NodeSpec(typeID string) (domain.NodeSpec, bool) {
	return e.registry.Spec(typeID)
}

// ClearCache drops every stored result, in memory and in the durable tier.
func (e *Engine) ClearCache(ctx context.Context) error {
	return e.store.Clear(ctx)
}

// CacheSizeBytes reports the durable tier's total entry size.
func (e *Engine) CacheSizeBytes(ctx context.Context) (int64, error) {
	return e.store.SizeBytes(ctx)
}

// CacheStats returns the result cache counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.store.Stats()
}

// InvalidateNode drops the stored result of a node's last execution.
func (e *Engine) InvalidateNode(ctx context.Context, nodeID string) error {
	return e.runtime.InvalidateNode(ctx, nodeID)
}

// LastResult returns the most recent outcome recorded for a node id.
func (e *Engine) LastResult(nodeID string) (*domain.NodeOutcome, bool) {
	return e.runtime.LastResult(nodeID)
}

// Registry returns the node catalog.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// LoadWorkflow reads a YAML or JSON workflow document.
func LoadWorkflow(path string) (*domain.Workflow, error) {
	return compiler.NewParser().ParseFile(path)
}
