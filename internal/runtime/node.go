package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/google/uuid"
)

// process runs one node: fingerprint, cache lookup, invocation and store.
// It only reads its invocation and never touches run state.
func (e *Engine) process(ctx context.Context, in invocation) completion {
	started := time.Now()
	logger := e.logger.With("run_id", in.runID, "node_id", in.id, "type", in.node.Type)
	o := &domain.NodeOutcome{NodeID: in.id, Type: in.node.Type}

	done := func(status domain.Status, msg string) completion {
		o.Status = status
		o.Error = msg
		o.Elapsed = time.Since(started)
		return completion{id: in.id, outcome: o, published: o.Fingerprint}
	}

	if ctx.Err() != nil {
		return done(domain.StatusSkipped, errCancelled.Error())
	}

	params := domain.MergeParams(in.spec, in.node.Params)
	policy := in.spec.EffectivePolicy()
	cacheable := e.cache != nil && usesCache(policy, in.node.Cache)

	ups := make([]cache.Upstream, len(in.upstream))
	for i, u := range in.upstream {
		ups[i] = cache.Upstream{TargetPort: u.targetPort, SourcePort: u.sourcePort, Fingerprint: u.fingerprint}
	}
	fp, err := cache.Fingerprint(cache.FingerprintInput{
		Type:     in.node.Type,
		Params:   params,
		Seed:     in.seed,
		Upstream: ups,
	})
	if err != nil {
		return done(domain.StatusFailed, fmt.Sprintf("failed to fingerprint node: %v", err))
	}
	o.Fingerprint = fp

	if cacheable && !in.forced {
		if entry, err := e.cache.Get(ctx, fp); err == nil {
			res := entry.Result()
			checkErr := domain.CheckOutputs(in.spec, res)
			if checkErr == nil {
				o.Result = res
				o.CacheHit = true
				logger.Debug("using cached result", "fingerprint", fp)
				return done(domain.StatusSucceeded, "")
			}
			// The type's outputs changed since the entry was written.
			logger.Warn("discarding stale cache entry", "fingerprint", fp, "error", checkErr)
			_ = e.cache.Invalidate(ctx, fp)
		}
	}

	nc := &domain.NodeContext{
		NodeID:    in.id,
		Inputs:    in.inputs,
		Params:    params,
		CacheRoot: e.cacheRoot,
		Seed:      in.seed,
		Logger:    logger,
	}
	logger.Debug("executing node", "fingerprint", fp, "forced", in.forced)
	res, err := invoke(ctx, in.impl, nc)
	o.Invoked = true

	switch {
	case ctx.Err() != nil:
		// Results that race a cancellation are never trusted or cached.
		return done(domain.StatusFailed, errCancelled.Error())
	case err != nil:
		return done(domain.StatusFailed, (&domain.NodeError{NodeID: in.id, Err: err}).Error())
	case res == nil:
		return done(domain.StatusFailed, "implementation returned no result")
	case res.Failed():
		o.Result = res
		return done(domain.StatusFailed, res.Error)
	}
	if err := domain.CheckOutputs(in.spec, res); err != nil {
		return done(domain.StatusFailed, err.Error())
	}
	o.Result = res

	if policy == domain.CacheNever {
		o.Fingerprint = volatileFingerprint(res, logger)
	}
	if cacheable {
		if err := e.cache.Put(ctx, fp, res); err != nil {
			logger.Warn("failed to cache result", "fingerprint", fp, "error", err)
		}
	}
	return done(domain.StatusSucceeded, "")
}

// usesCache applies a node instance's override to its type's cache policy.
func usesCache(policy domain.CachePolicy, override *bool) bool {
	switch policy {
	case domain.CacheNever:
		return false
	case domain.CacheManual:
		return override != nil && *override
	default:
		return override == nil || *override
	}
}

// volatileFingerprint identifies the output of a never-cached node by content,
// so descendants are reused only when the recomputed outputs are identical.
// Outputs no codec can encode get a unique token.
func volatileFingerprint(res *domain.NodeResult, logger *slog.Logger) string {
	digest, err := cache.OutputDigest(res.Outputs)
	if err != nil {
		logger.Debug("outputs not digestible, descendants will recompute", "error", err)
		return "volatile-" + uuid.NewString()
	}
	return digest
}

func invoke(ctx context.Context, impl domain.Runnable, nc *domain.NodeContext) (res *domain.NodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return impl.Run(ctx, nc)
}
