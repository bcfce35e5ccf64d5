package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStart   EventType = "run_start"
	EventRunFinish  EventType = "run_finish"
	EventNodeStart  EventType = "node_start"
	EventNodeFinish EventType = "node_finish"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// RunEvent marks the start or end of an execution pass.
type RunEvent struct {
	EventBase
	Workflow string        `json:"workflow"`
	Nodes    int           `json:"nodes"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
	Err      error         `json:"-"`
}

// NodeEvent reports a node reaching Running or a terminal status.
type NodeEvent struct {
	EventBase
	NodeID      string        `json:"node_id"`
	NodeType    string        `json:"node_type"`
	Status      Status        `json:"status"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	CacheHit    bool          `json:"cache_hit"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously on the scheduler; keep them fast.
type LifecycleHooks struct {
	OnRunStart   func(context.Context, *RunEvent)
	OnRunFinish  func(context.Context, *RunEvent)
	OnNodeStart  func(context.Context, *NodeEvent)
	OnNodeFinish func(context.Context, *NodeEvent)
}

// Merge combines hooks so both sets fire, h first.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnRunStart:   chainRun(h.OnRunStart, other.OnRunStart),
		OnRunFinish:  chainRun(h.OnRunFinish, other.OnRunFinish),
		OnNodeStart:  chainNode(h.OnNodeStart, other.OnNodeStart),
		OnNodeFinish: chainNode(h.OnNodeFinish, other.OnNodeFinish),
	}
}

func chainRun(a, b func(context.Context, *RunEvent)) func(context.Context, *RunEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *RunEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainNode(a, b func(context.Context, *NodeEvent)) func(context.Context, *NodeEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *NodeEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
