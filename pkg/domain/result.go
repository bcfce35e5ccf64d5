package domain

import (
	"sort"
	"time"
)

// NodeResult is the outcome of one node invocation.
type NodeResult struct {
	Outputs  map[string]any `json:"outputs"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Preview  map[string]any `json:"preview,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Failed reports whether the result carries an error.
func (r *NodeResult) Failed() bool {
	return r != nil && r.Error != ""
}

// ErrorResult builds a result carrying only an error message.
func ErrorResult(msg string) *NodeResult {
	return &NodeResult{Error: msg}
}

// Status is the state of a node within one execution pass.
type Status string

const (
	StatusPending          Status = "pending"
	StatusRunning          Status = "running"
	StatusSucceeded        Status = "succeeded"
	StatusFailed           Status = "failed"
	StatusSkipped          Status = "skipped"
	StatusValidationFailed Status = "validation_failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusValidationFailed:
		return true
	}
	return false
}

// NodeOutcome is the per-node entry of a RunReport.
type NodeOutcome struct {
	NodeID      string        `json:"node_id"`
	Type        string        `json:"type"`
	Status      Status        `json:"status"`
	Result      *NodeResult   `json:"result,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	CacheHit    bool          `json:"cache_hit"`
	Invoked     bool          `json:"invoked"`
	Elapsed     time.Duration `json:"elapsed"`
	Error       string        `json:"error,omitempty"`

	// Violations lists parameter/input problems for StatusValidationFailed.
	Violations []Violation `json:"violations,omitempty"`
}

// RunReport aggregates one execution pass.
type RunReport struct {
	RunID    string                  `json:"run_id"`
	Workflow string                  `json:"workflow"`
	Order    []string                `json:"order"`
	Nodes    map[string]*NodeOutcome `json:"nodes"`
	Elapsed  time.Duration           `json:"elapsed"`
}

// Invocations counts nodes whose implementation was actually called.
func (r *RunReport) Invocations() int {
	n := 0
	for _, o := range r.Nodes {
		if o.Invoked {
			n++
		}
	}
	return n
}

// Succeeded reports whether every node succeeded.
func (r *RunReport) Succeeded() bool {
	for _, o := range r.Nodes {
		if o.Status != StatusSucceeded {
			return false
		}
	}
	return true
}

// ByStatus returns node ids with the given status, sorted.
func (r *RunReport) ByStatus(s Status) []string {
	var ids []string
	for id, o := range r.Nodes {
		if o.Status == s {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
