package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDuplicateType is returned when a node type identifier is registered twice.
var ErrDuplicateType = errors.New("duplicate node type")

// ErrNodeTypeNotFound is returned when a type identifier is not in the registry.
var ErrNodeTypeNotFound = errors.New("node type not found")

// ErrInvalidSpec is returned when a NodeSpec is malformed.
var ErrInvalidSpec = errors.New("invalid node spec")

// ErrRegistrySealed is returned when registering after initialization completed.
var ErrRegistrySealed = errors.New("registry is sealed")

// ErrInvalidWorkflow is the kind of every structural rejection.
var ErrInvalidWorkflow = errors.New("invalid workflow")

// ErrCycle is reported (in addition to ErrInvalidWorkflow) when the graph has a cycle.
var ErrCycle = errors.New("cycle detected")

// ErrCacheMiss is returned when no usable entry exists for a fingerprint.
// Corrupted entries are reported as misses too.
var ErrCacheMiss = errors.New("cache miss")

// ErrUnsupportedPayload is returned when no codec can encode a payload.
var ErrUnsupportedPayload = errors.New("unsupported payload")

// ErrCorruptEntry is returned by decoders when a stored entry fails verification.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// ErrNoResult is returned when a node id has no recorded outcome to act on.
var ErrNoResult = errors.New("no recorded result")

// Violation is a single parameter or input problem on one node.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Value  any    `json:"value,omitempty"`
}

func (v Violation) Error() string {
	if v.Value == nil {
		return fmt.Sprintf("field %q: %s", v.Field, v.Reason)
	}
	return fmt.Sprintf("field %q: %s (got %v)", v.Field, v.Reason, v.Value)
}

// IssueKind classifies a ValidationIssue.
type IssueKind string

const (
	IssueStructural IssueKind = "structural"
	IssueCycle      IssueKind = "cycle"
	IssueParams     IssueKind = "params"
	IssueInputs     IssueKind = "inputs"
)

// ValidationIssue is one finding of workflow validation.
type ValidationIssue struct {
	Kind    IssueKind `json:"kind"`
	NodeIDs []string  `json:"node_ids,omitempty"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

func (i ValidationIssue) String() string {
	if len(i.NodeIDs) == 0 {
		return fmt.Sprintf("%s: %s", i.Kind, i.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", i.Kind, strings.Join(i.NodeIDs, ", "), i.Message)
}

// StructuralError rejects a whole workflow before any node runs.
type StructuralError struct {
	Issues []ValidationIssue
}

func (e *StructuralError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("%s: %s", ErrInvalidWorkflow, e.Issues[0])
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("%s: %d issues:\n- %s", ErrInvalidWorkflow, len(e.Issues), strings.Join(parts, "\n- "))
}

// Unwrap exposes ErrInvalidWorkflow, plus ErrCycle when a cycle was found.
func (e *StructuralError) Unwrap() []error {
	errs := []error{ErrInvalidWorkflow}
	for _, issue := range e.Issues {
		if issue.Kind == IssueCycle {
			errs = append(errs, ErrCycle)
			break
		}
	}
	return errs
}

// NodeIDs returns every offending node id, sorted and de-duplicated.
func (e *StructuralError) NodeIDs() []string {
	seen := make(map[string]struct{})
	for _, issue := range e.Issues {
		for _, id := range issue.NodeIDs {
			seen[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidationError reports parameter or input violations on a single node.
type ValidationError struct {
	NodeID     string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Error()
	}
	return fmt.Sprintf("node %s: %s", e.NodeID, strings.Join(parts, "; "))
}

// NodeError wraps an implementation failure with the node it happened on.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
