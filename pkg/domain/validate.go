package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// PortsCompatible reports whether a source port of one kind may feed a target port of another:
// exact match, or either side is unconstrained.
func PortsCompatible(source, target PortKind) bool {
	return source == target || source == PortAny || target == PortAny
}

// ValidateParams checks overrides against the spec's declared parameters.
// It returns one violation per offending field and never panics:
// unknown names, kind mismatches, out-of-bounds values, values outside the choice set,
// and required parameters left without a value or default.
func ValidateParams(overrides map[string]any, spec NodeSpec) []Violation {
	var out []Violation

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		ps, ok := spec.Param(name)
		if !ok {
			out = append(out, Violation{Field: name, Reason: "unknown parameter", Value: overrides[name]})
			continue
		}
		value := overrides[name]
		if value == nil {
			continue
		}
		if reason := CheckParamValue(ps, value); reason != "" {
			out = append(out, Violation{Field: name, Reason: reason, Value: value})
		}
	}

	for _, ps := range spec.Params {
		if !ps.Required || ps.Default != nil {
			continue
		}
		if v, ok := overrides[ps.Name]; !ok || v == nil {
			out = append(out, Violation{Field: ps.Name, Reason: "required"})
		}
	}

	return out
}

// CheckParamValue validates one value against its ParamSpec.
// It returns an empty string when the value is acceptable.
func CheckParamValue(ps ParamSpec, value any) string {
	switch ps.Kind {
	case ParamString, ParamCode:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected string, got %T", value)
		}
	case ParamColor:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected color string, got %T", value)
		}
		if !colorPattern.MatchString(s) {
			return "expected hex color like #RRGGBB"
		}
	case ParamBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", value)
		}
	case ParamNumber, ParamSlider:
		f, ok := ToFloat(value)
		if !ok {
			return fmt.Sprintf("expected number, got %T", value)
		}
		return checkBounds(ps, f)
	case ParamInteger:
		f, ok := ToFloat(value)
		if !ok {
			return fmt.Sprintf("expected integer, got %T", value)
		}
		if f != math.Trunc(f) {
			return "expected integer, got fractional number"
		}
		return checkBounds(ps, f)
	case ParamSelect:
		if !containsOption(ps.Options, value) {
			return fmt.Sprintf("must be one of %s", formatOptions(ps.Options))
		}
	case ParamMultiSelect:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return fmt.Sprintf("expected list, got %T", value)
		}
		if len(ps.Options) == 0 {
			return ""
		}
		for i := 0; i < rv.Len(); i++ {
			if !containsOption(ps.Options, rv.Index(i).Interface()) {
				return fmt.Sprintf("element %d must be one of %s", i, formatOptions(ps.Options))
			}
		}
	default:
		return fmt.Sprintf("unsupported parameter kind %q", ps.Kind)
	}
	return ""
}

func checkBounds(ps ParamSpec, f float64) string {
	if math.IsNaN(f) {
		return "must not be NaN"
	}
	if math.IsInf(f, 0) {
		return "must be finite"
	}
	if ps.Min != nil && f < *ps.Min {
		return fmt.Sprintf("must be >= %v", *ps.Min)
	}
	if ps.Max != nil && f > *ps.Max {
		return fmt.Sprintf("must be <= %v", *ps.Max)
	}
	return ""
}

func containsOption(options []any, value any) bool {
	for _, opt := range options {
		if valuesEqual(opt, value) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	fa, okA := ToFloat(a)
	fb, okB := ToFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func formatOptions(options []any) string {
	parts := make([]string, len(options))
	for i, o := range options {
		parts[i] = fmt.Sprintf("%v", o)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ToFloat converts any Go numeric value (including json.Number) to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// MergeParams overlays instance overrides on the spec's declared defaults.
// Nil overrides keep the default. The returned map is a fresh copy.
func MergeParams(spec NodeSpec, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(spec.Params)+len(overrides))
	for _, ps := range spec.Params {
		if ps.Default != nil {
			merged[ps.Name] = ps.Default
		}
	}
	for k, v := range overrides {
		if v == nil {
			continue
		}
		merged[k] = v
	}
	return merged
}

// CheckOutputs verifies that a successful result declares exactly the spec's outputs,
// each with a payload compatible with its port kind.
func CheckOutputs(spec NodeSpec, result *NodeResult) error {
	if result == nil {
		return fmt.Errorf("implementation returned no result")
	}
	if result.Failed() {
		return nil
	}

	var problems []string
	for _, port := range spec.Outputs {
		v, ok := result.Outputs[port.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing output %q", port.Name))
			continue
		}
		if !PayloadMatches(port.Kind, v) {
			problems = append(problems, fmt.Sprintf("output %q: expected %s payload, got %T", port.Name, port.Kind, v))
		}
	}
	extra := make([]string, 0)
	for name := range result.Outputs {
		if _, ok := spec.Output(name); !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		problems = append(problems, fmt.Sprintf("undeclared output %q", name))
	}

	if len(problems) > 0 {
		return fmt.Errorf("output contract violated: %s", strings.Join(problems, "; "))
	}
	return nil
}
