package cache

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// valueCodec stores metrics, parameter bags, scalars, lists and maps as a
// type-tagged msgpack tree, so every decoded value has the Go type it was stored with.
// Values nested inside maps and lists that another codec accepts (tables, blobs)
// are delegated to that codec.
type valueCodec struct{}

// valueNode is one element of the tree. Scalars and typed vectors keep their
// msgpack encoding in V; maps store sorted keys in K and values in L.
type valueNode struct {
	T string       `msgpack:"t"`
	C string       `msgpack:"c,omitempty"`
	V []byte       `msgpack:"v,omitempty"`
	K []string     `msgpack:"k,omitempty"`
	L []*valueNode `msgpack:"l,omitempty"`
}

const (
	tagNil     = "nil"
	tagMap     = "map"
	tagMetrics = "metrics"
	tagParams  = "params"
	tagList    = "list"
	tagMaps    = "maps"
	tagPayload = "payload"
)

func (valueCodec) Name() string { return "value" }

func (valueCodec) Accepts(v any) bool {
	switch v.(type) {
	case nil, map[string]any, domain.Metrics, domain.Params, []any, []map[string]any:
		return true
	}
	_, ok := scalarTag(v)
	return ok
}

func (valueCodec) Encode(v any) ([]byte, error) {
	n, err := toNode(v)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(n)
}

func (valueCodec) Decode(data []byte) (any, error) {
	var n valueNode
	if err := msgpack.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return fromNode(&n)
}

// scalarTag names the leaf types stored as a single msgpack value.
func scalarTag(v any) (string, bool) {
	switch v.(type) {
	case bool:
		return "bool", true
	case string:
		return "string", true
	case json.Number:
		return "number", true
	case int:
		return "int", true
	case int8:
		return "int8", true
	case int16:
		return "int16", true
	case int32:
		return "int32", true
	case int64:
		return "int64", true
	case uint:
		return "uint", true
	case uint8:
		return "uint8", true
	case uint16:
		return "uint16", true
	case uint32:
		return "uint32", true
	case uint64:
		return "uint64", true
	case float32:
		return "float32", true
	case float64:
		return "float64", true
	case []bool:
		return "[]bool", true
	case []string:
		return "[]string", true
	case []int:
		return "[]int", true
	case []int64:
		return "[]int64", true
	case []float64:
		return "[]float64", true
	case []byte:
		return "[]byte", true
	}
	return "", false
}

func toNode(v any) (*valueNode, error) {
	switch tv := v.(type) {
	case nil:
		return &valueNode{T: tagNil}, nil
	case map[string]any:
		return mapNode(tagMap, tv)
	case domain.Metrics:
		return mapNode(tagMetrics, tv)
	case domain.Params:
		return mapNode(tagParams, tv)
	case []any:
		n := &valueNode{T: tagList, L: make([]*valueNode, len(tv))}
		for i, item := range tv {
			child, err := toNode(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			n.L[i] = child
		}
		return n, nil
	case []map[string]any:
		n := &valueNode{T: tagMaps, L: make([]*valueNode, len(tv))}
		for i, item := range tv {
			child, err := mapNode(tagMap, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			n.L[i] = child
		}
		return n, nil
	}

	if tag, ok := scalarTag(v); ok {
		data, err := msgpack.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &valueNode{T: tag, V: data}, nil
	}

	c, ok := codecFor(v)
	if !ok {
		return nil, fmt.Errorf("%w: %T", domain.ErrUnsupportedPayload, v)
	}
	data, err := c.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("codec %s: %w", c.Name(), err)
	}
	return &valueNode{T: tagPayload, C: c.Name(), V: data}, nil
}

func mapNode(tag string, m map[string]any) (*valueNode, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := &valueNode{T: tag, K: keys, L: make([]*valueNode, len(keys))}
	for i, k := range keys {
		child, err := toNode(m[k])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		n.L[i] = child
	}
	return n, nil
}

func fromNode(n *valueNode) (any, error) {
	if n == nil {
		return nil, fmt.Errorf("missing value")
	}
	switch n.T {
	case tagNil:
		return nil, nil
	case tagMap:
		return nodeMap(n)
	case tagMetrics:
		m, err := nodeMap(n)
		return domain.Metrics(m), err
	case tagParams:
		m, err := nodeMap(n)
		return domain.Params(m), err
	case tagList:
		out := make([]any, len(n.L))
		for i, child := range n.L {
			v, err := fromNode(child)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case tagMaps:
		out := make([]map[string]any, len(n.L))
		for i, child := range n.L {
			m, err := nodeMap(child)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = m
		}
		return out, nil
	case tagPayload:
		return decodePayload(n.C, n.V)
	case "bool":
		return decodeAs[bool](n.V)
	case "string":
		return decodeAs[string](n.V)
	case "number":
		return decodeAs[json.Number](n.V)
	case "int":
		return decodeAs[int](n.V)
	case "int8":
		return decodeAs[int8](n.V)
	case "int16":
		return decodeAs[int16](n.V)
	case "int32":
		return decodeAs[int32](n.V)
	case "int64":
		return decodeAs[int64](n.V)
	case "uint":
		return decodeAs[uint](n.V)
	case "uint8":
		return decodeAs[uint8](n.V)
	case "uint16":
		return decodeAs[uint16](n.V)
	case "uint32":
		return decodeAs[uint32](n.V)
	case "uint64":
		return decodeAs[uint64](n.V)
	case "float32":
		return decodeAs[float32](n.V)
	case "float64":
		return decodeAs[float64](n.V)
	case "[]bool":
		return decodeAs[[]bool](n.V)
	case "[]string":
		return decodeAs[[]string](n.V)
	case "[]int":
		return decodeAs[[]int](n.V)
	case "[]int64":
		return decodeAs[[]int64](n.V)
	case "[]float64":
		return decodeAs[[]float64](n.V)
	case "[]byte":
		return decodeAs[[]byte](n.V)
	}
	return nil, fmt.Errorf("unknown value tag %q", n.T)
}

func nodeMap(n *valueNode) (map[string]any, error) {
	if n == nil || len(n.K) != len(n.L) {
		return nil, fmt.Errorf("malformed map")
	}
	out := make(map[string]any, len(n.K))
	for i, k := range n.K {
		v, err := fromNode(n.L[i])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func decodeAs[T any](data []byte) (any, error) {
	var out T
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// encodeFields stores a metadata or preview map. A nil map stays nil.
func encodeFields(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	n, err := mapNode(tagMap, m)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(n)
}

func decodeFields(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var n valueNode
	if err := msgpack.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return nodeMap(&n)
}
