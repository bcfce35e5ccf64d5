// Package compiler turns workflow documents into domain.Workflow values.
package compiler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a workflow document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnknownFormat is returned for files whose extension names no supported format.
var ErrUnknownFormat = errors.New("unknown workflow format")

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Parser is responsible for converting raw bytes into a Workflow.
type Parser struct {
	strict bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithStrict rejects documents carrying fields the workflow schema does not declare.
func WithStrict(strict bool) ParserOption {
	return func(p *Parser) {
		p.strict = strict
	}
}

// NewParser creates a new parser instance. Parsers are strict by default.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{strict: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse decodes a workflow document. Structural checks (ids, edges, cycles) are left
// to the engine so that every issue is reported at once.
func (p *Parser) Parse(data []byte, format Format) (*domain.Workflow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("failed to parse workflow: empty document")
	}

	var wf domain.Workflow
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if p.strict {
			dec.DisallowUnknownFields()
		}
		if err := dec.Decode(&wf); err != nil {
			return nil, fmt.Errorf("failed to parse workflow: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(p.strict)
		if err := dec.Decode(&wf); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse workflow: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	for i := range wf.Nodes {
		wf.Nodes[i].Params = normalize(wf.Nodes[i].Params)
	}
	wf.Metadata = normalize(wf.Metadata)
	return &wf, nil
}

// ParseFile reads and decodes a workflow file. A workflow without a name is named
// after its file.
func (p *Parser) ParseFile(path string) (*domain.Workflow, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	wf, err := p.Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if wf.Name == "" {
		wf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return wf, nil
}

// normalize converts the map[any]any values YAML may produce for nested mappings
// into map[string]any, so params fingerprint and validate the same from either format.
func normalize(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalize(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	}
	return v
}
