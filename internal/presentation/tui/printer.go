// Package tui renders run reports, validation issues and node catalogs for terminals.
package tui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/muesli/termenv"
)

// Printer writes human-readable output, coloured when w is a terminal.
type Printer struct {
	w   io.Writer
	out *termenv.Output
}

// NewPrinter creates a printer over w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, out: termenv.NewOutput(w)}
}

func (p *Printer) paint(s, color string) string {
	return p.out.String(s).Foreground(p.out.Color(color)).String()
}

func (p *Printer) faint(s string) string {
	return p.out.String(s).Faint().String()
}

var statusColor = map[domain.Status]string{
	domain.StatusSucceeded:        "#4ade80",
	domain.StatusFailed:           "#f87171",
	domain.StatusSkipped:          "#facc15",
	domain.StatusValidationFailed: "#e879f9",
}

var statusMark = map[domain.Status]string{
	domain.StatusSucceeded:        "✓",
	domain.StatusFailed:           "✗",
	domain.StatusSkipped:          "-",
	domain.StatusValidationFailed: "!",
}

// Report prints one line per node in execution order, then a summary.
func (p *Printer) Report(r *domain.RunReport) {
	width := 0
	for _, id := range r.Order {
		width = max(width, len(id))
	}

	for _, id := range r.Order {
		o := r.Nodes[id]
		mark := statusMark[o.Status]
		if mark == "" {
			mark = "?"
		}
		line := fmt.Sprintf("%s %-*s  %-18s %s", p.paint(mark, statusColor[o.Status]), width, id, o.Type, p.paint(string(o.Status), statusColor[o.Status]))
		switch {
		case o.CacheHit:
			line += p.faint("  (cached)")
		case o.Invoked:
			line += p.faint("  " + o.Elapsed.Round(time.Microsecond).String())
		}
		fmt.Fprintln(p.w, line)
		if o.Error != "" {
			fmt.Fprintf(p.w, "    %s\n", p.faint(o.Error))
		}
	}

	counts := make([]string, 0, 4)
	for _, s := range []domain.Status{domain.StatusSucceeded, domain.StatusFailed, domain.StatusSkipped, domain.StatusValidationFailed} {
		if n := len(r.ByStatus(s)); n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", n, s))
		}
	}
	fmt.Fprintf(p.w, "\n%s: %s; %d invoked, %d cached in %s\n",
		r.Workflow, strings.Join(counts, ", "), r.Invocations(), cached(r), r.Elapsed.Round(time.Millisecond))
}

func cached(r *domain.RunReport) int {
	n := 0
	for _, o := range r.Nodes {
		if o.CacheHit {
			n++
		}
	}
	return n
}

// Issues prints validation findings, or a success line when there are none.
func (p *Printer) Issues(name string, issues []domain.ValidationIssue) {
	if len(issues) == 0 {
		fmt.Fprintf(p.w, "%s Workflow %s is valid\n", p.paint("✓", statusColor[domain.StatusSucceeded]), name)
		return
	}
	fmt.Fprintf(p.w, "%s Workflow %s has %d issue(s):\n", p.paint("✗", statusColor[domain.StatusFailed]), name, len(issues))
	for _, issue := range issues {
		fmt.Fprintf(p.w, "  - %s\n", issue)
	}
}

// Specs prints the node catalog grouped by category.
func (p *Printer) Specs(specs []domain.NodeSpec) {
	groups := make(map[string][]domain.NodeSpec)
	for _, s := range specs {
		groups[s.Category] = append(groups[s.Category], s)
	}
	categories := make([]string, 0, len(groups))
	for c := range groups {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for i, c := range categories {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		fmt.Fprintln(p.w, p.out.String(c).Bold().String())
		for _, s := range groups[c] {
			fmt.Fprintf(p.w, "  %-16s %s  %s\n", s.Type, ports(s), p.faint(s.Description))
		}
	}
}

// ports renders a spec's signature, e.g. "(table) -> (model, metrics)".
func ports(s domain.NodeSpec) string {
	names := func(ps []domain.PortSpec) string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Name + ":" + string(p.Kind)
		}
		return strings.Join(out, ", ")
	}
	return fmt.Sprintf("(%s) -> (%s)", names(s.Inputs), names(s.Outputs))
}
