package sapling

import (
	"fmt"
	"sync"

	"github.com/jward/sapling/internal/hir"
	"github.com/jward/sapling/internal/nameres"
)

// Severity ranks a diagnostic.
type Severity uint8

const (
	SeverityWarning Severity = iota + 1
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is a user-facing problem found while building the module tree
// or resolving names.
type Diagnostic struct {
	Unit     hir.UnitID
	Module   string
	Name     string
	Message  string
	Severity Severity
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Severity, d.Module, d.Message)
}

// DiagnosticsSink receives the complete diagnostic set of a unit, replacing
// whatever it reported before for that unit.
type DiagnosticsSink interface {
	Report(unit hir.UnitID, diags []Diagnostic)
}

// DiagnosticsFunc adapts a function to DiagnosticsSink.
type DiagnosticsFunc func(unit hir.UnitID, diags []Diagnostic)

// Report calls f.
func (f DiagnosticsFunc) Report(unit hir.UnitID, diags []Diagnostic) {
	f(unit, diags)
}

// DiagnosticsCollector keeps the latest report of each unit.
type DiagnosticsCollector struct {
	mu    sync.Mutex
	units map[hir.UnitID][]Diagnostic
}

// NewDiagnosticsCollector creates an empty collector.
func NewDiagnosticsCollector() *DiagnosticsCollector {
	return &DiagnosticsCollector{units: make(map[hir.UnitID][]Diagnostic)}
}

// Report implements DiagnosticsSink.
func (c *DiagnosticsCollector) Report(unit hir.UnitID, diags []Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units[unit] = diags
}

// Unit returns the latest diagnostics of unit.
func (c *DiagnosticsCollector) Unit(unit hir.UnitID) []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Diagnostic(nil), c.units[unit]...)
}

func collectDiagnostics(tree *hir.ModuleTree, m *nameres.ItemMap) []Diagnostic {
	var out []Diagnostic
	for _, p := range tree.Problems {
		out = append(out, Diagnostic{
			Unit:     tree.Unit,
			Module:   tree.Path(p.Module),
			Name:     p.Name,
			Message:  fmt.Sprintf("mod %s: %s", p.Name, p.Message),
			Severity: SeverityError,
		})
	}
	for _, d := range m.Diagnostics() {
		sev := SeverityWarning
		if d.Error {
			sev = SeverityError
		}
		out = append(out, Diagnostic{Unit: tree.Unit, Module: d.Path, Name: d.Name, Message: d.Message, Severity: sev})
	}
	return out
}
