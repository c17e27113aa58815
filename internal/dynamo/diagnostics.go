package dynamo

import (
	"fmt"
	"sort"
)

// WarningKind classifies a recoverable condition.
type WarningKind string

const (
	WarnInstability     WarningKind = "instability"
	WarnEnergyDrift     WarningKind = "energy_drift"
	WarnGrowth          WarningKind = "growth"
	WarnRadius          WarningKind = "radius"
	WarnDivergence      WarningKind = "divergence"
	WarnDivergentSample WarningKind = "divergent_sample"
	WarnResidual        WarningKind = "residual"
	WarnRecovered       WarningKind = "recovered"
	WarnStepSize        WarningKind = "step_size"
	WarnCancellation    WarningKind = "cancellation"
	WarnInvalidPoint    WarningKind = "invalid_point"
)

// Warning is a non-fatal condition raised by a stepper or solver. It never
// alters subsequent computation.
type Warning struct {
	Kind    WarningKind
	Step    int
	Value   float64
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] step %d: %s (%.3e)", w.Kind, w.Step, w.Message, w.Value)
}

// Diagnostics accumulates warnings and per-kind counters for the final report.
type Diagnostics struct {
	Warnings []Warning
	counts   map[WarningKind]int
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{counts: make(map[WarningKind]int)}
}

func (d *Diagnostics) Add(ws ...Warning) {
	if d.counts == nil {
		d.counts = make(map[WarningKind]int)
	}
	for _, w := range ws {
		d.Warnings = append(d.Warnings, w)
		d.counts[w.Kind]++
	}
}

func (d *Diagnostics) Count(kind WarningKind) int {
	return d.counts[kind]
}

func (d *Diagnostics) Len() int {
	return len(d.Warnings)
}

// Counts returns a copy of the per-kind counters.
func (d *Diagnostics) Counts() map[string]int {
	out := make(map[string]int, len(d.counts))
	for k, v := range d.counts {
		out[string(k)] = v
	}
	return out
}

// Kinds returns the kinds seen so far in a stable order.
func (d *Diagnostics) Kinds() []WarningKind {
	kinds := make([]WarningKind, 0, len(d.counts))
	for k := range d.counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
