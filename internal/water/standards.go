package water

import (
	"sync"
)

// Standard is the acceptable range for one parameter. A nil bound means the
// range is open on that side.
type Standard struct {
	Min          *float64 `json:"min,omitempty" yaml:"min"`
	Max          *float64 `json:"max,omitempty" yaml:"max"`
	Ideal        *float64 `json:"ideal,omitempty" yaml:"ideal"`
	Unit         string   `json:"unit,omitempty" yaml:"unit"`
	Description  string   `json:"description,omitempty" yaml:"description"`
	LowSolution  string   `json:"lowSolution,omitempty" yaml:"lowSolution"`
	HighSolution string   `json:"highSolution,omitempty" yaml:"highSolution"`
}

// Bounded reports whether at least one side of the range is set.
func (s Standard) Bounded() bool {
	return s.Min != nil || s.Max != nil
}

// Solution returns the remediation text for a status, or "" for normal.
func (s Standard) Solution(st Status) string {
	switch st {
	case StatusLow:
		return s.LowSolution
	case StatusHigh:
		return s.HighSolution
	default:
		return ""
	}
}

// StandardsTable maps parameters to their standards.
type StandardsTable map[Parameter]Standard

// Lookup returns the standard for p. Unknown parameters get the zero
// Standard, which classifies every value as normal.
func (t StandardsTable) Lookup(p Parameter) Standard {
	if t == nil {
		return Standard{}
	}
	return t[p]
}

// Clone returns a shallow copy of the table.
func (t StandardsTable) Clone() StandardsTable {
	out := make(StandardsTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// DefaultStandards returns the built-in river-water standards.
func DefaultStandards() StandardsTable {
	return StandardsTable{
		ParamPH: {
			Min:          Float(6.5),
			Max:          Float(8.5),
			Ideal:        Float(7.0),
			Unit:         "",
			Description:  "Acceptable pH range for river water",
			LowSolution:  "Add lime (calcium hydroxide) or sodium bicarbonate to raise pH. Monitor alkalinity levels.",
			HighSolution: "Add food-grade citric acid or carbon dioxide injection. Install pH monitoring systems.",
		},
		ParamTemperature: {
			Min:          Float(20),
			Max:          Float(30),
			Ideal:        Float(25),
			Unit:         "°C",
			Description:  "Optimal temperature range for aquatic life",
			LowSolution:  "Implement thermal pollution controls and riparian buffer zones.",
			HighSolution: "Install cooling towers and increase water flow. Monitor climate change impacts.",
		},
		ParamEC: {
			Min:          Float(150),
			Max:          Float(500),
			Ideal:        Float(300),
			Unit:         "µS/cm",
			Description:  "Electrical conductivity",
			LowSolution:  "Add mineral supplements and implement soil conservation practices.",
			HighSolution: "Install reverse osmosis systems and implement industrial discharge controls.",
		},
		ParamTDS: {
			Min:          Float(100),
			Max:          Float(500),
			Ideal:        Float(250),
			Unit:         "mg/L",
			Description:  "Total dissolved solids",
			LowSolution:  "Implement mineral supplementation programs.",
			HighSolution: "Install advanced filtration systems and implement industrial waste controls.",
		},
		ParamTurbidity: {
			Min:          Float(0),
			Max:          Float(5),
			Ideal:        Float(1),
			Unit:         "NTU",
			Description:  "Turbidity level",
			LowSolution:  "Monitor natural sedimentation and implement erosion control measures.",
			HighSolution: "Install coagulation-flocculation systems and implement erosion controls.",
		},
	}
}

// Registry holds the active standards table and is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	table StandardsTable
}

// NewRegistry creates a registry seeded with table (or the defaults when nil).
func NewRegistry(table StandardsTable) *Registry {
	if table == nil {
		table = DefaultStandards()
	}
	return &Registry{table: table.Clone()}
}

// Get returns a copy of the active table.
func (r *Registry) Get() StandardsTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Clone()
}

// Lookup returns the active standard for p.
func (r *Registry) Lookup(p Parameter) Standard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Lookup(p)
}

// Replace swaps the whole table.
func (r *Registry) Replace(table StandardsTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = table.Clone()
}

// Merge overlays the ranges and unit from partial onto the active table.
// Remediation text already present is kept when partial has none.
func (r *Registry) Merge(partial StandardsTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p, s := range partial {
		cur := r.table[p]
		if s.Min != nil {
			cur.Min = s.Min
		}
		if s.Max != nil {
			cur.Max = s.Max
		}
		if s.Ideal != nil {
			cur.Ideal = s.Ideal
		}
		if s.Unit != "" {
			cur.Unit = s.Unit
		}
		if s.Description != "" {
			cur.Description = s.Description
		}
		if s.LowSolution != "" {
			cur.LowSolution = s.LowSolution
		}
		if s.HighSolution != "" {
			cur.HighSolution = s.HighSolution
		}
		r.table[p] = cur
	}
}
