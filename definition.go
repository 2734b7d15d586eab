package xlpivot

import (
	"fmt"
	"maps"
	"slices"
)

// CountMeasure is the implicit record-count measure.
const CountMeasure = "__count"

// MeasureHeaderField is the pseudo field naming a measure in header domains.
const MeasureHeaderField = "measure"

// Measure is one aggregated field of a pivot.
type Measure struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty"`
}

// PivotDefinition is the persisted description of a pivot. The cache keeps a
// reference to it and never mutates it.
type PivotDefinition struct {
	ID          int            `json:"id" yaml:"id"`
	Model       string         `json:"model" yaml:"model"`
	RowGroupBys []string       `json:"rowGroupBys" yaml:"rowGroupBys"`
	ColGroupBys []string       `json:"colGroupBys" yaml:"colGroupBys"`
	Measures    []Measure      `json:"measures" yaml:"measures"`
	Domain      Domain         `json:"domain" yaml:"domain"`
	Context     map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
}

// Validate checks the fields a pivot cannot work without.
func (d *PivotDefinition) Validate() error {
	if d.Model == "" {
		return fmt.Errorf("pivot %d: model is required", d.ID)
	}
	if len(d.Measures) == 0 {
		return fmt.Errorf("pivot %d: at least one measure is required", d.ID)
	}
	seen := make(map[string]bool, len(d.Measures))
	for _, m := range d.Measures {
		if m.Field == "" {
			return fmt.Errorf("pivot %d: measure without field", d.ID)
		}
		if seen[m.Field] {
			return fmt.Errorf("pivot %d: duplicated measure %q", d.ID, m.Field)
		}
		seen[m.Field] = true
	}
	if err := d.Domain.Validate(); err != nil {
		return fmt.Errorf("pivot %d: %w", d.ID, err)
	}
	return nil
}

// Measure returns the measure with the given field name.
func (d *PivotDefinition) Measure(name string) (Measure, bool) {
	for _, m := range d.Measures {
		if m.Field == name {
			return m, true
		}
	}
	return Measure{}, false
}

// MeasureNames returns the measure field names in definition order.
func (d *PivotDefinition) MeasureNames() []string {
	names := make([]string, len(d.Measures))
	for i, m := range d.Measures {
		names[i] = m.Field
	}
	return names
}

// GroupBys returns row group-bys followed by column group-bys.
func (d *PivotDefinition) GroupBys() []string {
	out := make([]string, 0, len(d.RowGroupBys)+len(d.ColGroupBys))
	out = append(out, d.RowGroupBys...)
	return append(out, d.ColGroupBys...)
}

// Clone returns a copy that shares nothing mutable with d.
func (d *PivotDefinition) Clone() *PivotDefinition {
	c := *d
	c.RowGroupBys = slices.Clone(d.RowGroupBys)
	c.ColGroupBys = slices.Clone(d.ColGroupBys)
	c.Measures = slices.Clone(d.Measures)
	c.Domain = slices.Clone(d.Domain)
	c.Context = maps.Clone(d.Context)
	return &c
}

// operatorFor resolves a measure's aggregation operator: the explicit one,
// otherwise the field's group operator, otherwise sum.
func operatorFor(m Measure, fields Fields) string {
	if m.Operator != "" {
		return m.Operator
	}
	if m.Field == CountMeasure {
		return "sum"
	}
	if f, ok := fields.Get(m.Field); ok && f.GroupOperator != "" {
		return f.GroupOperator
	}
	return "sum"
}
