package xlpivot

import (
	"fmt"
	"strings"
)

// Describe returns a human-readable tree of a cache: its group-bys, measures,
// row hierarchy and column layout. Useful for debugging pivots.
func Describe(c *PivotCache) string {
	def := c.Definition()
	var b strings.Builder
	fmt.Fprintf(&b, "Pivot %d: %s (%s)\n", def.ID, c.ModelLabel(), def.Model)
	fmt.Fprintf(&b, "  rows: %s\n", joinOrDash(c.RowGroupBys()))
	fmt.Fprintf(&b, "  cols: %s\n", joinOrDash(c.ColGroupBys()))

	measures := make([]string, len(def.Measures))
	for i, m := range def.Measures {
		measures[i] = m.Field + ":" + operatorFor(m, c.Fields())
	}
	fmt.Fprintf(&b, "  measures: %s\n", joinOrDash(measures))

	fmt.Fprintf(&b, "  %d rows\n", c.RowCount())
	for _, row := range c.Rows() {
		depth := len(row.Values)
		label := totalLabel
		if depth > 0 {
			label = c.GetLabel(c.rowGroupBys[depth-1], row.Values[depth-1])
		}
		fmt.Fprintf(&b, "    %s%s\n", strings.Repeat("  ", max(depth-1, 0)), label)
	}

	fmt.Fprintf(&b, "  %d columns\n", c.ColumnCount())
	for _, col := range c.Columns() {
		labels := make([]string, len(col.Values))
		for i, v := range col.Values {
			labels[i] = c.GetLabel(c.colGroupBys[i], v)
		}
		if col.IsTotal() {
			labels = []string{totalLabel}
		}
		fmt.Fprintf(&b, "    %s / %s\n", strings.Join(labels, " / "), measureLabel(c, col.Measure))
	}
	return b.String()
}

func joinOrDash(parts []string) string {
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
