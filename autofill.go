package xlpivot

import (
	"context"
	"fmt"
	"slices"
)

// Direction is the axis an autofill drag moves along.
type Direction int

const (
	// DirectionColumn moves across columns (left/right).
	DirectionColumn Direction = iota
	// DirectionRow moves across rows (up/down).
	DirectionRow
)

func (d Direction) String() string {
	if d == DirectionRow {
		return "row"
	}
	return "column"
}

// NextAutofillValue returns the formula of the cell increment steps away from
// the pivot cell holding formula, along direction. It returns "" when the
// step leaves the pivot table. Formulas that are not PIVOT or PIVOT.HEADER
// calls are returned unchanged.
func (ev *Evaluator) NextAutofillValue(ctx context.Context, formula string, direction Direction, increment int) (string, error) {
	ast, err := ParseFormula(formula)
	if err != nil {
		return "", err
	}
	if increment == 0 || ast.Kind != NodeFunc || (ast.Func != FuncPivot && ast.Func != FuncPivotHeader) {
		return formula, nil
	}
	call, err := ev.resolveCall(ctx, ast, ast.Func == FuncPivot)
	if err != nil {
		return "", err
	}
	step := autofillStep{call: call, c: call.cache, inc: increment}
	if ast.Func == FuncPivot {
		return step.value(direction), nil
	}
	return step.header(direction)
}

type autofillStep struct {
	call *pivotCall
	c    *PivotCache
	inc  int
}

// split separates the pairs of a domain into row and column group values,
// each ordered by group-by level and cut at the first missing level.
func (s autofillStep) split(domain []string) (rowValues, colValues []string, measure string) {
	byGroupBy := make(map[string]string, len(domain)/2)
	for i := 0; i+1 < len(domain); i += 2 {
		if domain[i] == MeasureHeaderField {
			measure = domain[i+1]
			continue
		}
		byGroupBy[s.c.NormalizeGroupBy(domain[i])] = domain[i+1]
	}
	pick := func(groupBys []string) []string {
		var values []string
		for _, gb := range groupBys {
			v, ok := byGroupBy[gb]
			if !ok {
				break
			}
			values = append(values, v)
		}
		return values
	}
	return pick(s.c.rowGroupBys), pick(s.c.colGroupBys), measure
}

func (s autofillStep) valueFormula(measure string, rowValues, colValues []string) string {
	return ValueFormula(s.call.id, measure, s.c.ValueDomain(rowValues, colValues))
}

func (s autofillStep) rowHeaderFormula(values []string) string {
	return HeaderFormula(s.call.id, s.c.RowHeaderDomain(values))
}

func (s autofillStep) colHeaderFormula(values []string, measure string) string {
	return HeaderFormula(s.call.id, s.c.ColumnHeaderDomain(values, measure))
}

// incrementDate steps a single date group value; ok is false when the
// value is not a date key.
func (s autofillStep) incrementDate(groupBy, value string) (string, bool) {
	interval := ParseGroupBy(groupBy).Interval
	return IncrementStorageDate(interval, value, s.inc)
}

// value steps a PIVOT cell.
func (s autofillStep) value(direction Direction) string {
	c := s.c
	measure := s.call.measure
	rowValues, colValues, _ := s.split(s.call.domain)

	if direction == DirectionColumn {
		if c.IsGroupedByDate(c.colGroupBys) && len(colValues) == 1 {
			next, ok := s.incrementDate(c.colGroupBys[0], colValues[0])
			if !ok {
				return ""
			}
			return s.valueFormula(measure, rowValues, []string{next})
		}
		idx := c.GetTopGroupIndex(colValues, measure)
		if idx == -1 {
			return ""
		}
		next := idx + s.inc
		switch {
		case next == -1:
			return s.rowHeaderFormula(rowValues)
		case next < -1 || next >= c.ColumnCount():
			return ""
		}
		col := c.cols[next]
		return s.valueFormula(col.Measure, rowValues, col.Values)
	}

	if c.IsGroupedByDate(c.rowGroupBys) && len(rowValues) == 1 {
		next, ok := s.incrementDate(c.rowGroupBys[0], rowValues[0])
		if !ok {
			return ""
		}
		return s.valueFormula(measure, []string{next}, colValues)
	}
	idx := c.GetRowIndex(rowValues)
	if idx == -1 {
		return ""
	}
	next := idx + s.inc
	if next >= c.RowCount() {
		return ""
	}
	if next >= 0 {
		return s.valueFormula(measure, c.rows[next].Values, colValues)
	}
	levels := len(c.colGroupBys)
	band := levels + 1 + next
	if band < 0 {
		return ""
	}
	colIdx := c.GetTopGroupIndex(colValues, measure)
	if colIdx == -1 {
		return ""
	}
	values, m := c.cols[colIdx].HeaderAt(band, levels)
	return s.colHeaderFormula(values, m)
}

// header steps a PIVOT.HEADER cell. An empty domain is the Total row header.
func (s autofillStep) header(direction Direction) (string, error) {
	domain := s.call.domain
	if len(domain) == 0 {
		return s.rowHeader(direction, nil), nil
	}
	first := s.c.NormalizeGroupBy(domain[0])
	switch {
	case domain[0] == MeasureHeaderField || slices.Contains(s.c.colGroupBys, first):
		_, colValues, measure := s.split(domain)
		return s.colHeader(direction, colValues, measure), nil
	case slices.Contains(s.c.rowGroupBys, first):
		rowValues, _, _ := s.split(domain)
		return s.rowHeader(direction, rowValues), nil
	}
	return "", fmt.Errorf("pivot %d: %q is not a group-by: %w", s.call.id, domain[0], ErrInvalidFormula)
}

func (s autofillStep) rowHeader(direction Direction, values []string) string {
	c := s.c
	if direction == DirectionColumn {
		if s.inc <= 0 || s.inc-1 >= c.ColumnCount() {
			return ""
		}
		col := c.cols[s.inc-1]
		return s.valueFormula(col.Measure, values, col.Values)
	}
	if c.IsGroupedByDate(c.rowGroupBys) && len(values) == 1 {
		next, ok := s.incrementDate(c.rowGroupBys[0], values[0])
		if !ok {
			return ""
		}
		return s.rowHeaderFormula([]string{next})
	}
	idx := c.GetRowIndex(values)
	if idx == -1 {
		return ""
	}
	next := idx + s.inc
	if next < 0 || next >= c.RowCount() {
		return ""
	}
	return s.rowHeaderFormula(c.rows[next].Values)
}

func (s autofillStep) colHeader(direction Direction, values []string, measure string) string {
	c := s.c
	levels := len(c.colGroupBys)
	band := len(values) - 1
	if measure != "" {
		band = levels
	}

	if direction == DirectionColumn {
		if c.IsGroupedByDate(c.colGroupBys) && len(values) == 1 {
			next, ok := s.incrementDate(c.colGroupBys[0], values[0])
			if !ok {
				return ""
			}
			return s.colHeaderFormula([]string{next}, measure)
		}
		headers := c.bandHeaders(band)
		idx := slices.IndexFunc(headers, func(h Column) bool {
			return h.Measure == measure && slices.Equal(h.Values, values)
		})
		if idx == -1 {
			return ""
		}
		next := idx + s.inc
		if next < 0 || next >= len(headers) {
			return ""
		}
		return s.colHeaderFormula(headers[next].Values, headers[next].Measure)
	}

	idx := c.headerColumnIndex(values, measure, band)
	if idx == -1 {
		return ""
	}
	nextBand := band + s.inc
	if nextBand < 0 {
		return ""
	}
	col := c.cols[idx]
	if nextBand <= levels {
		v, m := col.HeaderAt(nextBand, levels)
		return s.colHeaderFormula(v, m)
	}
	row := nextBand - levels - 1
	if row >= c.RowCount() {
		return ""
	}
	return s.valueFormula(col.Measure, c.rows[row].Values, col.Values)
}
