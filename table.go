package xlpivot

import "strconv"

// IDNotFound replaces a PIVOT.POSITION whose position no longer exists.
const IDNotFound = "#IDNOTFOUND"

// totalLabel is the header of the Total row and the total columns.
const totalLabel = "Total"

// ValueDomain returns the flattened domain of the value cell at the given
// row and column group values.
func (c *PivotCache) ValueDomain(rowValues, colValues []string) []string {
	domain := make([]string, 0, 2*(len(rowValues)+len(colValues)))
	for i, v := range rowValues {
		domain = append(domain, c.rowGroupBys[i], v)
	}
	for i, v := range colValues {
		domain = append(domain, c.colGroupBys[i], v)
	}
	return domain
}

// RowHeaderDomain returns the flattened domain of a row header.
func (c *PivotCache) RowHeaderDomain(values []string) []string {
	domain := make([]string, 0, 2*len(values))
	for i, v := range values {
		domain = append(domain, c.rowGroupBys[i], v)
	}
	return domain
}

// ColumnHeaderDomain returns the flattened domain of a column header. A
// non-empty measure adds the trailing measure pair.
func (c *PivotCache) ColumnHeaderDomain(values []string, measure string) []string {
	domain := make([]string, 0, 2*len(values)+2)
	for i, v := range values {
		domain = append(domain, c.colGroupBys[i], v)
	}
	if measure != "" {
		domain = append(domain, MeasureHeaderField, measure)
	}
	return domain
}

// ValueFormula renders =PIVOT("id","measure","field","value",...).
func ValueFormula(pivotID int, measure string, domain []string) string {
	args := []*Node{Str(strconv.Itoa(pivotID)), Str(measure)}
	for _, part := range domain {
		args = append(args, Str(part))
	}
	return FormatFormula(Call(funcPivot, args...))
}

// HeaderFormula renders =PIVOT.HEADER("id","field","value",...).
func HeaderFormula(pivotID int, domain []string) string {
	args := []*Node{Str(strconv.Itoa(pivotID))}
	for _, part := range domain {
		args = append(args, Str(part))
	}
	return FormatFormula(Call(funcPivotHeader, args...))
}

// PositionCall builds PIVOT.POSITION("id","field",position).
func PositionCall(pivotID, field string, position int) *Node {
	return Call(funcPivotPosition, Str(pivotID), Str(field), Num(position))
}

// Table lays the whole pivot out as a grid of formulas. The first column
// holds row headers; the first ColGroupBys+1 rows hold column headers, the
// last of them the measure headers. The top-left block is empty.
func (c *PivotCache) Table() [][]string {
	id := c.def.ID
	levels := len(c.colGroupBys)
	width := len(c.cols) + 1
	grid := make([][]string, 0, levels+1+len(c.rows))

	for band := 0; band <= levels; band++ {
		line := make([]string, width)
		for j, col := range c.cols {
			values, measure := col.HeaderAt(band, levels)
			line[j+1] = HeaderFormula(id, c.ColumnHeaderDomain(values, measure))
		}
		grid = append(grid, line)
	}
	for _, row := range c.rows {
		line := make([]string, width)
		line[0] = HeaderFormula(id, c.RowHeaderDomain(row.Values))
		for j, col := range c.cols {
			line[j+1] = ValueFormula(id, col.Measure, c.ValueDomain(row.Values, col.Values))
		}
		grid = append(grid, line)
	}
	return grid
}

// InsertPivot writes the formula grid of the cache into sheet, with its
// top-left corner at origin. It returns the area covered.
func InsertPivot(doc *Document, sheet string, origin CellRef, c *PivotCache) AreaRef {
	grid := c.Table()
	s := doc.Sheet(sheet)
	for i, line := range grid {
		for j, content := range line {
			if content == "" {
				continue
			}
			s.Set(CellRef{Row: origin.Row + i, Col: origin.Col + j}, content)
		}
	}
	last := CellRef{Sheet: sheet, Row: origin.Row + len(grid) - 1, Col: origin.Col + len(grid[0]) - 1}
	first := CellRef{Sheet: sheet, Row: origin.Row, Col: origin.Col}
	return AreaRef{First: first, Last: last}
}
