package xlpivot

import (
	"slices"
	"sort"
)

// Cell is the content of one document cell. Content is either a formula
// (leading "=") or literal text. Value holds the last evaluation result.
type Cell struct {
	Content string
	Value   any
}

// IsFormula reports whether the cell holds a formula.
func (c *Cell) IsFormula() bool {
	return IsFormula(c.Content)
}

// Sheet is a sparse grid of cells. Keys of cells never carry a sheet name.
type Sheet struct {
	Name  string
	cells map[CellRef]*Cell
}

func newSheet(name string) *Sheet {
	return &Sheet{Name: name, cells: make(map[CellRef]*Cell)}
}

func cellKey(ref CellRef) CellRef {
	return CellRef{Row: ref.Row, Col: ref.Col}
}

// Get returns the cell at ref.
func (s *Sheet) Get(ref CellRef) (*Cell, bool) {
	c, ok := s.cells[cellKey(ref)]
	return c, ok
}

// Content returns the content at ref, or "" for an empty cell.
func (s *Sheet) Content(ref CellRef) string {
	if c, ok := s.cells[cellKey(ref)]; ok {
		return c.Content
	}
	return ""
}

// Set replaces the content at ref and clears its value. Empty content
// removes the cell.
func (s *Sheet) Set(ref CellRef, content string) {
	if content == "" {
		delete(s.cells, cellKey(ref))
		return
	}
	s.cells[cellKey(ref)] = &Cell{Content: content}
}

// Len returns the number of non-empty cells.
func (s *Sheet) Len() int { return len(s.cells) }

// Refs returns the references of every non-empty cell in row-major order,
// qualified with the sheet name.
func (s *Sheet) Refs() []CellRef {
	refs := make([]CellRef, 0, len(s.cells))
	for ref := range s.cells {
		refs = append(refs, CellRef{Sheet: s.Name, Row: ref.Row, Col: ref.Col})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Row != refs[j].Row {
			return refs[i].Row < refs[j].Row
		}
		return refs[i].Col < refs[j].Col
	})
	return refs
}

// Rows returns the indices of rows holding at least one cell, ascending.
func (s *Sheet) Rows() []int {
	seen := make(map[int]bool)
	var rows []int
	for ref := range s.cells {
		if !seen[ref.Row] {
			seen[ref.Row] = true
			rows = append(rows, ref.Row)
		}
	}
	slices.Sort(rows)
	return rows
}

// RowRefs returns the references of the cells of one row, left to right.
func (s *Sheet) RowRefs(row int) []CellRef {
	var refs []CellRef
	for ref := range s.cells {
		if ref.Row == row {
			refs = append(refs, CellRef{Sheet: s.Name, Row: ref.Row, Col: ref.Col})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Col < refs[j].Col })
	return refs
}

// DeleteRow removes a row and shifts every row below it up by one.
// Formula references are not adjusted.
func (s *Sheet) DeleteRow(row int) {
	next := make(map[CellRef]*Cell, len(s.cells))
	for ref, c := range s.cells {
		switch {
		case ref.Row < row:
			next[ref] = c
		case ref.Row > row:
			next[CellRef{Row: ref.Row - 1, Col: ref.Col}] = c
		}
	}
	s.cells = next
}

// Document is an ordered set of sheets.
type Document struct {
	sheets []*Sheet
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{}
}

// Sheet returns the named sheet, creating it when absent.
func (d *Document) Sheet(name string) *Sheet {
	if s, ok := d.LookupSheet(name); ok {
		return s
	}
	s := newSheet(name)
	d.sheets = append(d.sheets, s)
	return s
}

// LookupSheet returns the named sheet if it exists.
func (d *Document) LookupSheet(name string) (*Sheet, bool) {
	for _, s := range d.sheets {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Sheets returns the sheets in document order.
func (d *Document) Sheets() []*Sheet { return d.sheets }

// Cell returns the cell at a sheet-qualified reference.
func (d *Document) Cell(ref CellRef) (*Cell, bool) {
	s, ok := d.LookupSheet(ref.Sheet)
	if !ok {
		return nil, false
	}
	return s.Get(ref)
}

// EachFormula calls fn for every formula cell, sheet by sheet in row-major
// order.
func (d *Document) EachFormula(fn func(ref CellRef, c *Cell)) {
	for _, s := range d.sheets {
		for _, ref := range s.Refs() {
			if c, _ := s.Get(ref); c.IsFormula() {
				fn(ref, c)
			}
		}
	}
}
