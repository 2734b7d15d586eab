package xlpivot

import (
	"fmt"

	"go.uber.org/multierr"
)

// ExportTemplate rewrites every pivot formula of doc to its relative form so
// the document can be reused over another dataset. Cells that fail to parse
// are left as they are and reported in the combined error.
func ExportTemplate(doc *Document, caches Caches) error {
	var errs error
	for _, sheet := range doc.Sheets() {
		for _, ref := range sheet.Refs() {
			cell, _ := sheet.Get(ref)
			if !cell.IsFormula() {
				continue
			}
			next, err := MakeRelative(cell.Content, caches)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", ref, err))
				continue
			}
			if next != cell.Content {
				sheet.Set(ref, next)
			}
		}
	}
	return errs
}

// ImportTemplate resolves every PIVOT.POSITION of doc against caches. A row
// whose pivot cells all reference positions that no longer exist is removed;
// in other rows only those cells are blanked.
func ImportTemplate(doc *Document, caches Caches) error {
	var errs error
	for _, sheet := range doc.Sheets() {
		rows := sheet.Rows()
		for i := len(rows) - 1; i >= 0; i-- {
			if err := importRow(sheet, rows[i], caches); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

func importRow(sheet *Sheet, row int, caches Caches) error {
	var (
		errs    error
		invalid []CellRef
		valid   bool
	)
	for _, ref := range sheet.RowRefs(row) {
		cell, _ := sheet.Get(ref)
		if !cell.IsFormula() || !containsPivotCall(cell.Content) {
			continue
		}
		ast, err := ParseFormula(cell.Content)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ref, err))
			continue
		}
		resolved := RelativeToAbsolute(ast, caches)
		if hasMissingID(resolved) {
			invalid = append(invalid, ref)
			continue
		}
		if hasPivotCall(resolved) {
			valid = true
		}
		if text := FormatFormula(resolved); text != FormatFormula(ast) {
			sheet.Set(ref, text)
		}
	}
	switch {
	case len(invalid) > 0 && !valid:
		sheet.DeleteRow(row)
	default:
		for _, ref := range invalid {
			sheet.Set(ref, "")
		}
	}
	return errs
}

// hasMissingID reports whether a pivot call of the tree has an IDNotFound
// argument.
func hasMissingID(ast *Node) bool {
	found := false
	Walk(ast, func(n *Node) {
		if domainStart(n) < 0 {
			return
		}
		for _, a := range n.Args {
			if a.Kind == NodeString && a.Value == IDNotFound {
				found = true
			}
		}
	})
	return found
}

func hasPivotCall(ast *Node) bool {
	found := false
	Walk(ast, func(n *Node) {
		if domainStart(n) >= 0 {
			found = true
		}
	})
	return found
}
