package xlpivot

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadWorkbook reads every sheet of an xlsx stream into a Document. Formula
// cells keep their formula, other cells their formatted value.
func LoadWorkbook(r io.Reader) (*Document, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f)
}

// OpenWorkbook reads the xlsx file at path.
func OpenWorkbook(path string) (*Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %q: %w", path, err)
	}
	defer f.Close()
	return readWorkbook(f)
}

func readWorkbook(f *excelize.File) (*Document, error) {
	doc := NewDocument()
	for _, name := range f.GetSheetList() {
		sheet := doc.Sheet(name)
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read rows from sheet %q: %w", name, err)
		}
		nrows, ncols := sheetExtent(f, name, rows)
		for rowIdx := 0; rowIdx < nrows; rowIdx++ {
			for colIdx := 0; colIdx < ncols; colIdx++ {
				ref := CellRef{Row: rowIdx, Col: colIdx}
				formula, err := f.GetCellFormula(name, ref.CellName())
				if err == nil && formula != "" {
					sheet.Set(ref, "="+formula)
					continue
				}
				if rowIdx < len(rows) && colIdx < len(rows[rowIdx]) {
					sheet.Set(ref, rows[rowIdx][colIdx])
				}
			}
		}
	}
	return doc, nil
}

// sheetExtent returns the number of rows and columns to scan. GetRows trims
// trailing cells without a value, which drops formulas that were never
// calculated, so the recorded sheet dimension widens the scan.
func sheetExtent(f *excelize.File, name string, rows [][]string) (int, int) {
	nrows, ncols := len(rows), 0
	for _, row := range rows {
		ncols = max(ncols, len(row))
	}
	dim, err := f.GetSheetDimension(name)
	if err != nil || dim == "" {
		return nrows, ncols
	}
	parts := strings.Split(dim, ":")
	last, err := ParseCellRef(parts[len(parts)-1])
	if err != nil {
		return nrows, ncols
	}
	return max(nrows, last.Row+1), max(ncols, last.Col+1)
}

// WriteWorkbook writes the document as xlsx, formulas included.
func WriteWorkbook(doc *Document, w io.Writer) error {
	return writeWorkbook(doc, w, writeContent)
}

// WriteValues writes the document as xlsx with every formula cell replaced
// by its last evaluated value.
func WriteValues(doc *Document, w io.Writer) error {
	return writeWorkbook(doc, w, writeValue)
}

// SaveWorkbook writes the document, formulas included, to path.
func SaveWorkbook(doc *Document, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	if err := WriteWorkbook(doc, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type cellWriter func(f *excelize.File, sheet, cell string, c *Cell) error

func writeContent(f *excelize.File, sheet, cell string, c *Cell) error {
	if c.IsFormula() {
		return f.SetCellFormula(sheet, cell, c.Content[1:])
	}
	return writeLiteral(f, sheet, cell, c.Content)
}

func writeValue(f *excelize.File, sheet, cell string, c *Cell) error {
	if !c.IsFormula() {
		return writeLiteral(f, sheet, cell, c.Content)
	}
	if c.Value == nil {
		return nil
	}
	return f.SetCellValue(sheet, cell, c.Value)
}

func writeLiteral(f *excelize.File, sheet, cell, content string) error {
	if n, err := strconv.ParseFloat(content, 64); err == nil {
		return f.SetCellValue(sheet, cell, n)
	}
	return f.SetCellValue(sheet, cell, content)
}

func writeWorkbook(doc *Document, w io.Writer, write cellWriter) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range doc.Sheets() {
		name := SafeSheetName(s.Name)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return fmt.Errorf("rename sheet %q: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %q: %w", name, err)
		}
		var last CellRef
		for _, ref := range s.Refs() {
			c, _ := s.Get(ref)
			if err := write(f, name, ref.CellName(), c); err != nil {
				return fmt.Errorf("write %s!%s: %w", name, ref.CellName(), err)
			}
			last.Row = max(last.Row, ref.Row)
			last.Col = max(last.Col, ref.Col)
		}
		if s.Len() > 0 {
			if err := f.SetSheetDimension(name, "A1:"+last.CellName()); err != nil {
				return fmt.Errorf("set dimension of %q: %w", name, err)
			}
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
