package xlpivot

import (
	"maps"
	"slices"
	"sync"
)

// Row is one row of the pivot: the canonical values of its row group-bys,
// from the outermost level down. The trailing Total row has no values.
type Row struct {
	Values []string
}

// Column is one spreadsheet column of the pivot: its column group values and
// the measure it shows. Total columns have no values.
type Column struct {
	Values  []string
	Measure string
}

// IsTotal reports whether the column is one of the trailing grand totals.
func (c Column) IsTotal() bool {
	return len(c.Values) == 0
}

// HeaderAt returns the header shown above the column at header band row
// band, for a pivot with levels column group-bys. Rows above the measure row
// show group prefixes; the last one shows the measure. Total columns show the
// Total header on every group row.
func (c Column) HeaderAt(band, levels int) (values []string, measure string) {
	if band >= levels {
		return c.Values, c.Measure
	}
	if c.IsTotal() {
		return nil, ""
	}
	return c.Values[:band+1], ""
}

type groupEntry struct {
	value string
	rows  []int
}

// PivotCache is the in-memory result of one pivot fetch. Apart from the label
// table and the used-domain sets it is immutable once built.
type PivotCache struct {
	def         *PivotDefinition
	fields      Fields
	modelLabel  string
	rowGroupBys []string
	colGroupBys []string

	rows        []Row
	cols        []Column
	groups      map[string][]groupEntry
	groupIndex  map[string]map[string]int
	measureRows []MeasureRow
	cacheKeys   []int

	mu          sync.RWMutex
	labels      map[string]map[string]string
	usedValues  map[string]struct{}
	usedHeaders map[string]struct{}
}

// Definition returns the pivot definition the cache was built for.
func (c *PivotCache) Definition() *PivotDefinition { return c.def }

// Fields returns the field metadata of the pivot's model.
func (c *PivotCache) Fields() Fields { return c.fields }

// ModelLabel returns the display name of the pivot's model.
func (c *PivotCache) ModelLabel() string { return c.modelLabel }

// RowGroupBys returns the normalized row group-bys.
func (c *PivotCache) RowGroupBys() []string { return c.rowGroupBys }

// ColGroupBys returns the normalized column group-bys.
func (c *PivotCache) ColGroupBys() []string { return c.colGroupBys }

// Field returns the metadata of the field behind a group-by spec.
func (c *PivotCache) Field(groupBy string) (Field, bool) {
	return c.fields.Get(ParseGroupBy(groupBy).Field)
}

// NormalizeGroupBy maps a group-by spec to the form the cache is keyed by.
func (c *PivotCache) NormalizeGroupBy(groupBy string) string {
	return normalizeGroupBy(c.fields, groupBy)
}

// Rows returns every row, Total last. The slice must not be modified.
func (c *PivotCache) Rows() []Row { return c.rows }

// RowCount returns the number of rows including Total.
func (c *PivotCache) RowCount() int { return len(c.rows) }

// GetRowValues returns the values of row i, or nil when out of range.
func (c *PivotCache) GetRowValues(i int) []string {
	if i < 0 || i >= len(c.rows) {
		return nil
	}
	return c.rows[i].Values
}

// Columns returns every spreadsheet column, totals last.
func (c *PivotCache) Columns() []Column { return c.cols }

// ColumnCount returns the number of spreadsheet columns including totals.
func (c *PivotCache) ColumnCount() int { return len(c.cols) }

// GetColumn returns column i.
func (c *PivotCache) GetColumn(i int) (Column, bool) {
	if i < 0 || i >= len(c.cols) {
		return Column{}, false
	}
	return c.cols[i], true
}

// GetFieldValues returns the ordered canonical values of a group-by.
func (c *PivotCache) GetFieldValues(groupBy string) []string {
	entries := c.groups[c.NormalizeGroupBy(groupBy)]
	values := make([]string, len(entries))
	for i, e := range entries {
		values[i] = e.value
	}
	return values
}

// GetLabel returns the display label of a group value. Values whose label is
// not known yet are returned as their own label.
func (c *PivotCache) GetLabel(groupBy, value string) string {
	if value == UndefinedValue {
		if f, ok := c.Field(groupBy); !ok || f.Type != FieldBoolean {
			return undefinedLabel
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if label, ok := c.labels[c.NormalizeGroupBy(groupBy)][value]; ok {
		return label
	}
	return value
}

// HasLabel reports whether the label of a group value is known.
func (c *PivotCache) HasLabel(groupBy, value string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.labels[c.NormalizeGroupBy(groupBy)][value]
	return ok
}

// SetLabel records a label in place.
func (c *PivotCache) SetLabel(groupBy, value, label string) {
	key := c.NormalizeGroupBy(groupBy)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.labels[key] == nil {
		c.labels[key] = make(map[string]string)
	}
	c.labels[key][value] = label
}

// WithLabel returns a copy of the cache whose label table has one entry
// overwritten. The copy shares every immutable part with c.
func (c *PivotCache) WithLabel(groupBy, value, label string) *PivotCache {
	c.mu.RLock()
	labels := make(map[string]map[string]string, len(c.labels))
	for k, v := range c.labels {
		labels[k] = maps.Clone(v)
	}
	usedValues := maps.Clone(c.usedValues)
	usedHeaders := maps.Clone(c.usedHeaders)
	c.mu.RUnlock()

	next := &PivotCache{
		def:         c.def,
		fields:      c.fields,
		modelLabel:  c.modelLabel,
		rowGroupBys: c.rowGroupBys,
		colGroupBys: c.colGroupBys,
		rows:        c.rows,
		cols:        c.cols,
		groups:      c.groups,
		groupIndex:  c.groupIndex,
		measureRows: c.measureRows,
		cacheKeys:   c.cacheKeys,
		labels:      labels,
		usedValues:  usedValues,
		usedHeaders: usedHeaders,
	}
	next.SetLabel(groupBy, value, label)
	return next
}

// GetMeasureValue aggregates measure over the measure rows matching the
// flattened field/value pairs of domain. No match yields "", a single match
// its stored value, several matches the operator's aggregate.
func (c *PivotCache) GetMeasureValue(measure, operator string, domain []string) (any, error) {
	matches := c.matchingRows(domain)
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		row := c.measureRows[matches[0]]
		if measure == CountMeasure {
			return float64(row.Count), nil
		}
		v, ok := row.Values[measure]
		if !ok || v == nil {
			return "", nil
		}
		return v, nil
	}
	rows := make([]MeasureRow, len(matches))
	for i, idx := range matches {
		rows[i] = c.measureRows[idx]
	}
	return aggregate(operator, measure, rows)
}

// matchingRows intersects the measure-row indices of every pair of domain.
func (c *PivotCache) matchingRows(domain []string) []int {
	keys := c.cacheKeys
	for i := 0; i+1 < len(domain); i += 2 {
		if domain[i] == MeasureHeaderField {
			continue
		}
		groupBy := c.NormalizeGroupBy(domain[i])
		idx, ok := c.groupIndex[groupBy][domain[i+1]]
		if !ok {
			return nil
		}
		keys = intersectSorted(keys, c.groups[groupBy][idx].rows)
		if len(keys) == 0 {
			return nil
		}
	}
	return keys
}

// GetTopGroupIndex returns the index of the spreadsheet column showing
// measure for the given column group values, or -1.
func (c *PivotCache) GetTopGroupIndex(values []string, measure string) int {
	for i, col := range c.cols {
		if col.Measure == measure && slices.Equal(col.Values, values) {
			return i
		}
	}
	return -1
}

// headerColumnIndex returns the first column whose header at band row band
// equals the given header, or -1.
func (c *PivotCache) headerColumnIndex(values []string, measure string, band int) int {
	levels := len(c.colGroupBys)
	for i, col := range c.cols {
		v, m := col.HeaderAt(band, levels)
		if m == measure && slices.Equal(v, values) {
			return i
		}
	}
	return -1
}

// bandHeaders returns the distinct headers of header band row band, left to
// right. A group header spans every column below it, so it is listed once.
func (c *PivotCache) bandHeaders(band int) []Column {
	levels := len(c.colGroupBys)
	var headers []Column
	for _, col := range c.cols {
		values, measure := col.HeaderAt(band, levels)
		if n := len(headers); n > 0 && headers[n-1].Measure == measure && slices.Equal(headers[n-1].Values, values) {
			continue
		}
		headers = append(headers, Column{Values: values, Measure: measure})
	}
	return headers
}

// GetRowIndex returns the index of the row with the given values, or -1.
func (c *PivotCache) GetRowIndex(values []string) int {
	for i, row := range c.rows {
		if slices.Equal(row.Values, values) {
			return i
		}
	}
	return -1
}

// IsGroupedByDate reports whether groupBys is a single date or datetime
// group-by.
func (c *PivotCache) IsGroupedByDate(groupBys []string) bool {
	if len(groupBys) != 1 {
		return false
	}
	f, ok := c.Field(groupBys[0])
	return ok && f.IsDate()
}

func intersectSorted(a, b []int) []int {
	out := make([]int, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}
