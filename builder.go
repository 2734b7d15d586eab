package xlpivot

import (
	"context"
	"fmt"
	"slices"
	"sort"
)

// BuildCache constructs a PivotCache from the flat rows of one grouped
// aggregation over every row and column group-by of def. The orderer decides
// the order of non-date group values; nil keeps first-appearance order.
func BuildCache(ctx context.Context, rows []GroupRow, fields Fields, modelLabel string, def *PivotDefinition, orderer ValueOrderer) (*PivotCache, error) {
	c := &PivotCache{
		def:         def,
		fields:      fields,
		modelLabel:  modelLabel,
		groups:      make(map[string][]groupEntry),
		groupIndex:  make(map[string]map[string]int),
		labels:      make(map[string]map[string]string),
		usedValues:  make(map[string]struct{}),
		usedHeaders: make(map[string]struct{}),
	}
	for _, gb := range def.RowGroupBys {
		c.rowGroupBys = append(c.rowGroupBys, normalizeGroupBy(fields, gb))
	}
	for _, gb := range def.ColGroupBys {
		c.colGroupBys = append(c.colGroupBys, normalizeGroupBy(fields, gb))
	}
	groupBys := append(slices.Clone(c.rowGroupBys), c.colGroupBys...)

	buckets := make(map[string]*bucket, len(groupBys))
	for _, gb := range groupBys {
		if _, ok := buckets[gb]; !ok {
			buckets[gb] = newBucket()
		}
	}

	for i, row := range rows {
		c.measureRows = append(c.measureRows, measureRowOf(row, def))
		c.cacheKeys = append(c.cacheKeys, i)
		for gb, b := range buckets {
			parsed := ParseGroupBy(gb)
			field, ok := fields.Get(parsed.Field)
			if !ok {
				return nil, fmt.Errorf("pivot %d: group-by %q: unknown field", def.ID, gb)
			}
			gv := EncodeGroupValue(field, parsed.Interval, rawGroupValue(row, gb, parsed))
			b.add(gv.ID, i)
			if gv.HasLabel {
				c.setLabelLocked(gb, gv.ID, gv.Label)
			}
		}
	}

	for gb, b := range buckets {
		ordered, err := orderValues(ctx, b, gb, fields, def, orderer)
		if err != nil {
			return nil, fmt.Errorf("pivot %d: order values of %q: %w", def.ID, gb, err)
		}
		entries := make([]groupEntry, len(ordered))
		index := make(map[string]int, len(ordered))
		for i, v := range ordered {
			entries[i] = groupEntry{value: v, rows: b.rows[v]}
			index[v] = i
		}
		c.groups[gb] = entries
		c.groupIndex[gb] = index
	}

	c.buildRows(0, c.cacheKeys, nil)
	c.rows = append(c.rows, Row{})

	if len(c.colGroupBys) > 0 {
		c.buildCols(0, c.cacheKeys, nil)
	}
	for _, m := range def.Measures {
		c.cols = append(c.cols, Column{Measure: m.Field})
	}
	return c, nil
}

// buildRows emits one row per non-empty combination, parents before children.
func (c *PivotCache) buildRows(level int, keys []int, prefix []string) {
	if level >= len(c.rowGroupBys) {
		return
	}
	for _, e := range c.groups[c.rowGroupBys[level]] {
		sub := intersectSorted(keys, e.rows)
		if len(sub) == 0 {
			continue
		}
		values := append(slices.Clone(prefix), e.value)
		c.rows = append(c.rows, Row{Values: values})
		c.buildRows(level+1, sub, values)
	}
}

// buildCols emits one column per measure for every non-empty leaf
// combination of the column group-bys.
func (c *PivotCache) buildCols(level int, keys []int, prefix []string) {
	for _, e := range c.groups[c.colGroupBys[level]] {
		sub := intersectSorted(keys, e.rows)
		if len(sub) == 0 {
			continue
		}
		values := append(slices.Clone(prefix), e.value)
		if level == len(c.colGroupBys)-1 {
			for _, m := range c.def.Measures {
				c.cols = append(c.cols, Column{Values: values, Measure: m.Field})
			}
			continue
		}
		c.buildCols(level+1, sub, values)
	}
}

func (c *PivotCache) setLabelLocked(groupBy, value, label string) {
	if c.labels[groupBy] == nil {
		c.labels[groupBy] = make(map[string]string)
	}
	c.labels[groupBy][value] = label
}

// bucket accumulates the measure-row indices of each distinct value of one
// group-by, remembering first-appearance order.
type bucket struct {
	order []string
	rows  map[string][]int
}

func newBucket() *bucket {
	return &bucket{rows: make(map[string][]int)}
}

func (b *bucket) add(value string, row int) {
	if _, ok := b.rows[value]; !ok {
		b.order = append(b.order, value)
	}
	b.rows[value] = append(b.rows[value], row)
}

func measureRowOf(row GroupRow, def *PivotDefinition) MeasureRow {
	mr := MeasureRow{Values: make(map[string]any, len(def.Measures)), Count: toInt(row[CountMeasure])}
	for _, m := range def.Measures {
		if m.Field == CountMeasure {
			mr.Values[m.Field] = float64(mr.Count)
			continue
		}
		switch v := row[m.Field].(type) {
		case bool, nil:
			mr.Values[m.Field] = v
		default:
			mr.Values[m.Field] = toFloat(v)
		}
	}
	return mr
}

func rawGroupValue(row GroupRow, gb string, parsed GroupBy) any {
	if v, ok := row[gb]; ok {
		return v
	}
	return row[parsed.Field]
}

func toInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	}
	return 0
}

// orderValues sorts the distinct values of one group-by. Dates sort by bucket
// start (quarter keys sort as strings); other fields follow the orderer. The
// undefined bucket always comes last.
func orderValues(ctx context.Context, b *bucket, gb string, fields Fields, def *PivotDefinition, orderer ValueOrderer) ([]string, error) {
	parsed := ParseGroupBy(gb)
	field, _ := fields.Get(parsed.Field)

	hasUndefined := false
	values := make([]string, 0, len(b.order))
	for _, v := range b.order {
		if v == UndefinedValue && field.Type != FieldBoolean {
			hasUndefined = true
			continue
		}
		values = append(values, v)
	}

	switch {
	case field.IsDate() && parsed.Interval == IntervalQuarter:
		sort.Strings(values)
	case field.IsDate():
		sort.SliceStable(values, func(i, j int) bool {
			ti, _ := ParseStorageDate(parsed.Interval, values[i])
			tj, _ := ParseStorageDate(parsed.Interval, values[j])
			return ti.Before(tj)
		})
	case orderer != nil && len(values) > 0:
		req := OrderRequest{Model: def.Model, Field: parsed.Field, Values: values, Context: def.Context}
		if field.IsRelational() {
			req.Model = field.Relation
			req.Field = "id"
		}
		ordered, err := orderer.OrderValues(ctx, req)
		if err != nil {
			return nil, err
		}
		values = mergeOrder(ordered, values)
	}
	if hasUndefined {
		values = append(values, UndefinedValue)
	}
	return values, nil
}

// mergeOrder keeps the ordered values that are candidates, then appends the
// candidates the orderer did not return.
func mergeOrder(ordered, candidates []string) []string {
	want := make(map[string]bool, len(candidates))
	for _, v := range candidates {
		want[v] = true
	}
	out := make([]string, 0, len(candidates))
	for _, v := range ordered {
		if want[v] {
			out = append(out, v)
			delete(want, v)
		}
	}
	for _, v := range candidates {
		if want[v] {
			out = append(out, v)
		}
	}
	return out
}
