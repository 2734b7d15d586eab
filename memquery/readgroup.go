package memquery

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/javajack/xlpivot"
)

// ReadGroup filters the records of req.Model with req.Domain, groups them by
// every group-by and aggregates each measure per group. Groups come out in
// first-appearance order.
func (d *Dataset) ReadGroup(ctx context.Context, req xlpivot.ReadGroupRequest) ([]xlpivot.GroupRow, error) {
	m, err := d.model(req.Model)
	if err != nil {
		return nil, err
	}
	records, err := d.filter(m, req.Domain)
	if err != nil {
		return nil, err
	}

	type group struct {
		key     []any
		records []Record
	}
	var (
		order  []string
		groups = make(map[string]*group)
	)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		combos, err := d.groupKeys(m, rec, req.GroupBys)
		if err != nil {
			return nil, err
		}
		for _, combo := range combos {
			k := comboKey(combo)
			g, ok := groups[k]
			if !ok {
				g = &group{key: combo}
				groups[k] = g
				order = append(order, k)
			}
			g.records = append(g.records, rec)
		}
	}

	rows := make([]xlpivot.GroupRow, 0, len(order))
	for _, k := range order {
		g := groups[k]
		row := xlpivot.GroupRow{xlpivot.CountMeasure: len(g.records)}
		for i, gb := range req.GroupBys {
			row[gb] = g.key[i]
		}
		for _, spec := range req.Measures {
			field, operator, _ := strings.Cut(spec, ":")
			if operator == "" {
				operator = "sum"
			}
			v, err := aggregate(operator, field, g.records)
			if err != nil {
				return nil, err
			}
			row[field] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// groupKeys returns every combination of grouped values a record falls
// into. Many2many values put the record in one group per id.
func (d *Dataset) groupKeys(m *Model, rec Record, groupBys []string) ([][]any, error) {
	combos := [][]any{{}}
	for _, spec := range groupBys {
		gb := xlpivot.ParseGroupBy(spec)
		field, ok := m.Fields.Get(gb.Field)
		if !ok {
			return nil, fmt.Errorf("memquery: model has no field %q", gb.Field)
		}
		values := d.groupValues(field, gb.Interval, rec[gb.Field])
		next := make([][]any, 0, len(combos)*len(values))
		for _, c := range combos {
			for _, v := range values {
				next = append(next, append(slices.Clone(c), v))
			}
		}
		combos = next
	}
	return combos, nil
}

// groupValues renders a record value the way grouped results label it:
// relational values as [id, name], dates in the interval's wire format,
// missing values as false.
func (d *Dataset) groupValues(field xlpivot.Field, interval xlpivot.Interval, v any) []any {
	if v == nil {
		return []any{false}
	}
	switch {
	case field.Type == xlpivot.FieldMany2Many:
		ids := idsOf(v)
		if len(ids) == 0 {
			return []any{false}
		}
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = d.pair(field.Relation, id)
		}
		return out
	case field.Type == xlpivot.FieldMany2One:
		return []any{d.pair(field.Relation, xlpivot.FormatScalar(v))}
	case field.IsDate():
		t, ok := parseDate(v)
		if !ok {
			return []any{false}
		}
		if interval == xlpivot.IntervalNone {
			interval = xlpivot.DefaultDateInterval
		}
		return []any{xlpivot.FormatWireDate(interval, t)}
	}
	return []any{v}
}

func (d *Dataset) pair(model, id string) []any {
	var rawID any = id
	if n, err := strconv.Atoi(id); err == nil {
		rawID = n
	}
	if name, ok := d.displayName(model, id); ok {
		return []any{rawID, name}
	}
	return []any{rawID, false}
}

func parseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
		if t, err := dateparse.ParseIn(x, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func comboKey(combo []any) string {
	parts := make([]string, len(combo))
	for i, v := range combo {
		if pair, ok := v.([]any); ok && len(pair) > 0 {
			v = pair[0]
		}
		parts[i] = strconv.Quote(fmt.Sprintf("%T:%v", v, v))
	}
	return strings.Join(parts, ",")
}

func aggregate(operator, field string, records []Record) (any, error) {
	var values []any
	for _, rec := range records {
		if v, ok := rec[field]; ok && v != nil {
			values = append(values, v)
		}
	}
	switch operator {
	case "sum":
		var sum float64
		for _, v := range values {
			sum += toFloat(v)
		}
		return sum, nil
	case "avg":
		if len(values) == 0 {
			return 0.0, nil
		}
		var sum float64
		for _, v := range values {
			sum += toFloat(v)
		}
		return sum / float64(len(values)), nil
	case "min", "max":
		if len(values) == 0 {
			return 0.0, nil
		}
		result := math.Inf(1)
		if operator == "max" {
			result = math.Inf(-1)
		}
		for _, v := range values {
			if operator == "min" {
				result = math.Min(result, toFloat(v))
			} else {
				result = math.Max(result, toFloat(v))
			}
		}
		return result, nil
	case "count":
		return float64(len(values)), nil
	case "count_distinct":
		seen := make(map[string]bool)
		for _, v := range values {
			seen[xlpivot.FormatScalar(v)] = true
		}
		return float64(len(seen)), nil
	case "bool_and":
		for _, v := range values {
			if b, _ := v.(bool); !b {
				return false, nil
			}
		}
		return true, nil
	case "bool_or":
		for _, v := range values {
			if b, _ := v.(bool); b {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, fmt.Errorf("memquery: unsupported aggregate %q on %q", operator, field)
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float64:
		return x
	case float32:
		return float64(x)
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

// FieldMetadata returns the fields of a model.
func (d *Dataset) FieldMetadata(ctx context.Context, model string) (xlpivot.Fields, error) {
	m, err := d.model(model)
	if err != nil {
		return nil, err
	}
	return maps.Clone(m.Fields), nil
}

// DisplayName returns the label of a model, or its name.
func (d *Dataset) DisplayName(ctx context.Context, model string) (string, error) {
	m, err := d.model(model)
	if err != nil {
		return "", err
	}
	if m.Label != "" {
		return m.Label, nil
	}
	return model, nil
}

// OrderValues orders candidate values. Field "id" follows the record order of
// the model; selection fields follow their choice list; other fields sort
// numerically when every value is a number, as text otherwise.
func (d *Dataset) OrderValues(ctx context.Context, req xlpivot.OrderRequest) ([]string, error) {
	m, err := d.model(req.Model)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(req.Values))
	for _, v := range req.Values {
		want[v] = true
	}
	if req.Field == "id" {
		var out []string
		for _, rec := range m.Records {
			if id := xlpivot.FormatScalar(rec["id"]); want[id] {
				out = append(out, id)
				delete(want, id)
			}
		}
		return out, nil
	}
	field, _ := m.Fields.Get(req.Field)
	if field.Type == xlpivot.FieldSelection {
		var out []string
		for _, opt := range field.Selection {
			if want[opt.Value] {
				out = append(out, opt.Value)
			}
		}
		return out, nil
	}
	out := slices.Clone(req.Values)
	numeric := true
	for _, v := range out {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			numeric = false
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if numeric {
			a, _ := strconv.ParseFloat(out[i], 64)
			b, _ := strconv.ParseFloat(out[j], 64)
			return a < b
		}
		return out[i] < out[j]
	})
	return out, nil
}

// DisplayNames resolves the names of records of a model.
func (d *Dataset) DisplayNames(ctx context.Context, model string, ids []string) (map[string]string, error) {
	if _, err := d.model(model); err != nil {
		return nil, err
	}
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := d.displayName(model, id); ok {
			names[id] = name
		}
	}
	return names, nil
}
