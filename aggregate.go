package xlpivot

import (
	"fmt"
	"math"
)

// MeasureRow holds the aggregated measures of one distinct group combination
// returned by the query, plus its record count.
type MeasureRow struct {
	Values map[string]any
	Count  int
}

// aggregate combines the values of measure over several measure rows.
func aggregate(operator, measure string, rows []MeasureRow) (any, error) {
	switch operator {
	case "sum", "count_distinct":
		var sum float64
		for _, r := range rows {
			sum += toFloat(r.Values[measure])
		}
		return sum, nil
	case "avg":
		var total float64
		var count int
		for _, r := range rows {
			total += toFloat(r.Values[measure]) * float64(r.Count)
			count += r.Count
		}
		if count == 0 {
			return 0.0, nil
		}
		return total / float64(count), nil
	case "min", "max":
		result := math.Inf(1)
		if operator == "max" {
			result = math.Inf(-1)
		}
		for _, r := range rows {
			v := toFloat(r.Values[measure])
			if operator == "min" {
				result = math.Min(result, v)
			} else {
				result = math.Max(result, v)
			}
		}
		return result, nil
	case "count":
		var count int
		for _, r := range rows {
			count += r.Count
		}
		return float64(count), nil
	case "bool_and":
		for _, r := range rows {
			if !truthy(r.Values[measure]) {
				return false, nil
			}
		}
		return true, nil
	case "bool_or":
		for _, r := range rows {
			if truthy(r.Values[measure]) {
				return true, nil
			}
		}
		return false, nil
	case "array_agg":
		return "", fmt.Errorf("aggregate %s: %w", operator, ErrNotImplemented)
	default:
		return "", fmt.Errorf("aggregate %q: %w", operator, ErrUnknownOperator)
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	default:
		return toFloat(x) != 0
	}
}
