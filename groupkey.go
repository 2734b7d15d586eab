package xlpivot

import (
	"fmt"
	"strconv"
)

// UndefinedValue is the canonical key of the "no value" bucket.
const UndefinedValue = "false"

const undefinedLabel = "None"

// GroupValue is the canonical key of one grouped value and its display label.
type GroupValue struct {
	ID    string
	Label string
	// HasLabel is false for relational values delivered without a name.
	HasLabel bool
}

// EncodeGroupValue canonicalizes a raw grouped value for the given field and
// interval. Malformed dates degrade to the undefined bucket.
func EncodeGroupValue(field Field, interval Interval, raw any) GroupValue {
	if isUndefined(field, raw) {
		return GroupValue{ID: UndefinedValue, Label: undefinedLabel, HasLabel: true}
	}
	switch {
	case field.IsRelational():
		return encodeRelational(raw)
	case field.Type == FieldSelection:
		id := FormatScalar(raw)
		return GroupValue{ID: id, Label: field.SelectionLabel(id), HasLabel: true}
	case field.IsDate():
		if interval == IntervalNone {
			interval = DefaultDateInterval
		}
		s, ok := raw.(string)
		if !ok {
			return GroupValue{ID: UndefinedValue, Label: undefinedLabel, HasLabel: true}
		}
		t, ok := ParseWireDate(interval, s)
		if !ok {
			return GroupValue{ID: UndefinedValue, Label: undefinedLabel, HasLabel: true}
		}
		return GroupValue{ID: FormatStorageDate(interval, t), Label: s, HasLabel: true}
	default:
		s := FormatScalar(raw)
		return GroupValue{ID: s, Label: s, HasLabel: true}
	}
}

func encodeRelational(raw any) GroupValue {
	switch v := raw.(type) {
	case []any:
		if len(v) == 0 {
			return GroupValue{ID: UndefinedValue, Label: undefinedLabel, HasLabel: true}
		}
		id := FormatScalar(v[0])
		if len(v) > 1 {
			if name, ok := v[1].(string); ok {
				return GroupValue{ID: id, Label: name, HasLabel: true}
			}
		}
		return GroupValue{ID: id, Label: id}
	case [2]any:
		return encodeRelational([]any{v[0], v[1]})
	default:
		id := FormatScalar(v)
		return GroupValue{ID: id, Label: id}
	}
}

func isUndefined(field Field, raw any) bool {
	if raw == nil {
		return true
	}
	if b, ok := raw.(bool); ok && !b && field.Type != FieldBoolean {
		return true
	}
	return false
}

// FormatScalar stringifies a raw value the way canonical keys are written:
// integral floats lose their fraction, booleans become "true"/"false".
func FormatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return UndefinedValue
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
