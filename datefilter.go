package xlpivot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Relative year values of a date filter.
const (
	YearThis            = "this_year"
	YearLast            = "last_year"
	YearAntepenultimate = "antepenultimate_year"
)

var quarterPeriods = map[string]int{
	"first_quarter":  1,
	"second_quarter": 2,
	"third_quarter":  3,
	"fourth_quarter": 4,
}

// DateValue is the value of a date filter: a year, optionally narrowed to a
// month ("january") or a quarter ("first_quarter").
type DateValue struct {
	Year   string `json:"year,omitempty" yaml:"year,omitempty"`
	Period string `json:"period,omitempty" yaml:"period,omitempty"`
}

// IsZero reports whether the value selects nothing.
func (v DateValue) IsZero() bool {
	return v.Year == "" && v.Period == ""
}

// resolveYear turns the year component into a calendar year. A missing year
// means the current one.
func (v DateValue) resolveYear(now time.Time) (int, error) {
	switch v.Year {
	case "", YearThis:
		return now.Year(), nil
	case YearLast:
		return now.Year() - 1, nil
	case YearAntepenultimate:
		return now.Year() - 2, nil
	}
	y, err := strconv.Atoi(v.Year)
	if err != nil {
		return 0, fmt.Errorf("date filter: invalid year %q", v.Year)
	}
	return y, nil
}

func monthOf(period string) (time.Month, bool) {
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(m.String(), period) {
			return m, true
		}
	}
	return 0, false
}

// Range returns the first and last instant covered by the value.
func (v DateValue) Range(now time.Time) (start, end time.Time, err error) {
	year, err := v.resolveYear(now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	switch {
	case v.Period == "":
		start = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(1, 0, 0)
	case quarterPeriods[v.Period] > 0:
		q := quarterPeriods[v.Period]
		start = time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 3, 0)
	default:
		m, ok := monthOf(v.Period)
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("date filter: invalid period %q", v.Period)
		}
		start = time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	}
	return start, end.Add(-time.Second), nil
}

// Label renders the value as "2024", "Q1 2024" or "January 2024".
func (v DateValue) Label(now time.Time) string {
	year, err := v.resolveYear(now)
	if err != nil {
		return v.Year
	}
	if q := quarterPeriods[v.Period]; q > 0 {
		return fmt.Sprintf("Q%d %d", q, year)
	}
	if m, ok := monthOf(v.Period); ok {
		return fmt.Sprintf("%s %d", m, year)
	}
	return strconv.Itoa(year)
}

// dateRangeDomain builds field >= start AND field <= end in the storage
// format of the field type.
func dateRangeDomain(field string, typ FieldType, v DateValue, now time.Time) (Domain, error) {
	start, end, err := v.Range(now)
	if err != nil {
		return nil, err
	}
	layout := "2006-01-02"
	if typ == FieldDatetime {
		layout = "2006-01-02 15:04:05"
	}
	return AndDomains(
		Cond(field, ">=", start.Format(layout)),
		Cond(field, "<=", end.Format(layout)),
	), nil
}

// toDateValue accepts a DateValue or its decoded map form.
func toDateValue(v any) (DateValue, bool) {
	switch x := v.(type) {
	case nil:
		return DateValue{}, true
	case DateValue:
		return x, true
	case *DateValue:
		if x == nil {
			return DateValue{}, true
		}
		return *x, true
	case map[string]any:
		var dv DateValue
		if y, ok := x["year"]; ok && y != nil {
			dv.Year = FormatScalar(y)
		}
		if p, ok := x["period"]; ok && p != nil {
			dv.Period = FormatScalar(p)
		}
		return dv, true
	}
	return DateValue{}, false
}
