package xlpivot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// Interval is the granularity applied to a date or datetime group-by.
type Interval string

const (
	IntervalNone    Interval = ""
	IntervalDay     Interval = "day"
	IntervalWeek    Interval = "week"
	IntervalMonth   Interval = "month"
	IntervalQuarter Interval = "quarter"
	IntervalYear    Interval = "year"
)

// DefaultDateInterval is used for date fields grouped without an interval.
const DefaultDateInterval = IntervalMonth

// Valid reports whether the interval is one of the known granularities.
func (i Interval) Valid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalQuarter, IntervalYear:
		return true
	}
	return false
}

// GroupBy is a parsed "field[:interval]" group-by specification.
type GroupBy struct {
	Field    string
	Interval Interval
}

// ParseGroupBy splits "date:month" into its field and interval.
func ParseGroupBy(s string) GroupBy {
	field, interval, _ := strings.Cut(strings.TrimSpace(s), ":")
	return GroupBy{Field: field, Interval: Interval(interval)}
}

// String formats the group-by back to "field[:interval]".
func (g GroupBy) String() string {
	if g.Interval == IntervalNone {
		return g.Field
	}
	return g.Field + ":" + string(g.Interval)
}

// normalizeGroupBy gives date fields their default interval so that
// "date" and "date:month" address the same group values.
func normalizeGroupBy(fields Fields, s string) string {
	gb := ParseGroupBy(s)
	if f, ok := fields.Get(gb.Field); ok && f.IsDate() {
		if gb.Interval == IntervalNone {
			gb.Interval = DefaultDateInterval
		}
		return gb.String()
	}
	return gb.Field
}

// precision is the finest calendar unit a date label spells out.
type precision int

const (
	precisionYear precision = iota
	precisionMonth
	precisionDay
)

// wireLayouts are the date labels emitted by grouped-aggregation queries,
// plus the storage-like forms some backends return instead.
var wireLayouts = []struct {
	layout    string
	precision precision
}{
	{"02 Jan 2006", precisionDay},
	{"2 Jan 2006", precisionDay},
	{"02 January 2006", precisionDay},
	{"2 January 2006", precisionDay},
	{"2006-01-02", precisionDay},
	{"2006-01-02 15:04:05", precisionDay},
	{"02/01/2006", precisionDay},
	{"January 2006", precisionMonth},
	{"Jan 2006", precisionMonth},
	{"01/2006", precisionMonth},
	{"2006", precisionYear},
}

// requiredPrecision is the coarsest label an interval can bucket.
func requiredPrecision(interval Interval) precision {
	switch interval {
	case IntervalYear:
		return precisionYear
	case IntervalMonth, IntervalQuarter, IntervalNone:
		return precisionMonth
	}
	return precisionDay
}

// ParseWireDate parses a raw grouped date label for the given interval. The
// label must be at least as precise as the interval: "15 July 2020" buckets
// by month, "2020" does not. It returns false when the value cannot be
// understood.
func ParseWireDate(interval Interval, s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	switch interval {
	case IntervalWeek:
		var w, y int
		if _, err := fmt.Sscanf(s, "W%d %d", &w, &y); err == nil {
			return isoWeekStart(y, w), true
		}
	case IntervalQuarter:
		var q, y int
		if _, err := fmt.Sscanf(s, "Q%d %d", &q, &y); err == nil && q >= 1 && q <= 4 {
			return time.Date(y, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	need := requiredPrecision(interval)
	for _, l := range wireLayouts {
		if l.precision < need {
			continue
		}
		if t, err := time.Parse(l.layout, s); err == nil {
			return t, true
		}
	}
	// Full timestamps in other shapes ("2020-07-15T10:30:00Z").
	if dateFields(s) >= 3 {
		if t, err := dateparse.ParseIn(s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// dateFields counts the runs of letters or digits in s.
func dateFields(s string) int {
	n := 0
	inField := false
	for _, r := range s {
		alnum := unicode.IsLetter(r) || unicode.IsDigit(r)
		if alnum && !inField {
			n++
		}
		inField = alnum
	}
	return n
}

// FormatWireDate renders a date the way grouped-aggregation results label it.
func FormatWireDate(interval Interval, t time.Time) string {
	switch interval {
	case IntervalDay:
		return t.Format("02 Jan 2006")
	case IntervalWeek:
		y, w := t.ISOWeek()
		return fmt.Sprintf("W%d %d", w, y)
	case IntervalQuarter:
		return fmt.Sprintf("Q%d %d", quarterOf(t), t.Year())
	case IntervalYear:
		return t.Format("2006")
	default:
		return t.Format("January 2006")
	}
}

// FormatStorageDate renders the canonical key of a date bucket:
// day DD/MM/YYYY, week WW/YYYY, month MM/YYYY, quarter Q/YYYY, year YYYY.
func FormatStorageDate(interval Interval, t time.Time) string {
	switch interval {
	case IntervalDay:
		return t.Format("02/01/2006")
	case IntervalWeek:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%02d/%04d", w, y)
	case IntervalQuarter:
		return fmt.Sprintf("%d/%04d", quarterOf(t), t.Year())
	case IntervalYear:
		return t.Format("2006")
	default:
		return t.Format("01/2006")
	}
}

// ParseStorageDate is the inverse of FormatStorageDate. The returned time is
// the first day of the bucket.
func ParseStorageDate(interval Interval, s string) (time.Time, bool) {
	switch interval {
	case IntervalDay:
		t, err := time.Parse("02/01/2006", s)
		return t, err == nil
	case IntervalWeek, IntervalQuarter:
		first, year, ok := strings.Cut(s, "/")
		if !ok {
			return time.Time{}, false
		}
		n, err1 := strconv.Atoi(first)
		y, err2 := strconv.Atoi(year)
		if err1 != nil || err2 != nil {
			return time.Time{}, false
		}
		if interval == IntervalWeek {
			if n < 1 || n > 53 {
				return time.Time{}, false
			}
			return isoWeekStart(y, n), true
		}
		if n < 1 || n > 4 {
			return time.Time{}, false
		}
		return time.Date(y, time.Month((n-1)*3+1), 1, 0, 0, 0, 0, time.UTC), true
	case IntervalYear:
		t, err := time.Parse("2006", s)
		return t, err == nil
	default:
		t, err := time.Parse("01/2006", s)
		return t, err == nil
	}
}

// IncrementStorageDate moves a canonical date key by n interval units.
func IncrementStorageDate(interval Interval, s string, n int) (string, bool) {
	t, ok := ParseStorageDate(interval, s)
	if !ok {
		return "", false
	}
	switch interval {
	case IntervalDay:
		t = t.AddDate(0, 0, n)
	case IntervalWeek:
		t = t.AddDate(0, 0, 7*n)
	case IntervalQuarter:
		t = t.AddDate(0, 3*n, 0)
	case IntervalYear:
		t = t.AddDate(n, 0, 0)
	default:
		t = t.AddDate(0, n, 0)
	}
	return FormatStorageDate(interval, t), true
}

func quarterOf(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// isoWeekStart returns the Monday of ISO week w of year y.
func isoWeekStart(y, w int) time.Time {
	jan4 := time.Date(y, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (w-1)*7)
}
