package xlpivot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Severity indicates the severity of a validation issue.
type Severity int

const (
	SeverityError   Severity = iota // formula cannot be evaluated
	SeverityWarning                 // formula evaluates to an empty or stale result
)

// ValidationIssue is a single problem found in a pivot formula.
type ValidationIssue struct {
	Severity Severity
	CellRef  CellRef
	Message  string
}

// String formats the issue as "[ERROR] Sheet1!A2: message" or "[WARN] ...".
func (v ValidationIssue) String() string {
	sev := "ERROR"
	if v.Severity == SeverityWarning {
		sev = "WARN"
	}
	return fmt.Sprintf("[%s] %s: %s", sev, v.CellRef, v.Message)
}

// Validate checks every pivot formula of doc against the loaded caches
// without evaluating anything.
func Validate(doc *Document, caches Caches) []ValidationIssue {
	var issues []ValidationIssue
	doc.EachFormula(func(ref CellRef, cell *Cell) {
		if !containsPivotCall(cell.Content) {
			return
		}
		ast, err := ParseFormula(cell.Content)
		if err != nil {
			issues = append(issues, ValidationIssue{Severity: SeverityError, CellRef: ref, Message: err.Error()})
			return
		}
		Walk(ast, func(n *Node) {
			if n.Kind != NodeFunc {
				return
			}
			switch n.Func {
			case FuncPivot, FuncPivotHeader:
				issues = append(issues, validateCall(ref, n, caches)...)
			case FuncPivotPosition:
				if issue := validatePosition(ref, n, caches); issue != nil {
					issues = append(issues, *issue)
				}
			}
		})
	})
	return issues
}

func validateCall(ref CellRef, n *Node, caches Caches) []ValidationIssue {
	issue := func(sev Severity, format string, args ...any) ValidationIssue {
		return ValidationIssue{Severity: sev, CellRef: ref, Message: fmt.Sprintf(format, args...)}
	}
	start := domainStart(n)
	if len(n.Args) < start || (len(n.Args)-start)%2 != 0 {
		return []ValidationIssue{issue(SeverityError, "%s expects %d leading arguments and field/value pairs", n.Value, start)}
	}
	c, raw, ok := caches.lookup(n.Args[0])
	if !ok {
		if _, err := strconv.Atoi(strings.TrimSpace(raw)); err != nil && n.Args[0].IsLiteral() {
			return []ValidationIssue{issue(SeverityError, "invalid pivot id %q", raw)}
		}
		return []ValidationIssue{issue(SeverityError, "unknown pivot %s", n.Args[0])}
	}

	var issues []ValidationIssue
	if n.Func == FuncPivot {
		if measure, ok := n.Args[1].LiteralValue(); ok {
			if _, found := c.Definition().Measure(measure); !found {
				issues = append(issues, issue(SeverityError, "pivot %s has no measure %q", raw, measure))
			}
		}
	}
	for i := start; i+1 < len(n.Args); i += 2 {
		field, ok := n.Args[i].LiteralValue()
		if !ok {
			continue
		}
		if field == MeasureHeaderField && n.Func == FuncPivotHeader {
			continue
		}
		if !c.isGroupBy(field) {
			issues = append(issues, issue(SeverityError, "%q is not a group-by of pivot %s", field, raw))
			continue
		}
		value, ok := n.Args[i+1].LiteralValue()
		if !ok {
			continue
		}
		if value == IDNotFound {
			issues = append(issues, issue(SeverityWarning, "%q references a record that no longer exists", field))
			continue
		}
		if f, _ := c.Field(field); !f.IsDate() && indexOf(c.GetFieldValues(field), value) < 0 {
			issues = append(issues, issue(SeverityWarning, "value %q of %q is not in pivot %s", value, field, raw))
		}
	}
	return issues
}

func validatePosition(ref CellRef, n *Node, caches Caches) *ValidationIssue {
	if len(n.Args) != 3 {
		return &ValidationIssue{Severity: SeverityError, CellRef: ref, Message: n.Value + " expects pivot id, field and position"}
	}
	_, err := resolvePosition(n, caches)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPositionOutOfRange):
		return &ValidationIssue{Severity: SeverityWarning, CellRef: ref, Message: fmt.Sprintf("%s: %v", n, err)}
	}
	return &ValidationIssue{Severity: SeverityError, CellRef: ref, Message: fmt.Sprintf("%s: %v", n, err)}
}
