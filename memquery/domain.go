package memquery

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/javajack/xlpivot"
)

// filterEnv is the environment a compiled domain runs in. Condition i
// compares vals[i], taken from the record, with args[i], taken from the
// domain. Both are brought to one comparable shape before every run.
type filterEnv struct {
	Vals []any `expr:"vals"`
	Args []any `expr:"args"`
}

// conditionExpr renders condition i with operator op as an expr-lang
// boolean expression.
func conditionExpr(op string, i int) string {
	v := "vals[" + strconv.Itoa(i) + "]"
	a := "args[" + strconv.Itoa(i) + "]"
	switch op {
	case "=", "==":
		return "(" + v + " == " + a + ")"
	case "!=", "<>":
		return "(" + v + " != " + a + ")"
	case "<", "<=", ">", ">=":
		return "(" + v + " != nil and " + v + " " + op + " " + a + ")"
	case "in":
		return "any(" + v + ", # in " + a + ")"
	case "not in":
		return "(not any(" + v + ", # in " + a + "))"
	case "like":
		return "(" + v + " contains " + a + ")"
	case "not like":
		return "(not (" + v + " contains " + a + "))"
	case "ilike":
		return "(lower(" + v + ") contains lower(" + a + "))"
	case "not ilike":
		return "(not (lower(" + v + ") contains lower(" + a + ")))"
	}
	return "false"
}

// domainExpr translates a prefix-notation domain into one expr-lang boolean
// expression. Top-level terms are AND-ed.
func domainExpr(d xlpivot.Domain) (string, error) {
	var (
		terms []string
		pos   int
		cond  int
	)
	var parse func() (string, error)
	parse = func() (string, error) {
		if pos >= len(d) {
			return "", fmt.Errorf("memquery: domain operator missing operand")
		}
		e := d[pos]
		pos++
		switch x := e.(type) {
		case xlpivot.Condition:
			s := conditionExpr(strings.ToLower(x.Operator), cond)
			cond++
			return s, nil
		case xlpivot.DomainOp:
			left, err := parse()
			if err != nil {
				return "", err
			}
			if x == xlpivot.OpNot {
				return "(not " + left + ")", nil
			}
			right, err := parse()
			if err != nil {
				return "", err
			}
			switch x {
			case xlpivot.OpAnd:
				return "(" + left + " and " + right + ")", nil
			case xlpivot.OpOr:
				return "(" + left + " or " + right + ")", nil
			}
			return "", fmt.Errorf("memquery: unknown domain operator %q", string(x))
		}
		return "", fmt.Errorf("memquery: unexpected domain element %T", e)
	}
	for pos < len(d) {
		t, err := parse()
		if err != nil {
			return "", err
		}
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		return "true", nil
	}
	return strings.Join(terms, " and "), nil
}

func conditions(d xlpivot.Domain) []xlpivot.Condition {
	var out []xlpivot.Condition
	for _, e := range d {
		if c, ok := e.(xlpivot.Condition); ok {
			out = append(out, c)
		}
	}
	return out
}

func (d *Dataset) compile(expression string) (*vm.Program, error) {
	if cached, ok := d.programs.Load(expression); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(expression, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile domain %q: %w", expression, err)
	}
	d.programs.Store(expression, program)
	return program, nil
}

// filter returns the records of m matching domain.
func (d *Dataset) filter(m *Model, domain xlpivot.Domain) ([]Record, error) {
	expression, err := domainExpr(domain)
	if err != nil {
		return nil, err
	}
	program, err := d.compile(expression)
	if err != nil {
		return nil, err
	}
	conds := conditions(domain)
	env := filterEnv{Vals: make([]any, len(conds)), Args: make([]any, len(conds))}
	var out []Record
	for _, rec := range m.Records {
		for i, c := range conds {
			env.Vals[i], env.Args[i] = d.operands(m, rec, c)
		}
		ok, err := expr.Run(program, env)
		if err != nil {
			return nil, fmt.Errorf("evaluate domain %q: %w", expression, err)
		}
		if ok.(bool) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// operands returns the record side and the domain side of one condition in
// the shape its operator compares: id lists for in, text for like, numbers
// or text otherwise. Equality treats nil and false as the same empty value.
func (d *Dataset) operands(m *Model, rec Record, c xlpivot.Condition) (any, any) {
	field, _ := m.Fields.Get(c.Field)
	value := rec[c.Field]
	switch strings.ToLower(c.Operator) {
	case "in", "not in":
		return anySlice(idsOf(value)), anySlice(listOf(c.Value))
	case "ilike", "not ilike", "like", "not like":
		text := ""
		if value != nil {
			text = xlpivot.FormatScalar(value)
			if field.Type == xlpivot.FieldMany2One {
				if name, ok := d.displayName(field.Relation, text); ok {
					text = name
				}
			}
		}
		return text, xlpivot.FormatScalar(c.Value)
	case "=", "==", "!=", "<>":
		if isFalsy(value) || isFalsy(c.Value) {
			return isFalsy(value), isFalsy(c.Value)
		}
	case "<", "<=", ">", ">=":
		if value == nil {
			return nil, nil
		}
	}
	return comparablePair(value, c.Value)
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// idsOf returns the comparable keys of a record value: every id of a
// relational value, the value itself otherwise.
func idsOf(v any) []string {
	if v == nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		keys := make([]string, len(list))
		for i, x := range list {
			keys[i] = xlpivot.FormatScalar(x)
		}
		return keys
	}
	return []string{xlpivot.FormatScalar(v)}
}

func listOf(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, len(x))
		for i, item := range x {
			out[i] = xlpivot.FormatScalar(item)
		}
		return out
	case []int:
		out := make([]string, len(x))
		for i, item := range x {
			out[i] = strconv.Itoa(item)
		}
		return out
	case []string:
		return x
	case nil:
		return nil
	}
	return []string{xlpivot.FormatScalar(v)}
}

func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	}
	return false
}

// comparablePair brings two values to one type: float64 when both are
// numbers, date-aware text otherwise.
func comparablePair(a, b any) (any, any) {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa, fb
		}
	}
	return dateText(a), dateText(b)
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}

func dateText(v any) string {
	if t, ok := v.(time.Time); ok {
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	}
	return xlpivot.FormatScalar(v)
}
