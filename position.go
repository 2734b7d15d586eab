package xlpivot

import (
	"strconv"
	"strings"
)

// Caches maps pivot ids to their loaded caches.
type Caches map[int]*PivotCache

func (cs Caches) lookup(arg *Node) (*PivotCache, string, bool) {
	raw, ok := arg.LiteralValue()
	if !ok {
		return nil, "", false
	}
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, raw, false
	}
	c, ok := cs[id]
	return c, raw, ok && c != nil
}

// domainStart returns the index of the first domain argument of a pivot
// call, or -1 for other nodes.
func domainStart(n *Node) int {
	if n.Kind != NodeFunc {
		return -1
	}
	switch n.Func {
	case FuncPivot:
		return 2
	case FuncPivotHeader:
		return 1
	}
	return -1
}

// AbsoluteToRelative replaces many2one record ids in PIVOT and PIVOT.HEADER
// domains with PIVOT.POSITION calls. Every other node is kept as is.
func AbsoluteToRelative(ast *Node, caches Caches) *Node {
	return Rewrite(ast, func(n *Node) *Node {
		start := domainStart(n)
		if start < 0 || len(n.Args) == 0 {
			return n
		}
		c, id, ok := caches.lookup(n.Args[0])
		if !ok {
			return n
		}
		for i := start; i+1 < len(n.Args); i += 2 {
			fieldName, ok := n.Args[i].LiteralValue()
			if !ok || !n.Args[i+1].IsLiteral() {
				continue
			}
			field, ok := c.Field(fieldName)
			if !ok || field.Type != FieldMany2One {
				continue
			}
			value, _ := n.Args[i+1].LiteralValue()
			pos := indexOf(c.GetFieldValues(fieldName), value)
			if pos < 0 {
				continue
			}
			n.Args[i+1] = PositionCall(id, fieldName, pos+1)
		}
		return n
	})
}

// RelativeToAbsolute resolves every PIVOT.POSITION call to the value at that
// position. Positions past the end, and unknown pivots, become IDNotFound.
func RelativeToAbsolute(ast *Node, caches Caches) *Node {
	return Rewrite(ast, func(n *Node) *Node {
		if n.Kind != NodeFunc || n.Func != FuncPivotPosition || len(n.Args) != 3 {
			return n
		}
		value, err := resolvePosition(n, caches)
		if err != nil {
			return Str(IDNotFound)
		}
		return Str(value)
	})
}

func resolvePosition(n *Node, caches Caches) (string, error) {
	c, _, ok := caches.lookup(n.Args[0])
	if !ok {
		return "", ErrUnknownPivot
	}
	field, ok1 := n.Args[1].LiteralValue()
	raw, ok2 := n.Args[2].LiteralValue()
	if !ok1 || !ok2 {
		return "", ErrInvalidFormula
	}
	pos, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrInvalidFormula
	}
	values := c.GetFieldValues(field)
	if pos < 1 || pos > len(values) {
		return "", ErrPositionOutOfRange
	}
	return values[pos-1], nil
}

// MakeRelative rewrites formula text from absolute to relative form. Text
// without pivot calls, and formulas with nothing to rewrite, are returned
// untouched. A rewritten formula is printed in canonical form: arguments
// joined by commas without spaces and resolved values as text literals. The
// round trip through MakeAbsolute is byte for byte only for canonical input,
// such as the formulas InsertPivot writes.
func MakeRelative(formula string, caches Caches) (string, error) {
	return rewriteText(formula, func(ast *Node) *Node { return AbsoluteToRelative(ast, caches) })
}

// MakeAbsolute rewrites formula text from relative to absolute form. Like
// MakeRelative it prints rewritten formulas in canonical form.
func MakeAbsolute(formula string, caches Caches) (string, error) {
	return rewriteText(formula, func(ast *Node) *Node { return RelativeToAbsolute(ast, caches) })
}

func rewriteText(formula string, fn func(*Node) *Node) (string, error) {
	if !IsFormula(formula) || !containsPivotCall(formula) {
		return formula, nil
	}
	ast, err := ParseFormula(formula)
	if err != nil {
		return formula, err
	}
	out := FormatFormula(fn(ast))
	if out == FormatFormula(ast) {
		return formula, nil
	}
	return out, nil
}

func containsPivotCall(formula string) bool {
	return strings.Contains(strings.ToUpper(formula), funcPivot)
}

func indexOf(values []string, v string) int {
	for i, x := range values {
		if x == v {
			return i
		}
	}
	return -1
}
