package xlpivot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// OperatorPolicy decides what the evaluator does with aggregation operators
// the cache does not know.
type OperatorPolicy int

const (
	// PolicyDegrade logs unknown operators and evaluates them to "".
	// array_agg still fails with ErrNotImplemented.
	PolicyDegrade OperatorPolicy = iota
	// PolicyFailFast returns ErrUnknownOperator to the caller.
	PolicyFailFast
)

// Evaluator resolves PIVOT, PIVOT.HEADER, PIVOT.POSITION and FILTER.VALUE
// formulas against the caches of a PivotStore.
type Evaluator struct {
	store   *PivotStore
	filters *FilterStore
	logger  *zap.Logger
	policy  OperatorPolicy
}

// NewEvaluator creates an evaluator over store. filters may be nil when the
// document has no global filters.
func NewEvaluator(store *PivotStore, filters *FilterStore, opts ...Option) *Evaluator {
	o := buildOptions(opts)
	return &Evaluator{store: store, filters: filters, logger: o.logger, policy: o.policy}
}

// pivotCall is a PIVOT or PIVOT.HEADER call with its arguments resolved.
type pivotCall struct {
	id      int
	cache   *PivotCache
	measure string
	domain  []string
}

// Evaluate computes the value of a formula whose outermost call is one of
// the pivot functions.
func (ev *Evaluator) Evaluate(ctx context.Context, formula string) (any, error) {
	ast, err := ParseFormula(formula)
	if err != nil {
		return nil, err
	}
	return ev.evaluateNode(ctx, ast)
}

func (ev *Evaluator) evaluateNode(ctx context.Context, n *Node) (any, error) {
	if n.Kind != NodeFunc {
		return nil, fmt.Errorf("%s is not a pivot function: %w", n, ErrInvalidFormula)
	}
	switch n.Func {
	case FuncPivot:
		call, err := ev.resolveCall(ctx, n, true)
		if err != nil {
			return nil, err
		}
		return ev.measureValue(call)
	case FuncPivotHeader:
		call, err := ev.resolveCall(ctx, n, false)
		if err != nil {
			return nil, err
		}
		call.cache.MarkAsHeaderUsed(call.domain)
		return ev.headerLabel(ctx, call.cache, call.domain), nil
	case FuncPivotPosition:
		return ev.position(ctx, n)
	case FuncFilterValue:
		return ev.filterValue(ctx, n)
	}
	return nil, fmt.Errorf("%s is not a pivot function: %w", n.Value, ErrInvalidFormula)
}

func (ev *Evaluator) measureValue(call *pivotCall) (any, error) {
	c := call.cache
	m, ok := c.Definition().Measure(call.measure)
	if !ok {
		return nil, fmt.Errorf("pivot %d: %q: %w", call.id, call.measure, ErrUnknownMeasure)
	}
	c.MarkAsValueUsed(call.domain, call.measure)
	operator := operatorFor(m, c.Fields())
	v, err := c.GetMeasureValue(call.measure, operator, call.domain)
	if errors.Is(err, ErrUnknownOperator) && ev.policy == PolicyDegrade {
		ev.logger.Warn("unknown aggregation operator",
			zap.Int("pivot", call.id), zap.String("measure", call.measure), zap.String("operator", operator))
		return "", nil
	}
	if err != nil {
		return nil, fmt.Errorf("pivot %d: %w", call.id, err)
	}
	return v, nil
}

// resolveCall evaluates the arguments of a PIVOT or PIVOT.HEADER call and
// loads the pivot's cache.
func (ev *Evaluator) resolveCall(ctx context.Context, n *Node, withMeasure bool) (*pivotCall, error) {
	args, err := ev.argStrings(ctx, n.Args)
	if err != nil {
		return nil, err
	}
	minArgs := 1
	if withMeasure {
		minArgs = 2
	}
	if len(args) < minArgs || (len(args)-minArgs)%2 != 0 {
		return nil, fmt.Errorf("%s: want %d leading arguments and field/value pairs: %w", n.Value, minArgs, ErrInvalidFormula)
	}
	id, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return nil, fmt.Errorf("%s: pivot id %q: %w", n.Value, args[0], ErrInvalidFormula)
	}
	c, err := ev.store.Cache(ctx, id)
	if err != nil {
		return nil, err
	}
	call := &pivotCall{id: id, cache: c, domain: args[minArgs:]}
	if withMeasure {
		call.measure = args[1]
	}
	for i := 0; i < len(call.domain); i += 2 {
		field := call.domain[i]
		if field == MeasureHeaderField && !withMeasure {
			continue
		}
		if !c.isGroupBy(field) {
			return nil, fmt.Errorf("pivot %d: %q is not a group-by: %w", id, field, ErrInvalidFormula)
		}
	}
	return call, nil
}

func (c *PivotCache) isGroupBy(field string) bool {
	gb := c.NormalizeGroupBy(field)
	for _, g := range c.rowGroupBys {
		if g == gb {
			return true
		}
	}
	for _, g := range c.colGroupBys {
		if g == gb {
			return true
		}
	}
	return false
}

// argStrings evaluates call arguments to strings. Literals stand for
// themselves; nested PIVOT.POSITION and FILTER.VALUE calls are evaluated.
func (ev *Evaluator) argStrings(ctx context.Context, nodes []*Node) ([]string, error) {
	out := make([]string, len(nodes))
	for i, a := range nodes {
		s, err := ev.argString(ctx, a)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (ev *Evaluator) argString(ctx context.Context, n *Node) (string, error) {
	if v, ok := n.LiteralValue(); ok {
		return v, nil
	}
	switch {
	case n.Kind == NodeParen:
		return ev.argString(ctx, n.Args[0])
	case n.Kind == NodeFunc && (n.Func == FuncPivotPosition || n.Func == FuncFilterValue):
		v, err := ev.evaluateNode(ctx, n)
		if err != nil {
			return "", err
		}
		return FormatScalar(v), nil
	}
	return "", fmt.Errorf("unsupported argument %s: %w", n, ErrInvalidFormula)
}

func (ev *Evaluator) position(ctx context.Context, n *Node) (string, error) {
	args, err := ev.argStrings(ctx, n.Args)
	if err != nil {
		return "", err
	}
	if len(args) != 3 {
		return "", fmt.Errorf("%s: want pivot id, field and position: %w", n.Value, ErrInvalidFormula)
	}
	id, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return "", fmt.Errorf("%s: pivot id %q: %w", n.Value, args[0], ErrInvalidFormula)
	}
	pos, err := strconv.Atoi(strings.TrimSpace(args[2]))
	if err != nil {
		return "", fmt.Errorf("%s: position %q: %w", n.Value, args[2], ErrInvalidFormula)
	}
	c, err := ev.store.Cache(ctx, id)
	if err != nil {
		return "", err
	}
	values := c.GetFieldValues(args[1])
	if pos < 1 || pos > len(values) {
		return "", fmt.Errorf("pivot %d: %s position %d of %d: %w", id, args[1], pos, len(values), ErrPositionOutOfRange)
	}
	return values[pos-1], nil
}

func (ev *Evaluator) filterValue(ctx context.Context, n *Node) (string, error) {
	if ev.filters == nil {
		return "", fmt.Errorf("%s: no filters attached: %w", n.Value, ErrInvalidFormula)
	}
	args, err := ev.argStrings(ctx, n.Args)
	if err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", fmt.Errorf("%s: want one filter label: %w", n.Value, ErrInvalidFormula)
	}
	v, ok := ev.filters.DisplayValue(ctx, args[0])
	if !ok {
		return "", fmt.Errorf("%s: filter %q: %w", n.Value, args[0], ErrInvalidFormula)
	}
	return v, nil
}

// headerLabel returns the label of the innermost pair of a header domain.
func (ev *Evaluator) headerLabel(ctx context.Context, c *PivotCache, domain []string) string {
	if len(domain) < 2 {
		return totalLabel
	}
	field, value := domain[len(domain)-2], domain[len(domain)-1]
	if field == MeasureHeaderField {
		return measureLabel(c, value)
	}
	if c.HasLabel(field, value) {
		return c.GetLabel(field, value)
	}
	f, ok := c.Field(field)
	if !ok {
		return value
	}
	switch {
	case value == UndefinedValue && f.Type != FieldBoolean:
		return undefinedLabel
	case f.IsDate():
		interval := ParseGroupBy(c.NormalizeGroupBy(field)).Interval
		if t, ok := ParseStorageDate(interval, value); ok {
			return FormatWireDate(interval, t)
		}
		return value
	case f.IsRelational():
		ev.store.RequestLabel(ctx, c, field, value)
		return value
	case f.Type == FieldSelection:
		return f.SelectionLabel(value)
	}
	return c.GetLabel(field, value)
}

func measureLabel(c *PivotCache, measure string) string {
	if measure == CountMeasure {
		return "Count"
	}
	if f, ok := c.Fields().Get(measure); ok {
		return f.DisplayName()
	}
	return measure
}

// EvaluateDocument re-evaluates every pivot formula of doc and stores the
// results in the cells' Value. Usage tracking of the loaded caches is reset
// first, so afterwards it reflects exactly the formulas of doc. Pivot calls
// nested in other formulas are evaluated for usage tracking only. Failing
// cells get a nil value; their errors are combined.
func (ev *Evaluator) EvaluateDocument(ctx context.Context, doc *Document) error {
	for _, c := range ev.store.Caches() {
		c.ResetUsage()
	}
	var errs error
	doc.EachFormula(func(ref CellRef, cell *Cell) {
		ast, err := ParseFormula(cell.Content)
		if err != nil {
			if containsPivotCall(cell.Content) {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", ref, err))
			}
			return
		}
		if isPivotFunc(ast) {
			v, err := ev.evaluateNode(ctx, ast)
			if err != nil {
				cell.Value = nil
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", ref, err))
				return
			}
			cell.Value = v
			return
		}
		Walk(ast, func(n *Node) {
			if n.Kind == NodeFunc && (n.Func == FuncPivot || n.Func == FuncPivotHeader) {
				if _, err := ev.evaluateNode(ctx, n); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%s: %w", ref, err))
				}
			}
		})
	})
	return errs
}

func isPivotFunc(n *Node) bool {
	return n.Kind == NodeFunc && n.Func != FuncOther
}
