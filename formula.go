package xlpivot

import (
	"fmt"
	"strings"

	"github.com/xuri/efp"
)

// NodeKind is the syntactic kind of a formula AST node.
type NodeKind int

const (
	NodeFunc    NodeKind = iota // function call: Value is the name, Args the arguments
	NodeInfix                   // binary operation: Value is the operator, Args the two operands
	NodePrefix                  // unary prefix operation
	NodePostfix                 // unary postfix operation (%)
	NodeParen                   // parenthesised subexpression
	NodeString                  // text literal, Value unquoted
	NodeNumber                  // number literal, Value as written
	NodeBool                    // TRUE / FALSE
	NodeRef                     // cell or range reference
	NodeError                   // error literal such as #N/A
	NodeEmpty                   // omitted function argument
)

// FuncKind tags the function calls the pivot passes care about. It is
// resolved once when the node is built.
type FuncKind int

const (
	FuncOther FuncKind = iota
	FuncPivot
	FuncPivotHeader
	FuncPivotPosition
	FuncFilterValue
)

const (
	funcPivot         = "PIVOT"
	funcPivotHeader   = "PIVOT.HEADER"
	funcPivotPosition = "PIVOT.POSITION"
	funcFilterValue   = "FILTER.VALUE"
)

func funcKindOf(name string) FuncKind {
	switch strings.ToUpper(name) {
	case funcPivot:
		return FuncPivot
	case funcPivotHeader:
		return FuncPivotHeader
	case funcPivotPosition:
		return FuncPivotPosition
	case funcFilterValue:
		return FuncFilterValue
	}
	return FuncOther
}

// Node is one node of a parsed formula.
type Node struct {
	Kind  NodeKind
	Value string
	Func  FuncKind
	Args  []*Node
}

// Call builds a function call node.
func Call(name string, args ...*Node) *Node {
	return &Node{Kind: NodeFunc, Value: name, Func: funcKindOf(name), Args: args}
}

// Str builds a text literal node.
func Str(s string) *Node { return &Node{Kind: NodeString, Value: s} }

// Num builds a number literal node.
func Num(n int) *Node { return &Node{Kind: NodeNumber, Value: fmt.Sprint(n)} }

// IsLiteral reports whether the node is a text, number or boolean literal.
func (n *Node) IsLiteral() bool {
	return n.Kind == NodeString || n.Kind == NodeNumber || n.Kind == NodeBool
}

// LiteralValue returns the canonical string of a literal node.
func (n *Node) LiteralValue() (string, bool) {
	switch n.Kind {
	case NodeString, NodeNumber:
		return n.Value, true
	case NodeBool:
		return strings.ToLower(n.Value), true
	}
	return "", false
}

// IsFormula reports whether cell content is a formula.
func IsFormula(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "=")
}

// ParseFormula parses formula text, with or without its leading "=".
func ParseFormula(text string) (*Node, error) {
	src := strings.TrimPrefix(strings.TrimSpace(text), "=")
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("parse %q: empty formula: %w", text, ErrInvalidFormula)
	}
	ps := efp.ExcelParser()
	var tokens []efp.Token
	for _, tok := range ps.Parse(src) {
		if tok.TType == efp.TokenTypeWhitespace || tok.TType == efp.TokenTypeNoop {
			continue
		}
		tokens = append(tokens, tok)
	}
	p := &parser{tokens: tokens}
	n, err := p.parseExpr(0)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", text, err)
	}
	if !p.done() {
		return nil, fmt.Errorf("parse %q: unexpected %q: %w", text, p.peek().TValue, ErrInvalidFormula)
	}
	return n, nil
}

// FormatFormula prints an AST back to formula text with its leading "=".
func FormatFormula(n *Node) string {
	var b strings.Builder
	b.WriteByte('=')
	writeNode(&b, n)
	return b.String()
}

// String prints the node without the leading "=".
func (n *Node) String() string {
	var b strings.Builder
	writeNode(&b, n)
	return b.String()
}

func writeNode(b *strings.Builder, n *Node) {
	switch n.Kind {
	case NodeFunc:
		switch n.Value {
		case "ARRAY":
			b.WriteByte('{')
			writeJoined(b, n.Args, ";")
			b.WriteByte('}')
		case "ARRAYROW":
			writeJoined(b, n.Args, ",")
		default:
			b.WriteString(n.Value)
			b.WriteByte('(')
			writeJoined(b, n.Args, ",")
			b.WriteByte(')')
		}
	case NodeInfix:
		writeNode(b, n.Args[0])
		b.WriteString(n.Value)
		writeNode(b, n.Args[1])
	case NodePrefix:
		b.WriteString(n.Value)
		writeNode(b, n.Args[0])
	case NodePostfix:
		writeNode(b, n.Args[0])
		b.WriteString(n.Value)
	case NodeParen:
		b.WriteByte('(')
		writeNode(b, n.Args[0])
		b.WriteByte(')')
	case NodeString:
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(n.Value, `"`, `""`))
		b.WriteByte('"')
	case NodeEmpty:
	default:
		b.WriteString(n.Value)
	}
}

func writeJoined(b *strings.Builder, nodes []*Node, sep string) {
	for i, a := range nodes {
		if i > 0 {
			b.WriteString(sep)
		}
		writeNode(b, a)
	}
}

// Rewrite rebuilds the tree bottom-up, replacing each node with fn's result.
// The input tree is left untouched.
func Rewrite(n *Node, fn func(*Node) *Node) *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if len(n.Args) > 0 {
		cp.Args = make([]*Node, len(n.Args))
		for i, a := range n.Args {
			cp.Args[i] = Rewrite(a, fn)
		}
	}
	return fn(&cp)
}

// Walk visits every node depth-first, parents first.
func Walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, a := range n.Args {
		Walk(a, fn)
	}
}

// binaryPrecedence ranks infix operators; higher binds tighter.
func binaryPrecedence(op string) int {
	switch op {
	case "=", "<>", "<", ">", "<=", ">=":
		return 1
	case "&":
		return 2
	case "+", "-":
		return 3
	case "*", "/":
		return 4
	case "^":
		return 5
	case ":", " ", ",":
		return 7
	}
	return 3
}

type parser struct {
	tokens []efp.Token
	pos    int
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() efp.Token {
	if p.done() {
		return efp.Token{}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() efp.Token {
	t := p.peek()
	p.pos++
	return t
}

// parseExpr is a precedence-climbing parser over infix operators.
func (p *parser) parseExpr(minPrec int) (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for !p.done() {
		tok := p.peek()
		if tok.TType != efp.TokenTypeOperatorInfix {
			break
		}
		prec := binaryPrecedence(tok.TValue)
		if prec < minPrec {
			break
		}
		p.next()
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: NodeInfix, Value: tok.TValue, Args: []*Node{left, right}}
	}
	return left, nil
}

func (p *parser) parseUnary() (*Node, error) {
	if p.peek().TType == efp.TokenTypeOperatorPrefix {
		tok := p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodePrefix, Value: tok.TValue, Args: []*Node{operand}}, nil
	}
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().TType == efp.TokenTypeOperatorPostfix {
		tok := p.next()
		n = &Node{Kind: NodePostfix, Value: tok.TValue, Args: []*Node{n}}
	}
	return n, nil
}

func (p *parser) parsePrimary() (*Node, error) {
	if p.done() {
		return nil, fmt.Errorf("unexpected end of formula: %w", ErrInvalidFormula)
	}
	tok := p.next()
	switch tok.TType {
	case efp.TokenTypeOperand:
		return operandNode(tok), nil
	case efp.TokenTypeFunction:
		if tok.TSubType != efp.TokenSubTypeStart {
			return nil, fmt.Errorf("unexpected end of function: %w", ErrInvalidFormula)
		}
		return p.parseCall(tok.TValue)
	case efp.TokenTypeSubexpression:
		if tok.TSubType != efp.TokenSubTypeStart {
			return nil, fmt.Errorf("unbalanced parenthesis: %w", ErrInvalidFormula)
		}
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		closing := p.next()
		if closing.TType != efp.TokenTypeSubexpression || closing.TSubType != efp.TokenSubTypeStop {
			return nil, fmt.Errorf("unbalanced parenthesis: %w", ErrInvalidFormula)
		}
		return &Node{Kind: NodeParen, Args: []*Node{inner}}, nil
	}
	return nil, fmt.Errorf("unexpected token %q: %w", tok.TValue, ErrInvalidFormula)
}

func (p *parser) parseCall(name string) (*Node, error) {
	call := Call(name)
	if t := p.peek(); t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStop {
		p.next()
		return call, nil
	}
	for {
		if t := p.peek(); t.TType == efp.TokenTypeArgument || isFuncStop(t) {
			call.Args = append(call.Args, &Node{Kind: NodeEmpty})
		} else {
			arg, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		if p.done() {
			return nil, fmt.Errorf("unclosed call to %s: %w", name, ErrInvalidFormula)
		}
		tok := p.next()
		if isFuncStop(tok) {
			return call, nil
		}
		if tok.TType != efp.TokenTypeArgument {
			return nil, fmt.Errorf("unexpected %q in call to %s: %w", tok.TValue, name, ErrInvalidFormula)
		}
	}
}

func isFuncStop(t efp.Token) bool {
	return t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStop
}

func operandNode(tok efp.Token) *Node {
	switch tok.TSubType {
	case efp.TokenSubTypeText:
		return &Node{Kind: NodeString, Value: tok.TValue}
	case efp.TokenSubTypeNumber:
		return &Node{Kind: NodeNumber, Value: tok.TValue}
	case efp.TokenSubTypeLogical:
		return &Node{Kind: NodeBool, Value: tok.TValue}
	case efp.TokenSubTypeError:
		return &Node{Kind: NodeError, Value: tok.TValue}
	}
	return &Node{Kind: NodeRef, Value: tok.TValue}
}
