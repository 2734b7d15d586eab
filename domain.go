package xlpivot

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DomainOp is one of the prefix logical operators of a domain.
type DomainOp string

const (
	OpAnd DomainOp = "&"
	OpOr  DomainOp = "|"
	OpNot DomainOp = "!"
)

// Condition is a "[field, operator, value]" leaf of a domain.
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// DomainElement is either a DomainOp or a Condition.
type DomainElement interface {
	domainElement()
}

func (DomainOp) domainElement()  {}
func (Condition) domainElement() {}

// Domain is a filter expression in prefix notation. Its top-level
// expressions are implicitly AND-ed.
type Domain []DomainElement

// Cond builds a single-condition domain.
func Cond(field, operator string, value any) Domain {
	return Domain{Condition{Field: field, Operator: operator, Value: value}}
}

// AndDomains combines domains with AND. Each input must be well formed; the
// result is their concatenation since top-level expressions AND together.
func AndDomains(domains ...Domain) Domain {
	var out Domain
	for _, d := range domains {
		out = append(out, d...)
	}
	return out
}

// Validate checks that every operator has enough operands.
func (d Domain) Validate() error {
	pos := 0
	for pos < len(d) {
		next, err := d.skipExpr(pos)
		if err != nil {
			return err
		}
		pos = next
	}
	return nil
}

func (d Domain) skipExpr(pos int) (int, error) {
	if pos >= len(d) {
		return 0, fmt.Errorf("domain: operator missing operand at %d", pos)
	}
	switch e := d[pos].(type) {
	case Condition:
		return pos + 1, nil
	case DomainOp:
		arity := 2
		switch e {
		case OpNot:
			arity = 1
		case OpAnd, OpOr:
		default:
			return 0, fmt.Errorf("domain: unknown operator %q", string(e))
		}
		next := pos + 1
		for i := 0; i < arity; i++ {
			n, err := d.skipExpr(next)
			if err != nil {
				return 0, err
			}
			next = n
		}
		return next, nil
	default:
		return 0, fmt.Errorf("domain: unexpected element %T", e)
	}
}

// ToList converts the domain to its persisted list shape.
func (d Domain) ToList() []any {
	out := make([]any, 0, len(d))
	for _, e := range d {
		switch x := e.(type) {
		case DomainOp:
			out = append(out, string(x))
		case Condition:
			out = append(out, []any{x.Field, x.Operator, x.Value})
		}
	}
	return out
}

// DomainFromList parses the persisted list shape
// ([["name","ilike","acme"],"|",...]).
func DomainFromList(list []any) (Domain, error) {
	d := make(Domain, 0, len(list))
	for i, item := range list {
		switch x := item.(type) {
		case string:
			d = append(d, DomainOp(x))
		case []any:
			if len(x) != 3 {
				return nil, fmt.Errorf("domain: term %d has %d elements, want 3", i, len(x))
			}
			field, ok1 := x[0].(string)
			op, ok2 := x[1].(string)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("domain: term %d must start with field and operator strings", i)
			}
			d = append(d, Condition{Field: field, Operator: op, Value: x[2]})
		default:
			return nil, fmt.Errorf("domain: unexpected element %d of type %T", i, item)
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d Domain) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ToList())
}

func (d *Domain) UnmarshalJSON(b []byte) error {
	var list []any
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	parsed, err := DomainFromList(list)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Domain) MarshalYAML() (any, error) {
	return d.ToList(), nil
}

func (d *Domain) UnmarshalYAML(value *yaml.Node) error {
	var list []any
	if err := value.Decode(&list); err != nil {
		return err
	}
	parsed, err := DomainFromList(list)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
