package shared

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Fields is the flat, read-only view a Predicate is evaluated against.
type Fields map[string]any

// PredicateKind tags the variant held by a Predicate
type PredicateKind string

const (
	PredicateKindCompare PredicateKind = "compare"
	PredicateKindAnd     PredicateKind = "and"
	PredicateKindOr      PredicateKind = "or"
	PredicateKindNot     PredicateKind = "not"
)

// Operator is a field comparison operator
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
	OpPrefix   Operator = "prefix"
	OpExists   Operator = "exists"
)

// IsValid checks if the operator is known
func (o Operator) IsValid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpContains, OpPrefix, OpExists:
		return true
	}
	return false
}

// Predicate is a small typed boolean expression: either a comparison of one
// field against a literal, or a combinator over child predicates.
// The zero value matches everything.
type Predicate struct {
	Kind     PredicateKind `json:"kind,omitempty" mapstructure:"kind"`
	Field    string        `json:"field,omitempty" mapstructure:"field"`
	Op       Operator      `json:"op,omitempty" mapstructure:"op"`
	Value    any           `json:"value,omitempty" mapstructure:"value"`
	Children []Predicate   `json:"children,omitempty" mapstructure:"children"`
}

// Compare builds a field comparison
func Compare(field string, op Operator, value any) Predicate {
	return Predicate{Kind: PredicateKindCompare, Field: field, Op: op, Value: value}
}

// And matches when every child matches
func And(children ...Predicate) Predicate {
	return Predicate{Kind: PredicateKindAnd, Children: children}
}

// Or matches when at least one child matches
func Or(children ...Predicate) Predicate {
	return Predicate{Kind: PredicateKindOr, Children: children}
}

// Not negates a predicate
func Not(child Predicate) Predicate {
	return Predicate{Kind: PredicateKindNot, Children: []Predicate{child}}
}

// IsZero reports whether the predicate is unset
func (p Predicate) IsZero() bool {
	return p.Kind == ""
}

// Validate checks the structure of the expression tree
func (p Predicate) Validate() error {
	switch p.Kind {
	case "":
		return nil
	case PredicateKindCompare:
		if p.Field == "" {
			return fmt.Errorf("%w: comparison requires a field", ErrInvalidInput)
		}
		if !p.Op.IsValid() {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidInput, p.Op)
		}
		return nil
	case PredicateKindAnd, PredicateKindOr:
		for i, c := range p.Children {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("%s[%d]: %w", p.Kind, i, err)
			}
		}
		return nil
	case PredicateKindNot:
		if len(p.Children) != 1 {
			return fmt.Errorf("%w: not requires exactly one child", ErrInvalidInput)
		}
		return p.Children[0].Validate()
	default:
		return fmt.Errorf("%w: unknown predicate kind %q", ErrInvalidInput, p.Kind)
	}
}

// Evaluate runs the predicate against fields. Unknown kinds and operators
// never match.
func (p Predicate) Evaluate(fields Fields) bool {
	switch p.Kind {
	case "":
		return true
	case PredicateKindCompare:
		return compareField(fields, p.Field, p.Op, p.Value)
	case PredicateKindAnd:
		for _, c := range p.Children {
			if !c.Evaluate(fields) {
				return false
			}
		}
		return true
	case PredicateKindOr:
		for _, c := range p.Children {
			if c.Evaluate(fields) {
				return true
			}
		}
		return false
	case PredicateKindNot:
		if len(p.Children) != 1 {
			return false
		}
		return !p.Children[0].Evaluate(fields)
	default:
		return false
	}
}

func compareField(fields Fields, field string, op Operator, want any) bool {
	got, present := fields[field]
	if op == OpExists {
		exists := present && got != nil
		if b, ok := want.(bool); ok && !b {
			return !exists
		}
		return exists
	}
	if !present || got == nil {
		return op == OpNe && want != nil
	}

	switch op {
	case OpIn:
		for _, candidate := range toList(want) {
			if c, ok := compareValues(got, candidate); ok && c == 0 {
				return true
			}
		}
		return false
	case OpContains:
		return strings.Contains(toString(got), toString(want))
	case OpPrefix:
		return strings.HasPrefix(toString(got), toString(want))
	}

	c, ok := compareValues(got, want)
	if !ok {
		return op == OpNe
	}
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

// compareValues orders a and b. ok is false when the values are not comparable.
func compareValues(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return cmpFloat(af, bf), true
		}
		return 0, false
	}
	if at, aok := a.(time.Time); aok {
		bt, bok := toTime(b)
		if !bok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	if ab, aok := a.(bool); aok {
		bb, bok := b.(bool)
		if !bok {
			return 0, false
		}
		if ab == bb {
			return 0, true
		}
		return 1, true
	}
	return strings.Compare(toString(a), toString(b)), true
}

type float64er interface {
	InexactFloat64() float64
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64er:
		return n.InexactFloat64(), true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

func toList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	}
	return []any{v}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
