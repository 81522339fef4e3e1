package entitystore

import (
	"runtime"
	"strings"
)

// Operator is the comparison applied by a Comparison leaf.
type Operator string

const (
	OpEq         Operator = "=="
	OpNotEq      Operator = "!="
	OpGt         Operator = ">"
	OpGte        Operator = ">="
	OpLt         Operator = "<"
	OpLte        Operator = "<="
	OpIn         Operator = "in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startswith"
	OpIsNull     Operator = "is null"
)

// Expr is a node of a specification tree. The set of nodes is closed:
// Comparison, And, Or, Not and Constant. Providers lower a tree with a type switch.
type Expr interface {
	exprNode()
	String() string
}

// Comparison is a leaf comparing one member against a value.
type Comparison struct {
	Field string
	Op    Operator
	Value any

	accessor func(any) any
}

// And is satisfied when both operands are.
type And struct {
	Left, Right Expr
}

// Or is satisfied when at least one operand is.
type Or struct {
	Left, Right Expr
}

// Not negates its operand.
type Not struct {
	Operand Expr
}

// Constant is satisfied by every entity (true) or none (false).
type Constant struct {
	Value bool
}

func (Comparison) exprNode() {}
func (And) exprNode()        {}
func (Or) exprNode()         {}
func (Not) exprNode()        {}
func (Constant) exprNode()   {}

func (c Comparison) String() string {
	switch c.Op {
	case OpIsNull:
		return c.Field + " == null"
	default:
		return c.Field + " " + string(c.Op) + " " + formatValue(c.Value)
	}
}

func (a And) String() string {
	return "(" + a.Left.String() + " && " + a.Right.String() + ")"
}

func (o Or) String() string {
	return "(" + o.Left.String() + " || " + o.Right.String() + ")"
}

func (n Not) String() string {
	return "!(" + n.Operand.String() + ")"
}

func (c Constant) String() string {
	if c.Value {
		return "true"
	}

	return "false"
}

// Specification is an immutable predicate over T. Combinators return new specifications that
// share the operands' subtrees, both operands always evaluate against the same entity.
//
// The zero value is the empty specification which every non-nil entity satisfies.
type Specification[T any] struct {
	expr Expr
}

// All returns the empty specification.
func All[T any]() Specification[T] {
	return Specification[T]{}
}

// None returns a specification no entity satisfies.
func None[T any]() Specification[T] {
	return Specification[T]{expr: Constant{Value: false}}
}

func newComparison[T any](field FieldAccessor[T], op Operator, value any) Specification[T] {
	return Specification[T]{expr: Comparison{
		Field:    field.Name(),
		Op:       op,
		Value:    value,
		accessor: accessorOf(field),
	}}
}

// Expression returns the root of the tree, nil for the empty specification.
func (s Specification[T]) Expression() Expr {
	return s.expr
}

// IsEmpty reports whether the specification was never constructed.
func (s Specification[T]) IsEmpty() bool {
	return s.expr == nil
}

// And combines two specifications. An empty operand constrains nothing, the other one is returned.
func (s Specification[T]) And(other Specification[T]) Specification[T] {
	switch {
	case s.expr == nil:
		return other
	case other.expr == nil:
		return s
	default:
		return Specification[T]{expr: And{Left: s.expr, Right: other.expr}}
	}
}

// Or combines two specifications. An empty operand already matches everything, so it wins.
func (s Specification[T]) Or(other Specification[T]) Specification[T] {
	if s.expr == nil || other.expr == nil {
		return Specification[T]{}
	}

	return Specification[T]{expr: Or{Left: s.expr, Right: other.expr}}
}

// Not negates the specification. The negation of the empty specification matches nothing.
func (s Specification[T]) Not() Specification[T] {
	if s.expr == nil {
		return None[T]()
	}

	return Specification[T]{expr: Not{Operand: s.expr}}
}

// Predicate returns the compiled in-memory evaluator.
func (s Specification[T]) Predicate() func(T) bool {
	return s.IsSatisfiedBy
}

// IsSatisfiedBy evaluates the specification against entity. A nil entity, or a nil member
// dereferenced on the way to a leaf, makes the result false.
func (s Specification[T]) IsSatisfiedBy(entity T) (satisfied bool) {
	if isNil(entity) {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(runtime.Error); ok && strings.Contains(re.Error(), "nil pointer dereference") {
				satisfied = false
				return
			}

			panic(r)
		}
	}()

	return evaluate(s.expr, any(entity))
}

// String renders the specification in the syntax accepted by Schema.Parse.
func (s Specification[T]) String() string {
	if s.expr == nil {
		return "true"
	}

	return s.expr.String()
}

func evaluate(expr Expr, entity any) bool {
	switch n := expr.(type) {
	case nil:
		return true
	case Constant:
		return n.Value
	case And:
		return evaluate(n.Left, entity) && evaluate(n.Right, entity)
	case Or:
		return evaluate(n.Left, entity) || evaluate(n.Right, entity)
	case Not:
		return !evaluate(n.Operand, entity)
	case Comparison:
		return n.matches(entity)
	default:
		return false
	}
}

func (c Comparison) matches(entity any) bool {
	if c.accessor == nil {
		return false
	}

	actual := c.accessor(entity)

	switch c.Op {
	case OpEq:
		return ValuesEqual(actual, c.Value)
	case OpNotEq:
		return !ValuesEqual(actual, c.Value)
	case OpGt:
		r, ok := CompareValues(actual, c.Value)
		return ok && r > 0
	case OpGte:
		r, ok := CompareValues(actual, c.Value)
		return ok && r >= 0
	case OpLt:
		r, ok := CompareValues(actual, c.Value)
		return ok && r < 0
	case OpLte:
		r, ok := CompareValues(actual, c.Value)
		return ok && r <= 0
	case OpIn:
		return containsValue(c.Value, actual)
	case OpContains:
		s, ok1 := asString(actual)
		sub, ok2 := asString(c.Value)
		return ok1 && ok2 && strings.Contains(s, sub)
	case OpStartsWith:
		s, ok1 := asString(actual)
		prefix, ok2 := asString(c.Value)
		return ok1 && ok2 && strings.HasPrefix(s, prefix)
	case OpIsNull:
		return normalize(actual) == nil
	default:
		return false
	}
}

// CombineSpecifications AND-s specs in order.
func CombineSpecifications[T any](specs []Specification[T]) Specification[T] {
	combined := All[T]()
	for _, s := range specs {
		combined = combined.And(s)
	}

	return combined
}

// SatisfiesAll reports whether entity satisfies every spec.
func SatisfiesAll[T any](entity T, specs []Specification[T]) bool {
	if isNil(entity) {
		return false
	}

	for _, s := range specs {
		if !s.IsSatisfiedBy(entity) {
			return false
		}
	}

	return true
}
