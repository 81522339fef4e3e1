package entitystore

import "reflect"

// Mapping declares which member of U corresponds to each member of T. It is the explicit
// member table used by Translate. A Mapping is built once and then only read.
type Mapping[T, U any] struct {
	members map[string]FieldAccessor[U]
}

// NewMapping creates an empty Mapping, fill it with Map before the first Translate.
func NewMapping[T, U any]() *Mapping[T, U] {
	return &Mapping[T, U]{members: make(map[string]FieldAccessor[U])}
}

// Map maps the member named from on T onto to.
func (m *Mapping[T, U]) Map(from string, to FieldAccessor[U]) *Mapping[T, U] {
	m.members[from] = to
	return m
}

// MapField is the typed form of Mapping.Map, it rejects members of different value types at compile time.
func MapField[T, U, V any](m *Mapping[T, U], from Field[T, V], to Field[U, V]) *Mapping[T, U] {
	return m.Map(from.Name(), to)
}

// Translate rewrites spec into a specification over U. The And/Or/Not structure is kept,
// only leaf members are substituted. A member without mapping fails with a *TranslationError.
func Translate[T, U any](spec Specification[T], mapping *Mapping[T, U]) (Specification[U], error) {
	if spec.expr == nil {
		return All[U](), nil
	}

	expr, err := translateExpr(spec.expr, mapping)
	if err != nil {
		return Specification[U]{}, err
	}

	return Specification[U]{expr: expr}, nil
}

func translateExpr[T, U any](expr Expr, mapping *Mapping[T, U]) (Expr, error) {
	switch n := expr.(type) {
	case Constant:
		return n, nil

	case Comparison:
		target, ok := mapping.members[n.Field]
		if !ok {
			return nil, &TranslationError{Member: n.Field, Target: reflect.TypeFor[U]().String()}
		}

		return Comparison{Field: target.Name(), Op: n.Op, Value: n.Value, accessor: accessorOf(target)}, nil

	case And:
		left, err := translateExpr(n.Left, mapping)
		if err != nil {
			return nil, err
		}

		right, err := translateExpr(n.Right, mapping)
		if err != nil {
			return nil, err
		}

		return And{Left: left, Right: right}, nil

	case Or:
		left, err := translateExpr(n.Left, mapping)
		if err != nil {
			return nil, err
		}

		right, err := translateExpr(n.Right, mapping)
		if err != nil {
			return nil, err
		}

		return Or{Left: left, Right: right}, nil

	case Not:
		operand, err := translateExpr(n.Operand, mapping)
		if err != nil {
			return nil, err
		}

		return Not{Operand: operand}, nil

	default:
		return nil, &TranslationError{Member: expr.String(), Target: reflect.TypeFor[U]().String()}
	}
}
