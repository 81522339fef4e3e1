package sqlengine

import (
	"fmt"
	"math"
	"reflect"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

var (
	alwaysTrue  = goqu.L("1 = 1")
	alwaysFalse = goqu.L("1 = 0")
)

// where lowers specs into one condition. It returns nil when specs select everything.
func (p *Provider[T]) where(specs []entitystore.Specification[T]) (exp.Expression, error) {
	combined := entitystore.CombineSpecifications(specs)
	if combined.IsEmpty() {
		return nil, nil
	}

	return p.lower(combined.Expression())
}

func (p *Provider[T]) lower(expr entitystore.Expr) (exp.Expression, error) {
	switch n := expr.(type) {
	case entitystore.Constant:
		if n.Value {
			return alwaysTrue, nil
		}

		return alwaysFalse, nil

	case entitystore.And:
		left, right, err := p.lowerBoth(n.Left, n.Right)
		if err != nil {
			return nil, err
		}

		return goqu.And(left, right), nil

	case entitystore.Or:
		left, right, err := p.lowerBoth(n.Left, n.Right)
		if err != nil {
			return nil, err
		}

		return goqu.Or(left, right), nil

	case entitystore.Not:
		operand, err := p.lower(n.Operand)
		if err != nil {
			return nil, err
		}

		return goqu.L("NOT (?)", operand), nil

	case entitystore.Comparison:
		return p.lowerComparison(n)

	default:
		return nil, fmt.Errorf("%w: unsupported node %T", entitystore.ErrInvalidExpression, expr)
	}
}

func (p *Provider[T]) lowerBoth(l, r entitystore.Expr) (exp.Expression, exp.Expression, error) {
	left, err := p.lower(l)
	if err != nil {
		return nil, nil, err
	}

	right, err := p.lower(r)
	if err != nil {
		return nil, nil, err
	}

	return left, right, nil
}

// lowerComparison follows the in-memory semantics: NULL equals only NULL, differs from everything
// else and is neither ordered against values nor matched by string operators. Every condition it
// returns is TRUE or FALSE, never NULL, so Not lowers to a plain NOT.
func (p *Provider[T]) lowerComparison(c entitystore.Comparison) (exp.Expression, error) {
	column, ok := p.table.columnForMember(c.Field)
	if !ok {
		return nil, &entitystore.TranslationError{Member: c.Field, Target: "table " + p.table.Name}
	}

	col := goqu.C(column.Name)
	value := sqlValue(c.Value)

	switch c.Op {
	case entitystore.OpEq:
		if value == nil {
			return col.IsNull(), nil
		}

		return present(col, col.Eq(value)), nil

	case entitystore.OpNotEq:
		if value == nil {
			return col.IsNotNull(), nil
		}

		return goqu.Or(col.IsNull(), present(col, col.Neq(value))), nil

	case entitystore.OpGt, entitystore.OpLt:
		if value == nil {
			return alwaysFalse, nil
		}

		if c.Op == entitystore.OpGt {
			return present(col, col.Gt(value)), nil
		}

		return present(col, col.Lt(value)), nil

	case entitystore.OpGte, entitystore.OpLte:
		if value == nil {
			return col.IsNull(), nil
		}

		if c.Op == entitystore.OpGte {
			return present(col, col.Gte(value)), nil
		}

		return present(col, col.Lte(value)), nil

	case entitystore.OpIn:
		return lowerIn(col, c.Value), nil

	case entitystore.OpContains:
		if value == nil {
			return alwaysFalse, nil
		}

		return present(col, p.dialect.contains(col, value)), nil

	case entitystore.OpStartsWith:
		if value == nil {
			return alwaysFalse, nil
		}

		return present(col, p.dialect.startsWith(col, value)), nil

	case entitystore.OpIsNull:
		return col.IsNull(), nil

	default:
		return nil, fmt.Errorf("%w: unsupported operator %q", entitystore.ErrInvalidExpression, string(c.Op))
	}
}

// present guards cond, which is NULL for NULL columns, so that it is FALSE instead.
func present(col exp.IdentifierExpression, cond exp.Expression) exp.Expression {
	return goqu.And(col.IsNotNull(), cond)
}

// lowerIn matches NULL columns only when the list holds a nil element.
func lowerIn(col exp.IdentifierExpression, list any) exp.Expression {
	values, _ := list.([]any)

	args := make([]any, 0, len(values))
	withNull := false

	for _, v := range values {
		if v = sqlValue(v); v == nil {
			withNull = true
			continue
		}

		args = append(args, v)
	}

	switch {
	case len(args) == 0 && withNull:
		return col.IsNull()
	case len(args) == 0:
		return alwaysFalse
	case withNull:
		return goqu.Or(col.IsNull(), present(col, col.In(args...)))
	default:
		return present(col, col.In(args...))
	}
}

// sqlValue dereferences pointers so that drivers receive plain values, nil pointers become NULL.
func sqlValue(v any) any {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}

		rv = rv.Elem()
	}

	return rv.Interface()
}

// applyOptions adds ordering and paging. Asc orderings put NULLs first and desc orderings put them
// last, as entitystore.SortEntities does. The id column breaks remaining ties.
func (p *Provider[T]) applyOptions(ds *goqu.SelectDataset, options entitystore.FindOptions[T]) (*goqu.SelectDataset, error) {
	orders := make([]exp.OrderedExpression, 0, len(options.Orderings)+1)

	for _, ordering := range options.Orderings {
		column, ok := p.table.columnForMember(ordering.Field.Name())
		if !ok {
			return nil, &entitystore.TranslationError{Member: ordering.Field.Name(), Target: "table " + p.table.Name}
		}

		if ordering.Direction == entitystore.Descending {
			orders = append(orders, goqu.C(column.Name).Desc().NullsLast())
		} else {
			orders = append(orders, goqu.C(column.Name).Asc().NullsFirst())
		}
	}

	orders = append(orders, goqu.C(p.table.IDColumn).Asc())
	ds = ds.Order(orders...)

	if options.Take > 0 {
		ds = ds.Limit(uint(options.Take))
	} else if options.Skip > 0 && p.dialect == DialectSQLite {
		// SQLite accepts OFFSET only together with LIMIT.
		ds = ds.Limit(uint(math.MaxInt64))
	}

	if options.Skip > 0 {
		ds = ds.Offset(uint(options.Skip))
	}

	return ds, nil
}
