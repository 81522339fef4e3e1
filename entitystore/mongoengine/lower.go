package mongoengine

import (
	"fmt"
	"reflect"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

func matchAll() bson.D { return bson.D{} }

func matchNone() bson.D { return bson.D{{Key: "$expr", Value: false}} }

// Filter lowers specs into one BSON filter, the empty filter when specs select everything.
func (p *Provider[T]) Filter(specs []entitystore.Specification[T]) (bson.D, error) {
	combined := entitystore.CombineSpecifications(specs)
	if combined.IsEmpty() {
		return matchAll(), nil
	}

	return p.lower(combined.Expression())
}

func (p *Provider[T]) lower(expr entitystore.Expr) (bson.D, error) {
	switch n := expr.(type) {
	case entitystore.Constant:
		if n.Value {
			return matchAll(), nil
		}

		return matchNone(), nil

	case entitystore.And:
		return p.lowerLogical("$and", n.Left, n.Right)

	case entitystore.Or:
		return p.lowerLogical("$or", n.Left, n.Right)

	case entitystore.Not:
		operand, err := p.lower(n.Operand)
		if err != nil {
			return nil, err
		}

		return bson.D{{Key: "$nor", Value: bson.A{operand}}}, nil

	case entitystore.Comparison:
		return p.lowerComparison(n)

	default:
		return nil, fmt.Errorf("%w: unsupported node %T", entitystore.ErrInvalidExpression, expr)
	}
}

func (p *Provider[T]) lowerLogical(operator string, l, r entitystore.Expr) (bson.D, error) {
	left, err := p.lower(l)
	if err != nil {
		return nil, err
	}

	right, err := p.lower(r)
	if err != nil {
		return nil, err
	}

	return bson.D{{Key: operator, Value: bson.A{left, right}}}, nil
}

func (p *Provider[T]) lowerComparison(c entitystore.Comparison) (bson.D, error) {
	key, ok := p.document.key(c.Field)
	if !ok {
		return nil, &entitystore.TranslationError{Member: c.Field, Target: "collection document"}
	}

	value := bsonValue(c.Value)
	match := func(operator string, v any) (bson.D, error) {
		return bson.D{{Key: key, Value: bson.D{{Key: operator, Value: v}}}}, nil
	}

	switch c.Op {
	case entitystore.OpEq:
		return match("$eq", value)
	case entitystore.OpNotEq:
		return match("$ne", value)
	case entitystore.OpGt:
		return match("$gt", value)
	case entitystore.OpGte:
		return match("$gte", value)
	case entitystore.OpLt:
		return match("$lt", value)
	case entitystore.OpLte:
		return match("$lte", value)

	case entitystore.OpIn:
		values, _ := c.Value.([]any)
		list := make(bson.A, 0, len(values))
		for _, v := range values {
			list = append(list, bsonValue(v))
		}

		return match("$in", list)

	case entitystore.OpContains:
		return match("$regex", primitive.Regex{Pattern: regexp.QuoteMeta(fmt.Sprint(value))})
	case entitystore.OpStartsWith:
		return match("$regex", primitive.Regex{Pattern: "^" + regexp.QuoteMeta(fmt.Sprint(value))})
	case entitystore.OpIsNull:
		return match("$eq", nil)

	default:
		return nil, fmt.Errorf("%w: unsupported operator %q", entitystore.ErrInvalidExpression, string(c.Op))
	}
}

// bsonValue dereferences pointers, nil pointers become null.
func bsonValue(v any) any {
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

// findOptions lowers orderings, paging and a projection. MongoDB sorts missing and null values
// first ascending and last descending, as entitystore.SortEntities does. The id breaks ties.
func (p *Provider[T]) findOptions(findOpts entitystore.FindOptions[T], projection []string) (*options.FindOptions, error) {
	sort := make(bson.D, 0, len(findOpts.Orderings)+1)

	for _, ordering := range findOpts.Orderings {
		key, ok := p.document.key(ordering.Field.Name())
		if !ok {
			return nil, &entitystore.TranslationError{Member: ordering.Field.Name(), Target: "collection document"}
		}

		direction := 1
		if ordering.Direction == entitystore.Descending {
			direction = -1
		}

		sort = append(sort, bson.E{Key: key, Value: direction})
	}

	sort = append(sort, bson.E{Key: p.document.idKey(), Value: 1})

	opts := options.Find().SetSort(sort)

	if findOpts.Skip > 0 {
		opts.SetSkip(int64(findOpts.Skip))
	}

	if findOpts.Take > 0 {
		opts.SetLimit(int64(findOpts.Take))
	}

	if projection != nil {
		fields := bson.D{{Key: p.document.idKey(), Value: 1}}

		for _, member := range projection {
			key, ok := p.document.key(member)
			if !ok {
				return nil, &entitystore.TranslationError{Member: member, Target: "collection document"}
			}

			if key != p.document.idKey() {
				fields = append(fields, bson.E{Key: key, Value: 1})
			}
		}

		opts.SetProjection(fields)
	}

	return opts, nil
}
