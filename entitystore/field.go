package entitystore

// FieldAccessor reads a named member of T. Providers only see the name, in-memory evaluation
// uses Value.
type FieldAccessor[T any] interface {
	Name() string
	Value(entity T) any
}

// Field is a typed member of T, the starting point for building specifications.
//
//	age := entitystore.NewField("Age", func(p *Person) int { return p.Age })
//	adults := age.Gte(18)
type Field[T, V any] struct {
	name string
	get  func(T) V
}

// NewField creates a Field. Dotted names address nested members, e.g. "Address.City".
func NewField[T, V any](name string, get func(T) V) Field[T, V] {
	return Field[T, V]{name: name, get: get}
}

// Name returns the member name, dotted for nested members.
func (f Field[T, V]) Name() string {
	return f.name
}

// Value returns the member value of entity, untyped for in-memory evaluation.
func (f Field[T, V]) Value(entity T) any {
	return f.get(entity)
}

// Get returns the typed member value.
func (f Field[T, V]) Get(entity T) V {
	return f.get(entity)
}

// Eq matches entities whose member equals value. A nil value matches absent members.
func (f Field[T, V]) Eq(value V) Specification[T] {
	return newComparison(FieldAccessor[T](f), OpEq, value)
}

// NotEq is the negation of Eq.
func (f Field[T, V]) NotEq(value V) Specification[T] {
	return newComparison(FieldAccessor[T](f), OpNotEq, value)
}

// Gt matches members greater than value. Absent members never match.
func (f Field[T, V]) Gt(value V) Specification[T] {
	return newComparison(FieldAccessor[T](f), OpGt, value)
}

func (f Field[T, V]) Gte(value V) Specification[T] {
	return newComparison(FieldAccessor[T](f), OpGte, value)
}

func (f Field[T, V]) Lt(value V) Specification[T] {
	return newComparison(FieldAccessor[T](f), OpLt, value)
}

func (f Field[T, V]) Lte(value V) Specification[T] {
	return newComparison(FieldAccessor[T](f), OpLte, value)
}

// In matches when the member equals any of values.
func (f Field[T, V]) In(values ...V) Specification[T] {
	list := make([]any, 0, len(values))
	for _, v := range values {
		list = append(list, v)
	}

	return newComparison(FieldAccessor[T](f), OpIn, list)
}

// Contains matches string members containing substr.
func (f Field[T, V]) Contains(substr string) Specification[T] {
	return newComparison(FieldAccessor[T](f), OpContains, substr)
}

// StartsWith matches string members beginning with prefix.
func (f Field[T, V]) StartsWith(prefix string) Specification[T] {
	return newComparison(FieldAccessor[T](f), OpStartsWith, prefix)
}

// IsNull matches when the member is nil.
func (f Field[T, V]) IsNull() Specification[T] {
	return newComparison(FieldAccessor[T](f), OpIsNull, nil)
}

func accessorOf[T any](field FieldAccessor[T]) func(any) any {
	return func(entity any) any {
		e, ok := entity.(T)
		if !ok {
			return nil
		}

		return field.Value(e)
	}
}
