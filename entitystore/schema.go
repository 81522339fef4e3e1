package entitystore

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrInvalidSchema = errors.New("invalid schema")

// DefaultParseCacheSize is the number of parsed expressions a Schema keeps.
const DefaultParseCacheSize = 256

// Schema is the set of members of T that textual expressions may reference.
type Schema[T any] struct {
	fields map[string]FieldAccessor[T]
	names  []string
	parsed *lru.Cache[string, Expr]
}

type schemaSettings struct {
	parseCacheSize int
}

// SchemaOption defines a functional option for configuring a Schema.
type SchemaOption func(*schemaSettings) error

// WithParseCacheSize sets how many parsed expressions are cached.
func WithParseCacheSize(size int) SchemaOption {
	return func(s *schemaSettings) error {
		if size <= 0 {
			return fmt.Errorf("%w: parse cache size must be positive", ErrInvalidSchema)
		}

		s.parseCacheSize = size

		return nil
	}
}

// NewSchema creates a Schema. Member names are matched case-insensitively and must be unique.
func NewSchema[T any](fields []FieldAccessor[T], options ...SchemaOption) (*Schema[T], error) {
	settings := schemaSettings{parseCacheSize: DefaultParseCacheSize}
	for _, option := range options {
		if err := option(&settings); err != nil {
			return nil, err
		}
	}

	cache, err := lru.New[string, Expr](settings.parseCacheSize)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchema, err)
	}

	schema := &Schema[T]{
		fields: make(map[string]FieldAccessor[T], len(fields)),
		parsed: cache,
	}

	for _, f := range fields {
		key := strings.ToLower(f.Name())
		if _, exists := schema.fields[key]; exists {
			return nil, fmt.Errorf("%w: duplicate member %q", ErrInvalidSchema, f.Name())
		}

		schema.fields[key] = f
		schema.names = append(schema.names, f.Name())
	}

	return schema, nil
}

// Field looks up a member by name.
func (s *Schema[T]) Field(name string) (FieldAccessor[T], bool) {
	f, ok := s.fields[strings.ToLower(name)]
	return f, ok
}

// Names returns the member names in declaration order.
func (s *Schema[T]) Names() []string {
	return append([]string(nil), s.names...)
}

// Parse builds a specification from a textual expression such as
//
//	Age >= @0 && (Name startswith "A" || !Active)
//
// Placeholders @0, @1, ... are bound to params by position. The parsed tree is cached per
// expression text, binding happens on every call.
func (s *Schema[T]) Parse(expression string, params ...any) (Specification[T], error) {
	template, ok := s.parsed.Get(expression)
	if !ok {
		var err error

		template, err = parseExpression(expression, s.lookup)
		if err != nil {
			return Specification[T]{}, err
		}

		s.parsed.Add(expression, template)
	}

	expr, err := bindParams(template, params)
	if err != nil {
		return Specification[T]{}, err
	}

	return Specification[T]{expr: expr}, nil
}

// MustParse is like Parse but panics on error. Intended for expressions that are constants of the program.
func (s *Schema[T]) MustParse(expression string, params ...any) Specification[T] {
	spec, err := s.Parse(expression, params...)
	if err != nil {
		panic(err)
	}

	return spec
}

// CachedExpressions returns the number of parsed expressions held in the cache.
func (s *Schema[T]) CachedExpressions() int {
	return s.parsed.Len()
}

func (s *Schema[T]) lookup(name string) (string, func(any) any, bool) {
	f, ok := s.Field(name)
	if !ok {
		return "", nil, false
	}

	return f.Name(), accessorOf(f), true
}
