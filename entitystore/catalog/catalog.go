// Package catalog holds named dynamic specifications loaded from YAML, so that filters can be
// changed without recompiling. Expressions are parsed late, against the entitystore.Schema of the
// entity type they are looked up for:
//
//	filters:
//	  - name: adults
//	    expression: Age >= @0
//	    params: [18]
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

var ErrInvalidCatalog = errors.New("invalid filter catalog")
var ErrUnknownFilter = errors.New("unknown filter")

// Filter is one named expression with its default parameters.
type Filter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Expression  string `yaml:"expression"`
	Params      []any  `yaml:"params,omitempty"`
}

type document struct {
	Filters []Filter `yaml:"filters"`
}

// Catalog is an immutable set of filters, safe for concurrent use.
type Catalog struct {
	filters map[string]Filter
	names   []string
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading filter catalog: %w", err)
	}

	return Parse(data)
}

// Parse decodes a catalog. Unknown keys, unnamed filters, duplicate names and empty expressions
// are rejected.
func Parse(data []byte) (*Catalog, error) {
	var doc document

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	return New(doc.Filters...)
}

// New builds a catalog from filters.
func New(filters ...Filter) (*Catalog, error) {
	c := &Catalog{filters: make(map[string]Filter, len(filters))}

	for i, f := range filters {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("%w: filters[%d]: name is required", ErrInvalidCatalog, i)
		}

		if strings.TrimSpace(f.Expression) == "" {
			return nil, fmt.Errorf("%w: filter %q: expression is required", ErrInvalidCatalog, f.Name)
		}

		if _, exists := c.filters[f.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate filter %q", ErrInvalidCatalog, f.Name)
		}

		c.filters[f.Name] = f
		c.names = append(c.names, f.Name)
	}

	return c, nil
}

// Names returns the filter names in declaration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Filter returns the filter called name.
func (c *Catalog) Filter(name string) (Filter, bool) {
	f, ok := c.filters[name]
	return f, ok
}

// Lookup parses the filter called name against schema. Explicit params replace the filter's
// default params.
func Lookup[T any](c *Catalog, schema *entitystore.Schema[T], name string, params ...any) (entitystore.Specification[T], error) {
	f, ok := c.Filter(name)
	if !ok {
		return entitystore.Specification[T]{}, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}

	if len(params) == 0 {
		params = f.Params
	}

	spec, err := schema.Parse(f.Expression, params...)
	if err != nil {
		return entitystore.Specification[T]{}, fmt.Errorf("filter %q: %w", name, err)
	}

	return spec, nil
}

// Validate parses every filter with its default params against schema and reports all failures.
func Validate[T any](c *Catalog, schema *entitystore.Schema[T]) error {
	var errs []error

	for _, name := range c.names {
		if _, err := Lookup(c, schema, name); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
