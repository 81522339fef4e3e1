package entitystore

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Registry holds the configuration of every entity type: one provider factory and an ordered
// behavior list each. It is built at the composition root and only read afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[reflect.Type]any
	logger  Logger
}

// RegistryOption defines a functional option for configuring a Registry.
type RegistryOption func(*Registry) error

// WithRegistryLogger sets the logger handed to the pipelines of resolved contexts.
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *Registry) error {
		r.logger = logger
		return nil
	}
}

// NewRegistry creates an empty registry. Entity types are added with Configure.
func NewRegistry(options ...RegistryOption) (*Registry, error) {
	r := &Registry{entries: make(map[reflect.Type]any)}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Configurator is the configuration of entity type T.
type Configurator[T any] struct {
	providerFactory ProviderFactory[T]
	behaviors       []BehaviorRegistration
	validators      []ValidatorRegistration[T]
}

// Configure runs configure against the configurator of T, creating it on first use.
// Calls for the same type accumulate, so tests can override a provider after production wiring.
func Configure[T any](r *Registry, configure func(c *Configurator[T])) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reflect.TypeFor[T]()

	c, ok := r.entries[key].(*Configurator[T])
	if !ok {
		c = &Configurator[T]{}
		r.entries[key] = c
	}

	configure(c)
}

// UseProvider sets the provider factory. The last call wins.
func (c *Configurator[T]) UseProvider(factory ProviderFactory[T]) *Configurator[T] {
	c.providerFactory = factory
	return c
}

// AddBehavior appends a behavior. Registration order is wrapping order, the first one is outermost.
// Adding the same name twice wraps twice, use HasBehavior to avoid that.
func (c *Configurator[T]) AddBehavior(name string, options any, factory BehaviorFactory) *Configurator[T] {
	c.behaviors = append(c.behaviors, BehaviorRegistration{Name: name, Options: options, Factory: factory})
	return c
}

// HasBehavior reports whether a behavior with name is registered.
func (c *Configurator[T]) HasBehavior(name string) bool {
	return slices.ContainsFunc(c.behaviors, func(b BehaviorRegistration) bool {
		return b.Name == name
	})
}

// Behaviors returns the registrations in wrapping order.
func (c *Configurator[T]) Behaviors() []BehaviorRegistration {
	return slices.Clone(c.behaviors)
}

// AddValidator registers a validator. It runs only when a validation behavior is registered.
func (c *Configurator[T]) AddValidator(registration ValidatorRegistration[T]) *Configurator[T] {
	c.validators = append(c.validators, registration)
	return c
}

// Validators returns the validator registrations in order.
func (c *Configurator[T]) Validators() []ValidatorRegistration[T] {
	return slices.Clone(c.validators)
}

// IsConfigured reports whether T has a configuration.
func IsConfigured[T any](r *Registry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[reflect.TypeFor[T]()]

	return ok
}

// Resolve creates the EntityContext of T for scope. Provider and behaviors are created from the
// same scope. A behavior implementing no hook for T panics with a *UsageError.
func Resolve[T any](r *Registry, scope *Scope) (*EntityContext[T], error) {
	scope.ensureOpen()

	r.mu.RLock()
	c, ok := r.entries[reflect.TypeFor[T]()].(*Configurator[T])
	var (
		factory       ProviderFactory[T]
		registrations []BehaviorRegistration
	)
	if ok {
		factory = c.providerFactory
		registrations = slices.Clone(c.behaviors)
	}
	logger := r.logger
	r.mu.RUnlock()

	typeName := reflect.TypeFor[T]().String()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityTypeNotConfigured, typeName)
	}

	if factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, typeName)
	}

	provider, err := factory(scope)
	if err != nil {
		return nil, fmt.Errorf("resolving provider for %s: %w", typeName, err)
	}

	behaviors := make([]NamedBehavior, 0, len(registrations))
	for _, reg := range registrations {
		behaviors = append(behaviors, NamedBehavior{Name: reg.Name, Behavior: reg.Factory(scope, reg.Options)})
	}

	return &EntityContext[T]{
		scope:     scope,
		provider:  provider,
		behaviors: behaviors,
		pipeline:  NewPipeline(provider, behaviors, logger),
	}, nil
}
