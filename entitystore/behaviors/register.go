package behaviors

import (
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

// WithLogging registers the logging behavior.
func WithLogging[T any](c *entitystore.Configurator[T], options LoggingOptions) {
	c.AddBehavior(NameLogging, options, func(_ *entitystore.Scope, opts any) any {
		return NewLogging[T](opts.(LoggingOptions))
	})
}

// WithAuditState registers the audit behavior.
func WithAuditState[T any](c *entitystore.Configurator[T], options AuditOptions) {
	c.AddBehavior(NameAuditState, options, func(_ *entitystore.Scope, opts any) any {
		return NewAuditState[T](opts.(AuditOptions))
	})
}

// WithDomainEvents registers the domain events behavior.
func WithDomainEvents[T any](c *entitystore.Configurator[T], options DomainEventOptions) {
	c.AddBehavior(NameDomainEvents, options, func(scope *entitystore.Scope, opts any) any {
		resolved := opts.(DomainEventOptions)
		if resolved.PublisherFromScope != nil {
			resolved.Publisher = resolved.PublisherFromScope(scope)
		}

		return NewDomainEvents[T](resolved)
	})
}

// WithValidator adds validator and registers the validation behavior on first use.
// The behavior position is fixed by the first call, validators added later still run.
func WithValidator[T any](c *entitystore.Configurator[T], validator entitystore.Validator[T], applyOn entitystore.ApplyOn) {
	c.AddValidator(entitystore.ValidatorRegistration[T]{Validator: validator, ApplyOn: applyOn})

	if c.HasBehavior(NameValidation) {
		return
	}

	c.AddBehavior(NameValidation, nil, func(*entitystore.Scope, any) any {
		return NewValidation(c.Validators())
	})
}
