// Package behaviors contains the built-in lifecycle behaviors of entitystore: operation logging,
// audit stamping with optional soft delete, domain event publication and validation.
//
// Each behavior has a registration helper that adds it to the configuration of an entity type:
//
//	entitystore.Configure(registry, func(c *entitystore.Configurator[*Book]) {
//		c.UseProvider(entitystore.SingletonProvider[*Book](store))
//		behaviors.WithLogging(c, behaviors.LoggingOptions{Logger: logger})
//		behaviors.WithAuditState(c, behaviors.AuditOptions{SoftDelete: true})
//		behaviors.WithDomainEvents(c, behaviors.DomainEventOptions{Publisher: bus})
//		behaviors.WithValidator(c, bookValidator, entitystore.ApplyOnInsert|entitystore.ApplyOnUpdate)
//	})
//
// Registration order is wrapping order. Registering logging first makes it observe the
// failures of all other behaviors.
package behaviors

// Registration names of the built-in behaviors.
const (
	NameLogging      = "logging"
	NameAuditState   = "audit_state"
	NameDomainEvents = "domain_events"
	NameValidation   = "validation"
)
