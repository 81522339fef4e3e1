package entitystore

import (
	"context"
	"errors"
	"fmt"
)

const (
	logMsgAfterHookErrorSuppressed = "entitystore: after-hook error ignored, operation already failed"
	logAttrBehavior                = "behavior"
	logAttrOperation               = "operation"
	logAttrError                   = "error"
)

// NamedBehavior is a resolved behavior together with its registration name.
type NamedBehavior struct {
	Name     string
	Behavior any
}

type stage[T any] struct {
	name   string
	before func(ctx context.Context, entity T) error
	after  func(ctx context.Context, entity T, opErr error) error
}

// Pipeline wraps the mutating operations of a provider with behaviors. The first behavior is
// the outermost: its before-hook runs first and its after-hook runs last.
//
// A failing before-hook stops the operation before the provider is called, the failure is returned
// unchanged and only the after-hooks of behaviors whose before-hook already ran observe it.
// After-hooks can turn a success into a failure, never the other way around.
//
// Once ctx is done no further before-hook and no provider call starts. The behaviors already
// entered still unwind: their after-hooks observe the cancellation as the operation's failure.
// A provider call that succeeded stays a success even when ctx ends afterwards.
type Pipeline[T any] struct {
	provider Provider[T]
	stages   map[Operation][]stage[T]
	logger   Logger
}

// NewPipeline builds the hook tables once. It panics with a *UsageError when a behavior implements
// none of the hook interfaces for T.
func NewPipeline[T any](provider Provider[T], behaviors []NamedBehavior, logger Logger) *Pipeline[T] {
	p := &Pipeline[T]{
		provider: provider,
		stages:   make(map[Operation][]stage[T]),
		logger:   logger,
	}

	for _, b := range behaviors {
		hooks := hooksOf[T](b.Name, b.Behavior)
		if len(hooks) == 0 {
			panicUsage(ErrBehaviorCapability, fmt.Sprintf("%s (%T)", b.Name, b.Behavior))
		}

		for _, op := range []Operation{OperationInsert, OperationUpdate, OperationUpsert, OperationDelete} {
			if s, ok := hooks[op]; ok {
				p.stages[op] = append(p.stages[op], s)
			}
		}
	}

	return p
}

func hooksOf[T any](name string, behavior any) map[Operation]stage[T] {
	hooks := make(map[Operation]stage[T])

	set := func(op Operation, update func(s *stage[T])) {
		s := hooks[op]
		s.name = name
		update(&s)
		hooks[op] = s
	}

	if h, ok := behavior.(BeforeInserter[T]); ok {
		set(OperationInsert, func(s *stage[T]) { s.before = h.BeforeInsert })
	}
	if h, ok := behavior.(AfterInserter[T]); ok {
		set(OperationInsert, func(s *stage[T]) { s.after = h.AfterInsert })
	}
	if h, ok := behavior.(BeforeUpdater[T]); ok {
		set(OperationUpdate, func(s *stage[T]) { s.before = h.BeforeUpdate })
	}
	if h, ok := behavior.(AfterUpdater[T]); ok {
		set(OperationUpdate, func(s *stage[T]) { s.after = h.AfterUpdate })
	}
	if h, ok := behavior.(BeforeUpserter[T]); ok {
		set(OperationUpsert, func(s *stage[T]) { s.before = h.BeforeUpsert })
	}
	if h, ok := behavior.(AfterUpserter[T]); ok {
		set(OperationUpsert, func(s *stage[T]) { s.after = h.AfterUpsert })
	}
	if h, ok := behavior.(BeforeDeleter[T]); ok {
		set(OperationDelete, func(s *stage[T]) { s.before = h.BeforeDelete })
	}
	if h, ok := behavior.(AfterDeleter[T]); ok {
		set(OperationDelete, func(s *stage[T]) { s.after = h.AfterDelete })
	}

	return hooks
}

// Insert runs the insert hooks around Provider.Insert.
func (p *Pipeline[T]) Insert(ctx context.Context, entity T) (T, error) {
	return p.run(ctx, OperationInsert, entity, func(ctx context.Context, entity T, _ bool) (T, error) {
		return p.provider.Insert(ctx, entity)
	})
}

// Update runs the update hooks around Provider.Update.
func (p *Pipeline[T]) Update(ctx context.Context, entity T) (T, error) {
	return p.run(ctx, OperationUpdate, entity, func(ctx context.Context, entity T, _ bool) (T, error) {
		return p.provider.Update(ctx, entity)
	})
}

// Upsert runs the upsert hooks around Provider.Upsert.
func (p *Pipeline[T]) Upsert(ctx context.Context, entity T) (T, UpsertAction, error) {
	var action UpsertAction

	result, err := p.run(ctx, OperationUpsert, entity, func(ctx context.Context, entity T, _ bool) (T, error) {
		var (
			stored T
			err    error
		)

		stored, action, err = p.provider.Upsert(ctx, entity)

		return stored, err
	})

	return result, action, err
}

// Delete runs the delete hooks around Provider.Delete, or around Provider.Update when a
// before-delete hook requested a soft delete.
func (p *Pipeline[T]) Delete(ctx context.Context, entity T) error {
	_, err := p.run(ctx, OperationDelete, entity, func(ctx context.Context, entity T, softDelete bool) (T, error) {
		if softDelete {
			return p.provider.Update(ctx, entity)
		}

		return entity, p.provider.Delete(ctx, entity)
	})

	return err
}

func (p *Pipeline[T]) run(
	ctx context.Context,
	op Operation,
	entity T,
	call func(ctx context.Context, entity T, softDelete bool) (T, error),
) (T, error) {
	var zero T

	stages := p.stages[op]
	entered := 0
	softDelete := false

	var opErr error

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			opErr = err
			break
		}

		if s.before != nil {
			if err := s.before(ctx, entity); err != nil {
				if op == OperationDelete && errors.Is(err, ErrSoftDeleteRequested) {
					softDelete = true
				} else {
					opErr = err
					break
				}
			}
		}

		entered++
	}

	result := entity

	if opErr == nil {
		opErr = ctx.Err()
	}

	if opErr == nil {
		stored, err := call(ctx, entity, softDelete)
		if err != nil {
			opErr = err
		} else {
			result = stored
		}
	}

	for i := entered - 1; i >= 0; i-- {
		s := stages[i]
		if s.after == nil {
			continue
		}

		if err := s.after(ctx, result, opErr); err != nil {
			if opErr == nil {
				opErr = err
				continue
			}

			if p.logger != nil {
				p.logger.Warn(logMsgAfterHookErrorSuppressed, logAttrBehavior, s.name, logAttrOperation, string(op), logAttrError, err.Error())
			}
		}
	}

	if opErr != nil {
		return zero, opErr
	}

	return result, nil
}
