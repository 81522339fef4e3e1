package entitystore

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Scope is one logical unit of work. Providers and behaviors of an EntityContext are resolved from
// the same Scope and can share resources through it, a transaction for example.
// Entity contexts stop working once their scope is closed.
type Scope struct {
	id       uuid.UUID
	mu       sync.Mutex
	values   map[any]any
	closers  []func() error
	disposed atomic.Bool
}

// NewScope opens a scope with a fresh id. Close it when the unit of work ends.
func NewScope() *Scope {
	return &Scope{
		id:     uuid.New(),
		values: make(map[any]any),
	}
}

// ID identifies the scope in logs and usage errors.
func (s *Scope) ID() uuid.UUID {
	return s.id
}

// Set stores a scope-local value.
func (s *Scope) Set(key, value any) {
	s.ensureOpen()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
}

// Value returns a scope-local value or nil.
func (s *Scope) Value(key any) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.values[key]
}

// OnClose registers fn to run when the scope is closed. Functions run in reverse registration order.
func (s *Scope) OnClose(fn func() error) {
	s.ensureOpen()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closers = append(s.closers, fn)
}

// Close disposes the scope. Closing twice is a no-op.
func (s *Scope) Close() error {
	if !s.disposed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	closers := slices.Clone(s.closers)
	s.closers = nil
	s.values = make(map[any]any)
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Disposed reports whether Close was called.
func (s *Scope) Disposed() bool {
	return s.disposed.Load()
}

func (s *Scope) ensureOpen() {
	if s.Disposed() {
		panicUsage(ErrScopeDisposed, "scope "+s.id.String())
	}
}
