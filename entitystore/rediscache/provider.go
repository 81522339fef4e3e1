package rediscache

import (
	"context"
	"errors"
	"reflect"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

const (
	logMsgHit          = "rediscache: hit"
	logMsgMiss         = "rediscache: miss"
	logMsgRedisFailed  = "rediscache: redis failed, using the inner provider"
	logMsgDecodeFailed = "rediscache: cached value could not be decoded"

	logAttrKey       = "key"
	logAttrOperation = "operation"
	logAttrError     = "error"

	metricHits   = "rediscache_hits_total"
	metricMisses = "rediscache_misses_total"
	metricErrors = "rediscache_errors_total"

	labelOperation = "operation"
	labelPrefix    = "prefix"
)

// entry is the cached form of every read result.
type entry[T any] struct {
	Items  []T   `msgpack:"items,omitempty"`
	Total  int64 `msgpack:"total"`
	Exists bool  `msgpack:"exists"`
}

// Provider caches the reads of an inner provider.
type Provider[T any] struct {
	inner  entitystore.Provider[T]
	client redis.UniversalClient
	settings
}

var _ entitystore.Provider[any] = (*Provider[any])(nil)

// New wraps inner.
func New[T any](inner entitystore.Provider[T], client redis.UniversalClient, opts ...Option) (*Provider[T], error) {
	if inner == nil {
		return nil, ErrNilProvider
	}

	if client == nil {
		return nil, ErrNilClient
	}

	s := settings{
		prefix: "entitystore:" + reflect.TypeFor[T]().String(),
		ttl:    DefaultTTL,
	}

	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, err
		}
	}

	return &Provider[T]{inner: inner, client: client, settings: s}, nil
}

func (p *Provider[T]) Insert(ctx context.Context, entity T) (T, error) {
	stored, err := p.inner.Insert(ctx, entity)
	p.invalidate(ctx, err)

	return stored, err
}

func (p *Provider[T]) Update(ctx context.Context, entity T) (T, error) {
	stored, err := p.inner.Update(ctx, entity)
	p.invalidate(ctx, err)

	return stored, err
}

func (p *Provider[T]) Upsert(ctx context.Context, entity T) (T, entitystore.UpsertAction, error) {
	stored, action, err := p.inner.Upsert(ctx, entity)
	p.invalidate(ctx, err)

	return stored, action, err
}

func (p *Provider[T]) Delete(ctx context.Context, entity T) error {
	err := p.inner.Delete(ctx, entity)
	p.invalidate(ctx, err)

	return err
}

// FindOne caches found entities only, ErrNotFound always reaches the inner provider.
func (p *Provider[T]) FindOne(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) (T, error) {
	cached, err := readThrough(ctx, p, entitystore.OperationFindOne, specs, options, nil, func() (entry[T], error) {
		found, err := p.inner.FindOne(ctx, specs, options)
		return entry[T]{Items: []T{found}}, err
	})
	if err != nil || len(cached.Items) == 0 {
		var zero T
		return zero, err
	}

	return cached.Items[0], nil
}

func (p *Provider[T]) FindAll(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) ([]T, error) {
	cached, err := readThrough(ctx, p, entitystore.OperationFindAll, specs, options, nil, func() (entry[T], error) {
		items, err := p.inner.FindAll(ctx, specs, options)
		return entry[T]{Items: items}, err
	})

	if err != nil {
		return nil, err
	}

	return itemsOf(cached), nil
}

func (p *Provider[T]) FindAllPaged(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) ([]T, int64, error) {
	cached, err := readThrough(ctx, p, entitystore.OperationFindAllPaged, specs, options, nil, func() (entry[T], error) {
		items, total, err := p.inner.FindAllPaged(ctx, specs, options)
		return entry[T]{Items: items, Total: total}, err
	})

	if err != nil {
		return nil, 0, err
	}

	return itemsOf(cached), cached.Total, nil
}

func (p *Provider[T]) Exists(ctx context.Context, specs []entitystore.Specification[T]) (bool, error) {
	cached, err := readThrough(ctx, p, entitystore.OperationExists, specs, entitystore.FindOptions[T]{}, nil, func() (entry[T], error) {
		exists, err := p.inner.Exists(ctx, specs)
		return entry[T]{Exists: exists}, err
	})

	return cached.Exists, err
}

func (p *Provider[T]) Count(ctx context.Context, specs []entitystore.Specification[T]) (int64, error) {
	cached, err := readThrough(ctx, p, entitystore.OperationCount, specs, entitystore.FindOptions[T]{}, nil, func() (entry[T], error) {
		count, err := p.inner.Count(ctx, specs)
		return entry[T]{Total: count}, err
	})

	return cached.Total, err
}

func (p *Provider[T]) ProjectAll(ctx context.Context, specs []entitystore.Specification[T], fields []string, options entitystore.FindOptions[T]) ([]T, error) {
	cached, err := readThrough(ctx, p, entitystore.OperationProjectAll, specs, options, fields, func() (entry[T], error) {
		items, err := p.inner.ProjectAll(ctx, specs, fields, options)
		return entry[T]{Items: items}, err
	})

	if err != nil {
		return nil, err
	}

	return itemsOf(cached), nil
}

func (p *Provider[T]) ProjectAllPaged(ctx context.Context, specs []entitystore.Specification[T], fields []string, options entitystore.FindOptions[T]) ([]T, int64, error) {
	cached, err := readThrough(ctx, p, entitystore.OperationProjectAllPaged, specs, options, fields, func() (entry[T], error) {
		items, total, err := p.inner.ProjectAllPaged(ctx, specs, fields, options)
		return entry[T]{Items: items, Total: total}, err
	})

	if err != nil {
		return nil, 0, err
	}

	return itemsOf(cached), cached.Total, nil
}

// readThrough answers from Redis or calls load and caches its successful result.
func readThrough[T any](
	ctx context.Context,
	p *Provider[T],
	op entitystore.Operation,
	specs []entitystore.Specification[T],
	options entitystore.FindOptions[T],
	fields []string,
	load func() (entry[T], error),
) (entry[T], error) {
	if err := ctx.Err(); err != nil {
		return entry[T]{}, err
	}

	key, err := p.key(ctx, op, specs, options, fields)
	if err != nil {
		p.redisFailed(ctx, op, err)
		return load()
	}

	raw, err := p.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached entry[T]
		decodeErr := msgpack.Unmarshal(raw, &cached)
		if decodeErr == nil {
			p.debug(ctx, logMsgHit, logAttrKey, key, logAttrOperation, string(op))
			entitystore.IncrementCounter(ctx, p.metricsCollector, metricHits, p.labels(op))

			return cached, nil
		}

		p.warn(ctx, logMsgDecodeFailed, logAttrKey, key, logAttrError, decodeErr.Error())
	case !errors.Is(err, redis.Nil):
		p.redisFailed(ctx, op, err)
		return load()
	}

	p.debug(ctx, logMsgMiss, logAttrKey, key, logAttrOperation, string(op))
	entitystore.IncrementCounter(ctx, p.metricsCollector, metricMisses, p.labels(op))

	loaded, err := load()
	if err != nil {
		return loaded, err
	}

	encoded, err := msgpack.Marshal(loaded)
	if err != nil {
		p.warn(ctx, logMsgDecodeFailed, logAttrKey, key, logAttrError, err.Error())
		return loaded, nil
	}

	if err := p.client.Set(ctx, key, encoded, p.ttl).Err(); err != nil {
		p.redisFailed(ctx, op, err)
	}

	return loaded, nil
}

// key includes the current generation, so that a mutation makes all older keys unreachable.
func (p *Provider[T]) key(
	ctx context.Context,
	op entitystore.Operation,
	specs []entitystore.Specification[T],
	options entitystore.FindOptions[T],
	fields []string,
) (string, error) {
	generation, err := p.client.Get(ctx, p.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}

	digest := xxhash.New()
	for _, spec := range specs {
		_, _ = digest.WriteString(spec.String())
		_, _ = digest.WriteString("\x00")
	}

	_, _ = digest.WriteString("\x01")
	_, _ = digest.WriteString(options.String())

	for _, field := range fields {
		_, _ = digest.WriteString("\x00")
		_, _ = digest.WriteString(field)
	}

	return p.prefix + ":" + strconv.FormatInt(generation, 10) + ":" + string(op) + ":" +
		strconv.FormatUint(digest.Sum64(), 16), nil
}

func (p *Provider[T]) generationKey() string {
	return p.prefix + ":gen"
}

// invalidate bumps the generation after a successful mutation.
func (p *Provider[T]) invalidate(ctx context.Context, opErr error) {
	if opErr != nil {
		return
	}

	if err := p.client.Incr(ctx, p.generationKey()).Err(); err != nil {
		p.redisFailed(ctx, "invalidate", err)
	}
}

func (p *Provider[T]) redisFailed(ctx context.Context, op entitystore.Operation, err error) {
	p.warn(ctx, logMsgRedisFailed, logAttrOperation, string(op), logAttrError, err.Error())
	entitystore.IncrementCounter(ctx, p.metricsCollector, metricErrors, p.labels(op))
}

func (p *Provider[T]) labels(op entitystore.Operation) map[string]string {
	return map[string]string{labelOperation: string(op), labelPrefix: p.prefix}
}

func (p *Provider[T]) debug(ctx context.Context, msg string, args ...any) {
	if p.contextualLogger != nil {
		p.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Provider[T]) warn(ctx context.Context, msg string, args ...any) {
	if p.contextualLogger != nil {
		p.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func itemsOf[T any](cached entry[T]) []T {
	if cached.Items == nil {
		return []T{}
	}

	return cached.Items
}
