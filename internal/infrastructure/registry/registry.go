package registry

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/hilthontt/quadchat/internal/infrastructure/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	lockStripes = 256

	DefaultStoreTimeout = 2 * time.Second
	DefaultMaxRetries   = 5
)

// Mutation transforms a private copy of the room. It may run more than once when
// a concurrent writer wins the race, so it must not have side effects outside
// the room it is given. changed == false skips the write.
type Mutation func(room *domain.Room) (changed bool, err error)

type Options struct {
	// Backend labels metrics and spans, e.g. "memory" or "redis".
	Backend      string
	Retention    time.Duration
	StoreTimeout time.Duration
	MaxRetries   int
}

// Registry is the only path through which room state changes. Writers for the
// same code are serialized in-process by a striped lock and across processes by
// the store's version check.
type Registry struct {
	store   domain.RoomStore
	opts    Options
	stripes [lockStripes]sync.Mutex
	logger  logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func New(store domain.RoomStore, opts Options, logger logging.Logger, m *metrics.Metrics) *Registry {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Retention <= 0 {
		opts.Retention = domain.RetentionWindow
	}
	if opts.Backend == "" {
		opts.Backend = "memory"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Registry{
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("quadchat/registry"),
	}
}

func (r *Registry) getLock(code string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return &r.stripes[h.Sum32()%lockStripes]
}

// Resolve returns the current state for code. An absent room resolves to an
// empty one; only store failures are errors.
func (r *Registry) Resolve(ctx context.Context, code string) (*domain.Room, error) {
	ctx, span := r.tracer.Start(ctx, "registry.Resolve", trace.WithAttributes(
		attribute.String("room.code", code),
		attribute.String("store.backend", r.opts.Backend),
	))
	defer span.End()

	room, err := r.load(ctx, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("room.members", room.MemberCount()))
	return room, nil
}

// WithRoom loads code, applies mutate to a copy and persists the result. A room
// left without members is deleted instead of written. When mutate fails the
// stored state is untouched and the loaded room is returned with the error.
func (r *Registry) WithRoom(ctx context.Context, code string, mutate Mutation) (*domain.Room, error) {
	ctx, span := r.tracer.Start(ctx, "registry.WithRoom", trace.WithAttributes(
		attribute.String("room.code", code),
		attribute.String("store.backend", r.opts.Backend),
	))
	defer span.End()

	lock := r.getLock(code)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 1; attempt <= r.opts.MaxRetries; attempt++ {
		span.SetAttributes(attribute.Int("registry.attempts", attempt))

		if err := ctx.Err(); err != nil {
			return nil, r.unavailable(span, err)
		}

		current, err := r.load(ctx, code)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "load failed")
			return nil, err
		}

		next := current.Clone()
		changed, err := mutate(next)
		if err != nil {
			return current, err
		}
		if !changed {
			return next, nil
		}

		err = r.persist(ctx, current, next)
		if errors.Is(err, domain.ErrVersionConflict) {
			r.metrics.IncStoreConflict(r.opts.Backend)
			r.logger.Debug(logging.Store, logging.Conflict, "version conflict, retrying", map[logging.ExtraKey]any{
				logging.RoomCode: code,
				logging.Attempt:  attempt,
				logging.Backend:  r.opts.Backend,
			})
			continue
		}
		if err != nil {
			return nil, r.unavailable(span, err)
		}

		if next.Empty() {
			r.metrics.IncRoomsDeleted()
		}
		return next, nil
	}

	r.logger.Warn(logging.Store, logging.Conflict, "giving up after repeated version conflicts", map[logging.ExtraKey]any{
		logging.RoomCode: code,
		logging.Attempt:  r.opts.MaxRetries,
		logging.Backend:  r.opts.Backend,
	})
	return nil, r.unavailable(span, fmt.Errorf("%w after %d attempts", domain.ErrVersionConflict, r.opts.MaxRetries))
}

func (r *Registry) load(ctx context.Context, code string) (*domain.Room, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()

	start := time.Now()
	room, err := r.store.Get(storeCtx, code)
	if errors.Is(err, domain.ErrRoomNotFound) {
		r.metrics.ObserveStoreOp(r.opts.Backend, "get", start, nil)
		return domain.NewRoom(code), nil
	}
	r.metrics.ObserveStoreOp(r.opts.Backend, "get", start, err)
	if err != nil {
		r.logger.Error(logging.Store, logging.Read, "room store read failed", map[logging.ExtraKey]any{
			logging.RoomCode:     code,
			logging.Backend:      r.opts.Backend,
			logging.ErrorMessage: err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return room, nil
}

func (r *Registry) persist(ctx context.Context, current, next *domain.Room) error {
	storeCtx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()

	start := time.Now()
	if next.Empty() {
		if current.Version == 0 {
			// never stored
			return nil
		}
		err := r.store.Delete(storeCtx, next.Code, current.Version)
		r.metrics.ObserveStoreOp(r.opts.Backend, "delete", start, err)
		return err
	}

	err := r.store.Put(storeCtx, next, r.opts.Retention)
	r.metrics.ObserveStoreOp(r.opts.Backend, "put", start, err)
	return err
}

func (r *Registry) unavailable(span trace.Span, err error) error {
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "store unavailable")
	r.logger.Error(logging.Store, logging.ExternalService, "room store write failed", map[logging.ExtraKey]any{
		logging.Backend:      r.opts.Backend,
		logging.ErrorMessage: err.Error(),
	})
	return err
}

func (r *Registry) Close() error {
	return r.store.Close()
}
