package service

import (
	"context"
	"log"
	"time"

	"farmtech/backend/internal/cache"
	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/events"
	"farmtech/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo            store.Repository
	now             func() time.Time
	checkoutRetries int
	idempotency     cache.IdempotencyStore
	idempotencyTTL  time.Duration
	publisher       events.Publisher
	locker          cache.Locker
}

type Option func(*Service)

// WithClock overrides the time source. Tests pin "today" with it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithCheckoutRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.checkoutRetries = n
		}
	}
}

func WithIdempotency(idem cache.IdempotencyStore, ttl time.Duration) Option {
	return func(s *Service) {
		if idem != nil {
			s.idempotency = idem
		}
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithLocker(l cache.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		now:             time.Now,
		checkoutRetries: 3,
		idempotency:     cache.NewMemoryIdempotencyStore(),
		idempotencyTTL:  24 * time.Hour,
		publisher:       events.Noop{},
		locker:          cache.LocalLocker{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	return dateUTC(s.now())
}

func (s *Service) publish(ctx context.Context, eventType string, key string, payload any) {
	if err := s.publisher.Publish(ctx, eventType, key, payload); err != nil {
		log.Printf("[service] WARN: failed to publish %s key=%s: %v", eventType, key, err)
	}
}

func dateUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
