package service

import (
	"context"
	"log"
	"time"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/events"
)

const (
	StaleAfterDays       = 120
	StaleDiscountPercent = 20

	reviserLockName = "stale-reviser"
)

// ReviseStaleFlags flags every product whose reference date (the later of
// its last sale and its entry date) lies at least StaleAfterDays before asOf.
// Existing flags are overwritten, never removed. It returns the number of
// flags written.
func (s *Service) ReviseStaleFlags(ctx context.Context, asOf time.Time) (int, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return 0, err
	}
	lastSale, err := s.repo.LastSaleDates(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := dateUTC(asOf).AddDate(0, 0, -StaleAfterDays)
	candidates := make([]domain.StaleFlag, 0, 16)
	for _, p := range products {
		ref := dateUTC(p.EntryDate)
		if sold, ok := lastSale[p.ID]; ok && dateUTC(sold).After(ref) {
			ref = dateUTC(sold)
		}
		if ref.After(cutoff) {
			continue
		}
		candidates = append(candidates, domain.StaleFlag{
			ProductID:       p.ID,
			ReferenceDate:   ref,
			DiscountPercent: StaleDiscountPercent,
		})
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	written, err := s.repo.UpsertStaleFlags(ctx, candidates)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.TypeStaleRevised, "", events.StaleRevisedPayload{AsOf: dateUTC(asOf), Flagged: written})
	return written, nil
}

// RunStaleReviser revises once immediately and then on every tick until ctx
// is done. Only the instance holding the reviser lock does the work.
func (s *Service) RunStaleReviser(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.reviseOnce(ctx, interval)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) reviseOnce(ctx context.Context, interval time.Duration) {
	release, ok, err := s.locker.Acquire(ctx, reviserLockName, interval)
	if err != nil {
		log.Printf("[reviser] WARN: acquiring lock: %v", err)
		return
	}
	if !ok {
		return
	}
	defer release()

	n, err := s.ReviseStaleFlags(ctx, s.now())
	if err != nil {
		log.Printf("[reviser] WARN: revise failed: %v", err)
		return
	}
	log.Printf("[reviser] flagged %d stale products", n)
}
