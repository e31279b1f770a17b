package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/events"
	"farmtech/backend/internal/pricing"
	"farmtech/backend/internal/store"
)

// pendingClaimTTL bounds how long a claimed idempotency key blocks retries
// when its holder dies before committing.
const pendingClaimTTL = time.Minute

// Checkout prices the cart and commits the sale. A conflicting concurrent
// commit is retried with freshly read state up to the configured retry count.
// A request carrying an idempotency key claims it before committing, so a
// duplicate either replays the committed sale or gets ErrCheckoutInProgress.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Sale, error) {
	if req.CashierID == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			req.CashierID = actor.StaffID
		}
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	cart, err := aggregateCart(req.Lines)
	if err != nil {
		return domain.Sale{}, err
	}

	claimed := false
	if key := req.IdempotencyKey; key != "" {
		if sale, ok := s.replayCheckout(ctx, key); ok {
			return sale, nil
		}
		ok, err := s.idempotency.Claim(ctx, key, pendingClaimTTL)
		switch {
		case err != nil:
			log.Printf("[checkout] WARN: idempotency claim key=%s: %v", key, err)
		case !ok:
			// Another request holds the key; it may have finished meanwhile.
			if sale, ok := s.replayCheckout(ctx, key); ok {
				return sale, nil
			}
			return domain.Sale{}, ErrCheckoutInProgress
		default:
			claimed = true
		}
	}

	sale, err := s.commitCheckout(ctx, req, cart)
	if err != nil {
		if claimed {
			if ferr := s.idempotency.Forget(ctx, req.IdempotencyKey); ferr != nil {
				log.Printf("[checkout] WARN: failed to release idempotency key=%s: %v", req.IdempotencyKey, ferr)
			}
		}
		return domain.Sale{}, err
	}
	s.afterCheckout(ctx, req.IdempotencyKey, sale)
	return sale, nil
}

func (s *Service) commitCheckout(ctx context.Context, req domain.CheckoutRequest, cart []domain.CartLine) (domain.Sale, error) {
	member, err := s.resolveMember(ctx, req)
	if err != nil {
		return domain.Sale{}, err
	}

	attempts := s.checkoutRetries + 1
	for attempt := 1; ; attempt++ {
		sale, err := s.checkoutOnce(ctx, req.CashierID, member, cart)
		if err == nil {
			return sale, nil
		}
		if !errors.Is(err, ErrConcurrentStockConflict) || attempt >= attempts {
			return domain.Sale{}, err
		}
		log.Printf("[checkout] conflict on attempt %d/%d, retrying: %v", attempt, attempts, err)
	}
}

func (s *Service) checkoutOnce(ctx context.Context, cashierID string, member *domain.Member, cart []domain.CartLine) (domain.Sale, error) {
	ids := make([]string, 0, len(cart))
	for _, line := range cart {
		ids = append(ids, line.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Sale{}, err
	}
	lines := make([]pricing.Line, 0, len(cart))
	for _, line := range cart {
		product, ok := products[line.ProductID]
		if !ok {
			return domain.Sale{}, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
		}
		if line.Qty > product.Stock {
			return domain.Sale{}, &StockError{ProductID: product.ID, Requested: line.Qty, Available: product.Stock}
		}
		lines = append(lines, pricing.Line{ProductID: product.ID, Qty: line.Qty, ListPrice: product.Price})
	}

	flags, err := s.repo.GetStaleFlags(ctx, ids)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{CashierID: cashierID, CreatedAt: s.now().UTC()}
	var state *pricing.MemberState
	if member != nil {
		// Re-read so a retry prices against the counter another sale just bumped.
		fresh, err := s.repo.GetMember(ctx, member.ID)
		if err != nil {
			return domain.Sale{}, notFound(err, ErrMemberNotFound)
		}
		state = &pricing.MemberState{TxCount: fresh.TxCount}
		sale.MemberID = fresh.ID
		sale.MemberTxCountBefore = fresh.TxCount
	}

	priced := pricing.Price(lines, state, flags)
	sale.Subtotal = priced.Subtotal
	sale.Tax = priced.Tax
	sale.Discount = priced.MemberDiscount
	sale.Total = priced.Total
	sale.Lines = make([]domain.SaleLine, 0, len(priced.Lines))
	for _, line := range priced.Lines {
		sale.Lines = append(sale.Lines, domain.SaleLine{
			ProductID: line.ProductID,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
			ListPrice: line.ListPrice,
		})
	}

	committed, err := s.repo.CommitSale(ctx, sale)
	if err != nil {
		var stockErr *StockError
		if errors.As(err, &stockErr) {
			return domain.Sale{}, err
		}
		return domain.Sale{}, notFound(err, ErrProductNotFound)
	}
	return *committed, nil
}

func (s *Service) replayCheckout(ctx context.Context, key string) (domain.Sale, bool) {
	saleID, ok, err := s.idempotency.Lookup(ctx, key)
	if err != nil {
		log.Printf("[checkout] WARN: idempotency lookup key=%s: %v", key, err)
		return domain.Sale{}, false
	}
	if !ok {
		return domain.Sale{}, false
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		log.Printf("[checkout] WARN: idempotency key=%s points at missing sale %s: %v", key, saleID, err)
		return domain.Sale{}, false
	}
	return *sale, true
}

func (s *Service) afterCheckout(ctx context.Context, idempotencyKey string, sale domain.Sale) {
	if idempotencyKey != "" {
		if err := s.idempotency.Remember(ctx, idempotencyKey, sale.ID, s.idempotencyTTL); err != nil {
			log.Printf("[checkout] WARN: failed to remember idempotency key=%s: %v", idempotencyKey, err)
		}
	}

	payload := events.SaleCompletedPayload{
		SaleID:   sale.ID,
		MemberID: sale.MemberID,
		Total:    sale.Total,
		Discount: sale.Discount,
		Lines:    make([]events.SaleLinePayload, 0, len(sale.Lines)),
	}
	for _, line := range sale.Lines {
		payload.Lines = append(payload.Lines, events.SaleLinePayload{ProductID: line.ProductID, Qty: line.Qty, UnitPrice: line.UnitPrice})
	}
	s.publish(ctx, events.TypeSaleCompleted, sale.ID, payload)
}

// resolveMember finds the member by phone, registering one inline when the
// phone is unknown and registration details were supplied. An unknown phone
// without registration yields an anonymous sale.
func (s *Service) resolveMember(ctx context.Context, req domain.CheckoutRequest) (*domain.Member, error) {
	phone := strings.TrimSpace(req.MemberPhone)
	if phone == "" && req.Registration != nil {
		phone = strings.TrimSpace(req.Registration.Phone)
	}
	if phone == "" {
		return nil, nil
	}

	member, err := s.repo.FindMemberByPhone(ctx, phone)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if req.Registration == nil {
		log.Printf("[checkout] member phone=%s not registered, continuing without member", phone)
		return nil, nil
	}

	reg := *req.Registration
	reg.Phone = phone
	created, err := s.RegisterMember(ctx, reg)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// aggregateCart merges repeated products, keeping first-seen order.
func aggregateCart(lines []domain.CartLine) ([]domain.CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	index := make(map[string]int, len(lines))
	out := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			return nil, ErrProductNotFound
		}
		if line.Qty <= 0 {
			return nil, fmt.Errorf("%w: product %s qty %d", ErrInvalidQuantity, id, line.Qty)
		}
		if i, ok := index[id]; ok {
			out[i].Qty += line.Qty
			continue
		}
		index[id] = len(out)
		out = append(out, domain.CartLine{ProductID: id, Qty: line.Qty})
	}
	return out, nil
}
