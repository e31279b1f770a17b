package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmtech/backend/internal/cache"
	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/store"
)

func TestCheckoutWithoutMember(t *testing.T) {
	f := newFixture(t)
	f.product("A", 10000, 6000, 5)

	sale := f.sell("A", 2)

	assert.NotEmpty(t, sale.ID)
	assert.Equal(t, int64(20000), sale.Subtotal)
	assert.Equal(t, int64(2400), sale.Tax)
	assert.Equal(t, int64(0), sale.Discount)
	assert.Equal(t, int64(22400), sale.Total)
	assert.Empty(t, sale.MemberID)
	assert.Equal(t, 3, f.stock("A"))

	require.Len(t, sale.Lines, 1)
	assert.Equal(t, int64(10000), sale.Lines[0].UnitPrice)
	assert.Equal(t, sale.ID, sale.Lines[0].SaleID)
}

func TestCheckoutLoyaltyDiscountFollowsPreSaleCount(t *testing.T) {
	cases := []struct {
		name         string
		before       int
		wantDiscount int64
		wantTotal    int64
	}{
		{name: "first visit", before: 0, wantDiscount: 0, wantTotal: 1120},
		{name: "count nine", before: 9, wantDiscount: 0, wantTotal: 1120},
		{name: "count ten", before: 10, wantDiscount: 100, wantTotal: 1020},
		{name: "count twenty", before: 20, wantDiscount: 100, wantTotal: 1020},
		{name: "count eleven", before: 11, wantDiscount: 0, wantTotal: 1120},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.product("A", 1000, 600, 10)
			m := f.member("0811", tc.before)

			sale, err := f.svc.Checkout(f.ctx, domain.CheckoutRequest{
				MemberPhone: "0811",
				Lines:       []domain.CartLine{{ProductID: "A", Qty: 1}},
			})
			require.NoError(t, err)

			assert.Equal(t, tc.wantDiscount, sale.Discount)
			assert.Equal(t, tc.wantTotal, sale.Total)
			assert.Equal(t, m.ID, sale.MemberID)

			after, err := f.repo.GetMember(f.ctx, m.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.before+1, after.TxCount)
		})
	}
}

func TestCheckoutUsesStaleDiscountAndClearsFlag(t *testing.T) {
	f := newFixture(t)
	f.product("S", 5000, 3000, 4)
	_, err := f.repo.UpsertStaleFlags(f.ctx, []domain.StaleFlag{{
		ProductID: "S", ReferenceDate: f.now.AddDate(0, 0, -150), DiscountPercent: 20,
	}})
	require.NoError(t, err)

	sale := f.sell("S", 1)

	require.Len(t, sale.Lines, 1)
	assert.Equal(t, int64(4000), sale.Lines[0].UnitPrice)
	assert.Equal(t, int64(5000), sale.Lines[0].ListPrice)
	assert.Equal(t, int64(4000), sale.Subtotal)
	assert.Equal(t, int64(480), sale.Tax)
	assert.Equal(t, int64(4480), sale.Total)

	flags, err := f.repo.GetStaleFlags(f.ctx, []string{"S"})
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestCheckoutAggregatesRepeatedProducts(t *testing.T) {
	f := newFixture(t)
	f.product("A", 1000, 500, 3)
	f.product("B", 2000, 500, 3)

	sale, err := f.svc.Checkout(f.ctx, domain.CheckoutRequest{Lines: []domain.CartLine{
		{ProductID: "B", Qty: 1}, {ProductID: "A", Qty: 1}, {ProductID: "B", Qty: 2},
	}})
	require.NoError(t, err)

	require.Len(t, sale.Lines, 2)
	assert.Equal(t, "B", sale.Lines[0].ProductID)
	assert.Equal(t, 3, sale.Lines[0].Qty)
	assert.Equal(t, 0, f.stock("B"))
	assert.Equal(t, int64(7000), sale.Subtotal)
}

func TestCheckoutRejectsBadCartsWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	f.product("A", 1000, 500, 2)
	m := f.member("0812", 3)

	_, err := f.svc.Checkout(f.ctx, domain.CheckoutRequest{})
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = f.svc.Checkout(f.ctx, domain.CheckoutRequest{Lines: []domain.CartLine{{ProductID: "A", Qty: 0}}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.Checkout(f.ctx, domain.CheckoutRequest{Lines: []domain.CartLine{{ProductID: "A", Qty: -1}}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.Checkout(f.ctx, domain.CheckoutRequest{Lines: []domain.CartLine{
		{ProductID: "A", Qty: 1}, {ProductID: "missing", Qty: 1},
	}})
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.Checkout(f.ctx, domain.CheckoutRequest{
		MemberPhone: "0812",
		Lines:       []domain.CartLine{{ProductID: "A", Qty: 3}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "A", stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)

	assert.Equal(t, 2, f.stock("A"))
	after, err := f.repo.GetMember(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.TxCount)
}

func TestCheckoutMemberResolution(t *testing.T) {
	f := newFixture(t)
	f.product("A", 1000, 500, 10)

	anon, err := f.svc.Checkout(f.ctx, domain.CheckoutRequest{
		MemberPhone: "0899",
		Lines:       []domain.CartLine{{ProductID: "A", Qty: 1}},
	})
	require.NoError(t, err)
	assert.Empty(t, anon.MemberID)

	registered, err := f.svc.Checkout(f.ctx, domain.CheckoutRequest{
		MemberPhone:  "0899",
		Registration: &domain.MemberRegistration{Name: "Bu Sri", Address: "Desa Sukamaju"},
		Lines:        []domain.CartLine{{ProductID: "A", Qty: 1}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, registered.MemberID)

	m, err := f.svc.FindMemberByPhone(f.ctx, "0899")
	require.NoError(t, err)
	assert.Equal(t, registered.MemberID, m.ID)
	assert.Equal(t, 1, m.TxCount)
	assert.Equal(t, "Bu Sri", m.Name)
}

func TestCheckoutFillsCashierFromActor(t *testing.T) {
	f := newFixture(t)
	f.product("A", 1000, 500, 10)
	ctx := WithActor(f.ctx, domain.Actor{StaffID: "STF-KASIR", Role: domain.RoleKasir})

	sale, err := f.svc.Checkout(ctx, domain.CheckoutRequest{Lines: []domain.CartLine{{ProductID: "A", Qty: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "STF-KASIR", sale.CashierID)
}

func TestCheckoutIdempotencyKeyReplaysSale(t *testing.T) {
	f := newFixture(t, WithIdempotency(cache.NewMemoryIdempotencyStore(), 0))
	f.product("A", 1000, 500, 10)
	req := domain.CheckoutRequest{
		IdempotencyKey: "idem-1",
		Lines:          []domain.CartLine{{ProductID: "A", Qty: 2}},
	}

	first, err := f.svc.Checkout(f.ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Checkout(f.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, 8, f.stock("A"))
}

func TestConcurrentCheckoutsWithSameKeyCommitOnce(t *testing.T) {
	f := newFixture(t, WithIdempotency(cache.NewMemoryIdempotencyStore(), 0))
	f.product("A", 1000, 500, 10)
	req := domain.CheckoutRequest{
		IdempotencyKey: "idem-race",
		Lines:          []domain.CartLine{{ProductID: "A", Qty: 1}},
	}

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	saleIDs := make(map[string]struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, err := f.svc.Checkout(context.Background(), req)
			if err != nil {
				assert.ErrorIs(t, err, ErrCheckoutInProgress)
				return
			}
			mu.Lock()
			saleIDs[sale.ID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, saleIDs, 1)
	assert.Equal(t, 9, f.stock("A"))

	replayed, err := f.svc.Checkout(f.ctx, req)
	require.NoError(t, err)
	assert.Contains(t, saleIDs, replayed.ID)
	assert.Equal(t, 9, f.stock("A"))
}

func TestCheckoutWithClaimedKeyIsInProgress(t *testing.T) {
	idem := cache.NewMemoryIdempotencyStore()
	f := newFixture(t, WithIdempotency(idem, 0))
	f.product("A", 1000, 500, 10)

	claimed, err := idem.Claim(f.ctx, "idem-held", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = f.svc.Checkout(f.ctx, domain.CheckoutRequest{
		IdempotencyKey: "idem-held",
		Lines:          []domain.CartLine{{ProductID: "A", Qty: 1}},
	})
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 10, f.stock("A"))
}

func TestFailedCheckoutReleasesKey(t *testing.T) {
	f := newFixture(t, WithIdempotency(cache.NewMemoryIdempotencyStore(), 0))
	f.product("A", 1000, 500, 1)
	req := domain.CheckoutRequest{
		IdempotencyKey: "idem-retry",
		Lines:          []domain.CartLine{{ProductID: "A", Qty: 2}},
	}

	_, err := f.svc.Checkout(f.ctx, req)
	require.ErrorIs(t, err, ErrInsufficientStock)

	// The key is free again: the retry is priced, not refused as in progress.
	_, err = f.svc.Checkout(f.ctx, req)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrCheckoutInProgress)

	req.Lines[0].Qty = 1
	sale, err := f.svc.Checkout(f.ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, sale.ID)
	assert.Equal(t, 0, f.stock("A"))
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.product("A", 1000, 500, 5)

	const buyers = 12
	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{
				Lines: []domain.CartLine{{ProductID: "A", Qty: 1}},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientStock)
	}
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, f.stock("A"))
}

func TestCheckoutRetriesConflicts(t *testing.T) {
	f := newFixture(t)
	f.product("A", 1000, 500, 5)

	flaky := &flakyRepo{Repository: f.repo, conflicts: 2}
	svc := New(flaky, WithCheckoutRetries(2))
	_, err := svc.Checkout(f.ctx, domain.CheckoutRequest{Lines: []domain.CartLine{{ProductID: "A", Qty: 1}}})
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, 4, f.stock("A"))

	exhausted := &flakyRepo{Repository: f.repo, conflicts: 10}
	svc = New(exhausted, WithCheckoutRetries(1))
	_, err = svc.Checkout(f.ctx, domain.CheckoutRequest{Lines: []domain.CartLine{{ProductID: "A", Qty: 1}}})
	assert.ErrorIs(t, err, ErrConcurrentStockConflict)
	assert.Equal(t, 2, exhausted.calls)
	assert.Equal(t, 4, f.stock("A"))
}

func TestCheckoutStaleMemberCountIsAConflict(t *testing.T) {
	f := newFixture(t)
	f.product("A", 1000, 500, 5)
	m := f.member("0813", 9)

	_, err := f.repo.CommitSale(f.ctx, domain.Sale{
		MemberID: m.ID, MemberTxCountBefore: 8,
		Subtotal: 1000, Tax: 120, Total: 1120,
		Lines: []domain.SaleLine{{ProductID: "A", Qty: 1, UnitPrice: 1000, ListPrice: 1000}},
	})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 5, f.stock("A"))
}
