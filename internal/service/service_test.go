package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/store"
	"farmtech/backend/internal/store/memory"
)

var testToday = time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC)

type fixture struct {
	t    *testing.T
	ctx  context.Context
	repo *memory.Store
	svc  *Service
	now  time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), repo: memory.New(), now: testToday}
	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.svc = New(f.repo, opts...)

	_, err := f.repo.CreateSupplier(f.ctx, domain.Supplier{ID: "SUP-1", Name: "CV Tani Makmur"})
	require.NoError(t, err)
	_, err = f.repo.CreateTechnician(f.ctx, domain.Technician{ID: "TEK-1", Name: "Budi"})
	require.NoError(t, err)
	_, err = f.repo.CreateTechnician(f.ctx, domain.Technician{ID: "TEK-2", Name: "Sari"})
	require.NoError(t, err)
	return f
}

func (f *fixture) product(id string, price int64, cost int64, stock int) domain.Product {
	f.t.Helper()
	p, err := f.repo.CreateProduct(f.ctx, domain.Product{
		ID: id, Name: "Produk " + id, Category: "alat",
		Price: price, Cost: cost, Stock: stock, SupplierID: "SUP-1",
		EntryDate: f.now.AddDate(0, 0, -7),
	})
	require.NoError(f.t, err)
	return *p
}

func (f *fixture) member(phone string, txCount int) domain.Member {
	f.t.Helper()
	m, err := f.repo.CreateMember(f.ctx, domain.Member{Name: "Pak " + phone, Phone: phone, TxCount: txCount})
	require.NoError(f.t, err)
	return *m
}

func (f *fixture) stock(id string) int {
	f.t.Helper()
	p, err := f.repo.GetProduct(f.ctx, id)
	require.NoError(f.t, err)
	return p.Stock
}

func (f *fixture) sell(id string, qty int) domain.Sale {
	f.t.Helper()
	sale, err := f.svc.Checkout(f.ctx, domain.CheckoutRequest{
		CashierID: "STF-KASIR",
		Lines:     []domain.CartLine{{ProductID: id, Qty: qty}},
	})
	require.NoError(f.t, err)
	return sale
}

func int64Ptr(v int64) *int64 { return &v }

// flakyRepo fails the first commits with a conflict.
type flakyRepo struct {
	store.Repository
	conflicts int
	calls     int
}

func (r *flakyRepo) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	r.calls++
	if r.calls <= r.conflicts {
		return nil, store.ErrConflict
	}
	return r.Repository.CommitSale(ctx, sale)
}
