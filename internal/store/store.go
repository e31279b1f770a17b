package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"farmtech/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDuplicate          = errors.New("already exists")
	// ErrConflict means a concurrent writer changed state this commit depended on.
	// Nothing was written; the caller may re-read and retry.
	ErrConflict = errors.New("concurrent update conflict")
)

// StockError reports which product could not cover a requested quantity.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

type Catalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	GetStaleFlags(ctx context.Context, productIDs []string) (map[string]domain.StaleFlag, error)
	ListStaleFlags(ctx context.Context) ([]domain.StaleFlag, error)
	// LastSaleDates returns the most recent sale date per product that has ever sold.
	LastSaleDates(ctx context.Context) (map[string]time.Time, error)
	// UpsertStaleFlags inserts or overwrites flags, skipping any product that
	// sold after the flag's reference date in the meantime. It returns the
	// number of flags written.
	UpsertStaleFlags(ctx context.Context, flags []domain.StaleFlag) (int, error)
}

type Ledger interface {
	CreateMember(ctx context.Context, member domain.Member) (*domain.Member, error)
	GetMember(ctx context.Context, id string) (*domain.Member, error)
	FindMemberByPhone(ctx context.Context, phone string) (*domain.Member, error)

	// CommitSale writes the sale header and lines, decrements stock, clears
	// stale flags of sold products and bumps the member counter as one unit.
	CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSalesReport(ctx context.Context, from time.Time, to time.Time) ([]domain.SalesReportRow, error)

	// CommitPurchase writes the order header and lines, increases stock,
	// records the new unit cost and applies repricing as one unit.
	CommitPurchase(ctx context.Context, order domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	PurchaseTotal(ctx context.Context, from time.Time, to time.Time) (int64, error)
}

type Tickets interface {
	CreateTicket(ctx context.Context, ticket domain.ServiceTicket) (*domain.ServiceTicket, error)
	GetTicket(ctx context.Context, id string) (*domain.ServiceTicket, error)
	// TransitionTicket stores status, cost and completion date of ticket only
	// if the stored status still equals from.
	TransitionTicket(ctx context.Context, ticket domain.ServiceTicket, from domain.TicketStatus) (*domain.ServiceTicket, error)
	ListTicketsByStatus(ctx context.Context, statuses ...domain.TicketStatus) ([]domain.ServiceTicket, error)
	CountTickets(ctx context.Context, technicianID string, status domain.TicketStatus) (int, error)
	ListCompletedTickets(ctx context.Context, from time.Time, to time.Time) ([]domain.ServiceTicket, error)
}

type Directory interface {
	GetStaff(ctx context.Context, id string) (*domain.Staff, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateTechnician(ctx context.Context, technician domain.Technician) (*domain.Technician, error)
	GetTechnician(ctx context.Context, id string) (*domain.Technician, error)
	ListTechnicians(ctx context.Context) ([]domain.Technician, error)
	DeleteTechnician(ctx context.Context, id string) error
}

type Repository interface {
	Catalog
	Ledger
	Tickets
	Directory
}
