package service

import (
	"errors"
	"fmt"

	"farmtech/backend/internal/store"
)

var (
	ErrProductNotFound    = fmt.Errorf("product %w", store.ErrNotFound)
	ErrMemberNotFound     = fmt.Errorf("member %w", store.ErrNotFound)
	ErrSupplierNotFound   = fmt.Errorf("supplier %w", store.ErrNotFound)
	ErrTechnicianNotFound = fmt.Errorf("technician %w", store.ErrNotFound)
	ErrTicketNotFound     = fmt.Errorf("service ticket %w", store.ErrNotFound)

	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidCost     = errors.New("invalid cost")
	ErrInvalidPrice    = errors.New("new sale price must be positive and not below unit cost")
	ErrInvalidMember   = errors.New("member name and phone are required")
	ErrInvalidPeriod   = errors.New("invalid report period")
	ErrEmptyOrder      = errors.New("order has no lines")
	ErrTerminalState   = errors.New("ticket already picked up")
	ErrDuplicateMember = fmt.Errorf("member phone %w", store.ErrDuplicate)

	ErrInsufficientStock       = store.ErrInsufficientStock
	ErrConcurrentStockConflict = store.ErrConflict
	ErrCheckoutInProgress      = fmt.Errorf("checkout with this idempotency key is in progress: %w", store.ErrConflict)
)

// StockError reports the product that could not cover the requested quantity.
// errors.Is(err, ErrInsufficientStock) holds for it.
type StockError = store.StockError

// notFound replaces a bare store.ErrNotFound with the more specific target.
func notFound(err error, target error) error {
	if errors.Is(err, store.ErrNotFound) {
		return target
	}
	return err
}
