package service

import (
	"context"
	"errors"
	"fmt"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/events"
	"farmtech/backend/internal/store"
)

const reasonRepriceDeclined = "unit cost exceeds sale price and no new price was given"

// Restock records a supplier purchase. A line whose unit cost would exceed the
// sale price needs a new sale price; without one the line is dropped and
// reported back. When every line is dropped the result still lists them and
// ErrEmptyOrder is returned.
func (s *Service) Restock(ctx context.Context, req domain.RestockRequest) (domain.RestockResult, error) {
	if _, err := s.repo.GetSupplier(ctx, req.SupplierID); err != nil {
		return domain.RestockResult{}, notFound(err, ErrSupplierNotFound)
	}
	if len(req.Lines) == 0 {
		return domain.RestockResult{}, ErrEmptyOrder
	}

	ids := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.RestockResult{}, err
	}

	// Later lines of the same product see the cost and price set by earlier ones.
	working := make(map[string]domain.Product, len(products))
	var accepted []domain.PurchaseLine
	var dropped []domain.DroppedRestockLine
	var total int64

	for _, line := range req.Lines {
		product, ok := working[line.ProductID]
		if !ok {
			product, ok = products[line.ProductID]
			if !ok {
				return domain.RestockResult{}, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
			}
		}
		if line.Qty <= 0 {
			return domain.RestockResult{}, fmt.Errorf("%w: product %s qty %d", ErrInvalidQuantity, line.ProductID, line.Qty)
		}

		cost := product.Cost
		if line.UnitCost != nil {
			cost = *line.UnitCost
		}
		if cost <= 0 {
			return domain.RestockResult{}, fmt.Errorf("%w: product %s unit cost %d", ErrInvalidCost, line.ProductID, cost)
		}

		var repriced *int64
		if cost > product.Price {
			if line.NewPrice == nil {
				dropped = append(dropped, domain.DroppedRestockLine{
					ProductID:    product.ID,
					UnitCost:     cost,
					CurrentPrice: product.Price,
					Reason:       reasonRepriceDeclined,
				})
				continue
			}
			newPrice := *line.NewPrice
			if newPrice <= 0 || newPrice < cost {
				return domain.RestockResult{}, fmt.Errorf("%w: product %s price %d cost %d", ErrInvalidPrice, line.ProductID, newPrice, cost)
			}
			product.Price = newPrice
			repriced = &newPrice
		}

		product.Cost = cost
		product.Stock += line.Qty
		working[product.ID] = product

		accepted = append(accepted, domain.PurchaseLine{
			ProductID:  product.ID,
			Qty:        line.Qty,
			UnitCost:   cost,
			RepricedTo: repriced,
		})
		total += int64(line.Qty) * cost
	}

	if len(accepted) == 0 {
		return domain.RestockResult{Dropped: dropped}, ErrEmptyOrder
	}

	order, err := s.repo.CommitPurchase(ctx, domain.PurchaseOrder{
		SupplierID: req.SupplierID,
		CreatedAt:  s.now().UTC(),
		Total:      total,
		Lines:      accepted,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RestockResult{}, ErrProductNotFound
		}
		return domain.RestockResult{}, err
	}

	s.publish(ctx, events.TypePurchaseRecorded, order.ID, events.PurchaseRecordedPayload{
		OrderID:    order.ID,
		SupplierID: order.SupplierID,
		Total:      order.Total,
		Accepted:   len(order.Lines),
		Dropped:    len(dropped),
	})
	return domain.RestockResult{Order: *order, Dropped: dropped}, nil
}
