package service

import (
	"context"
	"strings"

	"farmtech/backend/internal/domain"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// AddProduct puts a new product on the shelf. Entry date defaults to today and
// starts the stale clock.
func (s *Service) AddProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	product.Category = strings.TrimSpace(product.Category)
	if product.Stock < 0 {
		return domain.Product{}, ErrInvalidQuantity
	}
	if product.Cost <= 0 {
		return domain.Product{}, ErrInvalidCost
	}
	if product.Price <= 0 || product.Price < product.Cost {
		return domain.Product{}, ErrInvalidPrice
	}
	if product.SupplierID != "" {
		if _, err := s.repo.GetSupplier(ctx, product.SupplierID); err != nil {
			return domain.Product{}, notFound(err, ErrSupplierNotFound)
		}
	}
	if product.EntryDate.IsZero() {
		product.EntryDate = s.today()
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}
