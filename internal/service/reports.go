package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/pricing"
)

const LowStockThreshold = 5

// monthRange returns [first day of month, first day of next month) in UTC.
func monthRange(year int, month int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 || year < 2000 || year > 9999 {
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

func (s *Service) SalesReport(ctx context.Context, year int, month int) (domain.SalesReport, error) {
	from, to, err := monthRange(year, month)
	if err != nil {
		return domain.SalesReport{}, err
	}
	rows, err := s.repo.ListSalesReport(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{Year: year, Month: month, Rows: rows}
	for _, row := range rows {
		report.Revenue += row.Total
	}
	return report, nil
}

// ServiceReport lists every current technician with the count and revenue of
// tickets completed in the month. Technicians without work get a zero row.
func (s *Service) ServiceReport(ctx context.Context, year int, month int) (domain.ServiceReport, error) {
	from, to, err := monthRange(year, month)
	if err != nil {
		return domain.ServiceReport{}, err
	}
	technicians, err := s.repo.ListTechnicians(ctx)
	if err != nil {
		return domain.ServiceReport{}, err
	}
	tickets, err := s.repo.ListCompletedTickets(ctx, from, to)
	if err != nil {
		return domain.ServiceReport{}, err
	}

	byTech := make(map[string]*domain.ServiceReportRow, len(technicians))
	report := domain.ServiceReport{Year: year, Month: month, Rows: make([]domain.ServiceReportRow, 0, len(technicians))}
	for _, tech := range technicians {
		report.Rows = append(report.Rows, domain.ServiceReportRow{TechnicianID: tech.ID, TechnicianName: tech.Name})
	}
	for i := range report.Rows {
		byTech[report.Rows[i].TechnicianID] = &report.Rows[i]
	}

	for _, ticket := range tickets {
		row, ok := byTech[ticket.TechnicianID]
		if !ok {
			continue
		}
		row.Tickets++
		if ticket.Cost != nil {
			row.Revenue += *ticket.Cost
			report.Revenue += *ticket.Cost
		}
	}
	return report, nil
}

func (s *Service) ProfitAnalysis(ctx context.Context, year int, month int) (domain.ProfitAnalysis, error) {
	from, to, err := monthRange(year, month)
	if err != nil {
		return domain.ProfitAnalysis{}, err
	}
	sales, err := s.SalesReport(ctx, year, month)
	if err != nil {
		return domain.ProfitAnalysis{}, err
	}
	purchases, err := s.repo.PurchaseTotal(ctx, from, to)
	if err != nil {
		return domain.ProfitAnalysis{}, err
	}
	return domain.ProfitAnalysis{
		Year:        year,
		Month:       month,
		SalesTotal:  sales.Revenue,
		PurchaseSum: purchases,
		GrossProfit: sales.Revenue - purchases,
	}, nil
}

// StockReport lists products from the lowest stock up.
func (s *Service) StockReport(ctx context.Context) ([]domain.StockReportRow, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.StockReportRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, domain.StockReportRow{
			ProductID: p.ID,
			Name:      p.Name,
			Category:  p.Category,
			Price:     p.Price,
			Stock:     p.Stock,
			LowStock:  p.Stock <= LowStockThreshold,
		})
	}
	slices.SortFunc(rows, func(a, b domain.StockReportRow) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return rows, nil
}

// StaleReport lists flagged products, oldest reference date first.
func (s *Service) StaleReport(ctx context.Context) ([]domain.StaleReportRow, error) {
	flags, err := s.repo.ListStaleFlags(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(flags))
	for _, flag := range flags {
		ids = append(ids, flag.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.StaleReportRow, 0, len(flags))
	for _, flag := range flags {
		p, ok := products[flag.ProductID]
		if !ok {
			continue
		}
		rows = append(rows, domain.StaleReportRow{
			ProductID:       p.ID,
			Name:            p.Name,
			ReferenceDate:   flag.ReferenceDate,
			DiscountPercent: flag.DiscountPercent,
			ListPrice:       p.Price,
			DiscountedPrice: pricing.DiscountedPrice(p.Price, flag.DiscountPercent),
		})
	}
	return rows, nil
}
