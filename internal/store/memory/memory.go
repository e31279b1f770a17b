package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/store"
	"farmtech/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	staleFlags      map[string]domain.StaleFlag
	members         map[string]domain.Member
	memberByPhone   map[string]string
	sales           []*domain.Sale
	salesByID       map[string]*domain.Sale
	purchases       []*domain.PurchaseOrder
	ticketsByID     map[string]domain.ServiceTicket
	staffByID       map[string]domain.Staff
	suppliersByID   map[string]domain.Supplier
	techniciansByID map[string]domain.Technician
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		staleFlags:      make(map[string]domain.StaleFlag),
		members:         make(map[string]domain.Member),
		memberByPhone:   make(map[string]string),
		salesByID:       make(map[string]*domain.Sale),
		ticketsByID:     make(map[string]domain.ServiceTicket),
		staffByID:       make(map[string]domain.Staff),
		suppliersByID:   make(map[string]domain.Supplier),
		techniciansByID: make(map[string]domain.Technician),
	}
}

// NewSeeded returns a store with a small demo catalog and directory.
func NewSeeded() *Store {
	s := New()
	today := nowDateUTC(time.Now().UTC())

	for _, staff := range []domain.Staff{
		{ID: "STF-ADMIN", Name: "Admin Toko", Role: domain.RoleAdmin},
		{ID: "STF-KASIR", Name: "Kasir Depan", Role: domain.RoleKasir},
		{ID: "STF-OWNER", Name: "Pemilik", Role: domain.RoleOwner},
	} {
		s.staffByID[staff.ID] = staff
	}
	for _, sup := range []domain.Supplier{
		{ID: "SUP-TANI", Name: "CV Tani Makmur", Phone: "0812000001", Address: "Jl. Raya Bogor 12"},
		{ID: "SUP-MESIN", Name: "PT Mesin Agro", Phone: "0812000002", Address: "Kawasan Industri Cikarang"},
	} {
		s.suppliersByID[sup.ID] = sup
	}
	for _, tech := range []domain.Technician{
		{ID: "TEK-01", Name: "Budi", Phone: "0813000001"},
		{ID: "TEK-02", Name: "Sari", Phone: "0813000002"},
	} {
		s.techniciansByID[tech.ID] = tech
	}
	for _, p := range []domain.Product{
		{ID: "PRD-CANGKUL", Name: "Cangkul Baja", Category: "alat", Price: 85000, Cost: 60000, Stock: 25, SupplierID: "SUP-TANI", EntryDate: today.AddDate(0, 0, -30)},
		{ID: "PRD-SPRAYER", Name: "Sprayer Elektrik 16L", Category: "mesin", Price: 450000, Cost: 360000, Stock: 8, SupplierID: "SUP-MESIN", EntryDate: today.AddDate(0, 0, -60)},
		{ID: "PRD-NPK", Name: "Pupuk NPK 1kg", Category: "pupuk", Price: 18000, Cost: 13500, Stock: 120, SupplierID: "SUP-TANI", EntryDate: today.AddDate(0, 0, -10)},
		{ID: "PRD-BENIH", Name: "Benih Jagung Hibrida", Category: "benih", Price: 95000, Cost: 70000, Stock: 40, SupplierID: "SUP-TANI", EntryDate: today.AddDate(0, 0, -15)},
		{ID: "PRD-PARANG", Name: "Parang Tebas", Category: "alat", Price: 65000, Cost: 45000, Stock: 12, SupplierID: "SUP-TANI", EntryDate: today.AddDate(0, 0, -200)},
		{ID: "PRD-POMPA", Name: "Pompa Air 3 Inch", Category: "mesin", Price: 2350000, Cost: 1900000, Stock: 3, SupplierID: "SUP-MESIN", EntryDate: today.AddDate(0, 0, -150)},
	} {
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Price < 1 || product.Cost < 1 || product.Price < product.Cost || product.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if product.EntryDate.IsZero() {
		product.EntryDate = time.Now().UTC()
	}
	product.EntryDate = nowDateUTC(product.EntryDate)

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) GetStaleFlags(_ context.Context, productIDs []string) (map[string]domain.StaleFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.StaleFlag, len(productIDs))
	for _, id := range productIDs {
		if flag, ok := s.staleFlags[id]; ok {
			result[id] = flag
		}
	}
	return result, nil
}

func (s *Store) ListStaleFlags(_ context.Context) ([]domain.StaleFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flags := make([]domain.StaleFlag, 0, len(s.staleFlags))
	for _, flag := range s.staleFlags {
		flags = append(flags, flag)
	}
	slices.SortFunc(flags, func(a, b domain.StaleFlag) int {
		if c := a.ReferenceDate.Compare(b.ReferenceDate); c != 0 {
			return c
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return flags, nil
}

func (s *Store) LastSaleDates(_ context.Context) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastSaleDatesLocked(), nil
}

func (s *Store) UpsertStaleFlags(_ context.Context, flags []domain.StaleFlag) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lastSale := s.lastSaleDatesLocked()
	written := 0
	for _, flag := range flags {
		if _, exists := s.products[flag.ProductID]; !exists {
			continue
		}
		flag.ReferenceDate = nowDateUTC(flag.ReferenceDate)
		if sold, ok := lastSale[flag.ProductID]; ok && sold.After(flag.ReferenceDate) {
			continue
		}
		s.staleFlags[flag.ProductID] = flag
		written++
	}
	return written, nil
}

func (s *Store) CreateMember(_ context.Context, member domain.Member) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if member.Name == "" || member.Phone == "" || member.TxCount < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.memberByPhone[member.Phone]; exists {
		return nil, store.ErrDuplicate
	}
	if member.ID == "" {
		member.ID = xid.New("mbr")
	}
	s.members[member.ID] = member
	s.memberByPhone[member.Phone] = member.ID
	created := member
	return &created, nil
}

func (s *Store) GetMember(_ context.Context, id string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, exists := s.members[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &member, nil
}

func (s *Store) FindMemberByPhone(_ context.Context, phone string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.memberByPhone[phone]
	if !exists {
		return nil, store.ErrNotFound
	}
	member := s.members[id]
	return &member, nil
}

func (s *Store) CommitSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	demand := make(map[string]int, len(sale.Lines))
	var subtotal int64
	for _, line := range sale.Lines {
		if line.Qty < 1 || line.UnitPrice < 0 {
			return nil, store.ErrInvalidTransaction
		}
		if _, exists := s.products[line.ProductID]; !exists {
			return nil, store.ErrNotFound
		}
		demand[line.ProductID] += line.Qty
		subtotal += line.UnitPrice * int64(line.Qty)
	}
	if subtotal != sale.Subtotal || sale.Total != sale.Subtotal+sale.Tax-sale.Discount {
		return nil, store.ErrInvalidTransaction
	}
	for id, qty := range demand {
		if available := s.products[id].Stock; available < qty {
			return nil, &store.StockError{ProductID: id, Requested: qty, Available: available}
		}
	}

	var member domain.Member
	if sale.MemberID != "" {
		var exists bool
		member, exists = s.members[sale.MemberID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if member.TxCount != sale.MemberTxCountBefore {
			return nil, store.ErrConflict
		}
	}

	// Validation is done; from here on every write succeeds.
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	for id, qty := range demand {
		product := s.products[id]
		product.Stock -= qty
		s.products[id] = product
		delete(s.staleFlags, id)
	}
	if sale.MemberID != "" {
		member.TxCount++
		s.members[member.ID] = member
	}
	for i := range sale.Lines {
		sale.Lines[i].SaleID = sale.ID
	}

	saved := cloneSale(&sale)
	s.sales = append(s.sales, saved)
	s.salesByID[saved.ID] = saved
	return cloneSale(saved), nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSalesReport(_ context.Context, from time.Time, to time.Time) ([]domain.SalesReportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.SalesReportRow, 0, 32)
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		row := domain.SalesReportRow{SaleID: sale.ID, CreatedAt: sale.CreatedAt, Total: sale.Total}
		if member, ok := s.members[sale.MemberID]; ok {
			row.MemberName = member.Name
		}
		rows = append(rows, row)
	}
	slices.SortStableFunc(rows, func(a, b domain.SalesReportRow) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return rows, nil
}

func (s *Store) CommitPurchase(_ context.Context, order domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order.Lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.suppliersByID[order.SupplierID]; !exists {
		return nil, store.ErrNotFound
	}

	// Apply to a working copy so a failing line leaves the catalog untouched.
	working := make(map[string]domain.Product, len(order.Lines))
	var total int64
	for _, line := range order.Lines {
		product, ok := working[line.ProductID]
		if !ok {
			product, ok = s.products[line.ProductID]
			if !ok {
				return nil, store.ErrNotFound
			}
		}
		if line.Qty < 1 || line.UnitCost < 1 {
			return nil, store.ErrInvalidTransaction
		}
		if line.RepricedTo != nil {
			product.Price = *line.RepricedTo
		}
		if product.Price < line.UnitCost {
			return nil, store.ErrConflict
		}
		product.Stock += line.Qty
		product.Cost = line.UnitCost
		working[line.ProductID] = product
		total += int64(line.Qty) * line.UnitCost
	}
	if total != order.Total {
		return nil, store.ErrInvalidTransaction
	}

	if order.ID == "" {
		order.ID = xid.New("po")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	for id, product := range working {
		s.products[id] = product
	}
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
	}

	saved := clonePurchase(&order)
	s.purchases = append(s.purchases, saved)
	return clonePurchase(saved), nil
}

func (s *Store) PurchaseTotal(_ context.Context, from time.Time, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, po := range s.purchases {
		if po.CreatedAt.Before(from) || !po.CreatedAt.Before(to) {
			continue
		}
		total += po.Total
	}
	return total, nil
}

func (s *Store) CreateTicket(_ context.Context, ticket domain.ServiceTicket) (*domain.ServiceTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket.TechnicianID == "" || ticket.Status == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.techniciansByID[ticket.TechnicianID]; !exists {
		return nil, store.ErrNotFound
	}
	if ticket.ID == "" {
		ticket.ID = xid.New("svc")
	}
	if ticket.IntakeAt.IsZero() {
		ticket.IntakeAt = time.Now().UTC()
	}
	s.ticketsByID[ticket.ID] = cloneTicket(ticket)
	created := cloneTicket(ticket)
	return &created, nil
}

func (s *Store) GetTicket(_ context.Context, id string) (*domain.ServiceTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticket, exists := s.ticketsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneTicket(ticket)
	return &found, nil
}

func (s *Store) TransitionTicket(_ context.Context, ticket domain.ServiceTicket, from domain.TicketStatus) (*domain.ServiceTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.ticketsByID[ticket.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if current.Status != from {
		return nil, store.ErrConflict
	}
	current.Status = ticket.Status
	current.Cost = ticket.Cost
	current.CompletedOn = ticket.CompletedOn
	s.ticketsByID[current.ID] = cloneTicket(current)
	updated := cloneTicket(current)
	return &updated, nil
}

func (s *Store) ListTicketsByStatus(_ context.Context, statuses ...domain.TicketStatus) ([]domain.ServiceTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickets := make([]domain.ServiceTicket, 0, 16)
	for _, ticket := range s.ticketsByID {
		if slices.Contains(statuses, ticket.Status) {
			tickets = append(tickets, cloneTicket(ticket))
		}
	}
	slices.SortFunc(tickets, compareTicket)
	return tickets, nil
}

func (s *Store) CountTickets(_ context.Context, technicianID string, status domain.TicketStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, ticket := range s.ticketsByID {
		if ticket.TechnicianID == technicianID && ticket.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListCompletedTickets(_ context.Context, from time.Time, to time.Time) ([]domain.ServiceTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickets := make([]domain.ServiceTicket, 0, 16)
	for _, ticket := range s.ticketsByID {
		if ticket.Status == domain.TicketProses || ticket.CompletedOn == nil {
			continue
		}
		if ticket.CompletedOn.Before(from) || !ticket.CompletedOn.Before(to) {
			continue
		}
		tickets = append(tickets, cloneTicket(ticket))
	}
	slices.SortFunc(tickets, compareTicket)
	return tickets, nil
}

func (s *Store) GetStaff(_ context.Context, id string) (*domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	staff, exists := s.staffByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &staff, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if _, exists := s.suppliersByID[supplier.ID]; exists {
		return nil, store.ErrDuplicate
	}
	s.suppliersByID[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(a.ID, b.ID)
	})
	return suppliers, nil
}

func (s *Store) CreateTechnician(_ context.Context, technician domain.Technician) (*domain.Technician, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if technician.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if technician.ID == "" {
		technician.ID = xid.New("tek")
	}
	if _, exists := s.techniciansByID[technician.ID]; exists {
		return nil, store.ErrDuplicate
	}
	s.techniciansByID[technician.ID] = technician
	return &technician, nil
}

func (s *Store) GetTechnician(_ context.Context, id string) (*domain.Technician, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	technician, exists := s.techniciansByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &technician, nil
}

func (s *Store) ListTechnicians(_ context.Context) ([]domain.Technician, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	technicians := make([]domain.Technician, 0, len(s.techniciansByID))
	for _, technician := range s.techniciansByID {
		technicians = append(technicians, technician)
	}
	slices.SortFunc(technicians, func(a, b domain.Technician) int {
		return strings.Compare(a.ID, b.ID)
	})
	return technicians, nil
}

func (s *Store) DeleteTechnician(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.techniciansByID[id]; !exists {
		return store.ErrNotFound
	}
	for _, ticket := range s.ticketsByID {
		if ticket.TechnicianID == id && ticket.Status == domain.TicketProses {
			return store.ErrConflict
		}
	}
	delete(s.techniciansByID, id)
	return nil
}

func (s *Store) lastSaleDatesLocked() map[string]time.Time {
	last := make(map[string]time.Time, len(s.products))
	for _, sale := range s.sales {
		day := nowDateUTC(sale.CreatedAt)
		for _, line := range sale.Lines {
			if prev, ok := last[line.ProductID]; !ok || day.After(prev) {
				last[line.ProductID] = day
			}
		}
	}
	return last
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func compareTicket(a, b domain.ServiceTicket) int {
	if c := a.IntakeAt.Compare(b.IntakeAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Lines = slices.Clone(src.Lines)
	return &dup
}

func clonePurchase(src *domain.PurchaseOrder) *domain.PurchaseOrder {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Lines = make([]domain.PurchaseLine, len(src.Lines))
	for i, line := range src.Lines {
		if line.RepricedTo != nil {
			price := *line.RepricedTo
			line.RepricedTo = &price
		}
		dup.Lines[i] = line
	}
	return &dup
}

func cloneTicket(src domain.ServiceTicket) domain.ServiceTicket {
	if src.Cost != nil {
		cost := *src.Cost
		src.Cost = &cost
	}
	if src.CompletedOn != nil {
		done := *src.CompletedOn
		src.CompletedOn = &done
	}
	return src
}
