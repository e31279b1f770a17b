package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/store"
	"farmtech/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, category, price, cost, stock, COALESCE(supplier_id, ''), entry_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Cost, &p.Stock, &p.SupplierID, &p.EntryDate); err != nil {
		return p, err
	}
	p.EntryDate = nowDateUTC(p.EntryDate)
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price < 1 || product.Cost < 1 || product.Price < product.Cost || product.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.EntryDate.IsZero() {
		product.EntryDate = time.Now().UTC()
	}
	product.EntryDate = nowDateUTC(product.EntryDate)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price, cost, stock, supplier_id, entry_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.Name, product.Category, product.Price, product.Cost, product.Stock,
		nullIfEmpty(product.SupplierID), product.EntryDate)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *Store) GetStaleFlags(ctx context.Context, productIDs []string) (map[string]domain.StaleFlag, error) {
	result := make(map[string]domain.StaleFlag, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, reference_date, discount_percent
		FROM stale_flags
		WHERE product_id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var flag domain.StaleFlag
		if err := rows.Scan(&flag.ProductID, &flag.ReferenceDate, &flag.DiscountPercent); err != nil {
			return nil, err
		}
		flag.ReferenceDate = nowDateUTC(flag.ReferenceDate)
		result[flag.ProductID] = flag
	}
	return result, rows.Err()
}

func (s *Store) ListStaleFlags(ctx context.Context) ([]domain.StaleFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, reference_date, discount_percent
		FROM stale_flags
		ORDER BY reference_date, product_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flags := make([]domain.StaleFlag, 0, 32)
	for rows.Next() {
		var flag domain.StaleFlag
		if err := rows.Scan(&flag.ProductID, &flag.ReferenceDate, &flag.DiscountPercent); err != nil {
			return nil, err
		}
		flag.ReferenceDate = nowDateUTC(flag.ReferenceDate)
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

func (s *Store) LastSaleDates(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sl.product_id, MAX(s.created_at)
		FROM sale_lines sl
		JOIN sales s ON s.id = sl.sale_id
		GROUP BY sl.product_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]time.Time, 64)
	for rows.Next() {
		var productID string
		var last time.Time
		if err := rows.Scan(&productID, &last); err != nil {
			return nil, err
		}
		result[productID] = nowDateUTC(last)
	}
	return result, rows.Err()
}

func (s *Store) UpsertStaleFlags(ctx context.Context, flags []domain.StaleFlag) (int, error) {
	if len(flags) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	written := 0
	for _, flag := range flags {
		// A sale committed after the candidate was computed wins over the flag.
		res, err := tx.ExecContext(ctx, `
			INSERT INTO stale_flags (product_id, reference_date, discount_percent)
			SELECT p.id, $2::date, $3::integer
			FROM products p
			WHERE p.id = $1
			  AND NOT EXISTS (
				SELECT 1
				FROM sale_lines sl
				JOIN sales s ON s.id = sl.sale_id
				WHERE sl.product_id = $1 AND (s.created_at AT TIME ZONE 'UTC')::date > $2::date
			  )
			ON CONFLICT (product_id)
			DO UPDATE SET reference_date = EXCLUDED.reference_date, discount_percent = EXCLUDED.discount_percent
		`, flag.ProductID, nowDateUTC(flag.ReferenceDate), flag.DiscountPercent)
		if err != nil {
			return 0, mapTxError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		written += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, mapTxError(err)
	}
	return written, nil
}

func (s *Store) CreateMember(ctx context.Context, member domain.Member) (*domain.Member, error) {
	if member.Name == "" || member.Phone == "" || member.TxCount < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if member.ID == "" {
		member.ID = xid.New("mbr")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, phone, address, tx_count)
		VALUES ($1,$2,$3,$4,$5)
	`, member.ID, member.Name, member.Phone, member.Address, member.TxCount)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := member
	return &created, nil
}

func (s *Store) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	return s.findMember(ctx, "id", id)
}

func (s *Store) FindMemberByPhone(ctx context.Context, phone string) (*domain.Member, error) {
	return s.findMember(ctx, "phone", phone)
}

func (s *Store) findMember(ctx context.Context, column string, value string) (*domain.Member, error) {
	var member domain.Member
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, name, phone, address, tx_count
		FROM members
		WHERE %s = $1
	`, column), value).Scan(&member.ID, &member.Name, &member.Phone, &member.Address, &member.TxCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &member, nil
}

func (s *Store) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	demand := make(map[string]int, len(sale.Lines))
	var subtotal int64
	for _, line := range sale.Lines {
		if line.Qty < 1 || line.UnitPrice < 0 {
			return nil, store.ErrInvalidTransaction
		}
		demand[line.ProductID] += line.Qty
		subtotal += line.UnitPrice * int64(line.Qty)
	}
	if subtotal != sale.Subtotal || sale.Total != sale.Subtotal+sale.Tax-sale.Discount {
		return nil, store.ErrInvalidTransaction
	}
	ids := sortedKeys(demand)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stock, err := lockStock(ctx, tx, ids)
	if err != nil {
		return nil, mapTxError(err)
	}
	for _, id := range ids {
		available, exists := stock[id]
		if !exists {
			return nil, store.ErrNotFound
		}
		if available < demand[id] {
			return nil, &store.StockError{ProductID: id, Requested: demand[id], Available: available}
		}
	}

	if sale.MemberID != "" {
		var txCount int
		err := tx.QueryRowContext(ctx, `SELECT tx_count FROM members WHERE id = $1 FOR UPDATE`, sale.MemberID).Scan(&txCount)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, mapTxError(err)
		}
		if txCount != sale.MemberTxCountBefore {
			return nil, store.ErrConflict
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, cashier_id, member_id, subtotal, tax, discount, total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, sale.CashierID, nullIfEmpty(sale.MemberID), sale.Subtotal, sale.Tax, sale.Discount, sale.Total, sale.CreatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}

	for i := range sale.Lines {
		sale.Lines[i].SaleID = sale.ID
		line := sale.Lines[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, qty, unit_price, list_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, i+1, line.ProductID, line.Qty, line.UnitPrice, line.ListPrice)
		if err != nil {
			return nil, mapTxError(err)
		}
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock - $1 WHERE id = $2`, demand[id], id); err != nil {
			return nil, mapTxError(err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stale_flags WHERE product_id = ANY($1)`, ids); err != nil {
		return nil, mapTxError(err)
	}
	if sale.MemberID != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE members SET tx_count = tx_count + 1 WHERE id = $1`, sale.MemberID); err != nil {
			return nil, mapTxError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	var memberID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cashier_id, member_id, subtotal, tax, discount, total, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.CashierID, &memberID, &sale.Subtotal, &sale.Tax, &sale.Discount, &sale.Total, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.MemberID = memberID.String
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, qty, unit_price, list_price
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		line := domain.SaleLine{SaleID: sale.ID}
		if err := rows.Scan(&line.ProductID, &line.Qty, &line.UnitPrice, &line.ListPrice); err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	return &sale, rows.Err()
}

func (s *Store) ListSalesReport(ctx context.Context, from time.Time, to time.Time) ([]domain.SalesReportRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.created_at, s.total, COALESCE(m.name, '')
		FROM sales s
		LEFT JOIN members m ON m.id = s.member_id
		WHERE s.created_at >= $1 AND s.created_at < $2
		ORDER BY s.created_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := make([]domain.SalesReportRow, 0, 32)
	for rows.Next() {
		var row domain.SalesReportRow
		if err := rows.Scan(&row.SaleID, &row.CreatedAt, &row.Total, &row.MemberName); err != nil {
			return nil, err
		}
		row.CreatedAt = row.CreatedAt.UTC()
		report = append(report, row)
	}
	return report, rows.Err()
}

func (s *Store) CommitPurchase(ctx context.Context, order domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if len(order.Lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	idSet := make(map[string]int, len(order.Lines))
	var total int64
	for _, line := range order.Lines {
		if line.Qty < 1 || line.UnitCost < 1 {
			return nil, store.ErrInvalidTransaction
		}
		idSet[line.ProductID]++
		total += int64(line.Qty) * line.UnitCost
	}
	if total != order.Total {
		return nil, store.ErrInvalidTransaction
	}
	ids := sortedKeys(idSet)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var supplierExists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)`, order.SupplierID).Scan(&supplierExists); err != nil {
		return nil, mapTxError(err)
	}
	if !supplierExists {
		return nil, store.ErrNotFound
	}

	rows, err := tx.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, mapTxError(err)
	}
	working := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		working[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, mapTxError(err)
	}
	_ = rows.Close()

	for _, line := range order.Lines {
		product, exists := working[line.ProductID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if line.RepricedTo != nil {
			product.Price = *line.RepricedTo
		}
		// Someone repriced the product below the new cost since the order was planned.
		if product.Price < line.UnitCost {
			return nil, store.ErrConflict
		}
		product.Stock += line.Qty
		product.Cost = line.UnitCost
		working[line.ProductID] = product
	}

	if order.ID == "" {
		order.ID = xid.New("po")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier_id, total, created_at)
		VALUES ($1,$2,$3,$4)
	`, order.ID, order.SupplierID, order.Total, order.CreatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
		line := order.Lines[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_lines (order_id, line_no, product_id, qty, unit_cost, repriced_to)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, i+1, line.ProductID, line.Qty, line.UnitCost, nullInt64(line.RepricedTo))
		if err != nil {
			return nil, mapTxError(err)
		}
	}
	for _, id := range ids {
		p := working[id]
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = $2, cost = $3, price = $4 WHERE id = $1
		`, p.ID, p.Stock, p.Cost, p.Price); err != nil {
			return nil, mapTxError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return &order, nil
}

func (s *Store) PurchaseTotal(ctx context.Context, from time.Time, to time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM purchase_orders
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&total)
	return total, err
}

const ticketColumns = `id, COALESCE(member_id, ''), cashier_id, technician_id, equipment, complaint, cost, status, intake_at, completed_on`

func scanTicket(row rowScanner) (domain.ServiceTicket, error) {
	var t domain.ServiceTicket
	var cost sql.NullInt64
	var completed sql.NullTime
	var status string
	if err := row.Scan(&t.ID, &t.MemberID, &t.CashierID, &t.TechnicianID, &t.Equipment, &t.Complaint,
		&cost, &status, &t.IntakeAt, &completed); err != nil {
		return t, err
	}
	t.Status = domain.TicketStatus(status)
	t.IntakeAt = t.IntakeAt.UTC()
	if cost.Valid {
		c := cost.Int64
		t.Cost = &c
	}
	if completed.Valid {
		d := nowDateUTC(completed.Time)
		t.CompletedOn = &d
	}
	return t, nil
}

func (s *Store) CreateTicket(ctx context.Context, ticket domain.ServiceTicket) (*domain.ServiceTicket, error) {
	if ticket.TechnicianID == "" || ticket.Status == "" {
		return nil, store.ErrInvalidTransaction
	}
	if ticket.ID == "" {
		ticket.ID = xid.New("svc")
	}
	if ticket.IntakeAt.IsZero() {
		ticket.IntakeAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO service_tickets (id, member_id, cashier_id, technician_id, equipment, complaint, cost, status, intake_at, completed_on)
		SELECT $1::text, $2::text, $3::text, t.id, $5::text, $6::text, $7::bigint, $8::text, $9::timestamptz, $10::date
		FROM technicians t
		WHERE t.id = $4
	`, ticket.ID, nullIfEmpty(ticket.MemberID), ticket.CashierID, ticket.TechnicianID, ticket.Equipment,
		ticket.Complaint, nullInt64(ticket.Cost), string(ticket.Status), ticket.IntakeAt, nullDate(ticket.CompletedOn))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	created := ticket
	return &created, nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*domain.ServiceTicket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM service_tickets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) TransitionTicket(ctx context.Context, ticket domain.ServiceTicket, from domain.TicketStatus) (*domain.ServiceTicket, error) {
	updated, err := scanTicket(s.db.QueryRowContext(ctx, `
		UPDATE service_tickets
		SET status = $2, cost = $3, completed_on = $4
		WHERE id = $1 AND status = $5
		RETURNING `+ticketColumns,
		ticket.ID, string(ticket.Status), nullInt64(ticket.Cost), nullDate(ticket.CompletedOn), string(from)))
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapTxError(err)
	}

	if _, err := s.GetTicket(ctx, ticket.ID); err != nil {
		return nil, err
	}
	return nil, store.ErrConflict
}

func (s *Store) ListTicketsByStatus(ctx context.Context, statuses ...domain.TicketStatus) ([]domain.ServiceTicket, error) {
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	return s.queryTickets(ctx, `
		SELECT `+ticketColumns+`
		FROM service_tickets
		WHERE status = ANY($1)
		ORDER BY intake_at, id
	`, values)
}

func (s *Store) CountTickets(ctx context.Context, technicianID string, status domain.TicketStatus) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM service_tickets
		WHERE technician_id = $1 AND status = $2
	`, technicianID, string(status)).Scan(&count)
	return count, err
}

func (s *Store) ListCompletedTickets(ctx context.Context, from time.Time, to time.Time) ([]domain.ServiceTicket, error) {
	return s.queryTickets(ctx, `
		SELECT `+ticketColumns+`
		FROM service_tickets
		WHERE status <> 'Proses' AND completed_on >= $1::date AND completed_on < $2::date
		ORDER BY intake_at, id
	`, from, to)
}

func (s *Store) queryTickets(ctx context.Context, query string, args ...any) ([]domain.ServiceTicket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]domain.ServiceTicket, 0, 16)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *Store) GetStaff(ctx context.Context, id string) (*domain.Staff, error) {
	var staff domain.Staff
	err := s.db.QueryRowContext(ctx, `SELECT id, name, role FROM staff WHERE id = $1`, id).Scan(&staff.ID, &staff.Name, &staff.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &staff, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, address)
		VALUES ($1,$2,$3,$4)
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.Address)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, address FROM suppliers WHERE id = $1
	`, id).Scan(&supplier.ID, &supplier.Name, &supplier.Phone, &supplier.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, phone, address FROM suppliers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var supplier domain.Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.Phone, &supplier.Address); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, supplier)
	}
	return suppliers, rows.Err()
}

func (s *Store) CreateTechnician(ctx context.Context, technician domain.Technician) (*domain.Technician, error) {
	if technician.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if technician.ID == "" {
		technician.ID = xid.New("tek")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO technicians (id, name, phone) VALUES ($1,$2,$3)
	`, technician.ID, technician.Name, technician.Phone)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := technician
	return &created, nil
}

func (s *Store) GetTechnician(ctx context.Context, id string) (*domain.Technician, error) {
	var technician domain.Technician
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone FROM technicians WHERE id = $1
	`, id).Scan(&technician.ID, &technician.Name, &technician.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &technician, nil
}

func (s *Store) ListTechnicians(ctx context.Context) ([]domain.Technician, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, phone FROM technicians ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	technicians := make([]domain.Technician, 0, 16)
	for rows.Next() {
		var technician domain.Technician
		if err := rows.Scan(&technician.ID, &technician.Name, &technician.Phone); err != nil {
			return nil, err
		}
		technicians = append(technicians, technician)
	}
	return technicians, rows.Err()
}

func (s *Store) DeleteTechnician(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM technicians WHERE id = $1 FOR UPDATE`, id).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return mapTxError(err)
	}

	var open int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM service_tickets WHERE technician_id = $1 AND status = 'Proses'
	`, id).Scan(&open); err != nil {
		return mapTxError(err)
	}
	if open > 0 {
		return store.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM technicians WHERE id = $1`, id); err != nil {
		return mapTxError(err)
	}
	return mapTxError(tx.Commit())
}

func lockStock(ctx context.Context, tx *sql.Tx, ids []string) (map[string]int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stock := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		stock[id] = qty
	}
	return stock, rows.Err()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mapTxError turns serialization and deadlock aborts into store.ErrConflict.
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return nowDateUTC(*val)
}
