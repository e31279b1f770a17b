package domain

import "time"

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Price      int64     `json:"price"`
	Cost       int64     `json:"cost"`
	Stock      int       `json:"stock"`
	SupplierID string    `json:"supplier_id"`
	EntryDate  time.Time `json:"entry_date"`
}

type Member struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	TxCount int    `json:"tx_count"`
}

type MemberRegistration struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// StaleFlag marks a product that has not sold for a long time and is
// eligible for an automatic markdown.
type StaleFlag struct {
	ProductID       string    `json:"product_id"`
	ReferenceDate   time.Time `json:"reference_date"`
	DiscountPercent int       `json:"discount_percent"`
}

type CartLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CheckoutRequest struct {
	CashierID      string              `json:"cashier_id"`
	MemberPhone    string              `json:"member_phone,omitempty"`
	Registration   *MemberRegistration `json:"registration,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	Lines          []CartLine          `json:"lines"`
}

type SaleLine struct {
	SaleID    string `json:"sale_id"`
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice int64  `json:"unit_price"`
	ListPrice int64  `json:"list_price"`
}

type Sale struct {
	ID        string     `json:"id"`
	CashierID string     `json:"cashier_id"`
	MemberID  string     `json:"member_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Subtotal  int64      `json:"subtotal"`
	Tax       int64      `json:"tax"`
	Discount  int64      `json:"discount"`
	Total     int64      `json:"total"`
	Lines     []SaleLine `json:"lines"`

	// MemberTxCountBefore is the member's counter read at pricing time.
	// The commit verifies it is unchanged before incrementing.
	MemberTxCountBefore int `json:"-"`
}

type RestockLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitCost  *int64 `json:"unit_cost,omitempty"`
	NewPrice  *int64 `json:"new_price,omitempty"`
}

type RestockRequest struct {
	SupplierID string        `json:"supplier_id"`
	Lines      []RestockLine `json:"lines"`
}

type PurchaseLine struct {
	OrderID    string `json:"order_id"`
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	UnitCost   int64  `json:"unit_cost"`
	RepricedTo *int64 `json:"repriced_to,omitempty"`
}

type PurchaseOrder struct {
	ID         string         `json:"id"`
	SupplierID string         `json:"supplier_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Total      int64          `json:"total"`
	Lines      []PurchaseLine `json:"lines"`
}

type DroppedRestockLine struct {
	ProductID    string `json:"product_id"`
	UnitCost     int64  `json:"unit_cost"`
	CurrentPrice int64  `json:"current_price"`
	Reason       string `json:"reason"`
}

type RestockResult struct {
	Order   PurchaseOrder        `json:"order"`
	Dropped []DroppedRestockLine `json:"dropped,omitempty"`
}

type TicketStatus string

const (
	TicketProses  TicketStatus = "Proses"
	TicketSelesai TicketStatus = "Selesai"
	TicketDiambil TicketStatus = "Diambil"
)

type ServiceTicket struct {
	ID           string       `json:"id"`
	MemberID     string       `json:"member_id,omitempty"`
	CashierID    string       `json:"cashier_id"`
	TechnicianID string       `json:"technician_id"`
	Equipment    string       `json:"equipment"`
	Complaint    string       `json:"complaint"`
	Cost         *int64       `json:"cost,omitempty"`
	Status       TicketStatus `json:"status"`
	IntakeAt     time.Time    `json:"intake_at"`
	CompletedOn  *time.Time   `json:"completed_on,omitempty"`
}

type TicketIntakeRequest struct {
	MemberID     string `json:"member_id,omitempty"`
	CashierID    string `json:"cashier_id"`
	TechnicianID string `json:"technician_id"`
	Equipment    string `json:"equipment"`
	Complaint    string `json:"complaint"`
}

type Supplier struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type Technician struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Staff struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

const (
	RoleAdmin = "admin"
	RoleKasir = "kasir"
	RoleOwner = "owner"
)

// Actor is the authenticated staff member behind a request.
type Actor struct {
	StaffID string
	Role    string
}

type SalesReportRow struct {
	SaleID     string    `json:"sale_id"`
	CreatedAt  time.Time `json:"created_at"`
	Total      int64     `json:"total"`
	MemberName string    `json:"member_name,omitempty"`
}

type SalesReport struct {
	Year    int              `json:"year"`
	Month   int              `json:"month"`
	Rows    []SalesReportRow `json:"rows"`
	Revenue int64            `json:"revenue"`
}

type ServiceReportRow struct {
	TechnicianID   string `json:"technician_id"`
	TechnicianName string `json:"technician_name"`
	Tickets        int    `json:"tickets"`
	Revenue        int64  `json:"revenue"`
}

type ServiceReport struct {
	Year    int                `json:"year"`
	Month   int                `json:"month"`
	Rows    []ServiceReportRow `json:"rows"`
	Revenue int64              `json:"revenue"`
}

type ProfitAnalysis struct {
	Year        int   `json:"year"`
	Month       int   `json:"month"`
	SalesTotal  int64 `json:"sales_total"`
	PurchaseSum int64 `json:"purchase_total"`
	GrossProfit int64 `json:"gross_profit"`
}

type StockReportRow struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Price     int64  `json:"price"`
	Stock     int    `json:"stock"`
	LowStock  bool   `json:"low_stock"`
}

type StaleReportRow struct {
	ProductID       string    `json:"product_id"`
	Name            string    `json:"name"`
	ReferenceDate   time.Time `json:"reference_date"`
	DiscountPercent int       `json:"discount_percent"`
	ListPrice       int64     `json:"list_price"`
	DiscountedPrice int64     `json:"discounted_price"`
}
