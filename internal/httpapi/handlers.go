package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/service"
)

// Numeric ranges are checked by the service so they surface as
// InvalidQuantity, InvalidCost or InvalidPrice (422) rather than a 400.
type cartLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int    `json:"qty"`
}

type memberRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"required,max=32"`
	Address string `json:"address" validate:"max=255"`
}

// registrationRequest registers a member inline at checkout. Phone may be
// left out when member_phone already carries it.
type registrationRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Address string `json:"address" validate:"max=255"`
}

type checkoutRequest struct {
	MemberPhone    string               `json:"member_phone" validate:"omitempty,max=32"`
	Registration   *registrationRequest `json:"registration" validate:"omitempty"`
	IdempotencyKey string               `json:"idempotency_key" validate:"omitempty,max=128"`
	Lines          []cartLineRequest    `json:"lines" validate:"required,min=1,dive"`
}

type restockLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int    `json:"qty"`
	UnitCost  *int64 `json:"unit_cost"`
	NewPrice  *int64 `json:"new_price"`
}

type restockRequest struct {
	SupplierID string               `json:"supplier_id" validate:"required"`
	Lines      []restockLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type ticketIntakeRequest struct {
	MemberID     string `json:"member_id"`
	TechnicianID string `json:"technician_id" validate:"required"`
	Equipment    string `json:"equipment" validate:"required,max=120"`
	Complaint    string `json:"complaint" validate:"max=500"`
}

type ticketAdvanceRequest struct {
	Cost *int64 `json:"cost"`
}

type reviseRequest struct {
	AsOf string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

type productRequest struct {
	ID         string `json:"id" validate:"omitempty,max=64"`
	Name       string `json:"name" validate:"required,max=120"`
	Category   string `json:"category" validate:"max=60"`
	Price      int64  `json:"price"`
	Cost       int64  `json:"cost"`
	Stock      int    `json:"stock"`
	SupplierID string `json:"supplier_id"`
}

type supplierRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"max=32"`
	Address string `json:"address" validate:"max=255"`
}

type technicianRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"max=32"`
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !a.readRequest(w, r, &req, false) {
		return
	}
	product, err := a.service.AddProduct(r.Context(), domain.Product{
		ID:         strings.TrimSpace(req.ID),
		Name:       req.Name,
		Category:   req.Category,
		Price:      req.Price,
		Cost:       req.Cost,
		Stock:      req.Stock,
		SupplierID: strings.TrimSpace(req.SupplierID),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !a.readRequest(w, r, &req, false) {
		return
	}

	checkout := domain.CheckoutRequest{
		MemberPhone:    strings.TrimSpace(req.MemberPhone),
		IdempotencyKey: req.IdempotencyKey,
		Lines:          make([]domain.CartLine, 0, len(req.Lines)),
	}
	if checkout.IdempotencyKey == "" {
		checkout.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	if req.Registration != nil {
		checkout.Registration = &domain.MemberRegistration{
			Name:    req.Registration.Name,
			Phone:   req.Registration.Phone,
			Address: req.Registration.Address,
		}
	}
	for _, line := range req.Lines {
		checkout.Lines = append(checkout.Lines, domain.CartLine{ProductID: line.ProductID, Qty: line.Qty})
	}

	sale, err := a.service.Checkout(r.Context(), checkout)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !a.readRequest(w, r, &req, false) {
		return
	}
	member, err := a.service.RegisterMember(r.Context(), domain.MemberRegistration{
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"member": member})
}

func (a *API) handleMemberByPhone(w http.ResponseWriter, r *http.Request) {
	member, err := a.service.FindMemberByPhone(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member": member})
}

func (a *API) handleRestock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if !a.readRequest(w, r, &req, false) {
		return
	}

	restock := domain.RestockRequest{
		SupplierID: strings.TrimSpace(req.SupplierID),
		Lines:      make([]domain.RestockLine, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		restock.Lines = append(restock.Lines, domain.RestockLine{
			ProductID: line.ProductID,
			Qty:       line.Qty,
			UnitCost:  line.UnitCost,
			NewPrice:  line.NewPrice,
		})
	}

	result, err := a.service.Restock(r.Context(), restock)
	if err != nil {
		if errors.Is(err, service.ErrEmptyOrder) && len(result.Dropped) > 0 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":   err.Error(),
				"dropped": result.Dropped,
			})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleIntakeTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketIntakeRequest
	if !a.readRequest(w, r, &req, false) {
		return
	}
	ticket, err := a.service.IntakeTicket(r.Context(), domain.TicketIntakeRequest{
		MemberID:     strings.TrimSpace(req.MemberID),
		TechnicianID: strings.TrimSpace(req.TechnicianID),
		Equipment:    req.Equipment,
		Complaint:    req.Complaint,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ticket": ticket})
}

func (a *API) handleAdvanceTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketAdvanceRequest
	if !a.readRequest(w, r, &req, true) {
		return
	}
	ticket, err := a.service.AdvanceTicket(r.Context(), chi.URLParam(r, "id"), req.Cost)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket": ticket})
}

func (a *API) handleActiveTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := a.service.ListActiveTickets(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (a *API) handleReviseStale(w http.ResponseWriter, r *http.Request) {
	var req reviseRequest
	if !a.readRequest(w, r, &req, true) {
		return
	}
	asOf := time.Now().UTC()
	if req.AsOf != "" {
		parsed, err := time.Parse(time.DateOnly, req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		asOf = parsed
	}

	n, err := a.service.ReviseStaleFlags(r.Context(), asOf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"as_of":   asOf.Format(time.DateOnly),
		"flagged": n,
	})
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	year, month, err := parsePeriod(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	report, err := a.service.SalesReport(r.Context(), year, month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleServiceReport(w http.ResponseWriter, r *http.Request) {
	year, month, err := parsePeriod(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	report, err := a.service.ServiceReport(r.Context(), year, month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleProfitReport(w http.ResponseWriter, r *http.Request) {
	year, month, err := parsePeriod(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	report, err := a.service.ProfitAnalysis(r.Context(), year, month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleStockReport(w http.ResponseWriter, r *http.Request) {
	rows, err := a.service.StockReport(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleStaleReport(w http.ResponseWriter, r *http.Request) {
	rows, err := a.service.StaleReport(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.directory.ListSuppliers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if !a.readRequest(w, r, &req, false) {
		return
	}
	supplier, err := a.directory.AddSupplier(r.Context(), domain.Supplier{Name: req.Name, Phone: req.Phone, Address: req.Address})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
}

func (a *API) handleListTechnicians(w http.ResponseWriter, r *http.Request) {
	technicians, err := a.directory.ListTechnicians(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"technicians": technicians})
}

func (a *API) handleCreateTechnician(w http.ResponseWriter, r *http.Request) {
	var req technicianRequest
	if !a.readRequest(w, r, &req, false) {
		return
	}
	technician, err := a.directory.AddTechnician(r.Context(), domain.Technician{Name: req.Name, Phone: req.Phone})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"technician": technician})
}

func (a *API) handleDeleteTechnician(w http.ResponseWriter, r *http.Request) {
	if err := a.directory.DeleteTechnician(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
