package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/identity"
	"farmtech/backend/internal/service"
	"farmtech/backend/internal/store"
)

type API struct {
	service       *service.Service
	directory     *identity.Directory
	auth          *AuthManager
	allowedOrigin string
	requests      *requestValidator
}

func New(svc *service.Service, directory *identity.Directory, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		directory:     directory,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		requests:      newRequestValidator(),
	}
}

var (
	counterRoles = []string{domain.RoleKasir, domain.RoleAdmin}
	adminRoles   = []string{domain.RoleAdmin}
	reportRoles  = []string{domain.RoleOwner, domain.RoleAdmin}
)

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(a.withMiddleware)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(a.requireAuth()).Get("/me", a.handleMe)

		r.With(a.requireAuth(domain.RoleKasir, domain.RoleAdmin, domain.RoleOwner)).Get("/products", a.handleListProducts)
		r.With(a.requireAuth(adminRoles...)).Post("/products", a.handleCreateProduct)

		r.With(a.requireAuth(counterRoles...)).Post("/checkout", a.handleCheckout)
		r.With(a.requireAuth(counterRoles...)).Post("/members", a.handleRegisterMember)
		r.With(a.requireAuth(counterRoles...)).Get("/members/by-phone/{phone}", a.handleMemberByPhone)

		r.With(a.requireAuth(adminRoles...)).Post("/restocks", a.handleRestock)

		r.With(a.requireAuth(counterRoles...)).Post("/tickets", a.handleIntakeTicket)
		r.With(a.requireAuth(counterRoles...)).Post("/tickets/{id}/advance", a.handleAdvanceTicket)
		r.With(a.requireAuth(counterRoles...)).Get("/tickets/active", a.handleActiveTickets)

		r.With(a.requireAuth(domain.RoleAdmin, domain.RoleOwner)).Post("/stale-flags/revise", a.handleReviseStale)

		r.Route("/reports", func(r chi.Router) {
			r.Use(a.requireAuth(reportRoles...))
			r.Get("/sales", a.handleSalesReport)
			r.Get("/services", a.handleServiceReport)
			r.Get("/profit", a.handleProfitReport)
			r.Get("/stock", a.handleStockReport)
			r.Get("/stale", a.handleStaleReport)
		})

		r.With(a.requireAuth(adminRoles...)).Get("/suppliers", a.handleListSuppliers)
		r.With(a.requireAuth(adminRoles...)).Post("/suppliers", a.handleCreateSupplier)
		r.With(a.requireAuth(counterRoles...)).Get("/technicians", a.handleListTechnicians)
		r.With(a.requireAuth(adminRoles...)).Post("/technicians", a.handleCreateTechnician)
		r.With(a.requireAuth(adminRoles...)).Delete("/technicians/{id}", a.handleDeleteTechnician)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})
	return r
}

// requireAuth checks the bearer token and, when roles are given, that the
// caller holds one of them. The actor is attached to the request context.
func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, errInvalidToken) || errors.Is(err, errUnknownStaff) {
					writeError(w, http.StatusUnauthorized, err)
					return
				}
				writeError(w, http.StatusInternalServerError, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %s", middleware.GetReqID(r.Context()), r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	staff, err := a.directory.Staff(r.Context(), actor.StaffID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": staff})
}

// statusFor maps domain errors onto HTTP status codes. Anything unknown is a
// server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, service.ErrTerminalState):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidCost),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidMember),
		errors.Is(err, service.ErrInvalidPeriod),
		errors.Is(err, service.ErrEmptyOrder),
		errors.Is(err, identity.ErrInvalidRecord),
		errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	var stockErr *service.StockError
	if errors.As(err, &stockErr) {
		writeJSON(w, status, map[string]any{
			"error":      err.Error(),
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
		return
	}
	writeError(w, status, err)
}

// decodeJSON reads the body into dest. An empty body leaves dest untouched
// when allowEmpty is set.
func decodeJSON(r *http.Request, dest any, allowEmpty bool) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// readRequest decodes and validates a request body and writes the 400
// response itself when either step fails.
func (a *API) readRequest(w http.ResponseWriter, r *http.Request, dest any, allowEmpty bool) bool {
	if err := decodeJSON(r, dest, allowEmpty); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if fields := a.requests.Validate(dest); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return false
	}
	return true
}

// parsePeriod reads year and month query parameters, defaulting to the
// current UTC month.
func parsePeriod(r *http.Request) (int, int, error) {
	now := time.Now().UTC()
	year, month := now.Year(), int(now.Month())
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, service.ErrInvalidPeriod
		}
		year = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, service.ErrInvalidPeriod
		}
		month = parsed
	}
	return year, month, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the detail goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
