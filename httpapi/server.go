package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"playtime/auth"
	"playtime/cart"
	"playtime/catalog"
	"playtime/payments"
)

// Server wires the HTTP surface over the domain services.
type Server struct {
	accounts *auth.Service
	catalog  *catalog.Service
	carts    *cart.Service
	payments *payments.Service
	guard    *Guard
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer builds the HTTP server from its collaborators.
func NewServer(accounts *auth.Service, tokens *auth.TokenService, catalogSvc *catalog.Service, carts *cart.Service, paymentsSvc *payments.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		accounts: accounts,
		catalog:  catalogSvc,
		carts:    carts,
		payments: paymentsSvc,
		guard:    NewGuard(tokens, accounts),
		validate: validator.New(),
		logger:   logger,
	}
}

// policies is the authorization table for every protected operation. It is
// the single place to audit who may call what; handlers carry no inline
// role or ownership checks.
var policies = map[string]Policy{
	"users.is_admin":      {OwnerParam: "email"},
	"users.is_instructor": {OwnerParam: "email"},
	"users.set_role":      {Role: auth.RoleAdmin},
	"carts.list":          {OwnerParam: "email"},
	"carts.add":           {},
	"carts.remove":        {},
	"payments.intent":     {},
	"payments.settle":     {},
	"payments.history":    {OwnerParam: "email"},
	"payments.enrolled":   {OwnerParam: "email"},
	"classes.decide":      {Role: auth.RoleAdmin},
}

// Router assembles all routes behind their declared policies.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(s.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/users", s.handleRegister)
	r.Post("/jwt", s.handleLogin)
	r.Get("/classes", s.handleListClasses)
	r.Get("/classes/{id}", s.handleGetClass)

	guard := func(op string) func(http.Handler) http.Handler {
		return s.guard.Require(policies[op])
	}

	r.With(guard("users.is_admin")).Get("/users/admin/{email}", s.handleIsAdmin)
	r.With(guard("users.is_instructor")).Get("/users/instructor/{email}", s.handleIsInstructor)
	r.With(guard("users.set_role")).Patch("/users/{email}/role", s.handleSetRole)

	r.With(guard("carts.list")).Get("/carts", s.handleListCart)
	r.With(guard("carts.add")).Post("/carts", s.handleAddToCart)
	r.With(guard("carts.remove")).Delete("/carts/{id}", s.handleRemoveFromCart)

	r.With(guard("payments.intent")).Post("/create-payment-intent", s.handleCreateIntent)
	r.With(guard("payments.settle")).Post("/payments", s.handleSettle)
	r.With(guard("payments.history")).Get("/payments", s.handleHistory)
	r.With(guard("payments.enrolled")).Get("/enrolled", s.handleEnrolled)

	r.With(guard("classes.decide")).Patch("/classes/{id}/status", s.handleDecideClass)

	return r
}

// Users

type userResponse struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	PhotoURL *string `json:"photo_url,omitempty"`
	Role     string  `json:"role"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		PhotoURL: u.PhotoURL,
		Role:     string(u.Role),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid registration payload")
		return
	}

	user, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			// Soft conflict: re-registering is a no-op, not a failure.
			writeJSON(w, http.StatusOK, map[string]string{"message": "user already exists"})
			return
		}
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid login payload")
		return
	}

	result, err := s.accounts.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "unauthorized access")
			return
		}
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": result.Token})
}

func (s *Server) handleIsAdmin(w http.ResponseWriter, r *http.Request) {
	identity, err := requireIdentity(w, r)
	if err != nil {
		return
	}

	isAdmin, err := s.accounts.IsAdmin(r.Context(), identity.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"admin": isAdmin})
}

func (s *Server) handleIsInstructor(w http.ResponseWriter, r *http.Request) {
	identity, err := requireIdentity(w, r)
	if err != nil {
		return
	}

	isInstructor, err := s.accounts.IsInstructor(r.Context(), identity.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"instructor": isInstructor})
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=instructor admin"`
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid role payload")
		return
	}

	user, err := s.accounts.SetRole(r.Context(), chi.URLParam(r, "email"), auth.Role(req.Role))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Classes

type offeringResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Instructor     string          `json:"instructor"`
	Price          decimal.Decimal `json:"price"`
	Status         string          `json:"status"`
	Enrolled       int             `json:"enrolled"`
	AvailableSeats int             `json:"available_seats"`
}

func toOfferingResponse(o catalog.Offering) offeringResponse {
	return offeringResponse{
		ID:             o.ID,
		Name:           o.Name,
		Instructor:     o.InstructorEmail,
		Price:          o.Price,
		Status:         string(o.Status),
		Enrolled:       o.Enrolled,
		AvailableSeats: o.AvailableSeats,
	}
}

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	offerings, err := s.catalog.ListApproved(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	items := make([]offeringResponse, 0, len(offerings))
	for _, o := range offerings {
		items = append(items, toOfferingResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	offering, err := s.catalog.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferingResponse(offering))
}

type decideClassRequest struct {
	Status string `json:"status" validate:"required,oneof=approved denied"`
}

func (s *Server) handleDecideClass(w http.ResponseWriter, r *http.Request) {
	var req decideClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid status payload")
		return
	}

	id := chi.URLParam(r, "id")
	var (
		offering catalog.Offering
		err      error
	)
	if req.Status == string(catalog.StatusApproved) {
		offering, err = s.catalog.Approve(r.Context(), id)
	} else {
		offering, err = s.catalog.Deny(r.Context(), id)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferingResponse(offering))
}

// Cart

type cartItemResponse struct {
	ID        string          `json:"id"`
	ClassID   string          `json:"class_id"`
	ClassName string          `json:"class_name"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt string          `json:"created_at"`
}

func toCartItemResponse(item cart.Item) cartItemResponse {
	return cartItemResponse{
		ID:        item.ID,
		ClassID:   item.ClassID,
		ClassName: item.ClassName,
		Price:     item.Price,
		CreatedAt: item.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListCart(w http.ResponseWriter, r *http.Request) {
	identity, err := requireIdentity(w, r)
	if err != nil {
		return
	}

	items, err := s.carts.ListByOwner(r.Context(), identity.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]cartItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toCartItemResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

type addToCartRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	identity, err := requireIdentity(w, r)
	if err != nil {
		return
	}

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cart payload")
		return
	}

	item, err := s.carts.Add(r.Context(), identity.Email, req.ClassID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCartItemResponse(item))
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	identity, err := requireIdentity(w, r)
	if err != nil {
		return
	}

	if err := s.carts.Remove(r.Context(), identity.Email, chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Payments

type createIntentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	if _, err := requireIdentity(w, r); err != nil {
		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	secret, err := s.payments.CreateIntent(r.Context(), payments.IntentRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"client_secret": secret})
}

type settleRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	CartItemIDs []string        `json:"cart_item_ids" validate:"required,min=1"`
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	identity, err := requireIdentity(w, r)
	if err != nil {
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment payload")
		return
	}

	result, err := s.payments.Settle(r.Context(), payments.SettleRequest{
		Email:       identity.Email,
		Amount:      req.Amount,
		CartItemIDs: req.CartItemIDs,
	})
	if err != nil {
		var partial *payments.PartialError
		if errors.As(err, &partial) {
			// The charge is recorded; reconciliation retries the rest. The
			// client must not resubmit the purchase.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":      true,
				"message":    "payment recorded, enrollment pending",
				"payment_id": partial.PaymentID,
			})
			return
		}
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payment_id":  result.Payment.ID,
		"enrolled":    result.EnrolledClassIDs,
		"inserted_id": result.Payment.ID,
	})
}

type paymentResponse struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	CartItemIDs []string        `json:"cart_item_ids"`
	ClassIDs    []string        `json:"class_ids"`
	CreatedAt   string          `json:"created_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity, err := requireIdentity(w, r)
	if err != nil {
		return
	}

	records, err := s.payments.HistoryByEmail(r.Context(), identity.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]paymentResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, paymentResponse{
			ID:          rec.ID,
			Amount:      rec.Amount,
			CartItemIDs: rec.CartItemIDs,
			ClassIDs:    rec.ClassIDs,
			CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

type enrolledResponse struct {
	ClassID   string          `json:"class_id"`
	ClassName string          `json:"class_name"`
	Price     decimal.Decimal `json:"price"`
	PaidAt    string          `json:"paid_at"`
}

func (s *Server) handleEnrolled(w http.ResponseWriter, r *http.Request) {
	identity, err := requireIdentity(w, r)
	if err != nil {
		return
	}

	classes, err := s.payments.EnrolledByEmail(r.Context(), identity.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]enrolledResponse, 0, len(classes))
	for _, ec := range classes {
		out = append(out, enrolledResponse{
			ClassID:   ec.ClassID,
			ClassName: ec.ClassName,
			Price:     ec.Price,
			PaidAt:    ec.PaidAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

// fail maps domain errors onto the boundary status contract.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, cart.ErrClassUnavailable),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, payments.ErrItemsMissing):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, cart.ErrDuplicateItem):
		writeError(w, http.StatusConflict, "already in cart")
	case errors.Is(err, catalog.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "status already decided")
	case errors.Is(err, auth.ErrDirectoryUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
