package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"rentchain/chain"
	"rentchain/dispatch"
	"rentchain/gateway/middleware"
	"rentchain/market"
	"rentchain/observability/metrics"
)

const maxListingImage = 8 << 20 // 8 MiB

// ViewAssembler is the read side the server exposes.
type ViewAssembler interface {
	Listings(ctx context.Context) ([]market.PropertyView, error)
	PropertyDetail(ctx context.Context, id uint64) (*market.PropertyView, error)
	OwnerProperties(ctx context.Context, owner common.Address) ([]market.OwnedPropertyView, error)
	TenantRentals(ctx context.Context, tenant common.Address) ([]market.RentalView, error)
}

// ActionDispatcher is the write side the server exposes.
type ActionDispatcher interface {
	ListProperty(ctx context.Context, input dispatch.ListingInput) (dispatch.PendingAction, error)
	RentProperty(ctx context.Context, propertyID uint64) (dispatch.PendingAction, error)
	RequestDepositRelease(ctx context.Context, rentalID uint64) (dispatch.PendingAction, error)
	WithdrawRent(ctx context.Context, rentalID uint64) (dispatch.PendingAction, error)
	Action(id string) (dispatch.PendingAction, error)
}

// Server is the HTTP front end of the marketplace.
type Server struct {
	views   ViewAssembler
	actions ActionDispatcher
	store   *ActionStore
	log     *slog.Logger
	timeout time.Duration
	router  chi.Router
}

func NewServer(cfg GatewayConfig, views ViewAssembler, actions ActionDispatcher, store *ActionStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		views:   views,
		actions: actions,
		store:   store,
		log:     logger.With("component", "server"),
		timeout: cfg.RequestTimeout,
	}

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:             cfg.AuthEnabled,
		HMACSecret:          cfg.AuthSecret,
		Issuer:              cfg.AuthIssuer,
		Audience:            cfg.AuthAudience,
		AllowAnonymousReads: true,
	}, logger)
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"reads":   {RequestsPerMinute: cfg.ReadRatePerMinute, Burst: int(cfg.ReadRatePerMinute / 10)},
		"actions": {RequestsPerMinute: cfg.ActionRatePerMinute, Burst: 5},
	})
	requestMetrics := middleware.NewRequestMetrics("market_gateway", logger)
	// The view assembler and dispatcher record into the shared market
	// collectors; attach them so /metrics serves those series too.
	if err := metrics.Market().Register(requestMetrics.Registry()); err != nil {
		logger.Warn("register market collectors", "error", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", requestMetrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(limiter.Limit("reads"))
		r.Use(auth.Require())
		r.With(requestMetrics.Instrument("listings")).Get("/properties", s.handleListings)
		r.With(requestMetrics.Instrument("property_detail")).Get("/properties/{id}", s.handlePropertyDetail)
		r.With(requestMetrics.Instrument("owner_properties")).Get("/owners/{address}/properties", s.handleOwnerProperties)
		r.With(requestMetrics.Instrument("tenant_rentals")).Get("/tenants/{address}/rentals", s.handleTenantRentals)
		r.With(requestMetrics.Instrument("action_status")).Get("/actions/{id}", s.handleActionStatus)
	})

	r.Group(func(r chi.Router) {
		r.Use(limiter.Limit("actions"))
		r.Use(auth.Require(middleware.ScopeAct))
		r.With(requestMetrics.Instrument("list_property")).Post("/actions/list-property", s.handleListProperty)
		r.With(requestMetrics.Instrument("rent_property")).Post("/actions/rent-property", s.handleRentProperty)
		r.With(requestMetrics.Instrument("deposit_release")).Post("/actions/release-deposit", s.handleDepositRelease)
		r.With(requestMetrics.Instrument("withdraw_rent")).Post("/actions/withdraw-rent", s.handleWithdrawRent)
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	views, err := s.views.Listings(ctx)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	tab := market.Tab(r.URL.Query().Get("tab"))
	if tab == "" {
		tab = market.TabAll
	}
	filtered := market.Filter(views, tab, r.URL.Query().Get("q"))
	s.respond(w, r, http.StatusOK, filtered)
}

func (s *Server) handlePropertyDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.badRequest(w, r, "property id must be a positive integer")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	view, err := s.views.PropertyDetail(ctx, id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, view)
}

func (s *Server) handleOwnerProperties(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	views, err := s.views.OwnerProperties(ctx, owner)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, views)
}

func (s *Server) handleTenantRentals(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	views, err := s.views.TenantRentals(ctx, tenant)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, views)
}

func (s *Server) handleActionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action, err := s.actions.Action(id)
	if err == nil {
		s.respond(w, r, http.StatusOK, action)
		return
	}
	if !errors.Is(err, dispatch.ErrActionNotFound) {
		s.writeErr(w, r, err)
		return
	}
	// Fall back to the persisted copy for actions dispatched before a
	// restart.
	if s.store != nil {
		stored, lookupErr := s.store.LookupAction(r.Context(), id)
		if lookupErr == nil && stored != nil {
			s.respond(w, r, http.StatusOK, stored)
			return
		}
	}
	s.writeErr(w, r, err)
}

// handleListProperty accepts a multipart form: the listing fields plus the
// photo under "image".
func (s *Server) handleListProperty(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxListingImage); err != nil {
		s.badRequest(w, r, "expected multipart form upload")
		return
	}
	input := dispatch.ListingInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Location:    r.FormValue("location"),
		PriceEth:    r.FormValue("price"),
		DepositEth:  r.FormValue("deposit"),
	}
	if amenities := strings.TrimSpace(r.FormValue("amenities")); amenities != "" {
		for _, entry := range strings.Split(amenities, ",") {
			if trimmed := strings.TrimSpace(entry); trimmed != "" {
				input.Amenities = append(input.Amenities, trimmed)
			}
		}
	}
	var err error
	if input.Bedrooms, err = formUint(r, "bedrooms"); err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	if input.Bathrooms, err = formUint(r, "bathrooms"); err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	if input.AreaSqMeters, err = formUint(r, "area"); err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	if input.MinRentalMonths, err = formUint(r, "minRentalMonths"); err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	if raw := r.FormValue("availableFrom"); raw != "" {
		ts, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			s.badRequest(w, r, "availableFrom must be a unix timestamp")
			return
		}
		input.AvailableFrom = ts
	}
	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		input.Image = file
		input.ImageName = header.Filename
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	action, err := s.actions.ListProperty(ctx, input)
	s.finishAction(w, r, action, err)
}

func (s *Server) handleRentProperty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PropertyID uint64 `json:"propertyId"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	action, err := s.actions.RentProperty(ctx, req.PropertyID)
	s.finishAction(w, r, action, err)
}

func (s *Server) handleDepositRelease(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RentalID uint64 `json:"rentalId"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	action, err := s.actions.RequestDepositRelease(ctx, req.RentalID)
	s.finishAction(w, r, action, err)
}

func (s *Server) handleWithdrawRent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RentalID uint64 `json:"rentalId"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	action, err := s.actions.WithdrawRent(ctx, req.RentalID)
	s.finishAction(w, r, action, err)
}

func (s *Server) finishAction(w http.ResponseWriter, r *http.Request, action dispatch.PendingAction, err error) {
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusAccepted, action)
}

func (s *Server) addressParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		s.badRequest(w, r, "invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		s.badRequest(w, r, "invalid JSON payload")
		return false
	}
	return true
}

func formUint(r *http.Request, field string) (uint64, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New(field + " must be a non-negative integer")
	}
	return value, nil
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
	s.audit(r, http.StatusBadRequest)
}

// writeErr maps domain errors onto HTTP statuses.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var verr *dispatch.ValidationError
	var readErr *chain.ReadError
	var writeFailure *chain.WriteError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrPropertyNotFound), errors.Is(err, dispatch.ErrActionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrOwnProperty):
		status = http.StatusConflict
	case errors.Is(err, dispatch.ErrWalletRequired):
		status = http.StatusServiceUnavailable
	case errors.As(err, &readErr), errors.As(err, &writeFailure):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
	s.audit(r, status)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	s.writeJSON(w, status, v)
	s.audit(r, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) audit(r *http.Request, status int) {
	if s.store == nil {
		return
	}
	subject, _ := r.Context().Value(middleware.ContextKeySubject).(string)
	if err := s.store.InsertAuditLog(context.Background(), subject, r.Method, r.URL.Path, status); err != nil {
		s.log.Warn("audit insert failed", "error", err)
	}
}
