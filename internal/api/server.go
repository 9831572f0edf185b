// Package api serves the read side (unified ledger, CSV export) and the
// transfer-creation endpoint. It is a separate listener from the webhook
// surface so operators can firewall the two independently.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xndrbrgs/pampampay-reconciler/internal/config"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
	"github.com/xndrbrgs/pampampay-reconciler/internal/ledger"
	"github.com/xndrbrgs/pampampay-reconciler/internal/store"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// Pinger is the health-check view of the database handle.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server provides the ledger read API and transfer creation.
type Server struct {
	projector         *ledger.Projector
	repo              store.TransferRepository
	pinger            Pinger
	providers         map[model.Provider]config.ProviderConfig
	receiverAccountID string
	logger            *slog.Logger
	ratelimit         *RateLimitMiddleware
	nowFunc           func() time.Time
}

// NewServer creates the API server. opts configure optional dependencies.
func NewServer(projector *ledger.Projector, repo store.TransferRepository, providers map[model.Provider]config.ProviderConfig, receiverAccountID string, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		projector:         projector,
		repo:              repo,
		providers:         providers,
		receiverAccountID: receiverAccountID,
		logger:            logger.With("component", "api"),
		nowFunc:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServerOption configures optional dependencies for the API server.
type ServerOption func(*Server)

// WithPinger sets the database handle used by the health endpoint.
func WithPinger(p Pinger) ServerOption {
	return func(s *Server) { s.pinger = p }
}

// WithRateLimit applies the rate limiting middleware to all routes.
func WithRateLimit(rl *RateLimitMiddleware) ServerOption {
	return func(s *Server) { s.ratelimit = rl }
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/ledger", s.handleLedger)
	mux.HandleFunc("GET /v1/ledger/export", s.handleLedgerExport)
	mux.HandleFunc("POST /v1/transfers", s.handleCreateTransfer)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.ratelimit != nil {
		return s.ratelimit.Wrap(mux)
	}
	return mux
}

// parseLedgerFilter reads the optional month/year query params. month requires
// year: "March of every year" is not a view anyone has asked for, and allowing
// it would make the default projection ambiguous.
func parseLedgerFilter(r *http.Request) (ledger.Filter, error) {
	var f ledger.Filter

	if y := r.URL.Query().Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil || year < 2000 || year > 2200 {
			return f, fmt.Errorf("invalid year %q", y)
		}
		f.Year = year
	}
	if m := r.URL.Query().Get("month"); m != "" {
		month, err := strconv.Atoi(m)
		if err != nil || month < 1 || month > 12 {
			return f, fmt.Errorf("invalid month %q", m)
		}
		if f.Year == 0 {
			return f, fmt.Errorf("month requires year")
		}
		f.Month = time.Month(month)
	}
	return f, nil
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLedgerFilter(r)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	transactions, err := s.projector.Project(r.Context(), filter)
	if err != nil {
		s.logger.Error("ledger projection failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if transactions == nil {
		transactions = []model.UnifiedTransaction{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

func (s *Server) handleLedgerExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLedgerFilter(r)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	transactions, err := s.projector.Project(r.Context(), filter)
	if err != nil {
		s.logger.Error("ledger export projection failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	filename := exportFilename(filter, s.nowFunc())
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := ledger.WriteCSV(w, transactions); err != nil {
		// Headers are gone; all we can do is log.
		s.logger.Error("ledger export write failed", "error", err)
	}
}

func exportFilename(f ledger.Filter, now time.Time) string {
	if f.Year != 0 && f.Month != 0 {
		return fmt.Sprintf("ledger-%04d-%02d.csv", f.Year, int(f.Month))
	}
	if f.Year != 0 {
		return fmt.Sprintf("ledger-%04d.csv", f.Year)
	}
	return fmt.Sprintf("ledger-%s.csv", now.UTC().Format("2006-01-02"))
}

type createTransferRequest struct {
	Provider string `json:"provider"`
	// Amount is in the provider's native unit: whole dollars with optional
	// cents for "dollars" providers ("50.00"), integer minor units for
	// "minor" providers ("5000").
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Description       string `json:"description"`
	SenderID          string `json:"sender_id"`
	SenderEmail       string `json:"sender_email"`
	ExternalReference string `json:"external_reference"`
}

type createTransferResponse struct {
	ID                string `json:"id"`
	Provider          string `json:"provider"`
	AmountMinor       int64  `json:"amount_minor"`
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
}

var minorUnitsPerDollar = decimal.NewFromInt(100)

// amountToMinor converts a provider-native amount string into canonical
// integer minor units. unit is the catalog amount_unit for the provider;
// anything that does not land on a whole minor unit is rejected rather
// than rounded.
func amountToMinor(raw, unit string) (int64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be positive")
	}
	if unit == "dollars" {
		d = d.Mul(minorUnitsPerDollar)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("amount %q is not a whole number of minor units", raw)
	}
	return d.IntPart(), nil
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	provider := model.Provider(strings.ToLower(req.Provider))
	if !model.ValidProvider(provider) {
		http.Error(w, `{"error":"invalid provider"}`, http.StatusBadRequest)
		return
	}
	unit := s.providers[provider].AmountUnit
	if unit == "" {
		unit = "minor"
	}
	amountMinor, err := amountToMinor(req.Amount, unit)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}
	if req.SenderID == "" || req.ExternalReference == "" {
		http.Error(w, `{"error":"sender_id and external_reference are required"}`, http.StatusBadRequest)
		return
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "usd"
	}

	now := s.nowFunc().UTC()
	transfer := &model.Transfer{
		ID:                uuid.NewString(),
		Provider:          provider,
		AmountMinor:       amountMinor,
		Currency:          currency,
		Description:       req.Description,
		SenderID:          req.SenderID,
		ReceiverID:        s.receiverAccountID,
		SenderEmail:       req.SenderEmail,
		Status:            model.StatusPending,
		ExternalReference: req.ExternalReference,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.CreatePending(r.Context(), transfer); err != nil {
		if errors.Is(err, store.ErrDuplicateExternalReference) {
			http.Error(w, `{"error":"external reference already exists"}`, http.StatusConflict)
			return
		}
		s.logger.Error("create transfer failed",
			"provider", provider, "external_reference", req.ExternalReference, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	s.logger.Info("transfer created",
		"provider", provider, "transfer_id", transfer.ID,
		"external_reference", transfer.ExternalReference, "amount_minor", transfer.AmountMinor)

	writeJSON(w, http.StatusCreated, createTransferResponse{
		ID:                transfer.ID,
		Provider:          provider.String(),
		AmountMinor:       transfer.AmountMinor,
		Status:            transfer.Status.String(),
		ExternalReference: transfer.ExternalReference,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.PingContext(ctx); err != nil {
			s.logger.Warn("health check db ping failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSONBody reads and decodes a JSON request body into v.
// Returns false (and writes an error response) if decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return false
	}
	return true
}
