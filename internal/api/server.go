// Package api exposes the auto-link service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"solana-autolink/internal/batch"
	"solana-autolink/internal/domain"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/reconcile"
	"solana-autolink/internal/stats"
	"solana-autolink/internal/storage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Service is the trigger surface the HTTP handlers call.
type Service interface {
	Ingest(ctx context.Context, obs *domain.TransferObservation) (*domain.TransferObservation, error)
	GetObservation(ctx context.Context, signature string) (*domain.TransferObservation, error)
	Transitions(ctx context.Context, observationID string) ([]*domain.TransitionEvent, error)
	ProcessAll(ctx context.Context, walletIDs ...string) (*batch.Result, error)
	ProcessSignature(ctx context.Context, signature string) (*batch.Result, error)
	Link(ctx context.Context, observationID, actor string) (*domain.TransferObservation, error)
	Ignore(ctx context.Context, observationID, actor string) (*domain.TransferObservation, error)
	GetSettings(ctx context.Context, walletID string) (*domain.WalletLinkSettings, error)
	PutSettings(ctx context.Context, s *domain.WalletLinkSettings) (*domain.WalletLinkSettings, error)
	RegisterAddress(ctx context.Context, walletID, address string) error
	AddExpectedTransfer(ctx context.Context, e *domain.ExpectedTransfer) (*domain.ExpectedTransfer, error)
	Stats(ctx context.Context, lookback time.Duration, walletIDs ...string) (*stats.Stats, error)
}

// Handlers holds the HTTP handlers.
type Handlers struct {
	svc    Service
	events http.Handler
	logger *zap.Logger
}

// NewRouter builds the HTTP routes. events serves GET /v1/events and may be nil.
func NewRouter(svc Service, events http.Handler, logger *zap.Logger) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handlers{svc: svc, events: events, logger: logger}

	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/observations", h.HandleIngest).Methods(http.MethodPost)
	v1.HandleFunc("/observations/{signature}", h.HandleGetObservation).Methods(http.MethodGet)
	v1.HandleFunc("/observations/{signature}/process", h.HandleProcessSignature).Methods(http.MethodPost)
	v1.HandleFunc("/observations/{id}/link", h.HandleLink).Methods(http.MethodPost)
	v1.HandleFunc("/observations/{id}/ignore", h.HandleIgnore).Methods(http.MethodPost)
	v1.HandleFunc("/observations/{id}/transitions", h.HandleTransitions).Methods(http.MethodGet)
	v1.HandleFunc("/process", h.HandleProcessAll).Methods(http.MethodPost)
	v1.HandleFunc("/wallets/{walletID}/settings", h.HandleGetSettings).Methods(http.MethodGet)
	v1.HandleFunc("/wallets/{walletID}/settings", h.HandlePutSettings).Methods(http.MethodPut)
	v1.HandleFunc("/wallets/{walletID}/addresses", h.HandleRegisterAddress).Methods(http.MethodPost)
	v1.HandleFunc("/wallets/{walletID}/expected-transfers", h.HandleAddExpectedTransfer).Methods(http.MethodPost)
	v1.HandleFunc("/stats", h.HandleStats).Methods(http.MethodGet)
	if events != nil {
		v1.Handle("/events", events).Methods(http.MethodGet)
	}
	return r
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleIngest registers a new observation.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req ObservationRequest
	if !h.decode(w, r, &req) {
		return
	}
	obs, err := h.svc.Ingest(r.Context(), req.toDomain())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, newObservationResponse(obs))
}

// HandleGetObservation returns one observation by signature.
func (h *Handlers) HandleGetObservation(w http.ResponseWriter, r *http.Request) {
	obs, err := h.svc.GetObservation(r.Context(), mux.Vars(r)["signature"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newObservationResponse(obs))
}

// HandleTransitions returns the status history of an observation.
func (h *Handlers) HandleTransitions(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Transitions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]TransitionResponse, 0, len(events))
	for _, e := range events {
		out = append(out, TransitionResponse{
			EventID:         e.EventID,
			OldStatus:       string(e.OldStatus),
			NewStatus:       string(e.NewStatus),
			ConfidenceScore: e.ConfidenceScore,
			Trigger:         string(e.Trigger),
			Actor:           e.Actor,
			OccurredAt:      e.OccurredAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"transitions": out})
}

// HandleProcessAll runs the engine over every pending observation.
// An empty body processes every wallet.
func (h *Handlers) HandleProcessAll(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.ProcessAll(r.Context(), req.WalletIDs...)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HandleProcessSignature re-evaluates one observation.
func (h *Handlers) HandleProcessSignature(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ProcessSignature(r.Context(), mux.Vars(r)["signature"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HandleLink confirms an observation awaiting review.
func (h *Handlers) HandleLink(w http.ResponseWriter, r *http.Request) {
	h.manual(w, r, h.svc.Link)
}

// HandleIgnore rejects an observation awaiting review.
func (h *Handlers) HandleIgnore(w http.ResponseWriter, r *http.Request) {
	h.manual(w, r, h.svc.Ignore)
}

func (h *Handlers) manual(w http.ResponseWriter, r *http.Request, action func(context.Context, string, string) (*domain.TransferObservation, error)) {
	var req ActorRequest
	if !h.decode(w, r, &req) {
		return
	}
	obs, err := action(r.Context(), mux.Vars(r)["id"], req.Actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newObservationResponse(obs))
}

// HandleGetSettings returns a wallet's link settings.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.GetSettings(r.Context(), mux.Vars(r)["walletID"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSettingsBody(s))
}

// HandlePutSettings replaces a wallet's link settings.
func (h *Handlers) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body SettingsBody
	if !h.decode(w, r, &body) {
		return
	}
	saved, err := h.svc.PutSettings(r.Context(), &domain.WalletLinkSettings{
		WalletID:            mux.Vars(r)["walletID"],
		Enabled:             body.Enabled,
		MinConfidenceScore:  body.MinConfidenceScore,
		TimeWindowHours:     body.TimeWindowHours,
		NotificationEnabled: body.NotificationEnabled,
		AutoConfirmEnabled:  body.AutoConfirmEnabled,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSettingsBody(saved))
}

// HandleRegisterAddress records an address owned by the wallet.
func (h *Handlers) HandleRegisterAddress(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.RegisterAddress(r.Context(), mux.Vars(r)["walletID"], req.Address); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddExpectedTransfer records a counterpart the wallet is waiting for.
func (h *Handlers) HandleAddExpectedTransfer(w http.ResponseWriter, r *http.Request) {
	var req ExpectedTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.svc.AddExpectedTransfer(r.Context(), &domain.ExpectedTransfer{
		ID:        req.ID,
		WalletID:  mux.Vars(r)["walletID"],
		Direction: domain.Direction(req.Direction),
		Amount:    req.Amount,
		TokenMint: req.TokenMint,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": e.ID})
}

// HandleStats returns aggregates. Query parameters: wallet (repeatable) and
// lookback (Go duration, e.g. 24h).
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var lookback time.Duration
	if raw := q.Get("lookback"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "lookback must be a positive duration", Code: "validation"})
			return
		}
		lookback = d
	}
	st, err := h.svc.Stats(r.Context(), lookback, q["wallet"]...)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "validation"})
		return false
	}
	return true
}

func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	}
	respondJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

// classify maps service errors to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, storage.ErrDuplicateKey):
		return http.StatusConflict, "duplicate"
	}
	code := reconcile.Reason(err)
	switch code {
	case "validation":
		return http.StatusBadRequest, code
	case "configuration":
		return http.StatusUnprocessableEntity, code
	case "conflict", "invalid_transition", "expired":
		return http.StatusConflict, code
	case "repository_unavailable":
		return http.StatusServiceUnavailable, code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "cancelled"
	}
	return http.StatusInternalServerError, code
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket upgrades need the raw writer's Hijacker.
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
