package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/zhaobenny/tokdash/internal/engine"
	"github.com/zhaobenny/tokdash/internal/logger"
	"github.com/zhaobenny/tokdash/internal/model"
	"github.com/zhaobenny/tokdash/internal/period"
	"github.com/zhaobenny/tokdash/internal/pricing"
)

// Engine is the query interface the handlers serve.
type Engine interface {
	GetSummary(ctx context.Context, periodToken string, sources []model.SourceID) (*model.UsageSummary, error)
	GetStats(ctx context.Context, year int, sources []model.SourceID) (*model.Stats, error)
	ReloadPricing(path string) (*pricing.Table, error)
	Pricing() *pricing.Table
	PricingStale() bool
}

// badRequest is a request validation failure.
type badRequest string

func (e badRequest) Error() string { return string(e) }

// Handler holds dependencies for HTTP handlers
type Handler struct {
	engine      Engine
	pricingFile string
	version     string
	log         *slog.Logger
}

// New creates a new Handler. pricingFile is the table reloaded by
// POST /api/pricing/reload; empty disables reloading.
func New(eng Engine, pricingFile, version string, log *slog.Logger) *Handler {
	return &Handler{
		engine:      eng,
		pricingFile: pricingFile,
		version:     version,
		log:         log,
	}
}

// Mount registers the routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/usage", h.Usage)
		r.Get("/openclaw", h.OpenClaw)
		r.Get("/tools", h.Tools)
		r.Get("/stats", h.Stats)
		r.Get("/pricing", h.PricingInfo)
		r.Post("/pricing/reload", h.ReloadPricing)
	})
}

// Health reports liveness and the pricing table in use.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         h.version,
		"pricing_version": h.engine.Pricing().Version,
		"time":            time.Now().UTC(),
	})
}

// Usage serves the summary of ?period= over the ?filter= source set.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	sources, err := model.ParseSourceSet(r.URL.Query().Get("filter"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.summary(w, r, sources)
}

// OpenClaw serves the summary of the OpenClaw source alone.
func (h *Handler) OpenClaw(w http.ResponseWriter, r *http.Request) {
	h.summary(w, r, []model.SourceID{model.SourceOpenClaw})
}

// Tools serves the summary of the coding tools.
func (h *Handler) Tools(w http.ResponseWriter, r *http.Request) {
	h.summary(w, r, model.CodingTools)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request, sources []model.SourceID) {
	p := r.URL.Query().Get("period")
	if p == "" {
		p = "today"
	}

	sum, err := h.engine.GetSummary(r.Context(), p, sources)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, sum)
}

// Stats serves daily usage and streaks for ?year=, or the last 365 days.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	year := 0
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1970 || n > 9999 {
			h.writeError(w, r, badRequest("year must be a four-digit number"))
			return
		}
		year = n
	}
	sources, err := model.ParseSourceSet(r.URL.Query().Get("filter"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	st, err := h.engine.GetStats(r.Context(), year, sources)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, st)
}

type pricingResponse struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
	Currency    string    `json:"currency"`
	Models      int       `json:"models"`
	Stale       bool      `json:"stale"`
}

func (h *Handler) pricingInfo(t *pricing.Table) pricingResponse {
	return pricingResponse{
		Version:     t.Version,
		LastUpdated: t.LastUpdated,
		Currency:    t.Currency,
		Models:      t.Len(),
		Stale:       h.engine.PricingStale(),
	}
}

// PricingInfo describes the current pricing table.
func (h *Handler) PricingInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.pricingInfo(h.engine.Pricing()))
}

// ReloadPricing reloads the configured pricing file and flushes cached results.
func (h *Handler) ReloadPricing(w http.ResponseWriter, r *http.Request) {
	if h.pricingFile == "" {
		h.writeError(w, r, badRequest("no pricing file configured"))
		return
	}
	t, err := h.engine.ReloadPricing(h.pricingFile)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, h.pricingInfo(t))
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br),
		errors.Is(err, period.ErrInvalidPeriod),
		errors.Is(err, model.ErrUnknownSource):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoData), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// The computation keeps running and is cached for the next request.
		h.log.InfoContext(r.Context(), "request gave up waiting", "request_id", logger.RequestID(r.Context()), "error", err)
		msg = "usage is still being computed, retry shortly"
	case status == http.StatusInternalServerError:
		h.log.ErrorContext(r.Context(), "request failed", "request_id", logger.RequestID(r.Context()), "error", err)
		msg = "internal server error"
	}
	h.writeJSON(w, r, status, errorResponse{Error: msg, RequestID: logger.RequestID(r.Context())})
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.ErrorContext(r.Context(), "failed to write JSON response", "error", err)
	}
}
