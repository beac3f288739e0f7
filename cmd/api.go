package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/instabids/bidcard-cli/internal/bidcard"
	"github.com/instabids/bidcard-cli/internal/config"
	"github.com/instabids/bidcard-cli/internal/model"
	"github.com/instabids/bidcard-cli/internal/store"
)

type api struct {
	svc *bidcard.Service
}

// newRouter wires the HTTP surface of the lifecycle service.
func newRouter(svc *bidcard.Service, cfg config.ServerConfig) http.Handler {
	a := &api{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID"},
	}))
	if cfg.RatePerSecond > 0 {
		r.Use(throttle(rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.RateBurst, 1))))
	}

	r.Get("/health", a.health)

	r.Route("/api/bid-cards", func(r chi.Router) {
		r.Post("/", a.createCard)
		r.Get("/lookup", a.lookupCard)
		r.Post("/{id}/fields/{name}", a.writeField)
		r.Post("/{id}/fields", a.writeMany)
		r.Get("/{id}/status", a.status)
		r.Post("/{id}/convert", a.convert)
	})
	r.Get("/api/official-cards/{id}", a.official)

	return r
}

func throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) createCard(w http.ResponseWriter, r *http.Request) {
	var req bidcard.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	card, err := a.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (a *api) lookupCard(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_id is required"})
		return
	}
	card, err := a.svc.Lookup(r.Context(), conversationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (a *api) writeField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FieldValue any     `json:"field_value"`
		Source     string  `json:"source"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := a.svc.WriteField(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "name"),
		req.FieldValue, model.FieldSource(req.Source), req.Confidence)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) writeMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fields map[string]any `json:"fields"`
		Source string         `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Fields == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	applied, err := a.svc.WriteMany(r.Context(), chi.URLParam(r, "id"), req.Fields, model.FieldSource(req.Source))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"fields_applied": applied})
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) convert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	// Body is optional; the user id may come from the X-User-ID header.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.UserID == "" {
		req.UserID = r.Header.Get("X-User-ID")
	}

	res, err := a.svc.Convert(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"official_bid_card_id": res.Official.ID,
		"bid_number":           res.Official.BidNumber,
		"already_converted":    res.AlreadyConverted,
		"discovery_queued":     res.DiscoveryQueued,
	})
}

func (a *api) official(w http.ResponseWriter, r *http.Request) {
	official, err := a.svc.Official(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, official)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP statuses. Precondition failures
// are client errors with a structured body; backend failures are opaque 500s.
func writeError(w http.ResponseWriter, err error) {
	if pe, ok := bidcard.AsPrecondition(err); ok {
		status := http.StatusBadRequest
		switch pe.Code {
		case bidcard.CodeUnauthenticated:
			status = http.StatusUnauthorized
		case bidcard.CodeUserMismatch:
			status = http.StatusForbidden
		case bidcard.CodeMissingFields:
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, pe)
		return
	}

	switch {
	case errors.Is(err, store.ErrCardNotFound), errors.Is(err, store.ErrOfficialNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, store.ErrCardConverted):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "bid card already converted"})
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
