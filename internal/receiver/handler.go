package receiver

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"handreceipt/internal/logging"
)

const maxRequestBody = 64 << 10

type transferResponse struct {
	Success  bool   `json:"success"`
	ID       string `json:"id,omitempty"`
	Replayed bool   `json:"replayed,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Handler serves the custody API.
type Handler struct {
	store   Store
	token   string
	logger  *slog.Logger
	metrics *receiverMetrics
}

// NewHandler wires a Handler to store. An empty token disables bearer auth.
func NewHandler(store Store, token string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		store:   store,
		token:   strings.TrimSpace(token),
		logger:  logging.NewComponentLogger(logger, "receiver"),
		metrics: newReceiverMetrics(),
	}
}

// Router returns the HTTP routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.instrument)
	r.Handle("/metrics", h.metrics.handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(h.authenticate)
	v1.HandleFunc("/transfers", h.CreateTransfer).Methods(http.MethodPost)
	v1.HandleFunc("/properties/{id}", h.GetProperty).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, transferResponse{Error: "method not allowed"})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, transferResponse{Error: "not found"})
	})
	return r
}

// CreateTransfer records one transfer. The Idempotency-Key header must carry
// the transfer id.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		h.reject(w, http.StatusBadRequest, outcomeInvalid, "missing Idempotency-Key")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.reject(w, http.StatusBadRequest, outcomeInvalid, "read body failed")
		return
	}
	var t Transfer
	if err := json.Unmarshal(body, &t); err != nil {
		h.reject(w, http.StatusBadRequest, outcomeInvalid, "invalid JSON")
		return
	}
	t = t.normalize()
	if t.ID == "" {
		t.ID = key
	}
	if t.ID != key {
		h.reject(w, http.StatusUnprocessableEntity, outcomeInvalid, "Idempotency-Key does not match transfer id")
		return
	}
	if err := t.validate(); err != nil {
		h.reject(w, http.StatusUnprocessableEntity, outcomeInvalid, err.Error())
		return
	}

	ctx := logging.WithTransfer(r.Context(), t.ID, t.PropertyID)
	logger := logging.WithContext(ctx, h.logger)

	outcome, err := h.store.Record(ctx, t)
	switch {
	case errors.Is(err, ErrIdempotencyMismatch):
		h.reject(w, http.StatusUnprocessableEntity, outcomeInvalid, err.Error())
		return
	case errors.Is(err, ErrConflict):
		h.reject(w, http.StatusConflict, outcomeError, "request in progress")
		return
	case err != nil:
		logging.ErrorWithContext(logger, "record transfer failed", "receiver_store_error",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database connectivity"),
		)
		h.reject(w, http.StatusInternalServerError, outcomeError, "storage unavailable")
		return
	}

	switch {
	case !outcome.Accepted:
		logger.Info("transfer rejected", logging.String("reason", outcome.Reason))
		h.reject(w, http.StatusConflict, outcomeRejected, outcome.Reason)
	case outcome.Replayed:
		logger.Debug("transfer replayed")
		h.metrics.transfers.WithLabelValues(outcomeReplayed).Inc()
		writeJSON(w, http.StatusOK, transferResponse{Success: true, ID: t.ID, Replayed: true})
	default:
		logger.Info("transfer accepted",
			logging.String("from_user", t.FromUserID),
			logging.String("to_user", t.ToUserID),
		)
		h.metrics.transfers.WithLabelValues(outcomeAccepted).Inc()
		w.Header().Set("Location", "/api/v1/properties/"+t.PropertyID)
		writeJSON(w, http.StatusCreated, transferResponse{Success: true, ID: t.ID})
	}
}

// GetProperty returns the holder and history of one property.
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	prop, err := h.store.Property(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, ErrPropertyNotFound) {
		writeJSON(w, http.StatusNotFound, transferResponse{Error: "property not found"})
		return
	}
	if err != nil {
		h.logger.Error("lookup property failed", logging.Error(err))
		writeJSON(w, http.StatusInternalServerError, transferResponse{Error: "storage unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, prop)
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reject(w http.ResponseWriter, status int, outcome, msg string) {
	h.metrics.transfers.WithLabelValues(outcome).Inc()
	writeJSON(w, status, transferResponse{Error: msg})
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), []byte(h.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, transferResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(logging.WithRequestID(r.Context(), requestID))

		timer := prometheus.NewTimer(h.metrics.latency.WithLabelValues(r.Method, endpoint))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		timer.ObserveDuration()

		h.metrics.requests.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		logging.WithContext(r.Context(), h.logger).Debug("request served",
			logging.String("method", r.Method),
			logging.String("endpoint", endpoint),
			logging.Int("status", rec.status),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
