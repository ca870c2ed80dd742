// Package server exposes a remote.Store over HTTP for field agents.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fieldscan/internal/logging"
	"fieldscan/internal/remote"
	"fieldscan/internal/services"
)

const maxBodyBytes = 1 << 20

// Option customizes the handler.
type Option func(*handler)

// WithToken requires a bearer token on every /api request.
func WithToken(token string) Option {
	return func(h *handler) {
		h.token = strings.TrimSpace(token)
	}
}

type handler struct {
	store  remote.Store
	logger *slog.Logger
	token  string
}

// New wires the system-of-record routes into a chi router.
func New(store remote.Store, logger *slog.Logger, opts ...Option) http.Handler {
	h := &handler{store: store, logger: logging.NewComponentLogger(logger, "remote-server")}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post("/barcodes", h.insert)
		r.Delete("/barcodes/{id}", h.delete)
		r.Patch("/barcodes/{id}", h.updateCode)
		r.Get("/rows/{rowID}/barcodes", h.rowRecords)
		r.Get("/stats/daily/{userID}/{date}", h.dailyCount)
		r.Put("/stats/daily/{userID}/{date}", h.putDailyCount)
		r.Post("/stats/users/{userID}/recompute", h.recompute)
	})

	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request served",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldCorrelationID, middleware.GetReqID(r.Context())),
		)
	})
}

func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) insert(w http.ResponseWriter, r *http.Request) {
	var record remote.Record
	if !decodeBody(w, r, &record) {
		return
	}
	record.Pending = false
	if err := h.store.Insert(r.Context(), record); err != nil {
		h.writeStoreError(w, "insert", err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), param(r, "id")); err != nil {
		h.writeStoreError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) updateCode(w http.ResponseWriter, r *http.Request) {
	var body remote.UpdateCodeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if err := h.store.UpdateCode(r.Context(), param(r, "id"), body.Code); err != nil {
		h.writeStoreError(w, "update code", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) rowRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.RowRecords(r.Context(), param(r, "rowID"))
	if err != nil {
		h.writeStoreError(w, "row records", err)
		return
	}
	if records == nil {
		records = []remote.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handler) dailyCount(w http.ResponseWriter, r *http.Request) {
	userID, date := param(r, "userID"), param(r, "date")
	if !validDate(date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	count, exists, err := h.store.DailyCount(r.Context(), userID, date)
	if err != nil {
		h.writeStoreError(w, "daily count", err)
		return
	}
	writeJSON(w, http.StatusOK, remote.DailyCount{UserID: userID, Date: date, Count: count, Exists: exists})
}

func (h *handler) putDailyCount(w http.ResponseWriter, r *http.Request) {
	userID, date := param(r, "userID"), param(r, "date")
	if !validDate(date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	var body remote.DailyCount
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Count < 0 {
		writeError(w, http.StatusBadRequest, "count must not be negative")
		return
	}
	if err := h.store.PutDailyCount(r.Context(), userID, date, body.Count); err != nil {
		h.writeStoreError(w, "put daily count", err)
		return
	}
	writeJSON(w, http.StatusOK, remote.DailyCount{UserID: userID, Date: date, Count: body.Count, Exists: true})
}

func (h *handler) recompute(w http.ResponseWriter, r *http.Request) {
	userID := param(r, "userID")
	total, err := h.store.RecomputeUserTotal(r.Context(), userID)
	if err != nil {
		h.writeStoreError(w, "recompute", err)
		return
	}
	writeJSON(w, http.StatusOK, remote.UserTotal{UserID: userID, Total: total})
}

func (h *handler) writeStoreError(w http.ResponseWriter, operation string, err error) {
	switch {
	case errors.Is(err, remote.ErrDuplicate):
		writeJSON(w, http.StatusConflict, remote.ErrorResponse{Error: err.Error(), Code: remote.CodeDuplicate})
	case errors.Is(err, remote.ErrNotFound):
		writeJSON(w, http.StatusNotFound, remote.ErrorResponse{Error: err.Error(), Code: remote.CodeNotFound})
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("store operation failed",
			logging.String("operation", operation),
			logging.Error(err),
			logging.String(logging.FieldEventType, "store_failure"),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// param returns a decoded route parameter. chi matches against the escaped
// path when one is present, so values such as "row%2F1" arrive still encoded.
func param(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func validDate(value string) bool {
	_, err := time.Parse(time.DateOnly, value)
	return err == nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, remote.ErrorResponse{Error: message})
}
