// Package handler exposes the attendance, schedule and site services over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"oktel-workforce/internal/apperr"
	"oktel-workforce/internal/broadcast"
	"oktel-workforce/internal/i18n"
	"oktel-workforce/internal/metrics"
	"oktel-workforce/internal/service"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Attendance *service.AttendanceService
	Schedule   *service.ScheduleService
	Sites      *service.SiteService
	Hub        *broadcast.Hub
	Metrics    *metrics.Metrics
	JWTSecret  string
	JWTIssuer  string
	// Ready reports whether backing stores are reachable; nil means always ready.
	Ready func(ctx context.Context) error
	// Now is the clock used by the schedule views; nil means time.Now.
	Now func() time.Time
}

type Handler struct {
	attendance *service.AttendanceService
	schedule   *service.ScheduleService
	sites      *service.SiteService
	hub        *broadcast.Hub
	metrics    *metrics.Metrics
	secret     string
	issuer     string
	ready      func(ctx context.Context) error
	now        func() time.Time
	validate   *validator.Validate

	closing   chan struct{}
	closeOnce sync.Once
}

func New(d Deps) *Handler {
	h := &Handler{
		attendance: d.Attendance,
		schedule:   d.Schedule,
		sites:      d.Sites,
		hub:        d.Hub,
		metrics:    d.Metrics,
		secret:     d.JWTSecret,
		issuer:     d.JWTIssuer,
		ready:      d.Ready,
		now:        d.Now,
		validate:   validator.New(),
		closing:    make(chan struct{}),
	}
	if h.now == nil {
		h.now = time.Now
	}
	// Report fields by their JSON names.
	h.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return h
}

// Close ends open feed connections. http.Server.Shutdown does not wait for hijacked
// connections, so call this first.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.LoggingMiddleware, localeMiddleware)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	r.With(h.authMiddleware).Get("/ws", h.handleFeed)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Post("/shifts/check-in", h.handleCheckIn)
		r.Post("/shifts/check-out", h.handleCheckOut)
		r.Get("/shifts", h.handleListMySessions)
		r.Get("/shifts/open", h.handleOpenSession)
		r.Get("/shifts/worker/{workerId}", h.handleListWorkerSessions)
		r.Delete("/shifts/{id}", h.handleDeleteSession)

		r.Post("/employee-shifts/assign", h.handleAssign)
		r.Get("/employee-shifts/me", h.handleListMySchedule)
		r.Get("/employee-shifts/me/summary", h.handleMySummary)
		r.Get("/employee-shifts/roster", h.handleRoster)
		r.Get("/employee-shifts/employee/{workerId}", h.handleListWorkerSchedule)
		r.Get("/employee-shifts/employee/{workerId}/summary", h.handleWorkerSummary)
		r.Put("/employee-shifts/{id}", h.handleUpdateEntry)
		r.Delete("/employee-shifts/{id}", h.handleDeleteEntry)

		r.Post("/locations", h.handleCreateSite)
		r.Get("/locations", h.handleListSites)
		r.Get("/locations/resolve", h.handleResolveSite)
		r.Put("/locations/{id}/coordinates", h.handleSetCoordinates)
		r.Delete("/locations/{id}", h.handleDeleteSite)
	})

	return r
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, messageID string, data map[string]any) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Kind:    kind,
		Message: i18n.T(r.Context(), messageID, data),
	}})
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondError maps domain errors to their status; anything else is logged with op
// and reported as a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if ae, ok := apperr.As(err); ok {
		writeError(w, r, statusOf(ae.Kind), string(ae.Kind), ae.MessageID, ae.Data)
		return
	}
	slog.Error(op+" failed", "request_id", requestID(r.Context()), "error", err)
	writeError(w, r, http.StatusInternalServerError, "internal", "error.internal", nil)
}

// decode reads a JSON body and validates it with the struct's validate tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, false)
}

// decodeBody is decode with an optional body: when allowEmpty is set, a request
// without content leaves dst at its zero value.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	if r.Body == nil || r.Body == http.NoBody {
		if allowEmpty {
			return true
		}
		writeError(w, r, http.StatusBadRequest, string(apperr.KindValidation), "error.invalid_request", nil)
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, r, http.StatusBadRequest, string(apperr.KindValidation), "error.invalid_request", nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			writeError(w, r, http.StatusBadRequest, string(apperr.KindValidation), "error.invalid_request", nil)
			return false
		}
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		first := ve[0]
		msgID := "error.invalid_field"
		if first.Tag() == "required" {
			msgID = "error.missing_field"
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
			Kind:    string(apperr.KindValidation),
			Message: i18n.T(r.Context(), msgID, map[string]any{"Field": first.Field()}),
			Fields:  fields,
		}})
		return false
	}
	return true
}
