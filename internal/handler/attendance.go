package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"oktel-workforce/internal/model"
	"oktel-workforce/internal/service"
)

// punchRequest is the body of check-in and check-out. Every field is optional: the
// location sample may have failed on the device, and the server clock is used when
// no time is given.
type punchRequest struct {
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	DeviceClass string     `json:"deviceClass" validate:"omitempty,oneof=mobile tablet desktop unknown"`
	Time        *time.Time `json:"time"`
}

func (p punchRequest) input(r *http.Request) service.PunchInput {
	in := service.PunchInput{
		Coordinates: model.NewCoordinates(p.Latitude, p.Longitude),
		DeviceClass: model.DeviceClass(p.DeviceClass),
	}
	if p.Time != nil {
		in.Time = *p.Time
	}
	if in.DeviceClass == "" {
		in.DeviceClass = deviceClassFromUA(r.UserAgent())
	}
	return in
}

// deviceClassFromUA is a coarse guess for clients that do not report their class.
func deviceClassFromUA(ua string) model.DeviceClass {
	ua = strings.ToLower(ua)
	switch {
	case ua == "":
		return model.DeviceUnknown
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return model.DeviceTablet
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return model.DeviceTablet
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return model.DeviceMobile
	case strings.Contains(ua, "windows") || strings.Contains(ua, "macintosh") || strings.Contains(ua, "x11") || strings.Contains(ua, "cros"):
		return model.DeviceDesktop
	}
	return model.DeviceUnknown
}

// readPunch decodes an optional body; an empty body is a punch without location.
func (h *Handler) readPunch(w http.ResponseWriter, r *http.Request) (service.PunchInput, bool) {
	var req punchRequest
	if !h.decodeBody(w, r, &req, true) {
		return service.PunchInput{}, false
	}
	return req.input(r), true
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	in, ok := h.readPunch(w, r)
	if !ok {
		return
	}
	session, err := h.attendance.CheckIn(r.Context(), actor, in)
	if err != nil {
		respondError(w, r, "check-in", err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	in, ok := h.readPunch(w, r)
	if !ok {
		return
	}
	session, err := h.attendance.CheckOut(r.Context(), actor, in)
	if err != nil {
		respondError(w, r, "check-out", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleListMySessions(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	h.listSessions(w, r, actor, actor.WorkerID)
}

func (h *Handler) handleListWorkerSessions(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	h.listSessions(w, r, actor, chi.URLParam(r, "workerId"))
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request, actor model.Identity, workerID string) {
	sessions, err := h.attendance.ListSessions(r.Context(), actor, workerID)
	if err != nil {
		respondError(w, r, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	session, err := h.attendance.OpenSession(r.Context(), actor)
	if err != nil {
		respondError(w, r, "open session", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	if err := h.attendance.DeleteSession(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		respondError(w, r, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
