package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"oktel-workforce/internal/model"
	"oktel-workforce/internal/reconcile"
	"oktel-workforce/internal/service"
)

type assignRequest struct {
	WorkerID  string `json:"workerId" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" validate:"required,datetime=15:04"`
	EndTime   string `json:"endTime" validate:"required,datetime=15:04"`
	SiteID    string `json:"siteId" validate:"omitempty,mongodb"`
	SiteName  string `json:"siteName" validate:"omitempty,max=200"`
	Category  string `json:"category" validate:"omitempty,oneof=Work DayOff Sick Vacation Training"`
}

type updateRequest struct {
	Date      *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime *string `json:"startTime" validate:"omitempty,datetime=15:04"`
	EndTime   *string `json:"endTime" validate:"omitempty,datetime=15:04"`
	SiteID    *string `json:"siteId" validate:"omitempty"`
	SiteName  *string `json:"siteName" validate:"omitempty,max=200"`
	Category  *string `json:"category" validate:"omitempty,oneof=Work DayOff Sick Vacation Training"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	if !actor.IsManager() {
		writeError(w, r, http.StatusForbidden, "forbidden", "error.forbidden", nil)
		return
	}
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.schedule.Assign(r.Context(), actor, service.AssignInput{
		WorkerID:  req.WorkerID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		SiteID:    req.SiteID,
		SiteName:  req.SiteName,
		Category:  model.Category(req.Category),
	})
	if err != nil {
		respondError(w, r, "assign schedule entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	if !actor.IsManager() {
		writeError(w, r, http.StatusForbidden, "forbidden", "error.forbidden", nil)
		return
	}
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := service.UpdateInput{
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		SiteID:    req.SiteID,
		SiteName:  req.SiteName,
	}
	if req.Category != nil {
		c := model.Category(*req.Category)
		in.Category = &c
	}
	entry, err := h.schedule.Update(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, "update schedule entry", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	if err := h.schedule.Remove(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		respondError(w, r, "remove schedule entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListMySchedule(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	h.listSchedule(w, r, actor, actor.WorkerID)
}

func (h *Handler) handleListWorkerSchedule(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	h.listSchedule(w, r, actor, chi.URLParam(r, "workerId"))
}

func (h *Handler) listSchedule(w http.ResponseWriter, r *http.Request, actor model.Identity, workerID string) {
	entries, err := h.schedule.ListForWorker(r.Context(), actor, workerID)
	if err != nil {
		respondError(w, r, "list schedule", err)
		return
	}
	if entries == nil {
		entries = []*model.ScheduleEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleMySummary(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	h.summary(w, r, actor, actor.WorkerID)
}

func (h *Handler) handleWorkerSummary(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	h.summary(w, r, actor, chi.URLParam(r, "workerId"))
}

// summary serves the reconciliation view; q, sort and order carry the list's
// filter and sort state.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request, actor model.Identity, workerID string) {
	params := r.URL.Query()
	q := reconcile.Query{
		Filter: params.Get("q"),
		Sort:   reconcile.SortKey(params.Get("sort")),
	}
	switch strings.ToLower(params.Get("order")) {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		writeError(w, r, http.StatusBadRequest, "validation", "error.invalid_field", map[string]any{"Field": "order"})
		return
	}
	summary, err := h.schedule.Summary(r.Context(), actor, workerID, q, h.now())
	if err != nil {
		respondError(w, r, "schedule summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRoster(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	params := r.URL.Query()
	entries, err := h.schedule.Roster(r.Context(), actor, params.Get("date"), params.Get("siteId"))
	if err != nil {
		respondError(w, r, "roster", err)
		return
	}
	if entries == nil {
		entries = []*model.ScheduleEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
