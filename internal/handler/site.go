package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"oktel-workforce/internal/model"
)

type siteRequest struct {
	Name      string   `json:"name" validate:"required,max=200"`
	Latitude  *float64 `json:"latitude" validate:"required_with=Longitude,omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"required_with=Latitude,omitempty,longitude"`
	MapLink   string   `json:"externalMapLink" validate:"omitempty,url"`
}

type coordinatesRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	MapLink   string   `json:"externalMapLink" validate:"omitempty,url"`
}

type resolveResponse struct {
	Coordinates model.Coordinates `json:"coordinates"`
	Site        *model.Site       `json:"site"`
}

func (h *Handler) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	if !actor.IsManager() {
		writeError(w, r, http.StatusForbidden, "forbidden", "error.forbidden", nil)
		return
	}
	var req siteRequest
	if !h.decode(w, r, &req) {
		return
	}
	site, err := h.sites.Register(r.Context(), actor, req.Name, model.NewCoordinates(req.Latitude, req.Longitude), req.MapLink)
	if err != nil {
		respondError(w, r, "register site", err)
		return
	}
	writeJSON(w, http.StatusCreated, site)
}

func (h *Handler) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites := h.sites.List()
	if sites == nil {
		sites = []model.Site{}
	}
	writeJSON(w, http.StatusOK, sites)
}

func (h *Handler) handleSetCoordinates(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	if !actor.IsManager() {
		writeError(w, r, http.StatusForbidden, "forbidden", "error.forbidden", nil)
		return
	}
	var req coordinatesRequest
	if !h.decode(w, r, &req) {
		return
	}
	site, err := h.sites.SetLocation(r.Context(), actor, chi.URLParam(r, "id"), model.NewCoordinates(req.Latitude, req.Longitude), req.MapLink)
	if err != nil {
		respondError(w, r, "set site coordinates", err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (h *Handler) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	if err := h.sites.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		respondError(w, r, "delete site", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResolveSite answers which site a point falls in. No match is a normal result
// with a null site, so the client shows raw coordinates.
func (h *Handler) handleResolveSite(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	lat, errLat := strconv.ParseFloat(params.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(params.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, r, http.StatusBadRequest, "validation", "error.invalid_field", map[string]any{"Field": "lat/lon"})
		return
	}
	coords := model.NewCoordinates(&lat, &lon)
	if coords == nil {
		writeError(w, r, http.StatusBadRequest, "validation", "error.invalid_field", map[string]any{"Field": "lat/lon"})
		return
	}
	resp := resolveResponse{Coordinates: *coords}
	if site, ok := h.sites.Resolve(coords); ok {
		resp.Site = &site
	}
	writeJSON(w, http.StatusOK, resp)
}
