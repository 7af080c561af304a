package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"oktel-workforce/internal/apperr"
	"oktel-workforce/internal/broadcast"
	"oktel-workforce/internal/geofence"
	"oktel-workforce/internal/model"
	"oktel-workforce/internal/store"
)

type SiteRepository interface {
	Insert(ctx context.Context, site *model.Site) error
	List(ctx context.Context) ([]model.Site, error)
	Get(ctx context.Context, id bson.ObjectID) (*model.Site, error)
	SetLocation(ctx context.Context, id bson.ObjectID, coords *model.Coordinates, mapLink string) (*model.Site, error)
	Delete(ctx context.Context, id bson.ObjectID) (bool, error)
}

// SiteDetacher clears references to a deleted site while keeping name snapshots.
type SiteDetacher interface {
	DetachSite(ctx context.Context, siteID bson.ObjectID) (int64, error)
}

// SiteService owns the Site Registry: it persists sites and keeps the in-memory
// snapshot used by geofence resolution in step with the store.
type SiteService struct {
	sites    SiteRepository
	detacher SiteDetacher
	registry *geofence.Registry
	events   broadcast.Publisher
}

func NewSiteService(sites SiteRepository, detacher SiteDetacher, registry *geofence.Registry, events broadcast.Publisher) *SiteService {
	return &SiteService{sites: sites, detacher: detacher, registry: registry, events: events}
}

// Load replaces the registry snapshot with the stored sites.
func (s *SiteService) Load(ctx context.Context) error {
	sites, err := s.sites.List(ctx)
	if err != nil {
		return fmt.Errorf("load sites: %w", err)
	}
	s.registry.Replace(sites)
	return nil
}

func (s *SiteService) Register(ctx context.Context, actor model.Identity, name string, coords *model.Coordinates, mapLink string) (*model.Site, error) {
	if !actor.IsManager() {
		return nil, apperr.Forbidden("error.forbidden", nil)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("error.missing_field", map[string]any{"Field": "name"})
	}
	site := &model.Site{Name: name, Coordinates: coords, MapLink: strings.TrimSpace(mapLink)}
	if err := s.sites.Insert(ctx, site); err != nil {
		if errors.Is(err, store.ErrDuplicateSite) {
			return nil, apperr.Conflict("error.site_exists", map[string]any{"Name": name}).Wrap(err)
		}
		return nil, fmt.Errorf("insert site: %w", err)
	}
	s.registry.Put(*site)
	s.emit(site)
	return site, nil
}

// List returns the registry snapshot in resolution order.
func (s *SiteService) List() []model.Site {
	return s.registry.Snapshot()
}

// SetLocation back-fills a site's coordinates; the name never changes.
func (s *SiteService) SetLocation(ctx context.Context, actor model.Identity, id string, coords *model.Coordinates, mapLink string) (*model.Site, error) {
	if !actor.IsManager() {
		return nil, apperr.Forbidden("error.forbidden", nil)
	}
	if coords == nil {
		return nil, apperr.Validation("error.invalid_field", map[string]any{"Field": "coordinates"})
	}
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	site, err := s.sites.SetLocation(ctx, oid, coords, strings.TrimSpace(mapLink))
	if err != nil {
		return nil, fmt.Errorf("set site location: %w", err)
	}
	if site == nil {
		return nil, apperr.NotFound("error.site_not_found", map[string]any{"ID": id})
	}
	s.registry.Put(*site)
	s.emit(site)
	return site, nil
}

// Delete removes a site and detaches schedule entries from it. Sessions and entries
// keep their site name snapshots.
func (s *SiteService) Delete(ctx context.Context, actor model.Identity, id string) error {
	if !actor.IsManager() {
		return apperr.Forbidden("error.forbidden", nil)
	}
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	deleted, err := s.sites.Delete(ctx, oid)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	if !deleted {
		return apperr.NotFound("error.site_not_found", map[string]any{"ID": id})
	}
	s.registry.Remove(oid)
	// The site is gone from the store; other registries must drop it even if detaching fails.
	s.emit(model.DeletedRef{ID: id})

	n, err := s.detacher.DetachSite(ctx, oid)
	if err != nil {
		return fmt.Errorf("detach site %s: %w", id, err)
	}
	slog.Info("site deleted", "site_id", id, "detached_entries", n)
	return nil
}

// Resolve maps a coordinate to a site through the geofence.
func (s *SiteService) Resolve(coords *model.Coordinates) (model.Site, bool) {
	return s.registry.Resolve(coords)
}

// Follow reloads the registry whenever a locations-updated event arrives, keeping
// instances that share a store in sync. It returns when ctx is done.
func (s *SiteService) Follow(ctx context.Context, hub *broadcast.Hub) {
	sub := hub.Subscribe(broadcast.LocationsTopic)
	defer hub.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := s.Load(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("reload site registry", "error", err)
			}
		}
	}
}

func (s *SiteService) emit(payload any) {
	broadcast.Emit(s.events, model.Event{Type: model.EventLocationsUpdated, Payload: payload, At: time.Now()})
}
