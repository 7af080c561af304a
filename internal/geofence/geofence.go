// Package geofence maps raw coordinates to registered work sites.
package geofence

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"

	"oktel-workforce/internal/model"
)

const (
	EarthRadiusKm = 6371.0
	// RadiusKm is the geofence radius: a point within 100 m of a site resolves to it.
	RadiusKm = 0.1
)

// DistanceKm is the haversine great-circle distance between a and b.
func DistanceKm(a, b model.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Registry holds the ordered set of sites. Readers get an immutable snapshot;
// writers replace the whole slice, so a scan never observes a partial update.
type Registry struct {
	mu    sync.Mutex // serializes writers
	sites atomic.Pointer[[]model.Site]
}

func NewRegistry(sites []model.Site) *Registry {
	r := &Registry{}
	r.Replace(sites)
	return r
}

// Snapshot returns the current sites in registry order. Callers must not modify it.
func (r *Registry) Snapshot() []model.Site {
	if p := r.sites.Load(); p != nil {
		return *p
	}
	return nil
}

// Replace swaps in a new site list, keeping the given order.
func (r *Registry) Replace(sites []model.Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := slices.Clone(sites)
	r.sites.Store(&cp)
}

// Put inserts site at the end of the registry, or updates it in place when the ID exists.
func (r *Registry) Put(site model.Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := slices.Clone(r.Snapshot())
	if i := slices.IndexFunc(cp, func(s model.Site) bool { return s.ID == site.ID }); i >= 0 {
		cp[i] = site
	} else {
		cp = append(cp, site)
	}
	r.sites.Store(&cp)
}

func (r *Registry) Remove(id bson.ObjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := slices.DeleteFunc(slices.Clone(r.Snapshot()), func(s model.Site) bool { return s.ID == id })
	r.sites.Store(&cp)
}

func (r *Registry) Get(id bson.ObjectID) (model.Site, bool) {
	for _, s := range r.Snapshot() {
		if s.ID == id {
			return s, true
		}
	}
	return model.Site{}, false
}

func (r *Registry) FindByName(name string) (model.Site, bool) {
	for _, s := range r.Snapshot() {
		if s.Name == name {
			return s, true
		}
	}
	return model.Site{}, false
}

// Resolve returns the first site, in registry order, whose coordinates lie within
// RadiusKm of c. It is not necessarily the closest one. Nil or invalid input
// resolves to nothing.
func (r *Registry) Resolve(c *model.Coordinates) (model.Site, bool) {
	if c == nil || !c.Valid() {
		return model.Site{}, false
	}
	for _, s := range r.Snapshot() {
		if s.Coordinates == nil {
			continue
		}
		if DistanceKm(*c, *s.Coordinates) <= RadiusKm {
			return s, true
		}
	}
	return model.Site{}, false
}

// ResolveName is Resolve reduced to the label stored on a punch.
func (r *Registry) ResolveName(c *model.Coordinates) string {
	if s, ok := r.Resolve(c); ok {
		return s.Name
	}
	return ""
}
