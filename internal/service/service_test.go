package service

import (
	"context"
	"time"

	"oktel-workforce/internal/broadcast"
	"oktel-workforce/internal/geofence"
	"oktel-workforce/internal/lock"
	"oktel-workforce/internal/metrics"
	"oktel-workforce/internal/model"
	"oktel-workforce/internal/store"
)

var (
	manager = model.Identity{WorkerID: "m1", Role: model.RoleManager}
	alice   = model.Identity{WorkerID: "w1", Role: model.RoleWorker}
	bob     = model.Identity{WorkerID: "w2", Role: model.RoleWorker}

	mainOffice = model.Coordinates{Lat: 21.0285, Lon: 105.8542}
	// ~80 m north of mainOffice.
	nearMainOffice = model.Coordinates{Lat: 21.02922, Lon: 105.8542}
)

type fixture struct {
	sessions   *store.MemorySessionStore
	sites      *store.MemorySiteStore
	entries    *store.MemoryScheduleStore
	registry   *geofence.Registry
	hub        *broadcast.Hub
	metrics    *metrics.Metrics
	attendance *AttendanceService
	schedule   *ScheduleService
	siteSvc    *SiteService
}

func newFixture() *fixture {
	f := &fixture{
		sessions: store.NewMemorySessionStore(),
		sites:    store.NewMemorySiteStore(),
		entries:  store.NewMemoryScheduleStore(),
		registry: geofence.NewRegistry(nil),
		metrics:  metrics.New(),
	}
	f.hub = broadcast.NewHub(64, f.metrics)
	f.attendance = NewAttendanceService(f.sessions, f.registry, lock.NewKeyed(), f.hub, f.metrics, time.UTC)
	f.schedule = NewScheduleService(f.entries, f.registry, f.hub, f.metrics, time.UTC)
	f.siteSvc = NewSiteService(f.sites, f.entries, f.registry, f.hub)
	return f
}

func (f *fixture) registerSite(name string, c *model.Coordinates) *model.Site {
	site, err := f.siteSvc.Register(context.Background(), manager, name, c, "")
	if err != nil {
		panic(err)
	}
	return site
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }
