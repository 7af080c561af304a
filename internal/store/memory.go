package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"oktel-workforce/internal/model"
)

// The Memory* stores mirror the Mongo stores for storage=memory and for tests.
// They hand out copies so callers cannot mutate stored state.

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[bson.ObjectID]model.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[bson.ObjectID]model.Session)}
}

func (s *MemorySessionStore) Insert(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.Open = session.CheckOut == nil
	if session.Open {
		for _, existing := range s.sessions {
			if existing.WorkerID == session.WorkerID && existing.Open {
				return ErrOpenSessionExists
			}
		}
	}
	now := time.Now()
	session.ID = bson.NewObjectID()
	session.CreatedAt = now
	session.UpdatedAt = now
	s.sessions[session.ID] = cloneSession(*session)
	return nil
}

func (s *MemorySessionStore) FindOpen(_ context.Context, workerID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.WorkerID == workerID && existing.Open {
			cp := cloneSession(existing)
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemorySessionStore) Close(_ context.Context, id bson.ObjectID, checkOut model.Punch) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sessions[id]
	if !ok || !existing.Open {
		return nil, nil
	}
	existing.CheckOut = &checkOut
	existing.Open = false
	existing.UpdatedAt = time.Now()
	s.sessions[id] = cloneSession(existing)
	cp := cloneSession(existing)
	return &cp, nil
}

func (s *MemorySessionStore) Get(_ context.Context, id bson.ObjectID) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := cloneSession(existing)
	return &cp, nil
}

func (s *MemorySessionStore) ListByWorker(_ context.Context, workerID string) ([]*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []*model.Session
	for _, existing := range s.sessions {
		if existing.WorkerID == workerID {
			cp := cloneSession(existing)
			results = append(results, &cp)
		}
	}
	slices.SortStableFunc(results, func(a, b *model.Session) int {
		if c := b.CheckIn.Time.Compare(a.CheckIn.Time); c != 0 {
			return c
		}
		return strings.Compare(b.ID.Hex(), a.ID.Hex())
	})
	return results, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id bson.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

func cloneSession(s model.Session) model.Session {
	if s.CheckIn.Coordinates != nil {
		c := *s.CheckIn.Coordinates
		s.CheckIn.Coordinates = &c
	}
	if s.CheckOut != nil {
		out := *s.CheckOut
		if out.Coordinates != nil {
			c := *out.Coordinates
			out.Coordinates = &c
		}
		s.CheckOut = &out
	}
	return s
}

type MemorySiteStore struct {
	mu    sync.Mutex
	sites []model.Site
}

func NewMemorySiteStore() *MemorySiteStore {
	return &MemorySiteStore{}
}

func (s *MemorySiteStore) Insert(_ context.Context, site *model.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sites {
		if existing.Name == site.Name {
			return ErrDuplicateSite
		}
	}
	now := time.Now()
	site.ID = bson.NewObjectID()
	site.CreatedAt = now
	site.UpdatedAt = now
	s.sites = append(s.sites, cloneSite(*site))
	return nil
}

func (s *MemorySiteStore) List(_ context.Context) ([]model.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]model.Site, 0, len(s.sites))
	for _, site := range s.sites {
		results = append(results, cloneSite(site))
	}
	return results, nil
}

func (s *MemorySiteStore) Get(_ context.Context, id bson.ObjectID) (*model.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, site := range s.sites {
		if site.ID == id {
			cp := cloneSite(site)
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemorySiteStore) SetLocation(_ context.Context, id bson.ObjectID, coords *model.Coordinates, mapLink string) (*model.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, site := range s.sites {
		if site.ID != id {
			continue
		}
		site.Coordinates = coords
		if mapLink != "" {
			site.MapLink = mapLink
		}
		site.UpdatedAt = time.Now()
		s.sites[i] = cloneSite(site)
		cp := cloneSite(site)
		return &cp, nil
	}
	return nil, nil
}

func (s *MemorySiteStore) Delete(_ context.Context, id bson.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.sites)
	s.sites = slices.DeleteFunc(s.sites, func(site model.Site) bool { return site.ID == id })
	return len(s.sites) < before, nil
}

func cloneSite(s model.Site) model.Site {
	if s.Coordinates != nil {
		c := *s.Coordinates
		s.Coordinates = &c
	}
	return s
}

type MemoryScheduleStore struct {
	mu      sync.Mutex
	entries map[bson.ObjectID]model.ScheduleEntry
}

func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{entries: make(map[bson.ObjectID]model.ScheduleEntry)}
}

func (s *MemoryScheduleStore) Insert(_ context.Context, entry *model.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	entry.ID = bson.NewObjectID()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.entries[entry.ID] = cloneEntry(*entry)
	return nil
}

func (s *MemoryScheduleStore) Get(_ context.Context, id bson.ObjectID) (*model.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	cp := cloneEntry(entry)
	return &cp, nil
}

func (s *MemoryScheduleStore) Update(_ context.Context, entry *model.ScheduleEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; !ok {
		return false, nil
	}
	entry.UpdatedAt = time.Now()
	s.entries[entry.ID] = cloneEntry(*entry)
	return true, nil
}

func (s *MemoryScheduleStore) Delete(_ context.Context, id bson.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false, nil
	}
	delete(s.entries, id)
	return true, nil
}

func (s *MemoryScheduleStore) ListByWorker(_ context.Context, workerID string) ([]*model.ScheduleEntry, error) {
	return s.filter(func(e model.ScheduleEntry) bool { return e.WorkerID == workerID }), nil
}

func (s *MemoryScheduleStore) ListByDate(_ context.Context, date string, siteID *bson.ObjectID) ([]*model.ScheduleEntry, error) {
	return s.filter(func(e model.ScheduleEntry) bool {
		if e.Date != date {
			return false
		}
		return siteID == nil || (e.SiteID != nil && *e.SiteID == *siteID)
	}), nil
}

func (s *MemoryScheduleStore) DetachSite(_ context.Context, siteID bson.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.entries {
		if e.SiteID != nil && *e.SiteID == siteID {
			e.SiteID = nil
			e.UpdatedAt = time.Now()
			s.entries[id] = e
			n++
		}
	}
	return n, nil
}

func (s *MemoryScheduleStore) filter(keep func(model.ScheduleEntry) bool) []*model.ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []*model.ScheduleEntry
	for _, e := range s.entries {
		if keep(e) {
			cp := cloneEntry(e)
			results = append(results, &cp)
		}
	}
	slices.SortFunc(results, func(a, b *model.ScheduleEntry) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		if c := strings.Compare(a.StartTime, b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID.Hex(), b.ID.Hex())
	})
	return results
}

func cloneEntry(e model.ScheduleEntry) model.ScheduleEntry {
	if e.SiteID != nil {
		id := *e.SiteID
		e.SiteID = &id
	}
	return e
}
