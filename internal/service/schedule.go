package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"oktel-workforce/internal/apperr"
	"oktel-workforce/internal/broadcast"
	"oktel-workforce/internal/geofence"
	"oktel-workforce/internal/metrics"
	"oktel-workforce/internal/model"
	"oktel-workforce/internal/reconcile"
)

type ScheduleRepository interface {
	Insert(ctx context.Context, entry *model.ScheduleEntry) error
	Get(ctx context.Context, id bson.ObjectID) (*model.ScheduleEntry, error)
	Update(ctx context.Context, entry *model.ScheduleEntry) (bool, error)
	Delete(ctx context.Context, id bson.ObjectID) (bool, error)
	ListByWorker(ctx context.Context, workerID string) ([]*model.ScheduleEntry, error)
	ListByDate(ctx context.Context, date string, siteID *bson.ObjectID) ([]*model.ScheduleEntry, error)
	DetachSite(ctx context.Context, siteID bson.ObjectID) (int64, error)
}

type AssignInput struct {
	WorkerID  string
	Date      string
	StartTime string
	EndTime   string
	SiteID    string
	SiteName  string
	Category  model.Category
}

// UpdateInput holds the fields to change; nil leaves a field as is.
type UpdateInput struct {
	Date      *string
	StartTime *string
	EndTime   *string
	SiteID    *string
	SiteName  *string
	Category  *model.Category
}

// ScheduleService manages assigned shifts. Entries may overlap for the same worker
// and day; split shifts and double bookings are both allowed.
type ScheduleService struct {
	entries ScheduleRepository
	sites   *geofence.Registry
	events  broadcast.Publisher
	metrics *metrics.Metrics
	loc     *time.Location
}

func NewScheduleService(entries ScheduleRepository, sites *geofence.Registry, events broadcast.Publisher, m *metrics.Metrics, loc *time.Location) *ScheduleService {
	if loc == nil {
		loc = time.UTC
	}
	return &ScheduleService{entries: entries, sites: sites, events: events, metrics: m, loc: loc}
}

func (s *ScheduleService) Assign(ctx context.Context, actor model.Identity, in AssignInput) (*model.ScheduleEntry, error) {
	if !actor.IsManager() {
		return nil, apperr.Forbidden("error.forbidden", nil)
	}
	entry := &model.ScheduleEntry{
		WorkerID:  strings.TrimSpace(in.WorkerID),
		Date:      strings.TrimSpace(in.Date),
		StartTime: strings.TrimSpace(in.StartTime),
		EndTime:   strings.TrimSpace(in.EndTime),
		Category:  in.Category,
		CreatedBy: actor.WorkerID,
	}
	if entry.WorkerID == "" {
		return nil, apperr.Validation("error.missing_field", map[string]any{"Field": "workerId"})
	}
	if entry.Category == "" {
		entry.Category = model.CategoryWork
	}
	if err := s.attachSite(entry, in.SiteID, in.SiteName); err != nil {
		return nil, err
	}
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	if err := s.entries.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert schedule entry: %w", err)
	}
	s.changed("assign")
	s.emit(model.EventAssignedShiftCreated, entry.WorkerID, entry)
	return entry, nil
}

func (s *ScheduleService) Update(ctx context.Context, actor model.Identity, id string, in UpdateInput) (*model.ScheduleEntry, error) {
	if !actor.IsManager() {
		return nil, apperr.Forbidden("error.forbidden", nil)
	}
	entry, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Date != nil {
		entry.Date = strings.TrimSpace(*in.Date)
	}
	if in.StartTime != nil {
		entry.StartTime = strings.TrimSpace(*in.StartTime)
	}
	if in.EndTime != nil {
		entry.EndTime = strings.TrimSpace(*in.EndTime)
	}
	if in.Category != nil {
		entry.Category = *in.Category
	}
	if in.SiteID != nil || in.SiteName != nil {
		var siteID, siteName string
		if in.SiteID != nil {
			siteID = *in.SiteID
		}
		if in.SiteName != nil {
			siteName = *in.SiteName
		}
		if err := s.attachSite(entry, siteID, siteName); err != nil {
			return nil, err
		}
	}
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	found, err := s.entries.Update(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("update schedule entry: %w", err)
	}
	if !found {
		return nil, apperr.NotFound("error.schedule_not_found", map[string]any{"ID": id})
	}
	s.changed("update")
	s.emit(model.EventAssignedShiftUpdated, entry.WorkerID, entry)
	return entry, nil
}

// Remove deletes an entry and notifies the owning worker with its id.
func (s *ScheduleService) Remove(ctx context.Context, actor model.Identity, id string) error {
	if !actor.IsManager() {
		return apperr.Forbidden("error.forbidden", nil)
	}
	entry, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.entries.Delete(ctx, entry.ID)
	if err != nil {
		return fmt.Errorf("delete schedule entry: %w", err)
	}
	if !deleted {
		return apperr.NotFound("error.schedule_not_found", map[string]any{"ID": id})
	}
	s.changed("remove")
	s.emit(model.EventAssignedShiftDeleted, entry.WorkerID, model.DeletedRef{ID: entry.ID.Hex()})
	return nil
}

// ListForWorker returns the worker's entries by date, then start time.
func (s *ScheduleService) ListForWorker(ctx context.Context, actor model.Identity, workerID string) ([]*model.ScheduleEntry, error) {
	if workerID == "" {
		return nil, apperr.Validation("error.missing_field", map[string]any{"Field": "workerId"})
	}
	if !actor.CanRead(workerID) {
		return nil, apperr.Forbidden("error.forbidden", nil)
	}
	entries, err := s.entries.ListByWorker(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	return entries, nil
}

// Summary is the reconciliation view of the worker's schedule at now.
func (s *ScheduleService) Summary(ctx context.Context, actor model.Identity, workerID string, q reconcile.Query, now time.Time) (reconcile.Summary, error) {
	if q.Sort != "" && !q.Sort.Valid() {
		return reconcile.Summary{}, apperr.Validation("error.invalid_field", map[string]any{"Field": "sort"})
	}
	entries, err := s.ListForWorker(ctx, actor, workerID)
	if err != nil {
		return reconcile.Summary{}, err
	}
	return reconcile.Summarize(entries, q, now, s.loc), nil
}

// Roster lists every worker's entries on date, optionally at one site.
func (s *ScheduleService) Roster(ctx context.Context, actor model.Identity, date, siteID string) ([]*model.ScheduleEntry, error) {
	if !actor.IsManager() {
		return nil, apperr.Forbidden("error.forbidden", nil)
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, apperr.Validation("error.invalid_field", map[string]any{"Field": "date"}).Wrap(err)
	}
	var site *bson.ObjectID
	if siteID != "" {
		oid, err := parseID(siteID)
		if err != nil {
			return nil, err
		}
		site = &oid
	}
	entries, err := s.entries.ListByDate(ctx, date, site)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return entries, nil
}

func (s *ScheduleService) get(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	entry, err := s.entries.Get(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("get schedule entry: %w", err)
	}
	if entry == nil {
		return nil, apperr.NotFound("error.schedule_not_found", map[string]any{"ID": id})
	}
	return entry, nil
}

// attachSite links the entry to a registered site and snapshots its name. A name that
// matches no site is kept as a free-text label.
func (s *ScheduleService) attachSite(entry *model.ScheduleEntry, siteID, siteName string) error {
	siteID = strings.TrimSpace(siteID)
	siteName = strings.TrimSpace(siteName)
	switch {
	case siteID != "":
		oid, err := parseID(siteID)
		if err != nil {
			return err
		}
		site, ok := s.sites.Get(oid)
		if !ok {
			return apperr.Validation("error.unknown_site", map[string]any{"ID": siteID})
		}
		entry.SiteID = &site.ID
		entry.SiteName = site.Name
	case siteName != "":
		entry.SiteID = nil
		entry.SiteName = siteName
		if site, ok := s.sites.FindByName(siteName); ok {
			entry.SiteID = &site.ID
		}
	default:
		entry.SiteID = nil
		entry.SiteName = ""
	}
	return nil
}

func validateEntry(e *model.ScheduleEntry) error {
	if e.Date == "" {
		return apperr.Validation("error.missing_field", map[string]any{"Field": "date"})
	}
	if _, err := time.Parse(time.DateOnly, e.Date); err != nil {
		return apperr.Validation("error.invalid_field", map[string]any{"Field": "date"}).Wrap(err)
	}
	if e.StartTime == "" {
		return apperr.Validation("error.missing_field", map[string]any{"Field": "startTime"})
	}
	if e.EndTime == "" {
		return apperr.Validation("error.missing_field", map[string]any{"Field": "endTime"})
	}
	start, err := time.Parse(model.TimeOfDay, e.StartTime)
	if err != nil {
		return apperr.Validation("error.invalid_field", map[string]any{"Field": "startTime"}).Wrap(err)
	}
	end, err := time.Parse(model.TimeOfDay, e.EndTime)
	if err != nil {
		return apperr.Validation("error.invalid_field", map[string]any{"Field": "endTime"}).Wrap(err)
	}
	if !end.After(start) {
		return apperr.Validation("error.invalid_time_range", nil)
	}
	if !e.Category.Valid() {
		return apperr.Validation("error.invalid_field", map[string]any{"Field": "category"})
	}
	return nil
}

func (s *ScheduleService) emit(typ model.EventType, workerID string, payload any) {
	broadcast.Emit(s.events, model.Event{Type: typ, WorkerID: workerID, Payload: payload, At: time.Now()})
}

func (s *ScheduleService) changed(op string) {
	if s.metrics != nil {
		s.metrics.ScheduleChanges.WithLabelValues(op).Inc()
	}
}
