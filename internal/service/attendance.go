package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"oktel-workforce/internal/apperr"
	"oktel-workforce/internal/broadcast"
	"oktel-workforce/internal/geofence"
	"oktel-workforce/internal/lock"
	"oktel-workforce/internal/metrics"
	"oktel-workforce/internal/model"
	"oktel-workforce/internal/store"
)

type SessionRepository interface {
	Insert(ctx context.Context, session *model.Session) error
	FindOpen(ctx context.Context, workerID string) (*model.Session, error)
	Close(ctx context.Context, id bson.ObjectID, checkOut model.Punch) (*model.Session, error)
	Get(ctx context.Context, id bson.ObjectID) (*model.Session, error)
	ListByWorker(ctx context.Context, workerID string) ([]*model.Session, error)
	Delete(ctx context.Context, id bson.ObjectID) (bool, error)
}

// PunchInput is a check-in or check-out request after boundary normalization.
// Coordinates is nil when the client had no location fix.
type PunchInput struct {
	Time        time.Time
	Coordinates *model.Coordinates
	DeviceClass model.DeviceClass
}

type AttendanceService struct {
	sessions SessionRepository
	sites    *geofence.Registry
	locker   lock.Locker
	events   broadcast.Publisher
	metrics  *metrics.Metrics
	loc      *time.Location
}

func NewAttendanceService(sessions SessionRepository, sites *geofence.Registry, locker lock.Locker, events broadcast.Publisher, m *metrics.Metrics, loc *time.Location) *AttendanceService {
	if loc == nil {
		loc = time.UTC
	}
	return &AttendanceService{sessions: sessions, sites: sites, locker: locker, events: events, metrics: m, loc: loc}
}

// lockWorker is the serialization point for a worker's attendance writes.
func (s *AttendanceService) lockWorker(ctx context.Context, workerID string) (func(), error) {
	release, err := s.locker.Lock(ctx, "attendance:"+workerID)
	if errors.Is(err, lock.ErrBusy) {
		return nil, apperr.Conflict("error.attendance_busy", nil).Wrap(err)
	}
	if err != nil {
		return nil, fmt.Errorf("lock worker %s: %w", workerID, err)
	}
	return release, nil
}

func (s *AttendanceService) CheckIn(ctx context.Context, actor model.Identity, in PunchInput) (*model.Session, error) {
	session, err := s.checkIn(ctx, actor, in)
	s.count("check_in", err)
	return session, err
}

func (s *AttendanceService) checkIn(ctx context.Context, actor model.Identity, in PunchInput) (*model.Session, error) {
	if actor.WorkerID == "" {
		return nil, apperr.Forbidden("error.forbidden", nil)
	}

	release, err := s.lockWorker(ctx, actor.WorkerID)
	if err != nil {
		return nil, err
	}
	defer release()

	open, err := s.sessions.FindOpen(ctx, actor.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	if open != nil {
		return nil, apperr.Conflict("error.session_open", nil)
	}

	session := &model.Session{
		WorkerID: actor.WorkerID,
		CheckIn:  s.punch(in),
	}
	// The session, with its resolved site, is written in one insert that is not
	// abandoned if the client goes away mid-request.
	if err := s.sessions.Insert(context.WithoutCancel(ctx), session); err != nil {
		if errors.Is(err, store.ErrOpenSessionExists) {
			return nil, apperr.Conflict("error.session_open", nil).Wrap(err)
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}

	s.emit(model.EventSessionCreated, session.WorkerID, s.view(session))
	return session, nil
}

func (s *AttendanceService) CheckOut(ctx context.Context, actor model.Identity, in PunchInput) (*model.Session, error) {
	session, err := s.checkOut(ctx, actor, in)
	s.count("check_out", err)
	return session, err
}

func (s *AttendanceService) checkOut(ctx context.Context, actor model.Identity, in PunchInput) (*model.Session, error) {
	if actor.WorkerID == "" {
		return nil, apperr.Forbidden("error.forbidden", nil)
	}

	release, err := s.lockWorker(ctx, actor.WorkerID)
	if err != nil {
		return nil, err
	}
	defer release()

	open, err := s.sessions.FindOpen(ctx, actor.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	if open == nil {
		return nil, apperr.NotFound("error.no_open_session", nil)
	}

	// Check-out location is resolved on its own; it may differ from the check-in site.
	out := s.punch(in)
	if out.Time.Before(open.CheckIn.Time) {
		return nil, apperr.Validation("error.checkout_before_checkin", nil)
	}
	session, err := s.sessions.Close(context.WithoutCancel(ctx), open.ID, out)
	if err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}
	if session == nil {
		return nil, apperr.NotFound("error.no_open_session", nil)
	}

	s.emit(model.EventSessionUpdated, session.WorkerID, s.view(session))
	return session, nil
}

// OpenSession returns the worker's open session.
func (s *AttendanceService) OpenSession(ctx context.Context, actor model.Identity) (*model.SessionView, error) {
	open, err := s.sessions.FindOpen(ctx, actor.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	if open == nil {
		return nil, apperr.NotFound("error.no_open_session", nil)
	}
	v := s.view(open)
	return &v, nil
}

// ListSessions returns workerID's sessions, newest first, with display projections.
func (s *AttendanceService) ListSessions(ctx context.Context, actor model.Identity, workerID string) ([]model.SessionView, error) {
	if workerID == "" {
		return nil, apperr.Validation("error.missing_field", map[string]any{"Field": "workerId"})
	}
	if !actor.CanRead(workerID) {
		return nil, apperr.Forbidden("error.forbidden", nil)
	}
	sessions, err := s.sessions.ListByWorker(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	views := make([]model.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, s.view(session))
	}
	return views, nil
}

// DeleteSession removes a session unconditionally. Managers only.
func (s *AttendanceService) DeleteSession(ctx context.Context, actor model.Identity, id string) error {
	if !actor.IsManager() {
		return apperr.Forbidden("error.forbidden", nil)
	}
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	session, err := s.sessions.Get(ctx, oid)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return apperr.NotFound("error.session_not_found", map[string]any{"ID": id})
	}
	deleted, err := s.sessions.Delete(ctx, oid)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !deleted {
		return apperr.NotFound("error.session_not_found", map[string]any{"ID": id})
	}

	slog.Info("session deleted", "session_id", id, "worker_id", session.WorkerID, "by", actor.WorkerID)
	s.emit(model.EventSessionDeleted, session.WorkerID, model.DeletedRef{ID: id})
	return nil
}

func (s *AttendanceService) punch(in PunchInput) model.Punch {
	t := in.Time
	if t.IsZero() {
		t = time.Now()
	}
	device := in.DeviceClass
	if device == "" {
		device = model.DeviceUnknown
	}
	return model.Punch{
		Time:        t.UTC(),
		Coordinates: in.Coordinates,
		SiteName:    s.sites.ResolveName(in.Coordinates),
		DeviceClass: device,
	}
}

func (s *AttendanceService) view(session *model.Session) model.SessionView {
	return model.NewSessionView(session, s.loc)
}

func (s *AttendanceService) emit(typ model.EventType, workerID string, payload any) {
	broadcast.Emit(s.events, model.Event{Type: typ, WorkerID: workerID, Payload: payload, At: time.Now()})
}

func (s *AttendanceService) count(action string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(apperr.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	s.metrics.Attendance.WithLabelValues(action, result).Inc()
}

func parseID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, apperr.Validation("error.invalid_id", map[string]any{"ID": id}).Wrap(err)
	}
	return oid, nil
}
