package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"oktel-workforce/internal/model"
)

type sessionBackend interface {
	Insert(ctx context.Context, session *model.Session) error
	FindOpen(ctx context.Context, workerID string) (*model.Session, error)
	Close(ctx context.Context, id bson.ObjectID, checkOut model.Punch) (*model.Session, error)
	Get(ctx context.Context, id bson.ObjectID) (*model.Session, error)
	ListByWorker(ctx context.Context, workerID string) ([]*model.Session, error)
	Delete(ctx context.Context, id bson.ObjectID) (bool, error)
}

type siteBackend interface {
	Insert(ctx context.Context, site *model.Site) error
	List(ctx context.Context) ([]model.Site, error)
	Get(ctx context.Context, id bson.ObjectID) (*model.Site, error)
	SetLocation(ctx context.Context, id bson.ObjectID, coords *model.Coordinates, mapLink string) (*model.Site, error)
	Delete(ctx context.Context, id bson.ObjectID) (bool, error)
}

type scheduleBackend interface {
	Insert(ctx context.Context, entry *model.ScheduleEntry) error
	Get(ctx context.Context, id bson.ObjectID) (*model.ScheduleEntry, error)
	Update(ctx context.Context, entry *model.ScheduleEntry) (bool, error)
	Delete(ctx context.Context, id bson.ObjectID) (bool, error)
	ListByWorker(ctx context.Context, workerID string) ([]*model.ScheduleEntry, error)
	ListByDate(ctx context.Context, date string, siteID *bson.ObjectID) ([]*model.ScheduleEntry, error)
	DetachSite(ctx context.Context, siteID bson.ObjectID) (int64, error)
}

func testSessionContract(t *testing.T, s sessionBackend) {
	ctx := context.Background()
	t0 := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	first := &model.Session{WorkerID: "w1", CheckIn: model.Punch{Time: t0, DeviceClass: model.DeviceMobile}}
	require.NoError(t, s.Insert(ctx, first))
	assert.False(t, first.ID.IsZero())

	dup := &model.Session{WorkerID: "w1", CheckIn: model.Punch{Time: t0.Add(time.Minute)}}
	assert.ErrorIs(t, s.Insert(ctx, dup), ErrOpenSessionExists)

	other := &model.Session{WorkerID: "w2", CheckIn: model.Punch{Time: t0}}
	require.NoError(t, s.Insert(ctx, other))

	open, err := s.FindOpen(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, first.ID, open.ID)

	closed, err := s.Close(ctx, first.ID, model.Punch{Time: t0.Add(8 * time.Hour), SiteName: "Main Office"})
	require.NoError(t, err)
	require.NotNil(t, closed)
	require.NotNil(t, closed.CheckOut)
	assert.Equal(t, "Main Office", closed.CheckOut.SiteName)
	assert.False(t, closed.Open)

	again, err := s.Close(ctx, first.ID, model.Punch{Time: t0.Add(9 * time.Hour)})
	require.NoError(t, err)
	assert.Nil(t, again)

	open, err = s.FindOpen(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, open)

	second := &model.Session{WorkerID: "w1", CheckIn: model.Punch{Time: t0.Add(24 * time.Hour)}}
	require.NoError(t, s.Insert(ctx, second))

	list, err := s.ListByWorker(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	deleted, err := s.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	missing, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testSiteContract(t *testing.T, s siteBackend) {
	ctx := context.Background()

	office := &model.Site{Name: "Main Office", Coordinates: &model.Coordinates{Lat: 10.77, Lon: 106.70}}
	require.NoError(t, s.Insert(ctx, office))
	yard := &model.Site{Name: "Yard"}
	require.NoError(t, s.Insert(ctx, yard))
	assert.ErrorIs(t, s.Insert(ctx, &model.Site{Name: "Yard"}), ErrDuplicateSite)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Main Office", list[0].Name)
	assert.Equal(t, "Yard", list[1].Name)

	updated, err := s.SetLocation(ctx, yard.ID, &model.Coordinates{Lat: 1, Lon: 2}, "https://maps.example/yard")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Yard", updated.Name)
	assert.Equal(t, 2.0, updated.Coordinates.Lon)
	assert.Equal(t, "https://maps.example/yard", updated.MapLink)

	none, err := s.SetLocation(ctx, bson.NewObjectID(), nil, "")
	require.NoError(t, err)
	assert.Nil(t, none)

	deleted, err := s.Delete(ctx, office.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	got, err := s.Get(ctx, office.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testScheduleContract(t *testing.T, s scheduleBackend) {
	ctx := context.Background()
	siteID := bson.NewObjectID()

	late := &model.ScheduleEntry{WorkerID: "w1", Date: "2025-01-13", StartTime: "13:00", EndTime: "17:00", Category: model.CategoryWork}
	early := &model.ScheduleEntry{WorkerID: "w1", Date: "2025-01-13", StartTime: "09:00", EndTime: "12:00", SiteID: &siteID, SiteName: "Main Office", Category: model.CategoryWork}
	prev := &model.ScheduleEntry{WorkerID: "w1", Date: "2025-01-12", StartTime: "22:00", EndTime: "23:00", Category: model.CategoryTraining}
	other := &model.ScheduleEntry{WorkerID: "w2", Date: "2025-01-13", StartTime: "08:00", EndTime: "16:00", SiteID: &siteID, SiteName: "Main Office", Category: model.CategoryWork}
	for _, e := range []*model.ScheduleEntry{late, early, prev, other} {
		require.NoError(t, s.Insert(ctx, e))
	}

	list, err := s.ListByWorker(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []bson.ObjectID{prev.ID, early.ID, late.ID}, []bson.ObjectID{list[0].ID, list[1].ID, list[2].ID})

	roster, err := s.ListByDate(ctx, "2025-01-13", &siteID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, other.ID, roster[0].ID)

	all, err := s.ListByDate(ctx, "2025-01-13", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	late.EndTime = "18:00"
	found, err := s.Update(ctx, late)
	require.NoError(t, err)
	assert.True(t, found)
	got, err := s.Get(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, "18:00", got.EndTime)

	n, err := s.DetachSite(ctx, siteID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	got, err = s.Get(ctx, early.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SiteID)
	assert.Equal(t, "Main Office", got.SiteName)

	deleted, err := s.Delete(ctx, late.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	found, err = s.Update(ctx, late)
	require.NoError(t, err)
	assert.False(t, found)
}
