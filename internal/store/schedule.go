package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"oktel-workforce/internal/model"
)

// ScheduleStore keeps every worker's assigned shifts in one collection keyed by worker_id.
type ScheduleStore struct {
	entries *mongo.Collection
}

func NewScheduleStore(ctx context.Context, db *MongoDB) (*ScheduleStore, error) {
	entries := db.Collection("schedule_entries")

	if _, err := entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "worker_id", Value: 1}, {Key: "date", Value: 1}, {Key: "start_time", Value: 1}}},
		{Keys: bson.D{{Key: "date", Value: 1}, {Key: "site_id", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create schedule_entries indexes: %w", err)
	}

	return &ScheduleStore{entries: entries}, nil
}

var scheduleOrder = bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}, {Key: "_id", Value: 1}}

func (s *ScheduleStore) Insert(ctx context.Context, entry *model.ScheduleEntry) error {
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	res, err := s.entries.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("insert schedule entry: %w", err)
	}
	entry.ID = res.InsertedID.(bson.ObjectID)
	return nil
}

func (s *ScheduleStore) Get(ctx context.Context, id bson.ObjectID) (*model.ScheduleEntry, error) {
	var entry model.ScheduleEntry
	err := s.entries.FindOne(ctx, bson.M{"_id": id}).Decode(&entry)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find schedule entry: %w", err)
	}
	return &entry, nil
}

// Update replaces an existing entry. It reports whether the entry was found.
func (s *ScheduleStore) Update(ctx context.Context, entry *model.ScheduleEntry) (bool, error) {
	entry.UpdatedAt = time.Now()
	res, err := s.entries.ReplaceOne(ctx, bson.M{"_id": entry.ID}, entry)
	if err != nil {
		return false, fmt.Errorf("update schedule entry: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *ScheduleStore) Delete(ctx context.Context, id bson.ObjectID) (bool, error) {
	res, err := s.entries.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete schedule entry: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// ListByWorker returns a worker's entries by date, then start time.
func (s *ScheduleStore) ListByWorker(ctx context.Context, workerID string) ([]*model.ScheduleEntry, error) {
	return s.find(ctx, bson.M{"worker_id": workerID})
}

// ListByDate returns every worker's entries on date, optionally restricted to one site.
func (s *ScheduleStore) ListByDate(ctx context.Context, date string, siteID *bson.ObjectID) ([]*model.ScheduleEntry, error) {
	filter := bson.M{"date": date}
	if siteID != nil {
		filter["site_id"] = *siteID
	}
	return s.find(ctx, filter)
}

// DetachSite clears site_id on entries that reference a deleted site; name snapshots stay.
func (s *ScheduleStore) DetachSite(ctx context.Context, siteID bson.ObjectID) (int64, error) {
	res, err := s.entries.UpdateMany(ctx,
		bson.M{"site_id": siteID},
		bson.M{"$unset": bson.M{"site_id": ""}, "$set": bson.M{"updated_at": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("detach site: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *ScheduleStore) find(ctx context.Context, filter bson.M) ([]*model.ScheduleEntry, error) {
	cursor, err := s.entries.Find(ctx, filter, options.Find().SetSort(scheduleOrder))
	if err != nil {
		return nil, fmt.Errorf("find schedule entries: %w", err)
	}
	var results []*model.ScheduleEntry
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode schedule entries: %w", err)
	}
	return results, nil
}
