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

// SessionStore persists attendance sessions in the "sessions" collection.
type SessionStore struct {
	sessions *mongo.Collection
}

func NewSessionStore(ctx context.Context, db *MongoDB) (*SessionStore, error) {
	sessions := db.Collection("sessions")

	if _, err := sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "worker_id", Value: 1}, {Key: "check_in.time", Value: -1}}},
		{
			// At most one open session per worker, enforced by the database.
			Keys: bson.D{{Key: "worker_id", Value: 1}},
			Options: options.Index().
				SetName("one_open_session_per_worker").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "open", Value: true}}),
		},
	}); err != nil {
		return nil, fmt.Errorf("create sessions indexes: %w", err)
	}

	return &SessionStore{sessions: sessions}, nil
}

// Insert stores a new open session and sets its ID.
func (s *SessionStore) Insert(ctx context.Context, session *model.Session) error {
	now := time.Now()
	session.Open = session.CheckOut == nil
	session.CreatedAt = now
	session.UpdatedAt = now
	res, err := s.sessions.InsertOne(ctx, session)
	if mongo.IsDuplicateKeyError(err) {
		return ErrOpenSessionExists
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	session.ID = res.InsertedID.(bson.ObjectID)
	return nil
}

// FindOpen returns the worker's open session, or nil if there is none.
func (s *SessionStore) FindOpen(ctx context.Context, workerID string) (*model.Session, error) {
	var session model.Session
	err := s.sessions.FindOne(ctx, bson.M{"worker_id": workerID, "open": true}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return &session, nil
}

// Close adds the check-out punch to an open session in one atomic update.
// It returns nil if the session does not exist or is already closed.
func (s *SessionStore) Close(ctx context.Context, id bson.ObjectID, checkOut model.Punch) (*model.Session, error) {
	var session model.Session
	err := s.sessions.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "open": true},
		bson.M{"$set": bson.M{
			"check_out":  checkOut,
			"open":       false,
			"updated_at": time.Now(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) Get(ctx context.Context, id bson.ObjectID) (*model.Session, error) {
	var session model.Session
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// ListByWorker returns the worker's sessions, newest check-in first.
func (s *SessionStore) ListByWorker(ctx context.Context, workerID string) ([]*model.Session, error) {
	cursor, err := s.sessions.Find(ctx,
		bson.M{"worker_id": workerID},
		options.Find().SetSort(bson.D{{Key: "check_in.time", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	var results []*model.Session
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return results, nil
}

// Delete removes a session. It reports whether a document was removed.
func (s *SessionStore) Delete(ctx context.Context, id bson.ObjectID) (bool, error) {
	res, err := s.sessions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return res.DeletedCount > 0, nil
}
