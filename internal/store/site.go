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

type SiteStore struct {
	sites *mongo.Collection
}

func NewSiteStore(ctx context.Context, db *MongoDB) (*SiteStore, error) {
	sites := db.Collection("sites")

	if _, err := sites.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create sites indexes: %w", err)
	}

	return &SiteStore{sites: sites}, nil
}

func (s *SiteStore) Insert(ctx context.Context, site *model.Site) error {
	now := time.Now()
	site.CreatedAt = now
	site.UpdatedAt = now
	res, err := s.sites.InsertOne(ctx, site)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateSite
	}
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	site.ID = res.InsertedID.(bson.ObjectID)
	return nil
}

// List returns all sites in registry order (creation order).
func (s *SiteStore) List(ctx context.Context) ([]model.Site, error) {
	cursor, err := s.sites.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find sites: %w", err)
	}
	var results []model.Site
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	return results, nil
}

func (s *SiteStore) Get(ctx context.Context, id bson.ObjectID) (*model.Site, error) {
	var site model.Site
	err := s.sites.FindOne(ctx, bson.M{"_id": id}).Decode(&site)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find site: %w", err)
	}
	return &site, nil
}

// SetLocation back-fills coordinates and map link. The name is never changed.
func (s *SiteStore) SetLocation(ctx context.Context, id bson.ObjectID, coords *model.Coordinates, mapLink string) (*model.Site, error) {
	set := bson.M{"coordinates": coords, "updated_at": time.Now()}
	if mapLink != "" {
		set["map_link"] = mapLink
	}
	var site model.Site
	err := s.sites.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&site)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update site: %w", err)
	}
	return &site, nil
}

func (s *SiteStore) Delete(ctx context.Context, id bson.ObjectID) (bool, error) {
	res, err := s.sites.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete site: %w", err)
	}
	return res.DeletedCount > 0, nil
}
