package model

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Coordinates is a WGS84 point in degrees.
type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lon float64 `bson:"lon" json:"lon"`
}

// NewCoordinates normalizes an optional coordinate pair. Missing, non-finite or
// out-of-range values yield nil, which callers treat as "no location".
func NewCoordinates(lat, lon *float64) *Coordinates {
	if lat == nil || lon == nil {
		return nil
	}
	c := Coordinates{Lat: *lat, Lon: *lon}
	if !c.Valid() {
		return nil
	}
	return &c
}

func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Site is a named work location. Coordinates may be back-filled after creation.
type Site struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string        `bson:"name" json:"name"`
	Coordinates *Coordinates  `bson:"coordinates,omitempty" json:"coordinates"`
	MapLink     string        `bson:"map_link,omitempty" json:"externalMapLink,omitempty"`
	CreatedAt   time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updated_at" json:"updatedAt"`
}
