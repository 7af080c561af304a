package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Category string

const (
	CategoryWork     Category = "Work"
	CategoryDayOff   Category = "DayOff"
	CategorySick     Category = "Sick"
	CategoryVacation Category = "Vacation"
	CategoryTraining Category = "Training"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryWork, CategoryDayOff, CategorySick, CategoryVacation, CategoryTraining:
		return true
	}
	return false
}

// TimeOfDay is the layout of ScheduleEntry start and end times.
const TimeOfDay = "15:04"

// ScheduleEntry is a manager-assigned shift. It has no link to Session.
type ScheduleEntry struct {
	ID        bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	WorkerID  string         `bson:"worker_id" json:"workerId"`
	Date      string         `bson:"date" json:"date"`            // YYYY-MM-DD
	StartTime string         `bson:"start_time" json:"startTime"` // HH:MM
	EndTime   string         `bson:"end_time" json:"endTime"`     // HH:MM
	SiteID    *bson.ObjectID `bson:"site_id,omitempty" json:"siteId,omitempty"`
	// SiteName is a snapshot; it survives site deletion.
	SiteName  string    `bson:"site_name" json:"siteName"`
	Category  Category  `bson:"category" json:"category"`
	CreatedBy string    `bson:"created_by" json:"createdBy"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Bounds returns the entry's start and end instants in loc.
func (e *ScheduleEntry) Bounds(loc *time.Location) (start, end time.Time, err error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err = time.ParseInLocation(time.DateOnly+" "+TimeOfDay, e.Date+" "+e.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = time.ParseInLocation(time.DateOnly+" "+TimeOfDay, e.Date+" "+e.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
