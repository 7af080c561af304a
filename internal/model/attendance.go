package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type DeviceClass string

const (
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceDesktop DeviceClass = "desktop"
	DeviceUnknown DeviceClass = "unknown"
)

// Punch is one side of a session: where and when the worker checked in or out.
type Punch struct {
	Time        time.Time    `bson:"time" json:"time"`
	Coordinates *Coordinates `bson:"coordinates,omitempty" json:"coordinates"`
	SiteName    string       `bson:"site_name,omitempty" json:"resolvedSiteName,omitempty"`
	DeviceClass DeviceClass  `bson:"device_class" json:"deviceClass"`
}

// Session is one check-in/check-out record. CheckOut is nil while the session is open.
type Session struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	WorkerID  string        `bson:"worker_id" json:"workerId"`
	CheckIn   Punch         `bson:"check_in" json:"checkIn"`
	CheckOut  *Punch        `bson:"check_out,omitempty" json:"checkOut"`
	Open      bool          `bson:"open" json:"-"` // mirrors CheckOut == nil; backs the partial unique index
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updatedAt"`
}

func (s *Session) IsOpen() bool {
	return s.CheckOut == nil
}

// Hours is the worked duration in hours, zero while the session is open.
func (s *Session) Hours() float64 {
	if s.CheckOut == nil {
		return 0
	}
	d := s.CheckOut.Time.Sub(s.CheckIn.Time)
	if d < 0 {
		return 0
	}
	return d.Hours()
}

// SessionView is a Session annotated with display projections in a given location.
type SessionView struct {
	*Session
	CheckInDate   string  `json:"checkInDate"`
	CheckInClock  string  `json:"checkInTime"`
	CheckOutDate  string  `json:"checkOutDate,omitempty"`
	CheckOutClock string  `json:"checkOutTime,omitempty"`
	Hours         float64 `json:"hours"`
}

const clock12 = "03:04 PM"

func NewSessionView(s *Session, loc *time.Location) SessionView {
	if loc == nil {
		loc = time.UTC
	}
	in := s.CheckIn.Time.In(loc)
	v := SessionView{
		Session:      s,
		CheckInDate:  in.Format(time.DateOnly),
		CheckInClock: in.Format(clock12),
		Hours:        s.Hours(),
	}
	if s.CheckOut != nil {
		out := s.CheckOut.Time.In(loc)
		v.CheckOutDate = out.Format(time.DateOnly)
		v.CheckOutClock = out.Format(clock12)
	}
	return v
}
