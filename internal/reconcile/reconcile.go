// Package reconcile derives the daily and weekly schedule views from ScheduleEntry data.
// Everything here is a pure function of its inputs; status depends on the caller's now
// and is never stored.
package reconcile

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"oktel-workforce/internal/model"
)

type Status string

const (
	StatusUpcoming  Status = "Upcoming"
	StatusOngoing   Status = "Ongoing"
	StatusCompleted Status = "Completed"
)

func (s Status) rank() int {
	switch s {
	case StatusUpcoming:
		return 0
	case StatusOngoing:
		return 1
	}
	return 2
}

// Hours is max(0, end-start) for one entry, in hours. Unparseable times count as zero.
func Hours(e *model.ScheduleEntry) float64 {
	start, err := time.Parse(model.TimeOfDay, e.StartTime)
	if err != nil {
		return 0
	}
	end, err := time.Parse(model.TimeOfDay, e.EndTime)
	if err != nil {
		return 0
	}
	return max(0, end.Sub(start).Hours())
}

func TotalHours(entries []*model.ScheduleEntry) float64 {
	var total float64
	for _, e := range entries {
		total += Hours(e)
	}
	return total
}

// Classify places now relative to the entry's start and end, both inclusive for Ongoing.
func Classify(e *model.ScheduleEntry, now time.Time, loc *time.Location) Status {
	start, end, err := e.Bounds(loc)
	if err != nil {
		return StatusCompleted
	}
	switch {
	case now.Before(start):
		return StatusUpcoming
	case !now.After(end):
		return StatusOngoing
	default:
		return StatusCompleted
	}
}

// WeekNumber counts weeks from January 1 with weeks starting on Saturday: week 1 runs
// from Jan 1 through the first Friday, and each Saturday begins the next week.
func WeekNumber(d time.Time) int {
	jan1 := time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, d.Location())
	offset := (int(jan1.Weekday()) - int(time.Saturday) + 7) % 7
	return (d.YearDay()-1+offset)/7 + 1
}

type Entry struct {
	*model.ScheduleEntry
	Hours  float64 `json:"hours"`
	Status Status  `json:"status"`
}

type Day struct {
	Date       string  `json:"date"`
	DayName    string  `json:"dayName"`
	WeekNumber int     `json:"weekNumber"`
	Entries    []Entry `json:"entries"`
	TotalHours float64 `json:"totalHours"`
}

// Annotate computes hours and status for each entry at now.
func Annotate(entries []*model.ScheduleEntry, now time.Time, loc *time.Location) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, Entry{ScheduleEntry: e, Hours: Hours(e), Status: Classify(e, now, loc)})
	}
	return out
}

// GroupByDate buckets entries by date, ascending; entries within a day are ordered by
// start time, keeping input order on ties.
func GroupByDate(entries []Entry) []Day {
	byDate := make(map[string]*Day)
	var order []string
	for _, e := range entries {
		d, ok := byDate[e.Date]
		if !ok {
			d = &Day{Date: e.Date}
			if t, err := time.Parse(time.DateOnly, e.Date); err == nil {
				d.DayName = t.Weekday().String()
				d.WeekNumber = WeekNumber(t)
			}
			byDate[e.Date] = d
			order = append(order, e.Date)
		}
		d.Entries = append(d.Entries, e)
		d.TotalHours += e.Hours
	}
	slices.Sort(order)

	days := make([]Day, 0, len(order))
	for _, date := range order {
		d := byDate[date]
		slices.SortStableFunc(d.Entries, func(a, b Entry) int {
			return strings.Compare(a.StartTime, b.StartTime)
		})
		days = append(days, *d)
	}
	return days
}

type SortKey string

const (
	SortDate      SortKey = "date"
	SortStartTime SortKey = "startTime"
	SortEndTime   SortKey = "endTime"
	SortSiteName  SortKey = "siteName"
	SortStatus    SortKey = "status"
)

func (k SortKey) Valid() bool {
	switch k {
	case SortDate, SortStartTime, SortEndTime, SortSiteName, SortStatus:
		return true
	}
	return false
}

// Query is the client-side filter/sort state of the schedule list.
type Query struct {
	Filter string
	Sort   SortKey
	Desc   bool
}

// displayDate is the human form the free-text filter matches, e.g. "Monday, 13 January 2025".
func displayDate(date string) string {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return date
	}
	return t.Format("Monday, 02 January 2006")
}

func matches(e Entry, needle string) bool {
	if needle == "" {
		return true
	}
	for _, hay := range []string{e.Date, displayDate(e.Date), e.SiteName} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

func compareBy(key SortKey) func(a, b Entry) int {
	switch key {
	case SortStartTime:
		return func(a, b Entry) int { return strings.Compare(a.StartTime, b.StartTime) }
	case SortEndTime:
		return func(a, b Entry) int { return strings.Compare(a.EndTime, b.EndTime) }
	case SortSiteName:
		return func(a, b Entry) int { return strings.Compare(strings.ToLower(a.SiteName), strings.ToLower(b.SiteName)) }
	case SortStatus:
		return func(a, b Entry) int { return cmp.Compare(a.Status.rank(), b.Status.rank()) }
	default:
		return func(a, b Entry) int {
			if c := strings.Compare(a.Date, b.Date); c != 0 {
				return c
			}
			return strings.Compare(a.StartTime, b.StartTime)
		}
	}
}

// Apply filters and sorts entries. The sort is stable, so ties keep their input order
// in both directions.
func Apply(entries []Entry, q Query) []Entry {
	needle := strings.ToLower(strings.TrimSpace(q.Filter))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if matches(e, needle) {
			out = append(out, e)
		}
	}
	compare := compareBy(q.Sort)
	if q.Desc {
		asc := compare
		compare = func(a, b Entry) int { return asc(b, a) }
	}
	slices.SortStableFunc(out, compare)
	return out
}

type Summary struct {
	Today      string  `json:"today"`
	TodayHours float64 `json:"todayHours"`
	TotalHours float64 `json:"totalHours"`
	Entries    []Entry `json:"entries"`
	Days       []Day   `json:"days"`
}

// Summarize builds the full view: the filtered, sorted list, its day groups, and the
// unfiltered total for today.
func Summarize(entries []*model.ScheduleEntry, q Query, now time.Time, loc *time.Location) Summary {
	if loc == nil {
		loc = time.UTC
	}
	annotated := Annotate(entries, now, loc)
	today := now.In(loc).Format(time.DateOnly)

	s := Summary{Today: today}
	for _, e := range annotated {
		if e.Date == today {
			s.TodayHours += e.Hours
		}
	}
	s.Entries = Apply(annotated, q)
	s.Days = GroupByDate(s.Entries)
	for _, d := range s.Days {
		s.TotalHours += d.TotalHours
	}
	return s
}
