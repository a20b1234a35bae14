package recurrence

import (
	"time"

	"github.com/pkg/errors"
)

// ErrScheduleNotFound is returned by schedule stores for an unknown id.
var ErrScheduleNotFound = errors.New("schedule not found")

type Kind string

const (
	None    Kind = "none"
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
)

// Rule describes how a schedule repeats. A rule of kind None (or an empty
// kind) is never consulted beyond its kind.
type Rule struct {
	Type     Kind           `json:"type" yaml:"type"`
	Interval int            `json:"interval,omitempty" yaml:"interval,omitempty"`
	Until    *time.Time     `json:"until,omitempty" yaml:"until,omitempty"`
	Weekdays []time.Weekday `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
}

// MaxInterval bounds Step so that budget * 7 * step days stays far inside
// the range time.Time arithmetic handles without wrapping.
const MaxInterval = 100 * 366

// Step returns the interval clamped to [1, MaxInterval].
func (r Rule) Step() int {
	switch {
	case r.Interval < 1:
		return 1
	case r.Interval > MaxInterval:
		return MaxInterval
	}
	return r.Interval
}

// UntilBound returns the exclusive upper bound derived from Until. Until is
// inclusive of its whole calendar day.
func (r Rule) UntilBound() (time.Time, bool) {
	if r.Until == nil || r.Until.IsZero() {
		return time.Time{}, false
	}
	y, m, d := r.Until.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.Until.Location()).AddDate(0, 0, 1), true
}

// Days returns the deduplicated weekday set of a weekly rule, falling back to
// the weekday of start when nothing valid is configured.
func (r Rule) Days(start time.Time) []time.Weekday {
	seen := make(map[time.Weekday]bool, len(r.Weekdays))
	days := make([]time.Weekday, 0, len(r.Weekdays))
	for _, wd := range r.Weekdays {
		if wd < time.Sunday || wd > time.Saturday || seen[wd] {
			continue
		}
		seen[wd] = true
		days = append(days, wd)
	}
	if len(days) == 0 {
		days = append(days, start.Weekday())
	}
	return days
}

type Schedule struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Location    string     `json:"location,omitempty" yaml:"location,omitempty"`
	Color       string     `json:"color,omitempty" yaml:"color,omitempty"`
	Start       time.Time  `json:"start" yaml:"start"`
	End         *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
	Rule        Rule       `json:"rule" yaml:"rule"`
	Author      string     `json:"author" yaml:"author"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" yaml:"updatedAt"`
}

// Duration is zero when the schedule has no end or the end precedes the start.
func (s *Schedule) Duration() time.Duration {
	if s.End == nil || s.End.Before(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Occurrence is a derived instance of a schedule. It is never persisted.
type Occurrence struct {
	// Key identifies the occurrence for display stability only.
	Key      string
	At       time.Time
	End      time.Time
	Schedule *Schedule
}
