package cache

import (
	"context"
	"sort"
	"time"
)

const CalendarTimeFormat = "20060102T150405"

// instant layouts without an explicit offset are read in the caller's location
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	CalendarTimeFormat,
	"20060102",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"20060102T150405Z",
}

// Item is a locally cached copy of an external calendar event.
type Item struct {
	ID              string     `json:"id"`
	ExternalEventID string     `json:"externalEventId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Location        string     `json:"location"`
	StartAt         string     `json:"startAt"`
	EndAt           string     `json:"endAt"`
	AllDay          bool       `json:"allDay"`
	Status          string     `json:"status"`
	Source          string     `json:"source"`
	SyncedAt        *time.Time `json:"syncedAt,omitempty"`
}

func (i Item) GetStartAt(location *time.Location) (startAt time.Time, ok bool) {
	return ParseInstant(i.StartAt, location)
}

func (i Item) GetEndAt(location *time.Location) (endAt time.Time, ok bool) {
	return ParseInstant(i.EndAt, location)
}

// Patch holds the fields of an Item a caller wants to change. Nil fields are
// left untouched.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
	StartAt     *string `json:"startAt,omitempty"`
	EndAt       *string `json:"endAt,omitempty"`
	AllDay      *bool   `json:"allDay,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func (p Patch) Apply(i Item) Item {
	if p.Title != nil {
		i.Title = *p.Title
	}
	if p.Description != nil {
		i.Description = *p.Description
	}
	if p.Location != nil {
		i.Location = *p.Location
	}
	if p.StartAt != nil {
		i.StartAt = *p.StartAt
	}
	if p.EndAt != nil {
		i.EndAt = *p.EndAt
	}
	if p.AllDay != nil {
		i.AllDay = *p.AllDay
	}
	if p.Status != nil {
		i.Status = *p.Status
	}
	return i
}

// Store is the local durable cache of externally sourced items. The refresh
// path only upserts into it and the reconciliation path only deletes or
// patches.
type Store interface {
	// List returns every cached item ordered by start.
	List(ctx context.Context) ([]Item, error)
	Upsert(ctx context.Context, item Item) error
	Delete(ctx context.Context, id string) error
}

// ParseInstant is the single parsing boundary for textual instants coming
// from the cache or the external calendar.
func ParseInstant(s string, location *time.Location) (out time.Time, ok bool) {
	if s == "" {
		return time.Time{}, false
	}
	if location == nil {
		location = time.Local
	}
	for _, layout := range zonedLayouts {
		if out, err := time.Parse(layout, s); err == nil {
			return out, true
		}
	}
	for _, layout := range localLayouts {
		if out, err := time.ParseInLocation(layout, s, location); err == nil {
			return out, true
		}
	}
	return time.Time{}, false
}

// InRange keeps the items whose start falls within [start, end], ordered by
// start. Items with an unparsable start are dropped.
func InRange(items []Item, start, end time.Time, location *time.Location) []Item {
	type parsed struct {
		item Item
		at   time.Time
	}
	kept := make([]parsed, 0, len(items))
	for _, item := range items {
		at, ok := item.GetStartAt(location)
		if !ok || at.Before(start) || at.After(end) {
			continue
		}
		kept = append(kept, parsed{item: item, at: at})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].at.Before(kept[j].at)
	})
	out := make([]Item, 0, len(kept))
	for _, p := range kept {
		out = append(out, p.item)
	}
	return out
}

func ListInRange(ctx context.Context, store Store, start, end time.Time, location *time.Location) ([]Item, error) {
	items, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	return InRange(items, start, end, location), nil
}

// SortByStart orders items by parsed start; unparsable starts go last.
func SortByStart(items []Item, location *time.Location) {
	sort.SliceStable(items, func(i, j int) bool {
		a, aok := items[i].GetStartAt(location)
		b, bok := items[j].GetStartAt(location)
		if aok != bok {
			return aok
		}
		return aok && a.Before(b)
	})
}
