package importer

import (
	"context"
	"time"

	"calboard/internal/cache"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teambition/rrule-go"
)

const dateFormat = "2006-01-02"

// CalImporter reads external calendar events starting within [start, end].
type CalImporter interface {
	Fetch(ctx context.Context, start, end time.Time) ([]cache.Item, error)
}

// Event is a calendar event read from a feed, before range expansion.
type Event struct {
	UID         string
	Title       string
	Description string
	Location    string
	Status      string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Rrule       string
}

// Items turns events into cache items starting within [start, end].
// Recurring events are expanded; each instance gets an id derived from the
// event uid and the instance start so repeated imports overwrite it.
func Items(events []Event, start, end time.Time, source string, location *time.Location) []cache.Item {
	out := make([]cache.Item, 0, len(events))
	for _, ev := range events {
		if ev.Start.IsZero() {
			log.Warn().Str("eventID", ev.UID).Str("eventTitle", ev.Title).Msg("event has no start date")
			continue
		}
		if ev.Rrule == "" {
			if ev.Start.Before(start) || ev.Start.After(end) {
				continue
			}
			out = append(out, ev.item(ev.Start, source, ""))
			continue
		}
		for _, at := range recurrences(ev, start, end, location) {
			id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"|"+ev.UID+"|"+at.UTC().Format(cache.CalendarTimeFormat))).String()
			out = append(out, ev.item(at, source, id))
		}
	}
	cache.SortByStart(out, location)
	return out
}

func recurrences(ev Event, start, end time.Time, location *time.Location) []time.Time {
	rropt, err := rrule.StrToROptionInLocation(ev.Rrule, location)
	if err != nil {
		log.Error().Err(err).
			Str("eventID", ev.UID).
			Str("eventTitle", ev.Title).
			Str("eventRrule", ev.Rrule).
			Msg("event has invalid rrule")
		return nil
	}
	rropt.Dtstart = ev.Start
	rr, err := rrule.NewRRule(*rropt)
	if err != nil {
		log.Error().Err(err).
			Str("eventID", ev.UID).
			Str("eventTitle", ev.Title).
			Str("eventRrule", rropt.RRuleString()).
			Msg("event has invalid rrule")
		return nil
	}
	return rr.Between(start, end, true)
}

func (ev Event) item(at time.Time, source, id string) cache.Item {
	item := cache.Item{
		ID:              id,
		ExternalEventID: ev.UID,
		Title:           ev.Title,
		Description:     ev.Description,
		Location:        ev.Location,
		AllDay:          ev.AllDay,
		Status:          ev.Status,
		Source:          source,
	}
	var endAt time.Time
	if !ev.End.IsZero() && !ev.End.Before(ev.Start) {
		endAt = at.Add(ev.End.Sub(ev.Start))
	}
	if ev.AllDay {
		item.StartAt = at.Format(dateFormat)
		if !endAt.IsZero() {
			item.EndAt = endAt.Format(dateFormat)
		}
		return item
	}
	item.StartAt = at.Format(time.RFC3339)
	if !endAt.IsZero() {
		item.EndAt = endAt.Format(time.RFC3339)
	}
	return item
}
