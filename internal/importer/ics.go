package importer

import (
	"context"
	"fmt"
	"io"
	"time"

	"calboard/internal/cache"

	ics "github.com/arran4/golang-ical"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ CalImporter = (*ICSFeed)(nil)

const SourceICS = "ics"

// ICSFeed downloads a whole iCalendar feed and keeps the events in range.
type ICSFeed struct {
	rc       *resty.Client
	url      string
	location *time.Location
}

func NewICSFeed(url, user, pass string, location *time.Location) *ICSFeed {
	rc := resty.New()
	if user != "" && pass != "" {
		rc.SetBasicAuth(user, pass)
	}
	if location == nil {
		location = time.Local
	}
	return &ICSFeed{rc: rc, url: url, location: location}
}

func (f *ICSFeed) Fetch(ctx context.Context, start, end time.Time) ([]cache.Item, error) {
	resp, err := f.rc.R().SetContext(ctx).SetDoNotParseResponse(true).Get(f.url)
	if err != nil {
		return nil, errors.Wrap(err, "error getting calendar")
	}
	defer resp.RawBody().Close()
	if resp.IsError() {
		return nil, errors.New(fmt.Sprintf("error getting calendar: %s", resp.Status()))
	}
	events, err := ParseICS(resp.RawBody(), f.location)
	if err != nil {
		return nil, err
	}
	return Items(events, start, end, SourceICS, f.location), nil
}

// ParseICS reads VEVENTs from an iCalendar stream. Times without a zone are
// read in the calendar's first VTIMEZONE, or in location when there is none.
func ParseICS(r io.Reader, location *time.Location) ([]Event, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing calendar")
	}
	location = calendarLocation(cal.Timezones(), location)

	events := make([]Event, 0, len(cal.Events()))
	for _, event := range cal.Events() {
		ev := Event{
			UID:         ValueOrEmpty(event.ComponentBase.GetProperty(ics.ComponentPropertyUniqueId)),
			Title:       ValueOrEmpty(event.ComponentBase.GetProperty(ics.ComponentPropertySummary)),
			Description: ValueOrEmpty(event.ComponentBase.GetProperty(ics.ComponentPropertyDescription)),
			Location:    ValueOrEmpty(event.ComponentBase.GetProperty(ics.ComponentPropertyLocation)),
			Status:      ValueOrEmpty(event.ComponentBase.GetProperty(ics.ComponentPropertyStatus)),
			Rrule:       ValueOrEmpty(event.ComponentBase.GetProperty(ics.ComponentPropertyRrule)),
		}
		ev.Start, ev.AllDay = propertyTime(event.ComponentBase.GetProperty(ics.ComponentPropertyDtStart), location)
		ev.End, _ = propertyTime(event.ComponentBase.GetProperty(ics.ComponentPropertyDtEnd), location)
		events = append(events, ev)
	}
	return events, nil
}

func ValueOrEmpty(prop *ics.IANAProperty) string {
	if prop == nil {
		return ""
	}
	return prop.Value
}

func propertyTime(prop *ics.IANAProperty, location *time.Location) (at time.Time, allDay bool) {
	if prop == nil {
		return time.Time{}, false
	}
	if tzid, ok := prop.ICalParameters[string(ics.ParameterTzid)]; ok && len(tzid) > 0 {
		if loc, err := time.LoadLocation(tzid[0]); err == nil {
			location = loc
		}
	}
	allDay = len(prop.Value) == len("20060102")
	if v, ok := prop.ICalParameters[string(ics.ParameterValue)]; ok && len(v) > 0 && v[0] == "DATE" {
		allDay = true
	}
	at, ok := cache.ParseInstant(prop.Value, location)
	if !ok {
		return time.Time{}, false
	}
	return at, allDay
}

func calendarLocation(tzones []*ics.VTimezone, fallback *time.Location) *time.Location {
	if len(tzones) == 0 {
		return fallback
	}
	tzid := ValueOrEmpty(tzones[0].ComponentBase.GetProperty(ics.ComponentPropertyTzid))
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		log.Error().Err(err).Str("timezone", tzid).Msg("error getting location by timezone id")
		return fallback
	}
	return loc
}
