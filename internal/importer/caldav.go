package importer

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"calboard/internal/cache"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ CalImporter = (*CalDAV)(nil)

const SourceCalDAV = "caldav"

// CalDAV queries a calendar collection for events overlapping the range.
type CalDAV struct {
	cl       *caldav.Client
	path     string
	location *time.Location
}

func NewCalDAV(endpoint, user, pass string, location *time.Location) (*CalDAV, error) {
	var httpClient webdav.HTTPClient = http.DefaultClient
	if user != "" && pass != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient, user, pass)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing caldav url")
	}
	cl, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "error creating caldav client")
	}
	if location == nil {
		location = time.Local
	}
	return &CalDAV{cl: cl, path: u.Path, location: location}, nil
}

func (c *CalDAV) Fetch(ctx context.Context, start, end time.Time) ([]cache.Item, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{{Name: ical.CompEvent, Start: start, End: end}},
		},
	}
	objects, err := c.cl.QueryCalendar(ctx, c.path, query)
	if err != nil {
		return nil, errors.Wrap(err, "error querying caldav calendar")
	}
	var events []Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, event := range obj.Data.Events() {
			ev, ok := c.event(event)
			if !ok {
				log.Warn().Str("path", obj.Path).Msg("skipping caldav event without start")
				continue
			}
			events = append(events, ev)
		}
	}
	return Items(events, start, end, SourceCalDAV, c.location), nil
}

func (c *CalDAV) event(event ical.Event) (Event, bool) {
	start, err := event.DateTimeStart(c.location)
	if err != nil || start.IsZero() {
		return Event{}, false
	}
	ev := Event{
		UID:         text(event.Props, ical.PropUID),
		Title:       text(event.Props, ical.PropSummary),
		Description: text(event.Props, ical.PropDescription),
		Location:    text(event.Props, ical.PropLocation),
		Status:      text(event.Props, ical.PropStatus),
		Rrule:       text(event.Props, ical.PropRecurrenceRule),
		Start:       start,
	}
	if end, err := event.DateTimeEnd(c.location); err == nil {
		ev.End = end
	}
	if prop := event.Props.Get(ical.PropDateTimeStart); prop != nil {
		ev.AllDay = prop.ValueType() == ical.ValueDate
	}
	return ev, true
}

func text(props ical.Props, name string) string {
	prop := props.Get(name)
	if prop == nil {
		return ""
	}
	return prop.Value
}
