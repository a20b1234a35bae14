package exporter

import (
	"os"
	"sync"
	"time"

	"calboard/internal/recurrence"

	ics "github.com/arran4/golang-ical"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const productID = "-//calboard//occurrences//EN"

// CalExporter publishes expanded occurrences somewhere outside the board.
type CalExporter interface {
	Set(occurrences []recurrence.Occurrence) error
}

var _ CalExporter = (*FileExporter)(nil)

// FileExporter writes occurrences to an iCalendar file, replacing it.
type FileExporter struct {
	fname    string
	fileLock *sync.Mutex
	now      func() time.Time
}

func NewFileExporter(fname string) *FileExporter {
	return &FileExporter{fname: fname, fileLock: &sync.Mutex{}, now: time.Now}
}

func (e *FileExporter) Set(occurrences []recurrence.Occurrence) error {
	body := Calendar(occurrences, e.now()).Serialize()

	e.fileLock.Lock()
	defer e.fileLock.Unlock()
	if err := os.WriteFile(e.fname, []byte(body), 0644); err != nil {
		return errors.Wrap(err, "error writing calendar file")
	}
	log.Info().Str("file", e.fname).Int("occurrences", len(occurrences)).Msg("exported occurrences")
	return nil
}

// Calendar builds one VEVENT per occurrence, keyed by the occurrence key.
func Calendar(occurrences []recurrence.Occurrence, stamp time.Time) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	for _, occ := range occurrences {
		event := cal.AddEvent(occ.Key)
		event.SetDtStampTime(stamp)
		event.SetStartAt(occ.At)
		if !occ.End.IsZero() {
			event.SetEndAt(occ.End)
		}
		if occ.Schedule == nil {
			continue
		}
		event.SetSummary(occ.Schedule.Title)
		if occ.Schedule.Description != "" {
			event.SetDescription(occ.Schedule.Description)
		}
		if occ.Schedule.Location != "" {
			event.SetLocation(occ.Schedule.Location)
		}
		if occ.Schedule.Color != "" {
			event.SetProperty(ics.ComponentPropertyColor, occ.Schedule.Color)
		}
	}
	return cal
}
