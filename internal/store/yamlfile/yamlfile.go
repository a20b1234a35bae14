// Package yamlfile stores schedules in a single YAML document, for boards
// run without a database.
package yamlfile

import (
	"context"
	"os"
	"sort"
	"sync"

	"calboard/internal/recurrence"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrNotFound = recurrence.ErrScheduleNotFound

type document struct {
	Schedules []recurrence.Schedule `yaml:"schedules"`
}

type Store struct {
	fname    string
	fileLock *sync.RWMutex
}

func New(fname string) *Store {
	return &Store{fname: fname, fileLock: &sync.RWMutex{}}
}

func (s *Store) ListSchedules(_ context.Context, author string) ([]recurrence.Schedule, error) {
	s.fileLock.RLock()
	defer s.fileLock.RUnlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]recurrence.Schedule, 0, len(doc.Schedules))
	for _, sc := range doc.Schedules {
		if author == "" || sc.Author == author {
			out = append(out, sc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (s *Store) GetSchedule(_ context.Context, id string) (recurrence.Schedule, error) {
	s.fileLock.RLock()
	defer s.fileLock.RUnlock()
	doc, err := s.read()
	if err != nil {
		return recurrence.Schedule{}, err
	}
	for _, sc := range doc.Schedules {
		if sc.ID == id {
			return sc, nil
		}
	}
	return recurrence.Schedule{}, ErrNotFound
}

func (s *Store) CreateSchedule(_ context.Context, sc *recurrence.Schedule) error {
	return s.modify(func(doc *document) error {
		doc.Schedules = append(doc.Schedules, *sc)
		return nil
	})
}

func (s *Store) UpdateSchedule(_ context.Context, sc *recurrence.Schedule) error {
	return s.modify(func(doc *document) error {
		for i := range doc.Schedules {
			if doc.Schedules[i].ID == sc.ID {
				doc.Schedules[i] = *sc
				return nil
			}
		}
		return ErrNotFound
	})
}

func (s *Store) DeleteSchedule(_ context.Context, id string) error {
	return s.modify(func(doc *document) error {
		for i := range doc.Schedules {
			if doc.Schedules[i].ID == id {
				doc.Schedules = append(doc.Schedules[:i], doc.Schedules[i+1:]...)
				return nil
			}
		}
		return nil
	})
}

func (s *Store) modify(fn func(doc *document) error) error {
	s.fileLock.Lock()
	defer s.fileLock.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "error encoding schedules")
	}
	return errors.Wrap(os.WriteFile(s.fname, out, 0644), "error writing schedules")
}

func (s *Store) read() (document, error) {
	var doc document
	body, err := os.ReadFile(s.fname)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, errors.Wrap(err, "error reading schedules")
	}
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return doc, errors.Wrap(err, "error decoding schedules")
	}
	return doc, nil
}
