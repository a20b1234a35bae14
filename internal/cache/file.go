package cache

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ Store = (*FileStore)(nil)

type fileContent struct {
	Items    map[string]Item `json:"items"`
	TimeZone string          `json:"timezoneid"`
}

// FileStore keeps the cache as a single JSON document on disk.
type FileStore struct {
	fname    string
	location *time.Location
	fileLock *sync.RWMutex
}

func NewFileStore(fname string, location *time.Location) *FileStore {
	if location == nil {
		location = time.Local
	}
	return &FileStore{fname: fname, location: location, fileLock: &sync.RWMutex{}}
}

func (s *FileStore) List(_ context.Context) ([]Item, error) {
	s.fileLock.RLock()
	defer s.fileLock.RUnlock()
	content, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(content.Items))
	for _, item := range content.Items {
		out = append(out, item)
	}
	SortByStart(out, s.location)
	return out, nil
}

func (s *FileStore) Upsert(_ context.Context, item Item) error {
	s.fileLock.Lock()
	defer s.fileLock.Unlock()
	content, err := s.read()
	if err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	content.Items[item.ID] = item
	return s.write(content)
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	s.fileLock.Lock()
	defer s.fileLock.Unlock()
	content, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := content.Items[id]; !ok {
		log.Debug().Str("itemID", id).Msg("cache item already absent")
		return nil
	}
	delete(content.Items, id)
	return s.write(content)
}

func (s *FileStore) read() (fileContent, error) {
	content := fileContent{Items: make(map[string]Item), TimeZone: s.location.String()}
	f, err := os.OpenFile(s.fname, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return content, errors.Wrap(err, "error opening cache file")
	}
	defer f.Close()
	err = json.NewDecoder(f).Decode(&content)
	if err != nil && !errors.Is(err, io.EOF) {
		return content, errors.Wrap(err, "error decoding cache file")
	}
	if content.Items == nil {
		content.Items = make(map[string]Item)
	}
	return content, nil
}

func (s *FileStore) write(content fileContent) error {
	f, err := os.OpenFile(s.fname, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "error truncating cache file")
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(content); err != nil {
		return errors.Wrap(err, "error encoding cache file")
	}
	return nil
}
