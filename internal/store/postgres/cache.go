package postgres

import (
	"context"
	"time"

	"calboard/internal/cache"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var _ cache.Store = (*CacheStore)(nil)

type CacheStore struct {
	db       *DB
	location *time.Location
}

func NewCacheStore(db *DB, location *time.Location) *CacheStore {
	if location == nil {
		location = time.Local
	}
	return &CacheStore{db: db, location: location}
}

// List reads every item; start_at is text, so ordering happens after parsing.
func (s *CacheStore) List(ctx context.Context) ([]cache.Item, error) {
	rs, err := s.db.Pool.Query(ctx,
		`SELECT item_id, external_event_id, title, description, location, start_at, end_at,
		 all_day, status, source, synced_at
		 FROM sync_cache ORDER BY start_at ASC`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "error listing cache items")
	}
	defer rs.Close()

	var items []cache.Item
	for rs.Next() {
		var item cache.Item
		if err := rs.Scan(&item.ID, &item.ExternalEventID, &item.Title, &item.Description,
			&item.Location, &item.StartAt, &item.EndAt, &item.AllDay, &item.Status, &item.Source,
			&item.SyncedAt); err != nil {
			return nil, errors.Wrap(err, "error scanning cache item")
		}
		items = append(items, item)
	}
	if err := rs.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading cache items")
	}
	cache.SortByStart(items, s.location)
	return items, nil
}

func (s *CacheStore) Upsert(ctx context.Context, item cache.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO sync_cache (item_id, external_event_id, title, description, location, start_at,
		 end_at, all_day, status, source, synced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (item_id) DO UPDATE SET external_event_id = EXCLUDED.external_event_id,
		 title = EXCLUDED.title, description = EXCLUDED.description, location = EXCLUDED.location,
		 start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at, all_day = EXCLUDED.all_day,
		 status = EXCLUDED.status, source = EXCLUDED.source, synced_at = EXCLUDED.synced_at`,
		item.ID, item.ExternalEventID, item.Title, item.Description, item.Location, item.StartAt,
		item.EndAt, item.AllDay, item.Status, item.Source, item.SyncedAt,
	)
	return errors.Wrap(err, "error upserting cache item")
}

func (s *CacheStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM sync_cache WHERE item_id = $1`, id)
	return errors.Wrap(err, "error deleting cache item")
}
