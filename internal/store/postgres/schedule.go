package postgres

import (
	"context"
	"time"

	"calboard/internal/recurrence"

	"github.com/pkg/errors"
)

var ErrNotFound = recurrence.ErrScheduleNotFound

const scheduleColumns = `schedule_id, author, title, description, location, color, start_time, end_time,
	rule_type, rule_interval, rule_until, rule_weekdays, created_at, updated_at`

type ScheduleRepository struct {
	db *DB
}

func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) ListSchedules(ctx context.Context, author string) ([]recurrence.Schedule, error) {
	rs, err := r.db.Pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedule WHERE author = $1 ORDER BY start_time ASC`,
		author,
	)
	if err != nil {
		return nil, errors.Wrap(err, "error listing schedules")
	}
	defer rs.Close()
	return scanSchedules(rs)
}

func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (recurrence.Schedule, error) {
	rs, err := r.db.Pool.Query(ctx, `SELECT `+scheduleColumns+` FROM schedule WHERE schedule_id = $1`, id)
	if err != nil {
		return recurrence.Schedule{}, errors.Wrap(err, "error getting schedule")
	}
	defer rs.Close()
	out, err := scanSchedules(rs)
	if err != nil {
		return recurrence.Schedule{}, err
	}
	if len(out) == 0 {
		return recurrence.Schedule{}, ErrNotFound
	}
	return out[0], nil
}

func (r *ScheduleRepository) CreateSchedule(ctx context.Context, s *recurrence.Schedule) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO schedule (`+scheduleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.Author, s.Title, s.Description, s.Location, s.Color, s.Start, s.End,
		string(s.Rule.Type), s.Rule.Interval, s.Rule.Until, weekdaysToInts(s.Rule.Weekdays),
		s.CreatedAt, s.UpdatedAt,
	)
	return errors.Wrap(err, "error creating schedule")
}

func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, s *recurrence.Schedule) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE schedule SET title = $1, description = $2, location = $3, color = $4, start_time = $5,
		 end_time = $6, rule_type = $7, rule_interval = $8, rule_until = $9, rule_weekdays = $10,
		 updated_at = $11
		 WHERE schedule_id = $12 AND author = $13`,
		s.Title, s.Description, s.Location, s.Color, s.Start, s.End, string(s.Rule.Type),
		s.Rule.Interval, s.Rule.Until, weekdaysToInts(s.Rule.Weekdays), s.UpdatedAt, s.ID, s.Author,
	)
	if err != nil {
		return errors.Wrap(err, "error updating schedule")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM schedule WHERE schedule_id = $1`, id)
	return errors.Wrap(err, "error deleting schedule")
}

func scanSchedules(rs rows) ([]recurrence.Schedule, error) {
	var out []recurrence.Schedule
	for rs.Next() {
		var (
			s        recurrence.Schedule
			ruleType string
			weekdays []int32
			end      *time.Time
			until    *time.Time
		)
		if err := rs.Scan(&s.ID, &s.Author, &s.Title, &s.Description, &s.Location, &s.Color,
			&s.Start, &end, &ruleType, &s.Rule.Interval, &until, &weekdays,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "error scanning schedule")
		}
		s.End = end
		s.Rule.Type = recurrence.Kind(ruleType)
		s.Rule.Until = until
		for _, wd := range weekdays {
			s.Rule.Weekdays = append(s.Rule.Weekdays, time.Weekday(wd))
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rs.Err(), "error reading schedules")
}

func weekdaysToInts(days []time.Weekday) []int32 {
	out := make([]int32, 0, len(days))
	for _, wd := range days {
		out = append(out, int32(wd))
	}
	return out
}
