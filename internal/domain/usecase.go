package domain

import (
	"context"
	"time"

	"calboard/internal/cache"
	"calboard/internal/recurrence"
	"calboard/internal/reconcile"

	"github.com/adhocore/gronx/pkg/tasker"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

var (
	ErrNotOwner = errors.New("schedule belongs to another author")
	ErrNoStart  = errors.New("schedule has no start")
	ErrNotFound = recurrence.ErrScheduleNotFound
)

type ScheduleRepository interface {
	ListSchedules(ctx context.Context, author string) ([]recurrence.Schedule, error)
	GetSchedule(ctx context.Context, id string) (recurrence.Schedule, error)
	CreateSchedule(ctx context.Context, s *recurrence.Schedule) error
	UpdateSchedule(ctx context.Context, s *recurrence.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
}

// View is what a board shows for a window: occurrences derived from the
// caller's schedules and the mirrored external events.
type View struct {
	Occurrences []recurrence.Occurrence
	Synced      []cache.Item
}

type UseCase struct {
	schedules  ScheduleRepository
	controller *reconcile.Controller
	expander   recurrence.Expander
	pool       *pool.ContextPool
	ctx        context.Context
	now        func() time.Time
}

func New(ctx context.Context, schedules ScheduleRepository, controller *reconcile.Controller, expander recurrence.Expander) *UseCase {
	return &UseCase{
		schedules:  schedules,
		controller: controller,
		expander:   expander,
		pool:       pool.New().WithContext(ctx).WithMaxGoroutines(10),
		ctx:        ctx,
		now:        time.Now,
	}
}

// LoadView lists schedules and refreshes the synced range concurrently.
func (uc *UseCase) LoadView(ctx context.Context, caller reconcile.Caller, from, to time.Time, days int) (View, error) {
	var (
		schedules []recurrence.Schedule
		view      View
	)
	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		var err error
		schedules, err = uc.schedules.ListSchedules(ctx, caller.Identity)
		return errors.Wrap(err, "error listing schedules")
	})
	p.Go(func(ctx context.Context) error {
		view.Synced = uc.controller.RefreshRange(ctx, days)
		return nil
	})
	if err := p.Wait(); err != nil {
		return View{}, err
	}
	view.Occurrences = uc.expander.ExpandAll(schedules, from, to)
	return view, nil
}

func (uc *UseCase) CreateSchedule(ctx context.Context, caller reconcile.Caller, s recurrence.Schedule) (recurrence.Schedule, error) {
	if s.Start.IsZero() {
		return recurrence.Schedule{}, ErrNoStart
	}
	now := uc.now()
	s.ID = uuid.NewString()
	s.Author = caller.Identity
	s.CreatedAt = now
	s.UpdatedAt = now
	if err := uc.schedules.CreateSchedule(ctx, &s); err != nil {
		return recurrence.Schedule{}, err
	}
	log.Info().Str("scheduleID", s.ID).Str("author", s.Author).Msg("schedule created")
	return s, nil
}

// UpdateSchedule replaces the editable fields of an existing schedule owned
// by the caller.
func (uc *UseCase) UpdateSchedule(ctx context.Context, caller reconcile.Caller, s recurrence.Schedule) (recurrence.Schedule, error) {
	existing, err := uc.owned(ctx, caller, s.ID)
	if err != nil {
		return recurrence.Schedule{}, err
	}
	if s.Start.IsZero() {
		return recurrence.Schedule{}, ErrNoStart
	}
	s.Author = existing.Author
	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt = uc.now()
	if err := uc.schedules.UpdateSchedule(ctx, &s); err != nil {
		return recurrence.Schedule{}, err
	}
	return s, nil
}

// DeleteSchedule removes a schedule; its occurrences disappear with it.
func (uc *UseCase) DeleteSchedule(ctx context.Context, caller reconcile.Caller, id string) error {
	if _, err := uc.owned(ctx, caller, id); err != nil {
		return err
	}
	if err := uc.schedules.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	log.Info().Str("scheduleID", id).Msg("schedule deleted")
	return nil
}

func (uc *UseCase) owned(ctx context.Context, caller reconcile.Caller, id string) (recurrence.Schedule, error) {
	s, err := uc.schedules.GetSchedule(ctx, id)
	if err != nil {
		return recurrence.Schedule{}, err
	}
	if s.Author != caller.Identity {
		return recurrence.Schedule{}, ErrNotOwner
	}
	return s, nil
}

func (uc *UseCase) SyncOnce(f reconcile.Fetcher, days int) error {
	items, err := uc.controller.Pull(uc.ctx, f, days)
	if err != nil {
		return err
	}
	log.Info().Int("items", len(items)).Msg("synced external calendar")
	return nil
}

func (uc *UseCase) TaskSync(cronExpr string, f reconcile.Fetcher, days int) {
	taskr := tasker.New(tasker.Option{}).WithContext(uc.ctx)
	taskr.Task(cronExpr, func(_ context.Context) (int, error) {
		return 0, uc.SyncOnce(f, days)
	})
	uc.pool.Go(func(ctx context.Context) error {
		taskr.Run()
		return nil
	})
}

func (uc *UseCase) Stop() {
	uc.pool.Wait()
	uc.controller.Wait()
}
