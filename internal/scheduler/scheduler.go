// Package scheduler runs the automatic weekly adaptation sweep over every
// user with an active program.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron"
)

// UserLister enumerates users eligible for adaptation. *storage.DB
// implements it.
type UserLister interface {
	ListActiveProgramUsers(ctx context.Context) ([]int, error)
}

// AdaptFunc adapts a single user's active program by one week.
type AdaptFunc func(ctx context.Context, userID int) error

// Scheduler wraps a cron runner around the adaptation sweep. One failing
// user never blocks the rest of the sweep.
type Scheduler struct {
	cron     *cron.Cron
	users    UserLister
	adaptOne AdaptFunc
	log      *slog.Logger
	timeout  time.Duration
}

// New creates a Scheduler. Call Start to begin the cron loop.
func New(users UserLister, adaptOne AdaptFunc, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		users:    users,
		adaptOne: adaptOne,
		log:      log,
		timeout:  5 * time.Minute,
	}
}

// Start registers the sweep under the given cron spec (e.g. "@weekly" or
// "0 0 6 * * 1") and starts the runner.
func (s *Scheduler) Start(spec string) error {
	if err := s.cron.AddFunc(spec, s.run); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("adaptation scheduler started", "spec", spec)
	return nil
}

// Stop halts the cron runner. A sweep already in flight finishes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	adapted, failed := s.RunOnce(ctx)
	s.log.Info("adaptation sweep finished", "adapted", adapted, "failed", failed)
}

// RunOnce sweeps all active programs once and reports how many users were
// adapted and how many failed.
func (s *Scheduler) RunOnce(ctx context.Context) (adapted, failed int) {
	ids, err := s.users.ListActiveProgramUsers(ctx)
	if err != nil {
		s.log.Error("adaptation sweep: listing users", "error", err)
		return 0, 0
	}

	for _, id := range ids {
		if err := s.adaptOne(ctx, id); err != nil {
			s.log.Error("adaptation sweep: user failed", "user_id", id, "error", err)
			failed++
			continue
		}
		adapted++
	}
	return adapted, failed
}
