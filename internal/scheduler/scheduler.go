// Package scheduler wires the cron entries of serve mode: full sync,
// incremental sync and the digest run.
package scheduler

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"jobmate/jobsync/internal/logger"
)

// Task is one scheduled unit of work. A returned error is logged; the
// schedule keeps firing.
type Task func(ctx context.Context) error

// Entry binds a Task to a cron spec. An empty Spec disables the entry.
type Entry struct {
	Name string
	Spec string
	Task Task
}

// Scheduler wraps robfig/cron. Every entry is wrapped with
// SkipIfStillRunning, so a slow run is never overlapped by the next tick.
type Scheduler struct {
	cron    *cron.Cron
	log     *logger.Logger
	entries []Entry
	ids     map[string]cron.EntryID
}

// New builds a Scheduler evaluating specs in the tz location
// (e.g. "Asia/Kolkata").
func New(tz string, log *logger.Logger, entries ...Entry) (*Scheduler, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrapf(err, "load location %q", tz)
	}
	cl := logger.CronLogger{L: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		entries: entries,
		ids:     make(map[string]cron.EntryID, len(entries)),
	}
	return s, nil
}

// Start registers every enabled entry and starts the cron loop. ctx is
// handed to each task run; cancelling it aborts in-flight work.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, e := range s.entries {
		if e.Spec == "" {
			s.log.Info("schedule disabled", "job", e.Name)
			continue
		}
		e := e
		id, err := s.cron.AddFunc(e.Spec, func() { s.run(ctx, e) })
		if err != nil {
			return errors.Wrapf(err, "schedule %s (%q)", e.Name, e.Spec)
		}
		s.ids[e.Name] = id
		s.log.Info("schedule registered", "job", e.Name, "spec", e.Spec)
	}
	s.cron.Start()
	return nil
}

// Next returns the next fire time of the named entry, zero if unknown.
func (s *Scheduler) Next(name string) time.Time {
	id, ok := s.ids[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Upcoming is one registered entry and its next fire time.
type Upcoming struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Upcoming lists the registered entries in registration order.
func (s *Scheduler) Upcoming() []Upcoming {
	out := make([]Upcoming, 0, len(s.ids))
	for _, e := range s.entries {
		if _, ok := s.ids[e.Name]; !ok {
			continue
		}
		out = append(out, Upcoming{Name: e.Name, Spec: e.Spec, Next: s.Next(e.Name)})
	}
	return out
}

// Stop stops the cron loop and waits for running tasks to return or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with tasks still running")
	}
}

func (s *Scheduler) run(ctx context.Context, e Entry) {
	start := time.Now()
	s.log.Info("scheduled job started", "job", e.Name)
	if err := e.Task(ctx); err != nil {
		s.log.Error("scheduled job failed", "job", e.Name, "error", err, "elapsed", time.Since(start).String())
		return
	}
	s.log.Info("scheduled job finished", "job", e.Name, "elapsed", time.Since(start).String())
}
