// Package tasks wires the periodic billing jobs onto asynq.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/lexpraxis/backend-lexis/internal/lock"
	"github.com/lexpraxis/backend-lexis/internal/notify"
	"github.com/lexpraxis/backend-lexis/internal/receivables"
)

// Task type names. The scheduler enqueues these on a cron cadence; handlers
// below consume them.
const (
	TypeOverdueSweep    = "receivables:overdue_sweep"
	TypeDueSoonScan     = "receivables:due_soon_scan"
	TypeWebhookDispatch = "webhooks:dispatch"
)

// Handlers executes the scheduled jobs. Every handler takes a short Redis
// lock so overlapping workers skip the cycle instead of doubling the work.
type Handlers struct {
	Receivables  *receivables.Service
	Dispatcher   *notify.Dispatcher
	Locker       lock.Locker
	LockTTL      time.Duration
	WebhookBatch int
	Log          zerolog.Logger
}

// Register attaches the handlers to an asynq mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeOverdueSweep, h.HandleOverdueSweep)
	mux.HandleFunc(TypeDueSoonScan, h.HandleDueSoonScan)
	mux.HandleFunc(TypeWebhookDispatch, h.HandleWebhookDispatch)
}

// HandleOverdueSweep flips receivables past due date to overdue.
func (h *Handlers) HandleOverdueSweep(ctx context.Context, _ *asynq.Task) error {
	return h.withLock(ctx, "lock:overdue-sweep", func(ctx context.Context) error {
		n, err := h.Receivables.SweepOverdue(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			h.Log.Info().Int("flipped", n).Msg("overdue sweep")
		}
		return nil
	})
}

// HandleDueSoonScan announces receivables entering the due-soon window.
func (h *Handlers) HandleDueSoonScan(ctx context.Context, _ *asynq.Task) error {
	return h.withLock(ctx, "lock:due-soon-scan", func(ctx context.Context) error {
		n, err := h.Receivables.AnnounceDueSoon(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			h.Log.Info().Int("announced", n).Msg("due-soon scan")
		}
		return nil
	})
}

// HandleWebhookDispatch drains a batch of due webhook deliveries.
func (h *Handlers) HandleWebhookDispatch(ctx context.Context, _ *asynq.Task) error {
	return h.withLock(ctx, "lock:webhook-dispatch", func(ctx context.Context) error {
		batch := h.WebhookBatch
		if batch <= 0 {
			batch = 20
		}
		return h.Dispatcher.WorkOnce(ctx, batch)
	})
}

func (h *Handlers) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	ttl := h.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	err := h.Locker.TryWithLock(ctx, key, ttl, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil
	}
	return err
}

// ScheduleEntry pairs a cron spec with a task type.
type ScheduleEntry struct {
	Cronspec string
	Type     string
}

// DefaultSchedule is the production cadence: webhook dispatch every minute,
// due-soon scan hourly, overdue sweep at 03:10 daily.
func DefaultSchedule() []ScheduleEntry {
	return []ScheduleEntry{
		{Cronspec: "* * * * *", Type: TypeWebhookDispatch},
		{Cronspec: "0 * * * *", Type: TypeDueSoonScan},
		{Cronspec: "10 3 * * *", Type: TypeOverdueSweep},
	}
}

// RegisterSchedule registers the entries on an asynq scheduler.
func RegisterSchedule(sched *asynq.Scheduler, entries []ScheduleEntry) error {
	for _, entry := range entries {
		if _, err := sched.Register(entry.Cronspec, asynq.NewTask(entry.Type, nil)); err != nil {
			return err
		}
	}
	return nil
}
