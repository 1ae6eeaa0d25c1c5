package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/metrics"
)

// Reclaimer returns stuck tasks to a terminal state. A task stays in the
// processing set when its worker dies mid-flight or a claim is interrupted
// between the queue pop and the record update; the periodic sweep fails
// anything claimed longer than maxAge so clients are not left polling a
// task nobody owns.
type Reclaimer struct {
	manager  *Manager
	interval time.Duration
	maxAge   time.Duration
	log      zerolog.Logger
	stopCh   chan struct{}
}

// NewReclaimer builds a Reclaimer sweeping every interval and failing
// tasks claimed longer than maxAge.
func NewReclaimer(manager *Manager, interval, maxAge time.Duration) *Reclaimer {
	return &Reclaimer{
		manager:  manager,
		interval: interval,
		maxAge:   maxAge,
		log:      log.WithComponent("reclaimer"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (r *Reclaimer) Start() {
	r.log.Info().
		Dur("interval", r.interval).
		Dur("max_age", r.maxAge).
		Msg("reclaimer started")
	go r.run()
}

// Stop terminates the sweep loop.
func (r *Reclaimer) Stop() {
	close(r.stopCh)
	r.log.Info().Msg("reclaimer stopped")
}

func (r *Reclaimer) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// Sweep runs one reclaim cycle. Errors are logged and the cycle moves on;
// a failed sweep never kills the loop.
func (r *Reclaimer) Sweep(ctx context.Context) {
	ids, err := r.manager.store.SMembers(ctx, processingKey)
	if err != nil {
		r.log.Error().Err(err).Msg("cannot list processing tasks")
		return
	}

	now := time.Now().UTC()
	for _, id := range ids {
		r.sweepTask(ctx, id, now)
	}
}

func (r *Reclaimer) sweepTask(ctx context.Context, taskID string, now time.Time) {
	task, err := r.manager.Get(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		// Record expired out from under the claim.
		if err := r.manager.store.SRem(ctx, processingKey, taskID); err != nil {
			r.log.Warn().Err(err).Str("task_id", taskID).Msg("cannot drop orphaned claim")
			return
		}
		r.log.Warn().Str("task_id", taskID).Msg("dropped claim with expired record")
		return
	}
	if err != nil {
		r.log.Error().Err(err).Str("task_id", taskID).Msg("cannot load claimed task")
		return
	}

	if task.Status.Terminal() {
		// Terminal records do not belong in the processing set.
		if err := r.manager.store.SRem(ctx, processingKey, taskID); err != nil {
			r.log.Warn().Err(err).Str("task_id", taskID).Msg("cannot drop settled claim")
		}
		return
	}

	if task.StartedAt == nil {
		r.log.Warn().Str("task_id", taskID).Msg("claimed task has no start timestamp, skipping")
		return
	}

	age := now.Sub(*task.StartedAt)
	if age <= r.maxAge {
		return
	}

	reason := fmt.Sprintf("task timed out after %ds", int(age.Seconds()))
	if err := r.manager.Fail(ctx, taskID, reason, age.Seconds()); err != nil {
		r.log.Error().Err(err).Str("task_id", taskID).Msg("cannot fail stale task")
		return
	}
	metrics.TasksReclaimedTotal.Inc()
	r.log.Warn().
		Str("task_id", taskID).
		Str("worker_id", task.WorkerID).
		Dur("age", age).
		Msg("reclaimed stale task")
}
