package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/provider"
	"github.com/glottahq/glotta/pkg/tasks"
)

// idleSleep is how long a worker backs off after an empty claim; it is also
// the stop-check cadence while the queue is quiet.
const idleSleep = 500 * time.Millisecond

// Worker owns at most one task at a time: claim, fan out one goroutine per
// image, record each outcome, repeat. Workers are created and sized by the
// Pool.
type Worker struct {
	id         string
	tasks      *tasks.Manager
	translator provider.Translator

	busy       atomic.Bool
	processed  atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	log      zerolog.Logger
}

func newWorker(id string, manager *tasks.Manager, translator provider.Translator) *Worker {
	return &Worker{
		id:         id,
		tasks:      manager,
		translator: translator,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		log:        log.WithComponent("worker").With().Str("worker_id", id).Logger(),
	}
}

// Start launches the claim loop.
func (w *Worker) Start() {
	go w.run()
}

// Stop signals the worker to exit. A busy worker finishes its current task
// first; use Wait to join. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Wait blocks until the claim loop has exited.
func (w *Worker) Wait() {
	<-w.done
}

// Busy reports whether the worker currently holds a task.
func (w *Worker) Busy() bool {
	return w.busy.Load()
}

func (w *Worker) run() {
	defer close(w.done)
	w.log.Debug().Msg("worker started")

	for {
		select {
		case <-w.stopCh:
			w.log.Debug().Msg("worker stopped")
			return
		default:
		}

		if !w.cycle() {
			select {
			case <-time.After(idleSleep):
			case <-w.stopCh:
			}
		}
	}
}

// cycle claims and processes at most one task, reporting whether a task was
// claimed. A panic anywhere in the cycle fails the claimed task instead of
// killing the worker; the process-level crash case is the reclaimer's job.
func (w *Worker) cycle() (claimed bool) {
	ctx := context.Background()
	var taskID string

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		w.log.Error().Str("task_id", taskID).Interface("panic", r).Msg("worker panicked")
		if taskID == "" {
			return
		}
		if err := w.tasks.Fail(ctx, taskID, fmt.Sprintf("worker panic: %v", r), 0); err != nil {
			w.log.Error().Err(err).Str("task_id", taskID).Msg("cannot fail task after panic")
		}
		w.processed.Add(1)
		w.failed.Add(1)
		claimed = true
	}()

	taskID, err := w.tasks.ClaimNext(ctx, w.id)
	if err != nil {
		w.log.Warn().Err(err).Msg("claim failed")
		return false
	}
	if taskID == "" {
		return false
	}

	w.busy.Store(true)
	defer w.busy.Store(false)

	w.process(ctx, taskID)
	return true
}

func (w *Worker) process(ctx context.Context, taskID string) {
	start := time.Now()

	task, err := w.tasks.Get(ctx, taskID)
	if err != nil {
		w.failTask(ctx, taskID, fmt.Sprintf("cannot load task: %v", err), start)
		return
	}
	images, err := w.tasks.Images(ctx, taskID)
	if err != nil {
		w.failTask(ctx, taskID, fmt.Sprintf("cannot load image payloads: %v", err), start)
		return
	}

	w.log.Info().
		Str("task_id", taskID).
		Int("images", len(images)).
		Str("language", string(task.TargetLanguage)).
		Msg("processing task")

	// A truncated payload list fails the missing slots; the rest proceed.
	for i := len(images); i < task.TotalImages; i++ {
		if err := w.tasks.FailImage(ctx, taskID, i, "image payload missing"); err != nil {
			w.log.Error().Err(err).Str("task_id", taskID).Int("image", i).Msg("cannot record missing payload")
		}
	}

	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for i, img := range images {
		wg.Add(1)
		go func(index int, payload []byte) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					w.log.Error().Str("task_id", taskID).Int("image", index).Interface("panic", r).Msg("image translation panicked")
					if err := w.tasks.FailImage(ctx, taskID, index, fmt.Sprintf("translation panic: %v", r)); err != nil {
						w.log.Error().Err(err).Str("task_id", taskID).Int("image", index).Msg("cannot record image failure")
					}
				}
			}()

			text, err := w.translator.Translate(ctx, payload, task.TargetLanguage)
			if err != nil {
				w.log.Warn().Err(err).Str("task_id", taskID).Int("image", index).Msg("image translation failed")
				if werr := w.tasks.FailImage(ctx, taskID, index, err.Error()); werr != nil {
					w.log.Error().Err(werr).Str("task_id", taskID).Int("image", index).Msg("cannot record image failure")
				}
				return
			}
			if werr := w.tasks.CompleteImage(ctx, taskID, index, text); werr != nil {
				w.log.Error().Err(werr).Str("task_id", taskID).Int("image", index).Msg("cannot record image result")
				return
			}
			succeeded.Add(1)
		}(i, img)
	}
	wg.Wait()

	w.processed.Add(1)
	if succeeded.Load() > 0 {
		w.successful.Add(1)
	} else {
		w.failed.Add(1)
	}

	w.log.Info().
		Str("task_id", taskID).
		Int64("succeeded", succeeded.Load()).
		Int("images", len(images)).
		Float64("took_seconds", time.Since(start).Seconds()).
		Msg("task processed")
}

// failTask settles the whole task when processing could not even start.
func (w *Worker) failTask(ctx context.Context, taskID, reason string, start time.Time) {
	w.log.Error().Str("task_id", taskID).Str("reason", reason).Msg("task unprocessable")
	if err := w.tasks.Fail(ctx, taskID, reason, time.Since(start).Seconds()); err != nil {
		w.log.Error().Err(err).Str("task_id", taskID).Msg("cannot fail task")
	}
	w.processed.Add(1)
	w.failed.Add(1)
}
