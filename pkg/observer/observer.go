package observer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/tasks"
	"github.com/glottahq/glotta/pkg/types"
)

// Result is the long-poll snapshot returned to API clients. Success is only
// set once the task is terminal; EstimatedWaitTime only when the poll gave
// up waiting.
type Result struct {
	TaskID             string              `json:"task_id"`
	Status             types.TaskStatus    `json:"status"`
	Success            *bool               `json:"success,omitempty"`
	PartialResults     []types.ImageResult `json:"partial_results"`
	CompletedImages    int                 `json:"completed_images"`
	TotalImages        int                 `json:"total_images"`
	ProgressPercentage float64             `json:"progress_percentage"`
	TranslatedText     string              `json:"translated_text,omitempty"`
	TargetLanguage     types.Language      `json:"target_language"`
	CreatedAt          time.Time           `json:"created_at"`
	StartedAt          *time.Time          `json:"started_at,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	ProcessingTime     float64             `json:"processing_time,omitempty"`
	Error              string              `json:"error,omitempty"`
	EstimatedWaitTime  int                 `json:"estimated_wait_time,omitempty"`
}

// Observer long-polls task records for API clients. It only ever reads;
// polling never mutates a task.
type Observer struct {
	tasks    *tasks.Manager
	maxWait  time.Duration
	interval time.Duration
	log      zerolog.Logger
}

// New builds an Observer polling every interval, with client timeouts
// clamped to maxWait.
func New(manager *tasks.Manager, maxWait, interval time.Duration) *Observer {
	return &Observer{
		tasks:    manager,
		maxWait:  maxWait,
		interval: interval,
		log:      log.WithComponent("observer"),
	}
}

// Await blocks until the task has any terminal image result, the task
// itself is terminal, or timeout elapses; the current snapshot is returned
// in every case, with a wait estimate attached on timeout. Unknown ids
// return tasks.ErrNotFound. Cancelling ctx (client disconnect) stops
// polling without touching the task.
func (o *Observer) Await(ctx context.Context, taskID string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 || timeout > o.maxWait {
		timeout = o.maxWait
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		task, err := o.tasks.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status.Terminal() || task.TerminalCount() > 0 {
			return snapshot(task), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			res := snapshot(task)
			res.EstimatedWaitTime = o.tasks.EstimateWaitTime(ctx)
			o.log.Debug().
				Str("task_id", taskID).
				Dur("waited", timeout).
				Msg("poll timed out before first result")
			return res, nil
		case <-ticker.C:
		}
	}
}

func snapshot(task *types.Task) *Result {
	res := &Result{
		TaskID:             task.TaskID,
		Status:             task.Status,
		PartialResults:     task.PartialResults,
		CompletedImages:    task.TerminalCount(),
		TotalImages:        task.TotalImages,
		ProgressPercentage: task.Progress(),
		TranslatedText:     task.TranslatedText,
		TargetLanguage:     task.TargetLanguage,
		CreatedAt:          task.CreatedAt,
		StartedAt:          task.StartedAt,
		CompletedAt:        task.CompletedAt,
		ProcessingTime:     task.ProcessingTime,
		Error:              task.Error,
	}
	if task.Status.Terminal() {
		success := task.Status == types.TaskStatusCompleted
		res.Success = &success
	}
	return res
}
