package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/metrics"
	"github.com/glottahq/glotta/pkg/store"
	"github.com/glottahq/glotta/pkg/types"
)

// ErrNotFound is returned when a task record does not exist (unknown id or
// expired retention).
var ErrNotFound = errors.New("tasks: task not found")

const (
	queueKey      = "translation_queue"
	processingKey = "processing_tasks"

	// recordTTL bounds task records and image payloads.
	recordTTL = 24 * time.Hour

	// avgImageSeconds feeds the advisory wait estimate.
	avgImageSeconds      = 2.5
	minWaitEstimate      = 2
	maxWaitEstimate      = 300
	fallbackWaitEstimate = 60
)

func taskKey(id string) string   { return "tasks:" + id }
func imagesKey(id string) string { return "task_images:" + id }

// Manager owns the task lifecycle in the coordination store: creation,
// queueing, claiming, per-image result writes, and final aggregation.
// Records are JSON under tasks:{id}; image payloads are a parallel list
// under task_images:{id}; the queue is LPUSH head / BRPOP tail, so ids
// come out in submission order.
type Manager struct {
	store *store.Client
	log   zerolog.Logger
}

// NewManager builds a Manager over the given store client.
func NewManager(st *store.Client) *Manager {
	return &Manager{
		store: st,
		log:   log.WithComponent("tasks"),
	}
}

// Create persists a new task for images and enqueues it. The record and
// every payload are written before the id becomes visible on the queue, so
// any consumer that pops the id can resolve both.
func (m *Manager) Create(ctx context.Context, images [][]byte, lang types.Language) (*types.Task, error) {
	if len(images) == 0 {
		return nil, errors.New("tasks: no images")
	}

	task := &types.Task{
		TaskID:         uuid.NewString(),
		TargetLanguage: lang,
		Status:         types.TaskStatusPending,
		TotalImages:    len(images),
		PartialResults: make([]types.ImageResult, len(images)),
		CreatedAt:      time.Now().UTC(),
	}
	for i := range task.PartialResults {
		task.PartialResults[i] = types.ImageResult{Index: i, Status: types.TaskStatusPending}
	}

	if err := m.persist(ctx, task); err != nil {
		return nil, err
	}

	payloads := make([]string, len(images))
	for i, img := range images {
		payloads[i] = string(img)
	}
	if err := m.store.RPush(ctx, imagesKey(task.TaskID), payloads...); err != nil {
		return nil, err
	}
	if err := m.store.Expire(ctx, imagesKey(task.TaskID), recordTTL); err != nil {
		m.log.Warn().Err(err).Str("task_id", task.TaskID).Msg("cannot bound payload retention")
	}

	if err := m.store.LPush(ctx, queueKey, task.TaskID); err != nil {
		return nil, err
	}

	metrics.TasksCreatedTotal.Inc()
	m.log.Info().
		Str("task_id", task.TaskID).
		Int("images", len(images)).
		Str("language", string(lang)).
		Msg("task created")
	return task, nil
}

// Get loads a task record.
func (m *Manager) Get(ctx context.Context, taskID string) (*types.Task, error) {
	raw, err := m.store.Get(ctx, taskKey(taskID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var task types.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, fmt.Errorf("tasks: decode %s: %w", taskID, err)
	}
	return &task, nil
}

// ClaimNext blocks up to one second for a queued task and claims it for
// workerID: the id joins the processing set and the record moves to
// PROCESSING with the claim metadata. Returns "" when the queue stayed
// empty. The pop and the set add are not one atomic step; the reclaimer
// covers a crash inside that window.
func (m *Manager) ClaimNext(ctx context.Context, workerID string) (string, error) {
	taskID, ok, err := m.store.BRPop(ctx, queueKey, time.Second)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	if err := m.store.SAdd(ctx, processingKey, taskID); err != nil {
		return "", err
	}

	task, err := m.Get(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		// Record expired between enqueue and claim: drop the orphan.
		m.log.Warn().Str("task_id", taskID).Msg("claimed id has no record, dropping")
		if rmErr := m.store.SRem(ctx, processingKey, taskID); rmErr != nil {
			m.log.Warn().Err(rmErr).Str("task_id", taskID).Msg("cannot drop orphaned claim")
		}
		return "", nil
	}
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	task.Status = types.TaskStatusProcessing
	task.WorkerID = workerID
	task.StartedAt = &now
	if err := m.persist(ctx, task); err != nil {
		return "", err
	}

	m.log.Debug().Str("task_id", taskID).Str("worker_id", workerID).Msg("task claimed")
	return taskID, nil
}

// Images returns the task's submitted payloads in index order.
func (m *Manager) Images(ctx context.Context, taskID string) ([][]byte, error) {
	vals, err := m.store.LRange(ctx, imagesKey(taskID), 0, -1)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("tasks: no image payloads for %s", taskID)
	}
	images := make([][]byte, len(vals))
	for i, v := range vals {
		images[i] = []byte(v)
	}
	return images, nil
}

// CompleteImage records the translated text for one image. Writes to an
// already-terminal entry are silently skipped: the first outcome wins.
func (m *Manager) CompleteImage(ctx context.Context, taskID string, index int, text string) error {
	return m.writePartial(ctx, taskID, index, func(r *types.ImageResult) {
		r.Status = types.TaskStatusCompleted
		r.TranslatedText = text
	})
}

// FailImage records a terminal failure for one image.
func (m *Manager) FailImage(ctx context.Context, taskID string, index int, reason string) error {
	return m.writePartial(ctx, taskID, index, func(r *types.ImageResult) {
		r.Status = types.TaskStatusFailed
		r.Error = reason
	})
}

// writePartial applies one terminal image outcome and aggregates the task
// when it was the last one. Only the claiming worker mutates a task, so
// no compare-and-set is needed; concurrent readers may observe any prefix
// of terminal entries.
func (m *Manager) writePartial(ctx context.Context, taskID string, index int, fill func(*types.ImageResult)) error {
	if index < 0 {
		return fmt.Errorf("tasks: negative image index %d", index)
	}

	task, err := m.Get(ctx, taskID)
	if err != nil {
		return err
	}

	// Records written by older instances may carry a short list; pad
	// through index with pending entries.
	for len(task.PartialResults) <= index {
		task.PartialResults = append(task.PartialResults, types.ImageResult{
			Index:  len(task.PartialResults),
			Status: types.TaskStatusPending,
		})
	}

	entry := &task.PartialResults[index]
	if entry.Status.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	fill(entry)
	entry.Index = index
	entry.CompletedAt = &now
	if task.StartedAt != nil {
		entry.ProcessingTime = now.Sub(*task.StartedAt).Seconds()
	}
	metrics.ImagesProcessedTotal.WithLabelValues(string(entry.Status)).Inc()

	m.aggregate(task, now)
	if task.Status.Terminal() {
		if err := m.store.SRem(ctx, processingKey, taskID); err != nil {
			m.log.Warn().Err(err).Str("task_id", taskID).Msg("cannot release processing claim")
		}
	}

	return m.persist(ctx, task)
}

// aggregate settles the task status once every partial result is terminal:
// COMPLETED when at least one image succeeded, FAILED otherwise.
func (m *Manager) aggregate(task *types.Task, now time.Time) {
	if task.Status.Terminal() || len(task.PartialResults) < task.TotalImages {
		return
	}
	for _, r := range task.PartialResults {
		if !r.Status.Terminal() {
			return
		}
	}

	completed := 0
	firstText, firstError := "", ""
	haveText, haveError := false, false
	for _, r := range task.PartialResults {
		if r.Status == types.TaskStatusCompleted {
			completed++
			if !haveText {
				firstText, haveText = r.TranslatedText, true
			}
		} else if !haveError {
			firstError, haveError = r.Error, true
		}
	}

	if completed > 0 {
		task.Status = types.TaskStatusCompleted
		task.TranslatedText = firstText
	} else {
		task.Status = types.TaskStatusFailed
		task.Error = firstError
	}
	task.CompletedAt = &now
	if task.StartedAt != nil {
		task.ProcessingTime = now.Sub(*task.StartedAt).Seconds()
	}

	metrics.TasksCompletedTotal.WithLabelValues(string(task.Status)).Inc()
	m.log.Info().
		Str("task_id", task.TaskID).
		Str("status", string(task.Status)).
		Int("completed_images", completed).
		Int("total_images", task.TotalImages).
		Msg("task settled")
}

// Fail force-fails a task: every non-terminal partial entry fails with the
// same reason; entries that already completed keep their text. Used by the
// reclaimer and by worker-level catastrophes.
func (m *Manager) Fail(ctx context.Context, taskID, reason string, processingTime float64) error {
	if err := m.store.SRem(ctx, processingKey, taskID); err != nil {
		m.log.Warn().Err(err).Str("task_id", taskID).Msg("cannot release processing claim")
	}

	task, err := m.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	for i := range task.PartialResults {
		r := &task.PartialResults[i]
		if r.Status.Terminal() {
			continue
		}
		r.Status = types.TaskStatusFailed
		r.Error = reason
		r.CompletedAt = &now
	}
	task.Status = types.TaskStatusFailed
	task.Error = reason
	task.CompletedAt = &now
	task.ProcessingTime = processingTime

	metrics.TasksCompletedTotal.WithLabelValues(string(types.TaskStatusFailed)).Inc()
	m.log.Warn().Str("task_id", taskID).Str("reason", reason).Msg("task failed")
	return m.persist(ctx, task)
}

// QueueStats reports queue depth and in-flight claims.
func (m *Manager) QueueStats(ctx context.Context) (types.QueueStats, error) {
	pending, err := m.store.LLen(ctx, queueKey)
	if err != nil {
		return types.QueueStats{}, err
	}
	processing, err := m.store.SCard(ctx, processingKey)
	if err != nil {
		return types.QueueStats{}, err
	}
	stats := types.QueueStats{
		Pending:    int(pending),
		Processing: int(processing),
		Total:      int(pending + processing),
	}
	metrics.QueuePending.Set(float64(stats.Pending))
	metrics.QueueProcessing.Set(float64(stats.Processing))
	return stats, nil
}

// EstimateWaitTime guesses, in seconds, how long a new submission waits
// before completion: queue depth times the average per-image cost, spread
// over the current consumers, clamped to [2s, 300s]. Advisory only.
func (m *Manager) EstimateWaitTime(ctx context.Context) int {
	stats, err := m.QueueStats(ctx)
	if err != nil {
		return fallbackWaitEstimate
	}
	consumers := stats.Processing
	if consumers < 1 {
		consumers = 1
	}
	estimate := int(float64(stats.Pending) * avgImageSeconds / float64(consumers))
	if estimate < minWaitEstimate {
		estimate = minWaitEstimate
	}
	if estimate > maxWaitEstimate {
		estimate = maxWaitEstimate
	}
	return estimate
}

func (m *Manager) persist(ctx context.Context, task *types.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("tasks: encode %s: %w", task.TaskID, err)
	}
	return m.store.Set(ctx, taskKey(task.TaskID), string(data), recordTTL)
}
