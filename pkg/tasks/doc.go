/*
Package tasks owns the translation task lifecycle: creation, queueing,
claiming, per-image result writes, final aggregation, and reclamation of
tasks whose worker died.

# Data Model

Everything lives in the coordination store:

	tasks:{id}          JSON task record, TTL 24h
	task_images:{id}    list of raw image payloads, index-parallel, TTL 24h
	translation_queue   task ids, LPUSH head / BRPOP tail ⇒ FIFO
	processing_tasks    set of claimed ids

A task is a batch of 1..10 images translated to one target language. Each
image gets its own entry in partial_results; the task settles only when
every entry is terminal:

	            ┌─────────┐  ClaimNext   ┌────────────┐
	 Create ──▶ │ PENDING │ ───────────▶ │ PROCESSING │
	            └─────────┘              └─────┬──────┘
	                                           │ last terminal
	                                           │ partial write
	                          ┌────────────────┴───────────────┐
	                          ▼                                ▼
	                    ┌───────────┐                    ┌──────────┐
	                    │ COMPLETED │  ≥1 image ok       │  FAILED  │
	                    └───────────┘                    └──────────┘

# Write Discipline

Create persists the record and payloads before pushing the id onto the
queue: a consumer that can see the id can always resolve the rest.

Partial writes are idempotent. An already-terminal entry is never
overwritten, so a worker retry or a duplicate delivery cannot flip an
outcome. Only the claiming worker mutates a task, which is why plain
read-modify-write is safe; concurrent readers (the observer) just see
some prefix of terminal entries.

Aggregation happens on the last terminal write: COMPLETED when at least
one image succeeded (the first completed text is mirrored into
translated_text for single-image clients), FAILED otherwise with the
first entry's error.

# Reclamation

The pop from the queue and the add to the processing set are two steps,
and workers can die holding a claim. The Reclaimer sweeps the processing
set every 5 minutes and force-fails any task claimed longer than
max_processing_time (default 10 minutes), so a crashed worker costs a
client one timeout instead of an eternally pending poll. Ids whose record
expired are dropped from the set.

# Usage

	mgr := tasks.NewManager(storeClient)

	task, err := mgr.Create(ctx, images, types.LanguageVietnamese)

	id, err := mgr.ClaimNext(ctx, workerID) // "" when idle
	imgs, err := mgr.Images(ctx, id)
	err = mgr.CompleteImage(ctx, id, 0, text)
	err = mgr.FailImage(ctx, id, 1, "decode failed")

	rec := tasks.NewReclaimer(mgr, cfg.ReclaimInterval, cfg.MaxProcessingTime)
	rec.Start()
	defer rec.Stop()

# See Also

  - pkg/worker - claims tasks and fans out per-image translation
  - pkg/observer - long-polls records for API clients
  - pkg/store - the underlying primitives
*/
package tasks
