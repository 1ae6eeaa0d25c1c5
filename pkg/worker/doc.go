/*
Package worker implements the elastic worker pool that drains the
translation queue.

Each process runs one Pool. The pool owns this instance's workers, announces
the instance to the cluster through the coordination store, and takes part
in cluster-wide scaling. Workers are cheap: a goroutine, a claim loop, and a
handful of counters.

# Architecture

	┌─────────────────────── INSTANCE ───────────────────────────┐
	│                                                             │
	│  ┌───────────────────────────────────────────────┐         │
	│  │                    Pool                        │         │
	│  │  - Heartbeat loop (30s)                        │         │
	│  │  - Scaling loop (10s, leader-elected)          │         │
	│  │  - Stale-instance sweep (60s)                  │         │
	│  └──────┬────────────────────────────┬────────────┘         │
	│         │                            │                      │
	│  ┌──────▼───────┐            ┌───────▼────────┐             │
	│  │  Worker ×N   │            │  Coordination  │             │
	│  │  - claim     │            │  store keys    │             │
	│  │  - fan out   │            │  - instances   │             │
	│  │  - record    │            │  - workers     │             │
	│  └──────┬───────┘            │  - decision    │             │
	│         │                    │  - lock        │             │
	│  ┌──────▼───────────────┐    └────────────────┘             │
	│  │ one goroutine/image  │                                   │
	│  │ Translator.Translate │                                   │
	│  └──────────────────────┘                                   │
	└─────────────────────────────────────────────────────────────┘

# Worker Loop

 1. Claim the next task (blocking pop with a short timeout); sleep 500ms
    when the queue is empty. This gap is also the stop check.
 2. Load the task record and its image payloads.
 3. Fan out one goroutine per image; each calls the translator and writes
    its own terminal result. Siblings are never cancelled: a failed image
    does not abort the rest of the batch.
 4. The task manager aggregates the final task status on the last write.

A panic while holding a task fails that task with the panic text and the
worker keeps running. A killed process leaves its task to the reclaimer.

# Cluster Scaling

Every scaling tick each instance races SETNX on the scaling lock. The
winner reads queue pressure (pending + processing), bounds capacity by the
number of usable credentials, and publishes a target worker count for the
whole cluster:

	pressure > 500             +50 workers
	pressure > 200             +25
	pressure > 100             +15
	pressure > 50              +5
	pressure < 10, 3 in a row  -min(10, current/4)

Losers read the published decision instead. Either way the instance applies
only its own share: target divided across live instances in sorted id
order, remainder to the first ones, clamped to the per-instance bounds.
Scale-down picks idle workers first; a busy victim finishes its current
task before exiting.

Instances announce themselves with a heartbeat hash every 30s. A sweep loop
removes instances whose heartbeat is missing or older than 180s so their
workers stop counting toward anyone's share.
*/
package worker
