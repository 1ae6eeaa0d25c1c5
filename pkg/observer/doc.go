/*
Package observer implements the long-poll side of result delivery.

Clients ask for a task's outcome with a timeout; the observer re-reads the
task record on a fixed cadence and hands back a snapshot as soon as there is
something worth returning:

  - any image result reached a terminal state (first partial), or
  - the task itself settled (completed or failed), or
  - the client's timeout elapsed.

# Flow

	Await(id, 30s)
	   │
	   ▼
	┌─────────────┐  not ready   ┌──────────┐
	│ read record │─────────────▶│ sleep    │──┐
	└─────────────┘              │ interval │  │
	   │ ▲                       └──────────┘  │
	   │ └──────────────────────────────────────┘
	   ▼ partial/terminal/deadline
	snapshot ──▶ caller

Timeouts are clamped to the configured ceiling so a client cannot pin a
connection open indefinitely. On deadline the snapshot carries a queue-based
wait estimate so callers know how soon to poll again. Polling is read-only:
observers never mutate task state, so any number of clients can watch the
same task.
*/
package observer
