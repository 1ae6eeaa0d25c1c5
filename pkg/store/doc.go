/*
Package store provides the typed coordination store client for glotta.

The store package wraps a Redis connection with exactly the vocabulary the
dispatch fabric needs: atomic counters with window TTLs, lists with blocking
pop for the task queue, sets for claim tracking and cluster membership,
hashes for heartbeats and scaling decisions, and SetNX for leader election.
Every cross-instance piece of state in glotta lives behind this client; no
process-local lock survives a restart.

# Usage

	client := store.New(store.Config{Addr: "localhost:6379"})
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		// store unreachable
	}

	// Counter bound to its accounting window
	n, err := client.Incr(ctx, "rpm:key-1:29384757", 60*time.Second)

	// Blocking queue consumption
	taskID, ok, err := client.BRPop(ctx, "translation_queue", time.Second)
	if !ok {
		// idle timeout, not an error
	}

# Semantics

  - Get on a missing key returns ErrNotFound; callers distinguish absence
    from store failure with errors.Is.
  - BRPop returns ok=false on idle timeout instead of an error, so worker
    loops can poll without error-path noise.
  - Incr and IncrBy apply their TTL only when the operation created the
    key, bounding every counter to its accounting window.
  - All other failures wrap the cause as "store: <op>: <err>" and increment
    the store error counter.

# Failure Policy

The store is best-effort for counters and advisory state: rate-limit and
health counters fail open when the store is unreachable. It is authoritative
for the queue and the processing set: enqueue, claim, and claim-release
failures propagate to the caller and fail the operation.
*/
package store
