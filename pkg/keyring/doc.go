/*
Package keyring rotates provider API credentials across the cluster and
enforces their per-minute, per-day, and token-per-minute limits.

Every translation request consumes quota on some upstream API key. The
keyring decides which key each call should use, records what the call
consumed, and takes keys out of rotation when they hit a limit or start
failing. All counter state lives in the shared store, so every instance
sees the same availability picture and the cluster as a whole respects
each key's limits.

# Architecture

	                ┌─────────────────────────────┐
	    Select ───▶ │  batched counter read       │──▶ skip failed/disabled
	                │  (MGet, circuit breaker)    │         │
	                └─────────────────────────────┘         ▼
	                                               score = 0.6·capacity
	                                                     + 0.4·performance
	                                                        │
	                                                        ▼
	                                               top 3 by score
	                                                        │
	                                                        ▼
	                                               weighted random pick

	                ┌─────────────────────────────┐
	RecordUsage ──▶ │  rpm/rpd/tpm counters       │──▶ limit reached?
	                │  (windowed, TTL-expired)    │    write disabled_until
	                └─────────────────────────────┘    until window boundary

	                ┌─────────────────────────────┐
	 MarkFailed ──▶ │  failures counter           │──▶ failed:{id} with
	                │  backoff = base·3^(n-1)     │    exponential TTL
	                └─────────────────────────────┘    (capped at 2h)

# Store Keys

Counters are windowed by integer minute (unix/60) and day (unix/86400),
so concurrent writers from any instance land on the same key:

	rpm:{id}:{minute}            requests this minute      TTL 60s
	rpd:{id}:{day}               requests today            TTL 24h
	tpm:{id}:{minute}            tokens this minute        TTL 60s
	success:{id}                 24h success counter
	errors:{id}                  24h error counter
	failures:{id}                24h failure counter (drives backoff)
	failed:{id}                  failure backoff marker
	disabled_until:{id}:{RPM|RPD|TPM}   limit disablement, expires at boundary

Recovery is automatic in every case: disablement markers expire exactly at
the next minute or UTC day boundary, and failure markers expire when the
backoff elapses. Nothing has to be manually re-enabled.

# Scoring

Selection favors keys with headroom and a clean recent record:

	capacity    = 0.4·rpmRemaining + 0.2·rpdRemaining + 0.4·tpmRemaining
	performance = successRate·0.7 − errorPenalty·0.3
	score       = clamp(0.6·capacity + 0.4·performance, 0, 1)

A credential with no recorded history scores as if perfect, so newly
added keys enter rotation immediately. The final pick is weighted random
among the top three scores; the jitter keeps close scores rotating
instead of hammering a single key.

# Failure Handling

The keyring fails open. If the store is unreachable, Select still hands
out credentials (scored uniformly, honoring only the local failure
cache), and RecordUsage reports the credential as still available. The
reasoning: a brief store outage should degrade limit precision, not halt
translation. The batched counter read is wrapped in a circuit breaker so
a struggling store costs one failed call per probe window instead of a
timeout on every selection.

MarkFailed separates two failure classes by backoff base: quota and rate
errors use a short base (the window will roll over soon), authentication
errors use a long one (the key is likely revoked). Repeated failures
within 24h triple the backoff each time, capped at two hours.

# Usage

	creds, err := keyring.LoadCredentials("credentials.yaml", defaults)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	rotator := keyring.New(storeClient, creds)

	cred, err := rotator.Select(ctx)
	if err != nil {
		// ErrNoCredentials: nothing selectable right now
	}

	// ... call the provider with cred.APIKey ...

	rotator.RecordUsage(ctx, cred, tokensUsed)   // success path
	rotator.MarkFailed(ctx, cred, 10*time.Minute) // quota/rate failure

# Integration Points

  - pkg/provider calls Select before each attempt, RecordUsage after a
    successful call, and MarkFailed on quota or auth errors.
  - pkg/worker sizes cluster capacity from CapacityCount (keys with
    request headroom this minute).
  - pkg/api reports Stats in /stats and uses ActiveCount for /health.

# See Also

  - pkg/store - counter primitives (Incr with TTL-on-create, MGet)
  - pkg/provider - error classification that drives MarkFailed
  - config/credentials.example.yaml - file format
*/
package keyring
