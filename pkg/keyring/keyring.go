package keyring

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/metrics"
	"github.com/glottahq/glotta/pkg/store"
	"github.com/glottahq/glotta/pkg/types"
)

// ErrNoCredentials is returned by Select when no credential is currently
// usable: none configured, or every candidate is failed or disabled.
var ErrNoCredentials = errors.New("keyring: no credentials available")

// Limit dimensions, used in disabled_until keys and log fields.
const (
	DimRPM = "RPM"
	DimRPD = "RPD"
	DimTPM = "TPM"
)

const (
	// counterTTL bounds the per-credential success/error/failure counters.
	counterTTL = 24 * time.Hour

	// maxFailureBackoff caps the exponential failure backoff.
	maxFailureBackoff = 2 * time.Hour

	// failOpenScore is assigned to every candidate when usage counters
	// cannot be read. Selection degrades to uniform rotation instead of
	// refusing to hand out credentials.
	failOpenScore = 0.5

	// topCandidates bounds the weighted random pick to the highest-scored
	// credentials so traffic concentrates on healthy keys without
	// starving the rest.
	topCandidates = 3

	keysPerCredential = 9
)

// Rotator selects API credentials by scored weighted rotation and tracks
// their usage against per-minute, per-day, and token-per-minute limits.
// Counter state lives in the store so every instance in the cluster sees
// the same availability picture.
type Rotator struct {
	store *store.Client
	creds []types.Credential
	log   zerolog.Logger

	// failed is an in-process cache of credentials under failure backoff.
	// The store's failed:{id} key is authoritative across instances; this
	// set only short-circuits selection when the store is unreachable.
	mu     sync.Mutex
	failed map[string]struct{}

	// breaker guards the batched counter reads so a struggling store
	// degrades selection to fail-open scoring instead of stalling it.
	breaker *gobreaker.CircuitBreaker
}

// New builds a Rotator over the given credentials. Limits must already be
// resolved (LoadCredentials applies defaults to zero values).
func New(st *store.Client, creds []types.Credential) *Rotator {
	r := &Rotator{
		store:  st,
		creds:  creds,
		log:    log.WithComponent("keyring"),
		failed: make(map[string]struct{}),
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "keyring-counters",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("counter read breaker state changed")
		},
	})
	metrics.CredentialsTotal.Set(float64(len(creds)))
	return r
}

// Total returns the number of configured credentials.
func (r *Rotator) Total() int {
	return len(r.creds)
}

// Stats summarizes credential availability for the stats endpoint.
type Stats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// Stats reports how many credentials are configured and how many are
// currently selectable.
func (r *Rotator) Stats(ctx context.Context) Stats {
	return Stats{Total: len(r.creds), Active: r.ActiveCount(ctx)}
}

type candidate struct {
	cred  *types.Credential
	score float64
}

// Select picks a credential for the next provider call. Candidates under
// failure backoff or with any limit dimension disabled are skipped; the
// rest are scored on remaining capacity and recent success rate, and one
// of the top three is chosen by weighted random so load spreads across
// healthy keys. Returns ErrNoCredentials when nothing is selectable.
func (r *Rotator) Select(ctx context.Context) (*types.Credential, error) {
	if len(r.creds) == 0 {
		return nil, ErrNoCredentials
	}
	r.reconcileFailed(ctx)

	now := time.Now().UTC()
	usage := r.readUsage(ctx, now)

	candidates := make([]candidate, 0, len(r.creds))
	for i := range r.creds {
		cred := &r.creds[i]
		if usage == nil {
			// Store unreadable: honor only the local failure cache and
			// score everyone equally.
			if r.inFailedCache(cred.ID) {
				continue
			}
			candidates = append(candidates, candidate{cred: cred, score: failOpenScore})
			continue
		}
		row := usage.rows[cred.ID]
		if row.failed || r.inFailedCache(cred.ID) {
			continue
		}
		if row.disabledAny(now) {
			continue
		}
		candidates = append(candidates, candidate{cred: cred, score: row.score(cred)})
	}
	if len(candidates) == 0 {
		return nil, ErrNoCredentials
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topCandidates {
		candidates = candidates[:topCandidates]
	}

	picked := weightedPick(candidates)
	r.log.Debug().
		Str("credential", picked.ID).
		Int("candidates", len(candidates)).
		Msg("credential selected")
	return picked, nil
}

// weightedPick chooses among the top candidates with weight score+0.1 plus
// a small random jitter, so close scores still rotate.
func weightedPick(candidates []candidate) *types.Credential {
	best := candidates[0].cred
	bestWeight := -1.0
	for _, c := range candidates {
		weight := c.score + 0.1 + rand.Float64()*0.2
		if weight > bestWeight {
			bestWeight = weight
			best = c.cred
		}
	}
	return best
}

// RecordUsage attributes one request (and tokensUsed tokens, when positive)
// to cred's current minute and day windows, then disables any dimension
// whose limit is reached until its window boundary. Returns false when the
// credential was disabled by this call. Counter writes fail open: a store
// error leaves the credential available.
func (r *Rotator) RecordUsage(ctx context.Context, cred *types.Credential, tokensUsed int) (bool, error) {
	now := time.Now().UTC()
	minute := now.Unix() / 60
	day := now.Unix() / 86400

	rpm, err := r.store.Incr(ctx, rpmKey(cred.ID, minute), time.Minute)
	if err != nil {
		r.log.Warn().Err(err).Str("credential", cred.ID).Msg("usage counters unavailable, failing open")
		return true, nil
	}
	rpd, err := r.store.Incr(ctx, rpdKey(cred.ID, day), counterTTL)
	if err != nil {
		r.log.Warn().Err(err).Str("credential", cred.ID).Msg("usage counters unavailable, failing open")
		return true, nil
	}
	var tpm int64
	if tokensUsed > 0 {
		tpm, err = r.store.IncrBy(ctx, tpmKey(cred.ID, minute), int64(tokensUsed), time.Minute)
		if err != nil {
			r.log.Warn().Err(err).Str("credential", cred.ID).Msg("token counter unavailable, failing open")
			return true, nil
		}
	}
	if _, err := r.store.Incr(ctx, successKey(cred.ID), counterTTL); err != nil {
		r.log.Warn().Err(err).Str("credential", cred.ID).Msg("success counter write failed")
	}

	available := true
	if rpm >= int64(cred.Limits.RequestsPerMinute) {
		r.disable(ctx, cred.ID, DimRPM, nextMinute(now))
		available = false
	}
	if rpd >= int64(cred.Limits.RequestsPerDay) {
		r.disable(ctx, cred.ID, DimRPD, nextDay(now))
		available = false
	}
	if tokensUsed > 0 && tpm >= int64(cred.Limits.TokensPerMinute) {
		r.disable(ctx, cred.ID, DimTPM, nextMinute(now))
		available = false
	}
	return available, nil
}

// disable writes the disabled_until marker for one limit dimension. The
// key carries the boundary timestamp and expires at it, so recovery is
// automatic.
func (r *Rotator) disable(ctx context.Context, id, dim string, until time.Time) {
	ttl := time.Until(until)
	if ttl <= 0 {
		ttl = time.Second
	}
	value := strconv.FormatInt(until.Unix(), 10)
	if err := r.store.Set(ctx, disabledKey(id, dim), value, ttl); err != nil {
		r.log.Error().Err(err).Str("credential", id).Str("dimension", dim).Msg("failed to write disable marker")
		return
	}
	r.log.Warn().
		Str("credential", id).
		Str("dimension", dim).
		Time("until", until).
		Msg("credential disabled until window boundary")
}

// MarkFailed puts cred under exponential failure backoff: the first failure
// backs off for base, each subsequent failure within 24h triples it, capped
// at two hours. Also bumps the credential's error counter so its score
// drops once it recovers.
func (r *Rotator) MarkFailed(ctx context.Context, cred *types.Credential, base time.Duration) {
	failures, err := r.store.Incr(ctx, failuresKey(cred.ID), counterTTL)
	if err != nil {
		r.log.Warn().Err(err).Str("credential", cred.ID).Msg("failure counter unavailable, assuming first failure")
		failures = 1
	}

	backoff := base
	for i := int64(1); i < failures && backoff < maxFailureBackoff; i++ {
		backoff *= 3
	}
	if backoff > maxFailureBackoff {
		backoff = maxFailureBackoff
	}

	if err := r.store.Set(ctx, failedKey(cred.ID), "1", backoff); err != nil {
		r.log.Error().Err(err).Str("credential", cred.ID).Msg("failed to write failure marker")
	}
	r.mu.Lock()
	r.failed[cred.ID] = struct{}{}
	r.mu.Unlock()

	if _, err := r.store.Incr(ctx, errorsKey(cred.ID), counterTTL); err != nil {
		r.log.Warn().Err(err).Str("credential", cred.ID).Msg("error counter write failed")
	}

	r.log.Warn().
		Str("credential", cred.ID).
		Int64("failures", failures).
		Dur("backoff", backoff).
		Msg("credential marked failed")
}

// ActiveCount returns how many credentials are currently selectable: not
// under failure backoff and with no disabled limit dimension. Falls back
// to the local failure cache when counters are unreadable.
func (r *Rotator) ActiveCount(ctx context.Context) int {
	n := r.countUsable(ctx, false)
	metrics.CredentialsActive.Set(float64(n))
	return n
}

// CapacityCount returns how many credentials can still accept requests this
// minute: not failed and not RPM-disabled. Day and token disablement is
// ignored so scaling capacity tracks the per-minute request budget.
func (r *Rotator) CapacityCount(ctx context.Context) int {
	return r.countUsable(ctx, true)
}

func (r *Rotator) countUsable(ctx context.Context, rpmOnly bool) int {
	now := time.Now().UTC()
	usage := r.readUsage(ctx, now)

	n := 0
	for i := range r.creds {
		id := r.creds[i].ID
		if usage == nil {
			if !r.inFailedCache(id) {
				n++
			}
			continue
		}
		row := usage.rows[id]
		if row.failed || r.inFailedCache(id) {
			continue
		}
		if rpmOnly {
			if row.disabledDim(dimIndex(DimRPM), now) {
				continue
			}
		} else if row.disabledAny(now) {
			continue
		}
		n++
	}
	return n
}

// reconcileFailed drops local failure-cache entries whose store marker has
// expired, so recovered credentials become selectable again.
func (r *Rotator) reconcileFailed(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.failed))
	for id := range r.failed {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		exists, err := r.store.Exists(ctx, failedKey(id))
		if err != nil {
			// Keep the cache entry until the store answers.
			continue
		}
		if !exists {
			r.mu.Lock()
			delete(r.failed, id)
			r.mu.Unlock()
			r.log.Info().Str("credential", id).Msg("credential failure backoff expired")
		}
	}
}

func (r *Rotator) inFailedCache(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.failed[id]
	return ok
}

// usageRow is one credential's counter snapshot.
type usageRow struct {
	rpmUsed  int64
	rpdUsed  int64
	tpmUsed  int64
	success  int64
	errored  int64
	failed   bool
	disabled [3]int64 // unix seconds per dimension; 0 = not disabled
}

func (u usageRow) disabledAny(now time.Time) bool {
	for i := range u.disabled {
		if u.disabledDim(i, now) {
			return true
		}
	}
	return false
}

func (u usageRow) disabledDim(i int, now time.Time) bool {
	return u.disabled[i] > 0 && u.disabled[i] > now.Unix()
}

// score combines remaining capacity (60%) with observed performance (40%).
// Capacity weighs the minute request budget and token budget highest; the
// day budget moves slowly and gets less. Performance is the 24h success
// rate dampened by an error penalty; credentials with no history score as
// if perfect so fresh keys enter rotation immediately.
func (u usageRow) score(cred *types.Credential) float64 {
	rpmCap := remainingFraction(u.rpmUsed, cred.Limits.RequestsPerMinute)
	rpdCap := remainingFraction(u.rpdUsed, cred.Limits.RequestsPerDay)
	tpmCap := remainingFraction(u.tpmUsed, cred.Limits.TokensPerMinute)
	capacity := 0.4*rpmCap + 0.2*rpdCap + 0.4*tpmCap

	successRate := 1.0
	total := u.success + u.errored
	if total > 0 {
		successRate = float64(u.success) / float64(total)
	}
	errorPenalty := float64(u.errored) / (float64(total) + 10)
	perf := successRate*0.7 - errorPenalty*0.3

	s := 0.6*capacity + 0.4*perf
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func remainingFraction(used int64, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	f := float64(int64(limit)-used) / float64(limit)
	if f < 0 {
		return 0
	}
	return f
}

type usageSnapshot struct {
	rows map[string]usageRow
}

// readUsage fetches every credential's counters in one batched read through
// the circuit breaker. Returns nil when the read fails or the breaker is
// open; callers then score fail-open.
func (r *Rotator) readUsage(ctx context.Context, now time.Time) *usageSnapshot {
	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.fetchUsage(ctx, now)
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("usage counters unreadable, scoring fail-open")
		return nil
	}
	return res.(*usageSnapshot)
}

func (r *Rotator) fetchUsage(ctx context.Context, now time.Time) (*usageSnapshot, error) {
	minute := now.Unix() / 60
	day := now.Unix() / 86400

	keys := make([]string, 0, len(r.creds)*keysPerCredential)
	for i := range r.creds {
		id := r.creds[i].ID
		keys = append(keys,
			rpmKey(id, minute),
			rpdKey(id, day),
			tpmKey(id, minute),
			successKey(id),
			errorsKey(id),
			failedKey(id),
			disabledKey(id, DimRPM),
			disabledKey(id, DimRPD),
			disabledKey(id, DimTPM),
		)
	}

	values, err := r.store.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	if len(values) != len(keys) {
		return nil, fmt.Errorf("keyring: short counter read: got %d values for %d keys", len(values), len(keys))
	}

	snap := &usageSnapshot{rows: make(map[string]usageRow, len(r.creds))}
	for i := range r.creds {
		base := i * keysPerCredential
		row := usageRow{
			rpmUsed: parseCounter(values[base]),
			rpdUsed: parseCounter(values[base+1]),
			tpmUsed: parseCounter(values[base+2]),
			success: parseCounter(values[base+3]),
			errored: parseCounter(values[base+4]),
			failed:  values[base+5] != nil,
		}
		row.disabled[dimIndex(DimRPM)] = parseCounter(values[base+6])
		row.disabled[dimIndex(DimRPD)] = parseCounter(values[base+7])
		row.disabled[dimIndex(DimTPM)] = parseCounter(values[base+8])
		snap.rows[r.creds[i].ID] = row
	}
	return snap, nil
}

func parseCounter(v *string) int64 {
	if v == nil {
		return 0
	}
	n, err := strconv.ParseInt(*v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func dimIndex(dim string) int {
	switch dim {
	case DimRPM:
		return 0
	case DimRPD:
		return 1
	default:
		return 2
	}
}

func nextMinute(now time.Time) time.Time {
	return time.Unix((now.Unix()/60+1)*60, 0).UTC()
}

func nextDay(now time.Time) time.Time {
	return time.Unix((now.Unix()/86400+1)*86400, 0).UTC()
}

func rpmKey(id string, minute int64) string {
	return fmt.Sprintf("rpm:%s:%d", id, minute)
}

func rpdKey(id string, day int64) string {
	return fmt.Sprintf("rpd:%s:%d", id, day)
}

func tpmKey(id string, minute int64) string {
	return fmt.Sprintf("tpm:%s:%d", id, minute)
}

func successKey(id string) string {
	return fmt.Sprintf("success:%s", id)
}

func errorsKey(id string) string {
	return fmt.Sprintf("errors:%s", id)
}

func failuresKey(id string) string {
	return fmt.Sprintf("failures:%s", id)
}

func failedKey(id string) string {
	return fmt.Sprintf("failed:%s", id)
}

func disabledKey(id, dim string) string {
	return fmt.Sprintf("disabled_until:%s:%s", id, dim)
}
