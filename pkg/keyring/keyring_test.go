package keyring

import (
	"context"
	"io"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/store"
	"github.com/glottahq/glotta/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

func testCred(id string, limits types.CredentialLimits) types.Credential {
	return types.Credential{ID: id, APIKey: "secret-" + id, Limits: limits}
}

func newTestRotator(t *testing.T, creds ...types.Credential) (*Rotator, *store.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	st := store.New(store.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = st.Close() })
	return New(st, creds), st, mr
}

func TestSelectNoCredentialsConfigured(t *testing.T) {
	r, _, _ := newTestRotator(t)

	_, err := r.Select(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestSelectSingleCredential(t *testing.T) {
	r, _, _ := newTestRotator(t, testCred("k1", testDefaults))

	cred, err := r.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k1", cred.ID)
}

func TestRecordUsageDisablesAtRequestLimit(t *testing.T) {
	limits := types.CredentialLimits{RequestsPerMinute: 5, RequestsPerDay: 1000, TokensPerMinute: 100000}
	r, _, mr := newTestRotator(t, testCred("k1", limits))
	ctx := context.Background()

	cred, err := r.Select(ctx)
	require.NoError(t, err)

	// Four requests leave headroom, the fifth crosses the limit.
	for i := 0; i < 4; i++ {
		available, err := r.RecordUsage(ctx, cred, 0)
		require.NoError(t, err)
		assert.True(t, available, "request %d should not disable", i+1)
	}
	available, err := r.RecordUsage(ctx, cred, 0)
	require.NoError(t, err)
	assert.False(t, available)

	_, err = r.Select(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	// The minute window rolls over and the credential recovers on its own.
	mr.FastForward(61 * time.Second)
	got, err := r.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ID)
}

func TestRecordUsageDisableBoundaries(t *testing.T) {
	limits := types.CredentialLimits{RequestsPerMinute: 1, RequestsPerDay: 1, TokensPerMinute: 100000}
	r, st, _ := newTestRotator(t, testCred("k1", limits))
	ctx := context.Background()

	before := time.Now().Unix()
	available, err := r.RecordUsage(ctx, &r.creds[0], 0)
	require.NoError(t, err)
	assert.False(t, available)

	rpmVal, err := st.Get(ctx, disabledKey("k1", DimRPM))
	require.NoError(t, err)
	rpmUntil, err := strconv.ParseInt(rpmVal, 10, 64)
	require.NoError(t, err)
	assert.Zero(t, rpmUntil%60, "RPM disablement should end on a minute boundary")
	assert.Greater(t, rpmUntil, before)
	assert.LessOrEqual(t, rpmUntil, before+121)

	rpdVal, err := st.Get(ctx, disabledKey("k1", DimRPD))
	require.NoError(t, err)
	rpdUntil, err := strconv.ParseInt(rpdVal, 10, 64)
	require.NoError(t, err)
	assert.Zero(t, rpdUntil%86400, "RPD disablement should end on a UTC day boundary")
	assert.Greater(t, rpdUntil, before)
}

func TestRecordUsageTokenLimit(t *testing.T) {
	limits := types.CredentialLimits{RequestsPerMinute: 100, RequestsPerDay: 1000, TokensPerMinute: 100}
	r, st, _ := newTestRotator(t, testCred("k1", limits))
	ctx := context.Background()

	available, err := r.RecordUsage(ctx, &r.creds[0], 60)
	require.NoError(t, err)
	assert.True(t, available)

	available, err = r.RecordUsage(ctx, &r.creds[0], 60)
	require.NoError(t, err)
	assert.False(t, available)

	exists, err := st.Exists(ctx, disabledKey("k1", DimTPM))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRecordUsageZeroTokensSkipsTokenCounter(t *testing.T) {
	r, st, _ := newTestRotator(t, testCred("k1", testDefaults))
	ctx := context.Background()

	_, err := r.RecordUsage(ctx, &r.creds[0], 0)
	require.NoError(t, err)

	minute := time.Now().Unix() / 60
	exists, err := st.Exists(ctx, tpmKey("k1", minute))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSelectSkipsDisabledCredential(t *testing.T) {
	limits := types.CredentialLimits{RequestsPerMinute: 1, RequestsPerDay: 1000, TokensPerMinute: 100000}
	r, _, _ := newTestRotator(t, testCred("k1", limits), testCred("k2", limits))
	ctx := context.Background()

	available, err := r.RecordUsage(ctx, &r.creds[0], 0)
	require.NoError(t, err)
	assert.False(t, available)

	for i := 0; i < 10; i++ {
		cred, err := r.Select(ctx)
		require.NoError(t, err)
		assert.Equal(t, "k2", cred.ID)
	}
}

func TestMarkFailedBackoffProgression(t *testing.T) {
	r, _, mr := newTestRotator(t, testCred("k1", testDefaults))
	ctx := context.Background()
	cred := &r.creds[0]

	expected := []time.Duration{
		10 * time.Minute, // base
		30 * time.Minute, // base * 3
		90 * time.Minute, // base * 9
		2 * time.Hour,    // base * 27 capped
	}
	for i, want := range expected {
		r.MarkFailed(ctx, cred, 10*time.Minute)
		assert.Equal(t, want, mr.TTL(failedKey("k1")), "failure %d", i+1)
	}
}

func TestMarkFailedRemovesFromRotation(t *testing.T) {
	r, _, mr := newTestRotator(t, testCred("k1", testDefaults))
	ctx := context.Background()

	r.MarkFailed(ctx, &r.creds[0], time.Minute)

	_, err := r.Select(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	// Backoff expires in the store; the local cache reconciles and the
	// credential rejoins rotation.
	mr.FastForward(61 * time.Second)
	cred, err := r.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k1", cred.ID)
}

func TestSelectFailsOpenWhenStoreDown(t *testing.T) {
	r, _, mr := newTestRotator(t, testCred("k1", testDefaults), testCred("k2", testDefaults))
	mr.Close()
	ctx := context.Background()

	cred, err := r.Select(ctx)
	require.NoError(t, err)
	assert.Contains(t, []string{"k1", "k2"}, cred.ID)

	available, err := r.RecordUsage(ctx, cred, 100)
	require.NoError(t, err)
	assert.True(t, available)
}

func TestSelectFailOpenHonorsLocalFailureCache(t *testing.T) {
	r, _, mr := newTestRotator(t, testCred("k1", testDefaults), testCred("k2", testDefaults))
	ctx := context.Background()

	r.MarkFailed(ctx, &r.creds[0], time.Hour)
	mr.Close()

	for i := 0; i < 10; i++ {
		cred, err := r.Select(ctx)
		require.NoError(t, err)
		assert.Equal(t, "k2", cred.ID)
	}
}

func TestSelectPrefersCleanCredential(t *testing.T) {
	r, st, _ := newTestRotator(t, testCred("dirty", testDefaults), testCred("clean", testDefaults))
	ctx := context.Background()

	// Give one credential a poor 24h record. Its score drops far enough
	// below the clean credential that the selection jitter cannot bridge
	// the gap.
	for i := 0; i < 30; i++ {
		_, err := st.Incr(ctx, errorsKey("dirty"), time.Hour)
		require.NoError(t, err)
	}

	for i := 0; i < 20; i++ {
		cred, err := r.Select(ctx)
		require.NoError(t, err)
		assert.Equal(t, "clean", cred.ID)
	}
}

func TestScoreCapacityAndPerformance(t *testing.T) {
	cred := testCred("k1", types.CredentialLimits{RequestsPerMinute: 60, RequestsPerDay: 1440, TokensPerMinute: 32000})

	fresh := usageRow{}
	assert.InDelta(t, 0.88, fresh.score(&cred), 0.001)

	// Spent minute budget drags capacity down.
	busy := usageRow{rpmUsed: 60, rpdUsed: 60, success: 60}
	assert.Less(t, busy.score(&cred), fresh.score(&cred))

	// Errors drag performance down even with full capacity.
	erroring := usageRow{success: 0, errored: 10}
	assert.Less(t, erroring.score(&cred), fresh.score(&cred))

	// Score is clamped to [0, 1].
	worst := usageRow{rpmUsed: 1000, rpdUsed: 10000, tpmUsed: 100000, errored: 1000}
	s := worst.score(&cred)
	assert.GreaterOrEqual(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
}

func TestActiveAndCapacityCounts(t *testing.T) {
	dayLimited := types.CredentialLimits{RequestsPerMinute: 100, RequestsPerDay: 1, TokensPerMinute: 100000}
	r, _, _ := newTestRotator(t,
		testCred("day-limited", dayLimited),
		testCred("broken", testDefaults),
		testCred("clean", testDefaults),
	)
	ctx := context.Background()

	// day-limited: crosses its daily limit but keeps minute headroom.
	available, err := r.RecordUsage(ctx, &r.creds[0], 0)
	require.NoError(t, err)
	assert.False(t, available)

	// broken: under failure backoff.
	r.MarkFailed(ctx, &r.creds[1], time.Hour)

	assert.Equal(t, 1, r.ActiveCount(ctx), "only clean is fully active")
	assert.Equal(t, 2, r.CapacityCount(ctx), "day-limited still has minute capacity")

	stats := r.Stats(ctx)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Active)
}
