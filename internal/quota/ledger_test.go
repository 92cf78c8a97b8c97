package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/promptforge/internal/config"
)

func testConfig() config.QuotaConfig {
	return config.QuotaConfig{
		Backend:        "memory",
		FreeDailyLimit: 10,
		ProDailyLimit:  100,
		MaxRetries:     1,
	}
}

func newTestLedger(t *testing.T, cfg config.QuotaConfig) *Ledger {
	t.Helper()
	return NewLedger(NewMemoryStore(), cfg)
}

func TestCheckQuota_FreshUser(t *testing.T) {
	l := newTestLedger(t, testConfig())
	ctx := context.Background()

	st := l.CheckQuota(ctx, "u1", TierFree, 0)
	assert.Equal(t, 0, st.Used)
	assert.Equal(t, 10, st.Total)
	assert.True(t, st.CanGenerate)

	st = l.CheckQuota(ctx, "u1", TierPro, 0)
	assert.Equal(t, 100, st.Total)
}

func TestConsume_FreeTierExhaustion(t *testing.T) {
	l := newTestLedger(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := l.Consume(ctx, "u1", TierFree, 0)
		require.NoError(t, err)
		assert.True(t, ok, "consume %d should succeed", i+1)
	}

	ok, err := l.Consume(ctx, "u1", TierFree, 0)
	require.NoError(t, err)
	assert.False(t, ok, "11th consume should be denied")

	st := l.CheckQuota(ctx, "u1", TierFree, 0)
	assert.Equal(t, 10, st.Used)
	assert.Equal(t, 10, st.Total)
	assert.False(t, st.CanGenerate)
}

func TestReserve_NeverAdmitsBeyondTotal(t *testing.T) {
	l := newTestLedger(t, testConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, denial, err := l.Reserve(ctx, "u1", TierFree, 0, "")
			require.NoError(t, err)
			if denial == DenialNone {
				res.Commit()
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, admitted)
	st := l.CheckQuota(ctx, "u1", TierFree, 0)
	assert.Equal(t, 10, st.Used)
}

func TestReserve_DistinctUsersIndependent(t *testing.T) {
	l := newTestLedger(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := l.Consume(ctx, "u1", TierFree, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := l.Consume(ctx, "u2", TierFree, 0)
	require.NoError(t, err)
	assert.True(t, ok, "u2 should be unaffected by u1's exhaustion")
}

func TestReserve_BypassAdmitsPastTotal(t *testing.T) {
	cfg := testConfig()
	cfg.Bypass = true
	l := newTestLedger(t, cfg)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		res, denial, err := l.Reserve(ctx, "u1", TierFree, 0, "")
		require.NoError(t, err)
		require.Equal(t, DenialNone, denial)
		res.Commit()
	}

	st := l.CheckQuota(ctx, "u1", TierFree, 0)
	assert.Equal(t, 15, st.Used)
	assert.True(t, st.CanGenerate, "bypass forces can_generate")
}

func TestRollback_RefundsExactlyOnce(t *testing.T) {
	l := newTestLedger(t, testConfig())
	ctx := context.Background()

	res, denial, err := l.Reserve(ctx, "u1", TierFree, 0, "")
	require.NoError(t, err)
	require.Equal(t, DenialNone, denial)
	assert.Equal(t, 1, l.CheckQuota(ctx, "u1", TierFree, 0).Used)

	require.NoError(t, res.Rollback(ctx))
	assert.Equal(t, 0, l.CheckQuota(ctx, "u1", TierFree, 0).Used)

	// Second rollback must not double-refund.
	require.NoError(t, res.Rollback(ctx))
	assert.Equal(t, 0, l.CheckQuota(ctx, "u1", TierFree, 0).Used)
}

func TestRollback_AfterCommitIsNoop(t *testing.T) {
	l := newTestLedger(t, testConfig())
	ctx := context.Background()

	res, denial, err := l.Reserve(ctx, "u1", TierFree, 0, "")
	require.NoError(t, err)
	require.Equal(t, DenialNone, denial)

	res.Commit()
	require.NoError(t, res.Rollback(ctx))
	assert.Equal(t, 1, l.CheckQuota(ctx, "u1", TierFree, 0).Used)

	// Commit after rollback attempt stays committed.
	res.Commit()
	assert.Equal(t, 1, l.CheckQuota(ctx, "u1", TierFree, 0).Used)
}

func TestReserve_RetryBudget(t *testing.T) {
	cfg := testConfig()
	cfg.FreeDailyLimit = 1
	l := newTestLedger(t, cfg)
	ctx := context.Background()

	// Exhaust the quota so reservations with a request id are denied
	// on quota, spending retry attempts.
	ok, err := l.Consume(ctx, "u1", TierFree, 0)
	require.NoError(t, err)
	require.True(t, ok)

	// Attempt 1 of 2: quota denial, not retry denial.
	_, denial, err := l.Reserve(ctx, "u1", TierFree, 0, "r1")
	require.NoError(t, err)
	assert.Equal(t, DenialQuotaExhausted, denial)

	// Attempt 2 of 2: still permitted by the retry budget.
	_, denial, err = l.Reserve(ctx, "u1", TierFree, 0, "r1")
	require.NoError(t, err)
	assert.Equal(t, DenialQuotaExhausted, denial)

	// Free a unit of quota; the third attempt must still be denied on
	// the retry budget alone.
	require.NoError(t, l.store.Decrement(ctx, "u1", dayKey(time.Now(), 0)))
	_, denial, err = l.Reserve(ctx, "u1", TierFree, 0, "r1")
	require.NoError(t, err)
	assert.Equal(t, DenialRetryLimit, denial)

	// A fresh request id is unaffected.
	res, denial, err := l.Reserve(ctx, "u1", TierFree, 0, "r2")
	require.NoError(t, err)
	assert.Equal(t, DenialNone, denial)
	res.Commit()
}

func TestDayKey_TimezoneOffsetShiftsDay(t *testing.T) {
	// 2025-03-10 20:00 UTC is already 2025-03-11 in UTC+8.
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-10", dayKey(now, 0))
	assert.Equal(t, "2025-03-11", dayKey(now, 480))
	assert.Equal(t, "2025-03-10", dayKey(now, -300))
}

func TestNextResetUTC(t *testing.T) {
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)

	// UTC user: next midnight UTC.
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), nextResetUTC(now, 0))

	// UTC+8 user: local time is 2025-03-11 04:00, local midnight of the
	// 12th is 2025-03-11 16:00 UTC.
	assert.Equal(t, time.Date(2025, 3, 11, 16, 0, 0, 0, time.UTC), nextResetUTC(now, 480))
}

func TestQuotaSeparatesDays(t *testing.T) {
	l := newTestLedger(t, testConfig())
	ctx := context.Background()

	day1 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return day1 }
	for i := 0; i < 10; i++ {
		ok, err := l.Consume(ctx, "u1", TierFree, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := l.Consume(ctx, "u1", TierFree, 0)
	require.NoError(t, err)
	require.False(t, ok)

	// Next day: fresh record.
	l.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	ok, err = l.Consume(ctx, "u1", TierFree, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResetDaily(t *testing.T) {
	l := newTestLedger(t, testConfig())
	ctx := context.Background()

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	l.now = func() time.Time { return yesterday }

	ok, err := l.Consume(ctx, "u1", TierFree, 0)
	require.NoError(t, err)
	require.True(t, ok)
	_, denial, err := l.Reserve(ctx, "u1", TierFree, 0, "r1")
	require.NoError(t, err)
	require.Equal(t, DenialNone, denial)

	l.now = time.Now
	require.NoError(t, l.ResetDaily(ctx))

	// Yesterday's record is gone.
	used, err := l.store.Used(ctx, "u1", yesterday.Format("2006-01-02"))
	require.NoError(t, err)
	assert.Equal(t, 0, used)

	// Retry tokens are cleared globally, so "r1" has a fresh budget.
	for i := 0; i < 2; i++ {
		res, denial, err := l.Reserve(ctx, "u1", TierFree, 0, "r1")
		require.NoError(t, err)
		require.Equal(t, DenialNone, denial)
		require.NoError(t, res.Rollback(ctx))
	}
}

func TestMemoryStore_DecrementFloorsAtZero(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Decrement(ctx, "u1", "2025-03-10"))
	used, err := s.Used(ctx, "u1", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, 0, used)
}

func TestMemoryStore_TakeAttemptStopsAtCap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, n, err := s.TakeAttempt(ctx, "u1", "r1", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, n)

	ok, n, err = s.TakeAttempt(ctx, "u1", "r1", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	// At the cap: denied and, critically, not incremented further.
	for i := 0; i < 3; i++ {
		ok, n, err = s.TakeAttempt(ctx, "u1", "r1", 2)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 2, n)
	}
}
