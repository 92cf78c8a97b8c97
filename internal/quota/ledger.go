package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/promptforge/promptforge/internal/config"
	"github.com/promptforge/promptforge/internal/metrics"
)

// Ledger is the admission controller for the metered per-user-per-day
// generation action. It debits quota up front and lets callers commit
// or roll back once the outcome of the paid-for work is known.
type Ledger struct {
	store Store
	cfg   config.QuotaConfig
	now   func() time.Time
}

func NewLedger(store Store, cfg config.QuotaConfig) *Ledger {
	return &Ledger{store: store, cfg: cfg, now: time.Now}
}

func (l *Ledger) limitFor(tier Tier) int {
	if tier == TierPro {
		return l.cfg.ProDailyLimit
	}
	return l.cfg.FreeDailyLimit
}

// CheckQuota reports the user's standing for their current local day.
// It never mutates state. Store read failures degrade to zero usage
// with a warning rather than failing the check.
func (l *Ledger) CheckQuota(ctx context.Context, userID string, tier Tier, tzOffsetMin int) Status {
	now := l.now()
	day := dayKey(now, tzOffsetMin)
	total := l.limitFor(tier)

	used, err := l.store.Used(ctx, userID, day)
	if err != nil {
		slog.Warn("quota: read failed, assuming zero usage", "user_id", userID, "error", err)
		used = 0
	}

	canGenerate := used < total
	if l.cfg.Bypass {
		canGenerate = true
	}

	return Status{
		UserID:      userID,
		Used:        used,
		Total:       total,
		ResetTime:   nextResetUTC(now, tzOffsetMin),
		CanGenerate: canGenerate,
	}
}

// Reserve debits one unit of the user's daily quota and returns a
// Reservation to be committed or rolled back by the caller. A non-empty
// requestID enrolls the call in the retry budget: once the same
// (user, request) pair has used its first attempt plus MaxRetries
// retries, further reservations are denied regardless of quota.
// Denials are reported via the Denial value, not the error.
func (l *Ledger) Reserve(ctx context.Context, userID string, tier Tier, tzOffsetMin int, requestID string) (*Reservation, Denial, error) {
	if requestID != "" {
		maxAttempts := l.cfg.MaxRetries + 1
		ok, attempt, err := l.store.TakeAttempt(ctx, userID, requestID, maxAttempts)
		if err != nil {
			return nil, DenialNone, fmt.Errorf("checking retry budget: %w", err)
		}
		if !ok {
			slog.Warn("quota: retry budget exhausted",
				"user_id", userID, "request_id", requestID, "max_attempts", maxAttempts)
			metrics.QuotaReservationsTotal.WithLabelValues("retry_denied").Inc()
			return nil, DenialRetryLimit, nil
		}
		slog.Debug("quota: attempt taken",
			"user_id", userID, "request_id", requestID, "attempt", attempt, "max_attempts", maxAttempts)
	}

	day := dayKey(l.now(), tzOffsetMin)

	var used int
	if l.cfg.Bypass {
		var err error
		used, err = l.store.Increment(ctx, userID, day)
		if err != nil {
			return nil, DenialNone, fmt.Errorf("debiting quota: %w", err)
		}
	} else {
		admitted, u, err := l.store.IncrementBelow(ctx, userID, day, l.limitFor(tier))
		if err != nil {
			return nil, DenialNone, fmt.Errorf("debiting quota: %w", err)
		}
		if !admitted {
			slog.Info("quota: exhausted", "user_id", userID, "used", u, "total", l.limitFor(tier))
			metrics.QuotaReservationsTotal.WithLabelValues("quota_denied").Inc()
			return nil, DenialQuotaExhausted, nil
		}
		used = u
	}

	metrics.QuotaReservationsTotal.WithLabelValues("admitted").Inc()
	slog.Debug("quota: reserved", "user_id", userID, "day", day, "used", used)

	return &Reservation{store: l.store, userID: userID, day: day, state: stateConsumed}, DenialNone, nil
}

// Consume is the one-shot path: reserve without a request id and commit
// immediately. It reports whether admission succeeded.
func (l *Ledger) Consume(ctx context.Context, userID string, tier Tier, tzOffsetMin int) (bool, error) {
	res, denial, err := l.Reserve(ctx, userID, tier, tzOffsetMin, "")
	if err != nil {
		return false, err
	}
	if denial != DenialNone {
		return false, nil
	}
	res.Commit()
	return true, nil
}

// ResetDaily purges quota records for yesterday (UTC) and clears every
// retry token. It runs once per UTC day as a coarse global sweep; the
// per-user effective reset happens at read time through the tz-shifted
// day key regardless of this job.
func (l *Ledger) ResetDaily(ctx context.Context) error {
	yesterday := l.now().UTC().AddDate(0, 0, -1).Format("2006-01-02")

	purged, err := l.store.PurgeDay(ctx, yesterday)
	if err != nil {
		return fmt.Errorf("purging quota records: %w", err)
	}

	cleared, err := l.store.ClearAttempts(ctx)
	if err != nil {
		return fmt.Errorf("clearing retry tokens: %w", err)
	}

	slog.Info("quota: daily reset", "day", yesterday, "records_purged", purged, "retry_tokens_cleared", cleared)
	return nil
}

type resState int

const (
	stateConsumed resState = iota
	stateCommitted
	stateRolledBack
)

// Reservation is a provisional debit against a quota record. It starts
// consumed and moves exactly once to committed or rolled back; any
// further Commit or Rollback call is a safe no-op.
type Reservation struct {
	mu     sync.Mutex
	store  Store
	userID string
	day    string
	state  resState
}

// Commit finalizes the reservation as spent. Idempotent.
func (r *Reservation) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateConsumed {
		return
	}
	r.state = stateCommitted
	slog.Debug("quota: reservation committed", "user_id", r.userID, "day", r.day)
}

// Rollback refunds the debited unit because the work it paid for
// failed. Calling it after Commit, or a second time, does nothing.
// If the refund write fails the reservation stays consumed so the
// caller may retry the rollback.
func (r *Reservation) Rollback(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateConsumed {
		return nil
	}
	if err := r.store.Decrement(ctx, r.userID, r.day); err != nil {
		return fmt.Errorf("refunding reservation: %w", err)
	}
	r.state = stateRolledBack
	metrics.QuotaRollbacksTotal.Inc()
	slog.Info("quota: reservation rolled back", "user_id", r.userID, "day", r.day)
	return nil
}
