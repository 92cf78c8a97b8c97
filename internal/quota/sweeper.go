package quota

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs the ledger's daily reset once per UTC day. It is a
// coarse background job: the authoritative per-user reset is the
// tz-shifted day key, the sweeper only reclaims storage.
type Sweeper struct {
	ledger   *Ledger
	interval time.Duration
	lastDay  string
}

func NewSweeper(ledger *Ledger) *Sweeper {
	return &Sweeper{ledger: ledger, interval: time.Minute}
}

// Run blocks until ctx is cancelled, firing ResetDaily on the first
// tick of each new UTC day.
func (s *Sweeper) Run(ctx context.Context) {
	s.lastDay = time.Now().UTC().Format("2006-01-02")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			day := time.Now().UTC().Format("2006-01-02")
			if day == s.lastDay {
				continue
			}
			if err := s.ledger.ResetDaily(ctx); err != nil {
				slog.Error("quota: daily reset failed", "error", err)
				continue // retry on the next tick
			}
			s.lastDay = day
		}
	}
}
