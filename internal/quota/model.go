package quota

import "time"

// Tier is the account tier that selects the daily limit. Exactly two
// tiers exist; anything unrecognized is treated as free.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Status reports a user's standing for the current day in their timezone.
type Status struct {
	UserID      string    `json:"user_id"`
	Used        int       `json:"used"`
	Total       int       `json:"total"`
	ResetTime   time.Time `json:"reset_time"` // next local midnight, in UTC
	CanGenerate bool      `json:"can_generate"`
}

// Denial explains why a reservation was refused. Denials are normal
// outcomes, not errors.
type Denial int

const (
	DenialNone Denial = iota
	DenialQuotaExhausted
	DenialRetryLimit
)

func (d Denial) String() string {
	switch d {
	case DenialQuotaExhausted:
		return "quota_exhausted"
	case DenialRetryLimit:
		return "retry_limit_exceeded"
	default:
		return "none"
	}
}

// dayKey returns the calendar date at the user's UTC offset (minutes),
// e.g. +480 for UTC+8. Quota records are keyed by (user, this date).
func dayKey(now time.Time, tzOffsetMin int) string {
	return now.UTC().Add(time.Duration(tzOffsetMin) * time.Minute).Format("2006-01-02")
}

// nextResetUTC returns the user's next local midnight converted to UTC.
func nextResetUTC(now time.Time, tzOffsetMin int) time.Time {
	off := time.Duration(tzOffsetMin) * time.Minute
	local := now.UTC().Add(off)
	tomorrow := local.AddDate(0, 0, 1)
	localMidnight := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, time.UTC)
	return localMidnight.Add(-off)
}
