package quota

import "context"

// Store is the keyed-record backend behind the Ledger. A record is
// identified by (userID, day) where day is the calendar date in the
// user's timezone. Implementations must make each mutating call atomic
// with respect to the record it touches: two concurrent IncrementBelow
// calls for the same record must never both admit on the last unit.
type Store interface {
	// Used returns the current usage for the record, 0 if absent.
	Used(ctx context.Context, userID, day string) (int, error)

	// IncrementBelow debits one unit only if used < limit, creating the
	// record if needed. It reports whether the debit happened and the
	// usage after the call.
	IncrementBelow(ctx context.Context, userID, day string, limit int) (admitted bool, used int, err error)

	// Increment debits one unit unconditionally (bypass mode).
	Increment(ctx context.Context, userID, day string) (used int, err error)

	// Decrement refunds one unit, floored at zero.
	Decrement(ctx context.Context, userID, day string) error

	// PurgeDay deletes every record for the given day and reports how
	// many were removed.
	PurgeDay(ctx context.Context, day string) (int, error)

	// TakeAttempt increments the attempt counter for (userID, requestID)
	// unless it has already reached maxAttempts, in which case the
	// counter is left untouched and ok is false.
	TakeAttempt(ctx context.Context, userID, requestID string, maxAttempts int) (ok bool, attempts int, err error)

	// ClearAttempts drops every retry counter. The daily sweep calls
	// this as a coarse global cleanup rather than expiring tokens
	// individually.
	ClearAttempts(ctx context.Context) (int, error)
}
