package versions

import "context"

// Store is the keyed history table behind the Service. Per-user lists
// are ordered newest first; ids are globally unique.
type Store interface {
	// Insert puts v at the head of its user's history and trims the
	// list to maxVersions, reporting how many old entries were evicted.
	Insert(ctx context.Context, v Version, maxVersions int) (evicted int, err error)

	// ListByUser returns up to limit versions, newest first. An unknown
	// user yields an empty slice, never an error.
	ListByUser(ctx context.Context, userID string, limit int) ([]Version, error)

	// GetByID scans all users' histories for the id. Absent → (nil, nil).
	GetByID(ctx context.Context, id string) (*Version, error)

	// Delete removes the version only if it exists under that specific
	// user. A miss (absent id, or owned by someone else) reports false.
	Delete(ctx context.Context, userID, id string) (bool, error)

	// CountByUser returns the size of the user's current history.
	CountByUser(ctx context.Context, userID string) (int, error)
}
