package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore backs the Ledger with the quota_records and retry_tokens
// tables. Every debit/refund is a single statement so atomicity comes
// from the database and no lock is held across the network round trip.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Used(ctx context.Context, userID, day string) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx,
		`SELECT used FROM quota_records WHERE user_id = $1 AND day = $2`,
		userID, day,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying quota record: %w", err)
	}
	return used, nil
}

func (s *PostgresStore) IncrementBelow(ctx context.Context, userID, day string, limit int) (bool, int, error) {
	var used int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO quota_records (user_id, day, used) VALUES ($1, $2, 1)
		 ON CONFLICT (user_id, day) DO UPDATE
		     SET used = quota_records.used + 1, updated_at = NOW()
		     WHERE quota_records.used < $3
		 RETURNING used`,
		userID, day, limit,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict row exists but the WHERE guard refused the debit.
		used, err = s.Used(ctx, userID, day)
		if err != nil {
			return false, 0, err
		}
		return false, used, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("debiting quota record: %w", err)
	}
	return true, used, nil
}

func (s *PostgresStore) Increment(ctx context.Context, userID, day string) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO quota_records (user_id, day, used) VALUES ($1, $2, 1)
		 ON CONFLICT (user_id, day) DO UPDATE
		     SET used = quota_records.used + 1, updated_at = NOW()
		 RETURNING used`,
		userID, day,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("incrementing quota record: %w", err)
	}
	return used, nil
}

func (s *PostgresStore) Decrement(ctx context.Context, userID, day string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE quota_records
		 SET used = GREATEST(used - 1, 0), updated_at = NOW()
		 WHERE user_id = $1 AND day = $2`,
		userID, day,
	)
	if err != nil {
		return fmt.Errorf("refunding quota record: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeDay(ctx context.Context, day string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quota_records WHERE day = $1`, day)
	if err != nil {
		return 0, fmt.Errorf("purging quota records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) TakeAttempt(ctx context.Context, userID, requestID string, maxAttempts int) (bool, int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO retry_tokens (user_id, request_id, attempts) VALUES ($1, $2, 1)
		 ON CONFLICT (user_id, request_id) DO UPDATE
		     SET attempts = retry_tokens.attempts + 1, updated_at = NOW()
		     WHERE retry_tokens.attempts < $3
		 RETURNING attempts`,
		userID, requestID, maxAttempts,
	).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, maxAttempts, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("taking retry attempt: %w", err)
	}
	return true, attempts, nil
}

func (s *PostgresStore) ClearAttempts(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM retry_tokens`)
	if err != nil {
		return 0, fmt.Errorf("clearing retry tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
