package versions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptforge/promptforge/internal/config"
	"github.com/promptforge/promptforge/internal/metrics"
)

// ErrNotFound covers both a genuinely absent version and one owned by
// another user. The two cases are deliberately indistinguishable so
// version ids cannot be probed across users.
var ErrNotFound = errors.New("version not found")

// Service owns the append-only, per-user-capped prompt history.
type Service struct {
	store Store
	cfg   config.VersionsConfig
	now   func() time.Time
	newID func() string
}

func NewService(store Store, cfg config.VersionsConfig) *Service {
	return &Service{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// SaveParams carries everything a new snapshot records. UserID and
// Content are required; the rest is optional metadata.
type SaveParams struct {
	UserID        string
	Content       string
	Type          Type
	VersionNumber string
	Description   string
	Topic         string
	FrameworkID   string
	FrameworkName string
	OriginalInput string
}

// Save records a new immutable snapshot at the head of the user's
// history. Entries beyond the retention cap are evicted silently.
func (s *Service) Save(ctx context.Context, p SaveParams) (*Version, error) {
	if p.UserID == "" || p.Content == "" {
		return nil, fmt.Errorf("save version: user id and content are required")
	}
	if p.Type == "" {
		p.Type = TypeSave
	}
	if p.VersionNumber == "" {
		p.VersionNumber = "1.0"
	}

	v := Version{
		ID:            s.newID(),
		UserID:        p.UserID,
		Content:       p.Content,
		Type:          p.Type,
		CreatedAt:     s.now().UTC(),
		VersionNumber: p.VersionNumber,
		Description:   p.Description,
		Topic:         p.Topic,
		FrameworkID:   p.FrameworkID,
		FrameworkName: p.FrameworkName,
		OriginalInput: p.OriginalInput,
	}

	evicted, err := s.store.Insert(ctx, v, s.cfg.MaxVersions)
	if err != nil {
		return nil, fmt.Errorf("saving version: %w", err)
	}

	metrics.VersionsSavedTotal.WithLabelValues(string(v.Type)).Inc()
	if evicted > 0 {
		metrics.VersionsEvictedTotal.Add(float64(evicted))
		slog.Debug("versions: evicted beyond cap", "user_id", p.UserID, "evicted", evicted)
	}
	slog.Info("versions: saved", "user_id", p.UserID, "version_id", v.ID, "type", v.Type)
	return &v, nil
}

// List returns the user's history newest first, truncated to limit.
// A non-positive limit means the retention cap.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Version, error) {
	if limit <= 0 || limit > s.cfg.MaxVersions {
		limit = s.cfg.MaxVersions
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// Get finds a version by id across all users. Absent → (nil, nil).
func (s *Service) Get(ctx context.Context, id string) (*Version, error) {
	return s.store.GetByID(ctx, id)
}

// Delete removes the version only when it belongs to userID. A miss is
// reported as false, never an error.
func (s *Service) Delete(ctx context.Context, userID, id string) (bool, error) {
	deleted, err := s.store.Delete(ctx, userID, id)
	if err != nil {
		return false, fmt.Errorf("deleting version: %w", err)
	}
	if deleted {
		slog.Info("versions: deleted", "user_id", userID, "version_id", id)
	}
	return deleted, nil
}

// Count returns the size of the user's current history.
func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	return s.store.CountByUser(ctx, userID)
}

// Rollback re-saves the target version's content as a brand-new SAVE
// snapshot. The target itself is untouched and stays in history. The
// caller must own the target; an ownership mismatch is reported as
// ErrNotFound, exactly like absence.
func (s *Service) Rollback(ctx context.Context, userID, id string) (*Version, error) {
	target, err := s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading rollback target: %w", err)
	}
	if target == nil || target.UserID != userID {
		return nil, ErrNotFound
	}

	v, err := s.Save(ctx, SaveParams{
		UserID:  userID,
		Content: target.Content,
		Type:    TypeSave,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("versions: rolled back", "user_id", userID, "target_id", id, "new_id", v.ID)
	return v, nil
}

// NextVersionNumber computes the number for the next save under a
// topic: the numerically highest major.minor among the user's recent
// versions with that exact topic, minor bumped by one. The first save
// of a topic gets "1.0"; this path never bumps the major component.
func (s *Service) NextVersionNumber(ctx context.Context, userID, topic string) (string, error) {
	recent, err := s.store.ListByUser(ctx, userID, s.cfg.TopicScanLimit)
	if err != nil {
		return "", fmt.Errorf("scanning topic versions: %w", err)
	}

	bestMajor, bestMinor, found := 0, 0, false
	for _, v := range recent {
		if v.Topic != topic {
			continue
		}
		major, minor, ok := parseVersionNumber(v.VersionNumber)
		if !ok {
			continue
		}
		if !found || major > bestMajor || (major == bestMajor && minor > bestMinor) {
			bestMajor, bestMinor, found = major, minor, true
		}
	}

	if !found {
		return "1.0", nil
	}
	return fmt.Sprintf("%d.%d", bestMajor, bestMinor+1), nil
}

// parseVersionNumber splits a plain two-part dotted version string.
// No semver rules apply; anything else is ignored.
func parseVersionNumber(s string) (major, minor int, ok bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return 0, 0, false
	}
	return major, minor, true
}
