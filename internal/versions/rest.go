package versions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/promptforge/promptforge/internal/config"
)

// RestStore keeps version rows in a remote table exposed through a
// PostgREST-style row API. Transient failures are retried; read paths
// degrade to an in-memory fallback that mirrors successful writes, so
// a flaky table connection hides recent history at worst. Write
// failures always surface to the caller.
type RestStore struct {
	baseURL  string
	apiKey   string
	table    string
	attempts uint
	client   *http.Client
	fallback *MemoryStore
}

func NewRestStore(cfg config.VersionsConfig) *RestStore {
	return &RestStore{
		baseURL:  strings.TrimRight(cfg.RestURL, "/"),
		apiKey:   cfg.RestKey,
		table:    cfg.RestTable,
		attempts: uint(cfg.RestRetry),
		client:   &http.Client{Timeout: 10 * time.Second},
		fallback: NewMemoryStore(),
	}
}

var _ Store = (*RestStore)(nil)

func (s *RestStore) tableURL(query url.Values) string {
	u := s.baseURL + "/rest/v1/" + s.table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do performs one table-API call with retries on network errors and
// 5xx responses. 4xx responses are not retried.
func (s *RestStore) do(ctx context.Context, method string, query url.Values, body, out any, prefer string) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding table row: %w", err)
		}
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, method, s.tableURL(query), bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("apikey", s.apiKey)
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
			req.Header.Set("Content-Type", "application/json")
			if prefer != "" {
				req.Header.Set("Prefer", prefer)
			}

			resp, err := s.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 {
				return fmt.Errorf("table api %s %s: status %d", method, s.table, resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("table api %s %s: status %d", method, s.table, resp.StatusCode))
			}
			if out != nil {
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					return retry.Unrecoverable(fmt.Errorf("decoding table response: %w", err))
				}
			}
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Context(ctx),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

func (s *RestStore) Insert(ctx context.Context, v Version, maxVersions int) (int, error) {
	if err := s.do(ctx, http.MethodPost, nil, []Version{v}, nil, "return=minimal"); err != nil {
		return 0, fmt.Errorf("inserting version row: %w", err)
	}
	// Mirror into the fallback so degraded reads see recent history.
	_, _ = s.fallback.Insert(ctx, v, maxVersions)
	return s.trim(ctx, v.UserID, maxVersions)
}

// trim enforces the retention cap remotely. Eviction is best-effort
// housekeeping after a write that already succeeded, so its own
// failures are logged rather than surfaced.
func (s *RestStore) trim(ctx context.Context, userID string, maxVersions int) (int, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("select", "id")
	q.Set("order", "created_at.desc")
	q.Set("offset", strconv.Itoa(maxVersions))

	var rows []struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodGet, q, nil, &rows, ""); err != nil {
		slog.Warn("versions: retention scan failed", "user_id", userID, "error", err)
		return 0, nil
	}
	if len(rows) == 0 {
		return 0, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	dq := url.Values{}
	dq.Set("user_id", "eq."+userID)
	dq.Set("id", "in.("+strings.Join(ids, ",")+")")
	if err := s.do(ctx, http.MethodDelete, dq, nil, nil, ""); err != nil {
		slog.Warn("versions: eviction failed", "user_id", userID, "count", len(ids), "error", err)
		return 0, nil
	}
	return len(ids), nil
}

func (s *RestStore) ListByUser(ctx context.Context, userID string, limit int) ([]Version, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("order", "created_at.desc")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var rows []Version
	if err := s.do(ctx, http.MethodGet, q, nil, &rows, ""); err != nil {
		slog.Warn("versions: remote list failed, serving fallback", "user_id", userID, "error", err)
		return s.fallback.ListByUser(ctx, userID, limit)
	}
	if rows == nil {
		rows = []Version{}
	}
	return rows, nil
}

func (s *RestStore) GetByID(ctx context.Context, id string) (*Version, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("limit", "1")

	var rows []Version
	if err := s.do(ctx, http.MethodGet, q, nil, &rows, ""); err != nil {
		slog.Warn("versions: remote get failed, serving fallback", "id", id, "error", err)
		return s.fallback.GetByID(ctx, id)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *RestStore) Delete(ctx context.Context, userID, id string) (bool, error) {
	// Ownership check first: deleting a row that is absent or owned by
	// someone else reports false, it is not an error.
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("user_id", "eq."+userID)
	q.Set("select", "id")

	var rows []struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodGet, q, nil, &rows, ""); err != nil {
		return false, fmt.Errorf("checking version ownership: %w", err)
	}
	if len(rows) == 0 {
		return false, nil
	}

	dq := url.Values{}
	dq.Set("id", "eq."+id)
	dq.Set("user_id", "eq."+userID)
	if err := s.do(ctx, http.MethodDelete, dq, nil, nil, ""); err != nil {
		return false, fmt.Errorf("deleting version row: %w", err)
	}
	_, _ = s.fallback.Delete(ctx, userID, id)
	return true, nil
}

func (s *RestStore) CountByUser(ctx context.Context, userID string) (int, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("select", "id")

	var rows []struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodGet, q, nil, &rows, ""); err != nil {
		slog.Warn("versions: remote count failed, serving fallback", "user_id", userID, "error", err)
		return s.fallback.CountByUser(ctx, userID)
	}
	return len(rows), nil
}
