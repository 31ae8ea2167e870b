package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crawlpace/crawlpace/internal/core"
)

// EventEntry is a stored throttle event.
type EventEntry struct {
	ID    int64              `json:"id"`
	Event core.ThrottleEvent `json:"event"`
}

// EventQuery selects stored events or snapshots by domain.
type EventQuery struct {
	All    bool
	Domain string
	Prefix string
	Limit  int
}

func (q EventQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Domain) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --domain, or --prefix")
}

func (q EventQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if domain := strings.TrimSpace(q.Domain); domain != "" {
		return "WHERE domain = ?", []any{strings.ToLower(domain)}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return "WHERE domain LIKE ?", []any{strings.ToLower(prefix) + "%"}, nil
}

func (q EventQuery) limitClause() string {
	if q.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf("LIMIT %d", q.Limit)
}

// RecordThrottleEvent appends one detection to the history.
func (s *Store) RecordThrottleEvent(ctx context.Context, event core.ThrottleEvent) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(event.Domain) == "" {
		return errors.New("event domain is required")
	}

	var retryAfter sql.NullInt64
	if event.RetryAfter != nil {
		retryAfter = sql.NullInt64{Int64: event.RetryAfter.Milliseconds(), Valid: true}
	}
	detectedAt := event.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO throttle_events (domain, url, status_code, source, retry_after_ms, attempt, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.Domain, event.URL, event.StatusCode, string(event.Source), retryAfter, event.Attempt, detectedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store throttle event: %w", err)
	}
	return nil
}

// ListEvents returns matching events, newest first.
func (s *Store) ListEvents(ctx context.Context, q EventQuery) ([]EventEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, domain, url, status_code, source, retry_after_ms, attempt, detected_at
		FROM throttle_events
		%s
		ORDER BY detected_at DESC, id DESC
		%s
	`, where, q.limitClause()), args...)
	if err != nil {
		return nil, fmt.Errorf("list throttle events: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []EventEntry{}
	for rows.Next() {
		var (
			entry      EventEntry
			source     string
			retryAfter sql.NullInt64
			detectedAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.Event.Domain, &entry.Event.URL, &entry.Event.StatusCode,
			&source, &retryAfter, &entry.Event.Attempt, &detectedAt); err != nil {
			return nil, fmt.Errorf("scan throttle events: %w", err)
		}
		entry.Event.Source = core.DetectionSource(source)
		entry.Event.DetectedAt = time.UnixMilli(detectedAt).UTC()
		if retryAfter.Valid {
			value := time.Duration(retryAfter.Int64) * time.Millisecond
			entry.Event.RetryAfter = &value
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list throttle events: %w", err)
	}

	return entries, nil
}

// CountEvents counts matching events.
func (s *Store) CountEvents(ctx context.Context, q EventQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM throttle_events
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count throttle events: %w", err)
	}
	return count, nil
}

// ResetEvents deletes matching events and snapshots. It returns the number
// of event rows removed.
func (s *Store) ResetEvents(ctx context.Context, q EventQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM throttle_events
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset throttle events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset throttle events: %w", err)
	}

	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM domain_snapshots
		%s
	`, where), args...); err != nil {
		return 0, fmt.Errorf("reset domain snapshots: %w", err)
	}
	return affected, nil
}
