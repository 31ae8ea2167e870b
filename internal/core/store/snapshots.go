package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/crawlpace/crawlpace/internal/core"
)

// Snapshot is one stored end-of-run domain summary.
type Snapshot struct {
	Domain        string         `json:"domain"`
	Acquisitions  int64          `json:"acquisitions"`
	TotalWait     time.Duration  `json:"total_wait"`
	Detections    int64          `json:"detections"`
	AdaptiveDelay *time.Duration `json:"adaptive_delay,omitempty"`
	RecordedAt    time.Time      `json:"recorded_at"`
}

// SaveSnapshots stores a summary row for every domain in diag.
func (s *Store) SaveSnapshots(ctx context.Context, diag core.Diagnostics) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	recordedAt := diag.GeneratedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, domain := range diag.Domains {
		var (
			acquisitions int64
			totalWait    int64
			detections   int64
			adaptive     sql.NullInt64
		)
		if domain.Admission != nil {
			acquisitions = domain.Admission.Acquisitions
			totalWait = domain.Admission.TotalWait.Milliseconds()
		}
		if domain.Signals != nil {
			detections = domain.Signals.Detections
		}
		if domain.Adaptive != nil {
			adaptive = sql.NullInt64{Int64: domain.Adaptive.CurrentDelay.Milliseconds(), Valid: true}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO domain_snapshots (domain, acquisitions, total_wait_ms, detections, adaptive_delay_ms, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, domain.Domain, acquisitions, totalWait, detections, adaptive, recordedAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("store snapshot for %s: %w", domain.Domain, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns matching snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, q EventQuery) ([]Snapshot, error) {
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
		SELECT domain, acquisitions, total_wait_ms, detections, adaptive_delay_ms, recorded_at
		FROM domain_snapshots
		%s
		ORDER BY recorded_at DESC, domain
		%s
	`, where, q.limitClause()), args...)
	if err != nil {
		return nil, fmt.Errorf("list domain snapshots: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	snapshots := []Snapshot{}
	for rows.Next() {
		var (
			snap       Snapshot
			totalWait  int64
			adaptive   sql.NullInt64
			recordedAt int64
		)
		if err := rows.Scan(&snap.Domain, &snap.Acquisitions, &totalWait, &snap.Detections, &adaptive, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan domain snapshots: %w", err)
		}
		snap.TotalWait = time.Duration(totalWait) * time.Millisecond
		snap.RecordedAt = time.UnixMilli(recordedAt).UTC()
		if adaptive.Valid {
			value := time.Duration(adaptive.Int64) * time.Millisecond
			snap.AdaptiveDelay = &value
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list domain snapshots: %w", err)
	}
	return snapshots, nil
}
