package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS throttle_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL,
		url TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		source TEXT NOT NULL,
		retry_after_ms INTEGER,
		attempt INTEGER NOT NULL,
		detected_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_throttle_events_domain ON throttle_events(domain, detected_at);`,
	`CREATE TABLE IF NOT EXISTS domain_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL,
		acquisitions INTEGER NOT NULL DEFAULT 0,
		total_wait_ms INTEGER NOT NULL DEFAULT 0,
		detections INTEGER NOT NULL DEFAULT 0,
		adaptive_delay_ms INTEGER,
		recorded_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_domain_snapshots_domain ON domain_snapshots(domain, recorded_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
