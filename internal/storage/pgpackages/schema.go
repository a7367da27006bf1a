package pgpackages

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS packages (
  tracking_number TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  status TEXT NOT NULL,
  status_slug TEXT NOT NULL,
  friendly_name TEXT NULL,
  info_text TEXT NULL,
  event_time TIMESTAMPTZ NULL,
  origin_country TEXT NULL,
  destination_country TEXT NULL,
  package_type TEXT NULL,
  tracking_info_language TEXT NULL,
  location TEXT NULL,
  first_seen_at TIMESTAMPTZ NOT NULL,
  last_seen_at TIMESTAMPTZ NOT NULL,
  removed_at TIMESTAMPTZ NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_packages_account_status ON packages(account_id, status_slug)`,
		`
CREATE TABLE IF NOT EXISTS package_events (
  id BIGSERIAL PRIMARY KEY,
  tracking_number TEXT NOT NULL REFERENCES packages(tracking_number) ON DELETE CASCADE,
  status TEXT NOT NULL,
  event_time TIMESTAMPTZ NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_package_events_number_time ON package_events(tracking_number, event_time DESC)`,
		// The same latest event shows up in every snapshot until the carrier reports a new one.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_package_events_dedup ON package_events(tracking_number, status, event_time, location, message)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
