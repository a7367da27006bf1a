package pgpackages

import (
	"context"
	"time"

	"github.com/BearBump/TrackSync/internal/broker/messages"
	"github.com/BearBump/TrackSync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const packageColumns = `
  tracking_number, status, status_slug,
  friendly_name, info_text, event_time,
  origin_country, destination_country, package_type,
  tracking_info_language, location,
  first_seen_at, last_seen_at, removed_at`

// SaveSnapshot upserts every package of the snapshot, records its latest event and
// marks packages of the same account that are no longer reported as removed.
// Snapshots older than the last one applied for a package do not overwrite it.
func (s *Storage) SaveSnapshot(ctx context.Context, msg messages.SnapshotUpdated) error {
	seenAt := msg.GeneratedAt.UTC()
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	numbers := make([]string, 0, len(msg.Packages))
	for _, p := range msg.Packages {
		if p == nil || p.TrackingNumber == "" {
			continue
		}
		numbers = append(numbers, p.TrackingNumber)

		_, err := tx.Exec(ctx, `
INSERT INTO packages (
  tracking_number, account_id, status, status_slug,
  friendly_name, info_text, event_time,
  origin_country, destination_country, package_type,
  tracking_info_language, location,
  first_seen_at, last_seen_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
ON CONFLICT (tracking_number) DO UPDATE SET
  account_id = EXCLUDED.account_id,
  status = EXCLUDED.status,
  status_slug = EXCLUDED.status_slug,
  friendly_name = EXCLUDED.friendly_name,
  info_text = EXCLUDED.info_text,
  event_time = EXCLUDED.event_time,
  origin_country = EXCLUDED.origin_country,
  destination_country = EXCLUDED.destination_country,
  package_type = EXCLUDED.package_type,
  tracking_info_language = EXCLUDED.tracking_info_language,
  location = EXCLUDED.location,
  last_seen_at = EXCLUDED.last_seen_at,
  removed_at = NULL
WHERE packages.last_seen_at < EXCLUDED.last_seen_at
`, p.TrackingNumber, msg.AccountID, p.Status, p.StatusSlug(),
			p.FriendlyName, p.InfoText, p.Timestamp,
			p.OriginCountry, p.DestinationCountry, p.PackageType,
			p.TrackingInfoLanguage, p.Location, seenAt)
		if err != nil {
			return errors.Wrap(err, "upsert package")
		}

		if p.Timestamp == nil {
			continue
		}
		_, err = tx.Exec(ctx, `
INSERT INTO package_events (tracking_number, status, event_time, location, message, created_at)
VALUES ($1,$2,$3,$4,$5, now())
ON CONFLICT (tracking_number, status, event_time, location, message) DO NOTHING
`, p.TrackingNumber, p.Status, p.Timestamp.UTC(), deref(p.Location), deref(p.InfoText))
		if err != nil {
			return errors.Wrap(err, "insert package event")
		}
	}

	_, err = tx.Exec(ctx, `
UPDATE packages
SET removed_at = $3
WHERE account_id = $1
  AND removed_at IS NULL
  AND last_seen_at < $3
  AND NOT (tracking_number = ANY($2))
`, msg.AccountID, numbers, seenAt)
	if err != nil {
		return errors.Wrap(err, "mark removed packages")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// ListPackages returns packages still reported by 17TRACK, ordered by tracking number.
func (s *Storage) ListPackages(ctx context.Context) ([]*models.PackageRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT`+packageColumns+`
FROM packages
WHERE removed_at IS NULL
ORDER BY tracking_number ASC
`)
	if err != nil {
		return nil, errors.Wrap(err, "select packages")
	}
	defer rows.Close()

	out := make([]*models.PackageRecord, 0)
	for rows.Next() {
		rec, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// GetPackage returns (nil, nil) when the package was never seen.
func (s *Storage) GetPackage(ctx context.Context, number string) (*models.PackageRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT`+packageColumns+`
FROM packages
WHERE tracking_number = $1
`, number)
	rec, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func scanPackage(row pgx.Row) (*models.PackageRecord, error) {
	var r models.PackageRecord
	if err := row.Scan(
		&r.TrackingNumber, &r.Status, &r.StatusSlug,
		&r.FriendlyName, &r.InfoText, &r.Timestamp,
		&r.OriginCountry, &r.DestinationCountry, &r.PackageType,
		&r.TrackingInfoLanguage, &r.Location,
		&r.FirstSeenAt, &r.LastSeenAt, &r.RemovedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan package")
	}
	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
