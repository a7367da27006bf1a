package pgpackages

import (
	"context"

	"github.com/BearBump/TrackSync/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) ListPackageEvents(ctx context.Context, number string, limit, offset int) ([]*models.PackageEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, tracking_number, status, event_time, location, message, created_at
FROM package_events
WHERE tracking_number = $1
ORDER BY event_time DESC
LIMIT $2 OFFSET $3
`, number, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	out := make([]*models.PackageEvent, 0)
	for rows.Next() {
		var e models.PackageEvent
		var location, message string
		if err := rows.Scan(&e.ID, &e.TrackingNumber, &e.Status, &e.EventTime, &location, &message, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		if location != "" {
			e.Location = &location
		}
		if message != "" {
			e.Message = &message
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
