package models

import "time"

// PackageRecord is a package as kept by the read side, with bookkeeping timestamps.
type PackageRecord struct {
	Package
	StatusSlug  string     `json:"status_slug"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	RemovedAt   *time.Time `json:"removed_at,omitempty"`
}

// PackageEvent is one observed latest event of a package.
type PackageEvent struct {
	ID             uint64    `json:"id"`
	TrackingNumber string    `json:"tracking_number"`
	Status         string    `json:"status"`
	EventTime      time.Time `json:"event_time"`
	Location       *string   `json:"location,omitempty"`
	Message        *string   `json:"message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
