package messages

import (
	"time"

	"github.com/BearBump/TrackSync/internal/models"
)

// SnapshotUpdated carries a complete package snapshot of one 17TRACK account.
// Consumers rebuild the status summary from Packages.
type SnapshotUpdated struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	GeneratedAt time.Time `json:"generated_at"`

	Packages []*models.Package `json:"packages"`
}
