package coordinator

import "github.com/BearBump/TrackSync/internal/models"

const (
	slugDelivered = "delivered"
	slugArchived  = "archived"
)

// Visible applies the display flags to p. Snapshots themselves are never filtered.
func (o Options) Visible(p *models.Package) bool {
	switch p.StatusSlug() {
	case slugDelivered:
		return o.ShowDelivered
	case slugArchived:
		return o.ShowArchived
	default:
		return true
	}
}

// VisiblePackages returns the packages of s that pass o, in snapshot order.
func (o Options) VisiblePackages(s *Snapshot) []*models.Package {
	out := make([]*models.Package, 0, s.Len())
	for _, p := range s.Packages() {
		if o.Visible(p) {
			out = append(out, p)
		}
	}
	return out
}
