package coordinator

import (
	"slices"

	"github.com/BearBump/TrackSync/internal/models"
)

// StatusBucket groups packages sharing a status slug.
type StatusBucket struct {
	Slug       string            `json:"slug"`
	StatusName string            `json:"status_name"`
	Quantity   int               `json:"quantity"`
	Packages   []*models.Package `json:"packages"`
}

// Snapshot is a complete, read-only view of all tracked packages.
// It is built once and never mutated after it is published.
type Snapshot struct {
	packages map[string]*models.Package
	buckets  map[string]*StatusBucket
	order    []string
}

// BuildSnapshot sorts pkgs by models.ComparePackages and groups them by status slug.
// Buckets keep first-seen order. The input slice is not modified.
func BuildSnapshot(pkgs []*models.Package) *Snapshot {
	sorted := slices.Clone(pkgs)
	slices.SortStableFunc(sorted, models.ComparePackages)

	s := &Snapshot{
		packages: make(map[string]*models.Package, len(sorted)),
		buckets:  make(map[string]*StatusBucket),
		order:    make([]string, 0),
	}
	for _, p := range sorted {
		s.packages[p.TrackingNumber] = p

		slug := p.StatusSlug()
		b, ok := s.buckets[slug]
		if !ok {
			b = &StatusBucket{Slug: slug, StatusName: p.Status, Packages: make([]*models.Package, 0)}
			s.buckets[slug] = b
			s.order = append(s.order, slug)
		}
		b.Quantity++
		b.Packages = append(b.Packages, p)
	}
	return s
}

// Package returns the package with the given tracking number.
func (s *Snapshot) Package(trackingNumber string) (*models.Package, bool) {
	p, ok := s.packages[trackingNumber]
	return p, ok
}

// Bucket returns a copy of the bucket for a status slug.
func (s *Snapshot) Bucket(slug string) (*StatusBucket, bool) {
	b, ok := s.buckets[slug]
	if !ok {
		return nil, false
	}
	return b.clone(), true
}

// Summary returns copies of the buckets in first-seen order.
func (s *Snapshot) Summary() []*StatusBucket {
	out := make([]*StatusBucket, 0, len(s.order))
	for _, slug := range s.order {
		out = append(out, s.buckets[slug].clone())
	}
	return out
}

// clone copies the bucket and its member list; packages themselves are immutable.
func (b *StatusBucket) clone() *StatusBucket {
	c := *b
	c.Packages = slices.Clone(b.Packages)
	return &c
}

// Packages returns all packages in sorted order.
func (s *Snapshot) Packages() []*models.Package {
	out := make([]*models.Package, 0, len(s.packages))
	for _, p := range s.packages {
		out = append(out, p)
	}
	slices.SortStableFunc(out, models.ComparePackages)
	return out
}

func (s *Snapshot) Len() int {
	return len(s.packages)
}
