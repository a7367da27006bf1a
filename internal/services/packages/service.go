package packages

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/TrackSync/internal/broker/messages"
	"github.com/BearBump/TrackSync/internal/cache"
	"github.com/BearBump/TrackSync/internal/models"
	"github.com/BearBump/TrackSync/internal/services/coordinator"
	"github.com/pkg/errors"
)

const summaryKey = "summary:current"

var ErrNotFound = errors.New("package not found")

type Repository interface {
	SaveSnapshot(ctx context.Context, msg messages.SnapshotUpdated) error
	ListPackages(ctx context.Context) ([]*models.PackageRecord, error)
	GetPackage(ctx context.Context, number string) (*models.PackageRecord, error)
	ListPackageEvents(ctx context.Context, number string, limit, offset int) ([]*models.PackageEvent, error)
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	summaryTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, summaryTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, summaryTTL: summaryTTL}
}

// ApplySnapshot stores a published snapshot and drops the cached summary.
// Storage decides what a late or replayed snapshot may change, so the summary is
// always rebuilt from it on the next read.
func (s *Service) ApplySnapshot(ctx context.Context, msg messages.SnapshotUpdated) error {
	if msg.AccountID == "" {
		return errors.New("account_id is required")
	}
	if msg.GeneratedAt.IsZero() {
		msg.GeneratedAt = time.Now().UTC()
	}

	if err := s.repo.SaveSnapshot(ctx, msg); err != nil {
		return err
	}

	if s.cacheEnabled() {
		if err := s.cache.Delete(ctx, summaryKey); err != nil {
			slog.Warn("invalidate summary cache", "account", msg.AccountID, "error", err.Error())
		}
	}
	return nil
}

// GetSummary returns the status buckets of all packages still registered, across accounts.
func (s *Service) GetSummary(ctx context.Context) ([]*coordinator.StatusBucket, error) {
	if s.cacheEnabled() {
		if b, ok, err := s.cache.Get(ctx, summaryKey); err == nil && ok {
			var out []*coordinator.StatusBucket
			if json.Unmarshal(b, &out) == nil {
				return out, nil
			}
		}
	}

	recs, err := s.repo.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	pkgs := make([]*models.Package, 0, len(recs))
	for _, r := range recs {
		p := r.Package
		pkgs = append(pkgs, &p)
	}
	summary := coordinator.BuildSnapshot(pkgs).Summary()

	if s.cacheEnabled() {
		s.storeSummary(ctx, summary)
	}
	return summary, nil
}

func (s *Service) ListPackages(ctx context.Context, opts coordinator.Options) ([]*models.PackageRecord, error) {
	recs, err := s.repo.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.PackageRecord, 0, len(recs))
	for _, r := range recs {
		if opts.Visible(&r.Package) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) GetPackage(ctx context.Context, number string) (*models.PackageRecord, error) {
	if number == "" {
		return nil, errors.New("number is required")
	}
	rec, err := s.repo.GetPackage(ctx, number)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *Service) ListPackageEvents(ctx context.Context, number string, limit, offset int) ([]*models.PackageEvent, error) {
	if number == "" {
		return nil, errors.New("number is required")
	}
	return s.repo.ListPackageEvents(ctx, number, limit, offset)
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.summaryTTL > 0
}

func (s *Service) storeSummary(ctx context.Context, summary []*coordinator.StatusBucket) {
	b, err := json.Marshal(summary)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, summaryKey, b, s.summaryTTL)
}
