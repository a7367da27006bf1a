package fake

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
)

var statuses = []string{"InfoReceived", "InTransit", "InTransit", "OutForDelivery", "Delivered"}

// FakeClient is an in-memory 17TRACK account for local runs without an API key.
// Status and last event are derived deterministically from the tracking number.
type FakeClient struct {
	mu       sync.Mutex
	packages map[string]string // number -> title
	now      func() time.Time
}

func New(numbers ...string) *FakeClient {
	c := &FakeClient{
		packages: make(map[string]string, len(numbers)),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, n := range numbers {
		c.packages[n] = ""
	}
	return c
}

func (f *FakeClient) ValidateToken(ctx context.Context) (bool, error) {
	return true, nil
}

func (f *FakeClient) GetPackages(ctx context.Context) ([]*models.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	numbers := make([]string, 0, len(f.packages))
	for n := range f.packages {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)

	now := f.now()
	out := make([]*models.Package, 0, len(numbers))
	for _, n := range numbers {
		h := fnv.New32a()
		_, _ = h.Write([]byte(n))
		v := h.Sum32()

		ts := now.Add(-time.Duration(v%72) * time.Hour).Truncate(time.Minute)
		p := &models.Package{
			TrackingNumber: n,
			Status:         statuses[v%uint32(len(statuses))],
			InfoText:       ptr("fake carrier update"),
			Timestamp:      &ts,
		}
		if title := f.packages[n]; title != "" {
			p.FriendlyName = ptr(title)
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *FakeClient) AddPackage(ctx context.Context, trackingNumber, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages[trackingNumber] = title
	return nil
}

func (f *FakeClient) ArchivePackage(ctx context.Context, trackingNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.packages, trackingNumber)
	return nil
}

func ptr(s string) *string { return &s }
