package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	mu    sync.Mutex
	calls int
	pkgs  []*models.Package
	err   error
}

func (c *scriptedClient) GetPackages(ctx context.Context) ([]*models.Package, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.pkgs, c.err
}

func (c *scriptedClient) set(pkgs []*models.Package, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pkgs, c.err = pkgs, err
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type blockingClient struct {
	started chan struct{}
}

func (c *blockingClient) GetPackages(ctx context.Context) ([]*models.Package, error) {
	close(c.started)
	<-ctx.Done()
	return []*models.Package{pkg("A", "Delivered")}, nil
}

type sinkMock struct {
	mock.Mock
}

func (m *sinkMock) HandleSnapshot(ctx context.Context, s *Snapshot) error {
	return m.Called(ctx, s).Error(0)
}

type recordingObserver struct {
	errs []error
}

func (o *recordingObserver) ObserveRefresh(d time.Duration, err error) {
	o.errs = append(o.errs, err)
}

func TestCoordinator_StartsStale(t *testing.T) {
	c := New(&scriptedClient{}, Options{})
	require.Nil(t, c.Snapshot())
	require.False(t, c.Fresh())
	require.Equal(t, DefaultPollInterval, c.Options().PollInterval)
}

func TestCoordinator_RefreshPublishesSnapshot(t *testing.T) {
	cl := &scriptedClient{pkgs: []*models.Package{pkg("B", "In Transit"), pkg("A", "In Transit")}}
	c := New(cl, Options{PollInterval: time.Minute, ShowDelivered: true})

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Same(t, snap, c.Snapshot())
	require.True(t, c.Fresh())

	b, ok := snap.Bucket("in_transit")
	require.True(t, ok)
	require.Equal(t, 2, b.Quantity)
	require.True(t, c.Options().ShowDelivered)

	st := c.Stats()
	require.Equal(t, int64(1), st.TotalRefreshes)
	require.Equal(t, 2, st.Packages)
	require.True(t, st.Fresh)
	require.NotNil(t, st.LastSuccessAt)
	require.Empty(t, st.LastError)
}

func TestCoordinator_FailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	cl := &scriptedClient{pkgs: []*models.Package{pkg("A", "Delivered")}}
	c := New(cl, Options{})

	first, err := c.Refresh(context.Background())
	require.NoError(t, err)

	boom := errors.New("boom")
	cl.set(nil, boom)
	_, err = c.Refresh(context.Background())
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "refresh packages")

	require.False(t, c.Fresh())
	require.Same(t, first, c.Snapshot())
	b, _ := c.Snapshot().Bucket("delivered")
	require.Equal(t, 1, b.Quantity)

	st := c.Stats()
	require.Equal(t, int64(1), st.TotalErrors)
	require.Equal(t, int64(1), st.FailCount)
	require.Contains(t, st.LastError, "boom")

	cl.set([]*models.Package{pkg("A", "Delivered"), pkg("B", "Delivered")}, nil)
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, c.Fresh())
	require.Equal(t, int64(0), c.Stats().FailCount)
	require.Equal(t, 2, c.Snapshot().Len())
}

func TestCoordinator_RefreshIsIdempotent(t *testing.T) {
	cl := &scriptedClient{pkgs: []*models.Package{pkg("B", "Delivered"), pkg("A", "In Transit")}}
	c := New(cl, Options{})

	s1, err := c.Refresh(context.Background())
	require.NoError(t, err)
	s2, err := c.Refresh(context.Background())
	require.NoError(t, err)

	require.NotSame(t, s1, s2)
	require.Equal(t, s1, s2)
}

func TestCoordinator_DisappearedPackageIsDropped(t *testing.T) {
	cl := &scriptedClient{pkgs: []*models.Package{pkg("A", "Delivered"), pkg("B", "Delivered")}}
	c := New(cl, Options{})
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	cl.set([]*models.Package{pkg("A", "Delivered")}, nil)
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)

	_, ok := c.Snapshot().Package("B")
	require.False(t, ok)
}

func TestCoordinator_CanceledRefreshCommitsNothing(t *testing.T) {
	bc := &blockingClient{started: make(chan struct{})}
	c := New(bc, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-bc.started
		cancel()
	}()

	_, err := c.Refresh(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, c.Snapshot())
	require.False(t, c.Fresh())
}

func TestCoordinator_SinksAndObserver(t *testing.T) {
	cl := &scriptedClient{pkgs: []*models.Package{pkg("A", "Delivered")}}
	ok := &sinkMock{}
	failing := &sinkMock{}
	obs := &recordingObserver{}

	c := New(cl, Options{}).WithSinks(failing, ok).WithObserver(obs)

	failing.On("HandleSnapshot", mock.Anything, mock.AnythingOfType("*coordinator.Snapshot")).Return(errors.New("kafka down")).Once()
	ok.On("HandleSnapshot", mock.Anything, mock.AnythingOfType("*coordinator.Snapshot")).Return(nil).Once()

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, c.Fresh())
	require.Equal(t, int64(1), c.Stats().TotalSinkErrors)
	ok.AssertExpectations(t)
	failing.AssertExpectations(t)

	cl.set(nil, errors.New("boom"))
	_, err = c.Refresh(context.Background())
	require.Error(t, err)
	// sinks are not called for failed refreshes
	ok.AssertNumberOfCalls(t, "HandleSnapshot", 1)

	require.Len(t, obs.errs, 2)
	require.NoError(t, obs.errs[0])
	require.Error(t, obs.errs[1])
}

func TestCoordinator_Run_RefreshesImmediatelyAndStopsOnCancel(t *testing.T) {
	cl := &scriptedClient{pkgs: []*models.Package{pkg("A", "Delivered")}}
	c := New(cl, Options{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.Fresh() }, time.Second, 5*time.Millisecond)

	c.Trigger()
	require.Eventually(t, func() bool { return cl.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	require.NotNil(t, c.Stats().LastTriggerAt)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestCoordinator_Run_RetriesWithBackoff(t *testing.T) {
	cl := &scriptedClient{err: errors.New("down")}
	c := New(cl, Options{PollInterval: time.Hour}).
		WithPlanner(PlannerConfig{Backoff1: 5 * time.Millisecond, Backoff2: 5 * time.Millisecond, Backoff3: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.Eventually(t, func() bool { return cl.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	require.False(t, c.Fresh())

	cl.set([]*models.Package{pkg("A", "Delivered")}, nil)
	require.Eventually(t, func() bool { return c.Fresh() }, time.Second, 5*time.Millisecond)
}
