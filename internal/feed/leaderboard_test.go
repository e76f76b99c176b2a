package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/karmafeed/internal/models"
)

type boardSource struct {
	mu    sync.Mutex
	board models.Leaderboard
	err   error
	calls atomic.Int32
}

func (s *boardSource) fetch(ctx context.Context) (models.Leaderboard, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board, s.err
}

func (s *boardSource) set(board models.Leaderboard, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board, s.err = board, err
}

func TestRefresher_SnapshotRoundTrip(t *testing.T) {
	updated := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	src := &boardSource{}
	src.set(models.Leaderboard{
		Entries:   []models.LeaderboardEntry{{ID: 9, Username: "a", Karma24h: 12}},
		Period:    "24 hours",
		UpdatedAt: updated,
	}, nil)
	r := NewRefresher(src.fetch, time.Hour, nil)

	require.NoError(t, r.Refresh(context.Background()))

	state := r.State()
	require.Len(t, state.Entries, 1)
	assert.Equal(t, "a", state.Entries[0].Username)
	assert.Equal(t, 12, state.Entries[0].Karma24h)
	assert.Equal(t, int64(9), state.Entries[0].ID)
	assert.True(t, state.UpdatedAt.Equal(updated))
	assert.NoError(t, state.Err)
	assert.False(t, state.Loading)
}

func TestRefresher_FailureKeepsPreviousSnapshot(t *testing.T) {
	src := &boardSource{}
	good := models.Leaderboard{
		Entries:   []models.LeaderboardEntry{{ID: 1, Username: "x", Karma24h: 5}},
		UpdatedAt: epoch,
	}
	src.set(good, nil)
	r := NewRefresher(src.fetch, time.Hour, nil)
	require.NoError(t, r.Refresh(context.Background()))

	failure := errors.New("timeout")
	src.set(models.Leaderboard{}, failure)
	assert.ErrorIs(t, r.Refresh(context.Background()), failure)

	state := r.State()
	assert.ErrorIs(t, state.Err, failure)
	assert.Equal(t, good.Entries, state.Entries)
	assert.True(t, state.UpdatedAt.Equal(epoch))

	// Manual retry clears the error.
	src.set(good, nil)
	require.NoError(t, r.Refresh(context.Background()))
	assert.NoError(t, r.State().Err)
}

func TestRefresher_StartRefreshesImmediatelyAndOnTimer(t *testing.T) {
	src := &boardSource{}
	r := NewRefresher(src.fetch, 10*time.Millisecond, nil)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.Eventually(t, func() bool { return src.calls.Load() >= 3 }, testWait, testTick)
}

func TestRefresher_TimerSurvivesFailures(t *testing.T) {
	src := &boardSource{}
	src.set(models.Leaderboard{}, errors.New("down"))
	r := NewRefresher(src.fetch, 10*time.Millisecond, nil)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.Eventually(t, func() bool { return src.calls.Load() >= 3 }, testWait, testTick)
	assert.Error(t, r.State().Err)
}

func TestRefresher_StopReleasesTimer(t *testing.T) {
	src := &boardSource{}
	r := NewRefresher(src.fetch, 5*time.Millisecond, nil)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return src.calls.Load() >= 2 }, testWait, testTick)
	r.Stop()

	after := src.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, src.calls.Load())

	// Stop is idempotent and the refresher can be mounted again.
	r.Stop()
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}

func TestRefresher_StartTwiceFails(t *testing.T) {
	r := NewRefresher((&boardSource{}).fetch, time.Hour, nil)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Error(t, r.Start(context.Background()))
}

func TestRefresher_EachSignalFetchesOnce(t *testing.T) {
	src := &boardSource{}
	r := NewRefresher(src.fetch, time.Hour, nil)

	r.Signal()
	r.Signal()
	r.Wait()

	assert.Equal(t, int32(2), src.calls.Load())
}

func TestRefresher_SignalAfterStopIsDropped(t *testing.T) {
	src := &boardSource{}
	r := NewRefresher(src.fetch, time.Hour, nil)
	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, testWait, testTick)
	r.Stop()

	r.Signal()
	r.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestRefresher_LastResponseWins(t *testing.T) {
	slowRelease := make(chan struct{})
	var n atomic.Int32
	source := func(ctx context.Context) (models.Leaderboard, error) {
		if n.Add(1) == 1 {
			<-slowRelease
			return models.Leaderboard{Entries: []models.LeaderboardEntry{{ID: 1, Username: "stale"}}}, nil
		}
		return models.Leaderboard{Entries: []models.LeaderboardEntry{{ID: 2, Username: "fresh"}}}, nil
	}
	r := NewRefresher(source, time.Hour, nil)

	r.Signal()
	require.Eventually(t, func() bool { return n.Load() == 1 }, testWait, testTick)
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, "fresh", r.State().Entries[0].Username)
	assert.True(t, r.State().Loading)

	close(slowRelease)
	r.Wait()
	assert.Equal(t, "stale", r.State().Entries[0].Username)
	assert.False(t, r.State().Loading)
}
