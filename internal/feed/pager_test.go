package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/karmafeed/internal/models"
)

// scriptedSource serves fixed pages and counts calls.
type scriptedSource struct {
	mu    sync.Mutex
	pages map[int]models.PostPage
	err   error
	calls []int
	hold  chan struct{}
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{pages: make(map[int]models.PostPage)}
}

func (s *scriptedSource) set(page int, hasNext bool, posts ...models.Post) {
	next := ""
	if hasNext {
		next = "more"
	}
	s.pages[page] = models.PostPage{Next: next, Results: posts}
}

func (s *scriptedSource) fetch(ctx context.Context, page int) (models.PostPage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, page)
	hold, err, result := s.hold, s.err, s.pages[page]
	s.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return result, err
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestPager_AppendPreservesOrder(t *testing.T) {
	src := newScriptedSource()
	src.set(1, true, post(1, 0, false), post(2, 0, false))
	src.set(2, true, post(3, 0, false), post(4, 0, false))
	pager := NewPager(src.fetch, nil, nil)

	_, err := pager.Load(context.Background(), 1, Append)
	require.NoError(t, err)
	_, err = pager.Load(context.Background(), 2, Append)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3, 4}, postIDs(pager.Posts()))
	assert.Equal(t, 2, pager.State().Page)
}

func TestPager_ResetDiscardsPriorEntries(t *testing.T) {
	src := newScriptedSource()
	src.set(1, true, post(1, 0, false), post(2, 0, false))
	src.set(2, true, post(3, 0, false))
	pager := NewPager(src.fetch, nil, nil)

	pager.Load(context.Background(), 1, Reset)
	pager.Load(context.Background(), 2, Append)
	require.Len(t, pager.Posts(), 3)

	src.set(1, true, post(5, 0, false))
	_, err := pager.Load(context.Background(), 1, Reset)
	require.NoError(t, err)

	assert.Equal(t, []int64{5}, postIDs(pager.Posts()))
	_, ok := pager.Post(3)
	assert.False(t, ok)
}

func TestPager_NextNullStopsLoadMore(t *testing.T) {
	src := newScriptedSource()
	src.set(1, false, post(1, 0, false))
	pager := NewPager(src.fetch, nil, nil)

	_, err := pager.Load(context.Background(), 1, Reset)
	require.NoError(t, err)
	assert.False(t, pager.State().HasMore)

	loaded, err := pager.LoadMore(context.Background())
	assert.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, 1, src.callCount())

	// A reset re-opens the stream.
	src.set(1, true, post(1, 0, false))
	pager.Load(context.Background(), 1, Reset)
	assert.True(t, pager.State().HasMore)
}

func TestPager_LoadMoreRequestsNextPage(t *testing.T) {
	src := newScriptedSource()
	src.set(1, true, post(1, 0, false))
	src.set(2, false, post(2, 0, false))
	pager := NewPager(src.fetch, nil, nil)

	pager.Load(context.Background(), 1, Reset)
	loaded, err := pager.LoadMore(context.Background())
	require.NoError(t, err)
	assert.True(t, loaded)

	assert.Equal(t, []int{1, 2}, src.calls)
	assert.Equal(t, []int64{1, 2}, postIDs(pager.Posts()))
}

func TestPager_FailureKeepsCollectionAndRetries(t *testing.T) {
	src := newScriptedSource()
	src.set(1, true, post(1, 0, false), post(2, 0, false))
	pager := NewPager(src.fetch, nil, nil)
	pager.Load(context.Background(), 1, Reset)

	failure := errors.New("502 bad gateway")
	src.err = failure
	_, err := pager.Load(context.Background(), 1, Reset)
	assert.ErrorIs(t, err, failure)
	assert.ErrorIs(t, pager.State().Err, failure)
	assert.False(t, pager.State().Loading)
	assert.Equal(t, []int64{1, 2}, postIDs(pager.Posts()))

	src.err = nil
	src.set(1, true, post(3, 0, false))
	_, err = pager.Load(context.Background(), 1, Reset)
	require.NoError(t, err)
	assert.NoError(t, pager.State().Err)
	assert.Equal(t, []int64{3}, postIDs(pager.Posts()))
}

func TestPager_OneLoadInFlight(t *testing.T) {
	src := newScriptedSource()
	src.set(1, true, post(1, 0, false))
	src.hold = make(chan struct{})
	pager := NewPager(src.fetch, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pager.Load(context.Background(), 1, Reset)
	}()
	require.Eventually(t, func() bool { return pager.State().Loading }, testWait, testTick)

	loaded, err := pager.LoadMore(context.Background())
	assert.NoError(t, err)
	assert.False(t, loaded)

	loaded, err = pager.Load(context.Background(), 2, Append)
	assert.NoError(t, err)
	assert.False(t, loaded)

	close(src.hold)
	<-done
	assert.Equal(t, 1, src.callCount())
}

func TestPager_UpdatePost(t *testing.T) {
	src := newScriptedSource()
	src.set(1, false, post(1, 2, false), post(2, 0, false))
	pager := NewPager(src.fetch, nil, nil)
	pager.Load(context.Background(), 1, Reset)

	assert.True(t, pager.UpdatePost(1, models.PostUpdate{LikeCount: ptr(3), IsLiked: ptr(true)}))
	assert.False(t, pager.UpdatePost(99, models.PostUpdate{LikeCount: ptr(3)}))

	p, _ := pager.Post(1)
	assert.Equal(t, 3, p.LikeCount)
	assert.True(t, p.IsLiked)
	assert.Equal(t, []int64{1, 2}, postIDs(pager.Posts()))
}

func TestPager_UpdatePostAtDroppedAfterReset(t *testing.T) {
	src := newScriptedSource()
	src.set(1, true, post(1, 2, false))
	src.set(2, false, post(2, 0, false))
	pager := NewPager(src.fetch, nil, nil)
	pager.Load(context.Background(), 1, Reset)

	_, before, ok := pager.PostAt(1)
	require.True(t, ok)

	// Appending keeps the epoch.
	pager.LoadMore(context.Background())
	assert.True(t, pager.UpdatePostAt(before, 1, models.PostUpdate{LikeCount: ptr(3)}))

	src.set(1, true, post(1, 50, false))
	pager.Load(context.Background(), 1, Reset)
	assert.False(t, pager.UpdatePostAt(before, 1, models.PostUpdate{LikeCount: ptr(2)}))

	p, now, _ := pager.PostAt(1)
	assert.Equal(t, 50, p.LikeCount)
	assert.Equal(t, before+1, now)
}

func TestPager_OnLoadedReceivesPages(t *testing.T) {
	src := newScriptedSource()
	src.set(1, true, post(1, 0, false))
	src.set(2, false, post(2, 0, false))

	var seen []Mode
	pager := NewPager(src.fetch, func(posts []models.Post, mode Mode) {
		seen = append(seen, mode)
	}, nil)

	pager.Load(context.Background(), 1, Reset)
	pager.LoadMore(context.Background())

	assert.Equal(t, []Mode{Reset, Append}, seen)
}
