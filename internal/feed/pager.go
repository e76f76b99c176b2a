package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sujalbistaa/karmafeed/internal/metrics"
	"github.com/sujalbistaa/karmafeed/internal/models"
)

// Mode selects how a loaded page is merged into the collection.
type Mode int

const (
	// Reset replaces the collection with the page.
	Reset Mode = iota
	// Append concatenates the page onto the collection.
	Append
)

func (m Mode) String() string {
	if m == Append {
		return "append"
	}
	return "reset"
}

// PageSource fetches one page of the post stream.
type PageSource func(ctx context.Context, page int) (models.PostPage, error)

// PagerState is the pagination status exposed to callers.
type PagerState struct {
	Page    int   `json:"page"`
	HasMore bool  `json:"has_more"`
	Loading bool  `json:"loading"`
	Err     error `json:"-"`
}

// Pager owns the ordered post collection of one feed.
type Pager struct {
	source   PageSource
	onLoaded func(posts []models.Post, mode Mode)
	logger   *slog.Logger

	mu      sync.RWMutex
	posts   []models.Post
	index   map[int64]int
	page    int
	hasMore bool
	loading bool
	err     error
	// epoch counts completed resets.
	epoch uint64
}

// NewPager returns an empty pager. onLoaded, if non-nil, receives every
// successfully loaded page before Load returns.
func NewPager(source PageSource, onLoaded func([]models.Post, Mode), logger *slog.Logger) *Pager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pager{
		source:   source,
		onLoaded: onLoaded,
		logger:   logger,
		index:    make(map[int64]int),
		hasMore:  true,
	}
}

// Load fetches page and merges it according to mode. It is a no-op
// (false, nil) while another load is in flight. On failure the
// collection is left untouched and the error is kept in State until the
// next successful load; repeating the call is the retry path.
func (p *Pager) Load(ctx context.Context, page int, mode Mode) (bool, error) {
	p.mu.Lock()
	if p.loading {
		p.mu.Unlock()
		return false, nil
	}
	p.loading = true
	p.err = nil
	p.mu.Unlock()

	result, err := p.source(ctx, page)
	metrics.PageLoadsTotal.WithLabelValues(mode.String(), metrics.Status(err)).Inc()

	p.mu.Lock()
	if err != nil {
		p.loading = false
		p.err = err
		p.mu.Unlock()
		p.logger.Error("error loading posts", "page", page, "mode", mode.String(), "error", err)
		return true, err
	}

	if mode == Reset {
		p.epoch++
		p.posts = nil
		p.index = make(map[int64]int, len(result.Results))
	}
	for _, post := range result.Results {
		if i, dup := p.index[post.ID]; dup {
			p.posts[i] = post
			continue
		}
		p.index[post.ID] = len(p.posts)
		p.posts = append(p.posts, post)
	}
	p.hasMore = result.HasMore()
	p.page = page
	metrics.FeedPosts.Set(float64(len(p.posts)))
	p.mu.Unlock()

	// Still marked loading so listeners see pages in load order.
	if p.onLoaded != nil {
		p.onLoaded(result.Results, mode)
	}

	p.mu.Lock()
	p.loading = false
	p.mu.Unlock()
	return true, nil
}

// LoadMore appends the next page. It does nothing while loading or once
// the stream is exhausted.
func (p *Pager) LoadMore(ctx context.Context) (bool, error) {
	p.mu.RLock()
	busy, more, next := p.loading, p.hasMore, p.page+1
	p.mu.RUnlock()
	if busy || !more {
		return false, nil
	}
	return p.Load(ctx, next, Append)
}

// Posts returns a copy of the collection in feed order.
func (p *Pager) Posts() []models.Post {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Post, len(p.posts))
	copy(out, p.posts)
	return out
}

// Post returns one post by id.
func (p *Pager) Post(id int64) (models.Post, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, ok := p.index[id]
	if !ok {
		return models.Post{}, false
	}
	return p.posts[i], true
}

// PostAt is Post plus the reset epoch the copy was read in.
func (p *Pager) PostAt(id int64) (models.Post, uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, ok := p.index[id]
	if !ok {
		return models.Post{}, p.epoch, false
	}
	return p.posts[i], p.epoch, true
}

// Replace swaps in a freshly fetched copy of a held post.
func (p *Pager) Replace(post models.Post) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.index[post.ID]
	if !ok {
		return false
	}
	p.posts[i] = post
	return true
}

// UpdatePost merges a partial update into one held post.
func (p *Pager) UpdatePost(id int64, u models.PostUpdate) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.index[id]
	if !ok {
		return false
	}
	u.Apply(&p.posts[i])
	return true
}

// UpdatePostAt is UpdatePost guarded by epoch: once a reset has replaced
// the collection read at epoch, the update is dropped.
func (p *Pager) UpdatePostAt(epoch uint64, id int64, u models.PostUpdate) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.epoch != epoch {
		return false
	}
	i, ok := p.index[id]
	if !ok {
		return false
	}
	u.Apply(&p.posts[i])
	return true
}

// ModifyPost applies fn to one held post under the pager's lock.
func (p *Pager) ModifyPost(id int64, fn func(*models.Post)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.index[id]
	if !ok {
		return false
	}
	fn(&p.posts[i])
	return true
}

func (p *Pager) State() PagerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PagerState{Page: p.page, HasMore: p.hasMore, Loading: p.loading, Err: p.err}
}
