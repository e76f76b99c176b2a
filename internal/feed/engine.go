// Package feed is the client-side feed state engine: the post stream,
// per-post comment trees, optimistic like toggles and the leaderboard
// snapshot, reconciled against the remote collaborator.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sujalbistaa/karmafeed/internal/api"
	"github.com/sujalbistaa/karmafeed/internal/compose"
	"github.com/sujalbistaa/karmafeed/internal/metrics"
	"github.com/sujalbistaa/karmafeed/internal/models"
)

// DefaultMaxReplyDepth is the deepest comment that still offers a reply.
const DefaultMaxReplyDepth = 3

var (
	ErrPostNotLoaded   = errors.New("post is not loaded")
	ErrCommentNotFound = errors.New("comment not found")
	ErrReplyTooDeep    = errors.New("replies are not allowed at this depth")
)

// Options tune an Engine; zero values take the defaults.
type Options struct {
	Viewer              models.UserRef
	MaxReplyDepth       int
	LeaderboardInterval time.Duration
	Composer            *compose.Composer
	Logger              *slog.Logger
}

// Engine owns one feed view: a Pager for posts, a Tree per loaded post,
// a Toggler for likes and a Refresher for the leaderboard. Components
// talk only through the callbacks wired here.
type Engine struct {
	remote   api.Collaborator
	viewer   models.UserRef
	maxDepth int
	logger   *slog.Logger

	pager       *Pager
	toggler     *Toggler
	leaderboard *Refresher
	composer    *compose.Composer

	mu      sync.RWMutex
	threads map[int64]*Tree
}

// New builds an engine. Viewer is the identity used for reads (like
// state is viewer-relative); writes take their actor explicitly.
func New(remote api.Collaborator, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxDepth := opts.MaxReplyDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxReplyDepth
	}
	composer := opts.Composer
	if composer == nil {
		composer = compose.NewComposer(nil, 0, logger)
	}

	e := &Engine{
		remote:   remote,
		viewer:   opts.Viewer,
		maxDepth: maxDepth,
		logger:   logger,
		composer: composer,
		threads:  make(map[int64]*Tree),
	}
	e.leaderboard = NewRefresher(remote.GetLeaderboard, opts.LeaderboardInterval, logger)
	e.toggler = NewToggler(func(string) { e.leaderboard.Signal() }, logger)
	e.pager = NewPager(func(ctx context.Context, page int) (models.PostPage, error) {
		return remote.ListPosts(ctx, e.viewer, page)
	}, e.adoptPosts, logger)
	return e
}

// Start mounts the view: loads the first page and starts the leaderboard
// timer. A failed first load is returned but the timer keeps running.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.leaderboard.Start(ctx); err != nil {
		return err
	}
	if _, err := e.pager.Load(ctx, 1, Reset); err != nil {
		return fmt.Errorf("load feed: %w", err)
	}
	return nil
}

// Stop tears the view down and releases the leaderboard timer.
func (e *Engine) Stop() {
	e.leaderboard.Stop()
}

// adoptPosts builds comment trees for freshly loaded posts.
func (e *Engine) adoptPosts(posts []models.Post, mode Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if mode == Reset {
		e.threads = make(map[int64]*Tree, len(posts))
	}
	for _, p := range posts {
		e.threads[p.ID] = NewTree(p.Comments)
	}
}

func (e *Engine) thread(postID int64) (*Tree, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.threads[postID]
	return t, ok
}

// Refresh reloads the feed from page 1, discarding held posts. It is also
// the retry path after a failed load.
func (e *Engine) Refresh(ctx context.Context) (bool, error) {
	return e.pager.Load(ctx, 1, Reset)
}

// LoadMore appends the next page ("infinite scroll").
func (e *Engine) LoadMore(ctx context.Context) (bool, error) {
	return e.pager.LoadMore(ctx)
}

// Load exposes the pager directly for callers that drive paging.
func (e *Engine) Load(ctx context.Context, page int, mode Mode) (bool, error) {
	return e.pager.Load(ctx, page, mode)
}

func (e *Engine) FeedState() PagerState {
	return e.pager.State()
}

// Posts returns the feed in order, each post carrying its current
// comment forest.
func (e *Engine) Posts() []models.Post {
	posts := e.pager.Posts()
	for i := range posts {
		posts[i].Comments = e.Comments(posts[i].ID)
	}
	return posts
}

func (e *Engine) Post(id int64) (models.Post, bool) {
	p, ok := e.pager.Post(id)
	if !ok {
		return models.Post{}, false
	}
	p.Comments = e.Comments(id)
	return p, true
}

// ReloadPost refetches one held post and rebuilds its comment tree.
func (e *Engine) ReloadPost(ctx context.Context, id int64) (models.Post, error) {
	if _, ok := e.pager.Post(id); !ok {
		return models.Post{}, ErrPostNotLoaded
	}
	fresh, err := e.remote.GetPost(ctx, e.viewer, id)
	if err != nil {
		return models.Post{}, err
	}
	if !e.pager.Replace(fresh) {
		return models.Post{}, ErrPostNotLoaded
	}
	e.mu.Lock()
	e.threads[id] = NewTree(fresh.Comments)
	e.mu.Unlock()

	post, ok := e.Post(id)
	if !ok {
		return models.Post{}, ErrPostNotLoaded
	}
	return post, nil
}

// Comments returns the top-level comments of a post with nested replies.
func (e *Engine) Comments(postID int64) []models.Comment {
	t, ok := e.thread(postID)
	if !ok {
		return []models.Comment{}
	}
	return t.TopLevel()
}

// CanReply reports whether the reply affordance is offered for a comment.
func (e *Engine) CanReply(postID, commentID int64) bool {
	t, ok := e.thread(postID)
	if !ok {
		return false
	}
	depth, ok := t.Depth(commentID)
	return ok && depth < e.maxDepth
}

// LikePost toggles the viewer's like on a post.
func (e *Engine) LikePost(ctx context.Context, actor models.UserRef, postID int64) (Outcome, LikeState, error) {
	if _, ok := e.pager.Post(postID); !ok {
		return OutcomeSkipped, LikeState{}, ErrPostNotLoaded
	}
	// A reset while the call is in flight brings fresh server state;
	// writes from the old epoch are dropped.
	var epoch uint64
	acc := AccessorFuncs{
		LoadFunc: func() (LikeState, bool) {
			p, at, ok := e.pager.PostAt(postID)
			epoch = at
			return LikeState{Count: p.LikeCount, Liked: p.IsLiked}, ok
		},
		StoreFunc: func(s LikeState) {
			e.pager.UpdatePostAt(epoch, postID, models.PostUpdate{LikeCount: &s.Count, IsLiked: &s.Liked})
		},
	}
	outcome, state, err := e.toggler.Toggle(ctx, postKey(postID), acc, func(ctx context.Context, like bool) (int, error) {
		call := e.remote.UnlikePost
		if like {
			call = e.remote.LikePost
		}
		res, err := call(ctx, actor, postID)
		return res.LikeCount, err
	})
	metrics.LikeTogglesTotal.WithLabelValues("post", string(outcome)).Inc()
	return outcome, state, err
}

// LikeComment toggles the viewer's like on a comment of a held post.
func (e *Engine) LikeComment(ctx context.Context, actor models.UserRef, postID, commentID int64) (Outcome, LikeState, error) {
	t, ok := e.thread(postID)
	if !ok {
		return OutcomeSkipped, LikeState{}, ErrPostNotLoaded
	}
	if _, ok := t.Get(commentID); !ok {
		return OutcomeSkipped, LikeState{}, ErrCommentNotFound
	}
	acc := AccessorFuncs{
		LoadFunc: func() (LikeState, bool) {
			c, ok := t.Get(commentID)
			return LikeState{Count: c.LikeCount, Liked: c.IsLiked}, ok
		},
		StoreFunc: func(s LikeState) {
			t.Update(commentID, models.CommentUpdate{LikeCount: &s.Count, IsLiked: &s.Liked})
		},
	}
	outcome, state, err := e.toggler.Toggle(ctx, commentKey(commentID), acc, func(ctx context.Context, like bool) (int, error) {
		call := e.remote.UnlikeComment
		if like {
			call = e.remote.LikeComment
		}
		res, err := call(ctx, actor, commentID)
		return res.LikeCount, err
	})
	metrics.LikeTogglesTotal.WithLabelValues("comment", string(outcome)).Inc()
	return outcome, state, err
}

// SubmitPost creates a post and, on success, reloads the feed from page 1.
func (e *Engine) SubmitPost(ctx context.Context, actor models.UserRef, content string) (models.Post, error) {
	var created models.Post
	err := e.composer.Submit(ctx, compose.Submission{
		Kind:     compose.KindPost,
		AuthorID: actor.ID,
		Content:  content,
	}, func(ctx context.Context, content string) error {
		var err error
		created, err = e.remote.CreatePost(ctx, actor, content)
		return err
	})
	if err != nil {
		return models.Post{}, err
	}

	if _, err := e.pager.Load(ctx, 1, Reset); err != nil {
		e.logger.Warn("feed reload after new post failed", "post_id", created.ID, "error", err)
	}
	return created, nil
}

// SubmitComment creates a top-level comment (parentID nil) or a reply on
// a held post. Replies below the reply depth limit are refused before
// any remote call.
func (e *Engine) SubmitComment(ctx context.Context, actor models.UserRef, postID int64, parentID *int64, content string) (models.Comment, error) {
	t, ok := e.thread(postID)
	if !ok {
		return models.Comment{}, ErrPostNotLoaded
	}
	kind := compose.KindComment
	if parentID != nil {
		kind = compose.KindReply
		if _, ok := t.Get(*parentID); !ok {
			return models.Comment{}, ErrCommentNotFound
		}
		if !e.CanReply(postID, *parentID) {
			return models.Comment{}, ErrReplyTooDeep
		}
	}

	var created models.Comment
	err := e.composer.Submit(ctx, compose.Submission{
		Kind:     kind,
		AuthorID: actor.ID,
		PostID:   &postID,
		ParentID: parentID,
		Content:  content,
	}, func(ctx context.Context, content string) error {
		var err error
		created, err = e.remote.CreateComment(ctx, actor, api.NewComment{
			Post:    postID,
			Content: content,
			Parent:  parentID,
		})
		return err
	})
	if err != nil {
		return models.Comment{}, err
	}

	// The feed may have been reset while the create was in flight, so
	// insert into whichever tree holds the post now. A fresh page that
	// already carries the comment has counted it too.
	cur, ok := e.thread(postID)
	if !ok {
		return created, nil
	}
	if _, held := cur.Get(created.ID); held {
		return created, nil
	}
	if parentID == nil {
		cur.InsertTopLevel(created)
	} else {
		cur.InsertReply(*parentID, created)
	}
	e.pager.ModifyPost(postID, func(p *models.Post) { p.CommentCount++ })
	return created, nil
}

// Leaderboard returns the current snapshot and refresh status.
func (e *Engine) Leaderboard() LeaderboardState {
	return e.leaderboard.State()
}

// RefreshLeaderboard is the manual refresh/retry affordance.
func (e *Engine) RefreshLeaderboard(ctx context.Context) error {
	return e.leaderboard.Refresh(ctx)
}

// Draft returns the preserved input of a failed submission.
func (e *Engine) Draft(ctx context.Context, authorID int64, target string) (models.Draft, bool, error) {
	return e.composer.Draft(ctx, authorID, target)
}

func postKey(id int64) string    { return "post:" + strconv.FormatInt(id, 10) }
func commentKey(id int64) string { return "comment:" + strconv.FormatInt(id, 10) }
