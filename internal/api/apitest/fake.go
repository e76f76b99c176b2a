// Package apitest provides an in-memory api.Collaborator for tests.
package apitest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sujalbistaa/karmafeed/internal/api"
	"github.com/sujalbistaa/karmafeed/internal/models"
)

// Operation names, matching the labels api.Client records.
const (
	OpListPosts      = "list_posts"
	OpGetPost        = "get_post"
	OpCreatePost     = "create_post"
	OpLikePost       = "like_post"
	OpUnlikePost     = "unlike_post"
	OpCreateComment  = "create_comment"
	OpLikeComment    = "like_comment"
	OpUnlikeComment  = "unlike_comment"
	OpGetLeaderboard = "get_leaderboard"
)

// ErrUnavailable is a ready-made transient failure.
var ErrUnavailable = errors.New("collaborator unavailable")

// Fake is a scripted collaborator. Pages are served exactly as set;
// like counters are tracked per id and seeded from the posts given to
// SetPage.
type Fake struct {
	mu           sync.Mutex
	pages        map[int]models.PostPage
	posts        map[int64]models.Post
	board        models.Leaderboard
	postLikes    map[int64]int
	commentLikes map[int64]int
	nextID       int64
	calls        map[string]int
	failures     map[string]error
	hook         func(op string)
	now          func() time.Time
}

var _ api.Collaborator = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		pages:        make(map[int]models.PostPage),
		posts:        make(map[int64]models.Post),
		postLikes:    make(map[int64]int),
		commentLikes: make(map[int64]int),
		nextID:       1000,
		calls:        make(map[string]int),
		failures:     make(map[string]error),
		now:          time.Now,
	}
}

// SetPage scripts the response for a page number.
func (f *Fake) SetPage(page int, hasNext bool, posts ...models.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := ""
	if hasNext {
		next = fmt.Sprintf("/posts/?page=%d", page+1)
	}
	f.pages[page] = models.PostPage{Count: len(posts), Next: next, Results: posts}
	for _, p := range posts {
		f.posts[p.ID] = p
		f.postLikes[p.ID] = p.LikeCount
		seedComments(f.commentLikes, p.Comments)
	}
}

func seedComments(likes map[int64]int, comments []models.Comment) {
	for _, c := range comments {
		likes[c.ID] = c.LikeCount
		seedComments(likes, c.Replies)
	}
}

func (f *Fake) SetCommentLikes(commentID int64, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commentLikes[commentID] = n
}

func (f *Fake) SetPostLikes(postID int64, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postLikes[postID] = n
}

func (f *Fake) SetLeaderboard(lb models.Leaderboard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.board = lb
}

// FailOn makes every call of op return err until cleared with a nil err.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// OnCall installs a hook run at the start of every call, outside the
// fake's lock. Tests block in it to hold a call in flight.
func (f *Fake) OnCall(hook func(op string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(op)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[op]
}

func (f *Fake) ListPosts(ctx context.Context, _ models.UserRef, page int) (models.PostPage, error) {
	if err := f.enter(ctx, OpListPosts); err != nil {
		return models.PostPage{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[page], nil
}

func (f *Fake) GetPost(ctx context.Context, _ models.UserRef, postID int64) (models.Post, error) {
	if err := f.enter(ctx, OpGetPost); err != nil {
		return models.Post{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return models.Post{}, &api.StatusError{Op: OpGetPost, StatusCode: 404, Message: "Post not found"}
	}
	return p, nil
}

func (f *Fake) CreatePost(ctx context.Context, actor models.UserRef, content string) (models.Post, error) {
	if err := f.enter(ctx, OpCreatePost); err != nil {
		return models.Post{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p := models.Post{
		ID:        f.nextID,
		Author:    actor,
		Content:   content,
		CreatedAt: f.now(),
		UpdatedAt: f.now(),
	}
	f.posts[p.ID] = p
	return p, nil
}

func (f *Fake) LikePost(ctx context.Context, _ models.UserRef, postID int64) (models.LikeResult, error) {
	if err := f.enter(ctx, OpLikePost); err != nil {
		return models.LikeResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postLikes[postID]++
	return models.LikeResult{Message: "Post liked successfully", LikeCount: f.postLikes[postID]}, nil
}

func (f *Fake) UnlikePost(ctx context.Context, _ models.UserRef, postID int64) (models.LikeResult, error) {
	if err := f.enter(ctx, OpUnlikePost); err != nil {
		return models.LikeResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postLikes[postID] > 0 {
		f.postLikes[postID]--
	}
	return models.LikeResult{Message: "Post unliked successfully", LikeCount: f.postLikes[postID]}, nil
}

func (f *Fake) CreateComment(ctx context.Context, actor models.UserRef, in api.NewComment) (models.Comment, error) {
	if err := f.enter(ctx, OpCreateComment); err != nil {
		return models.Comment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return models.Comment{
		ID:        f.nextID,
		Post:      in.Post,
		Parent:    in.Parent,
		Author:    actor,
		Content:   in.Content,
		CreatedAt: f.now(),
		UpdatedAt: f.now(),
	}, nil
}

func (f *Fake) LikeComment(ctx context.Context, _ models.UserRef, commentID int64) (models.LikeResult, error) {
	if err := f.enter(ctx, OpLikeComment); err != nil {
		return models.LikeResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commentLikes[commentID]++
	return models.LikeResult{Message: "Comment liked successfully", LikeCount: f.commentLikes[commentID]}, nil
}

func (f *Fake) UnlikeComment(ctx context.Context, _ models.UserRef, commentID int64) (models.LikeResult, error) {
	if err := f.enter(ctx, OpUnlikeComment); err != nil {
		return models.LikeResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentLikes[commentID] > 0 {
		f.commentLikes[commentID]--
	}
	return models.LikeResult{Message: "Comment unliked successfully", LikeCount: f.commentLikes[commentID]}, nil
}

func (f *Fake) GetLeaderboard(ctx context.Context) (models.Leaderboard, error) {
	if err := f.enter(ctx, OpGetLeaderboard); err != nil {
		return models.Leaderboard{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.board, nil
}
