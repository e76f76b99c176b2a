package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/karmafeed/internal/api"
	"github.com/sujalbistaa/karmafeed/internal/compose"
	"github.com/sujalbistaa/karmafeed/internal/feed"
	"github.com/sujalbistaa/karmafeed/internal/models"
)

// --- Configuration Constants ---
const (
	rateLimitRPS   = 1.0 / 3.0 // 1 new post every 3 seconds
	rateLimitBurst = 1
)

// --- Structs for request binding ---
type CreatePostInput struct {
	Content string `json:"content" binding:"required"`
}

type CreateCommentInput struct {
	Content string `json:"content" binding:"required"`
	Parent  *int64 `json:"parent"`
}

// --- Response views ---

type feedView struct {
	Posts   []models.Post `json:"posts"`
	Page    int           `json:"page"`
	HasMore bool          `json:"has_more"`
	Loading bool          `json:"loading"`
	Loaded  *bool         `json:"loaded,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// commentView is a comment annotated with whether a reply may be posted
// under it.
type commentView struct {
	models.Comment
	CanReply bool          `json:"can_reply"`
	Replies  []commentView `json:"replies"`
}

type likeView struct {
	Outcome   feed.Outcome `json:"outcome"`
	LikeCount int          `json:"like_count"`
	IsLiked   bool         `json:"is_liked"`
	Error     string       `json:"error,omitempty"`
}

type leaderboardView struct {
	feed.LeaderboardState
	Error string `json:"error,omitempty"`
}

// --- Rate Limiter ---
type IPRateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    b,
	}
}

func (rl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, exists := rl.visitors[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[ip] = limiter
	}
	return limiter
}

// Sweep forgets visitors whose bucket has refilled.
func (rl *IPRateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if v.Tokens() >= float64(rl.burst) {
			delete(rl.visitors, ip)
		}
	}
}

// RunSweeper calls Sweep every interval until ctx is done.
func (rl *IPRateLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please wait."})
			return
		}
		c.Next()
	}
}

// --- Handlers ---

// DraftLister lists the preserved input of failed submissions.
type DraftLister interface {
	ListDrafts(ctx context.Context, authorID int64) ([]models.Draft, error)
}

type Env struct {
	Engine *feed.Engine
	Drafts DraftLister
	Logger *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Env) feedView(loaded *bool, err error) feedView {
	state := e.Engine.FeedState()
	v := feedView{
		Posts:   e.Engine.Posts(),
		Page:    state.Page,
		HasMore: state.HasMore,
		Loading: state.Loading,
		Loaded:  loaded,
	}
	if err == nil {
		err = state.Err
	}
	if err != nil {
		v.Error = err.Error()
	}
	return v
}

func (e *Env) GetFeed(c *gin.Context) {
	c.JSON(http.StatusOK, e.feedView(nil, nil))
}

func (e *Env) RefreshFeed(c *gin.Context) {
	loaded, err := e.Engine.Refresh(c.Request.Context())
	e.respondLoad(c, "refresh", loaded, err)
}

func (e *Env) LoadMore(c *gin.Context) {
	loaded, err := e.Engine.LoadMore(c.Request.Context())
	e.respondLoad(c, "load more", loaded, err)
}

func (e *Env) respondLoad(c *gin.Context, what string, loaded bool, err error) {
	if err != nil {
		e.logger().Error("Error loading feed", "action", what, "error", err)
		c.JSON(http.StatusBadGateway, e.feedView(&loaded, err))
		return
	}
	c.JSON(http.StatusOK, e.feedView(&loaded, nil))
}

func (e *Env) GetPost(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	post, found := e.Engine.Post(postID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	c.JSON(http.StatusOK, post)
}

func (e *Env) ReloadPost(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	post, err := e.Engine.ReloadPost(c.Request.Context(), postID)
	if err != nil {
		e.respondError(c, "reload post", err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (e *Env) CreatePost(c *gin.Context) {
	var input CreatePostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	post, err := e.Engine.SubmitPost(c.Request.Context(), ActorFrom(c), input.Content)
	if err != nil {
		e.respondError(c, "create post", err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (e *Env) LikePost(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	outcome, state, err := e.Engine.LikePost(c.Request.Context(), ActorFrom(c), postID)
	e.respondLike(c, outcome, state, err)
}

func (e *Env) GetComments(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, found := e.Engine.Post(postID); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	c.JSON(http.StatusOK, e.commentViews(postID, e.Engine.Comments(postID)))
}

func (e *Env) commentViews(postID int64, comments []models.Comment) []commentView {
	out := make([]commentView, 0, len(comments))
	for _, cm := range comments {
		out = append(out, commentView{
			Comment:  cm,
			CanReply: e.Engine.CanReply(postID, cm.ID),
			Replies:  e.commentViews(postID, cm.Replies),
		})
	}
	return out
}

func (e *Env) CreateComment(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input CreateCommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	comment, err := e.Engine.SubmitComment(c.Request.Context(), ActorFrom(c), postID, input.Parent, input.Content)
	if err != nil {
		e.respondError(c, "create comment", err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (e *Env) LikeComment(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	commentID, ok := paramID(c, "cid")
	if !ok {
		return
	}
	outcome, state, err := e.Engine.LikeComment(c.Request.Context(), ActorFrom(c), postID, commentID)
	e.respondLike(c, outcome, state, err)
}

// respondLike reports the toggle outcome. A rolled-back toggle is still a
// 200: the view has been restored and the caller only needs to re-render.
func (e *Env) respondLike(c *gin.Context, outcome feed.Outcome, state feed.LikeState, err error) {
	if err != nil && outcome != feed.OutcomeRolledBack {
		e.respondError(c, "toggle like", err)
		return
	}
	v := likeView{Outcome: outcome, LikeCount: state.Count, IsLiked: state.Liked}
	if err != nil {
		v.Error = err.Error()
	}
	c.JSON(http.StatusOK, v)
}

func (e *Env) GetLeaderboard(c *gin.Context) {
	c.JSON(http.StatusOK, leaderboardViewOf(e.Engine.Leaderboard()))
}

func (e *Env) RefreshLeaderboard(c *gin.Context) {
	err := e.Engine.RefreshLeaderboard(c.Request.Context())
	status := http.StatusOK
	if err != nil {
		e.logger().Error("Error refreshing leaderboard", "error", err)
		status = http.StatusBadGateway
	}
	c.JSON(status, leaderboardViewOf(e.Engine.Leaderboard()))
}

func leaderboardViewOf(state feed.LeaderboardState) leaderboardView {
	v := leaderboardView{LeaderboardState: state}
	if state.Entries == nil {
		v.Entries = []models.LeaderboardEntry{}
	}
	if state.Err != nil {
		v.Error = state.Err.Error()
	}
	return v
}

func (e *Env) GetDrafts(c *gin.Context) {
	if e.Drafts == nil {
		c.JSON(http.StatusOK, []models.Draft{})
		return
	}
	drafts, err := e.Drafts.ListDrafts(c.Request.Context(), ActorFrom(c).ID)
	if err != nil {
		e.logger().Error("Error fetching drafts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch drafts"})
		return
	}
	if drafts == nil {
		drafts = []models.Draft{}
	}
	c.JSON(http.StatusOK, drafts)
}

// respondError maps engine and collaborator errors to HTTP statuses.
func (e *Env) respondError(c *gin.Context, what string, err error) {
	var statusErr *api.StatusError
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, feed.ErrPostNotLoaded), errors.Is(err, feed.ErrCommentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, feed.ErrReplyTooDeep):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, compose.ErrEmptyContent), errors.Is(err, compose.ErrContentTooLong):
		status = http.StatusBadRequest
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		status = http.StatusNotFound
	}
	if status >= http.StatusInternalServerError {
		e.logger().Error("Error handling request", "action", what, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}
