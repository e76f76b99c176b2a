package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/karmafeed/internal/metrics"
	"github.com/sujalbistaa/karmafeed/internal/models"
)

const DefaultBaseURL = "http://127.0.0.1:8000/api"

// Client talks JSON over HTTP to the feed service's REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Ensure Client implements Collaborator
var _ Collaborator = (*Client)(nil)

type ClientOption func(*Client)

// WithHTTPClient replaces the transport (and with it the timeout policy).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithRateLimit throttles outbound calls. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListPosts(ctx context.Context, actor models.UserRef, page int) (models.PostPage, error) {
	if page < 1 {
		page = 1
	}
	var out models.PostPage
	err := c.do(ctx, "list_posts", http.MethodGet, "/posts/?page="+strconv.Itoa(page), &actor, nil, &out)
	return out, err
}

func (c *Client) GetPost(ctx context.Context, actor models.UserRef, postID int64) (models.Post, error) {
	var out models.Post
	err := c.do(ctx, "get_post", http.MethodGet, fmt.Sprintf("/posts/%d/", postID), &actor, nil, &out)
	return out, err
}

func (c *Client) CreatePost(ctx context.Context, actor models.UserRef, content string) (models.Post, error) {
	body := map[string]any{
		"content": content,
		"author":  actor.ID,
	}
	var out models.Post
	err := c.do(ctx, "create_post", http.MethodPost, "/posts/", &actor, body, &out)
	return out, err
}

func (c *Client) LikePost(ctx context.Context, actor models.UserRef, postID int64) (models.LikeResult, error) {
	var out models.LikeResult
	err := c.do(ctx, "like_post", http.MethodPost, fmt.Sprintf("/posts/%d/like/", postID), &actor, nil, &out)
	return out, err
}

func (c *Client) UnlikePost(ctx context.Context, actor models.UserRef, postID int64) (models.LikeResult, error) {
	var out models.LikeResult
	err := c.do(ctx, "unlike_post", http.MethodDelete, fmt.Sprintf("/posts/%d/unlike/", postID), &actor, nil, &out)
	return out, err
}

func (c *Client) CreateComment(ctx context.Context, actor models.UserRef, in NewComment) (models.Comment, error) {
	in.Author = actor.ID
	var out models.Comment
	err := c.do(ctx, "create_comment", http.MethodPost, "/comments/", &actor, in, &out)
	return out, err
}

func (c *Client) LikeComment(ctx context.Context, actor models.UserRef, commentID int64) (models.LikeResult, error) {
	var out models.LikeResult
	err := c.do(ctx, "like_comment", http.MethodPost, fmt.Sprintf("/comments/%d/like/", commentID), &actor, nil, &out)
	return out, err
}

func (c *Client) UnlikeComment(ctx context.Context, actor models.UserRef, commentID int64) (models.LikeResult, error) {
	var out models.LikeResult
	err := c.do(ctx, "unlike_comment", http.MethodDelete, fmt.Sprintf("/comments/%d/unlike/", commentID), &actor, nil, &out)
	return out, err
}

func (c *Client) GetLeaderboard(ctx context.Context) (models.Leaderboard, error) {
	var out models.Leaderboard
	err := c.do(ctx, "get_leaderboard", http.MethodGet, "/leaderboard/", nil, nil, &out)
	return out, err
}

// do performs one request/response round trip and records its metrics.
func (c *Client) do(ctx context.Context, op, method, path string, actor *models.UserRef, body, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.RemoteCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		metrics.RemoteCallsTotal.WithLabelValues(op, metrics.Status(err)).Inc()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if actor != nil && actor.ID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(actor.ID, 10))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Op: op, StatusCode: resp.StatusCode}
		var errRes struct {
			Message   string `json:"message"`
			Error     string `json:"error"`
			Detail    string `json:"detail"`
			LikeCount *int   `json:"like_count"`
		}
		if json.NewDecoder(resp.Body).Decode(&errRes) == nil {
			statusErr.Message = firstNonEmpty(errRes.Error, errRes.Detail, errRes.Message)
			statusErr.LikeCount = errRes.LikeCount
		}
		c.logger.Debug("collaborator rejected request",
			"op", op, "status", resp.StatusCode, "request_id", requestID)
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
