package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/karmafeed/internal/models"
)

var demoUser = models.UserRef{ID: 1, Username: "demo_user"}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", WithRateLimit(0, 0))
}

func TestClient_ListPosts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/posts/", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "1", r.Header.Get("X-User-ID"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.Write([]byte(`{
			"count": 41,
			"next": "http://x/api/posts/?page=3",
			"previous": null,
			"results": [{
				"id": 7,
				"content": "hello",
				"author": {"id": 2, "username": "ana", "karma_24h": 6},
				"created_at": "2025-01-02T03:04:05.123456Z",
				"like_count": 3,
				"is_liked": true,
				"comment_count": 2,
				"comments": [{"id": 70, "post": 7, "parent": null, "content": "c", "author": {"id": 3, "username": "bo"}, "like_count": 1, "is_liked": false,
					"replies": [{"id": 71, "post": 7, "parent": 70, "content": "r", "author": {"id": 2, "username": "ana"}, "like_count": 0, "is_liked": false, "replies": []}]}]
			}]
		}`))
	})

	page, err := c.ListPosts(context.Background(), demoUser, 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore())
	assert.Empty(t, page.Previous)
	require.Len(t, page.Results, 1)

	p := page.Results[0]
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "ana", p.Author.Username)
	require.NotNil(t, p.Author.Karma24h)
	assert.Equal(t, 6, *p.Author.Karma24h)
	assert.True(t, p.IsLiked)
	assert.Equal(t, 2, p.CommentCount)
	require.Len(t, p.Comments, 1)
	assert.Nil(t, p.Comments[0].Parent)
	require.Len(t, p.Comments[0].Replies, 1)
	require.NotNil(t, p.Comments[0].Replies[0].Parent)
	assert.Equal(t, int64(70), *p.Comments[0].Replies[0].Parent)
}

func TestClient_ListPosts_LastPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count": 0, "next": null, "previous": null, "results": []}`))
	})

	page, err := c.ListPosts(context.Background(), demoUser, 1)
	require.NoError(t, err)
	assert.False(t, page.HasMore())
}

func TestClient_LikeAndUnlikePaths(t *testing.T) {
	tests := []struct {
		name   string
		call   func(c *Client) (models.LikeResult, error)
		method string
		path   string
	}{
		{"like post", func(c *Client) (models.LikeResult, error) {
			return c.LikePost(context.Background(), demoUser, 5)
		}, http.MethodPost, "/api/posts/5/like/"},
		{"unlike post", func(c *Client) (models.LikeResult, error) {
			return c.UnlikePost(context.Background(), demoUser, 5)
		}, http.MethodDelete, "/api/posts/5/unlike/"},
		{"like comment", func(c *Client) (models.LikeResult, error) {
			return c.LikeComment(context.Background(), demoUser, 9)
		}, http.MethodPost, "/api/comments/9/like/"},
		{"unlike comment", func(c *Client) (models.LikeResult, error) {
			return c.UnlikeComment(context.Background(), demoUser, 9)
		}, http.MethodDelete, "/api/comments/9/unlike/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.method, r.Method)
				assert.Equal(t, tt.path, r.URL.Path)
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"message": "ok", "like_count": 11}`))
			})
			res, err := tt.call(c)
			require.NoError(t, err)
			assert.Equal(t, 11, res.LikeCount)
		})
	}
}

func TestClient_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "You have already liked this post", "like_count": 4}`))
	})

	_, err := c.LikePost(context.Background(), demoUser, 1)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "You have already liked this post", statusErr.Message)
	require.NotNil(t, statusErr.LikeCount)
	assert.Equal(t, 4, *statusErr.LikeCount)
}

func TestClient_CreateComment(t *testing.T) {
	parent := int64(70)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/comments/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in NewComment
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, int64(7), in.Post)
		assert.Equal(t, "nice", in.Content)
		if assert.NotNil(t, in.Parent) {
			assert.Equal(t, parent, *in.Parent)
		}
		assert.Equal(t, demoUser.ID, in.Author)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 72, "post": 7, "parent": 70, "content": "nice", "author": {"id": 1, "username": "demo_user"}, "like_count": 0, "is_liked": false, "replies": []}`))
	})

	created, err := c.CreateComment(context.Background(), demoUser, NewComment{Post: 7, Content: "nice", Parent: &parent})
	require.NoError(t, err)
	assert.Equal(t, int64(72), created.ID)
	require.NotNil(t, created.Parent)
	assert.Equal(t, parent, *created.Parent)
}

func TestClient_GetLeaderboard(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/leaderboard/", r.URL.Path)
		assert.Empty(t, r.Header.Get("X-User-ID"))
		w.Write([]byte(`{"leaderboard": [{"id": 9, "username": "a", "karma_24h": 12}], "period": "24 hours", "updated_at": "2025-06-01T10:00:00Z"}`))
	})

	lb, err := c.GetLeaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, models.LeaderboardEntry{ID: 9, Username: "a", Karma24h: 12}, lb.Entries[0])
	assert.Equal(t, "24 hours", lb.Period)
	assert.True(t, lb.UpdatedAt.Equal(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)))
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"leaderboard": [], "updated_at": "2025-06-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRateLimit(0.001, 1))
	_, err := c.GetLeaderboard(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.GetLeaderboard(ctx)
	assert.Error(t, err)
}
