// Package api is the narrow contract the feed engine needs from the
// persistence/ranking service, plus an HTTP implementation of it.
package api

import (
	"context"
	"fmt"

	"github.com/sujalbistaa/karmafeed/internal/models"
)

// Collaborator is the remote persistence and ranking service.
// Implementations apply their own transport policy; the engine adds no
// retries or timeouts on top.
type Collaborator interface {
	ListPosts(ctx context.Context, actor models.UserRef, page int) (models.PostPage, error)
	GetPost(ctx context.Context, actor models.UserRef, postID int64) (models.Post, error)
	CreatePost(ctx context.Context, actor models.UserRef, content string) (models.Post, error)
	LikePost(ctx context.Context, actor models.UserRef, postID int64) (models.LikeResult, error)
	UnlikePost(ctx context.Context, actor models.UserRef, postID int64) (models.LikeResult, error)
	CreateComment(ctx context.Context, actor models.UserRef, in NewComment) (models.Comment, error)
	LikeComment(ctx context.Context, actor models.UserRef, commentID int64) (models.LikeResult, error)
	UnlikeComment(ctx context.Context, actor models.UserRef, commentID int64) (models.LikeResult, error)
	GetLeaderboard(ctx context.Context) (models.Leaderboard, error)
}

// NewComment is the input of CreateComment. Parent is nil for a
// top-level comment.
type NewComment struct {
	Post    int64  `json:"post"`
	Content string `json:"content"`
	Parent  *int64 `json:"parent"`
	Author  int64  `json:"author"`
}

// StatusError is returned when the collaborator answers with a non-2xx
// status. LikeCount is set when the body carried one (the like endpoints
// report the current count even on rejection).
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
	LikeCount  *int
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed with status: %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s failed (%d): %s", e.Op, e.StatusCode, e.Message)
}
