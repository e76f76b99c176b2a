package feed

import (
	"time"

	"github.com/sujalbistaa/karmafeed/internal/models"
)

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)

var (
	viewer = models.UserRef{ID: 1, Username: "demo_user"}
	epoch  = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func ptr[T any](v T) *T { return &v }

func post(id int64, likes int, liked bool, comments ...models.Comment) models.Post {
	return models.Post{
		ID:           id,
		Author:       models.UserRef{ID: 2, Username: "ana"},
		Content:      "post body",
		CreatedAt:    epoch,
		LikeCount:    likes,
		IsLiked:      liked,
		CommentCount: len(comments),
		Comments:     comments,
	}
}

func comment(id int64, parent *int64) models.Comment {
	return models.Comment{
		ID:        id,
		Parent:    parent,
		Author:    models.UserRef{ID: 3, Username: "bo"},
		Content:   "comment body",
		CreatedAt: epoch,
	}
}

func ids(comments []models.Comment) []int64 {
	out := make([]int64, 0, len(comments))
	for _, c := range comments {
		out = append(out, c.ID)
	}
	return out
}

func postIDs(posts []models.Post) []int64 {
	out := make([]int64, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}
