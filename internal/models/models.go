package models

import (
	"time"
)

// UserRef is the author/identity attached to posts and comments.
// Karma24h is a point-in-time snapshot and is never live-updated.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Karma24h *int   `json:"karma_24h,omitempty"`
}

// Post is a short text post in the feed.
type Post struct {
	ID           int64     `json:"id"`
	Author       UserRef   `json:"author"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LikeCount    int       `json:"like_count"`
	IsLiked      bool      `json:"is_liked"` // Relative to the viewer
	CommentCount int       `json:"comment_count"`
	Comments     []Comment `json:"comments"`
}

// Comment is a node of a post's comment forest. Parent is nil for
// top-level comments. Replies is filled at query time, it is not a
// stored field of the engine's flat collection.
type Comment struct {
	ID        int64     `json:"id"`
	Post      int64     `json:"post"`
	Parent    *int64    `json:"parent"`
	Author    UserRef   `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LikeCount int       `json:"like_count"`
	IsLiked   bool      `json:"is_liked"`
	Replies   []Comment `json:"replies"`
}

// IsTopLevel reports whether the comment has no parent.
func (c Comment) IsTopLevel() bool {
	return c.Parent == nil
}

// PostPage is one page of the post stream. Next is the collaborator's
// cursor for the following page, empty when the stream is exhausted.
type PostPage struct {
	Count    int    `json:"count"`
	Next     string `json:"next"`
	Previous string `json:"previous"`
	Results  []Post `json:"results"`
}

// HasMore reports whether another page can be requested.
func (p PostPage) HasMore() bool {
	return p.Next != ""
}

// LikeResult is the collaborator's answer to a like or unlike call.
type LikeResult struct {
	Message   string `json:"message,omitempty"`
	LikeCount int    `json:"like_count"`
}

// LeaderboardEntry is one ranked user; rank is its position in the slice.
type LeaderboardEntry struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Karma24h int    `json:"karma_24h"`
}

// Leaderboard is a ranked snapshot of top users by trailing 24h karma.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"leaderboard"`
	Period    string             `json:"period,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// PostUpdate is a shallow partial update; nil fields are left unchanged.
type PostUpdate struct {
	LikeCount    *int  `json:"like_count,omitempty"`
	IsLiked      *bool `json:"is_liked,omitempty"`
	CommentCount *int  `json:"comment_count,omitempty"`
}

// Apply merges the update into p.
func (u PostUpdate) Apply(p *Post) {
	if u.LikeCount != nil {
		p.LikeCount = *u.LikeCount
	}
	if u.IsLiked != nil {
		p.IsLiked = *u.IsLiked
	}
	if u.CommentCount != nil {
		p.CommentCount = *u.CommentCount
	}
}

// CommentUpdate is a shallow partial update; nil fields are left unchanged.
type CommentUpdate struct {
	LikeCount *int  `json:"like_count,omitempty"`
	IsLiked   *bool `json:"is_liked,omitempty"`
}

// Apply merges the update into c. Replies are never touched.
func (u CommentUpdate) Apply(c *Comment) {
	if u.LikeCount != nil {
		c.LikeCount = *u.LikeCount
	}
	if u.IsLiked != nil {
		c.IsLiked = *u.IsLiked
	}
}
