package models

import "time"

// Draft holds unsent composer input so it survives a failed submission.
// One draft exists per (author, target).
type Draft struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	AuthorID  int64     `gorm:"not null;uniqueIndex:idx_draft_author_target" json:"author_id"`
	Target    string    `gorm:"not null;size:64;uniqueIndex:idx_draft_author_target" json:"target"`
	PostID    *int64    `json:"post_id,omitempty"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Content   string    `gorm:"not null" json:"content"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
