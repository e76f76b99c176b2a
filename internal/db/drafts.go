package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/karmafeed/internal/compose"
	"github.com/sujalbistaa/karmafeed/internal/models"
)

// DraftStore keeps composer drafts in the database.
type DraftStore struct {
	DB *gorm.DB
}

var _ compose.DraftStore = (*DraftStore)(nil)

func NewDraftStore(db *gorm.DB) *DraftStore {
	return &DraftStore{DB: db}
}

// SaveDraft inserts d or overwrites the existing draft for the same
// author and target.
func (s *DraftStore) SaveDraft(ctx context.Context, d models.Draft) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "author_id"}, {Name: "target"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "post_id", "parent_id", "last_error", "updated_at"}),
	}).Create(&d).Error
}

func (s *DraftStore) GetDraft(ctx context.Context, authorID int64, target string) (models.Draft, bool, error) {
	var d models.Draft
	err := s.DB.WithContext(ctx).
		Where("author_id = ? AND target = ?", authorID, target).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Draft{}, false, nil
	}
	if err != nil {
		return models.Draft{}, false, err
	}
	return d, true, nil
}

func (s *DraftStore) DeleteDraft(ctx context.Context, authorID int64, target string) error {
	return s.DB.WithContext(ctx).
		Where("author_id = ? AND target = ?", authorID, target).
		Delete(&models.Draft{}).Error
}

// ListDrafts returns every draft of one author, most recent first.
func (s *DraftStore) ListDrafts(ctx context.Context, authorID int64) ([]models.Draft, error) {
	var drafts []models.Draft
	err := s.DB.WithContext(ctx).
		Where("author_id = ?", authorID).
		Order("updated_at desc").
		Find(&drafts).Error
	return drafts, err
}
