// Package compose validates and submits new posts, comments and replies,
// keeping the user's input as a draft when a submission fails.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sujalbistaa/karmafeed/internal/metrics"
	"github.com/sujalbistaa/karmafeed/internal/models"
)

// DefaultMaxContentLength is the content limit in characters.
const DefaultMaxContentLength = 1000

var (
	ErrEmptyContent   = errors.New("please enter some content")
	ErrContentTooLong = errors.New("content is too long")
	ErrSubmitFailed   = errors.New("submission failed, please try again")
)

// Kind of submission.
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
	KindReply   Kind = "reply"
)

// Submission is one unit of user input headed for the collaborator.
type Submission struct {
	Kind     Kind
	AuthorID int64
	PostID   *int64
	ParentID *int64
	Content  string
}

// Target names the input box the submission came from; drafts are keyed
// by it.
func (s Submission) Target() string {
	switch {
	case s.PostID == nil:
		return "post"
	case s.ParentID == nil:
		return fmt.Sprintf("post:%d", *s.PostID)
	default:
		return fmt.Sprintf("post:%d/comment:%d", *s.PostID, *s.ParentID)
	}
}

// DraftStore persists drafts. GetDraft reports found=false for a missing
// draft; DeleteDraft of a missing draft is not an error.
type DraftStore interface {
	SaveDraft(ctx context.Context, d models.Draft) error
	GetDraft(ctx context.Context, authorID int64, target string) (models.Draft, bool, error)
	DeleteDraft(ctx context.Context, authorID int64, target string) error
}

type Composer struct {
	validate *validator.Validate
	drafts   DraftStore
	maxLen   int
	logger   *slog.Logger
}

// NewComposer returns a Composer. drafts may be nil, in which case
// failed input is not persisted.
func NewComposer(drafts DraftStore, maxLen int, logger *slog.Logger) *Composer {
	if maxLen <= 0 {
		maxLen = DefaultMaxContentLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		drafts:   drafts,
		maxLen:   maxLen,
		logger:   logger,
	}
}

// MaxContentLength is the enforced limit.
func (c *Composer) MaxContentLength() int {
	return c.maxLen
}

// Validate checks content before any remote call. Whitespace-only
// content counts as empty; length is measured in characters.
func (c *Composer) Validate(content string) error {
	if err := c.validate.Var(strings.TrimSpace(content), "required"); err != nil {
		return ErrEmptyContent
	}
	if err := c.validate.Var(content, fmt.Sprintf("max=%d", c.maxLen)); err != nil {
		return fmt.Errorf("%w (max %d characters)", ErrContentTooLong, c.maxLen)
	}
	return nil
}

// Submit validates s and hands its content to send. On a send failure
// the input is saved as a draft and the error wraps ErrSubmitFailed; on
// success any draft for the same target is discarded.
func (c *Composer) Submit(ctx context.Context, s Submission, send func(ctx context.Context, content string) error) error {
	if err := c.Validate(s.Content); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(s.Kind), "invalid").Inc()
		return err
	}

	if err := send(ctx, s.Content); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(s.Kind), "error").Inc()
		c.logger.Error("error creating "+string(s.Kind), "target", s.Target(), "error", err)
		c.keep(ctx, s, err)
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	metrics.SubmissionsTotal.WithLabelValues(string(s.Kind), "success").Inc()
	if c.drafts != nil {
		if err := c.drafts.DeleteDraft(ctx, s.AuthorID, s.Target()); err != nil {
			c.logger.Warn("failed to discard draft", "target", s.Target(), "error", err)
		}
	}
	return nil
}

func (c *Composer) keep(ctx context.Context, s Submission, cause error) {
	if c.drafts == nil {
		return
	}
	d := models.Draft{
		ID:        uuid.NewString(),
		AuthorID:  s.AuthorID,
		Target:    s.Target(),
		PostID:    s.PostID,
		ParentID:  s.ParentID,
		Content:   s.Content,
		LastError: cause.Error(),
	}
	// The caller's ctx may be the one that just failed.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := c.drafts.SaveDraft(ctx, d); err != nil {
		c.logger.Error("failed to save draft", "target", d.Target, "error", err)
	}
}

// Draft returns the saved input for a target, if any.
func (c *Composer) Draft(ctx context.Context, authorID int64, target string) (models.Draft, bool, error) {
	if c.drafts == nil {
		return models.Draft{}, false, nil
	}
	return c.drafts.GetDraft(ctx, authorID, target)
}
