package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"
)

// FeedbackServiceInterface defines the interface for feedback operations.
// This allows for easier mocking in tests.
type FeedbackServiceInterface interface {
	CreateFeedback(ctx context.Context, username, title, content string) (*models.Feedback, error)
	GetFeedbackByID(ctx context.Context, id int) (*models.Feedback, error)
	ListFeedbackForUser(ctx context.Context, username string) ([]models.Feedback, error)
	UpdateFeedback(ctx context.Context, id int, title, content, actingUsername string) (*models.Feedback, error)
	DeleteFeedback(ctx context.Context, id int, actingUsername string) error
}

// FeedbackService implements FeedbackServiceInterface for managing feedback entries.
// Ownership is enforced here rather than in handlers so every caller gets it.
type FeedbackService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewFeedbackService creates a new FeedbackService instance.
func NewFeedbackService(db *sql.DB, logger *observability.Logger) *FeedbackService {
	if db == nil {
		panic("NewFeedbackService: db is nil")
	}
	if logger == nil {
		panic("NewFeedbackService: logger is nil")
	}
	return &FeedbackService{db: db, logger: logger}
}

const feedbackSelectFields = `id, title, content, username, created_at, updated_at`

func scanFeedback(row *sql.Row) (result0 *models.Feedback, err error) {
	var fb models.Feedback
	err = row.Scan(&fb.ID, &fb.Title, &fb.Content, &fb.Username, &fb.CreatedAt, &fb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &fb, nil
}

// CreateFeedback inserts a new feedback entry owned by username.
func (s *FeedbackService) CreateFeedback(ctx context.Context, username, title, content string) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "create_feedback", observability.AttributeUsername(username))
	defer observability.FinishSpan(span, &err)

	query := `INSERT INTO feedback (title, content, username, created_at, updated_at)
              VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`
	now := time.Now()
	fb := &models.Feedback{Title: title, Content: content, Username: username}
	err = s.db.QueryRowContext(ctx, query, title, content, username, now, now).
		Scan(&fb.ID, &fb.CreatedAt, &fb.UpdatedAt)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to insert feedback")
	}
	return fb, nil
}

// GetFeedbackByID fetches a single feedback entry.
func (s *FeedbackService) GetFeedbackByID(ctx context.Context, id int) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "get_feedback_by_id", observability.AttributeFeedbackID(id))
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + feedbackSelectFields + ` FROM feedback WHERE id=$1`
	var fb *models.Feedback
	fb, err = scanFeedback(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrRecordNotFound
		}
		return nil, contextutils.WrapError(err, "failed to scan feedback")
	}
	return fb, nil
}

// ListFeedbackForUser returns all feedback owned by username, oldest first.
func (s *FeedbackService) ListFeedbackForUser(ctx context.Context, username string) (result0 []models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "list_feedback_for_user", observability.AttributeUsername(username))
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + feedbackSelectFields + ` FROM feedback WHERE username=$1 ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query feedback list")
	}
	defer func() {
		_ = rows.Close()
	}()

	list := []models.Feedback{}
	for rows.Next() {
		var fb models.Feedback
		if err := rows.Scan(&fb.ID, &fb.Title, &fb.Content, &fb.Username, &fb.CreatedAt, &fb.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(err, "scan feedback list")
		}
		list = append(list, fb)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate feedback rows")
	}
	return list, nil
}

// UpdateFeedback replaces title and content of a feedback entry.
// Only the owner may update; anyone else gets ErrForbidden.
func (s *FeedbackService) UpdateFeedback(ctx context.Context, id int, title, content, actingUsername string) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "update_feedback", observability.AttributeFeedbackID(id), observability.AttributeUsername(actingUsername))
	defer observability.FinishSpan(span, &err)

	fb, err := s.GetFeedbackByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if fb.Username != actingUsername {
		s.logger.Warn(ctx, "Feedback update denied for non-owner", map[string]interface{}{
			"feedback_id": id,
			"owner":       fb.Username,
			"acting_user": actingUsername,
		})
		return nil, contextutils.ErrForbidden
	}

	query := `UPDATE feedback SET title=$1, content=$2, updated_at=$3 WHERE id=$4`
	if _, err = s.db.ExecContext(ctx, query, title, content, time.Now(), id); err != nil {
		return nil, contextutils.WrapError(err, "failed to update feedback")
	}
	return s.GetFeedbackByID(ctx, id)
}

// DeleteFeedback removes a feedback entry. Only the owner may delete.
func (s *FeedbackService) DeleteFeedback(ctx context.Context, id int, actingUsername string) (err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "delete_feedback", observability.AttributeFeedbackID(id), observability.AttributeUsername(actingUsername))
	defer observability.FinishSpan(span, &err)

	fb, err := s.GetFeedbackByID(ctx, id)
	if err != nil {
		return err
	}
	if fb.Username != actingUsername {
		s.logger.Warn(ctx, "Feedback delete denied for non-owner", map[string]interface{}{
			"feedback_id": id,
			"owner":       fb.Username,
			"acting_user": actingUsername,
		})
		return contextutils.ErrForbidden
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM feedback WHERE id=$1`, id)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete feedback")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "feedback with ID %d not found", id)
	}

	return nil
}
