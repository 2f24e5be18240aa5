//go:build integration

package services

import (
	"context"
	"errors"
	"testing"

	"feedbackapp/internal/config"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrationFeedbackService(t *testing.T) (*FeedbackService, *UserService, func()) {
	t.Helper()

	db := SharedTestDBSetup(t)

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	userService := NewUserServiceWithLogger(db, &config.Config{}, logger)
	feedbackService := NewFeedbackService(db, logger)

	return feedbackService, userService, func() { db.Close() }
}

func TestFeedbackService_CRUD_Integration(t *testing.T) {
	service, userService, cleanup := newIntegrationFeedbackService(t)
	defer cleanup()

	ctx := context.Background()
	username := uniqueUsername("fb")
	_, err := userService.RegisterUser(ctx, username, "pw", username+"@example.com", "Fb", "User")
	require.NoError(t, err)

	created, err := service.CreateFeedback(ctx, username, "Title", "Some content")
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	fetched, err := service.GetFeedbackByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Title", fetched.Title)
	assert.Equal(t, username, fetched.Username)

	updated, err := service.UpdateFeedback(ctx, created.ID, "New title", "New content", username)
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "New content", updated.Content)

	err = service.DeleteFeedback(ctx, created.ID, username)
	require.NoError(t, err)

	_, err = service.GetFeedbackByID(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrRecordNotFound))
}

func TestFeedbackService_ListOrdering_Integration(t *testing.T) {
	service, userService, cleanup := newIntegrationFeedbackService(t)
	defer cleanup()

	ctx := context.Background()
	username := uniqueUsername("ord")
	_, err := userService.RegisterUser(ctx, username, "pw", username+"@example.com", "Ord", "User")
	require.NoError(t, err)

	titles := []string{"first", "second", "third"}
	for _, title := range titles {
		_, err := service.CreateFeedback(ctx, username, title, "content")
		require.NoError(t, err)
	}

	list, err := service.ListFeedbackForUser(ctx, username)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, title := range titles {
		assert.Equal(t, title, list[i].Title)
	}
}

func TestFeedbackService_OwnershipGate_Integration(t *testing.T) {
	service, userService, cleanup := newIntegrationFeedbackService(t)
	defer cleanup()

	ctx := context.Background()
	owner := uniqueUsername("owner")
	intruder := uniqueUsername("intruder")
	for _, name := range []string{owner, intruder} {
		_, err := userService.RegisterUser(ctx, name, "pw", name+"@example.com", "Own", "User")
		require.NoError(t, err)
	}

	created, err := service.CreateFeedback(ctx, owner, "Owner's post", "content")
	require.NoError(t, err)

	_, err = service.UpdateFeedback(ctx, created.ID, "Hijacked", "content", intruder)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrForbidden))

	err = service.DeleteFeedback(ctx, created.ID, intruder)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrForbidden))

	// Still present and unchanged for the owner
	fetched, err := service.GetFeedbackByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Owner's post", fetched.Title)
}
