package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"feedbackapp/internal/config"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"
)

func newTestUserService(t *testing.T) (*UserService, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	cleanup := func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	}

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})

	return NewUserServiceWithLogger(db, &config.Config{}, logger), mock, cleanup
}

func userRows(t *testing.T, username, password string) *sqlmock.Rows {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "username", "email", "first_name", "last_name", "password_hash", "created_at", "updated_at",
	}).AddRow(1, username, username+"@example.com", "Test", "User", string(hash), now, now)
}

func TestUserService_RegisterUser(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice", "alice@example.com", "Alice", "Smith", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT id, username, email").
		WithArgs(1).
		WillReturnRows(userRows(t, "alice", "secret"))

	user, err := service.RegisterUser(context.Background(), "alice", "secret", "alice@example.com", "Alice", "Smith")
	require.NoError(t, err)
	assert.Equal(t, 1, user.ID)
	assert.Equal(t, "alice", user.Username)
}

func TestUserService_RegisterUser_EmptyUsername(t *testing.T) {
	service, _, cleanup := newTestUserService(t)
	defer cleanup()

	_, err := service.RegisterUser(context.Background(), "   ", "secret", "a@example.com", "A", "B")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrInvalidInput))
}

func TestUserService_RegisterUser_InvalidEmail(t *testing.T) {
	service, _, cleanup := newTestUserService(t)
	defer cleanup()

	_, err := service.RegisterUser(context.Background(), "alice", "secret", "not-an-email", "Alice", "Smith")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrInvalidInput))
}

func TestUserService_RegisterUser_UsernameTooLong(t *testing.T) {
	service, _, cleanup := newTestUserService(t)
	defer cleanup()

	_, err := service.RegisterUser(context.Background(), strings.Repeat("a", 21), "secret", "a@example.com", "A", "B")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrInvalidInput))
}

func TestUserService_RegisterUser_DuplicateUsername(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice", "alice@example.com", "Alice", "Smith", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})

	_, err := service.RegisterUser(context.Background(), "alice", "secret", "alice@example.com", "Alice", "Smith")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrRecordExists))
}

func TestUserService_AuthenticateUser_Success(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, username, email").
		WithArgs("alice").
		WillReturnRows(userRows(t, "alice", "correct-password"))

	user, err := service.AuthenticateUser(context.Background(), "alice", "correct-password")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestUserService_AuthenticateUser_UnknownUser(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, username, email").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := service.AuthenticateUser(context.Background(), "ghost", "whatever")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrInvalidCredentials))
}

func TestUserService_AuthenticateUser_WrongPassword(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, username, email").
		WithArgs("alice").
		WillReturnRows(userRows(t, "alice", "correct-password"))

	_, err := service.AuthenticateUser(context.Background(), "alice", "wrong-password")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrInvalidCredentials))
}

func TestUserService_AuthenticateUser_MalformedHash(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "username", "email", "first_name", "last_name", "password_hash", "created_at", "updated_at",
	}).AddRow(1, "alice", "alice@example.com", "Alice", "Smith", "not-a-bcrypt-hash", now, now)

	mock.ExpectQuery("SELECT id, username, email").
		WithArgs("alice").
		WillReturnRows(rows)

	// A corrupt stored hash must behave like a wrong password, not an internal error
	_, err := service.AuthenticateUser(context.Background(), "alice", "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrInvalidCredentials))
}

func TestUserService_GetUserByUsername_NotFound(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, username, email").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	user, err := service.GetUserByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserService_GetAllUsers(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "username", "email", "first_name", "last_name", "created_at", "updated_at",
	}).
		AddRow(1, "alice", "alice@example.com", "Alice", "Smith", now, now).
		AddRow(2, "bob", "bob@example.com", "Bob", "Jones", now, now)

	mock.ExpectQuery("SELECT id, username, email").
		WillReturnRows(rows)

	users, err := service.GetAllUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
	assert.False(t, users[0].PasswordHash.Valid)
}

// hashCapture matches any string argument and records it, so tests can
// inspect the password hash the service sends to the database.
type hashCapture struct {
	dst *string
}

func (c hashCapture) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	*c.dst = s
	return true
}

func TestUserService_PasswordHashing_SaltedAndVerifiable(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	var firstHash, secondHash string

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice", "alice@example.com", "Alice", "Smith", hashCapture{&firstHash}, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT id, username, email").
		WithArgs(1).
		WillReturnRows(userRows(t, "alice", "secret"))

	_, err := service.RegisterUser(context.Background(), "alice", "secret", "alice@example.com", "Alice", "Smith")
	require.NoError(t, err)

	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs(hashCapture{&secondHash}, sqlmock.AnyArg(), "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, service.UpdateUserPassword(context.Background(), "alice", "secret"))

	// Hashing the same plaintext twice must produce different opaque strings
	require.NotEmpty(t, firstHash)
	require.NotEmpty(t, secondHash)
	assert.NotEqual(t, "secret", firstHash)
	assert.NotEqual(t, firstHash, secondHash)

	// Both stored hashes must still verify the original plaintext
	for _, storedHash := range []string{firstHash, secondHash} {
		now := time.Now()
		rows := sqlmock.NewRows([]string{
			"id", "username", "email", "first_name", "last_name", "password_hash", "created_at", "updated_at",
		}).AddRow(1, "alice", "alice@example.com", "Alice", "Smith", storedHash, now, now)

		mock.ExpectQuery("SELECT id, username, email").
			WithArgs("alice").
			WillReturnRows(rows)

		user, err := service.AuthenticateUser(context.Background(), "alice", "secret")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
	}
}

func TestUserService_UpdateUserPassword_EmptyPassword(t *testing.T) {
	service, _, cleanup := newTestUserService(t)
	defer cleanup()

	err := service.UpdateUserPassword(context.Background(), "alice", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password cannot be empty")
}

func TestUserService_UpdateUserPassword_NotFound(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := service.UpdateUserPassword(context.Background(), "ghost", "new-password")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrRecordNotFound))
}

func TestUserService_DeleteUser(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM feedback WHERE username").
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM users WHERE username").
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := service.DeleteUser(context.Background(), "alice")
	require.NoError(t, err)
}

func TestUserService_DeleteUser_NotFound(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM feedback WHERE username").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM users WHERE username").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := service.DeleteUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrRecordNotFound))
}

func TestUserService_DeleteUser_FeedbackDeleteFails(t *testing.T) {
	service, mock, cleanup := newTestUserService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM feedback WHERE username").
		WithArgs("alice").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := service.DeleteUser(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete user feedback")
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.False(t, isDuplicateKeyError(nil))
	assert.False(t, isDuplicateKeyError(errors.New("plain error")))
	assert.False(t, isDuplicateKeyError(&pq.Error{Code: "23503"}))
	assert.True(t, isDuplicateKeyError(&pq.Error{Code: "23505"}))
}
