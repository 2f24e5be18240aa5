// Package services contains business logic for user accounts and feedback.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"

	"github.com/lib/pq"

	"golang.org/x/crypto/bcrypt"
)

// UserServiceInterface defines the interface for user-related operations.
// This allows for easier mocking in tests.
type UserServiceInterface interface {
	RegisterUser(ctx context.Context, username, password, email, firstName, lastName string) (*models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]models.User, error)
	UpdateUserPassword(ctx context.Context, username, newPassword string) error
	DeleteUser(ctx context.Context, username string) error
	GetDB() *sql.DB
}

// UserService provides methods for user management.
type UserService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// Shared query constants to eliminate duplication
const (
	// userSelectFields contains all user fields for SELECT queries
	userSelectFields = `id, username, email, first_name, last_name, password_hash, created_at, updated_at`

	// userSelectFieldsNoPassword contains user fields excluding password_hash for GetAllUsers
	userSelectFieldsNoPassword = `id, username, email, first_name, last_name, created_at, updated_at`
)

// scanUserFromRow scans a database row into a models.User struct
func (s *UserService) scanUserFromRow(row *sql.Row) (result0 *models.User, err error) {
	user := &models.User{}
	err = row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName,
		&user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// scanUserFromRowsNoPassword scans a database rows into a models.User struct (without password_hash)
func (s *UserService) scanUserFromRowsNoPassword(rows *sql.Rows) (result0 *models.User, err error) {
	user := &models.User{}
	err = rows.Scan(
		&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// getUserByQuery is a shared method for getting a user by any query
func (s *UserService) getUserByQuery(ctx context.Context, query string, args ...interface{}) (result0 *models.User, err error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	var user *models.User
	user, err = s.scanUserFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found is not an error here
		}
		return nil, err
	}
	return user, nil
}

// NewUserServiceWithLogger creates a new UserService instance with logger
func NewUserServiceWithLogger(db *sql.DB, cfg *config.Config, logger *observability.Logger) *UserService {
	return &UserService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// RegisterUser creates a new user with a bcrypt-hashed password.
// A duplicate username or email surfaces as ErrRecordExists; the unique
// constraint is checked at write time so concurrent registrations cannot race.
func (s *UserService) RegisterUser(ctx context.Context, username, password, email, firstName, lastName string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "register_user", observability.AttributeUsername(username))
	defer observability.FinishSpan(span, &err)

	// Validate here as well as at the HTTP layer; the CLI and seeding tools
	// call this directly.
	if len(strings.TrimSpace(username)) == 0 || !contextutils.IsValidUsername(username) {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "invalid username")
	}
	if !contextutils.IsValidEmail(email) {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "invalid email address")
	}

	// Hash the password using bcrypt
	var hashedPassword []byte
	hashedPassword, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to hash password")
	}

	query := `INSERT INTO users (username, email, first_name, last_name, password_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	now := time.Now()
	var id int
	err = s.db.QueryRowContext(ctx, query, username, email, firstName, lastName, string(hashedPassword), now, now).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, contextutils.ErrRecordExists
		}
		return nil, err
	}

	var user *models.User
	user, err = s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, "user was created but could not be retrieved from database")
	}

	s.logger.Info(ctx, "User registered", map[string]interface{}{"user_id": user.ID, "username": user.Username})
	return user, nil
}

// AuthenticateUser verifies user credentials and returns the user if valid.
// Unknown username, missing hash, and wrong password all return the same
// ErrInvalidCredentials so callers cannot enumerate accounts.
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "authenticate_user", observability.AttributeUsername(username))
	defer observability.FinishSpan(span, &err)

	// Get user by username
	var user *models.User
	user, err = s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, contextutils.ErrInvalidCredentials
	}

	// A user row without a usable hash must not authenticate
	if !user.PasswordHash.Valid || user.PasswordHash.String == "" {
		s.logger.Warn(ctx, "User has no usable password hash", map[string]interface{}{"username": username})
		return nil, contextutils.ErrInvalidCredentials
	}

	// Compare provided password with stored hash. A malformed hash surfaces
	// here as an error and is treated the same as a wrong password.
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password))
	if err != nil {
		return nil, contextutils.ErrInvalidCredentials
	}

	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(ctx context.Context, id int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id", observability.AttributeUserID(id))
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userSelectFields)
	var user *models.User
	user, err = s.getUserByQuery(ctx, query, id)
	if err != nil {
		s.logger.Error(ctx, "Database error retrieving user", err, map[string]interface{}{"user_id": id})
		return nil, err
	}
	if user == nil {
		s.logger.Debug(ctx, "User not found in database", map[string]interface{}{"user_id": id})
		return nil, nil
	}
	return user, nil
}

// GetUserByUsername retrieves a user by their username
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_username", observability.AttributeUsername(username))
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf("SELECT %s FROM users WHERE username = $1", userSelectFields)
	return s.getUserByQuery(ctx, query, username)
}

// GetAllUsers retrieves all users without their password hashes
func (s *UserService) GetAllUsers(ctx context.Context) (result0 []models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_all_users")
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf("SELECT %s FROM users ORDER BY username", userSelectFieldsNoPassword)
	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query all users")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Warning: failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var users []models.User
	for rows.Next() {
		user, scanErr := s.scanUserFromRowsNoPassword(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan user from rows")
		}
		users = append(users, *user)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate user rows")
	}

	return users, nil
}

// UpdateUserPassword hashes and stores a new password for the named user
func (s *UserService) UpdateUserPassword(ctx context.Context, username, newPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user_password", observability.AttributeUsername(username))
	defer observability.FinishSpan(span, &err)

	// Validate password is not empty
	if newPassword == "" {
		return contextutils.ErrorWithContextf("password cannot be empty")
	}

	// Hash the new password using bcrypt
	var hashedPassword []byte
	hashedPassword, err = bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return contextutils.WrapError(err, "failed to hash password")
	}

	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE username = $3`
	result, err := s.db.ExecContext(ctx, query, string(hashedPassword), time.Now(), username)
	if err != nil {
		return contextutils.WrapError(err, "failed to update user password")
	}

	// Check if any rows were affected
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}

	if rowsAffected == 0 {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "user not found")
	}

	s.logger.Info(ctx, "Password updated successfully", map[string]interface{}{"username": username})
	return nil
}

// DeleteUser removes a user and their feedback in a single transaction.
// The feedback table references users(username) without ON DELETE CASCADE,
// so the dependent rows are removed explicitly first.
func (s *UserService) DeleteUser(ctx context.Context, username string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "delete_user", observability.AttributeUsername(username))
	defer observability.FinishSpan(span, &err)

	var tx *sql.Tx
	tx, err = s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to begin transaction for user delete")
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.Warn(ctx, "Warning: failed to rollback transaction", map[string]interface{}{"error": rollbackErr.Error()})
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM feedback WHERE username = $1`, username); err != nil {
		return contextutils.WrapError(err, "failed to delete user feedback")
	}

	var result sql.Result
	result, err = tx.ExecContext(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete user")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "user not found")
	}

	if err = tx.Commit(); err != nil {
		return contextutils.WrapError(err, "failed to commit user delete")
	}

	s.logger.Info(ctx, "User deleted successfully", map[string]interface{}{"username": username})
	return nil
}

// GetDB returns the underlying database connection
func (s *UserService) GetDB() *sql.DB {
	return s.db
}

// isDuplicateKeyError checks if the error is a duplicate key constraint violation
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	// Check for PostgreSQL unique constraint violation error code
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// PostgreSQL error code 23505 is for unique constraint violations
		if pqErr.Code == "23505" {
			return true
		}
	}

	return false
}
