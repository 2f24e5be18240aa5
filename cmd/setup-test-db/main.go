// Package main provides a utility to set up the test database with initial data.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"feedbackapp/internal/config"
	"feedbackapp/internal/database"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"gopkg.in/yaml.v3"
)

// TestUser represents a user in the test data files
type TestUser struct {
	Username  string `yaml:"username"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
}

// TestFeedback represents a feedback entry in the test data files
type TestFeedback struct {
	Username string `yaml:"username"`
	Title    string `yaml:"title"`
	Content  string `yaml:"content"`
}

// TestData is the root of a seed data file
type TestData struct {
	Users    []TestUser     `yaml:"users"`
	Feedback []TestFeedback `yaml:"feedback"`
}

func main() {
	dataFile := flag.String("data", "testdata/seed.yaml", "Path to the YAML seed data file")
	clean := flag.Bool("clean", false, "Truncate existing data before seeding")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Test database seeding never needs telemetry
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	if testURL := os.Getenv("TEST_DATABASE_URL"); testURL != "" {
		cfg.Database.URL = testURL
	}

	logger := observability.NewLogger(&cfg.OpenTelemetry)

	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithConfig(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to initialize database", err, map[string]interface{}{"db_url": cfg.Database.URL})
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	if *clean {
		if err := truncateAll(ctx, db); err != nil {
			logger.Error(ctx, "Failed to truncate tables", err, nil)
			os.Exit(1)
		}
		logger.Info(ctx, "Truncated existing data", nil)
	}

	data, err := loadTestData(*dataFile)
	if err != nil {
		logger.Error(ctx, "Failed to load seed data", err, map[string]interface{}{"file": *dataFile})
		os.Exit(1)
	}

	usersCreated, feedbackCreated, err := seed(ctx, db, cfg, logger, data)
	if err != nil {
		logger.Error(ctx, "Seeding failed", err, nil)
		os.Exit(1)
	}

	logger.Info(ctx, "Test database seeded", map[string]interface{}{
		"users":    usersCreated,
		"feedback": feedbackCreated,
		"file":     *dataFile,
	})
	fmt.Printf("Seeded %d users and %d feedback entries from %s\n", usersCreated, feedbackCreated, *dataFile)
}

// loadTestData reads and parses a YAML seed data file
func loadTestData(path string) (*TestData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to read seed file %s", path)
	}

	var data TestData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to parse seed file %s", path)
	}
	return &data, nil
}

// truncateAll clears all application tables, feedback first because of the foreign key
func truncateAll(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{
		"TRUNCATE TABLE feedback CASCADE",
		"TRUNCATE TABLE users CASCADE",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return contextutils.WrapErrorf(err, "failed to execute %q", stmt)
		}
	}
	return nil
}

// seed creates the users and feedback entries described by the seed data.
// Users that already exist are skipped rather than treated as errors so the
// tool can be run repeatedly.
func seed(ctx context.Context, db *sql.DB, cfg *config.Config, logger *observability.Logger, data *TestData) (usersCreated, feedbackCreated int, err error) {
	userService := services.NewUserServiceWithLogger(db, cfg, logger)
	feedbackService := services.NewFeedbackService(db, logger)

	for _, u := range data.Users {
		_, err := userService.RegisterUser(ctx, u.Username, u.Password, u.Email, u.FirstName, u.LastName)
		if err != nil {
			if contextutils.IsError(err, contextutils.ErrRecordExists) {
				logger.Info(ctx, "User already exists, skipping", map[string]interface{}{"username": u.Username})
				continue
			}
			return usersCreated, feedbackCreated, contextutils.WrapErrorf(err, "failed to create user %s", u.Username)
		}
		usersCreated++
	}

	for _, f := range data.Feedback {
		if _, err := feedbackService.CreateFeedback(ctx, f.Username, f.Title, f.Content); err != nil {
			return usersCreated, feedbackCreated, contextutils.WrapErrorf(err, "failed to create feedback for %s", f.Username)
		}
		feedbackCreated++
	}

	return usersCreated, feedbackCreated, nil
}
