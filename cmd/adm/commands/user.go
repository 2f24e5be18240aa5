package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/spf13/cobra"
)

// UserCommands returns the user management commands
func UserCommands(userService *services.UserService, logger *observability.Logger, databaseURL string) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands for the feedback application.

Available commands:
  list           - List all users
  reset-password - Reset password for a specific user
  delete         - Delete a user and all their feedback`,
	}

	// Add subcommands
	userCmd.AddCommand(listCmd(userService, logger, databaseURL))
	userCmd.AddCommand(resetPasswordCmd(userService, logger))
	userCmd.AddCommand(deleteUserCmd(userService, logger))

	return userCmd
}

// listCmd returns the list command
func listCmd(userService *services.UserService, logger *observability.Logger, databaseURL string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Long:  `List all users in the database with their basic information.`,
		RunE:  runListUsers(userService, logger, databaseURL),
	}
}

// resetPasswordCmd returns the reset-password command
func resetPasswordCmd(userService *services.UserService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password [username]",
		Short: "Reset password for a user",
		Long:  `Reset the password for a specific user. If username is not provided, you will be prompted for it.`,
		RunE:  runResetPassword(userService, logger),
	}
}

// deleteUserCmd returns the delete command
func deleteUserCmd(userService *services.UserService, logger *observability.Logger) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete [username]",
		Short: "Delete a user",
		Long:  `Delete a user and all their feedback entries. Asks for confirmation unless --force is given.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runDeleteUser(userService, logger, &force),
	}

	cmd.Flags().BoolVar(&force, "force", false, "Delete without asking for confirmation")

	return cmd
}

// runListUsers returns a function that lists all users
func runListUsers(userService *services.UserService, logger *observability.Logger, databaseURL string) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Show diagnostic information
		logger.Info(ctx, "Admin command diagnostics", map[string]interface{}{"config_file": os.Getenv("FEEDBACK_CONFIG_FILE"), "database_url": maskDatabaseURL(databaseURL)})

		users, err := userService.GetAllUsers(ctx)
		if err != nil {
			logger.Error(ctx, "Failed to get users", err, map[string]interface{}{})
			return contextutils.WrapError(err, "failed to get users")
		}

		if len(users) == 0 {
			logger.Info(ctx, "No users found in the database", nil)
			return nil
		}

		// Print header to stdout (user-facing table)
		fmt.Printf("%-5s %-20s %-30s %-20s %-20s %-10s\n", "ID", "Username", "Email", "First name", "Last name", "Created")
		fmt.Println(strings.Repeat("-", 110))

		for _, user := range users {
			firstName := "N/A"
			if user.FirstName.Valid {
				firstName = user.FirstName.String
			}

			lastName := "N/A"
			if user.LastName.Valid {
				lastName = user.LastName.String
			}

			fmt.Printf("%-5d %-20s %-30s %-20s %-20s %-10s\n",
				user.ID,
				user.Username,
				user.Email,
				firstName,
				lastName,
				user.CreatedAt.Format("2006-01-02"),
			)
		}

		logger.Info(ctx, "Listed users", map[string]interface{}{"total": len(users)})
		return nil
	}
}

// runResetPassword returns a function that resets a user's password
func runResetPassword(userService *services.UserService, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		var username string
		var newPassword string

		// Get username from args or prompt
		if len(args) > 0 {
			username = args[0]
		} else {
			fmt.Print("Enter username: ")
			if _, err := fmt.Scanln(&username); err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read username: %v", err)
			}
		}

		if username == "" {
			return contextutils.ErrorWithContextf("username is required")
		}

		// Prompt for password securely
		fmt.Print("Enter new password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password: %v", err)
		}
		newPassword = string(passwordBytes)
		fmt.Println()

		if newPassword == "" {
			return contextutils.ErrorWithContextf("password cannot be empty")
		}

		// Confirm password
		fmt.Print("Confirm new password: ")
		confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password confirmation: %v", err)
		}
		confirmPassword := string(confirmBytes)
		fmt.Println()

		if newPassword != confirmPassword {
			return contextutils.ErrorWithContextf("passwords do not match")
		}

		logger.Info(ctx, "Resetting password for user", map[string]interface{}{
			"username": username,
		})

		if err := userService.UpdateUserPassword(ctx, username, newPassword); err != nil {
			logger.Error(ctx, "Failed to update password", err, map[string]interface{}{"username": username})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to update password for user '%s': %v", username, err)
		}

		fmt.Printf("Password successfully reset for user '%s'\n", username)
		logger.Info(ctx, "Password reset successful", map[string]interface{}{"username": username})

		return nil
	}
}

// runDeleteUser returns a function that deletes a user and their feedback
func runDeleteUser(userService *services.UserService, logger *observability.Logger, force *bool) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		username := args[0]

		user, err := userService.GetUserByUsername(ctx, username)
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get user '%s': %v", username, err)
		}
		if user == nil {
			return contextutils.ErrorWithContextf("user '%s' not found", username)
		}

		if !*force {
			fmt.Printf("This will permanently delete user '%s' and all their feedback. Type the username to confirm: ", username)
			var confirm string
			if _, err := fmt.Scanln(&confirm); err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read confirmation: %v", err)
			}
			if confirm != username {
				return contextutils.ErrorWithContextf("confirmation did not match, aborting")
			}
		}

		if err := userService.DeleteUser(ctx, username); err != nil {
			logger.Error(ctx, "Failed to delete user", err, map[string]interface{}{"username": username})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to delete user '%s': %v", username, err)
		}

		fmt.Printf("User '%s' deleted\n", username)
		logger.Info(ctx, "User deleted", map[string]interface{}{"username": username})

		return nil
	}
}
