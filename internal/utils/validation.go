package contextutils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// IsValidEmail checks if an email address is valid using go-playground/validator
func IsValidEmail(email string) bool {
	return validate.Var(email, "email") == nil
}

// IsValidUsername checks that a username is non-empty and within the storage limit
func IsValidUsername(username string) bool {
	return validate.Var(username, "required,min=1,max=20") == nil
}
