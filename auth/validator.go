package auth

import (
	"fmt"
	"regexp"

	"chat-broker/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// usernameRegex keeps usernames printable and short enough for display.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)

type RegisterRequest struct {
	Username string `validate:"required,min=3,max=20"`
	Password string `validate:"required,min=8,max=72"`
}

func ValidateRegister(req RegisterRequest) error {
	if !usernameRegex.MatchString(req.Username) {
		return errors.ErrInvalidUsername
	}

	// The regex already bounds the username, so a struct failure here can
	// only be about the password.
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}
	return nil
}
