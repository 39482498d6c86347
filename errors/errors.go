package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet length requirements")
	ErrInvalidUsername    = fmt.Errorf("invalid username")
	ErrTokenGeneration    = fmt.Errorf("unable to generate token")
	ErrNotLoggedIn        = fmt.Errorf("not logged in")
	ErrFrameTooLarge      = fmt.Errorf("frame exceeds maximum size")
	ErrConnClosed         = fmt.Errorf("connection closed")
)
