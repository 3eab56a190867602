package app

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable indicates that the language model or nutrition provider could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	// ErrMalformedUpstream indicates that an upstream reply did not have the expected shape.
	ErrMalformedUpstream = errors.New("malformed upstream response")
	// ErrPersistence indicates that the meal record could not be stored.
	ErrPersistence = errors.New("persistence failure")
	// ErrUnauthorized indicates that no authenticated user is attached to the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrGoalReached indicates that there is no calorie budget left to suggest meals for.
	ErrGoalReached = errors.New("daily calorie goal reached")
	// ErrMealNotFound indicates that the meal does not exist or belongs to another user.
	ErrMealNotFound = errors.New("meal not found")
)

// ValidationError reports malformed or missing input. It is returned before
// any external call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
