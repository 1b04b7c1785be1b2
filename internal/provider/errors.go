package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned by a strategy whose underlying client operation does not exist
var ErrUnavailable = errors.New("provider operation unavailable")

// ProfileFetchError means no provider operation produced a usable response
type ProfileFetchError struct {
	Username  string
	Attempted []string
	Available []string
	Cause     error
}

func (e *ProfileFetchError) Error() string {
	msg := fmt.Sprintf("failed to fetch data for user %s: no working provider operations (attempted: %s; available: %s)",
		e.Username, joinOrNone(e.Attempted), joinOrNone(e.Available))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProfileFetchError) Unwrap() error {
	return e.Cause
}

// ProfileNotFoundError means the provider answered but no matched-user object could be located
type ProfileNotFoundError struct {
	Username string
	Source   string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("user %s not found: no matchedUser data in %s response", e.Username, e.Source)
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
