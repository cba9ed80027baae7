package aggregator

import (
	"errors"
	"fmt"
)

// AuthError reports that the mail server could not be reached or refused
// the credentials.
type AuthError struct {
	Host string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("failed to connect to email server %s: %v", e.Host, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// AggregationError reports an unexpected failure while collecting messages.
type AggregationError struct {
	Err error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("error fetching messages: %v", e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
