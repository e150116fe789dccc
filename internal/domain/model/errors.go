package model

import (
	"errors"
	"fmt"
	"time"
)

// AuthError means the request was rejected for credential reasons and a
// retry without new credentials cannot succeed.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// RateLimitError means GitHub's API quota is exhausted until Reset.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets at %s", e.Reset.Format(time.RFC3339))
}

// NetworkError wraps a transport-level failure (DNS, TCP, TLS, timeout).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError wraps a failure to parse a response body that arrived intact.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// GraphQLError carries the first error message from a GraphQL errors array
// on a response with no usable data.
type GraphQLError struct {
	Message string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("graphql error: %s", e.Message)
}

// APIError is a non-success HTTP status not covered by a more specific type.
type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d", e.StatusCode)
}

// ConfigError means user-supplied configuration could not be applied.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// ErrorKind maps an error to a stable string for status reporting.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		authErr    *AuthError
		rateErr    *RateLimitError
		netErr     *NetworkError
		decodeErr  *DecodeError
		graphqlErr *GraphQLError
		apiErr     *APIError
		configErr  *ConfigError
	)
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &rateErr):
		return "rate-limit"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &graphqlErr):
		return "graphql"
	case errors.As(err, &apiErr):
		return "api"
	case errors.As(err, &configErr):
		return "config"
	default:
		return "unknown"
	}
}
