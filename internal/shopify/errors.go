package shopify

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrThrottled          = errors.New("shopify_throttled")
	ErrTransient          = errors.New("shopify_transient")
	ErrUnauthorized       = errors.New("shopify_unauthorized")
	ErrNotFound           = errors.New("shopify_not_found")
	ErrMissingCredentials = errors.New("shopify_missing_credentials")
	ErrInvalidResponse    = errors.New("shopify_invalid_response")
)

const (
	codeThrottled     = "THROTTLED"
	codeInternalError = "INTERNAL_SERVER_ERROR"
)

// GraphQLError is one entry of the errors array of a GraphQL response.
type GraphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// QueryError carries non-retryable GraphQL errors.
type QueryError struct {
	Errors []GraphQLError
}

func (e *QueryError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, gqlErr := range e.Errors {
		msgs = append(msgs, gqlErr.Message)
	}
	return "shopify query failed: " + strings.Join(msgs, "; ")
}

// TerminalError is returned once every retry attempt has failed.
type TerminalError struct {
	Attempts int
	Last     error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("shopify query gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *TerminalError) Unwrap() error { return e.Last }

// IsRetryable reports whether err is a throttling or transient failure.
func IsRetryable(err error) bool {
	var terminal *TerminalError
	if errors.As(err, &terminal) {
		return false
	}
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrTransient)
}

// classifyGraphQLErrors returns ErrThrottled or ErrTransient when any entry
// carries a retryable marker, nil otherwise.
func classifyGraphQLErrors(errs []GraphQLError) error {
	var transient bool
	for _, gqlErr := range errs {
		code := strings.ToUpper(strings.TrimSpace(gqlErr.Extensions.Code))
		if code == codeThrottled {
			return ErrThrottled
		}
		msg := strings.ToLower(gqlErr.Message)
		if code == codeInternalError ||
			strings.Contains(msg, "temporarily unavailable") ||
			strings.Contains(msg, "internal error") ||
			strings.Contains(msg, "timeout") {
			transient = true
		}
	}
	if transient {
		return ErrTransient
	}
	return nil
}
