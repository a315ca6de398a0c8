package embedding

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfigurationInvalid means the credential or settings are missing or malformed.
	ErrConfigurationInvalid = errors.New("embedding configuration invalid")
	// ErrProviderUnavailable is a transient network or service failure, or a malformed response.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrProviderRejected means the provider refused the input; retrying it unchanged won't help.
	ErrProviderRejected = errors.New("embedding provider rejected input")
	// ErrQuotaExceeded means the provider is rate limiting or the account is out of quota.
	ErrQuotaExceeded = errors.New("embedding quota exceeded")
)

// ErrInvalidInput is returned when input is refused before any provider call. It is the same
// error as ErrProviderRejected, so callers can match either.
var ErrInvalidInput = ErrProviderRejected

// ProviderError is a failed provider call with its HTTP status and message.
type ProviderError struct {
	Kind       error
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: status %d: %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}

// classifyStatus maps an HTTP status code from the provider to an error kind.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrConfigurationInvalid
	case code == http.StatusTooManyRequests:
		return ErrQuotaExceeded
	case code == http.StatusBadRequest || code == http.StatusRequestEntityTooLarge ||
		code == http.StatusUnprocessableEntity:
		return ErrProviderRejected
	default:
		return ErrProviderUnavailable
	}
}

func newProviderError(code int, msg string) *ProviderError {
	return &ProviderError{Kind: classifyStatus(code), StatusCode: code, Message: msg}
}

// IsRetryable reports whether err is worth retrying unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
