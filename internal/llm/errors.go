package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/podsearch/internal/models"
)

// ErrFatalAPI marks provider errors that will not succeed on retry:
// exhausted credit, quota or rate limits, and rejected credentials.
// Batch indexing stops at the first one instead of failing every file.
var ErrFatalAPI = errors.New("fatal API error")

var fatalPatterns = []string{
	"credit balance",
	"rate limit",
	"quota",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether err looks like an account-level failure.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// wrapFatalError tags fatal errors with ErrFatalAPI and returns others unchanged.
func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}

// providerError wraps a provider failure so callers can match models.ErrProvider
// and, when applicable, ErrFatalAPI.
func providerError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrProvider, wrapFatalError(err))
}
