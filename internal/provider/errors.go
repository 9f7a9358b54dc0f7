package provider

import "errors"

// Failure classes a Provider reports by wrapping one of these. The chain
// fails over on the retryable ones and gives up on the rest.
var (
	ErrRateLimit      = errors.New("provider: rate limited")
	ErrContextLength  = errors.New("provider: prompt exceeds the model context")
	ErrProviderDown   = errors.New("provider: unavailable")
	ErrAuthentication = errors.New("provider: credentials rejected")

	// ErrAllProviders is returned by the chain once every entry failed or
	// was skipped as unhealthy.
	ErrAllProviders = errors.New("provider: every provider failed")
	ErrNoProvider   = errors.New("provider: none configured")
)

// IsRetryable reports whether the next provider in the chain should be
// tried after err.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimit), errors.Is(err, ErrProviderDown):
		return true
	default:
		return false
	}
}
