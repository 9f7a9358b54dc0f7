package provider

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// ErrorFromResponse maps a non-2xx HTTP response from a model server to the
// sentinel errors the chain understands. The body is read, not closed.
func ErrorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimit, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrProviderDown, resp.StatusCode, body)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", ErrAuthentication, resp.StatusCode, body)
	case resp.StatusCode == http.StatusBadRequest && isContextLengthError(body):
		return fmt.Errorf("%w: %s", ErrContextLength, body)
	case resp.StatusCode == http.StatusNotFound:
		// Model servers answer 404 for an unknown or unpulled model.
		return fmt.Errorf("%w: HTTP 404: %s", ErrProviderDown, body)
	default:
		return fmt.Errorf("provider: unexpected status %d: %s", resp.StatusCode, body)
	}
}

func isContextLengthError(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "context length") ||
		strings.Contains(lower, "maximum context") ||
		strings.Contains(lower, "token limit")
}
