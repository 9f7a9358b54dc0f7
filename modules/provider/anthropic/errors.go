package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/flemzord/robobrain/internal/provider"
)

// statusOverloaded is the API's "overloaded" status code.
const statusOverloaded = 529

// mapError converts an SDK error into the provider sentinels the chain
// understands. The caller's own cancellation is returned untouched so it
// does not count against provider health.
func mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *sdkanthropic.Error
	if !errors.As(err, &apiErr) {
		// Transport failure or client-side timeout.
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}

	switch code := apiErr.StatusCode; {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", provider.ErrRateLimit, err)
	case code == statusOverloaded || code >= 500:
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %w", provider.ErrAuthentication, code, err)
	case code == http.StatusBadRequest && isContextLengthError(apiErr.RawJSON()):
		return fmt.Errorf("%w: %w", provider.ErrContextLength, err)
	default:
		return fmt.Errorf("anthropic: HTTP %d: %w", code, err)
	}
}

type apiErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func isContextLengthError(raw string) bool {
	msg := raw
	var body apiErrorBody
	if err := json.Unmarshal([]byte(raw), &body); err == nil {
		if body.Error.Type != "invalid_request_error" {
			return false
		}
		msg = body.Error.Message
	}
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "context length") ||
		strings.Contains(msg, "too many tokens") ||
		strings.Contains(msg, "prompt is too long")
}
