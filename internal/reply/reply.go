// Package reply decodes the language model's structured answer.
package reply

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Intent classifies what the student wants.
type Intent string

// Known intents. Clarification is produced by the confidence gate, never
// accepted from the model.
const (
	IntentNavigation    Intent = "navigation"
	IntentConversation  Intent = "conversation"
	IntentClarification Intent = "clarification"
)

// FallbackResponse replaces a reply that decoded but carried no text.
const FallbackResponse = "ขอโทษค่ะ ฉันไม่เข้าใจ"

// Output is a decoded model reply. Location is empty when absent.
type Output struct {
	Response string `json:"response"`
	Intent   Intent `json:"intent"`
	Location string `json:"location,omitempty"`
}

// ErrMalformed is wrapped by every ParseError.
var ErrMalformed = errors.New("reply: malformed model output")

// ParseError reports model output that could not be decoded. Raw holds the
// complete text for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformed, e.Err)
}

// Unwrap lets errors.Is match both ErrMalformed and the cause.
func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformed, e.Err}
}

// wire is the accepted schema. Fields stay raw so their types can be
// checked individually; unknown fields are ignored.
type wire struct {
	Response json.RawMessage `json:"response"`
	Intent   json.RawMessage `json:"intent"`
	Location json.RawMessage `json:"location"`
}

// Parse extracts and decodes the JSON object in raw.
func Parse(raw string) (Output, error) {
	payload := Extract(raw)

	if !strings.HasPrefix(payload, "{") {
		return Output{}, &ParseError{Raw: raw, Err: errors.New("no JSON object found")}
	}
	var w wire
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return Output{}, &ParseError{Raw: raw, Err: err}
	}

	response, err := optionalString("response", w.Response)
	if err != nil {
		return Output{}, &ParseError{Raw: raw, Err: err}
	}
	intent, err := optionalString("intent", w.Intent)
	if err != nil {
		return Output{}, &ParseError{Raw: raw, Err: err}
	}
	location, err := optionalString("location", w.Location)
	if err != nil {
		return Output{}, &ParseError{Raw: raw, Err: err}
	}

	out := Output{
		Response: strings.TrimSpace(response),
		Intent:   normalizeIntent(intent),
		Location: strings.TrimSpace(location),
	}
	if out.Response == "" {
		out.Response = FallbackResponse
	}
	return out, nil
}

// Extract returns the candidate JSON text: the body of a ```json fence if
// present, else the body of the first fence of any kind, else raw itself.
// An unterminated fence runs to the end of the text.
func Extract(raw string) string {
	if _, after, ok := strings.Cut(raw, "```json"); ok {
		return fenceBody(after)
	}
	if _, after, ok := strings.Cut(raw, "```"); ok {
		return fenceBody(after)
	}
	return strings.TrimSpace(raw)
}

func fenceBody(s string) string {
	body, _, _ := strings.Cut(s, "```")
	return strings.TrimSpace(body)
}

// optionalString decodes a string field. Absent and null are empty; any
// other JSON type is an error.
func optionalString(field string, raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("field %q must be a string", field)
	}
	return s, nil
}

func normalizeIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentNavigation:
		return IntentNavigation
	default:
		return IntentConversation
	}
}
