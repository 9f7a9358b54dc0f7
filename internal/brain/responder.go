package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/flemzord/robobrain/internal/provider"
	"github.com/flemzord/robobrain/internal/reply"
)

// DegradedResponse is spoken when no usable model answer exists.
const DegradedResponse = "ขอโทษค่ะ ระบบขัดข้องชั่วคราว กรุณาลองใหม่อีกครั้ง"

// Prompt is one rendered request to the model.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Responder turns a prompt into a structured reply.
type Responder interface {
	Respond(ctx context.Context, p Prompt) (reply.Output, error)
}

// LLM is the part of *provider.Chain the primary responder uses.
type LLM interface {
	Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	Available() bool
}

// PrimaryResponder asks the language model and decodes its answer.
type PrimaryResponder struct {
	LLM LLM
}

// Available reports whether any provider can take a request now.
func (r *PrimaryResponder) Available() bool {
	return r.LLM != nil && r.LLM.Available()
}

// Respond implements Responder. Failures wrap ErrUpstreamUnavailable or
// ErrParse; caller cancellation is returned as is.
func (r *PrimaryResponder) Respond(ctx context.Context, p Prompt) (reply.Output, error) {
	if r.LLM == nil {
		return reply.Output{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, provider.ErrNoProvider)
	}
	resp, err := r.LLM.Complete(ctx, provider.Chat(p.System, p.User, p.Temperature, p.MaxTokens))
	if err != nil {
		return reply.Output{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return reply.Output{}, fmt.Errorf("%w: empty completion", ErrUpstreamUnavailable)
	}
	out, err := reply.Parse(resp.Content)
	if err != nil {
		return reply.Output{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return out, nil
}

// FallbackResponder always answers with a fixed apology.
type FallbackResponder struct {
	Text string
}

// Respond implements Responder.
func (r FallbackResponder) Respond(context.Context, Prompt) (reply.Output, error) {
	text := r.Text
	if text == "" {
		text = DegradedResponse
	}
	return reply.Output{Response: text, Intent: reply.IntentConversation}, nil
}

// prober is implemented by responders that know upfront they cannot serve.
type prober interface {
	Available() bool
}
