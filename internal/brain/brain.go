// Package brain runs one conversational turn of the robot: it gates low
// confidence transcriptions, recalls related memories, asks the language
// model for a structured answer and turns navigation intents into goals.
// Every accepted utterance gets a well-formed reply, degraded when the model
// is unreachable or unintelligible.
package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	ctxengine "github.com/flemzord/robobrain/internal/context"
	"github.com/flemzord/robobrain/internal/memory"
	"github.com/flemzord/robobrain/internal/navigation"
	"github.com/flemzord/robobrain/internal/reply"
	"github.com/flemzord/robobrain/internal/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the AppContext service key of the *Brain.
const ServiceName = "brain"

const (
	tracerName = "github.com/flemzord/robobrain/internal/brain"
	maxTopK    = 100
)

// Deps groups the collaborators of a Brain. Only Sessions is required.
type Deps struct {
	Sessions *session.Store

	// Memory is optional; without it turns run with no recalled memories
	// and the memory operations report ErrUpstreamUnavailable.
	Memory memory.Store

	// Primary is optional; without it every turn is degraded.
	Primary  Responder
	Fallback Responder

	Resolver *navigation.Resolver
	Observer Observer
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// Brain is the conversation orchestrator. It is safe for concurrent use;
// turns of the same session are serialized in arrival order.
type Brain struct {
	cfg      Config
	gate     Gate
	sessions *session.Store
	lanes    *session.Lanes
	memory   memory.Store
	primary  Responder
	fallback Responder
	resolver *navigation.Resolver
	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New creates a Brain. Missing optional dependencies get working defaults.
func New(cfg Config, deps Deps) *Brain {
	b := &Brain{
		cfg:      cfg,
		gate:     Gate{Threshold: cfg.ConfidenceThreshold},
		sessions: deps.Sessions,
		lanes:    session.NewLanes(),
		memory:   deps.Memory,
		primary:  deps.Primary,
		fallback: deps.Fallback,
		resolver: deps.Resolver,
		observer: deps.Observer,
		tracer:   deps.Tracer,
		logger:   deps.Logger,
	}
	if b.sessions == nil {
		b.sessions = session.NewStore(session.WithHistoryLimit(cfg.HistoryLimit))
	}
	if b.fallback == nil {
		b.fallback = FallbackResponder{}
	}
	if b.resolver == nil {
		b.resolver = &navigation.Resolver{
			RequireLocation: cfg.Navigation.RequireLocation,
			Priority:        cfg.Navigation.Priority,
			KnownLocations:  cfg.Navigation.KnownLocations,
			Logger:          deps.Logger,
		}
	}
	if b.observer == nil {
		b.observer = nopObserver{}
	}
	if b.tracer == nil {
		b.tracer = otel.Tracer(tracerName)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// SpeechInput is one transcribed utterance.
type SpeechInput struct {
	SessionID  string  `json:"session_id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// validateGated checks what the gate needs. Anything under the threshold,
// including a blank or negative reading, is answered with a clarification.
func (in SpeechInput) validateGated() error {
	switch {
	case strings.TrimSpace(in.SessionID) == "":
		return invalid("session_id", "must not be empty")
	case math.IsNaN(in.Confidence):
		return invalid("confidence", "must be a number")
	}
	return nil
}

// validateAccepted checks an utterance the gate let through.
func (in SpeechInput) validateAccepted() error {
	switch {
	case strings.TrimSpace(in.Text) == "":
		return invalid("text", "must not be empty")
	case in.Confidence > 1:
		return invalid("confidence", "must be within [0, 1]")
	}
	return nil
}

// SpeechResult is the reply handed back to the robot.
type SpeechResult struct {
	SessionID      string           `json:"session_id"`
	ResponseText   string           `json:"response_text"`
	Intent         reply.Intent     `json:"intent"`
	ShouldNavigate bool             `json:"should_navigate"`
	NavigationGoal *navigation.Goal `json:"navigation_goal"`

	// Degraded is set when the reply is the fallback apology.
	Degraded bool `json:"-"`
}

// ProcessSpeech answers one utterance.
//
// The user turn is recorded once the gate accepts it and the assistant turn
// once a reply is final. Model and memory failures produce a degraded reply,
// never an error. If ctx ends before the reply is final the user turn is
// rolled back and ctx.Err() is returned.
func (b *Brain) ProcessSpeech(ctx context.Context, in SpeechInput) (SpeechResult, error) {
	if err := in.validateGated(); err != nil {
		return SpeechResult{}, err
	}
	start := time.Now()

	ctx, span := b.tracer.Start(ctx, "brain.ProcessSpeech", trace.WithAttributes(
		attribute.String("session.id", in.SessionID),
		attribute.Float64("speech.confidence", in.Confidence),
	))
	defer span.End()

	if !b.gate.Accept(in.Confidence) {
		b.logger.Info("speech rejected by confidence gate",
			"session_id", in.SessionID,
			"confidence", in.Confidence,
			"threshold", b.gate.Threshold,
		)
		span.SetAttributes(attribute.String("brain.outcome", string(OutcomeRejected)))
		b.observer.ObserveTurn(OutcomeRejected, false, time.Since(start))
		return Clarification(in.SessionID), nil
	}
	if err := in.validateAccepted(); err != nil {
		return SpeechResult{}, err
	}

	if err := b.lanes.Acquire(ctx, in.SessionID); err != nil {
		b.finish(span, OutcomeCancelled, false, start, err)
		return SpeechResult{}, err
	}
	defer b.lanes.Release(in.SessionID)

	if err := ctx.Err(); err != nil {
		b.finish(span, OutcomeCancelled, false, start, err)
		return SpeechResult{}, err
	}

	prior, existed := b.sessions.Get(in.SessionID)
	userTurn := b.sessions.AppendTurn(in.SessionID, session.RoleUser, in.Text)

	res, err := b.answer(ctx, in)
	if err != nil {
		b.sessions.RevertTurn(in.SessionID, userTurn, prior.History, existed)
		outcome := OutcomeFailed
		if ctx.Err() != nil {
			outcome = OutcomeCancelled
			b.logger.Info("speech turn cancelled, rolled back", "session_id", in.SessionID)
		} else {
			b.logger.Error("speech turn failed", "session_id", in.SessionID, "error", err)
		}
		b.finish(span, outcome, false, start, err)
		return SpeechResult{}, err
	}

	b.sessions.AppendTurn(in.SessionID, session.RoleAssistant, res.ResponseText)

	outcome := OutcomeAnswered
	if res.Degraded {
		outcome = OutcomeDegraded
	}
	span.SetAttributes(
		attribute.String("brain.intent", string(res.Intent)),
		attribute.Bool("brain.navigate", res.ShouldNavigate),
	)
	b.finish(span, outcome, res.ShouldNavigate, start, nil)
	b.logger.Info("speech turn answered",
		"session_id", in.SessionID,
		"intent", res.Intent,
		"navigate", res.ShouldNavigate,
		"degraded", res.Degraded,
		"duration", time.Since(start),
	)
	return res, nil
}

func (b *Brain) finish(span trace.Span, outcome Outcome, navigate bool, start time.Time, err error) {
	span.SetAttributes(attribute.String("brain.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	b.observer.ObserveTurn(outcome, navigate, time.Since(start))
}

// answer runs retrieval, generation and resolution for an accepted turn.
// It fails only when ctx ends or the fallback itself breaks.
func (b *Brain) answer(ctx context.Context, in SpeechInput) (SpeechResult, error) {
	memories := b.retrieve(ctx, in.Text)
	if err := ctx.Err(); err != nil {
		return SpeechResult{}, err
	}

	sess, _ := b.sessions.Get(in.SessionID)
	fragment := ctxengine.Render(ctxengine.Build(sess, memories))
	prompt := Prompt{
		System:      ctxengine.SystemPrompt,
		User:        ctxengine.UserMessage(fragment, in.Text),
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
	}

	out, degraded, err := b.respond(ctx, in.SessionID, prompt)
	if err != nil {
		return SpeechResult{}, err
	}

	res := SpeechResult{
		SessionID:    in.SessionID,
		ResponseText: out.Response,
		Intent:       out.Intent,
		Degraded:     degraded,
	}
	if !degraded {
		res.ShouldNavigate, res.NavigationGoal = b.resolver.Resolve(out)
	}
	return res, nil
}

func (b *Brain) retrieve(ctx context.Context, query string) []memory.Record {
	if b.memory == nil {
		return nil
	}
	ctx, span := b.tracer.Start(ctx, "brain.retrieve")
	defer span.End()

	rctx, cancel := context.WithTimeout(ctx, b.cfg.RetrievalTimeout)
	defer cancel()

	start := time.Now()
	recs, err := b.memory.Search(rctx, query, memory.SearchOptions{TopK: b.cfg.RetrievalTopK})
	b.observer.ObserveRetrieval(len(recs), err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		if ctx.Err() == nil {
			b.logger.Warn("memory retrieval failed, continuing without memories", "error", err)
		}
		return nil
	}
	span.SetAttributes(attribute.Int("memory.hits", len(recs)))
	return recs
}

// respond asks the primary responder within the model timeout and falls
// back when it cannot produce a reply. degraded reports the fallback.
func (b *Brain) respond(ctx context.Context, sessionID string, p Prompt) (out reply.Output, degraded bool, err error) {
	if b.primaryAvailable() {
		out, err = b.generate(ctx, p)
		if err == nil {
			return out, false, nil
		}
		if ctx.Err() != nil {
			return reply.Output{}, false, ctx.Err()
		}
		reason := "upstream"
		if errors.Is(err, ErrParse) {
			reason = "parse"
		}
		b.logger.Warn("model reply unusable, answering with fallback",
			"session_id", sessionID,
			"reason", reason,
			"error", err,
		)
	} else {
		b.logger.Warn("no model available, answering with fallback", "session_id", sessionID)
	}

	out, err = b.fallback.Respond(ctx, p)
	if err != nil {
		return reply.Output{}, true, fmt.Errorf("%w: fallback responder: %w", ErrInternal, err)
	}
	return out, true, nil
}

func (b *Brain) primaryAvailable() bool {
	if b.primary == nil {
		return false
	}
	if p, ok := b.primary.(prober); ok {
		return p.Available()
	}
	return true
}

func (b *Brain) generate(ctx context.Context, p Prompt) (reply.Output, error) {
	ctx, span := b.tracer.Start(ctx, "brain.generate")
	defer span.End()

	gctx, cancel := context.WithTimeout(ctx, b.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	out, err := b.primary.Respond(gctx, p)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w: model timed out after %s", ErrUpstreamUnavailable, b.cfg.LLMTimeout)
	}
	b.observer.ObserveGeneration(err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}
