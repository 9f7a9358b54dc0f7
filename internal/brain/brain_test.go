package brain_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/robobrain/internal/brain"
	"github.com/flemzord/robobrain/internal/memory"
	"github.com/flemzord/robobrain/internal/memory/memorytest"
	"github.com/flemzord/robobrain/internal/navigation"
	"github.com/flemzord/robobrain/internal/provider"
	"github.com/flemzord/robobrain/internal/provider/providertest"
	"github.com/flemzord/robobrain/internal/reply"
	"github.com/flemzord/robobrain/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	brain    *brain.Brain
	sessions *session.Store
	llm      *providertest.MockProvider
	mem      *memorytest.MockStore
}

func newFixture(t *testing.T, llm *providertest.MockProvider, mutate func(*brain.Config)) fixture {
	t.Helper()
	cfg := brain.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "mock", Provider: llm, Role: provider.RolePrimary},
	})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	f := fixture{
		sessions: session.NewStore(),
		llm:      llm,
		mem:      &memorytest.MockStore{},
	}
	f.brain = brain.New(cfg, brain.Deps{
		Sessions: f.sessions,
		Memory:   f.mem,
		Primary:  &brain.PrimaryResponder{LLM: chain},
		Logger:   discardLogger(),
	})
	return f
}

func speech(id, text string, confidence float64) brain.SpeechInput {
	return brain.SpeechInput{SessionID: id, Text: text, Confidence: confidence}
}

func TestProcessSpeech_LowConfidenceAsksToRepeat(t *testing.T) {
	t.Parallel()
	f := newFixture(t, providertest.Reply(`{"response":"x"}`), nil)

	res, err := f.brain.ProcessSpeech(context.Background(), speech("s1", "อะไรนะ", 0.69))
	if err != nil {
		t.Fatalf("ProcessSpeech: %v", err)
	}
	if res.Intent != reply.IntentClarification || res.ShouldNavigate || res.NavigationGoal != nil {
		t.Errorf("result = %+v", res)
	}
	if res.ResponseText != brain.ClarificationResponse {
		t.Errorf("ResponseText = %q", res.ResponseText)
	}
	if f.llm.CompleteCalls() != 0 || len(f.mem.Searches()) != 0 {
		t.Errorf("collaborators called: llm=%d search=%d", f.llm.CompleteCalls(), len(f.mem.Searches()))
	}
	if _, ok := f.sessions.Get("s1"); ok {
		t.Error("rejected utterance created a session")
	}
}

func TestProcessSpeech_ThresholdIsInclusive(t *testing.T) {
	t.Parallel()
	f := newFixture(t, providertest.Reply(`{"response":"ok"}`), nil)

	res, err := f.brain.ProcessSpeech(context.Background(), speech("s1", "hi", 0.7))
	if err != nil {
		t.Fatalf("ProcessSpeech: %v", err)
	}
	if res.Intent != reply.IntentConversation {
		t.Errorf("Intent = %q, want conversation at the threshold", res.Intent)
	}
}

func TestProcessSpeech_Greeting(t *testing.T) {
	t.Parallel()
	f := newFixture(t, providertest.Reply(`{"response":"สวัสดีครับ","intent":"conversation"}`), nil)

	res, err := f.brain.ProcessSpeech(context.Background(), speech("s1", "สวัสดีครับ", 0.95))
	if err != nil {
		t.Fatalf("ProcessSpeech: %v", err)
	}

	got, _ := json.Marshal(res)
	want := `{"session_id":"s1","response_text":"สวัสดีครับ","intent":"conversation","should_navigate":false,"navigation_goal":null}`
	if string(got) != want {
		t.Errorf("result = %s\nwant     %s", got, want)
	}

	sess, ok := f.sessions.Get("s1")
	if !ok {
		t.Fatal("session not created")
	}
	if len(sess.History) != 2 ||
		sess.History[0].Role != session.RoleUser || sess.History[0].Content != "สวัสดีครับ" ||
		sess.History[1].Role != session.RoleAssistant || sess.History[1].Content != "สวัสดีครับ" {
		t.Errorf("History = %+v", sess.History)
	}
}

func TestProcessSpeech_Navigation(t *testing.T) {
	t.Parallel()
	llm := providertest.Reply("```json\n{\"response\":\"ไปห้องสมุดกันค่ะ\",\"intent\":\"navigation\",\"location\":\"library\"}\n```")
	f := newFixture(t, llm, nil)
	f.mem.SearchFunc = func(context.Context, string, memory.SearchOptions) ([]memory.Record, error) {
		return []memory.Record{{Text: "ห้องสมุดอยู่ชั้น 2", Score: 0.9}}, nil
	}
	f.brain.UpdateContext(brain.ContextUpdate{SessionID: "s1", StudentID: "6401", StudentName: "สมชาย", Location: "lobby"})

	res, err := f.brain.ProcessSpeech(context.Background(), speech("s1", "ห้องสมุดอยู่ไหน", 0.9))
	if err != nil {
		t.Fatalf("ProcessSpeech: %v", err)
	}
	if !res.ShouldNavigate || res.NavigationGoal == nil ||
		*res.NavigationGoal != (navigation.Goal{TargetLocation: "library", Priority: "normal"}) {
		t.Errorf("result = %+v", res)
	}

	searches := f.mem.Searches()
	if len(searches) != 1 || searches[0].Query != "ห้องสมุดอยู่ไหน" || searches[0].Opts.TopK != 5 {
		t.Errorf("searches = %+v", searches)
	}

	reqs := llm.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Temperature == nil || *req.Temperature != 0.5 || req.MaxTokens != 512 {
		t.Errorf("sampling = %v / %d", req.Temperature, req.MaxTokens)
	}
	user := req.Messages[len(req.Messages)-1].Content
	for _, want := range []string{"สมชาย", "lobby", "1. ห้องสมุดอยู่ชั้น 2", "นักศึกษา: ห้องสมุดอยู่ไหน\n\nน้องบอท:"} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q:\n%s", want, user)
		}
	}
}

func TestProcessSpeech_NavigationWithoutLocation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, providertest.Reply(`{"response":"ไปไหนคะ","intent":"navigation","location":""}`), nil)

	res, err := f.brain.ProcessSpeech(context.Background(), speech("s1", "พาไปหน่อย", 0.9))
	if err != nil {
		t.Fatalf("ProcessSpeech: %v", err)
	}
	if res.ShouldNavigate || res.NavigationGoal != nil || res.Intent != reply.IntentNavigation {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessSpeech_Degraded(t *testing.T) {
	t.Parallel()

	hang := &providertest.MockProvider{
		CompleteFunc: func(ctx context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			<-ctx.Done()
			return provider.CompletionResponse{}, ctx.Err()
		},
	}

	tests := []struct {
		name string
		llm  *providertest.MockProvider
	}{
		{"timeout", hang},
		{"unparseable", providertest.Reply("I am not JSON")},
		{"empty", providertest.Reply("   ")},
		{"provider down", providertest.Fail(provider.ErrProviderDown)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.llm, func(c *brain.Config) { c.LLMTimeout = 20 * time.Millisecond })

			res, err := f.brain.ProcessSpeech(context.Background(), speech("s1", "สวัสดี", 0.9))
			if err != nil {
				t.Fatalf("ProcessSpeech: %v", err)
			}
			if !res.Degraded || res.ShouldNavigate || res.ResponseText != brain.DegradedResponse || res.Intent != reply.IntentConversation {
				t.Errorf("result = %+v", res)
			}
			sess, _ := f.sessions.Get("s1")
			if len(sess.History) != 2 || sess.History[0].Content != "สวัสดี" || sess.History[1].Content != brain.DegradedResponse {
				t.Errorf("History = %+v", sess.History)
			}
		})
	}
}

func TestProcessSpeech_RetrievalFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, providertest.Reply(`{"response":"ok","intent":"conversation"}`), func(c *brain.Config) {
		c.RetrievalTimeout = 10 * time.Millisecond
	})
	f.mem.SearchFunc = func(ctx context.Context, _ string, _ memory.SearchOptions) ([]memory.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	res, err := f.brain.ProcessSpeech(context.Background(), speech("s1", "hello", 0.9))
	if err != nil {
		t.Fatalf("ProcessSpeech: %v", err)
	}
	if res.Degraded || res.ResponseText != "ok" {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessSpeech_CancellationRollsBack(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	llm := &providertest.MockProvider{
		CompleteFunc: func(ctx context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			cancel()
			<-ctx.Done()
			return provider.CompletionResponse{}, ctx.Err()
		},
	}
	f := newFixture(t, llm, nil)
	f.sessions.AppendTurn("s1", session.RoleUser, "earlier")
	f.sessions.AppendTurn("s1", session.RoleAssistant, "reply")
	before, _ := f.sessions.Get("s1")

	_, err := f.brain.ProcessSpeech(ctx, speech("s1", "cancel me", 0.9))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	after, _ := f.sessions.Get("s1")
	if len(after.History) != len(before.History) {
		t.Fatalf("History = %+v, want %+v", after.History, before.History)
	}
	for i := range before.History {
		if after.History[i] != before.History[i] {
			t.Errorf("History[%d] = %+v, want %+v", i, after.History[i], before.History[i])
		}
	}

}

func TestProcessSpeech_CancellationRemovesNewSession(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	llm := &providertest.MockProvider{
		CompleteFunc: func(ctx context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			cancel()
			return provider.CompletionResponse{}, ctx.Err()
		},
	}
	f := newFixture(t, llm, nil)

	if _, err := f.brain.ProcessSpeech(ctx, speech("fresh", "hi", 0.9)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := f.sessions.Get("fresh"); ok {
		t.Error("session created by a cancelled turn survived")
	}
}

func TestProcessSpeech_CancelledWhileWaitingForLane(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	llm := &providertest.MockProvider{
		CompleteFunc: func(ctx context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			close(entered)
			<-unblock
			return provider.CompletionResponse{Content: `{"response":"ok"}`}, nil
		},
	}
	f := newFixture(t, llm, nil)

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.brain.ProcessSpeech(context.Background(), speech("s1", "first", 0.9))
		firstDone <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := f.brain.ProcessSpeech(ctx, speech("s1", "second", 0.9))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Errorf("waiting turn returned after %v, want prompt cancellation", waited)
	}

	close(unblock)
	if err := <-firstDone; err != nil {
		t.Fatalf("first turn: %v", err)
	}
	sess, _ := f.sessions.Get("s1")
	if len(sess.History) != 2 || sess.History[0].Content != "first" {
		t.Errorf("History = %+v, want only the first turn", sess.History)
	}
}

type stubResponder struct {
	available bool
	calls     int
}

func (s *stubResponder) Available() bool { return s.available }

func (s *stubResponder) Respond(context.Context, brain.Prompt) (reply.Output, error) {
	s.calls++
	return reply.Output{Response: "primary", Intent: reply.IntentConversation}, nil
}

func TestProcessSpeech_SkipsUnavailablePrimary(t *testing.T) {
	t.Parallel()
	primary := &stubResponder{available: false}
	b := brain.New(brain.DefaultConfig(), brain.Deps{
		Sessions: session.NewStore(),
		Primary:  primary,
		Fallback: brain.FallbackResponder{Text: "offline"},
		Logger:   discardLogger(),
	})

	res, err := b.ProcessSpeech(context.Background(), speech("s1", "hello", 0.9))
	if err != nil {
		t.Fatalf("ProcessSpeech: %v", err)
	}
	if primary.calls != 0 {
		t.Errorf("primary called %d times while unavailable", primary.calls)
	}
	if res.ResponseText != "offline" || !res.Degraded {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessSpeech_TurnsStayPaired(t *testing.T) {
	t.Parallel()

	echo := &providertest.MockProvider{
		CompleteFunc: func(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
			msg := req.Messages[len(req.Messages)-1].Content
			utterance := msg[strings.LastIndex(msg, "นักศึกษา: ")+len("นักศึกษา: "):]
			utterance = strings.TrimSuffix(utterance, "\n\nน้องบอท:")
			time.Sleep(time.Millisecond)
			out, _ := json.Marshal(map[string]string{"response": "re:" + utterance})
			return provider.CompletionResponse{Content: string(out)}, nil
		},
	}
	f := newFixture(t, echo, nil)

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.brain.ProcessSpeech(context.Background(), speech("s1", fmt.Sprintf("u%d", i), 0.9)); err != nil {
				t.Errorf("ProcessSpeech: %v", err)
			}
		}()
	}
	wg.Wait()

	sess, _ := f.sessions.Get("s1")
	if len(sess.History) != 10 {
		t.Fatalf("len(History) = %d, want 10", len(sess.History))
	}
	for i := 0; i < len(sess.History); i += 2 {
		u, a := sess.History[i], sess.History[i+1]
		if u.Role != session.RoleUser || a.Role != session.RoleAssistant || a.Content != "re:"+u.Content {
			t.Errorf("turns %d/%d = %+v / %+v", i, i+1, u, a)
		}
	}
}

func TestProcessSpeech_GateBeforeTextChecks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, providertest.Reply(`{}`), nil)

	tests := []struct {
		name string
		in   brain.SpeechInput
	}{
		{"empty text", speech("s1", "", 0.2)},
		{"blank text", speech("s1", "   ", 0.5)},
		{"negative confidence", speech("s1", "hi", -0.1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.brain.ProcessSpeech(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("ProcessSpeech: %v", err)
			}
			if res.Intent != reply.IntentClarification || res.ResponseText != brain.ClarificationResponse {
				t.Errorf("result = %+v, want the clarification reply", res)
			}
		})
	}
	if f.sessions.Len() != 0 {
		t.Errorf("rejected utterances created %d sessions", f.sessions.Len())
	}
}

func TestProcessSpeech_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, providertest.Reply(`{}`), nil)

	tests := []struct {
		name  string
		in    brain.SpeechInput
		field string
	}{
		{"no session", speech("", "hi", 0.9), "session_id"},
		{"blank text", speech("s1", "  ", 0.9), "text"},
		{"confidence above 1", speech("s1", "hi", 1.5), "confidence"},
		{"confidence not a number", speech("s1", "hi", math.NaN()), "confidence"},
		{"no session below threshold", speech("", "", 0.2), "session_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.brain.ProcessSpeech(context.Background(), tt.in)
			if !errors.Is(err, brain.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			var ve *brain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err %T is not a *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
	if f.sessions.Len() != 0 {
		t.Errorf("invalid requests created %d sessions", f.sessions.Len())
	}
}
