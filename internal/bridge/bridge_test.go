package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/flemzord/robobrain/internal/brain"
	"github.com/flemzord/robobrain/internal/core"
	"github.com/flemzord/robobrain/internal/reply"
	"github.com/flemzord/robobrain/internal/session"
	"gopkg.in/yaml.v3"
)

func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}

type testBridge struct {
	bridge *Bridge
	brain  *brain.Brain
	url    string
}

func newTestBridge(t *testing.T, cfg string) testBridge {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := &Bridge{}
	if err := b.Configure(mustYAMLNode(t, cfg)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := b.Provision(core.NewAppContext(logger, t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	// No primary responder: accepted turns get the degraded reply.
	brn := brain.New(brain.DefaultConfig(), brain.Deps{Logger: logger})
	b.brain = brn

	srv := httptest.NewServer(http.HandlerFunc(b.handleWebSocket))
	t.Cleanup(srv.Close)

	return testBridge{
		bridge: b,
		brain:  brn,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ MessageType, id string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	data, err := json.Marshal(Envelope{Type: typ, ID: id, Payload: raw, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		t.Fatalf("unmarshal %s payload: %v", env.Type, err)
	}
	return v
}

func pairRobot(t *testing.T, url, token string) (*websocket.Conn, PairResponse) {
	t.Helper()
	conn := dial(t, url)
	send(t, conn, MsgPairRequest, "pair-1", PairRequest{Token: token, RobotName: "nong-bot", Platform: "ros2"})
	env := recv(t, conn)
	if env.Type != MsgPairResponse {
		t.Fatalf("type = %q, want %q", env.Type, MsgPairResponse)
	}
	if env.ID != "pair-1" {
		t.Errorf("reply id = %q, want %q", env.ID, "pair-1")
	}
	return conn, decode[PairResponse](t, env)
}

func TestBridge_ModuleInfo(t *testing.T) {
	t.Parallel()

	info := (&Bridge{}).ModuleInfo()
	if info.ID != "bridge.websocket" {
		t.Errorf("ID = %q, want %q", info.ID, "bridge.websocket")
	}
	if _, ok := info.New().(*Bridge); !ok {
		t.Error("New() should return *Bridge")
	}
}

func TestBridge_Configure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		yaml      string
		heartbeat time.Duration
		maxRobots int
		tokens    int
	}{
		{name: "defaults", yaml: "{}", heartbeat: 30 * time.Second, maxRobots: 10},
		{
			name: "custom",
			yaml: `
pairing_tokens: ["a", "b"]
heartbeat_interval: 15s
max_robots: 2
`,
			heartbeat: 15 * time.Second,
			maxRobots: 2,
			tokens:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := &Bridge{}
			if err := b.Configure(mustYAMLNode(t, tt.yaml)); err != nil {
				t.Fatalf("Configure: %v", err)
			}
			if b.config.HeartbeatInterval != tt.heartbeat {
				t.Errorf("HeartbeatInterval = %v, want %v", b.config.HeartbeatInterval, tt.heartbeat)
			}
			if b.config.MaxRobots != tt.maxRobots {
				t.Errorf("MaxRobots = %d, want %d", b.config.MaxRobots, tt.maxRobots)
			}
			if len(b.config.PairingTokens) != tt.tokens {
				t.Errorf("PairingTokens = %v, want %d tokens", b.config.PairingTokens, tt.tokens)
			}
		})
	}
}

func TestBridge_ValidateRequiresToken(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := &Bridge{}
	if err := b.Configure(mustYAMLNode(t, `pairing_tokens: [""]`)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := b.Provision(core.NewAppContext(logger, t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := b.Validate(); err == nil {
		t.Fatal("expected error for empty token list")
	}
}

func TestBridge_StartWithoutBrainFails(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := &Bridge{}
	if err := b.Provision(core.NewAppContext(logger, t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := b.Start(); err == nil {
		t.Fatal("expected Start to fail without a brain service")
	}
}

func TestBridge_StartResolvesBrain(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := core.NewAppContext(logger, t.TempDir())
	appCtx.RegisterService(brain.ServiceName, brain.New(brain.DefaultConfig(), brain.Deps{Logger: logger}))

	b := &Bridge{}
	if err := b.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if _, ok := core.ServiceAs[*RobotStore](appCtx, RobotsService); !ok {
		t.Error("robot store service not registered")
	}
}

func TestBridge_PairRejectsInvalidToken(t *testing.T) {
	t.Parallel()

	tb := newTestBridge(t, `pairing_tokens: ["secret"]`)
	_, resp := pairRobot(t, tb.url, "wrong")

	if resp.Accepted {
		t.Fatal("pairing with a wrong token was accepted")
	}
	if resp.Reason == "" {
		t.Error("expected a rejection reason")
	}
	if n := tb.bridge.Robots().Len(); n != 0 {
		t.Errorf("robots = %d, want 0", n)
	}
}

func TestBridge_PairRespectsMaxRobots(t *testing.T) {
	t.Parallel()

	tb := newTestBridge(t, `
pairing_tokens: ["secret"]
max_robots: 1
`)
	_, first := pairRobot(t, tb.url, "secret")
	if !first.Accepted {
		t.Fatalf("first pairing rejected: %s", first.Reason)
	}
	_, second := pairRobot(t, tb.url, "secret")
	if second.Accepted {
		t.Fatal("second pairing accepted beyond max_robots")
	}
}

func TestBridge_Conversation(t *testing.T) {
	t.Parallel()

	tb := newTestBridge(t, `pairing_tokens: ["secret"]`)
	conn, resp := pairRobot(t, tb.url, "secret")
	if !resp.Accepted {
		t.Fatalf("pairing rejected: %s", resp.Reason)
	}
	if !strings.HasPrefix(resp.RobotID, "robot-") {
		t.Errorf("RobotID = %q, want robot- prefix", resp.RobotID)
	}
	if _, ok := tb.bridge.Robots().Get(resp.RobotID); !ok {
		t.Fatal("paired robot not in store")
	}

	t.Run("context update", func(t *testing.T) {
		send(t, conn, MsgContextUpdate, "ctx-1", brain.ContextUpdate{
			SessionID: "s1", StudentID: "6501", StudentName: "Somchai", Location: "library",
		})
		env := recv(t, conn)
		if env.Type != MsgContextAck || env.ID != "ctx-1" {
			t.Fatalf("got %s/%s, want %s/ctx-1", env.Type, env.ID, MsgContextAck)
		}
		if ack := decode[ContextAck](t, env); ack.SessionID != "s1" || ack.Status != "success" {
			t.Errorf("ack = %+v", ack)
		}
		sess, err := tb.brain.Session("s1")
		if err != nil {
			t.Fatalf("Session: %v", err)
		}
		if sess.CurrentLocation == nil || *sess.CurrentLocation != "library" {
			t.Errorf("CurrentLocation = %v, want library", sess.CurrentLocation)
		}
	})

	t.Run("low confidence speech", func(t *testing.T) {
		send(t, conn, MsgSpeechInput, "sp-1", brain.SpeechInput{SessionID: "s1", Text: "อืม", Confidence: 0.2})
		env := recv(t, conn)
		if env.Type != MsgSpeechResult || env.ID != "sp-1" {
			t.Fatalf("got %s/%s, want %s/sp-1", env.Type, env.ID, MsgSpeechResult)
		}
		res := decode[brain.SpeechResult](t, env)
		if res.Intent != reply.IntentClarification {
			t.Errorf("Intent = %q, want clarification", res.Intent)
		}
		if res.ResponseText != brain.ClarificationResponse {
			t.Errorf("ResponseText = %q", res.ResponseText)
		}
	})

	t.Run("degraded speech", func(t *testing.T) {
		send(t, conn, MsgSpeechInput, "sp-2", brain.SpeechInput{SessionID: "s1", Text: "สวัสดีครับ", Confidence: 0.95})
		env := recv(t, conn)
		if env.Type != MsgSpeechResult {
			t.Fatalf("type = %q, want %q", env.Type, MsgSpeechResult)
		}
		res := decode[brain.SpeechResult](t, env)
		if res.ResponseText != brain.DegradedResponse {
			t.Errorf("ResponseText = %q, want degraded reply", res.ResponseText)
		}
		if res.ShouldNavigate || res.NavigationGoal != nil {
			t.Error("degraded reply must not navigate")
		}
	})

	t.Run("invalid speech", func(t *testing.T) {
		send(t, conn, MsgSpeechInput, "sp-3", brain.SpeechInput{SessionID: "s1", Text: "  ", Confidence: 0.9})
		env := recv(t, conn)
		if env.Type != MsgError || env.ID != "sp-3" {
			t.Fatalf("got %s/%s, want %s/sp-3", env.Type, env.ID, MsgError)
		}
		if msg := decode[ErrorPayload](t, env).Message; !strings.Contains(msg, "text") {
			t.Errorf("Message = %q, want mention of text", msg)
		}
	})

	t.Run("heartbeat", func(t *testing.T) {
		battery := 42
		send(t, conn, MsgHeartbeat, "hb-1", HeartbeatPayload{BatteryPct: &battery})
		env := recv(t, conn)
		if env.Type != MsgHeartbeatAck || env.ID != "hb-1" {
			t.Fatalf("got %s/%s, want %s/hb-1", env.Type, env.ID, MsgHeartbeatAck)
		}
		r, _ := tb.bridge.Robots().Get(resp.RobotID)
		if info := r.Info(); info.BatteryPct == nil || *info.BatteryPct != 42 {
			t.Errorf("BatteryPct = %v, want 42", info.BatteryPct)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		send(t, conn, MessageType("dance"), "x-1", struct{}{})
		if env := recv(t, conn); env.Type != MsgError {
			t.Fatalf("type = %q, want %q", env.Type, MsgError)
		}
	})

	sess, err := tb.brain.Session("s1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(sess.History) != 2 {
		t.Errorf("history = %d turns, want 2", len(sess.History))
	}
}

func TestBridge_SpeechKeepsArrivalOrder(t *testing.T) {
	t.Parallel()

	tb := newTestBridge(t, `pairing_tokens: ["secret"]`)
	conn, resp := pairRobot(t, tb.url, "secret")
	if !resp.Accepted {
		t.Fatalf("pairing rejected: %s", resp.Reason)
	}

	const n = 4
	var want []string
	for i := range n {
		text := fmt.Sprintf("u%02d", i)
		want = append(want, text)
		send(t, conn, MsgSpeechInput, "sp-"+text, brain.SpeechInput{SessionID: "s1", Text: text, Confidence: 0.95})
	}
	for i := range n {
		env := recv(t, conn)
		if wantID := "sp-" + want[i]; env.Type != MsgSpeechResult || env.ID != wantID {
			t.Fatalf("reply %d = %s/%s, want %s/%s", i, env.Type, env.ID, MsgSpeechResult, wantID)
		}
	}

	sess, err := tb.brain.Session("s1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	var got []string
	for _, turn := range sess.History {
		if turn.Role == session.RoleUser {
			got = append(got, turn.Content)
		}
	}
	if !slices.Equal(got, want) {
		t.Errorf("user turns = %v, want %v", got, want)
	}
}

func TestTurnQueue(t *testing.T) {
	t.Parallel()

	q := newTurnQueue()
	turn := func(session, id string) queuedTurn {
		return queuedTurn{id: id, in: brain.SpeechInput{SessionID: session}}
	}
	if !q.push(turn("a", "1")) {
		t.Fatal("first push must start a worker")
	}
	if q.push(turn("a", "2")) {
		t.Error("second push started a second worker for the same session")
	}
	if !q.push(turn("b", "1")) {
		t.Error("other session must get its own worker")
	}

	for _, want := range []string{"1", "2"} {
		got, ok := q.next("a")
		if !ok || got.id != want {
			t.Fatalf("next = %q, %v; want %q", got.id, ok, want)
		}
	}
	if _, ok := q.next("a"); ok {
		t.Fatal("drained session returned a turn")
	}
	if !q.push(turn("a", "3")) {
		t.Error("push after drain must start a new worker")
	}
}

func TestBridge_DisconnectRemovesRobot(t *testing.T) {
	t.Parallel()

	tb := newTestBridge(t, `pairing_tokens: ["secret"]`)
	conn, resp := pairRobot(t, tb.url, "secret")
	if !resp.Accepted {
		t.Fatalf("pairing rejected: %s", resp.Reason)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(5 * time.Second)
	for tb.bridge.Robots().Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("robot still registered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBridge_CheckHeartbeats(t *testing.T) {
	t.Parallel()

	b := &Bridge{
		config: Config{HeartbeatInterval: time.Second},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		store:  NewRobotStore(),
	}
	now := time.Now()
	fresh := &Robot{ID: "robot-fresh", State: StatePaired, LastSeenAt: now}
	stale := &Robot{ID: "robot-stale", State: StatePaired, LastSeenAt: now.Add(-10 * time.Second)}
	b.store.AddIfUnder(fresh, 10)
	b.store.AddIfUnder(stale, 10)

	if closed := b.checkHeartbeats(now); closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}
	if fresh.Info().State != StatePaired {
		t.Errorf("fresh robot state = %q, want paired", fresh.Info().State)
	}
	if stale.Info().State != StateDisconnected {
		t.Errorf("stale robot state = %q, want disconnected", stale.Info().State)
	}
}

func TestRobotStore_AddIfUnder(t *testing.T) {
	t.Parallel()

	s := NewRobotStore()
	if !s.AddIfUnder(&Robot{ID: "robot-1"}, 2) {
		t.Fatal("first add rejected")
	}
	if !s.AddIfUnder(&Robot{ID: "robot-2"}, 2) {
		t.Fatal("second add rejected")
	}
	if s.AddIfUnder(&Robot{ID: "robot-3"}, 2) {
		t.Fatal("third add accepted beyond limit")
	}
	if got := len(s.List()); got != 2 {
		t.Errorf("List() = %d robots, want 2", got)
	}

	s.Remove("robot-1")
	if _, ok := s.Get("robot-1"); ok {
		t.Error("robot-1 still present after Remove")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}
