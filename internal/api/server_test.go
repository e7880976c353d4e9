package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-home/internal/auth"
	"github.com/nerrad567/gray-logic-home/internal/automation"
	"github.com/nerrad567/gray-logic-home/internal/bridges/launcher"
	"github.com/nerrad567/gray-logic-home/internal/capability"
	"github.com/nerrad567/gray-logic-home/internal/home"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type call struct {
	name, arg, modifier, source string
}

type fakeHome struct {
	mu      sync.Mutex
	calls   []call
	state   automation.SystemState
	dnd     bool
	results map[string]*automation.ExecutionResult
	errs    map[string]error
	stopped bool
	onEvent func(home.Event)
}

func newFakeHome() *fakeHome {
	return &fakeHome{
		state:   automation.StateHome,
		results: make(map[string]*automation.ExecutionResult),
		errs:    make(map[string]error),
	}
}

func (f *fakeHome) record(c call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeHome) lastCall() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeHome) run(name string) (*automation.ExecutionResult, error) {
	if f.stopped {
		return nil, home.ErrStopped
	}
	result, ok := f.results[strings.ToUpper(name)]
	if !ok {
		result = &automation.ExecutionResult{Command: strings.ToUpper(name), Status: automation.StatusOK}
	}
	return result, f.errs[strings.ToUpper(name)]
}

func (f *fakeHome) ExecuteCommandByName(_ context.Context, name, modifier, source string) (*automation.ExecutionResult, error) {
	f.record(call{"command", name, modifier, source})
	return f.run(name)
}

func (f *fakeHome) HandleKeyEntry(_ context.Context, key, modifier, source string) (*automation.ExecutionResult, error) {
	f.record(call{"key", key, modifier, source})
	if key != "1" {
		err := &automation.LookupError{Name: key, Err: home.ErrKeyNotBound}
		return &automation.ExecutionResult{Command: key, Status: automation.StatusError, Error: err.Error()}, err
	}
	return f.run("GOODNIGHT")
}

func (f *fakeHome) SetState(_ context.Context, s automation.SystemState) error {
	f.record(call{name: "state", arg: string(s)})
	if f.stopped {
		return home.ErrStopped
	}
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	return nil
}

func (f *fakeHome) SetDoNotDisturb(_ context.Context, on bool) error {
	f.mu.Lock()
	f.dnd = on
	f.mu.Unlock()
	return nil
}

func (f *fakeHome) RingDoorbell(_ context.Context, source string) error {
	f.record(call{name: "doorbell", source: source})
	return nil
}

func (f *fakeHome) Snapshot(context.Context) (home.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return home.Snapshot{}, home.ErrStopped
	}
	return home.Snapshot{SystemState: f.state, DoNotDisturb: f.dnd, Doors: map[string]string{}}, nil
}

func (f *fakeHome) SetOnEvent(fn func(home.Event)) {
	f.mu.Lock()
	f.onEvent = fn
	f.mu.Unlock()
}

type fakeCapabilities []capability.Status

func (f fakeCapabilities) Statuses() []capability.Status { return f }

type fakeProcesses []launcher.Stats

func (f fakeProcesses) Stats() []launcher.Stats { return f }

// ─── Helper ─────────────────────────────────────────────────────────────────

func testServer(t *testing.T, secret string) (*Server, *fakeHome) {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	h := newFakeHome()

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: secret, AccessTokenTTL: 15},
		},
		Logger: log,
		Home:   h,
		Capabilities: fakeCapabilities{
			{Kind: capability.Lighting, Available: true, Constructed: true},
			{Kind: capability.Audio, Demoted: true, LastError: "player_missing"},
		},
		Processes: fakeProcesses{{Name: "hue", Status: launcher.StatusRunning, PID: 4242}},
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)
	t.Cleanup(cancel)

	return srv, h
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken("tester-"+string(role), role, testSecret, 5)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return tok
}

func do(t *testing.T, srv *Server, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without orchestrator should fail")
	}
}

func TestHealth_NoAuth(t *testing.T) {
	srv, _ := testServer(t, testSecret)

	rec := do(t, srv, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["version"] != "test" {
		t.Errorf("version = %v", body["version"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestAuth_Permissions(t *testing.T) {
	srv, _ := testServer(t, testSecret)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		bearer string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/state", "", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/v1/state", "", "garbage", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/api/v1/state", "", token(t, auth.RoleViewer), http.StatusOK},
		{"viewer cannot run commands", http.MethodPost, "/api/v1/commands/movie", "", token(t, auth.RoleViewer), http.StatusForbidden},
		{"operator runs commands", http.MethodPost, "/api/v1/commands/movie", "", token(t, auth.RoleOperator), http.StatusOK},
		{"operator cannot arm", http.MethodPut, "/api/v1/state", `{"state":"ARMED"}`, token(t, auth.RoleOperator), http.StatusForbidden},
		{"admin arms", http.MethodPut, "/api/v1/state", `{"state":"ARMED"}`, token(t, auth.RoleAdmin), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.path, tt.body, tt.bearer)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestExecuteCommand_StatusCodes(t *testing.T) {
	srv, h := testServer(t, "")

	h.results["LIGHTS"] = &automation.ExecutionResult{Command: "LIGHTS", Status: automation.StatusError}
	h.results["TELEPORT"] = &automation.ExecutionResult{Command: "TELEPORT", Status: automation.StatusError}
	h.errs["TELEPORT"] = &automation.LookupError{Name: "TELEPORT", Err: automation.ErrCommandNotFound}
	h.results["LOOP"] = &automation.ExecutionResult{Command: "LOOP", Status: automation.StatusError}
	h.errs["LOOP"] = &automation.LookupError{Name: "LOOP", Err: automation.ErrRecursionLimit}

	tests := []struct {
		command string
		want    int
	}{
		{"movie", http.StatusOK},
		{"lights", http.StatusBadGateway},
		{"teleport", http.StatusNotFound},
		{"loop", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/v1/commands/"+tt.command, "", "")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			result := decode[automation.ExecutionResult](t, rec)
			if result.Command != strings.ToUpper(tt.command) {
				t.Errorf("Command = %s", result.Command)
			}
		})
	}
}

func TestExecuteCommand_ModifierAndSource(t *testing.T) {
	srv, h := testServer(t, testSecret)

	rec := do(t, srv, http.MethodPost, "/api/v1/commands/movie", `{"modifier":"OFF"}`, token(t, auth.RoleOperator))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := h.lastCall()
	if got.modifier != "OFF" || got.source != "tester-operator" {
		t.Errorf("call = %+v, want modifier OFF from token subject", got)
	}

	do(t, srv, http.MethodPost, "/api/v1/commands/movie", `{"source":"voice"}`, token(t, auth.RoleOperator))
	if got := h.lastCall(); got.source != "voice" {
		t.Errorf("source = %s, want voice", got.source)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/commands/movie", `{`, token(t, auth.RoleOperator))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", rec.Code)
	}
}

func TestExecuteCommand_Stopped(t *testing.T) {
	srv, h := testServer(t, "")
	h.stopped = true

	rec := do(t, srv, http.MethodPost, "/api/v1/commands/movie", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestKeyEntry(t *testing.T) {
	srv, h := testServer(t, "")

	if rec := do(t, srv, http.MethodPost, "/api/v1/keys/1", "", ""); rec.Code != http.StatusOK {
		t.Errorf("bound key status = %d", rec.Code)
	}
	if got := h.lastCall(); got.name != "key" || got.source != sourceAPI {
		t.Errorf("call = %+v", got)
	}
	if rec := do(t, srv, http.MethodPost, "/api/v1/keys/9", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unbound key status = %d, want 404", rec.Code)
	}
}

func TestSetState(t *testing.T) {
	srv, h := testServer(t, "")

	rec := do(t, srv, http.MethodPut, "/api/v1/state", `{"state":"away"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if snap := decode[home.Snapshot](t, rec); snap.SystemState != automation.StateAway {
		t.Errorf("SystemState = %s", snap.SystemState)
	}

	rec = do(t, srv, http.MethodPut, "/api/v1/state", `{"doNotDisturb":true}`, "")
	if rec.Code != http.StatusOK || !decode[home.Snapshot](t, rec).DoNotDisturb {
		t.Errorf("doNotDisturb not applied: %d %s", rec.Code, rec.Body.String())
	}
	if got := h.lastCall(); got.arg != "AWAY" {
		t.Errorf("do-not-disturb-only request changed state: %+v", got)
	}

	for _, body := range []string{`{"state":"party"}`, `{}`, `nope`} {
		if rec := do(t, srv, http.MethodPut, "/api/v1/state", body, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", body, rec.Code)
		}
	}
}

func TestDoorbellAndCapabilities(t *testing.T) {
	srv, h := testServer(t, "")

	if rec := do(t, srv, http.MethodPost, "/api/v1/doorbell", `{"source":"button"}`, ""); rec.Code != http.StatusAccepted {
		t.Errorf("doorbell status = %d", rec.Code)
	}
	if got := h.lastCall(); got.name != "doorbell" || got.source != "button" {
		t.Errorf("call = %+v", got)
	}

	rec := do(t, srv, http.MethodGet, "/api/v1/capabilities", "", "")
	body := decode[map[string][]capability.Status](t, rec)
	if len(body["capabilities"]) != 2 || !body["capabilities"][0].Available {
		t.Errorf("capabilities = %+v", body)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/metrics", "", "")
	metrics := decode[SystemMetrics](t, rec)
	if metrics.Capabilities.Registered != 2 || metrics.Capabilities.Demoted != 1 || metrics.Home.SystemState != "HOME" {
		t.Errorf("metrics = %+v", metrics)
	}
	if len(metrics.BridgeProcesses) != 1 || metrics.BridgeProcesses[0].PID != 4242 {
		t.Errorf("bridge processes = %+v", metrics.BridgeProcesses)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/state", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://dashboard.local" {
		t.Errorf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestTicketStore(t *testing.T) {
	ts := newTicketStore()
	now := time.Now()

	ticket := ts.issue(now)
	if !ts.redeem(ticket, now) {
		t.Fatal("fresh ticket rejected")
	}
	if ts.redeem(ticket, now) {
		t.Error("ticket redeemed twice")
	}

	expired := ts.issue(now)
	ts.clean(now.Add(2 * ticketTTL))
	if ts.redeem(expired, now) {
		t.Error("cleaned ticket still valid")
	}
}

func TestWebSocket_RequiresTicket(t *testing.T) {
	srv, _ := testServer(t, testSecret)

	if rec := do(t, srv, http.MethodGet, "/api/v1/ws", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no ticket status = %d, want 401", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/v1/ws?ticket=bogus", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("bogus ticket status = %d, want 401", rec.Code)
	}

	rec := do(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", "", token(t, auth.RoleViewer))
	if rec.Code != http.StatusOK {
		t.Fatalf("ws-ticket status = %d", rec.Code)
	}
	if ticket, _ := decode[map[string]any](t, rec)["ticket"].(string); ticket == "" {
		t.Error("empty ticket")
	}
}

func TestFeed_SnapshotThenFilteredEvents(t *testing.T) {
	srv, _ := testServer(t, "")
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?events=" + home.EventStateChanged
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer resp.Body.Close()
	defer conn.Close()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Frame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if first.Type != FrameSnapshot {
		t.Fatalf("first frame = %+v, want a snapshot", first)
	}
	if data, _ := first.Data.(map[string]any); data["systemState"] != "HOME" {
		t.Errorf("snapshot data = %v", first.Data)
	}
	if n := srv.hub.ClientCount(); n != 1 {
		t.Fatalf("ClientCount = %d, want 1", n)
	}

	srv.hub.Publish(home.Event{Type: home.EventDoorChanged, Data: map[string]any{"name": "FRONT"}})
	srv.hub.Publish(home.Event{Type: home.EventStateChanged, Data: map[string]any{"systemState": "AWAY"}})

	var ev Frame
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if ev.Type != FrameEvent || ev.Event != home.EventStateChanged {
		t.Errorf("event = %+v, want the state change only", ev)
	}
	if data, _ := ev.Data.(map[string]any); data["systemState"] != "AWAY" {
		t.Errorf("event data = %v", ev.Data)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var pong Frame
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("reading pong: %v", err)
	}
	if pong.Type != FramePong {
		t.Errorf("reply = %+v, want pong", pong)
	}
}

func TestParseEventFilter(t *testing.T) {
	if f := parseEventFilter(""); f != nil {
		t.Errorf("empty filter = %v, want nil (everything)", f)
	}
	f := parseEventFilter(" state.changed, ,door.changed")
	if len(f) != 2 || !f["state.changed"] || !f["door.changed"] {
		t.Errorf("filter = %v", f)
	}
}

func TestStart_RelaysEvents(t *testing.T) {
	srv, h := testServer(t, "")
	srv.cfg.Port = 0

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.mu.Lock()
	relay := h.onEvent
	h.mu.Unlock()
	if relay == nil {
		t.Fatal("Start did not register an event relay")
	}
	relay(home.Event{Type: home.EventCommandExecuted, Data: "x"})

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.onEvent != nil {
		t.Error("Close did not detach the relay")
	}
}
