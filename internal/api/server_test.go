package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-discovery/internal/bridges/openwebnet"
	"github.com/nerrad567/gray-logic-discovery/internal/bridges/tahoma"
	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
	"github.com/nerrad567/gray-logic-discovery/internal/inbox"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-discovery/internal/telemetry"
)

// ─── Fakes ─────────────────────────────────────────────────────────

type fakeScanner struct {
	mu       sync.Mutex
	calls    []string
	scanners []openwebnet.ScannerStatus
}

func (f *fakeScanner) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeScanner) StartScan() { f.record("start:*") }
func (f *fakeScanner) StopScan()  { f.record("stop:*") }

func (f *fakeScanner) StartScanOn(name string) error {
	if !f.known(name) {
		return fmt.Errorf("%w: %s", openwebnet.ErrUnknownDongle, name)
	}
	f.record("start:" + name)
	return nil
}

func (f *fakeScanner) StopScanOn(name string) error {
	if !f.known(name) {
		return fmt.Errorf("%w: %s", openwebnet.ErrUnknownDongle, name)
	}
	f.record("stop:" + name)
	return nil
}

func (f *fakeScanner) known(name string) bool {
	for _, sc := range f.scanners {
		if sc.Name == name {
			return true
		}
	}
	return false
}

func (f *fakeScanner) SupportedKinds() []discovery.DeviceKind {
	return openwebnet.SupportedKinds()
}

func (f *fakeScanner) Scanners() []openwebnet.ScannerStatus {
	return f.scanners
}

func (f *fakeScanner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeInbox struct {
	entries    map[string]inbox.Entry
	sessions   []inbox.Session
	lastFilter inbox.ListFilter
	err        error
}

func newFakeInbox() *fakeInbox {
	return &fakeInbox{entries: make(map[string]inbox.Entry)}
}

func (f *fakeInbox) Upsert(_ context.Context, r discovery.Result) error {
	f.entries[r.UID] = inbox.Entry{UID: r.UID, Kind: r.Kind, DeviceID: r.Identity.ID, Label: r.Label}
	return f.err
}

func (f *fakeInbox) Get(_ context.Context, uid string) (*inbox.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.entries[uid]
	if !ok {
		return nil, inbox.ErrResultNotFound
	}
	return &e, nil
}

func (f *fakeInbox) List(_ context.Context, filter inbox.ListFilter) ([]inbox.Entry, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	var out []inbox.Entry
	for _, e := range f.entries {
		if filter.Kind == "" || e.Kind == filter.Kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (f *fakeInbox) Delete(_ context.Context, uid string) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.entries[uid]; !ok {
		return inbox.ErrResultNotFound
	}
	delete(f.entries, uid)
	return nil
}

func (f *fakeInbox) RecordSession(context.Context, discovery.ScanOutcome) error {
	return f.err
}

func (f *fakeInbox) ListSessions(_ context.Context, limit int) ([]inbox.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.sessions) {
		return f.sessions[:limit], nil
	}
	return f.sessions, nil
}

type fakeTahoma struct{}

func (fakeTahoma) Devices() []string { return []string{"blind-1", "blind-2"} }

func (fakeTahoma) Stats() tahoma.BridgeStats {
	return tahoma.BridgeStats{Commands: 3, CommandErrors: 1}
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type fakeSubscriber struct {
	topic   string
	handler mqtt.MessageHandler
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.topic = topic
	f.handler = handler
	return nil
}

// ─── Helpers ───────────────────────────────────────────────────────

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
}

type testEnv struct {
	srv     *Server
	scanner *fakeScanner
	inbox   *fakeInbox
}

// testServer creates a Server with fakes and a running hub.
func testServer(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()

	env := &testEnv{
		scanner: &fakeScanner{scanners: []openwebnet.ScannerStatus{
			{Name: "usb0", Kind: openwebnet.KindDongle, State: "connected", Scanning: true},
			{Name: "usb1", Kind: openwebnet.KindDongle, State: "idle"},
		}},
		inbox: newFakeInbox(),
	}

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:      testWSConfig(),
		Logger:  testLogger(),
		Scanner: env.scanner,
		Inbox:   env.inbox,
		Version: "test",
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if srv.hub == nil {
		srv.hub = NewHub(srv.wsCfg, srv.logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	env.srv = srv
	return env
}

func (e *testEnv) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func testResult(id uint32) discovery.Result {
	return discovery.NewResult(openwebnet.DongleProfile,
		discovery.DeviceIdentity{ID: id, FirmwareVersion: "1.2.3", Endpoint: "/dev/ttyUSB0"},
		"session-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiredDeps(t *testing.T) {
	base := Deps{Logger: testLogger(), Scanner: &fakeScanner{}, Inbox: newFakeInbox()}

	tests := []struct {
		name   string
		mutate func(*Deps)
		want   error
	}{
		{"logger", func(d *Deps) { d.Logger = nil }, ErrLoggerRequired},
		{"scanner", func(d *Deps) { d.Scanner = nil }, ErrScannerRequired},
		{"inbox", func(d *Deps) { d.Inbox = nil }, ErrInboxRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := base
			tt.mutate(&deps)
			if _, err := New(deps); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

// ─── Health & Metrics ──────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"database": checkFunc(func(context.Context) error { return nil }),
		}
	})

	w := env.do(t, http.MethodGet, "/api/v1/health")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode[HealthResponse](t, w)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("status/version = %q/%q, want ok/test", resp.Status, resp.Version)
	}
	if diff := cmp.Diff(map[string]string{"database": "ok"}, resp.Components); diff != "" {
		t.Errorf("components mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"usb0"}, resp.Scanning); diff != "" {
		t.Errorf("scanning mismatch (-want +got):\n%s", diff)
	}
}

func TestHealth_Degraded(t *testing.T) {
	env := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"database": checkFunc(func(context.Context) error { return nil }),
			"mqtt":     checkFunc(func(context.Context) error { return mqtt.ErrNotConnected }),
		}
	})

	w := env.do(t, http.MethodGet, "/api/v1/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	resp := decode[HealthResponse](t, w)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Components["mqtt"] != mqtt.ErrNotConnected.Error() {
		t.Errorf("mqtt component = %q", resp.Components["mqtt"])
	}
}

func TestMetrics(t *testing.T) {
	metrics, err := telemetry.NewMetrics(false)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	metrics.OnDiscovered(testResult(42))

	env := testServer(t, func(d *Deps) { d.Metrics = metrics.Handler() })

	w := env.do(t, http.MethodGet, "/api/v1/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "graylogic_discovery_results_total") {
		t.Errorf("metrics output missing results counter:\n%s", w.Body.String())
	}
}

func TestMetrics_Disabled(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/metrics")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("metrics status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/health")

	requestID := w.Header().Get("X-Request-ID")
	if _, err := uuid.Parse(requestID); err != nil {
		t.Errorf("X-Request-ID = %q, want a UUID: %v", requestID, err)
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"dev mode allows all", nil, "http://localhost:3000", "http://localhost:3000"},
		{"listed origin", []string{"http://admin.local"}, "http://admin.local", "http://admin.local"},
		{"wildcard", []string{"*"}, "http://x", "http://x"},
		{"unlisted origin", []string{"http://admin.local"}, "http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testServer(t, func(d *Deps) { d.Config.CORS.AllowedOrigins = tt.allowed })

			req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			env.srv.buildRouter().ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("ACAO = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	env := testServer(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if resp := decode[Error](t, w); resp.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeInternal)
	}
}

func TestNotFound(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/nonexistent")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Discovery Endpoints ───────────────────────────────────────────

func TestListKinds(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/discovery/kinds")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decode[struct {
		Kinds []discovery.DeviceKind `json:"kinds"`
	}](t, w)
	if diff := cmp.Diff(openwebnet.SupportedKinds(), resp.Kinds); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestListScanners(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/discovery/scanners")

	resp := decode[struct {
		Scanners []openwebnet.ScannerStatus `json:"scanners"`
		Count    int                        `json:"count"`
	}](t, w)
	if resp.Count != 2 || len(resp.Scanners) != 2 {
		t.Fatalf("count = %d (%d scanners), want 2", resp.Count, len(resp.Scanners))
	}
	if resp.Scanners[0].Name != "usb0" || !resp.Scanners[0].Scanning {
		t.Errorf("scanners[0] = %+v", resp.Scanners[0])
	}
}

func TestScanControl(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		wantCalls  []string
		wantBody   string
	}{
		{"start all", http.MethodPost, "/api/v1/discovery/scan", http.StatusAccepted, []string{"start:*"}, "scanning"},
		{"stop all", http.MethodDelete, "/api/v1/discovery/scan", http.StatusAccepted, []string{"stop:*"}, "stopped"},
		{"start one", http.MethodPost, "/api/v1/discovery/scan?dongle=usb1", http.StatusAccepted, []string{"start:usb1"}, "scanning"},
		{"stop one", http.MethodDelete, "/api/v1/discovery/scan?dongle=usb0", http.StatusAccepted, []string{"stop:usb0"}, "stopped"},
		{"unknown dongle", http.MethodPost, "/api/v1/discovery/scan?dongle=nope", http.StatusNotFound, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testServer(t)
			w := env.do(t, tt.method, tt.target)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if diff := cmp.Diff(tt.wantCalls, env.scanner.Calls()); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
			if tt.wantBody != "" {
				if resp := decode[ScanResponse](t, w); resp.Status != tt.wantBody {
					t.Errorf("status = %q, want %q", resp.Status, tt.wantBody)
				}
			}
		})
	}
}

func TestListResults(t *testing.T) {
	env := testServer(t)
	for _, id := range []uint32{1, 2} {
		_ = env.inbox.Upsert(context.Background(), testResult(id))
	}

	w := env.do(t, http.MethodGet, "/api/v1/discovery/results?kind=openwebnet:dongle&limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decode[struct {
		Results []inbox.Entry `json:"results"`
		Count   int           `json:"count"`
	}](t, w)
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
	want := inbox.ListFilter{Kind: openwebnet.KindDongle, Limit: 5}
	if diff := cmp.Diff(want, env.inbox.lastFilter); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
}

func TestListResults_Empty(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/discovery/results")
	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("body = %s, want empty results array", w.Body.String())
	}
}

func TestListResults_InvalidLimit(t *testing.T) {
	env := testServer(t)
	for _, limit := range []string{"abc", "0", "-3"} {
		w := env.do(t, http.MethodGet, "/api/v1/discovery/results?limit="+limit)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want %d", limit, w.Code, http.StatusBadRequest)
		}
	}
}

func TestListResults_InternalError(t *testing.T) {
	env := testServer(t)
	env.inbox.err = errors.New("disk on fire")

	w := env.do(t, http.MethodGet, "/api/v1/discovery/results")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "disk on fire") {
		t.Error("internal error detail leaked to client")
	}
}

func TestGetResult(t *testing.T) {
	env := testServer(t)
	r := testResult(765432)
	_ = env.inbox.Upsert(context.Background(), r)

	w := env.do(t, http.MethodGet, "/api/v1/discovery/results/"+r.UID)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decode[inbox.Entry](t, w); got.DeviceID != 765432 {
		t.Errorf("device_id = %d, want 765432", got.DeviceID)
	}

	w = env.do(t, http.MethodGet, "/api/v1/discovery/results/openwebnet:dongle:1")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeleteResult(t *testing.T) {
	env := testServer(t)
	r := testResult(7)
	_ = env.inbox.Upsert(context.Background(), r)

	w := env.do(t, http.MethodDelete, "/api/v1/discovery/results/"+r.UID)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if _, ok := env.inbox.entries[r.UID]; ok {
		t.Error("entry still present after delete")
	}

	w = env.do(t, http.MethodDelete, "/api/v1/discovery/results/"+r.UID)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListSessions(t *testing.T) {
	env := testServer(t)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	env.inbox.sessions = []inbox.Session{
		{ID: "s2", Kind: openwebnet.KindDongle, StartedAt: started.Add(time.Minute), Cause: discovery.EndStopped, Discovered: 1},
		{ID: "s1", Kind: openwebnet.KindDongle, StartedAt: started, Cause: discovery.EndIdentifyTimeout, Error: "timeout"},
	}

	w := env.do(t, http.MethodGet, "/api/v1/discovery/sessions?limit=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[struct {
		Sessions []inbox.Session `json:"sessions"`
		Count    int             `json:"count"`
	}](t, w)
	if resp.Count != 1 || resp.Sessions[0].ID != "s2" {
		t.Errorf("sessions = %+v, want only s2", resp.Sessions)
	}
}

func TestTahomaDevices(t *testing.T) {
	env := testServer(t)
	if w := env.do(t, http.MethodGet, "/api/v1/tahoma/devices"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	env = testServer(t, func(d *Deps) { d.Tahoma = fakeTahoma{} })
	w := env.do(t, http.MethodGet, "/api/v1/tahoma/devices")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[struct {
		Devices []string          `json:"devices"`
		Stats   tahoma.BridgeStats `json:"stats"`
	}](t, w)
	if diff := cmp.Diff([]string{"blind-1", "blind-2"}, resp.Devices); diff != "" {
		t.Errorf("devices mismatch (-want +got):\n%s", diff)
	}
	if resp.Stats.Commands != 3 {
		t.Errorf("commands = %d, want 3", resp.Stats.Commands)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	port := 19180
	env := testServer(t, func(d *Deps) { d.Config.Port = port })

	if err := env.srv.HealthCheck(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("HealthCheck before Start = %v, want ErrNotStarted", err)
	}

	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck after Start = %v", err)
	}

	addr := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	resp, err := http.Get(addr)
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, err := http.Get(addr); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_CloseWithoutStart(t *testing.T) {
	env := testServer(t)
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

// ─── Hub ───────────────────────────────────────────────────────────

func newTestClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
	hub.Register(client)
	return client
}

func receive(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
		return WSMessage{}
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	client := newTestClient(hub, ChannelDiscoveryFound)

	hub.OnDiscovered(testResult(42))

	msg := receive(t, client)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelDiscoveryFound {
		t.Errorf("message = %s/%s, want event/%s", msg.Type, msg.EventType, ChannelDiscoveryFound)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["uid"] != "openwebnet:dongle:42" {
		t.Errorf("payload uid = %v, want openwebnet:dongle:42", payload["uid"])
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	client := newTestClient(hub, ChannelScanEnded)

	hub.OnDiscovered(testResult(42))

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ScanEvents(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	client := newTestClient(hub, ChannelScanStarted, ChannelScanEnded)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	hub.ScanStarted(discovery.ScanInfo{SessionID: "s1", Kind: openwebnet.KindDongle, StartedAt: started})
	if msg := receive(t, client); msg.EventType != ChannelScanStarted {
		t.Errorf("event_type = %q, want %q", msg.EventType, ChannelScanStarted)
	}

	hub.ScanEnded(discovery.ScanOutcome{
		SessionID: "s1",
		Kind:      openwebnet.KindDongle,
		Endpoint:  "/dev/ttyUSB0",
		Cause:     discovery.EndIdentifyTimeout,
		Err:       discovery.ErrIdentifyTimeout,
		StartedAt: started,
		EndedAt:   started.Add(time.Minute),
	})
	msg := receive(t, client)
	if msg.EventType != ChannelScanEnded {
		t.Fatalf("event_type = %q, want %q", msg.EventType, ChannelScanEnded)
	}
	raw, _ := json.Marshal(msg.Payload)
	var ev ScanEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if ev.Cause != discovery.EndIdentifyTimeout || ev.Error != discovery.ErrIdentifyTimeout.Error() {
		t.Errorf("event = %+v", ev)
	}
	if ev.EndedAt == nil || !ev.EndedAt.Equal(started.Add(time.Minute)) {
		t.Errorf("ended_at = %v", ev.EndedAt)
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := newTestClient(hub)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestBridgeHealthRelay(t *testing.T) {
	sub := &fakeSubscriber{}
	env := testServer(t, func(d *Deps) { d.MQTT = sub })

	if err := env.srv.subscribeBridgeHealth(); err != nil {
		t.Fatalf("subscribeBridgeHealth: %v", err)
	}
	if sub.topic != mqtt.AllBridgeHealth {
		t.Errorf("topic = %q, want %q", sub.topic, mqtt.AllBridgeHealth)
	}

	client := newTestClient(env.srv.hub, ChannelBridgeHealth)

	if err := sub.handler("graylogic/health/openwebnet", []byte(`{"status":"healthy"}`)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	msg := receive(t, client)
	payload, _ := msg.Payload.(map[string]any)
	if payload["bridge"] != "openwebnet" || payload["status"] != "healthy" {
		t.Errorf("payload = %v", payload)
	}

	// Malformed payloads are dropped.
	if err := sub.handler("graylogic/health/openwebnet", []byte(`not json`)); err != nil {
		t.Errorf("handler error on malformed payload: %v", err)
	}
	select {
	case <-client.send:
		t.Error("malformed health message was broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebSocket_FullConnection(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDiscoveryFound}},
	}); err != nil {
		t.Fatalf("write subscribe message: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack WSMessage
	if err := ws.ReadJSON(&ack); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "sub-1" {
		t.Errorf("ack = %s/%s, want %s/sub-1", ack.Type, ack.ID, WSTypeResponse)
	}
	if env.srv.hub.ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", env.srv.hub.ClientCount())
	}

	env.srv.hub.OnDiscovered(testResult(99))

	var ev WSMessage
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.EventType != ChannelDiscoveryFound {
		t.Errorf("event_type = %q, want %q", ev.EventType, ChannelDiscoveryFound)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{bad")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var errMsg WSMessage
	if err := ws.ReadJSON(&errMsg); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if errMsg.Type != WSTypeError {
		t.Errorf("type = %q, want %q", errMsg.Type, WSTypeError)
	}
}

func TestWebSocket_RejectsDisallowedOrigin(t *testing.T) {
	env := testServer(t, func(d *Deps) { d.Config.CORS.AllowedOrigins = []string{"http://admin.local"} })
	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	header := http.Header{"Origin": []string{"http://evil.example"}}
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("dial succeeded, want origin rejection")
	}
	if resp != nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
		}
	}
}
