package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/goalfinder/panel/go/internal/devicews"
	"github.com/goalfinder/panel/go/internal/game"
	"github.com/goalfinder/panel/go/internal/gateway"
)

// newTestAPI wires the full handler stack against a stubbed device.
func newTestAPI(t *testing.T) (*Services, *httptest.Server) {
	t.Helper()

	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hits", "/misses":
			io.WriteString(w, "0")
		case "/settings":
			io.WriteString(w, `{"deviceName":"Goalfinder","devicePassword":"secret99","ledMode":1}`)
		case "/isauth":
			io.WriteString(w, `{"isPasswordProtected":true}`)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(device.Close)

	cfg := defaultConfig()
	cfg.Device.BaseURL = device.URL
	cfg.Device.SocketURL = "ws" + strings.TrimPrefix(device.URL, "http") + "/ws"
	cfg.Prefs.Path = filepath.Join(t.TempDir(), "prefs.db")

	services, err := setupServices(cfg)
	if err != nil {
		t.Fatalf("setupServices() = %v", err)
	}
	t.Cleanup(services.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go services.Gateway.Start(ctx)
	t.Cleanup(cancel)

	mux := http.NewServeMux()
	registerRoutes(mux, services)
	gateway.NewWebSocketHandler(services.Gateway).RegisterRoutes(mux)
	api := httptest.NewServer(mux)
	t.Cleanup(api.Close)

	return services, api
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestGameLifecycleOverHTTP(t *testing.T) {
	_, api := newTestAPI(t)

	resp, body := doJSON(t, http.MethodPost, api.URL+"/api/games",
		`{"variant":"shot-challenge","players":["Alice","Bob"]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, body)
	}

	var snap game.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(snap.Players) != 2 || snap.Timer != 60 {
		t.Errorf("snapshot = %+v", snap)
	}

	base := api.URL + "/api/games/" + snap.ID

	resp, _ = doJSON(t, http.MethodPost, base+"/players", `{"name":"Carol"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add player status = %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/start", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, body %s", resp.StatusCode, body)
	}
	json.Unmarshal(body, &snap)
	if !snap.Running {
		t.Error("game not running after start")
	}

	resp, body = doJSON(t, http.MethodPost, base+"/pause", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d", resp.StatusCode)
	}
	json.Unmarshal(body, &snap)
	if snap.Running {
		t.Error("game still running after pause")
	}

	resp, _ = doJSON(t, http.MethodDelete, base, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, base, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

// readEventOfType skips unrelated broadcasts, such as tick-driven state
// updates, until the wanted event type arrives.
func readEventOfType(t *testing.T, conn *websocket.Conn, want gateway.EventType) gateway.GameEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("no %q event received: %v", want, err)
		}
		var event gateway.GameEvent
		if err := json.Unmarshal(message, &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if event.Type == want {
			return event
		}
	}
}

func TestStartAndPauseBroadcastGameEvents(t *testing.T) {
	services, api := newTestAPI(t)

	_, body := doJSON(t, http.MethodPost, api.URL+"/api/games",
		`{"variant":"shot-challenge","players":["Alice"]}`)
	var snap game.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(api.URL, "http") + "/ws/game?game_id=" + snap.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	gameID, _ := uuid.Parse(snap.ID)
	deadline := time.Now().Add(2 * time.Second)
	for services.Gateway.ConnectionCount(gameID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(time.Millisecond)
	}

	base := api.URL + "/api/games/" + snap.ID
	if resp, _ := doJSON(t, http.MethodPost, base+"/start", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	event := readEventOfType(t, conn, gateway.EventTypeGameStarted)
	if event.GameID != snap.ID {
		t.Errorf("game_id = %q, want %q", event.GameID, snap.ID)
	}

	if resp, _ := doJSON(t, http.MethodPost, base+"/pause", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d", resp.StatusCode)
	}
	readEventOfType(t, conn, gateway.EventTypeGamePaused)
}

// stubHTTPCounters stands in for the HTTP device client.
type stubHTTPCounters struct {
	hits, misses int
}

func (s stubHTTPCounters) Hits(ctx context.Context) (int, error)   { return s.hits, nil }
func (s stubHTTPCounters) Misses(ctx context.Context) (int, error) { return s.misses, nil }

func TestDeviceCounters_FallBackToHTTPWhileSocketDown(t *testing.T) {
	// The socket channel is never run, so it reports not connected.
	socket := devicews.NewChannel(devicews.DefaultChannelConfig("ws://192.0.2.1/ws"))
	counters := &deviceCounters{
		socket: socket,
		ws:     devicews.NewCounterSource(socket),
		http:   stubHTTPCounters{hits: 4, misses: 2},
	}

	hits, err := counters.Hits(context.Background())
	if err != nil {
		t.Fatalf("Hits() = %v", err)
	}
	misses, err := counters.Misses(context.Background())
	if err != nil {
		t.Fatalf("Misses() = %v", err)
	}
	if hits != 4 || misses != 2 {
		t.Errorf("counters = %d/%d, want 4/2 from the HTTP fallback", hits, misses)
	}
}

func TestCreateGame_RejectsUnknownVariant(t *testing.T) {
	_, api := newTestAPI(t)

	resp, _ := doJSON(t, http.MethodPost, api.URL+"/api/games", `{"variant":"penalty-shootout"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStartGame_EmptyRosterConflicts(t *testing.T) {
	_, api := newTestAPI(t)

	_, body := doJSON(t, http.MethodPost, api.URL+"/api/games", `{"variant":"timed-shots-challenge"}`)
	var snap game.Snapshot
	json.Unmarshal(body, &snap)

	resp, _ := doJSON(t, http.MethodPost, api.URL+"/api/games/"+snap.ID+"/start", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestRemovePlayer_OutOfRangeIs404(t *testing.T) {
	_, api := newTestAPI(t)

	_, body := doJSON(t, http.MethodPost, api.URL+"/api/games",
		`{"variant":"shot-challenge","players":["Alice"]}`)
	var snap game.Snapshot
	json.Unmarshal(body, &snap)

	resp, _ := doJSON(t, http.MethodDelete, api.URL+"/api/games/"+snap.ID+"/players/5", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSettingsRoundTripOverHTTP(t *testing.T) {
	_, api := newTestAPI(t)

	resp, body := doJSON(t, http.MethodGet, api.URL+"/api/settings", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get settings status = %d", resp.StatusCode)
	}

	var got struct {
		Settings struct {
			DeviceName string `json:"deviceName"`
		} `json:"settings"`
		LEDModeLabel string `json:"ledModeLabel"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Settings.DeviceName != "Goalfinder" {
		t.Errorf("deviceName = %q", got.Settings.DeviceName)
	}
	if got.LEDModeLabel != "On" {
		t.Errorf("ledModeLabel = %q, want On", got.LEDModeLabel)
	}

	resp, _ = doJSON(t, http.MethodPut, api.URL+"/api/settings", `{"volume":7}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("put settings status = %d, want 202", resp.StatusCode)
	}
}

func TestAuthFlowOverHTTP(t *testing.T) {
	_, api := newTestAPI(t)

	resp, body := doJSON(t, http.MethodGet, api.URL+"/api/auth", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("auth state status = %d", resp.StatusCode)
	}
	var state map[string]bool
	json.Unmarshal(body, &state)
	if !state["passwordRequired"] {
		t.Error("passwordRequired = false, want true")
	}

	resp, _ = doJSON(t, http.MethodPost, api.URL+"/api/auth/login", `{"password":"wrong"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, api.URL+"/api/auth/login", `{"password":"secret99"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("login status = %d, want 204", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, api.URL+"/api/auth", "")
	json.Unmarshal(body, &state)
	if !state["authenticated"] {
		t.Error("authenticated = false after login")
	}
}

func TestPrefsRoundTripOverHTTP(t *testing.T) {
	_, api := newTestAPI(t)

	resp, _ := doJSON(t, http.MethodPut, api.URL+"/api/prefs",
		`{"theme":"dark","language":"de","accentColor":"#ff6600"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put prefs status = %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, api.URL+"/api/prefs", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get prefs status = %d", resp.StatusCode)
	}
	var got map[string]string
	json.Unmarshal(body, &got)
	if got["theme"] != "dark" || got["language"] != "de" {
		t.Errorf("prefs = %v", got)
	}

	resp, _ = doJSON(t, http.MethodPut, api.URL+"/api/prefs", `{"theme":"solarized"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid theme status = %d, want 400", resp.StatusCode)
	}
}
