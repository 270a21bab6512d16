package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func startGateway(t *testing.T) (*ConnectionManager, string) {
	t.Helper()

	cm := NewConnectionManager(DefaultConnectionConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)
	t.Cleanup(cancel)

	mux := http.NewServeMux()
	NewWebSocketHandler(cm).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return cm, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialGame(t *testing.T, baseURL string, gameID uuid.UUID) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(baseURL+"/ws/game?game_id="+gameID.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForConnections(t *testing.T, cm *ConnectionManager, gameID uuid.UUID, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for cm.ConnectionCount(gameID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("connections = %d, want %d", cm.ConnectionCount(gameID), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBroadcastToGame_ReachesEverySubscriber(t *testing.T) {
	cm, baseURL := startGateway(t)
	gameID := uuid.New()

	first := dialGame(t, baseURL, gameID)
	second := dialGame(t, baseURL, gameID)
	waitForConnections(t, cm, gameID, 2)

	event, err := NewGameEvent(gameID, EventTypeGameState, map[string]int{"timer": 42})
	if err != nil {
		t.Fatalf("NewGameEvent() = %v", err)
	}
	cm.BroadcastToGame(gameID, event)

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}

		var got GameEvent
		if err := json.Unmarshal(message, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != EventTypeGameState {
			t.Errorf("type = %q, want %q", got.Type, EventTypeGameState)
		}
		if got.GameID != gameID.String() {
			t.Errorf("game_id = %q, want %q", got.GameID, gameID)
		}
	}
}

func TestBroadcastToGame_OtherGamesHearNothing(t *testing.T) {
	cm, baseURL := startGateway(t)
	watched := uuid.New()
	other := uuid.New()

	conn := dialGame(t, baseURL, other)
	waitForConnections(t, cm, other, 1)

	event, err := NewGameEvent(watched, EventTypeGameEnded, struct{}{})
	if err != nil {
		t.Fatalf("NewGameEvent() = %v", err)
	}
	cm.BroadcastToGame(watched, event)

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("subscriber of another game received the event")
	}
}

func TestHandleGameConnection_RejectsMissingGameID(t *testing.T) {
	_, baseURL := startGateway(t)

	_, resp, err := websocket.DefaultDialer.Dial(baseURL+"/ws/game", nil)
	if err == nil {
		t.Fatal("dial without game_id succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %v, want 400", resp)
	}
}
