package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GameEvent is the envelope for everything pushed to panel clients.
type GameEvent struct {
	ID        string          `json:"id"`
	GameID    string          `json:"game_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of game event
type EventType string

const (
	EventTypeGameState        EventType = "GameState"
	EventTypeGameStarted      EventType = "GameStarted"
	EventTypeGamePaused       EventType = "GamePaused"
	EventTypeGameEnded        EventType = "GameEnded"
	EventTypeSettingsChanged  EventType = "SettingsChanged"
	EventTypeUpdateProgress   EventType = "UpdateProgress"
	EventTypeUpdateFinished   EventType = "UpdateFinished"
	EventTypeDeviceConnection EventType = "DeviceConnection"
)

// DeviceStream is the pseudo game id that device-level events, such as
// firmware progress and connection state, are published under. Clients
// subscribe to it like to any game.
var DeviceStream = uuid.Nil

// NewGameEvent wraps a payload in the event envelope. The payload must
// be JSON-marshalable.
func NewGameEvent(gameID uuid.UUID, eventType EventType, payload interface{}) (*GameEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &GameEvent{
		ID:        uuid.New().String(),
		GameID:    gameID.String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// UpdateProgressPayload reports firmware upload progress.
type UpdateProgressPayload struct {
	Percent int    `json:"percent"`
	State   string `json:"state"`
}

// DeviceConnectionPayload reports whether the device answered the last
// poll.
type DeviceConnectionPayload struct {
	Connected bool      `json:"connected"`
	CheckedAt time.Time `json:"checked_at"`
}
