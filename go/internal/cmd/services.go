package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/goalfinder/panel/go/clients/goalfinder_client"
	"github.com/goalfinder/panel/go/internal/auth"
	"github.com/goalfinder/panel/go/internal/devicews"
	"github.com/goalfinder/panel/go/internal/firmware"
	"github.com/goalfinder/panel/go/internal/game"
	"github.com/goalfinder/panel/go/internal/gateway"
	"github.com/goalfinder/panel/go/internal/prefs"
	"github.com/goalfinder/panel/go/internal/settings"
)

type Services struct {
	Device   *goalfinder_client.Client
	Settings *settings.Store
	Firmware *firmware.Service
	Auth     *auth.Guard
	Prefs    *prefs.Store
	Gateway  *gateway.ConnectionManager
	Socket   *devicews.Channel
	Counters game.CounterSource

	mu    sync.Mutex
	games map[uuid.UUID]*gameSession

	updateMu sync.Mutex
	update   *firmware.Session
}

// gameSession pairs a game with the clock that drives it.
type gameSession struct {
	game  *game.Game
	clock *game.Clock
}

func setupServices(cfg *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Device client → stores and sessions → HTTP handlers

	device := goalfinder_client.NewClient(cfg.Device.BaseURL)

	firmwareService := firmware.NewService(device, firmware.DefaultConfig())
	settingsStore := settings.NewStore(device, firmwareService, settings.DefaultStoreConfig())

	authCfg := auth.DefaultGuardConfig()
	authCfg.MaxAttempts = cfg.Auth.MaxAttempts
	authCfg.CoolDown = time.Duration(cfg.Auth.CoolDownSeconds) * time.Second
	guard := auth.NewGuard(device, authCfg)

	prefsStore, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences store: %w", err)
	}

	connectionManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	socket := devicews.NewChannel(devicews.DefaultChannelConfig(cfg.Device.SocketURL))

	services := &Services{
		Device:   device,
		Settings: settingsStore,
		Firmware: firmwareService,
		Auth:     guard,
		Prefs:    prefsStore,
		Gateway:  connectionManager,
		Socket:   socket,
		Counters: &deviceCounters{
			socket: socket,
			ws:     devicews.NewCounterSource(socket),
			http:   device,
		},
		games: make(map[uuid.UUID]*gameSession),
	}

	socket.OnConnectionChange(func(connected bool) {
		services.broadcastGameEvent(gateway.DeviceStream, gateway.EventTypeDeviceConnection,
			gateway.DeviceConnectionPayload{Connected: connected, CheckedAt: time.Now()})
	})

	return services, nil
}

// deviceCounters polls the game counters over the device socket while it
// is up and falls back to the HTTP API otherwise. Both transports drain
// the device counters on read, so each event is still observed once.
type deviceCounters struct {
	socket *devicews.Channel
	ws     *devicews.CounterSource
	http   game.CounterSource
}

func (d *deviceCounters) Hits(ctx context.Context) (int, error) {
	if d.socket.Connected() {
		return d.ws.Hits(ctx)
	}
	return d.http.Hits(ctx)
}

func (d *deviceCounters) Misses(ctx context.Context) (int, error) {
	if d.socket.Connected() {
		return d.ws.Misses(ctx)
	}
	return d.http.Misses(ctx)
}

// CreateGame builds a game for the given variant and wires its clock to
// the device counters and the event gateway.
func (s *Services) CreateGame(variant string) (*gameSession, error) {
	rules, ok := game.RulesFor(variant)
	if !ok {
		return nil, fmt.Errorf("unknown game variant %q", variant)
	}

	g := game.New(rules)
	clockCfg := game.DefaultClockConfig()
	clockCfg.OnTick = func(snap game.Snapshot) {
		s.broadcastState(g.ID(), snap)
	}

	session := &gameSession{
		game:  g,
		clock: game.NewClock(g, s.Counters, clockCfg),
	}

	s.mu.Lock()
	s.games[g.ID()] = session
	s.mu.Unlock()

	log.Info().Str("game_id", g.ID().String()).Str("variant", variant).Msg("game created")
	return session, nil
}

func (s *Services) Game(id uuid.UUID) (*gameSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.games[id]
	return session, ok
}

// DeleteGame pauses the clock and drops the session.
func (s *Services) DeleteGame(id uuid.UUID) bool {
	s.mu.Lock()
	session, ok := s.games[id]
	delete(s.games, id)
	s.mu.Unlock()

	if ok {
		session.clock.Pause()
		log.Info().Str("game_id", id.String()).Msg("game deleted")
	}
	return ok
}

func (s *Services) broadcastState(gameID uuid.UUID, snap game.Snapshot) {
	s.broadcastGameEvent(gameID, gateway.EventTypeGameState, snap)
}

func (s *Services) broadcastGameEvent(gameID uuid.UUID, eventType gateway.EventType, payload interface{}) {
	event, err := gateway.NewGameEvent(gameID, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	s.Gateway.BroadcastToGame(gameID, event)
}

// Close releases everything that holds file handles or goroutines.
func (s *Services) Close() {
	s.mu.Lock()
	sessions := make([]*gameSession, 0, len(s.games))
	for _, session := range s.games {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.clock.Pause()
	}
	if err := s.Prefs.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close preferences store")
	}
}
