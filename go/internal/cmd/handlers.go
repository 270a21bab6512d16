package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/goalfinder/panel/go/internal/auth"
	"github.com/goalfinder/panel/go/internal/game"
	"github.com/goalfinder/panel/go/internal/gateway"
	"github.com/goalfinder/panel/go/internal/prefs"
	"github.com/goalfinder/panel/go/internal/settings"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func registerRoutes(mux *http.ServeMux, services *Services) {
	h := &apiHandler{services: services}

	mux.HandleFunc("POST /api/games", h.createGame)
	mux.HandleFunc("GET /api/games/{id}", h.gameState)
	mux.HandleFunc("DELETE /api/games/{id}", h.deleteGame)
	mux.HandleFunc("GET /api/games/{id}/leaderboard", h.leaderboard)
	mux.HandleFunc("POST /api/games/{id}/start", h.startGame)
	mux.HandleFunc("POST /api/games/{id}/pause", h.pauseGame)
	mux.HandleFunc("POST /api/games/{id}/reset", h.resetGame)
	mux.HandleFunc("POST /api/games/{id}/end", h.endGame)
	mux.HandleFunc("POST /api/games/{id}/players", h.addPlayer)
	mux.HandleFunc("DELETE /api/games/{id}/players/{index}", h.removePlayer)
	mux.HandleFunc("POST /api/games/{id}/players/{index}/hits", h.addHit)
	mux.HandleFunc("POST /api/games/{id}/players/{index}/misses", h.addMiss)

	mux.HandleFunc("GET /api/settings", h.getSettings)
	mux.HandleFunc("PUT /api/settings", h.putSettings)
	mux.HandleFunc("POST /api/settings/save", h.saveSettings)

	mux.HandleFunc("POST /api/device/restart", h.restartDevice)
	mux.HandleFunc("POST /api/device/factory-reset", h.factoryResetDevice)
	mux.HandleFunc("POST /api/device/update", h.startUpdate)
	mux.HandleFunc("GET /api/device/update", h.updateStatus)

	mux.HandleFunc("GET /api/auth", h.authState)
	mux.HandleFunc("POST /api/auth/login", h.login)
	mux.HandleFunc("POST /api/auth/logout", h.logout)

	mux.HandleFunc("GET /api/prefs", h.getPrefs)
	mux.HandleFunc("PUT /api/prefs", h.putPrefs)
}

type apiHandler struct {
	services *Services
}

func (h *apiHandler) session(w http.ResponseWriter, r *http.Request) (*gameSession, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return nil, false
	}
	session, ok := h.services.Game(id)
	if !ok {
		writeError(w, http.StatusNotFound, "game not found")
		return nil, false
	}
	return session, true
}

func playerIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player index")
		return 0, false
	}
	return index, true
}

func (h *apiHandler) createGame(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Variant string   `json:"variant"`
		Players []string `json:"players"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.services.CreateGame(body.Variant)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, name := range body.Players {
		session.game.AddPlayer(name)
	}

	writeJSON(w, http.StatusCreated, session.game.State())
}

func (h *apiHandler) gameState(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.game.State())
}

func (h *apiHandler) deleteGame(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}
	if !h.services.DeleteGame(id) {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.game.SortedPlayers())
}

func (h *apiHandler) startGame(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.clock.Start(); err != nil {
		if errors.Is(err, game.ErrEmptyRoster) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snap := session.game.State()
	h.services.broadcastGameEvent(session.game.ID(), gateway.EventTypeGameStarted, snap)
	writeJSON(w, http.StatusOK, snap)
}

func (h *apiHandler) pauseGame(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.clock.Pause()

	snap := session.game.State()
	h.services.broadcastGameEvent(session.game.ID(), gateway.EventTypeGamePaused, snap)
	writeJSON(w, http.StatusOK, snap)
}

func (h *apiHandler) resetGame(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.clock.Pause()
	session.game.Reset()
	writeJSON(w, http.StatusOK, session.game.State())
}

func (h *apiHandler) endGame(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.game.End()
	session.clock.Pause()

	snap := session.game.State()
	h.services.broadcastGameEvent(session.game.ID(), gateway.EventTypeGameEnded, snap)
	writeJSON(w, http.StatusOK, snap)
}

func (h *apiHandler) addPlayer(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "player name is required")
		return
	}
	session.game.AddPlayer(body.Name)
	writeJSON(w, http.StatusOK, session.game.State())
}

func (h *apiHandler) removePlayer(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	index, ok := playerIndex(w, r)
	if !ok {
		return
	}
	// Removing a player resets the game, so stop the clock with it.
	session.clock.Pause()
	if err := session.game.RemovePlayer(index); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session.game.State())
}

func (h *apiHandler) addHit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	index, ok := playerIndex(w, r)
	if !ok {
		return
	}
	if err := session.game.AddHitToPlayer(index); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session.game.State())
}

func (h *apiHandler) addMiss(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	index, ok := playerIndex(w, r)
	if !ok {
		return
	}
	if err := session.game.AddMissToPlayer(index); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session.game.State())
}

type settingsResponse struct {
	Settings     settings.Snapshot `json:"settings"`
	LEDModeLabel string            `json:"ledModeLabel"`
}

func (h *apiHandler) getSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Settings.Load(r.Context()); err != nil {
		// Serve the cached snapshot; the client shows stale values over
		// an empty panel.
		log.Warn().Err(err).Msg("serving cached settings")
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		Settings:     h.services.Settings.Snapshot(),
		LEDModeLabel: h.services.Settings.LEDModeLabel(),
	})
}

func (h *apiHandler) putSettings(w http.ResponseWriter, r *http.Request) {
	snap := h.services.Settings.Snapshot()
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings body")
		return
	}

	h.services.Settings.Edit(func(current *settings.Snapshot) { *current = snap })
	// The password protection flag may have changed with the edit.
	h.services.Auth.Invalidate()

	body := settingsResponse{
		Settings:     h.services.Settings.Snapshot(),
		LEDModeLabel: h.services.Settings.LEDModeLabel(),
	}
	h.services.broadcastGameEvent(gateway.DeviceStream, gateway.EventTypeSettingsChanged, body)
	writeJSON(w, http.StatusAccepted, body)
}

func (h *apiHandler) saveSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Settings.Save(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) restartDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Settings.RestartDevice(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) factoryResetDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Settings.FactoryResetDevice(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.services.Auth.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) authState(w http.ResponseWriter, r *http.Request) {
	required, err := h.services.Auth.PasswordRequired(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"passwordRequired": required,
		"authenticated":    h.services.Auth.Authenticated(),
	})
}

func (h *apiHandler) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch err := h.services.Auth.Authenticate(r.Context(), body.Password); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrWrongPassword):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (h *apiHandler) logout(w http.ResponseWriter, r *http.Request) {
	h.services.Auth.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) getPrefs(w http.ResponseWriter, r *http.Request) {
	preferences, err := h.services.Prefs.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, preferences)
}

func (h *apiHandler) putPrefs(w http.ResponseWriter, r *http.Request) {
	current, err := h.services.Prefs.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	incoming := current
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preferences body")
		return
	}

	if incoming.AccentColor != current.AccentColor {
		if err := h.services.Prefs.SetAccentColor(incoming.AccentColor); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if incoming.Theme != current.Theme {
		if err := h.services.Prefs.SetTheme(incoming.Theme); err != nil {
			if errors.Is(err, prefs.ErrInvalidTheme) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if incoming.Language != current.Language {
		if err := h.services.Prefs.SetLanguage(incoming.Language); err != nil {
			if errors.Is(err, prefs.ErrInvalidLanguage) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, incoming)
}
