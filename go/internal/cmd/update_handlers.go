package main

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/goalfinder/panel/go/internal/firmware"
	"github.com/goalfinder/panel/go/internal/gateway"
)

const maxFirmwareUpload = 32 << 20

type updateStatusBody struct {
	State        string `json:"state"`
	Progress     int    `json:"progress"`
	PollAttempts int    `json:"pollAttempts"`
}

func sessionStatus(session *firmware.Session) updateStatusBody {
	return updateStatusBody{
		State:        session.State().String(),
		Progress:     session.Progress(),
		PollAttempts: session.PollAttempts(),
	}
}

func updateInFlight(session *firmware.Session) bool {
	if session == nil {
		return false
	}
	switch session.State() {
	case firmware.StateSucceeded, firmware.StateFailed, firmware.StateUploadFailed:
		return false
	default:
		return true
	}
}

func (h *apiHandler) startUpdate(w http.ResponseWriter, r *http.Request) {
	s := h.services

	s.updateMu.Lock()
	if updateInFlight(s.update) {
		s.updateMu.Unlock()
		writeError(w, http.StatusConflict, "a firmware update is already in progress")
		return
	}
	s.updateMu.Unlock()

	if err := r.ParseMultipartForm(maxFirmwareUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "firmware file is required")
		return
	}
	defer file.Close()

	// The session outlives this request, so buffer the image and give
	// the session its own context.
	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read firmware file")
		return
	}

	session := s.Settings.UpdateFirmware(context.Background(), bytes.NewReader(image), int64(len(image)), firmware.Callbacks{
		OnProgress: func(percent int) {
			s.broadcastUpdateEvent(gateway.EventTypeUpdateProgress, gateway.UpdateProgressPayload{
				Percent: percent,
				State:   firmware.StateUploading.String(),
			})
		},
		OnSuccess: func() {
			s.broadcastUpdateEvent(gateway.EventTypeUpdateFinished, gateway.UpdateProgressPayload{
				Percent: 100,
				State:   firmware.StateSucceeded.String(),
			})
		},
		OnError: func() {
			s.broadcastUpdateEvent(gateway.EventTypeUpdateFinished, gateway.UpdateProgressPayload{
				State: firmware.StateFailed.String(),
			})
		},
	})

	s.updateMu.Lock()
	s.update = session
	s.updateMu.Unlock()

	log.Info().Int("size", len(image)).Str("filename", header.Filename).Msg("firmware update started")
	writeJSON(w, http.StatusAccepted, sessionStatus(session))
}

func (h *apiHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	h.services.updateMu.Lock()
	session := h.services.update
	h.services.updateMu.Unlock()

	if session == nil {
		writeJSON(w, http.StatusOK, updateStatusBody{State: firmware.StateIdle.String()})
		return
	}
	writeJSON(w, http.StatusOK, sessionStatus(session))
}

func (s *Services) broadcastUpdateEvent(eventType gateway.EventType, payload gateway.UpdateProgressPayload) {
	s.broadcastGameEvent(gateway.DeviceStream, eventType, payload)
}
