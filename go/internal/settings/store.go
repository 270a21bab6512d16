package settings

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/goalfinder/panel/go/internal/firmware"
)

// DeviceAPI is the slice of the device client the store depends on.
type DeviceAPI interface {
	FetchSettings(ctx context.Context) (Snapshot, error)
	SaveSettings(ctx context.Context, payload []byte) error
	StartSound(ctx context.Context) error
	StopSound(ctx context.Context) error
	Restart(ctx context.Context) error
	FactoryReset(ctx context.Context) error
}

// FirmwareUpdater starts firmware update sessions; see firmware.Service.
type FirmwareUpdater interface {
	Update(ctx context.Context, file io.Reader, size int64, cb firmware.Callbacks) *firmware.Session
}

// StoreConfig holds configuration for the sync store.
type StoreConfig struct {
	Clock clockwork.Clock
	// SaveDebounce is the quiet window after the last edit before a
	// scheduled save fires.
	SaveDebounce time.Duration
	// SaveTimeout bounds a debounced save's device round-trips.
	SaveTimeout time.Duration
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Clock:        clockwork.NewRealClock(),
		SaveDebounce: 500 * time.Millisecond,
		SaveTimeout:  10 * time.Second,
	}
}

// Store is the bidirectional cache of the device configuration: pull on
// Load, coalesced push on edits. A single instance is shared by all panel
// surfaces; settings edits are last-write-wins.
type Store struct {
	api     DeviceAPI
	updater FirmwareUpdater
	cfg     StoreConfig

	mu           sync.Mutex
	snap         Snapshot
	ledModeLabel string
	loading      bool
	saving       bool
	saveTimer    clockwork.Timer
}

func NewStore(api DeviceAPI, updater FirmwareUpdater, cfg StoreConfig) *Store {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.SaveDebounce <= 0 {
		cfg.SaveDebounce = 500 * time.Millisecond
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}
	return &Store{
		api:          api,
		updater:      updater,
		cfg:          cfg,
		snap:         NewSnapshot(),
		ledModeLabel: LEDModeUnknown,
	}
}

// Snapshot returns a copy of the cached configuration.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// LEDModeLabel returns the display label derived from the cached LED mode.
func (s *Store) LEDModeLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledModeLabel
}

// Edit mutates the cached snapshot under the store lock and schedules a
// debounced push to the device.
func (s *Store) Edit(mutate func(*Snapshot)) {
	s.mu.Lock()
	mutate(&s.snap)
	s.ledModeLabel = LEDModeLabel(s.snap.LEDMode)
	s.mu.Unlock()
	s.ScheduleSave()
}

// Load fetches the full configuration and replaces every cached field in
// one step. A failed fetch leaves the cache untouched.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	snap, err := s.api.FetchSettings(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("settings load failed, keeping cached values")
		return fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	s.snap = snap
	s.ledModeLabel = LEDModeLabel(snap.LEDMode)
	s.mu.Unlock()

	log.Debug().Str("device", snap.DeviceName).Str("version", snap.Version).Msg("settings loaded")
	return nil
}

// Save pushes the whole cached snapshot as one request, then signals the
// device to start or stop sound depending on the sound flag. A Save while
// a Load or another Save is in flight is dropped.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.loading || s.saving {
		s.mu.Unlock()
		return nil
	}
	s.saving = true
	snap := s.snap
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.saving = false
		s.mu.Unlock()
	}()

	payload, err := snap.MarshalPayload()
	if err != nil {
		return err
	}
	if err := s.api.SaveSettings(ctx, payload); err != nil {
		log.Warn().Err(err).Msg("settings save failed")
		return fmt.Errorf("save settings: %w", err)
	}

	if snap.IsSoundEnabled {
		err = s.api.StartSound(ctx)
	} else {
		err = s.api.StopSound(ctx)
	}
	if err != nil {
		log.Warn().Err(err).Bool("sound_enabled", snap.IsSoundEnabled).Msg("sound toggle failed")
		return fmt.Errorf("toggle sound: %w", err)
	}
	return nil
}

// ScheduleSave restarts the debounce window; only the last call within
// the window results in an actual Save. Calls during a Load are dropped.
func (s *Store) ScheduleSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return
	}
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = s.cfg.Clock.AfterFunc(s.cfg.SaveDebounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SaveTimeout)
		defer cancel()
		if err := s.Save(ctx); err != nil {
			log.Warn().Err(err).Msg("debounced save failed")
		}
	})
}

// RestartDevice flushes pending edits with an immediate save, then issues
// the restart command. The restart is issued even if the save fails, as
// the cached values are retried on the next edit.
func (s *Store) RestartDevice(ctx context.Context) error {
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()

	if err := s.Save(ctx); err != nil {
		log.Warn().Err(err).Msg("save before restart failed")
	}
	if err := s.api.Restart(ctx); err != nil {
		return fmt.Errorf("restart device: %w", err)
	}
	return nil
}

// FactoryResetDevice issues the reset command directly, without flushing
// pending saves.
func (s *Store) FactoryResetDevice(ctx context.Context) error {
	if err := s.api.FactoryReset(ctx); err != nil {
		return fmt.Errorf("factory reset device: %w", err)
	}
	return nil
}

// UpdateFirmware starts a firmware update session for the given binary.
// Callbacks are optional and each fires at most once.
func (s *Store) UpdateFirmware(ctx context.Context, file io.Reader, size int64, cb firmware.Callbacks) *firmware.Session {
	return s.updater.Update(ctx, file, size, cb)
}
