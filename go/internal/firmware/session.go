package firmware

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State is the update session's position in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateUploading
	StateUploadFailed
	StateWaitingForReboot
	StatePolling
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateUploadFailed:
		return "upload-failed"
	case StateWaitingForReboot:
		return "waiting-for-reboot"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Callbacks notify the caller of session milestones. All fields are
// optional; OnSuccess and OnError are mutually exclusive and fire at most
// once per session.
type Callbacks struct {
	OnProgress func(percent int)
	OnSuccess  func()
	OnError    func()
}

// Device is the slice of the device client an update session needs.
type Device interface {
	UploadFirmware(ctx context.Context, r io.Reader) error
	UpdateStatus(ctx context.Context) (bool, error)
}

// Config holds the session timing parameters.
type Config struct {
	// RebootGrace is the delay between upload completion and the first
	// status poll, covering the device's network-stack restart.
	RebootGrace time.Duration
	// PollInterval separates consecutive status polls.
	PollInterval time.Duration
	// PollTimeout bounds a single status poll.
	PollTimeout time.Duration
	// MaxPollAttempts is the poll budget before the session fails.
	MaxPollAttempts int
	Clock           clockwork.Clock
}

func DefaultConfig() Config {
	return Config{
		RebootGrace:     5 * time.Second,
		PollInterval:    2 * time.Second,
		PollTimeout:     3 * time.Second,
		MaxPollAttempts: 30,
		Clock:           clockwork.NewRealClock(),
	}
}

// Session is one firmware update attempt: upload the binary, wait out the
// device reboot, then poll the update status until success or the attempt
// budget runs out. A session is single-use.
type Session struct {
	device Device
	cfg    Config
	cb     Callbacks

	mu             sync.Mutex
	state          State
	progress       int
	uploadComplete bool
	pollAttempts   int
	notified       bool
}

func NewSession(device Device, cfg Config, cb Callbacks) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Session{device: device, cfg: cfg, cb: cb, state: StateIdle}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress is the upload progress in percent, 0-100, monotonic.
func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Session) PollAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollAttempts
}

// Run executes the session to a terminal state. Cancelling the context
// abandons the session between steps without firing any callback.
func (s *Session) Run(ctx context.Context, file io.Reader, size int64) {
	s.setState(StateUploading)

	err := s.device.UploadFirmware(ctx, &progressReader{
		r:      file,
		total:  size,
		report: s.reportProgress,
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if !s.isUploadComplete() {
			log.Warn().Err(err).Msg("firmware upload failed")
			s.finish(StateUploadFailed)
			return
		}
		// The device drops the connection while applying the image; an
		// error after 100% is the reboot, not a failure.
		log.Debug().Err(err).Msg("upload connection closed after completion")
	}

	s.setState(StateWaitingForReboot)
	if !s.sleep(ctx, s.cfg.RebootGrace) {
		return
	}

	s.setState(StatePolling)
	for attempt := 1; attempt <= s.cfg.MaxPollAttempts; attempt++ {
		s.mu.Lock()
		s.pollAttempts = attempt
		s.mu.Unlock()

		pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		ok, err := s.device.UpdateStatus(pollCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err == nil && ok {
			log.Info().Int("attempts", attempt).Msg("firmware update confirmed")
			s.finish(StateSucceeded)
			return
		}
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("update status poll failed")
		}
		if attempt == s.cfg.MaxPollAttempts {
			break
		}
		if !s.sleep(ctx, s.cfg.PollInterval) {
			return
		}
	}

	log.Warn().Int("attempts", s.cfg.MaxPollAttempts).Msg("firmware update not confirmed")
	s.finish(StateFailed)
}

func (s *Session) reportProgress(percent int) {
	s.mu.Lock()
	if percent <= s.progress {
		s.mu.Unlock()
		return
	}
	s.progress = percent
	if percent >= 100 {
		s.uploadComplete = true
	}
	onProgress := s.cb.OnProgress
	s.mu.Unlock()

	if onProgress != nil {
		onProgress(percent)
	}
}

func (s *Session) isUploadComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadComplete
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// finish moves to a terminal state and fires the matching callback once.
func (s *Session) finish(state State) {
	s.mu.Lock()
	s.state = state
	already := s.notified
	s.notified = true
	s.mu.Unlock()
	if already {
		return
	}

	switch state {
	case StateSucceeded:
		if s.cb.OnSuccess != nil {
			s.cb.OnSuccess()
		}
	default:
		if s.cb.OnError != nil {
			s.cb.OnError()
		}
	}
}

// sleep waits d on the session clock; false means the context was
// cancelled first.
func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	timer := s.cfg.Clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}

// progressReader reports upload progress as the HTTP transport consumes
// the firmware binary. Reported percentages only ever increase.
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	report func(percent int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.total > 0 {
			percent := int(p.sent * 100 / p.total)
			if percent > 100 {
				percent = 100
			}
			p.report(percent)
		}
	}
	if err == io.EOF {
		p.report(100)
	}
	return n, err
}
