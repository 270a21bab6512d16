package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrWrongPassword   = errors.New("wrong device password")
	ErrTooManyAttempts = errors.New("too many failed attempts, try again later")
)

// DeviceAuth is the slice of the device API the guard needs.
type DeviceAuth interface {
	IsAuth(ctx context.Context) (bool, error)
	DevicePassword(ctx context.Context) (string, error)
}

type GuardConfig struct {
	MaxAttempts int
	CoolDown    time.Duration
	Clock       clockwork.Clock
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxAttempts: 5,
		CoolDown:    30 * time.Second,
		Clock:       clockwork.NewRealClock(),
	}
}

// Guard gates the panel behind the device password. The device exposes
// whether it is protected and what the password is; the comparison
// happens here because the firmware has no login endpoint.
type Guard struct {
	device DeviceAuth
	cfg    GuardConfig

	mu            sync.Mutex
	protected     *bool
	authenticated bool
	failures      int
	lockedUntil   time.Time
}

func NewGuard(device DeviceAuth, cfg GuardConfig) *Guard {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultGuardConfig().MaxAttempts
	}
	return &Guard{device: device, cfg: cfg}
}

// PasswordRequired reports whether the device demands a password. The
// answer is cached until Invalidate is called.
func (g *Guard) PasswordRequired(ctx context.Context) (bool, error) {
	g.mu.Lock()
	if g.protected != nil {
		required := *g.protected
		g.mu.Unlock()
		return required, nil
	}
	g.mu.Unlock()

	required, err := g.device.IsAuth(ctx)
	if err != nil {
		return false, err
	}

	g.mu.Lock()
	g.protected = &required
	if !required {
		g.authenticated = true
	}
	g.mu.Unlock()
	return required, nil
}

// Invalidate drops the cached protection flag. Call it after settings
// changes that may have set or cleared the device password.
func (g *Guard) Invalidate() {
	g.mu.Lock()
	g.protected = nil
	g.mu.Unlock()
}

// Authenticate checks the given password against the device. Repeated
// failures trip a cool-down during which the device is not contacted.
func (g *Guard) Authenticate(ctx context.Context, password string) error {
	g.mu.Lock()
	if !g.lockedUntil.IsZero() && g.cfg.Clock.Now().Before(g.lockedUntil) {
		g.mu.Unlock()
		return ErrTooManyAttempts
	}
	g.mu.Unlock()

	want, err := g.device.DevicePassword(ctx)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if subtle.ConstantTimeCompare([]byte(password), []byte(want)) != 1 {
		g.failures++
		if g.failures >= g.cfg.MaxAttempts {
			g.lockedUntil = g.cfg.Clock.Now().Add(g.cfg.CoolDown)
			g.failures = 0
			log.Warn().Dur("cool_down", g.cfg.CoolDown).Msg("Too many failed login attempts, locking out")
		}
		return ErrWrongPassword
	}

	g.authenticated = true
	g.failures = 0
	g.lockedUntil = time.Time{}
	return nil
}

// Authenticated reports whether the current session has passed the
// password check (or no password is required).
func (g *Guard) Authenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authenticated
}

func (g *Guard) Logout() {
	g.mu.Lock()
	g.authenticated = false
	g.mu.Unlock()
}
