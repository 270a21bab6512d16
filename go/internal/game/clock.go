package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrEmptyRoster is returned by Clock.Start when the game has no players.
// Turn rotation is meaningless on an empty roster.
var ErrEmptyRoster = errors.New("cannot start clock with empty roster")

// CounterSource reports the number of hit and miss events recorded by the
// device since the previous read. The device drains its counters on every
// read, so each event is observed exactly once.
type CounterSource interface {
	Hits(ctx context.Context) (int, error)
	Misses(ctx context.Context) (int, error)
}

// TickFunc observes the game state after each completed tick.
type TickFunc func(Snapshot)

// ClockConfig holds configuration for the polling clock.
type ClockConfig struct {
	Interval time.Duration
	Clock    clockwork.Clock
	OnTick   TickFunc
}

// DefaultClockConfig returns the production configuration: one tick per
// second on the wall clock.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		Interval: time.Second,
		Clock:    clockwork.NewRealClock(),
	}
}

// Clock drives a running game: once per interval it decrements the game
// timer, polls the counter source and attributes the new events to the
// active player. Ticks run on a single goroutine, so a tick that outlasts
// the interval causes later ticks to be skipped rather than interleaved.
type Clock struct {
	game *Game
	src  CounterSource
	cfg  ClockConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewClock(g *Game, src CounterSource, cfg ClockConfig) *Clock {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Clock{game: g, src: src, cfg: cfg}
}

// Start begins the tick loop and marks the game as running. Calling Start
// on an already running clock is a no-op.
func (c *Clock) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	if c.game.PlayerCount() == 0 {
		return ErrEmptyRoster
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.game.setRunning(true)

	go c.run(ctx, c.done)

	log.Debug().
		Str("game_id", c.game.ID().String()).
		Str("variant", c.game.Rules().Variant).
		Msg("game clock started")
	return nil
}

// Pause stops the tick loop and marks the game as not running. In-flight
// device requests from the current tick are cancelled. Safe to call when
// already paused.
func (c *Clock) Pause() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.game.setRunning(false)
}

// Running reports whether the tick loop is active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Clock) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := c.cfg.Clock.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.tick(ctx)
		}
	}
}

// tick performs one cycle. The end flag is re-checked after every device
// round-trip so that a game ended mid-tick discards the remaining work.
// Poll failures abandon the cycle; the next tick retries independently.
func (c *Clock) tick(ctx context.Context) {
	g := c.game
	if g.HasEnded() || !g.Running() {
		return
	}
	g.decrementTimer()

	if g.HasEnded() {
		return
	}
	hits, err := c.src.Hits(ctx)
	if err != nil {
		c.logPollErr(err, "hit")
		return
	}

	if g.HasEnded() {
		return
	}
	misses, err := c.src.Misses(ctx)
	if err != nil {
		c.logPollErr(err, "miss")
		return
	}

	if g.HasEnded() || !g.Running() {
		return
	}
	g.RecordPoll(hits, misses)

	if c.cfg.OnTick != nil {
		c.cfg.OnTick(g.State())
	}
}

func (c *Clock) logPollErr(err error, counter string) {
	if errors.Is(err, context.Canceled) {
		return
	}
	log.Warn().
		Err(err).
		Str("game_id", c.game.ID().String()).
		Str("counter", counter).
		Msg("counter poll failed, skipping tick")
}
