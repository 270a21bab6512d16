package game

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrPlayerIndex is returned when a player index is outside the roster.
var ErrPlayerIndex = errors.New("player index out of range")

// Game is a timed-turn game over an ordered roster of players. Roster
// order is insertion order and defines turn rotation; the selected index
// is the cursor of the currently active player.
type Game struct {
	mu       sync.Mutex
	id       uuid.UUID
	rules    Rules
	players  []*Player
	selected int
	timer    int
	running  bool
	hasEnded bool
}

// Snapshot is a copy of the observable game state, safe to serialize.
type Snapshot struct {
	ID                  string   `json:"id"`
	Variant             string   `json:"variant"`
	Running             bool     `json:"running"`
	HasEnded            bool     `json:"hasEnded"`
	Timer               int      `json:"timer"`
	SelectedPlayerIndex int      `json:"selectedPlayerIndex"`
	Players             []Player `json:"players"`
}

func New(rules Rules) *Game {
	return &Game{
		id:    uuid.New(),
		rules: rules,
		timer: rules.PlayDuration,
	}
}

func (g *Game) ID() uuid.UUID {
	return g.id
}

func (g *Game) Rules() Rules {
	return g.rules
}

// AddPlayer appends a player to the roster. Names are the natural key:
// adding a name that is already present is a no-op.
func (g *Game) AddPlayer(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.players {
		if p.Name == name {
			return
		}
	}
	g.players = append(g.players, &Player{Name: name})
}

// RemovePlayer removes the player at index and resets the game: cursor to
// 0, timer to the variant duration, stopped, end flag cleared.
func (g *Game) RemovePlayer(index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if index < 0 || index >= len(g.players) {
		return ErrPlayerIndex
	}
	g.players = append(g.players[:index], g.players[index+1:]...)
	g.resetLocked()
	return nil
}

func (g *Game) Players() []Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.copyPlayersLocked()
}

func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

// SortedPlayers returns the roster ordered by descending hits-misses.
// The sort is stable so tied players keep their roster order.
func (g *Game) SortedPlayers() []Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	sorted := g.copyPlayersLocked()
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score() > sorted[j].Score()
	})
	return sorted
}

// AddHitToPlayer records a hit for the player at index, bypassing the
// clock. Used by free-play modes.
func (g *Game) AddHitToPlayer(index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if index < 0 || index >= len(g.players) {
		return ErrPlayerIndex
	}
	g.players[index].AddHit()
	return nil
}

// AddMissToPlayer records a miss for the player at index, bypassing the
// clock.
func (g *Game) AddMissToPlayer(index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if index < 0 || index >= len(g.players) {
		return ErrPlayerIndex
	}
	g.players[index].AddMiss()
	return nil
}

func (g *Game) Timer() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timer
}

func (g *Game) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *Game) HasEnded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasEnded
}

func (g *Game) SelectedPlayerIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selected
}

// End marks the game as finished; subsequent ticks abort early until
// Reset clears the flag.
func (g *Game) End() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hasEnded = true
}

// Reset returns timer and cursor to initial values, stops the game and
// clears the end flag. Tallies are kept.
func (g *Game) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

// RecordPoll applies one tick's polled counters: replays each hit and
// miss unit against the active player per the variant rules, then handles
// an expired timer. Counts are events since the previous poll.
func (g *Game) RecordPoll(hits, misses int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if hits > 0 {
		for i := 0; i < hits; i++ {
			if p := g.selectedLocked(); p != nil {
				p.AddHit()
			}
			if g.rules.RotateOnEvent {
				g.timer = g.rules.PlayDuration
				g.advanceTurnLocked()
			}
		}
	}
	if misses > 0 && (hits == 0 || g.rules.CountMissesWithHits) {
		for i := 0; i < misses; i++ {
			if p := g.selectedLocked(); p != nil {
				p.AddMiss()
			}
			if g.rules.RotateOnEvent {
				g.timer = g.rules.PlayDuration
				g.advanceTurnLocked()
			}
		}
	}

	if g.timer <= 0 {
		if g.rules.MissOnTimeout {
			if p := g.selectedLocked(); p != nil {
				p.AddMiss()
			}
		}
		g.timer = g.rules.PlayDuration
		g.advanceTurnLocked()
	}
}

// State returns a copy of the full observable state.
func (g *Game) State() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		ID:                  g.id.String(),
		Variant:             g.rules.Variant,
		Running:             g.running,
		HasEnded:            g.hasEnded,
		Timer:               g.timer,
		SelectedPlayerIndex: g.selected,
		Players:             g.copyPlayersLocked(),
	}
}

func (g *Game) setRunning(running bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = running
}

func (g *Game) decrementTimer() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timer--
}

func (g *Game) resetLocked() {
	g.selected = 0
	g.running = false
	g.hasEnded = false
	g.timer = g.rules.PlayDuration
}

func (g *Game) advanceTurnLocked() {
	g.selected++
	if g.selected >= len(g.players) {
		g.selected = 0
	}
}

func (g *Game) selectedLocked() *Player {
	if g.selected < 0 || g.selected >= len(g.players) {
		return nil
	}
	return g.players[g.selected]
}

func (g *Game) copyPlayersLocked() []Player {
	players := make([]Player, len(g.players))
	for i, p := range g.players {
		players[i] = *p
	}
	return players
}
