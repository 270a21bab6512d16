package game

// Player is one participant in a roster. Hits and Misses only ever grow;
// a player's history is never rewritten, the player is either on the
// roster or removed entirely.
type Player struct {
	Name   string `json:"name"`
	Hits   int    `json:"hits"`
	Misses int    `json:"misses"`
}

func (p *Player) AddHit() {
	p.Hits++
}

func (p *Player) AddMiss() {
	p.Misses++
}

// Score is the ranking key used by SortedPlayers.
func (p *Player) Score() int {
	return p.Hits - p.Misses
}
