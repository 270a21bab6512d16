package game

// Rules parameterizes a game variant. The two shipped variants differ only
// in round duration and in what a hit, a miss and a timeout do to the
// timer and the turn cursor, so both run on the same engine.
type Rules struct {
	Variant string

	// PlayDuration is the timer value in seconds after every reset.
	PlayDuration int

	// RotateOnEvent resets the timer and advances the turn cursor once per
	// attributed hit or miss unit.
	RotateOnEvent bool

	// MissOnTimeout awards the active player a miss when the timer runs out.
	MissOnTimeout bool

	// CountMissesWithHits tallies polled misses even when the same tick also
	// reported hits. When false, misses only count on hit-free ticks.
	CountMissesWithHits bool
}

var (
	// ShotChallenge: every hit or miss ends the active player's turn, and
	// letting the timer run out costs a miss.
	ShotChallenge = Rules{
		Variant:       "shot-challenge",
		PlayDuration:  60,
		RotateOnEvent: true,
		MissOnTimeout: true,
	}

	// TimedShotsChallenge: each player shoots freely for a fixed window,
	// turns rotate only when the window expires.
	TimedShotsChallenge = Rules{
		Variant:             "timed-shots-challenge",
		PlayDuration:        120,
		CountMissesWithHits: true,
	}
)

// RulesFor resolves a variant name to its rules.
func RulesFor(variant string) (Rules, bool) {
	switch variant {
	case ShotChallenge.Variant:
		return ShotChallenge, true
	case TimedShotsChallenge.Variant:
		return TimedShotsChallenge, true
	default:
		return Rules{}, false
	}
}
