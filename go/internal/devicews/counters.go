package devicews

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	hitsCommand   = "hits"
	missesCommand = "misses"
)

// CounterSource reads hit and miss counters over the device socket
// instead of the HTTP API. It satisfies the game clock's source
// interface, so a game can poll over whichever transport is up.
type CounterSource struct {
	channel *Channel
}

func NewCounterSource(channel *Channel) *CounterSource {
	return &CounterSource{channel: channel}
}

func (s *CounterSource) Hits(ctx context.Context) (int, error) {
	return s.ask(ctx, hitsCommand)
}

func (s *CounterSource) Misses(ctx context.Context) (int, error) {
	return s.ask(ctx, missesCommand)
}

func (s *CounterSource) ask(ctx context.Context, command string) (int, error) {
	body, err := s.channel.Request(ctx, []byte(command))
	if err != nil {
		return 0, err
	}

	count, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s response %q: %w", command, string(body), err)
	}

	return count, nil
}
