package goalfinder_client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Hits returns the number of hits registered since the previous read.
// Reading the counter resets it on the device.
func (c *Client) Hits(ctx context.Context) (int, error) {
	return c.readCounter(ctx, HitsEndpoint)
}

// Misses returns the number of misses registered since the previous read.
// Reading the counter resets it on the device.
func (c *Client) Misses(ctx context.Context) (int, error) {
	return c.readCounter(ctx, MissesEndpoint)
}

func (c *Client) readCounter(ctx context.Context, endpoint string) (int, error) {
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return 0, err
	}

	count, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse counter response %q: %w", string(body), err)
	}

	return count, nil
}
