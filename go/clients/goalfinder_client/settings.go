package goalfinder_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/goalfinder/panel/go/internal/settings"
)

// FetchSettings reads the full settings document from the device.
// Fields the firmware omits keep their defaults.
func (c *Client) FetchSettings(ctx context.Context) (settings.Snapshot, error) {
	snap := settings.NewSnapshot()

	body, err := c.Get(ctx, SettingsEndpoint)
	if err != nil {
		return snap, err
	}

	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, fmt.Errorf("failed to unmarshal settings response: %w", err)
	}

	return snap, nil
}

// SaveSettings pushes a settings payload to the device. The payload is
// produced by the settings store, which strips fields the device must
// not receive.
func (c *Client) SaveSettings(ctx context.Context, payload []byte) error {
	_, err := c.Post(ctx, SettingsEndpoint, "application/json", bytes.NewReader(payload))
	return err
}

// DevicePassword reads the password the device is protected with.
func (c *Client) DevicePassword(ctx context.Context) (string, error) {
	snap, err := c.FetchSettings(ctx)
	if err != nil {
		return "", err
	}
	return snap.DevicePassword, nil
}

// StartSound tells the device to begin playing the locator sound.
func (c *Client) StartSound(ctx context.Context) error {
	_, err := c.Post(ctx, StartEndpoint, "", nil)
	return err
}

// StopSound tells the device to stop playing the locator sound.
func (c *Client) StopSound(ctx context.Context) error {
	_, err := c.Post(ctx, StopEndpoint, "", nil)
	return err
}

// Restart reboots the device.
func (c *Client) Restart(ctx context.Context) error {
	_, err := c.Post(ctx, RestartEndpoint, "", nil)
	return err
}

// FactoryReset wipes the device configuration and reboots it.
func (c *Client) FactoryReset(ctx context.Context) error {
	_, err := c.Post(ctx, FactoryResetEndpoint, "", nil)
	return err
}
