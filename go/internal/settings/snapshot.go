package settings

import (
	"encoding/json"
	"fmt"
)

// WiFi passphrase length bounds accepted by the device.
const (
	WifiPasswordMinLength = 4
	WifiPasswordMaxLength = 63
)

// DefaultAfterHitTimeout is applied when the device omits the field.
const DefaultAfterHitTimeout = 5

// LEDModeUnknown is the label for LED mode codes outside 1-5.
const LEDModeUnknown = "Unknown"

var ledModeLabels = map[int]string{
	1: "On",
	2: "Fade",
	3: "Flash",
	4: "Turbo",
	5: "Off",
}

// LEDModeLabel maps the device's numeric LED mode to its display label.
func LEDModeLabel(mode int) string {
	if label, ok := ledModeLabels[mode]; ok {
		return label
	}
	return LEDModeUnknown
}

// Snapshot mirrors the device configuration record exchanged over
// GET/POST /settings. The device is the source of truth; a Snapshot is a
// local cache of it.
type Snapshot struct {
	DeviceName     string `json:"deviceName"`
	DevicePassword string `json:"devicePassword"`
	WifiPassword   string `json:"wifiPassword"`

	Volume         int `json:"volume"`
	MetronomeSound int `json:"metronomeSound"`
	HitSound       int `json:"hitSound"`
	MissSound      int `json:"missSound"`

	LEDMode       int `json:"ledMode"`
	LEDBrightness int `json:"ledBrightness"`

	VibrationSensorSensitivity int  `json:"vibrationSensorSensitivity"`
	BallHitDetectionDistance   int  `json:"ballHitDetectionDistance"`
	DistanceOnlyHitDetection   bool `json:"distanceOnlyHitDetection"`
	AfterHitTimeout            int  `json:"afterHitTimeout"`

	ConnectedBluetoothDevices []string `json:"connectedBluetoothDevices"`
	AvailableBluetoothDevices []string `json:"availableBluetoothDevices"`

	MACAddress     string `json:"macAddress"`
	IsSoundEnabled bool   `json:"isSoundEnabled"`
	Version        string `json:"version"`
}

// NewSnapshot returns a snapshot with the documented defaults for fields
// the device may omit. Unmarshal into it to apply those defaults.
func NewSnapshot() Snapshot {
	return Snapshot{AfterHitTimeout: DefaultAfterHitTimeout}
}

// WifiPasswordValid reports whether a passphrase may be sent to the
// device: empty, or within the accepted length range.
func WifiPasswordValid(password string) bool {
	if len(password) == 0 {
		return true
	}
	return len(password) >= WifiPasswordMinLength && len(password) <= WifiPasswordMaxLength
}

// MarshalPayload serializes the snapshot for POST /settings. An
// out-of-range WiFi password is stripped from the payload entirely, so an
// invalid value is never sent to the device.
func (s Snapshot) MarshalPayload() ([]byte, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	if WifiPasswordValid(s.WifiPassword) {
		return body, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("strip wifi password: %w", err)
	}
	delete(fields, "wifiPassword")
	return json.Marshal(fields)
}
