package settings

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestLEDModeLabel(t *testing.T) {
	cases := []struct {
		mode int
		want string
	}{
		{1, "On"},
		{2, "Fade"},
		{3, "Flash"},
		{4, "Turbo"},
		{5, "Off"},
		{0, LEDModeUnknown},
		{6, LEDModeUnknown},
		{-3, LEDModeUnknown},
	}
	for _, c := range cases {
		if got := LEDModeLabel(c.mode); got != c.want {
			t.Errorf("LEDModeLabel(%d) = %q, want %q", c.mode, got, c.want)
		}
	}
}

func TestWifiPasswordValid(t *testing.T) {
	cases := []struct {
		password string
		want     bool
	}{
		{"", true},
		{"abc", false},
		{"abcd", true},
		{strings.Repeat("x", 63), true},
		{strings.Repeat("x", 64), false},
	}
	for _, c := range cases {
		if got := WifiPasswordValid(c.password); got != c.want {
			t.Errorf("WifiPasswordValid(%q) = %v, want %v", c.password, got, c.want)
		}
	}
}

func TestMarshalPayload_StripsInvalidWifiPassword(t *testing.T) {
	snap := NewSnapshot()
	snap.DeviceName = "Goalfinder"
	snap.WifiPassword = "abc"

	body, err := snap.MarshalPayload()
	if err != nil {
		t.Fatalf("MarshalPayload() = %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if _, ok := fields["wifiPassword"]; ok {
		t.Error("invalid wifi password present in payload")
	}
	if string(fields["deviceName"]) != `"Goalfinder"` {
		t.Errorf("deviceName = %s, want \"Goalfinder\"", fields["deviceName"])
	}
}

func TestMarshalPayload_KeepsValidWifiPassword(t *testing.T) {
	snap := NewSnapshot()
	snap.WifiPassword = "correct horse"

	body, err := snap.MarshalPayload()
	if err != nil {
		t.Fatalf("MarshalPayload() = %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if string(fields["wifiPassword"]) != `"correct horse"` {
		t.Errorf("wifiPassword = %s, want \"correct horse\"", fields["wifiPassword"])
	}
}

func TestUnmarshal_AppliesDefaultsForOmittedFields(t *testing.T) {
	snap := NewSnapshot()
	raw := `{"deviceName":"Goalfinder","ledMode":2}`
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if snap.AfterHitTimeout != DefaultAfterHitTimeout {
		t.Errorf("afterHitTimeout = %d, want default %d", snap.AfterHitTimeout, DefaultAfterHitTimeout)
	}
	if snap.DistanceOnlyHitDetection {
		t.Error("distanceOnlyHitDetection should default to false")
	}
	if snap.LEDMode != 2 {
		t.Errorf("ledMode = %d, want 2", snap.LEDMode)
	}
}
