// pkg/core/input.go
package core

import (
	"fmt"
	"strings"
)

// Key is a discrete operator command.
type Key int

const (
	KeyPitchForward Key = iota
	KeyPitchBack
	KeyRollLeft
	KeyRollRight
	KeyYawLeft
	KeyYawRight
	KeyAltitudeUp
	KeyAltitudeDown
	KeyReset
	KeyPause
)

var keyNames = map[Key]string{
	KeyPitchForward: "pitch_forward",
	KeyPitchBack:    "pitch_back",
	KeyRollLeft:     "roll_left",
	KeyRollRight:    "roll_right",
	KeyYawLeft:      "yaw_left",
	KeyYawRight:     "yaw_right",
	KeyAltitudeUp:   "altitude_up",
	KeyAltitudeDown: "altitude_down",
	KeyReset:        "reset",
	KeyPause:        "pause",
}

func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("key(%d)", int(k))
}

// ParseKey resolves a key name such as "pitch_forward".
func ParseKey(name string) (Key, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range keyNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown key %q", name)
}

// UnmarshalText lets keys be decoded from scripts and config by name.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText encodes the key by name.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// OperatorInput is a key-down/key-up snapshot of operator commands.
type OperatorInput struct {
	PitchForward bool `json:"pitchForward"`
	PitchBack    bool `json:"pitchBack"`
	RollLeft     bool `json:"rollLeft"`
	RollRight    bool `json:"rollRight"`
	YawLeft      bool `json:"yawLeft"`
	YawRight     bool `json:"yawRight"`
	AltitudeUp   bool `json:"altitudeUp"`
	AltitudeDown bool `json:"altitudeDown"`
	Reset        bool `json:"reset"`
	Pause        bool `json:"pause"`
}

// Set records key as held (down) or released.
func (in *OperatorInput) Set(key Key, down bool) {
	switch key {
	case KeyPitchForward:
		in.PitchForward = down
	case KeyPitchBack:
		in.PitchBack = down
	case KeyRollLeft:
		in.RollLeft = down
	case KeyRollRight:
		in.RollRight = down
	case KeyYawLeft:
		in.YawLeft = down
	case KeyYawRight:
		in.YawRight = down
	case KeyAltitudeUp:
		in.AltitudeUp = down
	case KeyAltitudeDown:
		in.AltitudeDown = down
	case KeyReset:
		in.Reset = down
	case KeyPause:
		in.Pause = down
	}
}

// Axis returns +1 when only positive is held, -1 when only negative is held
// and 0 otherwise.
func Axis(positive, negative bool) float64 {
	switch {
	case positive && !negative:
		return 1
	case negative && !positive:
		return -1
	default:
		return 0
	}
}
