package multicopter

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// RotationDirection is the spin direction of a rotor seen from above.
type RotationDirection int

const (
	CounterClockwise RotationDirection = iota
	Clockwise
)

// Sign returns +1 for counter-clockwise and -1 for clockwise rotors.
func (d RotationDirection) Sign() float64 {
	if d == Clockwise {
		return -1
	}
	return 1
}

func (d RotationDirection) String() string {
	if d == Clockwise {
		return "cw"
	}
	return "ccw"
}

// MarshalText encodes the direction as "cw" or "ccw".
func (d RotationDirection) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts "cw"/"clockwise" and "ccw"/"counterclockwise".
func (d *RotationDirection) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "cw", "clockwise":
		*d = Clockwise
	case "ccw", "counterclockwise", "counter-clockwise":
		*d = CounterClockwise
	default:
		return fmt.Errorf("unknown rotation direction %q", text)
	}
	return nil
}

// Default rotor constants used by PropellerFromPosition.
const (
	DefaultThrustConstant = 1.0e-5
	DefaultDragConstant   = 1.0e-7
)

// Up is the body frame "up" axis.
var Up = mgl64.Vec3{0, 1, 0}

// PropellerInfo is the static configuration of one rotor, expressed in the
// body frame.
type PropellerInfo struct {
	// Position is the offset of the rotor from the center of mass.
	Position mgl64.Vec3 `json:"position"`
	// Direction is the unit axis thrust acts along.
	Direction         mgl64.Vec3        `json:"direction"`
	ThrustConstant    float64           `json:"thrustConstant"`
	DragConstant      float64           `json:"dragConstant"`
	RotationDirection RotationDirection `json:"rotationDirection"`
}

// PropellerFromPosition builds an upward-thrusting counter-clockwise rotor
// at pos with the default constants.
func PropellerFromPosition(pos mgl64.Vec3) PropellerInfo {
	return PropellerInfo{
		Position:          pos,
		Direction:         Up,
		ThrustConstant:    DefaultThrustConstant,
		DragConstant:      DefaultDragConstant,
		RotationDirection: CounterClockwise,
	}
}

// Validate checks the unit direction and non-negative constants invariants.
func (p PropellerInfo) Validate() error {
	if math.Abs(p.Direction.Len()-1) > 1e-9 {
		return fmt.Errorf("thrust direction %v is not unit length", p.Direction)
	}
	if p.ThrustConstant < 0 || p.DragConstant < 0 {
		return fmt.Errorf("negative rotor constant (thrust %g, drag %g)", p.ThrustConstant, p.DragConstant)
	}
	return nil
}

// Thrust returns the body frame thrust force for spin rate omega.
// The sign of omega does not matter, only its square.
func (p PropellerInfo) Thrust(omega float64) mgl64.Vec3 {
	return p.Direction.Mul(p.ThrustConstant * omega * omega)
}

// ReactionTorque returns the signed drag reaction torque magnitude along the
// rotor axis for spin rate omega.
func (p PropellerInfo) ReactionTorque(omega float64) float64 {
	return p.RotationDirection.Sign() * p.DragConstant * omega * omega
}

// Torque returns the body frame torque contribution of the rotor: the moment
// of its thrust about the center of mass plus the reaction torque along the
// thrust axis.
func (p PropellerInfo) Torque(omega float64) mgl64.Vec3 {
	return p.Position.Cross(p.Thrust(omega)).Add(p.Direction.Mul(p.ReactionTorque(omega)))
}
