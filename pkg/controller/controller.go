// Package controller implements a cascaded altitude-hold and attitude-hold
// flight controller that turns operator set-points into rotor spin rates.
package controller

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OCAP2/multicopter/pkg/core"
	"github.com/OCAP2/multicopter/pkg/multicopter"
)

// ErrInvalidTick is returned for a tick with a negative or non-finite
// duration, or a non-positive vehicle mass.
var ErrInvalidTick = errors.New("invalid controller tick")

// Gains are the controller tuning constants.
type Gains struct {
	AltitudeP float64 `json:"altitudeP" mapstructure:"altitudeP"`
	AltitudeI float64 `json:"altitudeI" mapstructure:"altitudeI"`
	AltitudeD float64 `json:"altitudeD" mapstructure:"altitudeD"`

	AttitudeP float64 `json:"attitudeP" mapstructure:"attitudeP"`
	AttitudeD float64 `json:"attitudeD" mapstructure:"attitudeD"`
	YawP      float64 `json:"yawP" mapstructure:"yawP"`
	YawD      float64 `json:"yawD" mapstructure:"yawD"`

	BankAngle float64 `json:"bankAngle" mapstructure:"bankAngle"` // rad, while a pitch/roll key is held
	YawRate   float64 `json:"yawRate" mapstructure:"yawRate"`     // rad/s, while a yaw key is held
	ClimbRate float64 `json:"climbRate" mapstructure:"climbRate"` // m/s of desired altitude change

	// TiltCutoff is the smallest cosine between body up and world up at
	// which thrust is still commanded.
	TiltCutoff float64 `json:"tiltCutoff" mapstructure:"tiltCutoff"`
}

// DefaultGains are tuned for the 100 g, 5 cm arm quad of the example layout.
func DefaultGains() Gains {
	return Gains{
		AltitudeP:  1.0,
		AltitudeI:  0.1,
		AltitudeD:  0.8,
		AttitudeP:  0.3,
		AttitudeD:  0.15,
		YawP:       0.5,
		YawD:       0.5,
		BankAngle:  0.2,
		YawRate:    1.0,
		ClimbRate:  1.0,
		TiltCutoff: 0.1,
	}
}

// Setpoints are the continuous targets derived from operator input.
type Setpoints struct {
	Altitude float64 `json:"altitude"`
	Pitch    float64 `json:"pitch"`
	Roll     float64 `json:"roll"`
	Yaw      float64 `json:"yaw"`
	YawRate  float64 `json:"yawRate"`
}

// Output is the result of one controller tick.
type Output struct {
	Commands     []float64 `json:"commands"`    // rad/s per rotor, in rotor order
	Proportions  []float64 `json:"proportions"` // thrust share per rotor after scaling
	NeededThrust float64   `json:"neededThrust"`
	Setpoints    Setpoints `json:"setpoints"`
	Yaw          float64   `json:"yaw"`
	Pitch        float64   `json:"pitch"`
	Roll         float64   `json:"roll"`
	Saturated    bool      `json:"saturated"`
	ShrinkFactor float64   `json:"shrinkFactor"`
}

// Controller holds the per-vehicle controller state. It is not safe for
// concurrent use; each vehicle owns its own Controller.
type Controller struct {
	gains      Gains
	mixer      Mixer
	propellers []multicopter.PropellerInfo

	hasDesiredAltitude bool
	desiredAltitude    float64
	altitudeIntegral   float64
}

// New creates a controller for the rotor layout of mc. A nil layout fails
// with multicopter.ErrDegenerateConstruction.
func New(mc *multicopter.Multicopter, gains Gains) (*Controller, error) {
	if mc == nil {
		return nil, fmt.Errorf("%w: no rotor layout", multicopter.ErrDegenerateConstruction)
	}
	props := mc.Propellers()
	return &Controller{
		gains:      gains,
		mixer:      NewMixer(props),
		propellers: props,
	}, nil
}

// Gains returns the tuning constants in use.
func (c *Controller) Gains() Gains { return c.gains }

// Mixer returns the mixing matrix derived from the rotor layout.
func (c *Controller) Mixer() Mixer { return c.mixer }

// DesiredAltitude returns the latched altitude set-point and whether it has
// been latched yet.
func (c *Controller) DesiredAltitude() (float64, bool) {
	return c.desiredAltitude, c.hasDesiredAltitude
}

// AltitudeIntegral returns the accumulated altitude error.
func (c *Controller) AltitudeIntegral() float64 { return c.altitudeIntegral }

// Reset clears the altitude latch and the integral accumulator.
func (c *Controller) Reset() {
	c.hasDesiredAltitude = false
	c.desiredAltitude = 0
	c.altitudeIntegral = 0
}

// Update runs one control tick against the previous tick's settled state and
// returns the rotor commands for this tick.
func (c *Controller) Update(state core.KinematicState, mass float64, tc core.TickContext) (Output, error) {
	if tc.Dt < 0 || math.IsNaN(tc.Dt) || math.IsInf(tc.Dt, 0) {
		return Output{}, fmt.Errorf("%w: dt %g", ErrInvalidTick, tc.Dt)
	}
	if !(mass > 0) {
		return Output{}, fmt.Errorf("%w: mass %g", ErrInvalidTick, mass)
	}

	up := worldUp(tc)
	altitude := state.Position.Dot(up)

	if !c.hasDesiredAltitude {
		c.desiredAltitude = altitude
		c.hasDesiredAltitude = true
	}

	yaw, pitch, roll := EulerYXZ(state.Orientation)
	sp := c.setpoints(yaw, tc)

	needed := c.neededThrust(state, up, altitude, mass, tc)

	// attitude PD in the body frame
	wb := state.Orientation.Inverse().Rotate(state.AngularVelocity)
	pitchTorque := c.gains.AttitudeP*(sp.Pitch-pitch) - c.gains.AttitudeD*wb.X()
	rollTorque := c.gains.AttitudeP*(sp.Roll-roll) - c.gains.AttitudeD*wb.Z()
	yawTorque := c.gains.YawP*wrapAngle(sp.Yaw-yaw) + c.gains.YawD*(sp.YawRate-wb.Y())

	offsets := c.mixer.Mix(pitchTorque, rollTorque, yawTorque)
	proportions, shrink := Saturate(offsets, c.mixer.Baseline())

	commands := make([]float64, len(c.propellers))
	for i, p := range c.propellers {
		share := needed * proportions[i]
		if p.ThrustConstant <= 0 || share <= 0 {
			continue
		}
		commands[i] = math.Sqrt(share / p.ThrustConstant)
	}

	return Output{
		Commands:     commands,
		Proportions:  proportions,
		NeededThrust: needed,
		Setpoints:    sp,
		Yaw:          yaw,
		Pitch:        pitch,
		Roll:         roll,
		Saturated:    shrink < 1,
		ShrinkFactor: shrink,
	}, nil
}

// setpoints maps the operator snapshot onto continuous targets and advances
// the desired altitude.
func (c *Controller) setpoints(yaw float64, tc core.TickContext) Setpoints {
	in := tc.Input
	c.desiredAltitude += core.Axis(in.AltitudeUp, in.AltitudeDown) * c.gains.ClimbRate * tc.Dt

	return Setpoints{
		Altitude: c.desiredAltitude,
		// nose down to fly forward (-Z)
		Pitch: -core.Axis(in.PitchForward, in.PitchBack) * c.gains.BankAngle,
		// bank toward +X to fly right
		Roll:    -core.Axis(in.RollRight, in.RollLeft) * c.gains.BankAngle,
		Yaw:     yaw,
		YawRate: core.Axis(in.YawLeft, in.YawRight) * c.gains.YawRate,
	}
}

// neededThrust runs the altitude PID and tilt compensation. The integral is
// not bounded.
func (c *Controller) neededThrust(state core.KinematicState, up mgl64.Vec3, altitude, mass float64, tc core.TickContext) float64 {
	err := c.desiredAltitude - altitude
	c.altitudeIntegral += err * tc.Dt
	climb := state.Velocity.Dot(up)

	vertical := c.gains.AltitudeP*err +
		c.gains.AltitudeI*c.altitudeIntegral -
		c.gains.AltitudeD*climb -
		mass*tc.Gravity.Dot(up)

	tilt := state.Orientation.Rotate(multicopter.Up).Dot(up)
	if tilt <= c.gains.TiltCutoff || vertical < 0 {
		return 0
	}
	return vertical / tilt
}

// worldUp is opposite to gravity, or the Y axis in zero gravity.
func worldUp(tc core.TickContext) mgl64.Vec3 {
	if g := tc.Gravity.Len(); g > 0 {
		return tc.Gravity.Mul(-1 / g)
	}
	return core.WorldUp
}
