// pkg/core/state.go
package core

import "github.com/go-gl/mathgl/mgl64"

// WorldUp is the world frame "up" axis.
var WorldUp = mgl64.Vec3{0, 1, 0}

// KinematicState is the pose and velocity of a vehicle in the world frame.
// It is owned by whoever integrates the vehicle; the flight core only reads it.
type KinematicState struct {
	Position        mgl64.Vec3 `json:"position"`
	Orientation     mgl64.Quat `json:"orientation"` // body to world
	Velocity        mgl64.Vec3 `json:"velocity"`
	AngularVelocity mgl64.Vec3 `json:"angularVelocity"`
}

// AtRest returns a level, motionless state at position.
func AtRest(position mgl64.Vec3) KinematicState {
	return KinematicState{
		Position:    position,
		Orientation: mgl64.QuatIdent(),
	}
}

// Altitude is the height along world up.
func (s KinematicState) Altitude() float64 {
	return s.Position.Dot(WorldUp)
}

// BodyAngularVelocity returns the angular velocity expressed in the body frame.
func (s KinematicState) BodyAngularVelocity() mgl64.Vec3 {
	return s.Orientation.Inverse().Rotate(s.AngularVelocity)
}

// TickContext carries everything a tick needs that is not vehicle state, so
// the flight core has no ambient dependencies.
type TickContext struct {
	Dt      float64       // elapsed tick duration in seconds
	Gravity mgl64.Vec3    // gravitational acceleration, world frame
	Input   OperatorInput // operator command snapshot for this vehicle
}

// GravityMagnitude returns |g|.
func (c TickContext) GravityMagnitude() float64 {
	return c.Gravity.Len()
}
