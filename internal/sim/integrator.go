package sim

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OCAP2/multicopter/pkg/core"
	"github.com/OCAP2/multicopter/pkg/multicopter"
)

// Integrator advances rigid-body state. The rotor force and torque are
// applied as impulses over the tick, gravity is added to the velocity and the
// orientation follows the quaternion derivative.
type Integrator struct {
	Gravity mgl64.Vec3
}

// Step returns the state after dt seconds under ft.
func (ig Integrator) Step(state core.KinematicState, af *multicopter.Airframe, ft multicopter.ForceTorque, dt float64) core.KinematicState {
	linearImpulse := ft.Force.Mul(dt)
	angularImpulse := ft.Torque.Mul(dt)

	state.Velocity = state.Velocity.
		Add(linearImpulse.Mul(1 / af.Mass())).
		Add(ig.Gravity.Mul(dt))
	state.AngularVelocity = state.AngularVelocity.Add(af.ApplyInverseInertia(state.Orientation, angularImpulse))

	state.Position = state.Position.Add(state.Velocity.Mul(dt))
	state.Orientation = integrateOrientation(state.Orientation, state.AngularVelocity, dt)
	return state
}

// integrateOrientation applies dq/dt = 1/2 * w * q and renormalizes.
func integrateOrientation(q mgl64.Quat, w mgl64.Vec3, dt float64) mgl64.Quat {
	spin := mgl64.Quat{V: w}.Mul(q).Scale(0.5 * dt)
	return q.Add(spin).Normalize()
}

// finite reports whether every component of the state is a real number.
func finite(s core.KinematicState) bool {
	vals := []float64{
		s.Position.X(), s.Position.Y(), s.Position.Z(),
		s.Velocity.X(), s.Velocity.Y(), s.Velocity.Z(),
		s.AngularVelocity.X(), s.AngularVelocity.Y(), s.AngularVelocity.Z(),
		s.Orientation.W, s.Orientation.V.X(), s.Orientation.V.Y(), s.Orientation.V.Z(),
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
