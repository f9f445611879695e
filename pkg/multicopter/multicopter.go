// Package multicopter models the forces a set of rotors imparts on an airframe.
//
// Equations adapted from "Modelling and control of quadcopter" (Luukkonen, 2011).
// The world frame is Y-up; orientations rotate body vectors into the world frame.
package multicopter

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// ForceTorque is the net world frame force and torque on the airframe.
type ForceTorque struct {
	Force  mgl64.Vec3 `json:"force"`
	Torque mgl64.Vec3 `json:"torque"`
}

// Add returns the component-wise sum of two force/torque pairs.
func (ft ForceTorque) Add(other ForceTorque) ForceTorque {
	return ForceTorque{
		Force:  ft.Force.Add(other.Force),
		Torque: ft.Torque.Add(other.Torque),
	}
}

// Multicopter is the rotor layout of a vehicle. It is immutable after New.
type Multicopter struct {
	propellers []PropellerInfo
}

// New assembles a rotor layout. The order of propellers is the order control
// inputs must follow.
func New(propellers []PropellerInfo) (*Multicopter, error) {
	if len(propellers) == 0 {
		return nil, fmt.Errorf("%w: no rotors", ErrDegenerateConstruction)
	}
	for i, p := range propellers {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: rotor %d: %v", ErrDegenerateConstruction, i, err)
		}
	}
	props := make([]PropellerInfo, len(propellers))
	copy(props, propellers)
	return &Multicopter{propellers: props}, nil
}

// RotorCount returns the number of rotors.
func (m *Multicopter) RotorCount() int {
	return len(m.propellers)
}

// Propellers returns a copy of the rotor layout.
func (m *Multicopter) Propellers() []PropellerInfo {
	props := make([]PropellerInfo, len(m.propellers))
	copy(props, m.propellers)
	return props
}

// Propeller returns rotor i.
func (m *Multicopter) Propeller(i int) PropellerInfo {
	return m.propellers[i]
}

// BodyForceTorque sums the rotor contributions in the body frame, without
// the gyroscopic term.
func (m *Multicopter) BodyForceTorque(controls []float64) (ForceTorque, error) {
	if len(controls) != len(m.propellers) {
		return ForceTorque{}, fmt.Errorf("%w: got %d, want %d", ErrInvalidInputLength, len(controls), len(m.propellers))
	}

	var thrust, torque mgl64.Vec3
	for i, p := range m.propellers {
		force := p.Thrust(controls[i])
		thrust = thrust.Add(force)
		torque = torque.Add(p.Position.Cross(force)).Add(p.Direction.Mul(p.ReactionTorque(controls[i])))
	}
	return ForceTorque{Force: thrust, Torque: torque}, nil
}

// ForceTorque returns the net world frame force and torque for the given
// orientation, world frame angular velocity, per-rotor spin rates and body
// frame inertia tensor. The result does not include gravity.
func (m *Multicopter) ForceTorque(
	orientation mgl64.Quat,
	angularVelocity mgl64.Vec3,
	controls []float64,
	inertia mgl64.Mat3,
) (ForceTorque, error) {
	body, err := m.BodyForceTorque(controls)
	if err != nil {
		return ForceTorque{}, err
	}

	force := orientation.Rotate(body.Force)
	torque := orientation.Rotate(body.Torque).Sub(Gyroscopic(orientation, angularVelocity, inertia))
	return ForceTorque{Force: force, Torque: torque}, nil
}

// Gyroscopic returns the world frame Euler coupling term w x (I w). The body
// frame inertia is applied to the body frame angular velocity and the result
// rotated back, which equals w x (I_world w).
func Gyroscopic(orientation mgl64.Quat, angularVelocity mgl64.Vec3, inertia mgl64.Mat3) mgl64.Vec3 {
	wb := orientation.Inverse().Rotate(angularVelocity)
	return orientation.Rotate(wb.Cross(inertia.Mul3x1(wb)))
}
