package multicopter

import (
	"fmt"
	"math"

	"github.com/OCAP2/multicopter/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// inertiaDetEpsilon is the smallest |det(I)| accepted as invertible.
const inertiaDetEpsilon = 1e-12

// Acceleration is the world frame linear and angular acceleration of the
// airframe.
type Acceleration struct {
	Linear  mgl64.Vec3 `json:"linear"`
	Angular mgl64.Vec3 `json:"angular"`
}

// Airframe couples a rotor layout with the rigid-body properties needed to
// turn force and torque into acceleration.
type Airframe struct {
	*Multicopter
	mass       float64
	inertia    mgl64.Mat3
	invInertia mgl64.Mat3
}

// NewAirframe validates mass and the body frame inertia tensor. A non-positive
// mass or a singular inertia tensor is a degenerate construction.
func NewAirframe(mc *Multicopter, mass float64, inertia mgl64.Mat3) (*Airframe, error) {
	if mc == nil {
		return nil, fmt.Errorf("%w: no rotor layout", ErrDegenerateConstruction)
	}
	if !(mass > 0) || math.IsInf(mass, 0) {
		return nil, fmt.Errorf("%w: mass %g", ErrDegenerateConstruction, mass)
	}
	if det := inertia.Det(); math.Abs(det) < inertiaDetEpsilon || math.IsNaN(det) {
		return nil, fmt.Errorf("%w: inertia tensor is not invertible (det %g)", ErrDegenerateConstruction, det)
	}
	return &Airframe{
		Multicopter: mc,
		mass:        mass,
		inertia:     inertia,
		invInertia:  inertia.Inv(),
	}, nil
}

// Mass returns the vehicle mass in kg.
func (a *Airframe) Mass() float64 { return a.mass }

// Inertia returns the body frame inertia tensor.
func (a *Airframe) Inertia() mgl64.Mat3 { return a.inertia }

// InverseInertia returns the cached inverse of the body frame inertia tensor.
func (a *Airframe) InverseInertia() mgl64.Mat3 { return a.invInertia }

// ForceTorqueAt evaluates the rotor forces for a kinematic state.
func (a *Airframe) ForceTorqueAt(state core.KinematicState, controls []float64) (ForceTorque, error) {
	return a.ForceTorque(state.Orientation, state.AngularVelocity, controls, a.inertia)
}

// Acceleration is the alternate formulation: the rotor force and torque plus
// the external terms (gravity, contact response) divided through by mass and
// the world frame inertia.
func (a *Airframe) Acceleration(state core.KinematicState, controls []float64, external ForceTorque) (Acceleration, error) {
	ft, err := a.ForceTorqueAt(state, controls)
	if err != nil {
		return Acceleration{}, err
	}
	ft = ft.Add(external)
	return Acceleration{
		Linear:  ft.Force.Mul(1 / a.mass),
		Angular: a.ApplyInverseInertia(state.Orientation, ft.Torque),
	}, nil
}

// ApplyInverseInertia maps a world frame torque (or angular impulse) through
// R * I^-1 * R^T.
func (a *Airframe) ApplyInverseInertia(orientation mgl64.Quat, torque mgl64.Vec3) mgl64.Vec3 {
	body := orientation.Inverse().Rotate(torque)
	return orientation.Rotate(a.invInertia.Mul3x1(body))
}

// HoverRate is the spin rate at which rotors identical in thrust constant
// kT carry mass m against gravity g between them.
func HoverRate(mass, g, kT float64, rotors int) float64 {
	if rotors <= 0 || kT <= 0 {
		return 0
	}
	return math.Sqrt(mass * g / float64(rotors) / kT)
}
