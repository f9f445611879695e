package multicopter

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/multicopter/pkg/core"
)

func TestNewAirframe_RejectsDegenerate(t *testing.T) {
	mc := newTestQuad(t)
	inertia := DiagonalInertia(0.01, 0.01, 0.01)

	tests := []struct {
		name    string
		mc      *Multicopter
		mass    float64
		inertia mgl64.Mat3
	}{
		{"nil layout", nil, testMass, inertia},
		{"zero mass", mc, 0, inertia},
		{"negative mass", mc, -1, inertia},
		{"NaN mass", mc, math.NaN(), inertia},
		{"infinite mass", mc, math.Inf(1), inertia},
		{"singular inertia", mc, testMass, DiagonalInertia(0.01, 0, 0.01)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAirframe(tt.mc, tt.mass, tt.inertia)
			assert.ErrorIs(t, err, ErrDegenerateConstruction)
		})
	}
}

func TestAirframe_HoverBalancesGravity(t *testing.T) {
	af, err := NewAirframe(newTestQuad(t), testMass, DiagonalInertia(0.01, 0.01, 0.01))
	require.NoError(t, err)

	omega := HoverRate(testMass, testGravity, DefaultThrustConstant, af.RotorCount())
	controls := []float64{omega, omega, omega, omega}
	gravity := ForceTorque{Force: mgl64.Vec3{0, -testMass * testGravity, 0}}

	acc, err := af.Acceleration(core.AtRest(mgl64.Vec3{0, 2, 0}), controls, gravity)
	require.NoError(t, err)
	assertVecNear(t, mgl64.Vec3{}, acc.Linear, 1e-10)
	assertVecNear(t, mgl64.Vec3{}, acc.Angular, 1e-12)
}

func TestAirframe_AccelerationWrongLength(t *testing.T) {
	af, err := NewAirframe(newTestQuad(t), testMass, DiagonalInertia(0.01, 0.01, 0.01))
	require.NoError(t, err)

	_, err = af.Acceleration(core.AtRest(mgl64.Vec3{}), []float64{1, 2}, ForceTorque{})
	assert.ErrorIs(t, err, ErrInvalidInputLength)
}

func TestAirframe_ApplyInverseInertia(t *testing.T) {
	af, err := NewAirframe(newTestQuad(t), testMass, DiagonalInertia(1, 2, 4))
	require.NoError(t, err)

	assertVecNear(t, mgl64.Vec3{1, 1, 1}, af.ApplyInverseInertia(mgl64.QuatIdent(), mgl64.Vec3{1, 2, 4}), 1e-12)

	// a quarter turn about Y swaps the world X and Z principal axes
	q := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0})
	assertVecNear(t, mgl64.Vec3{0.25, 0, 0}, af.ApplyInverseInertia(q, mgl64.Vec3{1, 0, 0}), 1e-12)
	assertVecNear(t, mgl64.Vec3{0, 0, 1}, af.ApplyInverseInertia(q, mgl64.Vec3{0, 0, 1}), 1e-12)
}

func TestHoverRate(t *testing.T) {
	omega := HoverRate(testMass, testGravity, DefaultThrustConstant, 4)
	assert.InDelta(t, testMass*testGravity, 4*DefaultThrustConstant*omega*omega, 1e-12)

	assert.Zero(t, HoverRate(testMass, testGravity, 0, 4))
	assert.Zero(t, HoverRate(testMass, testGravity, DefaultThrustConstant, 0))
}

func TestAirframe_AccelerationIdempotent(t *testing.T) {
	af, err := NewAirframe(newTestQuad(t), testMass, DiagonalInertia(0.01, 0.02, 0.015))
	require.NoError(t, err)

	state := core.KinematicState{
		Position:        mgl64.Vec3{1, 2, -3},
		Velocity:        mgl64.Vec3{0.2, -0.1, 0.4},
		AngularVelocity: mgl64.Vec3{1.5, -0.4, 2.2},
		Orientation:     mgl64.AnglesToQuat(0.3, -0.2, 0.7, mgl64.XYZ),
	}
	controls := []float64{610, 580, 655, 590}
	external := ForceTorque{Force: mgl64.Vec3{0, -testMass * testGravity, 0}}

	first, err := af.Acceleration(state, controls, external)
	require.NoError(t, err)
	second, err := af.Acceleration(state, controls, external)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
