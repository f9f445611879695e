package controller

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/multicopter/pkg/core"
	"github.com/OCAP2/multicopter/pkg/multicopter"
)

const (
	testMass = 0.1
	testDt   = 0.01
)

var testGravity = mgl64.Vec3{0, -9.81, 0}

func newTestAirframe(t *testing.T) *multicopter.Airframe {
	t.Helper()
	mc, err := multicopter.New(testQuadProps())
	require.NoError(t, err)
	af, err := multicopter.NewAirframe(mc, testMass, multicopter.DiagonalInertia(0.01, 0.01, 0.01))
	require.NoError(t, err)
	return af
}

func newTestController(t *testing.T, af *multicopter.Airframe, gains Gains) *Controller {
	t.Helper()
	c, err := New(af.Multicopter, gains)
	require.NoError(t, err)
	return c
}

func TestNew_NilLayoutFails(t *testing.T) {
	c, err := New(nil, DefaultGains())
	assert.ErrorIs(t, err, multicopter.ErrDegenerateConstruction)
	assert.Nil(t, c)
}

func tick(in core.OperatorInput) core.TickContext {
	return core.TickContext{Dt: testDt, Gravity: testGravity, Input: in}
}

// fly steps the controller and a semi-implicit Euler integrator together.
func fly(t *testing.T, c *Controller, af *multicopter.Airframe, state core.KinematicState, in core.OperatorInput, seconds float64) core.KinematicState {
	t.Helper()
	weight := multicopter.ForceTorque{Force: testGravity.Mul(af.Mass())}
	for i := 0; i < int(seconds/testDt); i++ {
		out, err := c.Update(state, af.Mass(), tick(in))
		require.NoError(t, err)
		acc, err := af.Acceleration(state, out.Commands, weight)
		require.NoError(t, err)

		state.Velocity = state.Velocity.Add(acc.Linear.Mul(testDt))
		state.AngularVelocity = state.AngularVelocity.Add(acc.Angular.Mul(testDt))
		state.Position = state.Position.Add(state.Velocity.Mul(testDt))
		spin := mgl64.Quat{V: state.AngularVelocity}.Mul(state.Orientation).Scale(0.5 * testDt)
		state.Orientation = state.Orientation.Add(spin).Normalize()
	}
	return state
}

func TestUpdate_HoverEndToEnd(t *testing.T) {
	af := newTestAirframe(t)
	c := newTestController(t, af, DefaultGains())
	state := core.AtRest(mgl64.Vec3{0, 2, 0})

	out, err := c.Update(state, af.Mass(), tick(core.OperatorInput{}))
	require.NoError(t, err)

	assert.InDelta(t, testMass*9.81, out.NeededThrust, 1e-12)
	assert.False(t, out.Saturated)
	assert.Equal(t, 1.0, out.ShrinkFactor)

	hover := multicopter.HoverRate(testMass, 9.81, multicopter.DefaultThrustConstant, 4)
	require.Len(t, out.Commands, 4)
	for _, w := range out.Commands {
		assert.InDelta(t, hover, w, 1e-9)
	}

	ft, err := af.ForceTorqueAt(state, out.Commands)
	require.NoError(t, err)
	assert.InDelta(t, testMass*9.81, ft.Force.Y(), 1e-9)
	assert.InDelta(t, 0, ft.Force.X(), 1e-12)
	assert.InDelta(t, 0, ft.Force.Z(), 1e-12)
	assert.InDelta(t, 0, ft.Torque.Len(), 1e-12)
}

func TestUpdate_LatchesAltitudeOnFirstTick(t *testing.T) {
	af := newTestAirframe(t)
	c := newTestController(t, af, DefaultGains())

	_, ok := c.DesiredAltitude()
	assert.False(t, ok)

	_, err := c.Update(core.AtRest(mgl64.Vec3{1, 3.5, -2}), af.Mass(), tick(core.OperatorInput{}))
	require.NoError(t, err)

	alt, ok := c.DesiredAltitude()
	assert.True(t, ok)
	assert.Equal(t, 3.5, alt)

	// later ticks keep the latched value
	_, err = c.Update(core.AtRest(mgl64.Vec3{0, 5, 0}), af.Mass(), tick(core.OperatorInput{}))
	require.NoError(t, err)
	alt, _ = c.DesiredAltitude()
	assert.Equal(t, 3.5, alt)

	c.Reset()
	_, ok = c.DesiredAltitude()
	assert.False(t, ok)
	assert.Zero(t, c.AltitudeIntegral())
}

func TestUpdate_TiltCutoffKillsThrust(t *testing.T) {
	af := newTestAirframe(t)

	tests := []struct {
		name        string
		orientation mgl64.Quat
	}{
		{"on its side", mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})},
		{"inverted", mgl64.QuatRotate(math.Pi, mgl64.Vec3{1, 0, 0})},
		{"past cutoff", mgl64.QuatRotate(math.Acos(0.05), mgl64.Vec3{1, 0, 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t, af, DefaultGains())
			state := core.AtRest(mgl64.Vec3{0, 2, 0})
			state.Orientation = tt.orientation

			out, err := c.Update(state, af.Mass(), tick(core.OperatorInput{}))
			require.NoError(t, err)
			assert.Zero(t, out.NeededThrust)
			for _, w := range out.Commands {
				assert.Zero(t, w)
			}
		})
	}
}

func TestUpdate_TiltCompensation(t *testing.T) {
	af := newTestAirframe(t)
	c := newTestController(t, af, DefaultGains())

	state := core.AtRest(mgl64.Vec3{0, 2, 0})
	state.Orientation = mgl64.QuatRotate(math.Pi/3, mgl64.Vec3{1, 0, 0})

	out, err := c.Update(state, af.Mass(), tick(core.OperatorInput{}))
	require.NoError(t, err)
	assert.InDelta(t, 2*testMass*9.81, out.NeededThrust, 1e-9)
}

func TestUpdate_NegativeVerticalDemandKillsThrust(t *testing.T) {
	af := newTestAirframe(t)
	c := newTestController(t, af, DefaultGains())

	_, err := c.Update(core.AtRest(mgl64.Vec3{0, 2, 0}), af.Mass(), tick(core.OperatorInput{}))
	require.NoError(t, err)

	// far above the latched altitude
	out, err := c.Update(core.AtRest(mgl64.Vec3{0, 50, 0}), af.Mass(), tick(core.OperatorInput{}))
	require.NoError(t, err)
	assert.Zero(t, out.NeededThrust)
	for _, w := range out.Commands {
		assert.Zero(t, w)
	}
}

func TestUpdate_Deterministic(t *testing.T) {
	af := newTestAirframe(t)
	state := core.KinematicState{
		Position:        mgl64.Vec3{0.3, 1.8, -0.2},
		Orientation:     FromEulerYXZ(0.4, 0.05, -0.08),
		Velocity:        mgl64.Vec3{0.1, -0.2, 0},
		AngularVelocity: mgl64.Vec3{0.2, 0.1, -0.3},
	}
	in := core.OperatorInput{PitchForward: true, YawLeft: true}

	a := newTestController(t, af, DefaultGains())
	b := newTestController(t, af, DefaultGains())
	outA, err := a.Update(state, af.Mass(), tick(in))
	require.NoError(t, err)
	outB, err := b.Update(state, af.Mass(), tick(in))
	require.NoError(t, err)
	assert.Equal(t, outA, outB)

	// a zero-length tick leaves the controller state untouched
	zero := core.TickContext{Gravity: testGravity, Input: in}
	first, err := a.Update(state, af.Mass(), zero)
	require.NoError(t, err)
	second, err := a.Update(state, af.Mass(), zero)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUpdate_IntegralIsUnbounded(t *testing.T) {
	af := newTestAirframe(t)
	c := newTestController(t, af, DefaultGains())

	_, err := c.Update(core.AtRest(mgl64.Vec3{0, 2, 0}), af.Mass(), tick(core.OperatorInput{}))
	require.NoError(t, err)

	// held one metre low, the integral keeps accumulating with no clamp
	low := core.AtRest(mgl64.Vec3{0, 1, 0})
	for i := 0; i < 1000; i++ {
		_, err = c.Update(low, af.Mass(), tick(core.OperatorInput{}))
		require.NoError(t, err)
	}
	assert.InDelta(t, 1000*testDt, c.AltitudeIntegral(), 1e-9)
}

func TestUpdate_RejectsInvalidTick(t *testing.T) {
	af := newTestAirframe(t)
	c := newTestController(t, af, DefaultGains())
	state := core.AtRest(mgl64.Vec3{0, 2, 0})

	_, err := c.Update(state, af.Mass(), core.TickContext{Dt: -0.01, Gravity: testGravity})
	assert.ErrorIs(t, err, ErrInvalidTick)

	_, err = c.Update(state, af.Mass(), core.TickContext{Dt: math.NaN(), Gravity: testGravity})
	assert.ErrorIs(t, err, ErrInvalidTick)

	_, err = c.Update(state, 0, tick(core.OperatorInput{}))
	assert.ErrorIs(t, err, ErrInvalidTick)
}

func TestUpdate_OperatorSetpoints(t *testing.T) {
	af := newTestAirframe(t)
	g := DefaultGains()

	tests := []struct {
		name string
		in   core.OperatorInput
		want Setpoints
	}{
		{"idle", core.OperatorInput{}, Setpoints{Altitude: 2}},
		{"forward", core.OperatorInput{PitchForward: true}, Setpoints{Altitude: 2, Pitch: -g.BankAngle}},
		{"back", core.OperatorInput{PitchBack: true}, Setpoints{Altitude: 2, Pitch: g.BankAngle}},
		{"right", core.OperatorInput{RollRight: true}, Setpoints{Altitude: 2, Roll: -g.BankAngle}},
		{"left", core.OperatorInput{RollLeft: true}, Setpoints{Altitude: 2, Roll: g.BankAngle}},
		{"yaw left", core.OperatorInput{YawLeft: true}, Setpoints{Altitude: 2, YawRate: g.YawRate}},
		{"yaw right", core.OperatorInput{YawRight: true}, Setpoints{Altitude: 2, YawRate: -g.YawRate}},
		{"opposed keys cancel", core.OperatorInput{PitchForward: true, PitchBack: true}, Setpoints{Altitude: 2}},
		{"climb", core.OperatorInput{AltitudeUp: true}, Setpoints{Altitude: 2 + g.ClimbRate*testDt}},
		{"descend", core.OperatorInput{AltitudeDown: true}, Setpoints{Altitude: 2 - g.ClimbRate*testDt}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t, af, g)
			out, err := c.Update(core.AtRest(mgl64.Vec3{0, 2, 0}), af.Mass(), tick(tt.in))
			require.NoError(t, err)
			assert.InDelta(t, tt.want.Altitude, out.Setpoints.Altitude, 1e-12)
			assert.Equal(t, tt.want.Pitch, out.Setpoints.Pitch)
			assert.Equal(t, tt.want.Roll, out.Setpoints.Roll)
			assert.Equal(t, tt.want.YawRate, out.Setpoints.YawRate)
		})
	}
}

func TestUpdate_PitchForwardSlowsFrontRotors(t *testing.T) {
	af := newTestAirframe(t)
	c := newTestController(t, af, DefaultGains())

	out, err := c.Update(core.AtRest(mgl64.Vec3{0, 2, 0}), af.Mass(), tick(core.OperatorInput{PitchForward: true}))
	require.NoError(t, err)

	// rotors 0 and 1 are at the rear (+Z), 2 and 3 at the front
	assert.Greater(t, out.Commands[0], out.Commands[2])
	assert.Greater(t, out.Commands[1], out.Commands[3])
	assert.InDelta(t, out.Commands[0], out.Commands[1], 1e-9)
}

func TestUpdate_LargeDemandSaturates(t *testing.T) {
	af := newTestAirframe(t)
	g := DefaultGains()
	g.AttitudeP = 100
	c := newTestController(t, af, g)

	out, err := c.Update(core.AtRest(mgl64.Vec3{0, 2, 0}), af.Mass(), tick(core.OperatorInput{RollRight: true}))
	require.NoError(t, err)

	assert.True(t, out.Saturated)
	assert.Less(t, out.ShrinkFactor, 1.0)
	sum := 0.0
	for i, p := range out.Proportions {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.GreaterOrEqual(t, out.Commands[i], 0.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestClosedLoop_HoldsAltitudeAfterKick(t *testing.T) {
	af := newTestAirframe(t)
	c := newTestController(t, af, DefaultGains())

	state := core.AtRest(mgl64.Vec3{0, 2, 0})
	state.Velocity = mgl64.Vec3{0, 0.5, 0}

	state = fly(t, c, af, state, core.OperatorInput{}, 20)

	assert.InDelta(t, 2.0, state.Position.Y(), 0.1)
	assert.InDelta(t, 0, state.Velocity.Y(), 0.05)
	_, pitch, roll := EulerYXZ(state.Orientation)
	assert.InDelta(t, 0, pitch, 1e-6)
	assert.InDelta(t, 0, roll, 1e-6)
}

func TestClosedLoop_PitchForwardTracksBankAngle(t *testing.T) {
	af := newTestAirframe(t)
	g := DefaultGains()
	c := newTestController(t, af, g)

	state := fly(t, c, af, core.AtRest(mgl64.Vec3{0, 2, 0}), core.OperatorInput{PitchForward: true}, 4)

	_, pitch, roll := EulerYXZ(state.Orientation)
	assert.InDelta(t, -g.BankAngle, pitch, 0.02)
	assert.InDelta(t, 0, roll, 1e-6)
	// nose down flies toward -Z
	assert.Less(t, state.Velocity.Z(), 0.0)
	assert.InDelta(t, 2.0, state.Position.Y(), 0.25)
}
