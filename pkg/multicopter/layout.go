package multicopter

import "github.com/go-gl/mathgl/mgl64"

// QuadX returns a four rotor X layout with arms of length arm on each body
// axis. Rotor order is rear-right, rear-left, front-right, front-left, and
// diagonal rotors share a spin direction so reaction torques cancel.
func QuadX(arm, thrustConstant, dragConstant float64) []PropellerInfo {
	positions := []struct {
		pos  mgl64.Vec3
		spin RotationDirection
	}{
		{mgl64.Vec3{arm, 0, arm}, CounterClockwise},
		{mgl64.Vec3{-arm, 0, arm}, Clockwise},
		{mgl64.Vec3{arm, 0, -arm}, Clockwise},
		{mgl64.Vec3{-arm, 0, -arm}, CounterClockwise},
	}

	props := make([]PropellerInfo, 0, len(positions))
	for _, p := range positions {
		prop := PropellerFromPosition(p.pos)
		prop.ThrustConstant = thrustConstant
		prop.DragConstant = dragConstant
		prop.RotationDirection = p.spin
		props = append(props, prop)
	}
	return props
}

// DiagonalInertia builds a body frame inertia tensor from its principal
// moments.
func DiagonalInertia(ixx, iyy, izz float64) mgl64.Mat3 {
	return mgl64.Diag3(mgl64.Vec3{ixx, iyy, izz})
}
