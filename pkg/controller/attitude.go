package controller

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// EulerYXZ decomposes orientation as R = Ry(yaw) * Rx(pitch) * Rz(roll).
// Pitch is about body X, yaw about body Y and roll about body Z.
func EulerYXZ(q mgl64.Quat) (yaw, pitch, roll float64) {
	m := q.Normalize().Mat4().Mat3()
	sp := -m.At(1, 2)
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch = math.Asin(sp)
	yaw = math.Atan2(m.At(0, 2), m.At(2, 2))
	roll = math.Atan2(m.At(1, 0), m.At(1, 1))
	return yaw, pitch, roll
}

// FromEulerYXZ is the inverse of EulerYXZ.
func FromEulerYXZ(yaw, pitch, roll float64) mgl64.Quat {
	qy := mgl64.QuatRotate(yaw, mgl64.Vec3{0, 1, 0})
	qx := mgl64.QuatRotate(pitch, mgl64.Vec3{1, 0, 0})
	qz := mgl64.QuatRotate(roll, mgl64.Vec3{0, 0, 1})
	return qy.Mul(qx).Mul(qz)
}

// wrapAngle maps an angle into [-pi, pi].
func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
