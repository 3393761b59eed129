package transformsync

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Vec3 is a 3-component vector used for position and scale.
type Vec3 struct {
	X, Y, Z float64
}

// Quat is a unit quaternion used for rotation. Producers must normalize;
// the interpolation kernel does not enforce it.
type Quat = quat.Number

// LerpUnclamped linearly interpolates between a and b. t outside [0,1] is
// valid and extrapolates.
func LerpUnclamped(a, b, t float64) float64 {
	return a + (b-a)*t
}

// InverseLerpUnclamped returns the t such that LerpUnclamped(a, b, t) == v.
// Undefined when a == b; callers must guarantee a < b.
func InverseLerpUnclamped(a, b, v float64) float64 {
	return (v - a) / (b - a)
}

// Vec3LerpUnclamped linearly interpolates each component independently.
func Vec3LerpUnclamped(a, b Vec3, t float64) Vec3 {
	return Vec3{
		X: LerpUnclamped(a.X, b.X, t),
		Y: LerpUnclamped(a.Y, b.Y, t),
		Z: LerpUnclamped(a.Z, b.Z, t),
	}
}

// quatDot returns the 4-component dot product of two quaternions.
func quatDot(a, b Quat) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// quatScale multiplies every component of q by s.
func quatScale(q Quat, s float64) Quat {
	return Quat{Real: q.Real * s, Imag: q.Imag * s, Jmag: q.Jmag * s, Kmag: q.Kmag * s}
}

// quatAdd adds two quaternions component-wise.
func quatAdd(a, b Quat) Quat {
	return Quat{Real: a.Real + b.Real, Imag: a.Imag + b.Imag, Jmag: a.Jmag + b.Jmag, Kmag: a.Kmag + b.Kmag}
}

// SlerpUnclamped performs spherical interpolation between two unit
// quaternions. Unlike a clamped slerp, t may fall outside [0,1]: this
// extrapolates the rotation along the same great-circle arc, which is why
// it (not quaternion lerp) is used for snapshot extrapolation — lerp skews
// extrapolated angles, slerp does not.
func SlerpUnclamped(q0, q1 Quat, t float64) Quat {
	dot := quatDot(q0, q1)

	// Take the shorter arc: if the dot product is negative, the
	// quaternions represent the same rotation but point "the long way
	// around", so negate one side.
	if dot < 0 {
		q1 = quatScale(q1, -1)
		dot = -dot
	}

	const closeThreshold = 0.9995
	if dot > closeThreshold {
		// Nearly identical rotations: fall back to a linear blend to
		// avoid dividing by a near-zero sin(theta). For small angles
		// this is numerically indistinguishable from slerp, including
		// at the extrapolated t values this package produces.
		result := quatAdd(q0, quatScale(quatAdd(q1, quatScale(q0, -1)), t))
		return result
	}

	theta0 := math.Acos(clamp(dot, -1, 1))
	sinTheta0 := math.Sin(theta0)
	theta := theta0 * t
	sinTheta := math.Sin(theta)

	s0 := math.Cos(theta) - dot*sinTheta/sinTheta0
	s1 := sinTheta / sinTheta0

	return quatAdd(quatScale(q0, s0), quatScale(q1, s1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
