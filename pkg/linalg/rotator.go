package linalg

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Rotator is an Euler orientation in radians as reported by the host.
type Rotator struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// IsFinite reports whether all three angles are finite.
func (r Rotator) IsFinite() bool {
	return isFinite(r.Pitch) && isFinite(r.Yaw) && isFinite(r.Roll)
}

// Matrix returns the orientation as a rotation matrix whose columns are the
// forward, left and up axes of the rotated body.
func (r Rotator) Matrix() mgl64.Mat3 {
	cp, sp := math.Cos(r.Pitch), math.Sin(r.Pitch)
	cy, sy := math.Cos(r.Yaw), math.Sin(r.Yaw)
	cr, sr := math.Cos(r.Roll), math.Sin(r.Roll)

	forward := mgl64.Vec3{cp * cy, cp * sy, sp}
	left := mgl64.Vec3{cy*sp*sr - cr*sy, sy*sp*sr + cr*cy, -cp * sr}
	up := mgl64.Vec3{-cr*cy*sp - sr*sy, -cr*sy*sp + sr*cy, cp * cr}

	return mgl64.Mat3FromCols(forward, left, up)
}
