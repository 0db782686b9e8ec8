package simulation

import (
	"math"

	"github.com/rlpredict/rlpredict/pkg/linalg"
)

// arena is the collision surface of one mode, expressed as a signed distance
// function that is positive inside the playable volume.
type arena interface {
	distance(p linalg.Vec3) float64
}

const gradientStep = 1.0

// gradient estimates the inward surface normal at p by central differences.
func gradient(a arena, p linalg.Vec3) linalg.Vec3 {
	dx := a.distance(linalg.Vec3{X: p.X + gradientStep, Y: p.Y, Z: p.Z}) - a.distance(linalg.Vec3{X: p.X - gradientStep, Y: p.Y, Z: p.Z})
	dy := a.distance(linalg.Vec3{X: p.X, Y: p.Y + gradientStep, Z: p.Z}) - a.distance(linalg.Vec3{X: p.X, Y: p.Y - gradientStep, Z: p.Z})
	dz := a.distance(linalg.Vec3{X: p.X, Y: p.Y, Z: p.Z + gradientStep}) - a.distance(linalg.Vec3{X: p.X, Y: p.Y, Z: p.Z - gradientStep})
	return linalg.Vec3{X: dx, Y: dy, Z: dz}.Normalize()
}

// roundedBox is an axis aligned box resting on z=0 whose edges are filleted
// with radius r, so walls curve into the floor and ceiling.
type roundedBox struct {
	half   linalg.Vec3 // half extents; half.Z is half the height
	radius float64
}

func (b roundedBox) distance(p linalg.Vec3) float64 {
	qx := math.Abs(p.X) - (b.half.X - b.radius)
	qy := math.Abs(p.Y) - (b.half.Y - b.radius)
	qz := math.Abs(p.Z-b.half.Z) - (b.half.Z - b.radius)

	ox, oy, oz := math.Max(qx, 0), math.Max(qy, 0), math.Max(qz, 0)
	outside := math.Sqrt(ox*ox + oy*oy + oz*oz)
	inside := math.Min(math.Max(qx, math.Max(qy, qz)), 0)

	return -(outside + inside - b.radius)
}

// goalBox is the volume behind one goal line. side is +1 for the goal at
// positive y and -1 for the one at negative y.
type goalBox struct {
	side      float64
	line      float64 // |y| of the goal line
	halfWidth float64
	height    float64
	depth     float64
}

// goalOverlap is how far the goal volume reaches into the field. It must
// exceed the wall fillet plus the largest ball radius so the fillet never
// rises out of the floor in front of the goal mouth.
const goalOverlap = WallFilletRadius + 144.0

func (g goalBox) distance(p linalg.Vec3) float64 {
	y := g.side * p.Y
	d := g.halfWidth - math.Abs(p.X)
	d = math.Min(d, g.line+g.depth-y)
	d = math.Min(d, y-(g.line-goalOverlap))
	d = math.Min(d, p.Z)
	d = math.Min(d, g.height-p.Z)
	return d
}

type soccarArena struct {
	box    roundedBox
	corner float64 // |x|+|y| of the diagonal corner walls
	goals  [2]goalBox
}

func (a soccarArena) distance(p linalg.Vec3) float64 {
	field := math.Min(a.box.distance(p), (a.corner-math.Abs(p.X)-math.Abs(p.Y))/math.Sqrt2)
	return math.Max(field, math.Max(a.goals[0].distance(p), a.goals[1].distance(p)))
}

type hoopsArena struct {
	box roundedBox
}

func (a hoopsArena) distance(p linalg.Vec3) float64 {
	return a.box.distance(p)
}

// hexArena is a hexagonal prism with flat sides facing the goal ends.
type hexArena struct {
	apothem float64
	height  float64
	normals [6]linalg.Vec3
}

func newHexArena(apothem, height float64) hexArena {
	h := hexArena{apothem: apothem, height: height}
	for k := range h.normals {
		angle := math.Pi/2 + float64(k)*math.Pi/3
		h.normals[k] = linalg.Vec3{X: math.Cos(angle), Y: math.Sin(angle)}
	}
	return h
}

func (a hexArena) distance(p linalg.Vec3) float64 {
	d := math.Min(p.Z, a.height-p.Z)
	flat := linalg.Vec3{X: p.X, Y: p.Y}
	for _, n := range a.normals {
		d = math.Min(d, a.apothem-flat.Dot(n))
	}
	return d
}
