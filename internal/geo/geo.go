package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
)

// Arena space is Cartesian, in unreal units. Points are stored as XYZ
// geometries and trajectories as XYZM line strings whose M is the
// simulation time in seconds. Geometry data is stored in WKB.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PointZ converts a vector to a 3D point.
func PointZ(v linalg.Vec3) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: v.X, Y: v.Y},
		Z:    v.Z,
		Type: geom.DimXYZ,
	})
}

// Vec3FromPoint converts a point back to a vector. Missing Z reads as zero.
func Vec3FromPoint(p geom.Point) (linalg.Vec3, bool) {
	c, ok := p.Coordinates()
	if !ok {
		return linalg.Vec3{}, false
	}
	return linalg.Vec3{X: c.X, Y: c.Y, Z: c.Z}, true
}

// Vec3FromString parses "x,y" or "x,y,z".
func Vec3FromString(coords string) (linalg.Vec3, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return linalg.Vec3{}, ErrInvalidCoordinates
	}
	var v linalg.Vec3
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return linalg.Vec3{}, ErrInvalidCoordinates
		}
		v.Set(i, f)
	}
	if !v.IsFinite() {
		return linalg.Vec3{}, ErrInvalidCoordinates
	}
	return v, nil
}

// TrajectoryLineString encodes sample positions and times as an XYZM line
// string. At least two samples are required.
func TrajectoryLineString(samples []core.BallSample) (geom.LineString, error) {
	if len(samples) < 2 {
		return geom.LineString{}, fmt.Errorf("trajectory must have at least 2 samples, got %d", len(samples))
	}

	flat := make([]float64, 0, len(samples)*4)
	for _, s := range samples {
		flat = append(flat, s.Position.X, s.Position.Y, s.Position.Z, s.Time)
	}

	seq := geom.NewSequence(flat, geom.DimXYZM)
	return geom.NewLineString(seq), nil
}

// PathFromLineString decodes the positions and times of a trajectory line
// string. Velocities are not part of the geometry and stay zero.
func PathFromLineString(ls geom.LineString) []core.BallSample {
	seq := ls.Coordinates()
	out := make([]core.BallSample, seq.Length())
	for i := range out {
		c := seq.Get(i)
		out[i] = core.BallSample{
			Time:     c.M,
			Position: linalg.Vec3{X: c.X, Y: c.Y, Z: c.Z},
		}
	}
	return out
}

// PathLength returns the 3D length of a trajectory line string.
func PathLength(ls geom.LineString) float64 {
	seq := ls.Coordinates()
	total := 0.0
	for i := 1; i < seq.Length(); i++ {
		a, b := seq.Get(i-1), seq.Get(i)
		total += linalg.Vec3{X: a.X, Y: a.Y, Z: a.Z}.Distance(linalg.Vec3{X: b.X, Y: b.Y, Z: b.Z})
	}
	return total
}
