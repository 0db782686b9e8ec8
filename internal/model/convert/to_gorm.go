// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rlpredict/rlpredict/internal/geo"
	"github.com/rlpredict/rlpredict/internal/model"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func vec3ToVector(v linalg.Vec3) model.Vector {
	return model.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

func rotatorToRotation(r linalg.Rotator) model.Rotation {
	return model.Rotation{Pitch: r.Pitch, Yaw: r.Yaw, Roll: r.Roll}
}

// CoreToSession converts a core.Session to a GORM model.Session.
// core.Session.ID maps to the embedded gorm.Model ID.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		Model:     gorm.Model{ID: s.ID},
		Mode:      s.Mode,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Frames:    s.Frames,
	}
}

// CoreToGoals converts the active goals of a field info record.
func CoreToGoals(sessionID uint, info core.FieldInfo) []model.Goal {
	n := min(info.NumGoals, len(info.Goals))
	goals := make([]model.Goal, 0, n)
	for _, g := range info.Goals[:n] {
		goals = append(goals, model.Goal{
			SessionID: sessionID,
			Team:      uint8(g.TeamNum),
			Location:  geo.PointZ(g.Location),
			Direction: vec3ToVector(g.Direction),
			Width:     float32(g.Width),
			Height:    float32(g.Height),
		})
	}
	return goals
}

// CoreToBoostPads converts the active boost pads of a field info record.
// Index keeps the host's pad order.
func CoreToBoostPads(sessionID uint, info core.FieldInfo) []model.BoostPad {
	n := min(info.NumBoosts, len(info.BoostPads))
	pads := make([]model.BoostPad, 0, n)
	for i, p := range info.BoostPads[:n] {
		pads = append(pads, model.BoostPad{
			SessionID: sessionID,
			Index:     uint16(i),
			Location:  geo.PointZ(p.Location),
			Full:      p.IsFullBoost,
		})
	}
	return pads
}

// CoreToBallState converts a core.BallState to a GORM model.BallState.
func CoreToBallState(b core.BallState) model.BallState {
	return model.BallState{
		SessionID:       b.SessionID,
		Frame:           b.Frame,
		Time:            b.Time,
		Position:        geo.PointZ(b.Position),
		Velocity:        vec3ToVector(b.Velocity),
		AngularVelocity: vec3ToVector(b.AngularVelocity),
	}
}

// CoreToCarState converts a core.CarState to a GORM model.CarState.
func CoreToCarState(c core.CarState) model.CarState {
	return model.CarState{
		SessionID:       c.SessionID,
		Frame:           c.Frame,
		Time:            c.Time,
		Slot:            uint8(c.Slot),
		SpawnID:         c.SpawnID,
		Name:            c.Name,
		Team:            uint8(c.Team),
		Position:        geo.PointZ(c.Position),
		Rotation:        rotatorToRotation(c.Rotation),
		Velocity:        vec3ToVector(c.Velocity),
		AngularVelocity: vec3ToVector(c.AngularVelocity),
		Boost:           float32(c.Boost),
		Demolished:      c.Demolished,
		Jumped:          c.Jumped,
		DoubleJumped:    c.DoubleJumped,
		Dodged:          c.Dodged,
		SuperSonic:      c.SuperSonic,
		OnGround:        c.OnGround,
	}
}

// CoreToPrediction converts a core.Prediction to a GORM model.Prediction.
// Positions go to the LineStringZM path; the full samples are kept as JSON.
func CoreToPrediction(p core.Prediction) (model.Prediction, error) {
	samples, err := json.Marshal(p.Samples)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("error marshaling samples: %w", err)
	}

	result := model.Prediction{
		SessionID:     p.SessionID,
		Frame:         p.Frame,
		StartTime:     p.StartTime,
		Dt:            p.Dt,
		Samples:       datatypes.JSON(samples),
		ComputeTimeMs: float32(p.ComputeTime.Seconds() * 1000),
	}
	if n := len(p.Samples); n > 0 {
		result.Horizon = p.Samples[n-1].Time - p.StartTime
	}
	if len(p.Samples) >= 2 {
		ls, err := geo.TrajectoryLineString(p.Samples)
		if err != nil {
			return model.Prediction{}, err
		}
		result.Path = ls.AsGeometry()
	}
	if p.Goal != nil {
		result.GoalTeam = sql.NullInt32{Int32: int32(p.Goal.Team), Valid: true}
		result.GoalTime = sql.NullFloat64{Float64: p.Goal.Time, Valid: true}
	}
	return result, nil
}

// CoreToDriftSample converts a core.DriftSample to a GORM model.DriftSample.
func CoreToDriftSample(d core.DriftSample) model.DriftSample {
	return model.DriftSample{
		SessionID:       d.SessionID,
		Frame:           d.Frame,
		Time:            d.Time,
		PredictionFrame: d.PredictionFrame,
		Lookahead:       float32(d.Lookahead),
		PositionError:   float32(d.PositionError),
		VelocityError:   float32(d.VelocityError),
	}
}
