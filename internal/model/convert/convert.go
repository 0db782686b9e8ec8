package convert

import (
	"encoding/json"
	"time"

	"github.com/rlpredict/rlpredict/internal/geo"
	"github.com/rlpredict/rlpredict/internal/model"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
)

func vectorToVec3(v model.Vector) linalg.Vec3 {
	return linalg.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:        s.ID,
		Mode:      s.Mode,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Frames:    s.Frames,
	}
}

// BallStateToCore converts a GORM BallState to a core.BallState.
func BallStateToCore(b model.BallState) core.BallState {
	pos, _ := geo.Vec3FromPoint(b.Position)
	return core.BallState{
		SessionID:       b.SessionID,
		Frame:           b.Frame,
		Time:            b.Time,
		Position:        pos,
		Velocity:        vectorToVec3(b.Velocity),
		AngularVelocity: vectorToVec3(b.AngularVelocity),
	}
}

// CarStateToCore converts a GORM CarState to a core.CarState.
func CarStateToCore(c model.CarState) core.CarState {
	pos, _ := geo.Vec3FromPoint(c.Position)
	return core.CarState{
		SessionID:       c.SessionID,
		Frame:           c.Frame,
		Time:            c.Time,
		Slot:            int(c.Slot),
		SpawnID:         c.SpawnID,
		Name:            c.Name,
		Team:            int(c.Team),
		Position:        pos,
		Rotation:        linalg.Rotator{Pitch: c.Rotation.Pitch, Yaw: c.Rotation.Yaw, Roll: c.Rotation.Roll},
		Velocity:        vectorToVec3(c.Velocity),
		AngularVelocity: vectorToVec3(c.AngularVelocity),
		Boost:           float64(c.Boost),
		Demolished:      c.Demolished,
		Jumped:          c.Jumped,
		DoubleJumped:    c.DoubleJumped,
		Dodged:          c.Dodged,
		SuperSonic:      c.SuperSonic,
		OnGround:        c.OnGround,
	}
}

// PredictionToCore converts a GORM Prediction to a core.Prediction.
// Samples come from the JSON column; when it is empty the positions are
// recovered from the path geometry.
func PredictionToCore(p model.Prediction) core.Prediction {
	result := core.Prediction{
		SessionID:   p.SessionID,
		Frame:       p.Frame,
		StartTime:   p.StartTime,
		Dt:          p.Dt,
		ComputeTime: time.Duration(float64(p.ComputeTimeMs) * float64(time.Millisecond)),
	}

	if len(p.Samples) > 0 {
		_ = json.Unmarshal(p.Samples, &result.Samples)
	}
	if len(result.Samples) == 0 {
		if ls, ok := p.Path.AsLineString(); ok {
			result.Samples = geo.PathFromLineString(ls)
		}
	}

	if p.GoalTeam.Valid {
		goal := &core.PredictedGoal{Team: int(p.GoalTeam.Int32)}
		if p.GoalTime.Valid {
			goal.Time = p.GoalTime.Float64
		}
		for _, s := range result.Samples {
			if s.Time >= goal.Time {
				goal.Position = s.Position
				break
			}
		}
		result.Goal = goal
	}
	return result
}

// DriftSampleToCore converts a GORM DriftSample to a core.DriftSample.
func DriftSampleToCore(d model.DriftSample) core.DriftSample {
	return core.DriftSample{
		SessionID:       d.SessionID,
		Frame:           d.Frame,
		Time:            d.Time,
		PredictionFrame: d.PredictionFrame,
		Lookahead:       float64(d.Lookahead),
		PositionError:   float64(d.PositionError),
		VelocityError:   float64(d.VelocityError),
	}
}
