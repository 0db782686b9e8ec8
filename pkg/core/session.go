package core

import (
	"time"

	"github.com/rlpredict/rlpredict/pkg/linalg"
)

// Session is one run against a configured arena.
type Session struct {
	ID        uint      `json:"id"`
	Mode      string    `json:"mode"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Frames    uint64    `json:"frames"`
}

// BallState is the authoritative ball after an ingested packet.
type BallState struct {
	SessionID       uint        `json:"sessionId"`
	Frame           uint64      `json:"frame"`
	Time            float64     `json:"time"`
	Position        linalg.Vec3 `json:"position"`
	Velocity        linalg.Vec3 `json:"velocity"`
	AngularVelocity linalg.Vec3 `json:"angularVelocity"`
}

// CarState is one car slot after an ingested packet.
type CarState struct {
	SessionID       uint           `json:"sessionId"`
	Frame           uint64         `json:"frame"`
	Time            float64        `json:"time"`
	Slot            int            `json:"slot"`
	SpawnID         int32          `json:"spawnId"`
	Name            string         `json:"name"`
	Team            int            `json:"team"`
	Position        linalg.Vec3    `json:"position"`
	Rotation        linalg.Rotator `json:"rotation"`
	Velocity        linalg.Vec3    `json:"velocity"`
	AngularVelocity linalg.Vec3    `json:"angularVelocity"`
	Boost           float64        `json:"boost"`
	Demolished      bool           `json:"demolished"`
	Jumped          bool           `json:"jumped"`
	DoubleJumped    bool           `json:"doubleJumped"`
	Dodged          bool           `json:"dodged"`
	SuperSonic      bool           `json:"superSonic"`
	OnGround        bool           `json:"onGround"`
}

// BallSample is one point on a predicted trajectory.
type BallSample struct {
	Time            float64     `json:"time"`
	Position        linalg.Vec3 `json:"position"`
	Velocity        linalg.Vec3 `json:"velocity"`
	AngularVelocity linalg.Vec3 `json:"angularVelocity"`
}

// Prediction is a trajectory computed from the ball of one frame.
type Prediction struct {
	SessionID   uint           `json:"sessionId"`
	Frame       uint64         `json:"frame"`
	StartTime   float64        `json:"startTime"`
	Dt          float64        `json:"dt"`
	Samples     []BallSample   `json:"samples"`
	Goal        *PredictedGoal `json:"goal,omitempty"`
	ComputeTime time.Duration  `json:"computeTime"`
}

// PredictedGoal is the first goal mouth a trajectory enters. Team is the
// team that defends it.
type PredictedGoal struct {
	Team     int         `json:"team"`
	Time     float64     `json:"time"`
	Position linalg.Vec3 `json:"position"`
}

// DriftSample compares an earlier prediction against an observed ball.
type DriftSample struct {
	SessionID       uint    `json:"sessionId"`
	Frame           uint64  `json:"frame"`
	Time            float64 `json:"time"`
	PredictionFrame uint64  `json:"predictionFrame"`
	Lookahead       float64 `json:"lookahead"`
	PositionError   float64 `json:"positionError"`
	VelocityError   float64 `json:"velocityError"`
}

// ExportMetadata describes a finished file export.
type ExportMetadata struct {
	Mode        string    `json:"mode"`
	StartTime   time.Time `json:"startTime"`
	Frames      uint64    `json:"frames"`
	Predictions int       `json:"predictions"`
	Path        string    `json:"path"`
}
