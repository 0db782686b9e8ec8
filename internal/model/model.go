package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&Goal{},
	&BoostPad{},
	&BallState{},
	&CarState{},
	&Prediction{},
	&DriftSample{},
	&Performance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// Performance is one status snapshot taken by the monitor
type Performance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_performance_time"`
	SessionID           uint              `json:"sessionId" gorm:"index:idx_performance_session_id"`
	Session             Session           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	BufferLengths       BufferLengths     `json:"bufferLengths" gorm:"embedded;embeddedPrefix:buffer_"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	Frames              uint64            `json:"frames"`
	StepMicros          float32           `json:"stepMicros"`       // mean duration of one ball step
	LastPredictionMs    float32           `json:"lastPredictionMs"` // duration of the latest full-horizon prediction
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*Performance) TableName() string {
	return "performances"
}

// BufferLengths counts events waiting in the dispatcher's buffered handlers
type BufferLengths struct {
	Packets uint16 `json:"packets"`
}

// WriteQueueLengths counts rows waiting for the storage writer
type WriteQueueLengths struct {
	BallStates   uint16 `json:"ballStates"`
	CarStates    uint16 `json:"carStates"`
	Predictions  uint16 `json:"predictions"`
	DriftSamples uint16 `json:"driftSamples"`
}

// Vector is an embeddable 3-component value stored as three float columns
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotation is an embeddable Euler orientation in radians
type Rotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

////////////////////////
// SESSION DATA
////////////////////////

// Session is one run of the simulator against a configured arena
type Session struct {
	gorm.Model
	Mode      string    `json:"mode" gorm:"size:32"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Frames    uint64    `json:"frames"` // packets ingested
}

func (*Session) TableName() string {
	return "sessions"
}

// Goal is a goal mouth loaded from the host's field info
type Goal struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint       `json:"sessionId" gorm:"index:idx_goal_session_id"`
	Session   Session    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Team      uint8      `json:"team"`
	Location  geom.Point `json:"location" gorm:"type:geometry"`
	Direction Vector     `json:"direction" gorm:"embedded;embeddedPrefix:dir_"`
	Width     float32    `json:"width"`
	Height    float32    `json:"height"`
}

func (*Goal) TableName() string {
	return "goals"
}

// BoostPad is a boost pad loaded from the host's field info
type BoostPad struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint       `json:"sessionId" gorm:"index:idx_boostpad_session_id"`
	Session   Session    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Index     uint16     `json:"index"`
	Location  geom.Point `json:"location" gorm:"type:geometry"`
	Full      bool       `json:"full" gorm:"default:false"`
}

func (*BoostPad) TableName() string {
	return "boost_pads"
}

// BallState is the authoritative ball after one ingested packet
type BallState struct {
	ID              uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID       uint       `json:"sessionId" gorm:"index:idx_ballstate_session_id"`
	Session         Session    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Frame           uint64     `json:"frame" gorm:"index:idx_ballstate_frame"`
	Time            float64    `json:"time"` // game seconds elapsed
	Position        geom.Point `json:"position" gorm:"type:geometry"`
	Velocity        Vector     `json:"velocity" gorm:"embedded;embeddedPrefix:vel_"`
	AngularVelocity Vector     `json:"angularVelocity" gorm:"embedded;embeddedPrefix:angvel_"`
}

func (*BallState) TableName() string {
	return "ball_states"
}

// CarState is one car slot after one ingested packet
type CarState struct {
	ID              uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID       uint       `json:"sessionId" gorm:"index:idx_carstate_session_id"`
	Session         Session    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Frame           uint64     `json:"frame" gorm:"index:idx_carstate_frame"`
	Time            float64    `json:"time"`
	Slot            uint8      `json:"slot"`
	SpawnID         int32      `json:"spawnId" gorm:"index:idx_carstate_spawn_id"`
	Name            string     `json:"name" gorm:"size:64"`
	Team            uint8      `json:"team"`
	Position        geom.Point `json:"position" gorm:"type:geometry"`
	Rotation        Rotation   `json:"rotation" gorm:"embedded;embeddedPrefix:rot_"`
	Velocity        Vector     `json:"velocity" gorm:"embedded;embeddedPrefix:vel_"`
	AngularVelocity Vector     `json:"angularVelocity" gorm:"embedded;embeddedPrefix:angvel_"`
	Boost           float32    `json:"boost"`
	Demolished      bool       `json:"demolished" gorm:"default:false"`
	Jumped          bool       `json:"jumped" gorm:"default:false"`
	DoubleJumped    bool       `json:"doubleJumped" gorm:"default:false"`
	Dodged          bool       `json:"dodged" gorm:"default:false"`
	SuperSonic      bool       `json:"superSonic" gorm:"default:false"`
	OnGround        bool       `json:"onGround" gorm:"default:false"`
}

func (*CarState) TableName() string {
	return "car_states"
}

// Prediction is a ball trajectory computed from the ball of one frame
type Prediction struct {
	ID            uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID     uint            `json:"sessionId" gorm:"index:idx_prediction_session_id"`
	Session       Session         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Frame         uint64          `json:"frame" gorm:"index:idx_prediction_frame"`
	StartTime     float64         `json:"startTime"`
	Dt            float64         `json:"dt"`
	Horizon       float64         `json:"horizon"`
	Path          geom.Geometry   `json:"-" gorm:"type:geometry"` // LineStringZM of positions over time [x,y,z,time]
	Samples       datatypes.JSON  `json:"samples"`
	ComputeTimeMs float32         `json:"computeTimeMs"`
	GoalTeam      sql.NullInt32   `json:"goalTeam" gorm:"default:NULL"` // team defending the goal the ball enters, if any
	GoalTime      sql.NullFloat64 `json:"goalTime" gorm:"default:NULL"`
}

func (*Prediction) TableName() string {
	return "predictions"
}

// DriftSample compares an earlier prediction against a later authoritative ball
type DriftSample struct {
	ID              uint    `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID       uint    `json:"sessionId" gorm:"index:idx_drift_session_id"`
	Session         Session `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Frame           uint64  `json:"frame"`
	Time            float64 `json:"time"`
	PredictionFrame uint64  `json:"predictionFrame"`
	Lookahead       float32 `json:"lookahead"`     // seconds between the prediction and this frame
	PositionError   float32 `json:"positionError"` // uu
	VelocityError   float32 `json:"velocityError"` // uu/s
}

func (*DriftSample) TableName() string {
	return "drift_samples"
}
