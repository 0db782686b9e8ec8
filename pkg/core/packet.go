package core

import "github.com/rlpredict/rlpredict/pkg/linalg"

// Physics is the rigid body block shared by ball and car records.
type Physics struct {
	Location        linalg.Vec3    `json:"location"`
	Rotation        linalg.Rotator `json:"rotation"`
	Velocity        linalg.Vec3    `json:"velocity"`
	AngularVelocity linalg.Vec3    `json:"angular_velocity"`
}

// BallInfo is the per-tick ball record.
type BallInfo struct {
	Physics        Physics              `json:"physics"`
	CollisionShape CollisionShapeRecord `json:"collision_shape"`
}

// GameInfo carries the global per-tick constants.
type GameInfo struct {
	SecondsElapsed    float64 `json:"seconds_elapsed"`
	GameTimeRemaining float64 `json:"game_time_remaining"`
	IsOvertime        bool    `json:"is_overtime"`
	IsRoundActive     bool    `json:"is_round_active"`
	IsKickoffPause    bool    `json:"is_kickoff_pause"`
	IsMatchEnded      bool    `json:"is_match_ended"`
	WorldGravityZ     float64 `json:"world_gravity_z"`
	GameSpeed         float64 `json:"game_speed"`
	FrameNum          int64   `json:"frame_num"`
}

// PlayerInfo is the per-tick car record.
type PlayerInfo struct {
	Physics         Physics              `json:"physics"`
	IsDemolished    bool                 `json:"is_demolished"`
	HasWheelContact bool                 `json:"has_wheel_contact"`
	IsSuperSonic    bool                 `json:"is_super_sonic"`
	IsBot           bool                 `json:"is_bot"`
	Jumped          bool                 `json:"jumped"`
	DoubleJumped    bool                 `json:"double_jumped"`
	Dodged          bool                 `json:"dodged"`
	Name            string               `json:"name"`
	Team            int                  `json:"team"`
	Boost           float64              `json:"boost"`
	Hitbox          CollisionShapeRecord `json:"hitbox"`
	HitboxOffset    linalg.Vec3          `json:"hitbox_offset"`
	SpawnID         int32                `json:"spawn_id"`
}

// BoostPadState is the per-tick state of one boost pad, in field info order.
type BoostPadState struct {
	IsActive bool    `json:"is_active"`
	Timer    float64 `json:"timer"`
}

// GameTickPacket is one authoritative snapshot from the host.
// Only the first NumCars entries of GameCars and the first NumBoosts entries
// of GameBoosts are meaningful.
type GameTickPacket struct {
	GameCars   []PlayerInfo    `json:"game_cars"`
	NumCars    int             `json:"num_cars"`
	GameBoosts []BoostPadState `json:"game_boosts"`
	NumBoosts  int             `json:"num_boosts"`
	GameBall   BallInfo        `json:"game_ball"`
	GameInfo   GameInfo        `json:"game_info"`
}

// GoalInfo describes one goal mouth.
type GoalInfo struct {
	TeamNum   int         `json:"team_num"`
	Location  linalg.Vec3 `json:"location"`
	Direction linalg.Vec3 `json:"direction"`
	Width     float64     `json:"width"`
	Height    float64     `json:"height"`
}

// BoostPadInfo describes one boost pad.
type BoostPadInfo struct {
	Location    linalg.Vec3 `json:"location"`
	IsFullBoost bool        `json:"is_full_boost"`
}

// FieldInfo is the static arena description sent once per session.
type FieldInfo struct {
	BoostPads []BoostPadInfo `json:"boost_pads"`
	NumBoosts int            `json:"num_boosts"`
	Goals     []GoalInfo     `json:"goals"`
	NumGoals  int            `json:"num_goals"`
}
