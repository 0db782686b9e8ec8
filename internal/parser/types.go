package parser

import "github.com/rlpredict/rlpredict/pkg/linalg"

// Command is one host request in the line protocol:
// {"command":":PACKET:","args":["<json>"]}.
type Command struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// Result is written back for every command.
type Result struct {
	Command string `json:"command"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BallOverride replaces parts of the authoritative ball for a what-if
// prediction. Nil fields keep the current value.
type BallOverride struct {
	Position        *linalg.Vec3 `json:"position,omitempty"`
	Velocity        *linalg.Vec3 `json:"velocity,omitempty"`
	AngularVelocity *linalg.Vec3 `json:"angular_velocity,omitempty"`
}
