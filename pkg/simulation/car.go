package simulation

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
)

// MaxCars is the capacity of the car array.
const MaxCars = 64

// Octane defaults, used when the host omits a hitbox.
var (
	DefaultCarHitbox       = core.Box{Length: 118.0074, Width: 84.19941, Height: 36.15907}
	DefaultCarHitboxOffset = linalg.Vec3{X: 13.97566, Y: 0, Z: 20.75499}
)

// CarState classifies what a car is doing this tick.
type CarState int

const (
	CarOnGround CarState = iota
	CarInAir
	CarJumped
	CarDoubleJumped
	CarDodged
	CarDemolished
)

func (s CarState) String() string {
	switch s {
	case CarOnGround:
		return "on_ground"
	case CarInAir:
		return "in_air"
	case CarJumped:
		return "jumped"
	case CarDoubleJumped:
		return "double_jumped"
	case CarDodged:
		return "dodged"
	case CarDemolished:
		return "demolished"
	}
	return "unknown"
}

// Car mirrors one player record from the host. It is never simulated here;
// movement controllers read it alongside the ball.
type Car struct {
	Position        linalg.Vec3
	Rotation        linalg.Rotator
	Velocity        linalg.Vec3
	AngularVelocity linalg.Vec3
	Boost           float64
	Demolished      bool
	Jumped          bool
	DoubleJumped    bool
	Dodged          bool
	SuperSonic      bool
	OnGround        bool
	Team            int
	Name            string
	IsBot           bool
	Shape           core.CollisionShape
	HitboxOffset    linalg.Vec3
	SpawnID         int32
}

// Orientation returns the rotation matrix with forward, left, up columns.
func (c Car) Orientation() mgl64.Mat3 {
	return c.Rotation.Matrix()
}

// Forward returns the unit vector the car's nose points along.
func (c Car) Forward() linalg.Vec3 {
	return linalg.FromMgl(c.Orientation().Col(0))
}

// Up returns the unit vector out of the car's roof.
func (c Car) Up() linalg.Vec3 {
	return linalg.FromMgl(c.Orientation().Col(2))
}

// State classifies the car. Demolition wins over everything else, and a
// dodge outranks the jumps that preceded it.
func (c Car) State() CarState {
	switch {
	case c.Demolished:
		return CarDemolished
	case c.OnGround:
		return CarOnGround
	case c.Dodged:
		return CarDodged
	case c.DoubleJumped:
		return CarDoubleJumped
	case c.Jumped:
		return CarJumped
	default:
		return CarInAir
	}
}

func carFromRecord(p core.PlayerInfo) (Car, error) {
	phys := p.Physics
	if !phys.Location.IsFinite() || !phys.Velocity.IsFinite() || !phys.AngularVelocity.IsFinite() ||
		!phys.Rotation.IsFinite() || !finite(p.Boost) || !p.HitboxOffset.IsFinite() {
		return Car{}, fmt.Errorf("car has non-finite values")
	}

	shape, err := p.Hitbox.Shape()
	if err != nil {
		return Car{}, err
	}
	offset := p.HitboxOffset
	if box, ok := shape.(core.Box); ok && box == (core.Box{}) {
		shape = DefaultCarHitbox
		offset = DefaultCarHitboxOffset
	}

	return Car{
		Position:        phys.Location,
		Rotation:        phys.Rotation,
		Velocity:        phys.Velocity,
		AngularVelocity: phys.AngularVelocity,
		Boost:           p.Boost,
		Demolished:      p.IsDemolished,
		Jumped:          p.Jumped,
		DoubleJumped:    p.DoubleJumped,
		Dodged:          p.Dodged,
		SuperSonic:      p.IsSuperSonic,
		OnGround:        p.HasWheelContact,
		Team:            p.Team,
		Name:            p.Name,
		IsBot:           p.IsBot,
		Shape:           shape,
		HitboxOffset:    offset,
		SpawnID:         p.SpawnID,
	}, nil
}
