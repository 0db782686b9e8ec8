package simulation

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
)

// Ball physics constants.
const (
	DefaultGravity  = -650.0
	BallRestitution = 0.6
	BallFriction    = 2.0
	BallDrag        = -0.0305
	BallMaxSpeed    = 6000.0
	BallMaxSpin     = 6.0

	// Below this approach speed a contact is treated as resting and does not bounce.
	restingSpeed = 20.0

	// A solid sphere has I = 0.4 m r^2. Tangential impulses see the reduced
	// mass m / (1 + m r^2 / I) = 2/7 m.
	inertiaFactor    = 0.4
	reducedMassRatio = 1.0 / (1.0 + 1.0/inertiaFactor)
)

// Ball is the rigid-body state of the ball. It is a plain value: assignment
// copies everything, and the only pointer it holds is to an immutable Field,
// so a copy can be stepped on any goroutine without affecting the original.
type Ball struct {
	time            float64
	position        linalg.Vec3
	velocity        linalg.Vec3
	angularVelocity linalg.Vec3
	orientation     mgl64.Quat
	radius          float64

	field   *Field
	gravity float64
}

// BallOption configures a Ball at construction.
type BallOption func(*Ball)

// WithVelocity sets the initial linear velocity.
func WithVelocity(v linalg.Vec3) BallOption {
	return func(b *Ball) {
		b.velocity = v
	}
}

// WithAngularVelocity sets the initial angular velocity.
func WithAngularVelocity(w linalg.Vec3) BallOption {
	return func(b *Ball) {
		b.angularVelocity = w
	}
}

// WithField binds the arena the ball collides with. The ball takes the
// field's standard radius.
func WithField(f *Field) BallOption {
	return func(b *Ball) {
		b.field = f
		if f != nil {
			b.radius = f.BallRadius()
		}
	}
}

// WithGravity overrides the vertical acceleration.
func WithGravity(g float64) BallOption {
	return func(b *Ball) {
		b.gravity = g
	}
}

func newBall(opts []BallOption) Ball {
	b := Ball{
		orientation: mgl64.QuatIdent(),
		radius:      DefaultBallRadius,
		gravity:     DefaultGravity,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// NewBall returns a motionless ball at center field resting on the floor.
func NewBall(opts ...BallOption) Ball {
	b := newBall(opts)
	b.position = linalg.Vec3{Z: b.radius + restGap}
	return b
}

// NewBallAt returns a ball with the given time and position. Velocities
// default to zero. Nothing is validated.
func NewBallAt(t float64, position linalg.Vec3, opts ...BallOption) Ball {
	b := newBall(opts)
	b.time = t
	b.position = position
	return b
}

// NewBallFromSnapshot builds a ball from a per-tick host record. The record's
// own clock is not consulted; the ball's time is t.
func NewBallFromSnapshot(rec core.BallInfo, t float64, opts ...BallOption) (Ball, error) {
	phys := rec.Physics
	if !phys.Location.IsFinite() || !phys.Velocity.IsFinite() || !phys.AngularVelocity.IsFinite() || !finite(t) {
		return Ball{}, fmt.Errorf("%w: ball physics has non-finite values", ErrIngestion)
	}

	shape, err := rec.CollisionShape.Shape()
	if err != nil {
		return Ball{}, fmt.Errorf("%w: ball %v", ErrIngestion, err)
	}
	sphere, ok := shape.(core.Sphere)
	if !ok {
		return Ball{}, fmt.Errorf("%w: ball collision shape must be a sphere, got %T", ErrIngestion, shape)
	}
	if !finite(sphere.Diameter) || sphere.Diameter <= 0 {
		return Ball{}, fmt.Errorf("%w: invalid ball diameter %v", ErrIngestion, sphere.Diameter)
	}

	b := newBall(opts)
	b.time = t
	b.position = phys.Location
	b.velocity = phys.Velocity
	b.angularVelocity = phys.AngularVelocity
	b.radius = sphere.Radius()
	return b, nil
}

// Clone returns an independent copy of b.
func (b Ball) Clone() Ball {
	return b
}

func (b Ball) Time() float64                { return b.time }
func (b Ball) Position() linalg.Vec3        { return b.position }
func (b Ball) Velocity() linalg.Vec3        { return b.velocity }
func (b Ball) AngularVelocity() linalg.Vec3 { return b.angularVelocity }
func (b Ball) Radius() float64              { return b.radius }
func (b Ball) Gravity() float64             { return b.gravity }
func (b Ball) Field() *Field                { return b.field }
func (b Ball) Orientation() mgl64.Quat      { return b.orientation }

func (b *Ball) SetPosition(p linalg.Vec3)        { b.position = p }
func (b *Ball) SetVelocity(v linalg.Vec3)        { b.velocity = v }
func (b *Ball) SetAngularVelocity(w linalg.Vec3) { b.angularVelocity = w }

// Sample returns the kinematic state as a trajectory point.
func (b Ball) Sample() core.BallSample {
	return core.BallSample{
		Time:            b.time,
		Position:        b.position,
		Velocity:        b.velocity,
		AngularVelocity: b.angularVelocity,
	}
}

// Step advances the ball by dt seconds with semi-implicit Euler integration
// and resolves at most one arena contact. It is deterministic and does not
// allocate. A non-positive dt leaves the ball unchanged.
func (b *Ball) Step(dt float64) {
	if dt <= 0 {
		return
	}

	b.velocity.Z += b.gravity * dt
	b.velocity = b.velocity.Add(b.velocity.Scale(BallDrag * dt))
	b.position = b.position.Add(b.velocity.Scale(dt))

	b.integrateOrientation(dt)

	if b.field != nil {
		if c, ok := b.field.QueryCollision(b.position, b.radius); ok {
			b.resolveContact(c)
		}
	}

	b.velocity = b.velocity.ClampNorm(BallMaxSpeed)
	b.angularVelocity = b.angularVelocity.ClampNorm(BallMaxSpin)
	b.time += dt
}

func (b *Ball) integrateOrientation(dt float64) {
	spin := b.angularVelocity.Norm()
	if spin == 0 {
		return
	}
	axis := b.angularVelocity.Scale(1 / spin).ToMgl()
	b.orientation = mgl64.QuatRotate(spin*dt, axis).Mul(b.orientation).Normalize()
}

// resolveContact applies the normal and friction impulses of one contact and
// moves the ball out of the surface.
func (b *Ball) resolveContact(c Contact) {
	n := c.Normal
	vn := b.velocity.Dot(n)

	if vn < 0 {
		// lever arm from the center to the contact point
		arm := n.Scale(-b.radius)
		vNormal := n.Scale(vn)
		vTangent := b.velocity.Sub(vNormal).Add(b.angularVelocity.Cross(arm))

		if slide := vTangent.Norm(); slide > 0 {
			ratio := math.Min(1, BallFriction*math.Abs(vn)/slide)
			jTangent := vTangent.Scale(-ratio * reducedMassRatio)
			b.velocity = b.velocity.Add(jTangent)
			b.angularVelocity = b.angularVelocity.Add(
				arm.Cross(jTangent).Scale(1 / (inertiaFactor * b.radius * b.radius)),
			)
		}

		restitution := BallRestitution
		if -vn < restingSpeed {
			restitution = 0
		}
		b.velocity = b.velocity.Sub(vNormal.Scale(1 + restitution))
	}

	b.position = b.position.Add(n.Scale(c.Depth))
}
