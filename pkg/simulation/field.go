package simulation

import (
	"fmt"
	"sync"

	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
)

// Arena dimensions in unreal units.
const (
	SoccarHalfWidth    = 4096.0
	SoccarHalfLength   = 5120.0
	SoccarHeight       = 2044.0
	SoccarCorner       = 8064.0
	SoccarGoalHalfW    = 892.755
	SoccarGoalHeight   = 642.775
	SoccarGoalDepth    = 880.0
	HoopsHalfWidth     = 2966.67
	HoopsHalfLength    = 3581.0
	HoopsHeight        = 1820.0
	DropshotApothem    = 4555.0
	DropshotHeight     = 2020.0
	WallFilletRadius   = 256.0
	DefaultBallRadius  = 91.25
	DropshotBallRadius = 100.2565

	// restGap is how far above the floor a motionless ball's lowest point sits.
	restGap = 1.5

	MaxGoals     = 200
	MaxBoostPads = 50
)

// Contact is the result of a collision query.
type Contact struct {
	Normal linalg.Vec3 // unit, pointing into the arena
	Depth  float64     // penetration, always > 0
}

// BoostPadType is the size class of a pad.
type BoostPadType int

const (
	BoostPadPartial BoostPadType = iota
	BoostPadFull
)

func (t BoostPadType) String() string {
	if t == BoostPadFull {
		return "full"
	}
	return "partial"
}

// BoostPad is a static pad descriptor.
type BoostPad struct {
	Location linalg.Vec3
	Type     BoostPadType
}

// BoostPadState is the live state of one pad. Timer counts seconds since
// the pad was last picked up.
type BoostPadState struct {
	Active bool
	Timer  float64
}

// Goal is a static goal descriptor. Direction points from the goal into the field.
type Goal struct {
	Team      int
	Location  linalg.Vec3
	Direction linalg.Vec3
	Width     float64
	Height    float64
}

// Field is the static arena of one session. Geometry is fixed by the mode at
// construction; goals and pads are loaded at most once afterwards. After setup
// a Field is only read, and every method is safe for concurrent use.
type Field struct {
	mode       Mode
	arena      arena
	ballRadius float64

	mu         sync.RWMutex
	staticInfo bool
	goals      []Goal
	pads       []BoostPad
}

// NewField builds the arena for mode. An unknown mode is a configuration
// error; there is no fallback geometry.
func NewField(mode Mode) (*Field, error) {
	f := &Field{mode: mode, ballRadius: DefaultBallRadius}

	switch mode {
	case ModeSoccar:
		f.arena = soccarArena{
			box: roundedBox{
				half:   linalg.Vec3{X: SoccarHalfWidth, Y: SoccarHalfLength, Z: SoccarHeight / 2},
				radius: WallFilletRadius,
			},
			corner: SoccarCorner,
			goals: [2]goalBox{
				{side: 1, line: SoccarHalfLength, halfWidth: SoccarGoalHalfW, height: SoccarGoalHeight, depth: SoccarGoalDepth},
				{side: -1, line: SoccarHalfLength, halfWidth: SoccarGoalHalfW, height: SoccarGoalHeight, depth: SoccarGoalDepth},
			},
		}
	case ModeHoops:
		f.arena = hoopsArena{box: roundedBox{
			half:   linalg.Vec3{X: HoopsHalfWidth, Y: HoopsHalfLength, Z: HoopsHeight / 2},
			radius: WallFilletRadius,
		}}
	case ModeDropshot:
		f.arena = newHexArena(DropshotApothem, DropshotHeight)
		f.ballRadius = DropshotBallRadius
	default:
		return nil, fmt.Errorf("%w: unknown arena mode %q", ErrConfiguration, mode)
	}

	return f, nil
}

// Mode returns the arena variant.
func (f *Field) Mode() Mode { return f.mode }

// BallRadius returns the radius of the standard ball in this mode.
func (f *Field) BallRadius() float64 { return f.ballRadius }

// RestHeight returns the z at which a motionless ball sits on the floor.
func (f *Field) RestHeight() float64 { return f.ballRadius + restGap }

// Distance returns the signed distance from p to the arena surface,
// positive inside.
func (f *Field) Distance(p linalg.Vec3) float64 {
	return f.arena.distance(p)
}

// QueryCollision tests a sphere against the floor, walls, ceiling and curved
// corners. It does not allocate.
func (f *Field) QueryCollision(center linalg.Vec3, radius float64) (Contact, bool) {
	d := f.arena.distance(center)
	if d >= radius {
		return Contact{}, false
	}
	n := gradient(f.arena, center)
	if n == (linalg.Vec3{}) {
		return Contact{}, false
	}
	return Contact{Normal: n, Depth: radius - d}, true
}

// LoadStaticInfo stores the goal and boost pad layout. It may succeed once.
func (f *Field) LoadStaticInfo(info core.FieldInfo) error {
	if err := validateFieldInfo(info); err != nil {
		return err
	}

	goals := make([]Goal, info.NumGoals)
	for i := range goals {
		g := info.Goals[i]
		goals[i] = Goal{
			Team:      g.TeamNum,
			Location:  g.Location,
			Direction: g.Direction,
			Width:     g.Width,
			Height:    g.Height,
		}
	}

	pads := make([]BoostPad, info.NumBoosts)
	for i := range pads {
		p := info.BoostPads[i]
		pads[i] = BoostPad{Location: p.Location, Type: BoostPadPartial}
		if p.IsFullBoost {
			pads[i].Type = BoostPadFull
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.staticInfo {
		return fmt.Errorf("%w: static field info already loaded", ErrConfiguration)
	}
	f.goals = goals
	f.pads = pads
	f.staticInfo = true
	return nil
}

// HasStaticInfo reports whether goals and pads have been loaded.
func (f *Field) HasStaticInfo() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.staticInfo
}

// Goals returns a copy of the goal descriptors.
func (f *Field) Goals() []Goal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Goal(nil), f.goals...)
}

// BoostPads returns a copy of the boost pad descriptors.
func (f *Field) BoostPads() []BoostPad {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]BoostPad(nil), f.pads...)
}

// GoalContaining returns the goal a sphere at p has fully crossed into.
func (f *Field) GoalContaining(p linalg.Vec3, radius float64) (Goal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, g := range f.goals {
		dir := g.Direction.Normalize()
		rel := p.Sub(g.Location)
		if rel.Dot(dir) > -radius {
			continue
		}
		// offset from the goal center measured in the goal plane
		lateral := rel.Sub(dir.Scale(rel.Dot(dir)))
		across := linalg.Vec3{X: lateral.X, Y: lateral.Y}.Norm()
		if across <= g.Width/2 && abs(lateral.Z) <= g.Height/2+radius {
			return g, true
		}
	}
	return Goal{}, false
}

func validateFieldInfo(info core.FieldInfo) error {
	if info.NumGoals < 0 || info.NumGoals > MaxGoals || info.NumGoals > len(info.Goals) {
		return fmt.Errorf("%w: goal count %d exceeds capacity (max %d, provided %d)",
			ErrIngestion, info.NumGoals, MaxGoals, len(info.Goals))
	}
	if info.NumBoosts < 0 || info.NumBoosts > MaxBoostPads || info.NumBoosts > len(info.BoostPads) {
		return fmt.Errorf("%w: boost pad count %d exceeds capacity (max %d, provided %d)",
			ErrIngestion, info.NumBoosts, MaxBoostPads, len(info.BoostPads))
	}
	for i := 0; i < info.NumGoals; i++ {
		g := info.Goals[i]
		if !g.Location.IsFinite() || !g.Direction.IsFinite() || !finite(g.Width) || !finite(g.Height) {
			return fmt.Errorf("%w: goal %d has non-finite values", ErrIngestion, i)
		}
	}
	for i := 0; i < info.NumBoosts; i++ {
		if !info.BoostPads[i].Location.IsFinite() {
			return fmt.Errorf("%w: boost pad %d has non-finite location", ErrIngestion, i)
		}
	}
	return nil
}
