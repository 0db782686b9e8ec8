package simulation

import (
	"fmt"
	"sync"

	"github.com/rlpredict/rlpredict/pkg/core"
)

// Game is the authoritative world: one ball, the car array and the global
// constants of the latest packet. Reads and ingestion may run on different
// goroutines; every accessor returns an independent copy.
type Game struct {
	field *Field

	mu             sync.RWMutex
	ball           Ball
	cars           [MaxCars]Car
	numCars        int
	pads           [MaxBoostPads]BoostPadState
	numPads        int
	gravityZ       float64
	secondsElapsed float64
	hostFrame      int64
	frames         uint64
}

// NewGame creates a world bound to field.
func NewGame(field *Field) (*Game, error) {
	if field == nil {
		return nil, fmt.Errorf("%w: game requires a configured field", ErrConfiguration)
	}
	return &Game{
		field:    field,
		ball:     NewBall(WithField(field)),
		gravityZ: DefaultGravity,
	}, nil
}

// IngestFieldInfo loads goals and boost pads into the field. It may succeed once.
func (g *Game) IngestFieldInfo(info core.FieldInfo) error {
	return g.field.LoadStaticInfo(info)
}

// IngestPacket replaces the ball, every car slot, the boost pad states and
// the global constants with the packet's values. The packet is validated in full first; a
// rejected packet leaves the world untouched. Slots at or beyond the new car
// count are cleared.
func (g *Game) IngestPacket(pkt core.GameTickPacket) error {
	info := pkt.GameInfo
	if !finite(info.WorldGravityZ) || !finite(info.SecondsElapsed) {
		return fmt.Errorf("%w: game info has non-finite values", ErrIngestion)
	}
	if pkt.NumCars < 0 || pkt.NumCars > MaxCars || pkt.NumCars > len(pkt.GameCars) {
		return fmt.Errorf("%w: car count %d exceeds capacity (max %d, provided %d)",
			ErrIngestion, pkt.NumCars, MaxCars, len(pkt.GameCars))
	}

	pads, err := g.padStates(pkt)
	if err != nil {
		return err
	}

	ball, err := NewBallFromSnapshot(pkt.GameBall, info.SecondsElapsed,
		WithField(g.field), WithGravity(info.WorldGravityZ))
	if err != nil {
		return err
	}

	var cars [MaxCars]Car
	for i := 0; i < pkt.NumCars; i++ {
		car, err := carFromRecord(pkt.GameCars[i])
		if err != nil {
			return fmt.Errorf("%w: car %d: %v", ErrIngestion, i, err)
		}
		cars[i] = car
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.ball = ball
	g.cars = cars
	g.numCars = pkt.NumCars
	g.pads = pads
	g.numPads = pkt.NumBoosts
	g.gravityZ = info.WorldGravityZ
	g.secondsElapsed = info.SecondsElapsed
	g.hostFrame = info.FrameNum
	g.frames++
	return nil
}

// padStates validates the pad block. Once static info is loaded a non-empty
// block must cover every loaded pad.
func (g *Game) padStates(pkt core.GameTickPacket) ([MaxBoostPads]BoostPadState, error) {
	var pads [MaxBoostPads]BoostPadState
	if pkt.NumBoosts < 0 || pkt.NumBoosts > MaxBoostPads || pkt.NumBoosts > len(pkt.GameBoosts) {
		return pads, fmt.Errorf("%w: boost pad count %d exceeds capacity (max %d, provided %d)",
			ErrIngestion, pkt.NumBoosts, MaxBoostPads, len(pkt.GameBoosts))
	}
	if loaded := len(g.field.BoostPads()); pkt.NumBoosts > 0 && g.field.HasStaticInfo() && pkt.NumBoosts != loaded {
		return pads, fmt.Errorf("%w: packet has %d boost pads, field has %d",
			ErrIngestion, pkt.NumBoosts, loaded)
	}
	for i := 0; i < pkt.NumBoosts; i++ {
		s := pkt.GameBoosts[i]
		if !finite(s.Timer) || s.Timer < 0 {
			return pads, fmt.Errorf("%w: boost pad %d has invalid timer %v", ErrIngestion, i, s.Timer)
		}
		pads[i] = BoostPadState{Active: s.IsActive, Timer: s.Timer}
	}
	return pads, nil
}

// Field returns the arena the game was built against.
func (g *Game) Field() *Field {
	return g.field
}

// Ball returns a copy of the authoritative ball, bound to the field and the
// current gravity. Stepping it never affects the game.
func (g *Game) Ball() Ball {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ball.Clone()
}

// Cars returns a copy of the active car slots.
func (g *Game) Cars() []Car {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Car, g.numCars)
	copy(out, g.cars[:g.numCars])
	return out
}

// Car returns slot i if it is active.
func (g *Game) Car(i int) (Car, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if i < 0 || i >= g.numCars {
		return Car{}, false
	}
	return g.cars[i], true
}

// BoostPadStates returns a copy of the pad states from the latest packet,
// indexed like Field.BoostPads.
func (g *Game) BoostPadStates() []BoostPadState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]BoostPadState, g.numPads)
	copy(out, g.pads[:g.numPads])
	return out
}

func (g *Game) NumCars() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.numCars
}

func (g *Game) GravityZ() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.gravityZ
}

func (g *Game) SecondsElapsed() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.secondsElapsed
}

// Frames returns how many packets have been ingested.
func (g *Game) Frames() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frames
}

// HostFrame returns the host's frame number from the latest packet.
func (g *Game) HostFrame() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hostFrame
}

// Snapshot returns the ball and active cars under a single read lock, so
// both belong to the same packet.
func (g *Game) Snapshot() (Ball, []Car, uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cars := make([]Car, g.numCars)
	copy(cars, g.cars[:g.numCars])
	return g.ball.Clone(), cars, g.frames
}
