package cache

import (
	"sync"

	"github.com/rlpredict/rlpredict/pkg/simulation"
)

// Player is the last known roster entry for one car.
type Player struct {
	SpawnID int32
	Slot    int
	Name    string
	Team    int
	IsBot   bool
}

// RosterCache tracks which players are present across packets. The host
// reuses car slots when players leave, so identity is keyed by spawn id.
type RosterCache struct {
	m       sync.Mutex
	players map[int32]Player
}

func NewRosterCache() *RosterCache {
	return &RosterCache{
		players: make(map[int32]Player),
	}
}

func (c *RosterCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.players = make(map[int32]Player)
}

func (c *RosterCache) Get(spawnID int32) (Player, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	p, ok := c.players[spawnID]
	return p, ok
}

func (c *RosterCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.players)
}

// Update replaces the roster with the cars of the latest packet and reports
// who joined and who left since the previous one. Slot changes for a known
// spawn id are recorded silently.
func (c *RosterCache) Update(cars []simulation.Car) (joined, left []Player) {
	c.m.Lock()
	defer c.m.Unlock()

	next := make(map[int32]Player, len(cars))
	for i, car := range cars {
		p := Player{SpawnID: car.SpawnID, Slot: i, Name: car.Name, Team: car.Team, IsBot: car.IsBot}
		next[car.SpawnID] = p
		if _, ok := c.players[car.SpawnID]; !ok {
			joined = append(joined, p)
		}
	}
	for id, p := range c.players {
		if _, ok := next[id]; !ok {
			left = append(left, p)
		}
	}
	c.players = next
	return joined, left
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
