package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/simulation"
)

// Context holds the current session and its simulation state
type Context struct {
	mu      sync.RWMutex
	session *core.Session
	game    *simulation.Game
}

// NewContext creates a new Context with no active session
func NewContext() *Context {
	return &Context{}
}

// Start begins a session for game, replacing any previous one.
func (c *Context) Start(s *core.Session, game *simulation.Game) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.game = game
}

// End closes the current session and returns it, or nil if none was active.
func (c *Context) End(at time.Time) *core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s != nil {
		s.EndTime = at
		if c.game != nil {
			s.Frames = c.game.Frames()
		}
	}
	c.session = nil
	c.game = nil
	return s
}

// Session returns the current session, or nil
func (c *Context) Session() *core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Game returns the current world, or nil
func (c *Context) Game() *simulation.Game {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.game
}

// Active reports whether a session is running
func (c *Context) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

// LogAttrs returns attributes identifying the session for log records.
func (c *Context) LogAttrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.Uint64("session", uint64(c.session.ID)),
		slog.String("mode", c.session.Mode),
	}
	if c.game != nil {
		attrs = append(attrs, slog.Uint64("frame", c.game.Frames()))
	}
	return attrs
}
