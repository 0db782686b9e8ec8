package session

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/simulation"
)

func newGame(t *testing.T) *simulation.Game {
	t.Helper()
	f, err := simulation.NewField(simulation.ModeSoccar)
	require.NoError(t, err)
	g, err := simulation.NewGame(f)
	require.NoError(t, err)
	return g
}

func TestContext_Empty(t *testing.T) {
	c := NewContext()

	assert.False(t, c.Active())
	assert.Nil(t, c.Session())
	assert.Nil(t, c.Game())
	assert.Nil(t, c.LogAttrs())
	assert.Nil(t, c.End(time.Now()))
}

func TestContext_StartEnd(t *testing.T) {
	c := NewContext()
	g := newGame(t)
	start := time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC)

	c.Start(&core.Session{ID: 7, Mode: "soccar", StartTime: start}, g)
	require.True(t, c.Active())
	assert.Same(t, g, c.Game())
	assert.Equal(t, uint(7), c.Session().ID)

	attrs := c.LogAttrs()
	require.Len(t, attrs, 3)
	assert.Equal(t, slog.Uint64("session", 7), attrs[0])
	assert.Equal(t, slog.String("mode", "soccar"), attrs[1])

	end := start.Add(5 * time.Minute)
	s := c.End(end)
	require.NotNil(t, s)
	assert.Equal(t, end, s.EndTime)
	assert.Equal(t, uint64(0), s.Frames)
	assert.False(t, c.Active())
}
