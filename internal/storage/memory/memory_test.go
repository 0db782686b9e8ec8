package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlpredict/rlpredict/internal/config"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
)

func startedBackend(t *testing.T, cfg config.MemoryConfig) (*Backend, *core.Session) {
	t.Helper()
	b := New(cfg)
	require.NoError(t, b.Init())
	s := &core.Session{Mode: "soccar", StartTime: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	require.NoError(t, b.StartSession(s))
	return b, s
}

func TestStartSession_AssignsIDs(t *testing.T) {
	b := New(config.MemoryConfig{})

	first := &core.Session{Mode: "soccar"}
	second := &core.Session{Mode: "hoops"}
	require.NoError(t, b.StartSession(first))
	require.NoError(t, b.StartSession(second))

	assert.Equal(t, uint(1), first.ID)
	assert.Equal(t, uint(2), second.ID)
}

func TestStartSession_ResetsCollections(t *testing.T) {
	b, _ := startedBackend(t, config.MemoryConfig{})
	require.NoError(t, b.RecordBallState(&core.BallState{Frame: 1}))
	require.NoError(t, b.RecordPrediction(&core.Prediction{Frame: 1}))
	require.NoError(t, b.RecordDrift(&core.DriftSample{Frame: 1}))

	require.NoError(t, b.StartSession(&core.Session{Mode: "soccar"}))

	assert.Empty(t, b.Frames())
	assert.Empty(t, b.Predictions())
	assert.Empty(t, b.DriftSamples())
}

func TestRecordStates_GroupsByFrame(t *testing.T) {
	b, _ := startedBackend(t, config.MemoryConfig{})

	for frame := uint64(1); frame <= 3; frame++ {
		require.NoError(t, b.RecordBallState(&core.BallState{Frame: frame, Position: linalg.NewVec3(float64(frame), 0, 93)}))
		for slot := 0; slot < 2; slot++ {
			require.NoError(t, b.RecordCarState(&core.CarState{Frame: frame, Slot: slot}))
		}
	}

	frames := b.Frames()
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, uint64(i+1), f.Frame)
		assert.Equal(t, float64(i+1), f.Ball.Position.X)
		assert.Len(t, f.Cars, 2)
	}
}

func TestRecordCarState_BeforeBall(t *testing.T) {
	b, _ := startedBackend(t, config.MemoryConfig{})

	require.NoError(t, b.RecordCarState(&core.CarState{Frame: 9, Slot: 0}))
	require.NoError(t, b.RecordBallState(&core.BallState{Frame: 9, Time: 4.5}))

	frames := b.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, 4.5, frames[0].Ball.Time)
	assert.Len(t, frames[0].Cars, 1)
}

func TestRecordFieldInfo_Copies(t *testing.T) {
	b, _ := startedBackend(t, config.MemoryConfig{})
	info := &core.FieldInfo{NumGoals: 1, Goals: []core.GoalInfo{{TeamNum: 1}}}

	require.NoError(t, b.RecordFieldInfo(info))
	info.NumGoals = 0

	assert.Equal(t, 1, b.fieldInfo.NumGoals)
}

func TestEndSession_WithoutStart(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	assert.Error(t, b.EndSession())
}

func TestAccessorsReturnCopies(t *testing.T) {
	b, _ := startedBackend(t, config.MemoryConfig{})
	require.NoError(t, b.RecordPrediction(&core.Prediction{Frame: 5}))

	preds := b.Predictions()
	preds[0].Frame = 99

	assert.Equal(t, uint64(5), b.Predictions()[0].Frame)
}
