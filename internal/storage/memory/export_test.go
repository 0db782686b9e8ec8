package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlpredict/rlpredict/internal/config"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
)

func populate(t *testing.T, b *Backend) {
	t.Helper()
	require.NoError(t, b.RecordFieldInfo(&core.FieldInfo{
		NumGoals: 2,
		Goals: []core.GoalInfo{
			{TeamNum: 0, Location: linalg.NewVec3(0, -5120, 321), Direction: linalg.NewVec3(0, 1, 0), Width: 1785, Height: 642},
			{TeamNum: 1, Location: linalg.NewVec3(0, 5120, 321), Direction: linalg.NewVec3(0, -1, 0), Width: 1785, Height: 642},
		},
		NumBoosts: 1,
		BoostPads: []core.BoostPadInfo{{Location: linalg.NewVec3(-3584, 0, 73), IsFullBoost: true}, {}},
	}))
	require.NoError(t, b.RecordBallState(&core.BallState{
		Frame:           1,
		Time:            0.5,
		Position:        linalg.NewVec3(1, 2, 3),
		Velocity:        linalg.NewVec3(4, 5, 6),
		AngularVelocity: linalg.NewVec3(7, 8, 9),
	}))
	require.NoError(t, b.RecordCarState(&core.CarState{Frame: 1, Slot: 0, SpawnID: 1000, Team: 0, Boost: 33, OnGround: true}))
	require.NoError(t, b.RecordCarState(&core.CarState{Frame: 1, Slot: 1, SpawnID: 1001, Team: 1, Demolished: true}))
	require.NoError(t, b.RecordPrediction(&core.Prediction{
		Frame:     1,
		StartTime: 0.5,
		Dt:        0.5,
		Samples: []core.BallSample{
			{Time: 0.5, Position: linalg.NewVec3(1, 2, 3)},
			{Time: 1.0, Position: linalg.NewVec3(2, 3, 4)},
		},
		Goal: &core.PredictedGoal{Team: 1, Time: 1.0},
	}))
	require.NoError(t, b.RecordDrift(&core.DriftSample{Frame: 2, PredictionFrame: 1, Lookahead: 0.5, PositionError: 3}))
}

func TestBuildExport(t *testing.T) {
	b, _ := startedBackend(t, config.MemoryConfig{})
	populate(t, b)

	export := b.buildExport()

	assert.Equal(t, "soccar", export.Mode)
	assert.Equal(t, uint64(1), export.EndFrame)
	require.Len(t, export.Goals, 2)
	assert.Equal(t, 1, export.Goals[1][0])
	require.Len(t, export.BoostPads, 1, "only the first NumBoosts pads are active")
	assert.Equal(t, true, export.BoostPads[0][1])

	require.Len(t, export.Frames, 1)
	frame := export.Frames[0]
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, frame.Ball)
	require.Len(t, frame.Cars, 2)
	assert.Equal(t, "on_ground", frame.Cars[0][10])
	assert.Equal(t, "demolished", frame.Cars[1][10])

	require.Len(t, export.Predictions, 1)
	pred := export.Predictions[0]
	assert.Equal(t, [][]float64{{1, 2, 3}, {2, 3, 4}}, pred.Positions)
	require.NotNil(t, pred.GoalTeam)
	assert.Equal(t, 1, *pred.GoalTeam)

	require.Len(t, export.Drift, 1)
	assert.Equal(t, uint64(2), export.Drift[0][0])
}

func TestBuildExport_Empty(t *testing.T) {
	b, _ := startedBackend(t, config.MemoryConfig{})

	export := b.buildExport()

	assert.NotNil(t, export.Goals)
	assert.NotNil(t, export.Frames)
	assert.Zero(t, export.EndFrame)
}

func TestEndSession_WritesGzip(t *testing.T) {
	dir := t.TempDir()
	b, s := startedBackend(t, config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	populate(t, b)

	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".json.gz"))
	assert.Contains(t, filepath.Base(path), "soccar_20260301_180000")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var got SessionExport
	require.NoError(t, json.NewDecoder(gz).Decode(&got))
	assert.Equal(t, "soccar", got.Mode)
	assert.Len(t, got.Frames, 1)
	assert.Len(t, got.Predictions, 1)

	meta := b.GetExportMetadata()
	assert.Equal(t, path, meta.Path)
	assert.Equal(t, s.StartTime, meta.StartTime)
	assert.Equal(t, uint64(1), meta.Frames)
	assert.Equal(t, 1, meta.Predictions)
}

func TestEndSession_WritesPlainJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	b, _ := startedBackend(t, config.MemoryConfig{OutputDir: dir})
	populate(t, b)

	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.True(t, strings.HasSuffix(path, ".json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "soccar", got["mode"])
}
