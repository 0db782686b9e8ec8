package postgres

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rlpredict/rlpredict/internal/logging"
	"github.com/rlpredict/rlpredict/internal/model"
	"github.com/rlpredict/rlpredict/internal/model/convert"
	"github.com/rlpredict/rlpredict/internal/storage"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
)

// newTestBackend creates a Backend with no DB (queue-only mode for unit testing).
func newTestBackend() *Backend {
	return New(Dependencies{
		DB:         nil,
		LogManager: logging.NewSlogManager(),
	})
}

// newSQLiteBackend creates an initialized Backend over a private in-memory DB.
// The writer loop only flushes when asked.
func newSQLiteBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	b := New(Dependencies{
		DB:            db,
		LogManager:    logging.NewSlogManager(),
		FlushInterval: time.Hour,
	})
	require.NoError(t, b.Init())
	t.Cleanup(func() { require.NoError(t, b.Close()) })
	return b
}

// Compile-time interface checks
var (
	_ storage.Backend       = (*Backend)(nil)
	_ storage.QueueReporter = (*Backend)(nil)
)

func testSamples() []core.BallSample {
	return []core.BallSample{
		{Time: 1, Position: linalg.NewVec3(0, 0, 93.15)},
		{Time: 1.5, Position: linalg.NewVec3(10, 0, 93.15)},
	}
}

func TestNew(t *testing.T) {
	b := newTestBackend()
	require.NotNil(t, b)
	assert.Equal(t, defaultFlushInterval, b.deps.FlushInterval)
}

func TestClose_WithoutInit(t *testing.T) {
	b := newTestBackend()
	assert.NoError(t, b.Close())
}

func TestRecord_QueuesWithoutDB(t *testing.T) {
	b := newTestBackend()

	require.NoError(t, b.RecordBallState(&core.BallState{Frame: 1}))
	require.NoError(t, b.RecordCarState(&core.CarState{Frame: 1}))
	require.NoError(t, b.RecordCarState(&core.CarState{Frame: 1, Slot: 1}))
	require.NoError(t, b.RecordPrediction(&core.Prediction{Frame: 1, Samples: testSamples()}))
	require.NoError(t, b.RecordDrift(&core.DriftSample{Frame: 1}))

	assert.Equal(t, map[string]int{
		"ballStates":   1,
		"carStates":    2,
		"predictions":  1,
		"driftSamples": 1,
	}, b.QueueLengths())
}

func TestSessionLifecycle_NoDB(t *testing.T) {
	b := newTestBackend()

	s := &core.Session{Mode: "soccar"}
	require.NoError(t, b.StartSession(s))
	assert.Zero(t, s.ID)
	require.NoError(t, b.RecordFieldInfo(&core.FieldInfo{}))
	require.NoError(t, b.RecordPerformance(model.Performance{}))
	require.NoError(t, b.EndSession())
}

func TestInitClose(t *testing.T) {
	b := newSQLiteBackend(t)
	require.NotNil(t, b.stopChan)
	assert.True(t, b.dbReady)

	for _, m := range model.DatabaseModels {
		assert.True(t, b.DB().Migrator().HasTable(m), "%T", m)
	}
}

func TestStartSession_AssignsID(t *testing.T) {
	b := newSQLiteBackend(t)

	s := &core.Session{Mode: "hoops", StartTime: time.Now()}
	require.NoError(t, b.StartSession(s))

	assert.NotZero(t, s.ID)
	assert.Equal(t, s.ID, b.SessionID())
}

func TestRecordFieldInfo_InsertsGoalsAndPads(t *testing.T) {
	b := newSQLiteBackend(t)
	s := &core.Session{Mode: "soccar"}
	require.NoError(t, b.StartSession(s))

	err := b.RecordFieldInfo(&core.FieldInfo{
		NumGoals: 2,
		Goals: []core.GoalInfo{
			{TeamNum: 0, Location: linalg.NewVec3(0, -5120, 321), Direction: linalg.NewVec3(0, 1, 0), Width: 1785, Height: 642},
			{TeamNum: 1, Location: linalg.NewVec3(0, 5120, 321), Direction: linalg.NewVec3(0, -1, 0), Width: 1785, Height: 642},
		},
		NumBoosts: 3,
		BoostPads: []core.BoostPadInfo{{IsFullBoost: true}, {}, {}},
	})
	require.NoError(t, err)

	var goals []model.Goal
	require.NoError(t, b.DB().Order("team").Find(&goals).Error)
	require.Len(t, goals, 2)
	assert.Equal(t, s.ID, goals[0].SessionID)
	assert.Equal(t, -1.0, goals[1].Direction.Y)

	var pads int64
	require.NoError(t, b.DB().Model(&model.BoostPad{}).Where("session_id = ?", s.ID).Count(&pads).Error)
	assert.Equal(t, int64(3), pads)
}

func TestFlush_WritesQueuedRows(t *testing.T) {
	b := newSQLiteBackend(t)
	s := &core.Session{Mode: "soccar"}
	require.NoError(t, b.StartSession(s))

	require.NoError(t, b.RecordBallState(&core.BallState{Frame: 1, Time: 1, Position: linalg.NewVec3(1, 2, 3), Velocity: linalg.NewVec3(4, 5, 6)}))
	require.NoError(t, b.RecordCarState(&core.CarState{Frame: 1, Slot: 0, SpawnID: 1000, Name: "Bot"}))
	require.NoError(t, b.RecordPrediction(&core.Prediction{
		Frame:     1,
		StartTime: 1,
		Dt:        0.5,
		Samples:   testSamples(),
		Goal:      &core.PredictedGoal{Team: 1, Time: 1.5, Position: testSamples()[1].Position},
	}))
	require.NoError(t, b.RecordDrift(&core.DriftSample{Frame: 1, PositionError: 2.5}))

	b.Flush()

	assert.Equal(t, map[string]int{"ballStates": 0, "carStates": 0, "predictions": 0, "driftSamples": 0}, b.QueueLengths())

	var ball model.BallState
	require.NoError(t, b.DB().First(&ball).Error)
	assert.Equal(t, s.ID, ball.SessionID, "rows are stamped with the session")
	got := convert.BallStateToCore(ball)
	assert.Equal(t, linalg.NewVec3(1, 2, 3), got.Position)
	assert.Equal(t, linalg.NewVec3(4, 5, 6), got.Velocity)

	var car model.CarState
	require.NoError(t, b.DB().First(&car).Error)
	assert.Equal(t, "Bot", car.Name)

	var pred model.Prediction
	require.NoError(t, b.DB().First(&pred).Error)
	corePred := convert.PredictionToCore(pred)
	assert.Equal(t, testSamples(), corePred.Samples)
	require.NotNil(t, corePred.Goal)
	assert.Equal(t, 1, corePred.Goal.Team)

	var drift model.DriftSample
	require.NoError(t, b.DB().First(&drift).Error)
	assert.Equal(t, float32(2.5), drift.PositionError)
}

func TestEndSession_StampsFrames(t *testing.T) {
	b := newSQLiteBackend(t)
	s := &core.Session{Mode: "soccar", StartTime: time.Now()}
	require.NoError(t, b.StartSession(s))

	for frame := uint64(1); frame <= 5; frame++ {
		require.NoError(t, b.RecordBallState(&core.BallState{Frame: frame}))
	}
	require.NoError(t, b.EndSession())

	var row model.Session
	require.NoError(t, b.DB().First(&row, s.ID).Error)
	assert.Equal(t, uint64(5), row.Frames)
	assert.False(t, row.EndTime.IsZero())
}

func TestClose_FlushesPendingRows(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	b := New(Dependencies{DB: db, LogManager: logging.NewSlogManager(), FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	require.NoError(t, b.RecordBallState(&core.BallState{Frame: 1}))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "second close is a no-op")

	var n int64
	require.NoError(t, db.Model(&model.BallState{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestRecordPerformance(t *testing.T) {
	b := newSQLiteBackend(t)
	s := &core.Session{Mode: "soccar"}
	require.NoError(t, b.StartSession(s))

	require.NoError(t, b.RecordPerformance(model.Performance{
		Time:              time.Now(),
		BufferLengths:     model.BufferLengths{Packets: 12},
		WriteQueueLengths: model.WriteQueueLengths{BallStates: 3},
		Frames:            120,
	}))

	var perf model.Performance
	require.NoError(t, b.DB().Take(&perf).Error)
	assert.Equal(t, s.ID, perf.SessionID)
	assert.Equal(t, uint16(12), perf.BufferLengths.Packets)
	assert.Equal(t, uint64(120), perf.Frames)
}

func TestFlush_Batches(t *testing.T) {
	b := newSQLiteBackend(t)
	require.NoError(t, b.StartSession(&core.Session{Mode: "soccar"}))

	n := writeBatchSize*2 + 17
	for frame := range n {
		require.NoError(t, b.RecordBallState(&core.BallState{Frame: uint64(frame)}))
	}
	b.Flush()

	var count int64
	require.NoError(t, b.DB().Model(&model.BallState{}).Count(&count).Error)
	assert.EqualValues(t, n, count)
	assert.Equal(t, n, b.PeakBacklog()["ballStates"])
}

func TestFlush_FailedWriteIsRequeued(t *testing.T) {
	b := newSQLiteBackend(t)
	require.NoError(t, b.StartSession(&core.Session{Mode: "soccar"}))

	require.NoError(t, b.DB().Migrator().DropTable(&model.CarState{}))
	require.NoError(t, b.RecordBallState(&core.BallState{Frame: 1}))
	for slot := range 3 {
		require.NoError(t, b.RecordCarState(&core.CarState{Frame: 1, Slot: slot}))
	}

	b.Flush()
	assert.Equal(t, 0, b.QueueLengths()["ballStates"])
	assert.Equal(t, 3, b.QueueLengths()["carStates"], "rows survive the failed write")

	require.NoError(t, b.DB().AutoMigrate(&model.CarState{}))
	b.Flush()

	var cars []model.CarState
	require.NoError(t, b.DB().Order("id").Find(&cars).Error)
	require.Len(t, cars, 3)
	assert.Equal(t, 0, b.QueueLengths()["carStates"])
	for i, c := range cars {
		assert.EqualValues(t, i, c.Slot)
	}
}
