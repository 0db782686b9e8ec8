package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlpredict/rlpredict/internal/dispatcher"
	"github.com/rlpredict/rlpredict/internal/monitor"
	"github.com/rlpredict/rlpredict/internal/parser"
	"github.com/rlpredict/rlpredict/internal/prediction"
	"github.com/rlpredict/rlpredict/internal/session"
	"github.com/rlpredict/rlpredict/internal/storage"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
	"github.com/rlpredict/rlpredict/pkg/simulation"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) { l.add(msg) }
func (l *mockLogger) Info(msg string, keysAndValues ...any)  { l.add(msg) }
func (l *mockLogger) Error(msg string, keysAndValues ...any) { l.add(msg) }

func (l *mockLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu sync.Mutex

	sessions    []*core.Session
	fieldInfos  []*core.FieldInfo
	balls       []core.BallState
	cars        []core.CarState
	predictions []core.Prediction
	drift       []core.DriftSample
	ended       int
	startErr    error
}

var _ storage.Backend = (*mockBackend)(nil)

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	s.ID = uint(len(b.sessions) + 1)
	b.sessions = append(b.sessions, s)
	return nil
}

func (b *mockBackend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended++
	return nil
}

func (b *mockBackend) RecordFieldInfo(info *core.FieldInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fieldInfos = append(b.fieldInfos, info)
	return nil
}

func (b *mockBackend) RecordBallState(s *core.BallState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balls = append(b.balls, *s)
	return nil
}

func (b *mockBackend) RecordCarState(s *core.CarState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cars = append(b.cars, *s)
	return nil
}

func (b *mockBackend) RecordPrediction(p *core.Prediction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.predictions = append(b.predictions, *p)
	return nil
}

func (b *mockBackend) RecordDrift(d *core.DriftSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drift = append(b.drift, *d)
	return nil
}

func (b *mockBackend) counts() (balls, cars, preds, drift int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.balls), len(b.cars), len(b.predictions), len(b.drift)
}

type fixture struct {
	d       *dispatcher.Dispatcher
	m       *Manager
	backend *mockBackend
}

func newFixture(t *testing.T, predictEvery uint64) *fixture {
	t.Helper()
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)

	pred, err := prediction.New(1.0/120, time.Second)
	require.NoError(t, err)

	backend := &mockBackend{}
	m := NewManager(context.Background(), Dependencies{
		Parser:       parser.NewParser(nil),
		Predictor:    pred,
		Workers:      2,
		PredictEvery: predictEvery,
		Now:          func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}, backend)
	m.RegisterHandlers(d)
	return &fixture{d: d, m: m, backend: backend}
}

func (f *fixture) dispatch(t *testing.T, cmd string, args ...string) (any, error) {
	t.Helper()
	return f.d.Dispatch(dispatcher.Event{Command: cmd, Args: args, Timestamp: time.Now()})
}

func packetArg(t *testing.T, elapsed float64, ballPos linalg.Vec3, cars ...core.PlayerInfo) string {
	t.Helper()
	pkt := core.GameTickPacket{
		GameCars: cars,
		NumCars:  len(cars),
		GameBall: core.BallInfo{
			Physics:        core.Physics{Location: ballPos, Velocity: linalg.Vec3{X: 300}},
			CollisionShape: core.ShapeRecord(core.Sphere{Diameter: 182.5}),
		},
		GameInfo: core.GameInfo{SecondsElapsed: elapsed, WorldGravityZ: -650, FrameNum: int64(elapsed * 120)},
	}
	data, err := json.Marshal(pkt)
	require.NoError(t, err)
	return string(data)
}

func player(name string, spawnID int32, team int) core.PlayerInfo {
	return core.PlayerInfo{
		Physics:         core.Physics{Location: linalg.Vec3{X: 100, Z: 17}},
		Name:            name,
		Team:            team,
		SpawnID:         spawnID,
		HasWheelContact: true,
		Boost:           33,
	}
}

func TestRegisterHandlers_SessionCommandsAfterMode(t *testing.T) {
	f := newFixture(t, 0)

	for _, cmd := range []string{CmdMode, CmdStatus, CmdMetric} {
		assert.True(t, f.d.HasHandler(cmd), cmd)
	}
	sessionCmds := []string{CmdFieldInfo, CmdPacket, CmdPredict, CmdPredictBatch, CmdEnd}
	for _, cmd := range sessionCmds {
		assert.False(t, f.d.HasHandler(cmd), cmd)
	}

	_, err := f.dispatch(t, CmdPacket, "{}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	_, err = f.dispatch(t, CmdMode, "soccar")
	require.NoError(t, err)
	for _, cmd := range sessionCmds {
		assert.True(t, f.d.HasHandler(cmd), cmd)
	}
}

func TestHandleMode(t *testing.T) {
	f := newFixture(t, 0)

	res, err := f.dispatch(t, CmdMode, `"Soccar"`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"session": uint(1), "mode": "soccar"}, res)
	require.Len(t, f.backend.sessions, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), f.backend.sessions[0].StartTime)
	assert.True(t, f.m.Session().Active())

	// same mode again is a no-op
	res, err = f.dispatch(t, CmdMode, "soccar")
	require.NoError(t, err)
	assert.Equal(t, uint(1), res.(map[string]any)["session"])
	assert.Len(t, f.backend.sessions, 1)

	_, err = f.dispatch(t, CmdMode, "hoops")
	assert.ErrorIs(t, err, simulation.ErrConfiguration)

	assert.Equal(t, simulation.ModeSoccar, f.m.Session().Game().Field().Mode())
}

func TestHandleMode_Errors(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.dispatch(t, CmdMode, "throwback")
	assert.ErrorIs(t, err, simulation.ErrConfiguration)

	_, err = f.dispatch(t, CmdMode)
	assert.ErrorIs(t, err, simulation.ErrConfiguration)

	f.backend.startErr = errors.New("db down")
	_, err = f.dispatch(t, CmdMode, "dropshot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.False(t, f.m.Session().Active())
}

func TestHandleFieldInfo(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.dispatch(t, CmdMode, "soccar")
	require.NoError(t, err)

	info := core.FieldInfo{
		Goals: []core.GoalInfo{
			{TeamNum: 0, Location: linalg.Vec3{Y: -5120, Z: 321.39}, Direction: linalg.Vec3{Y: 1}, Width: 1785.51, Height: 642.775},
			{TeamNum: 1, Location: linalg.Vec3{Y: 5120, Z: 321.39}, Direction: linalg.Vec3{Y: -1}, Width: 1785.51, Height: 642.775},
		},
		NumGoals:  2,
		BoostPads: []core.BoostPadInfo{{Location: linalg.Vec3{Y: -4240, Z: 70}}},
		NumBoosts: 1,
	}
	data, err := json.Marshal(info)
	require.NoError(t, err)

	res, err := f.dispatch(t, CmdFieldInfo, string(data))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"goals": 2, "boostPads": 1}, res)
	assert.Len(t, f.backend.fieldInfos, 1)
	assert.Len(t, f.m.Session().Game().Field().Goals(), 2)

	// static info loads once per field
	_, err = f.dispatch(t, CmdFieldInfo, string(data))
	assert.ErrorIs(t, err, simulation.ErrConfiguration)
}

func TestHandlePacket_RecordsWorld(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.dispatch(t, CmdMode, "soccar")
	require.NoError(t, err)

	_, err = f.dispatch(t, CmdPacket, packetArg(t, 10, linalg.Vec3{Z: 500}, player("Nexto", 7, 0), player("Human", 9, 1)))
	require.NoError(t, err)
	f.d.Wait()

	balls, cars, preds, drift := f.backend.counts()
	assert.Equal(t, 1, balls)
	assert.Equal(t, 2, cars)
	assert.Zero(t, preds, "auto prediction disabled")
	assert.Zero(t, drift)

	ball := f.backend.balls[0]
	assert.Equal(t, uint(1), ball.SessionID)
	assert.Equal(t, uint64(1), ball.Frame)
	assert.Equal(t, 10.0, ball.Time)
	assert.Equal(t, linalg.Vec3{Z: 500}, ball.Position)

	car := f.backend.cars[1]
	assert.Equal(t, 1, car.Slot)
	assert.Equal(t, "Human", car.Name)
	assert.Equal(t, int32(9), car.SpawnID)
	assert.True(t, car.OnGround)

	assert.Equal(t, 2, f.m.deps.Roster.Len())
}

func TestHandlePacket_RejectsBadPacket(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.dispatch(t, CmdMode, "soccar")
	require.NoError(t, err)

	_, err = f.m.handlePacket(dispatcher.Event{Args: []string{"not json"}})
	assert.ErrorIs(t, err, simulation.ErrIngestion)

	boxBall := core.GameTickPacket{GameBall: core.BallInfo{CollisionShape: core.ShapeRecord(core.Box{Length: 1, Width: 1, Height: 1})}}
	data, _ := json.Marshal(boxBall)
	_, err = f.m.handlePacket(dispatcher.Event{Args: []string{string(data)}})
	assert.ErrorIs(t, err, simulation.ErrIngestion)

	assert.Zero(t, f.m.Session().Game().Frames())
	balls, _, _, _ := f.backend.counts()
	assert.Zero(t, balls)
}

func TestHandlePacket_PredictsAndMeasuresDrift(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.dispatch(t, CmdMode, "soccar")
	require.NoError(t, err)

	_, err = f.dispatch(t, CmdPacket, packetArg(t, 1, linalg.Vec3{Z: 500}))
	require.NoError(t, err)
	_, err = f.dispatch(t, CmdPacket, packetArg(t, 1+1.0/120, linalg.Vec3{X: 3, Z: 500}))
	require.NoError(t, err)
	f.d.Wait()

	_, _, preds, drift := f.backend.counts()
	assert.Equal(t, 2, preds)
	require.Equal(t, 1, drift)

	d := f.backend.drift[0]
	assert.Equal(t, uint64(2), d.Frame)
	assert.Equal(t, uint64(1), d.PredictionFrame)
	assert.InDelta(t, 1.0/120, d.Lookahead, 1e-9)
	assert.Greater(t, d.PositionError, 0.0)

	step, _ := f.m.timings.Snapshot()
	assert.GreaterOrEqual(t, step, time.Duration(0))
}

func TestHandlePacket_NoSession(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.m.handlePacket(dispatcher.Event{Args: []string{"{}"}})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestHandlePredict(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.dispatch(t, CmdMode, "soccar")
	require.NoError(t, err)
	_, err = f.dispatch(t, CmdPacket, packetArg(t, 4, linalg.Vec3{Z: 800}))
	require.NoError(t, err)
	f.d.Wait()

	res, err := f.dispatch(t, CmdPredict, "0.5")
	require.NoError(t, err)
	pred := res.(core.Prediction)
	assert.Equal(t, uint(1), pred.SessionID)
	assert.Equal(t, uint64(1), pred.Frame)
	assert.Equal(t, 4.0, pred.StartTime)
	assert.Len(t, pred.Samples, 61)

	// default horizon
	res, err = f.dispatch(t, CmdPredict)
	require.NoError(t, err)
	assert.Len(t, res.(core.Prediction).Samples, 121)

	_, _, preds, _ := f.backend.counts()
	assert.Equal(t, 2, preds)

	_, err = f.dispatch(t, CmdPredict, "-3")
	assert.Error(t, err)
}

func TestHandlePredictBatch(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.dispatch(t, CmdMode, "soccar")
	require.NoError(t, err)
	_, err = f.dispatch(t, CmdPacket, packetArg(t, 2, linalg.Vec3{Z: 800}))
	require.NoError(t, err)
	f.d.Wait()

	res, err := f.dispatch(t, CmdPredictBatch, `[{}, {"velocity":{"x":0,"y":0,"z":1000}}, {"position":{"x":0,"y":0,"z":300}}]`, "0.25")
	require.NoError(t, err)
	preds := res.([]core.Prediction)
	require.Len(t, preds, 3)

	assert.Equal(t, linalg.Vec3{Z: 800}, preds[0].Samples[0].Position)
	assert.Equal(t, linalg.Vec3{Z: 1000}, preds[1].Samples[0].Velocity)
	assert.Equal(t, linalg.Vec3{Z: 300}, preds[2].Samples[0].Position)
	for _, p := range preds {
		assert.Len(t, p.Samples, 31)
		assert.Equal(t, uint64(1), p.Frame)
	}
	assert.Greater(t, preds[1].Samples[30].Position.Z, preds[0].Samples[30].Position.Z)

	_, _, recorded, _ := f.backend.counts()
	assert.Zero(t, recorded, "what-if predictions are not recorded")
}

func TestHandleEnd(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.dispatch(t, CmdMode, "hoops")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = f.dispatch(t, CmdPacket, packetArg(t, float64(i), linalg.Vec3{Z: 200}))
		require.NoError(t, err)
	}

	res, err := f.dispatch(t, CmdEnd)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"session": uint(1), "mode": "hoops", "frames": uint64(5)}, res)
	assert.Equal(t, 1, f.backend.ended)
	assert.False(t, f.m.Session().Active())

	_, err = f.dispatch(t, CmdEnd)
	assert.ErrorIs(t, err, ErrNoSession)

	// a new session may use a different mode
	res, err = f.dispatch(t, CmdMode, "dropshot")
	require.NoError(t, err)
	assert.Equal(t, uint(2), res.(map[string]any)["session"])
}

func TestHandleStatus(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.dispatch(t, CmdStatus)
	assert.Error(t, err, "no monitor configured")

	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	ctx := session.NewContext()
	mon := monitor.NewService(monitor.Dependencies{Session: ctx, Dispatcher: d})
	m := NewManager(context.Background(), Dependencies{Session: ctx, Parser: parser.NewParser(nil), Monitor: mon}, nil)
	m.RegisterHandlers(d)
	assert.Same(t, mon.Timings(), m.timings)

	_, err = d.Dispatch(dispatcher.Event{Command: CmdMode, Args: []string{"soccar"}})
	require.NoError(t, err)

	res, err := d.Dispatch(dispatcher.Event{Command: CmdStatus})
	require.NoError(t, err)
	status := res.(monitor.Status)
	assert.Equal(t, "soccar", status.Mode)
	assert.Contains(t, status.Dispatcher, CmdPacket)
}

func TestHandleStatus_CountsRejectedPackets(t *testing.T) {
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	ctx := session.NewContext()
	mon := monitor.NewService(monitor.Dependencies{Session: ctx, Dispatcher: d})
	m := NewManager(context.Background(), Dependencies{Session: ctx, Parser: parser.NewParser(nil), Monitor: mon}, nil)
	m.RegisterHandlers(d)

	_, err = d.Dispatch(dispatcher.Event{Command: CmdMode, Args: []string{"soccar"}})
	require.NoError(t, err)

	tests := []struct {
		name     string
		arg      string
		rejected uint64
	}{
		{"valid packet", packetArg(t, 1, linalg.Vec3{Z: 100}), 0},
		{"malformed json", "{not json", 1},
		{"car count beyond provided", strings.Replace(packetArg(t, 2, linalg.Vec3{Z: 100}), `"num_cars":0`, `"num_cars":5`, 1), 2},
		{"valid packet after rejections", packetArg(t, 3, linalg.Vec3{Z: 100}), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := d.Dispatch(dispatcher.Event{Command: CmdPacket, Args: []string{tt.arg}})
			require.NoError(t, err)
			assert.Equal(t, "queued", res)
			d.Wait()

			res, err = d.Dispatch(dispatcher.Event{Command: CmdStatus})
			require.NoError(t, err)
			status := res.(monitor.Status)
			assert.Equal(t, tt.rejected, status.RejectedPackets)
			if tt.rejected > 0 {
				assert.NotEmpty(t, status.LastRejection)
			}
		})
	}

	// a new session starts from zero
	_, err = d.Dispatch(dispatcher.Event{Command: CmdEnd})
	require.NoError(t, err)
	_, err = d.Dispatch(dispatcher.Event{Command: CmdMode, Args: []string{"soccar"}})
	require.NoError(t, err)
	res, err := d.Dispatch(dispatcher.Event{Command: CmdStatus})
	require.NoError(t, err)
	assert.Zero(t, res.(monitor.Status).RejectedPackets)
}

func TestHandleMetric_InfluxDisabled(t *testing.T) {
	f := newFixture(t, 0)
	res, err := f.m.handleMetric(dispatcher.Event{Args: []string{"host_metrics", "bot"}})
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestNoBackend(t *testing.T) {
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	m := NewManager(context.Background(), Dependencies{Parser: parser.NewParser(nil)}, nil)
	m.RegisterHandlers(d)

	_, err = d.Dispatch(dispatcher.Event{Command: CmdMode, Args: []string{"soccar"}})
	require.NoError(t, err)
	_, err = m.handlePacket(dispatcher.Event{Args: []string{packetArg(t, 1, linalg.Vec3{Z: 100})}})
	require.NoError(t, err)
	_, err = d.Dispatch(dispatcher.Event{Command: CmdPredict})
	assert.ErrorIs(t, err, simulation.ErrConfiguration, "no predictor")

	res, err := d.Dispatch(dispatcher.Event{Command: CmdEnd})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.(map[string]any)["frames"])
}

// exportingBackend produces a file on :END:
type exportingBackend struct {
	*mockBackend
}

func (exportingBackend) GetExportedFilePath() string { return "/tmp/rlpredict/hoops.json.gz" }
func (exportingBackend) GetExportMetadata() core.ExportMetadata {
	return core.ExportMetadata{Mode: "hoops", Path: "/tmp/rlpredict/hoops.json.gz"}
}

type mockUploader struct {
	paths []string
	err   error
}

func (u *mockUploader) Upload(_ context.Context, path string, _ core.ExportMetadata) error {
	u.paths = append(u.paths, path)
	return u.err
}

func TestHandleEnd_UploadsExport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		uploaded bool
	}{
		{"uploaded", nil, true},
		{"upload failure keeps session ended", errors.New("archive down"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := dispatcher.New(&mockLogger{})
			require.NoError(t, err)
			up := &mockUploader{err: tt.err}
			m := NewManager(context.Background(), Dependencies{
				Parser:   parser.NewParser(nil),
				Uploader: up,
			}, exportingBackend{&mockBackend{}})
			m.RegisterHandlers(d)

			_, err = d.Dispatch(dispatcher.Event{Command: CmdMode, Args: []string{"hoops"}})
			require.NoError(t, err)
			res, err := d.Dispatch(dispatcher.Event{Command: CmdEnd})
			require.NoError(t, err)

			out := res.(map[string]any)
			assert.Equal(t, tt.uploaded, out["uploaded"])
			assert.Equal(t, "hoops", out["export"].(core.ExportMetadata).Mode)
			assert.Equal(t, []string{"/tmp/rlpredict/hoops.json.gz"}, up.paths)
		})
	}
}
