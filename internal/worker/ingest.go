package worker

import (
	"fmt"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/rlpredict/rlpredict/internal/dispatcher"
	"github.com/rlpredict/rlpredict/internal/influx"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/simulation"
)

// handlePacket applies one packet. The host was already answered "queued",
// so a rejection is counted for :STATUS: besides being logged.
func (m *Manager) handlePacket(e dispatcher.Event) (any, error) {
	res, err := m.applyPacket(e)
	if err != nil {
		m.timings.ObserveRejectedPacket(err)
	}
	return res, err
}

// applyPacket ingests one packet, records the resulting world, measures
// drift against the last prediction and predicts on schedule.
func (m *Manager) applyPacket(e dispatcher.Event) (any, error) {
	s, game, err := m.active()
	if err != nil {
		return nil, err
	}

	pkt, err := m.deps.Parser.ParsePacket(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse packet: %w", err)
	}
	if err := game.IngestPacket(pkt); err != nil {
		return nil, err
	}

	ball, cars, frame := game.Snapshot()
	logger := m.deps.LogManager.Logger()

	joined, left := m.deps.Roster.Update(cars)
	for _, p := range joined {
		logger.Info("Player joined", "name", p.Name, "team", p.Team, "slot", p.Slot, "spawnId", p.SpawnID)
	}
	for _, p := range left {
		logger.Info("Player left", "name", p.Name, "team", p.Team, "spawnId", p.SpawnID)
	}

	state := ballState(s.ID, frame, ball)
	m.record(func() error { return m.backend.RecordBallState(&state) }, "ball state")
	for i, car := range cars {
		cs := carState(s.ID, frame, ball.Time(), i, car)
		m.record(func() error { return m.backend.RecordCarState(&cs) }, "car state")
	}

	if d, ok := m.deps.Drift.Observe(state); ok {
		m.record(func() error { return m.backend.RecordDrift(&d) }, "drift")
		m.writePoint(influx.BucketDrift, influx.DriftPoint(s.Mode, d, e.Timestamp))
	}
	m.writePoint(influx.BucketIngest, influx.IngestPoint(s.Mode, frame, len(cars), ball.Velocity().Norm(), e.Timestamp))

	if every := m.deps.PredictEvery; every > 0 && m.deps.Predictor != nil && frame%every == 0 {
		m.predict(s, frame, ball, m.deps.Predictor.Horizon(), e.Timestamp)
	}
	return nil, nil
}

// record logs storage failures instead of failing the packet; the world
// state is already applied.
func (m *Manager) record(fn func() error, what string) {
	if m.backend == nil {
		return
	}
	if err := fn(); err != nil {
		m.deps.LogManager.Logger().Error("Failed to record "+what, "error", err)
	}
}

func (m *Manager) writePoint(bucket string, point *influxdb2_write.Point) {
	if !m.deps.Influx.Enabled() {
		return
	}
	if err := m.deps.Influx.WritePoint(bucket, point); err != nil {
		m.deps.LogManager.Logger().Warn("Failed to write metric", "bucket", bucket, "error", err)
	}
}

// predict runs, records and tracks a full prediction from ball.
func (m *Manager) predict(s *core.Session, frame uint64, ball simulation.Ball, horizon float64, at time.Time) core.Prediction {
	pred := m.deps.Predictor.PredictFor(m.ctx, ball, horizon)
	pred.SessionID = s.ID
	pred.Frame = frame

	m.deps.Drift.Track(pred)
	m.timings.ObservePrediction(pred)
	m.record(func() error { return m.backend.RecordPrediction(&pred) }, "prediction")
	m.writePoint(influx.BucketPredictions, influx.PredictionPoint(s.Mode, pred, at))
	return pred
}

func ballState(sessionID uint, frame uint64, b simulation.Ball) core.BallState {
	return core.BallState{
		SessionID:       sessionID,
		Frame:           frame,
		Time:            b.Time(),
		Position:        b.Position(),
		Velocity:        b.Velocity(),
		AngularVelocity: b.AngularVelocity(),
	}
}

func carState(sessionID uint, frame uint64, t float64, slot int, c simulation.Car) core.CarState {
	return core.CarState{
		SessionID:       sessionID,
		Frame:           frame,
		Time:            t,
		Slot:            slot,
		SpawnID:         c.SpawnID,
		Name:            c.Name,
		Team:            c.Team,
		Position:        c.Position,
		Rotation:        c.Rotation,
		Velocity:        c.Velocity,
		AngularVelocity: c.AngularVelocity,
		Boost:           c.Boost,
		Demolished:      c.Demolished,
		Jumped:          c.Jumped,
		DoubleJumped:    c.DoubleJumped,
		Dodged:          c.Dodged,
		SuperSonic:      c.SuperSonic,
		OnGround:        c.OnGround,
	}
}
