package worker

import (
	"fmt"

	"github.com/rlpredict/rlpredict/internal/dispatcher"
	"github.com/rlpredict/rlpredict/pkg/simulation"
)

func (m *Manager) handlePredict(e dispatcher.Event) (any, error) {
	s, game, err := m.active()
	if err != nil {
		return nil, err
	}
	if m.deps.Predictor == nil {
		return nil, fmt.Errorf("%w: predictor not configured", simulation.ErrConfiguration)
	}

	horizon, err := m.deps.Parser.ParseHorizon(e.Args)
	if err != nil {
		return nil, err
	}
	if horizon == 0 {
		horizon = m.deps.Predictor.Horizon()
	}

	ball, _, frame := game.Snapshot()
	return m.predict(s, frame, ball, horizon, e.Timestamp), nil
}

// handlePredictBatch runs what-if sandboxes: each override is applied to a
// clone of the current ball and all of them are predicted concurrently.
// Results are returned but neither recorded nor tracked for drift.
func (m *Manager) handlePredictBatch(e dispatcher.Event) (any, error) {
	_, game, err := m.active()
	if err != nil {
		return nil, err
	}
	if m.deps.Predictor == nil {
		return nil, fmt.Errorf("%w: predictor not configured", simulation.ErrConfiguration)
	}

	overrides, horizon, err := m.deps.Parser.ParseBallOverrides(e.Args)
	if err != nil {
		return nil, err
	}
	if horizon == 0 {
		horizon = m.deps.Predictor.Horizon()
	}

	base, _, frame := game.Snapshot()
	balls := make([]simulation.Ball, len(overrides))
	for i, o := range overrides {
		b := base.Clone()
		if o.Position != nil {
			b.SetPosition(*o.Position)
		}
		if o.Velocity != nil {
			b.SetVelocity(*o.Velocity)
		}
		if o.AngularVelocity != nil {
			b.SetAngularVelocity(*o.AngularVelocity)
		}
		balls[i] = b
	}

	preds, err := m.deps.Predictor.PredictBatch(m.ctx, balls, horizon, m.deps.Workers)
	if err != nil {
		return nil, err
	}
	for i := range preds {
		preds[i].Frame = frame
		m.timings.ObservePrediction(preds[i])
	}
	return preds, nil
}
