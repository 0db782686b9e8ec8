package prediction

import (
	"sync"

	"github.com/rlpredict/rlpredict/pkg/core"
)

// DriftTracker compares the latest prediction against authoritative balls
// that arrive after it.
type DriftTracker struct {
	mu   sync.Mutex
	last *core.Prediction
}

// NewDriftTracker returns an empty tracker.
func NewDriftTracker() *DriftTracker {
	return &DriftTracker{}
}

// Track makes pred the reference for later observations.
func (d *DriftTracker) Track(pred core.Prediction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = &pred
}

// Reset drops the reference prediction.
func (d *DriftTracker) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = nil
}

// Observe measures how far the observed ball is from where the reference
// prediction placed it at the same time. It reports false when there is no
// reference or the observation falls outside its trajectory.
func (d *DriftTracker) Observe(obs core.BallState) (core.DriftSample, bool) {
	d.mu.Lock()
	pred := d.last
	d.mu.Unlock()
	if pred == nil {
		return core.DriftSample{}, false
	}

	want, ok := At(*pred, obs.Time)
	if !ok {
		return core.DriftSample{}, false
	}

	return core.DriftSample{
		SessionID:       obs.SessionID,
		Frame:           obs.Frame,
		Time:            obs.Time,
		PredictionFrame: pred.Frame,
		Lookahead:       obs.Time - pred.StartTime,
		PositionError:   want.Position.Distance(obs.Position),
		VelocityError:   want.Velocity.Distance(obs.Velocity),
	}, true
}
