// Package prediction runs ball sandboxes forward in time. A sandbox is a
// clone of the authoritative ball, so predictions never touch game state.
package prediction

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/simulation"
)

// Predictor steps ball sandboxes at a fixed dt.
type Predictor struct {
	dt      float64
	horizon float64

	// OTEL metrics
	duration metric.Float64Histogram
	steps    metric.Int64Counter
	goals    metric.Int64Counter
}

// New creates a predictor with the given step and default horizon.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(dt float64, horizon time.Duration) (*Predictor, error) {
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: prediction step must be positive, got %v", simulation.ErrConfiguration, dt)
	}
	if horizon < 0 {
		return nil, fmt.Errorf("%w: prediction horizon must not be negative, got %v", simulation.ErrConfiguration, horizon)
	}

	p := &Predictor{dt: dt, horizon: horizon.Seconds()}

	m := meter()
	var err error

	p.duration, err = m.Float64Histogram(
		"prediction.duration",
		metric.WithDescription("Wall time of one trajectory prediction"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	p.steps, err = m.Int64Counter(
		"prediction.steps",
		metric.WithDescription("Total ball steps simulated by predictions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating steps counter: %w", err)
	}

	p.goals, err = m.Int64Counter(
		"prediction.goals",
		metric.WithDescription("Predictions whose trajectory enters a goal"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating goals counter: %w", err)
	}

	return p, nil
}

// Dt returns the simulation step in seconds.
func (p *Predictor) Dt() float64 { return p.dt }

// Horizon returns the default horizon in seconds.
func (p *Predictor) Horizon() float64 { return p.horizon }

// Steps returns how many steps cover horizon seconds.
func (p *Predictor) Steps(horizon float64) int {
	if horizon <= 0 {
		return 0
	}
	// tolerate float error so 6s at 1/120 is 720 steps, not 721
	return int(math.Ceil(horizon/p.dt - 1e-9))
}

// Predict runs a sandbox of ball over the default horizon.
func (p *Predictor) Predict(ctx context.Context, ball simulation.Ball) core.Prediction {
	return p.PredictFor(ctx, ball, p.horizon)
}

// PredictFor runs a sandbox of ball for horizon seconds. The first sample is
// the starting state. The first goal mouth the ball fully enters is reported
// once; stepping continues past it. The caller's ball is not modified.
func (p *Predictor) PredictFor(ctx context.Context, ball simulation.Ball, horizon float64) core.Prediction {
	start := time.Now()
	n := p.Steps(horizon)

	sandbox := ball.Clone()
	field := sandbox.Field()

	samples := make([]core.BallSample, 0, n+1)
	samples = append(samples, sandbox.Sample())

	var goal *core.PredictedGoal
	for i := 0; i < n; i++ {
		sandbox.Step(p.dt)
		s := sandbox.Sample()
		samples = append(samples, s)
		if goal == nil && field != nil {
			if g, ok := field.GoalContaining(s.Position, sandbox.Radius()); ok {
				goal = &core.PredictedGoal{Team: g.Team, Time: s.Time, Position: s.Position}
			}
		}
	}

	elapsed := time.Since(start)
	attrs := metric.WithAttributes(attribute.String("mode", modeOf(field)))
	p.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	p.steps.Add(ctx, int64(n), attrs)
	if goal != nil {
		p.goals.Add(ctx, 1, attrs)
	}

	return core.Prediction{
		StartTime:   ball.Time(),
		Dt:          p.dt,
		Samples:     samples,
		Goal:        goal,
		ComputeTime: elapsed,
	}
}

func modeOf(f *simulation.Field) string {
	if f == nil {
		return "none"
	}
	return string(f.Mode())
}

// At interpolates the trajectory at time t. Samples must be evenly spaced
// by pred.Dt from pred.StartTime. Times outside the trajectory report false.
func At(pred core.Prediction, t float64) (core.BallSample, bool) {
	n := len(pred.Samples)
	if n == 0 || math.IsNaN(t) {
		return core.BallSample{}, false
	}
	first, last := pred.Samples[0], pred.Samples[n-1]
	if t < first.Time || t > last.Time {
		return core.BallSample{}, false
	}
	if n == 1 || pred.Dt <= 0 {
		return first, true
	}

	i := int((t - first.Time) / pred.Dt)
	if i >= n-1 {
		return last, true
	}
	a, b := pred.Samples[i], pred.Samples[i+1]
	span := b.Time - a.Time
	if span <= 0 {
		return a, true
	}
	f := (t - a.Time) / span
	return core.BallSample{
		Time:            t,
		Position:        a.Position.Lerp(b.Position, f),
		Velocity:        a.Velocity.Lerp(b.Velocity, f),
		AngularVelocity: a.AngularVelocity.Lerp(b.AngularVelocity, f),
	}, true
}
