package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rlpredict/rlpredict/internal/config"
	"github.com/rlpredict/rlpredict/internal/prediction"
	"github.com/rlpredict/rlpredict/pkg/linalg"
	"github.com/rlpredict/rlpredict/pkg/simulation"
)

const (
	benchSteps = 720
	benchDt    = 1.0 / 120
)

// benchBalls returns n balls spread across the field with varied velocities.
func benchBalls(field *simulation.Field, gravity float64, n int) []simulation.Ball {
	balls := make([]simulation.Ball, n)
	for i := range balls {
		k := float64(i)
		balls[i] = simulation.NewBallAt(0,
			linalg.Vec3{X: -2000 + 400*k, Y: 1500 - 300*k, Z: 300 + 50*k},
			simulation.WithField(field),
			simulation.WithGravity(gravity),
			simulation.WithVelocity(linalg.Vec3{X: 1400 - 150*k, Y: 900 + 100*k, Z: 400}),
			simulation.WithAngularVelocity(linalg.Vec3{X: 1, Y: -2, Z: 0.5}),
		)
	}
	return balls
}

// bench times benchSteps single ball steps and one batch prediction over the
// configured horizon and writes a table to out.
func bench(ctx context.Context, modeName string, out io.Writer) error {
	mode, err := simulation.ParseMode(modeName)
	if err != nil {
		return err
	}
	field, err := simulation.NewField(mode)
	if err != nil {
		return err
	}
	simCfg := config.GetSimulationConfig()
	workers := max(simCfg.Workers, 1)

	ball := benchBalls(field, simCfg.Gravity, 1)[0]
	start := time.Now()
	for range benchSteps {
		ball.Step(benchDt)
	}
	stepTotal := time.Since(start)

	predictor, err := prediction.New(benchDt, simCfg.Horizon)
	if err != nil {
		return err
	}
	balls := benchBalls(field, simCfg.Gravity, workers*4)
	start = time.Now()
	preds, err := predictor.PredictBatch(ctx, balls, predictor.Horizon(), workers)
	if err != nil {
		return err
	}
	batchTotal := time.Since(start)

	samples := 0
	for _, p := range preds {
		samples += len(p.Samples)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "mode\t%s\n", mode)
	fmt.Fprintf(tw, "steps\t%d @ %.4fs\n", benchSteps, benchDt)
	fmt.Fprintf(tw, "step total\t%s\n", stepTotal)
	fmt.Fprintf(tw, "per step\t%s\n", stepTotal/benchSteps)
	fmt.Fprintf(tw, "final ball\t%.1f %.1f %.1f\n", ball.Position().X, ball.Position().Y, ball.Position().Z)
	fmt.Fprintf(tw, "batch\t%d predictions, %d workers, %.1fs horizon\n", len(preds), workers, predictor.Horizon())
	fmt.Fprintf(tw, "batch total\t%s\n", batchTotal)
	fmt.Fprintf(tw, "batch samples\t%d\n", samples)
	return tw.Flush()
}
