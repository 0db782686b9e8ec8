package prediction

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/simulation"
)

// PredictBatch predicts every ball concurrently with at most workers
// sandboxes in flight. Results keep the order of balls. A cancelled context
// stops scheduling new sandboxes and returns the context error.
func (p *Predictor) PredictBatch(ctx context.Context, balls []simulation.Ball, horizon float64, workers int) ([]core.Prediction, error) {
	out := make([]core.Prediction, len(balls))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i := range balls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.PredictFor(gctx, balls[i], horizon)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
