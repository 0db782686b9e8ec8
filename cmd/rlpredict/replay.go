package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rlpredict/rlpredict/internal/config"
	"github.com/rlpredict/rlpredict/internal/dispatcher"
	"github.com/rlpredict/rlpredict/internal/logging"
	"github.com/rlpredict/rlpredict/internal/parser"
	"github.com/rlpredict/rlpredict/internal/prediction"
	"github.com/rlpredict/rlpredict/internal/session"
	"github.com/rlpredict/rlpredict/internal/storage/memory"
	"github.com/rlpredict/rlpredict/internal/worker"
	"github.com/rlpredict/rlpredict/pkg/core"
)

// driftBucket aggregates drift samples whose lookahead falls in one second.
type driftBucket struct {
	n        int
	posSum   float64
	posMax   float64
	velSum   float64
	velMax   float64
	lookFrom int
}

func (b *driftBucket) add(d core.DriftSample) {
	b.n++
	b.posSum += d.PositionError
	b.velSum += d.VelocityError
	b.posMax = math.Max(b.posMax, d.PositionError)
	b.velMax = math.Max(b.velMax, d.VelocityError)
}

// bucketDrift groups samples by whole seconds of lookahead.
func bucketDrift(samples []core.DriftSample) []driftBucket {
	var buckets []driftBucket
	for _, s := range samples {
		i := int(math.Max(s.Lookahead, 0))
		for len(buckets) <= i {
			buckets = append(buckets, driftBucket{lookFrom: len(buckets)})
		}
		buckets[i].add(s)
	}
	return buckets
}

// replay feeds a file of recorded packets, one JSON packet per line, through
// a fresh session and reports how far predictions drifted from the packets
// that followed them.
func replay(ctx context.Context, path, modeName string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open replay: %w", err)
	}
	defer f.Close()

	simCfg := config.GetSimulationConfig()
	predictor, err := prediction.New(simCfg.Dt, simCfg.Horizon)
	if err != nil {
		return err
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(newZerolog(os.Stderr, "warn")))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	backend := memory.New(config.MemoryConfig{})
	sess := session.NewContext()
	mgr := worker.NewManager(ctx, worker.Dependencies{
		Session:      sess,
		LogManager:   SlogManager,
		Parser:       parser.NewParser(Logger),
		Predictor:    predictor,
		Workers:      simCfg.Workers,
		PredictEvery: uint64(max(simCfg.PredictEvery, 1)),
	}, backend)
	mgr.RegisterHandlers(d)

	if _, err := d.Dispatch(dispatcher.Event{Command: worker.CmdMode, Args: []string{modeName}, Timestamp: time.Now()}); err != nil {
		return err
	}

	start := time.Now()
	fed, err := feedPackets(ctx, f, d)
	if err != nil {
		return err
	}
	d.Wait()
	elapsed := time.Since(start)

	var frames uint64
	if game := sess.Game(); game != nil {
		frames = game.Frames()
	}
	drift := backend.DriftSamples()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "packets\t%d\n", fed)
	fmt.Fprintf(tw, "ingested\t%d\n", frames)
	fmt.Fprintf(tw, "predictions\t%d\n", len(backend.Predictions()))
	fmt.Fprintf(tw, "drift samples\t%d\n", len(drift))
	fmt.Fprintf(tw, "elapsed\t%s\n\n", elapsed)

	fmt.Fprintln(tw, "lookahead\tn\tpos mean\tpos max\tvel mean\tvel max")
	for _, b := range bucketDrift(drift) {
		if b.n == 0 {
			continue
		}
		fmt.Fprintf(tw, "%d-%ds\t%d\t%.1f\t%.1f\t%.1f\t%.1f\n",
			b.lookFrom, b.lookFrom+1, b.n,
			b.posSum/float64(b.n), b.posMax,
			b.velSum/float64(b.n), b.velMax)
	}
	return tw.Flush()
}

// feedPackets dispatches every non-empty line as a :PACKET: and returns how
// many were queued.
func feedPackets(ctx context.Context, r io.Reader, d *dispatcher.Dispatcher) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	fed := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return fed, ctx.Err()
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if _, err := d.Dispatch(dispatcher.Event{Command: worker.CmdPacket, Args: []string{string(line)}, Timestamp: time.Now()}); err != nil {
			return fed, err
		}
		fed++
	}
	if err := scanner.Err(); err != nil {
		return fed, fmt.Errorf("failed to read replay: %w", err)
	}
	return fed, nil
}
