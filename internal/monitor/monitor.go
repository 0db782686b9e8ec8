// Package monitor takes periodic status snapshots of the running session:
// dispatcher and storage queue depths, simulation timing and write latency.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/rlpredict/rlpredict/internal/influx"
	"github.com/rlpredict/rlpredict/internal/logging"
	"github.com/rlpredict/rlpredict/internal/model"
	intOtel "github.com/rlpredict/rlpredict/internal/otel"
	"github.com/rlpredict/rlpredict/internal/session"
	"github.com/rlpredict/rlpredict/internal/storage"
	"github.com/rlpredict/rlpredict/pkg/core"
)

const defaultInterval = 5 * time.Second

// QueueSource reports buffered work keyed by name.
type QueueSource interface {
	QueueLengths() map[string]int
}

// MetricSource is read once per snapshot for its counters.
type MetricSource interface {
	Collect(ctx context.Context) (metricdata.ResourceMetrics, error)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager *logging.SlogManager
	Session    *session.Context
	Dispatcher QueueSource
	Storage    storage.Backend
	Influx     *influx.Manager
	Metrics    MetricSource
	Timings    *Timings
	StatusPath string // rewritten on every tick when set
	Interval   time.Duration
}

// Status is one snapshot. It is also the result of :STATUS:.
type Status struct {
	Time             time.Time      `json:"time"`
	SessionID        uint           `json:"sessionId"`
	Mode             string         `json:"mode"`
	Frames           uint64         `json:"frames"`
	Dispatcher       map[string]int `json:"dispatcher"`
	Storage          map[string]int `json:"storage"`
	StepMicros       float64        `json:"stepMicros"`
	LastPredictionMs float64        `json:"lastPredictionMs"`
	LastWriteMs      float64        `json:"lastWriteMs"`
	RejectedPackets  uint64         `json:"rejectedPackets"`
	LastRejection    string         `json:"lastRejection,omitempty"`

	Counters map[string]int64 `json:"counters,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.Timings == nil {
		deps.Timings = &Timings{}
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Service{deps: deps}
}

// Timings returns the collector the worker reports into.
func (s *Service) Timings() *Timings {
	return s.deps.Timings
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status collects a snapshot without recording it.
func (s *Service) Status() Status {
	st := Status{
		Time:       time.Now(),
		Dispatcher: map[string]int{},
		Storage:    map[string]int{},
	}

	if ctx := s.deps.Session; ctx != nil {
		if sess := ctx.Session(); sess != nil {
			st.SessionID = sess.ID
			st.Mode = sess.Mode
		}
		if game := ctx.Game(); game != nil {
			st.Frames = game.Frames()
		}
	}
	if s.deps.Dispatcher != nil {
		st.Dispatcher = s.deps.Dispatcher.QueueLengths()
	}
	if qr, ok := s.deps.Storage.(storage.QueueReporter); ok {
		st.Storage = qr.QueueLengths()
	}
	if pr, ok := s.deps.Storage.(storage.PerformanceRecorder); ok {
		st.LastWriteMs = durationMs(pr.LastWriteDuration())
	}

	if s.deps.Metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		rm, err := s.deps.Metrics.Collect(ctx)
		cancel()
		if err != nil {
			s.deps.LogManager.Logger().Warn("Failed to collect metrics", "error", err)
		} else {
			st.Counters = intOtel.Counters(rm)
		}
	}

	step, pred := s.deps.Timings.Snapshot()
	st.StepMicros = float64(step.Nanoseconds()) / 1000
	st.LastPredictionMs = durationMs(pred)
	st.RejectedPackets, st.LastRejection = s.deps.Timings.Rejected()
	return st
}

// Performance converts a snapshot into its database row.
func (st Status) Performance() model.Performance {
	return model.Performance{
		Time:      st.Time,
		SessionID: st.SessionID,
		BufferLengths: model.BufferLengths{
			Packets: clampU16(st.Dispatcher[":PACKET:"]),
		},
		WriteQueueLengths: model.WriteQueueLengths{
			BallStates:   clampU16(st.Storage["ballStates"]),
			CarStates:    clampU16(st.Storage["carStates"]),
			Predictions:  clampU16(st.Storage["predictions"]),
			DriftSamples: clampU16(st.Storage["driftSamples"]),
		},
		Frames:              st.Frames,
		StepMicros:          float32(st.StepMicros),
		LastPredictionMs:    float32(st.LastPredictionMs),
		LastWriteDurationMs: float32(st.LastWriteMs),
	}
}

// Point converts a snapshot into an influx point.
func (st Status) Point() *influxdb2_write.Point {
	p := influxdb2_write.NewPoint("status",
		map[string]string{"mode": st.Mode},
		map[string]interface{}{
			"frames":             int64(st.Frames),
			"step_us":            st.StepMicros,
			"last_prediction_ms": st.LastPredictionMs,
			"last_write_ms":      st.LastWriteMs,
			"rejected_packets":   int64(st.RejectedPackets),
		},
		st.Time)
	for k, v := range st.Dispatcher {
		p.AddField("dispatcher_"+k, v)
	}
	for k, v := range st.Storage {
		p.AddField("storage_"+k, v)
	}
	for k, v := range st.Counters {
		p.AddField(k, v)
	}
	return p
}

func clampU16(n int) uint16 {
	if n > math.MaxUint16 {
		return math.MaxUint16
	}
	if n < 0 {
		return 0
	}
	return uint16(n)
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopChan, s.done)
	return nil
}

func (s *Service) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	logger := s.deps.LogManager.Logger()
	logger.Debug("Starting status monitor", "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.deps.Session == nil || !s.deps.Session.Active() {
				continue
			}
			if err := s.Record(s.Status()); err != nil {
				logger.Error("Error recording status", "error", err)
			}
		}
	}
}

// Record writes st to the status file, influx and the database, whichever
// are configured.
func (s *Service) Record(st Status) error {
	var errs []error

	if s.deps.StatusPath != "" {
		if err := writeStatusFile(s.deps.StatusPath, st); err != nil {
			errs = append(errs, err)
		}
	}
	if s.deps.Influx.Enabled() {
		if err := s.deps.Influx.WritePoint(influx.BucketPerformance, st.Point()); err != nil {
			errs = append(errs, err)
		}
	}
	if pr, ok := s.deps.Storage.(storage.PerformanceRecorder); ok {
		if err := pr.RecordPerformance(st.Performance()); err != nil {
			errs = append(errs, err)
		}
	}

	s.deps.LogManager.Logger().Debug("Status",
		"frames", st.Frames,
		"stepMicros", st.StepMicros,
		"lastPredictionMs", st.LastPredictionMs,
		"rejectedPackets", st.RejectedPackets,
		"dispatcher", st.Dispatcher,
		"storage", st.Storage)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("record status: %w", err)
	}
	return nil
}

func writeStatusFile(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Stop stops the status monitor and waits for the loop to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}

// Timings accumulates simulation timing reported by the worker, along with
// the packets it had to reject. Buffered packets are acknowledged before they
// are applied, so this is where the host learns about rejections.
type Timings struct {
	mu             sync.Mutex
	stepMean       time.Duration
	lastPrediction time.Duration
	predictions    int
	rejected       uint64
	lastRejection  string
}

// ObservePrediction records the duration of p and updates the running mean
// of a single step.
func (t *Timings) ObservePrediction(p core.Prediction) {
	steps := len(p.Samples) - 1
	if steps <= 0 {
		return
	}
	step := p.ComputeTime / time.Duration(steps)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.predictions++
	t.stepMean += (step - t.stepMean) / time.Duration(t.predictions)
	t.lastPrediction = p.ComputeTime
}

// Snapshot returns the mean step duration and the latest prediction duration.
func (t *Timings) Snapshot() (step, lastPrediction time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stepMean, t.lastPrediction
}

// ObserveRejectedPacket counts a packet that was parsed or validated and
// then dropped without touching the world.
func (t *Timings) ObserveRejectedPacket(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejected++
	if err != nil {
		t.lastRejection = err.Error()
	}
}

// Rejected returns the rejected packet count and the latest reason.
func (t *Timings) Rejected() (uint64, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rejected, t.lastRejection
}

// Reset clears the accumulated timing and rejections, e.g. at session start.
func (t *Timings) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stepMean = 0
	t.lastPrediction = 0
	t.predictions = 0
	t.rejected = 0
	t.lastRejection = ""
}
