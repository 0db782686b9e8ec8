package memory

import (
	"fmt"
	"sync"

	"github.com/rlpredict/rlpredict/internal/config"
	"github.com/rlpredict/rlpredict/pkg/core"
)

// FrameRecord groups the ball and cars of one ingested packet
type FrameRecord struct {
	Frame uint64
	Ball  core.BallState
	Cars  []core.CarState
}

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	fieldInfo   *core.FieldInfo
	frames      []FrameRecord
	frameIndex  map[uint64]int // frame number -> index in frames
	predictions []core.Prediction
	drift       []core.DriftSample

	idCounter      uint
	lastExportPath string
	lastExportMeta core.ExportMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:        cfg,
		frameIndex: make(map[uint64]int),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and assigns its ID
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter
	b.session = s

	// Reset all collections
	b.fieldInfo = nil
	b.frames = nil
	b.frameIndex = make(map[uint64]int)
	b.predictions = nil
	b.drift = nil

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return fmt.Errorf("no active session")
	}
	return b.exportJSON()
}

// RecordFieldInfo keeps the session's goals and boost pads
func (b *Backend) RecordFieldInfo(info *core.FieldInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *info
	b.fieldInfo = &cp
	return nil
}

// frame returns the record for frame n, creating it on first use
func (b *Backend) frame(n uint64) *FrameRecord {
	if i, ok := b.frameIndex[n]; ok {
		return &b.frames[i]
	}
	b.frames = append(b.frames, FrameRecord{Frame: n})
	b.frameIndex[n] = len(b.frames) - 1
	return &b.frames[len(b.frames)-1]
}

// RecordBallState records the ball of one frame
func (b *Backend) RecordBallState(s *core.BallState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame(s.Frame).Ball = *s
	return nil
}

// RecordCarState records one car of one frame
func (b *Backend) RecordCarState(s *core.CarState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.frame(s.Frame)
	f.Cars = append(f.Cars, *s)
	return nil
}

// RecordPrediction records a computed trajectory
func (b *Backend) RecordPrediction(p *core.Prediction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.predictions = append(b.predictions, *p)
	return nil
}

// RecordDrift records a drift measurement
func (b *Backend) RecordDrift(d *core.DriftSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drift = append(b.drift, *d)
	return nil
}

// Frames returns a copy of the recorded frames in arrival order
func (b *Backend) Frames() []FrameRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]FrameRecord(nil), b.frames...)
}

// Predictions returns a copy of the recorded predictions
func (b *Backend) Predictions() []core.Prediction {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.Prediction(nil), b.predictions...)
}

// DriftSamples returns a copy of the recorded drift measurements
func (b *Backend) DriftSamples() []core.DriftSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.DriftSample(nil), b.drift...)
}

// GetExportedFilePath returns the path of the last export
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last export
func (b *Backend) GetExportMetadata() core.ExportMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMeta
}
