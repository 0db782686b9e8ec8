package storage

import (
	"time"

	"github.com/rlpredict/rlpredict/internal/model"
	"github.com/rlpredict/rlpredict/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management (StartSession may assign s.ID)
	StartSession(s *core.Session) error
	EndSession() error

	// Static arena data, once per session
	RecordFieldInfo(info *core.FieldInfo) error

	// Per-packet state
	RecordBallState(b *core.BallState) error
	RecordCarState(c *core.CarState) error

	// Prediction output
	RecordPrediction(p *core.Prediction) error
	RecordDrift(d *core.DriftSample) error
}

// Uploadable is an optional interface for storage backends that produce
// files on disk when a session ends.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.ExportMetadata
}

// QueueReporter is an optional interface for backends that buffer writes.
// Keys name the record kind.
type QueueReporter interface {
	QueueLengths() map[string]int
}

// PerformanceRecorder is implemented by database backends that keep the
// monitor's status snapshots alongside session data.
type PerformanceRecorder interface {
	RecordPerformance(p model.Performance) error
	LastWriteDuration() time.Duration
}
