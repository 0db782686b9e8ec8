// Package postgres implements the storage.Backend interface using GORM/PostgreSQL
// with internal queues and a background DB writer goroutine.
package postgres

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rlpredict/rlpredict/internal/database"
	"github.com/rlpredict/rlpredict/internal/logging"
	"github.com/rlpredict/rlpredict/internal/model"
	"github.com/rlpredict/rlpredict/internal/model/convert"
	"github.com/rlpredict/rlpredict/internal/queue"
	"github.com/rlpredict/rlpredict/pkg/core"

	"gorm.io/gorm"
)

const (
	defaultFlushInterval = 2 * time.Second
	writeBatchSize       = 1000
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	BallStates   *queue.Queue[model.BallState]
	CarStates    *queue.Queue[model.CarState]
	Predictions  *queue.Queue[model.Prediction]
	DriftSamples *queue.Queue[model.DriftSample]
}

func newQueues() *queues {
	return &queues{
		BallStates:   queue.New[model.BallState](),
		CarStates:    queue.New[model.CarState](),
		Predictions:  queue.New[model.Prediction](),
		DriftSamples: queue.New[model.DriftSample](),
	}
}

// Backend implements storage.Backend using GORM/PostgreSQL with queue-based batch writes.
// Any gorm dialector works; the sqlite backend reuses it over an in-memory DB.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	stopChan  chan struct{}
	done      chan struct{}
	dbReady   bool

	// serializes flushes from the writer loop and EndSession
	flushMu           sync.Mutex
	lastWriteDuration atomic.Int64
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// Init runs schema migration and starts the DB writer goroutine.
// If no DB was injected via Dependencies, it creates its own postgres connection.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
	}

	if err := b.setupDB(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.dbReady = true

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// setupDB enables PostGIS where available and migrates tables.
func (b *Backend) setupDB() error {
	log := b.deps.LogManager
	log.WriteLog("setupDB", "Migrating schema on "+b.deps.DB.Name(), "INFO")
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	log.WriteLog("setupDB", "Database setup complete", "INFO")
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	<-b.done

	peaks := b.PeakBacklog()
	b.deps.LogManager.WriteLog("Close", fmt.Sprintf("Writer stopped, peak backlog ball=%d car=%d prediction=%d drift=%d",
		peaks["ballStates"], peaks["carStates"], peaks["predictions"], peaks["driftSamples"]), "INFO")
	return nil
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// StartSession inserts the session row and assigns the DB ID back to s.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}

	gormSession := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&gormSession).Error; err != nil {
		return fmt.Errorf("failed to insert new session: %w", err)
	}

	s.ID = gormSession.ID
	b.sessionID.Store(uint64(gormSession.ID))
	return nil
}

// SetSessionID sets the current session ID for the DB writer (used by CLI tools).
func (b *Backend) SetSessionID(id uint) {
	b.sessionID.Store(uint64(id))
}

// SessionID returns the current session ID.
func (b *Backend) SessionID() uint {
	return uint(b.sessionID.Load())
}

// EndSession flushes pending rows and stamps the session's end time and
// frame count.
func (b *Backend) EndSession() error {
	if b.deps.DB == nil || !b.dbReady {
		return nil
	}
	b.Flush()

	id := b.SessionID()
	if id == 0 {
		return nil
	}
	frames := countFrames(b.deps.DB, id)
	err := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).Updates(map[string]any{
		"end_time": time.Now(),
		"frames":   frames,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update session %d: %w", id, err)
	}
	return nil
}

func countFrames(db *gorm.DB, sessionID uint) int64 {
	var n int64
	db.Model(&model.BallState{}).Where("session_id = ?", sessionID).Count(&n)
	return n
}

// RecordFieldInfo inserts goals and boost pads synchronously because they are
// written once per session.
func (b *Backend) RecordFieldInfo(info *core.FieldInfo) error {
	if b.deps.DB == nil {
		return nil
	}
	id := b.SessionID()

	goals := convert.CoreToGoals(id, *info)
	if len(goals) > 0 {
		if err := b.deps.DB.Create(&goals).Error; err != nil {
			return fmt.Errorf("failed to insert goals: %w", err)
		}
	}
	pads := convert.CoreToBoostPads(id, *info)
	if len(pads) > 0 {
		if err := b.deps.DB.Create(&pads).Error; err != nil {
			return fmt.Errorf("failed to insert boost pads: %w", err)
		}
	}
	return nil
}

// RecordBallState converts and queues a ball state.
func (b *Backend) RecordBallState(s *core.BallState) error {
	b.queues.BallStates.Push(convert.CoreToBallState(*s))
	return nil
}

// RecordCarState converts and queues a car state.
func (b *Backend) RecordCarState(s *core.CarState) error {
	b.queues.CarStates.Push(convert.CoreToCarState(*s))
	return nil
}

// RecordPrediction converts and queues a prediction.
func (b *Backend) RecordPrediction(p *core.Prediction) error {
	gormObj, err := convert.CoreToPrediction(*p)
	if err != nil {
		return fmt.Errorf("failed to convert prediction: %w", err)
	}
	b.queues.Predictions.Push(gormObj)
	return nil
}

// RecordDrift converts and queues a drift sample.
func (b *Backend) RecordDrift(d *core.DriftSample) error {
	b.queues.DriftSamples.Push(convert.CoreToDriftSample(*d))
	return nil
}

// RecordPerformance inserts a monitor snapshot for the current session.
func (b *Backend) RecordPerformance(p model.Performance) error {
	if b.deps.DB == nil || !b.dbReady {
		return nil
	}
	p.SessionID = b.SessionID()
	if err := b.deps.DB.Create(&p).Error; err != nil {
		return fmt.Errorf("failed to insert performance: %w", err)
	}
	return nil
}

// QueueLengths reports rows waiting for the writer.
func (b *Backend) QueueLengths() map[string]int {
	return map[string]int{
		"ballStates":   b.queues.BallStates.Len(),
		"carStates":    b.queues.CarStates.Len(),
		"predictions":  b.queues.Predictions.Len(),
		"driftSamples": b.queues.DriftSamples.Len(),
	}
}

// PeakBacklog reports the largest number of rows each queue has held.
func (b *Backend) PeakBacklog() map[string]int {
	return map[string]int{
		"ballStates":   b.queues.BallStates.Peak(),
		"carStates":    b.queues.CarStates.Peak(),
		"predictions":  b.queues.Predictions.Peak(),
		"driftSamples": b.queues.DriftSamples.Peak(),
	}
}

// LastWriteDuration returns how long the latest flush took.
func (b *Backend) LastWriteDuration() time.Duration {
	return time.Duration(b.lastWriteDuration.Load())
}

// writerLoop periodically drains queues into the DB until Close.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.Flush()
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}

// Flush writes every queued row now. Rows are stamped with the current
// session ID.
func (b *Backend) Flush() {
	if !b.dbReady {
		return
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	start := time.Now()
	log := b.deps.LogManager.WriteLog
	db := b.deps.DB

	// Read sessionID once per write cycle
	sessionID := b.SessionID()

	writeQueue(db, b.queues.BallStates, "ball states", log, func(items []model.BallState) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})
	writeQueue(db, b.queues.CarStates, "car states", log, func(items []model.CarState) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})
	writeQueue(db, b.queues.Predictions, "predictions", log, func(items []model.Prediction) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})
	writeQueue(db, b.queues.DriftSamples, "drift samples", log, func(items []model.DriftSample) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})

	b.lastWriteDuration.Store(int64(time.Since(start)))
}

// writeQueue writes the queued rows in batches of writeBatchSize, one
// transaction each. A failed batch and everything behind it goes back on the
// queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string), prepare func([]T)) {
	for !q.Empty() {
		items := q.Drain(writeBatchSize)
		if prepare != nil {
			prepare(items)
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&items).Error
		})
		if err != nil {
			log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
			q.Requeue(items...)
			return
		}
	}
}
