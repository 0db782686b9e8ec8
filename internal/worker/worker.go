// Package worker applies host commands to the session: it builds the arena
// on :MODE:, ingests packets into the game, runs predictions and forwards
// everything to the storage backend and metrics.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rlpredict/rlpredict/internal/cache"
	"github.com/rlpredict/rlpredict/internal/dispatcher"
	"github.com/rlpredict/rlpredict/internal/influx"
	"github.com/rlpredict/rlpredict/internal/logging"
	"github.com/rlpredict/rlpredict/internal/monitor"
	"github.com/rlpredict/rlpredict/internal/parser"
	"github.com/rlpredict/rlpredict/internal/prediction"
	"github.com/rlpredict/rlpredict/internal/session"
	"github.com/rlpredict/rlpredict/internal/storage"
	"github.com/rlpredict/rlpredict/pkg/core"
)

// ErrNoSession is returned by session commands sent before :MODE:.
var ErrNoSession = errors.New("no active session, send :MODE: first")

// Uploader receives a session's export after :END:.
type Uploader interface {
	Upload(ctx context.Context, path string, meta core.ExportMetadata) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Session      *session.Context
	Roster       *cache.RosterCache
	LogManager   *logging.SlogManager
	Parser       *parser.Parser
	Predictor    *prediction.Predictor
	Drift        *prediction.DriftTracker
	Influx       *influx.Manager  // optional
	Monitor      *monitor.Service // optional, serves :STATUS:
	Uploader     Uploader         // optional
	Workers      int              // sandboxes in flight for :PREDICT:BATCH:
	PredictEvery uint64           // predict automatically every n packets, 0 disables
	Now          func() time.Time // wall clock for session timestamps
}

// Manager owns the handlers for one process. Sessions come and go; the
// manager and its backend live for the whole run.
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	ctx     context.Context

	// serializes session transitions
	mu         sync.Mutex
	dispatcher *dispatcher.Dispatcher
	timings    *monitor.Timings
}

// NewManager creates a new worker manager
func NewManager(ctx context.Context, deps Dependencies, backend storage.Backend) *Manager {
	if deps.Session == nil {
		deps.Session = session.NewContext()
	}
	if deps.Roster == nil {
		deps.Roster = cache.NewRosterCache()
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.Drift == nil {
		deps.Drift = prediction.NewDriftTracker()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	timings := &monitor.Timings{}
	if deps.Monitor != nil {
		timings = deps.Monitor.Timings()
	}

	return &Manager{
		deps:    deps,
		backend: backend,
		ctx:     ctx,
		timings: timings,
	}
}

// Session returns the session context shared with the monitor.
func (m *Manager) Session() *session.Context {
	return m.deps.Session
}
