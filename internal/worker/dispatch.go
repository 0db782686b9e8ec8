package worker

import (
	"fmt"

	"github.com/rlpredict/rlpredict/internal/dispatcher"
	"github.com/rlpredict/rlpredict/internal/influx"
	"github.com/rlpredict/rlpredict/internal/storage"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/simulation"
)

// Commands
const (
	CmdMode         = ":MODE:"
	CmdFieldInfo    = ":FIELD:INFO:"
	CmdPacket       = ":PACKET:"
	CmdPredict      = ":PREDICT:"
	CmdPredictBatch = ":PREDICT:BATCH:"
	CmdStatus       = ":STATUS:"
	CmdMetric       = ":METRIC:"
	CmdEnd          = ":END:"
)

// packetBuffer bounds the packets waiting for ingestion.
const packetBuffer = 1000

// RegisterHandlers registers the commands that are valid without a session.
// The first successful :MODE: registers the rest.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.mu.Lock()
	m.dispatcher = d
	m.mu.Unlock()

	d.Register(CmdMode, m.handleMode, dispatcher.Logged())
	d.Register(CmdStatus, m.handleStatus)
	d.Register(CmdMetric, m.handleMetric, dispatcher.Buffered(1000))
}

// registerSessionHandlers is idempotent; later sessions reuse the handlers.
func (m *Manager) registerSessionHandlers(d *dispatcher.Dispatcher) {
	if d == nil || d.HasHandler(CmdPacket) {
		return
	}

	d.Register(CmdFieldInfo, m.handleFieldInfo, dispatcher.Logged())

	// packets must be applied in arrival order, never dropped
	d.Register(CmdPacket, m.handlePacket, dispatcher.Buffered(packetBuffer), dispatcher.Blocking(), dispatcher.Logged())

	d.Register(CmdPredict, m.handlePredict, dispatcher.Logged())
	d.Register(CmdPredictBatch, m.handlePredictBatch, dispatcher.Logged())
	d.Register(CmdEnd, m.handleEnd, dispatcher.Logged())
}

// handleMode configures the arena and starts a session. Repeating the
// active mode is a no-op; switching modes needs :END: first.
func (m *Manager) handleMode(e dispatcher.Event) (any, error) {
	mode, err := m.deps.Parser.ParseMode(e.Args)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.deps.Session.Session(); s != nil {
		if s.Mode == string(mode) {
			return sessionResult(s), nil
		}
		return nil, fmt.Errorf("%w: session already running in %s mode", simulation.ErrConfiguration, s.Mode)
	}

	field, err := simulation.NewField(mode)
	if err != nil {
		return nil, err
	}
	game, err := simulation.NewGame(field)
	if err != nil {
		return nil, err
	}

	s := &core.Session{Mode: string(mode), StartTime: m.deps.Now()}
	if m.backend != nil {
		if err := m.backend.StartSession(s); err != nil {
			return nil, fmt.Errorf("failed to start session in storage: %w", err)
		}
	}

	m.deps.Session.Start(s, game)
	m.deps.Roster.Reset()
	m.deps.Drift.Reset()
	m.timings.Reset()
	m.registerSessionHandlers(m.dispatcher)

	m.deps.LogManager.Logger().Info("Session started", "session", s.ID, "mode", s.Mode)
	return sessionResult(s), nil
}

func sessionResult(s *core.Session) map[string]any {
	return map[string]any{"session": s.ID, "mode": s.Mode}
}

// active returns the running session and its game.
func (m *Manager) active() (*core.Session, *simulation.Game, error) {
	s, game := m.deps.Session.Session(), m.deps.Session.Game()
	if s == nil || game == nil {
		return nil, nil, ErrNoSession
	}
	return s, game, nil
}

func (m *Manager) handleFieldInfo(e dispatcher.Event) (any, error) {
	_, game, err := m.active()
	if err != nil {
		return nil, err
	}

	info, err := m.deps.Parser.ParseFieldInfo(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse field info: %w", err)
	}
	if err := game.IngestFieldInfo(info); err != nil {
		return nil, err
	}

	if m.backend != nil {
		if err := m.backend.RecordFieldInfo(&info); err != nil {
			return nil, fmt.Errorf("failed to record field info: %w", err)
		}
	}
	return map[string]int{"goals": len(info.Goals), "boostPads": len(info.BoostPads)}, nil
}

func (m *Manager) handleStatus(dispatcher.Event) (any, error) {
	if m.deps.Monitor == nil {
		return nil, fmt.Errorf("status monitor not configured")
	}
	return m.deps.Monitor.Status(), nil
}

func (m *Manager) handleMetric(e dispatcher.Event) (any, error) {
	if !m.deps.Influx.Enabled() {
		return nil, nil
	}
	bucket, point, err := influx.ParseMetric(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metric: %w", err)
	}
	return nil, m.deps.Influx.WritePoint(bucket, point)
}

// handleEnd drains queued packets, closes the session and flushes storage.
func (m *Manager) handleEnd(dispatcher.Event) (any, error) {
	m.mu.Lock()
	d := m.dispatcher
	m.mu.Unlock()
	if d != nil {
		d.Wait()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.deps.Session.End(m.deps.Now())
	if s == nil {
		return nil, ErrNoSession
	}
	m.deps.Roster.Reset()
	m.deps.Drift.Reset()

	result := map[string]any{"session": s.ID, "mode": s.Mode, "frames": s.Frames}
	if m.backend == nil {
		return result, nil
	}
	if err := m.backend.EndSession(); err != nil {
		return nil, fmt.Errorf("failed to end session in storage: %w", err)
	}
	if u, ok := m.backend.(storage.Uploadable); ok {
		if path := u.GetExportedFilePath(); path != "" {
			meta := u.GetExportMetadata()
			result["export"] = meta
			m.upload(path, meta, result)
		}
	}

	m.deps.LogManager.Logger().Info("Session ended", "session", s.ID, "frames", s.Frames)
	return result, nil
}

// upload sends the export to the archive. A failed upload leaves the file
// on disk and does not fail :END:.
func (m *Manager) upload(path string, meta core.ExportMetadata, result map[string]any) {
	if m.deps.Uploader == nil {
		return
	}
	if err := m.deps.Uploader.Upload(m.ctx, path, meta); err != nil {
		m.deps.LogManager.Logger().Warn("Failed to upload session export", "path", path, "error", err)
		result["uploaded"] = false
		return
	}
	result["uploaded"] = true
}
