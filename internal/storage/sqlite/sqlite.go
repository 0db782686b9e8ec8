// Package sqlitestorage keeps the session in an in-memory SQLite database
// and snapshots it to a file with VACUUM INTO, on a timer and when a session
// ends. Row handling is the gorm backend's; this package only adds the file.
package sqlitestorage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rlpredict/rlpredict/internal/database"
	"github.com/rlpredict/rlpredict/internal/logging"
	"github.com/rlpredict/rlpredict/internal/model"
	pgstorage "github.com/rlpredict/rlpredict/internal/storage/postgres"
	"github.com/rlpredict/rlpredict/pkg/core"

	"gorm.io/gorm"
)

type Config struct {
	DumpInterval time.Duration // 0 disables the timer, sessions are still dumped on end
	DumpPath     string
}

type Backend struct {
	*pgstorage.Backend

	db  *gorm.DB
	cfg Config
	log *logging.SlogManager

	stop    context.CancelFunc
	stopped sync.WaitGroup
	closed  sync.Once
}

// New opens the in-memory database. Nothing runs until Init.
func New(cfg Config, logManager *logging.SlogManager) (*Backend, error) {
	db, err := database.OpenSqlite("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	return &Backend{
		Backend: pgstorage.New(pgstorage.Dependencies{DB: db, LogManager: logManager}),
		db:      db,
		cfg:     cfg,
		log:     logManager,
	}, nil
}

func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.cfg.DumpPath == "" || b.cfg.DumpInterval <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.stop = cancel
	b.stopped.Add(1)
	go func() {
		defer b.stopped.Done()
		b.dumpEvery(ctx, b.cfg.DumpInterval)
	}()
	return nil
}

// EndSession flushes and closes the session row, then dumps.
func (b *Backend) EndSession() error {
	if err := b.Backend.EndSession(); err != nil {
		return err
	}
	return b.Dump()
}

// Close stops the timer, then the writer. Safe to call twice.
func (b *Backend) Close() error {
	var err error
	b.closed.Do(func() {
		if b.stop != nil {
			b.stop()
			b.stopped.Wait()
		}
		err = b.Backend.Close()
	})
	return err
}

// Dump snapshots the database to DumpPath; a no-op without one.
func (b *Backend) Dump() error {
	if b.cfg.DumpPath == "" {
		return nil
	}
	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
		return err
	}
	b.log.WriteLog("sqlite:dump", fmt.Sprintf("Dumped to %s in %s", b.cfg.DumpPath, time.Since(start)), "DEBUG")
	return nil
}

func (b *Backend) GetExportedFilePath() string {
	return b.cfg.DumpPath
}

// GetExportMetadata reads the current session row and its prediction count.
func (b *Backend) GetExportMetadata() core.ExportMetadata {
	id := b.SessionID()
	meta := core.ExportMetadata{Path: b.cfg.DumpPath}

	var row model.Session
	if err := b.db.First(&row, id).Error; err == nil {
		meta.Mode = row.Mode
		meta.StartTime = row.StartTime
		meta.Frames = row.Frames
	}
	var predictions int64
	b.db.Model(&model.Prediction{}).Where("session_id = ?", id).Count(&predictions)
	meta.Predictions = int(predictions)
	return meta
}

func (b *Backend) dumpEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Dump(); err != nil {
				b.log.WriteLog("sqlite:dumpEvery", fmt.Sprintf("Error dumping to disk: %v", err), "ERROR")
			}
		}
	}
}
