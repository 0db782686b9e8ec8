package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rlpredict/rlpredict/internal/config"
	"github.com/rlpredict/rlpredict/internal/database"
	"github.com/rlpredict/rlpredict/internal/storage"
	"github.com/rlpredict/rlpredict/internal/storage/memory"
	pgstorage "github.com/rlpredict/rlpredict/internal/storage/postgres"
	sqlitestorage "github.com/rlpredict/rlpredict/internal/storage/sqlite"
	wsstorage "github.com/rlpredict/rlpredict/internal/storage/websocket"
)

// dbManager is set when the postgres backend is selected. On fallback to
// SQLite it dumps the session to the sqlite path at shutdown.
var dbManager *database.Manager

func createStorageBackend(storageCfg config.StorageConfig, zl zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "memory", "":
		Logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	case "postgres":
		mgr := database.NewManager(zl)
		mgr.DumpPath = storageCfg.SQLite.Path
		if err := mgr.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		dbManager = mgr
		Logger.Info("Postgres storage backend initialized", "dialect", mgr.DB.Name(), "fallback", mgr.Fallback)
		return pgstorage.New(pgstorage.Dependencies{
			DB:         mgr.DB,
			LogManager: SlogManager,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.Path,
		}, SlogManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "path", storageCfg.SQLite.Path)
		return backend, nil

	case "websocket":
		Logger.Info("WebSocket storage backend initialized", "url", storageCfg.WebSocket.URL)
		return wsstorage.New(wsstorage.Config{
			URL:    storageCfg.WebSocket.URL,
			Secret: storageCfg.WebSocket.Secret,
		}, Logger), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageCfg.Type)
	}
}

// initStorage creates the configured backend and initializes it.
func initStorage(zl zerolog.Logger) (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()

	backend, err := createStorageBackend(storageCfg, zl)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err, "type", storageCfg.Type)
		return nil, err
	}
	return backend, nil
}

// closeStorage closes the backend. A postgres fallback database is dumped
// before its pool is released.
func closeStorage(backend storage.Backend) {
	if backend == nil {
		return
	}
	if err := backend.Close(); err != nil {
		Logger.Error("Failed to close storage backend", "error", err)
	}
	if up, ok := backend.(storage.Uploadable); ok && up.GetExportedFilePath() != "" {
		Logger.Info("Session exported", "path", up.GetExportedFilePath())
	}
	if dbManager != nil {
		if err := dbManager.Dump(); err != nil {
			Logger.Error("Failed to dump fallback database", "error", err)
		}
		if err := dbManager.Close(); err != nil {
			Logger.Error("Failed to close database", "error", err)
		}
		dbManager = nil
	}
}
