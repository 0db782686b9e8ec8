package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlpredict/rlpredict/internal/config"
	"github.com/rlpredict/rlpredict/internal/storage"
	"github.com/rlpredict/rlpredict/internal/storage/memory"
	sqlitestorage "github.com/rlpredict/rlpredict/internal/storage/sqlite"
	wsstorage "github.com/rlpredict/rlpredict/internal/storage/websocket"
)

func TestCreateStorageBackend(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.StorageConfig
		check func(t *testing.T, b storage.Backend)
	}{
		{
			name: "memory",
			cfg:  config.StorageConfig{Type: "memory", Memory: config.MemoryConfig{OutputDir: t.TempDir()}},
			check: func(t *testing.T, b storage.Backend) {
				assert.IsType(t, &memory.Backend{}, b)
			},
		},
		{
			name: "empty type defaults to memory",
			cfg:  config.StorageConfig{},
			check: func(t *testing.T, b storage.Backend) {
				assert.IsType(t, &memory.Backend{}, b)
			},
		},
		{
			name: "sqlite",
			cfg:  config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{}},
			check: func(t *testing.T, b storage.Backend) {
				require.IsType(t, &sqlitestorage.Backend{}, b)
				_, ok := b.(storage.Uploadable)
				assert.True(t, ok)
				assert.NoError(t, b.Close())
			},
		},
		{
			name: "websocket",
			cfg:  config.StorageConfig{Type: "websocket", WebSocket: config.WebSocketConfig{URL: "ws://127.0.0.1:1/stream"}},
			check: func(t *testing.T, b storage.Backend) {
				require.IsType(t, &wsstorage.Backend{}, b)
				_, ok := b.(storage.QueueReporter)
				assert.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := createStorageBackend(tt.cfg, zerolog.Nop())
			require.NoError(t, err)
			tt.check(t, b)
		})
	}
}

func TestCreateStorageBackend_Unknown(t *testing.T) {
	b, err := createStorageBackend(config.StorageConfig{Type: "mongo"}, zerolog.Nop())
	assert.Nil(t, b)
	assert.EqualError(t, err, "unknown storage type: mongo")
}

func TestCloseStorage_NilIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { closeStorage(nil) })
}
