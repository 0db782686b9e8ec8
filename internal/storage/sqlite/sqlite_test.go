package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rlpredict/rlpredict/internal/logging"
	"github.com/rlpredict/rlpredict/internal/model"
	"github.com/rlpredict/rlpredict/internal/storage"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
)

// Compile-time interface checks
var (
	_ storage.Backend       = (*Backend)(nil)
	_ storage.Uploadable    = (*Backend)(nil)
	_ storage.QueueReporter = (*Backend)(nil)
)

// Each test gets a fresh schema: the shared-cache in-memory DB lives as long
// as a connection to it is open, so tests drop everything they created.
func newTestBackend(t *testing.T, cfg Config) *Backend {
	t.Helper()
	b, err := New(cfg, logging.NewSlogManager())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() {
		require.NoError(t, b.Close())
		require.NoError(t, b.db.Migrator().DropTable(model.DatabaseModels...))
	})
	return b
}

func TestSessionDumpedOnEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	b := newTestBackend(t, Config{DumpPath: path})

	s := &core.Session{Mode: "dropshot", StartTime: time.Now().UTC()}
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.RecordBallState(&core.BallState{Frame: 1, Position: linalg.NewVec3(0, 0, 102)}))
	require.NoError(t, b.RecordBallState(&core.BallState{Frame: 2, Position: linalg.NewVec3(0, 0, 101)}))
	require.NoError(t, b.RecordPrediction(&core.Prediction{Frame: 2, Samples: []core.BallSample{{Time: 0}, {Time: 1}}}))
	require.NoError(t, b.EndSession())

	_, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, path, b.GetExportedFilePath())

	// the dump is a standalone database
	dumped, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	var n int64
	require.NoError(t, dumped.Model(&model.BallState{}).Where("session_id = ?", s.ID).Count(&n).Error)
	assert.Equal(t, int64(2), n)
	sqlDB, err := dumped.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	meta := b.GetExportMetadata()
	assert.Equal(t, "dropshot", meta.Mode)
	assert.Equal(t, uint64(2), meta.Frames)
	assert.Equal(t, 1, meta.Predictions)
}

func TestDump_NoPath(t *testing.T) {
	b := newTestBackend(t, Config{})
	assert.NoError(t, b.Dump())
}

func TestDumpLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "periodic.db")
	b := newTestBackend(t, Config{DumpPath: path, DumpInterval: 20 * time.Millisecond})
	require.NoError(t, b.StartSession(&core.Session{Mode: "soccar"}))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClose_Twice(t *testing.T) {
	b, err := New(Config{DumpPath: filepath.Join(t.TempDir(), "x.db"), DumpInterval: time.Hour}, logging.NewSlogManager())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.db.Migrator().DropTable(model.DatabaseModels...) })

	require.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

func TestGetExportMetadata_NoSession(t *testing.T) {
	b := newTestBackend(t, Config{DumpPath: "/tmp/none.db"})
	meta := b.GetExportMetadata()
	assert.Equal(t, "/tmp/none.db", meta.Path)
	assert.Empty(t, meta.Mode)
	assert.Zero(t, meta.Predictions)
}
