package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// captureStdout points the console writer at a buffer until the returned
// function is called, which yields everything written.
func captureStdout(t *testing.T) func() string {
	t.Helper()
	var buf bytes.Buffer
	prev := osStdout
	osStdout = &buf
	t.Cleanup(func() { osStdout = prev })
	return func() string {
		osStdout = prev
		return buf.String()
	}
}

func TestSetup_Destination(t *testing.T) {
	t.Run("file keeps stdout clean for results", func(t *testing.T) {
		stdout := captureStdout(t)
		var file bytes.Buffer
		m := NewSlogManager()
		m.Setup(&file, "info", nil)
		m.Logger().Info("session started")

		assert.Empty(t, stdout())
		assert.Contains(t, file.String(), "session started")
	})

	t.Run("no file falls back to stdout", func(t *testing.T) {
		stdout := captureStdout(t)
		m := NewSlogManager()
		m.Setup(nil, "info", nil)
		m.Logger().Info("bench done")

		assert.Contains(t, stdout(), "bench done")
	})

	t.Run("setup again swaps the sink", func(t *testing.T) {
		var before, after bytes.Buffer
		m := NewSlogManager()
		m.Setup(&before, "info", nil)
		m.Setup(&after, "info", nil)
		m.Logger().Info("packet queued")

		assert.NotContains(t, before.String(), "packet queued")
		assert.Contains(t, after.String(), "packet queued")
	})
}

func TestSetup_Level(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
	}{
		{"debug", true},
		{"info", false},
		{"WARN", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, tt.level, nil)
			m.Logger().Debug("step timing")
			m.Logger().Error("drift too large")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("step timing")))
			assert.Contains(t, buf.String(), "drift too large")
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"Info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	assert.Same(t, slog.Default(), NewSlogManager().Logger())
}

func TestWriteLog(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "level=DEBUG"},
		{"info", "level=INFO"},
		{"warn", "level=WARN"},
		{"error", "level=ERROR"},
		{"bogus", "level=INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, "debug", nil)
			buf.Reset()

			m.WriteLog("writerLoop", "flushed queues", tt.level)

			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), "function=writerLoop")
		})
	}

	assert.NotPanics(t, func() { NewSlogManager().WriteLog("fn", "before setup", "info") })
}

func TestSetup_OTelProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", provider)
	m.Logger().Info("bridged")

	assert.Contains(t, buf.String(), "bridged")
	assert.NoError(t, m.Flush(context.Background()))
	assert.NoError(t, NewSlogManager().Flush(context.Background()))
}

func TestSetup_GraylogSinkReceivesJSON(t *testing.T) {
	var file, gelfBuf bytes.Buffer
	m := NewSlogManager()
	m.SetGraylog(&gelfBuf)
	m.Setup(&file, "info", nil)

	gelfBuf.Reset()
	m.Logger().Info("prediction computed", "samples", 720)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(gelfBuf.Bytes(), &entry))
	assert.Equal(t, "prediction computed", entry["msg"])
	assert.Equal(t, float64(720), entry["samples"])
	assert.Contains(t, file.String(), "prediction computed")
}

func TestSetup_ContextProviderAddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	frame := 0
	m := NewSlogManager()
	m.SetContextProvider(func() []slog.Attr {
		return []slog.Attr{slog.String("mode", "hoops"), slog.Int("frame", frame)}
	})
	m.Setup(&buf, "info", nil)

	frame = 17
	m.Logger().Info("tick")

	assert.Contains(t, buf.String(), "mode=hoops")
	assert.Contains(t, buf.String(), "frame=17")
}

func TestConnectGraylog_BadAddress(t *testing.T) {
	_, err := ConnectGraylog("not a host:port")
	assert.Error(t, err)
}
