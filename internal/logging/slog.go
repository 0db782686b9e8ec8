package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/rlpredict/rlpredict"

// osStdout is the console sink, swapped out by tests.
var osStdout io.Writer = os.Stdout

// SlogManager owns the process logger. A text sink is always present; GELF
// and OTel sinks are added when configured before Setup.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
	graylog     io.Writer
	provider    ContextProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel accepts slog level names in any case and falls back to info.
func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ConnectGraylog opens a GELF UDP writer to address.
func ConnectGraylog(address string) (io.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to graylog at %s: %w", address, err)
	}
	return w, nil
}

// SetGraylog adds a GELF sink, used from the next Setup on.
func (m *SlogManager) SetGraylog(w io.Writer) {
	m.graylog = w
}

// SetContextProvider stamps every record with the attributes p returns.
// Takes effect on the next Setup.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.provider = p
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup (re)builds the logger. Text records go to file, or to stdout when
// file is nil; a nil provider leaves OTel out.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	m.logProvider = provider
	opts := &slog.HandlerOptions{Level: parseLevel(level), ReplaceAttr: utcTime}

	if file == nil {
		file = osStdout
	}
	sinks := []slog.Handler{slog.NewTextHandler(file, opts)}
	if m.graylog != nil {
		sinks = append(sinks, slog.NewJSONHandler(m.graylog, opts))
	}
	if provider != nil {
		sinks = append(sinks, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)))
	}

	var h slog.Handler = NewMultiHandler(sinks...)
	if m.provider != nil {
		h = NewContextHandler(h, m.provider)
	}
	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", level)
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes buffered OTel records out.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}

// WriteLog logs data at level with the calling function as an attribute.
// It is silent before Setup.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m.logger == nil {
		return
	}
	m.logger.Log(context.Background(), parseLevel(level), data, "function", functionName)
}
