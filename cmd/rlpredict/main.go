package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/rlpredict/rlpredict/internal/api"
	"github.com/rlpredict/rlpredict/internal/config"
	"github.com/rlpredict/rlpredict/internal/dispatcher"
	"github.com/rlpredict/rlpredict/internal/influx"
	"github.com/rlpredict/rlpredict/internal/logging"
	"github.com/rlpredict/rlpredict/internal/monitor"
	intOtel "github.com/rlpredict/rlpredict/internal/otel"
	"github.com/rlpredict/rlpredict/internal/parser"
	"github.com/rlpredict/rlpredict/internal/prediction"
	"github.com/rlpredict/rlpredict/internal/session"
	"github.com/rlpredict/rlpredict/internal/worker"
)

// BuildDate and CurrentVersion can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	AppName string = "rlpredict"
)

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry, nil unless otel.enabled
	OTelProvider *intOtel.Provider

	LogFilePath string

	SessionStartTime time.Time = time.Now()
)

const usage = `usage:
  rlpredict run [configDir]              serve the line protocol on stdin/stdout
  rlpredict bench [mode]                 time ball steps and a batch prediction
  rlpredict replay <file.jsonl> [mode]   feed recorded packets and report drift
  rlpredict version`

func init() {
	// stdout carries results, so logs start on stderr
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info", nil)
	Logger = SlogManager.Logger()
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch strings.ToLower(args[0]) {
	case "run":
		configDir := "."
		if len(args) > 1 {
			configDir = args[1]
		}
		err = run(ctx, configDir, os.Stdin, os.Stdout)
	case "bench":
		config.SetDefaults()
		err = bench(ctx, modeArg(args, 1), os.Stdout)
	case "replay":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		config.SetDefaults()
		err = replay(ctx, args[1], modeArg(args, 2), os.Stdout)
	case "version":
		fmt.Println(CurrentVersion, BuildDate)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		Logger.Error("Command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

// modeArg returns args[i], or the configured mode when absent.
func modeArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return config.GetSimulationConfig().Mode
}

// run wires every service and serves the line protocol until in closes or
// ctx is cancelled.
func run(ctx context.Context, configDir string, in io.Reader, out io.Writer) error {
	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	logsDir := config.GetString("logsDir")
	var logWriter io.Writer = os.Stderr
	logFile, err := logging.OpenLogFile(logsDir, AppName, SessionStartTime)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "dir", logsDir)
	} else {
		defer logFile.Close()
		logWriter = logFile
		LogFilePath = logFile.Name()
	}

	setupOTel(logWriter)

	if config.GetBool("graylog.enabled") {
		w, err := logging.ConnectGraylog(config.GetString("graylog.address"))
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			SlogManager.SetGraylog(w)
		}
	}

	sess := session.NewContext()
	SlogManager.SetContextProvider(sess.LogAttrs)

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logWriter, config.GetString("logLevel"), otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Starting up...", "version", CurrentVersion, "log", LogFilePath)

	zl := newZerolog(logWriter, config.GetString("logLevel"))

	influxMgr := influx.NewManager(zl, filepath.Join(logsDir, fmt.Sprintf("%s.%s.lp.gz", AppName, SessionStartTime.Format("20060102_150405"))))
	if err := influxMgr.Connect(ctx, config.GetInfluxConfig()); err != nil {
		if errors.Is(err, influx.ErrDisabled) {
			Logger.Info("InfluxDB disabled")
		} else {
			Logger.Warn("InfluxDB unavailable", "error", err)
		}
	}
	defer influxMgr.Close()

	backend, err := initStorage(zl)
	if err != nil {
		return err
	}
	defer closeStorage(backend)

	d, err := dispatcher.New(logging.NewDispatcherLogger(zl))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	simCfg := config.GetSimulationConfig()
	predictor, err := prediction.New(simCfg.Dt, simCfg.Horizon)
	if err != nil {
		return err
	}

	monDeps := monitor.Dependencies{
		LogManager: SlogManager,
		Session:    sess,
		Dispatcher: d,
		Storage:    backend,
		Influx:     influxMgr,
		StatusPath: filepath.Join(logsDir, AppName+".status.json"),
		Interval:   config.GetDuration("monitor.interval"),
	}
	if OTelProvider != nil {
		monDeps.Metrics = OTelProvider
	}
	mon := monitor.NewService(monDeps)
	if err := mon.Start(); err != nil {
		Logger.Warn("Failed to start status monitor", "error", err)
	}
	defer mon.Stop()

	p := parser.NewParser(Logger)
	deps := worker.Dependencies{
		Session:      sess,
		LogManager:   SlogManager,
		Parser:       p,
		Predictor:    predictor,
		Influx:       influxMgr,
		Monitor:      mon,
		Workers:      simCfg.Workers,
		PredictEvery: uint64(max(simCfg.PredictEvery, 0)),
	}
	if uploader := newUploader(ctx); uploader != nil {
		deps.Uploader = uploader
	}
	mgr := worker.NewManager(ctx, deps, backend)
	mgr.RegisterHandlers(d)
	registerLifecycleHandlers(d)
	Logger.Info("Handlers registered, reading commands")

	serveErr := serve(ctx, in, out, d, p)
	shutdown(d, sess)
	return serveErr
}

// newUploader returns the archive client when upload is enabled. An
// unreachable archive is logged; uploads are still attempted per session.
func newUploader(ctx context.Context) *api.Client {
	uploadCfg := config.GetUploadConfig()
	if !uploadCfg.Enabled {
		return nil
	}
	client := api.New(uploadCfg.URL, uploadCfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Warn("Archive healthcheck failed", "url", uploadCfg.URL, "error", err)
	} else {
		Logger.Info("Archive reachable", "url", uploadCfg.URL)
	}
	return client
}

func newZerolog(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("app", AppName).Logger()
}

func setupOTel(logWriter io.Writer) {
	otelCfg := config.GetOTelConfig()
	if !otelCfg.Enabled {
		return
	}
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logWriter,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		Logger.Error("Failed to initialize OTel provider", "error", err)
		return
	}
	OTelProvider = provider
	Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
}

// registerLifecycleHandlers registers process-level commands with the dispatcher
func registerLifecycleHandlers(d *dispatcher.Dispatcher) {
	d.Register(":VERSION:", func(e dispatcher.Event) (any, error) {
		return []string{CurrentVersion, BuildDate}, nil
	})

	d.Register(":GETDIR:LOG:", func(e dispatcher.Event) (any, error) {
		return LogFilePath, nil
	})

	d.Register(":FLUSH:", func(e dispatcher.Event) (any, error) {
		d.Wait()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := SlogManager.Flush(ctx); err != nil {
			return nil, fmt.Errorf("failed to flush logs: %w", err)
		}
		return "ok", nil
	})
}

// shutdown drains queued packets, ends a running session and flushes OTel.
func shutdown(d *dispatcher.Dispatcher, sess *session.Context) {
	d.Wait()
	if sess.Active() {
		Logger.Info("Input closed with a running session, ending it")
		if _, err := d.Dispatch(dispatcher.Event{Command: worker.CmdEnd, Timestamp: time.Now()}); err != nil {
			Logger.Error("Failed to end session", "error", err)
		}
	}

	if OTelProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := OTelProvider.Flush(ctx); err != nil {
			Logger.Warn("Failed to flush OTel data", "error", err)
		}
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	Logger.Info("Shut down")
}
