// Package influx writes session metrics to InfluxDB, or to a gzip
// line-protocol backup file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/rlpredict/rlpredict/internal/config"
	"github.com/rlpredict/rlpredict/internal/util"
)

// Buckets
const (
	BucketPredictions = "predictions"
	BucketDrift       = "drift"
	BucketIngest      = "ingest"
	BucketPerformance = "performance"
	BucketHost        = "host_metrics"
)

// DefaultBucketNames are created on connect when missing.
var DefaultBucketNames = []string{
	BucketPredictions,
	BucketDrift,
	BucketIngest,
	BucketPerformance,
	BucketHost,
}

const retentionSeconds = 60 * 60 * 24 * 30

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx is disabled")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client      influxdb2.Client
	Writers     map[string]influxdb2_api.WriteAPI
	IsValid     bool
	BucketNames []string
	Logger      zerolog.Logger
	BackupPath  string

	mu           sync.Mutex
	backupFile   *os.File
	backupWriter *gzip.Writer
	org          string
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: DefaultBucketNames,
		Logger:      log,
		BackupPath:  backupPath,
	}
}

// Connect pings the server and prepares one writer per bucket. When the
// ping fails the manager falls back to the backup file and returns nil.
func (m *Manager) Connect(ctx context.Context, cfg config.InfluxConfig) error {
	if !cfg.Enabled {
		return ErrDisabled
	}
	m.org = cfg.Org

	m.Client = influxdb2.NewClientWithOptions(
		cfg.URL(),
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Warn().Err(err).Str("backupPath", m.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.createWriters()
	m.IsValid = true
	m.Logger.Info().Str("url", cfg.URL()).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupWriter != nil {
		return nil
	}
	if m.BackupPath == "" {
		return errors.New("influx backup path not set")
	}
	f, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = f
	m.backupWriter = gzip.NewWriter(f)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.org)
	if err != nil {
		m.Logger.Info().Str("org", m.org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.org)
		if err != nil {
			return fmt.Errorf("error creating organization %s: %w", m.org, err)
		}
	}

	buckets := m.Client.BucketsAPI()
	for _, bucket := range m.BucketNames {
		if _, err := buckets.FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = buckets.CreateBucketWithName(ctx, org, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			return fmt.Errorf("error creating bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func (m *Manager) createWriters() {
	for _, bucket := range m.BucketNames {
		w := m.Client.WriteAPI(m.org, bucket)
		m.Writers[bucket] = w

		go func(bucket string, errs <-chan error) {
			for err := range errs {
				m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error sending data to InfluxDB")
			}
		}(bucket, w.Errors())
	}
	m.Logger.Debug().Int("buckets", len(m.Writers)).Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file. Unknown
// buckets are rejected in both modes.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	if !m.knownBucket(bucket) {
		return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
	}

	if m.IsValid {
		m.Writers[bucket].WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backupWriter.Write([]byte(bucket + " " + line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

func (m *Manager) knownBucket(bucket string) bool {
	for _, b := range m.BucketNames {
		if b == bucket {
			return true
		}
	}
	return false
}

// Enabled reports whether points go anywhere at all.
func (m *Manager) Enabled() bool {
	if m == nil {
		return false
	}
	if m.IsValid {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backupWriter != nil
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupWriter == nil {
		return nil
	}
	err := errors.Join(m.backupWriter.Close(), m.backupFile.Close())
	m.backupWriter = nil
	m.backupFile = nil
	return err
}

// ParseMetric converts a :METRIC: command into a bucket and point. The
// arguments are the bucket, the measurement, then any number of
// "tag::name::value" and "field::type::name::value" entries where type is
// string, int or float.
func ParseMetric(data []string) (bucket string, point *influxdb2_write.Point, err error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("metric expects at least 2 arguments, got %d", len(data))
	}
	args := make([]string, len(data))
	for i, v := range data {
		args[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	bucket = args[0]
	point = influxdb2_write.NewPointWithMeasurement(args[1])

	for _, arg := range args[2:] {
		parts := strings.Split(arg, "::")
		switch {
		case parts[0] == "tag" && len(parts) >= 3:
			point.AddTag(parts[1], parts[2])
		case parts[0] == "field" && len(parts) >= 4:
			if err := addField(point, parts[1], parts[2], parts[3]); err != nil {
				return "", nil, err
			}
		}
	}
	return bucket, point, nil
}

func addField(point *influxdb2_write.Point, typ, name, value string) error {
	switch typ {
	case "string":
		point.AddField(name, value)
	case "int":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("error converting field value '%s' to int: %w", value, err)
		}
		point.AddField(name, v)
	case "float":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("error converting field value '%s' to float: %w", value, err)
		}
		point.AddField(name, v)
	default:
		return fmt.Errorf("unknown field type %q", typ)
	}
	return nil
}
