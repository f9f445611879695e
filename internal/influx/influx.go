// Package influx writes flight telemetry points to InfluxDB, falling back to
// a gzipped line-protocol backup file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/OCAP2/multicopter/internal/config"
)

// PerformanceBucket receives pipeline performance points.
const PerformanceBucket = "sim_performance"

const retention = 90 * 24 * time.Hour

var (
	// ErrDisabled is returned by Connect when influx is disabled in config.
	ErrDisabled = errors.New("influx is disabled")
	// ErrNotConnected is returned by WritePoint before Connect or after Close.
	ErrNotConnected = errors.New("influx not connected")
)

// pointSink is where points end up: the live server or the backup file.
type pointSink interface {
	write(bucket string, p *influxdb2_write.Point) error
	close() error
}

// Manager owns the InfluxDB client for one run.
type Manager struct {
	cfg        config.InfluxConfig
	log        zerolog.Logger
	backupPath string
	buckets    []string

	mu   sync.Mutex
	sink pointSink
}

// NewManager creates a manager writing to the telemetry bucket from cfg and to
// PerformanceBucket. backupPath is used only when the server is unreachable.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		cfg:        cfg,
		log:        log.With().Str("component", "influx").Logger(),
		backupPath: backupPath,
		buckets:    []string{cfg.Bucket, PerformanceBucket},
	}
}

// TelemetryBucket is the bucket vehicle samples and faults go to.
func (m *Manager) TelemetryBucket() string {
	return m.cfg.Bucket
}

// Online reports whether points go to the server rather than the backup file.
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sink.(*liveSink)
	return ok
}

// Connect pings the server and prepares the org and buckets. An unreachable
// server is not an error: points are written to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(m.cfg.URL(), m.cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(2500).SetFlushInterval(1000))

	if up, err := client.Ping(ctx); err != nil || !up {
		client.Close()
		m.log.Warn().Err(err).Str("backupPath", m.backupPath).Msg("InfluxDB unreachable, writing to backup file")
		sink, err := openBackup(m.backupPath)
		if err != nil {
			return err
		}
		m.setSink(sink)
		return nil
	}

	if err := m.ensureBuckets(ctx, client); err != nil {
		client.Close()
		return err
	}
	m.setSink(m.newLiveSink(client))
	m.log.Info().Str("url", m.cfg.URL()).Strs("buckets", m.buckets).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) setSink(s pointSink) {
	m.mu.Lock()
	m.sink = s
	m.mu.Unlock()
}

func (m *Manager) ensureBuckets(ctx context.Context, client influxdb2.Client) error {
	orgs := client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Creating organization")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
			return fmt.Errorf("creating org %s: %w", m.cfg.Org, err)
		}
	}

	buckets := client.BucketsAPI()
	expire := domain.RetentionRuleTypeExpire
	rule := domain.RetentionRule{Type: &expire, EverySeconds: int64(retention / time.Second)}
	for _, name := range m.buckets {
		if _, err := buckets.FindBucketByName(ctx, name); err == nil {
			continue
		}
		m.log.Info().Str("bucket", name).Dur("retention", retention).Msg("Creating bucket")
		if _, err := buckets.CreateBucketWithName(ctx, org, name, rule); err != nil {
			return fmt.Errorf("creating bucket %s: %w", name, err)
		}
	}
	return nil
}

// WritePoint queues a point for bucket on the live server, or appends it to
// the backup file.
func (m *Manager) WritePoint(_ context.Context, bucket string, point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sink == nil {
		return ErrNotConnected
	}
	return m.sink.write(bucket, point)
}

// Close flushes pending points and releases the client or backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sink == nil {
		return nil
	}
	err := m.sink.close()
	m.sink = nil
	return err
}

type liveSink struct {
	client  influxdb2.Client
	writers map[string]influxdb2_api.WriteAPI
}

func (m *Manager) newLiveSink(client influxdb2.Client) *liveSink {
	s := &liveSink{client: client, writers: make(map[string]influxdb2_api.WriteAPI, len(m.buckets))}
	for _, bucket := range m.buckets {
		w := client.WriteAPI(m.cfg.Org, bucket)
		s.writers[bucket] = w
		go func(bucket string, errs <-chan error) {
			for err := range errs {
				m.log.Error().Err(err).Str("bucket", bucket).Msg("Error sending data to InfluxDB")
			}
		}(bucket, w.Errors())
	}
	return s
}

func (s *liveSink) write(bucket string, p *influxdb2_write.Point) error {
	w, ok := s.writers[bucket]
	if !ok {
		return fmt.Errorf("influx bucket %q not registered", bucket)
	}
	w.WritePoint(p)
	return nil
}

func (s *liveSink) close() error {
	for _, w := range s.writers {
		w.Flush()
	}
	s.client.Close()
	return nil
}

type backupSink struct {
	file *os.File
	gz   *gzip.Writer
}

func openBackup(path string) (*backupSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening influx backup file: %w", err)
	}
	return &backupSink{file: f, gz: gzip.NewWriter(f)}, nil
}

// write ignores the bucket: measurements and tags identify the series on
// replay.
func (s *backupSink) write(_ string, p *influxdb2_write.Point) error {
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	if _, err := s.gz.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("writing influx backup: %w", err)
	}
	return nil
}

func (s *backupSink) close() error {
	return errors.Join(s.gz.Close(), s.file.Close())
}
