// Package worker drains recorded telemetry from the simulation loop into the
// storage backend and InfluxDB.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/multicopter/internal/dispatcher"
	"github.com/OCAP2/multicopter/internal/geo"
	"github.com/OCAP2/multicopter/internal/influx"
	"github.com/OCAP2/multicopter/internal/queue"
	"github.com/OCAP2/multicopter/internal/run"
	"github.com/OCAP2/multicopter/internal/storage"
	"github.com/OCAP2/multicopter/pkg/core"
)

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = 500 * time.Millisecond

// ErrNoInflux is returned by the metric handler when influx is not configured
var ErrNoInflux = errors.New("influx not configured")

// Queues are filled by the simulation loop and drained by the worker
type Queues struct {
	Samples *queue.Queue[core.VehicleSample]
	Faults  *queue.Queue[core.TickFault]
}

// NewQueues creates the telemetry queues. sampleLimit bounds the sample
// queue, dropping the oldest samples when the writer falls behind; 0 means
// unbounded.
func NewQueues(sampleLimit int) *Queues {
	return &Queues{
		Samples: queue.NewBounded[core.VehicleSample](sampleLimit),
		Faults:  queue.New[core.TickFault](),
	}
}

// RecordSample queues a vehicle sample.
func (q *Queues) RecordSample(s core.VehicleSample) {
	q.Samples.Push(s)
}

// RecordFault queues a tick fault.
func (q *Queues) RecordFault(f core.TickFault) {
	q.Faults.Push(f)
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Backend  storage.Backend
	Influx   *influx.Manager // optional
	Run      *run.Context
	Origin   geo.Origin
	Logger   dispatcher.Logger
	Interval time.Duration
}

// Manager runs the telemetry writer goroutine
type Manager struct {
	deps   Dependencies
	queues *Queues

	lastWrite atomic.Int64
	written   atomic.Uint64
	drainMu   sync.Mutex

	stopChan chan struct{}
	done     chan struct{}
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, queues *Queues) *Manager {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Manager{
		deps:   deps,
		queues: queues,
	}
}

// Queues returns the queues the manager drains.
func (m *Manager) Queues() *Queues {
	return m.queues
}

// GetLastWriteDuration returns the duration of the last drain cycle.
func (m *Manager) GetLastWriteDuration() time.Duration {
	return time.Duration(m.lastWrite.Load())
}

// Written returns how many samples have been handed to the backend.
func (m *Manager) Written() uint64 {
	return m.written.Load()
}

// Start launches the writer goroutine.
func (m *Manager) Start() {
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop()
}

// Stop ends the writer goroutine and drains whatever is left.
func (m *Manager) Stop() error {
	if m.stopChan != nil {
		close(m.stopChan)
		<-m.done
		m.stopChan = nil
	}
	return m.Drain()
}

func (m *Manager) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			if err := m.Drain(); err != nil {
				m.deps.Logger.Error("telemetry drain failed", "error", err)
			}
		}
	}
}

// Drain writes every queued sample and fault now.
func (m *Manager) Drain() error {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	start := time.Now()
	samples := m.queues.Samples.GetAndEmpty()
	faults := m.queues.Faults.GetAndEmpty()
	if len(samples) == 0 && len(faults) == 0 {
		return nil
	}

	ctx := context.Background()
	runName := m.deps.Run.Name()

	var errs []error
	for i := range samples {
		if err := m.deps.Backend.RecordVehicleSample(&samples[i]); err != nil {
			errs = append(errs, fmt.Errorf("sample vehicle %d tick %d: %w", samples[i].VehicleID, samples[i].Tick, err))
			continue
		}
		m.written.Add(1)
		if m.deps.Influx != nil {
			point := influx.SamplePoint(runName, samples[i], m.deps.Origin)
			if err := m.deps.Influx.WritePoint(ctx, m.deps.Influx.TelemetryBucket(), point); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for i := range faults {
		if err := m.deps.Backend.RecordTickFault(&faults[i]); err != nil {
			errs = append(errs, fmt.Errorf("fault vehicle %d tick %d: %w", faults[i].VehicleID, faults[i].Tick, err))
		}
		if m.deps.Influx != nil {
			if err := m.deps.Influx.WritePoint(ctx, m.deps.Influx.TelemetryBucket(), influx.FaultPoint(runName, faults[i])); err != nil {
				errs = append(errs, err)
			}
		}
	}

	m.lastWrite.Store(int64(time.Since(start)))
	m.deps.Logger.Debug("telemetry drained", "samples", len(samples), "faults", len(faults), "took", time.Since(start))
	return errors.Join(errs...)
}

// Snapshot builds a performance snapshot for the given tick.
func (m *Manager) Snapshot(tick, tickFaults uint64) core.Performance {
	return core.Performance{
		Tick:           tick,
		Time:           time.Now(),
		SampleQueue:    m.queues.Samples.Len(),
		FaultQueue:     m.queues.Faults.Len(),
		DroppedSamples: m.queues.Samples.Dropped(),
		TickFaults:     tickFaults,
		LastWrite:      m.GetLastWriteDuration(),
	}
}

// RecordPerformance stores a snapshot in the backend when it keeps them and
// sends it to influx when configured.
func (m *Manager) RecordPerformance(p core.Performance) error {
	var errs []error
	if rec, ok := m.deps.Backend.(storage.PerformanceRecorder); ok {
		errs = append(errs, rec.RecordPerformance(&p))
	}
	if m.deps.Influx != nil {
		point := influx.PerformancePoint(m.deps.Run.Name(), p)
		errs = append(errs, m.deps.Influx.WritePoint(context.Background(), influx.PerformanceBucket, point))
	}
	return errors.Join(errs...)
}

// RegisterHandlers registers the worker's commands with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Flush - sync so callers know the data is written
	d.Register(":FLUSH:", m.handleFlush, dispatcher.Args(0, 0), dispatcher.Logged())
	// Ad hoc metrics - buffered
	d.Register(":METRIC:", m.handleMetric, dispatcher.Args(2, -1), dispatcher.Buffered(1000), dispatcher.Logged())
}

func (m *Manager) handleFlush(e dispatcher.Event) (any, error) {
	if err := m.Drain(); err != nil {
		return nil, fmt.Errorf("failed to flush telemetry: %w", err)
	}
	return m.Written(), nil
}

func (m *Manager) handleMetric(e dispatcher.Event) (any, error) {
	if m.deps.Influx == nil {
		return nil, ErrNoInflux
	}
	bucket, point, err := influx.ParseMetric(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metric: %w", err)
	}
	return nil, m.deps.Influx.WritePoint(context.Background(), bucket, point)
}
