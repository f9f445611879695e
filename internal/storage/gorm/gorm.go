// Package gormstorage implements the storage.Backend interface on top of GORM
// with internal queues and a background DB writer goroutine. The sqlite and
// postgres backends wrap it.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/OCAP2/multicopter/internal/database"
	"github.com/OCAP2/multicopter/internal/geo"
	"github.com/OCAP2/multicopter/internal/model"
	"github.com/OCAP2/multicopter/internal/model/convert"
	"github.com/OCAP2/multicopter/internal/queue"
	"github.com/OCAP2/multicopter/pkg/core"
)

// DefaultFlushInterval is used when Dependencies.FlushInterval is zero.
const DefaultFlushInterval = time.Second

var (
	// ErrNoDatabase is returned by Init when no DB was injected
	ErrNoDatabase = errors.New("no database configured")
	// ErrNoRun is returned when recording before StartRun
	ErrNoRun = errors.New("no run started")
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Origin        geo.Origin
	Version       string
	Logger        zerolog.Logger
	FlushInterval time.Duration
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Samples *queue.Queue[model.VehicleSample]
	Faults  *queue.Queue[model.TickFault]
}

func newQueues() *queues {
	return &queues{
		Samples: queue.New[model.VehicleSample](),
		Faults:  queue.New[model.TickFault](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	queues   *queues
	runID    atomic.Uint64
	stopChan chan struct{}
	wg       sync.WaitGroup
	writeMu  sync.Mutex
	closed   bool
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB returns the underlying database handle.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// RunID returns the ID of the current run, 0 before StartRun.
func (b *Backend) RunID() uint {
	return uint(b.runID.Load())
}

// Pending returns the number of queued samples and faults.
func (b *Backend) Pending() (samples, faults int) {
	return b.queues.Samples.Len(), b.queues.Faults.Len()
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}
	if err := database.Migrate(b.deps.DB, b.deps.Version, b.deps.Logger); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.writeLoop()
	return nil
}

// Close stops the DB writer goroutine after a final flush. The DB itself is
// left open for the owner to close.
func (b *Backend) Close() error {
	if b.stopChan == nil || b.closed {
		return nil
	}
	b.closed = true
	close(b.stopChan)
	b.wg.Wait()
	return b.Flush()
}

// StartRun inserts the run synchronously so its ID is known before samples
// arrive.
func (b *Backend) StartRun(run *core.Run, settings []byte) error {
	gormRun, err := convert.CoreToRun(*run, settings)
	if err != nil {
		return err
	}
	if err := b.deps.DB.Create(&gormRun).Error; err != nil {
		return fmt.Errorf("failed to insert new run: %w", err)
	}
	run.ID = gormRun.ID
	b.runID.Store(uint64(gormRun.ID))

	b.deps.Logger.Info().Uint("runId", gormRun.ID).Str("name", run.Name).Msg("Run started")
	return nil
}

// EndRun flushes pending telemetry and stores the final tick and duration.
func (b *Backend) EndRun(run *core.Run) error {
	runID := b.RunID()
	if runID == 0 {
		return ErrNoRun
	}
	if err := b.Flush(); err != nil {
		return err
	}
	err := b.deps.DB.Model(&model.Run{}).Where("id = ?", runID).Updates(map[string]any{
		"end_tick":      run.EndTick,
		"duration_secs": run.DurationSecs,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	b.deps.Logger.Info().Uint("runId", runID).Uint64("endTick", run.EndTick).Msg("Run ended")
	return nil
}

// AddVehicle inserts a vehicle synchronously because samples reference it.
func (b *Backend) AddVehicle(v *core.VehicleInfo) error {
	runID := b.RunID()
	if runID == 0 {
		return ErrNoRun
	}
	v.RunID = runID
	gormObj, err := convert.CoreToVehicle(*v, b.deps.Origin)
	if err != nil {
		return err
	}
	if err := b.deps.DB.Create(&gormObj).Error; err != nil {
		return fmt.Errorf("failed to insert vehicle %d: %w", v.ID, err)
	}
	return nil
}

// RecordVehicleSample converts and queues a sample.
func (b *Backend) RecordVehicleSample(s *core.VehicleSample) error {
	runID := b.RunID()
	if runID == 0 {
		return ErrNoRun
	}
	gormObj, err := convert.CoreToVehicleSample(*s, runID, b.deps.Origin)
	if err != nil {
		return err
	}
	b.queues.Samples.Push(gormObj)
	return nil
}

// RecordTickFault converts and queues a tick fault.
func (b *Backend) RecordTickFault(f *core.TickFault) error {
	runID := b.RunID()
	if runID == 0 {
		return ErrNoRun
	}
	b.queues.Faults.Push(convert.CoreToTickFault(*f, runID))
	return nil
}

// RecordPerformance inserts a performance snapshot synchronously.
func (b *Backend) RecordPerformance(p *core.Performance) error {
	runID := b.RunID()
	if runID == 0 {
		return ErrNoRun
	}
	p.RunID = runID
	gormObj := convert.CoreToSimPerformance(*p)
	if err := b.deps.DB.Create(&gormObj).Error; err != nil {
		return fmt.Errorf("failed to insert performance: %w", err)
	}
	return nil
}

// Flush writes all queued items to the DB.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	return errors.Join(
		writeQueue(b.deps.DB, b.queues.Samples, "vehicle samples", b.deps.Logger),
		writeQueue(b.deps.DB, b.queues.Faults, "tick faults", b.deps.Logger),
	)
}

// writeQueue writes all items from a queue to the database in a transaction.
// Items are pushed back on failure so the next cycle retries them.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log zerolog.Logger) error {
	if q.Empty() {
		return nil
	}

	items := q.GetAndEmpty()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		tx.Rollback()
		q.Push(items...)
		log.Error().Err(err).Str("table", name).Int("count", len(items)).Msg("Error writing queue")
		return fmt.Errorf("error creating %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.Push(items...)
		return fmt.Errorf("error committing %s: %w", name, err)
	}

	log.Trace().Str("table", name).Int("count", len(items)).Msg("Wrote queue")
	return nil
}

// writeLoop periodically drains queues into the DB.
func (b *Backend) writeLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if b.RunID() == 0 {
				continue
			}
			start := time.Now()
			if err := b.Flush(); err == nil {
				b.deps.Logger.Trace().Dur("took", time.Since(start)).Msg("DB write cycle")
			}
		}
	}
}
