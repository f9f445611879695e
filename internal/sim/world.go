// Package sim runs multicopters headless: a fixed-step world that feeds each
// vehicle's controller, applies the rotor forces and records telemetry.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/OCAP2/multicopter/pkg/core"
)

const instrumentationName = "github.com/OCAP2/multicopter/internal/sim"

var (
	// ErrUnknownVehicle is returned for commands addressed to a missing vehicle
	ErrUnknownVehicle = errors.New("unknown vehicle")
	// ErrDuplicateVehicle is returned when adding an entity whose ID is taken
	ErrDuplicateVehicle = errors.New("duplicate vehicle")
)

// Recorder receives telemetry produced by the world.
type Recorder interface {
	RecordSample(core.VehicleSample)
	RecordFault(core.TickFault)
}

// TickObserver is notified after every completed tick.
type TickObserver func(tick uint64, simTime float64)

// Config holds fixed world settings
type Config struct {
	Dt          float64
	Gravity     mgl64.Vec3
	SampleEvery int
	StartPaused bool
}

// World owns the entities and advances them in fixed steps.
type World struct {
	cfg        Config
	integrator Integrator
	recorder   Recorder
	logger     *slog.Logger
	observer   TickObserver

	mu       sync.Mutex
	entities []*Entity
	byID     map[uint16]*Entity
	tick     uint64
	simTime  float64
	start    time.Time

	paused      atomic.Bool
	pauseHeld   map[uint16]bool
	faultsTotal atomic.Uint64

	ticks     metric.Int64Counter
	faults    metric.Int64Counter
	saturated metric.Int64Counter
	stepTime  metric.Float64Histogram
}

// NewWorld creates an empty world. recorder may be nil.
func NewWorld(cfg Config, recorder Recorder, logger *slog.Logger) (*World, error) {
	if !(cfg.Dt > 0) {
		return nil, fmt.Errorf("tick duration must be positive, got %g", cfg.Dt)
	}
	if cfg.SampleEvery <= 0 {
		cfg.SampleEvery = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &World{
		cfg:        cfg,
		integrator: Integrator{Gravity: cfg.Gravity},
		recorder:   recorder,
		logger:     logger,
		byID:       make(map[uint16]*Entity),
		pauseHeld:  make(map[uint16]bool),
		start:      time.Now(),
	}
	w.paused.Store(cfg.StartPaused)

	m := otel.Meter(instrumentationName)
	var err error
	if w.ticks, err = m.Int64Counter("sim.ticks", metric.WithDescription("Completed world ticks")); err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}
	if w.faults, err = m.Int64Counter("sim.tick.faults", metric.WithDescription("Vehicles skipped for a tick")); err != nil {
		return nil, fmt.Errorf("creating fault counter: %w", err)
	}
	if w.saturated, err = m.Int64Counter("controller.saturated", metric.WithDescription("Ticks whose rotor commands were scaled down")); err != nil {
		return nil, fmt.Errorf("creating saturation counter: %w", err)
	}
	if w.stepTime, err = m.Float64Histogram("sim.step.duration", metric.WithUnit("ms"), metric.WithDescription("Wall time per world tick")); err != nil {
		return nil, fmt.Errorf("creating step histogram: %w", err)
	}
	return w, nil
}

// SetStart sets the wall clock time that sim time zero maps to.
func (w *World) SetStart(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.start = t
}

// OnTick registers fn to run after every completed tick.
func (w *World) OnTick(fn TickObserver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observer = fn
}

// AddEntity adds a vehicle to the world.
func (w *World) AddEntity(e *Entity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.byID[e.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateVehicle, e.ID)
	}
	w.entities = append(w.entities, e)
	w.byID[e.ID] = e
	return nil
}

// Entity returns the vehicle with the given ID.
func (w *World) Entity(id uint16) (*Entity, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.byID[id]
	return e, ok
}

// Entities returns the vehicles in insertion order.
func (w *World) Entities() []*Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Entity(nil), w.entities...)
}

// SetKey forwards a key transition to one vehicle.
func (w *World) SetKey(id uint16, key core.Key, down bool) error {
	e, ok := w.Entity(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVehicle, id)
	}
	e.SetKey(key, down)
	return nil
}

// Paused reports whether physics is halted.
func (w *World) Paused() bool {
	return w.paused.Load()
}

// SetPaused halts or resumes physics.
func (w *World) SetPaused(paused bool) {
	w.paused.Store(paused)
}

// Tick returns the number of completed ticks.
func (w *World) Tick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick
}

// SimTime returns the simulated seconds elapsed.
func (w *World) SimTime() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.simTime
}

// Faults returns the number of vehicle ticks skipped so far.
func (w *World) Faults() uint64 {
	return w.faultsTotal.Load()
}

// Step advances every vehicle by one tick. A vehicle whose tick fails is
// left in place and recorded as a fault; the others still advance. Step
// returns an error only when ctx is already done on entry; a cancellation
// arriving mid-tick takes effect on the next call. It reports whether a tick
// ran, which is false while paused.
func (w *World) Step(ctx context.Context) (bool, error) {
	w.mu.Lock()
	ran, err := w.step(ctx)
	observer, tick, simTime := w.observer, w.tick, w.simTime
	w.mu.Unlock()

	if ran && observer != nil {
		observer(tick, simTime)
	}
	return ran, err
}

func (w *World) step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	w.updatePause()
	if w.paused.Load() {
		return false, nil
	}

	began := time.Now()
	tick := w.tick + 1
	simTime := float64(tick) * w.cfg.Dt
	tc := core.TickContext{Dt: w.cfg.Dt, Gravity: w.cfg.Gravity}

	kinds := make([]string, len(w.entities))
	errs := make([]error, len(w.entities))

	// a started tick always completes so every vehicle stays on the same tick
	var g errgroup.Group
	for i, e := range w.entities {
		g.Go(func() error {
			kinds[i], errs[i] = e.step(tc, w.integrator)
			return nil
		})
	}
	_ = g.Wait()

	w.tick = tick
	w.simTime = simTime
	now := w.start.Add(time.Duration(simTime * float64(time.Second)))
	record := tick%uint64(w.cfg.SampleEvery) == 0

	for i, e := range w.entities {
		if errs[i] != nil {
			w.fault(ctx, e, tick, simTime, now, kinds[i], errs[i])
			continue
		}
		if e.Last.Saturated {
			w.saturated.Add(ctx, 1, metric.WithAttributes(attribute.Int("vehicle", int(e.ID))))
		}
		if record && w.recorder != nil {
			s := e.sample(tick, simTime)
			s.Time = now
			w.recorder.RecordSample(s)
		}
	}

	w.ticks.Add(ctx, 1)
	w.stepTime.Record(ctx, float64(time.Since(began).Microseconds())/1000)
	return true, nil
}

// updatePause toggles the world pause on each fresh press of any vehicle's
// pause key.
func (w *World) updatePause() {
	for _, e := range w.entities {
		held := e.Input().Pause
		if held && !w.pauseHeld[e.ID] {
			paused := !w.paused.Load()
			w.paused.Store(paused)
			w.logger.Info("world pause toggled", "paused", paused, "vehicle", e.ID)
		}
		w.pauseHeld[e.ID] = held
	}
}

func (w *World) fault(ctx context.Context, e *Entity, tick uint64, simTime float64, now time.Time, kind string, err error) {
	w.faultsTotal.Add(1)
	w.faults.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	w.logger.Warn("vehicle skipped for tick", "vehicle", e.ID, "tick", tick, "kind", kind, "error", err)

	if w.recorder != nil {
		w.recorder.RecordFault(core.TickFault{
			VehicleID: e.ID,
			Tick:      tick,
			SimTime:   simTime,
			Time:      now,
			Kind:      kind,
			Message:   err.Error(),
		})
	}
}

// Run steps the world until frames steps have been taken (0 means until ctx
// is done). With pace > 0 each step waits for the next pace interval so the
// run follows the wall clock. afterStep runs after every step, paused or not.
func (w *World) Run(ctx context.Context, frames uint64, pace time.Duration, afterStep func() error) error {
	var ticker *time.Ticker
	if pace > 0 {
		ticker = time.NewTicker(pace)
		defer ticker.Stop()
	}

	for n := uint64(0); frames == 0 || n < frames; n++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		if _, err := w.Step(ctx); err != nil {
			return err
		}
		if afterStep != nil {
			if err := afterStep(); err != nil {
				return err
			}
		}
	}
	return nil
}
