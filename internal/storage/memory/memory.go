package memory

import (
	"sort"
	"sync"

	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/internal/geo"
	"github.com/OCAP2/multicopter/pkg/core"
)

// VehicleRecord groups a vehicle with all its samples
type VehicleRecord struct {
	Vehicle core.VehicleInfo
	Samples []core.VehicleSample
}

// Backend stores run telemetry in memory and exports it to JSON
type Backend struct {
	cfg      config.MemoryConfig
	origin   geo.Origin
	run      *core.Run
	settings []byte

	vehicles    map[uint16]*VehicleRecord // keyed by vehicle ID
	faults      []core.TickFault
	performance []core.Performance

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig, origin geo.Origin) *Backend {
	return &Backend{
		cfg:      cfg,
		origin:   origin,
		vehicles: make(map[uint16]*VehicleRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRun begins recording a new run
func (b *Backend) StartRun(run *core.Run, settings []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	run.ID = b.idCounter
	b.run = run
	b.settings = settings

	// Reset all collections
	b.vehicles = make(map[uint16]*VehicleRecord)
	b.faults = nil
	b.performance = nil
	b.lastExportPath = ""

	return nil
}

// EndRun finalizes and exports the run data
func (b *Backend) EndRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return nil
	}
	b.run.EndTick = run.EndTick
	b.run.DurationSecs = run.DurationSecs
	return b.exportJSON()
}

// AddVehicle registers a new vehicle
func (b *Backend) AddVehicle(v *core.VehicleInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run != nil {
		v.RunID = b.run.ID
	}
	b.vehicles[v.ID] = &VehicleRecord{
		Vehicle: *v,
		Samples: make([]core.VehicleSample, 0),
	}
	return nil
}

// GetVehicle looks up a vehicle by its ID
func (b *Backend) GetVehicle(id uint16) (*core.VehicleInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if record, ok := b.vehicles[id]; ok {
		return &record.Vehicle, true
	}
	return nil, false
}

// Samples returns a copy of the samples recorded for a vehicle
func (b *Backend) Samples(id uint16) []core.VehicleSample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.vehicles[id]
	if !ok {
		return nil
	}
	return append([]core.VehicleSample(nil), record.Samples...)
}

// Faults returns a copy of the recorded tick faults
func (b *Backend) Faults() []core.TickFault {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.TickFault(nil), b.faults...)
}

// Vehicles returns the registered vehicles ordered by ID.
func (b *Backend) Vehicles() ([]core.VehicleInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.VehicleInfo, 0, len(b.vehicles))
	for _, record := range b.vehicles {
		out = append(out, record.Vehicle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// VehicleSamples is Samples for the storage.Reader interface.
func (b *Backend) VehicleSamples(id uint16) ([]core.VehicleSample, error) {
	return b.Samples(id), nil
}

// TickFaults is Faults for the storage.Reader interface.
func (b *Backend) TickFaults() ([]core.TickFault, error) {
	return b.Faults(), nil
}

// RecordVehicleSample records a vehicle sample
func (b *Backend) RecordVehicleSample(s *core.VehicleSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if record, ok := b.vehicles[s.VehicleID]; ok {
		record.Samples = append(record.Samples, *s)
	}
	return nil // silently ignore if vehicle not found
}

// RecordTickFault records a tick fault
func (b *Backend) RecordTickFault(f *core.TickFault) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = append(b.faults, *f)
	return nil
}

// RecordPerformance records a pipeline performance snapshot
func (b *Backend) RecordPerformance(p *core.Performance) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.run != nil {
		p.RunID = b.run.ID
	}
	b.performance = append(b.performance, *p)
	return nil
}
