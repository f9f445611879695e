package storage

import "github.com/OCAP2/multicopter/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Run management. StartRun assigns run.ID; EndRun expects EndTick and
	// DurationSecs to be filled in.
	StartRun(run *core.Run, settings []byte) error
	EndRun(run *core.Run) error

	// Vehicle registration
	AddVehicle(v *core.VehicleInfo) error

	// Telemetry recording
	RecordVehicleSample(s *core.VehicleSample) error
	RecordTickFault(f *core.TickFault) error
}

// PerformanceRecorder is implemented by backends that keep pipeline
// performance snapshots.
type PerformanceRecorder interface {
	RecordPerformance(p *core.Performance) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// Reader is implemented by backends that can read the current run's
// telemetry back.
type Reader interface {
	Vehicles() ([]core.VehicleInfo, error)
	VehicleSamples(id uint16) ([]core.VehicleSample, error)
	TickFaults() ([]core.TickFault, error)
}
