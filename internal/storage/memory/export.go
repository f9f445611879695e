package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OCAP2/multicopter/pkg/core"
)

// RunExport is the root JSON structure
type RunExport struct {
	Version      string          `json:"version"`
	Name         string          `json:"name"`
	Tag          string          `json:"tag"`
	StartTime    time.Time       `json:"startTime"`
	TickRate     float64         `json:"tickRate"`
	Gravity      float64         `json:"gravity"`
	Origin       [3]float64      `json:"origin"` // lon, lat, alt
	EndTick      uint64          `json:"endTick"`
	DurationSecs float64         `json:"durationSecs"`
	Settings     json.RawMessage `json:"settings,omitempty"`
	Vehicles     []VehicleJSON   `json:"vehicles"`
	Faults       []FaultJSON     `json:"faults"`
	Performance  []PerfJSON      `json:"performance,omitempty"`
}

// VehicleJSON is one vehicle and its recorded flight
type VehicleJSON struct {
	ID         uint16       `json:"id"`
	Name       string       `json:"name"`
	RotorCount int          `json:"rotorCount"`
	Mass       float64      `json:"mass"`
	Spawn      [3]float64   `json:"spawn"`
	Track      string       `json:"track,omitempty"` // WKT line string in lon/lat/alt
	Samples    []SampleJSON `json:"samples"`
}

// SampleJSON is one recorded tick of a vehicle
type SampleJSON struct {
	Tick            uint64     `json:"tick"`
	SimTime         float64    `json:"simTime"`
	Position        [3]float64 `json:"position"`
	Geo             [3]float64 `json:"geo"` // lon, lat, alt
	Velocity        [3]float64 `json:"velocity"`
	Rotation        [4]float64 `json:"rotation"` // w, x, y, z
	Pitch           float64    `json:"pitch"`
	Roll            float64    `json:"roll"`
	Yaw             float64    `json:"yaw"`
	DesiredAltitude float64    `json:"desiredAltitude"`
	NeededThrust    float64    `json:"neededThrust"`
	Commands        []float64  `json:"commands"`
	Saturated       bool       `json:"saturated,omitempty"`
}

// FaultJSON is one skipped vehicle tick
type FaultJSON struct {
	VehicleID uint16  `json:"vehicleId"`
	Tick      uint64  `json:"tick"`
	SimTime   float64 `json:"simTime"`
	Kind      string  `json:"kind"`
	Message   string  `json:"message"`
}

// PerfJSON is a telemetry pipeline snapshot
type PerfJSON struct {
	Tick           uint64  `json:"tick"`
	SampleQueue    int     `json:"sampleQueue"`
	FaultQueue     int     `json:"faultQueue"`
	DroppedSamples uint64  `json:"droppedSamples"`
	LastWriteMs    float64 `json:"lastWriteMs"`
}

func vec(v mgl64.Vec3) [3]float64 {
	return [3]float64{v.X(), v.Y(), v.Z()}
}

// exportJSON writes the run data to a (gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	runName := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(b.run.Name)
	timestamp := b.run.StartTime.Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s.json", runName, timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() RunExport {
	export := RunExport{
		Version:      b.run.Version,
		Name:         b.run.Name,
		Tag:          b.run.Tag,
		StartTime:    b.run.StartTime,
		TickRate:     b.run.TickRate,
		Gravity:      b.run.Gravity,
		Origin:       [3]float64{b.origin.Lon, b.origin.Lat, b.origin.Alt},
		EndTick:      b.run.EndTick,
		DurationSecs: b.run.DurationSecs,
		Vehicles:     make([]VehicleJSON, 0, len(b.vehicles)),
		Faults:       make([]FaultJSON, 0, len(b.faults)),
	}
	if json.Valid(b.settings) {
		export.Settings = json.RawMessage(b.settings)
	}

	ids := make([]int, 0, len(b.vehicles))
	for id := range b.vehicles {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	for _, id := range ids {
		record := b.vehicles[uint16(id)]
		vehicle := VehicleJSON{
			ID:         record.Vehicle.ID,
			Name:       record.Vehicle.Name,
			RotorCount: record.Vehicle.RotorCount,
			Mass:       record.Vehicle.Mass,
			Spawn:      vec(record.Vehicle.Spawn),
			Samples:    make([]SampleJSON, 0, len(record.Samples)),
		}

		positions := make([]mgl64.Vec3, 0, len(record.Samples))
		for _, s := range record.Samples {
			lon, lat, alt := b.origin.ToWGS84(s.State.Position)
			q := s.State.Orientation
			vehicle.Samples = append(vehicle.Samples, SampleJSON{
				Tick:            s.Tick,
				SimTime:         s.SimTime,
				Position:        vec(s.State.Position),
				Geo:             [3]float64{lon, lat, alt},
				Velocity:        vec(s.State.Velocity),
				Rotation:        [4]float64{q.W, q.V.X(), q.V.Y(), q.V.Z()},
				Pitch:           s.Pitch,
				Roll:            s.Roll,
				Yaw:             s.Yaw,
				DesiredAltitude: s.DesiredAltitude,
				NeededThrust:    s.NeededThrust,
				Commands:        s.Commands,
				Saturated:       s.Saturated,
			})
			positions = append(positions, s.State.Position)
		}

		// flights without horizontal movement have no track
		if track, err := b.origin.Track(positions); err == nil {
			vehicle.Track = track.AsText()
		}
		export.Vehicles = append(export.Vehicles, vehicle)
	}

	for _, f := range b.faults {
		export.Faults = append(export.Faults, FaultJSON{
			VehicleID: f.VehicleID,
			Tick:      f.Tick,
			SimTime:   f.SimTime,
			Kind:      f.Kind,
			Message:   f.Message,
		})
	}

	for _, p := range b.performance {
		export.Performance = append(export.Performance, PerfJSON{
			Tick:           p.Tick,
			SampleQueue:    p.SampleQueue,
			FaultQueue:     p.FaultQueue,
			DroppedSamples: p.DroppedSamples,
			LastWriteMs:    float64(p.LastWrite.Microseconds()) / 1000,
		})
	}

	return export
}

func writeJSON(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeGzipJSON(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if err := json.NewEncoder(gw).Encode(data); err != nil {
		gw.Close()
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return nil
}

// GetExportedFilePath returns the path to the last exported file
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns metadata about the last export
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.run == nil {
		return core.UploadMetadata{}
	}
	return core.UploadMetadata{
		RunName:      b.run.Name,
		RunDuration:  b.run.DurationSecs,
		VehicleCount: len(b.vehicles),
		Tag:          b.run.Tag,
	}
}
