// pkg/core/run.go
package core

import "time"

// Run represents one recorded simulation run.
type Run struct {
	ID           uint
	Name         string
	StartTime    time.Time
	TickRate     float64 // ticks per second
	Vehicles     int
	Gravity      float64
	OriginLon    float64
	OriginLat    float64
	OriginAlt    float64
	Tag          string
	Version      string
	EndTick      uint64
	DurationSecs float64
}

// UploadMetadata contains metadata sent with an exported run upload.
type UploadMetadata struct {
	RunName      string
	RunDuration  float64
	VehicleCount int
	Tag          string
}

// Performance is a snapshot of the telemetry pipeline at one tick.
type Performance struct {
	RunID          uint
	Tick           uint64
	Time           time.Time
	SampleQueue    int
	FaultQueue     int
	DroppedSamples uint64
	TickFaults     uint64
	LastWrite      time.Duration
}
