// pkg/core/vehicle.go
package core

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// VehicleInfo describes a simulated vehicle for telemetry.
// ID is the simulation's identifier for the vehicle.
type VehicleInfo struct {
	ID         uint16
	RunID      uint
	Name       string
	RotorCount int
	Mass       float64
	SpawnTime  time.Time
	Spawn      mgl64.Vec3
}

// VehicleSample is the recorded state of a vehicle at one tick.
// VehicleID references VehicleInfo.ID.
type VehicleSample struct {
	VehicleID       uint16
	Tick            uint64
	SimTime         float64 // seconds since run start
	Time            time.Time
	State           KinematicState
	Pitch           float64
	Roll            float64
	Yaw             float64
	DesiredAltitude float64
	NeededThrust    float64
	Commands        []float64
	Proportions     []float64
	Saturated       bool
	Force           mgl64.Vec3
	Torque          mgl64.Vec3
}

// TickFault records a vehicle skipped for one tick.
type TickFault struct {
	VehicleID uint16
	Tick      uint64
	SimTime   float64
	Time      time.Time
	Kind      string
	Message   string
}
