package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&SimInfo{},
	&Run{},
	&Vehicle{},
	&VehicleSample{},
	&TickFault{},
	&SimPerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// SimInfo identifies the simulator build that wrote the database
type SimInfo struct {
	gorm.Model
	Version   string `json:"version" gorm:"size:64"`
	BuildDate string `json:"buildDate" gorm:"size:64"`
	Host      string `json:"host" gorm:"size:255"`
}

func (*SimInfo) TableName() string {
	return "sim_infos"
}

// SimPerformance is a periodic snapshot of the telemetry pipeline
type SimPerformance struct {
	Time                time.Time    `json:"time" gorm:"index:idx_simperformance_time"`
	RunID               uint         `json:"runId" gorm:"index:idx_simperformance_run_id"`
	Run                 Run          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	Tick                uint64       `json:"tick"`
	QueueLengths        QueueLengths `json:"queueLengths" gorm:"embedded;embeddedPrefix:queue_"`
	DroppedSamples      uint64       `json:"droppedSamples"`
	TickFaults          uint64       `json:"tickFaults"`
	LastWriteDurationMs float32      `json:"lastWriteDurationMs"`
}

func (*SimPerformance) TableName() string {
	return "sim_performances"
}

// QueueLengths is the depth of each telemetry queue
type QueueLengths struct {
	Samples uint32 `json:"samples"`
	Faults  uint32 `json:"faults"`
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Run is one recorded simulation run
type Run struct {
	gorm.Model
	Name         string         `json:"name" gorm:"size:200"`
	StartTime    time.Time      `json:"startTime" gorm:"index:idx_run_start"`
	TickRate     float64        `json:"tickRate"`
	Gravity      float64        `json:"gravity"`
	Origin       geom.Point     `json:"origin"` // lon/lat of the local frame origin
	OriginAlt    float64        `json:"originAlt"`
	Tag          string         `json:"tag" gorm:"size:127"`
	Version      string         `json:"version" gorm:"size:64"`
	VehicleCount int            `json:"vehicleCount"`
	EndTick      uint64         `json:"endTick"`
	DurationSecs float64        `json:"durationSecs"`
	Settings     datatypes.JSON `json:"settings" gorm:"type:jsonb;default:'{}'"` // airframe and gain snapshot
	Vehicles     []Vehicle
}

func (*Run) TableName() string {
	return "runs"
}

// Vehicle is a simulated multicopter.
// Uses composite primary key (RunID, ObjectID) where ObjectID is the
// simulation's vehicle ID.
type Vehicle struct {
	RunID      uint           `json:"runId" gorm:"primaryKey;autoIncrement:false"`
	ObjectID   uint16         `json:"vehicleId" gorm:"primaryKey;autoIncrement:false"`
	Run        Run            `gorm:"foreignkey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `json:"deletedAt" gorm:"index"`
	SpawnTime  time.Time      `json:"spawnTime" gorm:"NOT NULL"`
	Name       string         `json:"name" gorm:"size:64"`
	RotorCount int            `json:"rotorCount"`
	Mass       float64        `json:"mass"`
	Spawn      geom.Point     `json:"spawn"` // lon/lat/alt
	SpawnLocal datatypes.JSON `json:"spawnLocal" gorm:"type:jsonb;default:'[]'"`
}

func (*Vehicle) TableName() string {
	return "vehicles"
}

// VehicleSample is the state of one vehicle at a recorded tick
type VehicleSample struct {
	ID              uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time            time.Time `json:"time" gorm:"NOT NULL;index:idx_vehiclesample_time"`
	RunID           uint      `json:"runId" gorm:"index:idx_vehiclesample_run_id"`
	Run             Run       `gorm:"foreignkey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	VehicleObjectID uint16    `json:"vehicleId" gorm:"index:idx_vehiclesample_vehicle_id"`
	Tick            uint64    `json:"tick" gorm:"index:idx_vehiclesample_tick"`
	SimTime         float64   `json:"simTime"`

	Position geom.Point `json:"position"` // lon/lat/alt
	Local    Vec3       `json:"local" gorm:"embedded;embeddedPrefix:local_"`
	Velocity Vec3       `json:"velocity" gorm:"embedded;embeddedPrefix:vel_"`
	Spin     Vec3       `json:"spin" gorm:"embedded;embeddedPrefix:spin_"` // world frame angular velocity
	Rotation Quat       `json:"rotation" gorm:"embedded;embeddedPrefix:rot_"`

	Pitch           float64        `json:"pitch"`
	Roll            float64        `json:"roll"`
	Yaw             float64        `json:"yaw"`
	DesiredAltitude float64        `json:"desiredAltitude"`
	NeededThrust    float64        `json:"neededThrust"`
	Commands        datatypes.JSON `json:"commands" gorm:"type:jsonb;default:'[]'"`
	Proportions     datatypes.JSON `json:"proportions" gorm:"type:jsonb;default:'[]'"`
	Saturated       bool           `json:"saturated"`
	Force           Vec3           `json:"force" gorm:"embedded;embeddedPrefix:force_"`
	Torque          Vec3           `json:"torque" gorm:"embedded;embeddedPrefix:torque_"`
}

func (*VehicleSample) TableName() string {
	return "vehicle_samples"
}

// TickFault records a vehicle skipped for a tick
type TickFault struct {
	ID              uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time            time.Time `json:"time" gorm:"NOT NULL;index:idx_tickfault_time"`
	RunID           uint      `json:"runId" gorm:"index:idx_tickfault_run_id"`
	Run             Run       `gorm:"foreignkey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	VehicleObjectID uint16    `json:"vehicleId"`
	Tick            uint64    `json:"tick"`
	SimTime         float64   `json:"simTime"`
	Kind            string    `json:"kind" gorm:"size:64"`
	Message         string    `json:"message" gorm:"size:500"`
}

func (*TickFault) TableName() string {
	return "tick_faults"
}

// Vec3 is an embedded x/y/z column group
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is an embedded quaternion column group
type Quat struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}
