// Package convert maps simulation records onto GORM models and back.
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/OCAP2/multicopter/internal/geo"
	"github.com/OCAP2/multicopter/internal/model"
	"github.com/OCAP2/multicopter/pkg/core"
)

func vec3(v mgl64.Vec3) model.Vec3 {
	return model.Vec3{X: v.X(), Y: v.Y(), Z: v.Z()}
}

func quat(q mgl64.Quat) model.Quat {
	return model.Quat{W: q.W, X: q.V.X(), Y: q.V.Y(), Z: q.V.Z()}
}

// floatsToJSON converts rotor values to datatypes.JSON, "[]" when empty.
func floatsToJSON(values []float64) datatypes.JSON {
	if len(values) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(values)
	return datatypes.JSON(data)
}

// CoreToRun converts a core.Run to a GORM model.Run. settings is stored as-is
// when it is valid JSON.
func CoreToRun(r core.Run, settings []byte) (model.Run, error) {
	origin, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: r.OriginLon, Y: r.OriginLat}})
	if err != nil {
		return model.Run{}, fmt.Errorf("run origin: %w", err)
	}
	js := datatypes.JSON("{}")
	if json.Valid(settings) {
		js = datatypes.JSON(settings)
	}
	return model.Run{
		Name:         r.Name,
		StartTime:    r.StartTime,
		TickRate:     r.TickRate,
		Gravity:      r.Gravity,
		Origin:       origin,
		OriginAlt:    r.OriginAlt,
		Tag:          r.Tag,
		Version:      r.Version,
		VehicleCount: r.Vehicles,
		EndTick:      r.EndTick,
		DurationSecs: r.DurationSecs,
		Settings:     js,
	}, nil
}

// CoreToVehicle converts a core.VehicleInfo to a GORM model.Vehicle.
// core.VehicleInfo.ID maps to GORM Vehicle.ObjectID.
func CoreToVehicle(v core.VehicleInfo, origin geo.Origin) (model.Vehicle, error) {
	spawn, err := origin.Point(v.Spawn)
	if err != nil {
		return model.Vehicle{}, fmt.Errorf("vehicle %d spawn: %w", v.ID, err)
	}
	return model.Vehicle{
		RunID:      v.RunID,
		ObjectID:   v.ID,
		SpawnTime:  v.SpawnTime,
		Name:       v.Name,
		RotorCount: v.RotorCount,
		Mass:       v.Mass,
		Spawn:      spawn,
		SpawnLocal: floatsToJSON(v.Spawn[:]),
	}, nil
}

// CoreToVehicleSample converts a core.VehicleSample to a GORM model.
// The geographic position is derived from the local one through origin.
func CoreToVehicleSample(s core.VehicleSample, runID uint, origin geo.Origin) (model.VehicleSample, error) {
	pos, err := origin.Point(s.State.Position)
	if err != nil {
		return model.VehicleSample{}, fmt.Errorf("vehicle %d tick %d: %w", s.VehicleID, s.Tick, err)
	}
	return model.VehicleSample{
		Time:            s.Time,
		RunID:           runID,
		VehicleObjectID: s.VehicleID,
		Tick:            s.Tick,
		SimTime:         s.SimTime,
		Position:        pos,
		Local:           vec3(s.State.Position),
		Velocity:        vec3(s.State.Velocity),
		Spin:            vec3(s.State.AngularVelocity),
		Rotation:        quat(s.State.Orientation),
		Pitch:           s.Pitch,
		Roll:            s.Roll,
		Yaw:             s.Yaw,
		DesiredAltitude: s.DesiredAltitude,
		NeededThrust:    s.NeededThrust,
		Commands:        floatsToJSON(s.Commands),
		Proportions:     floatsToJSON(s.Proportions),
		Saturated:       s.Saturated,
		Force:           vec3(s.Force),
		Torque:          vec3(s.Torque),
	}, nil
}

// CoreToTickFault converts a core.TickFault to a GORM model.TickFault.
func CoreToTickFault(f core.TickFault, runID uint) model.TickFault {
	return model.TickFault{
		Time:            f.Time,
		RunID:           runID,
		VehicleObjectID: f.VehicleID,
		Tick:            f.Tick,
		SimTime:         f.SimTime,
		Kind:            f.Kind,
		Message:         f.Message,
	}
}

// CoreToSimPerformance converts a core.Performance snapshot to a GORM model.
func CoreToSimPerformance(p core.Performance) model.SimPerformance {
	return model.SimPerformance{
		Time:  p.Time,
		RunID: p.RunID,
		Tick:  p.Tick,
		QueueLengths: model.QueueLengths{
			Samples: uint32(p.SampleQueue),
			Faults:  uint32(p.FaultQueue),
		},
		DroppedSamples:      p.DroppedSamples,
		TickFaults:          p.TickFaults,
		LastWriteDurationMs: float32(p.LastWrite.Seconds() * 1000),
	}
}
