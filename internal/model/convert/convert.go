package convert

import (
	"encoding/json"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OCAP2/multicopter/internal/model"
	"github.com/OCAP2/multicopter/pkg/core"
)

func toVec3(v model.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func toQuat(q model.Quat) mgl64.Quat {
	return mgl64.Quat{W: q.W, V: mgl64.Vec3{q.X, q.Y, q.Z}}
}

// jsonToFloats decodes a rotor value column. Empty arrays decode to nil so a
// sample without commands reads back as it was recorded.
func jsonToFloats(data []byte) []float64 {
	var values []float64
	if len(data) > 0 {
		_ = json.Unmarshal(data, &values)
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

// VehicleSampleToCore converts a stored sample back to a core.VehicleSample.
// The local position columns are authoritative; the geographic point is not
// read back.
func VehicleSampleToCore(s model.VehicleSample) core.VehicleSample {
	return core.VehicleSample{
		VehicleID: s.VehicleObjectID,
		Tick:      s.Tick,
		SimTime:   s.SimTime,
		Time:      s.Time,
		State: core.KinematicState{
			Position:        toVec3(s.Local),
			Orientation:     toQuat(s.Rotation),
			Velocity:        toVec3(s.Velocity),
			AngularVelocity: toVec3(s.Spin),
		},
		Pitch:           s.Pitch,
		Roll:            s.Roll,
		Yaw:             s.Yaw,
		DesiredAltitude: s.DesiredAltitude,
		NeededThrust:    s.NeededThrust,
		Commands:        jsonToFloats(s.Commands),
		Proportions:     jsonToFloats(s.Proportions),
		Saturated:       s.Saturated,
		Force:           toVec3(s.Force),
		Torque:          toVec3(s.Torque),
	}
}

// TickFaultToCore converts a stored fault back to a core.TickFault.
func TickFaultToCore(f model.TickFault) core.TickFault {
	return core.TickFault{
		VehicleID: f.VehicleObjectID,
		Tick:      f.Tick,
		SimTime:   f.SimTime,
		Time:      f.Time,
		Kind:      f.Kind,
		Message:   f.Message,
	}
}

// VehicleToCore converts a stored vehicle back to a core.VehicleInfo.
func VehicleToCore(v model.Vehicle) core.VehicleInfo {
	info := core.VehicleInfo{
		ID:         v.ObjectID,
		RunID:      v.RunID,
		Name:       v.Name,
		RotorCount: v.RotorCount,
		Mass:       v.Mass,
		SpawnTime:  v.SpawnTime,
	}
	if spawn := jsonToFloats(v.SpawnLocal); len(spawn) == 3 {
		info.Spawn = mgl64.Vec3{spawn[0], spawn[1], spawn[2]}
	}
	return info
}
