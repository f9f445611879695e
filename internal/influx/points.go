package influx

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/OCAP2/multicopter/internal/geo"
	"github.com/OCAP2/multicopter/pkg/core"
)

// SamplePoint builds a vehicle_state point. The geographic position is
// derived from the local one through origin.
func SamplePoint(runName string, s core.VehicleSample, origin geo.Origin) *influxdb2_write.Point {
	pos, vel := s.State.Position, s.State.Velocity
	lon, lat, alt := origin.ToWGS84(pos)

	p := influxdb2_write.NewPointWithMeasurement("vehicle_state").
		AddTag("run", runName).
		AddTag("vehicle", strconv.Itoa(int(s.VehicleID))).
		AddField("tick", int64(s.Tick)).
		AddField("x", pos.X()).
		AddField("y", pos.Y()).
		AddField("z", pos.Z()).
		AddField("lon", lon).
		AddField("lat", lat).
		AddField("alt", alt).
		AddField("speed", vel.Len()).
		AddField("climb", vel.Y()).
		AddField("pitch", s.Pitch).
		AddField("roll", s.Roll).
		AddField("yaw", s.Yaw).
		AddField("desired_altitude", s.DesiredAltitude).
		AddField("needed_thrust", s.NeededThrust).
		AddField("saturated", s.Saturated).
		SetTime(s.Time)

	for i, c := range s.Commands {
		p.AddField("cmd_"+strconv.Itoa(i), c)
	}
	return p
}

// FaultPoint builds a tick_fault point.
func FaultPoint(runName string, f core.TickFault) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("tick_fault").
		AddTag("run", runName).
		AddTag("vehicle", strconv.Itoa(int(f.VehicleID))).
		AddTag("kind", f.Kind).
		AddField("tick", int64(f.Tick)).
		AddField("message", f.Message).
		SetTime(f.Time)
}

// PerformancePoint builds a telemetry pipeline point.
func PerformancePoint(runName string, p core.Performance) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("pipeline").
		AddTag("run", runName).
		AddField("tick", int64(p.Tick)).
		AddField("sample_queue", p.SampleQueue).
		AddField("fault_queue", p.FaultQueue).
		AddField("dropped_samples", int64(p.DroppedSamples)).
		AddField("tick_faults", int64(p.TickFaults)).
		AddField("last_write_ms", float64(p.LastWrite.Microseconds())/1000).
		SetTime(p.Time)
}

// ParseMetric builds a point from :METRIC: arguments:
//
//	bucket measurement [tag::name::value | field::type::name::value]...
//
// Field types are string, int, float and bool. Other arguments are ignored.
func ParseMetric(args []string) (string, *influxdb2_write.Point, error) {
	if len(args) < 2 {
		return "", nil, fmt.Errorf("metric needs bucket and measurement, got %d args", len(args))
	}
	point := influxdb2_write.NewPointWithMeasurement(args[1])

	for _, arg := range args[2:] {
		parts := strings.Split(arg, "::")
		switch {
		case parts[0] == "tag" && len(parts) >= 3:
			point.AddTag(parts[1], parts[2])
		case parts[0] == "field" && len(parts) >= 4:
			v, err := fieldValue(parts[1], parts[3])
			if err != nil {
				return "", nil, fmt.Errorf("field %s: %w", parts[2], err)
			}
			if v != nil {
				point.AddField(parts[2], v)
			}
		}
	}
	return args[0], point.SetTime(time.Now()), nil
}

func fieldValue(kind, raw string) (any, error) {
	switch kind {
	case "string":
		return raw, nil
	case "int":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an int", raw)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a float", raw)
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", raw)
		}
		return b, nil
	default:
		return nil, nil
	}
}
