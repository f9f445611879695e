package controller

import (
	"github.com/OCAP2/multicopter/pkg/multicopter"
)

// MixRow holds the signs a rotor's thrust proportion takes from each torque
// demand.
type MixRow struct {
	Pitch float64
	Roll  float64
	Yaw   float64
}

// Mixer maps pitch, roll and yaw torque demands onto rotor thrust proportions.
type Mixer struct {
	Rows []MixRow
}

// NewMixer derives the mixing matrix from each rotor's quadrant and spin
// direction: a rotor helps pitch (about body X) if raising its thrust raises
// the X moment, helps roll likewise about Z, and helps yaw with the sign of
// its reaction torque.
func NewMixer(props []multicopter.PropellerInfo) Mixer {
	rows := make([]MixRow, len(props))
	for i, p := range props {
		moment := p.Position.Cross(p.Direction)
		rows[i] = MixRow{
			Pitch: sign(moment.X()),
			Roll:  sign(moment.Z()),
			Yaw:   p.RotationDirection.Sign() * sign(p.Direction.Y()),
		}
	}
	return Mixer{Rows: rows}
}

// Baseline is the per-rotor proportion at zero torque demand; proportions
// sum to one.
func (m Mixer) Baseline() float64 {
	if len(m.Rows) == 0 {
		return 0
	}
	return 1 / float64(len(m.Rows))
}

// Mix returns the torque-derived offsets for each rotor, before the baseline
// is added.
func (m Mixer) Mix(pitch, roll, yaw float64) []float64 {
	offsets := make([]float64, len(m.Rows))
	for i, r := range m.Rows {
		offsets[i] = r.Pitch*pitch + r.Roll*roll + r.Yaw*yaw
	}
	return offsets
}

// Saturate scales every offset by one shared factor so that no rotor asks
// for negative thrust, then adds the baseline back. The factor is the
// smallest -baseline/offset over offsets below -baseline, or 1 when none are.
func Saturate(offsets []float64, baseline float64) (proportions []float64, shrink float64) {
	shrink = 1
	for _, o := range offsets {
		if o < -baseline {
			if f := -baseline / o; f < shrink {
				shrink = f
			}
		}
	}

	proportions = make([]float64, len(offsets))
	for i, o := range offsets {
		p := baseline + shrink*o
		// the binding rotor lands on zero up to rounding
		if p < 0 {
			p = 0
		}
		proportions[i] = p
	}
	return proportions, shrink
}

func sign(x float64) float64 {
	const eps = 1e-12
	switch {
	case x > eps:
		return 1
	case x < -eps:
		return -1
	default:
		return 0
	}
}
