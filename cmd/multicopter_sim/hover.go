package main

import (
	"fmt"
	"io"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/pkg/core"
	"github.com/OCAP2/multicopter/pkg/multicopter"
)

// hoverReport is the force balance of a level vehicle with every rotor at
// the hover rate.
type hoverReport struct {
	Mass       float64
	Gravity    float64
	Rotors     int
	Omega      float64 // rad/s per rotor
	Thrust     float64 // N, total
	Weight     float64 // N
	Linear     mgl64.Vec3
	Angular    mgl64.Vec3
	RotorForce multicopter.ForceTorque
}

func computeHover(vehCfg config.VehicleConfig, g float64) (hoverReport, error) {
	af, err := buildAirframe(vehCfg)
	if err != nil {
		return hoverReport{}, err
	}

	n := af.RotorCount()
	omega := multicopter.HoverRate(af.Mass(), g, vehCfg.ThrustConstant, n)
	controls := make([]float64, n)
	for i := range controls {
		controls[i] = omega
	}

	state := core.AtRest(mgl64.Vec3{})
	ft, err := af.ForceTorqueAt(state, controls)
	if err != nil {
		return hoverReport{}, err
	}
	weight := multicopter.ForceTorque{Force: mgl64.Vec3{0, -af.Mass() * g, 0}}
	acc, err := af.Acceleration(state, controls, weight)
	if err != nil {
		return hoverReport{}, err
	}

	return hoverReport{
		Mass:       af.Mass(),
		Gravity:    g,
		Rotors:     n,
		Omega:      omega,
		Thrust:     ft.Force.Y(),
		Weight:     af.Mass() * g,
		Linear:     acc.Linear,
		Angular:    acc.Angular,
		RotorForce: ft,
	}, nil
}

func printHover(w io.Writer) error {
	r, err := computeHover(config.GetVehicleConfig(), config.GetSimConfig().Gravity)
	if err != nil {
		return err
	}

	rpm := r.Omega * 60 / (2 * math.Pi)
	fmt.Fprintf(w, "vehicle: %s kg, %d rotors, g = %s m/s²\n",
		humanize.FtoaWithDigits(r.Mass, 4), r.Rotors, humanize.FtoaWithDigits(r.Gravity, 3))
	fmt.Fprintf(w, "hover rate: %s rad/s (%s rpm) per rotor\n",
		humanize.FtoaWithDigits(r.Omega, 2), humanize.Comma(int64(rpm)))
	fmt.Fprintf(w, "thrust: %s N  weight: %s N\n",
		humanize.FtoaWithDigits(r.Thrust, 6), humanize.FtoaWithDigits(r.Weight, 6))
	fmt.Fprintf(w, "net linear acceleration: %.3g m/s²\n", r.Linear.Len())
	fmt.Fprintf(w, "net angular acceleration: %.3g rad/s²\n", r.Angular.Len())
	return nil
}
