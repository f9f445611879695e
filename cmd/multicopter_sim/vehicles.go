package main

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/pkg/controller"
	"github.com/OCAP2/multicopter/pkg/multicopter"
)

// buildAirframe makes the configured QuadX airframe.
func buildAirframe(cfg config.VehicleConfig) (*multicopter.Airframe, error) {
	mc, err := multicopter.New(multicopter.QuadX(cfg.ArmLength, cfg.ThrustConstant, cfg.DragConstant))
	if err != nil {
		return nil, fmt.Errorf("building rotor layout: %w", err)
	}
	af, err := multicopter.NewAirframe(mc, cfg.Mass, multicopter.DiagonalInertia(cfg.Inertia[0], cfg.Inertia[1], cfg.Inertia[2]))
	if err != nil {
		return nil, fmt.Errorf("building airframe: %w", err)
	}
	return af, nil
}

func gainsFromConfig(cfg config.ControllerConfig) controller.Gains {
	return controller.Gains{
		AltitudeP:  cfg.AltitudeP,
		AltitudeI:  cfg.AltitudeI,
		AltitudeD:  cfg.AltitudeD,
		AttitudeP:  cfg.AttitudeP,
		AttitudeD:  cfg.AttitudeD,
		YawP:       cfg.YawP,
		YawD:       cfg.YawD,
		BankAngle:  cfg.BankAngle,
		YawRate:    cfg.YawRate,
		ClimbRate:  cfg.ClimbRate,
		TiltCutoff: cfg.TiltCutoff,
	}
}

// spawnPositions lays n vehicles out on a square grid centered on the origin
// at height, spacing meters apart.
func spawnPositions(n int, spacing, height float64) []mgl64.Vec3 {
	if n <= 0 {
		return nil
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	offsetX := float64(cols-1) * spacing / 2
	offsetZ := float64(rows-1) * spacing / 2

	out := make([]mgl64.Vec3, 0, n)
	for i := range n {
		col, row := i%cols, i/cols
		out = append(out, mgl64.Vec3{
			float64(col)*spacing - offsetX,
			height,
			float64(row)*spacing - offsetZ,
		})
	}
	return out
}
