package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OCAP2/multicopter/pkg/controller"
	"github.com/OCAP2/multicopter/pkg/core"
	"github.com/OCAP2/multicopter/pkg/multicopter"
)

// Fault kinds recorded when a vehicle is skipped for a tick.
const (
	FaultInputLength = "input_length"
	FaultController  = "controller"
	FaultDivergence  = "divergence"
)

// errDiverged is returned when integration produces a non-finite state.
var errDiverged = errors.New("state diverged")

// Entity is one simulated vehicle.
type Entity struct {
	ID         uint16
	Name       string
	Airframe   *multicopter.Airframe
	Controller *controller.Controller

	State core.KinematicState
	Spawn core.KinematicState

	Last      controller.Output
	LastForce multicopter.ForceTorque

	mu        sync.Mutex
	input     core.OperatorInput
	resetHeld bool
	override  []float64
}

// NewEntity builds an entity resting at spawn with a controller for af.
func NewEntity(id uint16, name string, af *multicopter.Airframe, gains controller.Gains, spawn mgl64.Vec3) (*Entity, error) {
	if af == nil {
		return nil, fmt.Errorf("vehicle %d: %w: no airframe", id, multicopter.ErrDegenerateConstruction)
	}
	ctrl, err := controller.New(af.Multicopter, gains)
	if err != nil {
		return nil, fmt.Errorf("vehicle %d: %w", id, err)
	}
	state := core.AtRest(spawn)
	return &Entity{
		ID:         id,
		Name:       name,
		Airframe:   af,
		Controller: ctrl,
		State:      state,
		Spawn:      state,
	}, nil
}

// SetKey records an operator key transition.
func (e *Entity) SetKey(key core.Key, down bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.input.Set(key, down)
}

// Input returns a snapshot of the held keys.
func (e *Entity) Input() core.OperatorInput {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.input
}

// OverrideCommands replaces the controller's rotor commands for the next
// tick only.
func (e *Entity) OverrideCommands(commands []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.override = append([]float64(nil), commands...)
}

// takeTickInput returns the input snapshot, whether reset was just pressed
// and any pending command override.
func (e *Entity) takeTickInput() (in core.OperatorInput, resetPressed bool, override []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	in = e.input
	resetPressed = in.Reset && !e.resetHeld
	e.resetHeld = in.Reset
	override, e.override = e.override, nil
	return in, resetPressed, override
}

// ResetToSpawn restores the spawn state and clears the controller.
func (e *Entity) ResetToSpawn() {
	e.State = e.Spawn
	e.Controller.Reset()
}

// Info describes the entity for telemetry.
func (e *Entity) Info() core.VehicleInfo {
	return core.VehicleInfo{
		ID:         e.ID,
		Name:       e.Name,
		RotorCount: e.Airframe.RotorCount(),
		Mass:       e.Airframe.Mass(),
		Spawn:      e.Spawn.Position,
	}
}

// step runs controller, force model and integration for one tick. On error
// the state is left untouched.
func (e *Entity) step(tc core.TickContext, ig Integrator) (kind string, err error) {
	in, resetPressed, override := e.takeTickInput()
	if resetPressed {
		e.ResetToSpawn()
	}
	tc.Input = in

	out, err := e.Controller.Update(e.State, e.Airframe.Mass(), tc)
	if err != nil {
		return FaultController, err
	}

	commands := out.Commands
	if override != nil {
		commands = override
	}

	ft, err := e.Airframe.ForceTorqueAt(e.State, commands)
	if err != nil {
		if errors.Is(err, multicopter.ErrInvalidInputLength) {
			return FaultInputLength, err
		}
		return FaultController, err
	}

	next := ig.Step(e.State, e.Airframe, ft, tc.Dt)
	if !finite(next) {
		return FaultDivergence, fmt.Errorf("%w at %v", errDiverged, next.Position)
	}

	out.Commands = commands
	e.Last = out
	e.LastForce = ft
	e.State = next
	return "", nil
}

// sample captures the entity's recorded state for a tick.
func (e *Entity) sample(tick uint64, simTime float64) core.VehicleSample {
	desired, _ := e.Controller.DesiredAltitude()
	return core.VehicleSample{
		VehicleID:       e.ID,
		Tick:            tick,
		SimTime:         simTime,
		State:           e.State,
		Pitch:           e.Last.Pitch,
		Roll:            e.Last.Roll,
		Yaw:             e.Last.Yaw,
		DesiredAltitude: desired,
		NeededThrust:    e.Last.NeededThrust,
		Commands:        append([]float64(nil), e.Last.Commands...),
		Proportions:     append([]float64(nil), e.Last.Proportions...),
		Saturated:       e.Last.Saturated,
		Force:           e.LastForce.Force,
		Torque:          e.LastForce.Torque,
	}
}
