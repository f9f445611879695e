package sim

import (
	"fmt"
	"strconv"

	"github.com/OCAP2/multicopter/internal/dispatcher"
	"github.com/OCAP2/multicopter/pkg/core"
)

// Dispatcher commands handled by the world.
const (
	CommandKeyDown = ":KEY:DOWN:"
	CommandKeyUp   = ":KEY:UP:"
	CommandMotors  = ":MOTORS:"
	CommandPause   = ":PAUSE:"
)

// RegisterHandlers registers the world's operator commands with the
// dispatcher. Key commands take [vehicleID, key]; the motor override takes
// [vehicleID, omega...].
func (w *World) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CommandKeyDown, w.handleKey(true), dispatcher.Args(2, 2), dispatcher.Logged())
	d.Register(CommandKeyUp, w.handleKey(false), dispatcher.Args(2, 2), dispatcher.Logged())
	d.Register(CommandMotors, w.handleMotors, dispatcher.Args(1, -1), dispatcher.Logged())
	d.Register(CommandPause, w.handlePause, dispatcher.Args(0, 1), dispatcher.Logged())
}

func (w *World) handleKey(down bool) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		id, err := parseVehicleID(e.Args[0])
		if err != nil {
			return nil, err
		}
		key, err := core.ParseKey(e.Args[1])
		if err != nil {
			return nil, err
		}
		return nil, w.SetKey(id, key, down)
	}
}

func (w *World) handleMotors(e dispatcher.Event) (any, error) {
	id, err := parseVehicleID(e.Args[0])
	if err != nil {
		return nil, err
	}
	ent, ok := w.Entity(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVehicle, id)
	}

	commands := make([]float64, 0, len(e.Args)-1)
	for _, arg := range e.Args[1:] {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rotor command %q: %w", arg, err)
		}
		commands = append(commands, v)
	}
	ent.OverrideCommands(commands)
	return len(commands), nil
}

func (w *World) handlePause(e dispatcher.Event) (any, error) {
	paused := !w.Paused()
	if len(e.Args) == 1 {
		v, err := strconv.ParseBool(e.Args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid pause flag %q: %w", e.Args[0], err)
		}
		paused = v
	}
	w.SetPaused(paused)
	return paused, nil
}

func parseVehicleID(s string) (uint16, error) {
	id, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid vehicle id %q: %w", s, err)
	}
	return uint16(id), nil
}
