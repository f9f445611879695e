package sim

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/multicopter/internal/dispatcher"
)

func TestRegisterHandlers(t *testing.T) {
	w, _ := newTestWorld(t, Config{})
	d := newTestDispatcher(t)
	w.RegisterHandlers(d)

	assert.Equal(t, []string{CommandKeyDown, CommandKeyUp, CommandMotors, CommandPause}, d.Commands())
}

func TestHandleKey(t *testing.T) {
	e := newTestEntity(t, 2, mgl64.Vec3{})
	w, _ := newTestWorld(t, Config{}, e)
	d := newTestDispatcher(t)
	w.RegisterHandlers(d)

	_, err := d.Dispatch(dispatcher.Event{Command: CommandKeyDown, Args: []string{"2", "pitch_forward"}})
	require.NoError(t, err)
	assert.True(t, e.Input().PitchForward)

	_, err = d.Dispatch(dispatcher.Event{Command: CommandKeyUp, Args: []string{"2", "PITCH_FORWARD"}})
	require.NoError(t, err)
	assert.False(t, e.Input().PitchForward)

	tests := []struct {
		name string
		args []string
	}{
		{"missing key", []string{"2"}},
		{"bad id", []string{"two", "pause"}},
		{"id out of range", []string{"70000", "pause"}},
		{"unknown key", []string{"2", "hover"}},
		{"unknown vehicle", []string{"9", "pause"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(dispatcher.Event{Command: CommandKeyDown, Args: tt.args})
			assert.Error(t, err)
		})
	}
}

func TestHandleMotors(t *testing.T) {
	e := newTestEntity(t, 0, mgl64.Vec3{0, 1, 0})
	w, _ := newTestWorld(t, Config{}, e)
	d := newTestDispatcher(t)
	w.RegisterHandlers(d)

	res, err := d.Dispatch(dispatcher.Event{Command: CommandMotors, Args: []string{"0", "100", "200", "300", "400"}})
	require.NoError(t, err)
	assert.Equal(t, 4, res)

	_, _, override := e.takeTickInput()
	assert.Equal(t, []float64{100, 200, 300, 400}, override)

	_, err = d.Dispatch(dispatcher.Event{Command: CommandMotors, Args: []string{"0", "fast"}})
	assert.Error(t, err)

	_, err = d.Dispatch(dispatcher.Event{Command: CommandMotors, Args: []string{"5", "1"}})
	assert.ErrorIs(t, err, ErrUnknownVehicle)

	_, err = d.Dispatch(dispatcher.Event{Command: CommandMotors})
	assert.ErrorIs(t, err, dispatcher.ErrBadArgs)
}

func TestHandlePause(t *testing.T) {
	w, _ := newTestWorld(t, Config{})
	d := newTestDispatcher(t)
	w.RegisterHandlers(d)

	res, err := d.Dispatch(dispatcher.Event{Command: CommandPause})
	require.NoError(t, err)
	assert.Equal(t, true, res)
	assert.True(t, w.Paused())

	res, err = d.Dispatch(dispatcher.Event{Command: CommandPause, Args: []string{"true"}})
	require.NoError(t, err)
	assert.Equal(t, true, res)

	_, err = d.Dispatch(dispatcher.Event{Command: CommandPause})
	require.NoError(t, err)
	assert.False(t, w.Paused())

	_, err = d.Dispatch(dispatcher.Event{Command: CommandPause, Args: []string{"maybe"}})
	assert.Error(t, err)

	_, err = d.Dispatch(dispatcher.Event{Command: CommandPause, Args: []string{"true", "now"}})
	assert.ErrorIs(t, err, dispatcher.ErrBadArgs)
}
