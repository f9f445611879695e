package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/multicopter/pkg/multicopter"
)

func testQuadProps() []multicopter.PropellerInfo {
	return multicopter.QuadX(0.05, multicopter.DefaultThrustConstant, multicopter.DefaultDragConstant)
}

func TestNewMixer_QuadXSigns(t *testing.T) {
	m := NewMixer(testQuadProps())

	want := []MixRow{
		{Pitch: -1, Roll: 1, Yaw: 1},   // rear right, ccw
		{Pitch: -1, Roll: -1, Yaw: -1}, // rear left, cw
		{Pitch: 1, Roll: 1, Yaw: -1},   // front right, cw
		{Pitch: 1, Roll: -1, Yaw: 1},   // front left, ccw
	}
	assert.Equal(t, want, m.Rows)
}

func TestMixer_BaselineAndZeroDemand(t *testing.T) {
	m := NewMixer(testQuadProps())
	assert.Equal(t, 0.25, m.Baseline())

	offsets := m.Mix(0, 0, 0)
	proportions, shrink := Saturate(offsets, m.Baseline())
	assert.Equal(t, 1.0, shrink)

	sum := 0.0
	for _, p := range proportions {
		assert.Equal(t, 0.25, p)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)

	assert.Zero(t, Mixer{}.Baseline())
}

func TestMixer_OffsetsSumToZero(t *testing.T) {
	m := NewMixer(testQuadProps())
	offsets := m.Mix(0.03, -0.05, 0.02)

	sum := 0.0
	for _, o := range offsets {
		sum += o
	}
	assert.InDelta(t, 0, sum, 1e-15)
}

func TestSaturate_NoShrinkWhenInRange(t *testing.T) {
	offsets := []float64{-0.1, 0.1, -0.2, 0.2}
	proportions, shrink := Saturate(offsets, 0.25)

	assert.Equal(t, 1.0, shrink)
	assert.InDeltaSlice(t, []float64{0.15, 0.35, 0.05, 0.45}, proportions, 1e-12)
}

func TestSaturate_SharedShrinkPreservesRatios(t *testing.T) {
	offsets := []float64{-0.5, 0.1, 0.2, 0.2}
	proportions, shrink := Saturate(offsets, 0.25)

	require.InDelta(t, 0.5, shrink, 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0.3, 0.35, 0.35}, proportions, 1e-12)

	for i, p := range proportions {
		assert.GreaterOrEqual(t, p, 0.0)
		// every offset shrinks by the same factor
		assert.InDelta(t, offsets[i]*shrink, p-0.25, 1e-12)
	}
}

func TestSaturate_MostNegativeBinds(t *testing.T) {
	offsets := []float64{-0.5, -1.0, 0.75, 0.75}
	proportions, shrink := Saturate(offsets, 0.25)

	assert.InDelta(t, 0.25, shrink, 1e-12)
	assert.InDelta(t, 0.125, proportions[0], 1e-12)
	assert.Equal(t, 0.0, proportions[1])
	for _, p := range proportions {
		assert.GreaterOrEqual(t, p, 0.0)
	}
}
