package sim

import (
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/multicopter/pkg/controller"
	"github.com/OCAP2/multicopter/pkg/core"
	"github.com/OCAP2/multicopter/pkg/multicopter"
)

const (
	testDt   = 1.0 / 60
	testMass = 0.1
)

var testGravity = mgl64.Vec3{0, -9.81, 0}

// fakeRecorder captures telemetry in memory.
type fakeRecorder struct {
	mu      sync.Mutex
	samples []core.VehicleSample
	faults  []core.TickFault
}

func (r *fakeRecorder) RecordSample(s core.VehicleSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *fakeRecorder) RecordFault(f core.TickFault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, f)
}

func (r *fakeRecorder) Samples() []core.VehicleSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.VehicleSample(nil), r.samples...)
}

func (r *fakeRecorder) Faults() []core.TickFault {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.TickFault(nil), r.faults...)
}

func newTestAirframe(t *testing.T) *multicopter.Airframe {
	t.Helper()
	mc, err := multicopter.New(multicopter.QuadX(0.05, multicopter.DefaultThrustConstant, multicopter.DefaultDragConstant))
	require.NoError(t, err)
	af, err := multicopter.NewAirframe(mc, testMass, multicopter.DiagonalInertia(1e-3, 1e-3, 1e-3))
	require.NoError(t, err)
	return af
}

func newTestEntity(t *testing.T, id uint16, spawn mgl64.Vec3) *Entity {
	t.Helper()
	e, err := NewEntity(id, "quad", newTestAirframe(t), controller.DefaultGains(), spawn)
	require.NoError(t, err)
	return e
}

func newTestWorld(t *testing.T, cfg Config, entities ...*Entity) (*World, *fakeRecorder) {
	t.Helper()
	if cfg.Dt == 0 {
		cfg.Dt = testDt
	}
	if cfg.Gravity == (mgl64.Vec3{}) {
		cfg.Gravity = testGravity
	}
	rec := &fakeRecorder{}
	w, err := NewWorld(cfg, rec, nil)
	require.NoError(t, err)
	for _, e := range entities {
		require.NoError(t, w.AddEntity(e))
	}
	return w, rec
}

func assertVecNear(t *testing.T, want, got mgl64.Vec3, tol float64) {
	t.Helper()
	for i := range 3 {
		require.InDelta(t, want[i], got[i], tol, "component %d: want %v got %v", i, want, got)
	}
}
