package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/internal/geo"
	"github.com/OCAP2/multicopter/internal/run"
	"github.com/OCAP2/multicopter/internal/storage/memory"
	"github.com/OCAP2/multicopter/internal/worker"
	"github.com/OCAP2/multicopter/pkg/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newService(t *testing.T, statusPath string) (*Service, *run.Context) {
	t.Helper()
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()}, geo.Origin{})
	r := &core.Run{Name: "hover", Vehicles: 2, StartTime: time.Now().Add(-time.Minute)}
	require.NoError(t, backend.StartRun(r, nil))

	runCtx := run.NewContext()
	runCtx.SetRun(r)
	runCtx.SetTick(12345)

	w := worker.NewManager(worker.Dependencies{Backend: backend, Run: runCtx, Logger: nopLogger{}}, worker.NewQueues(0))
	w.Queues().Samples.Push(core.VehicleSample{}, core.VehicleSample{})

	s := NewService(Dependencies{
		Run:        runCtx,
		Worker:     w,
		TickFaults: func() uint64 { return 3 },
		StatusPath: statusPath,
		Interval:   5 * time.Millisecond,
	})
	return s, runCtx
}

func TestStatus(t *testing.T) {
	s, _ := newService(t, "")

	lines, perf := s.Status()
	assert.Equal(t, uint64(12345), perf.Tick)
	assert.Equal(t, 2, perf.SampleQueue)
	assert.Equal(t, uint64(3), perf.TickFaults)

	text := strings.Join(lines, "\n")
	assert.Contains(t, text, "run: hover (2 vehicles)")
	assert.Contains(t, text, "tick: 12,345")
	assert.Contains(t, text, "sample queue: 2")
	assert.Contains(t, text, "tick faults: 3")
	assert.Contains(t, text, "started: 1 minute ago")
}

func TestWriteStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.txt")
	s, _ := newService(t, path)

	require.NoError(t, s.WriteStatus())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tick: 12,345\n")
}

func TestStartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.txt")
	s, _ := newService(t, path)

	s.Start()
	s.Start() // already running
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestLoop_SkipsWithoutRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.txt")
	s, runCtx := newService(t, path)
	runCtx.SetRun(&core.Run{Name: "pending"})

	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
