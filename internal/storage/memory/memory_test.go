package memory_test

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/internal/geo"
	"github.com/OCAP2/multicopter/internal/storage"
	"github.com/OCAP2/multicopter/internal/storage/memory"
	"github.com/OCAP2/multicopter/pkg/core"
)

var (
	_ storage.Backend             = (*memory.Backend)(nil)
	_ storage.Uploadable          = (*memory.Backend)(nil)
	_ storage.PerformanceRecorder = (*memory.Backend)(nil)
	_ storage.Reader              = (*memory.Backend)(nil)
)

func testOrigin(t *testing.T) geo.Origin {
	t.Helper()
	o, err := geo.NewOrigin(13.4050, 52.5200, 34)
	require.NoError(t, err)
	return o
}

func testRun() *core.Run {
	return &core.Run{
		Name:      "hover test: a",
		StartTime: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		TickRate:  100,
		Gravity:   9.81,
		Tag:       "Sim",
		Version:   "test",
	}
}

// sample climbs to y while drifting one metre north per tick.
func sample(id uint16, tick uint64, y float64) *core.VehicleSample {
	return &core.VehicleSample{
		VehicleID: id,
		Tick:      tick,
		SimTime:   float64(tick) / 100,
		State:     core.AtRest(mgl64.Vec3{0, y, -float64(tick)}),
		Commands:  []float64{1, 2, 3, 4},
	}
}

func record(t *testing.T, b *memory.Backend) *core.Run {
	t.Helper()
	run := testRun()
	require.NoError(t, b.StartRun(run, []byte(`{"mass":0.05}`)))
	require.NoError(t, b.AddVehicle(&core.VehicleInfo{ID: 0, Name: "quad-0", RotorCount: 4, Mass: 0.05}))
	for tick := uint64(1); tick <= 3; tick++ {
		require.NoError(t, b.RecordVehicleSample(sample(0, tick, float64(tick))))
	}
	require.NoError(t, b.RecordTickFault(&core.TickFault{VehicleID: 1, Tick: 2, Kind: "input", Message: "wrong length"}))
	require.NoError(t, b.RecordPerformance(&core.Performance{Tick: 3, SampleQueue: 2, LastWrite: 1500 * time.Microsecond}))

	run.EndTick = 3
	run.DurationSecs = 0.03
	require.NoError(t, b.EndRun(run))
	return run
}

func readExport(t *testing.T, path string, compressed bool) memory.RunExport {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var export memory.RunExport
	if compressed {
		gr, err := gzip.NewReader(f)
		require.NoError(t, err)
		defer gr.Close()
		require.NoError(t, json.NewDecoder(gr).Decode(&export))
	} else {
		require.NoError(t, json.NewDecoder(f).Decode(&export))
	}
	return export
}

func TestStartRun_AssignsIDAndResets(t *testing.T) {
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()}, testOrigin(t))
	require.NoError(t, b.Init())
	defer b.Close()

	run := testRun()
	require.NoError(t, b.StartRun(run, nil))
	assert.Equal(t, uint(1), run.ID)

	v := &core.VehicleInfo{ID: 7}
	require.NoError(t, b.AddVehicle(v))
	assert.Equal(t, uint(1), v.RunID)

	second := testRun()
	require.NoError(t, b.StartRun(second, nil))
	assert.Equal(t, uint(2), second.ID)
	_, ok := b.GetVehicle(7)
	assert.False(t, ok)
}

func TestRecordVehicleSample_UnknownVehicleIgnored(t *testing.T) {
	b := memory.New(config.MemoryConfig{}, testOrigin(t))
	require.NoError(t, b.StartRun(testRun(), nil))

	require.NoError(t, b.RecordVehicleSample(sample(9, 1, 1)))
	assert.Empty(t, b.Samples(9))
}

func TestEndRun_ExportsGzipJSON(t *testing.T) {
	dir := t.TempDir()
	b := memory.New(config.MemoryConfig{OutputDir: dir, CompressOutput: true}, testOrigin(t))
	record(t, b)

	path := b.GetExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "hover_test__a_20260304_050607.json.gz"), path)

	export := readExport(t, path, true)
	assert.Equal(t, "hover test: a", export.Name)
	assert.Equal(t, uint64(3), export.EndTick)
	assert.JSONEq(t, `{"mass":0.05}`, string(export.Settings))
	require.Len(t, export.Vehicles, 1)

	v := export.Vehicles[0]
	assert.Equal(t, "quad-0", v.Name)
	require.Len(t, v.Samples, 3)
	assert.Equal(t, [3]float64{0, 2, -2}, v.Samples[1].Position)
	assert.InDelta(t, 13.4050, v.Samples[1].Geo[0], 1e-9)
	assert.InDelta(t, 36, v.Samples[1].Geo[2], 1e-9)
	assert.Equal(t, [4]float64{1, 0, 0, 0}, v.Samples[0].Rotation)
	assert.True(t, strings.HasPrefix(v.Track, "LINESTRING Z"), v.Track)

	require.Len(t, export.Faults, 1)
	assert.Equal(t, "input", export.Faults[0].Kind)
	require.Len(t, export.Performance, 1)
	assert.InDelta(t, 1.5, export.Performance[0].LastWriteMs, 1e-9)
}

func TestEndRun_ExportsPlainJSON(t *testing.T) {
	dir := t.TempDir()
	b := memory.New(config.MemoryConfig{OutputDir: dir}, testOrigin(t))
	record(t, b)

	path := b.GetExportedFilePath()
	assert.True(t, strings.HasSuffix(path, ".json"))
	export := readExport(t, path, false)
	assert.Len(t, export.Vehicles, 1)
}

func TestExport_SingleSampleHasNoTrack(t *testing.T) {
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()}, testOrigin(t))
	run := testRun()
	require.NoError(t, b.StartRun(run, nil))
	require.NoError(t, b.AddVehicle(&core.VehicleInfo{ID: 0}))
	require.NoError(t, b.RecordVehicleSample(sample(0, 1, 1)))
	require.NoError(t, b.EndRun(run))

	export := readExport(t, b.GetExportedFilePath(), false)
	require.Len(t, export.Vehicles, 1)
	assert.Empty(t, export.Vehicles[0].Track)
}

func TestEndRun_WithoutStart(t *testing.T) {
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()}, testOrigin(t))
	assert.NoError(t, b.EndRun(testRun()))
	assert.Empty(t, b.GetExportedFilePath())
	assert.Equal(t, core.UploadMetadata{}, b.GetExportMetadata())
}

func TestGetExportMetadata(t *testing.T) {
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()}, testOrigin(t))
	record(t, b)

	assert.Equal(t, core.UploadMetadata{
		RunName:      "hover test: a",
		RunDuration:  0.03,
		VehicleCount: 1,
		Tag:          "Sim",
	}, b.GetExportMetadata())
}

func TestConcurrentRecording(t *testing.T) {
	b := memory.New(config.MemoryConfig{}, testOrigin(t))
	require.NoError(t, b.StartRun(testRun(), nil))
	for id := uint16(0); id < 4; id++ {
		require.NoError(t, b.AddVehicle(&core.VehicleInfo{ID: id}))
	}

	var wg sync.WaitGroup
	for id := uint16(0); id < 4; id++ {
		wg.Add(1)
		go func(id uint16) {
			defer wg.Done()
			for tick := uint64(0); tick < 100; tick++ {
				_ = b.RecordVehicleSample(sample(id, tick, 1))
			}
		}(id)
	}
	wg.Wait()

	for id := uint16(0); id < 4; id++ {
		assert.Len(t, b.Samples(id), 100)
	}
}

func TestReader(t *testing.T) {
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()}, testOrigin(t))
	require.NoError(t, b.AddVehicle(&core.VehicleInfo{ID: 3, Name: "quad-3"}))
	record(t, b)
	// StartRun reset the vehicle registered before it
	vehicles, err := b.Vehicles()
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "quad-0", vehicles[0].Name)

	require.NoError(t, b.AddVehicle(&core.VehicleInfo{ID: 2, Name: "quad-2"}))
	vehicles, err = b.Vehicles()
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 2}, []uint16{vehicles[0].ID, vehicles[1].ID})

	samples, err := b.VehicleSamples(0)
	require.NoError(t, err)
	assert.Len(t, samples, 3)

	faults, err := b.TickFaults()
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, "input", faults[0].Kind)
}
