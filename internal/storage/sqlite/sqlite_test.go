package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/internal/database"
	"github.com/OCAP2/multicopter/internal/geo"
	"github.com/OCAP2/multicopter/internal/model"
	gormstorage "github.com/OCAP2/multicopter/internal/storage/gorm"
	"github.com/OCAP2/multicopter/pkg/core"
)

func newBackend(t *testing.T, cfg config.SQLiteConfig) *Backend {
	t.Helper()
	origin, err := geo.NewOrigin(13.4050, 52.5200, 34)
	require.NoError(t, err)
	b, err := New(cfg, gormstorage.Dependencies{
		Origin:        origin,
		Version:       "test",
		Logger:        zerolog.Nop(),
		FlushInterval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, b.Init())
	return b
}

func record(t *testing.T, b *Backend) {
	t.Helper()
	run := &core.Run{Name: "hover", StartTime: time.Now(), TickRate: 100, Vehicles: 1}
	require.NoError(t, b.StartRun(run, nil))
	require.NoError(t, b.AddVehicle(&core.VehicleInfo{ID: 0, Name: "quad-0", RotorCount: 4, SpawnTime: run.StartTime}))
	for tick := uint64(1); tick <= 5; tick++ {
		require.NoError(t, b.RecordVehicleSample(&core.VehicleSample{
			VehicleID: 0,
			Tick:      tick,
			Time:      time.Now(),
			State:     core.AtRest(mgl64.Vec3{0, 2, 0}),
		}))
	}
	run.EndTick = 5
	require.NoError(t, b.EndRun(run))
}

func TestClose_WritesFinalDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.db")
	b := newBackend(t, config.SQLiteConfig{DumpPath: path})
	record(t, b)
	require.NoError(t, b.Close())
	assert.Equal(t, path, b.GetExportedFilePath())

	disk, err := database.OpenSQLite(path, "", zerolog.Nop())
	require.NoError(t, err)

	var count int64
	require.NoError(t, disk.Model(&model.VehicleSample{}).Count(&count).Error)
	assert.Equal(t, int64(5), count)

	var run model.Run
	require.NoError(t, disk.First(&run).Error)
	assert.Equal(t, uint64(5), run.EndTick)
}

func TestDumpLoop_Periodic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "periodic.db")
	b := newBackend(t, config.SQLiteConfig{DumpPath: path, DumpInterval: 10 * time.Millisecond})
	defer b.Close()
	record(t, b)

	assert.Eventually(t, func() bool {
		st, err := os.Stat(path)
		return err == nil && st.Size() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClose_NoDumpPath(t *testing.T) {
	b := newBackend(t, config.SQLiteConfig{})
	record(t, b)
	assert.NoError(t, b.Close())
}
