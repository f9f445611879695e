package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"sim": { "tickRate": 50, "vehicles": 3 }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 50.0, viper.GetFloat64("sim.tickRate"))
	assert.Equal(t, 3, viper.GetInt("sim.vehicles"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./simlogs", viper.GetString("logsDir"))
	assert.Equal(t, "http://localhost:5000", viper.GetString("api.serverUrl"))
	assert.Equal(t, "", viper.GetString("api.apiKey"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "multicopter-sim", viper.GetString("otel.serviceName"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	// defaults are still in place
	assert.Equal(t, 100.0, GetSimConfig().TickRate)
}

func TestGetAPIConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetAPIConfig()
	assert.Equal(t, "http://localhost:5000", cfg.ServerURL)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.False(t, cfg.Uploads(), "no api key")

	viper.Reset()
	require.NoError(t, Load(writeConfig(t, `{"api": {"apiKey": "k", "timeout": "90s"}}`)))
	cfg = GetAPIConfig()
	assert.True(t, cfg.Uploads())
	assert.Equal(t, 90*time.Second, cfg.Timeout)
}

func TestGetGraylogConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"graylog": {"enabled": true}}`)))

	assert.Equal(t, GraylogConfig{Enabled: true, Address: "localhost:12201"}, GetGraylogConfig())
}

func TestGetSimConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetSimConfig()
	assert.Equal(t, 100.0, cfg.TickRate)
	assert.InDelta(t, 0.01, cfg.Dt(), 1e-15)
	assert.Equal(t, 30*time.Second, cfg.Duration)
	assert.Equal(t, 1, cfg.Vehicles)
	assert.Equal(t, 2.0, cfg.SpawnHeight)
	assert.Equal(t, 9.81, cfg.Gravity)
	assert.Equal(t, 10, cfg.SampleEvery)
	assert.False(t, cfg.StartPaused)
	assert.False(t, cfg.Realtime)
	assert.Equal(t, uint64(3000), cfg.Frames())

	assert.Zero(t, SimConfig{}.Dt())
	assert.Zero(t, SimConfig{}.Frames())
}

func TestGetVehicleConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetVehicleConfig()
	assert.Equal(t, 0.05, cfg.ArmLength)
	assert.Equal(t, 0.1, cfg.Mass)
	assert.Equal(t, [3]float64{0.01, 0.01, 0.01}, cfg.Inertia)
	assert.Equal(t, 1e-5, cfg.ThrustConstant)
	assert.Equal(t, 1e-7, cfg.DragConstant)

	viper.Reset()
	require.NoError(t, Load(writeConfig(t, `{"vehicle": {"mass": 0.5, "inertia": [0.02, 0.04, 0.03]}}`)))
	cfg = GetVehicleConfig()
	assert.Equal(t, 0.5, cfg.Mass)
	assert.Equal(t, [3]float64{0.02, 0.04, 0.03}, cfg.Inertia)
}

func TestGetControllerConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"controller": {"attitudeP": 0.5, "bankAngle": 0.35}}`)))

	cfg := GetControllerConfig()
	assert.Equal(t, 0.5, cfg.AttitudeP)
	assert.Equal(t, 0.35, cfg.BankAngle)
	assert.Equal(t, 1.0, cfg.AltitudeP)
	assert.Equal(t, 0.1, cfg.TiltCutoff)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./recordings", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, "multicopter", cfg.Postgres.Database)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "dumpInterval": "10m", "dumpPath": "/tmp/sim.db" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
	assert.Equal(t, "/tmp/sim.db", sc.SQLite.DumpPath)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "multicopter-sim", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetInfluxConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"influx": {"enabled": true, "host": "influx.local"}}`)))

	cfg := GetInfluxConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "http://influx.local:8086", cfg.URL())
	assert.Equal(t, "flight-telemetry", cfg.Bucket)
}

func TestGetGeoConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"geo": {"originLon": 11.5, "originLat": 48.1}}`)))

	cfg := GetGeoConfig()
	assert.Equal(t, 11.5, cfg.OriginLon)
	assert.Equal(t, 48.1, cfg.OriginLat)
	assert.Equal(t, 34.0, cfg.OriginAlt)
}
