package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"
)

// FileName is the name of the JSON config file looked up in the config dir.
const FileName = "multicopter_sim.cfg.json"

// SimConfig holds world and run settings
type SimConfig struct {
	TickRate     float64       `json:"tickRate" mapstructure:"tickRate"`
	Duration     time.Duration `json:"duration" mapstructure:"duration"`
	Vehicles     int           `json:"vehicles" mapstructure:"vehicles"`
	SpawnSpacing float64       `json:"spawnSpacing" mapstructure:"spawnSpacing"`
	SpawnHeight  float64       `json:"spawnHeight" mapstructure:"spawnHeight"`
	Gravity      float64       `json:"gravity" mapstructure:"gravity"`
	SampleEvery  int           `json:"sampleEvery" mapstructure:"sampleEvery"`
	StartPaused  bool          `json:"startPaused" mapstructure:"startPaused"`
	Realtime     bool          `json:"realtime" mapstructure:"realtime"`
	Name         string        `json:"name" mapstructure:"name"`
	Tag          string        `json:"tag" mapstructure:"tag"`
}

// Frames returns the number of ticks in Duration.
func (c SimConfig) Frames() uint64 {
	if c.TickRate <= 0 || c.Duration <= 0 {
		return 0
	}
	return uint64(math.Round(c.Duration.Seconds() * c.TickRate))
}

// Dt returns the fixed tick duration in seconds.
func (c SimConfig) Dt() float64 {
	if c.TickRate <= 0 {
		return 0
	}
	return 1 / c.TickRate
}

// VehicleConfig holds the airframe built for every spawned vehicle
type VehicleConfig struct {
	ArmLength      float64    `json:"armLength" mapstructure:"armLength"`
	Mass           float64    `json:"mass" mapstructure:"mass"`
	Inertia        [3]float64 `json:"inertia" mapstructure:"inertia"`
	ThrustConstant float64    `json:"thrustConstant" mapstructure:"thrustConstant"`
	DragConstant   float64    `json:"dragConstant" mapstructure:"dragConstant"`
}

// ControllerConfig holds flight controller gains
type ControllerConfig struct {
	AltitudeP  float64 `json:"altitudeP" mapstructure:"altitudeP"`
	AltitudeI  float64 `json:"altitudeI" mapstructure:"altitudeI"`
	AltitudeD  float64 `json:"altitudeD" mapstructure:"altitudeD"`
	AttitudeP  float64 `json:"attitudeP" mapstructure:"attitudeP"`
	AttitudeD  float64 `json:"attitudeD" mapstructure:"attitudeD"`
	YawP       float64 `json:"yawP" mapstructure:"yawP"`
	YawD       float64 `json:"yawD" mapstructure:"yawD"`
	BankAngle  float64 `json:"bankAngle" mapstructure:"bankAngle"`
	YawRate    float64 `json:"yawRate" mapstructure:"yawRate"`
	ClimbRate  float64 `json:"climbRate" mapstructure:"climbRate"`
	TiltCutoff float64 `json:"tiltCutoff" mapstructure:"tiltCutoff"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds in-memory SQLite backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// PostgresConfig holds connection settings for the postgres backend
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// StorageConfig selects and configures the telemetry storage backend
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"`
	Memory   MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite   SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB telemetry settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the server URL built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// APIConfig points at the recording server flight logs are uploaded to
type APIConfig struct {
	ServerURL string        `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string        `json:"apiKey" mapstructure:"apiKey"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Uploads reports whether finished runs should be uploaded.
func (c APIConfig) Uploads() bool {
	return c.ServerURL != "" && c.APIKey != ""
}

// GraylogConfig holds the GELF log sink settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// GeoConfig anchors the local simulation frame on the globe
type GeoConfig struct {
	OriginLon float64 `json:"originLon" mapstructure:"originLon"`
	OriginLat float64 `json:"originLat" mapstructure:"originLat"`
	OriginAlt float64 `json:"originAlt" mapstructure:"originAlt"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./simlogs")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.timeout", "1m")

	viper.SetDefault("sim.tickRate", 100.0)
	viper.SetDefault("sim.duration", "30s")
	viper.SetDefault("sim.vehicles", 1)
	viper.SetDefault("sim.spawnSpacing", 1.0)
	viper.SetDefault("sim.spawnHeight", 2.0)
	viper.SetDefault("sim.gravity", 9.81)
	viper.SetDefault("sim.sampleEvery", 10)
	viper.SetDefault("sim.startPaused", false)
	viper.SetDefault("sim.realtime", false)
	viper.SetDefault("sim.name", "hover")
	viper.SetDefault("sim.tag", "Sim")

	viper.SetDefault("vehicle.armLength", 0.05)
	viper.SetDefault("vehicle.mass", 0.1)
	viper.SetDefault("vehicle.inertia", []float64{0.01, 0.01, 0.01})
	viper.SetDefault("vehicle.thrustConstant", 1e-5)
	viper.SetDefault("vehicle.dragConstant", 1e-7)

	viper.SetDefault("controller.altitudeP", 1.0)
	viper.SetDefault("controller.altitudeI", 0.1)
	viper.SetDefault("controller.altitudeD", 0.8)
	viper.SetDefault("controller.attitudeP", 0.3)
	viper.SetDefault("controller.attitudeD", 0.15)
	viper.SetDefault("controller.yawP", 0.5)
	viper.SetDefault("controller.yawD", 0.5)
	viper.SetDefault("controller.bankAngle", 0.2)
	viper.SetDefault("controller.yawRate", 1.0)
	viper.SetDefault("controller.climbRate", 1.0)
	viper.SetDefault("controller.tiltCutoff", 0.1)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./recordings/multicopter_sim.db")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "multicopter")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "multicopter-metrics")
	viper.SetDefault("influx.bucket", "flight-telemetry")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "multicopter-sim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("geo.originLon", 13.4050)
	viper.SetDefault("geo.originLat", 52.5200)
	viper.SetDefault("geo.originAlt", 34.0)

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetSimConfig returns the simulation settings.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickRate:     viper.GetFloat64("sim.tickRate"),
		Duration:     viper.GetDuration("sim.duration"),
		Vehicles:     viper.GetInt("sim.vehicles"),
		SpawnSpacing: viper.GetFloat64("sim.spawnSpacing"),
		SpawnHeight:  viper.GetFloat64("sim.spawnHeight"),
		Gravity:      viper.GetFloat64("sim.gravity"),
		SampleEvery:  viper.GetInt("sim.sampleEvery"),
		StartPaused:  viper.GetBool("sim.startPaused"),
		Realtime:     viper.GetBool("sim.realtime"),
		Name:         viper.GetString("sim.name"),
		Tag:          viper.GetString("sim.tag"),
	}
}

// GetVehicleConfig returns the airframe settings.
func GetVehicleConfig() VehicleConfig {
	cfg := VehicleConfig{
		ArmLength:      viper.GetFloat64("vehicle.armLength"),
		Mass:           viper.GetFloat64("vehicle.mass"),
		ThrustConstant: viper.GetFloat64("vehicle.thrustConstant"),
		DragConstant:   viper.GetFloat64("vehicle.dragConstant"),
	}
	var inertia []float64
	if err := viper.UnmarshalKey("vehicle.inertia", &inertia); err == nil {
		copy(cfg.Inertia[:], inertia)
	}
	return cfg
}

// GetControllerConfig returns the controller gains.
func GetControllerConfig() ControllerConfig {
	return ControllerConfig{
		AltitudeP:  viper.GetFloat64("controller.altitudeP"),
		AltitudeI:  viper.GetFloat64("controller.altitudeI"),
		AltitudeD:  viper.GetFloat64("controller.altitudeD"),
		AttitudeP:  viper.GetFloat64("controller.attitudeP"),
		AttitudeD:  viper.GetFloat64("controller.attitudeD"),
		YawP:       viper.GetFloat64("controller.yawP"),
		YawD:       viper.GetFloat64("controller.yawD"),
		BankAngle:  viper.GetFloat64("controller.bankAngle"),
		YawRate:    viper.GetFloat64("controller.yawRate"),
		ClimbRate:  viper.GetFloat64("controller.climbRate"),
		TiltCutoff: viper.GetFloat64("controller.tiltCutoff"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGeoConfig returns the geographic origin of the local frame.
func GetGeoConfig() GeoConfig {
	return GeoConfig{
		OriginLon: viper.GetFloat64("geo.originLon"),
		OriginLat: viper.GetFloat64("geo.originLat"),
		OriginAlt: viper.GetFloat64("geo.originAlt"),
	}
}

// GetAPIConfig returns the recording server settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Timeout:   viper.GetDuration("api.timeout"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
