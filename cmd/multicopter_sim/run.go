package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/viper"

	"github.com/OCAP2/multicopter/internal/api"
	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/internal/dispatcher"
	"github.com/OCAP2/multicopter/internal/geo"
	"github.com/OCAP2/multicopter/internal/influx"
	"github.com/OCAP2/multicopter/internal/logging"
	"github.com/OCAP2/multicopter/internal/monitor"
	"github.com/OCAP2/multicopter/internal/sim"
	"github.com/OCAP2/multicopter/internal/storage"
	"github.com/OCAP2/multicopter/internal/worker"
	"github.com/OCAP2/multicopter/pkg/core"
)

// sampleQueueLimit bounds queued samples when the writer falls behind.
const sampleQueueLimit = 100_000

func runSim(scriptPath string) error {
	simCfg := config.GetSimConfig()
	if simCfg.Dt() <= 0 {
		return fmt.Errorf("sim.tickRate must be positive, got %g", simCfg.TickRate)
	}

	var script *sim.Script
	if scriptPath != "" {
		var err error
		script, err = sim.LoadScript(scriptPath)
		if err != nil {
			return err
		}
		Logger.Info("Loaded script", "path", scriptPath, "name", script.Name, "steps", len(script.Steps), "duration", script.Duration())
	}

	geoCfg := config.GetGeoConfig()
	origin, err := geo.NewOrigin(geoCfg.OriginLon, geoCfg.OriginLat, geoCfg.OriginAlt)
	if err != nil {
		return fmt.Errorf("invalid geo origin: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// storage
	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, storage.Options{
		Origin:  origin,
		Version: CurrentVersion,
		Logger:  ZLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}()
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)

	// influx is optional; a failed connection falls back to a backup file
	var influxManager *influx.Manager
	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		backupPath := filepath.Join(viper.GetString("logsDir"),
			fmt.Sprintf("%s_influx_%s.lp.gz", AppName, SessionStartTime.Format("20060102_150405")))
		influxManager = influx.NewManager(influxCfg, ZLogger, backupPath)
		if err := influxManager.Connect(ctx); err != nil {
			Logger.Error("Failed to set up InfluxDB", "error", err)
			influxManager = nil
		} else {
			defer influxManager.Close()
		}
	}

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(ZLogger), dispatcher.WithTickSource(RunContext.Tick))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer eventDispatcher.Close()

	queues := worker.NewQueues(sampleQueueLimit)
	workerManager := worker.NewManager(worker.Dependencies{
		Backend: backend,
		Influx:  influxManager,
		Run:     RunContext,
		Origin:  origin,
		Logger:  logging.NewDispatcherLogger(ZLogger),
	}, queues)
	workerManager.RegisterHandlers(eventDispatcher)

	world, err := sim.NewWorld(sim.Config{
		Dt:          simCfg.Dt(),
		Gravity:     mgl64.Vec3{0, -simCfg.Gravity, 0},
		SampleEvery: simCfg.SampleEvery,
		StartPaused: simCfg.StartPaused,
	}, queues, Logger)
	if err != nil {
		return err
	}
	world.RegisterHandlers(eventDispatcher)

	// run record
	settings, err := json.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	r := &core.Run{
		Name:      simCfg.Name,
		StartTime: time.Now(),
		TickRate:  simCfg.TickRate,
		Vehicles:  simCfg.Vehicles,
		Gravity:   simCfg.Gravity,
		OriginLon: origin.Lon,
		OriginLat: origin.Lat,
		OriginAlt: origin.Alt,
		Tag:       simCfg.Tag,
		Version:   CurrentVersion,
	}
	if err := backend.StartRun(r, settings); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	RunContext.SetRun(r)
	world.SetStart(r.StartTime)
	world.OnTick(func(tick uint64, _ float64) { RunContext.SetTick(tick) })
	Logger.Info("Run started", "id", r.ID, "name", r.Name)

	if err := spawnVehicles(world, backend, r, simCfg); err != nil {
		return err
	}

	workerManager.Start()
	monitorService := monitor.NewService(monitor.Dependencies{
		Run:        RunContext,
		Worker:     workerManager,
		TickFaults: world.Faults,
		StatusPath: filepath.Join(viper.GetString("logsDir"), "status.txt"),
		Logger:     Logger,
	})
	monitorService.Start()

	var player *sim.Player
	if script != nil {
		player = sim.NewPlayer(script, eventDispatcher)
	}

	var pace time.Duration
	if simCfg.Realtime {
		pace = time.Duration(simCfg.Dt() * float64(time.Second))
	}

	// scripts follow frame time so a scripted unpause still fires
	var frames uint64
	afterStep := func() error {
		frames++
		if player == nil {
			return nil
		}
		at := time.Duration(float64(frames) * simCfg.Dt() * float64(time.Second))
		if _, err := player.Update(at); err != nil {
			Logger.Warn("Script step failed", "error", err)
		}
		return nil
	}

	began := time.Now()
	runErr := world.Run(ctx, simCfg.Frames(), pace, afterStep)
	if errors.Is(runErr, context.Canceled) {
		Logger.Info("Run interrupted", "tick", world.Tick())
		runErr = nil
	}

	monitorService.Stop()
	if err := workerManager.Stop(); err != nil {
		Logger.Error("Final telemetry drain failed", "error", err)
	}
	if err := workerManager.RecordPerformance(workerManager.Snapshot(world.Tick(), world.Faults())); err != nil {
		Logger.Warn("Failed to record final performance", "error", err)
	}

	r.EndTick = world.Tick()
	r.DurationSecs = world.SimTime()
	RunContext.Update(func(cur *core.Run) {
		cur.EndTick = r.EndTick
		cur.DurationSecs = r.DurationSecs
	})
	if err := backend.EndRun(r); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to end run: %w", err))
	}

	Logger.Info("Run finished",
		"ticks", humanize.Comma(int64(r.EndTick)),
		"simTime", fmt.Sprintf("%.2fs", r.DurationSecs),
		"wall", time.Since(began).Round(time.Millisecond),
		"samples", humanize.Comma(int64(workerManager.Written())),
		"faults", world.Faults(),
	)

	if rd, ok := backend.(storage.Reader); ok {
		if err := logFlightSummary(rd); err != nil {
			Logger.Warn("Failed to read back flight summary", "error", err)
		}
	}
	uploadRun(backend)
	return runErr
}

// flightSummary condenses the recorded samples of one vehicle.
type flightSummary struct {
	Samples     int
	MaxAltitude float64
	Final       mgl64.Vec3
	Saturated   int
}

func summarize(samples []core.VehicleSample) flightSummary {
	var fs flightSummary
	fs.Samples = len(samples)
	for i, s := range samples {
		if alt := s.State.Altitude(); i == 0 || alt > fs.MaxAltitude {
			fs.MaxAltitude = alt
		}
		if s.Saturated {
			fs.Saturated++
		}
		fs.Final = s.State.Position
	}
	return fs
}

func logFlightSummary(rd storage.Reader) error {
	vehicles, err := rd.Vehicles()
	if err != nil {
		return err
	}
	faults, err := rd.TickFaults()
	if err != nil {
		return err
	}
	faultsBy := make(map[uint16]int)
	for _, f := range faults {
		faultsBy[f.VehicleID]++
	}

	for _, v := range vehicles {
		samples, err := rd.VehicleSamples(v.ID)
		if err != nil {
			return err
		}
		fs := summarize(samples)
		Logger.Info("Vehicle summary",
			"vehicle", v.Name,
			"samples", humanize.Comma(int64(fs.Samples)),
			"maxAltitude", humanize.FtoaWithDigits(fs.MaxAltitude, 3),
			"final", fmt.Sprintf("(%.2f, %.2f, %.2f)", fs.Final.X(), fs.Final.Y(), fs.Final.Z()),
			"saturatedSamples", fs.Saturated,
			"faults", faultsBy[v.ID],
		)
	}
	return nil
}

func spawnVehicles(world *sim.World, backend storage.Backend, r *core.Run, simCfg config.SimConfig) error {
	vehCfg := config.GetVehicleConfig()
	gains := gainsFromConfig(config.GetControllerConfig())

	for i, spawn := range spawnPositions(simCfg.Vehicles, simCfg.SpawnSpacing, simCfg.SpawnHeight) {
		af, err := buildAirframe(vehCfg)
		if err != nil {
			return err
		}
		e, err := sim.NewEntity(uint16(i), fmt.Sprintf("quad-%d", i), af, gains, spawn)
		if err != nil {
			return err
		}
		if err := world.AddEntity(e); err != nil {
			return err
		}

		info := e.Info()
		info.RunID = r.ID
		info.SpawnTime = r.StartTime
		if err := backend.AddVehicle(&info); err != nil {
			return fmt.Errorf("failed to register vehicle %d: %w", e.ID, err)
		}
	}
	Logger.Info("Vehicles spawned", "count", simCfg.Vehicles)
	return nil
}

// uploadRun sends the exported flight log to the recording server when the
// backend produced one and an API key is configured.
func uploadRun(backend storage.Backend) {
	up, ok := backend.(storage.Uploadable)
	if !ok {
		return
	}
	path := up.GetExportedFilePath()
	apiCfg := config.GetAPIConfig()
	if path == "" || !apiCfg.Uploads() {
		return
	}

	if apiCfg.Timeout <= 0 {
		apiCfg.Timeout = time.Minute
	}
	client := api.New(apiCfg.ServerURL, apiCfg.APIKey, api.WithTimeout(apiCfg.Timeout))
	ctx, cancel := context.WithTimeout(context.Background(), 2*apiCfg.Timeout)
	defer cancel()

	if err := client.Healthcheck(ctx); err != nil {
		Logger.Info("Recording server is offline, skipping upload", "error", err)
		return
	}
	if err := client.Upload(ctx, path, up.GetExportMetadata()); err != nil {
		Logger.Error("Upload failed", "path", path, "error", err)
		return
	}
	Logger.Info("Uploaded flight log", "path", path)
}
