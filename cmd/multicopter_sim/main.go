package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/internal/logging"
	intOtel "github.com/OCAP2/multicopter/internal/otel"
	"github.com/OCAP2/multicopter/internal/run"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	AppName string = "multicopter_sim"
)

// global variables
var (
	// ConfigDir is where the JSON config file is looked up
	ConfigDir string = "."

	LogFilePath string
	LogFile     *os.File

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger is used by the database, storage and influx layers
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// gelfCloser closes the Graylog sink when one is configured
	gelfCloser io.Closer

	SessionStartTime time.Time = time.Now()

	// RunContext tracks the run being recorded, for log context
	RunContext *run.Context = run.NewContext()
)

func setup() {
	var err error

	SlogManager = logging.NewSlogManager(os.Stdout)
	SlogManager.Setup("info")
	Logger = SlogManager.Logger()

	if dir := os.Getenv("MULTICOPTER_SIM_CONFIG_DIR"); dir != "" {
		ConfigDir = dir
	}
	if err = config.Load(ConfigDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "path", viper.ConfigFileUsed())
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	}

	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	ZLogger = newZeroLogger(viper.GetString("logLevel"), LogFile)

	// metrics and logs are dumped next to the session log
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled && LogFile != nil {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			Version:      CurrentVersion,
			Attributes:   map[string]string{"sim.vehicles": strconv.Itoa(viper.GetInt("sim.vehicles"))},
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    LogFile,
			MetricWriter: LogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
		}
	}

	opts := []logging.Option{
		logging.WithServiceName(otelCfg.ServiceName),
		logging.WithContext(logging.SimContext(RunContext.Name, RunContext.Tick, RunContext.Vehicles)),
	}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGelfWriter(gl.Address, AppName)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			gelfCloser = w
			opts = append(opts, logging.WithGelf(w))
		}
	}

	// file and OTel sinks replace the bootstrap console logger
	if OTelProvider != nil {
		opts = append(opts, logging.WithOTel(OTelProvider.LoggerProvider()))
	}
	if LogFile != nil {
		opts = append(opts, logging.WithFile(LogFile))
	}
	SlogManager.Setup(viper.GetString("logLevel"), opts...)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	Logger.Info("Logging to file", "path", LogFilePath)
}

// newZeroLogger writes console output to stdout and plain output to the
// session log file.
func newZeroLogger(level string, file io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339},
	}
	if file != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: file, TimeFormat: time.RFC3339, NoColor: true})
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().Timestamp().Str("app", AppName).
		Logger()
}

func shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shut down OTel: %v\n", err)
		}
	}
	if gelfCloser != nil {
		gelfCloser.Close()
	}
	if LogFile != nil {
		LogFile.Close()
	}
}

func usage() {
	fmt.Printf(`Usage: %s <command> [args]

Commands:
  run [--script file.yaml]   run the configured simulation
  hover                      check the hover force balance of the configured vehicle
  version                    print version information
`, AppName)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		return
	}

	switch strings.ToLower(args[0]) {
	case "version":
		fmt.Printf("%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
		return
	case "run":
		setup()
		defer shutdown()

		scriptPath, err := parseRunArgs(args[1:])
		if err != nil {
			usage()
			panic(err)
		}
		if err := runSim(scriptPath); err != nil {
			Logger.Error("Run failed", "error", err)
			shutdown()
			os.Exit(1)
		}
	case "hover":
		setup()
		defer shutdown()

		if err := printHover(os.Stdout); err != nil {
			panic(err)
		}
	default:
		usage()
	}
}

// parseRunArgs accepts "--script path" or "--script=path".
func parseRunArgs(args []string) (scriptPath string, err error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--script" || arg == "-script":
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s needs a file", arg)
			}
			scriptPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--script="):
			scriptPath = strings.TrimPrefix(arg, "--script=")
		default:
			return "", fmt.Errorf("unknown argument %q", arg)
		}
	}
	return scriptPath, nil
}
