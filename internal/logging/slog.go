package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const defaultScope = "multicopter-sim"

// Option adds a sink or decoration to Setup.
type Option func(*sinks)

type sinks struct {
	file    io.Writer
	otel    *sdklog.LoggerProvider
	scope   string
	gelf    io.Writer
	context ContextProvider
}

// WithFile sends text records to w instead of the console.
func WithFile(w io.Writer) Option {
	return func(s *sinks) { s.file = w }
}

// WithOTel bridges records into the given log provider. A nil provider is
// ignored.
func WithOTel(p *sdklog.LoggerProvider) Option {
	return func(s *sinks) { s.otel = p }
}

// WithServiceName sets the instrumentation scope of the OTel bridge.
func WithServiceName(name string) Option {
	return func(s *sinks) {
		if name != "" {
			s.scope = name
		}
	}
}

// WithGelf adds a JSON handler writing to a Graylog GELF writer.
func WithGelf(w io.Writer) Option {
	return func(s *sinks) { s.gelf = w }
}

// WithContext stamps every record with attributes read at log time, such as
// the active run and tick.
func WithContext(p ContextProvider) Option {
	return func(s *sinks) { s.context = p }
}

// SlogManager owns the process slog.Logger. Its level can be changed after
// Setup without rebuilding the handlers.
type SlogManager struct {
	console io.Writer
	level   slog.LevelVar
	logger  *slog.Logger
	otel    *sdklog.LoggerProvider
}

// NewSlogManager returns a manager that logs to console until a file sink is
// configured. A nil console means stdout.
func NewSlogManager(console io.Writer) *SlogManager {
	if console == nil {
		console = os.Stdout
	}
	return &SlogManager{console: console}
}

// ParseLevel maps a config level name to a slog level. Unknown names are Info.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE", "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup rebuilds the logger. Text records go to the file sink when one is set
// and to the console otherwise.
func (m *SlogManager) Setup(level string, opts ...Option) {
	s := sinks{scope: defaultScope}
	for _, opt := range opts {
		opt(&s)
	}
	m.level.Set(ParseLevel(level))
	m.otel = s.otel

	textOut := m.console
	if s.file != nil {
		textOut = s.file
	}
	hopts := &slog.HandlerOptions{Level: &m.level, ReplaceAttr: utcTime}

	handlers := []slog.Handler{slog.NewTextHandler(textOut, hopts)}
	if s.otel != nil {
		handlers = append(handlers, otelslog.NewHandler(s.scope, otelslog.WithLoggerProvider(s.otel)))
	}
	if s.gelf != nil {
		handlers = append(handlers, slog.NewJSONHandler(s.gelf, hopts))
	}

	var h slog.Handler = NewMultiHandler(handlers...)
	if s.context != nil {
		h = NewContextHandler(h, s.context)
	}
	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", m.level.Level().String())
}

// SetLevel changes the minimum level of the text and GELF sinks.
func (m *SlogManager) SetLevel(name string) {
	m.level.Set(ParseLevel(name))
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes buffered OTel records out.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.otel == nil {
		return nil
	}
	return m.otel.ForceFlush(ctx)
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}
