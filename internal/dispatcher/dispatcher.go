// Package dispatcher routes operator and script commands to handlers.
//
// Commands are colon-delimited names such as ":KEY:DOWN:" carrying string
// arguments. A handler runs inline by default; Buffered moves it onto its own
// goroutine behind a queue so slow sinks never stall the tick loop.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrUnknownCommand is returned by Dispatch when no handler is registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a non-blocking buffered handler drops an event.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned for events dispatched after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrBadArgs is returned when an event has the wrong number of arguments.
	ErrBadArgs = errors.New("wrong argument count")
)

// Event is a command such as ":KEY:DOWN:" with its string arguments. Tick is
// the simulation tick current when the event was dispatched, when the
// dispatcher has a tick source.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
	Tick      uint64
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*handlerConfig)

type handlerConfig struct {
	bufferSize int
	blocking   bool
	logged     bool
	minArgs    int
	maxArgs    int // -1 means unbounded
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *handlerConfig) { c.bufferSize = size }
}

// Blocking makes a buffered handler block when the queue is full instead of
// dropping.
func Blocking() Option {
	return func(c *handlerConfig) { c.blocking = true }
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *handlerConfig) { c.logged = true }
}

// Args rejects events with fewer than min or more than max arguments before
// the handler runs. A negative max leaves the upper end open.
func Args(min, max int) Option {
	return func(c *handlerConfig) {
		c.minArgs = min
		c.maxArgs = max
	}
}

// TickSource reports the current simulation tick.
type TickSource func() uint64

// Setting configures a Dispatcher.
type Setting func(*Dispatcher)

// WithTickSource stamps every dispatched event with the current tick.
func WithTickSource(src TickSource) Setting {
	return func(d *Dispatcher) { d.tick = src }
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger Logger
	tick   TickSource

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	buffers  map[string]chan Event
	closed   bool
	drain    sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter, which is a
// no-op until a provider is installed.
func New(logger Logger, settings ...Setting) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
	}
	for _, s := range settings {
		s(d)
	}
	if err := d.instrument(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) instrument() error {
	m := meter()
	var err error

	if d.queueSize, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a buffered handler queue")); err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for cmd, buf := range d.buffers {
			o.ObserveInt64(d.queueSize, int64(len(buf)), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, d.queueSize)
	if err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}

	if d.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Events handled by a buffered handler")); err != nil {
		return fmt.Errorf("creating processed counter: %w", err)
	}
	if d.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events dropped because a handler queue was full")); err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}
	if d.failed, err = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Events whose handler returned an error")); err != nil {
		return fmt.Errorf("creating failed counter: %w", err)
	}
	return nil
}

// Register adds a handler for the given command. Registering a command twice
// replaces the handler.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := handlerConfig{maxArgs: -1}
	for _, opt := range opts {
		opt(&cfg)
	}

	handler := d.withFailureCount(command, h)
	if cfg.bufferSize > 0 {
		handler = d.withBuffer(command, cfg.bufferSize, cfg.blocking, handler)
	}
	if cfg.logged {
		handler = d.withLogging(command, handler)
	}
	if cfg.minArgs > 0 || cfg.maxArgs >= 0 {
		handler = withArity(command, cfg.minArgs, cfg.maxArgs, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler. A zero Timestamp is
// set to the current time and Tick is filled from the tick source.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	closed := d.closed
	d.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if d.tick != nil && e.Tick == 0 {
		e.Tick = d.tick()
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Commands returns the registered commands in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cmds := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		cmds = append(cmds, cmd)
	}
	sort.Strings(cmds)
	return cmds
}

// Close stops accepting events and waits until every buffered handler has
// drained its queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()

	d.drain.Wait()
}

func withArity(command string, min, max int, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		n := len(e.Args)
		if n < min || (max >= 0 && n > max) {
			return nil, fmt.Errorf("%w: %s takes %s args, got %d", ErrBadArgs, command, arity(min, max), n)
		}
		return h(e)
	}
}

func arity(min, max int) string {
	switch {
	case max < 0:
		return fmt.Sprintf("at least %d", min)
	case min == max:
		return fmt.Sprintf("%d", min)
	default:
		return fmt.Sprintf("%d-%d", min, max)
	}
}

func (d *Dispatcher) withFailureCount(command string, h HandlerFunc) HandlerFunc {
	cmdAttr := metric.WithAttributes(attribute.String("command", command))
	return func(e Event) (any, error) {
		result, err := h(e)
		if err != nil {
			d.failed.Add(context.Background(), 1, cmdAttr)
		}
		return result, err
	}
}

func (d *Dispatcher) withBuffer(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	cmdAttr := metric.WithAttributes(attribute.String("command", command))

	d.drain.Add(1)
	go func() {
		defer d.drain.Done()
		for e := range buffer {
			if _, err := h(e); err != nil {
				d.logger.Error("buffered event failed", "command", command, "tick", e.Tick, "error", err)
			}
			d.processed.Add(context.Background(), 1, cmdAttr)
		}
	}()

	// the read lock keeps Close from closing buffer mid-send
	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrClosed
		}

		if blocking {
			buffer <- e
			return "queued", nil
		}
		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, cmdAttr)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", e.Args, "tick", e.Tick)

		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "tick", e.Tick, "took", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "took", time.Since(start))
		}
		return result, err
	}
}
