// Package monitor keeps a human readable status file up to date while a run
// is in progress and records pipeline performance snapshots.
package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/OCAP2/multicopter/internal/run"
	"github.com/OCAP2/multicopter/internal/worker"
	"github.com/OCAP2/multicopter/pkg/core"
)

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = time.Second

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Run        *run.Context
	Worker     *worker.Manager
	TickFaults func() uint64
	StatusPath string
	Interval   time.Duration
	Logger     *slog.Logger
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.TickFaults == nil {
		deps.TickFaults = func() uint64 { return 0 }
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status returns the current status lines and the matching performance
// snapshot.
func (s *Service) Status() (lines []string, perf core.Performance) {
	r := s.deps.Run.GetRun()
	perf = s.deps.Worker.Snapshot(s.deps.Run.Tick(), s.deps.TickFaults())

	lines = []string{
		fmt.Sprintf("run: %s (%d vehicles)", r.Name, r.Vehicles),
		fmt.Sprintf("tick: %s", humanize.Comma(int64(perf.Tick))),
		fmt.Sprintf("samples written: %s", humanize.Comma(int64(s.deps.Worker.Written()))),
		fmt.Sprintf("sample queue: %s", humanize.Comma(int64(perf.SampleQueue))),
		fmt.Sprintf("fault queue: %s", humanize.Comma(int64(perf.FaultQueue))),
		fmt.Sprintf("dropped samples: %s", humanize.Comma(int64(perf.DroppedSamples))),
		fmt.Sprintf("tick faults: %s", humanize.Comma(int64(perf.TickFaults))),
		fmt.Sprintf("last write: %s", perf.LastWrite),
	}
	if !r.StartTime.IsZero() {
		lines = append(lines, fmt.Sprintf("started: %s", humanize.Time(r.StartTime)))
	}
	return lines, perf
}

// WriteStatus replaces the status file with the current status and records
// the performance snapshot.
func (s *Service) WriteStatus() error {
	lines, perf := s.Status()

	if s.deps.StatusPath != "" {
		data := strings.Join(lines, "\n") + "\n"
		if err := os.WriteFile(s.deps.StatusPath, []byte(data), 0644); err != nil {
			return fmt.Errorf("error writing status file: %w", err)
		}
	}
	if err := s.deps.Worker.RecordPerformance(perf); err != nil {
		return fmt.Errorf("error recording performance: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopChan, s.done)
}

func (s *Service) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	logger := s.deps.Logger
	logger.Debug("Starting status monitor goroutine", "path", s.deps.StatusPath)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.deps.Run.GetRun().ID == 0 {
				continue
			}
			if err := s.WriteStatus(); err != nil {
				logger.Error("Error updating status", "error", err)
			}
		}
	}
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
