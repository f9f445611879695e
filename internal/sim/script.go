package sim

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/OCAP2/multicopter/internal/dispatcher"
	"github.com/OCAP2/multicopter/pkg/core"
)

// Step is one scripted operator action. A step either presses or releases a
// key on a vehicle, or sends a raw dispatcher command with its args.
type Step struct {
	At      time.Duration `yaml:"at"`
	Vehicle uint16        `yaml:"vehicle"`
	Key     *core.Key     `yaml:"key,omitempty"`
	Down    bool          `yaml:"down"`
	Command string        `yaml:"command,omitempty"`
	Args    []string      `yaml:"args,omitempty"`
}

// Script is an operator maneuver played back against the world.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// ParseScript decodes and validates a YAML script. Steps are sorted by time,
// keeping the file order for steps at the same time.
func ParseScript(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding script: %w", err)
	}

	for i, step := range s.Steps {
		switch {
		case step.At < 0:
			return nil, fmt.Errorf("step %d: negative time %s", i, step.At)
		case step.Key == nil && step.Command == "":
			return nil, fmt.Errorf("step %d: needs a key or a command", i)
		case step.Key != nil && step.Command != "":
			return nil, fmt.Errorf("step %d: has both a key and a command", i)
		}
	}

	sort.SliceStable(s.Steps, func(i, j int) bool { return s.Steps[i].At < s.Steps[j].At })
	return &s, nil
}

// LoadScript reads a YAML script from disk.
func LoadScript(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening script: %w", err)
	}
	defer f.Close()
	return ParseScript(f)
}

// Duration is the time of the last step.
func (s *Script) Duration() time.Duration {
	if len(s.Steps) == 0 {
		return 0
	}
	return s.Steps[len(s.Steps)-1].At
}

// Event converts the step to the dispatcher event it sends.
func (st Step) Event() dispatcher.Event {
	if st.Key == nil {
		return dispatcher.Event{Command: st.Command, Args: st.Args}
	}
	cmd := CommandKeyUp
	if st.Down {
		cmd = CommandKeyDown
	}
	return dispatcher.Event{
		Command: cmd,
		Args:    []string{strconv.Itoa(int(st.Vehicle)), st.Key.String()},
	}
}

// Player feeds due script steps to a dispatcher.
type Player struct {
	script *Script
	d      *dispatcher.Dispatcher
	next   int
}

// NewPlayer creates a player at the start of script.
func NewPlayer(script *Script, d *dispatcher.Dispatcher) *Player {
	return &Player{script: script, d: d}
}

// Update dispatches every step due at or before t and returns how many were
// sent. Failed steps are reported but do not stop playback.
func (p *Player) Update(t time.Duration) (int, error) {
	var errs []error
	sent := 0
	for p.next < len(p.script.Steps) && p.script.Steps[p.next].At <= t {
		step := p.script.Steps[p.next]
		p.next++
		sent++
		if _, err := p.d.Dispatch(step.Event()); err != nil {
			errs = append(errs, fmt.Errorf("step at %s: %w", step.At, err))
		}
	}
	return sent, errors.Join(errs...)
}

// Done reports whether every step has been sent.
func (p *Player) Done() bool {
	return p.next >= len(p.script.Steps)
}
