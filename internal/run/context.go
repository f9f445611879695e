package run

import (
	"sync"
	"sync/atomic"

	"github.com/OCAP2/multicopter/pkg/core"
)

// Context holds the current run and the tick the world has reached
type Context struct {
	mu   sync.RWMutex
	run  *core.Run
	tick atomic.Uint64
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{
		run: &core.Run{Name: "No run loaded"},
	}
}

// GetRun returns a copy of the current run
func (c *Context) GetRun() core.Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.run
}

// SetRun sets the current run and resets the tick
func (c *Context) SetRun(r *core.Run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run = r
	c.tick.Store(0)
}

// Update applies fn to the current run under the write lock
func (c *Context) Update(fn func(r *core.Run)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.run)
}

// Name returns the current run name
func (c *Context) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run.Name
}

// Vehicles returns the vehicle count of the current run
func (c *Context) Vehicles() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run.Vehicles
}

// SetTick records the last completed tick
func (c *Context) SetTick(tick uint64) {
	c.tick.Store(tick)
}

// Tick returns the last completed tick
func (c *Context) Tick() uint64 {
	return c.tick.Load()
}
