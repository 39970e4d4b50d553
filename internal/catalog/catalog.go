// Package catalog keeps the programs currently known to the scheduler and
// decides which frame is shown next.
//
// Programs rotate in the order they were first registered. Replacing a program
// keeps its place but restarts its cursor. Entries that have not been refreshed
// within the retirement age are removed when the rotation reaches them; there is
// no background sweep.
package catalog

import (
	"errors"
	"sync"
	"time"

	"github.com/genricoloni/ledmatrix/internal/config"
	"github.com/genricoloni/ledmatrix/internal/domain"
	"go.uber.org/zap"
)

var (
	// ErrEmptyCatalog means there is nothing to schedule
	ErrEmptyCatalog = errors.New("nothing to schedule")
	// ErrProgramNotFound is returned when removing an unknown program
	ErrProgramNotFound = errors.New("program not found")
)

const defaultRetirementAge = 60 * time.Second

// Mode selects how the rotation moves between programs
type Mode int

const (
	// ByProgram plays a program through before moving to the next one
	ByProgram Mode = iota
	// ByFrame takes one frame from each program in turn
	ByFrame
)

// ProgramInfo is a read-only view of a catalog entry
type ProgramInfo struct {
	ID          string
	Frames      int
	Duration    time.Duration
	Priority    domain.Priority
	LastUpdated time.Time
	Age         time.Duration
}

type entry struct {
	program     *domain.Program
	lastUpdated time.Time
}

// Catalog holds registered programs. All methods are safe for concurrent use,
// but the scheduler is expected to be the only writer.
type Catalog struct {
	mu            sync.Mutex
	clock         domain.Clock
	retirementAge time.Duration
	mode          Mode
	logger        *zap.Logger
	onRetire      func(id string)

	order   []string
	entries map[string]*entry
	pos     int
}

// Option configures a Catalog
type Option func(*Catalog)

// WithClock replaces the wall clock used for retirement
func WithClock(clock domain.Clock) Option {
	return func(c *Catalog) { c.clock = clock }
}

// WithRetirementAge sets how long a program may go without refresh
func WithRetirementAge(age time.Duration) Option {
	return func(c *Catalog) { c.retirementAge = age }
}

// WithMode sets the rotation mode
func WithMode(mode Mode) Option {
	return func(c *Catalog) { c.mode = mode }
}

// WithLogger sets the logger used for retirement messages
func WithLogger(logger *zap.Logger) Option {
	return func(c *Catalog) { c.logger = logger }
}

// New creates an empty catalog
func New(opts ...Option) *Catalog {
	c := &Catalog{
		clock:         domain.NewSystemClock(),
		retirementAge: defaultRetirementAge,
		mode:          ByProgram,
		logger:        zap.NewNop(),
		entries:       make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewCatalog builds the catalog from the application configuration
func NewCatalog(cfg *config.AppConfig, clock domain.Clock, logger *zap.Logger) *Catalog {
	mode := ByProgram
	if cfg.Scheduler.Rotation == config.RotateByFrame {
		mode = ByFrame
	}
	return New(
		WithClock(clock),
		WithRetirementAge(cfg.RetirementAge()),
		WithMode(mode),
		WithLogger(logger),
	)
}

// OnRetire registers a callback invoked (with the lock held) for every retired program
func (c *Catalog) OnRetire(fn func(id string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRetire = fn
}

// Add inserts or replaces a program and refreshes its age.
// A replacement keeps the rotation position of the old entry.
func (c *Catalog) Add(id string, p *domain.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.ID = id
	p.Reset()
	now := c.clock.Now()

	if e, ok := c.entries[id]; ok {
		e.program = p
		e.lastUpdated = now
		return
	}
	c.entries[id] = &entry{program: p, lastUpdated: now}
	c.order = append(c.order, id)
}

// Remove deletes a program
func (c *Catalog) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.order {
		if existing == id {
			c.removeAt(i)
			return nil
		}
	}
	return ErrProgramNotFound
}

// IsEmpty reports whether no programs are registered
func (c *Catalog) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order) == 0
}

// HasContent reports whether at least one program has a frame
func (c *Catalog) HasContent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.program.Len() > 0 {
			return true
		}
	}
	return false
}

// Has reports whether id is registered
func (c *Catalog) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// Len returns the number of registered programs
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// NextFrame returns the next frame of the rotation. Alert programs are
// skipped here; see NextAlertFrame.
func (c *Catalog) NextFrame() (domain.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Every program yields at most one end-of-program before producing a
	// frame, so two passes are enough to find one if any exists.
	for guard := 2*len(c.order) + 1; guard > 0; guard-- {
		if len(c.order) == 0 {
			return domain.Frame{}, ErrEmptyCatalog
		}
		if c.pos >= len(c.order) {
			c.pos = 0
		}

		e := c.entries[c.order[c.pos]]
		if c.retired(e) {
			c.retireAt(c.pos)
			continue
		}
		if e.program.IsAlert() {
			c.pos++
			continue
		}

		f, err := e.program.Next()
		if c.mode == ByFrame {
			if errors.Is(err, domain.ErrEndOfProgram) {
				f, err = e.program.Next()
			}
			c.pos++
			if err == nil {
				return f, nil
			}
			continue
		}

		if err == nil {
			return f, nil
		}
		// End of program or no frames: move on to the next one
		c.pos++
	}
	return domain.Frame{}, ErrEmptyCatalog
}

// NextAlertFrame returns the next frame of the first live alert program.
// An alert is removed once its last frame has been handed out.
func (c *Catalog) NextAlertFrame() (domain.Frame, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < len(c.order); {
		id := c.order[i]
		e := c.entries[id]
		if !e.program.IsAlert() {
			i++
			continue
		}
		if c.retired(e) {
			c.retireAt(i)
			continue
		}

		f, err := e.program.Next()
		if err != nil {
			c.removeAt(i)
			continue
		}
		if e.program.AtEnd() {
			c.removeAt(i)
		}
		return f, id, true
	}
	return domain.Frame{}, "", false
}

// Snapshot lists the registered programs in rotation order
func (c *Catalog) Snapshot() []ProgramInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	out := make([]ProgramInfo, 0, len(c.order))
	for _, id := range c.order {
		e := c.entries[id]
		out = append(out, ProgramInfo{
			ID:          id,
			Frames:      e.program.Len(),
			Duration:    e.program.Duration(),
			Priority:    e.program.Priority,
			LastUpdated: e.lastUpdated,
			Age:         now.Sub(e.lastUpdated),
		})
	}
	return out
}

func (c *Catalog) retired(e *entry) bool {
	age := c.retirementAge
	if e.program.ValidTime > 0 {
		age = time.Duration(e.program.ValidTime) * time.Second
	}
	return e.lastUpdated.Before(c.clock.Now().Add(-age))
}

func (c *Catalog) retireAt(i int) {
	id := c.order[i]
	c.logger.Info("Retiring stale program",
		zap.String("program", id),
		zap.Time("lastUpdated", c.entries[id].lastUpdated))
	c.removeAt(i)
	if c.onRetire != nil {
		c.onRetire(id)
	}
}

// removeAt deletes order[i] and keeps pos pointing at the same next program
func (c *Catalog) removeAt(i int) {
	id := c.order[i]
	delete(c.entries, id)
	c.order = append(c.order[:i], c.order[i+1:]...)
	if i < c.pos {
		c.pos--
	}
	if c.pos >= len(c.order) {
		c.pos = 0
	}
}
