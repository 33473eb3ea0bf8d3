package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// RunMode selects how the Controller hands out execution permission.
type RunMode int32

const (
	// Automatic grants unlimited permission; WaitIfNeeded never blocks.
	Automatic RunMode = iota + 1
	// Development grants permission one Step at a time.
	Development
)

// String returns the lowercase name of the mode.
func (m RunMode) String() string {
	switch m {
	case Automatic:
		return "automatic"
	case Development:
		return "development"
	default:
		return fmt.Sprintf("runmode(%d)", int32(m))
	}
}

// ParseRunMode parses "automatic" or "development" (case-insensitive).
// "auto", "dev" and "manual" are accepted as aliases.
func ParseRunMode(s string) (RunMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "automatic", "auto":
		return Automatic, nil
	case "development", "dev", "manual":
		return Development, nil
	default:
		return 0, fmt.Errorf("unknown run mode %q (want automatic or development)", s)
	}
}

// StepOutcome reports what a Step call did.
type StepOutcome int

const (
	// StepQueued means one token was queued; exactly one more node may run.
	StepQueued StepOutcome = iota + 1
	// StepPromotedToRun means the controller was in Automatic mode, so the
	// step acted as Run.
	StepPromotedToRun
	// StepIgnored means execution was already continuous; nothing changed.
	StepIgnored
)

func (o StepOutcome) String() string {
	switch o {
	case StepQueued:
		return "queued"
	case StepPromotedToRun:
		return "promoted_to_run"
	case StepIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("step_outcome(%d)", int(o))
	}
}

// Controller is the run-mode/token state machine shared by the host and the
// scheduler goroutine.
//
// State is a RunMode, a continuous flag and a FIFO queue of step tokens.
// All of it is guarded by one mutex paired with a condition variable, so a
// producer (Run, Step, SetRunMode) can never lose a wakeup against the
// consumer (WaitIfNeeded). The mode is mirrored in an atomic so the
// Automatic fast path never touches the lock.
//
// Every method is valid in every state; there are no invalid transitions.
type Controller struct {
	mode atomic.Int32

	mu         sync.Mutex
	cond       *sync.Cond
	continuous bool
	tokens     []int64
	seq        *Clock

	logger *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the logger for token traffic (Debug level).
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithInitialMode sets the mode the controller starts in. Default:
// Automatic.
func WithInitialMode(m RunMode) ControllerOption {
	return func(c *Controller) {
		c.mode.Store(int32(m))
		c.continuous = m == Automatic
	}
}

// NewController creates a Controller in Automatic mode.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		continuous: true,
		seq:        NewClock(),
		logger:     slog.Default(),
	}
	c.cond = sync.NewCond(&c.mu)
	c.mode.Store(int32(Automatic))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunMode returns the current mode.
func (c *Controller) RunMode() RunMode {
	return RunMode(c.mode.Load())
}

// SetRunMode switches modes. Automatic makes execution continuous and wakes
// waiters. Development stops continuous execution but keeps queued tokens:
// a node already granted permission may still run.
func (c *Controller) SetRunMode(m RunMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode.Store(int32(m))
	c.continuous = m == Automatic
	c.cond.Broadcast()
	c.logger.Debug("run mode set", "mode", m.String(), "pending", len(c.tokens))
}

// Run makes execution continuous without changing the mode.
func (c *Controller) Run() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.continuous = true
	c.cond.Broadcast()
	c.logger.Debug("run", "mode", c.RunMode().String())
}

// Pause stops continuous execution and discards every queued token. A step
// that was requested but not yet consumed is forgotten.
//
// In Automatic mode WaitIfNeeded takes the fast path, so Pause has no
// effect until the mode is switched to Development.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := len(c.tokens)
	c.continuous = false
	c.tokens = nil
	c.logger.Debug("pause", "dropped", dropped)
}

// Step requests permission for exactly one more node.
//
// In Automatic mode it acts as Run and returns StepPromotedToRun. If
// execution is already continuous it does nothing and returns StepIgnored.
// Otherwise it queues one token and returns StepQueued.
func (c *Controller) Step() StepOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.RunMode() == Automatic {
		c.continuous = true
		c.cond.Broadcast()
		c.logger.Debug("step promoted to run")
		return StepPromotedToRun
	}
	if c.continuous {
		return StepIgnored
	}

	tok := c.seq.Next()
	c.tokens = append(c.tokens, tok)
	c.cond.Broadcast()
	c.logger.Debug("step queued", "seq", tok, "pending", len(c.tokens))
	return StepQueued
}

// WaitIfNeeded blocks until the caller may execute one node.
//
// In Automatic mode it returns immediately without locking. Otherwise it
// waits until execution is continuous (returns without consuming a token)
// or a token is queued (consumes exactly one). If ctx is done first it
// returns ctx.Err() and consumes nothing.
func (c *Controller) WaitIfNeeded(ctx context.Context) error {
	if c.RunMode() == Automatic {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.continuous {
			return nil
		}
		if len(c.tokens) > 0 {
			tok := c.tokens[0]
			c.tokens = c.tokens[1:]
			c.logger.Debug("token consumed", "seq", tok, "pending", len(c.tokens))
			return nil
		}
		c.cond.Wait()
	}
}

// Continuous reports whether execution currently runs without tokens.
func (c *Controller) Continuous() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.continuous
}

// PendingTokens returns the number of queued, unconsumed step tokens.
func (c *Controller) PendingTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

// LastToken returns the sequence number of the most recently issued token,
// or zero if none was issued.
func (c *Controller) LastToken() int64 {
	return c.seq.Current()
}
