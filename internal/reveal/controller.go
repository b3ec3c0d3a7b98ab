package reveal

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mnhsh/digital-capsule/internal/capsule"
	"github.com/mnhsh/digital-capsule/internal/render"
	"github.com/mnhsh/digital-capsule/internal/source"
	"go.uber.org/zap"
)

const (
	TickInterval    = time.Second
	PendingInterval = 2 * time.Second
)

var (
	ErrNotConfirmed = errors.New("force open was not confirmed")
	ErrStopped      = errors.New("controller is not running")
)

// Status is a point-in-time view of the capsule for concurrent readers.
type Status struct {
	State     string            `json:"state"`
	Forced    bool              `json:"forced"`
	Target    time.Time         `json:"target"`
	Countdown capsule.Countdown `json:"countdown"`
	Pending   int               `json:"pending"`
}

// Controller runs the reveal clock and the entry renderer on one goroutine.
// Source events, ticks and force-open requests are handled one at a time,
// so the renderer needs no locking.
type Controller struct {
	clock    *capsule.Clock
	renderer *render.Renderer
	surface  render.Surface
	source   source.Source
	logger   *zap.Logger

	now          func() time.Time
	tickEvery    time.Duration
	pendingEvery time.Duration

	force     chan chan forceResult
	done      chan struct{}
	countdown capsule.Countdown
	status    atomic.Pointer[Status]
}

type forceResult struct {
	changed bool
}

type Option func(*Controller)

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

func WithIntervals(tick, pending time.Duration) Option {
	return func(c *Controller) {
		c.tickEvery = tick
		c.pendingEvery = pending
	}
}

func NewController(clock *capsule.Clock, renderer *render.Renderer, surface render.Surface,
	src source.Source, logger *zap.Logger, opts ...Option,
) *Controller {
	c := &Controller{
		clock:        clock,
		renderer:     renderer,
		surface:      surface,
		source:       src,
		logger:       logger.Named("reveal"),
		now:          time.Now,
		tickEvery:    TickInterval,
		pendingEvery: PendingInterval,
		force:        make(chan chan forceResult),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.publish()
	return c
}

// Run blocks until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	// a target already in the past unlocks before any tick fires
	ticking := !c.tick(ctx)

	events := c.subscribe(ctx)

	ticker := time.NewTicker(c.tickEvery)
	defer ticker.Stop()
	tickC := ticker.C
	if !ticking {
		ticker.Stop()
		tickC = nil
	}

	pending := time.NewTicker(c.pendingEvery)
	defer pending.Stop()

	c.publish()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tickC:
			if c.tick(ctx) {
				ticker.Stop()
				tickC = nil
				c.logger.Debug("Countdown finished")
			}
		case <-pending.C:
			c.renderer.FlushPending(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				c.logger.Debug("Entry subscription ended")
				break
			}
			c.handle(ctx, ev)
			if ev.Kind == source.EventError {
				events = nil
			}
		case reply := <-c.force:
			changed := c.forceOpen(ctx)
			c.publish()
			reply <- forceResult{changed: changed}
		}
		c.publish()
	}
}

// ForceOpen is the administrative override. It needs an explicit
// confirmation and reports whether the capsule was still locked.
func (c *Controller) ForceOpen(ctx context.Context, confirmed bool) (bool, error) {
	if !confirmed {
		return false, ErrNotConfirmed
	}
	reply := make(chan forceResult, 1)
	select {
	case c.force <- reply:
	case <-c.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.changed, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *Controller) Status() Status {
	return *c.status.Load()
}

// tick updates the countdown and reports whether the target has passed.
func (c *Controller) tick(ctx context.Context) bool {
	now := c.now()
	countdown, changed := c.clock.Tick(now)
	c.countdown = countdown
	c.surface.SetCountdown(countdown)
	if changed {
		c.logger.Info("Capsule unlocked", zap.Time("target", c.clock.Target()))
		c.renderer.Unlock(ctx)
	}
	return !c.clock.Target().After(now)
}

func (c *Controller) forceOpen(ctx context.Context) bool {
	if !c.clock.ForceOpen() {
		return false
	}
	c.logger.Warn("Capsule forced open",
		zap.Time("target", c.clock.Target()),
		zap.Duration("remaining", c.clock.Target().Sub(c.now())))
	c.renderer.Unlock(ctx)
	return true
}

func (c *Controller) subscribe(ctx context.Context) <-chan source.Event {
	events, err := c.source.Subscribe(ctx)
	if err != nil {
		if errors.Is(err, source.ErrConfigurationMissing) {
			c.logger.Error("Entry store is not configured; countdown only", zap.Error(err))
		}
		c.renderer.Fail(err)
		return nil
	}
	return events
}

func (c *Controller) handle(ctx context.Context, ev source.Event) {
	switch ev.Kind {
	case source.EventValue:
		c.logger.Debug("Received entries", zap.Int("count", len(ev.Entries)))
		c.renderer.Load(ctx, ev.Entries)
	case source.EventChildAdded:
		c.logger.Debug("Received entry", zap.String("id", ev.ID))
		c.renderer.Add(ctx, ev.ID, ev.Entry)
	case source.EventError:
		c.renderer.Fail(ev.Err)
	}
}

func (c *Controller) publish() {
	c.status.Store(&Status{
		State:     c.clock.State().String(),
		Forced:    c.clock.Forced(),
		Target:    c.clock.Target(),
		Countdown: c.countdown,
		Pending:   c.renderer.Pending(),
	})
}
