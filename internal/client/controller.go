package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/target/session-bridge/internal/domain/auth"
)

// Options configures a Controller.
type Options struct {
	Transport Transport     // required
	Tokens    IDTokenSource // required

	Clock           Clock         // Optional, defaults to SystemClock
	RenewalInterval time.Duration // Optional, defaults to domainauth.RenewalInterval
	CallTimeout     time.Duration // Optional, defaults to domainauth.UpstreamTimeout
	Logger          *slog.Logger
}

// Controller drives Transition: it serializes events under a mutex, runs the
// resulting commands asynchronously and feeds their results back as events.
type Controller struct {
	transport Transport
	tokens    IDTokenSource
	clock     Clock
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
	seq    uint64 // bumped on every state change

	notifyMu  sync.Mutex
	delivered uint64 // seq of the last snapshot handed to subscribers

	inflight sync.WaitGroup
}

// NewController validates opts and returns a Controller in the initial state.
func NewController(opts Options) (*Controller, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("ID token source is required")
	}
	c := &Controller{
		transport: opts.Transport,
		tokens:    opts.Tokens,
		clock:     opts.Clock,
		interval:  opts.RenewalInterval,
		timeout:   opts.CallTimeout,
		logger:    opts.Logger,
		state:     Initial(),
		subs:      make(map[int]func(State)),
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.interval <= 0 {
		c.interval = domainauth.RenewalInterval
	}
	if c.timeout <= 0 {
		c.timeout = domainauth.UpstreamTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "session_controller")
	return c, nil
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn to be called after state changes, in order. A snapshot older
// than one already delivered is skipped, so fn always ends on the latest state.
// fn must not call HandleAuthStateChanged or Renew. The returned function removes
// the subscription.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// HandleAuthStateChanged delivers an identity provider notification. A nil principal
// means the user signed out.
func (c *Controller) HandleAuthStateChanged(ctx context.Context, p *domainauth.Principal) {
	c.dispatch(ctx, AuthStateChanged{Principal: p})
}

// Renew requests a renewal. It is a no-op unless the controller is idle with a session.
func (c *Controller) Renew(ctx context.Context) {
	c.dispatch(ctx, RenewalDue{})
}

// Run renews the session every RenewalInterval until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	t := c.clock.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			c.Renew(ctx)
		}
	}
}

// Wait blocks until every in-flight call and its follow-ups have finished.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func (c *Controller) dispatch(ctx context.Context, ev Event) {
	c.mu.Lock()
	prev := c.state
	next, cmds := Transition(prev, ev)
	c.state = next
	var (
		subs []func(State)
		seq  uint64
	)
	if next != prev {
		c.seq++
		seq = c.seq
		subs = make([]func(State), 0, len(c.subs))
		for _, fn := range c.subs {
			subs = append(subs, fn)
		}
	}
	// Register commands before releasing the lock so Wait never misses one.
	c.inflight.Add(len(cmds))
	c.mu.Unlock()

	if next.Phase != prev.Phase {
		c.logger.DebugContext(ctx, "session controller transition",
			"from", prev.Phase.String(), "to", next.Phase.String(), "epoch", next.Epoch)
	}
	c.notify(seq, next, subs)

	// Calls outlive the caller's context; each gets its own timeout.
	base := context.WithoutCancel(ctx)
	for _, cmd := range cmds {
		go c.execute(base, cmd)
	}
}

func (c *Controller) notify(seq uint64, s State, subs []func(State)) {
	if len(subs) == 0 {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.delivered {
		return
	}
	c.delivered = seq
	for _, fn := range subs {
		fn(s)
	}
}

func (c *Controller) execute(ctx context.Context, cmd Command) {
	defer c.inflight.Done()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch cmd := cmd.(type) {
	case CheckSession:
		has, err := c.transport.CheckSession(callCtx)
		if err != nil {
			c.logger.WarnContext(ctx, "check session failed", "error", err)
		}
		c.dispatch(ctx, CheckCompleted{Epoch: cmd.Epoch, HasSession: has, Err: err})

	case CreateSession:
		err := c.createSession(callCtx)
		if err != nil {
			c.logger.WarnContext(ctx, "create session failed", "error", err)
		}
		c.dispatch(ctx, CreateCompleted{Epoch: cmd.Epoch, Err: err})

	case DestroySession:
		err := c.transport.DestroySession(callCtx)
		if err != nil {
			c.logger.WarnContext(ctx, "destroy session failed", "error", err)
		}
		c.dispatch(ctx, DestroyCompleted{Epoch: cmd.Epoch, Err: err})
	}
}

func (c *Controller) createSession(ctx context.Context) error {
	tok, err := c.tokens.IDToken(ctx, true)
	if err != nil {
		return err
	}
	if tok == "" {
		return ErrNoIDToken
	}
	err = c.transport.CreateSession(ctx, tok)
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(domainauth.ErrUpstreamUnavailable, err)
	}
	return err
}
