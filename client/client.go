// Package client is a reference hub.Client. Captures are turned into events
// by a Backend, enriched with scope data, filtered by ignore rules and sent on
// a background goroutine.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/rules"
)

// Result describes what happened to one capture.
type Result struct {
	EventID string
	Status  Status
	// Rule names the ignore rule that dropped the event.
	Rule     string
	Duration time.Duration
	Err      error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger records deliveries and absorbed failures.
func WithLogger(logger hub.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithFilterOptions configures the ignore-rule filter.
func WithFilterOptions(opts ...rules.FilterOption) Option {
	return func(c *Client) {
		c.filterOpts = append(c.filterOpts, opts...)
	}
}

// WithResultHook calls fn after every capture has been processed. fn runs on
// the delivery goroutine.
func WithResultHook(fn func(Result)) Option {
	return func(c *Client) {
		c.onResult = fn
	}
}

// WithSendTimeout bounds each backend call made for a capture.
func WithSendTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client implements hub.Client, hub.BackendProvider and
// hub.BreadcrumbRecorder.
type Client struct {
	opts       Options
	backend    Backend
	filter     *rules.Filter
	filterOpts []rules.FilterOption
	logger     hub.Logger
	onResult   func(Result)
	timeout    time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	wg        sync.WaitGroup
	closed    atomic.Bool
	installed atomic.Bool
	lastID    atomic.Value
}

var (
	_ hub.Client             = (*Client)(nil)
	_ hub.BackendProvider    = (*Client)(nil)
	_ hub.BreadcrumbRecorder = (*Client)(nil)
)

// New builds a client. Options are merged over DefaultOptions and the
// ignore rules are compiled up front.
func New(opts Options, backend Backend, options ...Option) (*Client, error) {
	if backend == nil {
		return nil, hub.NewInvariantError("client", "New", errors.New("backend is required"))
	}
	c := &Client{
		opts:    opts.WithDefaults(),
		backend: backend,
		now:     time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(c)
		}
	}
	filter, err := rules.NewFilter(c.opts.RuleEngine, c.opts.IgnoreRules, c.filterOpts...)
	if err != nil {
		return nil, fmt.Errorf("client: compile ignore rules: %w", err)
	}
	c.filter = filter
	return c, nil
}

// Name labels the client in activity events.
func (c *Client) Name() string {
	return c.opts.Name
}

// Options returns the effective options.
func (c *Client) Options() Options {
	return c.opts
}

// Backend implements hub.BackendProvider.
func (c *Client) Backend() hub.Backend {
	return c.backend
}

// Install prepares the backend. It fails with an InvariantError wrapping
// hub.ErrNotInstalled when the client is disabled.
func (c *Client) Install() error {
	if !c.opts.IsEnabled() {
		return hub.NewInvariantError("client", "Install", hub.ErrNotInstalled)
	}
	if c.installed.Load() {
		return nil
	}
	if installer, ok := c.backend.(Installer); ok {
		if err := installer.Install(); err != nil {
			return fmt.Errorf("client: install backend: %w", err)
		}
	}
	c.installed.Store(true)
	return nil
}

// LastEventID returns the ID of the most recently sent event.
func (c *Client) LastEventID() string {
	id, _ := c.lastID.Load().(string)
	return id
}

func (c *Client) CaptureException(err error, scope *hub.Scope) {
	c.dispatch("client.capture_exception", scope, func(ctx context.Context) (*hub.Event, error) {
		return c.backend.EventFromException(ctx, err)
	})
}

func (c *Client) CaptureMessage(message string, scope *hub.Scope) {
	c.dispatch("client.capture_message", scope, func(ctx context.Context) (*hub.Event, error) {
		return c.backend.EventFromMessage(ctx, message)
	})
}

func (c *Client) CaptureEvent(event *hub.Event, scope *hub.Scope) {
	event = event.Clone()
	c.dispatch("client.capture_event", scope, func(context.Context) (*hub.Event, error) {
		if event == nil {
			return nil, hub.ErrEventUndefined
		}
		return event, nil
	})
}

// AddBreadcrumb implements hub.BreadcrumbRecorder. The backend sees every
// breadcrumb; the scope keeps a copy, bounded by MaxBreadcrumbs, when the
// backend asks for it.
func (c *Client) AddBreadcrumb(breadcrumb hub.Breadcrumb, scope *hub.Scope) {
	if !c.active() {
		return
	}
	if breadcrumb.Timestamp.IsZero() {
		breadcrumb.Timestamp = c.now().UTC()
	}
	if c.backend.StoreBreadcrumb(breadcrumb) {
		scope.AddBreadcrumb(breadcrumb, c.opts.MaxBreadcrumbs)
	}
}

// Flush waits for in-flight captures or until ctx is done.
func (c *Client) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("client: flush: %w", ctx.Err())
	}
}

// Close stops accepting captures and flushes the ones in flight.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed.Store(true)
	c.mu.Unlock()
	return c.Flush(ctx)
}

func (c *Client) active() bool {
	return c.opts.IsEnabled() && !c.closed.Load()
}

// dispatch snapshots scope on the caller's goroutine and processes the
// capture in the background.
func (c *Client) dispatch(operation string, scope *hub.Scope, build func(context.Context) (*hub.Event, error)) {
	if !c.active() {
		return
	}
	var snapshot hub.ScopeSnapshot
	if scope != nil {
		snapshot = scope.Snapshot()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.active() {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		start := time.Now()
		result := c.process(build, snapshot)
		result.Duration = time.Since(start)
		c.report(operation, result)
	}()
}

func (c *Client) process(build func(context.Context) (*hub.Event, error), snapshot hub.ScopeSnapshot) (result Result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = Result{Status: StatusFailed, Err: &hub.PanicError{Value: recovered}}
		}
	}()

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	event, err := build(ctx)
	if err == nil && event == nil {
		err = hub.ErrEventUndefined
	}
	if err != nil {
		return Result{Status: StatusFailed, Err: err}
	}
	c.prepare(event, snapshot)

	match, err := c.ignored(event, snapshot)
	if err != nil {
		logAbsorbed(c.logger, "client.ignore_rules", err)
	}
	if match.Matched {
		return Result{EventID: event.EventID, Status: StatusSkipped, Rule: match.Rule}
	}

	status, err := c.backend.SendEvent(ctx, event)
	if err == nil && status == StatusSuccess {
		c.lastID.Store(event.EventID)
	}
	return Result{EventID: event.EventID, Status: status, Err: err}
}

func (c *Client) ignored(event *hub.Event, snapshot hub.ScopeSnapshot) (rules.Match, error) {
	if c.filter.Len() == 0 {
		return rules.Match{}, nil
	}
	eventPayload, err := PayloadFromEvent(event, false)
	if err != nil {
		return rules.Match{}, err
	}
	scopePayload, err := scopePayload(snapshot)
	if err != nil {
		return rules.Match{}, err
	}
	now := c.now()
	return c.filter.Match(rules.RuleContext{Event: eventPayload, Scope: scopePayload, Now: &now})
}

func (c *Client) report(operation string, result Result) {
	defer func() { _ = recover() }()
	if c.logger != nil {
		c.logger.LogHub(hub.LogEvent{Operation: operation, Duration: result.Duration, Err: result.Err})
	}
	if c.onResult != nil {
		c.onResult(result)
	}
}

func logAbsorbed(logger hub.Logger, operation string, err error) {
	if logger == nil || err == nil {
		return
	}
	defer func() { _ = recover() }()
	logger.LogHub(hub.LogEvent{Operation: operation, Err: err})
}
