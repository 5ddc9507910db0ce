package hub

import (
	"sync"
	"time"

	"github.com/goliatone/go-hub/pkg/activity"
)

// Hub owns a stack of layers and routes capture calls to the client bound on
// the top layer. The stack always holds at least the root layer.
type Hub struct {
	mu    sync.RWMutex
	stack []*Layer
	cfg   hubConfig
}

// NewHub builds a hub whose root layer is bound to client. A nil client
// yields a hub on which capture calls are no-ops until BindClient is called.
func NewHub(client Client, opts ...Option) *Hub {
	cfg := applyOptions(opts)
	return &Hub{
		stack: []*Layer{{Client: client, Scope: cfg.newScope()}},
		cfg:   cfg,
	}
}

// newHubFromLayers copies layers into a fresh stack. Layer values are copied
// so binding a client on one hub never rebinds another; scopes are shared by
// reference. An empty input is normalised to a root layer.
func newHubFromLayers(cfg hubConfig, layers ...Layer) *Hub {
	stack := make([]*Layer, 0, len(layers)+1)
	for _, layer := range layers {
		layer := layer
		if layer.Scope == nil {
			layer.Scope = cfg.newScope()
		}
		stack = append(stack, &layer)
	}
	if len(stack) == 0 {
		stack = append(stack, &Layer{Scope: cfg.newScope()})
	}
	return &Hub{stack: stack, cfg: cfg}
}

// Fork returns a hub whose single layer starts from this hub's top layer.
// Pushes, pops and client bindings on the fork stay on the fork.
func (h *Hub) Fork() *Hub {
	return newHubFromLayers(h.cfg, h.StackTop())
}

// PushScope pushes a layer with a fresh, empty scope and returns the scope.
// A nil client inherits the current top client.
func (h *Hub) PushScope(client Client) *Scope {
	scope := h.cfg.newScope()

	h.mu.Lock()
	if client == nil {
		client = h.stack[len(h.stack)-1].Client
	}
	layer := Layer{Client: client, Scope: scope}
	h.stack = append(h.stack, &layer)
	depth := len(h.stack)
	h.mu.Unlock()

	h.emit(activity.BuildScopePushedEvent(h.activityInput(layer, depth)))
	return scope
}

// PopScope removes the top layer. The root layer is never removed; popping
// it is a no-op that returns false.
func (h *Hub) PopScope() bool {
	h.mu.Lock()
	if len(h.stack) <= 1 {
		h.mu.Unlock()
		return false
	}
	layer := *h.stack[len(h.stack)-1]
	h.stack[len(h.stack)-1] = nil
	h.stack = h.stack[:len(h.stack)-1]
	depth := len(h.stack)
	h.mu.Unlock()

	h.emit(activity.BuildScopePoppedEvent(h.activityInput(layer, depth)))
	return true
}

// WithScope runs fn against a freshly pushed scope and restores the stack
// depth afterwards, whether fn returns, fails, or panics. The error from fn
// is returned unchanged; a panic continues after the stack is restored.
func (h *Hub) WithScope(client Client, fn func(*Scope) error) error {
	depth := h.StackDepth()
	scope := h.PushScope(client)
	defer h.popTo(depth)
	if fn == nil {
		return nil
	}
	return fn(scope)
}

func (h *Hub) popTo(depth int) {
	for h.StackDepth() > depth {
		if !h.PopScope() {
			return
		}
	}
}

// StackTop returns a copy of the top layer.
func (h *Hub) StackTop() Layer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return *h.stack[len(h.stack)-1]
}

// StackDepth returns the number of layers, root included.
func (h *Hub) StackDepth() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.stack)
}

// Client returns the client bound on the top layer, or nil.
func (h *Hub) Client() Client {
	return h.StackTop().Client
}

// Scope returns the scope of the top layer.
func (h *Hub) Scope() *Scope {
	return h.StackTop().Scope
}

// RequireClient returns the bound client or an InvariantError wrapping
// ErrClientNotBound.
func (h *Hub) RequireClient() (Client, error) {
	client := h.Client()
	if client == nil {
		return nil, NewInvariantError("hub", "RequireClient", ErrClientNotBound)
	}
	return client, nil
}

// BindClient binds client on the top layer and gives the layer a fresh scope.
// Mutations of that scope are mirrored into the client's Backend through
// StoreScope and reported as hub.scope.updated activity; persistence failures
// are logged and dropped.
func (h *Hub) BindClient(client Client) {
	scope := h.cfg.newScope()
	if client != nil {
		scope.AddScopeListener(h.storeScopeListener(client))
	}

	h.mu.Lock()
	top := h.stack[len(h.stack)-1]
	top.Client = client
	top.Scope = scope
	layer := *top
	depth := len(h.stack)
	h.mu.Unlock()

	h.emit(activity.BuildClientBoundEvent(h.activityInput(layer, depth)))
}

func (h *Hub) storeScopeListener(client Client) ScopeListener {
	return func(snapshot ScopeSnapshot) error {
		if h.cfg.activity.Enabled() {
			h.emit(activity.BuildScopeUpdatedEvent(activity.HubEventInput{
				UserID:     snapshot.User.ID,
				Client:     clientLabel(client),
				StackDepth: h.StackDepth(),
				Tags:       snapshot.Tags,
			}))
		}
		backend := backendOf(client)
		if backend == nil {
			return nil
		}
		h.guard("backend.store_scope", func() {
			if err := backend.StoreScope(snapshot); err != nil {
				logAbsorbed(h.cfg.logger, "backend.store_scope", h.StackDepth(), err)
			}
		})
		return nil
	}
}

// ConfigureScope calls fn with the top scope when a client is bound.
func (h *Hub) ConfigureScope(fn func(*Scope)) {
	if fn == nil {
		return
	}
	top := h.StackTop()
	if top.Client == nil {
		return
	}
	fn(top.Scope)
}

// CaptureException hands err to the bound client together with the top
// scope. Without a client the call does nothing.
func (h *Hub) CaptureException(err error) {
	h.capture("hub.capture_exception", activity.CaptureException, func(client Client, scope *Scope) {
		client.CaptureException(err, scope)
	})
}

// CaptureMessage hands message to the bound client together with the top
// scope. Without a client the call does nothing.
func (h *Hub) CaptureMessage(message string) {
	h.capture("hub.capture_message", activity.CaptureMessage, func(client Client, scope *Scope) {
		client.CaptureMessage(message, scope)
	})
}

// CaptureEvent hands event to the bound client together with the top scope.
// Without a client the call does nothing.
func (h *Hub) CaptureEvent(event *Event) {
	h.capture("hub.capture_event", activity.CaptureEvent, func(client Client, scope *Scope) {
		client.CaptureEvent(event, scope)
	})
}

func (h *Hub) capture(operation, kind string, call func(Client, *Scope)) {
	top := h.StackTop()
	if top.Client == nil {
		return
	}
	start := time.Now()
	h.guard(operation, func() {
		call(top.Client, top.Scope)
	})
	h.logOperation(operation, start)

	input := h.activityInput(top, h.StackDepth())
	input.CaptureKind = kind
	h.emit(activity.BuildEventCapturedEvent(input))
}

// AddBreadcrumb records breadcrumb. A client implementing BreadcrumbRecorder
// takes it over; otherwise the client's Backend decides through
// StoreBreadcrumb whether the top scope keeps a copy. Without a client the
// breadcrumb goes straight onto the top scope.
func (h *Hub) AddBreadcrumb(breadcrumb Breadcrumb) {
	top := h.StackTop()
	if top.Client == nil {
		top.Scope.AddBreadcrumb(breadcrumb, 0)
		return
	}
	if recorder, ok := top.Client.(BreadcrumbRecorder); ok {
		h.guard("hub.add_breadcrumb", func() {
			recorder.AddBreadcrumb(breadcrumb, top.Scope)
		})
		return
	}
	keep := true
	if backend := backendOf(top.Client); backend != nil {
		h.guard("backend.store_breadcrumb", func() {
			keep = backend.StoreBreadcrumb(breadcrumb)
		})
	}
	if keep {
		top.Scope.AddBreadcrumb(breadcrumb, 0)
	}
}

// InvokeClient calls fn with the bound client when it implements C and
// reports whether fn ran. Panics from fn are logged and absorbed.
func InvokeClient[C any](h *Hub, fn func(C)) bool {
	if h == nil || fn == nil {
		return false
	}
	client := h.Client()
	if client == nil {
		return false
	}
	capable, ok := any(client).(C)
	if !ok {
		return false
	}
	h.guard("hub.invoke_client", func() {
		fn(capable)
	})
	return true
}

// guard runs fn and converts a panic into a logged, absorbed failure.
func (h *Hub) guard(operation string, fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logAbsorbed(h.cfg.logger, operation, h.StackDepth(), errorFromRecovered(recovered))
		}
	}()
	fn()
}

func (h *Hub) logOperation(operation string, start time.Time) {
	defer func() { _ = recover() }()
	loggerOrNoop(h.cfg.logger).LogHub(LogEvent{
		Operation: operation,
		Depth:     h.StackDepth(),
		Duration:  time.Since(start),
	})
}
