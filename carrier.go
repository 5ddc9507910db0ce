package hub

import (
	"context"
	"sync"
)

// Carrier is the slot a Hub lives in. It holds at most one hub.
type Carrier struct {
	mu  sync.Mutex
	hub *Hub
}

// NewCarrier returns a carrier holding hub, which may be nil.
func NewCarrier(hub *Hub) *Carrier {
	return &Carrier{hub: hub}
}

// Hub returns the stored hub, or nil.
func (c *Carrier) Hub() *Hub {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hub
}

// SetHub replaces the stored hub.
func (c *Carrier) SetHub(hub *Hub) {
	c.mu.Lock()
	c.hub = hub
	c.mu.Unlock()
}

// HubFromCarrier returns the carrier's hub, creating it with factory on first
// access. Later calls return the same instance. factory runs under the
// carrier lock and must not resolve the same carrier.
func HubFromCarrier(carrier *Carrier, factory func() *Hub) *Hub {
	carrier.mu.Lock()
	defer carrier.mu.Unlock()
	if carrier.hub == nil && factory != nil {
		carrier.hub = factory()
	}
	return carrier.hub
}

// ContextProvider reports whether an isolated execution context is active and
// exposes that context's carrier.
type ContextProvider interface {
	Carrier(ctx context.Context) (*Carrier, bool)
}

// ContextProviderFunc adapts a function to ContextProvider.
type ContextProviderFunc func(ctx context.Context) (*Carrier, bool)

// Carrier implements ContextProvider.
func (f ContextProviderFunc) Carrier(ctx context.Context) (*Carrier, bool) {
	if f == nil {
		return nil, false
	}
	return f(ctx)
}

// carrierKey is the context key for the isolated carrier.
type carrierKey struct{}

// Isolate starts an isolated execution context: hubs resolved from the
// returned context (or its descendants) are forked from the global hub on
// first use and kept apart from every other isolated context.
func Isolate(ctx context.Context) context.Context {
	return context.WithValue(ctx, carrierKey{}, NewCarrier(nil))
}

// WithHub starts an isolated execution context that resolves to hub.
func WithHub(ctx context.Context, hub *Hub) context.Context {
	return context.WithValue(ctx, carrierKey{}, NewCarrier(hub))
}

// CarrierFromContext returns the carrier attached by Isolate or WithHub.
func CarrierFromContext(ctx context.Context) (*Carrier, bool) {
	if ctx == nil {
		return nil, false
	}
	carrier, ok := ctx.Value(carrierKey{}).(*Carrier)
	return carrier, ok && carrier != nil
}

// ContextCarriers is the default provider; it reads carriers attached with
// Isolate and WithHub.
var ContextCarriers ContextProvider = ContextProviderFunc(CarrierFromContext)
