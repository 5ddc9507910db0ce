package hub

import (
	"context"
	"sync/atomic"
)

// Handle resolves "the current hub". It owns the global carrier and asks a
// ContextProvider for context-local carriers. Independent handles never share
// state, which keeps tests free of global resets.
type Handle struct {
	global   *Carrier
	provider ContextProvider
	hubOpts  []Option
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithContextProvider replaces the provider used to detect isolated contexts.
func WithContextProvider(provider ContextProvider) HandleOption {
	return func(h *Handle) {
		if provider != nil {
			h.provider = provider
		}
	}
}

// WithHubOptions applies opts to hubs the handle creates lazily.
func WithHubOptions(opts ...Option) HandleOption {
	return func(h *Handle) {
		h.hubOpts = append(h.hubOpts, opts...)
	}
}

// WithGlobalHub seeds the global carrier with hub.
func WithGlobalHub(hub *Hub) HandleOption {
	return func(h *Handle) {
		h.global.SetHub(hub)
	}
}

// NewHandle builds a handle with an empty global carrier and the
// context.Context based provider.
func NewHandle(opts ...HandleOption) *Handle {
	h := &Handle{
		global:   NewCarrier(nil),
		provider: ContextCarriers,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// GlobalHub returns the hub on the global carrier, creating a client-less hub
// on first access.
func (h *Handle) GlobalHub() *Hub {
	return HubFromCarrier(h.global, func() *Hub {
		return NewHub(nil, h.hubOpts...)
	})
}

// Hub resolves the hub for ctx. Outside an isolated context it is the global
// hub. Inside one, the context's carrier is used; its hub is forked from the
// global hub's top layer on first access and reused afterwards.
func (h *Handle) Hub(ctx context.Context) *Hub {
	if ctx == nil {
		return h.GlobalHub()
	}
	carrier, ok := h.provider.Carrier(ctx)
	if !ok || carrier == nil {
		return h.GlobalHub()
	}
	return HubFromCarrier(carrier, func() *Hub {
		return h.GlobalHub().Fork()
	})
}

var defaultHandle atomic.Pointer[Handle]

// Default returns the process-wide handle used by the package-level
// functions, creating it on first use.
func Default() *Handle {
	if h := defaultHandle.Load(); h != nil {
		return h
	}
	defaultHandle.CompareAndSwap(nil, NewHandle())
	return defaultHandle.Load()
}

// SetDefault installs h as the process-wide handle and returns the previous
// one. A nil h makes the next Default call start from a fresh handle.
func SetDefault(h *Handle) *Handle {
	return defaultHandle.Swap(h)
}
