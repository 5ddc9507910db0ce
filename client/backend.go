package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/pkg/state"
	"github.com/google/uuid"
)

// Status is the outcome of a SendEvent call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Backend converts captures into events and delivers them. It extends the
// part of a backend the hub talks to directly.
type Backend interface {
	hub.Backend
	EventFromException(ctx context.Context, err error) (*hub.Event, error)
	EventFromMessage(ctx context.Context, message string) (*hub.Event, error)
	SendEvent(ctx context.Context, event *hub.Event) (Status, error)
}

// Installer is implemented by backends that need setup before the first
// capture.
type Installer interface {
	Install() error
}

// BackendOption configures MemoryBackend and WriterBackend.
type BackendOption func(*backendConfig)

type backendConfig struct {
	store      state.Store[hub.ScopeSnapshot]
	ref        state.Ref
	legacy     bool
	sendErr    error
	dropCrumbs bool
}

// WithScopeStore persists every scope snapshot the hub mirrors under ref.
func WithScopeStore(store state.Store[hub.ScopeSnapshot], ref state.Ref) BackendOption {
	return func(cfg *backendConfig) {
		cfg.store = store
		cfg.ref = ref
	}
}

// WithLegacyExceptionFormat writes exceptions wrapped in {"values": [...]}.
func WithLegacyExceptionFormat() BackendOption {
	return func(cfg *backendConfig) {
		cfg.legacy = true
	}
}

// WithSendError makes every SendEvent fail with err.
func WithSendError(err error) BackendOption {
	return func(cfg *backendConfig) {
		cfg.sendErr = err
	}
}

// WithoutLocalBreadcrumbs makes StoreBreadcrumb return false, so scopes keep
// no local copy.
func WithoutLocalBreadcrumbs() BackendOption {
	return func(cfg *backendConfig) {
		cfg.dropCrumbs = true
	}
}

func newBackendConfig(opts []BackendOption) backendConfig {
	cfg := backendConfig{ref: state.Ref{Domain: "scope", Kind: state.KindGlobal}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (cfg backendConfig) storeScope(snapshot hub.ScopeSnapshot) error {
	if cfg.store == nil {
		return nil
	}
	_, err := cfg.store.Save(context.Background(), cfg.ref, snapshot, state.Meta{
		SnapshotID: uuid.NewString(),
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("client: store scope: %w", err)
	}
	return nil
}

// MemoryBackend keeps sent events in memory.
type MemoryBackend struct {
	cfg         backendConfig
	mu          sync.Mutex
	events      []*hub.Event
	breadcrumbs []hub.Breadcrumb
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend(opts ...BackendOption) *MemoryBackend {
	return &MemoryBackend{cfg: newBackendConfig(opts)}
}

func (b *MemoryBackend) EventFromException(_ context.Context, err error) (*hub.Event, error) {
	return NewExceptionEvent(err)
}

func (b *MemoryBackend) EventFromMessage(_ context.Context, message string) (*hub.Event, error) {
	return NewMessageEvent(message)
}

func (b *MemoryBackend) SendEvent(ctx context.Context, event *hub.Event) (Status, error) {
	if err := ctx.Err(); err != nil {
		return StatusFailed, err
	}
	if event == nil {
		return StatusFailed, hub.ErrEventUndefined
	}
	if b.cfg.sendErr != nil {
		return StatusFailed, b.cfg.sendErr
	}
	b.mu.Lock()
	b.events = append(b.events, event.Clone())
	b.mu.Unlock()
	return StatusSuccess, nil
}

func (b *MemoryBackend) StoreScope(snapshot hub.ScopeSnapshot) error {
	return b.cfg.storeScope(snapshot)
}

func (b *MemoryBackend) StoreBreadcrumb(breadcrumb hub.Breadcrumb) bool {
	b.mu.Lock()
	b.breadcrumbs = append(b.breadcrumbs, breadcrumb)
	b.mu.Unlock()
	return !b.cfg.dropCrumbs
}

// Events returns copies of the events sent so far.
func (b *MemoryBackend) Events() []*hub.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*hub.Event, len(b.events))
	for i, event := range b.events {
		out[i] = event.Clone()
	}
	return out
}

// Breadcrumbs returns every breadcrumb offered through StoreBreadcrumb.
func (b *MemoryBackend) Breadcrumbs() []hub.Breadcrumb {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]hub.Breadcrumb(nil), b.breadcrumbs...)
}

// WriterBackend writes sent events as JSON lines.
type WriterBackend struct {
	cfg backendConfig
	mu  sync.Mutex
	enc *json.Encoder
}

var _ Backend = (*WriterBackend)(nil)

func NewWriterBackend(w io.Writer, opts ...BackendOption) *WriterBackend {
	return &WriterBackend{cfg: newBackendConfig(opts), enc: json.NewEncoder(w)}
}

func (b *WriterBackend) EventFromException(_ context.Context, err error) (*hub.Event, error) {
	return NewExceptionEvent(err)
}

func (b *WriterBackend) EventFromMessage(_ context.Context, message string) (*hub.Event, error) {
	return NewMessageEvent(message)
}

func (b *WriterBackend) SendEvent(ctx context.Context, event *hub.Event) (Status, error) {
	if err := ctx.Err(); err != nil {
		return StatusFailed, err
	}
	if b.cfg.sendErr != nil {
		return StatusFailed, b.cfg.sendErr
	}
	payload, err := PayloadFromEvent(event, b.cfg.legacy)
	if err != nil {
		return StatusFailed, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enc.Encode(payload); err != nil {
		return StatusFailed, fmt.Errorf("client: write event: %w", err)
	}
	return StatusSuccess, nil
}

func (b *WriterBackend) StoreScope(snapshot hub.ScopeSnapshot) error {
	return b.cfg.storeScope(snapshot)
}

func (b *WriterBackend) StoreBreadcrumb(hub.Breadcrumb) bool {
	return !b.cfg.dropCrumbs
}
