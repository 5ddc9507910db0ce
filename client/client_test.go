package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/pkg/state"
)

type resultLog struct {
	mu      sync.Mutex
	results []Result
}

func (l *resultLog) add(result Result) {
	l.mu.Lock()
	l.results = append(l.results, result)
	l.mu.Unlock()
}

func (l *resultLog) all() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Result(nil), l.results...)
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func newTestClient(t *testing.T, opts Options, backend Backend, extra ...Option) (*Client, *resultLog) {
	t.Helper()
	log := &resultLog{}
	options := append([]Option{WithResultHook(log.add), WithClock(fixedClock)}, extra...)
	c, err := New(opts, backend, options...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, log
}

func flush(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestCaptureMessageThroughHub(t *testing.T) {
	backend := NewMemoryBackend()
	c, _ := newTestClient(t, Options{Release: "1.2.3", Environment: "staging", ServerName: "web-1"}, backend)
	h := hub.NewHub(nil)
	h.BindClient(c)
	h.ConfigureScope(func(scope *hub.Scope) {
		scope.SetUser(hub.User{ID: "u-1"})
		scope.SetTag("region", "eu")
		scope.SetExtra("attempt", 2)
	})
	h.AddBreadcrumb(hub.Breadcrumb{Message: "clicked"})
	h.CaptureMessage("hello")
	flush(t, c)

	events := backend.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Message != "hello" || event.Level != hub.LevelInfo {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.EventID == "" || !event.Timestamp.Equal(fixedClock()) {
		t.Fatalf("expected id and timestamp, got %q %v", event.EventID, event.Timestamp)
	}
	if event.Release != "1.2.3" || event.Environment != "staging" || event.ServerName != "web-1" || event.Platform != "go" {
		t.Fatalf("client defaults not applied: %+v", event)
	}
	if event.User.ID != "u-1" || event.Tags["region"] != "eu" || event.Extra["attempt"] != 2 {
		t.Fatalf("scope not merged: %+v", event)
	}
	if len(event.Breadcrumbs) != 1 || event.Breadcrumbs[0].Message != "clicked" {
		t.Fatalf("expected scope breadcrumbs, got %+v", event.Breadcrumbs)
	}
	if c.LastEventID() != event.EventID {
		t.Fatalf("expected last event id %q, got %q", event.EventID, c.LastEventID())
	}
}

func TestCaptureExceptionBuildsChain(t *testing.T) {
	backend := NewMemoryBackend()
	c, _ := newTestClient(t, Options{}, backend)
	h := hub.NewHub(c)

	root := errors.New("disk full")
	h.CaptureException(fmt.Errorf("save report: %w", root))
	flush(t, c)

	events := backend.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	chain := events[0].Exception
	if len(chain) != 2 {
		t.Fatalf("expected 2 exceptions, got %+v", chain)
	}
	if chain[0].Value != "save report: disk full" || chain[1].Value != "disk full" {
		t.Fatalf("unexpected chain: %+v", chain)
	}
	if chain[1].Type != "*errors.errorString" || chain[1].Module != "errors" {
		t.Fatalf("unexpected root exception: %+v", chain[1])
	}
	if events[0].Level != hub.LevelError {
		t.Fatalf("expected error level, got %q", events[0].Level)
	}
}

func TestEventValuesWinOverScope(t *testing.T) {
	backend := NewMemoryBackend()
	c, _ := newTestClient(t, Options{Release: "client"}, backend)
	h := hub.NewHub(nil)
	h.BindClient(c)
	h.ConfigureScope(func(scope *hub.Scope) {
		scope.SetTag("region", "eu")
		scope.SetTag("tier", "free")
		scope.SetFingerprint([]string{"scope"})
		scope.SetUser(hub.User{ID: "scope-user", Email: "scope@example.com"})
	})

	h.CaptureEvent(&hub.Event{
		Message:     "custom",
		Level:       hub.LevelWarning,
		Release:     "event",
		Tags:        map[string]string{"region": "us"},
		Fingerprint: []string{"event"},
		User:        hub.User{ID: "event-user"},
		Breadcrumbs: []hub.Breadcrumb{{Message: "own"}},
	})
	flush(t, c)

	event := backend.Events()[0]
	if event.Release != "event" || event.Level != hub.LevelWarning {
		t.Fatalf("event fields overwritten: %+v", event)
	}
	if event.Tags["region"] != "us" || event.Tags["tier"] != "free" {
		t.Fatalf("unexpected tags: %v", event.Tags)
	}
	if len(event.Fingerprint) != 1 || event.Fingerprint[0] != "event" {
		t.Fatalf("unexpected fingerprint: %v", event.Fingerprint)
	}
	if event.User.ID != "event-user" || event.User.Email != "scope@example.com" {
		t.Fatalf("unexpected user: %+v", event.User)
	}
	if len(event.Breadcrumbs) != 1 || event.Breadcrumbs[0].Message != "own" {
		t.Fatalf("expected event breadcrumbs to win, got %+v", event.Breadcrumbs)
	}
}

func TestCaptureSnapshotsScopeSynchronously(t *testing.T) {
	backend := NewMemoryBackend()
	c, _ := newTestClient(t, Options{}, backend)
	h := hub.NewHub(nil)
	h.BindClient(c)

	err := h.WithScope(nil, func(scope *hub.Scope) error {
		scope.SetTag("request", "r-1")
		h.CaptureMessage("inside")
		scope.SetTag("request", "changed")
		return nil
	})
	if err != nil {
		t.Fatalf("with scope: %v", err)
	}
	flush(t, c)

	if got := backend.Events()[0].Tags["request"]; got != "r-1" {
		t.Fatalf("expected capture-time tag, got %q", got)
	}
}

func TestUndefinedEventsFail(t *testing.T) {
	backend := NewMemoryBackend()
	c, log := newTestClient(t, Options{}, backend)
	scope := hub.NewScope()

	c.CaptureException(nil, scope)
	c.CaptureMessage("  ", scope)
	c.CaptureEvent(nil, scope)
	flush(t, c)

	results := log.all()
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, result := range results {
		if result.Status != StatusFailed || !errors.Is(result.Err, hub.ErrEventUndefined) {
			t.Fatalf("expected undefined event failure, got %+v", result)
		}
	}
	if len(backend.Events()) != 0 {
		t.Fatalf("expected nothing sent")
	}
}

func TestIgnoreRulesDropEvents(t *testing.T) {
	for _, engine := range []string{"expr", "cel"} {
		t.Run(engine, func(t *testing.T) {
			backend := NewMemoryBackend()
			opts := Options{
				RuleEngine: engine,
				IgnoreRules: []string{
					`message == "noise"`,
					`tags["tier"] == "internal"`,
				},
			}
			c, log := newTestClient(t, opts, backend)
			h := hub.NewHub(c)

			h.CaptureMessage("noise")
			h.CaptureMessage("signal")
			h.ConfigureScope(func(scope *hub.Scope) { scope.SetTag("tier", "internal") })
			h.CaptureMessage("internal")
			flush(t, c)

			events := backend.Events()
			if len(events) != 1 || events[0].Message != "signal" {
				t.Fatalf("expected only the signal event, got %+v", events)
			}
			skipped := map[string]bool{}
			for _, result := range log.all() {
				if result.Status == StatusSkipped {
					skipped[result.Rule] = true
				}
			}
			if !skipped["ignore[0]"] || !skipped["ignore[1]"] {
				t.Fatalf("expected both rules to fire, got %v", skipped)
			}
		})
	}
}

func TestInvalidIgnoreRuleFailsConstruction(t *testing.T) {
	_, err := New(Options{IgnoreRules: []string{"message =="}}, NewMemoryBackend())
	if err == nil {
		t.Fatalf("expected compile error")
	}
	_, err = New(Options{RuleEngine: "lua"}, NewMemoryBackend())
	if err == nil {
		t.Fatalf("expected unknown engine error")
	}
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(Options{}, nil)
	var invErr *hub.InvariantError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestDisabledClient(t *testing.T) {
	disabled := false
	backend := NewMemoryBackend()
	c, _ := newTestClient(t, Options{Enabled: &disabled}, backend)

	err := c.Install()
	var invErr *hub.InvariantError
	if !errors.As(err, &invErr) || !errors.Is(err, hub.ErrNotInstalled) {
		t.Fatalf("expected not-installed invariant, got %v", err)
	}

	if c.Options().IsEnabled() {
		t.Fatalf("defaults must not re-enable an explicitly disabled client")
	}

	scope := hub.NewScope()
	c.CaptureMessage("ignored", scope)
	c.AddBreadcrumb(hub.Breadcrumb{Message: "ignored"}, scope)
	hub.NewHub(c).CaptureMessage("ignored through hub")
	flush(t, c)
	if len(backend.Events()) != 0 || len(scope.Breadcrumbs()) != 0 {
		t.Fatalf("disabled client must not capture")
	}
}

func TestParseOptionsKeepsExplicitSettings(t *testing.T) {
	opts, err := ParseOptions([]byte("enabled: false\nmax_breadcrumbs: 5\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Enabled == nil || *opts.Enabled || opts.IsEnabled() {
		t.Fatalf("expected enabled: false to survive defaults, got %v", opts.Enabled)
	}
	if opts.MaxBreadcrumbs != 5 || opts.RuleEngine != "expr" {
		t.Fatalf("unexpected merged options: %+v", opts)
	}

	opts, err = ParseOptions([]byte("enabled: true\n"))
	if err != nil || !opts.IsEnabled() {
		t.Fatalf("expected enabled client, got %+v (%v)", opts, err)
	}

	c, err := New(opts, NewMemoryBackend())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close(context.Background())
	if err := c.Install(); err != nil {
		t.Fatalf("install: %v", err)
	}
}

type installingBackend struct {
	*MemoryBackend
	installs int
}

func (b *installingBackend) Install() error {
	b.installs++
	return nil
}

func TestInstallRunsBackendOnce(t *testing.T) {
	backend := &installingBackend{MemoryBackend: NewMemoryBackend()}
	c, _ := newTestClient(t, Options{}, backend)
	for i := 0; i < 2; i++ {
		if err := c.Install(); err != nil {
			t.Fatalf("install: %v", err)
		}
	}
	if backend.installs != 1 {
		t.Fatalf("expected a single backend install, got %d", backend.installs)
	}
}

func TestClosedClientDropsCaptures(t *testing.T) {
	backend := NewMemoryBackend()
	c, _ := newTestClient(t, Options{}, backend)
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	c.CaptureMessage("late", hub.NewScope())
	flush(t, c)
	if len(backend.Events()) != 0 {
		t.Fatalf("expected closed client to drop captures")
	}
}

type blockingBackend struct {
	*MemoryBackend
	release chan struct{}
}

func (b *blockingBackend) SendEvent(ctx context.Context, event *hub.Event) (Status, error) {
	<-b.release
	return b.MemoryBackend.SendEvent(ctx, event)
}

func TestFlushHonoursContext(t *testing.T) {
	backend := &blockingBackend{MemoryBackend: NewMemoryBackend(), release: make(chan struct{})}
	c, err := New(Options{}, backend)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.CaptureMessage("slow", hub.NewScope())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	close(backend.release)
	flush(t, c)
	if len(backend.Events()) != 1 {
		t.Fatalf("expected event after release")
	}
}

func TestSendFailuresAreLogged(t *testing.T) {
	sendErr := errors.New("offline")
	var mu sync.Mutex
	var logged []hub.LogEvent
	logger := hub.LoggerFunc(func(event hub.LogEvent) {
		mu.Lock()
		logged = append(logged, event)
		mu.Unlock()
	})
	c, log := newTestClient(t, Options{}, NewMemoryBackend(WithSendError(sendErr)), WithLogger(logger))
	c.CaptureMessage("lost", hub.NewScope())
	flush(t, c)

	results := log.all()
	if len(results) != 1 || results[0].Status != StatusFailed || !errors.Is(results[0].Err, sendErr) {
		t.Fatalf("unexpected results: %+v", results)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(logged) != 1 || logged[0].Operation != "client.capture_message" || !errors.Is(logged[0].Err, sendErr) {
		t.Fatalf("unexpected log events: %+v", logged)
	}
	if c.LastEventID() != "" {
		t.Fatalf("failed sends must not set the last event id")
	}
}

type panickingBackend struct {
	*MemoryBackend
}

func (panickingBackend) SendEvent(context.Context, *hub.Event) (Status, error) {
	panic("transport exploded")
}

func TestSendPanicsAreRecovered(t *testing.T) {
	c, log := newTestClient(t, Options{}, panickingBackend{NewMemoryBackend()})
	c.CaptureMessage("boom", hub.NewScope())
	flush(t, c)

	results := log.all()
	var panicErr *hub.PanicError
	if len(results) != 1 || !errors.As(results[0].Err, &panicErr) {
		t.Fatalf("expected recovered panic, got %+v", results)
	}
}

func TestAddBreadcrumbRespectsBackendAndLimit(t *testing.T) {
	backend := NewMemoryBackend()
	c, _ := newTestClient(t, Options{MaxBreadcrumbs: 2}, backend)
	h := hub.NewHub(c)
	for i := 0; i < 3; i++ {
		h.AddBreadcrumb(hub.Breadcrumb{Message: fmt.Sprintf("b%d", i)})
	}

	crumbs := h.Scope().Breadcrumbs()
	if len(crumbs) != 2 || crumbs[0].Message != "b1" || crumbs[1].Message != "b2" {
		t.Fatalf("unexpected scope trail: %+v", crumbs)
	}
	if !crumbs[0].Timestamp.Equal(fixedClock()) {
		t.Fatalf("expected breadcrumb timestamp to be filled")
	}
	if len(backend.Breadcrumbs()) != 3 {
		t.Fatalf("expected backend to see every breadcrumb")
	}

	dropping := NewMemoryBackend(WithoutLocalBreadcrumbs())
	c2, _ := newTestClient(t, Options{}, dropping)
	h2 := hub.NewHub(c2)
	h2.AddBreadcrumb(hub.Breadcrumb{Message: "remote only"})
	if len(h2.Scope().Breadcrumbs()) != 0 {
		t.Fatalf("expected no local copy")
	}
}

func TestScopeSnapshotsPersistToStore(t *testing.T) {
	store := state.NewMemoryStore[hub.ScopeSnapshot]()
	ref := state.Ref{Domain: "scope", Kind: state.KindUser, ID: "u-1"}
	backend := NewMemoryBackend(WithScopeStore(store, ref))
	c, _ := newTestClient(t, Options{}, backend)

	h := hub.NewHub(nil)
	h.BindClient(c)
	h.ConfigureScope(func(scope *hub.Scope) {
		scope.SetUser(hub.User{ID: "u-1"})
		scope.SetTag("plan", "pro")
	})

	snapshot, meta, ok, err := store.Load(context.Background(), ref)
	if err != nil || !ok {
		t.Fatalf("expected stored snapshot, ok=%v err=%v", ok, err)
	}
	if snapshot.User.ID != "u-1" || snapshot.Tags["plan"] != "pro" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if meta.ETag != "v2" || meta.SnapshotID == "" {
		t.Fatalf("expected two saves with ids, got %+v", meta)
	}
}

func TestWriterBackendWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newTestClient(t, Options{}, NewWriterBackend(&buf, WithLegacyExceptionFormat()))
	scope := hub.NewScope()
	c.CaptureException(errors.New("first"), scope)
	flush(t, c)
	c.CaptureMessage("second", scope)
	flush(t, c)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	exception, ok := first["exception"].(map[string]any)
	if !ok || exception["values"] == nil {
		t.Fatalf("expected legacy exception envelope, got %v", first["exception"])
	}

	event, err := EventFromPayload("line-1", first)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if len(event.Exception) != 1 || event.Exception[0].Value != "first" {
		t.Fatalf("unexpected round trip: %+v", event)
	}
}

func TestEventFromPayload(t *testing.T) {
	event, err := EventFromPayload("inline", map[string]any{
		"message": "payment failed",
		"level":   "warn",
		"tags":    map[string]any{"gateway": "stripe"},
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Level != hub.LevelWarning || event.Tags["gateway"] != "stripe" {
		t.Fatalf("unexpected event: %+v", event)
	}

	_, err = EventFromPayload("empty", map[string]any{"level": "error"})
	if !errors.Is(err, hub.ErrEventUndefined) {
		t.Fatalf("expected undefined event, got %v", err)
	}

	event, err = EventFromPayload("bare", map[string]any{
		"message":   "x",
		"exception": map[string]any{"type": "Error"},
	})
	if err != nil || len(event.Exception) != 0 {
		t.Fatalf("expected envelope without values to be dropped, got %+v %v", event, err)
	}
}

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	content := `
enabled: false
release: "2.0.0"
max_breadcrumbs: 10
rule_engine: cel
ignore_rules:
  - 'level == "debug"'
store:
  driver: sqlite
  dsn: file:scopes.db
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if opts.IsEnabled() || opts.Release != "2.0.0" || opts.MaxBreadcrumbs != 10 || opts.RuleEngine != "cel" {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.Environment != "production" || opts.Name != "client" || opts.Store.Domain != "scope" {
		t.Fatalf("expected defaults to fill blanks: %+v", opts)
	}
	if len(opts.IgnoreRules) != 1 || opts.Store.Driver != "sqlite" {
		t.Fatalf("unexpected rules or store: %+v", opts)
	}

	if _, err := LoadOptions(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
	if _, err := ParseOptions([]byte("enabled: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDefaultOptionsEnabled(t *testing.T) {
	if !(Options{}).IsEnabled() || !DefaultOptions().IsEnabled() {
		t.Fatalf("expected enabled by default")
	}
}
