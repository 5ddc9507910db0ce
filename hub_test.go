package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/goliatone/go-hub/pkg/activity"
)

type capturedCall struct {
	kind    string
	err     error
	message string
	event   *Event
	scope   ScopeSnapshot
}

type recordingClient struct {
	name    string
	mu      sync.Mutex
	calls   []capturedCall
	backend Backend
}

func newRecordingClient(name string) *recordingClient {
	return &recordingClient{name: name}
}

func (c *recordingClient) Name() string { return c.name }

func (c *recordingClient) CaptureException(err error, scope *Scope) {
	c.record(capturedCall{kind: "exception", err: err, scope: scope.Snapshot()})
}

func (c *recordingClient) CaptureMessage(message string, scope *Scope) {
	c.record(capturedCall{kind: "message", message: message, scope: scope.Snapshot()})
}

func (c *recordingClient) CaptureEvent(event *Event, scope *Scope) {
	c.record(capturedCall{kind: "event", event: event, scope: scope.Snapshot()})
}

func (c *recordingClient) record(call capturedCall) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *recordingClient) Calls() []capturedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedCall(nil), c.calls...)
}

type backedClient struct {
	*recordingClient
}

func (c backedClient) Backend() Backend { return c.backend }

type recordingBackend struct {
	mu          sync.Mutex
	scopes      []ScopeSnapshot
	breadcrumbs []Breadcrumb
	keep        bool
	storeErr    error
	panicStore  bool
}

func (b *recordingBackend) StoreScope(snapshot ScopeSnapshot) error {
	if b.panicStore {
		panic("store exploded")
	}
	b.mu.Lock()
	b.scopes = append(b.scopes, snapshot)
	b.mu.Unlock()
	return b.storeErr
}

func (b *recordingBackend) StoreBreadcrumb(breadcrumb Breadcrumb) bool {
	b.mu.Lock()
	b.breadcrumbs = append(b.breadcrumbs, breadcrumb)
	b.mu.Unlock()
	return b.keep
}

func (b *recordingBackend) StoredScopes() []ScopeSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ScopeSnapshot(nil), b.scopes...)
}

type recorderClient struct {
	*recordingClient
	crumbs []Breadcrumb
}

func (c *recorderClient) AddBreadcrumb(breadcrumb Breadcrumb, scope *Scope) {
	c.crumbs = append(c.crumbs, breadcrumb)
	scope.AddBreadcrumb(breadcrumb, 5)
}

type panickingClient struct{}

func (panickingClient) CaptureException(error, *Scope)   { panic("capture exception") }
func (panickingClient) CaptureMessage(string, *Scope)    { panic("capture message") }
func (panickingClient) CaptureEvent(*Event, *Scope)      { panic(errors.New("capture event")) }
func (panickingClient) AddBreadcrumb(Breadcrumb, *Scope) { panic("add breadcrumb") }

type logRecorder struct {
	mu     sync.Mutex
	events []LogEvent
}

func (l *logRecorder) LogHub(event LogEvent) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *logRecorder) failures(operation string) []LogEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LogEvent
	for _, event := range l.events {
		if event.Operation == operation && event.Err != nil {
			out = append(out, event)
		}
	}
	return out
}

func TestNewHubStartsWithRootLayer(t *testing.T) {
	client := newRecordingClient("a")
	h := NewHub(client)

	if h.StackDepth() != 1 {
		t.Fatalf("expected depth 1, got %d", h.StackDepth())
	}
	top := h.StackTop()
	if top.Client != client || top.Scope == nil {
		t.Fatalf("unexpected root layer: %+v", top)
	}
	if !top.HasClient() {
		t.Fatalf("expected root layer to report a client")
	}
}

func TestPopScopeNeverRemovesRoot(t *testing.T) {
	h := NewHub(nil)
	ops := []bool{true, false, false, true, true, false, false, false, true, false}
	for i, push := range ops {
		if push {
			h.PushScope(nil)
		} else {
			h.PopScope()
		}
		if h.StackDepth() < 1 {
			t.Fatalf("stack dropped below 1 after op %d", i)
		}
	}
	for h.PopScope() {
	}
	if h.StackDepth() != 1 {
		t.Fatalf("expected depth 1 after draining, got %d", h.StackDepth())
	}
	if h.PopScope() {
		t.Fatalf("expected popping the root layer to report false")
	}
}

func TestPushScopeInheritsClientAndIsolatesScope(t *testing.T) {
	client := newRecordingClient("a")
	h := NewHub(client)
	parent := h.Scope()
	parent.SetTag("layer", "parent")

	child := h.PushScope(nil)
	if h.Client() != client {
		t.Fatalf("expected pushed layer to inherit the client")
	}
	if child == parent {
		t.Fatalf("expected a distinct scope instance")
	}
	child.SetTag("layer", "child")

	if parent.Tags()["layer"] != "parent" {
		t.Fatalf("child mutation leaked into parent: %v", parent.Tags())
	}
	if len(child.Tags()) != 1 {
		t.Fatalf("expected pushed scope to start empty, got %v", child.Tags())
	}
}

func TestPushScopeWithExplicitClient(t *testing.T) {
	a := newRecordingClient("a")
	x := newRecordingClient("x")
	h := NewHub(a)

	h.PushScope(x)
	if h.Client() != x {
		t.Fatalf("expected pushed client x")
	}
	h.PopScope()
	if h.Client() != a {
		t.Fatalf("expected root client after pop")
	}
}

func TestWithScopeRestoresDepth(t *testing.T) {
	h := NewHub(newRecordingClient("a"))
	h.PushScope(nil)
	depth := h.StackDepth()

	wantErr := errors.New("boom")
	err := h.WithScope(nil, func(s *Scope) error {
		h.PushScope(nil)
		h.PushScope(nil)
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error to surface, got %v", err)
	}
	if h.StackDepth() != depth {
		t.Fatalf("expected depth %d, got %d", depth, h.StackDepth())
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = h.WithScope(nil, func(s *Scope) error {
			panic("fn exploded")
		})
	}()
	if h.StackDepth() != depth {
		t.Fatalf("expected depth %d after panic, got %d", depth, h.StackDepth())
	}

	if err := h.WithScope(nil, nil); err != nil {
		t.Fatalf("expected nil fn to be a no-op, got %v", err)
	}
	if h.StackDepth() != depth {
		t.Fatalf("expected depth %d after nil fn, got %d", depth, h.StackDepth())
	}
}

func TestWithScopeCapturesAgainstTemporaryScope(t *testing.T) {
	client := newRecordingClient("a")
	h := NewHub(client)

	_ = h.WithScope(nil, func(s *Scope) error {
		s.SetTag("request", "42")
		h.CaptureMessage("inside")
		return nil
	})
	h.CaptureMessage("outside")

	calls := client.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 captures, got %d", len(calls))
	}
	if calls[0].scope.Tags["request"] != "42" {
		t.Fatalf("expected temporary tag on first capture, got %v", calls[0].scope.Tags)
	}
	if _, ok := calls[1].scope.Tags["request"]; ok {
		t.Fatalf("temporary tag leaked: %v", calls[1].scope.Tags)
	}
}

func TestBindClientAndConfigureScope(t *testing.T) {
	a := newRecordingClient("a")
	h := NewHub(nil)

	h.BindClient(a)
	h.ConfigureScope(func(s *Scope) {
		s.SetUser(User{ID: "1"})
	})

	if h.Client() != a {
		t.Fatalf("expected bound client a")
	}
	if got := h.Scope().User(); got.ID != "1" {
		t.Fatalf("expected user id 1, got %+v", got)
	}
}

func TestBindClientReplacesScope(t *testing.T) {
	h := NewHub(newRecordingClient("a"))
	before := h.Scope()
	before.SetTag("old", "yes")

	h.BindClient(newRecordingClient("b"))

	if h.Scope() == before {
		t.Fatalf("expected BindClient to install a fresh scope")
	}
	if len(h.Scope().Tags()) != 0 {
		t.Fatalf("expected fresh scope to be empty")
	}
}

func TestConfigureScopeSkippedWithoutClient(t *testing.T) {
	h := NewHub(nil)
	called := false
	h.ConfigureScope(func(*Scope) { called = true })
	if called {
		t.Fatalf("expected ConfigureScope to skip without a client")
	}
	h.ConfigureScope(nil)
}

func TestBindClientMirrorsScopeIntoBackend(t *testing.T) {
	backend := &recordingBackend{}
	client := backedClient{newRecordingClient("a")}
	client.backend = backend
	h := NewHub(nil)

	h.BindClient(client)
	h.ConfigureScope(func(s *Scope) {
		s.SetTag("env", "prod")
		s.SetUser(User{ID: "7"})
	})

	stored := backend.StoredScopes()
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored snapshots, got %d", len(stored))
	}
	last := stored[1]
	if last.Tags["env"] != "prod" || last.User.ID != "7" {
		t.Fatalf("unexpected stored snapshot: %+v", last)
	}
}

func TestBackendPersistenceFailuresAreAbsorbed(t *testing.T) {
	logs := &logRecorder{}
	backend := &recordingBackend{storeErr: errors.New("disk full")}
	client := backedClient{newRecordingClient("a")}
	client.backend = backend
	h := NewHub(nil, WithLogger(logs))
	h.BindClient(client)

	h.Scope().SetTag("k", "v")
	if h.Scope().Tags()["k"] != "v" {
		t.Fatalf("expected mutation to apply despite backend failure")
	}
	if got := len(logs.failures("backend.store_scope")); got != 1 {
		t.Fatalf("expected 1 logged store failure, got %d", got)
	}

	backend.panicStore = true
	h.Scope().SetTag("k", "w")
	if h.Scope().Tags()["k"] != "w" {
		t.Fatalf("expected mutation to apply despite backend panic")
	}
	if got := len(logs.failures("backend.store_scope")); got != 2 {
		t.Fatalf("expected 2 logged store failures, got %d", got)
	}
}

func TestCaptureRoutesToClientWithScope(t *testing.T) {
	client := newRecordingClient("a")
	h := NewHub(client)
	h.Scope().SetTag("env", "test")

	wantErr := errors.New("failure")
	h.CaptureException(wantErr)
	h.CaptureMessage("hello")
	event := &Event{Message: "structured"}
	h.CaptureEvent(event)

	calls := client.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	if calls[0].kind != "exception" || !errors.Is(calls[0].err, wantErr) {
		t.Fatalf("unexpected exception call: %+v", calls[0])
	}
	if calls[1].kind != "message" || calls[1].message != "hello" {
		t.Fatalf("unexpected message call: %+v", calls[1])
	}
	if calls[2].kind != "event" || calls[2].event != event {
		t.Fatalf("unexpected event call: %+v", calls[2])
	}
	for _, call := range calls {
		if call.scope.Tags["env"] != "test" {
			t.Fatalf("expected scope tags to travel with %s", call.kind)
		}
	}
}

func TestCaptureWithoutClientIsNoop(t *testing.T) {
	backend := &recordingBackend{}
	h := NewHub(nil)

	h.CaptureException(errors.New("ignored"))
	h.CaptureMessage("ignored")
	h.CaptureEvent(&Event{})

	if len(backend.StoredScopes()) != 0 || len(backend.breadcrumbs) != 0 {
		t.Fatalf("expected no backend interaction")
	}
}

func TestCapturePanicsAreAbsorbed(t *testing.T) {
	logs := &logRecorder{}
	h := NewHub(panickingClient{}, WithLogger(logs))

	h.CaptureException(errors.New("x"))
	h.CaptureMessage("x")
	h.CaptureEvent(&Event{})
	h.AddBreadcrumb(Breadcrumb{Message: "x"})

	for _, op := range []string{"hub.capture_exception", "hub.capture_message", "hub.capture_event", "hub.add_breadcrumb"} {
		failures := logs.failures(op)
		if len(failures) != 1 {
			t.Fatalf("expected one absorbed failure for %s, got %d", op, len(failures))
		}
		var panicErr *PanicError
		if op != "hub.capture_event" && !errors.As(failures[0].Err, &panicErr) {
			t.Fatalf("expected PanicError for %s, got %v", op, failures[0].Err)
		}
	}
}

func TestAddBreadcrumbPopRestoresRootTrail(t *testing.T) {
	h := NewHub(nil)
	root := h.Scope()

	h.PushScope(newRecordingClient("x"))
	h.AddBreadcrumb(Breadcrumb{Message: "m"})
	if got := h.Scope().Breadcrumbs(); len(got) != 1 || got[0].Message != "m" {
		t.Fatalf("expected breadcrumb on pushed scope, got %+v", got)
	}
	h.PopScope()

	for _, crumb := range root.Breadcrumbs() {
		if crumb.Message == "m" {
			t.Fatalf("breadcrumb leaked into root scope")
		}
	}
}

func TestAddBreadcrumbBackendDecidesLocalCopy(t *testing.T) {
	backend := &recordingBackend{keep: false}
	client := backedClient{newRecordingClient("a")}
	client.backend = backend
	h := NewHub(client)

	h.AddBreadcrumb(Breadcrumb{Message: "dropped"})
	if len(h.Scope().Breadcrumbs()) != 0 {
		t.Fatalf("expected backend veto to skip local copy")
	}
	if len(backend.breadcrumbs) != 1 {
		t.Fatalf("expected backend to see breadcrumb")
	}

	backend.keep = true
	h.AddBreadcrumb(Breadcrumb{Message: "kept"})
	if got := h.Scope().Breadcrumbs(); len(got) != 1 || got[0].Message != "kept" {
		t.Fatalf("expected kept breadcrumb, got %+v", got)
	}
}

func TestAddBreadcrumbRecorderTakesOver(t *testing.T) {
	client := &recorderClient{recordingClient: newRecordingClient("r")}
	h := NewHub(client)

	for i := 0; i < 8; i++ {
		h.AddBreadcrumb(Breadcrumb{Message: "crumb"})
	}
	if len(client.crumbs) != 8 {
		t.Fatalf("expected recorder to see 8 breadcrumbs, got %d", len(client.crumbs))
	}
	if got := len(h.Scope().Breadcrumbs()); got != 5 {
		t.Fatalf("expected recorder limit 5 to apply, got %d", got)
	}
}

func TestHubBreadcrumbLimitOption(t *testing.T) {
	h := NewHub(nil, WithBreadcrumbLimit(3))
	for i := 0; i < 10; i++ {
		h.AddBreadcrumb(Breadcrumb{Message: string(rune('a' + i))})
	}
	got := h.Scope().Breadcrumbs()
	if len(got) != 3 || got[0].Message != "h" || got[2].Message != "j" {
		t.Fatalf("unexpected bounded trail: %+v", got)
	}
}

type flusher interface {
	Flush() int
}

type flushingClient struct {
	*recordingClient
	flushed int
}

func (c *flushingClient) Flush() int {
	c.flushed++
	return c.flushed
}

func TestInvokeClientCapabilityCheck(t *testing.T) {
	plain := NewHub(newRecordingClient("plain"))
	if InvokeClient(plain, func(f flusher) { f.Flush() }) {
		t.Fatalf("expected capability miss to skip the call")
	}

	client := &flushingClient{recordingClient: newRecordingClient("f")}
	h := NewHub(client)
	if !InvokeClient(h, func(f flusher) { f.Flush() }) {
		t.Fatalf("expected capable client to be invoked")
	}
	if client.flushed != 1 {
		t.Fatalf("expected one flush, got %d", client.flushed)
	}

	if InvokeClient(NewHub(nil), func(f flusher) { f.Flush() }) {
		t.Fatalf("expected no call without a client")
	}
	if InvokeClient[flusher](nil, nil) {
		t.Fatalf("expected nil hub to be ignored")
	}
}

func TestRequireClient(t *testing.T) {
	_, err := NewHub(nil).RequireClient()
	if !errors.Is(err, ErrClientNotBound) {
		t.Fatalf("expected ErrClientNotBound, got %v", err)
	}
	var invErr *InvariantError
	if !errors.As(err, &invErr) || invErr.Component != "hub" || invErr.Op != "RequireClient" {
		t.Fatalf("expected InvariantError metadata, got %#v", err)
	}

	client := newRecordingClient("a")
	got, err := NewHub(client).RequireClient()
	if err != nil || got != client {
		t.Fatalf("expected bound client, got %v, %v", got, err)
	}
}

func TestForkSharesTopLayerAndIsolatesStack(t *testing.T) {
	c := newRecordingClient("c")
	global := NewHub(c)
	s := global.Scope()

	fork := global.Fork()
	top := fork.StackTop()
	if fork.StackDepth() != 1 || top.Client != c || top.Scope != s {
		t.Fatalf("expected fork to start from the global top layer")
	}

	fork.PushScope(nil).SetTag("fork", "only")
	fork.BindClient(newRecordingClient("other"))

	if global.StackDepth() != 1 {
		t.Fatalf("fork push leaked into global stack")
	}
	if global.Client() != c {
		t.Fatalf("fork bind leaked into global layer")
	}
	if _, ok := s.Tags()["fork"]; ok {
		t.Fatalf("pushed fork scope mutated the global scope")
	}
}

func TestActivityHooksObserveLifecycle(t *testing.T) {
	capture := &activity.CaptureHook{}
	h := NewHub(nil, WithActivityHooks(activity.Hooks{capture}))

	h.BindClient(newRecordingClient("reporting"))
	h.Scope().SetUser(User{ID: "u-1"})
	h.PushScope(nil)
	h.CaptureMessage("hello")
	h.PopScope()

	want := []string{
		activity.VerbClientBound,
		activity.VerbScopeUpdated,
		activity.VerbScopePushed,
		activity.VerbEventCaptured,
		activity.VerbScopePopped,
	}
	got := capture.Verbs()
	if len(got) != len(want) {
		t.Fatalf("expected verbs %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected verbs %v, got %v", want, got)
		}
	}

	events := capture.Events()
	if events[0].ObjectID != "reporting" {
		t.Fatalf("expected client label as object id, got %q", events[0].ObjectID)
	}
	if events[1].UserID != "u-1" {
		t.Fatalf("expected scope update to carry the user, got %q", events[1].UserID)
	}
	if events[3].Metadata["capture_kind"] != activity.CaptureMessage {
		t.Fatalf("expected capture kind metadata, got %v", events[3].Metadata)
	}
}

func TestActivityHookFailuresAreLogged(t *testing.T) {
	logs := &logRecorder{}
	failing := &activity.CaptureHook{Err: errors.New("sink down")}
	h := NewHub(nil, WithLogger(logs), WithActivityHooks(activity.Hooks{failing}))

	h.PushScope(nil)

	if h.StackDepth() != 2 {
		t.Fatalf("expected push to succeed despite hook failure")
	}
	if len(logs.failures("hub.activity")) != 1 {
		t.Fatalf("expected hook failure to be logged")
	}
}

func TestCaptureLogsOperation(t *testing.T) {
	logs := &logRecorder{}
	h := NewHub(newRecordingClient("a"), WithLogger(logs))
	h.CaptureMessage("hi")

	logs.mu.Lock()
	defer logs.mu.Unlock()
	if len(logs.events) != 1 || logs.events[0].Operation != "hub.capture_message" || logs.events[0].Err != nil {
		t.Fatalf("unexpected log events: %+v", logs.events)
	}
}
