package hub

// Client accepts capture calls on behalf of a hub. Implementations own a
// Backend and must not block on delivery.
type Client interface {
	CaptureException(err error, scope *Scope)
	CaptureMessage(message string, scope *Scope)
	CaptureEvent(event *Event, scope *Scope)
}

// Backend is the part of a client's backend the hub talks to directly.
type Backend interface {
	// StoreScope persists a scope snapshot. Failures are ignored by the hub.
	StoreScope(snapshot ScopeSnapshot) error
	// StoreBreadcrumb reports whether the hub should also keep a local copy
	// of breadcrumb.
	StoreBreadcrumb(breadcrumb Breadcrumb) bool
}

// BackendProvider is implemented by clients that expose their Backend.
type BackendProvider interface {
	Backend() Backend
}

// BreadcrumbRecorder is implemented by clients that take over breadcrumb
// handling for the scope they are bound to.
type BreadcrumbRecorder interface {
	AddBreadcrumb(breadcrumb Breadcrumb, scope *Scope)
}

// backendOf returns the client's Backend when it exposes one. Panics from the
// accessor are treated as "no backend".
func backendOf(client Client) (backend Backend) {
	provider, ok := client.(BackendProvider)
	if !ok {
		return nil
	}
	defer func() {
		if recover() != nil {
			backend = nil
		}
	}()
	return provider.Backend()
}
