package hub

import "context"

// CurrentClient returns the client bound on the hub resolved for ctx.
func (h *Handle) CurrentClient(ctx context.Context) Client {
	return h.Hub(ctx).Client()
}

// BindClient binds client on the hub resolved for ctx and mirrors scope
// mutations into the client's Backend.
func (h *Handle) BindClient(ctx context.Context, client Client) {
	h.Hub(ctx).BindClient(client)
}

// CaptureException captures err on the hub resolved for ctx.
func (h *Handle) CaptureException(ctx context.Context, err error) {
	h.Hub(ctx).CaptureException(err)
}

// CaptureMessage captures message on the hub resolved for ctx.
func (h *Handle) CaptureMessage(ctx context.Context, message string) {
	h.Hub(ctx).CaptureMessage(message)
}

// CaptureEvent captures event on the hub resolved for ctx.
func (h *Handle) CaptureEvent(ctx context.Context, event *Event) {
	h.Hub(ctx).CaptureEvent(event)
}

// AddBreadcrumb records breadcrumb on the hub resolved for ctx.
func (h *Handle) AddBreadcrumb(ctx context.Context, breadcrumb Breadcrumb) {
	h.Hub(ctx).AddBreadcrumb(breadcrumb)
}

// ConfigureScope runs fn against the current scope of the hub resolved for
// ctx when a client is bound.
func (h *Handle) ConfigureScope(ctx context.Context, fn func(*Scope)) {
	h.Hub(ctx).ConfigureScope(fn)
}

// WithScope runs fn in a temporary scope on the hub resolved for ctx,
// inheriting the current client.
func (h *Handle) WithScope(ctx context.Context, fn func(*Scope) error) error {
	return h.Hub(ctx).WithScope(nil, fn)
}

// WithScopeClient is WithScope with client bound to the temporary scope. A
// nil client inherits the current one.
func (h *Handle) WithScopeClient(ctx context.Context, client Client, fn func(*Scope) error) error {
	return h.Hub(ctx).WithScope(client, fn)
}

// Recover captures a value obtained from recover(). It reports whether there
// was anything to capture.
func (h *Handle) Recover(ctx context.Context, recovered any) bool {
	err := errorFromRecovered(recovered)
	if err == nil {
		return false
	}
	h.Hub(ctx).CaptureException(err)
	return true
}

// RequireClient returns the bound client or an InvariantError wrapping
// ErrClientNotBound.
func (h *Handle) RequireClient(ctx context.Context) (Client, error) {
	return h.Hub(ctx).RequireClient()
}

// CurrentClient returns the client bound on the current hub.
func CurrentClient(ctx context.Context) Client {
	return Default().CurrentClient(ctx)
}

// BindClient binds client on the current hub.
func BindClient(ctx context.Context, client Client) {
	Default().BindClient(ctx, client)
}

// CaptureException captures err on the current hub.
func CaptureException(ctx context.Context, err error) {
	Default().CaptureException(ctx, err)
}

// CaptureMessage captures message on the current hub.
func CaptureMessage(ctx context.Context, message string) {
	Default().CaptureMessage(ctx, message)
}

// CaptureEvent captures event on the current hub.
func CaptureEvent(ctx context.Context, event *Event) {
	Default().CaptureEvent(ctx, event)
}

// AddBreadcrumb records breadcrumb on the current hub.
func AddBreadcrumb(ctx context.Context, breadcrumb Breadcrumb) {
	Default().AddBreadcrumb(ctx, breadcrumb)
}

// ConfigureScope runs fn against the current scope.
func ConfigureScope(ctx context.Context, fn func(*Scope)) {
	Default().ConfigureScope(ctx, fn)
}

// WithScope runs fn in a temporary scope on the current hub.
func WithScope(ctx context.Context, fn func(*Scope) error) error {
	return Default().WithScope(ctx, fn)
}

// WithScopeClient runs fn in a temporary scope bound to client on the current
// hub.
func WithScopeClient(ctx context.Context, client Client, fn func(*Scope) error) error {
	return Default().WithScopeClient(ctx, client, fn)
}

// Recover captures a value obtained from recover() on the current hub.
//
//	defer func() { hub.Recover(ctx, recover()) }()
func Recover(ctx context.Context, recovered any) bool {
	return Default().Recover(ctx, recovered)
}

// RequireClient returns the client bound on the current hub or an
// InvariantError.
func RequireClient(ctx context.Context) (Client, error) {
	return Default().RequireClient(ctx)
}

// CallOnClient calls fn with the current client when it implements C and
// reports whether fn ran.
func CallOnClient[C any](ctx context.Context, fn func(C)) bool {
	return InvokeClient(Default().Hub(ctx), fn)
}
