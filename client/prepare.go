package client

import (
	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/internal/hydrate"
	"github.com/goliatone/go-hub/layering"
	"github.com/google/uuid"
)

const platform = "go"

// prepare fills identity and client defaults, then folds in scope data.
func (c *Client) prepare(event *hub.Event, snapshot hub.ScopeSnapshot) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = c.now().UTC()
	}
	if event.Level == "" {
		event.Level = hub.LevelError
	}
	event.Release = layering.FirstNonEmpty(event.Release, c.opts.Release)
	event.Environment = layering.FirstNonEmpty(event.Environment, c.opts.Environment)
	event.ServerName = layering.FirstNonEmpty(event.ServerName, c.opts.ServerName)
	event.Platform = layering.FirstNonEmpty(event.Platform, platform)
	ApplyScope(event, snapshot, c.opts.MaxBreadcrumbs)
}

// ApplyScope merges scope data into event. Values already on the event win.
// Breadcrumbs and fingerprint are taken from the scope only when the event
// has none; at most maxBreadcrumbs of the newest are kept when positive.
func ApplyScope(event *hub.Event, snapshot hub.ScopeSnapshot, maxBreadcrumbs int) {
	if event == nil {
		return
	}
	event.Tags = layering.MergeMaps(event.Tags, snapshot.Tags)
	event.Extra = layering.MergeMaps(event.Extra, snapshot.Extra)
	event.User = layering.MergeLayers(event.User, layering.Clone(snapshot.User))
	if len(event.Fingerprint) == 0 && len(snapshot.Fingerprint) > 0 {
		event.Fingerprint = append([]string(nil), snapshot.Fingerprint...)
	}
	if len(event.Breadcrumbs) == 0 && len(snapshot.Breadcrumbs) > 0 {
		crumbs := snapshot.Breadcrumbs
		if maxBreadcrumbs > 0 && len(crumbs) > maxBreadcrumbs {
			crumbs = crumbs[len(crumbs)-maxBreadcrumbs:]
		}
		event.Breadcrumbs = layering.Clone(crumbs)
	}
}

func scopePayload(snapshot hub.ScopeSnapshot) (map[string]any, error) {
	if snapshot.IsEmpty() {
		return map[string]any{}, nil
	}
	return hydrate.ToPayload(snapshot)
}
