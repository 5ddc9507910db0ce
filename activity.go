package hub

import (
	"context"
	"fmt"

	"github.com/goliatone/go-hub/pkg/activity"
)

// WithActivityHooks publishes hub lifecycle events (push, pop, bind, capture)
// to hooks. Nil hooks are dropped.
func WithActivityHooks(hooks activity.Hooks, cfg ...activity.Config) Option {
	config := activity.Config{Enabled: true}
	if len(cfg) > 0 {
		config = cfg[0]
	}
	emitter := activity.NewEmitter(hooks, config)
	return func(c *hubConfig) {
		c.activity = emitter
	}
}

func (h *Hub) emit(event activity.Event) {
	emitter := h.cfg.activity
	if !emitter.Enabled() {
		return
	}
	if err := emitter.Emit(context.Background(), event); err != nil {
		logAbsorbed(h.cfg.logger, "hub.activity", h.StackDepth(), err)
	}
}

func (h *Hub) activityInput(layer Layer, depth int) activity.HubEventInput {
	if !h.cfg.activity.Enabled() {
		return activity.HubEventInput{}
	}
	snapshot := layer.Scope.Snapshot()
	return activity.HubEventInput{
		UserID:     snapshot.User.ID,
		Client:     clientLabel(layer.Client),
		StackDepth: depth,
		Tags:       snapshot.Tags,
	}
}

func clientLabel(client Client) string {
	if client == nil {
		return ""
	}
	if named, ok := client.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", client)
}
