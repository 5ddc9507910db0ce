package hub

import "github.com/goliatone/go-hub/pkg/activity"

// Option configures a Hub.
type Option func(*hubConfig)

type hubConfig struct {
	logger         Logger
	maxBreadcrumbs int
	activity       *activity.Emitter
}

func applyOptions(opts []Option) hubConfig {
	cfg := hubConfig{maxBreadcrumbs: DefaultMaxBreadcrumbs}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLogger routes absorbed failures (listener errors, backend persistence
// errors, activity hook errors) to logger.
func WithLogger(logger Logger) Option {
	return func(cfg *hubConfig) {
		cfg.logger = logger
	}
}

// WithBreadcrumbLimit sets the bound used for scopes created by the hub.
// Non-positive values keep DefaultMaxBreadcrumbs.
func WithBreadcrumbLimit(limit int) Option {
	return func(cfg *hubConfig) {
		if limit > 0 {
			cfg.maxBreadcrumbs = limit
		}
	}
}

func (cfg hubConfig) newScope() *Scope {
	return NewScope(
		WithMaxBreadcrumbs(cfg.maxBreadcrumbs),
		WithScopeLogger(cfg.logger),
	)
}
