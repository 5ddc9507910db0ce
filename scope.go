package hub

import (
	"errors"
	"sync"

	"github.com/goliatone/go-hub/layering"
)

// DefaultMaxBreadcrumbs bounds a scope's breadcrumb trail when no explicit
// limit is configured.
const DefaultMaxBreadcrumbs = 100

// ScopeListener observes scope mutations. It receives a detached snapshot of
// the post-mutation state. Returned errors and panics are logged and dropped.
type ScopeListener func(ScopeSnapshot) error

// ScopeSnapshot is a read-only copy of a Scope's data.
type ScopeSnapshot struct {
	User           User              `json:"user,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	Extra          map[string]any    `json:"extra,omitempty"`
	Fingerprint    []string          `json:"fingerprint,omitempty"`
	Breadcrumbs    []Breadcrumb      `json:"breadcrumbs,omitempty"`
	MaxBreadcrumbs int               `json:"max_breadcrumbs,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s ScopeSnapshot) Clone() ScopeSnapshot {
	return ScopeSnapshot{
		User:           layering.Clone(s.User),
		Tags:           cloneStringMap(s.Tags),
		Extra:          layering.Clone(s.Extra),
		Fingerprint:    append([]string(nil), s.Fingerprint...),
		Breadcrumbs:    layering.Clone(s.Breadcrumbs),
		MaxBreadcrumbs: s.MaxBreadcrumbs,
	}
}

// IsEmpty reports whether the snapshot carries no contextual data.
func (s ScopeSnapshot) IsEmpty() bool {
	return s.User.IsEmpty() && len(s.Tags) == 0 && len(s.Extra) == 0 &&
		len(s.Fingerprint) == 0 && len(s.Breadcrumbs) == 0
}

// ScopeOption configures a Scope on creation.
type ScopeOption func(*Scope)

// WithMaxBreadcrumbs sets the scope's own breadcrumb bound. Non-positive
// values keep DefaultMaxBreadcrumbs.
func WithMaxBreadcrumbs(limit int) ScopeOption {
	return func(s *Scope) {
		if limit > 0 {
			s.maxBreadcrumbs = limit
		}
	}
}

// WithScopeLogger routes absorbed listener failures to logger.
func WithScopeLogger(logger Logger) ScopeOption {
	return func(s *Scope) {
		s.logger = logger
	}
}

// Scope is the mutable contextual data attached to one hub layer.
type Scope struct {
	mu             sync.RWMutex
	user           User
	tags           map[string]string
	extra          map[string]any
	fingerprint    []string
	breadcrumbs    []Breadcrumb
	maxBreadcrumbs int
	listeners      []ScopeListener
	logger         Logger
}

// NewScope builds an empty scope.
func NewScope(opts ...ScopeOption) *Scope {
	s := &Scope{maxBreadcrumbs: DefaultMaxBreadcrumbs}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// AddScopeListener registers fn. Listeners run in registration order after
// every mutation. A nil fn is ignored.
func (s *Scope) AddScopeListener(fn ScopeListener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// SetUser replaces the current user.
func (s *Scope) SetUser(user User) {
	s.mutate(func() {
		s.user = user.clone()
	})
}

// SetTag sets one tag; the last write for a key wins.
func (s *Scope) SetTag(key, value string) {
	s.mutate(func() {
		if s.tags == nil {
			s.tags = make(map[string]string)
		}
		s.tags[key] = value
	})
}

// SetTags sets several tags with a single notification.
func (s *Scope) SetTags(tags map[string]string) {
	s.mutate(func() {
		if s.tags == nil {
			s.tags = make(map[string]string, len(tags))
		}
		for key, value := range tags {
			s.tags[key] = value
		}
	})
}

// SetExtra sets one extra value; the last write for a key wins.
func (s *Scope) SetExtra(key string, value any) {
	s.mutate(func() {
		if s.extra == nil {
			s.extra = make(map[string]any)
		}
		s.extra[key] = value
	})
}

// SetFingerprint replaces the grouping fingerprint.
func (s *Scope) SetFingerprint(fingerprint []string) {
	s.mutate(func() {
		s.fingerprint = append([]string(nil), fingerprint...)
	})
}

// AddBreadcrumb appends breadcrumb and evicts the oldest entries beyond
// limit. A non-positive limit falls back to the scope's own bound.
func (s *Scope) AddBreadcrumb(breadcrumb Breadcrumb, limit int) {
	s.mutate(func() {
		if limit <= 0 {
			limit = s.maxBreadcrumbs
		}
		if limit <= 0 {
			limit = DefaultMaxBreadcrumbs
		}
		s.breadcrumbs = append(s.breadcrumbs, breadcrumb.clone())
		if overflow := len(s.breadcrumbs) - limit; overflow > 0 {
			s.breadcrumbs = append([]Breadcrumb(nil), s.breadcrumbs[overflow:]...)
		}
	})
}

// Clear resets all data fields. Listeners and the breadcrumb bound survive.
func (s *Scope) Clear() {
	s.mutate(func() {
		s.user = User{}
		s.tags = nil
		s.extra = nil
		s.fingerprint = nil
		s.breadcrumbs = nil
	})
}

// User returns the current user.
func (s *Scope) User() User {
	if s == nil {
		return User{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.clone()
}

// Tags returns a copy of the tags.
func (s *Scope) Tags() map[string]string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStringMap(s.tags)
}

// Extra returns a copy of the extra values.
func (s *Scope) Extra() map[string]any {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return layering.Clone(s.extra)
}

// Fingerprint returns a copy of the fingerprint.
func (s *Scope) Fingerprint() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.fingerprint...)
}

// Breadcrumbs returns the trail, oldest first.
func (s *Scope) Breadcrumbs() []Breadcrumb {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBreadcrumbs(s.breadcrumbs)
}

// MaxBreadcrumbs returns the scope's breadcrumb bound.
func (s *Scope) MaxBreadcrumbs() int {
	if s == nil {
		return DefaultMaxBreadcrumbs
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxBreadcrumbs
}

// Snapshot returns a detached copy of the scope data.
func (s *Scope) Snapshot() ScopeSnapshot {
	if s == nil {
		return ScopeSnapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Scope) snapshotLocked() ScopeSnapshot {
	return ScopeSnapshot{
		User:           layering.Clone(s.user),
		Tags:           cloneStringMap(s.tags),
		Extra:          layering.Clone(s.extra),
		Fingerprint:    append([]string(nil), s.fingerprint...),
		Breadcrumbs:    layering.Clone(s.breadcrumbs),
		MaxBreadcrumbs: s.maxBreadcrumbs,
	}
}

// mutate applies fn under the write lock, then notifies listeners outside of
// it so they may read the scope again.
func (s *Scope) mutate(fn func()) {
	s.mu.Lock()
	fn()
	snapshot := s.snapshotLocked()
	listeners := append([]ScopeListener(nil), s.listeners...)
	logger := s.logger
	s.mu.Unlock()

	notifyListeners(listeners, snapshot, logger)
}

// notifyListeners runs every listener even when earlier ones fail. Failures
// are joined and handed to the logger, never to the mutating caller.
func notifyListeners(listeners []ScopeListener, snapshot ScopeSnapshot, logger Logger) {
	if len(listeners) == 0 {
		return
	}
	var errs []error
	for i, listener := range listeners {
		view := snapshot
		if i < len(listeners)-1 {
			view = snapshot.Clone()
		}
		if err := callListener(listener, view); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return
	}
	logAbsorbed(logger, "scope.listener", 0, errors.Join(errs...))
}

func callListener(listener ScopeListener, snapshot ScopeSnapshot) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = errorFromRecovered(recovered)
		}
	}()
	return listener(snapshot)
}
