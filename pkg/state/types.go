package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-hub/layering"
)

var ErrNotFound = errors.New("state: snapshot not found")

var ErrETagMismatch = errors.New("state: etag mismatch")

// Ref kinds.
const (
	KindGlobal      = "global"
	KindRelease     = "release"
	KindEnvironment = "environment"
	KindUser        = "user"
	KindContext     = "context"
)

// Ref identifies one persisted snapshot within a domain.
type Ref struct {
	Domain string `json:"domain"`
	Kind   string `json:"kind"`
	ID     string `json:"id,omitempty"`
}

// Identifier returns the canonical storage key for the ref.
func (r Ref) Identifier() (string, error) {
	if r.Domain == "" {
		return "", fmt.Errorf("missing domain for kind %q", r.Kind)
	}
	switch r.Kind {
	case KindGlobal:
		return fmt.Sprintf("global/%s", r.Domain), nil
	case KindRelease, KindEnvironment, KindUser, KindContext:
		if r.ID == "" {
			return "", fmt.Errorf("missing id for kind %q", r.Kind)
		}
		return fmt.Sprintf("%s/%s/%s", r.Kind, r.ID, r.Domain), nil
	default:
		return "", fmt.Errorf("unsupported kind %q", r.Kind)
	}
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Record is one stored snapshot with its ref and metadata.
type Record[T any] struct {
	Ref      Ref  `json:"ref"`
	Snapshot T    `json:"snapshot"`
	Meta     Meta `json:"meta"`
}

// Store loads/saves one snapshot for a single reference.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (snapshot T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error)
}

// Lister enumerates stored snapshots of a domain ordered by identifier.
type Lister[T any] interface {
	List(ctx context.Context, domain string) ([]Record[T], error)
}

// Resolver orchestrates loads and merges over a Store.
type Resolver[T any] struct {
	Store Store[T]
}

// Mutator edits a snapshot in place.
type Mutator[T any] func(*T) error

// Resolve loads refs ordered from strongest to weakest and merges the ones
// that exist. Missing refs are skipped; it fails with ErrNotFound when none
// exist.
func (r Resolver[T]) Resolve(ctx context.Context, refs ...Ref) (T, []Meta, error) {
	var zero T
	if r.Store == nil {
		return zero, nil, fmt.Errorf("state: store is required")
	}
	if len(refs) == 0 {
		return zero, nil, fmt.Errorf("state: at least one ref is required")
	}

	snapshots := make([]T, 0, len(refs))
	metas := make([]Meta, 0, len(refs))
	for _, ref := range refs {
		snapshot, meta, ok, err := r.Store.Load(ctx, ref)
		if err != nil {
			return zero, nil, fmt.Errorf("state: load %q for kind %q: %w", ref.Domain, ref.Kind, err)
		}
		if !ok {
			continue
		}
		snapshots = append(snapshots, snapshot)
		metas = append(metas, meta)
	}
	if len(snapshots) == 0 {
		return zero, nil, ErrNotFound
	}
	return layering.MergeLayers(snapshots...), metas, nil
}

// Mutate loads one snapshot, applies fn, validates it, then saves. A non-empty
// meta.ETag must match the stored ETag.
func (r Resolver[T]) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator[T]) (T, Meta, error) {
	var zero T
	if r.Store == nil {
		return zero, Meta{}, fmt.Errorf("state: store is required")
	}
	if ref.Domain == "" {
		return zero, Meta{}, fmt.Errorf("state: domain is required")
	}
	if fn == nil {
		return zero, Meta{}, fmt.Errorf("state: mutator is required")
	}

	snapshot, loadedMeta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return zero, Meta{}, fmt.Errorf("state: load %q for kind %q: %w", ref.Domain, ref.Kind, err)
	}
	if !ok {
		snapshot = zero
		loadedMeta = Meta{}
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return zero, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	if err := fn(&snapshot); err != nil {
		return zero, loadedMeta, err
	}
	if validator, ok := any(snapshot).(interface{ Validate() error }); ok {
		if err := validator.Validate(); err != nil {
			return zero, loadedMeta, fmt.Errorf("state: validate: %w", err)
		}
	}

	saveMeta := mergeMeta(loadedMeta, meta)
	saveMeta.ETag = ""
	savedMeta, err := r.Store.Save(ctx, ref, snapshot, saveMeta)
	if err != nil {
		return zero, loadedMeta, fmt.Errorf("state: save %q for kind %q: %w", ref.Domain, ref.Kind, err)
	}
	return snapshot, savedMeta, nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

// nextETag derives the ETag written by the bundled stores.
func nextETag(previous string) string {
	var n int
	if _, err := fmt.Sscanf(previous, "v%d", &n); err != nil {
		n = 0
	}
	return fmt.Sprintf("v%d", n+1)
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
