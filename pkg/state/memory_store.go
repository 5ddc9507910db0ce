package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-hub/layering"
)

// MemoryStore is an in-memory Store keyed by Ref.Identifier(). Snapshots are
// deep-copied on the way in and out. Every save bumps the ETag.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	records map[string]Record[T]
	now     func() time.Time
}

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{records: map[string]Record[T]{}, now: time.Now}
}

func (s *MemoryStore[T]) Load(_ context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	key, err := ref.Identifier()
	if err != nil {
		return zero, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return zero, Meta{}, false, nil
	}
	return layering.Clone(record.Snapshot), cloneMeta(record.Meta), true, nil
}

func (s *MemoryStore[T]) Save(_ context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = map[string]Record[T]{}
	}
	previous := s.records[key].Meta
	saved := cloneMeta(meta)
	saved.ETag = nextETag(previous.ETag)
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = s.clock()().UTC()
	}
	s.records[key] = Record[T]{Ref: ref, Snapshot: layering.Clone(snapshot), Meta: saved}
	return cloneMeta(saved), nil
}

// List implements Lister.
func (s *MemoryStore[T]) List(_ context.Context, domain string) ([]Record[T], error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.records))
	for key, record := range s.records {
		if domain == "" || record.Ref.Domain == domain {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := make([]Record[T], 0, len(keys))
	for _, key := range keys {
		record := s.records[key]
		out = append(out, Record[T]{
			Ref:      record.Ref,
			Snapshot: layering.Clone(record.Snapshot),
			Meta:     cloneMeta(record.Meta),
		})
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *MemoryStore[T]) clock() func() time.Time {
	if s.now == nil {
		return time.Now
	}
	return s.now
}
