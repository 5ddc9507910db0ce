// Package state persists snapshots keyed by a Ref. The hub uses it to keep
// the scope snapshots a client backend receives through StoreScope, so they
// can be listed and merged later.
//
//   - Store[T] only loads and saves a single snapshot for a single Ref.
//   - Lister[T] enumerates every snapshot of a domain.
//   - Resolver[T] loads several refs and merges them strongest first with
//     layering.MergeLayers, and guards read-modify-write cycles with ETags.
//
// Deterministic keys:
//
//	Ref.Identifier() returns "global/<domain>" for the global kind and
//	"<kind>/<id>/<domain>" for release, environment, user and context refs.
package state
