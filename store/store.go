// Package store defines the remote document store contract the engines
// are built against: per-document get/set/delete, a change subscription,
// and a multi-document transaction primitive for the two-sided
// relationship writes.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("store: document not found")

// Tx exposes document operations inside a transaction. All writes applied
// through a Tx commit or roll back together.
type Tx interface {
	Get(collection, id string) (map[string]any, error)
	Set(collection, id string, fields map[string]any) error
	Delete(collection, id string) error
}

// Client is the remote store. Set is a partial write: the given fields
// are merged into the document (created if absent); fields not named keep
// their stored value.
type Client interface {
	Get(ctx context.Context, collection, id string) (map[string]any, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error

	// Subscribe streams document snapshots until cancel is called or ctx
	// is done. The current snapshot, if any, is delivered first.
	Subscribe(ctx context.Context, collection, id string) (<-chan map[string]any, func(), error)

	// RunTransaction runs fn atomically. A returned error rolls back
	// every write fn issued.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// mergeFields overlays src onto a copy of dst and returns it.
func mergeFields(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
