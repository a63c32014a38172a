// Package offline buffers entity writes while the remote store is
// unreachable. Each tracked entity keeps its last-known snapshot plus a
// change map of fields written since connectivity dropped. When the
// network-status transition back to reachable fires, the pending change
// maps are flushed in insertion order and cleared on success.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/meeplemeet/server/cache"
	"github.com/meeplemeet/server/store"
	"go.uber.org/zap"
)

var (
	// ErrUnreachable is returned by Read when the network is down and the
	// entity has never been cached.
	ErrUnreachable = errors.New("offline: network unreachable and entity not cached")
)

// flushLockKey guards against two concurrent flushes racing the same
// pending sets when several reachability observers fire together.
const (
	flushLockKey = "offline:flush:lock"
	flushLockTTL = 30 * time.Second
)

type entry struct {
	collection string
	id         string
	// snapshot is the last state confirmed by the remote store, or
	// synthesized from the last successful write-through.
	snapshot map[string]any
	// pending maps field name to its last-written value, holding only
	// fields that differ from snapshot. Last write wins per field.
	pending map[string]any
}

// merged overlays pending onto the snapshot. The result is deep-copied so
// callers can never mutate cached nested values through it.
func (e *entry) merged() map[string]any {
	out := make(map[string]any, len(e.snapshot)+len(e.pending))
	for k, v := range e.snapshot {
		out[k] = v
	}
	for k, v := range e.pending {
		out[k] = v
	}
	return normalize(out)
}

// Manager is the process-wide offline cache. It is constructed once and
// injected; there is no ambient global instance.
type Manager struct {
	store  store.Client
	cache  cache.Cache
	logger *zap.Logger

	mu        sync.Mutex
	reachable bool
	entries   map[string]*entry
	// order lists keys of entries with pending changes, oldest first.
	// Flush replays in this order.
	order []string
}

// NewManager creates a Manager. startReachable seeds the network status
// before the first observer callback arrives.
func NewManager(s store.Client, c cache.Cache, logger *zap.Logger, startReachable bool) *Manager {
	return &Manager{
		store:     s,
		cache:     c,
		logger:    logger,
		reachable: startReachable,
		entries:   make(map[string]*entry),
	}
}

func entryKey(collection, id string) string {
	return collection + "/" + id
}

// Reachable reports the current network status.
func (m *Manager) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// Write stores fields for an entity. When reachable, the write goes
// straight to the remote store, refreshes the snapshot and clears any
// pending entries for the written fields. When unreachable, the fields
// are diffed against the current local state and
// only the differing ones join the pending change map; the caller sees
// the new value on the next Read immediately.
func (m *Manager) Write(ctx context.Context, collection, id string, fields map[string]any) error {
	fields = normalize(fields)

	m.mu.Lock()
	reachable := m.reachable
	m.mu.Unlock()

	if reachable {
		if err := m.store.Set(ctx, collection, id, fields); err != nil {
			return err
		}
		m.mu.Lock()
		e := m.entry(collection, id)
		for k, v := range fields {
			e.snapshot[k] = v
			// The remote write is now the source of truth for this field;
			// a buffered value left over from a failed flush must not
			// replay over it.
			delete(e.pending, k)
		}
		if len(e.pending) == 0 {
			m.removeFromOrder(entryKey(collection, id))
		}
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(collection, id)
	changed := changeMap(e.merged(), fields)
	if len(changed) == 0 {
		return nil
	}
	if len(e.pending) == 0 {
		m.order = append(m.order, entryKey(collection, id))
	}
	for k, v := range changed {
		e.pending[k] = v
	}
	m.logger.Debug("write buffered",
		zap.String("collection", collection),
		zap.String("id", id),
		zap.Int("changed_fields", len(changed)))
	return nil
}

// Read returns the entity's current merged state as a copy. A cached
// snapshot always wins; the remote store is consulted only on a cache
// miss, refreshing the snapshot for later reads.
func (m *Manager) Read(ctx context.Context, collection, id string) (map[string]any, error) {
	m.mu.Lock()
	e, ok := m.entries[entryKey(collection, id)]
	reachable := m.reachable
	if ok {
		out := e.merged()
		m.mu.Unlock()
		return out, nil
	}
	m.mu.Unlock()

	if !reachable {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnreachable, collection, id)
	}

	fields, err := m.store.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	e = m.entry(collection, id)
	e.snapshot = normalize(fields)
	out := e.merged()
	m.mu.Unlock()
	return out, nil
}

// PendingChanges returns a copy of the entity's pending change map, nil
// when nothing is buffered.
func (m *Manager) PendingChanges(collection, id string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryKey(collection, id)]
	if !ok || len(e.pending) == 0 {
		return nil
	}
	out := make(map[string]any, len(e.pending))
	for k, v := range e.pending {
		out[k] = v
	}
	return out
}

// PendingCount reports how many entities hold unflushed changes.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// SetNetworkStatus records the new reachability. The unreachable to
// reachable transition, and only that transition, triggers a synchronous
// flush of every pending change map.
func (m *Manager) SetNetworkStatus(ctx context.Context, reachable bool) error {
	m.mu.Lock()
	was := m.reachable
	m.reachable = reachable
	m.mu.Unlock()

	if was == reachable {
		return nil
	}
	m.logger.Info("network status changed", zap.Bool("reachable", reachable))
	if !reachable {
		return nil
	}
	return m.Flush(ctx)
}

// Flush replays every pending change map to the remote store in insertion
// order. A failed entity keeps its pending set for the next flush; the
// others still go through. Returns the combined failures, if any.
func (m *Manager) Flush(ctx context.Context) error {
	ok, err := m.cache.SetNX(ctx, flushLockKey, "1", flushLockTTL)
	if err != nil {
		return fmt.Errorf("acquire flush lock: %w", err)
	}
	if !ok {
		m.logger.Debug("flush already in progress")
		return nil
	}
	defer func() {
		if err := m.cache.Del(context.Background(), flushLockKey); err != nil {
			m.logger.Warn("release flush lock", zap.Error(err))
		}
	}()

	m.mu.Lock()
	keys := make([]string, len(m.order))
	copy(keys, m.order)
	m.mu.Unlock()

	var errs []error
	flushed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		m.mu.Lock()
		e, ok := m.entries[key]
		if !ok || len(e.pending) == 0 {
			m.mu.Unlock()
			continue
		}
		changes := make(map[string]any, len(e.pending))
		for k, v := range e.pending {
			changes[k] = v
		}
		collection, id := e.collection, e.id
		m.mu.Unlock()

		if err := m.store.Set(ctx, collection, id, changes); err != nil {
			m.logger.Warn("flush failed, changes retained",
				zap.String("collection", collection),
				zap.String("id", id),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("flush %s: %w", key, err))
			continue
		}

		m.mu.Lock()
		for k, v := range changes {
			e.snapshot[k] = v
			// A write that raced the flush stays pending.
			if reflect.DeepEqual(e.pending[k], v) {
				delete(e.pending, k)
			}
		}
		if len(e.pending) == 0 {
			m.removeFromOrder(key)
		}
		m.mu.Unlock()
		flushed++
	}

	m.logger.Info("flush complete",
		zap.Int("flushed", flushed),
		zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// Clear drops every cached snapshot and pending change map.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
	m.order = nil
	m.logger.Info("offline cache cleared")
}

// Subscribe mirrors the remote store's subscription but overlays the
// entity's pending changes on every emitted snapshot, so listeners see
// the same merged state Read returns.
func (m *Manager) Subscribe(ctx context.Context, collection, id string) (<-chan map[string]any, func(), error) {
	remote, unsub, err := m.store.Subscribe(ctx, collection, id)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan map[string]any, 1)
	go func() {
		defer close(out)
		for snap := range remote {
			m.mu.Lock()
			e := m.entry(collection, id)
			e.snapshot = normalize(snap)
			merged := e.merged()
			m.mu.Unlock()
			select {
			case out <- merged:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, unsub, nil
}

// entry returns the tracked entry for an entity, creating it when absent.
// Caller holds m.mu.
func (m *Manager) entry(collection, id string) *entry {
	key := entryKey(collection, id)
	e, ok := m.entries[key]
	if !ok {
		e = &entry{
			collection: collection,
			id:         id,
			snapshot:   make(map[string]any),
			pending:    make(map[string]any),
		}
		m.entries[key] = e
	}
	return e
}

// Caller holds m.mu.
func (m *Manager) removeFromOrder(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// changeMap returns only the fields whose new value differs from the
// current state. Writing a field back to its current value is not a
// change and must not be replayed.
func changeMap(current, fields map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range fields {
		if cur, ok := current[k]; ok && reflect.DeepEqual(cur, v) {
			continue
		}
		out[k] = v
	}
	return out
}

// normalize round-trips values through JSON so locally diffed values
// compare equal to what the store hands back (ints become float64 and so
// on). It also detaches the result from the caller's maps.
func normalize(fields map[string]any) map[string]any {
	raw, err := json.Marshal(fields)
	if err != nil {
		out := make(map[string]any, len(fields))
		for k, v := range fields {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fields
	}
	return out
}
