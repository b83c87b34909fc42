/*
Package catalog provides the stock movement reason catalog.

PURPOSE:
  Reasons classify movements (credit/debit/balance-adjustment) and carry the
  tags used by range reporting. They change rarely and are read on every
  ingestion, so the catalog is served from an explicit in-process cache over
  the persistence surface.

CACHING:
  Cached is a plain map cache with explicit Refresh and Invalidate owned by
  the caller — no hidden lazy wrappers. Writes go through Save, which keeps
  the cache coherent.
*/
package catalog

import (
	"context"
	"sync"

	"github.com/meridian/stockledger/ledger"
)

// Store is the persistence surface for reasons.
type Store interface {
	AllReasons(ctx context.Context) ([]ledger.Reason, error)
	SaveReason(ctx context.Context, reason ledger.Reason) error
}

// =============================================================================
// CACHED CATALOG
// =============================================================================

// Cached implements ledger.ReasonCatalog over a Store with a refreshable
// in-process cache.
type Cached struct {
	store Store

	mu     sync.RWMutex
	byID   map[ledger.ReasonID]ledger.Reason
	loaded bool
}

func NewCached(store Store) *Cached {
	return &Cached{store: store}
}

// Refresh reloads the whole catalog from the store.
func (c *Cached) Refresh(ctx context.Context) error {
	reasons, err := c.store.AllReasons(ctx)
	if err != nil {
		return err
	}

	byID := make(map[ledger.ReasonID]ledger.Reason, len(reasons))
	for _, r := range reasons {
		byID[r.ID] = r
	}

	c.mu.Lock()
	c.byID = byID
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Invalidate drops the cache; the next read reloads from the store.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.byID = nil
	c.loaded = false
	c.mu.Unlock()
}

// Save persists a reason and keeps the cache coherent.
func (c *Cached) Save(ctx context.Context, reason ledger.Reason) error {
	if err := c.store.SaveReason(ctx, reason); err != nil {
		return err
	}
	c.mu.Lock()
	if c.loaded {
		c.byID[reason.ID] = reason
	}
	c.mu.Unlock()
	return nil
}

// Reason returns the catalog entry for an id, or ledger.ErrUnknownReason.
func (c *Cached) Reason(ctx context.Context, id ledger.ReasonID) (*ledger.Reason, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.byID[id]
	if !ok {
		return nil, ledger.ErrUnknownReason
	}
	return &r, nil
}

// Reasons resolves several ids in one call; unknown ids are absent from the
// result rather than an error.
func (c *Cached) Reasons(ctx context.Context, ids []ledger.ReasonID) (map[ledger.ReasonID]*ledger.Reason, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[ledger.ReasonID]*ledger.Reason, len(ids))
	for _, id := range ids {
		if r, ok := c.byID[id]; ok {
			r := r
			out[id] = &r
		}
	}
	return out, nil
}

// TagKnown reports whether any configured reason carries the tag.
func (c *Cached) TagKnown(ctx context.Context, tag string) (bool, error) {
	if err := c.ensure(ctx); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range c.byID {
		if r.HasTag(tag) {
			return true, nil
		}
	}
	return false, nil
}

// All returns every configured reason.
func (c *Cached) All(ctx context.Context) ([]ledger.Reason, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ledger.Reason, 0, len(c.byID))
	for _, r := range c.byID {
		out = append(out, r)
	}
	return out, nil
}

func (c *Cached) ensure(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.Refresh(ctx)
}
