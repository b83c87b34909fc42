/*
store.go - Persistence interfaces for cards, line items, and snapshots

PURPOSE:
  Defines the interface between the ledger engine and the database.
  Line items are APPEND-ONLY: no update or delete methods exist for them.
  Snapshots are derived state and may be rewritten, but only the reconciler
  does so.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - ledger/store: in-memory store for tests and dev mode

TRANSACTIONS:
  TxRunner brackets a reconciliation's read-modify-write cycle so readers
  observe either the pre- or fully-post-reconciliation state of a card,
  never a partially rewritten snapshot window.
*/
package ledger

import "context"

// =============================================================================
// CARD STORE
// =============================================================================

// CardStore persists stock cards keyed by their identity tuple.
type CardStore interface {
	// GetOrCreate returns the card for the identity, creating it if absent.
	// Atomic and idempotent: concurrent callers for the same tuple all
	// receive the same card.
	GetOrCreate(ctx context.Context, identity CardIdentity) (*StockCard, error)

	// Get returns a card by id, ErrCardNotFound if absent.
	Get(ctx context.Context, id CardID) (*StockCard, error)

	// FindByIdentity returns the card for a tuple, nil if none exists.
	FindByIdentity(ctx context.Context, identity CardIdentity) (*StockCard, error)

	// List returns all cards.
	List(ctx context.Context) ([]StockCard, error)
}

// =============================================================================
// LINE ITEM STORE - Append-only
// =============================================================================

// LineItemStore persists the immutable movement log.
type LineItemStore interface {
	// AppendBatch persists line items atomically. Either all succeed or none.
	// This is the ONLY write operation; items are never updated or deleted.
	AppendBatch(ctx context.Context, items []LineItem) error

	// AllForCardFrom returns a card's items with occurred date >= from,
	// in chronological order. A zero from returns the full history.
	AllForCardFrom(ctx context.Context, cardID CardID, from Date) ([]LineItem, error)

	// AllForCardBetween returns a card's items with occurred date in
	// [start, end], in chronological order.
	AllForCardBetween(ctx context.Context, cardID CardID, start, end Date) ([]LineItem, error)
}

// =============================================================================
// SNAPSHOT STORE - Derived, rewritable by the reconciler only
// =============================================================================

// SnapshotStore persists calculated end-of-day balances.
type SnapshotStore interface {
	// Upsert writes the balance for (card, date), replacing any prior value.
	// Never merges.
	Upsert(ctx context.Context, snap Snapshot) error

	// LatestAtOrBefore returns the newest snapshot with date <= the given
	// date, nil if none exists.
	LatestAtOrBefore(ctx context.Context, cardID CardID, date Date) (*Snapshot, error)

	// AllBetween returns snapshots with date in [start, end], ordered by date.
	AllBetween(ctx context.Context, cardID CardID, start, end Date) ([]Snapshot, error)

	// DeleteFrom removes all snapshots with date >= from. Used when a card's
	// snapshot window is rebuilt wholesale.
	DeleteFrom(ctx context.Context, cardID CardID, from Date) error
}

// =============================================================================
// BUNDLING
// =============================================================================

// Stores bundles the persistence surfaces the engine touches.
type Stores struct {
	Cards     CardStore
	Items     LineItemStore
	Snapshots SnapshotStore
}

// TxRunner executes fn within a storage transaction. The Stores passed to fn
// are bound to that transaction; if fn returns an error everything rolls back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(Stores) error) error
}

// =============================================================================
// REASON CATALOG - External collaborator, interface only
// =============================================================================

// ReasonCatalog looks up movement classifications. The catalog package
// provides a cached implementation; tests use in-memory maps.
type ReasonCatalog interface {
	// Reason returns the catalog entry, or ErrUnknownReason.
	Reason(ctx context.Context, id ReasonID) (*Reason, error)

	// Reasons resolves several ids in one call. Unknown ids are simply
	// absent from the result.
	Reasons(ctx context.Context, ids []ReasonID) (map[ReasonID]*Reason, error)

	// TagKnown reports whether any configured reason carries the tag.
	TagKnown(ctx context.Context, tag string) (bool, error)
}
