/*
Package ledger provides the stock ledger and stock-on-hand calculation engine.

PURPOSE:
  This package turns an append-only log of stock movement events into a
  consistent, queryable running balance per stock card, and answers
  point-in-time and range aggregate questions over it.

KEY CONCEPTS IN THIS FILE (types.go):
  - StockCard: the per-(facility, program, orderable, lot) running account
  - LineItem: one immutable recorded movement affecting a card
  - Snapshot: a materialized end-of-day balance, re-derivable from line items
  - Reason: catalog entry classifying a movement (credit/debit/adjustment, tags)

DESIGN PRINCIPLES:
  1. Immutability: line items are never mutated or deleted; corrections are
     made by appending new line items.
  2. Derivation: snapshots are a cache. At any time a snapshot must equal the
     balance produced by replaying every line item up to its date.
  3. Flat records: line items are plain data. Classification and arithmetic
     live in stateless functions (resolver.go, replay.go), not on the record.

SEE ALSO:
  - resolver.go: signed quantity resolution
  - order.go:    chronological total order
  - replay.go:   end-of-day balance replay
  - reconcile.go: bounded-window snapshot reconciliation
  - aggregate.go: stockout days and tagged amount sums
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CardID string
type LineItemID string
type EventID string
type ReasonID string

func NewCardID() CardID         { return CardID(uuid.NewString()) }
func NewLineItemID() LineItemID { return LineItemID(uuid.NewString()) }
func NewEventID() EventID       { return EventID(uuid.NewString()) }
func NewReasonID() ReasonID     { return ReasonID(uuid.NewString()) }

// =============================================================================
// STOCK CARD - One ledger per identity tuple
// =============================================================================

// CardIdentity is the unique key of a stock card. Lot is optional; the empty
// string means the card tracks the orderable without lot granularity.
type CardIdentity struct {
	FacilityID  string
	ProgramID   string
	OrderableID string
	LotID       string
}

// StockCard is the per-identity running account of quantity on hand.
// Cards are created lazily on the first event for their identity tuple and
// never deleted. Exactly one card exists per tuple; creating a second is a
// conflict, never a silent merge.
type StockCard struct {
	ID        CardID
	Identity  CardIdentity
	CreatedAt time.Time
}

// =============================================================================
// REASON - Movement classification from the reason catalog
// =============================================================================

type ReasonType string

const (
	ReasonCredit ReasonType = "credit"
	ReasonDebit  ReasonType = "debit"

	// ReasonBalanceAdjustment marks physical-inventory style lines: the
	// quantity sets the balance directly instead of adding to it.
	ReasonBalanceAdjustment ReasonType = "balance_adjustment"
)

// Reason classifies a movement and carries reporting tags.
type Reason struct {
	ID   ReasonID
	Name string
	Type ReasonType
	Tags []string
}

func (r Reason) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// =============================================================================
// LINE ITEM - Immutable movement record
// =============================================================================

// LineItem is one recorded stock movement. Exactly one of ReasonID, SourceID,
// DestinationID classifies it; Quantity is a non-negative magnitude whose
// sign is derived by the resolver.
//
// OccurredDate is when the movement happened in the real world; RecordedAt is
// when the system accepted it. Sequence is a monotonic accept-time counter
// used only to break ties between items sharing both dates — it carries no
// causal meaning across days.
type LineItem struct {
	ID      LineItemID
	CardID  CardID
	EventID EventID

	Quantity int64

	ReasonID      ReasonID
	SourceID      string
	DestinationID string

	OccurredDate Date
	RecordedAt   time.Time
	Sequence     uint64

	DocumentRef string
}

// Classified reports whether the item carries any classification at all.
// Unclassified items are rejected at ingestion and never reach the ledger.
func (li LineItem) Classified() bool {
	return li.ReasonID != "" || li.SourceID != "" || li.DestinationID != ""
}

// =============================================================================
// EVENT BATCH - Atomic set of line items submitted together
// =============================================================================

// EventBatch is a set of line items accepted as a unit. The batch is
// all-or-nothing: if any item fails validation, none are persisted. Once
// accepted, its items are distributed across the cards they belong to.
type EventBatch struct {
	ID          EventID
	DocumentRef string
	Items       []LineItem
	RecordedAt  time.Time
}

// =============================================================================
// SNAPSHOT - Materialized end-of-day balance
// =============================================================================

// Snapshot holds the running balance of a card as of the end of Date.
// Snapshots are derived state: the reconciler creates and overwrites them,
// and nothing else does. At most one snapshot exists per (card, date).
type Snapshot struct {
	CardID      CardID
	Date        Date
	StockOnHand int64
}

// DailyBalance is one (date, end-of-day balance) pair produced by replay.
type DailyBalance struct {
	Date        Date
	StockOnHand int64
}
