/*
reconcile.go - Bounded-window snapshot reconciliation

PURPOSE:
  Keeps the snapshot store consistent after any event batch touching a card,
  without replaying the card's entire history on every write.

ALGORITHM (per card, given newly accepted line items):
  1. earliestNew = minimum occurred date among the new items.
  2. Anchor = latest existing snapshot dated strictly before earliestNew.
     No anchor means replay from zero (the lazy-created empty card).
  3. Load every line item dated after the anchor, order chronologically,
     and replay from the anchor balance.
  4. Upsert one snapshot per replayed date, replacing prior values. Balances
     after the inserted dates can legitimately shift even though no new item
     exists on those exact days, because carried balances move.
  5. Snapshots at or before the anchor are untouched. Work is bounded by
     activity since the affected date, not full history.

CONCURRENCY:
  A reconciliation is a read-modify-write over a card's snapshot window.
  Callers must hold the card's exclusive lock (see service.go) and run the
  whole step inside one storage transaction so readers never observe a
  partially rewritten window. Batches touching different cards are fully
  independent.
*/
package ledger

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Reconciler re-materializes the snapshot window affected by new line items.
// It is a pure function of the card's line items plus the anchor snapshot;
// running it twice over the same accumulated items is a no-op.
type Reconciler struct {
	Catalog ReasonCatalog
	Log     logrus.FieldLogger
}

// Reconcile restores the snapshot invariant for one card after items dated
// earliestNew or later were appended. The given stores must be bound to the
// same transaction as the append itself.
func (r *Reconciler) Reconcile(ctx context.Context, st Stores, cardID CardID, earliestNew Date) error {
	anchor, err := st.Snapshots.LatestAtOrBefore(ctx, cardID, earliestNew.AddDays(-1))
	if err != nil {
		return err
	}

	var (
		startBalance int64
		from         Date
	)
	if anchor != nil {
		// The anchor balance already contains every item of the anchor day,
		// so the replay window starts the day after.
		startBalance = anchor.StockOnHand
		from = anchor.Date.AddDays(1)
	}

	items, err := st.Items.AllForCardFrom(ctx, cardID, from)
	if err != nil {
		return err
	}
	SortChronological(items)

	moves, err := r.resolveAll(ctx, items)
	if err != nil {
		return err
	}

	balances := Replay(startBalance, moves)
	for _, db := range balances {
		if err := st.Snapshots.Upsert(ctx, Snapshot{
			CardID:      cardID,
			Date:        db.Date,
			StockOnHand: db.StockOnHand,
		}); err != nil {
			return err
		}
	}

	if r.Log != nil {
		r.Log.WithFields(logrus.Fields{
			"card":      cardID,
			"from":      earliestNew.String(),
			"replayed":  len(items),
			"snapshots": len(balances),
		}).Debug("reconciled snapshot window")
	}
	return nil
}

// Rebuild discards every snapshot of a card and re-materializes them from
// the full line-item history. Used by maintenance tooling, not the hot path.
func (r *Reconciler) Rebuild(ctx context.Context, st Stores, cardID CardID) error {
	if err := st.Snapshots.DeleteFrom(ctx, cardID, Date{}); err != nil {
		return err
	}
	return r.Reconcile(ctx, st, cardID, Date{})
}

func (r *Reconciler) resolveAll(ctx context.Context, items []LineItem) ([]Movement, error) {
	ids := make([]ReasonID, 0, len(items))
	for _, item := range items {
		if item.ReasonID != "" {
			ids = append(ids, item.ReasonID)
		}
	}

	reasons := map[ReasonID]*Reason{}
	if len(ids) > 0 {
		var err error
		reasons, err = r.Catalog.Reasons(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	moves := make([]Movement, len(items))
	for i, item := range items {
		var reason *Reason
		if item.ReasonID != "" {
			var ok bool
			if reason, ok = reasons[item.ReasonID]; !ok {
				// Items are validated against the catalog at ingestion;
				// a miss here means the catalog lost an in-use reason.
				return nil, ErrUnknownReason
			}
		}
		moves[i] = Movement{Date: item.OccurredDate, Delta: Resolve(item, reason)}
	}
	return moves, nil
}
