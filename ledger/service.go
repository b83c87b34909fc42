/*
service.go - Engine facade

PURPOSE:
  Wires the resolver, orderer, replay engine, reconciler, and aggregate
  engine behind the three operations the host service consumes:

    Ingest(batch)                       accept movements, reconcile snapshots
    StockOnHandAsOf(card, date)         point-in-time balance
    RangeSummary(card, start, end, tag) stockout days + tagged amounts

INGESTION FLOW:
  1. Validate every line item (classification, quantity, dates, known
     reason). The batch fails atomically: one bad item rejects them all,
     before any mutation.
  2. Stamp accept-time metadata (ids, recorded time, tie-break sequence).
  3. Lock the touched cards in deterministic order.
  4. In one storage transaction: append the items, then reconcile each
     touched card's snapshot window.

LOCKING:
  Two concurrent batches touching the same card must not interleave their
  read-modify-write cycles, or a lost update corrupts the snapshot
  invariant. The service holds an exclusive per-card mutex for the whole of
  the append+reconcile step; batches for disjoint cards run in parallel.
  Locks are acquired in sorted card order so multi-card batches cannot
  deadlock each other.
*/
package ledger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	stores  Stores
	tx      TxRunner
	catalog ReasonCatalog
	recon   *Reconciler
	log     logrus.FieldLogger

	locks cardLocks
	seq   atomic.Uint64
}

func NewService(stores Stores, tx TxRunner, catalog ReasonCatalog, log logrus.FieldLogger) *Service {
	return &Service{
		stores:  stores,
		tx:      tx,
		catalog: catalog,
		recon:   &Reconciler{Catalog: catalog, Log: log},
		log:     log,
	}
}

// =============================================================================
// CARD LIFECYCLE
// =============================================================================

// GetOrCreateCard returns the card for an identity tuple, creating it on
// first use. Lookup-or-create is atomic and idempotent; a genuine duplicate
// insert surfaces as an IdentityConflictError for the caller to retry.
func (s *Service) GetOrCreateCard(ctx context.Context, identity CardIdentity) (*StockCard, error) {
	return s.stores.Cards.GetOrCreate(ctx, identity)
}

func (s *Service) Card(ctx context.Context, id CardID) (*StockCard, error) {
	return s.stores.Cards.Get(ctx, id)
}

func (s *Service) Cards(ctx context.Context) ([]StockCard, error) {
	return s.stores.Cards.List(ctx)
}

// LineItems returns a card's full movement history in chronological order.
func (s *Service) LineItems(ctx context.Context, cardID CardID) ([]LineItem, error) {
	if _, err := s.stores.Cards.Get(ctx, cardID); err != nil {
		return nil, err
	}
	items, err := s.stores.Items.AllForCardFrom(ctx, cardID, Date{})
	if err != nil {
		return nil, err
	}
	SortChronological(items)
	return items, nil
}

// =============================================================================
// INGESTION
// =============================================================================

// Ingest accepts an event batch, appends its line items, and restores the
// snapshot invariant for every touched card. All-or-nothing: a validation
// failure leaves no trace of the batch.
func (s *Service) Ingest(ctx context.Context, batch EventBatch) error {
	if len(batch.Items) == 0 {
		return ErrEmptyBatch
	}
	if err := s.validateBatch(ctx, batch.Items); err != nil {
		return err
	}

	items := s.stampBatch(batch)

	byCard := make(map[CardID]Date)
	for _, item := range items {
		if earliest, ok := byCard[item.CardID]; !ok || item.OccurredDate.Before(earliest) {
			byCard[item.CardID] = item.OccurredDate
		}
	}
	cardIDs := sortedCardIDs(byCard)

	for _, id := range cardIDs {
		if _, err := s.stores.Cards.Get(ctx, id); err != nil {
			return err
		}
	}

	unlock := s.locks.lockAll(cardIDs)
	defer unlock()

	err := s.tx.WithTx(ctx, func(st Stores) error {
		if err := st.Items.AppendBatch(ctx, items); err != nil {
			return err
		}
		for _, id := range cardIDs {
			if err := s.recon.Reconcile(ctx, st, id, byCard[id]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.log != nil {
		s.log.WithFields(logrus.Fields{
			"event": items[0].EventID,
			"items": len(items),
			"cards": len(cardIDs),
		}).Info("ingested stock event")
	}
	return nil
}

// Rebuild discards and re-derives every snapshot of a card from its full
// history. Maintenance operation; ingestion never needs it.
func (s *Service) Rebuild(ctx context.Context, cardID CardID) error {
	if _, err := s.stores.Cards.Get(ctx, cardID); err != nil {
		return err
	}
	unlock := s.locks.lockAll([]CardID{cardID})
	defer unlock()

	return s.tx.WithTx(ctx, func(st Stores) error {
		return s.recon.Rebuild(ctx, st, cardID)
	})
}

func (s *Service) validateBatch(ctx context.Context, items []LineItem) error {
	ids := make([]ReasonID, 0, len(items))
	for _, item := range items {
		if item.ReasonID != "" {
			ids = append(ids, item.ReasonID)
		}
	}
	var reasons map[ReasonID]*Reason
	if len(ids) > 0 {
		var err error
		reasons, err = s.catalog.Reasons(ctx, ids)
		if err != nil {
			return err
		}
	}

	for i, item := range items {
		switch {
		case !item.Classified():
			return &BatchValidationError{Index: i, Cause: ErrUnclassifiedLineItem}
		case item.Quantity < 0:
			return &BatchValidationError{Index: i, Cause: ErrInvalidQuantity}
		case item.OccurredDate.IsZero():
			return &BatchValidationError{Index: i, Cause: ErrMissingOccurredDate}
		}
		if item.ReasonID != "" {
			if _, ok := reasons[item.ReasonID]; !ok {
				return &BatchValidationError{Index: i, Cause: ErrUnknownReason}
			}
		}
	}
	return nil
}

// stampBatch assigns accept-time metadata. The sequence counter is
// per-process; items from different processes or restarts are already
// separated by RecordedAt, so the counter only disambiguates within a batch.
func (s *Service) stampBatch(batch EventBatch) []LineItem {
	eventID := batch.ID
	if eventID == "" {
		eventID = NewEventID()
	}
	recordedAt := batch.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	items := make([]LineItem, len(batch.Items))
	for i, item := range batch.Items {
		if item.ID == "" {
			item.ID = NewLineItemID()
		}
		item.EventID = eventID
		item.RecordedAt = recordedAt
		item.Sequence = s.seq.Add(1)
		if item.DocumentRef == "" {
			item.DocumentRef = batch.DocumentRef
		}
		items[i] = item
	}
	return items
}

// =============================================================================
// READS
// =============================================================================

// StockOnHandAsOf returns the balance from the latest snapshot dated at or
// before the given date. A card with no snapshot yet is at zero — the
// documented state of a lazily created, never-moved card.
func (s *Service) StockOnHandAsOf(ctx context.Context, cardID CardID, date Date) (int64, error) {
	if _, err := s.stores.Cards.Get(ctx, cardID); err != nil {
		return 0, err
	}
	snap, err := s.stores.Snapshots.LatestAtOrBefore(ctx, cardID, date)
	if err != nil {
		return 0, err
	}
	if snap == nil {
		return 0, nil
	}
	return snap.StockOnHand, nil
}

// RangeSummary bundles the range aggregate answers for one card.
type RangeSummary struct {
	CardID       CardID
	Start        Date
	End          Date
	StockoutDays int
	NegativeDays int
	TagAmounts   map[string]int64
}

// RangeSummaryFor computes stockout days and tagged amounts over
// [start, end]. Pass tag == "" for all tags present in the range; a named
// tag unknown to the reason catalog is omitted from the result, not zero.
func (s *Service) RangeSummaryFor(ctx context.Context, cardID CardID, start, end Date, tag string) (*RangeSummary, error) {
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	if _, err := s.stores.Cards.Get(ctx, cardID); err != nil {
		return nil, err
	}

	agg, err := s.buildAggregate(ctx, cardID, start, end)
	if err != nil {
		return nil, err
	}

	summary := &RangeSummary{
		CardID:       cardID,
		Start:        start,
		End:          end,
		StockoutDays: agg.StockoutDays(),
		NegativeDays: agg.NegativeDays(),
	}

	if tag == "" {
		summary.TagAmounts = agg.Amounts()
		return summary, nil
	}

	summary.TagAmounts = make(map[string]int64)
	known, err := s.catalog.TagKnown(ctx, tag)
	if err != nil {
		return nil, err
	}
	if known {
		summary.TagAmounts[tag] = agg.Amount(tag)
	}
	return summary, nil
}

func (s *Service) buildAggregate(ctx context.Context, cardID CardID, start, end Date) (*Aggregate, error) {
	snaps, err := s.stores.Snapshots.AllBetween(ctx, cardID, Date{}, end)
	if err != nil {
		return nil, err
	}
	items, err := s.stores.Items.AllForCardBetween(ctx, cardID, start, end)
	if err != nil {
		return nil, err
	}
	later, err := s.stores.Items.AllForCardFrom(ctx, cardID, end.AddDays(1))
	if err != nil {
		return nil, err
	}

	ids := make([]ReasonID, 0, len(items))
	for _, item := range items {
		if item.ReasonID != "" {
			ids = append(ids, item.ReasonID)
		}
	}
	reasons := map[ReasonID]*Reason{}
	if len(ids) > 0 {
		if reasons, err = s.catalog.Reasons(ctx, ids); err != nil {
			return nil, err
		}
	}

	return &Aggregate{
		CardID:          cardID,
		Start:           start,
		End:             end,
		Snapshots:       snaps,
		Items:           items,
		Reasons:         reasons,
		HasLaterHistory: len(later) > 0,
	}, nil
}

// =============================================================================
// PER-CARD LOCKS
// =============================================================================

type cardLocks struct {
	mu sync.Mutex
	m  map[CardID]*sync.Mutex
}

func (cl *cardLocks) get(id CardID) *sync.Mutex {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.m == nil {
		cl.m = make(map[CardID]*sync.Mutex)
	}
	lock, ok := cl.m[id]
	if !ok {
		lock = &sync.Mutex{}
		cl.m[id] = lock
	}
	return lock
}

// lockAll acquires the locks for the given cards, which must already be in
// sorted order, and returns a function releasing them in reverse.
func (cl *cardLocks) lockAll(ids []CardID) func() {
	locks := make([]*sync.Mutex, len(ids))
	for i, id := range ids {
		locks[i] = cl.get(id)
		locks[i].Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func sortedCardIDs(byCard map[CardID]Date) []CardID {
	ids := make([]CardID, 0, len(byCard))
	for id := range byCard {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
