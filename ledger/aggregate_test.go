package ledger_test

import (
	"testing"
	"time"

	"github.com/meridian/stockledger/ledger"
)

// =============================================================================
// RANGE AGGREGATE TESTS (pure, no stores)
// =============================================================================

func feb(day int) ledger.Date { return ledger.NewDate(2020, time.February, day) }

func TestAggregate_CarryForwardAcrossSnapshotGaps(t *testing.T) {
	// GIVEN: Snapshots on Feb 1 (0) and Feb 5 (3) only
	// WHEN: Counting stockout days over Feb 1-7
	// THEN: Feb 1-4 carry the zero; Feb 5-7 carry the three

	agg := &ledger.Aggregate{
		Start: feb(1),
		End:   feb(7),
		Snapshots: []ledger.Snapshot{
			{CardID: "c", Date: feb(1), StockOnHand: 0},
			{CardID: "c", Date: feb(5), StockOnHand: 3},
		},
	}

	if got := agg.StockoutDays(); got != 4 {
		t.Errorf("expected 4 stockout days, got %d", got)
	}
	if got := agg.NegativeDays(); got != 0 {
		t.Errorf("expected 0 negative days, got %d", got)
	}
}

func TestAggregate_NegativeIsNotStockout(t *testing.T) {
	agg := &ledger.Aggregate{
		Start: feb(1),
		End:   feb(3),
		Snapshots: []ledger.Snapshot{
			{CardID: "c", Date: feb(1), StockOnHand: -2},
		},
	}

	if got := agg.StockoutDays(); got != 0 {
		t.Errorf("negative days must not count as stockouts, got %d", got)
	}
	if got := agg.NegativeDays(); got != 3 {
		t.Errorf("expected 3 negative days, got %d", got)
	}
}

func TestAggregate_HistoryAfterRange_DaysUndefined(t *testing.T) {
	// A card whose first snapshot lies beyond the range has no defined
	// balance inside it; nothing counts, because zero is never assumed.

	agg := &ledger.Aggregate{
		Start:           feb(1),
		End:             feb(5),
		HasLaterHistory: true,
	}

	if got := agg.StockoutDays(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestAggregate_SnapshotBeforeRange_DefinesOpeningBalance(t *testing.T) {
	agg := &ledger.Aggregate{
		Start: feb(10),
		End:   feb(12),
		Snapshots: []ledger.Snapshot{
			{CardID: "c", Date: feb(3), StockOnHand: 0},
		},
	}

	if got := agg.StockoutDays(); got != 3 {
		t.Errorf("carried zero must cover the whole range, got %d", got)
	}
}

func TestAggregate_Amounts_GroupsByEveryTagOfTheReason(t *testing.T) {
	// A reason carrying two tags contributes its magnitude to both.

	multi := &ledger.Reason{ID: "adj", Type: ledger.ReasonDebit, Tags: []string{"issue", "wastage"}}
	agg := &ledger.Aggregate{
		Start: feb(1),
		End:   feb(5),
		Items: []ledger.LineItem{
			{ReasonID: "adj", Quantity: 6, OccurredDate: feb(2)},
		},
		Reasons: map[ledger.ReasonID]*ledger.Reason{"adj": multi},
	}

	amounts := agg.Amounts()
	if amounts["issue"] != 6 || amounts["wastage"] != 6 {
		t.Errorf("expected both tags at 6, got %v", amounts)
	}
}

func TestAggregate_TransferLines_NotTagged(t *testing.T) {
	// Source/destination lines carry no reason and therefore no tags.

	agg := &ledger.Aggregate{
		Start: feb(1),
		End:   feb(5),
		Items: []ledger.LineItem{
			{SourceID: "w-a", Quantity: 9, OccurredDate: feb(2)},
		},
		Reasons: map[ledger.ReasonID]*ledger.Reason{},
	}

	if amounts := agg.Amounts(); len(amounts) != 0 {
		t.Errorf("expected no tagged amounts, got %v", amounts)
	}
}
