package ledger_test

import (
	"testing"
	"time"

	"github.com/meridian/stockledger/ledger"
)

// =============================================================================
// REPLAY ENGINE TESTS
// =============================================================================

func TestReplay_Empty_NoBalances(t *testing.T) {
	if got := ledger.Replay(5, nil); got != nil {
		t.Errorf("expected nil for no movements, got %v", got)
	}
}

func TestReplay_OneBalancePerDay(t *testing.T) {
	// GIVEN: Three movements on Jan 1 and one on Jan 3
	// WHEN: Replayed from zero
	// THEN: Exactly two balances come out, one per distinct day,
	//       and only the end-of-day value of Jan 1 is visible

	jan1 := ledger.NewDate(2020, time.January, 1)
	jan3 := ledger.NewDate(2020, time.January, 3)

	balances := ledger.Replay(0, []ledger.Movement{
		{Date: jan1, Delta: ledger.Delta{Amount: 10}},
		{Date: jan1, Delta: ledger.Delta{Amount: -3}},
		{Date: jan1, Delta: ledger.Delta{Amount: 1}},
		{Date: jan3, Delta: ledger.Delta{Amount: -8}},
	})

	if len(balances) != 2 {
		t.Fatalf("expected 2 daily balances, got %d", len(balances))
	}
	if !balances[0].Date.Equal(jan1) || balances[0].StockOnHand != 8 {
		t.Errorf("expected Jan 1 = 8, got %s = %d", balances[0].Date, balances[0].StockOnHand)
	}
	if !balances[1].Date.Equal(jan3) || balances[1].StockOnHand != 0 {
		t.Errorf("expected Jan 3 = 0, got %s = %d", balances[1].Date, balances[1].StockOnHand)
	}
}

func TestReplay_StartsFromGivenBalance(t *testing.T) {
	jan5 := ledger.NewDate(2020, time.January, 5)

	balances := ledger.Replay(42, []ledger.Movement{
		{Date: jan5, Delta: ledger.Delta{Amount: -2}},
	})

	if balances[0].StockOnHand != 40 {
		t.Errorf("expected 40, got %d", balances[0].StockOnHand)
	}
}

func TestReplay_AbsoluteOverrideMidStream(t *testing.T) {
	// GIVEN: Additions, then a physical-inventory override, then more movement
	// WHEN: Replayed
	// THEN: The override discards the running value; later deltas build on it

	jan1 := ledger.NewDate(2020, time.January, 1)
	jan2 := ledger.NewDate(2020, time.January, 2)
	jan4 := ledger.NewDate(2020, time.January, 4)

	balances := ledger.Replay(0, []ledger.Movement{
		{Date: jan1, Delta: ledger.Delta{Amount: 100}},
		{Date: jan2, Delta: ledger.Delta{Amount: 7, Absolute: true}},
		{Date: jan4, Delta: ledger.Delta{Amount: -2}},
	})

	if len(balances) != 3 {
		t.Fatalf("expected 3 daily balances, got %d", len(balances))
	}
	if balances[1].StockOnHand != 7 {
		t.Errorf("expected override to 7, got %d", balances[1].StockOnHand)
	}
	if balances[2].StockOnHand != 5 {
		t.Errorf("expected 5 after override, got %d", balances[2].StockOnHand)
	}
}

func TestReplay_GapsProduceNoPairs(t *testing.T) {
	// Days without movements are the reader's carry-forward concern;
	// replay emits nothing for them.

	jan1 := ledger.NewDate(2020, time.January, 1)
	jan9 := ledger.NewDate(2020, time.January, 9)

	balances := ledger.Replay(0, []ledger.Movement{
		{Date: jan1, Delta: ledger.Delta{Amount: 1}},
		{Date: jan9, Delta: ledger.Delta{Amount: 1}},
	})

	if len(balances) != 2 {
		t.Fatalf("expected 2 balances across the gap, got %d", len(balances))
	}
}
