package ledger_test

import (
	"testing"

	"github.com/meridian/stockledger/ledger"
)

// =============================================================================
// SIGNED QUANTITY RESOLUTION TESTS
// =============================================================================

func creditReason() *ledger.Reason {
	return &ledger.Reason{ID: "r-credit", Name: "Receipt", Type: ledger.ReasonCredit}
}

func debitReason() *ledger.Reason {
	return &ledger.Reason{ID: "r-debit", Name: "Issue", Type: ledger.ReasonDebit}
}

func adjustmentReason() *ledger.Reason {
	return &ledger.Reason{ID: "r-adjust", Name: "Physical Inventory", Type: ledger.ReasonBalanceAdjustment}
}

func TestResolve_CreditReason_PositiveContribution(t *testing.T) {
	item := ledger.LineItem{Quantity: 10, ReasonID: "r-credit"}

	d := ledger.Resolve(item, creditReason())

	if d.Absolute {
		t.Fatal("credit should not be absolute")
	}
	if d.Amount != 10 {
		t.Errorf("expected +10, got %d", d.Amount)
	}
}

func TestResolve_DebitReason_NegativeContribution(t *testing.T) {
	item := ledger.LineItem{Quantity: 10, ReasonID: "r-debit"}

	d := ledger.Resolve(item, debitReason())

	if d.Amount != -10 {
		t.Errorf("expected -10, got %d", d.Amount)
	}
}

func TestResolve_BalanceAdjustment_ReplacesBalance(t *testing.T) {
	// GIVEN: A physical-inventory line with quantity 7
	// WHEN: Applied to any running balance
	// THEN: The balance becomes 7 regardless of its prior value

	item := ledger.LineItem{Quantity: 7, ReasonID: "r-adjust"}

	d := ledger.Resolve(item, adjustmentReason())

	if !d.Absolute {
		t.Fatal("balance adjustment must be absolute")
	}
	if got := d.Apply(100); got != 7 {
		t.Errorf("expected balance 7 after adjustment, got %d", got)
	}
	if got := d.Apply(-3); got != 7 {
		t.Errorf("expected balance 7 after adjustment, got %d", got)
	}
}

func TestResolve_DestinationOnly_StockLeaves(t *testing.T) {
	item := ledger.LineItem{Quantity: 4, DestinationID: "warehouse-b"}

	d := ledger.Resolve(item, nil)

	if d.Amount != -4 {
		t.Errorf("expected -4 for destination line, got %d", d.Amount)
	}
}

func TestResolve_SourceOnly_StockArrives(t *testing.T) {
	item := ledger.LineItem{Quantity: 4, SourceID: "warehouse-a"}

	d := ledger.Resolve(item, nil)

	if d.Amount != 4 {
		t.Errorf("expected +4 for source line, got %d", d.Amount)
	}
}

func TestDelta_Apply_Additive(t *testing.T) {
	if got := (ledger.Delta{Amount: -3}).Apply(10); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if got := (ledger.Delta{Amount: 5}).Apply(-2); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

func TestSignedQuantity_MatchesResolveAmount(t *testing.T) {
	item := ledger.LineItem{Quantity: 6, ReasonID: "r-debit"}

	if got := ledger.SignedQuantity(item, debitReason()); got != -6 {
		t.Errorf("expected -6, got %d", got)
	}
}
