package ledger

// =============================================================================
// SIGNED QUANTITY RESOLVER
// =============================================================================

// Delta is the resolved contribution of a line item to a running balance:
// either a signed amount to add, or an absolute value that replaces the
// balance outright (physical-inventory adjustments).
type Delta struct {
	Amount   int64
	Absolute bool
}

// Apply folds the delta into a running balance.
func (d Delta) Apply(balance int64) int64 {
	if d.Absolute {
		return d.Amount
	}
	return balance + d.Amount
}

// Resolve maps a line item's classification to its balance contribution:
//
//	reason CREDIT             -> +quantity
//	reason DEBIT              -> -quantity
//	reason BALANCE_ADJUSTMENT -> balance := quantity
//	destination present       -> -quantity (stock leaving)
//	source present            -> +quantity (stock arriving)
//
// Resolve is total over valid input: unclassified items are rejected at
// ingestion and never reach it. The reason argument is the catalog entry for
// item.ReasonID, nil when the item is classified by source or destination.
func Resolve(item LineItem, reason *Reason) Delta {
	if reason != nil {
		switch reason.Type {
		case ReasonBalanceAdjustment:
			return Delta{Amount: item.Quantity, Absolute: true}
		case ReasonDebit:
			return Delta{Amount: -item.Quantity}
		default:
			return Delta{Amount: item.Quantity}
		}
	}
	if item.DestinationID != "" {
		return Delta{Amount: -item.Quantity}
	}
	return Delta{Amount: item.Quantity}
}

// SignedQuantity is the non-absolute signed value of a line item, used by
// range aggregation. Balance-adjustment lines have no additive meaning and
// resolve to their raw magnitude.
func SignedQuantity(item LineItem, reason *Reason) int64 {
	d := Resolve(item, reason)
	return d.Amount
}
