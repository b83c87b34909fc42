package ledger

// =============================================================================
// REPLAY ENGINE - Fold ordered movements into end-of-day balances
// =============================================================================

// Movement is a line item reduced to what replay needs: the day it happened
// and its resolved balance contribution.
type Movement struct {
	Date  Date
	Delta Delta
}

// Replay folds movements, already in chronological order, into one balance
// per distinct calendar day, starting from startingBalance.
//
// Only the last balance of each day is emitted — intra-day intermediate
// values are never materialized. Days with no movements produce no pair;
// carrying balances across gaps is the reader's job, not replay's.
func Replay(startingBalance int64, moves []Movement) []DailyBalance {
	if len(moves) == 0 {
		return nil
	}

	var out []DailyBalance
	running := startingBalance
	day := moves[0].Date

	for _, m := range moves {
		if !m.Date.Equal(day) {
			out = append(out, DailyBalance{Date: day, StockOnHand: running})
			day = m.Date
		}
		running = m.Delta.Apply(running)
	}
	out = append(out, DailyBalance{Date: day, StockOnHand: running})

	return out
}
