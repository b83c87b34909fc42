/*
aggregate.go - Range aggregate engine

PURPOSE:
  Answers two independent read shapes over a card and a [start, end] range:
  - Stockout days: days whose carried-forward balance is exactly zero.
  - Tagged amounts: summed magnitudes of line items grouped by reason tag.

CARRY-FORWARD RULE:
  A day's balance is the newest snapshot at or before it — no movement means
  the balance is unchanged. Days before the card's first known balance are
  undefined and excluded from the count, never assumed zero. A card with no
  recorded history at all carries a zero balance from inception, so every day
  in range counts as a stockout.

NEGATIVE BALANCES:
  Over-issue is a recordable state, not an invariant violation. A negative
  day is NOT a stockout day (the rule is "equals zero"); NegativeDays reports
  them separately so callers can apply their own policy.
*/
package ledger

// Aggregate is a card's read-side view over one date range, assembled by the
// service from the snapshot store and raw line items. All methods are pure.
type Aggregate struct {
	CardID CardID
	Start  Date
	End    Date

	// Snapshots holds every snapshot dated at or before End, ascending.
	Snapshots []Snapshot

	// Items holds the card's line items with occurred date in [Start, End].
	Items []LineItem

	// Reasons maps the reason ids referenced by Items to catalog entries.
	Reasons map[ReasonID]*Reason

	// HasLaterHistory is true when the card has line items dated after End.
	// Distinguishes "empty card" from "history starts after the range".
	HasLaterHistory bool
}

// StockoutDays counts days in [Start, End] whose carried-forward balance is
// exactly zero.
func (a *Aggregate) StockoutDays() int {
	return a.countDays(func(balance int64) bool { return balance == 0 })
}

// NegativeDays counts days in [Start, End] whose carried-forward balance is
// below zero.
func (a *Aggregate) NegativeDays() int {
	return a.countDays(func(balance int64) bool { return balance < 0 })
}

func (a *Aggregate) countDays(pred func(int64) bool) int {
	emptyCard := len(a.Snapshots) == 0 && !a.HasLaterHistory

	var (
		count   int
		idx     int
		balance int64
		defined bool
	)
	for d := a.Start; d.BeforeOrEqual(a.End); d = d.AddDays(1) {
		for idx < len(a.Snapshots) && a.Snapshots[idx].Date.BeforeOrEqual(d) {
			balance = a.Snapshots[idx].StockOnHand
			defined = true
			idx++
		}
		switch {
		case defined:
			if pred(balance) {
				count++
			}
		case emptyCard:
			// Lazy-created card with no movements ever: zero from inception.
			if pred(0) {
				count++
			}
		default:
			// Day precedes the first known balance: undefined, excluded.
		}
	}
	return count
}

// Amounts sums line-item magnitudes per distinct reason tag present in the
// range, in one pass. Tags not configured in the reason catalog never appear;
// a configured tag with no matching items is simply absent rather than zero.
func (a *Aggregate) Amounts() map[string]int64 {
	out := make(map[string]int64)
	for _, item := range a.Items {
		if item.ReasonID == "" {
			continue
		}
		reason, ok := a.Reasons[item.ReasonID]
		if !ok {
			continue
		}
		for _, tag := range reason.Tags {
			out[tag] += item.Quantity
		}
	}
	return out
}

// Amount is the single-tag case of Amounts. A tag with no matching line
// items yields 0.
func (a *Aggregate) Amount(tag string) int64 {
	var sum int64
	for _, item := range a.Items {
		if item.ReasonID == "" {
			continue
		}
		if reason, ok := a.Reasons[item.ReasonID]; ok && reason.HasTag(tag) {
			sum += item.Quantity
		}
	}
	return sum
}

// TagConfigured reports whether any reason referenced in the range carries
// the tag. Unconfigured tags are omitted from summaries, not reported as 0.
func (a *Aggregate) TagConfigured(tag string) bool {
	for _, reason := range a.Reasons {
		if reason.HasTag(tag) {
			return true
		}
	}
	return false
}
