package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/stockledger/ledger"
	"github.com/meridian/stockledger/ledger/store"
)

func day(d int) ledger.Date { return ledger.NewDate(2020, time.April, d) }

func TestMemory_GetOrCreate_Idempotent(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	identity := ledger.CardIdentity{FacilityID: "f", ProgramID: "p", OrderableID: "o"}

	first, err := mem.GetOrCreate(ctx, identity)
	require.NoError(t, err)
	second, err := mem.GetOrCreate(ctx, identity)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same identity must yield the same card")
}

func TestMemory_AppendBatch_KeepsChronologicalOrder(t *testing.T) {
	// Items appended out of order come back sorted by the replay key.

	mem := store.NewMemory()
	ctx := context.Background()

	at := time.Date(2020, time.April, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, mem.AppendBatch(ctx, []ledger.LineItem{
		{ID: "late", CardID: "c", OccurredDate: day(8), RecordedAt: at, Sequence: 2},
	}))
	require.NoError(t, mem.AppendBatch(ctx, []ledger.LineItem{
		{ID: "early", CardID: "c", OccurredDate: day(2), RecordedAt: at, Sequence: 3},
	}))

	items, err := mem.AllForCardFrom(ctx, "c", ledger.Date{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, ledger.LineItemID("early"), items[0].ID)
}

func TestMemory_SnapshotQueries(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	for _, snap := range []ledger.Snapshot{
		{CardID: "c", Date: day(1), StockOnHand: 10},
		{CardID: "c", Date: day(5), StockOnHand: 3},
	} {
		require.NoError(t, mem.Upsert(ctx, snap))
	}

	latest, err := mem.LatestAtOrBefore(ctx, "c", day(4))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(10), latest.StockOnHand)

	none, err := mem.LatestAtOrBefore(ctx, "c", day(1).AddDays(-1))
	require.NoError(t, err)
	assert.Nil(t, none)

	// Upsert replaces, never merges.
	require.NoError(t, mem.Upsert(ctx, ledger.Snapshot{CardID: "c", Date: day(5), StockOnHand: 7}))
	between, err := mem.AllBetween(ctx, "c", day(1), day(9))
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, int64(7), between[1].StockOnHand)

	require.NoError(t, mem.DeleteFrom(ctx, "c", day(5)))
	between, err = mem.AllBetween(ctx, "c", day(1), day(9))
	require.NoError(t, err)
	assert.Len(t, between, 1)
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that appends an item and upserts a snapshot
	// WHEN: The function returns an error
	// THEN: Neither write survives

	mem := store.NewMemory()
	ctx := context.Background()

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(st ledger.Stores) error {
		if err := st.Items.AppendBatch(ctx, []ledger.LineItem{
			{ID: "x", CardID: "c", OccurredDate: day(1)},
		}); err != nil {
			return err
		}
		if err := st.Snapshots.Upsert(ctx, ledger.Snapshot{CardID: "c", Date: day(1), StockOnHand: 5}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	items, err := mem.AllForCardFrom(ctx, "c", ledger.Date{})
	require.NoError(t, err)
	assert.Empty(t, items)

	snap, err := mem.LatestAtOrBefore(ctx, "c", day(9))
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestMemory_WithTx_CommitsOnSuccess(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	err := mem.WithTx(ctx, func(st ledger.Stores) error {
		return st.Items.AppendBatch(ctx, []ledger.LineItem{
			{ID: "x", CardID: "c", OccurredDate: day(1)},
		})
	})
	require.NoError(t, err)

	items, err := mem.AllForCardFrom(ctx, "c", ledger.Date{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
