// Package store provides in-memory implementations of the ledger
// persistence interfaces, for tests and dev mode.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meridian/stockledger/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements CardStore, LineItemStore, SnapshotStore and TxRunner.
type Memory struct {
	mu sync.RWMutex

	cardsByID       map[ledger.CardID]ledger.StockCard
	cardsByIdentity map[ledger.CardIdentity]ledger.CardID
	items           map[ledger.CardID][]ledger.LineItem
	snapshots       map[ledger.CardID][]ledger.Snapshot
}

func NewMemory() *Memory {
	return &Memory{
		cardsByID:       make(map[ledger.CardID]ledger.StockCard),
		cardsByIdentity: make(map[ledger.CardIdentity]ledger.CardID),
		items:           make(map[ledger.CardID][]ledger.LineItem),
		snapshots:       make(map[ledger.CardID][]ledger.Snapshot),
	}
}

// Stores returns the bundled interface view of this store.
func (m *Memory) Stores() ledger.Stores {
	return ledger.Stores{Cards: m, Items: m, Snapshots: m}
}

// =============================================================================
// CARD STORE
// =============================================================================

func (m *Memory) GetOrCreate(_ context.Context, identity ledger.CardIdentity) (*ledger.StockCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.cardsByIdentity[identity]; ok {
		card := m.cardsByID[id]
		return &card, nil
	}

	card := ledger.StockCard{
		ID:        ledger.NewCardID(),
		Identity:  identity,
		CreatedAt: time.Now().UTC(),
	}
	m.cardsByID[card.ID] = card
	m.cardsByIdentity[identity] = card.ID
	return &card, nil
}

func (m *Memory) Get(_ context.Context, id ledger.CardID) (*ledger.StockCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	card, ok := m.cardsByID[id]
	if !ok {
		return nil, ledger.ErrCardNotFound
	}
	return &card, nil
}

func (m *Memory) FindByIdentity(_ context.Context, identity ledger.CardIdentity) (*ledger.StockCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.cardsByIdentity[identity]
	if !ok {
		return nil, nil
	}
	card := m.cardsByID[id]
	return &card, nil
}

func (m *Memory) List(_ context.Context) ([]ledger.StockCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cards := make([]ledger.StockCard, 0, len(m.cardsByID))
	for _, card := range m.cardsByID {
		cards = append(cards, card)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

// =============================================================================
// LINE ITEM STORE - Append-only
// =============================================================================

func (m *Memory) AppendBatch(_ context.Context, items []ledger.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(items)
	return nil
}

func (m *Memory) appendLocked(items []ledger.LineItem) {
	for _, item := range items {
		existing := m.items[item.CardID]

		// Sorted insert keeps reads cheap: O(log n) search + one copy.
		i := sort.Search(len(existing), func(i int) bool {
			return ledger.Compare(existing[i], item) > 0
		})
		existing = append(existing, ledger.LineItem{})
		copy(existing[i+1:], existing[i:])
		existing[i] = item
		m.items[item.CardID] = existing
	}
}

func (m *Memory) AllForCardFrom(_ context.Context, cardID ledger.CardID, from ledger.Date) ([]ledger.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemsFromLocked(cardID, from), nil
}

func (m *Memory) itemsFromLocked(cardID ledger.CardID, from ledger.Date) []ledger.LineItem {
	var result []ledger.LineItem
	for _, item := range m.items[cardID] {
		if item.OccurredDate.AfterOrEqual(from) {
			result = append(result, item)
		}
	}
	return result
}

func (m *Memory) AllForCardBetween(_ context.Context, cardID ledger.CardID, start, end ledger.Date) ([]ledger.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.LineItem
	for _, item := range m.items[cardID] {
		if item.OccurredDate.AfterOrEqual(start) && item.OccurredDate.BeforeOrEqual(end) {
			result = append(result, item)
		}
	}
	return result, nil
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

func (m *Memory) Upsert(_ context.Context, snap ledger.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(snap)
	return nil
}

func (m *Memory) upsertLocked(snap ledger.Snapshot) {
	snaps := m.snapshots[snap.CardID]
	i := sort.Search(len(snaps), func(i int) bool {
		return snaps[i].Date.AfterOrEqual(snap.Date)
	})
	if i < len(snaps) && snaps[i].Date.Equal(snap.Date) {
		snaps[i] = snap
	} else {
		snaps = append(snaps, ledger.Snapshot{})
		copy(snaps[i+1:], snaps[i:])
		snaps[i] = snap
	}
	m.snapshots[snap.CardID] = snaps
}

func (m *Memory) LatestAtOrBefore(_ context.Context, cardID ledger.CardID, date ledger.Date) (*ledger.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestLocked(cardID, date), nil
}

func (m *Memory) latestLocked(cardID ledger.CardID, date ledger.Date) *ledger.Snapshot {
	snaps := m.snapshots[cardID]
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].Date.BeforeOrEqual(date) {
			snap := snaps[i]
			return &snap
		}
	}
	return nil
}

func (m *Memory) AllBetween(_ context.Context, cardID ledger.CardID, start, end ledger.Date) ([]ledger.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Snapshot
	for _, snap := range m.snapshots[cardID] {
		if snap.Date.AfterOrEqual(start) && snap.Date.BeforeOrEqual(end) {
			result = append(result, snap)
		}
	}
	return result, nil
}

func (m *Memory) DeleteFrom(_ context.Context, cardID ledger.CardID, from ledger.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := m.snapshots[cardID]
	kept := snaps[:0]
	for _, snap := range snaps {
		if snap.Date.Before(from) {
			kept = append(kept, snap)
		}
	}
	m.snapshots[cardID] = kept
	return nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx executes fn against a transactional view. On error the pre-call
// state is restored, simulating a rollback.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.checkpoint()
	view := &txView{parent: m}

	if err := fn(ledger.Stores{Cards: view, Items: view, Snapshots: view}); err != nil {
		m.restore(saved)
		return err
	}
	return nil
}

type memoryCheckpoint struct {
	items     map[ledger.CardID][]ledger.LineItem
	snapshots map[ledger.CardID][]ledger.Snapshot
}

func (m *Memory) checkpoint() memoryCheckpoint {
	itemsCopy := make(map[ledger.CardID][]ledger.LineItem, len(m.items))
	for k, v := range m.items {
		itemsCopy[k] = append([]ledger.LineItem{}, v...)
	}
	snapsCopy := make(map[ledger.CardID][]ledger.Snapshot, len(m.snapshots))
	for k, v := range m.snapshots {
		snapsCopy[k] = append([]ledger.Snapshot{}, v...)
	}
	return memoryCheckpoint{items: itemsCopy, snapshots: snapsCopy}
}

func (m *Memory) restore(c memoryCheckpoint) {
	m.items = c.items
	m.snapshots = c.snapshots
}

// txView accesses the parent's data without re-locking; the parent holds the
// write lock for the duration of WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) GetOrCreate(_ context.Context, identity ledger.CardIdentity) (*ledger.StockCard, error) {
	if id, ok := tv.parent.cardsByIdentity[identity]; ok {
		card := tv.parent.cardsByID[id]
		return &card, nil
	}
	card := ledger.StockCard{
		ID:        ledger.NewCardID(),
		Identity:  identity,
		CreatedAt: time.Now().UTC(),
	}
	tv.parent.cardsByID[card.ID] = card
	tv.parent.cardsByIdentity[identity] = card.ID
	return &card, nil
}

func (tv *txView) Get(_ context.Context, id ledger.CardID) (*ledger.StockCard, error) {
	card, ok := tv.parent.cardsByID[id]
	if !ok {
		return nil, ledger.ErrCardNotFound
	}
	return &card, nil
}

func (tv *txView) FindByIdentity(_ context.Context, identity ledger.CardIdentity) (*ledger.StockCard, error) {
	id, ok := tv.parent.cardsByIdentity[identity]
	if !ok {
		return nil, nil
	}
	card := tv.parent.cardsByID[id]
	return &card, nil
}

func (tv *txView) List(ctx context.Context) ([]ledger.StockCard, error) {
	cards := make([]ledger.StockCard, 0, len(tv.parent.cardsByID))
	for _, card := range tv.parent.cardsByID {
		cards = append(cards, card)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

func (tv *txView) AppendBatch(_ context.Context, items []ledger.LineItem) error {
	tv.parent.appendLocked(items)
	return nil
}

func (tv *txView) AllForCardFrom(_ context.Context, cardID ledger.CardID, from ledger.Date) ([]ledger.LineItem, error) {
	return tv.parent.itemsFromLocked(cardID, from), nil
}

func (tv *txView) AllForCardBetween(_ context.Context, cardID ledger.CardID, start, end ledger.Date) ([]ledger.LineItem, error) {
	var result []ledger.LineItem
	for _, item := range tv.parent.items[cardID] {
		if item.OccurredDate.AfterOrEqual(start) && item.OccurredDate.BeforeOrEqual(end) {
			result = append(result, item)
		}
	}
	return result, nil
}

func (tv *txView) Upsert(_ context.Context, snap ledger.Snapshot) error {
	tv.parent.upsertLocked(snap)
	return nil
}

func (tv *txView) LatestAtOrBefore(_ context.Context, cardID ledger.CardID, date ledger.Date) (*ledger.Snapshot, error) {
	return tv.parent.latestLocked(cardID, date), nil
}

func (tv *txView) AllBetween(_ context.Context, cardID ledger.CardID, start, end ledger.Date) ([]ledger.Snapshot, error) {
	var result []ledger.Snapshot
	for _, snap := range tv.parent.snapshots[cardID] {
		if snap.Date.AfterOrEqual(start) && snap.Date.BeforeOrEqual(end) {
			result = append(result, snap)
		}
	}
	return result, nil
}

func (tv *txView) DeleteFrom(_ context.Context, cardID ledger.CardID, from ledger.Date) error {
	snaps := tv.parent.snapshots[cardID]
	kept := snaps[:0]
	for _, snap := range snaps {
		if snap.Date.Before(from) {
			kept = append(kept, snap)
		}
	}
	tv.parent.snapshots[cardID] = kept
	return nil
}
