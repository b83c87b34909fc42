/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

INTERFACES IMPLEMENTED:
  ledger.CardStore:     stock card identity and lookup-or-create
  ledger.LineItemStore: append-only movement log
  ledger.SnapshotStore: calculated stock on hand
  ledger.TxRunner:      transactional reconciliation windows
  catalog.Store:        reason catalog persistence

APPEND-ONLY ENFORCEMENT:
  stock_card_line_items has no UPDATE or DELETE path. Corrections are
  appended as new line items; history is never rewritten.

KEY TABLES:
  stock_cards:              one row per identity tuple (UNIQUE enforced)
  stock_card_line_items:    immutable movement log
  calculated_stock_on_hand: one derived balance per (card, date)
  stock_reasons:            movement classification catalog

CONCURRENCY:
  Opened in WAL mode so readers don't block the single writer. WithTx wraps
  a reconciliation's read-modify-write cycle in one database transaction, so
  readers observe either the pre- or fully-post-reconciliation state of a
  card, never a half-rewritten snapshot window.

USAGE:
  st, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  svc := ledger.NewService(st.Stores(), st, catalog.NewCached(st), logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meridian/stockledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stores returns the bundled interface view of this store.
func (s *Store) Stores() ledger.Stores {
	return ledger.Stores{Cards: s, Items: s, Snapshots: s}
}

func (s *Store) migrate() error {
	schema := `
	-- Stock cards: exactly one per identity tuple
	CREATE TABLE IF NOT EXISTS stock_cards (
		id TEXT PRIMARY KEY,
		facility_id TEXT NOT NULL,
		program_id TEXT NOT NULL,
		orderable_id TEXT NOT NULL,
		lot_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(facility_id, program_id, orderable_id, lot_id)
	);

	-- Line items (append-only movement log)
	CREATE TABLE IF NOT EXISTS stock_card_line_items (
		id TEXT PRIMARY KEY,
		card_id TEXT NOT NULL REFERENCES stock_cards(id),
		event_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		reason_id TEXT,
		source_id TEXT,
		destination_id TEXT,
		occurred_date TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		seq INTEGER NOT NULL,
		document_ref TEXT
	);

	-- Replay window loads (hot path)
	CREATE INDEX IF NOT EXISTS idx_line_items_card_occurred
		ON stock_card_line_items(card_id, occurred_date, recorded_at, seq);
	CREATE INDEX IF NOT EXISTS idx_line_items_event
		ON stock_card_line_items(event_id);

	-- Calculated stock on hand (derived; rewritten by reconciliation only)
	CREATE TABLE IF NOT EXISTS calculated_stock_on_hand (
		card_id TEXT NOT NULL REFERENCES stock_cards(id),
		occurred_date TEXT NOT NULL,
		stock_on_hand INTEGER NOT NULL,
		PRIMARY KEY (card_id, occurred_date)
	);

	-- Reason catalog
	CREATE TABLE IF NOT EXISTS stock_reasons (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		reason_type TEXT NOT NULL,
		tags_json TEXT NOT NULL DEFAULT '[]'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CARD STORE (ledger.CardStore interface)
// =============================================================================

// GetOrCreate returns the card for the identity, creating it on first use.
// A race between concurrent creators resolves idempotently to the winner's row.
func (s *Store) GetOrCreate(ctx context.Context, identity ledger.CardIdentity) (*ledger.StockCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getOrCreateCard(ctx, s.db, identity)
}

func getOrCreateCard(ctx context.Context, q queryable, identity ledger.CardIdentity) (*ledger.StockCard, error) {
	if card, err := findCardByIdentity(ctx, q, identity); err != nil || card != nil {
		return card, err
	}

	card := ledger.StockCard{
		ID:        ledger.NewCardID(),
		Identity:  identity,
		CreatedAt: time.Now().UTC(),
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO stock_cards (id, facility_id, program_id, orderable_id, lot_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		card.ID, identity.FacilityID, identity.ProgramID, identity.OrderableID, identity.LotID,
		card.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// Another writer created the card between our check and insert.
			existing, ferr := findCardByIdentity(ctx, q, identity)
			if ferr == nil && existing != nil {
				return existing, nil
			}
			return nil, &ledger.IdentityConflictError{Identity: identity}
		}
		return nil, fmt.Errorf("failed to create stock card: %w", err)
	}
	return &card, nil
}

func findCardByIdentity(ctx context.Context, q queryable, identity ledger.CardIdentity) (*ledger.StockCard, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, facility_id, program_id, orderable_id, lot_id, created_at
		FROM stock_cards
		WHERE facility_id = ? AND program_id = ? AND orderable_id = ? AND lot_id = ?`,
		identity.FacilityID, identity.ProgramID, identity.OrderableID, identity.LotID,
	)
	card, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return card, err
}

func (s *Store) Get(ctx context.Context, id ledger.CardID) (*ledger.StockCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCard(ctx, s.db, id)
}

func getCard(ctx context.Context, q queryable, id ledger.CardID) (*ledger.StockCard, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, facility_id, program_id, orderable_id, lot_id, created_at
		FROM stock_cards WHERE id = ?`, id)
	card, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrCardNotFound
	}
	return card, err
}

func (s *Store) FindByIdentity(ctx context.Context, identity ledger.CardIdentity) (*ledger.StockCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findCardByIdentity(ctx, s.db, identity)
}

func (s *Store) List(ctx context.Context) ([]ledger.StockCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCards(ctx, s.db)
}

func listCards(ctx context.Context, q queryable) ([]ledger.StockCard, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, facility_id, program_id, orderable_id, lot_id, created_at
		FROM stock_cards ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []ledger.StockCard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}
	return cards, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*ledger.StockCard, error) {
	var (
		card      ledger.StockCard
		createdAt string
	)
	err := row.Scan(
		&card.ID,
		&card.Identity.FacilityID, &card.Identity.ProgramID,
		&card.Identity.OrderableID, &card.Identity.LotID,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	card.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &card, nil
}

// =============================================================================
// LINE ITEM STORE (ledger.LineItemStore interface)
// =============================================================================

// AppendBatch persists line items atomically.
func (s *Store) AppendBatch(ctx context.Context, items []ledger.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendItems(ctx, tx, items); err != nil {
		return err
	}
	return tx.Commit()
}

func appendItems(ctx context.Context, q queryable, items []ledger.LineItem) error {
	const query = `
		INSERT INTO stock_card_line_items
		(id, card_id, event_id, quantity, reason_id, source_id, destination_id,
		 occurred_date, recorded_at, seq, document_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, item := range items {
		_, err := q.ExecContext(ctx, query,
			item.ID, item.CardID, item.EventID, item.Quantity,
			nullString(string(item.ReasonID)),
			nullString(item.SourceID),
			nullString(item.DestinationID),
			item.OccurredDate.String(),
			item.RecordedAt.Format(time.RFC3339Nano),
			item.Sequence,
			nullString(item.DocumentRef),
		)
		if err != nil {
			return fmt.Errorf("failed to append line item: %w", err)
		}
	}
	return nil
}

func (s *Store) AllForCardFrom(ctx context.Context, cardID ledger.CardID, from ledger.Date) ([]ledger.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return itemsFrom(ctx, s.db, cardID, from)
}

func itemsFrom(ctx context.Context, q queryable, cardID ledger.CardID, from ledger.Date) ([]ledger.LineItem, error) {
	const query = `
		SELECT id, card_id, event_id, quantity, reason_id, source_id, destination_id,
		       occurred_date, recorded_at, seq, document_ref
		FROM stock_card_line_items
		WHERE card_id = ? AND occurred_date >= ?
		ORDER BY occurred_date ASC, recorded_at ASC, seq ASC`
	return queryItems(ctx, q, query, cardID, from.String())
}

func (s *Store) AllForCardBetween(ctx context.Context, cardID ledger.CardID, start, end ledger.Date) ([]ledger.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return itemsBetween(ctx, s.db, cardID, start, end)
}

func itemsBetween(ctx context.Context, q queryable, cardID ledger.CardID, start, end ledger.Date) ([]ledger.LineItem, error) {
	const query = `
		SELECT id, card_id, event_id, quantity, reason_id, source_id, destination_id,
		       occurred_date, recorded_at, seq, document_ref
		FROM stock_card_line_items
		WHERE card_id = ? AND occurred_date >= ? AND occurred_date <= ?
		ORDER BY occurred_date ASC, recorded_at ASC, seq ASC`
	return queryItems(ctx, q, query, cardID, start.String(), end.String())
}

func queryItems(ctx context.Context, q queryable, query string, args ...any) ([]ledger.LineItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var items []ledger.LineItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(rows *sql.Rows) (ledger.LineItem, error) {
	var (
		item         ledger.LineItem
		reasonID     sql.NullString
		sourceID     sql.NullString
		destID       sql.NullString
		occurredDate string
		recordedAt   string
		documentRef  sql.NullString
	)
	err := rows.Scan(
		&item.ID, &item.CardID, &item.EventID, &item.Quantity,
		&reasonID, &sourceID, &destID,
		&occurredDate, &recordedAt, &item.Sequence, &documentRef,
	)
	if err != nil {
		return item, fmt.Errorf("failed to scan line item: %w", err)
	}

	item.ReasonID = ledger.ReasonID(reasonID.String)
	item.SourceID = sourceID.String
	item.DestinationID = destID.String
	item.DocumentRef = documentRef.String
	item.OccurredDate, _ = ledger.ParseDate(occurredDate)
	item.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
	return item, nil
}

// =============================================================================
// SNAPSHOT STORE (ledger.SnapshotStore interface)
// =============================================================================

// Upsert writes a calculated balance, replacing any prior value for the date.
func (s *Store) Upsert(ctx context.Context, snap ledger.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertSnapshot(ctx, s.db, snap)
}

func upsertSnapshot(ctx context.Context, q queryable, snap ledger.Snapshot) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO calculated_stock_on_hand (card_id, occurred_date, stock_on_hand)
		VALUES (?, ?, ?)
		ON CONFLICT(card_id, occurred_date) DO UPDATE SET
			stock_on_hand = excluded.stock_on_hand`,
		snap.CardID, snap.Date.String(), snap.StockOnHand,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (s *Store) LatestAtOrBefore(ctx context.Context, cardID ledger.CardID, date ledger.Date) (*ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestSnapshot(ctx, s.db, cardID, date)
}

func latestSnapshot(ctx context.Context, q queryable, cardID ledger.CardID, date ledger.Date) (*ledger.Snapshot, error) {
	row := q.QueryRowContext(ctx, `
		SELECT card_id, occurred_date, stock_on_hand
		FROM calculated_stock_on_hand
		WHERE card_id = ? AND occurred_date <= ?
		ORDER BY occurred_date DESC
		LIMIT 1`,
		cardID, date.String(),
	)

	var (
		snap ledger.Snapshot
		d    string
	)
	err := row.Scan(&snap.CardID, &d, &snap.StockOnHand)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.Date, _ = ledger.ParseDate(d)
	return &snap, nil
}

func (s *Store) AllBetween(ctx context.Context, cardID ledger.CardID, start, end ledger.Date) ([]ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotsBetween(ctx, s.db, cardID, start, end)
}

func snapshotsBetween(ctx context.Context, q queryable, cardID ledger.CardID, start, end ledger.Date) ([]ledger.Snapshot, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT card_id, occurred_date, stock_on_hand
		FROM calculated_stock_on_hand
		WHERE card_id = ? AND occurred_date >= ? AND occurred_date <= ?
		ORDER BY occurred_date ASC`,
		cardID, start.String(), end.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []ledger.Snapshot
	for rows.Next() {
		var (
			snap ledger.Snapshot
			d    string
		)
		if err := rows.Scan(&snap.CardID, &d, &snap.StockOnHand); err != nil {
			return nil, err
		}
		snap.Date, _ = ledger.ParseDate(d)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *Store) DeleteFrom(ctx context.Context, cardID ledger.CardID, from ledger.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteSnapshotsFrom(ctx, s.db, cardID, from)
}

func deleteSnapshotsFrom(ctx context.Context, q queryable, cardID ledger.CardID, from ledger.Date) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM calculated_stock_on_hand
		WHERE card_id = ? AND occurred_date >= ?`,
		cardID, from.String(),
	)
	return err
}

// =============================================================================
// REASON CATALOG (catalog.Store interface)
// =============================================================================

func (s *Store) AllReasons(ctx context.Context) ([]ledger.Reason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, reason_type, tags_json FROM stock_reasons ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reasons []ledger.Reason
	for rows.Next() {
		var (
			r        ledger.Reason
			tagsJSON string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Type, &tagsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode reason tags: %w", err)
		}
		reasons = append(reasons, r)
	}
	return reasons, rows.Err()
}

func (s *Store) SaveReason(ctx context.Context, reason ledger.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tagsJSON, err := json.Marshal(reason.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO stock_reasons (id, name, reason_type, tags_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			reason_type = excluded.reason_type,
			tags_json = excluded.tags_json`,
		reason.ID, reason.Name, reason.Type, string(tagsJSON),
	)
	return err
}

// =============================================================================
// TRANSACTIONS (ledger.TxRunner interface)
// =============================================================================

// WithTx executes fn within a database transaction. The Stores handed to fn
// are bound to that transaction; an error from fn rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	view := &txStores{tx: tx}
	if err := fn(ledger.Stores{Cards: view, Items: view, Snapshots: view}); err != nil {
		return err
	}
	return tx.Commit()
}

// txStores binds the store interfaces to one *sql.Tx.
type txStores struct {
	tx *sql.Tx
}

func (t *txStores) GetOrCreate(ctx context.Context, identity ledger.CardIdentity) (*ledger.StockCard, error) {
	return getOrCreateCard(ctx, t.tx, identity)
}

func (t *txStores) Get(ctx context.Context, id ledger.CardID) (*ledger.StockCard, error) {
	return getCard(ctx, t.tx, id)
}

func (t *txStores) FindByIdentity(ctx context.Context, identity ledger.CardIdentity) (*ledger.StockCard, error) {
	return findCardByIdentity(ctx, t.tx, identity)
}

func (t *txStores) List(ctx context.Context) ([]ledger.StockCard, error) {
	return listCards(ctx, t.tx)
}

func (t *txStores) AppendBatch(ctx context.Context, items []ledger.LineItem) error {
	return appendItems(ctx, t.tx, items)
}

func (t *txStores) AllForCardFrom(ctx context.Context, cardID ledger.CardID, from ledger.Date) ([]ledger.LineItem, error) {
	return itemsFrom(ctx, t.tx, cardID, from)
}

func (t *txStores) AllForCardBetween(ctx context.Context, cardID ledger.CardID, start, end ledger.Date) ([]ledger.LineItem, error) {
	return itemsBetween(ctx, t.tx, cardID, start, end)
}

func (t *txStores) Upsert(ctx context.Context, snap ledger.Snapshot) error {
	return upsertSnapshot(ctx, t.tx, snap)
}

func (t *txStores) LatestAtOrBefore(ctx context.Context, cardID ledger.CardID, date ledger.Date) (*ledger.Snapshot, error) {
	return latestSnapshot(ctx, t.tx, cardID, date)
}

func (t *txStores) AllBetween(ctx context.Context, cardID ledger.CardID, start, end ledger.Date) ([]ledger.Snapshot, error) {
	return snapshotsBetween(ctx, t.tx, cardID, start, end)
}

func (t *txStores) DeleteFrom(ctx context.Context, cardID ledger.CardID, from ledger.Date) error {
	return deleteSnapshotsFrom(ctx, t.tx, cardID, from)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
