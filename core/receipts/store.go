package receipts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"promoledger/core/types"
)

// ErrNotFound is returned when no receipt exists for a hash.
var ErrNotFound = errors.New("receipts: not found")

// Store persists instruction receipts and their events in SQLite. Receipts
// are a log for clients; ledger state never depends on them.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the receipt database at path. ":memory:" yields a
// private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers anyway; one connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS receipts (
            hash TEXT PRIMARY KEY,
            kind TEXT NOT NULL,
            signer TEXT NOT NULL,
            status TEXT NOT NULL,
            error TEXT,
            error_code INTEGER,
            error_name TEXT,
            applied_at INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            receipt_hash TEXT NOT NULL,
            position INTEGER NOT NULL,
            type TEXT NOT NULL,
            attributes BLOB NOT NULL,
            applied_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_by_type ON events(type, id);`,
		`CREATE INDEX IF NOT EXISTS events_by_receipt ON events(receipt_hash, position);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("receipts: init schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append stores r. A later receipt for the same hash replaces the earlier
// one, which happens when a failed instruction is resubmitted.
func (s *Store) Append(ctx context.Context, r *types.Receipt) error {
	if r == nil {
		return fmt.Errorf("receipts: nil receipt")
	}
	kind, err := r.Kind.MarshalText()
	if err != nil {
		return fmt.Errorf("receipts: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE receipt_hash = ?`, r.Hash); err != nil {
		return fmt.Errorf("receipts: clear events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO receipts
        (hash, kind, signer, status, error, error_code, error_name, applied_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Hash, string(kind), r.Signer.String(), string(r.Status), r.Error, int64(r.ErrorCode), r.ErrorName, r.AppliedAt); err != nil {
		return fmt.Errorf("receipts: insert: %w", err)
	}
	for i, evt := range r.Events {
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO events
            (receipt_hash, position, type, attributes, applied_at) VALUES (?, ?, ?, ?, ?)`,
			r.Hash, i, evt.Type, attrs, r.AppliedAt); err != nil {
			return fmt.Errorf("receipts: insert event: %w", err)
		}
	}
	return tx.Commit()
}

// Get loads the receipt for hash together with its events.
func (s *Store) Get(ctx context.Context, hash string) (*types.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT kind, signer, status, error, error_code, error_name, applied_at
        FROM receipts WHERE hash = ?`, hash)
	var (
		kind, signer, status string
		errText, errName     sql.NullString
		errCode              sql.NullInt64
		receipt              = &types.Receipt{Hash: hash}
	)
	if err := row.Scan(&kind, &signer, &status, &errText, &errCode, &errName, &receipt.AppliedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := receipt.Kind.UnmarshalText([]byte(kind)); err != nil {
		return nil, fmt.Errorf("receipts: stored kind: %w", err)
	}
	if err := receipt.Signer.UnmarshalText([]byte(signer)); err != nil {
		return nil, fmt.Errorf("receipts: stored signer: %w", err)
	}
	receipt.Status = types.ReceiptStatus(status)
	receipt.Error = errText.String
	receipt.ErrorCode = uint32(errCode.Int64)
	receipt.ErrorName = errName.String

	rows, err := s.db.QueryContext(ctx, `SELECT type, attributes FROM events
        WHERE receipt_hash = ? ORDER BY position`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	receipt.Events = []types.Event{}
	for rows.Next() {
		var evt StoredEvent
		if err := scanEvent(rows, &evt); err != nil {
			return nil, err
		}
		receipt.Events = append(receipt.Events, evt.Event)
	}
	return receipt, rows.Err()
}

// StoredEvent is an event with its log position.
type StoredEvent struct {
	types.Event
	ID          int64  `json:"id"`
	ReceiptHash string `json:"receiptHash"`
	AppliedAt   int64  `json:"appliedAt"`
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner, evt *StoredEvent, extra ...interface{}) error {
	var attrs []byte
	dest := append([]interface{}{&evt.Type, &attrs}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	evt.Attributes = map[string]string{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &evt.Attributes); err != nil {
			return fmt.Errorf("receipts: decode attributes: %w", err)
		}
	}
	return nil
}

// Events lists events of eventType with an id greater than afterID, oldest
// first. An empty eventType matches every event.
func (s *Store) Events(ctx context.Context, eventType string, afterID int64, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT type, attributes, id, receipt_hash, applied_at FROM events
        WHERE id > ? AND (? = '' OR type = ?) ORDER BY id LIMIT ?`, afterID, eventType, eventType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoredEvent
	for rows.Next() {
		var evt StoredEvent
		if err := scanEvent(rows, &evt, &evt.ID, &evt.ReceiptHash, &evt.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}
