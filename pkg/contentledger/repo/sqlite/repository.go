package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/tendant/content-ledger/pkg/contentledger"
)

// Repository implements contentledger.Repository on SQLite.
//
// The pool is limited to one connection, so write transactions are
// serialized by database/sql itself and ":memory:" databases survive for the
// lifetime of the repository.
type Repository struct {
	db *sql.DB
}

// Open opens the database at path, applies pending migrations and returns
// the repository. path can be a file path or ":memory:".
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// New wraps a migrated database. The caller is responsible for limiting the
// pool to a single connection.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying database handle
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// Atomic runs fn in a write transaction and advances the ledger sequence
func (r *Repository) Atomic(ctx context.Context, fn func(tx contentledger.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var seq uint64
	if err := sqlTx.QueryRowContext(ctx,
		`UPDATE ledger_meta SET sequence = sequence + 1 WHERE id = 1 RETURNING sequence`).Scan(&seq); err != nil {
		return handleSQLiteError("advance sequence", err)
	}

	if err := fn(&tx{tx: sqlTx, sequence: seq}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// View runs fn in a transaction that is always rolled back
func (r *Repository) View(ctx context.Context, fn func(tx contentledger.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var seq uint64
	if err := sqlTx.QueryRowContext(ctx, `SELECT sequence FROM ledger_meta WHERE id = 1`).Scan(&seq); err != nil {
		return handleSQLiteError("read sequence", err)
	}

	return fn(&tx{tx: sqlTx, sequence: seq, readOnly: true})
}

// Error handling helper
func handleSQLiteError(operation string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return contentledger.ErrContentKeyExists
		}
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("database is locked in %s: %w", operation, err)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

type tx struct {
	tx       *sql.Tx
	sequence uint64
	readOnly bool
}

func (t *tx) Sequence(ctx context.Context) (uint64, error) {
	return t.sequence, nil
}

// Content table operations

func (t *tx) GetContent(ctx context.Context, owner contentledger.Identity, contentKey []byte) (*contentledger.ContentItem, bool, error) {
	query := `
		SELECT content_key, fingerprint, sequence_marker, created_timestamp
		FROM content_items WHERE owner = ? AND content_key = ?`

	item, err := scanContent(t.tx.QueryRowContext(ctx, query, string(owner), contentKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, handleSQLiteError("get content", err)
	}
	return item, true, nil
}

func (t *tx) InsertContent(ctx context.Context, owner contentledger.Identity, item *contentledger.ContentItem) error {
	if t.readOnly {
		return contentledger.ErrReadOnly
	}
	query := `
		INSERT INTO content_items (
			owner, content_key, fingerprint, sequence_marker, created_timestamp
		) VALUES (?, ?, ?, ?, ?)`

	_, err := t.tx.ExecContext(ctx, query,
		string(owner), item.ContentKey, nonNil(item.Fingerprint), nonNil(item.SequenceMarker),
		item.CreatedTimestamp.BigEndian())
	if err != nil {
		return handleSQLiteError("insert content", err)
	}
	return nil
}

func (t *tx) ListContent(ctx context.Context, owner contentledger.Identity) ([]*contentledger.ContentItem, error) {
	query := `
		SELECT content_key, fingerprint, sequence_marker, created_timestamp
		FROM content_items WHERE owner = ?
		ORDER BY created_timestamp, content_key`

	rows, err := t.tx.QueryContext(ctx, query, string(owner))
	if err != nil {
		return nil, handleSQLiteError("list content", err)
	}
	defer rows.Close()

	var items []*contentledger.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, handleSQLiteError("list content", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, handleSQLiteError("list content", err)
	}
	return items, nil
}

// Access policy table operations

func (t *tx) GetPolicy(ctx context.Context, subject contentledger.Identity, contentKey []byte) (contentledger.AccessPolicy, bool, error) {
	var name string
	err := t.tx.QueryRowContext(ctx,
		`SELECT policy FROM access_policies WHERE subject = ? AND content_key = ?`,
		string(subject), contentKey).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contentledger.NotAccessible, false, nil
		}
		return contentledger.NotAccessible, false, handleSQLiteError("get policy", err)
	}
	policy, err := contentledger.ParseAccessPolicy(name)
	if err != nil {
		return contentledger.NotAccessible, false, err
	}
	return policy, true, nil
}

func (t *tx) PutPolicy(ctx context.Context, subject contentledger.Identity, contentKey []byte, policy contentledger.AccessPolicy) error {
	if t.readOnly {
		return contentledger.ErrReadOnly
	}
	query := `
		INSERT INTO access_policies (subject, content_key, policy) VALUES (?, ?, ?)
		ON CONFLICT (subject, content_key) DO UPDATE SET policy = excluded.policy`

	if _, err := t.tx.ExecContext(ctx, query, string(subject), contentKey, policy.String()); err != nil {
		return handleSQLiteError("put policy", err)
	}
	return nil
}

// Counter operations

func (t *tx) GetValue(ctx context.Context) (uint32, bool, error) {
	var value sql.NullInt64
	if err := t.tx.QueryRowContext(ctx, `SELECT counter_value FROM ledger_meta WHERE id = 1`).Scan(&value); err != nil {
		return 0, false, handleSQLiteError("get value", err)
	}
	if !value.Valid {
		return 0, false, nil
	}
	return uint32(value.Int64), true, nil
}

func (t *tx) PutValue(ctx context.Context, value uint32) error {
	if t.readOnly {
		return contentledger.ErrReadOnly
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE ledger_meta SET counter_value = ? WHERE id = 1`, int64(value)); err != nil {
		return handleSQLiteError("put value", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (*contentledger.ContentItem, error) {
	var item contentledger.ContentItem
	var created []byte
	if err := row.Scan(&item.ContentKey, &item.Fingerprint, &item.SequenceMarker, &created); err != nil {
		return nil, err
	}
	ts, err := contentledger.Uint128FromBigEndian(created)
	if err != nil {
		return nil, err
	}
	item.CreatedTimestamp = ts
	return &item, nil
}

// nonNil keeps NOT NULL blob columns satisfied for empty values
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
