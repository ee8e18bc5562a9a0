package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/content-ledger/pkg/contentledger"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// TxBeginner starts transactions; satisfied by *pgxpool.Pool and *pgx.Conn
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// maxSerializationRetries bounds how often a write transaction is retried
// after Postgres aborts it with a serialization failure
const maxSerializationRetries = 5

// Repository implements contentledger.Repository using PostgreSQL.
// Write transactions run at SERIALIZABLE isolation and take a row lock on
// the ledger sequence, so they commit in sequence order.
type Repository struct {
	db   TxBeginner
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL repository
func New(db TxBeginner) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool. The
// repository closes the pool on Close.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// Close closes the pool if the repository owns one
func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

// Atomic runs fn in a serializable transaction and advances the ledger
// sequence. fn may run more than once when Postgres reports a serialization
// failure; only the successful attempt commits.
func (r *Repository) Atomic(ctx context.Context, fn func(tx contentledger.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		err = r.atomicOnce(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (r *Repository) atomicOnce(ctx context.Context, fn func(tx contentledger.Tx) error) error {
	pgTx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return handlePostgresError("begin transaction", err)
	}
	defer pgTx.Rollback(ctx)

	var seq int64
	if err := pgTx.QueryRow(ctx,
		`UPDATE ledger_meta SET sequence = sequence + 1 WHERE id = 1 RETURNING sequence`).Scan(&seq); err != nil {
		return handlePostgresError("advance sequence", err)
	}

	if err := fn(&tx{db: pgTx, sequence: uint64(seq)}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return handlePostgresError("commit transaction", err)
	}
	return nil
}

// View runs fn in a read-only transaction
func (r *Repository) View(ctx context.Context, fn func(tx contentledger.Tx) error) error {
	pgTx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return handlePostgresError("begin transaction", err)
	}
	defer pgTx.Rollback(ctx)

	var seq int64
	if err := pgTx.QueryRow(ctx, `SELECT sequence FROM ledger_meta WHERE id = 1`).Scan(&seq); err != nil {
		return handlePostgresError("read sequence", err)
	}

	return fn(&tx{db: pgTx, sequence: uint64(seq), readOnly: true})
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.ConstraintName == "content_items_pkey" {
				return contentledger.ErrContentKeyExists
			}
			return fmt.Errorf("duplicate entry in %s: %w", operation, err)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		case "40001", "40P01": // serialization_failure, deadlock_detected
			// keep the PgError reachable so Atomic can retry
			return fmt.Errorf("transaction conflict in %s: %w", operation, err)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

type tx struct {
	db       DBTX
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
		FROM content_items WHERE owner = $1 AND content_key = $2`

	item, err := scanContent(t.db.QueryRow(ctx, query, string(owner), contentKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, handlePostgresError("get content", err)
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
		) VALUES ($1, $2, $3, $4, $5)`

	_, err := t.db.Exec(ctx, query,
		string(owner), item.ContentKey, nonNil(item.Fingerprint), nonNil(item.SequenceMarker),
		item.CreatedTimestamp.BigEndian())
	if err != nil {
		return handlePostgresError("insert content", err)
	}
	return nil
}

func (t *tx) ListContent(ctx context.Context, owner contentledger.Identity) ([]*contentledger.ContentItem, error) {
	query := `
		SELECT content_key, fingerprint, sequence_marker, created_timestamp
		FROM content_items WHERE owner = $1
		ORDER BY created_timestamp, content_key`

	rows, err := t.db.Query(ctx, query, string(owner))
	if err != nil {
		return nil, handlePostgresError("list content", err)
	}
	defer rows.Close()

	var items []*contentledger.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, handlePostgresError("list content", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list content", err)
	}
	return items, nil
}

// Access policy table operations

func (t *tx) GetPolicy(ctx context.Context, subject contentledger.Identity, contentKey []byte) (contentledger.AccessPolicy, bool, error) {
	var name string
	err := t.db.QueryRow(ctx,
		`SELECT policy FROM access_policies WHERE subject = $1 AND content_key = $2`,
		string(subject), contentKey).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return contentledger.NotAccessible, false, nil
		}
		return contentledger.NotAccessible, false, handlePostgresError("get policy", err)
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
		INSERT INTO access_policies (subject, content_key, policy) VALUES ($1, $2, $3)
		ON CONFLICT (subject, content_key) DO UPDATE SET policy = EXCLUDED.policy`

	if _, err := t.db.Exec(ctx, query, string(subject), contentKey, policy.String()); err != nil {
		return handlePostgresError("put policy", err)
	}
	return nil
}

// Counter operations

func (t *tx) GetValue(ctx context.Context) (uint32, bool, error) {
	var value *int64
	if err := t.db.QueryRow(ctx, `SELECT counter_value FROM ledger_meta WHERE id = 1`).Scan(&value); err != nil {
		return 0, false, handlePostgresError("get value", err)
	}
	if value == nil {
		return 0, false, nil
	}
	return uint32(*value), true, nil
}

func (t *tx) PutValue(ctx context.Context, value uint32) error {
	if t.readOnly {
		return contentledger.ErrReadOnly
	}
	if _, err := t.db.Exec(ctx, `UPDATE ledger_meta SET counter_value = $1 WHERE id = 1`, int64(value)); err != nil {
		return handlePostgresError("put value", err)
	}
	return nil
}

func scanContent(row pgx.Row) (*contentledger.ContentItem, error) {
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

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
