package receiver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS custody_holders (
	property_id TEXT PRIMARY KEY,
	holder_id   TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS custody_transfers (
	id           TEXT PRIMARY KEY,
	property_id  TEXT NOT NULL REFERENCES custody_holders(property_id),
	from_user_id TEXT NOT NULL,
	to_user_id   TEXT NOT NULL,
	recorded_at  TEXT NOT NULL,
	signature    TEXT NOT NULL DEFAULT '',
	received_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS custody_transfers_property_idx
	ON custody_transfers (property_id, received_at);
`

// PostgresStore keeps custody records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, verifies the connection and applies the
// schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Record checks and applies t in one transaction. The holder row is locked
// so concurrent transfers of the same property serialize.
func (s *PostgresStore) Record(ctx context.Context, t Transfer) (Outcome, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Outcome{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existing Transfer
	err = tx.QueryRow(ctx,
		`SELECT property_id, from_user_id, to_user_id, recorded_at, signature
		   FROM custody_transfers WHERE id = $1`, t.ID,
	).Scan(&existing.PropertyID, &existing.FromUserID, &existing.ToUserID, &existing.Timestamp, &existing.Signature)
	switch {
	case err == nil:
		if !existing.samePayload(t) {
			return Outcome{}, ErrIdempotencyMismatch
		}
		return Outcome{Accepted: true, Replayed: true}, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return Outcome{}, fmt.Errorf("lookup transfer: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO custody_holders (property_id) VALUES ($1) ON CONFLICT (property_id) DO NOTHING`,
		t.PropertyID,
	); err != nil {
		return Outcome{}, fmt.Errorf("reserve property: %w", err)
	}
	var holder string
	if err := tx.QueryRow(ctx,
		`SELECT holder_id FROM custody_holders WHERE property_id = $1 FOR UPDATE`, t.PropertyID,
	).Scan(&holder); err != nil {
		return Outcome{}, fmt.Errorf("lock property: %w", err)
	}

	outcome, ok := checkCustody(holder, t)
	if !ok {
		// Nothing is kept for a rejection, including the reserved holder row.
		return outcome, nil
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO custody_transfers (id, property_id, from_user_id, to_user_id, recorded_at, signature)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.PropertyID, t.FromUserID, t.ToUserID, t.Timestamp, t.Signature,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Outcome{}, ErrConflict
		}
		return Outcome{}, fmt.Errorf("insert transfer: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE custody_holders SET holder_id = $2, updated_at = now() WHERE property_id = $1`,
		t.PropertyID, t.ToUserID,
	); err != nil {
		return Outcome{}, fmt.Errorf("update holder: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, fmt.Errorf("commit transfer: %w", err)
	}
	return outcome, nil
}

// Property returns the holder and accepted transfers for id, oldest first.
func (s *PostgresStore) Property(ctx context.Context, id string) (Property, error) {
	id = strings.TrimSpace(id)
	prop := Property{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT holder_id FROM custody_holders WHERE property_id = $1 AND holder_id <> ''`, id,
	).Scan(&prop.Holder)
	if errors.Is(err, pgx.ErrNoRows) {
		return Property{}, ErrPropertyNotFound
	}
	if err != nil {
		return Property{}, fmt.Errorf("lookup property: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, property_id, from_user_id, to_user_id, recorded_at, signature
		   FROM custody_transfers WHERE property_id = $1 ORDER BY received_at, id`, id)
	if err != nil {
		return Property{}, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.PropertyID, &t.FromUserID, &t.ToUserID, &t.Timestamp, &t.Signature); err != nil {
			return Property{}, fmt.Errorf("scan history: %w", err)
		}
		prop.History = append(prop.History, t)
	}
	if err := rows.Err(); err != nil {
		return Property{}, fmt.Errorf("read history: %w", err)
	}
	return prop, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
