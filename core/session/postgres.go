package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps records in the conversation_state table.
type PostgresStore struct {
	db  *sqlx.DB
	ttl time.Duration
}

// NewPostgresStore wraps db. Records older than ttl are treated as missing
// when ttl is positive.
func NewPostgresStore(db *sqlx.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

type stateRow struct {
	Data      []byte    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Load implements Store.
func (p *PostgresStore) Load(ctx context.Context, key string) (Record, error) {
	var row stateRow
	err := p.db.GetContext(ctx, &row,
		`SELECT data, updated_at FROM conversation_state WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("session: load %s: %w", key, err)
	}
	if p.ttl > 0 && time.Since(row.UpdatedAt) > p.ttl {
		return Record{}, ErrNotFound
	}
	return Decode(row.Data)
}

// Save implements Store.
func (p *PostgresStore) Save(ctx context.Context, key string, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO conversation_state (key, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		key, data, updated)
	if err != nil {
		return fmt.Errorf("session: save %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM conversation_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("session: delete %s: %w", key, err)
	}
	return nil
}

// Purge removes records not updated within the configured ttl.
func (p *PostgresStore) Purge(ctx context.Context) (int64, error) {
	if p.ttl <= 0 {
		return 0, nil
	}
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM conversation_state WHERE updated_at < $1`, time.Now().UTC().Add(-p.ttl))
	if err != nil {
		return 0, fmt.Errorf("session: purge: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
