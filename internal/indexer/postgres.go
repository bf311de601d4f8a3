package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"darkbet-backend/internal/events"
)

// ConnectPostgres opens a database handle and checks the connection
func ConnectPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS market_events (
	id          UUID PRIMARY KEY,
	market_id   BIGINT NOT NULL,
	seq         BIGINT NOT NULL DEFAULT 0,
	type        TEXT NOT NULL,
	account     TEXT NOT NULL DEFAULT '',
	amount      TEXT NOT NULL DEFAULT '',
	outcome     BOOLEAN,
	data        JSONB NOT NULL DEFAULT '{}',
	occurred_at TIMESTAMPTZ NOT NULL
);
ALTER TABLE market_events ADD COLUMN IF NOT EXISTS seq BIGINT NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS market_events_market_idx ON market_events (market_id, occurred_at);
CREATE INDEX IF NOT EXISTS market_events_seq_idx ON market_events (market_id, seq);
`

// PostgresSink mirrors events into the market_events table. The mirror is
// read-only from the protocol's point of view.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink creates a Postgres event sink
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the mirror table if missing
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Handle(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("postgres: marshal data: %w", err)
	}
	if ev.Data == nil {
		data = []byte("{}")
	}

	var outcome sql.NullBool
	if ev.Outcome != nil {
		outcome = sql.NullBool{Bool: *ev.Outcome, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_events (id, market_id, seq, type, account, amount, outcome, data, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, int64(ev.MarketID), int64(ev.Seq), string(ev.Type), ev.Account, ev.Amount, outcome, string(data), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres: insert %s: %w", ev.Type, err)
	}
	return nil
}

// PurgeMarket deletes the mirrored events of one market and reports how
// many rows were removed. Protocol state is not affected.
func (s *PostgresSink) PurgeMarket(ctx context.Context, marketID uint64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM market_events WHERE market_id = $1`, int64(marketID))
	if err != nil {
		return 0, fmt.Errorf("postgres: purge market %d: %w", marketID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: purge market %d: %w", marketID, err)
	}
	return n, nil
}
