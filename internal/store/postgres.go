package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/scamlens/scamlens/internal/model"
)

// Pool abstracts pgxpool.Pool behind the operations the store uses, so tests
// can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS investigations (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	tier         TEXT NOT NULL,
	type         TEXT NOT NULL,
	threat_level TEXT NOT NULL,
	request      JSONB NOT NULL,
	result       JSONB NOT NULL,
	cost_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS credit_ledger (
	seq              BIGSERIAL,
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	investigation_id TEXT,
	delta_usd        DOUBLE PRECISION NOT NULL,
	balance_usd      DOUBLE PRECISION NOT NULL,
	reason           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_investigations_user_id ON investigations(user_id);
CREATE INDEX IF NOT EXISTS idx_investigations_threat ON investigations(threat_level);
CREATE INDEX IF NOT EXISTS idx_investigations_created ON investigations(created_at);
CREATE INDEX IF NOT EXISTS idx_credit_ledger_user_id ON credit_ledger(user_id, created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveInvestigation(ctx context.Context, req model.InvestigationRequest, result *model.InvestigationResult) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal request")
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO investigations (id, user_id, tier, type, threat_level, request, result, cost_usd, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		result.ID, req.UserID, string(req.Tier), string(req.Type), string(result.ThreatLevel),
		reqJSON, resultJSON, result.CostUSD, req.CreatedAt, result.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: insert investigation %s", result.ID)
}

func (s *PostgresStore) GetInvestigation(ctx context.Context, id string) (*model.InvestigationResult, error) {
	var resultJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM investigations WHERE id = $1`, id,
	).Scan(&resultJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "investigation %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get investigation %s", id)
	}

	var result model.InvestigationResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result")
	}
	return &result, nil
}

func (s *PostgresStore) ListInvestigations(ctx context.Context, filter ListFilter) ([]model.InvestigationResult, error) {
	query := `SELECT result FROM investigations WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.UserID != "" {
		query += ` AND user_id = ` + arg(filter.UserID)
	}
	if filter.ThreatLevel != "" {
		query += ` AND threat_level = ` + arg(string(filter.ThreatLevel))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ` + arg(filter.CreatedAfter)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list investigations")
	}
	defer rows.Close()

	var results []model.InvestigationResult
	for rows.Next() {
		var resultJSON []byte
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan investigation")
		}
		var result model.InvestigationResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
		results = append(results, result)
	}
	return results, eris.Wrap(rows.Err(), "postgres: iterate investigations")
}

// RecordDebit appends a ledger entry whose balance snapshot extends the
// user's latest entry. Concurrent writes for the same user are serialized
// with a transaction-scoped advisory lock so the snapshot chain never forks.
func (s *PostgresStore) RecordDebit(ctx context.Context, entry model.LedgerEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin ledger tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, entry.UserID); err != nil {
		return eris.Wrapf(err, "postgres: lock ledger for %s", entry.UserID)
	}

	var balance float64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE((SELECT balance_usd FROM credit_ledger WHERE user_id = $1 ORDER BY seq DESC LIMIT 1), 0)`,
		entry.UserID,
	).Scan(&balance)
	if err != nil {
		return eris.Wrapf(err, "postgres: balance for %s", entry.UserID)
	}
	entry.BalanceUSD = balance + entry.DeltaUSD

	_, err = tx.Exec(ctx,
		`INSERT INTO credit_ledger (id, user_id, investigation_id, delta_usd, balance_usd, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, entry.InvestigationID, entry.DeltaUSD, entry.BalanceUSD, entry.Reason, entry.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert ledger entry %s", entry.ID)
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit ledger entry %s", entry.ID)
}

func (s *PostgresStore) Balance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT balance_usd FROM credit_ledger WHERE user_id = $1 ORDER BY seq DESC LIMIT 1), 0)`,
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: balance for %s", userID)
	}
	return balance, nil
}

func (s *PostgresStore) ListLedger(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, COALESCE(investigation_id, ''), delta_usd, balance_usd, reason, created_at
		 FROM credit_ledger WHERE user_id = $1 ORDER BY seq DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ledger")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.InvestigationID, &e.DeltaUSD, &e.BalanceUSD, &e.Reason, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ledger entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate ledger")
}
