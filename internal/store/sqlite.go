package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/scamlens/scamlens/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local and
// single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS investigations (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	tier         TEXT NOT NULL,
	type         TEXT NOT NULL,
	threat_level TEXT NOT NULL,
	request      TEXT NOT NULL,
	result       TEXT NOT NULL,
	cost_usd     REAL NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	completed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS credit_ledger (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	investigation_id TEXT,
	delta_usd        REAL NOT NULL,
	balance_usd      REAL NOT NULL,
	reason           TEXT NOT NULL,
	created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_investigations_user_id ON investigations(user_id);
CREATE INDEX IF NOT EXISTS idx_investigations_threat ON investigations(threat_level);
CREATE INDEX IF NOT EXISTS idx_investigations_created ON investigations(created_at);
CREATE INDEX IF NOT EXISTS idx_credit_ledger_user_id ON credit_ledger(user_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveInvestigation(ctx context.Context, req model.InvestigationRequest, result *model.InvestigationResult) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal request")
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO investigations (id, user_id, tier, type, threat_level, request, result, cost_usd, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, req.UserID, string(req.Tier), string(req.Type), string(result.ThreatLevel),
		string(reqJSON), string(resultJSON), result.CostUSD, req.CreatedAt, result.CompletedAt,
	)
	return eris.Wrapf(err, "sqlite: insert investigation %s", result.ID)
}

func (s *SQLiteStore) GetInvestigation(ctx context.Context, id string) (*model.InvestigationResult, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM investigations WHERE id = ?`, id,
	).Scan(&resultJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "investigation %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get investigation %s", id)
	}

	var result model.InvestigationResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result")
	}
	return &result, nil
}

func (s *SQLiteStore) ListInvestigations(ctx context.Context, filter ListFilter) ([]model.InvestigationResult, error) {
	query := `SELECT result FROM investigations WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.ThreatLevel != "" {
		query += ` AND threat_level = ?`
		args = append(args, string(filter.ThreatLevel))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + strconv.Itoa(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list investigations")
	}
	defer rows.Close()

	var results []model.InvestigationResult
	for rows.Next() {
		var resultJSON string
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan investigation")
		}
		var result model.InvestigationResult
		if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
		results = append(results, result)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: iterate investigations")
}

// RecordDebit appends a ledger entry whose balance snapshot extends the
// user's latest entry. The snapshot is computed inside the INSERT so the
// read and the write share one statement and concurrent debits cannot
// observe the same predecessor.
func (s *SQLiteStore) RecordDebit(ctx context.Context, entry model.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credit_ledger (id, user_id, investigation_id, delta_usd, balance_usd, reason, created_at)
		 VALUES (?, ?, ?, ?,
		         COALESCE((SELECT balance_usd FROM credit_ledger WHERE user_id = ? ORDER BY rowid DESC LIMIT 1), 0) + ?,
		         ?, ?)`,
		entry.ID, entry.UserID, entry.InvestigationID, entry.DeltaUSD,
		entry.UserID, entry.DeltaUSD,
		entry.Reason, entry.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert ledger entry %s", entry.ID)
}

func (s *SQLiteStore) Balance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE((SELECT balance_usd FROM credit_ledger WHERE user_id = ? ORDER BY rowid DESC LIMIT 1), 0)`,
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: balance for %s", userID)
	}
	return balance, nil
}

func (s *SQLiteStore) ListLedger(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, COALESCE(investigation_id, ''), delta_usd, balance_usd, reason, created_at
		 FROM credit_ledger WHERE user_id = ? ORDER BY rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ledger")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.InvestigationID, &e.DeltaUSD, &e.BalanceUSD, &e.Reason, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ledger entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate ledger")
}
