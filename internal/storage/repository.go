package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS analyses (
        id           BIGSERIAL PRIMARY KEY,
        message_id   BIGINT      NOT NULL,
        chat_id      BIGINT      NOT NULL,
        message_text TEXT        NOT NULL,
        address      TEXT,
        platform     TEXT,
        coin_id      TEXT,
        token_name   TEXT,
        resolved     BOOLEAN     NOT NULL DEFAULT FALSE,
        reply        TEXT,
        status       TEXT        NOT NULL,
        error        TEXT,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`

	createIndexSQL = `CREATE INDEX IF NOT EXISTS analyses_created_at_idx ON analyses (created_at);`

	insertAnalysisSQL = `INSERT INTO analyses (
        message_id,
        chat_id,
        message_text,
        address,
        platform,
        coin_id,
        token_name,
        resolved,
        reply,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    RETURNING id, created_at;`

	listRecentAnalysesSQL = `SELECT
        id,
        message_id,
        chat_id,
        message_text,
        address,
        platform,
        coin_id,
        token_name,
        resolved,
        reply,
        status,
        error,
        created_at
    FROM analyses
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	deleteAnalysesBeforeSQL = `DELETE FROM analyses WHERE created_at < $1;`

	countAnalysesSQL = `SELECT COUNT(*) FROM analyses;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AnalysisStore defines operations for the analysis history.
type AnalysisStore interface {
	InsertAnalysis(ctx context.Context, rec AnalysisRecord) (AnalysisRecord, error)
	ListRecentAnalyses(ctx context.Context, limit int) ([]AnalysisRecord, error)
	DeleteAnalysesBefore(ctx context.Context, olderThan time.Time) (int64, error)
	CountAnalyses(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

var (
	_ AnalysisStore  = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

// Store wraps the pgx pool holding the analysis history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the analyses table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createTableSQL, createIndexSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session when the conn closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertAnalysis persists one pipeline outcome.
func (s *Store) InsertAnalysis(ctx context.Context, rec AnalysisRecord) (AnalysisRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AnalysisRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAnalysisSQL,
		rec.MessageID,
		rec.ChatID,
		rec.MessageText,
		rec.Address,
		rec.Platform,
		rec.CoinID,
		rec.TokenName,
		rec.Resolved,
		rec.Reply,
		rec.Status,
		rec.Error,
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AnalysisRecord{}, fmt.Errorf("insert analysis: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAnalyses lists the most recent analyses, newest first.
func (s *Store) ListRecentAnalyses(ctx context.Context, limit int) ([]AnalysisRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, queryErr := pool.Query(ctx, listRecentAnalysesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent analyses: %w", queryErr)
	}
	defer rows.Close()

	out := make([]AnalysisRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAnalysis(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// DeleteAnalysesBefore deletes historical analyses and reports how many went.
func (s *Store) DeleteAnalysesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAnalysesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete analyses before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// CountAnalyses counts stored analyses.
func (s *Store) CountAnalyses(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAnalysesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count analyses: %w", scanErr)
	}
	return count, nil
}

func scanAnalysis(rows pgx.Rows) (AnalysisRecord, error) {
	var (
		rec                                  AnalysisRecord
		address, platform, coinID, tokenName sql.NullString
		reply, errMsg                        sql.NullString
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.MessageID,
		&rec.ChatID,
		&rec.MessageText,
		&address,
		&platform,
		&coinID,
		&tokenName,
		&rec.Resolved,
		&reply,
		&rec.Status,
		&errMsg,
		&rec.CreatedAt,
	); err != nil {
		return AnalysisRecord{}, fmt.Errorf("scan analysis: %w", err)
	}

	rec.Address = nullable(address)
	rec.Platform = nullable(platform)
	rec.CoinID = nullable(coinID)
	rec.TokenName = nullable(tokenName)
	rec.Reply = nullable(reply)
	rec.Error = nullable(errMsg)
	return rec, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
