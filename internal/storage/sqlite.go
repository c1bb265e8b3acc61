package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ehrlich-b/accesslog/internal/record"
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Store using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite storage.
// Use ":memory:" for in-memory database, or a file path for persistent storage.
func NewSQLite(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dsn == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			remote_ip VARCHAR(50) NOT NULL DEFAULT '-',
			remote_user VARCHAR(50) NOT NULL DEFAULT '-',
			request TEXT NOT NULL DEFAULT '-',
			response INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			referrer TEXT NOT NULL DEFAULT '-',
			agent TEXT NOT NULL DEFAULT '-'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_response ON logs(response)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Records ---

func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&n)
	return n, err
}

func (s *SQLiteStorage) InsertBatch(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO logs (timestamp, remote_ip, remote_user, request, response, bytes, referrer, agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.Timestamp.UTC(), r.RemoteIP, r.RemoteUser, r.Request,
			r.ResponseStatus, r.BytesSent, r.Referrer, r.Agent); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) QueryByStatus(ctx context.Context, status int, limit int) (*StatusResult, error) {
	res := &StatusResult{Status: status}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM logs WHERE response = ?`, status).Scan(&res.Count); err != nil {
		return nil, err
	}

	query := `SELECT id, timestamp, remote_ip, remote_user, request, response, bytes, referrer, agent
	          FROM logs WHERE response = ? ORDER BY id`
	args := []any{status}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r record.Record
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.RemoteIP, &r.RemoteUser, &r.Request,
			&r.ResponseStatus, &r.BytesSent, &r.Referrer, &r.Agent); err != nil {
			return nil, err
		}
		res.Records = append(res.Records, r)
	}
	return res, rows.Err()
}

func (s *SQLiteStorage) Statuses(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT response FROM logs ORDER BY response`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []int
	for rows.Next() {
		var st int
		if err := rows.Scan(&st); err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}
