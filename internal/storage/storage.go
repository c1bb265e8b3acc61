package storage

import (
	"context"
	"errors"

	"github.com/ehrlich-b/accesslog/internal/record"
)

var (
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrNotReady      = errors.New("database not ready")
)

// Store defines the persistence operations for access-log records.
type Store interface {
	// Count returns the number of records currently stored.
	Count(ctx context.Context) (int64, error)

	// InsertBatch stores records in one transaction. Either every record
	// is committed or none is.
	InsertBatch(ctx context.Context, records []record.Record) error

	// QueryByStatus returns the records with an exact response status.
	// Count is always the full match count; limit <= 0 returns every row.
	QueryByStatus(ctx context.Context, status int, limit int) (*StatusResult, error)

	// Statuses returns the distinct response statuses, ascending.
	Statuses(ctx context.Context) ([]int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// StatusResult is the answer to a status filter query.
type StatusResult struct {
	Status  int
	Count   int64
	Records []record.Record
}
