// Package ingest loads access-log lines into a Store exactly once.
//
// A Pipeline reads its source sequentially, parses each line, and commits
// records in fixed-size batches. A bad line is logged and skipped; only a
// store or source failure aborts the run. The load-once guard is a plain
// count check: two pipelines started concurrently against an empty store can
// both pass it.
package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"time"

	"github.com/ehrlich-b/accesslog/internal/parser"
	"github.com/ehrlich-b/accesslog/internal/record"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// DefaultBatchSize is the number of records committed per transaction.
const DefaultBatchSize = 1000

// maxRecordedErrors bounds Summary.Errors. Summary.Skipped stays exact.
const maxRecordedErrors = 100

var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrSource           = errors.New("source read failed")
)

// Store is the subset of storage.Store the pipeline writes through.
type Store interface {
	Count(ctx context.Context) (int64, error)
	InsertBatch(ctx context.Context, records []record.Record) error
}

// LineSource is an ordered, finite sequence of lines. *bufio.Scanner,
// *source.Reader and *source.Lazy all satisfy it.
type LineSource interface {
	Scan() bool
	Text() string
	Err() error
}

// Observer receives progress after every committed batch.
type Observer interface {
	BatchCommitted(size, processed int)
}

// Options configures a Pipeline. Zero values select defaults.
type Options struct {
	BatchSize int
	Parser    *parser.Parser
	Observer  Observer
	Logger    *slog.Logger
}

// Pipeline drives a single load of a line source into a Store.
type Pipeline struct {
	store     Store
	parser    *parser.Parser
	batchSize int
	observer  Observer
	log       *slog.Logger
}

// NewPipeline creates a pipeline writing to store.
func NewPipeline(store Store, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Parser == nil {
		opts.Parser = parser.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		store:     store,
		parser:    opts.Parser,
		batchSize: opts.BatchSize,
		observer:  opts.Observer,
		log:       opts.Logger,
	}
}

// run holds the mutable state of one Run call.
type run struct {
	sum    Summary
	batch  []record.Record
	digest hash.Hash
}

// Run loads src into the store. It returns a Summary in every case; the
// error is non-nil only when the run was aborted, and then wraps
// ErrStoreUnavailable, ErrSource, or the context error.
func (p *Pipeline) Run(ctx context.Context, src LineSource) (Summary, error) {
	r := &run{
		sum: Summary{
			RunID:   uuid.NewString(),
			State:   StateNotStarted,
			Started: time.Now(),
		},
		digest: sha3.New256(),
	}
	log := p.log.With("run_id", r.sum.RunID)

	existing, err := p.store.Count(ctx)
	if err != nil {
		return p.abort(r, log, fmt.Errorf("%w: count records: %w", ErrStoreUnavailable, err))
	}
	if existing > 0 {
		log.Info("logs already loaded, skipping", "records", existing)
		r.sum.State = StateAlreadyLoaded
		r.sum.Finished = time.Now()
		return r.sum, nil
	}

	r.sum.State = StateRunning
	r.batch = make([]record.Record, 0, p.batchSize)
	log.Info("loading logs", "batch_size", p.batchSize)

	for src.Scan() {
		if err := ctx.Err(); err != nil {
			return p.abort(r, log, err)
		}
		r.sum.Lines++
		line := src.Text()
		r.digest.Write([]byte(line))
		r.digest.Write([]byte{'\n'})

		if !p.handleLine(r, log, r.sum.Lines, line) {
			continue
		}
		if len(r.batch) >= p.batchSize {
			if err := p.flush(ctx, r, log); err != nil {
				return p.abort(r, log, err)
			}
		}
	}
	if err := src.Err(); err != nil {
		return p.abort(r, log, fmt.Errorf("%w: after line %d: %w", ErrSource, r.sum.Lines, err))
	}

	if err := p.flush(ctx, r, log); err != nil {
		return p.abort(r, log, err)
	}

	r.sum.State = StateCompleted
	r.sum.Finished = time.Now()
	r.sum.Digest = hex.EncodeToString(r.digest.Sum(nil))
	log.Info("logs loaded successfully",
		"processed", r.sum.Processed,
		"skipped", r.sum.Skipped,
		"lines", r.sum.Lines,
		"batches", r.sum.Batches,
		"duration", r.sum.Duration())
	return r.sum, nil
}

// handleLine parses one line and queues its record. It reports whether a
// record was queued.
func (p *Pipeline) handleLine(r *run, log *slog.Logger, n int, line string) bool {
	res := p.parser.Parse(line)
	switch res.Skip {
	case parser.SkipNone:
	case parser.SkipBlank:
		return false
	case parser.SkipMalformed:
		log.Warn("skipping malformed line", "line", n, "content", line)
		r.recordSkip(LineError{Line: n, Reason: res.Skip, Content: line, Err: res.Err})
		return false
	default:
		log.Warn("error processing line", "line", n, "error", res.Err)
		r.recordSkip(LineError{Line: n, Reason: res.Skip, Content: line, Err: res.Err})
		return false
	}

	if err := res.Record.Validate(); err != nil {
		log.Warn("error processing line", "line", n, "error", err)
		r.recordSkip(LineError{Line: n, Reason: parser.SkipInvalid, Content: line, Err: err})
		return false
	}

	r.batch = append(r.batch, res.Record)
	return true
}

// flush commits the pending batch, if any.
func (p *Pipeline) flush(ctx context.Context, r *run, log *slog.Logger) error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := p.store.InsertBatch(ctx, r.batch); err != nil {
		return fmt.Errorf("%w: insert batch of %d: %w", ErrStoreUnavailable, len(r.batch), err)
	}

	size := len(r.batch)
	r.sum.Processed += size
	r.sum.Batches++
	log.Info("batch committed", "size", size, "processed", r.sum.Processed, "lines", r.sum.Lines)
	if p.observer != nil {
		p.observer.BatchCommitted(size, r.sum.Processed)
	}

	r.batch = make([]record.Record, 0, p.batchSize)
	return nil
}

func (p *Pipeline) abort(r *run, log *slog.Logger, err error) (Summary, error) {
	if r.sum.State == StateRunning {
		r.sum.Digest = hex.EncodeToString(r.digest.Sum(nil))
	}
	r.sum.State = StateAborted
	r.sum.Finished = time.Now()
	log.Error("error loading logs",
		"error", err,
		"processed", r.sum.Processed,
		"lines", r.sum.Lines)
	return r.sum, err
}

func (r *run) recordSkip(e LineError) {
	r.sum.Skipped++
	if len(r.sum.Errors) < maxRecordedErrors {
		r.sum.Errors = append(r.sum.Errors, e)
	}
}
