package store

import (
	"context"
	"fmt"

	"github.com/roach88/aiguard/internal/pipeline"
)

// WriteResult stores a pipeline result and its field events.
func (s *Store) WriteResult(ctx context.Context, res pipeline.Result) error {
	run, err := RunFromResult(res)
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	_, err = s.WriteRun(ctx, run)
	return err
}

// WriteRun inserts a run and its events in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: writing the same run id
// twice leaves the first row and its events untouched and reports
// inserted=false.
func (s *Store) WriteRun(ctx context.Context, run Run) (inserted bool, err error) {
	record, err := marshalRecord(run.Record)
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}
	path, err := marshalStrings(run.Path)
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}
	dropped, err := marshalStrings(run.Dropped)
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, contract_id, strictness, path, outcome, record_default, record_default_reason,
		 parse_error, dropped, input_digest, record, record_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.ContractID,
		run.Strictness,
		path,
		run.Outcome,
		run.RecordDefault,
		run.RecordDefaultReason,
		run.ParseError,
		dropped,
		run.InputDigest,
		record,
		run.RecordDigest,
	)
	if err != nil {
		return false, fmt.Errorf("write run: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write run: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	for _, ev := range run.Events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO field_events (run_id, ord, field, kind, detail, outcome)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, ord) DO NOTHING
		`, run.ID, ev.Ord, ev.Field, ev.Kind, ev.Detail, ev.Outcome)
		if err != nil {
			return false, fmt.Errorf("write run: field event %d: %w", ev.Ord, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write run: commit: %w", err)
	}
	return true, nil
}
