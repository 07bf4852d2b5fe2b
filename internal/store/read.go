package store

import (
	"context"
	"database/sql"
	"fmt"
)

const runColumns = `seq, id, contract_id, strictness, path, outcome, record_default,
	record_default_reason, parse_error, dropped, input_digest, record, record_digest`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReadRun retrieves a run and its field events by id.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}

	run.Events, err = s.readEvents(ctx, id)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns the most recent limit runs, oldest first. An empty
// contractID lists every contract; limit <= 0 means no limit.
// Field events are not loaded.
func (s *Store) ListRuns(ctx context.Context, contractID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	// Deterministic ordering - ORDER BY seq ASC, id COLLATE BINARY ASC
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM (
			SELECT `+runColumns+` FROM runs
			WHERE ? = '' OR contract_id = ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, contractID, contractID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	// Return empty slice instead of nil
	if runs == nil {
		runs = []Run{}
	}
	return runs, nil
}

// FieldStats counts field events per field and outcome. An empty
// contractID aggregates over every contract.
func (s *Store) FieldStats(ctx context.Context, contractID string) ([]FieldStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.field, e.outcome, COUNT(*)
		FROM field_events e
		JOIN runs r ON e.run_id = r.id
		WHERE ? = '' OR r.contract_id = ?
		GROUP BY e.field, e.outcome
		ORDER BY e.field COLLATE BINARY ASC, e.outcome COLLATE BINARY ASC
	`, contractID, contractID)
	if err != nil {
		return nil, fmt.Errorf("query field stats: %w", err)
	}
	defer rows.Close()

	stats := []FieldStat{}
	for rows.Next() {
		var st FieldStat
		if err := rows.Scan(&st.Field, &st.Outcome, &st.Count); err != nil {
			return nil, fmt.Errorf("scan field stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field stats: %w", err)
	}
	return stats, nil
}

// OutcomeCounts counts runs per contract and outcome. An empty contractID
// covers every contract.
func (s *Store) OutcomeCounts(ctx context.Context, contractID string) ([]OutcomeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT contract_id, outcome, COUNT(*)
		FROM runs
		WHERE ? = '' OR contract_id = ?
		GROUP BY contract_id, outcome
		ORDER BY contract_id COLLATE BINARY ASC, outcome COLLATE BINARY ASC
	`, contractID, contractID)
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	defer rows.Close()

	counts := []OutcomeCount{}
	for rows.Next() {
		var oc OutcomeCount
		if err := rows.Scan(&oc.Contract, &oc.Outcome, &oc.Count); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts = append(counts, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome counts: %w", err)
	}
	return counts, nil
}

// CountRuns returns the number of stored runs.
func (s *Store) CountRuns(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func (s *Store) readEvents(ctx context.Context, runID string) ([]FieldEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ord, field, kind, detail, outcome
		FROM field_events
		WHERE run_id = ?
		ORDER BY ord ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query field events: %w", err)
	}
	defer rows.Close()

	var events []FieldEvent
	for rows.Next() {
		var ev FieldEvent
		if err := rows.Scan(&ev.Ord, &ev.Field, &ev.Kind, &ev.Detail, &ev.Outcome); err != nil {
			return nil, fmt.Errorf("scan field event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field events: %w", err)
	}
	return events, nil
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run           Run
		path, dropped string
		record        string
		recordDefault int64
	)
	err := row.Scan(
		&run.Seq,
		&run.ID,
		&run.ContractID,
		&run.Strictness,
		&path,
		&run.Outcome,
		&recordDefault,
		&run.RecordDefaultReason,
		&run.ParseError,
		&dropped,
		&run.InputDigest,
		&record,
		&run.RecordDigest,
	)
	if err == sql.ErrNoRows {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.RecordDefault = recordDefault != 0

	if run.Path, err = unmarshalStrings(path); err != nil {
		return Run{}, err
	}
	if run.Dropped, err = unmarshalStrings(dropped); err != nil {
		return Run{}, err
	}
	if run.Record, err = unmarshalRecord(record); err != nil {
		return Run{}, err
	}
	return run, nil
}
