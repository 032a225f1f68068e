package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// History rows form an append-only arena: the autoincrement id is the
// insertion index, compaction flips the compacted flag and never deletes.

// InsertHistoryEntry appends an entry and returns its assigned id.
func InsertHistoryEntry(ctx context.Context, q DBTX, e *HistoryEntry) (int64, error) {
	query := `
		INSERT INTO history_entries (job_id, role, content, token_estimate, compacted, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := q.ExecContext(ctx, query,
		e.JobID, e.Role, e.Content, e.TokenEstimate, e.Compacted, FormatTime(e.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert history entry for job %s: %w", e.JobID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get history entry id: %w", err)
	}
	return id, nil
}

const historyColumns = `id, job_id, role, content, token_estimate, compacted, created_at`

// ListActiveHistory returns a job's uncompacted entries in insertion order.
func ListActiveHistory(ctx context.Context, q DBTX, jobID string) ([]*HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM history_entries
		WHERE job_id = ? AND compacted = 0 ORDER BY id ASC`
	return queryHistory(ctx, q, query, jobID)
}

// ListHistory returns a job's full history in insertion order, compacted
// rows included.
func ListHistory(ctx context.Context, q DBTX, jobID string) ([]*HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM history_entries
		WHERE job_id = ? ORDER BY id ASC`
	return queryHistory(ctx, q, query, jobID)
}

func queryHistory(ctx context.Context, q DBTX, query string, args ...any) ([]*HistoryEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*HistoryEntry
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history row iteration error: %w", err)
	}
	return entries, nil
}

// MarkEntriesCompacted flips the compacted flag on the given entries.
func MarkEntriesCompacted(ctx context.Context, q DBTX, jobID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	query := fmt.Sprintf(
		`UPDATE history_entries SET compacted = 1 WHERE job_id = ? AND id IN (%s)`,
		placeholders[:len(placeholders)-1],
	)
	args := make([]any, 0, len(ids)+1)
	args = append(args, jobID)
	for _, id := range ids {
		args = append(args, id)
	}
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark entries compacted for job %s: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("compaction marked %d of %d entries for job %s", affected, len(ids), jobID)
	}
	return nil
}

// LatestActiveSummary returns the most recent uncompacted summary entry.
func LatestActiveSummary(ctx context.Context, q DBTX, jobID string) (*HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM history_entries
		WHERE job_id = ? AND role = ? AND compacted = 0 ORDER BY id DESC LIMIT 1`
	row := q.QueryRowContext(ctx, query, jobID, RoleSummary)
	e, err := scanHistoryEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary for job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary for job %s: %w", jobID, err)
	}
	return e, nil
}

// SumActiveTokens returns the token estimate total over uncompacted entries.
func SumActiveTokens(ctx context.Context, q DBTX, jobID string) (int64, error) {
	var sum int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(token_estimate), 0) FROM history_entries WHERE job_id = ? AND compacted = 0`,
		jobID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum active tokens for job %s: %w", jobID, err)
	}
	return sum, nil
}

func scanHistoryEntry(r rowScanner) (*HistoryEntry, error) {
	var e HistoryEntry
	var createdAt string
	if err := r.Scan(&e.ID, &e.JobID, &e.Role, &e.Content, &e.TokenEstimate, &e.Compacted, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if e.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertCheckpoint stores a named job state snapshot.
func InsertCheckpoint(ctx context.Context, q DBTX, cp *Checkpoint) error {
	query := `
		INSERT INTO checkpoints (id, job_id, label, state, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		cp.ID, cp.JobID, cp.Label, cp.State, cp.ContentHash, FormatTime(cp.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

const checkpointColumns = `id, job_id, label, state, content_hash, created_at`

// ListCheckpoints returns a job's checkpoints, newest first.
func ListCheckpoints(ctx context.Context, q DBTX, jobID string) ([]*Checkpoint, error) {
	query := `SELECT ` + checkpointColumns + ` FROM checkpoints
		WHERE job_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := q.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for job %s: %w", jobID, err)
	}
	defer func() { _ = rows.Close() }()

	var cps []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		cps = append(cps, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint row iteration error: %w", err)
	}
	return cps, nil
}

// LatestCheckpoint returns a job's most recent checkpoint.
func LatestCheckpoint(ctx context.Context, q DBTX, jobID string) (*Checkpoint, error) {
	query := `SELECT ` + checkpointColumns + ` FROM checkpoints
		WHERE job_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	row := q.QueryRowContext(ctx, query, jobID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint for job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint for job %s: %w", jobID, err)
	}
	return cp, nil
}

// PruneCheckpoints deletes all but the newest keep checkpoints for a job and
// returns how many were removed.
func PruneCheckpoints(ctx context.Context, q DBTX, jobID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	query := `
		DELETE FROM checkpoints WHERE job_id = ? AND id NOT IN (
			SELECT id FROM checkpoints WHERE job_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`
	result, err := q.ExecContext(ctx, query, jobID, jobID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune checkpoints for job %s: %w", jobID, err)
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return pruned, nil
}

func scanCheckpoint(r rowScanner) (*Checkpoint, error) {
	var cp Checkpoint
	var createdAt string
	if err := r.Scan(&cp.ID, &cp.JobID, &cp.Label, &cp.State, &cp.ContentHash, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if cp.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &cp, nil
}
