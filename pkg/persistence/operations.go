package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Operations in this file take a DBTX so they run equally against the bare
// connection or inside a transaction. Multi-row reads order by created_at
// with id as tiebreaker, which is the review order guarantee.

// InsertJob inserts a new job record.
func InsertJob(ctx context.Context, q DBTX, job *Job) error {
	query := `
		INSERT INTO jobs (id, source_label, status, created_at, updated_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		job.ID, job.SourceLabel, job.Status,
		FormatTime(job.CreatedAt), FormatTime(job.UpdatedAt), nullStringArg(job.Metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns the job with the given id.
func GetJob(ctx context.Context, q DBTX, jobID string) (*Job, error) {
	query := `
		SELECT id, source_label, status, created_at, updated_at, metadata
		FROM jobs WHERE id = ?
	`
	row := q.QueryRowContext(ctx, query, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return job, nil
}

// UpdateJobStatus sets a job's status and bumps updated_at.
func UpdateJobStatus(ctx context.Context, q DBTX, jobID, status, updatedAt string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, updatedAt, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status for %s: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// TouchJob bumps a job's updated_at without changing status.
func TouchJob(ctx context.Context, q DBTX, jobID, updatedAt string) error {
	if _, err := q.ExecContext(ctx, `UPDATE jobs SET updated_at = ? WHERE id = ?`, updatedAt, jobID); err != nil {
		return fmt.Errorf("failed to touch job %s: %w", jobID, err)
	}
	return nil
}

// ListJobs returns all jobs, oldest first.
func ListJobs(ctx context.Context, q DBTX) ([]*Job, error) {
	query := `
		SELECT id, source_label, status, created_at, updated_at, metadata
		FROM jobs ORDER BY created_at ASC, id ASC
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job row iteration error: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*Job, error) {
	var job Job
	var createdAt, updatedAt string
	var metadata sql.NullString
	if err := r.Scan(&job.ID, &job.SourceLabel, &job.Status, &createdAt, &updatedAt, &metadata); err != nil {
		return nil, err
	}
	var err error
	if job.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return nil, err
	}
	job.Metadata = nullString(metadata)
	return &job, nil
}

const reviewItemColumns = `item_id, job_id, source_label, payload, status,
	confidence, confidence_source, resolved_payload, feedback, supersedes,
	created_at, resolved_at`

// InsertReviewItem inserts a new review item row.
func InsertReviewItem(ctx context.Context, q DBTX, item *ReviewItem) error {
	query := `
		INSERT INTO review_items (` + reviewItemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		item.ItemID, item.JobID, item.SourceLabel, item.Payload, item.Status,
		nullFloatArg(item.Confidence), nullStringArg(item.ConfidenceSource),
		nullStringArg(item.ResolvedPayload), nullStringArg(item.Feedback),
		nullStringArg(item.Supersedes),
		FormatTime(item.CreatedAt), nullTimeArg(item.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review item %s: %w", item.ItemID, err)
	}
	return nil
}

// GetReviewItem returns the item with the given id.
func GetReviewItem(ctx context.Context, q DBTX, itemID string) (*ReviewItem, error) {
	query := `SELECT ` + reviewItemColumns + ` FROM review_items WHERE item_id = ?`
	row := q.QueryRowContext(ctx, query, itemID)
	item, err := scanReviewItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review item %s: %w", itemID, err)
	}
	return item, nil
}

// UpdateReviewItemResolution applies a transition's field changes in one
// statement: status plus the dependent resolution fields.
func UpdateReviewItemResolution(ctx context.Context, q DBTX, item *ReviewItem) error {
	query := `
		UPDATE review_items SET
			status = ?,
			confidence_source = ?,
			resolved_payload = ?,
			feedback = ?,
			resolved_at = ?
		WHERE item_id = ?
	`
	result, err := q.ExecContext(ctx, query,
		item.Status, nullStringArg(item.ConfidenceSource),
		nullStringArg(item.ResolvedPayload), nullStringArg(item.Feedback),
		nullTimeArg(item.ResolvedAt), item.ItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to update review item %s: %w", item.ItemID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("review item %s: %w", item.ItemID, ErrNotFound)
	}
	return nil
}

// ListReviewItems returns items matching the filter, ordered by created_at
// ascending (review order).
func ListReviewItems(ctx context.Context, q DBTX, filter *ItemFilter) ([]*ReviewItem, error) {
	var conds []string
	var args []any

	if filter != nil {
		if filter.JobID != nil {
			conds = append(conds, "job_id = ?")
			args = append(args, *filter.JobID)
		}
		if filter.Status != nil {
			conds = append(conds, "status = ?")
			args = append(args, *filter.Status)
		}
		if len(filter.Statuses) > 0 {
			placeholders := strings.Repeat("?,", len(filter.Statuses))
			conds = append(conds, fmt.Sprintf("status IN (%s)", placeholders[:len(placeholders)-1]))
			for _, s := range filter.Statuses {
				args = append(args, s)
			}
		}
	}

	query := `SELECT ` + reviewItemColumns + ` FROM review_items`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, item_id ASC"
	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list review items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("review item row iteration error: %w", err)
	}
	return items, nil
}

// CountItemsByStatus returns per-status counts for a job.
func CountItemsByStatus(ctx context.Context, q DBTX, jobID string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM review_items WHERE job_id = ? GROUP BY status`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count review items for job %s: %w", jobID, err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("status count iteration error: %w", err)
	}
	return counts, nil
}

// CountAutoApproved returns how many of a job's approved items were resolved
// from the cache rather than by a human.
func CountAutoApproved(ctx context.Context, q DBTX, jobID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM review_items WHERE job_id = ? AND status = ? AND confidence_source = ?`,
		jobID, StatusApproved, SourceCache,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count auto-approved items for job %s: %w", jobID, err)
	}
	return n, nil
}

func scanReviewItem(r rowScanner) (*ReviewItem, error) {
	var item ReviewItem
	var createdAt string
	var confidence sql.NullFloat64
	var confidenceSource, resolvedPayload, feedback, supersedes, resolvedAt sql.NullString
	if err := r.Scan(
		&item.ItemID, &item.JobID, &item.SourceLabel, &item.Payload, &item.Status,
		&confidence, &confidenceSource, &resolvedPayload, &feedback, &supersedes,
		&createdAt, &resolvedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if item.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	if item.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return nil, err
	}
	item.Confidence = nullFloat(confidence)
	item.ConfidenceSource = nullString(confidenceSource)
	item.ResolvedPayload = nullString(resolvedPayload)
	item.Feedback = nullString(feedback)
	item.Supersedes = nullString(supersedes)
	return &item, nil
}

// InsertClarification inserts a new clarification request.
func InsertClarification(ctx context.Context, q DBTX, c *Clarification) error {
	query := `
		INSERT INTO clarifications (id, item_id, job_id, question, context, answer, created_at, answered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		c.ID, c.ItemID, c.JobID, c.Question, nullStringArg(c.Context),
		nullStringArg(c.Answer), FormatTime(c.CreatedAt), nullTimeArg(c.AnsweredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert clarification %s: %w", c.ID, err)
	}
	return nil
}

const clarificationColumns = `id, item_id, job_id, question, context, answer, created_at, answered_at`

// GetClarificationByItem returns the clarification attached to an item.
func GetClarificationByItem(ctx context.Context, q DBTX, itemID string) (*Clarification, error) {
	query := `SELECT ` + clarificationColumns + ` FROM clarifications WHERE item_id = ? ORDER BY created_at DESC LIMIT 1`
	row := q.QueryRowContext(ctx, query, itemID)
	c, err := scanClarification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("clarification for item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clarification for item %s: %w", itemID, err)
	}
	return c, nil
}

// AnswerClarificationRow records the human answer on the clarification row.
func AnswerClarificationRow(ctx context.Context, q DBTX, itemID, answer, answeredAt string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE clarifications SET answer = ?, answered_at = ? WHERE item_id = ? AND answer IS NULL`,
		answer, answeredAt, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to answer clarification for item %s: %w", itemID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("open clarification for item %s: %w", itemID, ErrNotFound)
	}
	return nil
}

// ListOpenClarifications returns unanswered clarifications for a job,
// oldest first.
func ListOpenClarifications(ctx context.Context, q DBTX, jobID string) ([]*Clarification, error) {
	query := `SELECT ` + clarificationColumns + ` FROM clarifications
		WHERE job_id = ? AND answer IS NULL ORDER BY created_at ASC, id ASC`
	rows, err := q.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open clarifications for job %s: %w", jobID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Clarification
	for rows.Next() {
		c, err := scanClarification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clarification: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clarification row iteration error: %w", err)
	}
	return out, nil
}

// CountOpenClarifications returns the number of unanswered clarifications
// for a job.
func CountOpenClarifications(ctx context.Context, q DBTX, jobID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clarifications WHERE job_id = ? AND answer IS NULL`, jobID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open clarifications for job %s: %w", jobID, err)
	}
	return n, nil
}

func scanClarification(r rowScanner) (*Clarification, error) {
	var c Clarification
	var createdAt string
	var contextText, answer, answeredAt sql.NullString
	if err := r.Scan(&c.ID, &c.ItemID, &c.JobID, &c.Question, &contextText, &answer, &createdAt, &answeredAt); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	if c.AnsweredAt, err = parseNullTime(answeredAt); err != nil {
		return nil, err
	}
	c.Context = nullString(contextText)
	c.Answer = nullString(answer)
	return &c, nil
}
