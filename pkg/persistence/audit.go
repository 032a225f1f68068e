package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// The audit trail is append-only. Rows are written inside the same
// transaction as the state change they describe, so the trail never shows an
// event whose transition did not commit.

// InsertAuditEvent appends one audit record.
func InsertAuditEvent(ctx context.Context, q DBTX, e *AuditEvent) error {
	query := `
		INSERT INTO audit_events (job_id, item_id, event_type, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		nullStringArg(e.JobID), nullStringArg(e.ItemID), e.EventType,
		nullStringArg(e.Detail), FormatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event %s: %w", e.EventType, err)
	}
	return nil
}

// AuditFilter narrows audit queries.
type AuditFilter struct {
	JobID  *string
	ItemID *string
	Limit  int
}

// ListAuditEvents returns matching events, newest first. A zero limit
// returns everything.
func ListAuditEvents(ctx context.Context, q DBTX, filter *AuditFilter) ([]*AuditEvent, error) {
	var conds []string
	var args []any
	if filter != nil {
		if filter.JobID != nil {
			conds = append(conds, "job_id = ?")
			args = append(args, *filter.JobID)
		}
		if filter.ItemID != nil {
			conds = append(conds, "item_id = ?")
			args = append(args, *filter.ItemID)
		}
	}

	query := `SELECT id, job_id, item_id, event_type, detail, created_at FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*AuditEvent
	for rows.Next() {
		var e AuditEvent
		var jobID, itemID, detail sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &jobID, &itemID, &e.EventType, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if e.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		e.JobID = nullString(jobID)
		e.ItemID = nullString(itemID)
		e.Detail = nullString(detail)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit event iteration error: %w", err)
	}
	return events, nil
}
