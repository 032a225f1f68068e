package persistence

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Review item status constants.
const (
	StatusPending            = "pending"
	StatusApproved           = "approved"
	StatusRejected           = "rejected"
	StatusNeedsClarification = "needs_clarification"
)

// ValidStatuses returns all valid review item statuses.
func ValidStatuses() []string {
	return []string{
		StatusPending,
		StatusApproved,
		StatusRejected,
		StatusNeedsClarification,
	}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	for _, validStatus := range ValidStatuses() {
		if status == validStatus {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a status ends the review of an item.
// Needs-clarification items are still live; they resolve through an answer.
func IsTerminalStatus(status string) bool {
	return status == StatusApproved || status == StatusRejected
}

// Confidence source constants: who vouched for the resolved payload.
const (
	SourceModel = "model"
	SourceCache = "cache"
	SourceHuman = "human"
)

// Job status constants.
const (
	JobStatusActive    = "active"
	JobStatusPaused    = "paused"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// ValidJobStatuses returns all valid job statuses.
func ValidJobStatuses() []string {
	return []string{JobStatusActive, JobStatusPaused, JobStatusCompleted, JobStatusFailed}
}

// RoleSummary marks history entries written by compaction. All other roles
// are caller-defined.
const RoleSummary = "summary"

// Job represents one extraction run over a source document.
type Job struct {
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ID          string    `json:"id"`
	SourceLabel string    `json:"source_label"`
	Status      string    `json:"status"`
	Metadata    *string   `json:"metadata,omitempty"` // JSON blob for extensibility
}

// ReviewItem is one extracted payload moving through the review queue.
// Payload and ResolvedPayload hold encoded values; ResolvedPayload is set
// exactly when Status is approved.
//
//nolint:govet // struct alignment optimization not critical for this type
type ReviewItem struct {
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ItemID           string     `json:"item_id"`
	JobID            string     `json:"job_id"`
	SourceLabel      string     `json:"source_label"`
	Payload          string     `json:"payload"`
	Status           string     `json:"status"`
	Confidence       *float64   `json:"confidence,omitempty"`
	ConfidenceSource *string    `json:"confidence_source,omitempty"` // "model", "cache", or "human"
	ResolvedPayload  *string    `json:"resolved_payload,omitempty"`
	Feedback         *string    `json:"feedback,omitempty"`
	Supersedes       *string    `json:"supersedes,omitempty"` // item this row corrects
}

// Clarification is a question raised for an item the system could not
// resolve on its own.
//
//nolint:govet // struct alignment optimization not critical for this type
type Clarification struct {
	CreatedAt  time.Time  `json:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	ID         string     `json:"id"`
	ItemID     string     `json:"item_id"`
	JobID      string     `json:"job_id"`
	Question   string     `json:"question"`
	Context    *string    `json:"context,omitempty"`
	Answer     *string    `json:"answer,omitempty"`
}

// CacheEntry is a learned resolution keyed by payload signature.
type CacheEntry struct {
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Signature  string    `json:"signature"`
	Resolution string    `json:"resolution"`
	Source     string    `json:"source"` // "human" or "auto"
	HitCount   int64     `json:"hit_count"`
}

// HistoryEntry is one record in a job's conversation history.
type HistoryEntry struct {
	CreatedAt     time.Time `json:"created_at"`
	ID            int64     `json:"id"`
	JobID         string    `json:"job_id"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	TokenEstimate int64     `json:"token_estimate"`
	Compacted     bool      `json:"compacted"`
}

// Checkpoint is a named snapshot of a job's working state.
type Checkpoint struct {
	CreatedAt   time.Time `json:"created_at"`
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	Label       string    `json:"label"`
	State       string    `json:"state"`
	ContentHash string    `json:"content_hash"`
}

// AuditEvent is one append-only record of a state change.
//
//nolint:govet // struct alignment optimization not critical for this type
type AuditEvent struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	JobID     *string   `json:"job_id,omitempty"`
	ItemID    *string   `json:"item_id,omitempty"`
	Detail    *string   `json:"detail,omitempty"`
}

// Audit event types.
const (
	EventItemSubmitted     = "item_submitted"
	EventItemAutoApproved  = "item_auto_approved"
	EventItemApproved      = "item_approved"
	EventItemRejected      = "item_rejected"
	EventItemClarified     = "item_clarified"
	EventItemSuperseded    = "item_superseded"
	EventClarificationOpen = "clarification_opened"
	EventCacheStore        = "cache_store"
	EventCacheHit          = "cache_hit"
	EventHistoryCompacted  = "history_compacted"
	EventJobCreated        = "job_created"
	EventJobStatusChanged  = "job_status_changed"
	EventCheckpointSaved   = "checkpoint_saved"
)

// GenerateItemID generates a new UUID for a review item.
func GenerateItemID() string {
	return uuid.New().String()
}

// GenerateClarificationID generates a new UUID for a clarification.
func GenerateClarificationID() string {
	return uuid.New().String()
}

// GenerateCheckpointID generates a new UUID for a checkpoint.
func GenerateCheckpointID() string {
	return uuid.New().String()
}

// GenerateJobID generates a 12-character hex ID for a job (like git commit
// hashes, long enough to avoid collisions across runs).
func GenerateJobID() (string, error) {
	bytes := make([]byte, 6) // 6 bytes = 12 hex characters
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return fmt.Sprintf("%x", bytes), nil
}

// ItemFilter represents criteria for querying review items.
type ItemFilter struct {
	JobID    *string  `json:"job_id,omitempty"`
	Status   *string  `json:"status,omitempty"`
	Statuses []string `json:"statuses,omitempty"` // For IN queries
	Limit    int      `json:"limit,omitempty"`
}

// QueueStats represents aggregated counts for a job's review queue.
type QueueStats struct {
	JobID              string         `json:"job_id"`
	ByStatus           map[string]int `json:"by_status"`
	Total              int            `json:"total"`
	AutoApproved       int            `json:"auto_approved"`
	OpenClarifications int            `json:"open_clarifications"`
}
