// Package review implements the durable human-review state machine. Items
// enter Pending, leave through Approved or Rejected, and may detour through
// NeedsClarification when confidence is low and the mapping cache has no
// answer. Every transition commits atomically with its dependent fields and
// audit record; an observer never sees a half-applied transition.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"curator/pkg/cache"
	"curator/pkg/codec"
	"curator/pkg/logx"
	"curator/pkg/metrics"
	"curator/pkg/persistence"
)

// ErrInvalidTransition is returned when an operation is invoked on an item
// whose current status forbids it. This signals a caller ordering bug, not a
// transient condition, and is never retried internally.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrNotFound mirrors the persistence sentinel so callers can match either.
var ErrNotFound = persistence.ErrNotFound

// SubmitRequest carries everything the producing step knows about an item.
// Threshold is caller-supplied per submit; the queue has no global notion of
// what counts as low confidence.
//
//nolint:govet // struct alignment optimization not critical for request types
type SubmitRequest struct {
	JobID       string
	SourceLabel string
	Payload     codec.Value
	Confidence  float64
	Threshold   float64
	// Question seeds the clarification when the item lands on the miss path.
	// Empty means a generic question derived from the source label.
	Question string
	// Context optionally gives the human extra material to answer with.
	Context *string
}

// Queue coordinates review item transitions over one store. All mutations
// for a job are serialized by the store's single writer.
type Queue struct {
	store   *persistence.Store
	cache   *cache.Cache
	logger  *logx.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// New creates a queue bound to the given store and mapping cache.
func New(store *persistence.Store, mappingCache *cache.Cache) *Queue {
	return &Queue{
		store:   store,
		cache:   mappingCache,
		logger:  logx.NewLogger("review"),
		metrics: metrics.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics sets the metrics recorder and returns the queue.
func (q *Queue) WithMetrics(rec metrics.Recorder) *Queue {
	q.metrics = rec
	return q
}

// Submit creates a review item. High-confidence items stay Pending for
// normal review. Below the threshold the queue consults the mapping cache:
// a hit auto-approves with the cached resolution and no human involvement, a
// miss opens a clarification. The item row, the cache hit count, the
// clarification, and the audit records commit in one transaction.
func (q *Queue) Submit(ctx context.Context, req *SubmitRequest) (*persistence.ReviewItem, error) {
	if req.JobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	if req.SourceLabel == "" {
		return nil, fmt.Errorf("source label is required")
	}
	if req.Payload == nil {
		return nil, fmt.Errorf("payload is required")
	}

	start := time.Now()
	now := q.now()
	confidence := req.Confidence
	source := persistence.SourceModel
	item := &persistence.ReviewItem{
		ItemID:           persistence.GenerateItemID(),
		JobID:            req.JobID,
		SourceLabel:      req.SourceLabel,
		Payload:          codec.Encode(req.Payload),
		Status:           persistence.StatusPending,
		Confidence:       &confidence,
		ConfidenceSource: &source,
		CreatedAt:        now,
	}

	err := q.store.WithTx(ctx, func(tx persistence.DBTX) error {
		if _, err := persistence.GetJob(ctx, tx, req.JobID); err != nil {
			return err
		}
		if err := persistence.InsertReviewItem(ctx, tx, item); err != nil {
			return err
		}
		if err := q.audit(ctx, tx, persistence.EventItemSubmitted, item,
			fmt.Sprintf("source=%s confidence=%.2f", req.SourceLabel, req.Confidence)); err != nil {
			return err
		}

		if req.Confidence >= req.Threshold {
			return nil
		}
		return q.resolveViaCache(ctx, tx, item, req, now)
	})
	if err != nil {
		return nil, err
	}

	// The final status tells us which path the submission took; the cache is
	// consulted exactly on the two below-threshold outcomes.
	switch item.Status {
	case persistence.StatusApproved:
		q.metrics.IncCacheLookup(metrics.LookupHit)
		q.metrics.ObserveSubmit(item.JobID, metrics.OutcomeAutoApproved, time.Since(start))
	case persistence.StatusNeedsClarification:
		q.metrics.IncCacheLookup(metrics.LookupMiss)
		q.metrics.ObserveSubmit(item.JobID, metrics.OutcomeNeedsClarification, time.Since(start))
	default:
		q.metrics.ObserveSubmit(item.JobID, metrics.OutcomePending, time.Since(start))
	}

	q.logger.Debug("submitted item %s for job %s with status %s", item.ItemID, item.JobID, item.Status)
	return item, nil
}

// resolveViaCache runs the low-confidence path inside the submit
// transaction: auto-approve on a hit, open a clarification on a miss.
func (q *Queue) resolveViaCache(ctx context.Context, tx persistence.DBTX, item *persistence.ReviewItem, req *SubmitRequest, now time.Time) error {
	signature := cache.Signature(req.Payload)
	resolution, hit, err := q.cache.LookupTx(ctx, tx, signature)
	if err != nil {
		return err
	}

	if hit {
		if err := q.cache.RecordHitTx(ctx, tx, signature); err != nil {
			return err
		}
		resolved := codec.Encode(resolution)
		confidenceSource := persistence.SourceCache
		item.Status = persistence.StatusApproved
		item.ConfidenceSource = &confidenceSource
		item.ResolvedPayload = &resolved
		item.ResolvedAt = &now
		if err := persistence.UpdateReviewItemResolution(ctx, tx, item); err != nil {
			return err
		}
		if err := q.audit(ctx, tx, persistence.EventCacheHit, item, fmt.Sprintf("signature=%s", signature)); err != nil {
			return err
		}
		return q.audit(ctx, tx, persistence.EventItemAutoApproved, item,
			fmt.Sprintf("confidence_source=cache signature=%s", signature))
	}

	question := req.Question
	if question == "" {
		question = fmt.Sprintf("How should this %s payload be resolved?", item.SourceLabel)
	}
	item.Status = persistence.StatusNeedsClarification
	if err := persistence.UpdateReviewItemResolution(ctx, tx, item); err != nil {
		return err
	}
	clarification := &persistence.Clarification{
		ID:        persistence.GenerateClarificationID(),
		ItemID:    item.ItemID,
		JobID:     item.JobID,
		Question:  question,
		Context:   req.Context,
		CreatedAt: now,
	}
	if err := persistence.InsertClarification(ctx, tx, clarification); err != nil {
		return err
	}
	return q.audit(ctx, tx, persistence.EventClarificationOpen, item, question)
}

// Approve resolves a Pending item. With a nil override the original payload
// becomes the resolved payload unchanged; a non-nil override is checked for
// draft artifacts first.
func (q *Queue) Approve(ctx context.Context, itemID string, override codec.Value) (*persistence.ReviewItem, error) {
	if override != nil {
		if err := validateOverride(override); err != nil {
			return nil, err
		}
	}
	var item *persistence.ReviewItem
	err := q.store.WithTx(ctx, func(tx persistence.DBTX) error {
		var err error
		item, err = q.getInStatus(ctx, tx, itemID, persistence.StatusPending, "approve")
		if err != nil {
			return err
		}
		resolved := item.Payload
		if override != nil {
			resolved = codec.Encode(override)
		}
		now := q.now()
		confidenceSource := persistence.SourceHuman
		item.Status = persistence.StatusApproved
		item.ConfidenceSource = &confidenceSource
		item.ResolvedPayload = &resolved
		item.ResolvedAt = &now
		if err := persistence.UpdateReviewItemResolution(ctx, tx, item); err != nil {
			return err
		}
		detail := "approved"
		if override != nil {
			detail = "approved with override"
		}
		return q.audit(ctx, tx, persistence.EventItemApproved, item, detail)
	})
	if err != nil {
		return nil, err
	}
	q.metrics.ObserveResolution(item.JobID, metrics.ActionApprove)
	return item, nil
}

// Reject resolves a Pending item negatively. Feedback is required; a bare
// rejection teaches the producer nothing.
func (q *Queue) Reject(ctx context.Context, itemID, feedback string) (*persistence.ReviewItem, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, fmt.Errorf("feedback is required to reject an item")
	}
	var item *persistence.ReviewItem
	err := q.store.WithTx(ctx, func(tx persistence.DBTX) error {
		var err error
		item, err = q.getInStatus(ctx, tx, itemID, persistence.StatusPending, "reject")
		if err != nil {
			return err
		}
		now := q.now()
		item.Status = persistence.StatusRejected
		item.Feedback = &feedback
		item.ResolvedAt = &now
		if err := persistence.UpdateReviewItemResolution(ctx, tx, item); err != nil {
			return err
		}
		return q.audit(ctx, tx, persistence.EventItemRejected, item, feedback)
	})
	if err != nil {
		return nil, err
	}
	q.metrics.ObserveResolution(item.JobID, metrics.ActionReject)
	return item, nil
}

// AnswerClarification resolves a NeedsClarification item with a human
// answer. The item approves with the given resolution, the answer lands in
// feedback, and the cache learns the mapping under the item's signature.
// This is the only path by which the cache gains human entries.
func (q *Queue) AnswerClarification(ctx context.Context, itemID, answer string, resolution codec.Value) (*persistence.ReviewItem, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("answer is required")
	}
	if resolution == nil {
		return nil, fmt.Errorf("resolution is required")
	}
	var item *persistence.ReviewItem
	err := q.store.WithTx(ctx, func(tx persistence.DBTX) error {
		var err error
		item, err = q.getInStatus(ctx, tx, itemID, persistence.StatusNeedsClarification, "answer clarification for")
		if err != nil {
			return err
		}
		now := q.now()
		if err := persistence.AnswerClarificationRow(ctx, tx, itemID, answer, persistence.FormatTime(now)); err != nil {
			return err
		}

		payload, err := codec.Decode(item.Payload)
		if err != nil {
			return fmt.Errorf("stored payload of item %s is malformed: %w", itemID, err)
		}
		signature := cache.Signature(payload)
		if err := q.cache.StoreTx(ctx, tx, signature, resolution, cache.SourceHuman, now); err != nil {
			return err
		}

		resolved := codec.Encode(resolution)
		confidenceSource := persistence.SourceHuman
		item.Status = persistence.StatusApproved
		item.ConfidenceSource = &confidenceSource
		item.ResolvedPayload = &resolved
		item.Feedback = &answer
		item.ResolvedAt = &now
		if err := persistence.UpdateReviewItemResolution(ctx, tx, item); err != nil {
			return err
		}
		if err := q.audit(ctx, tx, persistence.EventCacheStore, item, fmt.Sprintf("signature=%s source=human", signature)); err != nil {
			return err
		}
		return q.audit(ctx, tx, persistence.EventItemClarified, item, answer)
	})
	if err != nil {
		return nil, err
	}
	q.metrics.ObserveResolution(item.JobID, metrics.ActionAnswer)
	return item, nil
}

// Supersede files a corrected payload as a new Pending item linked to a
// resolved predecessor. The old item keeps its terminal state for audit;
// nothing is rewritten in place.
func (q *Queue) Supersede(ctx context.Context, itemID string, payload codec.Value) (*persistence.ReviewItem, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is required")
	}
	var replacement *persistence.ReviewItem
	err := q.store.WithTx(ctx, func(tx persistence.DBTX) error {
		old, err := persistence.GetReviewItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if !persistence.IsTerminalStatus(old.Status) {
			return fmt.Errorf("cannot supersede item %s in status %s: %w", itemID, old.Status, ErrInvalidTransition)
		}
		now := q.now()
		confidence := 1.0
		source := persistence.SourceHuman
		supersedes := old.ItemID
		replacement = &persistence.ReviewItem{
			ItemID:           persistence.GenerateItemID(),
			JobID:            old.JobID,
			SourceLabel:      old.SourceLabel,
			Payload:          codec.Encode(payload),
			Status:           persistence.StatusPending,
			Confidence:       &confidence,
			ConfidenceSource: &source,
			Supersedes:       &supersedes,
			CreatedAt:        now,
		}
		if err := persistence.InsertReviewItem(ctx, tx, replacement); err != nil {
			return err
		}
		if err := q.audit(ctx, tx, persistence.EventItemSuperseded, old,
			fmt.Sprintf("superseded by %s", replacement.ItemID)); err != nil {
			return err
		}
		return q.audit(ctx, tx, persistence.EventItemSubmitted, replacement,
			fmt.Sprintf("correction of %s", old.ItemID))
	})
	if err != nil {
		return nil, err
	}
	q.metrics.ObserveResolution(replacement.JobID, metrics.ActionSupersede)
	return replacement, nil
}

// GetItem returns one item by id.
func (q *Queue) GetItem(ctx context.Context, itemID string) (*persistence.ReviewItem, error) {
	return persistence.GetReviewItem(ctx, q.store.DB(), itemID)
}

// GetPending returns a job's Pending items oldest first.
func (q *Queue) GetPending(ctx context.Context, jobID string) ([]*persistence.ReviewItem, error) {
	return q.GetByStatus(ctx, jobID, persistence.StatusPending)
}

// GetByStatus returns a job's items in one status, oldest first.
func (q *Queue) GetByStatus(ctx context.Context, jobID, status string) ([]*persistence.ReviewItem, error) {
	if !persistence.IsValidStatus(status) {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	return persistence.ListReviewItems(ctx, q.store.DB(), &persistence.ItemFilter{
		JobID:  &jobID,
		Status: &status,
	})
}

// GetClarification returns the clarification attached to an item.
func (q *Queue) GetClarification(ctx context.Context, itemID string) (*persistence.Clarification, error) {
	return persistence.GetClarificationByItem(ctx, q.store.DB(), itemID)
}

// GetOpenClarifications returns a job's unanswered clarifications oldest
// first.
func (q *Queue) GetOpenClarifications(ctx context.Context, jobID string) ([]*persistence.Clarification, error) {
	return persistence.ListOpenClarifications(ctx, q.store.DB(), jobID)
}

// BatchApprove approves several Pending items in one transaction. The batch
// is all-or-nothing: one invalid item rolls back every approval.
func (q *Queue) BatchApprove(ctx context.Context, itemIDs []string) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	jobIDs := make([]string, 0, len(itemIDs))
	err := q.store.WithTx(ctx, func(tx persistence.DBTX) error {
		now := q.now()
		for _, itemID := range itemIDs {
			item, err := q.getInStatus(ctx, tx, itemID, persistence.StatusPending, "approve")
			if err != nil {
				return err
			}
			resolved := item.Payload
			confidenceSource := persistence.SourceHuman
			item.Status = persistence.StatusApproved
			item.ConfidenceSource = &confidenceSource
			item.ResolvedPayload = &resolved
			item.ResolvedAt = &now
			if err := persistence.UpdateReviewItemResolution(ctx, tx, item); err != nil {
				return err
			}
			if err := q.audit(ctx, tx, persistence.EventItemApproved, item, "batch approved"); err != nil {
				return err
			}
			jobIDs = append(jobIDs, item.JobID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, jobID := range jobIDs {
		q.metrics.ObserveResolution(jobID, metrics.ActionApprove)
	}
	return len(itemIDs), nil
}

// BatchReject rejects several Pending items with shared feedback in one
// all-or-nothing transaction.
func (q *Queue) BatchReject(ctx context.Context, itemIDs []string, feedback string) (int, error) {
	if strings.TrimSpace(feedback) == "" {
		return 0, fmt.Errorf("feedback is required to reject items")
	}
	if len(itemIDs) == 0 {
		return 0, nil
	}
	jobIDs := make([]string, 0, len(itemIDs))
	err := q.store.WithTx(ctx, func(tx persistence.DBTX) error {
		now := q.now()
		for _, itemID := range itemIDs {
			item, err := q.getInStatus(ctx, tx, itemID, persistence.StatusPending, "reject")
			if err != nil {
				return err
			}
			item.Status = persistence.StatusRejected
			item.Feedback = &feedback
			item.ResolvedAt = &now
			if err := persistence.UpdateReviewItemResolution(ctx, tx, item); err != nil {
				return err
			}
			if err := q.audit(ctx, tx, persistence.EventItemRejected, item, feedback); err != nil {
				return err
			}
			jobIDs = append(jobIDs, item.JobID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, jobID := range jobIDs {
		q.metrics.ObserveResolution(jobID, metrics.ActionReject)
	}
	return len(itemIDs), nil
}

// Stats aggregates a job's queue counts.
func (q *Queue) Stats(ctx context.Context, jobID string) (*persistence.QueueStats, error) {
	byStatus, err := persistence.CountItemsByStatus(ctx, q.store.DB(), jobID)
	if err != nil {
		return nil, err
	}
	autoApproved, err := persistence.CountAutoApproved(ctx, q.store.DB(), jobID)
	if err != nil {
		return nil, err
	}
	open, err := persistence.CountOpenClarifications(ctx, q.store.DB(), jobID)
	if err != nil {
		return nil, err
	}
	stats := &persistence.QueueStats{
		JobID:              jobID,
		ByStatus:           byStatus,
		AutoApproved:       autoApproved,
		OpenClarifications: open,
	}
	for _, n := range byStatus {
		stats.Total += n
	}
	return stats, nil
}

// getInStatus loads an item and checks it is in the required status.
func (q *Queue) getInStatus(ctx context.Context, tx persistence.DBTX, itemID, required, verb string) (*persistence.ReviewItem, error) {
	item, err := persistence.GetReviewItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != required {
		return nil, fmt.Errorf("cannot %s item %s in status %s: %w", verb, itemID, item.Status, ErrInvalidTransition)
	}
	return item, nil
}

func (q *Queue) audit(ctx context.Context, tx persistence.DBTX, eventType string, item *persistence.ReviewItem, detail string) error {
	event := &persistence.AuditEvent{
		EventType: eventType,
		JobID:     &item.JobID,
		ItemID:    &item.ItemID,
		Detail:    &detail,
		CreatedAt: q.now(),
	}
	return persistence.InsertAuditEvent(ctx, tx, event)
}
