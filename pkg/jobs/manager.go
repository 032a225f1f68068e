// Package jobs manages extraction job lifecycle and checkpointing. A job is
// the unit of work every review item and history entry hangs off; its status
// gates whether new work should be submitted, and checkpoints preserve named
// working-memory snapshots with content hashes for integrity.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"curator/pkg/logx"
	"curator/pkg/persistence"
	"curator/pkg/utils"
)

// ErrInvalidTransition is returned for a job status change the lifecycle
// does not allow.
var ErrInvalidTransition = errors.New("invalid job transition")

// DefaultKeepCheckpoints bounds per-job checkpoint retention.
const DefaultKeepCheckpoints = 5

// allowedTransitions is the job lifecycle: completed is terminal, failed
// jobs may reopen.
var allowedTransitions = map[string][]string{
	persistence.JobStatusActive:    {persistence.JobStatusPaused, persistence.JobStatusCompleted, persistence.JobStatusFailed},
	persistence.JobStatusPaused:    {persistence.JobStatusActive, persistence.JobStatusCompleted, persistence.JobStatusFailed},
	persistence.JobStatusFailed:    {persistence.JobStatusActive},
	persistence.JobStatusCompleted: {},
}

// Config tunes the manager.
type Config struct {
	// KeepCheckpoints is how many checkpoints survive per job; older ones
	// are pruned on each save. Zero means the default.
	KeepCheckpoints int
}

// Manager drives the job lifecycle and owns checkpoint retention.
type Manager struct {
	store  *persistence.Store
	keep   int
	logger *logx.Logger
	now    func() time.Time
}

// New creates a manager bound to the given store.
func New(store *persistence.Store, cfg Config) *Manager {
	keep := cfg.KeepCheckpoints
	if keep <= 0 {
		keep = DefaultKeepCheckpoints
	}
	return &Manager{
		store:  store,
		keep:   keep,
		logger: logx.NewLogger("jobs"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create starts a new active job for the given source.
func (m *Manager) Create(ctx context.Context, sourceLabel string, metadata *string) (*persistence.Job, error) {
	if sourceLabel == "" {
		return nil, fmt.Errorf("source label is required")
	}
	id, err := persistence.GenerateJobID()
	if err != nil {
		return nil, err
	}
	now := m.now()
	job := &persistence.Job{
		ID:          id,
		SourceLabel: sourceLabel,
		Status:      persistence.JobStatusActive,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = m.store.WithTx(ctx, func(tx persistence.DBTX) error {
		if err := persistence.InsertJob(ctx, tx, job); err != nil {
			return err
		}
		detail := fmt.Sprintf("source=%s", sourceLabel)
		return persistence.InsertAuditEvent(ctx, tx, &persistence.AuditEvent{
			EventType: persistence.EventJobCreated,
			JobID:     &job.ID,
			Detail:    &detail,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("created job %s for %s", job.ID, sourceLabel)
	return job, nil
}

// Get returns one job by id.
func (m *Manager) Get(ctx context.Context, jobID string) (*persistence.Job, error) {
	return persistence.GetJob(ctx, m.store.DB(), jobID)
}

// List returns all jobs oldest first.
func (m *Manager) List(ctx context.Context) ([]*persistence.Job, error) {
	return persistence.ListJobs(ctx, m.store.DB())
}

// Transition moves a job to a new status if the lifecycle allows it.
func (m *Manager) Transition(ctx context.Context, jobID, status string) (*persistence.Job, error) {
	valid := false
	for _, s := range persistence.ValidJobStatuses() {
		if s == status {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("invalid job status %q", status)
	}

	var job *persistence.Job
	err := m.store.WithTx(ctx, func(tx persistence.DBTX) error {
		var err error
		job, err = persistence.GetJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if !transitionAllowed(job.Status, status) {
			return fmt.Errorf("cannot move job %s from %s to %s: %w", jobID, job.Status, status, ErrInvalidTransition)
		}
		now := m.now()
		if err := persistence.UpdateJobStatus(ctx, tx, jobID, status, persistence.FormatTime(now)); err != nil {
			return err
		}
		detail := fmt.Sprintf("%s to %s", job.Status, status)
		job.Status = status
		job.UpdatedAt = now
		return persistence.InsertAuditEvent(ctx, tx, &persistence.AuditEvent{
			EventType: persistence.EventJobStatusChanged,
			JobID:     &jobID,
			Detail:    &detail,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Pause suspends an active job.
func (m *Manager) Pause(ctx context.Context, jobID string) (*persistence.Job, error) {
	return m.Transition(ctx, jobID, persistence.JobStatusPaused)
}

// Resume reactivates a paused or failed job.
func (m *Manager) Resume(ctx context.Context, jobID string) (*persistence.Job, error) {
	return m.Transition(ctx, jobID, persistence.JobStatusActive)
}

// Complete finishes a job.
func (m *Manager) Complete(ctx context.Context, jobID string) (*persistence.Job, error) {
	return m.Transition(ctx, jobID, persistence.JobStatusCompleted)
}

// Fail marks a job failed.
func (m *Manager) Fail(ctx context.Context, jobID string) (*persistence.Job, error) {
	return m.Transition(ctx, jobID, persistence.JobStatusFailed)
}

func transitionAllowed(from, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SaveCheckpoint stores a named state snapshot for a job and prunes old
// checkpoints past the retention limit. The snapshot, the job touch, the
// audit record, and the prune commit together.
func (m *Manager) SaveCheckpoint(ctx context.Context, jobID, label, state string) (*persistence.Checkpoint, error) {
	if label == "" {
		label = "snapshot"
	}
	// Labels end up in filenames and audit detail strings.
	label = utils.SanitizeIdentifier(label)
	var cp *persistence.Checkpoint
	err := m.store.WithTx(ctx, func(tx persistence.DBTX) error {
		if _, err := persistence.GetJob(ctx, tx, jobID); err != nil {
			return err
		}
		now := m.now()
		cp = &persistence.Checkpoint{
			ID:          persistence.GenerateCheckpointID(),
			JobID:       jobID,
			Label:       label,
			State:       state,
			ContentHash: hashState(state),
			CreatedAt:   now,
		}
		if err := persistence.InsertCheckpoint(ctx, tx, cp); err != nil {
			return err
		}
		if err := persistence.TouchJob(ctx, tx, jobID, persistence.FormatTime(now)); err != nil {
			return err
		}
		detail := fmt.Sprintf("label=%s hash=%s", label, cp.ContentHash[:12])
		if err := persistence.InsertAuditEvent(ctx, tx, &persistence.AuditEvent{
			EventType: persistence.EventCheckpointSaved,
			JobID:     &jobID,
			Detail:    &detail,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		pruned, err := persistence.PruneCheckpoints(ctx, tx, jobID, m.keep)
		if err != nil {
			return err
		}
		if pruned > 0 {
			m.logger.Debug("pruned %d old checkpoints for job %s", pruned, jobID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// GetCheckpoints returns a job's checkpoints newest first.
func (m *Manager) GetCheckpoints(ctx context.Context, jobID string) ([]*persistence.Checkpoint, error) {
	return persistence.ListCheckpoints(ctx, m.store.DB(), jobID)
}

// RestoreCheckpoint returns the most recent checkpoint after verifying its
// content hash. A mismatch means the stored state was corrupted or tampered
// with; the checkpoint is returned alongside the error for inspection.
func (m *Manager) RestoreCheckpoint(ctx context.Context, jobID string) (*persistence.Checkpoint, error) {
	cp, err := persistence.LatestCheckpoint(ctx, m.store.DB(), jobID)
	if err != nil {
		return nil, err
	}
	if err := VerifyCheckpoint(cp); err != nil {
		return cp, err
	}
	return cp, nil
}

// VerifyCheckpoint recomputes the content hash over the stored state.
func VerifyCheckpoint(cp *persistence.Checkpoint) error {
	if got := hashState(cp.State); got != cp.ContentHash {
		return fmt.Errorf("checkpoint %s content hash mismatch: stored %s, computed %s", cp.ID, cp.ContentHash, got)
	}
	return nil
}

func hashState(state string) string {
	sum := sha256.Sum256([]byte(state))
	return hex.EncodeToString(sum[:])
}
