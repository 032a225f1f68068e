package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/pkg/persistence"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *persistence.Store) {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, cfg), store
}

// stepClock makes timestamps strictly increase so retention ordering is
// deterministic.
func stepClock(m *Manager) {
	base := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	step := 0
	m.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}
}

func TestCreateAndGet(t *testing.T) {
	m, store := newTestManager(t, Config{})
	ctx := context.Background()

	job, err := m.Create(ctx, "vitals_dictionary.csv", nil)
	require.NoError(t, err)
	assert.Len(t, job.ID, 12)
	assert.Equal(t, persistence.JobStatusActive, job.Status)

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "vitals_dictionary.csv", got.SourceLabel)

	jobs, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	events, err := persistence.ListAuditEvents(ctx, store.DB(), &persistence.AuditFilter{JobID: &job.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, persistence.EventJobCreated, events[0].EventType)
}

func TestCreateValidation(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	_, err := m.Create(context.Background(), "", nil)
	require.Error(t, err)
}

func TestLifecycleTransitions(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	ctx := context.Background()

	job, err := m.Create(ctx, "labs_dictionary.csv", nil)
	require.NoError(t, err)

	paused, err := m.Pause(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.JobStatusPaused, paused.Status)

	resumed, err := m.Resume(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.JobStatusActive, resumed.Status)

	failed, err := m.Fail(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.JobStatusFailed, failed.Status)

	// Failed jobs reopen; they do not complete directly.
	_, err = m.Complete(ctx, job.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = m.Resume(ctx, job.ID)
	require.NoError(t, err)
	completed, err := m.Complete(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.JobStatusCompleted, completed.Status)

	// Completed is terminal.
	for _, status := range persistence.ValidJobStatuses() {
		_, err := m.Transition(ctx, job.ID, status)
		assert.ErrorIs(t, err, ErrInvalidTransition, "completed -> %s must be rejected", status)
	}

	_, err = m.Transition(ctx, job.ID, "archived")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidTransition, "unknown status is a validation error")

	_, err = m.Pause(ctx, "000000000000")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestTransitionAudit(t *testing.T) {
	m, store := newTestManager(t, Config{})
	ctx := context.Background()

	job, err := m.Create(ctx, "meds_dictionary.csv", nil)
	require.NoError(t, err)
	_, err = m.Pause(ctx, job.ID)
	require.NoError(t, err)

	events, err := persistence.ListAuditEvents(ctx, store.DB(), &persistence.AuditFilter{JobID: &job.ID})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	latest := events[0]
	assert.Equal(t, persistence.EventJobStatusChanged, latest.EventType)
	require.NotNil(t, latest.Detail)
	assert.Equal(t, "active to paused", *latest.Detail)
}

func TestCheckpointSaveAndRestore(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	ctx := context.Background()
	stepClock(m)

	job, err := m.Create(ctx, "vitals_dictionary.csv", nil)
	require.NoError(t, err)

	state := "summary: null\nentries[0]{}:"
	cp, err := m.SaveCheckpoint(ctx, job.ID, "after-first-pass", state)
	require.NoError(t, err)
	assert.Equal(t, "after-first-pass", cp.Label)
	assert.Len(t, cp.ContentHash, 64)
	require.NoError(t, VerifyCheckpoint(cp))

	_, err = m.SaveCheckpoint(ctx, job.ID, "", "summary: null\nentries[1]:\n  - x")
	require.NoError(t, err)

	restored, err := m.RestoreCheckpoint(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "snapshot", restored.Label, "empty label falls back to the default")
	assert.NotEqual(t, cp.ID, restored.ID, "restore returns the newest checkpoint")
}

func TestCheckpointLabelSanitized(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	ctx := context.Background()

	job, err := m.Create(ctx, "vitals_dictionary.csv", nil)
	require.NoError(t, err)

	cp, err := m.SaveCheckpoint(ctx, job.ID, "pass 1: analyzed", "state")
	require.NoError(t, err)
	assert.Equal(t, "pass-1--analyzed", cp.Label)
}

func TestCheckpointRetention(t *testing.T) {
	m, _ := newTestManager(t, Config{KeepCheckpoints: 2})
	ctx := context.Background()
	stepClock(m)

	job, err := m.Create(ctx, "vitals_dictionary.csv", nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := m.SaveCheckpoint(ctx, job.ID, fmt.Sprintf("pass-%d", i), fmt.Sprintf("state %d", i))
		require.NoError(t, err)
	}

	cps, err := m.GetCheckpoints(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, "pass-3", cps[0].Label)
	assert.Equal(t, "pass-2", cps[1].Label)
}

func TestRestoreDetectsCorruption(t *testing.T) {
	m, store := newTestManager(t, Config{})
	ctx := context.Background()

	job, err := m.Create(ctx, "vitals_dictionary.csv", nil)
	require.NoError(t, err)
	cp, err := m.SaveCheckpoint(ctx, job.ID, "good", "original state")
	require.NoError(t, err)

	_, err = store.DB().ExecContext(ctx, `UPDATE checkpoints SET state = ? WHERE id = ?`, "tampered state", cp.ID)
	require.NoError(t, err)

	_, err = m.RestoreCheckpoint(ctx, job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content hash mismatch")
}

func TestCheckpointUnknownJob(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	_, err := m.SaveCheckpoint(context.Background(), "ffffffffffff", "label", "state")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	_, err = m.RestoreCheckpoint(context.Background(), "ffffffffffff")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}
