// Package contextmgr maintains bounded per-job working memory on top of the
// durable history arena. Entries append forever; when the active token sum
// crosses the configured budget fraction, the oldest entries are folded into
// a single summary row and flagged compacted. Compacted rows stay in the
// table for audit but never surface through GetWorkingMemory.
package contextmgr

import (
	"context"
	"fmt"
	"time"

	"curator/pkg/codec"
	"curator/pkg/logx"
	"curator/pkg/metrics"
	"curator/pkg/persistence"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultBudgetTokens   = 8000
	DefaultBudgetFraction = 0.8
	DefaultRetainTail     = 3
)

// Config tunes the working-memory budget and compaction behavior.
//
//nolint:govet // struct alignment optimization not critical for config types
type Config struct {
	// BudgetTokens is the nominal per-job token budget.
	BudgetTokens int64
	// BudgetFraction of the budget at which appends trigger compaction.
	BudgetFraction float64
	// RetainTail is the number of most recent entries never compacted.
	RetainTail int
	// Summarizer produces summary content for compacted runs. Defaults to
	// DigestSummarizer.
	Summarizer Summarizer
	// Metrics receives budget and compaction observations. Defaults to the
	// no-op recorder.
	Metrics metrics.Recorder
}

// WorkingMemorySnapshot is the active view of a job's history: the latest
// compaction summary (if any) followed by the remaining uncompacted entries
// in insertion order. Summaries logically precede the tail they replace even
// though their arena ids are higher.
type WorkingMemorySnapshot struct {
	Summary *persistence.HistoryEntry
	Entries []*persistence.HistoryEntry
}

// MemoryStats reports where a job stands against its budget.
//
//nolint:govet // struct alignment optimization not critical for this type
type MemoryStats struct {
	JobID         string  `json:"job_id"`
	ActiveTokens  int64   `json:"active_tokens"`
	BudgetTokens  int64   `json:"budget_tokens"`
	Threshold     int64   `json:"threshold"`
	ActiveEntries int     `json:"active_entries"`
	TotalEntries  int     `json:"total_entries"`
	ShouldCompact bool    `json:"should_compact"`
	Utilization   float64 `json:"utilization"`
}

// Manager tracks token budgets and compacts history for jobs in one store.
type Manager struct {
	store      *persistence.Store
	cfg        Config
	summarizer Summarizer
	logger     *logx.Logger
	metrics    metrics.Recorder
	now        func() time.Time
}

// New creates a manager bound to the given store. Zero Config fields fall
// back to the package defaults.
func New(store *persistence.Store, cfg Config) *Manager {
	if cfg.BudgetTokens <= 0 {
		cfg.BudgetTokens = DefaultBudgetTokens
	}
	if cfg.BudgetFraction <= 0 || cfg.BudgetFraction > 1 {
		cfg.BudgetFraction = DefaultBudgetFraction
	}
	if cfg.RetainTail <= 0 {
		cfg.RetainTail = DefaultRetainTail
	}
	summarizer := cfg.Summarizer
	if summarizer == nil {
		summarizer = DigestSummarizer{}
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Manager{
		store:      store,
		cfg:        cfg,
		summarizer: summarizer,
		logger:     logx.NewLogger("contextmgr"),
		metrics:    recorder,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// threshold is the active token sum above which compaction triggers.
func (m *Manager) threshold() int64 {
	return int64(float64(m.cfg.BudgetTokens) * m.cfg.BudgetFraction)
}

// Append records one history entry for the job. The token estimate is the
// length of the compact encoding, a deterministic proxy that needs no
// model-specific tokenizer. When the job's active sum crosses the budget
// threshold the manager compacts immediately; compaction failures are logged
// and do not fail the append, which is already durable by then.
func (m *Manager) Append(ctx context.Context, jobID, role string, content codec.Value) (*persistence.HistoryEntry, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	if role == "" {
		return nil, fmt.Errorf("role is required")
	}
	encoded := codec.Encode(content)
	entry := &persistence.HistoryEntry{
		JobID:         jobID,
		Role:          role,
		Content:       encoded,
		TokenEstimate: int64(len(encoded)),
		Compacted:     false,
		CreatedAt:     m.now(),
	}
	id, err := persistence.InsertHistoryEntry(ctx, m.store.DB(), entry)
	if err != nil {
		return nil, err
	}
	entry.ID = id

	sum, err := persistence.SumActiveTokens(ctx, m.store.DB(), jobID)
	if err != nil {
		return nil, err
	}
	if sum > m.threshold() {
		if _, cerr := m.Compact(ctx, jobID); cerr != nil {
			m.logger.Warn("auto-compaction for job %s failed: %v", jobID, cerr)
		} else if recounted, rerr := persistence.SumActiveTokens(ctx, m.store.DB(), jobID); rerr == nil {
			sum = recounted
		}
	}
	m.metrics.SetActiveTokens(jobID, sum)
	return entry, nil
}

// ActiveTokens returns the token estimate sum over uncompacted entries.
func (m *Manager) ActiveTokens(ctx context.Context, jobID string) (int64, error) {
	return persistence.SumActiveTokens(ctx, m.store.DB(), jobID)
}

// GetWorkingMemory returns the job's active view: the latest summary plus all
// other uncompacted entries in insertion order. Compacted entries never
// appear here; read ListHistory for the full audit trail.
func (m *Manager) GetWorkingMemory(ctx context.Context, jobID string) (*WorkingMemorySnapshot, error) {
	active, err := persistence.ListActiveHistory(ctx, m.store.DB(), jobID)
	if err != nil {
		return nil, err
	}
	snapshot := &WorkingMemorySnapshot{}
	var latestSummary *persistence.HistoryEntry
	for _, e := range active {
		if e.Role == persistence.RoleSummary {
			if latestSummary == nil || e.ID > latestSummary.ID {
				latestSummary = e
			}
		}
	}
	snapshot.Summary = latestSummary
	for _, e := range active {
		if latestSummary != nil && e.ID == latestSummary.ID {
			continue
		}
		snapshot.Entries = append(snapshot.Entries, e)
	}
	return snapshot, nil
}

// Compact folds the oldest uncompacted entries into one summary produced by
// the configured Summarizer. See CompactWith for the mechanics.
func (m *Manager) Compact(ctx context.Context, jobID string) (*persistence.HistoryEntry, error) {
	return m.compact(ctx, jobID, m.summarizer)
}

// CompactWith compacts using caller-supplied summary content instead of the
// configured Summarizer. The summary covers every entry older than the
// retained tail.
func (m *Manager) CompactWith(ctx context.Context, jobID string, summary codec.Value) (*persistence.HistoryEntry, error) {
	return m.compact(ctx, jobID, staticSummarizer{value: summary})
}

// compact folds everything older than the retained tail into one summary
// row, all in one transaction. The tail is the newest RetainTail non-summary
// entries; the previous summary, when still active, is folded in too since
// the new summary logically precedes every retained entry. Returns (nil, nil)
// when no non-summary entry is older than the tail, which makes repeated
// calls idempotent. Errors when the summary would not strictly shrink the
// active set; committing such a summary would let the budget ratchet upward.
func (m *Manager) compact(ctx context.Context, jobID string, summarizer Summarizer) (*persistence.HistoryEntry, error) {
	var summaryEntry *persistence.HistoryEntry
	var foldedEntries int
	var foldedTokens int64
	err := m.store.WithTx(ctx, func(tx persistence.DBTX) error {
		active, err := persistence.ListActiveHistory(ctx, tx, jobID)
		if err != nil {
			return err
		}
		nonSummary := 0
		for _, e := range active {
			if e.Role != persistence.RoleSummary {
				nonSummary++
			}
		}
		if nonSummary <= m.cfg.RetainTail {
			return nil
		}
		foldable := nonSummary - m.cfg.RetainTail
		eligible := make([]*persistence.HistoryEntry, 0, len(active)-m.cfg.RetainTail)
		folded := 0
		for _, e := range active {
			if e.Role == persistence.RoleSummary {
				eligible = append(eligible, e)
				continue
			}
			if folded < foldable {
				eligible = append(eligible, e)
				folded++
			}
		}

		var removedTokens int64
		ids := make([]int64, 0, len(eligible))
		for _, e := range eligible {
			removedTokens += e.TokenEstimate
			ids = append(ids, e.ID)
		}

		content, err := summarizer.Summarize(ctx, eligible)
		if err != nil {
			return fmt.Errorf("failed to summarize %d entries for job %s: %w", len(eligible), jobID, err)
		}
		encoded := codec.Encode(content)
		summaryTokens := int64(len(encoded))
		if summaryTokens >= removedTokens {
			return fmt.Errorf("summary of %d tokens does not reduce the %d tokens it replaces for job %s",
				summaryTokens, removedTokens, jobID)
		}

		if err := persistence.MarkEntriesCompacted(ctx, tx, jobID, ids); err != nil {
			return err
		}
		entry := &persistence.HistoryEntry{
			JobID:         jobID,
			Role:          persistence.RoleSummary,
			Content:       encoded,
			TokenEstimate: summaryTokens,
			Compacted:     false,
			CreatedAt:     m.now(),
		}
		id, err := persistence.InsertHistoryEntry(ctx, tx, entry)
		if err != nil {
			return err
		}
		entry.ID = id

		detail := fmt.Sprintf("compacted %d entries, %d tokens down to %d", len(eligible), removedTokens, summaryTokens)
		if err := persistence.InsertAuditEvent(ctx, tx, &persistence.AuditEvent{
			EventType: persistence.EventHistoryCompacted,
			JobID:     &jobID,
			Detail:    &detail,
			CreatedAt: m.now(),
		}); err != nil {
			return err
		}

		summaryEntry = entry
		foldedEntries = len(eligible)
		foldedTokens = removedTokens
		return nil
	})
	if err != nil {
		return nil, err
	}
	if summaryEntry != nil {
		m.metrics.ObserveCompaction(jobID, foldedEntries, foldedTokens)
		m.logger.Info("compacted history for job %s into entry %d", jobID, summaryEntry.ID)
	}
	return summaryEntry, nil
}

// Stats reports the job's position against its budget without mutating
// anything.
func (m *Manager) Stats(ctx context.Context, jobID string) (*MemoryStats, error) {
	active, err := persistence.ListActiveHistory(ctx, m.store.DB(), jobID)
	if err != nil {
		return nil, err
	}
	all, err := persistence.ListHistory(ctx, m.store.DB(), jobID)
	if err != nil {
		return nil, err
	}
	var sum int64
	for _, e := range active {
		sum += e.TokenEstimate
	}
	stats := &MemoryStats{
		JobID:         jobID,
		ActiveTokens:  sum,
		BudgetTokens:  m.cfg.BudgetTokens,
		Threshold:     m.threshold(),
		ActiveEntries: len(active),
		TotalEntries:  len(all),
		ShouldCompact: sum > m.threshold(),
	}
	if m.cfg.BudgetTokens > 0 {
		stats.Utilization = float64(sum) / float64(m.cfg.BudgetTokens)
	}
	return stats, nil
}
