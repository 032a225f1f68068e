package contextmgr

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"curator/pkg/codec"
	"curator/pkg/persistence"
)

const testJobID = "a1b2c3d4e5f6"

func newTestManager(t *testing.T, cfg Config) (*Manager, *persistence.Store) {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "contextmgr.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	now := time.Now().UTC()
	job := &persistence.Job{
		ID:          testJobID,
		SourceLabel: "vitals_dictionary.csv",
		Status:      persistence.JobStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := persistence.InsertJob(context.Background(), store.DB(), job); err != nil {
		t.Fatalf("Failed to insert job: %v", err)
	}
	return New(store, cfg), store
}

// appendText appends a bare string whose encoding is the string itself, so
// the token estimate is exactly len(text).
func appendText(t *testing.T, m *Manager, role, text string) *persistence.HistoryEntry {
	t.Helper()
	entry, err := m.Append(context.Background(), testJobID, role, codec.String(text))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	return entry
}

func TestAppendEstimatesTokens(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	content := codec.NewMap().
		Set("field", codec.String("bp_sys")).
		Set("unit", codec.String("mmHg"))

	entry, err := m.Append(context.Background(), testJobID, "producer", content)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if entry.ID == 0 {
		t.Error("Expected assigned entry id, got 0")
	}

	wantEncoded := codec.Encode(content)
	if entry.Content != wantEncoded {
		t.Errorf("Expected content %q, got %q", wantEncoded, entry.Content)
	}
	if entry.TokenEstimate != int64(len(wantEncoded)) {
		t.Errorf("Expected token estimate %d (encoded length), got %d", len(wantEncoded), entry.TokenEstimate)
	}

	sum, err := m.ActiveTokens(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("ActiveTokens failed: %v", err)
	}
	if sum != entry.TokenEstimate {
		t.Errorf("Expected active sum %d, got %d", entry.TokenEstimate, sum)
	}
}

func TestAppendValidation(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	if _, err := m.Append(context.Background(), "", "producer", codec.Int(1)); err == nil {
		t.Error("Expected error for empty job id")
	}
	if _, err := m.Append(context.Background(), testJobID, "", codec.Int(1)); err == nil {
		t.Error("Expected error for empty role")
	}
}

func TestWorkingMemoryOrder(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	roles := []string{"producer", "human", "producer"}
	for i, role := range roles {
		appendText(t, m, role, strings.Repeat("x", 10+i))
	}

	wm, err := m.GetWorkingMemory(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("GetWorkingMemory failed: %v", err)
	}
	if wm.Summary != nil {
		t.Error("Expected no summary before compaction")
	}
	if len(wm.Entries) != len(roles) {
		t.Fatalf("Expected %d entries, got %d", len(roles), len(wm.Entries))
	}
	for i, e := range wm.Entries {
		if e.Role != roles[i] {
			t.Errorf("Entry %d: expected role %q, got %q", i, roles[i], e.Role)
		}
		if i > 0 && e.ID <= wm.Entries[i-1].ID {
			t.Errorf("Entry %d: id %d not after %d", i, e.ID, wm.Entries[i-1].ID)
		}
	}
}

func TestCompactFoldsOldEntries(t *testing.T) {
	m, store := newTestManager(t, Config{BudgetTokens: 10000, RetainTail: 2})
	for i := 0; i < 5; i++ {
		appendText(t, m, "producer", strings.Repeat("a", 100))
	}

	before, err := m.GetWorkingMemory(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("GetWorkingMemory failed: %v", err)
	}
	sumBefore, _ := m.ActiveTokens(context.Background(), testJobID)
	tail := before.Entries[len(before.Entries)-2:]

	summary, err := m.Compact(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if summary == nil {
		t.Fatal("Expected a summary entry")
	}
	if summary.Role != persistence.RoleSummary {
		t.Errorf("Expected role %q, got %q", persistence.RoleSummary, summary.Role)
	}

	sumAfter, err := m.ActiveTokens(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("ActiveTokens failed: %v", err)
	}
	if sumAfter >= sumBefore {
		t.Errorf("Expected active tokens to strictly decrease, got %d -> %d", sumBefore, sumAfter)
	}

	after, err := m.GetWorkingMemory(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("GetWorkingMemory failed: %v", err)
	}
	if after.Summary == nil {
		t.Fatal("Expected working memory to carry the summary")
	}
	if after.Summary.ID != summary.ID {
		t.Errorf("Expected summary id %d, got %d", summary.ID, after.Summary.ID)
	}
	if len(after.Entries) != len(tail) {
		t.Fatalf("Expected %d retained entries, got %d", len(tail), len(after.Entries))
	}
	for i, e := range after.Entries {
		if e.ID != tail[i].ID {
			t.Errorf("Retained entry %d: expected id %d, got %d", i, tail[i].ID, e.ID)
		}
		if e.Content != tail[i].Content {
			t.Errorf("Retained entry %d: content changed by compaction", i)
		}
	}

	// All rows survive compaction; only the flag changes.
	full, err := persistence.ListHistory(context.Background(), store.DB(), testJobID)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(full) != 6 {
		t.Fatalf("Expected 6 rows (5 entries + summary), got %d", len(full))
	}
	compacted := 0
	for _, e := range full {
		if e.Compacted {
			compacted++
		}
	}
	if compacted != 3 {
		t.Errorf("Expected 3 compacted rows, got %d", compacted)
	}
}

func TestCompactIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, Config{BudgetTokens: 10000, RetainTail: 2})
	for i := 0; i < 4; i++ {
		appendText(t, m, "producer", strings.Repeat("b", 100))
	}
	if _, err := m.Compact(context.Background(), testJobID); err != nil {
		t.Fatalf("First compact failed: %v", err)
	}
	sum, _ := m.ActiveTokens(context.Background(), testJobID)

	// Nothing new arrived, so nothing is eligible.
	again, err := m.Compact(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("Second compact failed: %v", err)
	}
	if again != nil {
		t.Error("Expected second compact to be a no-op")
	}
	sumAfter, _ := m.ActiveTokens(context.Background(), testJobID)
	if sumAfter != sum {
		t.Errorf("Expected active tokens unchanged by no-op, got %d -> %d", sum, sumAfter)
	}
}

func TestCompactBelowRetainTail(t *testing.T) {
	m, _ := newTestManager(t, Config{BudgetTokens: 10000, RetainTail: 3})
	appendText(t, m, "producer", strings.Repeat("c", 50))
	appendText(t, m, "human", strings.Repeat("d", 50))

	summary, err := m.Compact(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if summary != nil {
		t.Error("Expected no-op when entry count is within the retained tail")
	}
}

func TestAutoCompactionOnBudget(t *testing.T) {
	// Threshold is 500: the second 300-token append crosses it and folds the
	// first entry into a summary automatically.
	m, _ := newTestManager(t, Config{BudgetTokens: 1000, BudgetFraction: 0.5, RetainTail: 1})
	appendText(t, m, "producer", strings.Repeat("e", 300))

	wm, err := m.GetWorkingMemory(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("GetWorkingMemory failed: %v", err)
	}
	if wm.Summary != nil {
		t.Fatal("Expected no compaction below threshold")
	}

	appendText(t, m, "producer", strings.Repeat("f", 300))

	wm, err = m.GetWorkingMemory(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("GetWorkingMemory failed: %v", err)
	}
	if wm.Summary == nil {
		t.Fatal("Expected append over threshold to trigger compaction")
	}
	if len(wm.Entries) != 1 {
		t.Fatalf("Expected 1 retained entry, got %d", len(wm.Entries))
	}
	if got := wm.Entries[0].Content; got != strings.Repeat("f", 300) {
		t.Error("Expected the newest entry to survive compaction untouched")
	}

	sum, err := m.ActiveTokens(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("ActiveTokens failed: %v", err)
	}
	if sum >= 600 {
		t.Errorf("Expected compaction to shrink the active sum below 600, got %d", sum)
	}
}

func TestCompactWithCallerSummary(t *testing.T) {
	m, _ := newTestManager(t, Config{BudgetTokens: 10000, RetainTail: 1})
	for i := 0; i < 3; i++ {
		appendText(t, m, "producer", strings.Repeat("g", 100))
	}

	summary, err := m.CompactWith(context.Background(), testJobID, codec.String("early entries covered setup"))
	if err != nil {
		t.Fatalf("CompactWith failed: %v", err)
	}
	if summary == nil {
		t.Fatal("Expected a summary entry")
	}
	if summary.Content != "early entries covered setup" {
		t.Errorf("Expected caller summary content, got %q", summary.Content)
	}
	if summary.TokenEstimate != int64(len(summary.Content)) {
		t.Errorf("Expected summary token estimate %d, got %d", len(summary.Content), summary.TokenEstimate)
	}
}

func TestCompactRejectsOversizedSummary(t *testing.T) {
	m, _ := newTestManager(t, Config{BudgetTokens: 10000, RetainTail: 2})
	for i := 0; i < 5; i++ {
		appendText(t, m, "producer", strings.Repeat("h", 100))
	}

	// 300 tokens would be removed; a 500-token summary must be refused.
	_, err := m.CompactWith(context.Background(), testJobID, codec.String(strings.Repeat("z", 500)))
	if err == nil {
		t.Fatal("Expected error for a summary that does not shrink the active set")
	}

	// The refused compaction must leave no trace.
	wm, err := m.GetWorkingMemory(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("GetWorkingMemory failed: %v", err)
	}
	if wm.Summary != nil {
		t.Error("Expected no summary after refused compaction")
	}
	if len(wm.Entries) != 5 {
		t.Errorf("Expected all 5 entries still active, got %d", len(wm.Entries))
	}
	sum, _ := m.ActiveTokens(context.Background(), testJobID)
	if sum != 500 {
		t.Errorf("Expected active sum 500 untouched, got %d", sum)
	}
}

func TestWorkingMemoryNeverSurfacesCompacted(t *testing.T) {
	m, _ := newTestManager(t, Config{BudgetTokens: 10000, RetainTail: 1})
	for i := 0; i < 4; i++ {
		appendText(t, m, "producer", strings.Repeat("i", 100))
	}
	if _, err := m.Compact(context.Background(), testJobID); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	wm, err := m.GetWorkingMemory(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("GetWorkingMemory failed: %v", err)
	}
	if wm.Summary != nil && wm.Summary.Compacted {
		t.Error("Summary must not be compacted")
	}
	for _, e := range wm.Entries {
		if e.Compacted {
			t.Errorf("Entry %d is compacted but surfaced in working memory", e.ID)
		}
	}
}

func TestSuccessiveCompactionsFoldOldSummary(t *testing.T) {
	m, store := newTestManager(t, Config{BudgetTokens: 10000, RetainTail: 1})
	for i := 0; i < 3; i++ {
		appendText(t, m, "producer", strings.Repeat("j", 200))
	}
	first, err := m.Compact(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("First compact failed: %v", err)
	}
	if first == nil {
		t.Fatal("Expected first summary")
	}

	for i := 0; i < 2; i++ {
		appendText(t, m, "producer", strings.Repeat("k", 200))
	}
	second, err := m.Compact(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("Second compact failed: %v", err)
	}
	if second == nil {
		t.Fatal("Expected second summary")
	}

	// The first summary is older than the retained tail, so the second pass
	// folded it in.
	full, err := persistence.ListHistory(context.Background(), store.DB(), testJobID)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	for _, e := range full {
		if e.ID == first.ID && !e.Compacted {
			t.Error("Expected the first summary to be compacted by the second pass")
		}
	}

	wm, err := m.GetWorkingMemory(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("GetWorkingMemory failed: %v", err)
	}
	if wm.Summary == nil || wm.Summary.ID != second.ID {
		t.Error("Expected working memory to carry only the latest summary")
	}
	for _, e := range wm.Entries {
		if e.Role == persistence.RoleSummary {
			t.Errorf("Stale summary %d surfaced in entries", e.ID)
		}
	}
}

func TestCompactWritesAuditEvent(t *testing.T) {
	m, store := newTestManager(t, Config{BudgetTokens: 10000, RetainTail: 1})
	for i := 0; i < 3; i++ {
		appendText(t, m, "producer", strings.Repeat("l", 100))
	}
	if _, err := m.Compact(context.Background(), testJobID); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	jobID := testJobID
	events, err := persistence.ListAuditEvents(context.Background(), store.DB(), &persistence.AuditFilter{JobID: &jobID})
	if err != nil {
		t.Fatalf("ListAuditEvents failed: %v", err)
	}
	found := false
	for _, e := range events {
		if e.EventType == persistence.EventHistoryCompacted {
			found = true
			if e.Detail == nil || !strings.Contains(*e.Detail, "compacted 2 entries") {
				t.Errorf("Expected detail to name the compacted count, got %v", e.Detail)
			}
		}
	}
	if !found {
		t.Error("Expected a history_compacted audit event")
	}
}

func TestStats(t *testing.T) {
	m, _ := newTestManager(t, Config{BudgetTokens: 1000, BudgetFraction: 0.8, RetainTail: 2})
	appendText(t, m, "producer", strings.Repeat("m", 200))
	appendText(t, m, "human", strings.Repeat("n", 100))

	stats, err := m.Stats(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ActiveTokens != 300 {
		t.Errorf("Expected 300 active tokens, got %d", stats.ActiveTokens)
	}
	if stats.Threshold != 800 {
		t.Errorf("Expected threshold 800, got %d", stats.Threshold)
	}
	if stats.ShouldCompact {
		t.Error("Expected no compaction pressure at 300/800")
	}
	if stats.ActiveEntries != 2 || stats.TotalEntries != 2 {
		t.Errorf("Expected 2 active and 2 total entries, got %d and %d", stats.ActiveEntries, stats.TotalEntries)
	}
	if stats.Utilization != 0.3 {
		t.Errorf("Expected utilization 0.3, got %f", stats.Utilization)
	}
}

func TestDigestSummarizerShape(t *testing.T) {
	entries := []*persistence.HistoryEntry{
		{ID: 1, Role: "producer", TokenEstimate: 40, CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{ID: 2, Role: "producer", TokenEstimate: 35, CreatedAt: time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)},
		{ID: 3, Role: "human", TokenEstimate: 25, CreatedAt: time.Date(2026, 3, 1, 10, 9, 0, 0, time.UTC)},
	}
	value, err := DigestSummarizer{}.Summarize(context.Background(), entries)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	digest, ok := value.(*codec.Map)
	if !ok {
		t.Fatalf("Expected map digest, got %T", value)
	}
	if n, _ := digest.Get("entries"); n != codec.Int(3) {
		t.Errorf("Expected entries 3, got %v", n)
	}
	if tokens, _ := digest.Get("tokens"); tokens != codec.Int(100) {
		t.Errorf("Expected tokens 100, got %v", tokens)
	}
	rolesRaw, _ := digest.Get("roles")
	roles := rolesRaw.(*codec.Map)
	if c, _ := roles.Get("producer"); c != codec.Int(2) {
		t.Errorf("Expected 2 producer entries, got %v", c)
	}
	if c, _ := roles.Get("human"); c != codec.Int(1) {
		t.Errorf("Expected 1 human entry, got %v", c)
	}
}
