package contextmgr

import (
	"context"
	"strings"
	"testing"

	"curator/pkg/codec"
)

func TestSnapshotRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, Config{BudgetTokens: 10000, RetainTail: 2})
	payloads := []codec.Value{
		codec.NewMap().Set("field", codec.String("bp_sys")).Set("unit", codec.String("mmHg")),
		codec.String(strings.Repeat("reviewer note ", 30)),
		codec.List{codec.Int(1), codec.Int(2), codec.Int(3)},
		codec.NewMap().Set("field", codec.String("hr")).Set("range", codec.List{codec.Int(40), codec.Int(200)}),
	}
	for _, p := range payloads {
		if _, err := m.Append(context.Background(), testJobID, "producer", p); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if _, err := m.Compact(context.Background(), testJobID); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	original, err := m.GetWorkingMemory(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("GetWorkingMemory failed: %v", err)
	}
	if original.Summary == nil {
		t.Fatal("Expected a summary in the snapshot")
	}

	text, err := EncodeSnapshot(original)
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}
	restored, err := DecodeSnapshot(text)
	if err != nil {
		t.Fatalf("DecodeSnapshot failed: %v", err)
	}

	if restored.Summary == nil {
		t.Fatal("Expected summary to survive the round trip")
	}
	if restored.Summary.ID != original.Summary.ID {
		t.Errorf("Expected summary id %d, got %d", original.Summary.ID, restored.Summary.ID)
	}
	if restored.Summary.Content != original.Summary.Content {
		t.Errorf("Summary content changed: %q vs %q", original.Summary.Content, restored.Summary.Content)
	}
	if len(restored.Entries) != len(original.Entries) {
		t.Fatalf("Expected %d entries, got %d", len(original.Entries), len(restored.Entries))
	}
	for i := range original.Entries {
		want, got := original.Entries[i], restored.Entries[i]
		if got.ID != want.ID || got.Role != want.Role || got.TokenEstimate != want.TokenEstimate {
			t.Errorf("Entry %d metadata changed: want (%d,%s,%d), got (%d,%s,%d)",
				i, want.ID, want.Role, want.TokenEstimate, got.ID, got.Role, got.TokenEstimate)
		}
		if got.Content != want.Content {
			t.Errorf("Entry %d content changed: %q vs %q", i, want.Content, got.Content)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("Entry %d timestamp changed: %v vs %v", i, want.CreatedAt, got.CreatedAt)
		}
	}
}

func TestEncodeSnapshotWithoutSummary(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	appendText(t, m, "producer", strings.Repeat("a", 20))

	wm, err := m.GetWorkingMemory(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("GetWorkingMemory failed: %v", err)
	}
	text, err := EncodeSnapshot(wm)
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}
	restored, err := DecodeSnapshot(text)
	if err != nil {
		t.Fatalf("DecodeSnapshot failed: %v", err)
	}
	if restored.Summary != nil {
		t.Error("Expected nil summary to survive the round trip")
	}
	if len(restored.Entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(restored.Entries))
	}
}

func TestDecodeSnapshotRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"not a map", "just a string"},
		{"missing entries", "summary: null"},
		{"entries not a list", "summary: null\nentries: 3"},
		{"entry missing role", "summary: null\nentries[1]:\n  -\n    id: 1"},
		{"garbage", "a: [broken"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeSnapshot(tc.text); err == nil {
				t.Errorf("Expected error for %q", tc.text)
			}
		})
	}
}
