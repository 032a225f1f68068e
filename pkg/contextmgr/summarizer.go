package contextmgr

import (
	"context"

	"curator/pkg/codec"
	"curator/pkg/persistence"
)

// Summarizer produces the content of the summary entry that replaces a run
// of compacted history. Implementations must not touch the store; compaction
// calls them mid-transaction.
type Summarizer interface {
	Summarize(ctx context.Context, entries []*persistence.HistoryEntry) (codec.Value, error)
}

// DigestSummarizer is the built-in fallback when no LLM-backed summarizer is
// wired in. It reduces the compacted run to a deterministic digest: entry and
// token counts, the role distribution, and the covered time span. The digest
// is intentionally tiny so compaction always shrinks the active set.
type DigestSummarizer struct{}

// Summarize implements Summarizer.
func (DigestSummarizer) Summarize(_ context.Context, entries []*persistence.HistoryEntry) (codec.Value, error) {
	roles := codec.NewMap()
	var tokens int64
	for _, e := range entries {
		count := codec.Int(0)
		if prev, ok := roles.Get(e.Role); ok {
			count = prev.(codec.Int)
		}
		roles.Set(e.Role, count+1)
		tokens += e.TokenEstimate
	}
	digest := codec.NewMap().
		Set("entries", codec.Int(len(entries))).
		Set("tokens", codec.Int(tokens)).
		Set("roles", roles)
	if len(entries) > 0 {
		digest.Set("from", codec.String(persistence.FormatTime(entries[0].CreatedAt))).
			Set("to", codec.String(persistence.FormatTime(entries[len(entries)-1].CreatedAt)))
	}
	return digest, nil
}

// staticSummarizer returns fixed content, used by CompactWith to carry
// caller-supplied summaries through the shared compaction path.
type staticSummarizer struct {
	value codec.Value
}

func (s staticSummarizer) Summarize(context.Context, []*persistence.HistoryEntry) (codec.Value, error) {
	return s.value, nil
}
