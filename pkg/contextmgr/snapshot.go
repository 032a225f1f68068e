package contextmgr

import (
	"fmt"

	"curator/pkg/codec"
	"curator/pkg/persistence"
)

// Snapshot serialization for checkpoints. The working memory is rendered as
// a single compact document so a checkpoint row stores one self-describing
// text blob; restoring decodes it back without touching the history table.

// EncodeSnapshot renders a working-memory snapshot as compact text. Entry
// contents are decoded and re-embedded so the result is one well-formed
// document rather than text nested in text.
func EncodeSnapshot(s *WorkingMemorySnapshot) (string, error) {
	root := codec.NewMap()
	if s.Summary != nil {
		entry, err := entryValue(s.Summary)
		if err != nil {
			return "", err
		}
		root.Set("summary", entry)
	} else {
		root.Set("summary", codec.Null{})
	}
	entries := make(codec.List, 0, len(s.Entries))
	for _, e := range s.Entries {
		entry, err := entryValue(e)
		if err != nil {
			return "", err
		}
		entries = append(entries, entry)
	}
	root.Set("entries", entries)
	return codec.Encode(root), nil
}

// DecodeSnapshot reverses EncodeSnapshot. Entry ids, roles, and token
// estimates survive the round trip; the store connection does not, so the
// result is a detached view.
func DecodeSnapshot(text string) (*WorkingMemorySnapshot, error) {
	value, err := codec.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	root, ok := value.(*codec.Map)
	if !ok {
		return nil, fmt.Errorf("snapshot root is %s, expected map", value.Kind())
	}
	snapshot := &WorkingMemorySnapshot{}
	if raw, found := root.Get("summary"); found {
		if _, isNull := raw.(codec.Null); !isNull {
			entry, err := entryFromValue(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid snapshot summary: %w", err)
			}
			snapshot.Summary = entry
		}
	}
	raw, found := root.Get("entries")
	if !found {
		return nil, fmt.Errorf("snapshot has no entries list")
	}
	list, ok := raw.(codec.List)
	if !ok {
		return nil, fmt.Errorf("snapshot entries is %s, expected list", raw.Kind())
	}
	for i, item := range list {
		entry, err := entryFromValue(item)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot entry %d: %w", i, err)
		}
		snapshot.Entries = append(snapshot.Entries, entry)
	}
	return snapshot, nil
}

func entryValue(e *persistence.HistoryEntry) (codec.Value, error) {
	content, err := codec.Decode(e.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of entry %d: %w", e.ID, err)
	}
	return codec.NewMap().
		Set("id", codec.Int(e.ID)).
		Set("role", codec.String(e.Role)).
		Set("tokens", codec.Int(e.TokenEstimate)).
		Set("created_at", codec.String(persistence.FormatTime(e.CreatedAt))).
		Set("content", content), nil
}

func entryFromValue(v codec.Value) (*persistence.HistoryEntry, error) {
	m, ok := v.(*codec.Map)
	if !ok {
		return nil, fmt.Errorf("entry is %s, expected map", v.Kind())
	}
	entry := &persistence.HistoryEntry{}

	id, err := intField(m, "id")
	if err != nil {
		return nil, err
	}
	entry.ID = id

	role, err := stringField(m, "role")
	if err != nil {
		return nil, err
	}
	entry.Role = role

	tokens, err := intField(m, "tokens")
	if err != nil {
		return nil, err
	}
	entry.TokenEstimate = tokens

	createdAt, err := stringField(m, "created_at")
	if err != nil {
		return nil, err
	}
	if entry.CreatedAt, err = persistence.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}

	content, found := m.Get("content")
	if !found {
		return nil, fmt.Errorf("entry has no content")
	}
	entry.Content = codec.Encode(content)
	return entry, nil
}

func intField(m *codec.Map, key string) (int64, error) {
	raw, found := m.Get(key)
	if !found {
		return 0, fmt.Errorf("entry has no %s", key)
	}
	n, ok := raw.(codec.Int)
	if !ok {
		return 0, fmt.Errorf("entry %s is %s, expected int", key, raw.Kind())
	}
	return int64(n), nil
}

func stringField(m *codec.Map, key string) (string, error) {
	raw, found := m.Get(key)
	if !found {
		return "", fmt.Errorf("entry has no %s", key)
	}
	s, ok := raw.(codec.String)
	if !ok {
		return "", fmt.Errorf("entry %s is %s, expected string", key, raw.Kind())
	}
	return string(s), nil
}
