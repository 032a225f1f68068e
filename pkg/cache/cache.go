package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"curator/pkg/codec"
	"curator/pkg/logx"
	"curator/pkg/persistence"
)

// Cache entry sources: who vouched for the stored resolution.
const (
	SourceHuman = "human"
	SourceAuto  = "auto"
)

// Cache provides lookup and store operations over the mapping_cache table.
// A miss is a normal result, not an error. The Tx variants take a DBTX so
// the review queue can fold cache reads and writes into its item
// transactions.
type Cache struct {
	store  *persistence.Store
	logger *logx.Logger
}

// New creates a cache backed by the given store.
func New(store *persistence.Store) *Cache {
	return &Cache{
		store:  store,
		logger: logx.NewLogger("cache"),
	}
}

// Lookup returns the cached resolution for a signature, reporting a miss
// through the second return value.
func (c *Cache) Lookup(ctx context.Context, signature string) (codec.Value, bool, error) {
	return c.LookupTx(ctx, c.store.DB(), signature)
}

// LookupTx is Lookup against an explicit query handle. It is a pure read.
func (c *Cache) LookupTx(ctx context.Context, q persistence.DBTX, signature string) (codec.Value, bool, error) {
	var resolution string
	err := q.QueryRowContext(ctx,
		`SELECT resolution FROM mapping_cache WHERE signature = ?`, signature,
	).Scan(&resolution)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup failed: %w", err)
	}
	value, err := codec.Decode(resolution)
	if err != nil {
		return nil, false, fmt.Errorf("cached resolution for signature is malformed: %w", err)
	}
	return value, true, nil
}

// RecordHitTx bumps the hit counter for a signature. Called when a lookup
// result is actually applied to an item.
func (c *Cache) RecordHitTx(ctx context.Context, q persistence.DBTX, signature string) error {
	if _, err := q.ExecContext(ctx,
		`UPDATE mapping_cache SET hit_count = hit_count + 1 WHERE signature = ?`, signature,
	); err != nil {
		return fmt.Errorf("failed to record cache hit: %w", err)
	}
	return nil
}

// Store writes a resolution for a signature, overwriting any earlier entry.
// The most recent write wins; source records who vouched for it.
func (c *Cache) Store(ctx context.Context, signature string, resolution codec.Value, source string) error {
	return c.StoreTx(ctx, c.store.DB(), signature, resolution, source, time.Now())
}

// StoreTx is Store against an explicit query handle with a caller-supplied
// write time.
func (c *Cache) StoreTx(ctx context.Context, q persistence.DBTX, signature string, resolution codec.Value, source string, now time.Time) error {
	if source != SourceHuman && source != SourceAuto {
		return fmt.Errorf("invalid cache source %q", source)
	}
	encoded := codec.Encode(resolution)
	ts := persistence.FormatTime(now)
	query := `
		INSERT INTO mapping_cache (signature, resolution, source, hit_count, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(signature) DO UPDATE SET
			resolution = excluded.resolution,
			source = excluded.source,
			updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, signature, encoded, source, ts, ts); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	c.logger.Debug("cache store: source=%s signature bytes=%d", source, len(signature))
	return nil
}

// Delete removes a single entry, reporting whether it existed.
func (c *Cache) Delete(ctx context.Context, signature string) (bool, error) {
	result, err := c.store.DB().ExecContext(ctx,
		`DELETE FROM mapping_cache WHERE signature = ?`, signature)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Purge removes every entry and returns how many were dropped.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	result, err := c.store.DB().ExecContext(ctx, `DELETE FROM mapping_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	c.logger.Info("cache purged: %d entries dropped", affected)
	return affected, nil
}

// List returns entries ordered by most recent update. A zero limit returns
// everything.
func (c *Cache) List(ctx context.Context, limit int) ([]*persistence.CacheEntry, error) {
	query := `
		SELECT signature, resolution, source, hit_count, created_at, updated_at
		FROM mapping_cache ORDER BY updated_at DESC, signature ASC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := c.store.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*persistence.CacheEntry
	for rows.Next() {
		var e persistence.CacheEntry
		var createdAt, updatedAt string
		if err := rows.Scan(&e.Signature, &e.Resolution, &e.Source, &e.HitCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		if e.CreatedAt, err = persistence.ParseTime(createdAt); err != nil {
			return nil, err
		}
		if e.UpdatedAt, err = persistence.ParseTime(updatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache entry iteration error: %w", err)
	}
	return entries, nil
}

// Stats summarizes cache contents.
type Stats struct {
	Entries      int64 `json:"entries"`
	TotalHits    int64 `json:"total_hits"`
	HumanEntries int64 `json:"human_entries"`
	AutoEntries  int64 `json:"auto_entries"`
}

// GetStats returns aggregate cache counters.
func (c *Cache) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := c.store.DB().QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(hit_count), 0),
			COALESCE(SUM(CASE WHEN source = 'human' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source = 'auto' THEN 1 ELSE 0 END), 0)
		FROM mapping_cache
	`).Scan(&s.Entries, &s.TotalHits, &s.HumanEntries, &s.AutoEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache stats: %w", err)
	}
	return &s, nil
}
