package repo

import (
	"context"
	"database/sql"

	"cognical/internal/domain"
)

// GetCacheEntryLive returns the entry under cacheKey when it has not expired,
// incrementing its hit counter in the same transaction.
func (r Repo) GetCacheEntryLive(ctx context.Context, cacheKey, now string) (domain.CacheEntry, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CacheEntry{}, err
	}
	defer tx.Rollback()

	var e domain.CacheEntry
	var rawInput, metadata sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT cache_key,operation,semantic_hash,raw_input,response_json,created_at,expires_at,hit_count,metadata_json
FROM ai_cache WHERE cache_key=? AND expires_at>?`, cacheKey, now).
		Scan(&e.CacheKey, &e.Operation, &e.SemanticHash, &rawInput, &e.ResponseJSON, &e.CreatedAt, &e.ExpiresAt, &e.HitCount, &metadata)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if rawInput.Valid {
		e.RawInput = rawInput.String
	}
	if metadata.Valid {
		e.MetadataJSON = metadata.String
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ai_cache SET hit_count=hit_count+1 WHERE cache_key=?`, cacheKey); err != nil {
		return e, err
	}
	e.HitCount++
	return e, tx.Commit()
}

// UpsertCacheEntry inserts or replaces. keepHits carries the previous hit
// counter across the replacement.
func (r Repo) UpsertCacheEntry(ctx context.Context, e domain.CacheEntry, keepHits bool) error {
	hitExpr := "0"
	if keepHits {
		hitExpr = "ai_cache.hit_count"
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO ai_cache(cache_key,operation,semantic_hash,raw_input,response_json,created_at,expires_at,hit_count,metadata_json)
VALUES (?,?,?,?,?,?,?,0,?)
ON CONFLICT(cache_key) DO UPDATE SET
operation=excluded.operation, semantic_hash=excluded.semantic_hash, raw_input=excluded.raw_input,
response_json=excluded.response_json, created_at=excluded.created_at, expires_at=excluded.expires_at,
hit_count=`+hitExpr+`, metadata_json=excluded.metadata_json`,
		e.CacheKey, e.Operation, e.SemanticHash, nullable(e.RawInput), e.ResponseJSON, e.CreatedAt, e.ExpiresAt, nullable(e.MetadataJSON))
	return err
}

func (r Repo) DeleteExpiredCacheEntries(ctx context.Context, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM ai_cache WHERE expires_at<=?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) CountCacheEntries(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM ai_cache`).Scan(&n)
	return n, err
}
