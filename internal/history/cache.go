package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/advisor/internal/database"
	"github.com/aristath/advisor/internal/domain"
)

// ResultCache stores settled stage results with a TTL. Lookups never fail
// loudly: any storage error is logged and reported as a miss, so a broken
// cache degrades to uncached behavior.
type ResultCache struct {
	db  *sql.DB
	ttl time.Duration
	log zerolog.Logger
	now func() time.Time
}

// NewResultCache creates a stage-result cache and ensures its schema exists.
func NewResultCache(db *database.DB, ttl time.Duration, log zerolog.Logger) (*ResultCache, error) {
	if err := InitCacheSchema(db.Conn()); err != nil {
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &ResultCache{
		db:  db.Conn(),
		ttl: ttl,
		log: log.With().Str("component", "stage_cache").Logger(),
		now: time.Now,
	}, nil
}

// Get returns the cached result if present and not expired.
func (c *ResultCache) Get(symbol string, kind domain.StageKind) (domain.StageResult, bool) {
	var payload []byte
	var expiresAt int64
	err := c.db.QueryRow(
		`SELECT payload, expires_at FROM stage_results WHERE symbol = ? AND kind = ?`,
		symbol, string(kind)).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StageResult{}, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Str("stage", string(kind)).Msg("Cache lookup failed")
		return domain.StageResult{}, false
	}

	if c.now().Unix() >= expiresAt {
		_, _ = c.db.Exec(`DELETE FROM stage_results WHERE symbol = ? AND kind = ?`, symbol, string(kind))
		return domain.StageResult{}, false
	}

	var result domain.StageResult
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Str("stage", string(kind)).Msg("Cache payload corrupt, dropping")
		_, _ = c.db.Exec(`DELETE FROM stage_results WHERE symbol = ? AND kind = ?`, symbol, string(kind))
		return domain.StageResult{}, false
	}
	return result, true
}

// Put stores a settled result, replacing any previous entry for the same
// symbol and stage.
func (c *ResultCache) Put(symbol string, kind domain.StageKind, result domain.StageResult) {
	payload, err := msgpack.Marshal(result)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Str("stage", string(kind)).Msg("Cache encode failed")
		return
	}

	_, err = c.db.Exec(
		`INSERT INTO stage_results (symbol, kind, payload, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(symbol, kind) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		symbol, string(kind), payload, c.now().Add(c.ttl).Unix())
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Str("stage", string(kind)).Msg("Cache write failed")
	}
}

// Prune deletes expired entries. Intended to run on a schedule.
func (c *ResultCache) Prune(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM stage_results WHERE expires_at <= ?`, c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune stage cache: %w", err)
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		c.log.Debug().Int64("deleted", deleted).Msg("Pruned expired stage results")
	}
	return deleted, nil
}
