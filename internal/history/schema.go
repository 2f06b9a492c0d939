// Package history persists completed analysis runs and caches settled stage
// results between runs.
package history

import "database/sql"

const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    generated_at TEXT NOT NULL,
    symbols TEXT NOT NULL,
    total_confidence REAL NOT NULL,
    overall_risk TEXT NOT NULL,
    portfolio_size REAL NOT NULL,
    payload BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs(generated_at);
`

const stageResultsSchema = `
CREATE TABLE IF NOT EXISTS stage_results (
    symbol TEXT NOT NULL,
    kind TEXT NOT NULL,
    payload BLOB NOT NULL,
    expires_at INTEGER NOT NULL,
    PRIMARY KEY (symbol, kind)
);

CREATE INDEX IF NOT EXISTS idx_stage_results_expires ON stage_results(expires_at);
`

// InitRunsSchema ensures the runs table exists in the history database.
func InitRunsSchema(db *sql.DB) error {
	_, err := db.Exec(runsSchema)
	return err
}

// InitCacheSchema ensures the stage_results table exists in the cache
// database.
func InitCacheSchema(db *sql.DB) error {
	_, err := db.Exec(stageResultsSchema)
	return err
}
