package database

// schemas maps database names to their embedded DDL. Every statement is
// idempotent so Migrate can run on each startup.
var schemas = map[string]string{
	"macro": macroSchema,
	"cache": cacheSchema,
}

const macroSchema = `
-- Indicator catalog state: one row per configured indicator, refreshed on
-- every resolution attempt (successful or not).
CREATE TABLE IF NOT EXISTS indicators (
    key         TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    frequency   TEXT NOT NULL DEFAULT '',
    unit        TEXT NOT NULL DEFAULT '',
    source_used TEXT NOT NULL DEFAULT '',
    error_type  TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    resolved_at INTEGER NOT NULL DEFAULT 0,
    updated_at  INTEGER NOT NULL DEFAULT 0
);

-- Observations are keyed by (indicator, date); re-ingesting a date replaces
-- the previous value. NULL values mark known-missing observations.
CREATE TABLE IF NOT EXISTS observations (
    indicator_key TEXT NOT NULL,
    date          TEXT NOT NULL,
    value         REAL,
    PRIMARY KEY (indicator_key, date)
);

CREATE INDEX IF NOT EXISTS idx_observations_date ON observations(date);

CREATE TABLE IF NOT EXISTS correlations (
    asset_key       TEXT NOT NULL,
    base_key        TEXT NOT NULL,
    window          TEXT NOT NULL,
    correlation     REAL,
    n_observations  INTEGER NOT NULL DEFAULT 0,
    last_asset_date TEXT NOT NULL DEFAULT '',
    last_base_date  TEXT NOT NULL DEFAULT '',
    computed_at     INTEGER NOT NULL,
    PRIMARY KEY (asset_key, base_key, window)
);

CREATE TABLE IF NOT EXISTS runs (
    id               TEXT PRIMARY KEY,
    started_at       INTEGER NOT NULL,
    finished_at      INTEGER,
    total            INTEGER NOT NULL DEFAULT 0,
    succeeded        INTEGER NOT NULL DEFAULT 0,
    failed           INTEGER NOT NULL DEFAULT 0,
    budget_exhausted INTEGER NOT NULL DEFAULT 0,
    error_counts     TEXT NOT NULL DEFAULT '{}'
);

-- Single-row cursor marking where the last batch stopped, so an interrupted
-- run resumes instead of restarting from the first indicator.
CREATE TABLE IF NOT EXISTS ingest_cursor (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    position   INTEGER NOT NULL DEFAULT 0,
    run_id     TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL DEFAULT 0
);
`

const cacheSchema = `
CREATE TABLE IF NOT EXISTS fred_payloads (
    cache_key  TEXT PRIMARY KEY,
    payload    BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS dbnomics_payloads (
    cache_key  TEXT PRIMARY KEY,
    payload    BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tradingecon_payloads (
    cache_key  TEXT PRIMARY KEY,
    payload    BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);
`
