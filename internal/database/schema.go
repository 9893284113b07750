package database

// resultsSchema defines the results store. Panel feature columns live in
// the CSV artifact; the panel_rows table is a compact per-row index so
// runs can be compared without reparsing artifacts.
const resultsSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    reference_date TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    status TEXT NOT NULL,
    panel_rows INTEGER,
    churn_rows INTEGER,
    artifact_path TEXT,
    error TEXT
);

CREATE TABLE IF NOT EXISTS quality_summaries (
    run_id TEXT PRIMARY KEY REFERENCES runs(id),
    payload TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS panel_rows (
    run_id TEXT NOT NULL REFERENCES runs(id),
    account_id TEXT NOT NULL,
    month TEXT NOT NULL,
    churn_flag INTEGER NOT NULL,
    account_age_days INTEGER NOT NULL,
    composite_risk REAL,
    PRIMARY KEY (run_id, account_id, month)
);

CREATE TABLE IF NOT EXISTS category_dictionary (
    domain TEXT NOT NULL,
    category TEXT NOT NULL,
    code INTEGER NOT NULL,
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (domain, category)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_panel_rows_account ON panel_rows(account_id, month);
`
