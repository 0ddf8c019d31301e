package journal

const schema = `
CREATE TABLE IF NOT EXISTS envelopes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    type TEXT NOT NULL,
    payload TEXT,
    received_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_envelopes_run_id ON envelopes(run_id);
CREATE INDEX IF NOT EXISTS idx_envelopes_received_at ON envelopes(received_at);

CREATE TABLE IF NOT EXISTS diagnostics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    command_key INTEGER,
    command_id TEXT,
    kind TEXT NOT NULL,
    detail TEXT,
    recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_diagnostics_run_id ON diagnostics(run_id);
`
