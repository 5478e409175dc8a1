package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cost_entries (
    id                   TEXT PRIMARY KEY,
    ts_ns                INTEGER NOT NULL,
    ts                   TEXT NOT NULL,
    model                TEXT NOT NULL,
    role                 TEXT,
    tier                 TEXT,
    session_id           TEXT,
    input_tokens         INTEGER NOT NULL DEFAULT 0,
    output_tokens        INTEGER NOT NULL DEFAULT 0,
    amount               REAL NOT NULL CHECK (amount >= 0),
    goal                 TEXT
);

CREATE INDEX IF NOT EXISTS idx_cost_entries_ts ON cost_entries(ts_ns);
CREATE INDEX IF NOT EXISTS idx_cost_entries_model ON cost_entries(model);

CREATE TRIGGER IF NOT EXISTS cost_entries_no_update
BEFORE UPDATE ON cost_entries
BEGIN
    SELECT RAISE(ABORT, 'ledger is append-only');
END;

CREATE TRIGGER IF NOT EXISTS cost_entries_no_delete
BEFORE DELETE ON cost_entries
BEGIN
    SELECT RAISE(ABORT, 'ledger is append-only');
END;
`
